package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distillpress/distill/internal/model"
)

func openIndex(t *testing.T) (*Store, *ContentIndex) {
	t.Helper()
	s := newStore(t)
	ci, err := s.OpenContentIndex()
	require.NoError(t, err)
	t.Cleanup(func() { ci.Close() })
	return s, ci
}

func testItem(id string, published time.Time) model.ContentItem {
	return model.ContentItem{
		ID:          id,
		Source:      model.SourceRSS,
		ContentType: model.TypeArticle,
		Title:       "Worker Pools Revisited",
		URL:         "https://example.com/worker-pools",
		Author:      "Jo Writer",
		PublishedAt: published,
		IngestedAt:  time.Date(2026, 2, 9, 6, 0, 0, 0, time.UTC),
		Tags:        []string{"concurrency", "go"},
		Metadata:    map[string]string{"feed": "example"},
	}
}

func TestContentIndexUpsertAndQuery(t *testing.T) {
	_, ci := openIndex(t)
	published := time.Date(2026, 2, 8, 15, 30, 0, 0, time.UTC)

	require.NoError(t, ci.UpsertItems([]model.ContentItem{testItem("abc123", published)}, time.UTC))

	ok, err := ci.HasItem("abc123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ci.HasItem("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	items, err := ci.ItemsForDate("2026-02-08")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Worker Pools Revisited", items[0].Title)
	assert.Equal(t, model.SourceRSS, items[0].Source)
	assert.Equal(t, []string{"concurrency", "go"}, items[0].Tags)
	assert.Equal(t, map[string]string{"feed": "example"}, items[0].Metadata)
	assert.True(t, items[0].PublishedAt.Equal(published))

	items, err = ci.ItemsForDate("2026-02-09")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestContentIndexUpsertReplacesKeepingIngestedAt(t *testing.T) {
	_, ci := openIndex(t)
	published := time.Date(2026, 2, 8, 15, 30, 0, 0, time.UTC)

	first := testItem("abc123", published)
	require.NoError(t, ci.UpsertItems([]model.ContentItem{first}, time.UTC))

	second := testItem("abc123", published)
	second.Title = "Worker Pools, Revised"
	second.IngestedAt = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	require.NoError(t, ci.UpsertItems([]model.ContentItem{second}, time.UTC))

	items, err := ci.ItemsForDate("2026-02-08")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Worker Pools, Revised", items[0].Title)
	assert.True(t, items[0].IngestedAt.Equal(first.IngestedAt),
		"first ingestion time survives re-ingest")
}

func TestContentIndexTimezoneBucketing(t *testing.T) {
	_, ci := openIndex(t)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC Feb 9 is still Feb 8 in New York.
	item := testItem("tzitem", time.Date(2026, 2, 9, 2, 0, 0, 0, time.UTC))
	require.NoError(t, ci.UpsertItems([]model.ContentItem{item}, ny))

	items, err := ci.ItemsForDate("2026-02-08")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestContentIndexIngestedFallback(t *testing.T) {
	_, ci := openIndex(t)
	item := testItem("nodate", time.Time{})
	require.NoError(t, ci.UpsertItems([]model.ContentItem{item}, time.UTC))

	items, err := ci.ItemsForDate("2026-02-09")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].PublishedAt.IsZero())
}

func TestContentIndexCountBySource(t *testing.T) {
	_, ci := openIndex(t)
	published := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	a := testItem("one", published)
	b := testItem("two", published)
	c := testItem("three", published)
	c.Source = model.SourceBrowser

	require.NoError(t, ci.UpsertItems([]model.ContentItem{a, b, c}, time.UTC))

	counts, err := ci.CountBySource()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"rss": 2, "browser": 1}, counts)
}

func TestContentIndexPersistsAcrossOpens(t *testing.T) {
	s, ci := openIndex(t)
	published := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ci.UpsertItems([]model.ContentItem{testItem("abc123", published)}, time.UTC))
	require.NoError(t, ci.Close())

	reopened, err := s.OpenContentIndex()
	require.NoError(t, err)
	defer reopened.Close()

	ok, err := reopened.HasItem("abc123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteIntakeArchiveAndDigest(t *testing.T) {
	s := newStore(t)
	published := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	archivePath, err := s.WriteIntakeArchive("2026-02-08",
		[]model.ContentItem{testItem("abc123", published)})
	require.NoError(t, err)
	assert.FileExists(t, archivePath)

	digestPath, err := s.WriteDigest("2026-02-08", "# Reading Digest\n")
	require.NoError(t, err)
	assert.Equal(t, s.DigestPath("2026-02-08"), digestPath)
	assert.FileExists(t, digestPath)
}
