package blog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distillpress/distill/internal/memory"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
)

func TestBuildReadingListContext(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	index, err := st.OpenContentIndex()
	require.NoError(t, err)
	items := []model.ContentItem{
		{
			ID: "prof-1", Source: model.SourceRSS, ContentType: model.TypeArticle,
			Title: "Profiling Guide", URL: "https://example.com/prof",
			Author: "Jan", SiteName: "Go Blog",
			Excerpt:     "CPU profiles explained.",
			Tags:        []string{"profiling", "go"},
			PublishedAt: time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC),
		},
		{
			ID: "gc-1", Source: model.SourceBrowser, ContentType: model.TypeArticle,
			Title:       "GC Pacing Notes",
			PublishedAt: time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC),
		},
		{
			ID: "next-week", Source: model.SourceRSS, ContentType: model.TypeArticle,
			Title:       "Out Of Range",
			PublishedAt: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, index.UpsertItems(items, time.UTC))
	require.NoError(t, index.Close())

	mem := memory.New()
	mem.RecordDaily(memory.DailyEntry{Date: "2026-02-03", Themes: []string{"profiling"}})
	mem.RecordDaily(memory.DailyEntry{Date: "2026-02-10", Themes: []string{"next week"}})

	rc, ok, err := BuildReadingListContext(st, mem, "2026-W06")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "reading-list-2026-W06", rc.Slug())
	assert.Equal(t, "2026-02-02", rc.Start)
	assert.Equal(t, "2026-02-08", rc.End)
	assert.Equal(t, 2, rc.TotalRead, "next week's item stays out")
	assert.Equal(t, []string{"2026-02-03", "2026-02-05"}, rc.SourceDates())
	assert.Equal(t, []string{"profiling"}, rc.Themes)

	// A week with nothing archived produces no roundup.
	_, ok, err = BuildReadingListContext(st, mem, "2026-W01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildReadingListPrompt(t *testing.T) {
	rc := &ReadingListContext{
		Week:      "2026-W06",
		Start:     "2026-02-02",
		End:       "2026-02-08",
		TotalRead: 12,
		Items: []model.ContentItem{
			{
				Title: "Profiling Guide", Author: "Jan", SiteName: "Go Blog",
				URL:     "https://example.com/prof",
				Excerpt: strings.Repeat("x", 300),
				Tags:    []string{"profiling", "go"},
			},
			{Title: "GC Pacing Notes"},
		},
		Themes: []string{"profiling"},
	}

	out := BuildReadingListPrompt(rc, promptInputs{TargetWords: 800})
	assert.Contains(t, out, "## Reading List: Week 2026-W06 (2026-02-02 to 2026-02-08)")
	assert.Contains(t, out, "Total articles read: 12")
	assert.Contains(t, out, "### 1. Profiling Guide by Jan (Go Blog)")
	assert.Contains(t, out, "### 2. GC Pacing Notes\n")
	assert.Contains(t, out, "Tags: profiling, go")
	assert.Contains(t, out, "Weekly themes: profiling")
	assert.Contains(t, out, strings.Repeat("x", 200)+"...", "long excerpts are clipped")
}
