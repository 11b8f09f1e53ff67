package parser

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distillpress/distill/internal/model"
)

func TestChromeMicrosConversion(t *testing.T) {
	// 13217110521000000 µs past 1601-01-01 is 2019-11-01T19:35:21Z.
	want := time.Date(2019, 11, 1, 19, 35, 21, 0, time.UTC)
	assert.Equal(t, want, fromChromeMicros(13217110521000000))
	assert.Equal(t, int64(13217110521000000), chromeMicros(want))

	// Round trip far beyond the ~292y range a Duration could carry.
	now := time.Now().UTC().Truncate(time.Microsecond)
	assert.Equal(t, now, fromChromeMicros(chromeMicros(now)))
}

func writeChromeHistory(t *testing.T, visits map[string]time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "History")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE urls (
		id INTEGER PRIMARY KEY,
		url TEXT,
		title TEXT,
		visit_count INTEGER,
		last_visit_time INTEGER
	)`)
	require.NoError(t, err)

	for url, visited := range visits {
		_, err = db.Exec(
			`INSERT INTO urls (url, title, visit_count, last_visit_time)
			 VALUES (?, ?, ?, ?)`,
			url, "Title for "+url, 2, chromeMicros(visited))
		require.NoError(t, err)
	}
	return path
}

func TestParseBrowserHistoryChrome(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	path := writeChromeHistory(t, map[string]time.Time{
		"https://example.com/recent": now.Add(-2 * time.Hour),
		"https://example.com/stale":  now.Add(-30 * 24 * time.Hour),
	})

	items, diags, err := ParseBrowserHistory(path, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, model.SourceBrowser, it.Source)
	assert.Equal(t, "https://example.com/recent", it.URL)
	assert.Equal(t, "Title for https://example.com/recent", it.Title)
	assert.Equal(t, "2", it.Metadata["visit_count"])
	assert.WithinDuration(t, now.Add(-2*time.Hour), it.PublishedAt, time.Second)
}

func TestParseBrowserHistoryFirefox(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE moz_places (
		id INTEGER PRIMARY KEY,
		url TEXT,
		title TEXT,
		visit_count INTEGER,
		last_visit_date INTEGER
	)`)
	require.NoError(t, err)

	visited := time.Now().UTC().Add(-time.Hour)
	_, err = db.Exec(
		`INSERT INTO moz_places (url, title, visit_count, last_visit_date)
		 VALUES (?, ?, ?, ?)`,
		"https://mozilla.example/doc", "Docs", 5, visited.UnixMicro())
	require.NoError(t, err)

	items, diags, err := ParseBrowserHistory(path, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, items, 1)
	assert.Equal(t, "https://mozilla.example/doc", items[0].URL)
	assert.Equal(t, "Docs", items[0].Title)
}

func TestParseBrowserHistoryMissingFile(t *testing.T) {
	_, _, err := ParseBrowserHistory(
		filepath.Join(t.TempDir(), "absent"), time.Now())
	require.Error(t, err)
}
