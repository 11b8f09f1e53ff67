package parser

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/distillpress/distill/internal/model"
)

// Chrome stores visit times as microseconds since 1601-01-01 UTC,
// which is 11644473600 seconds before the Unix epoch. The span does
// not fit in a time.Duration, so conversions stay in integer
// microseconds.
const chromeEpochOffsetMicros int64 = 11_644_473_600 * 1_000_000

func chromeMicros(t time.Time) int64 {
	return t.UnixMicro() + chromeEpochOffsetMicros
}

func fromChromeMicros(us int64) time.Time {
	return time.UnixMicro(us - chromeEpochOffsetMicros).UTC()
}

const (
	chromeHistorySQL = `SELECT url, title, visit_count, last_visit_time
FROM urls WHERE last_visit_time > ? ORDER BY last_visit_time DESC LIMIT ?`

	firefoxHistorySQL = `SELECT url, title, visit_count, last_visit_date
FROM moz_places WHERE last_visit_date > ? ORDER BY last_visit_date DESC LIMIT ?`

	maxHistoryItems = 200
)

// ParseBrowserHistory reads a browser history SQLite database and
// returns one content item per visited URL newer than since. Both the
// Chrome layout (urls table) and the Firefox layout (moz_places) are
// recognized. The database is copied aside first because the browser
// holds a lock on the live file.
func ParseBrowserHistory(dbPath string, since time.Time) ([]*model.ContentItem, []Diagnostic, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("browser history %s: %w", dbPath, err)
	}
	tmp, err := copyToTemp(dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(filepath.Dir(tmp))

	db, err := sql.Open("sqlite3", tmp+"?mode=ro")
	if err != nil {
		return nil, nil, fmt.Errorf("opening history copy: %w", err)
	}
	defer db.Close()

	if items, diags, err := queryChromeHistory(db, since); err == nil {
		return items, diags, nil
	}
	items, diags, err := queryFirefoxHistory(db, since)
	if err != nil {
		return nil, nil, fmt.Errorf("querying history %s: %w", dbPath, err)
	}
	return items, diags, nil
}

func copyToTemp(path string) (string, error) {
	dir, err := os.MkdirTemp("", "distill-history-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	src, err := os.Open(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	dstPath := filepath.Join(dir, filepath.Base(path))
	dst, err := os.Create(dstPath)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("creating history copy: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("copying history: %w", err)
	}
	return dstPath, nil
}

func queryChromeHistory(db *sql.DB, since time.Time) ([]*model.ContentItem, []Diagnostic, error) {
	sinceMicros := chromeMicros(since)
	rows, err := db.Query(chromeHistorySQL, sinceMicros, maxHistoryItems)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		items []*model.ContentItem
		diags []Diagnostic
	)
	for rows.Next() {
		var (
			url, title string
			visits     int
			lastVisit  int64
		)
		if err := rows.Scan(&url, &title, &visits, &lastVisit); err != nil {
			diags = append(diags, Diagnostic{
				Source: model.SourceBrowser,
				Msg:    fmt.Sprintf("scanning history row: %v", err),
			})
			continue
		}
		visitedAt := fromChromeMicros(lastVisit)
		items = append(items, historyItem(url, title, visits, visitedAt))
	}
	return items, diags, rows.Err()
}

func queryFirefoxHistory(db *sql.DB, since time.Time) ([]*model.ContentItem, []Diagnostic, error) {
	// moz_places stores microseconds since the Unix epoch.
	rows, err := db.Query(firefoxHistorySQL, since.UnixMicro(), maxHistoryItems)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		items []*model.ContentItem
		diags []Diagnostic
	)
	for rows.Next() {
		var (
			url       string
			title     sql.NullString
			visits    sql.NullInt64
			lastVisit sql.NullInt64
		)
		if err := rows.Scan(&url, &title, &visits, &lastVisit); err != nil {
			diags = append(diags, Diagnostic{
				Source: model.SourceBrowser,
				Msg:    fmt.Sprintf("scanning history row: %v", err),
			})
			continue
		}
		visitedAt := time.UnixMicro(lastVisit.Int64).UTC()
		items = append(items, historyItem(url, title.String, int(visits.Int64), visitedAt))
	}
	return items, diags, rows.Err()
}

func historyItem(url, title string, visits int, visitedAt time.Time) *model.ContentItem {
	if title == "" {
		title = url
	}
	return &model.ContentItem{
		Source:      model.SourceBrowser,
		ContentType: model.TypeArticle,
		Title:       truncate(title, 200),
		URL:         url,
		PublishedAt: visitedAt,
		Metadata:    map[string]string{"visit_count": fmt.Sprintf("%d", visits)},
	}
}
