package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

const contentIndexFilename = ".content-index.db"

const contentSchemaSQL = `
CREATE TABLE IF NOT EXISTS content_items (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    content_type TEXT NOT NULL,
    native_id    TEXT,
    title        TEXT NOT NULL,
    url          TEXT,
    author       TEXT,
    site_name    TEXT,
    published_at TEXT,
    ingested_at  TEXT NOT NULL,
    date_key     TEXT NOT NULL,
    excerpt      TEXT,
    body         TEXT,
    tags         TEXT,
    metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_content_date ON content_items(date_key);
CREATE INDEX IF NOT EXISTS idx_content_source ON content_items(source);
`

// ContentIndex is the SQLite archive of every ingested content item.
// It backs cross-run dedup (has this id been seen before?) and the
// per-date queries the digest and reading-list stages run.
type ContentIndex struct {
	db *sql.DB
	mu sync.Mutex // serializes writes
}

// makeContentDSN builds the SQLite connection string with the shared
// pragmas.
func makeContentDSN(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	return path + "?" + params.Encode()
}

// OpenContentIndex opens (creating if needed) the content archive
// index under the intake directory.
func (s *Store) OpenContentIndex() (*ContentIndex, error) {
	if err := os.MkdirAll(s.IntakeDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating intake dir: %w", err)
	}
	path := filepath.Join(s.IntakeDir(), contentIndexFilename)
	db, err := sql.Open("sqlite3", makeContentDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening content index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(contentSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing content index schema: %w", err)
	}
	return &ContentIndex{db: db}, nil
}

// Close closes the underlying database.
func (ci *ContentIndex) Close() error {
	return ci.db.Close()
}

// HasItem reports whether an item id is already archived.
func (ci *ContentIndex) HasItem(id string) (bool, error) {
	var n int
	err := ci.db.QueryRow(
		"SELECT count(*) FROM content_items WHERE id = ?", id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking item %s: %w", id, err)
	}
	return n > 0, nil
}

// UpsertItems archives a batch of items in one transaction. Existing
// rows are replaced: mutable metadata is last-write-wins, but the
// original ingested_at is preserved.
func (ci *ContentIndex) UpsertItems(items []model.ContentItem, loc *time.Location) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	tx, err := ci.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO content_items (
			id, source, content_type, native_id, title, url, author,
			site_name, published_at, ingested_at, date_key, excerpt,
			body, tags, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			content_type = excluded.content_type,
			native_id = excluded.native_id,
			title = excluded.title,
			url = excluded.url,
			author = excluded.author,
			site_name = excluded.site_name,
			published_at = excluded.published_at,
			date_key = excluded.date_key,
			excerpt = excluded.excerpt,
			body = excluded.body,
			tags = excluded.tags,
			metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("preparing archive upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		tags, err := json.Marshal(item.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for %s: %w", item.ID, err)
		}
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", item.ID, err)
		}
		dateKey := dateKeyFor(item, loc)
		if _, err := stmt.Exec(
			item.ID, string(item.Source), string(item.ContentType),
			item.SourceNativeID, item.Title, item.URL, item.Author,
			item.SiteName, timeutil.Format(item.PublishedAt),
			timeutil.Format(item.IngestedAt), dateKey, item.Excerpt,
			item.Body, string(tags), string(meta),
		); err != nil {
			return fmt.Errorf("archiving item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// ItemsForDate returns the archived items bucketed to an ISO date,
// ordered by published time then id.
func (ci *ContentIndex) ItemsForDate(date string) ([]model.ContentItem, error) {
	items, err := ci.queryItems(`
		SELECT id, source, content_type, native_id, title, url, author,
		       site_name, published_at, ingested_at, excerpt, body,
		       tags, metadata
		FROM content_items
		WHERE date_key = ?
		ORDER BY published_at, id`, date)
	if err != nil {
		return nil, fmt.Errorf("querying items for %s: %w", date, err)
	}
	return items, nil
}

// ItemsBetween returns the archived items whose date key falls in
// [start, end] inclusive, oldest date first.
func (ci *ContentIndex) ItemsBetween(start, end string) ([]model.ContentItem, error) {
	items, err := ci.queryItems(`
		SELECT id, source, content_type, native_id, title, url, author,
		       site_name, published_at, ingested_at, excerpt, body,
		       tags, metadata
		FROM content_items
		WHERE date_key BETWEEN ? AND ?
		ORDER BY date_key, published_at, id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying items %s..%s: %w", start, end, err)
	}
	return items, nil
}

func (ci *ContentIndex) queryItems(query string, args ...any) ([]model.ContentItem, error) {
	rows, err := ci.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		var item model.ContentItem
		var source, contentType, published, ingested string
		var tagsJSON, metaJSON string
		var nativeID, itemURL, author, site, excerpt, body sql.NullString
		if err := rows.Scan(
			&item.ID, &source, &contentType, &nativeID, &item.Title,
			&itemURL, &author, &site, &published, &ingested, &excerpt,
			&body, &tagsJSON, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning archived item: %w", err)
		}
		item.Source = model.Source(source)
		item.ContentType = model.ContentType(contentType)
		item.SourceNativeID = nativeID.String
		item.URL = itemURL.String
		item.Author = author.String
		item.SiteName = site.String
		item.Excerpt = excerpt.String
		item.Body = body.String
		item.PublishedAt = timeutil.ParseTimestamp(published)
		item.IngestedAt = timeutil.ParseTimestamp(ingested)
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
				return nil, fmt.Errorf("%w: tags for %s: %v", ErrCorrupt, item.ID, err)
			}
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata for %s: %v", ErrCorrupt, item.ID, err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountBySource returns per-source item counts, for status reporting.
func (ci *ContentIndex) CountBySource() (map[string]int, error) {
	rows, err := ci.db.Query(
		"SELECT source, count(*) FROM content_items GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("counting archive by source: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

func dateKeyFor(item model.ContentItem, loc *time.Location) string {
	ts := item.PublishedAt
	if ts.IsZero() {
		ts = item.IngestedAt
	}
	if loc == nil {
		loc = time.UTC
	}
	return timeutil.DateKey(ts, loc)
}

// WriteIntakeArchive snapshots a day's external items as pretty JSON
// under intake/archive/.
func (s *Store) WriteIntakeArchive(date string, items []model.ContentItem) (string, error) {
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding intake archive for %s: %w", date, err)
	}
	path := filepath.Join(s.IntakeDir(), "archive", date+".json")
	if err := writeFileAtomic(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// DigestPath returns the markdown digest path for a date.
func (s *Store) DigestPath(date string) string {
	return filepath.Join(s.IntakeDir(), "digest-"+date+".md")
}

// WriteDigest persists a day's external-content digest.
func (s *Store) WriteDigest(date, markdown string) (string, error) {
	path := s.DigestPath(date)
	if err := writeFileAtomic(path, []byte(markdown), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
