package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/distillpress/distill/internal/timeutil"
)

const journalCacheFilename = ".journal-cache.json"

// journalCacheEntry is the cached generation state for one
// (date, style) key. The session hash covers the sorted id set, so
// a changed contribution list invalidates the cache even when the
// count is unchanged.
type journalCacheEntry struct {
	SessionCount int    `json:"session_count"`
	SessionHash  string `json:"session_hash"`
	ConfigHash   string `json:"config_hash,omitempty"`
	GeneratedAt  string `json:"generated_at"`
}

// JournalCache tracks which journal entries have been generated,
// keyed "date:style".
type JournalCache struct {
	store   *Store
	entries map[string]journalCacheEntry
}

// LoadJournalCache reads the cache, returning an empty cache when
// none exists.
func (s *Store) LoadJournalCache() (*JournalCache, error) {
	c := &JournalCache{store: s, entries: map[string]journalCacheEntry{}}
	path := filepath.Join(s.JournalDir(), journalCacheFilename)
	if _, err := s.readJSON(path, &c.entries); err != nil {
		return nil, err
	}
	return c, nil
}

func journalCacheKey(date, style string) string {
	return date + ":" + style
}

// SessionSetHash fingerprints a session id set independent of
// order.
func SessionSetHash(sessionIDs []string) string {
	sorted := append([]string(nil), sessionIDs...)
	sort.Strings(sorted)
	h := xxhash.New()
	for _, id := range sorted {
		h.WriteString(id)
		h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// IsCurrent reports whether (date, style) was generated from exactly
// this session set and config.
func (c *JournalCache) IsCurrent(date, style string, sessionIDs []string, configHash string) bool {
	entry, ok := c.entries[journalCacheKey(date, style)]
	if !ok {
		return false
	}
	if entry.ConfigHash != "" && entry.ConfigHash != configHash {
		return false
	}
	return entry.SessionCount == len(sessionIDs) &&
		entry.SessionHash == SessionSetHash(sessionIDs)
}

// MarkGenerated records a successful generation and persists the
// cache.
func (c *JournalCache) MarkGenerated(date, style string, sessionIDs []string, configHash string) error {
	c.entries[journalCacheKey(date, style)] = journalCacheEntry{
		SessionCount: len(sessionIDs),
		SessionHash:  SessionSetHash(sessionIDs),
		ConfigHash:   configHash,
		GeneratedAt:  timeutil.Format(time.Now()),
	}
	return c.save()
}

// Invalidate drops the cache entry for (date, style), forcing the
// next run to regenerate.
func (c *JournalCache) Invalidate(date, style string) error {
	delete(c.entries, journalCacheKey(date, style))
	return c.save()
}

func (c *JournalCache) save() error {
	path := filepath.Join(c.store.JournalDir(), journalCacheFilename)
	return c.store.writeJSON(path, c.entries)
}
