package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

// journalMeta is the frontmatter header of a persisted journal
// entry.
type journalMeta struct {
	Date             string   `yaml:"date"`
	Style            string   `yaml:"style"`
	WordCount        int      `yaml:"word_count"`
	SessionsCount    int      `yaml:"sessions_count"`
	DurationMinutes  int      `yaml:"duration_minutes"`
	Projects         []string `yaml:"projects,omitempty"`
	Tags             []string `yaml:"tags,omitempty"`
	SourceSessionIDs []string `yaml:"source_session_ids,omitempty"`
	GeneratedAt      string   `yaml:"generated_at"`
}

// JournalPath returns the canonical file path for a (date, style)
// journal entry.
func (s *Store) JournalPath(date, style string) string {
	return filepath.Join(s.JournalDir(),
		fmt.Sprintf("journal-%s-%s.md", date, style))
}

func encodeJournal(entry *model.JournalEntry) ([]byte, error) {
	meta := journalMeta{
		Date:             timeutil.DateKey(entry.Date, time.UTC),
		Style:            entry.Style,
		WordCount:        entry.WordCount,
		SessionsCount:    entry.SessionsCount,
		DurationMinutes:  entry.DurationMinutes,
		Projects:         entry.Projects,
		Tags:             entry.Tags,
		SourceSessionIDs: entry.SourceSessionIDs,
		GeneratedAt:      timeutil.Format(entry.GeneratedAt),
	}
	return encodeFrontmatter(meta, entry.Body)
}

// WriteJournal persists a journal entry atomically and returns its
// path.
func (s *Store) WriteJournal(entry *model.JournalEntry) (string, error) {
	date := timeutil.DateKey(entry.Date, time.UTC)
	doc, err := encodeJournal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding journal %s: %w", date, err)
	}
	path := s.JournalPath(date, entry.Style)
	if err := writeFileAtomic(path, doc, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// StageJournal encodes a journal entry into the scratch area and
// returns the scratch name plus the final path. The caller commits
// with CommitScratch after its state update succeeds, so a crash in
// between leaves a detectable orphan instead of untracked output.
func (s *Store) StageJournal(entry *model.JournalEntry) (scratchName, finalPath string, err error) {
	date := timeutil.DateKey(entry.Date, time.UTC)
	doc, err := encodeJournal(entry)
	if err != nil {
		return "", "", fmt.Errorf("encoding journal %s: %w", date, err)
	}
	name := fmt.Sprintf("journal-%s-%s.md", date, entry.Style)
	if err := s.WriteScratch(name, doc); err != nil {
		return "", "", err
	}
	return name, s.JournalPath(date, entry.Style), nil
}

// ReadJournal loads the journal entry for (date, style). The second
// return is false when none exists.
func (s *Store) ReadJournal(date, style string) (*model.JournalEntry, bool, error) {
	raw, err := os.ReadFile(s.JournalPath(date, style))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading journal %s: %w", date, err)
	}
	entry, err := decodeJournal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: journal %s-%s: %v", ErrCorrupt, date, style, err)
	}
	return entry, true, nil
}

func decodeJournal(raw []byte) (*model.JournalEntry, error) {
	var meta journalMeta
	body, err := decodeFrontmatter(raw, &meta)
	if err != nil {
		return nil, err
	}
	date, err := timeutil.ParseDate(meta.Date, time.UTC)
	if err != nil {
		return nil, err
	}
	return &model.JournalEntry{
		Date:             date,
		Style:            meta.Style,
		WordCount:        meta.WordCount,
		SessionsCount:    meta.SessionsCount,
		DurationMinutes:  meta.DurationMinutes,
		Projects:         meta.Projects,
		Tags:             meta.Tags,
		SourceSessionIDs: meta.SourceSessionIDs,
		GeneratedAt:      timeutil.ParseTimestamp(meta.GeneratedAt),
		Body:             body,
	}, nil
}

// JournalsBetween returns all persisted journal entries whose date
// falls in [start, end] (ISO dates, inclusive), ordered by date.
func (s *Store) JournalsBetween(start, end string) ([]*model.JournalEntry, error) {
	matches, err := filepath.Glob(filepath.Join(s.JournalDir(), "journal-*.md"))
	if err != nil {
		return nil, fmt.Errorf("globbing journals: %w", err)
	}
	var out []*model.JournalEntry
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading journal %s: %w", path, err)
		}
		entry, err := decodeJournal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: journal %s: %v", ErrCorrupt, path, err)
		}
		date := timeutil.DateKey(entry.Date, time.UTC)
		if date < start || date > end {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
