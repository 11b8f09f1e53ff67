package store

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/distillpress/distill/internal/timeutil"
)

const pendingFilename = ".pending.json"

// pendingEntry records why a date's journal could not be generated.
type pendingEntry struct {
	Style     string `json:"style"`
	Reason    string `json:"reason"`
	FlaggedAt string `json:"flagged_at"`
}

// PendingFlags tracks dates whose journal generation exhausted its
// retries. Downstream stages skip these dates; the next run retries
// them first.
type PendingFlags struct {
	store   *Store
	entries map[string]pendingEntry // keyed by ISO date
}

// LoadPendingFlags reads the pending set, empty when none exists.
func (s *Store) LoadPendingFlags() (*PendingFlags, error) {
	p := &PendingFlags{store: s, entries: map[string]pendingEntry{}}
	path := filepath.Join(s.JournalDir(), pendingFilename)
	if _, err := s.readJSON(path, &p.entries); err != nil {
		return nil, err
	}
	return p, nil
}

// IsPending reports whether date is flagged.
func (p *PendingFlags) IsPending(date string) bool {
	_, ok := p.entries[date]
	return ok
}

// Dates returns the flagged dates in order.
func (p *PendingFlags) Dates() []string {
	out := make([]string, 0, len(p.entries))
	for d := range p.entries {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Set flags a date and persists.
func (p *PendingFlags) Set(date, style, reason string) error {
	p.entries[date] = pendingEntry{
		Style:     style,
		Reason:    reason,
		FlaggedAt: timeutil.Format(time.Now()),
	}
	return p.save()
}

// Clear unflags a date after a successful generation.
func (p *PendingFlags) Clear(date string) error {
	if _, ok := p.entries[date]; !ok {
		return nil
	}
	delete(p.entries, date)
	return p.save()
}

func (p *PendingFlags) save() error {
	path := filepath.Join(p.store.JournalDir(), pendingFilename)
	return p.store.writeJSON(path, p.entries)
}
