package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/distillpress/distill/internal/timeutil"
)

// Seed is a user-supplied short idea woven into synthesis context.
type Seed struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at"`
	Used      bool     `json:"used"`
	UsedIn    string   `json:"used_in,omitempty"`
}

// SeedStore manages the seed list in one JSON file.
type SeedStore struct {
	store *Store
	seeds []Seed
}

// LoadSeeds reads the seed store, empty when none exists.
func (s *Store) LoadSeeds() (*SeedStore, error) {
	ss := &SeedStore{store: s}
	path := filepath.Join(s.root, seedsFilename)
	if _, err := s.readJSON(path, &ss.seeds); err != nil {
		return nil, err
	}
	return ss, nil
}

// Add appends a new seed and persists.
func (ss *SeedStore) Add(text string, tags []string) (Seed, error) {
	seed := Seed{
		ID:        newShortID(),
		Text:      text,
		Tags:      tags,
		CreatedAt: timeutil.Format(time.Now()),
	}
	ss.seeds = append(ss.seeds, seed)
	if err := ss.save(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// All returns every seed.
func (ss *SeedStore) All() []Seed {
	return append([]Seed(nil), ss.seeds...)
}

// Unused returns seeds not yet consumed by a digest or post.
func (ss *SeedStore) Unused() []Seed {
	var out []Seed
	for _, s := range ss.seeds {
		if !s.Used {
			out = append(out, s)
		}
	}
	return out
}

// MarkUsed flags a seed as consumed by usedIn. It is a compare-and-
// set: a seed already used (by a concurrent or earlier consumer) is
// not re-marked, and the caller learns it lost the race.
func (ss *SeedStore) MarkUsed(id, usedIn string) (bool, error) {
	for i := range ss.seeds {
		if ss.seeds[i].ID != id {
			continue
		}
		if ss.seeds[i].Used {
			return false, nil
		}
		ss.seeds[i].Used = true
		ss.seeds[i].UsedIn = usedIn
		return true, ss.save()
	}
	return false, fmt.Errorf("marking seed used: no seed %q", id)
}

// Remove deletes a seed by id and persists.
func (ss *SeedStore) Remove(id string) error {
	kept := ss.seeds[:0]
	for _, s := range ss.seeds {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	ss.seeds = kept
	return ss.save()
}

func (ss *SeedStore) save() error {
	path := filepath.Join(ss.store.root, seedsFilename)
	return ss.store.writeJSON(path, ss.seeds)
}

// newShortID returns the 12-hex-char prefix of a v4 UUID.
func newShortID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:6])
}
