package store

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/distillpress/distill/internal/timeutil"
)

const blogStateFilename = ".blog-state.json"

// BlogPostRecord remembers one generated blog post: where it went
// and what it consumed, for the skip check and for staleness
// flagging after a force-regenerated journal.
type BlogPostRecord struct {
	Slug        string   `json:"slug"`
	PostType    string   `json:"post_type"`
	GeneratedAt string   `json:"generated_at"`
	SourceDates []string `json:"source_dates,omitempty"`
	FilePath    string   `json:"file_path,omitempty"`
	ConfigHash  string   `json:"config_hash,omitempty"`
	Stale       bool     `json:"stale,omitempty"`
}

// BlogState tracks which blog posts have been generated.
type BlogState struct {
	store *Store
	Posts []BlogPostRecord `json:"posts"`
}

// LoadBlogState reads the blog state, returning an empty state when
// none exists.
func (s *Store) LoadBlogState() (*BlogState, error) {
	st := &BlogState{store: s}
	path := filepath.Join(s.BlogDir(), blogStateFilename)
	var onDisk struct {
		Posts []BlogPostRecord `json:"posts"`
	}
	if _, err := s.readJSON(path, &onDisk); err != nil {
		return nil, err
	}
	st.Posts = onDisk.Posts
	return st, nil
}

// IsGenerated reports whether slug was already generated from the
// same source dates with the same config and is not flagged stale. A
// post whose inputs grew (a late journal landing in its week) no
// longer counts as generated.
func (st *BlogState) IsGenerated(slug, configHash string, sourceDates []string) bool {
	for _, p := range st.Posts {
		if p.Slug != slug {
			continue
		}
		if p.Stale {
			return false
		}
		if !sameDateSet(p.SourceDates, sourceDates) {
			return false
		}
		return p.ConfigHash == "" || p.ConfigHash == configHash
	}
	return false
}

func sameDateSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

// Record returns the record for a slug, if any.
func (st *BlogState) Record(slug string) (BlogPostRecord, bool) {
	for _, p := range st.Posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return BlogPostRecord{}, false
}

// MarkGenerated records a generated post, replacing any prior record
// with the same slug, and persists the state.
func (st *BlogState) MarkGenerated(rec BlogPostRecord) error {
	if rec.GeneratedAt == "" {
		rec.GeneratedAt = timeutil.Format(time.Now())
	}
	kept := st.Posts[:0]
	for _, p := range st.Posts {
		if p.Slug != rec.Slug {
			kept = append(kept, p)
		}
	}
	st.Posts = append(kept, rec)
	return st.save()
}

// MarkStaleForDate flags every post whose source dates include date,
// so the next blog run regenerates it. Used after a journal is
// force-regenerated.
func (st *BlogState) MarkStaleForDate(date string) error {
	changed := false
	for i := range st.Posts {
		for _, d := range st.Posts[i].SourceDates {
			if d == date && !st.Posts[i].Stale {
				st.Posts[i].Stale = true
				changed = true
				break
			}
		}
	}
	if !changed {
		return nil
	}
	return st.save()
}

func (st *BlogState) save() error {
	path := filepath.Join(st.store.BlogDir(), blogStateFilename)
	return st.store.writeJSON(path, struct {
		Posts []BlogPostRecord `json:"posts"`
	}{st.Posts})
}
