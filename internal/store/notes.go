package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/timeutil"
)

// EditorialNote is a user steering instruction for synthesis. Target
// is "" (global), "week:<ISO-week>", or "theme:<slug>".
type EditorialNote struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Target    string `json:"target,omitempty"`
	CreatedAt string `json:"created_at"`
	Used      bool   `json:"used"`
}

// NoteStore manages editorial notes in one JSON file.
type NoteStore struct {
	store *Store
	notes []EditorialNote
}

// LoadNotes reads the note store, empty when none exists.
func (s *Store) LoadNotes() (*NoteStore, error) {
	ns := &NoteStore{store: s}
	path := filepath.Join(s.root, notesFilename)
	if _, err := s.readJSON(path, &ns.notes); err != nil {
		return nil, err
	}
	return ns, nil
}

// Add appends a new note and persists.
func (ns *NoteStore) Add(text, target string) (EditorialNote, error) {
	note := EditorialNote{
		ID:        newShortID(),
		Text:      text,
		Target:    target,
		CreatedAt: timeutil.Format(time.Now()),
	}
	ns.notes = append(ns.notes, note)
	if err := ns.save(); err != nil {
		return EditorialNote{}, err
	}
	return note, nil
}

// All returns every note.
func (ns *NoteStore) All() []EditorialNote {
	return append([]EditorialNote(nil), ns.notes...)
}

// Active returns unused notes matching target: notes targeting
// exactly that week or theme, plus globals. Notes with a target
// nobody asks for stay unused and untouched.
func (ns *NoteStore) Active(target string) []EditorialNote {
	var out []EditorialNote
	for _, n := range ns.notes {
		if n.Used {
			continue
		}
		if n.Target == "" || n.Target == target {
			out = append(out, n)
		}
	}
	return out
}

// MarkUsed flags a note as consumed; compare-and-set like seeds.
func (ns *NoteStore) MarkUsed(id string) (bool, error) {
	for i := range ns.notes {
		if ns.notes[i].ID != id {
			continue
		}
		if ns.notes[i].Used {
			return false, nil
		}
		ns.notes[i].Used = true
		return true, ns.save()
	}
	return false, fmt.Errorf("marking note used: no note %q", id)
}

// Remove deletes a note by id and persists.
func (ns *NoteStore) Remove(id string) error {
	kept := ns.notes[:0]
	for _, n := range ns.notes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	ns.notes = kept
	return ns.save()
}

// RenderForPrompt renders the active notes for target as an
// editorial-direction block, empty when none apply.
func (ns *NoteStore) RenderForPrompt(target string) string {
	active := ns.Active(target)
	if len(active) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Editorial Direction\n\n")
	for _, n := range active {
		fmt.Fprintf(&b, "- %s\n", n.Text)
	}
	return b.String()
}

func (ns *NoteStore) save() error {
	path := filepath.Join(ns.store.root, notesFilename)
	return ns.store.writeJSON(path, ns.notes)
}
