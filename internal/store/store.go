// Package store is the single owner of all persisted pipeline state:
// journals, blog posts, caches, blog state and memory, the unified
// memory, seeds, editorial notes, pending flags, and the content
// archive. Every write goes through an atomic temp-and-rename;
// parsers, analyzers, and synthesizers never touch disk themselves.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/distillpress/distill/internal/memory"
)

// ErrCorrupt marks unreadable persisted state. Callers treat it as
// fatal for the run; committed state on disk is left untouched.
var ErrCorrupt = errors.New("store: corrupt state")

const (
	memoryFilename = ".distill-memory.json"
	seedsFilename  = ".distill-seeds.json"
	notesFilename  = ".distill-notes.json"

	journalDirName = "journal"
	blogDirName    = "blog"
	intakeDirName  = "intake"
	scratchDirName = ".scratch"
)

// Store roots all persisted artifacts under one output directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the output directory.
func (s *Store) Root() string { return s.root }

// JournalDir returns the journal artifact directory.
func (s *Store) JournalDir() string { return filepath.Join(s.root, journalDirName) }

// BlogDir returns the blog artifact directory.
func (s *Store) BlogDir() string { return filepath.Join(s.root, blogDirName) }

// IntakeDir returns the external-content artifact directory.
func (s *Store) IntakeDir() string { return filepath.Join(s.root, intakeDirName) }

// LoadMemory reads the unified memory, returning an empty memory
// when none has been persisted yet. Unparseable state is ErrCorrupt.
func (s *Store) LoadMemory() (*memory.UnifiedMemory, error) {
	path := filepath.Join(s.root, memoryFilename)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return memory.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading memory %s: %w", path, err)
	}
	m := memory.New()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: memory %s: %v", ErrCorrupt, path, err)
	}
	return m, nil
}

// CommitMemory atomically replaces the persisted unified memory.
func (s *Store) CommitMemory(m *memory.UnifiedMemory) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding memory: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.root, memoryFilename), raw, 0o644)
}

// readJSON loads a JSON state file into v. A missing file leaves v
// untouched and reports found=false; undecodable content is
// ErrCorrupt.
func (s *Store) readJSON(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}

func (s *Store) writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeFileAtomic(path, raw, 0o644)
}

// ScratchPath returns a path inside the scratch area for a stage to
// stage its output before commit.
func (s *Store) ScratchPath(name string) string {
	return filepath.Join(s.root, scratchDirName, name)
}

// WriteScratch stages content in the scratch area.
func (s *Store) WriteScratch(name string, data []byte) error {
	return writeFileAtomic(s.ScratchPath(name), data, 0o644)
}

// CommitScratch moves a staged file to its final location. The
// rename is atomic when final is on the same filesystem, which holds
// because scratch lives under the output root.
func (s *Store) CommitScratch(name, final string) error {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", final, err)
	}
	if err := os.Rename(s.ScratchPath(name), final); err != nil {
		return fmt.Errorf("committing %s: %w", final, err)
	}
	return nil
}

// CleanupScratch removes orphaned scratch files from a run that
// crashed between result-write and state-update. Called at the start
// of every run; the owning stages simply rerun.
func (s *Store) CleanupScratch() ([]string, error) {
	dir := filepath.Join(s.root, scratchDirName)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading scratch dir: %w", err)
	}
	var removed []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("removing orphan %s: %w", path, err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// Slugify lowercases a name and collapses punctuation runs into
// single dashes, producing a filesystem- and URL-safe slug.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
