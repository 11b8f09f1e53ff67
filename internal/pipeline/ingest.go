package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/parser"
)

const (
	parseWorkers      = 8
	skipCacheFileName = ".distill-skip-cache"
)

// skipCache remembers session locations that produced parse errors or
// nothing usable, keyed by location with a stat fingerprint. The
// location is retried when its fingerprint changes.
type skipCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]uint64
	dirty   bool
}

func loadSkipCache(dir string) *skipCache {
	c := &skipCache{
		path:    filepath.Join(dir, skipCacheFileName),
		entries: map[string]uint64{},
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return c
	}
	// A corrupt cache only costs a re-parse.
	_ = json.Unmarshal(data, &c.entries)
	return c
}

func (c *skipCache) shouldSkip(location string, fp uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[location]
	return ok && cached == fp
}

func (c *skipCache) record(location string, fp uint64) {
	c.mu.Lock()
	c.entries[location] = fp
	c.dirty = true
	c.mu.Unlock()
}

func (c *skipCache) clear(location string) {
	c.mu.Lock()
	if _, ok := c.entries[location]; ok {
		delete(c.entries, location)
		c.dirty = true
	}
	c.mu.Unlock()
}

func (c *skipCache) persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("persisting skip cache: %w", err)
	}
	c.dirty = false
	return nil
}

// statFingerprint hashes a location's identity plus its size and
// mtime. Directory locations work too: their mtime changes when
// entries are added or removed.
func statFingerprint(location string) (uint64, error) {
	info, err := os.Stat(location)
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s|%d|%d", location, info.Size(), info.ModTime().UnixNano())
	return xxhash.Sum64String(key), nil
}

type discoveredLocation struct {
	dialect  parser.DialectDef
	location string
}

type parseResult struct {
	loc      discoveredLocation
	fp       uint64
	sessions []*model.Session
	diags    []parser.Diagnostic
	skipped  bool
	err      error
}

// ingestSessions discovers and parses every enabled session dialect
// across a worker pool. Parse failures are soft: the location is
// cached for skipping and the pipeline continues.
func (p *Pipeline) ingestSessions(since time.Time, log *slog.Logger) ([]*model.Session, int) {
	var locations []discoveredLocation
	for _, src := range p.Config.Sessions.Sources {
		def, ok := parser.DialectBySource(model.Source(src))
		if !ok {
			continue
		}
		for _, root := range p.dialectRoots(def.Source) {
			found, err := def.Discover(root, since)
			if err != nil {
				log.Warn("source unavailable",
					"source", src, "root", root, "error", err)
				continue
			}
			for _, loc := range found {
				locations = append(locations, discoveredLocation{def, loc})
			}
		}
	}
	if len(locations) == 0 {
		return nil, 0
	}

	cache := loadSkipCache(p.Store.Root())
	results := startParseWorkers(locations, cache)

	var (
		sessions []*model.Session
		errCount int
	)
	for range locations {
		r := <-results
		if r.err != nil {
			errCount++
			log.Warn("parse failed, location skipped until it changes",
				"location", r.loc.location, "error", r.err)
			continue
		}
		if r.skipped {
			continue
		}
		for _, d := range r.diags {
			errCount++
			log.Debug("record dropped",
				"source", d.Source, "path", d.Path, "line", d.Line, "reason", d.Msg)
		}
		sessions = append(sessions, r.sessions...)
	}

	if err := cache.persist(); err != nil {
		log.Warn("skip cache not persisted", "error", err)
	}
	return sessions, errCount
}

// dialectRoots returns the configured scan roots for one dialect.
func (p *Pipeline) dialectRoots(src model.Source) []string {
	var roots []string
	switch src {
	case model.SourceChatLog:
		roots = p.Config.Sessions.ChatLogDirs
	case model.SourceRollout:
		roots = p.Config.Sessions.RolloutDirs
	case model.SourceMultiAgent:
		roots = p.Config.Sessions.MultiAgentDirs
	}
	out := roots[:0:0]
	for _, r := range roots {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// startParseWorkers fans parsing out across a fixed pool and returns
// the results channel. Every location yields exactly one result.
func startParseWorkers(locations []discoveredLocation, cache *skipCache) <-chan parseResult {
	jobs := make(chan discoveredLocation, len(locations))
	results := make(chan parseResult, len(locations))

	for i := 0; i < parseWorkers; i++ {
		go func() {
			for loc := range jobs {
				results <- parseOne(loc, cache)
			}
		}()
	}
	for _, loc := range locations {
		jobs <- loc
	}
	close(jobs)
	return results
}

func parseOne(loc discoveredLocation, cache *skipCache) parseResult {
	fp, err := statFingerprint(loc.location)
	if err != nil {
		return parseResult{loc: loc, err: fmt.Errorf("stat %s: %w", loc.location, err)}
	}
	if cache.shouldSkip(loc.location, fp) {
		return parseResult{loc: loc, fp: fp, skipped: true}
	}

	sessions, diags, err := loc.dialect.Parse(loc.location)
	if err != nil {
		cache.record(loc.location, fp)
		return parseResult{loc: loc, fp: fp, err: err}
	}
	if len(sessions) == 0 {
		// Nothing usable; remember so the next run skips it.
		cache.record(loc.location, fp)
		return parseResult{loc: loc, fp: fp, diags: diags, skipped: len(diags) == 0}
	}
	cache.clear(loc.location)
	return parseResult{loc: loc, fp: fp, sessions: sessions, diags: diags}
}
