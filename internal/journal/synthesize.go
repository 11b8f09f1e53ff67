package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/llm"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

// Synthesizer turns a DailyContext into a committed journal entry.
type Synthesizer struct {
	Store      *store.Store
	Worker     llm.Worker
	Log        *slog.Logger
	ConfigHash string
	Force      bool
}

// Result reports one synthesis outcome.
type Result struct {
	Entry     *model.JournalEntry
	Path      string
	Skipped   bool // cache hit, nothing written
	OffTarget bool // length stayed outside the band after the retry
}

// Synthesize generates, verifies, and commits the journal for one
// (date, style). A cache hit returns the existing entry unchanged.
// When every LLM attempt fails the date is flagged pending and no
// file is written.
func (s *Synthesizer) Synthesize(ctx context.Context, dc *DailyContext) (*Result, error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("date", dc.Date, "style", dc.Style)

	cache, err := s.Store.LoadJournalCache()
	if err != nil {
		return nil, err
	}
	ids := dc.SessionIDs()
	if !s.Force && cache.IsCurrent(dc.Date, dc.Style, ids, s.ConfigHash) {
		entry, ok, err := s.Store.ReadJournal(dc.Date, dc.Style)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Debug("journal up to date, skipping")
			return &Result{
				Entry:   entry,
				Path:    s.Store.JournalPath(dc.Date, dc.Style),
				Skipped: true,
			}, nil
		}
		// Cache says current but the file is gone; fall through and
		// regenerate.
	}

	pending, err := s.Store.LoadPendingFlags()
	if err != nil {
		return nil, err
	}

	body, offTarget, err := s.generate(ctx, dc, log)
	if err != nil {
		if perr := pending.Set(dc.Date, dc.Style, err.Error()); perr != nil {
			return nil, perr
		}
		log.Error("journal generation failed, date flagged pending", "error", err)
		return nil, fmt.Errorf("journal %s: %w", dc.Date, err)
	}

	date, err := timeutil.ParseDate(dc.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("journal date %q: %w", dc.Date, err)
	}
	entry := &model.JournalEntry{
		Date:             date,
		Style:            dc.Style,
		WordCount:        countWords(body),
		Projects:         dc.ProjectNames(),
		SessionsCount:    len(ids),
		DurationMinutes:  dc.TotalMinutes(),
		Tags:             dc.Tags(),
		Body:             body,
		SourceSessionIDs: ids,
		GeneratedAt:      time.Now().UTC(),
	}

	_, existed, err := s.Store.ReadJournal(dc.Date, dc.Style)
	if err != nil {
		return nil, err
	}

	scratch, final, err := s.Store.StageJournal(entry)
	if err != nil {
		return nil, err
	}
	if err := cache.MarkGenerated(dc.Date, dc.Style, ids, s.ConfigHash); err != nil {
		return nil, err
	}
	if err := s.Store.CommitScratch(scratch, final); err != nil {
		return nil, err
	}
	if err := pending.Clear(dc.Date); err != nil {
		return nil, err
	}

	// An overwritten journal invalidates any blog post built on it.
	if existed {
		blogState, err := s.Store.LoadBlogState()
		if err != nil {
			return nil, err
		}
		if err := blogState.MarkStaleForDate(dc.Date); err != nil {
			return nil, err
		}
	}

	log.Info("journal generated",
		"words", entry.WordCount,
		"sessions", entry.SessionsCount,
		"path", final)
	return &Result{Entry: entry, Path: final, OffTarget: offTarget}, nil
}

// generate runs the LLM pass plus at most one length-corrected
// retry, returning the cleaned body.
func (s *Synthesizer) generate(ctx context.Context, dc *DailyContext, log *slog.Logger) (string, bool, error) {
	raw, err := s.Worker.Invoke(ctx, BuildPrompt(dc))
	if err != nil {
		return "", false, err
	}
	body := StripChrome(raw)
	if body == "" {
		return "", false, fmt.Errorf("%w: no content after cleanup", llm.ErrEmpty)
	}
	words := countWords(body)
	if withinBand(words, dc.TargetWords) {
		return body, false, nil
	}

	log.Warn("journal length outside target band, re-prompting",
		"words", words, "target", dc.TargetWords)
	raw, err = s.Worker.Invoke(ctx, BuildLengthRetryPrompt(dc, body, words))
	if err != nil {
		// The first draft is valid content; keep it rather than
		// failing the date over a length preference.
		log.Warn("length retry failed, keeping first draft", "error", err)
		return body, true, nil
	}
	retried := StripChrome(raw)
	if retried == "" {
		return body, true, nil
	}
	words = countWords(retried)
	if !withinBand(words, dc.TargetWords) {
		log.Warn("journal length still outside target band, accepting",
			"words", words, "target", dc.TargetWords)
		return retried, true, nil
	}
	return retried, false, nil
}

// withinBand reports whether words is within ±50% of target. A zero
// target disables enforcement.
func withinBand(words, target int) bool {
	if target <= 0 {
		return true
	}
	return words >= target/2 && words <= target+target/2
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// StripChrome drops any model chatter before the first top-level
// heading. Text without an H1 is returned trimmed.
func StripChrome(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "# ") {
		return text
	}
	if i := strings.Index(text, "\n# "); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}
