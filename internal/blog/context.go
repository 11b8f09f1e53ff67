// Package blog builds weekly and thematic post contexts from
// committed journals and memory, synthesizes posts through the LLM
// worker, and enforces non-repetition against blog memory.
package blog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/memory"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

// DefaultMinJournalsForWeekly is the floor below which a week's post
// is skipped rather than generated thin.
const DefaultMinJournalsForWeekly = 3

// WeeklyContext is everything a weekly post draws on.
type WeeklyContext struct {
	Week            string // "2026-W06"
	Start, End      string // ISO dates, inclusive
	Journals        []*model.JournalEntry
	Projects        []string
	Themes          []string // threads active during the week
	RecurringTopics []string // appear in >= 2 journals of the week
	Decisions       []string
	OpenQuestions   []string
}

// SourceDates returns the journal dates feeding this context.
func (w *WeeklyContext) SourceDates() []string {
	dates := make([]string, 0, len(w.Journals))
	for _, j := range w.Journals {
		dates = append(dates, timeutil.DateKey(j.Date, time.UTC))
	}
	return dates
}

// Slug returns the canonical weekly slug.
func (w *WeeklyContext) Slug() string {
	return "weekly-" + w.Week
}

// BuildWeeklyContext assembles the context for ISO week. The second
// return is false when the week has fewer than minJournals committed
// journals and generation must be skipped.
func BuildWeeklyContext(st *store.Store, mem *memory.UnifiedMemory, week string, minJournals int) (*WeeklyContext, bool, error) {
	if minJournals <= 0 {
		minJournals = DefaultMinJournalsForWeekly
	}
	year, weekNum, err := timeutil.ParseISOWeek(week)
	if err != nil {
		return nil, false, fmt.Errorf("weekly context: %w", err)
	}
	start, end := timeutil.WeekBounds(year, weekNum, time.UTC)
	startKey := timeutil.DateKey(start, time.UTC)
	endKey := timeutil.DateKey(end, time.UTC)

	journals, err := st.JournalsBetween(startKey, endKey)
	if err != nil {
		return nil, false, err
	}
	if len(journals) < minJournals {
		return nil, false, nil
	}

	wc := &WeeklyContext{Week: week, Start: startKey, End: endKey, Journals: journals}

	var projects []string
	for _, j := range journals {
		projects = append(projects, j.Projects...)
	}
	projects = model.UniqueStrings(projects)
	sort.Strings(projects)
	wc.Projects = projects

	for _, t := range mem.Threads {
		if t.LastSeen >= startKey && t.FirstSeen <= endKey {
			wc.Themes = append(wc.Themes, t.Name)
		}
	}
	sort.Strings(wc.Themes)

	wc.RecurringTopics = recurringTopics(journals, mem)

	for _, j := range journals {
		date := timeutil.DateKey(j.Date, time.UTC)
		if entry, ok := mem.EntryFor(date); ok {
			wc.Decisions = append(wc.Decisions, entry.Decisions...)
			wc.OpenQuestions = append(wc.OpenQuestions, entry.OpenQuestions...)
		}
	}
	wc.Decisions = model.UniqueStrings(wc.Decisions)
	wc.OpenQuestions = model.UniqueStrings(wc.OpenQuestions)
	return wc, true, nil
}

// recurringTopics returns the topic strings appearing in at least two
// distinct journals of the week: a journal mentions a topic when the
// topic is among its tags or among the memory themes of its date.
func recurringTopics(journals []*model.JournalEntry, mem *memory.UnifiedMemory) []string {
	counts := map[string]int{}
	for _, j := range journals {
		topics := append([]string(nil), j.Tags...)
		date := timeutil.DateKey(j.Date, time.UTC)
		if entry, ok := mem.EntryFor(date); ok {
			topics = append(topics, entry.Themes...)
		}
		for _, topic := range model.UniqueStrings(topics) {
			counts[strings.ToLower(topic)]++
		}
	}
	var out []string
	for topic, n := range counts {
		if n >= 2 {
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}
