// Package memory holds the unified rolling memory: daily entries,
// recurring threads, tracked entities, and the published record. It
// is the continuity layer between pipeline runs; persistence lives in
// the store package, and synthesizers read immutable snapshots.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

const (
	// DormantAfterDays marks a thread dormant when unseen this long.
	DormantAfterDays = 14

	// DefaultKeepDays is the Prune compaction horizon.
	DefaultKeepDays = 30

	maxEntityContexts = 10
)

// DailyEntry is the memory captured from one calendar day across all
// streams.
type DailyEntry struct {
	Date          string   `json:"date"` // ISO date
	SessionIDs    []string `json:"sessions,omitempty"`
	ReadIDs       []string `json:"reads,omitempty"`
	Themes        []string `json:"themes,omitempty"`
	Insights      []string `json:"insights,omitempty"`
	Decisions     []string `json:"decisions,omitempty"`
	OpenQuestions []string `json:"open_questions,omitempty"`
}

// Thread is an evolving theme spanning multiple days.
type Thread struct {
	Name         string `json:"name"`
	Summary      string `json:"summary"`
	FirstSeen    string `json:"first_seen"`
	LastSeen     string `json:"last_seen"`
	MentionCount int    `json:"mention_count"`
	Status       string `json:"status"` // active or dormant
}

// EntityRecord tracks a named entity (project, technology, person,
// concept) with recent usage context.
type EntityRecord struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entity_type"`
	FirstSeen    string   `json:"first_seen"`
	LastSeen     string   `json:"last_seen"`
	MentionCount int      `json:"mention_count"`
	Contexts     []string `json:"context,omitempty"`
}

// PublishedRecord remembers one published post.
type PublishedRecord struct {
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	PostType  string   `json:"post_type"`
	Date      string   `json:"date"`
	Platforms []string `json:"platforms,omitempty"`
}

// UnifiedMemory is the whole durable memory value. Mutating methods
// are only safe on the pipeline's single writer copy; everything
// handed to synthesizers goes through Clone.
type UnifiedMemory struct {
	Entries   []DailyEntry            `json:"entries"`
	Threads   []Thread                `json:"threads"`
	Entities  map[string]EntityRecord `json:"entities"`
	Published []PublishedRecord       `json:"published"`
}

// New returns an empty memory.
func New() *UnifiedMemory {
	return &UnifiedMemory{Entities: map[string]EntityRecord{}}
}

// Clone returns a deep copy for concurrent readers.
func (m *UnifiedMemory) Clone() *UnifiedMemory {
	out := &UnifiedMemory{
		Entries:   make([]DailyEntry, len(m.Entries)),
		Threads:   append([]Thread(nil), m.Threads...),
		Entities:  make(map[string]EntityRecord, len(m.Entities)),
		Published: append([]PublishedRecord(nil), m.Published...),
	}
	for i, e := range m.Entries {
		c := e
		c.SessionIDs = append([]string(nil), e.SessionIDs...)
		c.ReadIDs = append([]string(nil), e.ReadIDs...)
		c.Themes = append([]string(nil), e.Themes...)
		c.Insights = append([]string(nil), e.Insights...)
		c.Decisions = append([]string(nil), e.Decisions...)
		c.OpenQuestions = append([]string(nil), e.OpenQuestions...)
		out.Entries[i] = c
	}
	for k, v := range m.Entities {
		v.Contexts = append([]string(nil), v.Contexts...)
		out.Entities[k] = v
	}
	for i := range out.Published {
		out.Published[i].Platforms = append([]string(nil), m.Published[i].Platforms...)
	}
	return out
}

// RecordDaily merges a day's capture into the entry for that date.
// Lists are unioned so re-running a day never loses earlier facts.
func (m *UnifiedMemory) RecordDaily(entry DailyEntry) {
	for i := range m.Entries {
		if m.Entries[i].Date != entry.Date {
			continue
		}
		e := &m.Entries[i]
		e.SessionIDs = model.UniqueStrings(append(e.SessionIDs, entry.SessionIDs...))
		e.ReadIDs = model.UniqueStrings(append(e.ReadIDs, entry.ReadIDs...))
		e.Themes = model.UniqueStrings(append(e.Themes, entry.Themes...))
		e.Insights = model.UniqueStrings(append(e.Insights, entry.Insights...))
		e.Decisions = model.UniqueStrings(append(e.Decisions, entry.Decisions...))
		e.OpenQuestions = model.UniqueStrings(append(e.OpenQuestions, entry.OpenQuestions...))
		return
	}
	m.Entries = append(m.Entries, entry)
	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].Date < m.Entries[j].Date
	})
}

// UpdateThreads folds the themes seen on date into the thread set.
// Existing threads gain a mention and move their last-seen forward;
// new themes become active threads. Threads unseen for
// DormantAfterDays relative to date are flagged dormant, never
// deleted.
func (m *UnifiedMemory) UpdateThreads(seenThemes []string, date string, summaries map[string]string) {
	byName := make(map[string]int, len(m.Threads))
	for i, t := range m.Threads {
		byName[t.Name] = i
	}
	for _, theme := range model.UniqueStrings(seenThemes) {
		if theme == "" {
			continue
		}
		if i, ok := byName[theme]; ok {
			t := &m.Threads[i]
			t.MentionCount++
			if date > t.LastSeen {
				t.LastSeen = date
			}
			t.Status = "active"
			if s := summaries[theme]; s != "" {
				t.Summary = s
			}
			continue
		}
		m.Threads = append(m.Threads, Thread{
			Name:         theme,
			Summary:      summaries[theme],
			FirstSeen:    date,
			LastSeen:     date,
			MentionCount: 1,
			Status:       "active",
		})
		byName[theme] = len(m.Threads) - 1
	}
	m.markDormant(date)
}

func (m *UnifiedMemory) markDormant(today string) {
	cutoff := shiftDate(today, -DormantAfterDays)
	if cutoff == "" {
		return
	}
	for i := range m.Threads {
		if m.Threads[i].Status == "active" && m.Threads[i].LastSeen < cutoff {
			m.Threads[i].Status = "dormant"
		}
	}
}

// TrackEntity records a mention of an entity on date, keeping at
// most maxEntityContexts context snippets.
func (m *UnifiedMemory) TrackEntity(name, entityType, date, context string) {
	if name == "" {
		return
	}
	if m.Entities == nil {
		m.Entities = map[string]EntityRecord{}
	}
	key := entityType + ":" + strings.ToLower(name)
	if e, ok := m.Entities[key]; ok {
		e.MentionCount++
		if date > e.LastSeen {
			e.LastSeen = date
		}
		if context != "" && len(e.Contexts) < maxEntityContexts {
			e.Contexts = append(e.Contexts, context)
		}
		m.Entities[key] = e
		return
	}
	rec := EntityRecord{
		Name:         name,
		EntityType:   entityType,
		FirstSeen:    date,
		LastSeen:     date,
		MentionCount: 1,
	}
	if context != "" {
		rec.Contexts = []string{context}
	}
	m.Entities[key] = rec
}

// RecordPublished appends a published record, replacing any earlier
// record with the same slug.
func (m *UnifiedMemory) RecordPublished(rec PublishedRecord) {
	kept := m.Published[:0]
	for _, p := range m.Published {
		if p.Slug != rec.Slug {
			kept = append(kept, p)
		}
	}
	m.Published = append(kept, rec)
}

// ActiveThreads returns threads whose last-seen date falls within
// windowDays of asOf, most-mentioned first.
func (m *UnifiedMemory) ActiveThreads(asOf string, windowDays int) []Thread {
	cutoff := shiftDate(asOf, -windowDays)
	var out []Thread
	for _, t := range m.Threads {
		if t.Status == "active" && t.LastSeen >= cutoff {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// EntryFor returns the daily entry for an ISO date, if present.
func (m *UnifiedMemory) EntryFor(date string) (DailyEntry, bool) {
	for _, e := range m.Entries {
		if e.Date == date {
			return e, true
		}
	}
	return DailyEntry{}, false
}

// Prune compacts entries older than keepDays behind the newest
// entry. Threads stay; dormancy is the only aging threads get.
func (m *UnifiedMemory) Prune(keepDays int) {
	if len(m.Entries) == 0 {
		return
	}
	newest := m.Entries[len(m.Entries)-1].Date
	cutoff := shiftDate(newest, -keepDays)
	kept := m.Entries[:0]
	for _, e := range m.Entries {
		if e.Date > cutoff {
			kept = append(kept, e)
		}
	}
	m.Entries = kept
}

// RenderForPrompt renders the memory as markdown context for LLM
// prompts: the last week of entries, threads seen within windowDays
// of asOf, top entities, and recent publications. A non-positive
// window falls back to the dormancy horizon; an empty asOf keeps
// every active thread.
func (m *UnifiedMemory) RenderForPrompt(asOf string, windowDays int) string {
	if len(m.Entries) == 0 && len(m.Threads) == 0 {
		return ""
	}
	if windowDays <= 0 {
		windowDays = DormantAfterDays
	}
	var b strings.Builder
	b.WriteString("# Memory Context\n\n")

	recent := append([]DailyEntry(nil), m.Entries...)
	sort.Slice(recent, func(i, j int) bool { return recent[i].Date > recent[j].Date })
	if len(recent) > 7 {
		recent = recent[:7]
	}
	for _, e := range recent {
		fmt.Fprintf(&b, "## %s\n", e.Date)
		if len(e.Themes) > 0 {
			fmt.Fprintf(&b, "Themes: %s\n", strings.Join(e.Themes, ", "))
		}
		writeCapped(&b, "Insights", e.Insights, 3)
		writeCapped(&b, "Decisions", e.Decisions, 3)
		writeCapped(&b, "Open questions", e.OpenQuestions, 3)
		b.WriteString("\n")
	}

	active := m.ActiveThreads(asOf, windowDays)
	if len(active) > 0 {
		b.WriteString("## Ongoing Threads\n")
		for _, t := range active {
			fmt.Fprintf(&b, "- **%s** (%dx since %s): %s\n",
				t.Name, t.MentionCount, t.FirstSeen, t.Summary)
		}
		b.WriteString("\n")
	}

	if top := m.topEntities(10); len(top) > 0 {
		b.WriteString("## What You've Been Working On\n")
		for _, e := range top {
			fmt.Fprintf(&b, "- **%s** (%s): %dx over %d days\n",
				e.Name, e.EntityType, e.MentionCount, daySpan(e.FirstSeen, e.LastSeen))
		}
		b.WriteString("\n")
	}

	if len(m.Published) > 0 {
		pubs := append([]PublishedRecord(nil), m.Published...)
		sort.Slice(pubs, func(i, j int) bool { return pubs[i].Date > pubs[j].Date })
		if len(pubs) > 5 {
			pubs = pubs[:5]
		}
		b.WriteString("## Recently Published\n")
		for _, p := range pubs {
			platforms := strings.Join(p.Platforms, ", ")
			if platforms == "" {
				platforms = "unpublished"
			}
			fmt.Fprintf(&b, "- %q (%s, %s)\n", p.Title, p.Date, platforms)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *UnifiedMemory) topEntities(n int) []EntityRecord {
	out := make([]EntityRecord, 0, len(m.Entities))
	for _, e := range m.Entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func writeCapped(b *strings.Builder, label string, items []string, n int) {
	if len(items) == 0 {
		return
	}
	if len(items) > n {
		items = items[:n]
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

// shiftDate moves an ISO date by days, returning "" when the date is
// unparseable.
func shiftDate(date string, days int) string {
	t, err := timeutil.ParseDate(date, time.UTC)
	if err != nil {
		return ""
	}
	return timeutil.DateKey(t.AddDate(0, 0, days), time.UTC)
}

func daySpan(first, last string) int {
	f, err1 := timeutil.ParseDate(first, time.UTC)
	l, err2 := timeutil.ParseDate(last, time.UTC)
	if err1 != nil || err2 != nil {
		return 1
	}
	return int(l.Sub(f).Hours()/24) + 1
}
