package blog

import (
	"sort"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/memory"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

const (
	// DefaultThematicMentions is the mention-count threshold K for a
	// thread to become a post candidate.
	DefaultThematicMentions = 3

	// thematicRecencyDays bounds how stale a candidate's last
	// mention may be.
	thematicRecencyDays = 30

	// thematicWindowDays is the sliding window inside which the
	// mention threshold must be reached. A thread mentioned often but
	// thinly spread never clusters into a post-worthy burst.
	thematicWindowDays = 14

	maxExcerptsPerTheme = 12
)

// ThematicContext is everything one thematic post draws on.
type ThematicContext struct {
	Theme    string
	Thread   memory.Thread
	Excerpts []string // journal paragraphs mentioning the theme
	Entities []memory.EntityRecord
	Dates    []string // journal dates contributing excerpts
}

// ThematicCandidates returns memory threads eligible for a thematic
// post as of an ISO date: mentioned at least minMentions times inside
// some 14-day window, last seen within the recency window, and not
// already covered. Ranking is mention count, then recency, then name.
func ThematicCandidates(mem *memory.UnifiedMemory, blogMem *store.BlogMemory, asOf string, minMentions int) []memory.Thread {
	if minMentions <= 0 {
		minMentions = DefaultThematicMentions
	}
	cutoff := shiftISODate(asOf, -thematicRecencyDays)
	var out []memory.Thread
	for _, t := range mem.Threads {
		if t.MentionCount < minMentions {
			continue
		}
		if t.LastSeen < cutoff {
			continue
		}
		if blogMem.HasThematicPost(t.Name) {
			continue
		}
		if !mentionsCluster(mem, t.Name, minMentions) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		if out[i].LastSeen != out[j].LastSeen {
			return out[i].LastSeen > out[j].LastSeen
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BuildThematicContext pulls the journal excerpts and entity records
// backing one candidate thread across its active window.
func BuildThematicContext(st *store.Store, mem *memory.UnifiedMemory, thread memory.Thread) (*ThematicContext, error) {
	journals, err := st.JournalsBetween(thread.FirstSeen, thread.LastSeen)
	if err != nil {
		return nil, err
	}
	tc := &ThematicContext{Theme: thread.Name, Thread: thread}
	needle := strings.ToLower(thread.Name)
	for _, j := range journals {
		matched := false
		for _, para := range strings.Split(j.Body, "\n\n") {
			if !strings.Contains(strings.ToLower(para), needle) {
				continue
			}
			matched = true
			if len(tc.Excerpts) < maxExcerptsPerTheme {
				tc.Excerpts = append(tc.Excerpts, strings.TrimSpace(para))
			}
		}
		if matched {
			tc.Dates = append(tc.Dates, timeutil.DateKey(j.Date, time.UTC))
		}
	}
	for _, e := range mem.Entities {
		if entityMentionsTheme(e, needle) {
			tc.Entities = append(tc.Entities, e)
		}
	}
	sort.Slice(tc.Entities, func(i, j int) bool {
		return tc.Entities[i].Name < tc.Entities[j].Name
	})
	tc.Dates = model.UniqueStrings(tc.Dates)
	return tc, nil
}

// SeedCandidate pairs a user seed with the synthetic thread its post
// is built from.
type SeedCandidate struct {
	Seed   store.Seed
	Thread memory.Thread
}

// SeedThematicCandidates promotes unused seeds to thematic candidates
// under the same evidence bar organic threads meet: the seed's
// subject must cluster in the daily record, be recent, and not be
// covered already. The theme name is the seed's first tag, falling
// back to its text.
func SeedThematicCandidates(mem *memory.UnifiedMemory, blogMem *store.BlogMemory, seeds []store.Seed, asOf string, minMentions int) []SeedCandidate {
	if minMentions <= 0 {
		minMentions = DefaultThematicMentions
	}
	cutoff := shiftISODate(asOf, -thematicRecencyDays)
	var out []SeedCandidate
	for _, seed := range seeds {
		name := seedThemeName(seed)
		if name == "" || blogMem.HasThematicPost(name) {
			continue
		}
		dates := themeMentionDates(mem, append([]string{name, seed.Text}, seed.Tags...)...)
		if !datesCluster(dates, minMentions) {
			continue
		}
		last := dates[len(dates)-1]
		if last < cutoff {
			continue
		}
		out = append(out, SeedCandidate{
			Seed: seed,
			Thread: memory.Thread{
				Name:         name,
				Summary:      seed.Text,
				FirstSeen:    dates[0],
				LastSeen:     last,
				MentionCount: len(dates),
				Status:       "active",
			},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Thread, out[j].Thread
		if ti.MentionCount != tj.MentionCount {
			return ti.MentionCount > tj.MentionCount
		}
		return ti.Name < tj.Name
	})
	return out
}

func seedThemeName(seed store.Seed) string {
	if len(seed.Tags) > 0 && strings.TrimSpace(seed.Tags[0]) != "" {
		return strings.TrimSpace(seed.Tags[0])
	}
	return strings.TrimSpace(seed.Text)
}

// mentionsCluster reports whether the theme shows up on at least
// minMentions distinct dates inside one 14-day window of the daily
// record.
func mentionsCluster(mem *memory.UnifiedMemory, theme string, minMentions int) bool {
	return datesCluster(themeMentionDates(mem, theme), minMentions)
}

// themeMentionDates returns the sorted distinct dates on which any of
// the names appears among a daily entry's themes.
func themeMentionDates(mem *memory.UnifiedMemory, names ...string) []string {
	var dates []string
	for _, e := range mem.Entries {
		for _, th := range e.Themes {
			if anyFold(names, th) {
				dates = append(dates, e.Date)
				break
			}
		}
	}
	dates = model.UniqueStrings(dates)
	sort.Strings(dates)
	return dates
}

func anyFold(names []string, s string) bool {
	for _, n := range names {
		if n != "" && strings.EqualFold(n, s) {
			return true
		}
	}
	return false
}

// datesCluster reports whether some minMentions consecutive dates of
// the sorted list fall inside one 14-day window.
func datesCluster(dates []string, minMentions int) bool {
	if len(dates) < minMentions {
		return false
	}
	for i := 0; i+minMentions-1 < len(dates); i++ {
		first, err := timeutil.ParseDate(dates[i], time.UTC)
		if err != nil {
			continue
		}
		last, err := timeutil.ParseDate(dates[i+minMentions-1], time.UTC)
		if err != nil {
			continue
		}
		if last.Sub(first) < thematicWindowDays*24*time.Hour {
			return true
		}
	}
	return false
}

func entityMentionsTheme(e memory.EntityRecord, needle string) bool {
	if strings.Contains(strings.ToLower(e.Name), needle) {
		return true
	}
	for _, c := range e.Contexts {
		if strings.Contains(strings.ToLower(c), needle) {
			return true
		}
	}
	return false
}

func shiftISODate(date string, days int) string {
	t, err := timeutil.ParseDate(date, time.UTC)
	if err != nil {
		return ""
	}
	return timeutil.DateKey(t.AddDate(0, 0, days), time.UTC)
}
