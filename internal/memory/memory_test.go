package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDailyMerges(t *testing.T) {
	m := New()
	m.RecordDaily(DailyEntry{
		Date:       "2026-02-08",
		SessionIDs: []string{"s1"},
		Themes:     []string{"caching"},
	})
	m.RecordDaily(DailyEntry{
		Date:       "2026-02-08",
		SessionIDs: []string{"s1", "s2"},
		Insights:   []string{"cache invalidation is the hard part"},
	})

	require.Len(t, m.Entries, 1)
	e := m.Entries[0]
	assert.Equal(t, []string{"s1", "s2"}, e.SessionIDs)
	assert.Equal(t, []string{"caching"}, e.Themes)
	assert.Len(t, e.Insights, 1)
}

func TestRecordDailyKeepsDateOrder(t *testing.T) {
	m := New()
	m.RecordDaily(DailyEntry{Date: "2026-02-09"})
	m.RecordDaily(DailyEntry{Date: "2026-02-07"})
	m.RecordDaily(DailyEntry{Date: "2026-02-08"})

	var dates []string
	for _, e := range m.Entries {
		dates = append(dates, e.Date)
	}
	assert.Equal(t, []string{"2026-02-07", "2026-02-08", "2026-02-09"}, dates)
}

func TestUpdateThreads(t *testing.T) {
	m := New()
	m.UpdateThreads([]string{"worker pools"}, "2026-02-01",
		map[string]string{"worker pools": "bounded concurrency patterns"})
	m.UpdateThreads([]string{"worker pools", "sqlite"}, "2026-02-08", nil)

	require.Len(t, m.Threads, 2)
	wp := m.Threads[0]
	assert.Equal(t, "worker pools", wp.Name)
	assert.Equal(t, 2, wp.MentionCount)
	assert.Equal(t, "2026-02-01", wp.FirstSeen)
	assert.Equal(t, "2026-02-08", wp.LastSeen)
	assert.Equal(t, "bounded concurrency patterns", wp.Summary)
	assert.Equal(t, "active", wp.Status)
}

func TestUpdateThreadsMarksDormant(t *testing.T) {
	m := New()
	m.UpdateThreads([]string{"old topic"}, "2026-01-01", nil)
	m.UpdateThreads([]string{"new topic"}, "2026-02-08", nil)

	byName := map[string]Thread{}
	for _, th := range m.Threads {
		byName[th.Name] = th
	}
	assert.Equal(t, "dormant", byName["old topic"].Status)
	assert.Equal(t, "active", byName["new topic"].Status)

	// A dormant thread seen again becomes active.
	m.UpdateThreads([]string{"old topic"}, "2026-02-09", nil)
	for _, th := range m.Threads {
		if th.Name == "old topic" {
			assert.Equal(t, "active", th.Status)
			assert.Equal(t, 2, th.MentionCount)
		}
	}
}

func TestMentionCountsMonotone(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		m.UpdateThreads([]string{"repeat"}, "2026-02-08", nil)
		m.TrackEntity("distill", "project", "2026-02-08", "ctx")
	}
	assert.Equal(t, 3, m.Threads[0].MentionCount)
	assert.Equal(t, 3, m.Entities["project:distill"].MentionCount)
}

func TestTrackEntityCapsContexts(t *testing.T) {
	m := New()
	for i := 0; i < 15; i++ {
		m.TrackEntity("gjson", "technology", "2026-02-08", "used for parsing")
	}
	e := m.Entities["technology:gjson"]
	assert.Equal(t, 15, e.MentionCount)
	assert.Len(t, e.Contexts, maxEntityContexts)
}

func TestRecordPublishedReplacesSlug(t *testing.T) {
	m := New()
	m.RecordPublished(PublishedRecord{Slug: "weekly-2026-W06", Title: "v1"})
	m.RecordPublished(PublishedRecord{Slug: "weekly-2026-W06", Title: "v2"})
	m.RecordPublished(PublishedRecord{Slug: "other", Title: "x"})

	require.Len(t, m.Published, 2)
	assert.Equal(t, "v2", m.Published[0].Title)
}

func TestActiveThreads(t *testing.T) {
	m := New()
	m.UpdateThreads([]string{"fresh"}, "2026-02-08", nil)
	m.UpdateThreads([]string{"fresh"}, "2026-02-08", nil)
	m.Threads = append(m.Threads, Thread{
		Name: "stale", Status: "active",
		FirstSeen: "2026-01-01", LastSeen: "2026-01-10", MentionCount: 9,
	})

	active := m.ActiveThreads("2026-02-08", 7)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].Name)
}

func TestPrune(t *testing.T) {
	m := New()
	m.RecordDaily(DailyEntry{Date: "2026-01-01"})
	m.RecordDaily(DailyEntry{Date: "2026-02-01"})
	m.RecordDaily(DailyEntry{Date: "2026-02-08"})

	m.Prune(10)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, "2026-02-01", m.Entries[0].Date)
}

func TestCloneIsIndependent(t *testing.T) {
	m := New()
	m.RecordDaily(DailyEntry{Date: "2026-02-08", Themes: []string{"a"}})
	m.UpdateThreads([]string{"a"}, "2026-02-08", nil)
	m.TrackEntity("x", "concept", "2026-02-08", "ctx")

	snap := m.Clone()
	m.UpdateThreads([]string{"a", "b"}, "2026-02-09", nil)
	m.TrackEntity("x", "concept", "2026-02-09", "later")
	m.Entries[0].Themes[0] = "mutated"

	assert.Equal(t, "a", snap.Entries[0].Themes[0])
	assert.Len(t, snap.Threads, 1)
	assert.Equal(t, 1, snap.Threads[0].MentionCount)
	assert.Equal(t, 1, snap.Entities["concept:x"].MentionCount)
}

func TestRenderForPrompt(t *testing.T) {
	m := New()
	assert.Empty(t, m.RenderForPrompt("2026-02-08", 14))

	m.RecordDaily(DailyEntry{
		Date:     "2026-02-08",
		Themes:   []string{"caching"},
		Insights: []string{"ttl beats manual invalidation"},
	})
	m.UpdateThreads([]string{"caching"}, "2026-02-08",
		map[string]string{"caching": "cache layer work"})
	m.RecordPublished(PublishedRecord{
		Slug: "weekly-2026-W05", Title: "Week five", Date: "2026-02-01",
		Platforms: []string{"vault"},
	})

	out := m.RenderForPrompt("2026-02-08", 14)
	assert.Contains(t, out, "# Memory Context")
	assert.Contains(t, out, "## 2026-02-08")
	assert.Contains(t, out, "Themes: caching")
	assert.Contains(t, out, "## Ongoing Threads")
	assert.Contains(t, out, "**caching** (1x since 2026-02-08)")
	assert.Contains(t, out, `"Week five" (2026-02-01, vault)`)
}

func TestRenderForPromptThreadWindow(t *testing.T) {
	m := New()
	m.RecordDaily(DailyEntry{Date: "2026-02-08", Themes: []string{"caching"}})
	m.UpdateThreads([]string{"caching"}, "2026-02-08", nil)
	m.Threads = append(m.Threads, Thread{
		Name: "drifted", Status: "active", Summary: "old work",
		FirstSeen: "2026-01-01", LastSeen: "2026-01-20", MentionCount: 5,
	})

	out := m.RenderForPrompt("2026-02-08", 14)
	assert.Contains(t, out, "**caching**")
	assert.NotContains(t, out, "**drifted**",
		"threads outside the window must not reach the prompt")

	// The window is the only filter; widening it restores the thread.
	out = m.RenderForPrompt("2026-02-08", 60)
	assert.Contains(t, out, "**drifted**")
}
