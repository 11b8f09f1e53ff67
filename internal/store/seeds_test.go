package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedLifecycle(t *testing.T) {
	s := newStore(t)
	ss, err := s.LoadSeeds()
	require.NoError(t, err)
	assert.Empty(t, ss.All())

	seed, err := ss.Add("write about the fsnotify debounce bug", []string{"watching"})
	require.NoError(t, err)
	assert.Len(t, seed.ID, 12)
	assert.NotEmpty(t, seed.CreatedAt)

	other, err := ss.Add("compare journal styles", nil)
	require.NoError(t, err)
	assert.NotEqual(t, seed.ID, other.ID)

	assert.Len(t, ss.Unused(), 2)

	marked, err := ss.MarkUsed(seed.ID, "journal-2026-02-08")
	require.NoError(t, err)
	assert.True(t, marked)

	// Already-used seeds lose the compare-and-set.
	marked, err = ss.MarkUsed(seed.ID, "journal-2026-02-09")
	require.NoError(t, err)
	assert.False(t, marked)

	_, err = ss.MarkUsed("nonexistent00", "journal-2026-02-08")
	require.Error(t, err)

	reloaded, err := s.LoadSeeds()
	require.NoError(t, err)
	require.Len(t, reloaded.Unused(), 1)
	assert.Equal(t, other.ID, reloaded.Unused()[0].ID)

	require.NoError(t, reloaded.Remove(other.ID))
	assert.Len(t, reloaded.All(), 1)
}

func TestNoteTargeting(t *testing.T) {
	s := newStore(t)
	ns, err := s.LoadNotes()
	require.NoError(t, err)

	global, err := ns.Add("keep the tone drier this month", "")
	require.NoError(t, err)
	weekly, err := ns.Add("lead with the migration story", "week:2026-W06")
	require.NoError(t, err)
	_, err = ns.Add("skip the rust detour", "week:2026-W07")
	require.NoError(t, err)

	active := ns.Active("week:2026-W06")
	require.Len(t, active, 2)

	ids := []string{active[0].ID, active[1].ID}
	assert.Contains(t, ids, global.ID)
	assert.Contains(t, ids, weekly.ID)

	marked, err := ns.MarkUsed(weekly.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = ns.MarkUsed(weekly.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	active = ns.Active("week:2026-W06")
	require.Len(t, active, 1)
	assert.Equal(t, global.ID, active[0].ID)
}

func TestNoteRenderForPrompt(t *testing.T) {
	s := newStore(t)
	ns, err := s.LoadNotes()
	require.NoError(t, err)
	assert.Empty(t, ns.RenderForPrompt("week:2026-W06"))

	_, err = ns.Add("mention the conference talk", "week:2026-W06")
	require.NoError(t, err)

	out := ns.RenderForPrompt("week:2026-W06")
	assert.Contains(t, out, "## Editorial Direction")
	assert.Contains(t, out, "- mention the conference talk")
	assert.Empty(t, ns.RenderForPrompt("week:2026-W09"))
}
