package blog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distillpress/distill/internal/memory"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
)

// scriptedWorker replays canned responses and records prompts.
type scriptedWorker struct {
	responses []string
	prompts   []string
}

func (w *scriptedWorker) Invoke(ctx context.Context, prompt string) (string, error) {
	w.prompts = append(w.prompts, prompt)
	i := len(w.prompts) - 1
	if i >= len(w.responses) {
		i = len(w.responses) - 1
	}
	return w.responses[i], nil
}

func paddedPost(title, firstPoint string) string {
	filler := make([]string, 80)
	for i := range filler {
		filler[i] = fmt.Sprintf("filler%d", i)
	}
	return fmt.Sprintf("# %s\n\n## Opening\n\n%s %s.\n\n## Close\n\nThat wraps it up.\n",
		title, firstPoint, strings.Join(filler, " "))
}

func weeklyFixture(t *testing.T) (*Synthesizer, *store.Store, *WeeklyContext, *scriptedWorker) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	for _, date := range []string{"2026-02-02", "2026-02-03", "2026-02-04"} {
		writeJournal(t, st, date, []string{"debugging"}, "# Day\n\nParser work.")
	}
	wc, ok, err := BuildWeeklyContext(st, memory.New(), "2026-W06", 3)
	require.NoError(t, err)
	require.True(t, ok)

	worker := &scriptedWorker{responses: []string{paddedPost("Week Six", "Parsers were the story")}}
	syn := &Synthesizer{
		Store:       st,
		Worker:      worker,
		ConfigHash:  "cfg1",
		TargetWords: 100,
	}
	return syn, st, wc, worker
}

func TestSynthesizeWeeklyCommitsEverything(t *testing.T) {
	syn, st, wc, _ := weeklyFixture(t)

	res, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "weekly-2026-W06", res.Post.Slug)
	assert.Equal(t, "Week Six", res.Post.Title)
	assert.FileExists(t, res.Path)
	assert.False(t, res.Post.RepetitionWarning)

	state, err := st.LoadBlogState()
	require.NoError(t, err)
	assert.True(t, state.IsGenerated("weekly-2026-W06", "cfg1",
		[]string{"2026-02-02", "2026-02-03", "2026-02-04"}))
	rec, ok := state.Record("weekly-2026-W06")
	require.True(t, ok)
	assert.Equal(t, []string{"2026-02-02", "2026-02-03", "2026-02-04"}, rec.SourceDates)

	blogMem, err := st.LoadBlogMemory()
	require.NoError(t, err)
	require.Len(t, blogMem.Posts, 1)
	assert.NotEmpty(t, blogMem.Posts[0].KeyPoints)
}

func TestSynthesizeWeeklySkipsWhenCurrent(t *testing.T) {
	syn, _, wc, worker := weeklyFixture(t)

	_, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)
	calls := len(worker.prompts)

	res, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Len(t, worker.prompts, calls, "skip must not invoke the llm")
}

func TestSynthesizeWeeklyForceRegenerates(t *testing.T) {
	syn, _, wc, worker := weeklyFixture(t)

	_, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)

	syn.Force = true
	worker.responses = []string{paddedPost("Week Six Redux", "A second take")}
	res, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "Week Six Redux", res.Post.Title)
}

func TestSynthesizeWeeklyNonRepetition(t *testing.T) {
	syn, st, wc, worker := weeklyFixture(t)

	// A previous post already used these exact points.
	blogMem, err := st.LoadBlogMemory()
	require.NoError(t, err)
	require.NoError(t, blogMem.AddPost(store.BlogPostSummary{
		Slug:         "weekly-2026-W05",
		Title:        "Week Five",
		Date:         "2026-02-01",
		KeyPoints:    []string{"Parsers were the story", "That wraps it up"},
		ExamplesUsed: []string{"fan-in parser"},
	}))

	// First draft recycles both points; the retry brings fresh ones.
	worker.responses = []string{
		paddedPost("Week Six", "Parsers were the story"),
		paddedPost("Week Six", "Dedup carried the week"),
	}

	res, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)
	require.Len(t, worker.prompts, 2, "overlap must trigger exactly one re-prompt")
	assert.Contains(t, worker.prompts[0], "DO NOT REUSE These Examples")
	assert.Contains(t, worker.prompts[1], "Already covered:")
	assert.Contains(t, res.Post.Body, "Dedup carried the week")

	blogMemAfter, err := st.LoadBlogMemory()
	require.NoError(t, err)
	var latest store.BlogPostSummary
	for _, p := range blogMemAfter.Posts {
		if p.Slug == "weekly-2026-W06" {
			latest = p
		}
	}
	assert.NotEqual(t,
		[]string{"Parsers were the story", "That wraps it up"},
		latest.KeyPoints,
		"new post must not repeat the prior key points verbatim")
}

func TestSynthesizeWeeklyStillOverlappingGetsWarning(t *testing.T) {
	syn, st, wc, worker := weeklyFixture(t)

	blogMem, err := st.LoadBlogMemory()
	require.NoError(t, err)
	require.NoError(t, blogMem.AddPost(store.BlogPostSummary{
		Slug:      "weekly-2026-W05",
		Date:      "2026-02-01",
		KeyPoints: []string{"Parsers were the story", "That wraps it up"},
	}))

	// Both attempts recycle the same material.
	repeat := paddedPost("Week Six", "Parsers were the story")
	worker.responses = []string{repeat, repeat}

	res, err := syn.SynthesizeWeekly(context.Background(), wc)
	require.NoError(t, err)
	assert.True(t, res.Post.RepetitionWarning)

	got, ok, err := st.ReadBlogPost("weekly-2026-W06")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.RepetitionWarning, "warning survives in frontmatter")
}

func TestSynthesizeThematic(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	writeJournal(t, st, "2026-02-02", nil, "# Mon\n\nAuth refresh chase continues.")
	writeJournal(t, st, "2026-02-05", nil, "# Thu\n\nAuth refresh finally fixed.")

	mem := memory.New()
	tc, err := BuildThematicContext(st, mem, buildThread("auth refresh", 4, "2026-02-02", "2026-02-05"))
	require.NoError(t, err)

	worker := &scriptedWorker{responses: []string{paddedPost("Chasing Auth Refresh", "Token rotation bit us")}}
	syn := &Synthesizer{Store: st, Worker: worker, ConfigHash: "cfg1", TargetWords: 100}

	res, err := syn.SynthesizeThematic(context.Background(), tc)
	require.NoError(t, err)
	assert.Equal(t, "auth-refresh", res.Post.Slug)
	assert.Equal(t, model.PostThematic, res.Post.PostType)
	assert.Equal(t, []string{"auth refresh"}, res.Post.Themes)

	blogMem, err := st.LoadBlogMemory()
	require.NoError(t, err)
	assert.True(t, blogMem.HasThematicPost("auth refresh"))
}

func TestUniqueSlugCollision(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	blogMem, err := st.LoadBlogMemory()
	require.NoError(t, err)
	require.NoError(t, blogMem.AddPost(store.BlogPostSummary{
		Slug:          "error-handling",
		PostType:      string(model.PostThematic),
		ThemesCovered: []string{"Error Handling"},
	}))

	// Same theme keeps its slug; a different theme that slugifies
	// identically gets a suffix.
	assert.Equal(t, "error-handling", uniqueSlug(blogMem, "Error Handling"))
	assert.Equal(t, "error-handling-2", uniqueSlug(blogMem, "error handling"))
}
