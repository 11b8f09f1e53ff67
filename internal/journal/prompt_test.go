package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
)

func TestBuildPromptIncludesAllBlocks(t *testing.T) {
	s := testSession("aaa", "alpha", 45)
	s.FirstMessage = "Fix the token refresh bug"
	s.Learnings = []string{"backend: refresh tokens rotate on use"}
	dc := &DailyContext{
		Date:        "2026-02-08",
		Style:       "dev-journal",
		TargetWords: 500,
		Sessions:    []*model.Session{s},
		MemoryBlock: "# Memory Context\n\n## Ongoing Threads\n- **auth** (3x since 2026-02-01): token work\n",
		NotesBlock:  "## Editorial Direction\n\n- keep it brief\n",
		Seeds: []store.Seed{
			{ID: "abc123def456", Text: "mention the conference talk"},
		},
		Projects: []ProjectInfo{
			{Name: "alpha", Description: "The auth service."},
		},
		Digest: "- Read: Worker Pools Revisited\n",
	}

	prompt := BuildPrompt(dc)
	assert.Contains(t, prompt, "about 500 words")
	assert.Contains(t, prompt, "## Date: 2026-02-08")
	assert.Contains(t, prompt, "**alpha**: The auth service.")
	assert.Contains(t, prompt, "Fix the aaa bug")
	assert.Contains(t, prompt, "Duration: 45 min")
	assert.Contains(t, prompt, "Edit×2")
	assert.Contains(t, prompt, "Opening request: Fix the token refresh bug")
	assert.Contains(t, prompt, "refresh tokens rotate on use")
	assert.Contains(t, prompt, "Worker Pools Revisited")
	assert.Contains(t, prompt, "## Ongoing Threads")
	assert.Contains(t, prompt, "## Editorial Direction")
	assert.Contains(t, prompt, "mention the conference talk")
}

func TestBuildPromptUnknownStyleFallsBack(t *testing.T) {
	dc := testContext("2026-02-08", testSession("aaa", "alpha", 10))
	dc.Style = "haiku"
	prompt := BuildPrompt(dc)
	assert.Contains(t, prompt, "developer's daily journal")
}

func TestBuildPromptNoSessions(t *testing.T) {
	prompt := BuildPrompt(testContext("2026-02-08"))
	assert.Contains(t, prompt, "No sessions recorded for this date.")
}

func TestBuildLengthRetryPromptDirection(t *testing.T) {
	dc := testContext("2026-02-08")
	dc.TargetWords = 100

	longer := BuildLengthRetryPrompt(dc, "draft", 40)
	assert.Contains(t, longer, "Rewrite it longer")
	assert.Contains(t, longer, "draft")

	shorter := BuildLengthRetryPrompt(dc, "draft", 400)
	assert.Contains(t, shorter, "Rewrite it shorter")
}

func TestParseExtract(t *testing.T) {
	raw := `{"themes": ["auth refresh", "test flakiness"],
		"insights": ["Rotating refresh tokens breaks retry loops."],
		"decisions": ["Pin the sqlite driver version."],
		"open_questions": ["Why does CI only fail on arm64?"],
		"threads": {"auth refresh": "chasing the rotation bug"}}`

	ex, err := ParseExtract(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth refresh", "test flakiness"}, ex.Themes)
	assert.Len(t, ex.Insights, 1)
	assert.Len(t, ex.Decisions, 1)
	assert.Len(t, ex.OpenQuestions, 1)
	assert.Equal(t, "chasing the rotation bug", ex.Threads["auth refresh"])
}

func TestParseExtractFenced(t *testing.T) {
	raw := "```json\n{\"themes\": [\"auth\"], \"threads\": {}}\n```"
	ex, err := ParseExtract(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth"}, ex.Themes)
}

func TestParseExtractGarbage(t *testing.T) {
	_, err := ParseExtract("I could not produce JSON, sorry.")
	require.Error(t, err)
}

func TestBuildExtractPromptShape(t *testing.T) {
	prompt := BuildExtractPrompt("2026-02-08", "# A Day\n\nBody.")
	assert.Contains(t, prompt, `"themes"`)
	assert.Contains(t, prompt, `"open_questions"`)
	assert.Contains(t, prompt, "## Journal entry for 2026-02-08")
	assert.Contains(t, prompt, "# A Day")
}
