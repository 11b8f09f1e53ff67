package blog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/journal"
	"github.com/distillpress/distill/internal/llm"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

// DefaultAvoidLastPosts is how many recent posts feed the avoid list.
const DefaultAvoidLastPosts = 10

// Synthesizer turns weekly and thematic contexts into committed
// posts.
type Synthesizer struct {
	Store            *store.Store
	Worker           llm.Worker
	Log              *slog.Logger
	ConfigHash       string
	Force            bool
	TargetWords      int
	IncludeDiagrams  bool
	AvoidLastPosts   int
	OverlapThreshold float64
	NotesBlock       string // editorial direction for this run
}

// Result reports one post synthesis outcome.
type Result struct {
	Post    *model.BlogPost
	Path    string
	Skipped bool
}

// SynthesizeWeekly generates and commits the post for one weekly
// context.
func (s *Synthesizer) SynthesizeWeekly(ctx context.Context, wc *WeeklyContext) (*Result, error) {
	endDate, err := timeutil.ParseDate(wc.End, time.UTC)
	if err != nil {
		return nil, err
	}
	return s.synthesize(ctx, postSpec{
		slug:        wc.Slug(),
		postType:    model.PostWeekly,
		date:        endDate,
		themes:      wc.Themes,
		projects:    wc.Projects,
		sourceDates: wc.SourceDates(),
		prompt: func(in promptInputs) string {
			return BuildWeeklyPrompt(wc, in)
		},
	})
}

// SynthesizeThematic generates and commits one theme deep-dive.
func (s *Synthesizer) SynthesizeThematic(ctx context.Context, tc *ThematicContext) (*Result, error) {
	blogMem, err := s.Store.LoadBlogMemory()
	if err != nil {
		return nil, err
	}
	date, err := timeutil.ParseDate(tc.Thread.LastSeen, time.UTC)
	if err != nil {
		return nil, err
	}
	return s.synthesize(ctx, postSpec{
		slug:        uniqueSlug(blogMem, tc.Theme),
		postType:    model.PostThematic,
		date:        date,
		themes:      []string{tc.Theme},
		sourceDates: tc.Dates,
		prompt: func(in promptInputs) string {
			return BuildThematicPrompt(tc, in)
		},
	})
}

// SynthesizeReadingList generates and commits one week's roundup of
// external reading.
func (s *Synthesizer) SynthesizeReadingList(ctx context.Context, rc *ReadingListContext) (*Result, error) {
	endDate, err := timeutil.ParseDate(rc.End, time.UTC)
	if err != nil {
		return nil, err
	}
	return s.synthesize(ctx, postSpec{
		slug:        rc.Slug(),
		postType:    model.PostReadingList,
		date:        endDate,
		themes:      rc.Themes,
		sourceDates: rc.SourceDates(),
		prompt: func(in promptInputs) string {
			return BuildReadingListPrompt(rc, in)
		},
	})
}

// postSpec is the type-independent description one synthesis run
// works from.
type postSpec struct {
	slug        string
	postType    model.PostType
	date        time.Time
	themes      []string
	projects    []string
	sourceDates []string
	prompt      func(promptInputs) string
}

func (s *Synthesizer) synthesize(ctx context.Context, spec postSpec) (*Result, error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("slug", spec.slug, "post_type", string(spec.postType))

	blogState, err := s.Store.LoadBlogState()
	if err != nil {
		return nil, err
	}
	if !s.Force && blogState.IsGenerated(spec.slug, s.ConfigHash, spec.sourceDates) {
		post, ok, err := s.Store.ReadBlogPost(spec.slug)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Debug("blog post up to date, skipping")
			return &Result{Post: post, Path: s.Store.BlogPostPath(spec.slug), Skipped: true}, nil
		}
	}

	blogMem, err := s.Store.LoadBlogMemory()
	if err != nil {
		return nil, err
	}
	avoidLast := s.AvoidLastPosts
	if avoidLast <= 0 {
		avoidLast = DefaultAvoidLastPosts
	}
	threshold := s.OverlapThreshold
	if threshold <= 0 {
		threshold = DefaultOverlapThreshold
	}
	avoid := blogMem.AvoidList(avoidLast)
	in := promptInputs{
		TargetWords: s.TargetWords,
		MemoryBlock: blogMem.RenderForPrompt(),
		NotesBlock:  s.NotesBlock,
	}

	raw, err := s.Worker.Invoke(ctx, spec.prompt(in))
	if err != nil {
		return nil, fmt.Errorf("blog post %s: %w", spec.slug, err)
	}
	body := journal.StripChrome(raw)
	if body == "" {
		return nil, fmt.Errorf("blog post %s: %w: no content after cleanup", spec.slug, llm.ErrEmpty)
	}

	keyPoints, examples := ExtractKeyPoints(body)
	overlapping, fraction := Overlap(append(keyPoints, examples...), avoid)
	repetition := false
	if fraction > threshold {
		log.Warn("draft overlaps previous posts, re-prompting",
			"fraction", fraction, "overlapping", len(overlapping))
		raw, err = s.Worker.Invoke(ctx, BuildOverlapRetryPrompt(body, overlapping))
		if err != nil {
			log.Warn("overlap retry failed, keeping first draft", "error", err)
			repetition = true
		} else if retried := journal.StripChrome(raw); retried != "" {
			body = retried
			keyPoints, examples = ExtractKeyPoints(body)
			_, fraction = Overlap(append(keyPoints, examples...), avoid)
			if fraction > threshold {
				log.Warn("draft still overlaps previous posts, accepting",
					"fraction", fraction)
				repetition = true
			}
		} else {
			repetition = true
		}
	}

	if s.IncludeDiagrams {
		body = MaybeInsertDiagram(body)
	}

	post := &model.BlogPost{
		Slug:              spec.slug,
		PostType:          spec.postType,
		Date:              spec.date,
		Title:             postTitle(body),
		Body:              body,
		Themes:            spec.themes,
		Projects:          spec.projects,
		KeyPoints:         keyPoints,
		ExamplesUsed:      examples,
		RepetitionWarning: repetition,
	}
	for _, d := range spec.sourceDates {
		date, err := timeutil.ParseDate(d, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("blog post %s: %w", spec.slug, err)
		}
		post.SourceDates = append(post.SourceDates, date)
	}

	scratch, final, err := s.Store.StageBlogPost(post)
	if err != nil {
		return nil, err
	}
	if err := blogState.MarkGenerated(store.BlogPostRecord{
		Slug:        spec.slug,
		PostType:    string(spec.postType),
		SourceDates: spec.sourceDates,
		FilePath:    final,
		ConfigHash:  s.ConfigHash,
	}); err != nil {
		return nil, err
	}
	if err := blogMem.AddPost(store.BlogPostSummary{
		Slug:          spec.slug,
		Title:         post.Title,
		PostType:      string(spec.postType),
		Date:          timeutil.DateKey(spec.date, time.UTC),
		KeyPoints:     keyPoints,
		ThemesCovered: spec.themes,
		ExamplesUsed:  examples,
	}); err != nil {
		return nil, err
	}
	if err := s.Store.CommitScratch(scratch, final); err != nil {
		return nil, err
	}

	log.Info("blog post generated",
		"words", len(strings.Fields(body)),
		"repetition_warning", repetition,
		"path", final)
	return &Result{Post: post, Path: final}, nil
}

// postTitle returns the text of the leading H1.
func postTitle(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "# "))
}

// uniqueSlug slugifies a theme, reusing the slug when the theme is
// already recorded under it and suffixing a counter when a different
// theme owns it.
func uniqueSlug(blogMem *store.BlogMemory, theme string) string {
	base := store.Slugify(theme)
	slug := base
	for n := 2; ; n++ {
		owner, ok := slugOwner(blogMem, slug)
		if !ok || owner == theme {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

func slugOwner(blogMem *store.BlogMemory, slug string) (string, bool) {
	for _, p := range blogMem.Posts {
		if p.Slug != slug {
			continue
		}
		if len(p.ThemesCovered) > 0 {
			return p.ThemesCovered[0], true
		}
		return p.Title, true
	}
	return "", false
}
