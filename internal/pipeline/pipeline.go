// Package pipeline orchestrates a full distill run: ingest sessions
// and external content, synthesize journals day by day, derive weekly
// and thematic blog posts, and fan the posts out to publishers. The
// store's caches and pending flags make re-runs idempotent.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/distillpress/distill/internal/analyzer"
	"github.com/distillpress/distill/internal/blog"
	"github.com/distillpress/distill/internal/config"
	"github.com/distillpress/distill/internal/journal"
	"github.com/distillpress/distill/internal/llm"
	"github.com/distillpress/distill/internal/memory"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/normalize"
	"github.com/distillpress/distill/internal/publish"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

// llmSlots bounds concurrent LLM worker invocations.
const llmSlots = 2

// Pipeline wires the stages together. Construct with New and run with
// Run; one Pipeline handles one run at a time.
type Pipeline struct {
	Config     config.Config
	Store      *store.Store
	Worker     llm.Worker
	Publishers []publish.Publisher
	Log        *slog.Logger
	Force      bool
}

// Options narrow a run.
type Options struct {
	// Dates restricts journal synthesis to these ISO dates. Empty
	// means every date the ingested sessions cover.
	Dates []string
	// SkipPublish generates posts without delivering them.
	SkipPublish bool
}

// New builds a pipeline from config, opening the store and the LLM
// worker.
func New(cfg config.Config, log *slog.Logger) (*Pipeline, error) {
	st, err := store.New(cfg.Output.Directory)
	if err != nil {
		return nil, err
	}
	worker, err := llm.NewCLIWorker(cfg.LLM.Command, llm.WithTimeout(cfg.LLMTimeout()))
	if err != nil {
		return nil, err
	}
	retrier := llm.NewRetrier(newSemaphoreWorker(worker, llmSlots), log)

	p := &Pipeline{
		Config: cfg,
		Store:  st,
		Worker: retrier,
		Log:    log,
	}
	p.Publishers, err = buildPublishers(cfg, st)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// buildPublishers maps configured platform names to adapters.
func buildPublishers(cfg config.Config, st *store.Store) ([]publish.Publisher, error) {
	var pubs []publish.Publisher
	for _, name := range cfg.Blog.Platforms {
		switch name {
		case "vault":
			pubs = append(pubs, publish.NewVaultPublisher(st))
		case "markdown":
			pubs = append(pubs, publish.NewMarkdownPublisher(st))
		case "thread":
			pubs = append(pubs, publish.NewThreadPublisher(st))
		case "professional":
			pubs = append(pubs, publish.NewProfessionalPublisher(st))
		case "discussion":
			pubs = append(pubs, publish.NewDiscussionPublisher(st))
		case "cms":
			if cfg.CMS.URL == "" {
				return nil, fmt.Errorf("platform cms configured without cms.url")
			}
			pubs = append(pubs, publish.NewCMSPublisher(cfg.CMS.URL, cfg.CMS.AdminKey))
		case "scheduler":
			if cfg.Scheduler.URL == "" {
				return nil, fmt.Errorf("platform scheduler configured without scheduler.url")
			}
			pubs = append(pubs, publish.NewSchedulerPublisher(cfg.Scheduler.URL, cfg.Scheduler.APIKey))
		default:
			return nil, fmt.Errorf("unknown platform %q", name)
		}
	}
	return pubs, nil
}

// semaphoreWorker caps how many Invoke calls run at once.
type semaphoreWorker struct {
	inner llm.Worker
	slots chan struct{}
}

func newSemaphoreWorker(inner llm.Worker, n int) *semaphoreWorker {
	return &semaphoreWorker{inner: inner, slots: make(chan struct{}, n)}
}

func (w *semaphoreWorker) Invoke(ctx context.Context, prompt string) (string, error) {
	select {
	case w.slots <- struct{}{}:
		defer func() { <-w.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return w.inner.Invoke(ctx, prompt)
}

// Run executes the full pipeline once.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	report := newReport()

	loc, err := p.Config.Location()
	if err != nil {
		return nil, err
	}

	// A crash mid-commit leaves staged files behind; clear them before
	// any stage writes.
	orphans, err := p.Store.CleanupScratch()
	if err != nil {
		return nil, err
	}
	report.OrphansCleaned = len(orphans)
	if len(orphans) > 0 {
		log.Info("cleaned orphaned scratch files", "count", len(orphans))
	}

	since := time.Now().In(loc).AddDate(0, 0, -p.Config.Sessions.SinceDays)

	// Stage 1: ingest.
	sessions, parseErrs := p.ingestSessions(since, log)
	report.ParseErrors += parseErrs
	sessions = normalize.DedupSessions(sessions)
	for _, s := range sessions {
		report.recordIngested(string(s.Source), 1)
	}

	if err := p.ingestIntake(ctx, since, report, log); err != nil {
		return nil, err
	}

	// Stage 2: analyze.
	roots := map[string]string{}
	for _, proj := range p.Config.Projects {
		if proj.Path != "" {
			roots[proj.Name] = proj.Path
		}
	}
	for _, s := range sessions {
		analyzer.Analyze(s, roots)
	}
	if !p.Config.Sessions.IncludeGlobal {
		kept := sessions[:0]
		for _, s := range sessions {
			if s.Project != model.ProjectUnassigned {
				kept = append(kept, s)
			}
		}
		if dropped := len(sessions) - len(kept); dropped > 0 {
			log.Info("excluding unattributed sessions", "count", dropped)
		}
		sessions = kept
	}

	// Stage 3: journals, day by day in order so each day's memory
	// feeds the next day's prompt.
	mem, err := p.Store.LoadMemory()
	if err != nil {
		return nil, err
	}
	byDate := normalize.BucketSessions(sessions, loc)
	dates := selectDates(byDate, opts.Dates)

	for _, date := range dates {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}
		p.runJournalDay(ctx, date, byDate[date], mem, report, log)
	}

	// Stage 4: blog posts. Weeks containing a pending date wait for
	// the rerun that clears it.
	posts, err := p.runBlog(ctx, dates, mem, report, log)
	if err != nil {
		return nil, err
	}

	// Stage 5: publish fan-out.
	if !opts.SkipPublish && len(p.Publishers) > 0 {
		if err := p.publishPosts(ctx, posts, mem, report, log); err != nil {
			return nil, err
		}
	}

	pending, err := p.Store.LoadPendingFlags()
	if err != nil {
		return nil, err
	}
	report.PendingDates = pending.Dates()
	report.FinishedAt = time.Now()
	return report, nil
}

// selectDates orders the journal work. An explicit list wins; dates
// without sessions still run so a requested day reports cleanly.
func selectDates(byDate map[string][]*model.Session, requested []string) []string {
	if len(requested) > 0 {
		out := append([]string(nil), requested...)
		sort.Strings(out)
		return out
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// runJournalDay synthesizes one date's journal and folds the outcome
// into memory. Failures flag the date pending and move on.
func (p *Pipeline) runJournalDay(
	ctx context.Context, date string, sessions []*model.Session,
	mem *memory.UnifiedMemory, report *Report, log *slog.Logger,
) {
	if len(sessions) == 0 {
		return
	}
	dc, usedSeeds, usedNotes, err := p.buildDailyContext(date, sessions, mem)
	if err != nil {
		report.JournalsFailed++
		log.Error("building daily context", "date", date, "error", err)
		return
	}

	syn := &journal.Synthesizer{
		Store:      p.Store,
		Worker:     p.Worker,
		Log:        log,
		ConfigHash: p.Config.Hash(),
		Force:      p.Force,
	}
	res, err := syn.Synthesize(ctx, dc)
	if err != nil {
		report.JournalsFailed++
		return
	}
	if res.Skipped {
		report.JournalsSkipped++
		return
	}
	report.JournalsGenerated++

	p.consumeSeeds(usedSeeds, "journal:"+date, log)
	p.consumeNotes(usedNotes, log)
	p.updateMemory(ctx, date, dc, res.Entry, mem, log)
}

// buildDailyContext assembles everything one day's prompt needs. The
// returned notes are the ones steering this prompt: globals plus any
// targeting the date's ISO week.
func (p *Pipeline) buildDailyContext(
	date string, sessions []*model.Session, mem *memory.UnifiedMemory,
) (*journal.DailyContext, []store.Seed, []store.EditorialNote, error) {
	notes, err := p.Store.LoadNotes()
	if err != nil {
		return nil, nil, nil, err
	}
	seedStore, err := p.Store.LoadSeeds()
	if err != nil {
		return nil, nil, nil, err
	}
	seeds := seedStore.Unused()

	weekTarget := ""
	if t, err := timeutil.ParseDate(date, time.UTC); err == nil {
		weekTarget = "week:" + timeutil.ISOWeek(t)
	}

	dc := &journal.DailyContext{
		Date:        date,
		Style:       p.Config.Journal.Style,
		TargetWords: p.Config.Journal.TargetWordCount,
		Sessions:    sessions,
		MemoryBlock: mem.Clone().RenderForPrompt(date, p.Config.Journal.MemoryWindowDays),
		NotesBlock:  notes.RenderForPrompt(weekTarget),
		Seeds:       seeds,
	}

	for _, name := range dc.ProjectNames() {
		if proj, ok := p.Config.ProjectByName(name); ok {
			dc.Projects = append(dc.Projects, journal.ProjectInfo{
				Name:        proj.Name,
				Description: proj.Description,
				URL:         proj.URL,
				Tags:        proj.Tags,
			})
		}
	}

	if digest, err := os.ReadFile(p.Store.DigestPath(date)); err == nil {
		dc.Digest = string(digest)
	}
	return dc, seeds, notes.Active(weekTarget), nil
}

// consumeSeeds marks seeds used once they fed a generated artifact.
func (p *Pipeline) consumeSeeds(seeds []store.Seed, usedIn string, log *slog.Logger) {
	if len(seeds) == 0 {
		return
	}
	seedStore, err := p.Store.LoadSeeds()
	if err != nil {
		log.Warn("seed store unavailable", "error", err)
		return
	}
	for _, seed := range seeds {
		if _, err := seedStore.MarkUsed(seed.ID, usedIn); err != nil {
			log.Warn("marking seed used", "seed", seed.ID, "error", err)
		}
	}
}

// consumeNotes marks editorial notes used once they steered a
// generated artifact. Notes whose target nothing matched stay unused.
func (p *Pipeline) consumeNotes(notes []store.EditorialNote, log *slog.Logger) {
	if len(notes) == 0 {
		return
	}
	noteStore, err := p.Store.LoadNotes()
	if err != nil {
		log.Warn("note store unavailable", "error", err)
		return
	}
	for _, n := range notes {
		if _, err := noteStore.MarkUsed(n.ID); err != nil {
			log.Warn("marking note used", "note", n.ID, "error", err)
		}
	}
}

// updateMemory extracts structured memory from the committed journal
// and folds it in. Extraction runs before any memory mutation so the
// update is deterministic from the journal text; when the extract
// call fails the analyzer-derived tags stand in.
func (p *Pipeline) updateMemory(
	ctx context.Context, date string, dc *journal.DailyContext,
	entry *model.JournalEntry, mem *memory.UnifiedMemory, log *slog.Logger,
) {
	ext := p.extractMemory(ctx, date, entry.Body, log)
	themes := ext.Themes
	if len(themes) == 0 {
		themes = dc.Tags()
	}

	readIDs := p.readIDsForDate(date)
	mem.RecordDaily(memory.DailyEntry{
		Date:          date,
		SessionIDs:    dc.SessionIDs(),
		ReadIDs:       readIDs,
		Themes:        themes,
		Insights:      ext.Insights,
		Decisions:     ext.Decisions,
		OpenQuestions: ext.OpenQuestions,
	})
	mem.UpdateThreads(themes, date, ext.Threads)
	for _, proj := range dc.ProjectNames() {
		mem.TrackEntity(proj, "project", date, entry.Body[:min(len(entry.Body), 120)])
	}
	mem.Prune(memory.DefaultKeepDays)

	if err := p.Store.CommitMemory(mem); err != nil {
		log.Error("memory not committed", "date", date, "error", err)
	}
}

func (p *Pipeline) extractMemory(ctx context.Context, date, body string, log *slog.Logger) *journal.MemoryExtract {
	raw, err := p.Worker.Invoke(ctx, journal.BuildExtractPrompt(date, body))
	if err != nil {
		log.Warn("memory extract failed, falling back to session tags",
			"date", date, "error", err)
		return &journal.MemoryExtract{}
	}
	ext, err := journal.ParseExtract(raw)
	if err != nil {
		log.Warn("memory extract unparseable, falling back to session tags",
			"date", date, "error", err)
		return &journal.MemoryExtract{}
	}
	return ext
}

// readIDsForDate lists external content item ids for a date, when the
// content index exists.
func (p *Pipeline) readIDsForDate(date string) []string {
	index, err := p.Store.OpenContentIndex()
	if err != nil {
		return nil
	}
	defer index.Close()
	items, err := index.ItemsForDate(date)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

// runBlog generates weekly posts for every fully-journaled week in
// the run and thematic posts for qualifying memory threads.
func (p *Pipeline) runBlog(
	ctx context.Context, dates []string, mem *memory.UnifiedMemory,
	report *Report, log *slog.Logger,
) ([]*model.BlogPost, error) {
	pending, err := p.Store.LoadPendingFlags()
	if err != nil {
		return nil, err
	}
	notes, err := p.Store.LoadNotes()
	if err != nil {
		return nil, err
	}

	loc, _ := p.Config.Location()
	weeks := weeksCovered(dates, loc)

	var posts []*model.BlogPost
	for _, week := range weeks {
		if datesPending(week, loc, pending) {
			log.Info("week has pending dates, deferring weekly post", "week", week)
			continue
		}
		wc, ok, err := blog.BuildWeeklyContext(p.Store, mem, week, p.Config.Blog.MinJournalsForWeekly)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		syn := p.blogSynthesizer(notes.RenderForPrompt("week:" + week))
		res, err := syn.SynthesizeWeekly(ctx, wc)
		if err != nil {
			report.PostsFailed++
			log.Error("weekly post failed", "week", week, "error", err)
			continue
		}
		if !res.Skipped {
			p.consumeNotes(notes.Active("week:"+week), log)
		}
		posts = p.recordPostResult(res, posts, report)
	}

	if p.Config.Intake.Enabled {
		morePosts, err := p.runReadingLists(ctx, weeks, mem, notes, report, log)
		if err != nil {
			return nil, err
		}
		posts = append(posts, morePosts...)
	}

	// Thematic candidates as of the newest journaled date: organic
	// memory threads first, then user seeds that earned journal
	// evidence.
	if len(dates) > 0 {
		blogMem, err := p.Store.LoadBlogMemory()
		if err != nil {
			return nil, err
		}
		asOf := dates[len(dates)-1]
		for _, thread := range blog.ThematicCandidates(mem, blogMem, asOf, p.Config.Blog.ThematicMentions) {
			res, err := p.runThematic(ctx, thread, mem, notes, report, log)
			if err != nil {
				return nil, err
			}
			if res == nil {
				continue
			}
			posts = p.recordPostResult(res, posts, report)
		}

		seedStore, err := p.Store.LoadSeeds()
		if err != nil {
			return nil, err
		}
		for _, cand := range blog.SeedThematicCandidates(mem, blogMem, seedStore.Unused(), asOf, p.Config.Blog.ThematicMentions) {
			res, err := p.runThematic(ctx, cand.Thread, mem, notes, report, log)
			if err != nil {
				return nil, err
			}
			if res == nil {
				continue
			}
			if !res.Skipped {
				p.consumeSeeds([]store.Seed{cand.Seed}, "blog:"+res.Post.Slug, log)
			}
			posts = p.recordPostResult(res, posts, report)
		}
	}
	return posts, nil
}

// runThematic synthesizes one thematic post. A nil result with nil
// error means the synthesis failed and was counted; context build
// failures abort the blog stage.
func (p *Pipeline) runThematic(
	ctx context.Context, thread memory.Thread, mem *memory.UnifiedMemory,
	notes *store.NoteStore, report *Report, log *slog.Logger,
) (*blog.Result, error) {
	tc, err := blog.BuildThematicContext(p.Store, mem, thread)
	if err != nil {
		return nil, err
	}
	target := "theme:" + store.Slugify(thread.Name)
	syn := p.blogSynthesizer(notes.RenderForPrompt(target))
	res, err := syn.SynthesizeThematic(ctx, tc)
	if err != nil {
		report.PostsFailed++
		log.Error("thematic post failed", "theme", thread.Name, "error", err)
		return nil, nil
	}
	if !res.Skipped {
		p.consumeNotes(notes.Active(target), log)
	}
	return res, nil
}

// runReadingLists generates the weekly roundup of external reading
// for each covered week that archived any items.
func (p *Pipeline) runReadingLists(
	ctx context.Context, weeks []string, mem *memory.UnifiedMemory,
	notes *store.NoteStore, report *Report, log *slog.Logger,
) ([]*model.BlogPost, error) {
	var posts []*model.BlogPost
	for _, week := range weeks {
		rc, ok, err := blog.BuildReadingListContext(p.Store, mem, week)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		syn := p.blogSynthesizer(notes.RenderForPrompt("week:" + week))
		res, err := syn.SynthesizeReadingList(ctx, rc)
		if err != nil {
			report.PostsFailed++
			log.Error("reading-list post failed", "week", week, "error", err)
			continue
		}
		if !res.Skipped {
			p.consumeNotes(notes.Active("week:"+week), log)
		}
		posts = p.recordPostResult(res, posts, report)
	}
	return posts, nil
}

func (p *Pipeline) blogSynthesizer(notesBlock string) *blog.Synthesizer {
	return &blog.Synthesizer{
		Store:            p.Store,
		Worker:           p.Worker,
		Log:              p.Log,
		ConfigHash:       p.Config.Hash(),
		Force:            p.Force,
		TargetWords:      p.Config.Blog.TargetWordCount,
		IncludeDiagrams:  p.Config.Blog.IncludeDiagrams,
		AvoidLastPosts:   p.Config.Blog.AvoidLastPosts,
		OverlapThreshold: p.Config.Blog.OverlapThreshold,
		NotesBlock:       notesBlock,
	}
}

func (p *Pipeline) recordPostResult(res *blog.Result, posts []*model.BlogPost, report *Report) []*model.BlogPost {
	if res.Skipped {
		report.PostsSkipped++
		return posts
	}
	report.PostsGenerated++
	return append(posts, res.Post)
}

// weeksCovered returns the distinct ISO weeks the dates fall in,
// ordered.
func weeksCovered(dates []string, loc *time.Location) []string {
	seen := map[string]bool{}
	var weeks []string
	for _, date := range dates {
		t, err := timeutil.ParseDate(date, loc)
		if err != nil {
			continue
		}
		week := timeutil.ISOWeek(t)
		if !seen[week] {
			seen[week] = true
			weeks = append(weeks, week)
		}
	}
	sort.Strings(weeks)
	return weeks
}

// datesPending reports whether any date of the week carries a pending
// flag.
func datesPending(week string, loc *time.Location, pending *store.PendingFlags) bool {
	year, wk, err := timeutil.ParseISOWeek(week)
	if err != nil {
		return false
	}
	start, end := timeutil.WeekBounds(year, wk, loc)
	for _, day := range timeutil.DaysBetween(start, end, loc) {
		if pending.IsPending(timeutil.DateKey(day, loc)) {
			return true
		}
	}
	return false
}

// publishPosts fans each generated post out to every platform and
// records the outcomes in blog memory and unified memory.
func (p *Pipeline) publishPosts(
	ctx context.Context, posts []*model.BlogPost,
	mem *memory.UnifiedMemory, report *Report, log *slog.Logger,
) error {
	if len(posts) == 0 {
		return nil
	}
	blogMem, err := p.Store.LoadBlogMemory()
	if err != nil {
		return err
	}
	fanout := publish.NewFanout(p.Publishers...)
	fanout.Log = log

	loc, _ := p.Config.Location()
	for _, post := range posts {
		var delivered []string
		for _, d := range fanout.Publish(ctx, post) {
			report.recordDelivery(d.Platform, d.Err == nil)
			if d.Err != nil {
				continue
			}
			delivered = append(delivered, d.Platform)
			if err := blogMem.MarkPublished(post.Slug, d.Platform); err != nil {
				return err
			}
		}
		if len(delivered) == 0 {
			continue
		}
		mem.RecordPublished(memory.PublishedRecord{
			Slug:      post.Slug,
			Title:     post.Title,
			PostType:  string(post.PostType),
			Date:      timeutil.DateKey(post.Date, loc),
			Platforms: delivered,
		})
	}
	return p.Store.CommitMemory(mem)
}
