package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/lmittmann/tint"

	"github.com/distillpress/distill/internal/config"
	"github.com/distillpress/distill/internal/pipeline"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/update"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const watcherDebounce = 30 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runPipeline(os.Args[2:])
			return
		case "watch":
			runWatch(os.Args[2:])
			return
		case "seed":
			runSeed(os.Args[2:])
			return
		case "note":
			runNote(os.Args[2:])
			return
		case "status":
			runStatus(os.Args[2:])
			return
		case "update":
			runUpdate(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("distill %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runPipeline(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`distill %s - turn coding-session logs into journals and blog posts

Ingests AI coding-assistant session logs and reading feeds, writes a
daily journal per active day, derives weekly and thematic blog posts,
and fans the posts out to configured platforms. Re-runs are idempotent.

Usage:
  distill [flags]           Run the full pipeline (default command)
  distill run [flags]       Run the full pipeline (explicit)
  distill watch [flags]     Run, then re-run when session files change
  distill seed [flags] TEXT Add an idea seed (or list with -list)
  distill note [flags] TEXT Add an editorial note (or list with -list)
  distill status            Show store state: pending dates, threads, seeds
  distill update [flags]    Check for and install a newer release
  distill version           Show version information
  distill help              Show this help

Run flags:
  -output string        Output directory for generated artifacts
  -style string         Journal style key
  -since-days int       Session discovery lookback window in days
  -target-words int     Journal target word count
  -llm string           LLM worker command
  -date string          Only these dates, comma-separated (YYYY-MM-DD)
  -force                Regenerate even when caches say current
  -skip-publish         Generate posts without delivering them
  -verbose              Debug logging

Seed flags:
  -tags string          Comma-separated tags for the new seed
  -list                 List seeds instead of adding

Note flags:
  -week string          Target an ISO week (e.g. 2026-W06)
  -theme string         Target a theme slug
  -list                 List notes instead of adding

Update flags:
  -check                Check for updates without installing
  -yes                  Install without confirmation prompt
  -force                Force check (ignore cache)

Environment variables:
  DISTILL_CONFIG_DIR        Config directory (default ~/.distill)
  DISTILL_OUTPUT_DIR        Output directory
  DISTILL_LLM_COMMAND       LLM worker command
  DISTILL_TIMEZONE          Timezone for date bucketing
  DISTILL_SINCE_DAYS        Lookback window in days
  DISTILL_CMS_ADMIN_KEY     CMS admin API key (id:secret)
  DISTILL_SCHEDULER_API_KEY Scheduler API key

Configuration is read from ~/.distill/config.json.
`, version)
}

type runFlags struct {
	dates       []string
	force       bool
	skipPublish bool
	verbose     bool
}

func parseRunFlags(name string, args []string) (config.Config, runFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: distill %s [flags]\n\nFlags:\n", name)
		fs.PrintDefaults()
	}
	config.RegisterRunFlags(fs)
	dates := fs.String("date", "", "Only these dates, comma-separated (YYYY-MM-DD)")
	force := fs.Bool("force", false, "Regenerate even when caches say current")
	skipPublish := fs.Bool("skip-publish", false, "Generate posts without delivering them")
	verbose := fs.Bool("verbose", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fatal("loading config: %v", err)
	}

	rf := runFlags{
		force:       *force,
		skipPublish: *skipPublish,
		verbose:     *verbose,
	}
	if *dates != "" {
		for _, d := range strings.Split(*dates, ",") {
			if d = strings.TrimSpace(d); d != "" {
				rf.dates = append(rf.dates, d)
			}
		}
	}
	return cfg, rf
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func runPipeline(args []string) {
	cfg, rf := parseRunFlags("run", args)
	log := setupLogger(rf.verbose)

	p, err := pipeline.New(cfg, log)
	if err != nil {
		fatal("%v", err)
	}
	p.Force = rf.force

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := p.Run(ctx, pipeline.Options{
		Dates:       rf.dates,
		SkipPublish: rf.skipPublish,
	})
	if err != nil {
		fatal("%v", err)
	}
	fmt.Print(report.Render())
}

func runWatch(args []string) {
	cfg, rf := parseRunFlags("watch", args)
	log := setupLogger(rf.verbose)

	p, err := pipeline.New(cfg, log)
	if err != nil {
		fatal("%v", err)
	}
	p.Force = rf.force
	opts := pipeline.Options{SkipPublish: rf.skipPublish}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce := func() {
		report, err := p.Run(ctx, opts)
		if err != nil {
			log.Error("run failed", "error", err)
			return
		}
		fmt.Print(report.Render())
	}
	runOnce()

	// Coalesce change bursts into at most one queued re-run.
	changes := make(chan struct{}, 1)
	watcher, err := pipeline.NewWatcher(watcherDebounce, log, func(paths []string) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		fatal("starting watcher: %v", err)
	}
	defer watcher.Stop()

	watched := 0
	for _, root := range sessionRoots(cfg) {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		n, _, err := watcher.WatchRecursive(root)
		if err != nil {
			log.Warn("watching root", "root", root, "error", err)
		}
		watched += n
	}
	if watched == 0 {
		fatal("no session directories to watch")
	}
	watcher.Start()
	log.Info("watching for session changes",
		"dirs", watched, "debounce", watcherDebounce)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopping.")
			return
		case <-changes:
			runOnce()
		}
	}
}

func sessionRoots(cfg config.Config) []string {
	var roots []string
	roots = append(roots, cfg.Sessions.ChatLogDirs...)
	roots = append(roots, cfg.Sessions.RolloutDirs...)
	roots = append(roots, cfg.Sessions.MultiAgentDirs...)
	return roots
}

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	tags := fs.String("tags", "", "Comma-separated tags for the new seed")
	list := fs.Bool("list", false, "List seeds instead of adding")
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags: %v", err)
	}

	st := mustOpenStore()
	seeds, err := st.LoadSeeds()
	if err != nil {
		fatal("loading seeds: %v", err)
	}

	if *list {
		for _, s := range seeds.All() {
			state := "unused"
			if s.Used {
				state = "used in " + s.UsedIn
			}
			fmt.Printf("%s  %-40s [%s]\n", s.ID, s.Text, state)
		}
		return
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fatal("seed text required (or -list)")
	}
	var tagList []string
	if *tags != "" {
		for _, t := range strings.Split(*tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tagList = append(tagList, t)
			}
		}
	}
	seed, err := seeds.Add(text, tagList)
	if err != nil {
		fatal("adding seed: %v", err)
	}
	fmt.Printf("Added seed %s\n", seed.ID)
}

func runNote(args []string) {
	fs := flag.NewFlagSet("note", flag.ExitOnError)
	week := fs.String("week", "", "Target an ISO week (e.g. 2026-W06)")
	theme := fs.String("theme", "", "Target a theme slug")
	list := fs.Bool("list", false, "List notes instead of adding")
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags: %v", err)
	}
	if *week != "" && *theme != "" {
		fatal("-week and -theme are mutually exclusive")
	}

	st := mustOpenStore()
	notes, err := st.LoadNotes()
	if err != nil {
		fatal("loading notes: %v", err)
	}

	if *list {
		for _, n := range notes.All() {
			target := n.Target
			if target == "" {
				target = "global"
			}
			state := "active"
			if n.Used {
				state = "used"
			}
			fmt.Printf("%s  %-40s [%s, %s]\n", n.ID, n.Text, target, state)
		}
		return
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fatal("note text required (or -list)")
	}
	target := ""
	if *week != "" {
		target = "week:" + *week
	} else if *theme != "" {
		target = "theme:" + *theme
	}
	note, err := notes.Add(text, target)
	if err != nil {
		fatal("adding note: %v", err)
	}
	fmt.Printf("Added note %s\n", note.ID)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags: %v", err)
	}

	st := mustOpenStore()

	mem, err := st.LoadMemory()
	if err != nil {
		fatal("loading memory: %v", err)
	}
	pending, err := st.LoadPendingFlags()
	if err != nil {
		fatal("loading pending flags: %v", err)
	}
	seeds, err := st.LoadSeeds()
	if err != nil {
		fatal("loading seeds: %v", err)
	}
	notes, err := st.LoadNotes()
	if err != nil {
		fatal("loading notes: %v", err)
	}

	fmt.Printf("Store: %s\n", st.Root())
	fmt.Printf("Journal days remembered: %d\n", len(mem.Entries))
	fmt.Printf("Posts published: %d\n", len(mem.Published))

	if threads := mem.Threads; len(threads) > 0 {
		fmt.Println("\nThreads:")
		for _, t := range threads {
			fmt.Printf("  %-30s %d mentions, last %s (%s)\n",
				t.Name, t.MentionCount, t.LastSeen, t.Status)
		}
	}

	if dates := pending.Dates(); len(dates) > 0 {
		fmt.Printf("\nPending dates needing attention: %s\n",
			strings.Join(dates, ", "))
	}
	if unused := seeds.Unused(); len(unused) > 0 {
		fmt.Printf("\nUnused seeds: %d (distill seed -list)\n", len(unused))
	}
	if active := notes.Active(""); len(active) > 0 {
		fmt.Printf("Active global notes: %d (distill note -list)\n", len(active))
	}
}

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	check := fs.Bool("check", false, "Check for updates without installing")
	yes := fs.Bool("yes", false, "Install without confirmation prompt")
	force := fs.Bool("force", false, "Force check (ignore cache)")
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags: %v", err)
	}

	cfg, err := config.LoadMinimal()
	if err != nil {
		fatal("loading config: %v", err)
	}
	checker := update.NewChecker(cfg.ConfigDir)

	up, err := checker.Check(version, *force)
	if err != nil {
		fatal("%v", err)
	}
	if up == nil {
		fmt.Printf("distill %s is up to date.\n", version)
		return
	}

	if update.IsDevBuild(version) {
		fmt.Printf("Running dev build (%s). Latest release: %s\n",
			up.Current, up.Latest)
	} else {
		fmt.Printf("Update available: %s -> %s\n", up.Current, up.Latest)
	}
	if *check {
		return
	}

	if !*yes {
		fmt.Print("Install update? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Update cancelled.")
			return
		}
	}

	err = up.Install(func(downloaded, total int64) {
		if total > 0 {
			fmt.Printf("\r  %s / %s (%.0f%%)",
				update.FormatSize(downloaded), update.FormatSize(total),
				float64(downloaded)/float64(total)*100)
		}
	})
	if err != nil {
		fmt.Println()
		fatal("update failed: %v", err)
	}
	fmt.Println("\nUpdate complete.")
}

func mustOpenStore() *store.Store {
	cfg, err := config.LoadMinimal()
	if err != nil {
		fatal("loading config: %v", err)
	}
	st, err := store.New(cfg.Output.Directory)
	if err != nil {
		fatal("opening store: %v", err)
	}
	return st
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "distill: "+format+"\n", args...)
	os.Exit(1)
}
