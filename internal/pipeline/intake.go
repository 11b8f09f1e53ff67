package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/normalize"
	"github.com/distillpress/distill/internal/parser"
)

// ingestIntake pulls the configured external feeds, folds the items
// into the content index, and writes the per-date archive and digest.
// Failures are soft per source; the returned count excludes them.
func (p *Pipeline) ingestIntake(ctx context.Context, since time.Time, report *Report, log *slog.Logger) error {
	cfg := p.Config.Intake
	if !cfg.Enabled {
		return nil
	}
	loc, err := p.Config.Location()
	if err != nil {
		return err
	}

	var items []*model.ContentItem
	collect := func(source string, got []*model.ContentItem, diags []parser.Diagnostic, err error) {
		if err != nil {
			report.ParseErrors++
			log.Warn("intake source unavailable", "source", source, "error", err)
			return
		}
		report.ParseErrors += len(diags)
		for _, d := range diags {
			log.Debug("intake record dropped", "path", d.Path, "reason", d.Msg)
		}
		items = append(items, got...)
		report.recordIngested(source, len(got))
	}

	for _, url := range cfg.Feeds {
		got, diags, err := parser.FetchFeed(ctx, url, model.SourceRSS, since)
		collect(string(model.SourceRSS), got, diags, err)
	}
	for _, url := range cfg.NewsletterFeeds {
		got, diags, err := parser.FetchNewsletter(ctx, url, since)
		collect(string(model.SourceSubstack), got, diags, err)
	}
	if cfg.BrowserHistoryPath != "" {
		got, diags, err := parser.ParseBrowserHistory(cfg.BrowserHistoryPath, since)
		collect(string(model.SourceBrowser), got, diags, err)
	}

	items = normalize.DedupItems(items)
	if len(items) == 0 {
		return nil
	}

	index, err := p.Store.OpenContentIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	values := make([]model.ContentItem, len(items))
	for i, it := range items {
		values[i] = *it
	}
	if err := index.UpsertItems(values, loc); err != nil {
		return fmt.Errorf("indexing intake items: %w", err)
	}

	for date, dayItems := range normalize.BucketItems(items, loc) {
		dayValues := make([]model.ContentItem, len(dayItems))
		for i, it := range dayItems {
			dayValues[i] = *it
		}
		if _, err := p.Store.WriteIntakeArchive(date, dayValues); err != nil {
			return err
		}
		if _, err := p.Store.WriteDigest(date, renderDigest(date, dayItems)); err != nil {
			return err
		}
	}
	return nil
}

// renderDigest formats one day's external content as markdown,
// grouped by source.
func renderDigest(date string, items []*model.ContentItem) string {
	bySource := map[string][]*model.ContentItem{}
	for _, it := range items {
		bySource[string(it.Source)] = append(bySource[string(it.Source)], it)
	}
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var b strings.Builder
	fmt.Fprintf(&b, "# Reading Digest for %s\n", date)
	for _, source := range sources {
		fmt.Fprintf(&b, "\n## %s\n\n", source)
		group := bySource[source]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Title < group[j].Title
		})
		for _, it := range group {
			title := it.Title
			if title == "" {
				title = "(untitled)"
			}
			if it.URL != "" {
				fmt.Fprintf(&b, "- [%s](%s)", title, it.URL)
			} else {
				fmt.Fprintf(&b, "- %s", title)
			}
			if it.Author != "" {
				fmt.Fprintf(&b, " by %s", it.Author)
			}
			b.WriteByte('\n')
			if it.Excerpt != "" {
				fmt.Fprintf(&b, "  %s\n", strings.TrimSpace(it.Excerpt))
			}
		}
	}
	return b.String()
}
