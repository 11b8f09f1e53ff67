package blog

import (
	"fmt"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/memory"
	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

const (
	// maxReadingListItems caps how many items reach the prompt; the
	// total count still reports everything read.
	maxReadingListItems = 10

	readingListExcerptLen = 200
	maxReadingListThemes  = 10
	maxReadingListTags    = 5
)

// ReadingListContext is everything a weekly reading-list roundup
// draws on: the archived external items of one ISO week plus the
// themes that week's journals surfaced.
type ReadingListContext struct {
	Week       string
	Start, End string // ISO dates, inclusive
	Items      []model.ContentItem
	TotalRead  int // before the item cap
	Themes     []string
}

// Slug returns the canonical reading-list slug.
func (rc *ReadingListContext) Slug() string {
	return "reading-list-" + rc.Week
}

// SourceDates returns the distinct dates the items were read on.
func (rc *ReadingListContext) SourceDates() []string {
	var dates []string
	for _, it := range rc.Items {
		dates = append(dates, itemDateKey(it))
	}
	dates = model.UniqueStrings(dates)
	return dates
}

// BuildReadingListContext assembles the roundup context for one ISO
// week from the content index. The second return is false when the
// week has no archived items.
func BuildReadingListContext(st *store.Store, mem *memory.UnifiedMemory, week string) (*ReadingListContext, bool, error) {
	year, weekNum, err := timeutil.ParseISOWeek(week)
	if err != nil {
		return nil, false, fmt.Errorf("reading-list context: %w", err)
	}
	start, end := timeutil.WeekBounds(year, weekNum, time.UTC)
	startKey := timeutil.DateKey(start, time.UTC)
	endKey := timeutil.DateKey(end, time.UTC)

	index, err := st.OpenContentIndex()
	if err != nil {
		return nil, false, err
	}
	defer index.Close()
	items, err := index.ItemsBetween(startKey, endKey)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, nil
	}

	rc := &ReadingListContext{
		Week:      week,
		Start:     startKey,
		End:       endKey,
		Items:     items,
		TotalRead: len(items),
	}
	if len(rc.Items) > maxReadingListItems {
		rc.Items = rc.Items[:maxReadingListItems]
	}

	var themes []string
	for _, e := range mem.Entries {
		if e.Date >= startKey && e.Date <= endKey {
			themes = append(themes, e.Themes...)
		}
	}
	themes = model.UniqueStrings(themes)
	if len(themes) > maxReadingListThemes {
		themes = themes[:maxReadingListThemes]
	}
	rc.Themes = themes
	return rc, true, nil
}

// BuildReadingListPrompt renders the prompt for one week's roundup of
// external reading.
func BuildReadingListPrompt(rc *ReadingListContext, in promptInputs) string {
	var b strings.Builder
	b.WriteString("You are writing a weekly reading-list blog post from " +
		"the articles below. Group related pieces, say what made each " +
		"worth the time, and connect them to the week's work where the " +
		"themes line up. Write for other practitioners, first person, " +
		"concrete.\n\n")
	writeCommonHeader(&b, in)

	fmt.Fprintf(&b, "## Reading List: Week %s (%s to %s)\n\n", rc.Week, rc.Start, rc.End)
	fmt.Fprintf(&b, "Total articles read: %d\n\n", rc.TotalRead)

	for i, it := range rc.Items {
		fmt.Fprintf(&b, "### %d. %s%s\n\n", i+1, it.Title, itemAttribution(it))
		if ex := clipExcerpt(it.Excerpt); ex != "" {
			fmt.Fprintf(&b, "> %s\n\n", ex)
		}
		if it.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", it.URL)
		}
		if tags := it.Tags; len(tags) > 0 {
			if len(tags) > maxReadingListTags {
				tags = tags[:maxReadingListTags]
			}
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
		}
		b.WriteString("\n")
	}

	if len(rc.Themes) > 0 {
		fmt.Fprintf(&b, "Weekly themes: %s\n\n", strings.Join(rc.Themes, ", "))
	}
	writeCommonFooter(&b, in)
	return b.String()
}

func itemAttribution(it model.ContentItem) string {
	switch {
	case it.Author != "" && it.SiteName != "":
		return fmt.Sprintf(" by %s (%s)", it.Author, it.SiteName)
	case it.Author != "":
		return " by " + it.Author
	case it.SiteName != "":
		return fmt.Sprintf(" (%s)", it.SiteName)
	}
	return ""
}

func clipExcerpt(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) > readingListExcerptLen {
		s = s[:readingListExcerptLen] + "..."
	}
	return s
}

func itemDateKey(it model.ContentItem) string {
	ts := it.PublishedAt
	if ts.IsZero() {
		ts = it.IngestedAt
	}
	return timeutil.DateKey(ts, time.UTC)
}
