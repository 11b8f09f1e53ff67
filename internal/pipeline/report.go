package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DeliveryCount tallies one platform's outcomes for a run.
type DeliveryCount struct {
	Succeeded int
	Failed    int
}

// Report is the structured end-of-run summary.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	// Ingestion.
	IngestedBySource map[string]int
	ParseErrors      int
	OrphansCleaned   int

	// Journals.
	JournalsGenerated int
	JournalsSkipped   int
	JournalsFailed    int

	// Blog posts.
	PostsGenerated int
	PostsSkipped   int
	PostsFailed    int

	// Publishing.
	Deliveries map[string]*DeliveryCount

	// Dates whose synthesis exhausted retries and needs a rerun.
	PendingDates []string
}

func newReport() *Report {
	return &Report{
		StartedAt:        time.Now(),
		IngestedBySource: map[string]int{},
		Deliveries:       map[string]*DeliveryCount{},
	}
}

func (r *Report) recordIngested(source string, n int) {
	r.IngestedBySource[source] += n
}

func (r *Report) recordDelivery(platform string, ok bool) {
	dc := r.Deliveries[platform]
	if dc == nil {
		dc = &DeliveryCount{}
		r.Deliveries[platform] = dc
	}
	if ok {
		dc.Succeeded++
	} else {
		dc.Failed++
	}
}

// Render formats the report for terminal output.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run finished in %s\n",
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if len(r.IngestedBySource) > 0 {
		b.WriteString("\nIngested:\n")
		sources := make([]string, 0, len(r.IngestedBySource))
		for s := range r.IngestedBySource {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		for _, s := range sources {
			fmt.Fprintf(&b, "  %-12s %d\n", s, r.IngestedBySource[s])
		}
	}
	if r.ParseErrors > 0 {
		fmt.Fprintf(&b, "  parse errors: %d (records dropped)\n", r.ParseErrors)
	}

	fmt.Fprintf(&b, "\nJournals: %d generated, %d up to date",
		r.JournalsGenerated, r.JournalsSkipped)
	if r.JournalsFailed > 0 {
		fmt.Fprintf(&b, ", %d failed", r.JournalsFailed)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "Blog posts: %d generated, %d up to date",
		r.PostsGenerated, r.PostsSkipped)
	if r.PostsFailed > 0 {
		fmt.Fprintf(&b, ", %d failed", r.PostsFailed)
	}
	b.WriteByte('\n')

	if len(r.Deliveries) > 0 {
		b.WriteString("\nDeliveries:\n")
		platforms := make([]string, 0, len(r.Deliveries))
		for p := range r.Deliveries {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)
		for _, p := range platforms {
			dc := r.Deliveries[p]
			fmt.Fprintf(&b, "  %-12s %d ok, %d failed\n", p, dc.Succeeded, dc.Failed)
		}
	}

	if len(r.PendingDates) > 0 {
		fmt.Fprintf(&b, "\nPending dates needing attention: %s\n",
			strings.Join(r.PendingDates, ", "))
	}
	return b.String()
}
