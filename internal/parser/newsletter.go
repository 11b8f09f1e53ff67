package parser

import (
	"context"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
)

// FetchNewsletter pulls a newsletter archive through its feed
// endpoint. Substack-style blogs expose the full post bodies at
// <blog>/feed, so the generic feed decoder does the rest; the items
// are attributed to the substack source so dedup and digests can
// tell newsletters from plain RSS subscriptions.
func FetchNewsletter(
	ctx context.Context, blogURL string, since time.Time,
) ([]*model.ContentItem, []Diagnostic, error) {
	feedURL := blogURL
	if strings.HasPrefix(blogURL, "http://") || strings.HasPrefix(blogURL, "https://") {
		feedURL = strings.TrimRight(blogURL, "/") + "/feed"
	}
	return FetchFeed(ctx, feedURL, model.SourceSubstack, since)
}
