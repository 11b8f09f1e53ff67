package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

const (
	feedFetchTimeout  = 30 * time.Second
	feedBodyMaxLen    = 20 * 1024
	feedExcerptMaxLen = 300

	// maxItemsPerFeed caps a single feed's contribution per run.
	maxItemsPerFeed = 50
)

// rssDoc covers RSS 2.0.
type rssDoc struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	Desc    string `xml:"description"`
	Content string `xml:"encoded"` // content:encoded
	Author  string `xml:"creator"` // dc:creator
	PubDate string `xml:"pubDate"`
}

// atomDoc covers Atom feeds.
type atomDoc struct {
	XMLName xml.Name `xml:"feed"`
	Title   string   `xml:"title"`
	Entries []struct {
		Title   string     `xml:"title"`
		Links   []atomLink `xml:"link"`
		ID      string     `xml:"id"`
		Summary string     `xml:"summary"`
		Content string     `xml:"content"`
		Author  struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

type atomLink struct {
	XMLName xml.Name `xml:"link"`
	Rel     string   `xml:"rel,attr"`
	Href    string   `xml:"href,attr"`
}

// FetchFeed retrieves a feed by HTTP URL or local file path and
// parses it. Entries published before since are dropped.
func FetchFeed(
	ctx context.Context, url string, source model.Source, since time.Time,
) ([]*model.ContentItem, []Diagnostic, error) {
	raw, err := readFeed(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return ParseFeed(raw, url, source, since)
}

func readFeed(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		raw, err := os.ReadFile(url)
		if err != nil {
			return nil, fmt.Errorf("reading feed file %s: %w", url, err)
		}
		return raw, nil
	}

	ctx, cancel := context.WithTimeout(ctx, feedFetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("reading feed %s: %w", url, err)
	}
	return raw, nil
}

// ParseFeed decodes an RSS 2.0 or Atom document into content items.
// Malformed entries are skipped with a diagnostic.
func ParseFeed(
	raw []byte, feedURL string, source model.Source, since time.Time,
) ([]*model.ContentItem, []Diagnostic, error) {
	var rss rssDoc
	if err := xml.Unmarshal(raw, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return rssItems(rss, feedURL, source, since)
	}

	var atom atomDoc
	if err := xml.Unmarshal(raw, &atom); err != nil || len(atom.Entries) == 0 {
		if err == nil {
			err = fmt.Errorf("no entries")
		}
		return nil, nil, fmt.Errorf("decoding feed %s: %w", feedURL, err)
	}
	return atomItems(atom, feedURL, source, since)
}

func rssItems(
	doc rssDoc, feedURL string, source model.Source, since time.Time,
) ([]*model.ContentItem, []Diagnostic, error) {
	var (
		items []*model.ContentItem
		diags []Diagnostic
	)
	for _, it := range doc.Channel.Items {
		if it.Link == "" && it.Title == "" {
			diags = append(diags, Diagnostic{
				Source: source, Path: feedURL,
				Msg: "feed entry without link or title",
			})
			continue
		}
		published := timeutil.ParseTimestamp(it.PubDate)
		if !since.IsZero() && !published.IsZero() && published.Before(since) {
			continue
		}
		body := it.Content
		if body == "" {
			body = it.Desc
		}
		body = StripHTML(body)
		items = append(items, &model.ContentItem{
			Source:         source,
			ContentType:    model.TypeArticle,
			SourceNativeID: it.GUID,
			Title:          StripHTML(it.Title),
			Body:           truncate(body, feedBodyMaxLen),
			Excerpt:        truncate(body, feedExcerptMaxLen),
			URL:            it.Link,
			Author:         it.Author,
			SiteName:       doc.Channel.Title,
			PublishedAt:    published,
		})
		if len(items) >= maxItemsPerFeed {
			break
		}
	}
	return items, diags, nil
}

func atomItems(
	doc atomDoc, feedURL string, source model.Source, since time.Time,
) ([]*model.ContentItem, []Diagnostic, error) {
	var (
		items []*model.ContentItem
		diags []Diagnostic
	)
	for _, e := range doc.Entries {
		link := atomEntryLink(e.Links)
		if link == "" && e.Title == "" {
			diags = append(diags, Diagnostic{
				Source: source, Path: feedURL,
				Msg: "feed entry without link or title",
			})
			continue
		}
		published := timeutil.ParseTimestamp(e.Published)
		if published.IsZero() {
			published = timeutil.ParseTimestamp(e.Updated)
		}
		if !since.IsZero() && !published.IsZero() && published.Before(since) {
			continue
		}
		body := e.Content
		if body == "" {
			body = e.Summary
		}
		body = StripHTML(body)
		items = append(items, &model.ContentItem{
			Source:         source,
			ContentType:    model.TypeArticle,
			SourceNativeID: e.ID,
			Title:          StripHTML(e.Title),
			Body:           truncate(body, feedBodyMaxLen),
			Excerpt:        truncate(body, feedExcerptMaxLen),
			URL:            link,
			Author:         e.Author.Name,
			SiteName:       doc.Title,
			PublishedAt:    published,
		})
		if len(items) >= maxItemsPerFeed {
			break
		}
	}
	return items, diags, nil
}

func atomEntryLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// StripHTML removes markup and collapses whitespace, leaving plain
// text suitable for prompt context.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	).Replace(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
