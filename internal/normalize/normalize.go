// Package normalize merges parser outputs into the canonical
// deduplicated stream: stable id derivation, duplicate folding, and
// calendar-date bucketing in the configured timezone.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

// idLen is the hex length of derived ids.
const idLen = 16

// bodyPrefixLen is how much of the body participates in the
// composite id.
const bodyPrefixLen = 512

// DeriveID computes the stable id for an item. Priority: the
// source's own native id, then the normalized URL, then a composite
// of source, title, date, and body prefix. Re-ingesting the same
// record always yields the same id.
func DeriveID(it *model.ContentItem) string {
	if it.SourceNativeID != "" {
		return hashID(string(it.Source) + "|" + it.SourceNativeID)
	}
	if it.URL != "" {
		return hashID("url|" + NormalizeURL(it.URL))
	}
	date := it.PublishedAt
	if date.IsZero() {
		date = it.IngestedAt
	}
	body := it.Body
	if len(body) > bodyPrefixLen {
		body = body[:bodyPrefixLen]
	}
	return hashID(strings.Join([]string{
		string(it.Source), it.Title, timeutil.DateKey(date, time.UTC), body,
	}, "|"))
}

func hashID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:idLen]
}

// trackingParams are query parameters stripped during URL
// normalization so the same article reached via different campaigns
// dedupes to one item.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term",
	"utm_content", "fbclid", "gclid", "ref",
}

// NormalizeURL canonicalizes a URL for identity purposes: lowercase
// scheme and host, no fragment, no tracking parameters, no trailing
// slash. Unparseable URLs are returned trimmed but otherwise as-is.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// DedupItems folds items with the same derived id. The first
// occurrence wins for IngestedAt; later occurrences win for mutable
// metadata (title, body, tags, topics). Items missing an id get one
// derived here. First-seen order is preserved.
func DedupItems(items []*model.ContentItem) []*model.ContentItem {
	byID := make(map[string]*model.ContentItem, len(items))
	var out []*model.ContentItem
	for _, it := range items {
		if it.ID == "" {
			it.ID = DeriveID(it)
		}
		prev, ok := byID[it.ID]
		if !ok {
			byID[it.ID] = it
			out = append(out, it)
			continue
		}
		mergeItem(prev, it)
	}
	return out
}

// DedupSessions folds sessions the same way, keyed by the embedded
// item id.
func DedupSessions(sessions []*model.Session) []*model.Session {
	byID := make(map[string]*model.Session, len(sessions))
	var out []*model.Session
	for _, s := range sessions {
		if s.ID == "" {
			s.ID = DeriveID(&s.ContentItem)
		}
		prev, ok := byID[s.ID]
		if !ok {
			byID[s.ID] = s
			out = append(out, s)
			continue
		}
		mergeItem(&prev.ContentItem, &s.ContentItem)
	}
	return out
}

// mergeItem applies the duplicate policy: last write wins on mutable
// metadata, first write wins on IngestedAt.
func mergeItem(dst, src *model.ContentItem) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Body != "" {
		dst.Body = src.Body
	}
	if src.Excerpt != "" {
		dst.Excerpt = src.Excerpt
	}
	if src.Author != "" {
		dst.Author = src.Author
	}
	if src.SiteName != "" {
		dst.SiteName = src.SiteName
	}
	if !src.PublishedAt.IsZero() {
		dst.PublishedAt = src.PublishedAt
	}
	dst.Tags = model.UniqueStrings(append(dst.Tags, src.Tags...))
	sort.Strings(dst.Tags)
	dst.Topics = model.UniqueStrings(append(dst.Topics, src.Topics...))
	for k, v := range src.Metadata {
		if dst.Metadata == nil {
			dst.Metadata = map[string]string{}
		}
		dst.Metadata[k] = v
	}
	// dst.IngestedAt deliberately untouched.
}

// ItemDate picks the bucketing timestamp for an item: published
// first, ingested as the fallback.
func ItemDate(it *model.ContentItem) time.Time {
	if !it.PublishedAt.IsZero() {
		return it.PublishedAt
	}
	return it.IngestedAt
}

// SessionDate picks the bucketing timestamp for a session: start
// time first, ingested as the fallback.
func SessionDate(s *model.Session) time.Time {
	if !s.StartedAt.IsZero() {
		return s.StartedAt
	}
	return ItemDate(&s.ContentItem)
}

// BucketItems groups items by calendar date in loc. Keys are ISO
// dates ("2026-02-08").
func BucketItems(items []*model.ContentItem, loc *time.Location) map[string][]*model.ContentItem {
	buckets := make(map[string][]*model.ContentItem)
	for _, it := range items {
		key := timeutil.DateKey(ItemDate(it), loc)
		buckets[key] = append(buckets[key], it)
	}
	return buckets
}

// BucketSessions groups sessions by calendar date in loc.
func BucketSessions(sessions []*model.Session, loc *time.Location) map[string][]*model.Session {
	buckets := make(map[string][]*model.Session)
	for _, s := range sessions {
		key := timeutil.DateKey(SessionDate(s), loc)
		buckets[key] = append(buckets[key], s)
	}
	return buckets
}
