package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distillpress/distill/internal/model"
)

const blogMemoryFilename = ".blog-memory.json"

// BlogPostSummary is the non-repetition record of one published
// post: the key points and concrete examples it used, which future
// posts must avoid recycling.
type BlogPostSummary struct {
	Slug               string   `json:"slug"`
	Title              string   `json:"title"`
	PostType           string   `json:"post_type"`
	Date               string   `json:"date"`
	KeyPoints          []string `json:"key_points,omitempty"`
	ThemesCovered      []string `json:"themes_covered,omitempty"`
	ExamplesUsed       []string `json:"examples_used,omitempty"`
	PlatformsPublished []string `json:"platforms_published,omitempty"`
}

// BlogMemory is the rolling record of published blog content.
type BlogMemory struct {
	store *Store
	Posts []BlogPostSummary `json:"posts"`
}

// LoadBlogMemory reads the blog memory, returning an empty memory
// when none exists.
func (s *Store) LoadBlogMemory() (*BlogMemory, error) {
	m := &BlogMemory{store: s}
	path := filepath.Join(s.BlogDir(), blogMemoryFilename)
	var onDisk struct {
		Posts []BlogPostSummary `json:"posts"`
	}
	if _, err := s.readJSON(path, &onDisk); err != nil {
		return nil, err
	}
	m.Posts = onDisk.Posts
	return m, nil
}

// AddPost records a post summary, replacing any prior summary with
// the same slug, and persists.
func (m *BlogMemory) AddPost(summary BlogPostSummary) error {
	kept := m.Posts[:0]
	for _, p := range m.Posts {
		if p.Slug != summary.Slug {
			kept = append(kept, p)
		}
	}
	m.Posts = append(kept, summary)
	return m.save()
}

// HasThematicPost reports whether a thematic post already covers the
// theme.
func (m *BlogMemory) HasThematicPost(theme string) bool {
	slug := Slugify(theme)
	for _, p := range m.Posts {
		if p.PostType != string(model.PostThematic) {
			continue
		}
		if p.Slug == slug || containsString(p.ThemesCovered, theme) {
			return true
		}
	}
	return false
}

// AvoidList returns the union of key points and examples from the
// most recent lastN posts, sorted for stable prompting.
func (m *BlogMemory) AvoidList(lastN int) []string {
	posts := append([]BlogPostSummary(nil), m.Posts...)
	sort.Slice(posts, func(i, j int) bool { return posts[i].Date > posts[j].Date })
	if len(posts) > lastN {
		posts = posts[:lastN]
	}
	var avoid []string
	for _, p := range posts {
		avoid = append(avoid, p.KeyPoints...)
		avoid = append(avoid, p.ExamplesUsed...)
	}
	avoid = model.UniqueStrings(avoid)
	sort.Strings(avoid)
	return avoid
}

// IsPublishedTo reports whether slug already went to platform.
func (m *BlogMemory) IsPublishedTo(slug, platform string) bool {
	for _, p := range m.Posts {
		if p.Slug == slug && containsString(p.PlatformsPublished, platform) {
			return true
		}
	}
	return false
}

// MarkPublished adds platform to a post's published set and
// persists.
func (m *BlogMemory) MarkPublished(slug, platform string) error {
	for i := range m.Posts {
		if m.Posts[i].Slug != slug {
			continue
		}
		if containsString(m.Posts[i].PlatformsPublished, platform) {
			return nil
		}
		m.Posts[i].PlatformsPublished = append(m.Posts[i].PlatformsPublished, platform)
		return m.save()
	}
	return fmt.Errorf("marking published: no blog memory for slug %q", slug)
}

// RenderForPrompt renders previous posts and the do-not-reuse list
// as LLM context. Empty when no posts exist.
func (m *BlogMemory) RenderForPrompt() string {
	if len(m.Posts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Previous Blog Posts\n\n")
	posts := append([]BlogPostSummary(nil), m.Posts...)
	sort.Slice(posts, func(i, j int) bool { return posts[i].Date > posts[j].Date })
	for _, p := range posts {
		points := strings.Join(p.KeyPoints, "; ")
		if points == "" {
			points = "no summary"
		}
		fmt.Fprintf(&b, "- %q (%s): %s\n", p.Title, p.Date, points)
	}
	b.WriteString("\n")

	var examples []string
	for _, p := range m.Posts {
		examples = append(examples, p.ExamplesUsed...)
	}
	examples = model.UniqueStrings(examples)
	if len(examples) > 0 {
		sort.Strings(examples)
		b.WriteString("## DO NOT REUSE These Examples\n")
		b.WriteString("The following specific examples, anecdotes, bugs, and" +
			" statistics have already been used in previous posts. Find" +
			" DIFFERENT evidence from the journal entries. Never recycle" +
			" these:\n\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "- %s\n", ex)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *BlogMemory) save() error {
	path := filepath.Join(m.store.BlogDir(), blogMemoryFilename)
	return m.store.writeJSON(path, struct {
		Posts []BlogPostSummary `json:"posts"`
	}{m.Posts})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
