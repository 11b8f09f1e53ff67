package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

// blogMeta is the frontmatter header of a persisted blog post.
type blogMeta struct {
	Slug              string   `yaml:"slug"`
	Title             string   `yaml:"title"`
	PostType          string   `yaml:"post_type"`
	Date              string   `yaml:"date"`
	Themes            []string `yaml:"themes,omitempty"`
	Projects          []string `yaml:"projects,omitempty"`
	SourceDates       []string `yaml:"source_dates,omitempty"`
	RepetitionWarning bool     `yaml:"repetition_warning,omitempty"`
}

// BlogPostPath returns the canonical file path for a post slug.
func (s *Store) BlogPostPath(slug string) string {
	return filepath.Join(s.BlogDir(), slug+".md")
}

// PlatformPostPath returns the per-platform render path for a slug.
func (s *Store) PlatformPostPath(platform, slug string) string {
	return filepath.Join(s.BlogDir(), platform, slug+".md")
}

func encodeBlogPost(post *model.BlogPost) ([]byte, error) {
	meta := blogMeta{
		Slug:              post.Slug,
		Title:             post.Title,
		PostType:          string(post.PostType),
		Date:              timeutil.DateKey(post.Date, time.UTC),
		Themes:            post.Themes,
		Projects:          post.Projects,
		RepetitionWarning: post.RepetitionWarning,
	}
	for _, d := range post.SourceDates {
		meta.SourceDates = append(meta.SourceDates, timeutil.DateKey(d, time.UTC))
	}
	return encodeFrontmatter(meta, post.Body)
}

// WriteBlogPost persists the canonical markdown for a post and
// returns its path.
func (s *Store) WriteBlogPost(post *model.BlogPost) (string, error) {
	doc, err := encodeBlogPost(post)
	if err != nil {
		return "", fmt.Errorf("encoding blog post %s: %w", post.Slug, err)
	}
	path := s.BlogPostPath(post.Slug)
	if err := writeFileAtomic(path, doc, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// StageBlogPost encodes a post into the scratch area; the caller
// commits with CommitScratch after recording state.
func (s *Store) StageBlogPost(post *model.BlogPost) (scratchName, finalPath string, err error) {
	doc, err := encodeBlogPost(post)
	if err != nil {
		return "", "", fmt.Errorf("encoding blog post %s: %w", post.Slug, err)
	}
	name := post.Slug + ".md"
	if err := s.WriteScratch(name, doc); err != nil {
		return "", "", err
	}
	return name, s.BlogPostPath(post.Slug), nil
}

// ReadBlogPost loads the canonical post for a slug. The second return
// is false when none exists.
func (s *Store) ReadBlogPost(slug string) (*model.BlogPost, bool, error) {
	raw, err := os.ReadFile(s.BlogPostPath(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading blog post %s: %w", slug, err)
	}
	var meta blogMeta
	body, err := decodeFrontmatter(raw, &meta)
	if err != nil {
		return nil, false, fmt.Errorf("%w: blog post %s: %v", ErrCorrupt, slug, err)
	}
	post := &model.BlogPost{
		Slug:              meta.Slug,
		Title:             meta.Title,
		PostType:          model.PostType(meta.PostType),
		Themes:            meta.Themes,
		Projects:          meta.Projects,
		RepetitionWarning: meta.RepetitionWarning,
		Body:              body,
	}
	if meta.Slug == "" {
		post.Slug = slug
	}
	if meta.Date != "" {
		date, err := timeutil.ParseDate(meta.Date, time.UTC)
		if err != nil {
			return nil, false, fmt.Errorf("%w: blog post %s: %v", ErrCorrupt, slug, err)
		}
		post.Date = date
	}
	for _, d := range meta.SourceDates {
		date, err := timeutil.ParseDate(d, time.UTC)
		if err != nil {
			return nil, false, fmt.Errorf("%w: blog post %s: %v", ErrCorrupt, slug, err)
		}
		post.SourceDates = append(post.SourceDates, date)
	}
	return post, true, nil
}

// WritePlatformPost persists one platform's rendered payload under
// blog/<platform>/.
func (s *Store) WritePlatformPost(platform, slug string, rendered []byte) (string, error) {
	path := s.PlatformPostPath(platform, slug)
	if err := writeFileAtomic(path, rendered, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
