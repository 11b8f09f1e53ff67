package publish

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/store"
	"github.com/distillpress/distill/internal/timeutil"
)

// localDeliverer writes a rendered payload under blog/<platform>/ in
// the output tree. Every local-dialect platform embeds it.
type localDeliverer struct {
	store *store.Store
}

func (d localDeliverer) Deliver(ctx context.Context, payload Payload) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	path, err := d.store.WritePlatformPost(payload.Platform, strings.TrimSuffix(payload.Filename, ".md"), payload.Body)
	if err != nil {
		return Receipt{}, fmt.Errorf("delivering to %s: %w", payload.Platform, err)
	}
	return Receipt{Platform: payload.Platform, Location: path, DeliveredAt: time.Now()}, nil
}

// VaultPublisher renders the personal-vault dialect: YAML frontmatter
// with tags plus wiki-links for themes and projects.
type VaultPublisher struct {
	localDeliverer
}

// NewVaultPublisher returns the vault adapter delivering into st.
func NewVaultPublisher(st *store.Store) *VaultPublisher {
	return &VaultPublisher{localDeliverer{store: st}}
}

func (p *VaultPublisher) Name() string { return "vault" }

func (p *VaultPublisher) Render(post *model.BlogPost) (Payload, error) {
	var b bytes.Buffer
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", post.Title)
	fmt.Fprintf(&b, "date: %s\n", timeutil.DateKey(post.Date, time.UTC))
	fmt.Fprintf(&b, "type: %s\n", post.PostType)
	if len(post.Themes) > 0 {
		b.WriteString("tags:\n")
		for _, theme := range post.Themes {
			fmt.Fprintf(&b, "  - %s\n", store.Slugify(theme))
		}
	}
	b.WriteString("---\n\n")
	b.WriteString(post.Body)
	b.WriteString("\n\n## Related\n\n")
	for _, theme := range post.Themes {
		fmt.Fprintf(&b, "- [[%s]]\n", theme)
	}
	for _, proj := range post.Projects {
		fmt.Fprintf(&b, "- [[%s]]\n", proj)
	}
	return Payload{Platform: p.Name(), Filename: post.Slug + ".md", Body: b.Bytes()}, nil
}

// MarkdownPublisher renders the post body as-is: the plain-markdown
// dialect for static site generators.
type MarkdownPublisher struct {
	localDeliverer
}

// NewMarkdownPublisher returns the plain-markdown adapter.
func NewMarkdownPublisher(st *store.Store) *MarkdownPublisher {
	return &MarkdownPublisher{localDeliverer{store: st}}
}

func (p *MarkdownPublisher) Name() string { return "markdown" }

func (p *MarkdownPublisher) Render(post *model.BlogPost) (Payload, error) {
	return Payload{Platform: p.Name(), Filename: post.Slug + ".md", Body: []byte(post.Body)}, nil
}

// ThreadPublisher renders the short-segment dialect: numbered posts
// of at most threadSegmentLen characters each.
type ThreadPublisher struct {
	localDeliverer
}

// NewThreadPublisher returns the thread-format adapter.
func NewThreadPublisher(st *store.Store) *ThreadPublisher {
	return &ThreadPublisher{localDeliverer{store: st}}
}

func (p *ThreadPublisher) Name() string { return "thread" }

const threadSegmentLen = 280

func (p *ThreadPublisher) Render(post *model.BlogPost) (Payload, error) {
	segments := splitThread(post, threadSegmentLen)
	var b bytes.Buffer
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(seg)
	}
	return Payload{Platform: p.Name(), Filename: post.Slug + ".md", Body: b.Bytes()}, nil
}

// splitThread packs the post's prose into numbered segments, breaking
// on sentence boundaries and never exceeding limit characters
// including the "n/ " prefix.
func splitThread(post *model.BlogPost, limit int) []string {
	sentences := splitSentences(post.Title + ". " + flattenMarkdown(post.Body))
	var raw []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			raw = append(raw, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	// Leave room for a "99/ " prefix.
	budget := limit - 4
	for _, s := range sentences {
		if len(s) > budget {
			s = s[:budget]
		}
		if current.Len()+len(s)+1 > budget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	flush()

	out := make([]string, len(raw))
	for i, seg := range raw {
		out[i] = fmt.Sprintf("%d/ %s", i+1, seg)
	}
	return out
}

var sentenceSplitRe = regexp.MustCompile(`([.!?])\s+`)

func splitSentences(text string) []string {
	marked := sentenceSplitRe.ReplaceAllString(text, "$1\x00")
	var out []string
	for _, s := range strings.Split(marked, "\x00") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var markdownChromeRe = regexp.MustCompile("(?m)^#+\\s+|[*_`]")

// flattenMarkdown strips headings and inline markup for prose-only
// dialects.
func flattenMarkdown(body string) string {
	var lines []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		line = markdownChromeRe.ReplaceAllString(line, "")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return strings.Join(lines, " ")
}

// ProfessionalPublisher renders the professional-network dialect: a
// hook line, condensed prose, and theme hashtags, no headings.
type ProfessionalPublisher struct {
	localDeliverer
}

// NewProfessionalPublisher returns the professional-post adapter.
func NewProfessionalPublisher(st *store.Store) *ProfessionalPublisher {
	return &ProfessionalPublisher{localDeliverer{store: st}}
}

func (p *ProfessionalPublisher) Name() string { return "professional" }

const professionalMaxChars = 2800

func (p *ProfessionalPublisher) Render(post *model.BlogPost) (Payload, error) {
	var b bytes.Buffer
	b.WriteString(post.Title)
	b.WriteString("\n\n")
	prose := flattenMarkdown(post.Body)
	if len(prose) > professionalMaxChars {
		prose = prose[:professionalMaxChars]
		if i := strings.LastIndex(prose, ". "); i > 0 {
			prose = prose[:i+1]
		}
	}
	b.WriteString(prose)
	if len(post.Themes) > 0 {
		b.WriteString("\n\n")
		for i, theme := range post.Themes {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("#" + strings.ReplaceAll(store.Slugify(theme), "-", ""))
		}
	}
	return Payload{Platform: p.Name(), Filename: post.Slug + ".md", Body: b.Bytes()}, nil
}

// DiscussionPublisher renders the discussion-forum dialect: markdown
// body with an explicit opening question to seed replies.
type DiscussionPublisher struct {
	localDeliverer
}

// NewDiscussionPublisher returns the discussion-post adapter.
func NewDiscussionPublisher(st *store.Store) *DiscussionPublisher {
	return &DiscussionPublisher{localDeliverer{store: st}}
}

func (p *DiscussionPublisher) Name() string { return "discussion" }

func (p *DiscussionPublisher) Render(post *model.BlogPost) (Payload, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "**%s**\n\n", post.Title)
	b.WriteString(stripTitle(post.Body))
	b.WriteString("\n\n---\n\nCurious how others handle this — what has worked for you?\n")
	return Payload{Platform: p.Name(), Filename: post.Slug + ".md", Body: b.Bytes()}, nil
}

func stripTitle(body string) string {
	if strings.HasPrefix(body, "# ") {
		if _, rest, ok := strings.Cut(body, "\n"); ok {
			return strings.TrimLeft(rest, "\n")
		}
		return ""
	}
	return body
}
