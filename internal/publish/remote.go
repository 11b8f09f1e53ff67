package publish

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/distillpress/distill/internal/model"
	"github.com/distillpress/distill/internal/timeutil"
)

// CMSPublisher posts markdown to a Ghost-style admin API,
// authenticating with a short-lived JWT signed by the admin key.
type CMSPublisher struct {
	BaseURL  string
	AdminKey string // "<key id>:<hex secret>"
	Client   *http.Client
	now      func() time.Time
}

// NewCMSPublisher returns the CMS adapter for baseURL.
func NewCMSPublisher(baseURL, adminKey string) *CMSPublisher {
	return &CMSPublisher{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		Client:   &http.Client{Timeout: DefaultTimeout},
		now:      time.Now,
	}
}

func (p *CMSPublisher) Name() string { return "cms" }

// cmsPost is the wire shape the admin API expects.
type cmsPost struct {
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Markdown    string   `json:"markdown"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
}

func (p *CMSPublisher) Render(post *model.BlogPost) (Payload, error) {
	body, err := json.Marshal(struct {
		Posts []cmsPost `json:"posts"`
	}{[]cmsPost{{
		Title:       post.Title,
		Slug:        post.Slug,
		Markdown:    stripTitle(post.Body),
		Status:      "draft",
		Tags:        post.Themes,
		PublishedAt: timeutil.Format(post.Date),
	}}})
	if err != nil {
		return Payload{}, fmt.Errorf("encoding cms post %s: %w", post.Slug, err)
	}
	return Payload{Platform: p.Name(), Filename: post.Slug + ".json", Body: body}, nil
}

func (p *CMSPublisher) Deliver(ctx context.Context, payload Payload) (Receipt, error) {
	token, err := p.adminToken()
	if err != nil {
		return Receipt{}, err
	}
	url := p.BaseURL + "/ghost/api/admin/posts/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload.Body))
	if err != nil {
		return Receipt{}, fmt.Errorf("building cms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Ghost "+token)

	resp, err := p.Client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("delivering to cms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode < 500 {
			return Receipt{}, fmt.Errorf("%w: cms status %d: %s", ErrRejected, resp.StatusCode, msg)
		}
		return Receipt{}, fmt.Errorf("cms status %d: %s", resp.StatusCode, msg)
	}
	return Receipt{Platform: p.Name(), Location: url, DeliveredAt: time.Now()}, nil
}

// adminToken builds the 5-minute HMAC-SHA256 JWT the admin API
// requires, keyed by the configured admin key.
func (p *CMSPublisher) adminToken() (string, error) {
	keyID, hexSecret, ok := strings.Cut(p.AdminKey, ":")
	if !ok {
		return "", fmt.Errorf("cms admin key must be id:secret")
	}
	secret, err := hex.DecodeString(hexSecret)
	if err != nil {
		return "", fmt.Errorf("decoding cms admin secret: %w", err)
	}

	enc := func(v any) (string, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return base64.RawURLEncoding.EncodeToString(raw), nil
	}
	header, err := enc(map[string]string{"alg": "HS256", "typ": "JWT", "kid": keyID})
	if err != nil {
		return "", fmt.Errorf("encoding jwt header: %w", err)
	}
	now := p.now().Unix()
	claims, err := enc(map[string]any{
		"iat": now,
		"exp": now + 300,
		"aud": "/admin/",
	})
	if err != nil {
		return "", fmt.Errorf("encoding jwt claims: %w", err)
	}
	signing := header + "." + claims
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signing))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signing + "." + sig, nil
}

// SchedulerPublisher forwards a post to an external social-scheduling
// service as JSON with an API-key header.
type SchedulerPublisher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewSchedulerPublisher returns the scheduler adapter for baseURL.
func NewSchedulerPublisher(baseURL, apiKey string) *SchedulerPublisher {
	return &SchedulerPublisher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: DefaultTimeout},
	}
}

func (p *SchedulerPublisher) Name() string { return "scheduler" }

func (p *SchedulerPublisher) Render(post *model.BlogPost) (Payload, error) {
	body, err := json.Marshal(map[string]any{
		"title":   post.Title,
		"slug":    post.Slug,
		"content": post.Body,
		"type":    string(post.PostType),
		"tags":    post.Themes,
	})
	if err != nil {
		return Payload{}, fmt.Errorf("encoding scheduler post %s: %w", post.Slug, err)
	}
	return Payload{Platform: p.Name(), Filename: post.Slug + ".json", Body: body}, nil
}

func (p *SchedulerPublisher) Deliver(ctx context.Context, payload Payload) (Receipt, error) {
	url := p.BaseURL + "/api/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload.Body))
	if err != nil {
		return Receipt{}, fmt.Errorf("building scheduler request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("delivering to scheduler: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Receipt{}, fmt.Errorf("%w: scheduler status %d: %s", ErrRejected, resp.StatusCode, msg)
	}
	if resp.StatusCode >= 500 {
		return Receipt{}, fmt.Errorf("scheduler status %d", resp.StatusCode)
	}
	return Receipt{Platform: p.Name(), Location: url, DeliveredAt: time.Now()}, nil
}
