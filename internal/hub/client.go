package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/clawkit/clawkit/internal/config"
)

const (
	userAgent      = "clawkit/1.0 (+https://clawhub.ai)"
	maxAPIBodySize = 4 << 20
)

// ErrSkillNotFound is returned when the registry has no record for a slug.
var ErrSkillNotFound = errors.New("skill not found in registry")

// Client is the ClawHub registry client. It prefers the JSON API and can fall
// back to scraping the registry's HTML search page when the API is
// unavailable.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	htmlFallback bool
}

// NewClient builds a registry client from config.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.Registry.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.RegistryTimeout()},
		htmlFallback: cfg.Registry.HTMLFallback,
	}
}

// BaseURL returns the registry endpoint the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Search queries the registry for skills matching the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Skill, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("%s/api/v1/skills/search?q=%s&limit=%d",
		c.baseURL, url.QueryEscape(query), limit)

	var payload struct {
		Skills []Skill `json:"skills"`
	}
	err := c.getJSON(ctx, endpoint, &payload)
	if err == nil {
		return payload.Skills, nil
	}
	if c.htmlFallback {
		skills, htmlErr := c.searchHTML(ctx, query, limit)
		if htmlErr == nil {
			return skills, nil
		}
		return nil, fmt.Errorf("registry search failed (api: %v): %w", err, htmlErr)
	}
	return nil, err
}

// Skill fetches the full registry record for one slug.
func (c *Client) Skill(ctx context.Context, slug string) (*Skill, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return nil, errors.New("slug is required")
	}
	endpoint := fmt.Sprintf("%s/api/v1/skills/%s", c.baseURL, url.PathEscape(slug))

	var skill Skill
	if err := c.getJSON(ctx, endpoint, &skill); err != nil {
		return nil, err
	}
	if skill.Slug == "" {
		skill.Slug = slug
	}
	return &skill, nil
}

// Trending lists the registry's currently popular skills.
func (c *Client) Trending(ctx context.Context, limit int) ([]Skill, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("%s/api/v1/skills/trending?limit=%d", c.baseURL, limit)

	var payload struct {
		Skills []Skill `json:"skills"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Skills, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSkillNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("registry returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBodySize))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
