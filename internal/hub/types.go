// Package hub talks to the ClawHub skill registry: search, skill metadata,
// local caching, recommendations, and vetted installs.
package hub

import (
	"strings"
	"time"

	"github.com/clawkit/clawkit/internal/vet"
)

// Skill is one registry record.
type Skill struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version,omitempty"`
	Author      string    `json:"author,omitempty"`
	Verified    bool      `json:"verified"`
	Installs    int       `json:"installs"`
	Rating      float64   `json:"rating,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// RegistryMeta converts the record into the credibility input the scorer
// understands.
func (s *Skill) RegistryMeta() *vet.RegistryMeta {
	if s == nil {
		return nil
	}
	return &vet.RegistryMeta{
		Verified:    s.Verified,
		Installs:    s.Installs,
		Rating:      s.Rating,
		PublishedAt: s.PublishedAt,
	}
}

// MatchesKeyword reports whether the keyword appears in the skill's slug,
// name, description, or tags.
func (s *Skill) MatchesKeyword(keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return true
	}
	if strings.Contains(strings.ToLower(s.Slug), kw) ||
		strings.Contains(strings.ToLower(s.Name), kw) ||
		strings.Contains(strings.ToLower(s.Description), kw) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}
