package hub

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// channelSkillAffinity maps gateway channels to skill slugs known to pair
// well with them.
var channelSkillAffinity = map[string][]string{
	"whatsapp": {"whatsapp-media", "whatsapp-status", "qr-code-gen"},
	"telegram": {"telegram-inline", "telegram-webhooks", "image-gen"},
	"discord":  {"discord-voice", "discord-slash", "game-stats"},
	"slack":    {"slack-workflows", "slack-apps", "jira-integration"},
	"signal":   {"signal-groups", "privacy-tools"},
	"teams":    {"teams-meetings", "sharepoint-integration"},
}

// useCaseKeywords expands a use-case name into description keywords.
var useCaseKeywords = map[string][]string{
	"calendar":   {"calendar", "schedule", "meeting", "event", "reminder"},
	"image":      {"image", "photo", "picture", "vision", "ocr", "generation"},
	"code":       {"code", "github", "gitlab", "deploy", "ci/cd"},
	"automation": {"workflow", "automation", "task", "schedule"},
	"analytics":  {"analytics", "metrics", "stats", "dashboard"},
}

// Recommendation is a scored skill suggestion.
type Recommendation struct {
	Skill   Skill    `json:"skill"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// Recommender ranks registry skills for a channel or use case.
type Recommender struct {
	client *Client
}

// NewRecommender builds a recommender over a registry client.
func NewRecommender(client *Client) *Recommender {
	return &Recommender{client: client}
}

// Recommend searches the registry and ranks results for the given channel
// and/or use case.
func (r *Recommender) Recommend(ctx context.Context, channel, useCase string, top int) ([]Recommendation, error) {
	if top <= 0 {
		top = 10
	}
	var queryParts []string
	if channel != "" {
		queryParts = append(queryParts, channel)
	}
	if useCase != "" {
		queryParts = append(queryParts, useCase)
	}
	skills, err := r.client.Search(ctx, strings.Join(queryParts, " "), top*2)
	if err != nil {
		return nil, err
	}
	return rankSkills(skills, channel, useCase, top), nil
}

// SuggestForChannels recommends skills for each enabled gateway channel,
// deduplicated and re-ranked across channels.
func (r *Recommender) SuggestForChannels(ctx context.Context, channels []string, top int) ([]Recommendation, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	if top <= 0 {
		top = 10
	}
	var all []Recommendation
	seen := map[string]struct{}{}
	for _, channel := range channels {
		recs, err := r.Recommend(ctx, channel, "", 5)
		if err != nil {
			return nil, fmt.Errorf("recommend for channel %s: %w", channel, err)
		}
		for _, rec := range recs {
			if _, dup := seen[rec.Skill.Slug]; dup {
				continue
			}
			seen[rec.Skill.Slug] = struct{}{}
			all = append(all, rec)
		}
	}
	sortRecommendations(all)
	if len(all) > top {
		all = all[:top]
	}
	return all, nil
}

func rankSkills(skills []Skill, channel, useCase string, top int) []Recommendation {
	var recs []Recommendation
	for _, skill := range skills {
		score, reasons := scoreSkill(&skill, channel, useCase)
		if score <= 0 {
			continue
		}
		recs = append(recs, Recommendation{Skill: skill, Score: score, Reasons: reasons})
	}
	sortRecommendations(recs)
	if len(recs) > top {
		recs = recs[:top]
	}
	return recs
}

func scoreSkill(skill *Skill, channel, useCase string) (float64, []string) {
	score := 0.0
	var reasons []string

	if skill.Verified {
		score += 2.0
		reasons = append(reasons, "Verified skill")
	}
	switch {
	case skill.Installs > 1000:
		score += 1.0
		reasons = append(reasons, "Popular (1000+ installs)")
	case skill.Installs > 100:
		score += 0.5
	}

	if channel != "" {
		ch := strings.ToLower(channel)
		for _, affinity := range channelSkillAffinity[ch] {
			if strings.Contains(skill.Slug, affinity) {
				score += 3.0
				reasons = append(reasons, fmt.Sprintf("Optimized for %s", channel))
				break
			}
		}
		if strings.Contains(strings.ToLower(skill.Name), ch) ||
			strings.Contains(strings.ToLower(skill.Description), ch) {
			score += 2.0
			reasons = append(reasons, fmt.Sprintf("Matches %s channel", channel))
		}
	}

	if useCase != "" {
		uc := strings.ToLower(useCase)
		keywords, ok := useCaseKeywords[uc]
		if !ok {
			keywords = []string{uc}
		}
		desc := strings.ToLower(skill.Description)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(desc, kw) {
				matches++
			}
		}
		if matches > 0 {
			score += float64(matches) * 1.5
			reasons = append(reasons, fmt.Sprintf("Matches '%s' use case", useCase))
		}
	}

	if channel != "" && hasTag(skill.Tags, channel) {
		score += 1.0
	}
	if useCase != "" && hasTag(skill.Tags, useCase) {
		score += 1.0
	}

	return score, reasons
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

func sortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Skill.Slug < recs[j].Skill.Slug
	})
}
