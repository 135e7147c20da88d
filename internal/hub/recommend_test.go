package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestScoreSkillChannelAffinity(t *testing.T) {
	skill := &Skill{
		Slug:        "slack-workflows",
		Name:        "Slack Workflows",
		Description: "Automate Slack channels",
		Verified:    true,
		Installs:    3200,
		Tags:        []string{"slack"},
	}
	score, reasons := scoreSkill(skill, "slack", "")
	// verified 2 + popular 1 + affinity 3 + name/desc 2 + tag 1
	if score != 9.0 {
		t.Fatalf("score = %v, want 9.0 (%v)", score, reasons)
	}
	if len(reasons) != 4 {
		t.Fatalf("reasons = %v", reasons)
	}
}

func TestScoreSkillUseCaseKeywords(t *testing.T) {
	skill := &Skill{
		Slug:        "meeting-bot",
		Description: "Schedule a meeting and send a reminder",
	}
	score, _ := scoreSkill(skill, "", "calendar")
	// 3 keyword hits x 1.5
	if score != 4.5 {
		t.Fatalf("score = %v, want 4.5", score)
	}
}

func TestScoreSkillUnknownUseCaseFallsBackToLiteral(t *testing.T) {
	skill := &Skill{Slug: "weather", Description: "weather forecasts"}
	score, _ := scoreSkill(skill, "", "weather")
	if score != 1.5 {
		t.Fatalf("score = %v, want 1.5", score)
	}
}

func TestScoreSkillIrrelevant(t *testing.T) {
	skill := &Skill{Slug: "game-stats", Description: "game statistics"}
	score, _ := scoreSkill(skill, "slack", "calendar")
	if score != 0 {
		t.Fatalf("score = %v, want 0", score)
	}
}

func TestRecommendRanksAndFilters(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"skills": []Skill{
				{Slug: "game-stats", Description: "game statistics"},
				{Slug: "slack-apps", Name: "Slack Apps", Description: "build slack apps", Verified: true},
				{Slug: "slack-workflows", Name: "Slack Workflows", Description: "slack automation", Verified: true, Installs: 5000},
			},
		})
	}), false)

	recs, err := NewRecommender(client).Recommend(context.Background(), "slack", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("zero-score skills must be dropped: %#v", recs)
	}
	if recs[0].Skill.Slug != "slack-workflows" {
		t.Fatalf("expected highest score first, got %#v", recs)
	}
}

func TestSuggestForChannelsDeduplicates(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"skills": []Skill{
				{Slug: "jira-integration", Name: "Jira", Description: "works with slack and teams", Verified: true},
			},
		})
	}), false)

	recs, err := NewRecommender(client).SuggestForChannels(context.Background(), []string{"slack", "teams"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("duplicate slug across channels must be deduped: %#v", recs)
	}
}

func TestSuggestForChannelsEmpty(t *testing.T) {
	recs, err := NewRecommender(nil).SuggestForChannels(context.Background(), nil, 10)
	if err != nil || recs != nil {
		t.Fatalf("no channels must be a no-op, got %v %v", recs, err)
	}
}
