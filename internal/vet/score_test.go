package vet

import (
	"testing"
	"time"

	"github.com/clawkit/clawkit/internal/config"
)

func TestLevelThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  Level
	}{
		{0, LevelSafe},
		{20, LevelSafe},
		{21, LevelCaution},
		{50, LevelCaution},
		{51, LevelDanger},
		{80, LevelDanger},
		{81, LevelBlocked},
		{200, LevelBlocked},
	}
	for _, tc := range cases {
		if got := levelFor(tc.score); got != tc.want {
			t.Errorf("levelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestRiskScoreWeights(t *testing.T) {
	findings := []Finding{
		{Severity: SeverityCritical},
		{Severity: SeverityWarn},
		{Severity: SeverityWarn},
		{Severity: SeverityInfo},
	}
	if got := riskScore(findings); got != 36 {
		t.Fatalf("riskScore = %d, want 36", got)
	}
}

func TestRiskScoreWarnCap(t *testing.T) {
	var findings []Finding
	for i := 0; i < 25; i++ {
		findings = append(findings, Finding{Severity: SeverityWarn})
	}
	if got := riskScore(findings); got != 30 {
		t.Fatalf("warn contribution must cap at 10 findings, got %d", got)
	}
}

func TestCreditsAreBounded(t *testing.T) {
	meta := &RegistryMeta{
		Verified:    true,
		Installs:    5000,
		Rating:      4.9,
		PublishedAt: time.Now().Add(-365 * 24 * time.Hour),
	}
	score, credits := applyCredits(40, 0, meta)
	if score != 25 {
		t.Fatalf("score = %d, want 25 (credit capped at 15)", score)
	}
	if len(credits) != 4 {
		t.Fatalf("expected 4 credit lines, got %v", credits)
	}
}

func TestCriticalFindingsNeverSafe(t *testing.T) {
	meta := &RegistryMeta{Verified: true, Installs: 5000, Rating: 5.0}
	score, _ := applyCredits(30, 1, meta)
	if score < criticalFloor {
		t.Fatalf("score = %d fell below the critical floor", score)
	}
	if levelFor(score) == LevelSafe {
		t.Fatal("bundle with critical findings must never rate SAFE")
	}
}

func TestCreditsDoNotApplyToCleanBundle(t *testing.T) {
	meta := &RegistryMeta{Verified: true, Installs: 5000}
	score, credits := applyCredits(0, 0, meta)
	if score != 0 || credits != nil {
		t.Fatalf("clean bundle must stay at 0, got %d %v", score, credits)
	}
}

func TestEvaluateDangerousBundle(t *testing.T) {
	b := bundleOf(map[string]string{
		"SKILL.md": "---\nname: test-skill\ndescription: a test\n---\n",
		"a.py":     "eval(payload)\nexec(code)\n",
	})
	v := Evaluate(config.DefaultConfig(), b, nil)
	if v.CriticalCount() < 2 {
		t.Fatalf("expected critical findings, got %#v", v.Findings)
	}
	if v.Level != LevelDanger && v.Level != LevelBlocked {
		t.Fatalf("level = %s, want DANGER or BLOCKED", v.Level)
	}
	if v.OK() {
		t.Fatal("dangerous verdict must not report OK")
	}
}

func TestEvaluateCleanBundle(t *testing.T) {
	b := bundleOf(map[string]string{
		"SKILL.md": "---\nname: test-skill\ndescription: a test\nversion: 1.0.0\n---\n\n# Usage\n",
	})
	v := Evaluate(config.DefaultConfig(), b, nil)
	if v.Score != 0 || v.Level != LevelSafe {
		t.Fatalf("clean bundle scored %d (%s): %#v", v.Score, v.Level, v.Findings)
	}
	if !v.OK() {
		t.Fatal("clean verdict must report OK")
	}
}

func TestValidateManifestMissingFields(t *testing.T) {
	b := bundleOf(map[string]string{
		"SKILL.md": "---\nname: test-skill\n---\n",
	})
	findings := ValidateManifest(b)
	if !hasFinding(findings, "frontmatter_description_missing") {
		t.Fatalf("expected frontmatter_description_missing, got %#v", findings)
	}
	if !hasFinding(findings, "frontmatter_version_missing") {
		t.Fatalf("expected frontmatter_version_missing info, got %#v", findings)
	}
}

func TestValidateManifestNameMismatch(t *testing.T) {
	b := bundleOf(map[string]string{
		"SKILL.md": "---\nname: other-name\ndescription: a test\nversion: 1.0.0\n---\n",
	})
	findings := ValidateManifest(b)
	if !hasFinding(findings, "frontmatter_name_mismatch") {
		t.Fatalf("expected frontmatter_name_mismatch warning, got %#v", findings)
	}
}

func TestValidateManifestNoSkillFile(t *testing.T) {
	b := &Bundle{Slug: "empty", Files: []File{{Path: "x.py", Data: []byte("print(1)\n")}}}
	findings := ValidateManifest(b)
	if !hasFinding(findings, "missing_skill_md") {
		t.Fatalf("expected missing_skill_md critical, got %#v", findings)
	}
}
