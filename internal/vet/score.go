package vet

import (
	"fmt"
	"strings"
	"time"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/google/uuid"
)

// Level is the pass/warn/fail classification of a verdict.
type Level string

const (
	LevelSafe    Level = "SAFE"
	LevelCaution Level = "CAUTION"
	LevelDanger  Level = "DANGER"
	LevelBlocked Level = "BLOCKED"
)

// Level thresholds on the 0-100 risk score.
const (
	cautionThreshold = 21
	dangerThreshold  = 51
	blockedThreshold = 81
)

// Score weights: critical findings dominate, the rest are capped so a pile
// of low-grade signals cannot push a skill into BLOCKED on its own.
const (
	criticalWeight  = 30
	warnWeight      = 3
	warnCountCap    = 10
	maxCredit       = 15
	criticalFloor   = 30
	maxRiskScore    = 100
)

// RegistryMeta is reputation data about a skill, as reported by the registry.
type RegistryMeta struct {
	Verified    bool      `json:"verified"`
	Installs    int       `json:"installs"`
	Rating      float64   `json:"rating,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
}

// Verdict is the aggregate vetting result for one skill bundle.
type Verdict struct {
	RunID       string        `json:"runId"`
	Slug        string        `json:"slug"`
	Target      string        `json:"target"`
	SourceType  string        `json:"sourceType"`
	Meta        Metadata      `json:"meta"`
	Score       int           `json:"score"`
	RawScore    int           `json:"rawScore"`
	Level       Level         `json:"level"`
	Credits     []string      `json:"credits,omitempty"`
	Findings    []Finding     `json:"findings,omitempty"`
	FileCount   int           `json:"fileCount"`
	LinkCount   int           `json:"linkCount"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Registry    *RegistryMeta `json:"registry,omitempty"`
}

// CriticalCount returns the number of critical findings.
func (v *Verdict) CriticalCount() int {
	n := 0
	for _, f := range v.Findings {
		if f.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// WarningCount returns the number of warn findings.
func (v *Verdict) WarningCount() int {
	n := 0
	for _, f := range v.Findings {
		if f.Severity == SeverityWarn {
			n++
		}
	}
	return n
}

// OK reports whether the verdict permits installation without approval.
func (v *Verdict) OK() bool {
	return v.Level == LevelSafe
}

// Recommendation returns the user-facing action for a level.
func (v *Verdict) Recommendation() string {
	switch v.Level {
	case LevelSafe:
		return "APPROVE - safe to install"
	case LevelCaution:
		return "CAUTION - review findings before proceeding"
	case LevelDanger:
		return "DANGER - detailed review required"
	default:
		return "BLOCK - do NOT install"
	}
}

// Evaluate runs the full vetting pipeline over a fetched bundle: static scan,
// manifest validation, then scoring against optional registry reputation.
// Identical input bundles with identical metadata produce identical verdicts,
// modulo the run ID and timestamp.
func Evaluate(cfg *config.Config, b *Bundle, meta *RegistryMeta) *Verdict {
	findings, linkCount := Scan(cfg, b)
	findings = append(findings, ValidateManifest(b)...)

	v := &Verdict{
		RunID:       uuid.NewString(),
		Slug:        b.Slug,
		Target:      b.Target,
		SourceType:  b.SourceType,
		Meta:        b.Meta,
		Findings:    findings,
		FileCount:   len(b.Files),
		LinkCount:   linkCount,
		GeneratedAt: time.Now().UTC(),
		Registry:    meta,
	}
	v.RawScore = riskScore(findings)
	v.Score, v.Credits = applyCredits(v.RawScore, v.CriticalCount(), meta)
	v.Level = levelFor(v.Score)
	return v
}

func riskScore(findings []Finding) int {
	critical, warn := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarn:
			warn++
		}
	}
	if warn > warnCountCap {
		warn = warnCountCap
	}
	score := critical*criticalWeight + warn*warnWeight
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return score
}

// applyCredits lowers the raw risk score by bounded reputation credits.
// A bundle with critical findings keeps a score floor so reputation can never
// make it SAFE.
func applyCredits(raw, criticalCount int, meta *RegistryMeta) (int, []string) {
	if meta == nil || raw == 0 {
		return raw, nil
	}
	credit := 0
	var credits []string
	if meta.Verified {
		credit += 8
		credits = append(credits, "verified publisher (-8)")
	}
	switch {
	case meta.Installs > 1000:
		credit += 4
		credits = append(credits, "popular: 1000+ installs (-4)")
	case meta.Installs > 100:
		credit += 2
		credits = append(credits, "100+ installs (-2)")
	}
	if !meta.PublishedAt.IsZero() && time.Since(meta.PublishedAt) > 180*24*time.Hour {
		credit += 2
		credits = append(credits, "published 180+ days ago (-2)")
	}
	if meta.Rating >= 4.5 {
		credit += 3
		credits = append(credits, "highly rated (-3)")
	}
	if credit > maxCredit {
		credit = maxCredit
	}
	score := raw - credit
	if criticalCount > 0 && score < criticalFloor {
		score = criticalFloor
	}
	if score < 0 {
		score = 0
	}
	return score, credits
}

func levelFor(score int) Level {
	switch {
	case score >= blockedThreshold:
		return LevelBlocked
	case score >= dangerThreshold:
		return LevelDanger
	case score >= cautionThreshold:
		return LevelCaution
	default:
		return LevelSafe
	}
}

// ValidateManifest checks SKILL.md frontmatter requirements.
func ValidateManifest(b *Bundle) []Finding {
	skillData, ok := findFile(b.Files, "SKILL.md")
	if !ok {
		return []Finding{{
			Category:    "manifest",
			Severity:    SeverityCritical,
			Code:        "missing_skill_md",
			Description: "SKILL.md missing from bundle root",
		}}
	}
	meta, hasFM := ParseFrontmatter(skillData)
	if !hasFM {
		return []Finding{{
			Category:    "manifest",
			Severity:    SeverityCritical,
			Code:        "missing_frontmatter",
			Description: "SKILL.md must include YAML frontmatter",
			File:        "SKILL.md",
		}}
	}
	var findings []Finding
	if meta.Name == "" {
		findings = append(findings, Finding{
			Category:    "manifest",
			Severity:    SeverityCritical,
			Code:        "frontmatter_name_missing",
			Description: "SKILL.md frontmatter missing `name`",
			File:        "SKILL.md",
		})
	} else if err := ValidateSlug(meta.Name); err != nil {
		findings = append(findings, Finding{
			Category:    "manifest",
			Severity:    SeverityWarn,
			Code:        "frontmatter_name_invalid",
			Description: fmt.Sprintf("frontmatter name %q: %v", meta.Name, err),
			File:        "SKILL.md",
		})
	}
	if meta.Description == "" {
		findings = append(findings, Finding{
			Category:    "manifest",
			Severity:    SeverityCritical,
			Code:        "frontmatter_description_missing",
			Description: "SKILL.md frontmatter missing `description`",
			File:        "SKILL.md",
		})
	}
	if meta.Name != "" && b.Slug != "" && meta.Name != b.Slug {
		findings = append(findings, Finding{
			Category:    "manifest",
			Severity:    SeverityWarn,
			Code:        "frontmatter_name_mismatch",
			Description: fmt.Sprintf("frontmatter name %q differs from resolved slug %q", meta.Name, b.Slug),
			File:        "SKILL.md",
		})
	}
	if strings.TrimSpace(meta.Version) == "" {
		findings = append(findings, Finding{
			Category:    "manifest",
			Severity:    SeverityInfo,
			Code:        "frontmatter_version_missing",
			Description: "SKILL.md frontmatter has no `version`; update checks will be skipped",
			File:        "SKILL.md",
		})
	}
	return findings
}
