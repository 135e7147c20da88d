// Package errdb holds the known-error catalog used by the diagnose command.
package errdb

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

//go:embed patterns.json
var patternsJSON []byte

// Pattern describes one known gateway error and how to fix it.
type Pattern struct {
	Code        string   `json:"code"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Match       []string `json:"match"`
	Causes      []string `json:"causes,omitempty"`
	FixSteps    []string `json:"fixSteps,omitempty"`
	RecipeID    string   `json:"recipeId,omitempty"`
	DocURL      string   `json:"docUrl,omitempty"`

	matchers []*regexp.Regexp
}

// Database is the compiled known-error catalog.
type Database struct {
	patterns []Pattern
}

// Open compiles the embedded catalog.
func Open() (*Database, error) {
	var raw struct {
		Patterns []Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(patternsJSON, &raw); err != nil {
		return nil, fmt.Errorf("parse error catalog: %w", err)
	}
	for i := range raw.Patterns {
		p := &raw.Patterns[i]
		for _, expr := range p.Match {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("pattern %s: compile %q: %w", p.Code, expr, err)
			}
			p.matchers = append(p.matchers, re)
		}
	}
	return &Database{patterns: raw.Patterns}, nil
}

// All returns every pattern, ordered by code.
func (db *Database) All() []Pattern {
	out := append([]Pattern{}, db.patterns...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ByCode returns the pattern with an exact code match.
func (db *Database) ByCode(code string) (Pattern, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, p := range db.patterns {
		if p.Code == code {
			return p, true
		}
	}
	return Pattern{}, false
}

// ByCategory returns patterns in a category, ordered by code.
func (db *Database) ByCategory(category string) []Pattern {
	category = strings.ToLower(strings.TrimSpace(category))
	var out []Pattern
	for _, p := range db.patterns {
		if p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Categories returns the distinct category names, sorted.
func (db *Database) Categories() []string {
	seen := map[string]struct{}{}
	for _, p := range db.patterns {
		seen[p.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Diagnose matches an error message (and optional code) against the catalog.
// An exact code match wins; otherwise every pattern whose match expressions
// hit the message is returned, ordered by code.
func (db *Database) Diagnose(message, code string) []Pattern {
	if code != "" {
		if p, ok := db.ByCode(code); ok {
			return []Pattern{p}
		}
	}
	var out []Pattern
	for _, p := range db.patterns {
		for _, re := range p.matchers {
			if re.MatchString(message) {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
