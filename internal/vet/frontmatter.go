package vet

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the YAML frontmatter of a SKILL.md file.
type Metadata struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Version     string   `yaml:"version,omitempty" json:"version,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Homepage    string   `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ParseFrontmatter extracts SKILL.md frontmatter. The second return is false
// when the file has no frontmatter block at all.
func ParseFrontmatter(skillMD []byte) (Metadata, bool) {
	text := strings.TrimPrefix(string(skillMD), "\uFEFF")
	if !strings.HasPrefix(text, "---") {
		return Metadata{}, false
	}
	lines := strings.Split(text, "\n")
	start, end := -1, -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			if start == -1 {
				start = i
			} else {
				end = i
				break
			}
		}
	}
	if start == -1 || end <= start {
		return Metadata{}, false
	}
	block := strings.Join(lines[start+1:end], "\n")
	var meta Metadata
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return Metadata{}, true
	}
	meta.Name = SanitizeSlug(meta.Name)
	meta.Description = strings.TrimSpace(meta.Description)
	return meta, true
}

// SanitizeSlug normalizes a skill name into slug form: lowercase, spaces to
// hyphens, only [a-z0-9-_.] kept.
func SanitizeSlug(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, " ", "-")
	var out strings.Builder
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			out.WriteRune(r)
		}
	}
	return strings.Trim(out.String(), "-_.")
}

// ValidateSlug enforces registry slug rules.
func ValidateSlug(slug string) error {
	if len(slug) < 1 || len(slug) > 64 {
		return errors.New("slug must be 1-64 characters")
	}
	for _, c := range slug {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-') {
			return errors.New("slug must contain only lowercase letters, numbers, and hyphens")
		}
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return errors.New("slug must not start or end with a hyphen")
	}
	if strings.Contains(slug, "--") {
		return errors.New("slug must not contain consecutive hyphens")
	}
	return nil
}
