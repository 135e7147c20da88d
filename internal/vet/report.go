package vet

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

const reportRule = "══════════════════════════════════════"

// Render writes a human-readable vetting report.
func Render(w io.Writer, v *Verdict) {
	fmt.Fprintln(w, reportRule)
	fmt.Fprintf(w, "  SKILL SECURITY AUDIT: %s\n", v.Slug)
	fmt.Fprintln(w, reportRule)
	fmt.Fprintf(w, "\nRISK SCORE: %d/100 - %s\n\n", v.Score, levelString(v.Level))

	if len(v.Credits) > 0 {
		fmt.Fprintf(w, "Reputation credits (raw score %d):\n", v.RawScore)
		for _, c := range v.Credits {
			fmt.Fprintf(w, "  • %s\n", c)
		}
		fmt.Fprintln(w)
	}

	if len(v.Findings) == 0 {
		fmt.Fprintln(w, color.GreenString("No security issues detected."))
	} else {
		fmt.Fprintf(w, "Found %d potential security issue(s):\n\n", len(v.Findings))
		byCategory := map[string][]Finding{}
		for _, f := range v.Findings {
			byCategory[f.Category] = append(byCategory[f.Category], f)
		}
		categories := make([]string, 0, len(byCategory))
		for c := range byCategory {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, cat := range categories {
			fmt.Fprintln(w, color.CyanString(strings.ToUpper(strings.ReplaceAll(cat, "_", " "))))
			for _, f := range byCategory[cat] {
				loc := f.File
				if f.Line > 0 {
					loc = fmt.Sprintf("%s:%d", f.File, f.Line)
				}
				if loc != "" {
					fmt.Fprintf(w, "   [%s] %s - %s\n", f.Severity, loc, f.Description)
				} else {
					fmt.Fprintf(w, "   [%s] %s\n", f.Severity, f.Description)
				}
				if f.Match != "" {
					fmt.Fprintf(w, "      match: %s\n", f.Match)
				}
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, "──────────────────────────────────────")
	fmt.Fprintf(w, "RECOMMENDATION: %s\n", v.Recommendation())
	fmt.Fprintln(w, reportRule)
}

func levelString(l Level) string {
	switch l {
	case LevelSafe:
		return color.GreenString(string(l))
	case LevelCaution:
		return color.YellowString(string(l))
	default:
		return color.RedString(string(l))
	}
}
