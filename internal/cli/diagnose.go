package cli

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/errdb"
	"github.com/clawkit/clawkit/internal/fixer"
	"github.com/clawkit/clawkit/internal/gateway"
)

var (
	diagnoseInput   string
	diagnoseError   string
	diagnoseCode    string
	diagnoseAutoFix bool
	diagnoseDryRun  bool
	diagnoseJSON    bool
)

type diagnosis struct {
	Source   string          `json:"source"`
	Matches  []errdb.Pattern `json:"matches"`
	Fixes    []fixer.Result  `json:"fixes,omitempty"`
	Unmapped bool            `json:"unmapped,omitempty"`
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Match gateway errors against the known-error catalog",
	Long: "Reads error text from --error, --code, --input, or stdin, matches it\n" +
		"against the known-error catalog, and prints causes and fix steps.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := errdb.Open()
		if err != nil {
			return formatError("ERRDB_LOAD_FAILED", err, "reinstall clawkit; the embedded catalog is corrupt")
		}

		var results []diagnosis
		switch {
		case diagnoseCode != "":
			pattern, ok := db.ByCode(diagnoseCode)
			if !ok {
				return formatError("UNKNOWN_ERROR_CODE",
					fmt.Errorf("no catalog entry for %s", diagnoseCode),
					"run 'clawkit fixes' to list known codes")
			}
			results = append(results, diagnosis{Source: diagnoseCode, Matches: []errdb.Pattern{pattern}})
		case diagnoseError != "":
			matches := db.Diagnose(diagnoseError, extractCode(diagnoseError))
			results = append(results, diagnosis{
				Source:   diagnoseError,
				Matches:  matches,
				Unmapped: len(matches) == 0,
			})
		default:
			parsed, err := readErrors(cmd)
			if err != nil {
				return err
			}
			if len(parsed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No error lines found in input.")
				return nil
			}
			for _, pe := range parsed {
				matches := db.Diagnose(pe.Message, pe.Code)
				results = append(results, diagnosis{
					Source:   fmt.Sprintf("line %d: %s", pe.Line, pe.Message),
					Matches:  matches,
					Unmapped: len(matches) == 0,
				})
			}
		}

		if diagnoseAutoFix {
			applyDiagnosisFixes(results)
		}

		if diagnoseJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for _, d := range results {
			renderDiagnosis(cmd, d)
		}
		return nil
	},
}

func readErrors(cmd *cobra.Command) ([]errdb.ParsedError, error) {
	if diagnoseInput != "" {
		parsed, err := errdb.ParseFile(diagnoseInput)
		if err != nil {
			return nil, formatError("LOG_READ_FAILED", err, "check the --input path")
		}
		return parsed, nil
	}
	parsed, err := errdb.ParseReader(cmd.InOrStdin())
	if err != nil {
		return nil, formatError("LOG_READ_FAILED", err, "pipe gateway logs to stdin or pass --input")
	}
	return parsed, nil
}

// applyDiagnosisFixes runs the safe recipe behind each matched pattern, once
// per recipe across all matches.
func applyDiagnosisFixes(results []diagnosis) {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	gatewayPath, err := gateway.ConfigPath(cfg)
	if err != nil {
		gatewayPath = ""
	}
	engine, err := fixer.NewEngine(gatewayPath)
	if err != nil {
		return
	}
	applied := map[string]struct{}{}
	for i := range results {
		for _, p := range results[i].Matches {
			if p.RecipeID == "" {
				continue
			}
			if _, done := applied[p.RecipeID]; done {
				continue
			}
			applied[p.RecipeID] = struct{}{}
			if !diagnoseDryRun && !engine.CanAutoFix(p.RecipeID) {
				continue
			}
			results[i].Fixes = append(results[i].Fixes, engine.Execute(p.RecipeID, diagnoseDryRun, nil))
		}
	}
}

func renderDiagnosis(cmd *cobra.Command, d diagnosis) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.CyanString("━━ %s", d.Source))
	if d.Unmapped {
		fmt.Fprintln(out, "  No catalog match. Check the gateway logs around this line for context.")
		fmt.Fprintln(out)
		return
	}
	for _, p := range d.Matches {
		sev := p.Severity
		if strings.EqualFold(sev, "critical") {
			sev = color.RedString(sev)
		}
		fmt.Fprintf(out, "  [%s] %s — %s\n", p.Code, p.Title, sev)
		if len(p.Causes) > 0 {
			fmt.Fprintln(out, "  Likely causes:")
			for _, c := range p.Causes {
				fmt.Fprintf(out, "    • %s\n", c)
			}
		}
		if len(p.FixSteps) > 0 {
			fmt.Fprintln(out, "  Fix steps:")
			for i, s := range p.FixSteps {
				fmt.Fprintf(out, "    %d. %s\n", i+1, s)
			}
		}
		if p.RecipeID != "" {
			fmt.Fprintf(out, "  Auto-fix: clawkit fixes apply %s\n", p.RecipeID)
		}
		if p.DocURL != "" {
			fmt.Fprintf(out, "  Docs: %s\n", p.DocURL)
		}
	}
	for _, fix := range d.Fixes {
		state := "applied"
		if fix.DryRun {
			state = "dry-run"
		} else if !fix.Success {
			state = "failed"
		}
		fmt.Fprintf(out, "  Fix %s (%s): %s\n", fix.RecipeID, state, fix.Message)
	}
	fmt.Fprintln(out)
}

var errCodeExpr = regexp.MustCompile(`(?i)\bCLAW-\d{4}\b`)

func extractCode(message string) string {
	return strings.ToUpper(errCodeExpr.FindString(message))
}

func init() {
	diagnoseCmd.Flags().StringVar(&diagnoseInput, "input", "", "Log file to scan (default: stdin)")
	diagnoseCmd.Flags().StringVar(&diagnoseError, "error", "", "Diagnose a single error message")
	diagnoseCmd.Flags().StringVar(&diagnoseCode, "code", "", "Look up a known error code (e.g. CLAW-1301)")
	diagnoseCmd.Flags().BoolVar(&diagnoseAutoFix, "auto-fix", false, "Apply safe fix recipes for matched errors")
	diagnoseCmd.Flags().BoolVar(&diagnoseDryRun, "dry-run", false, "With --auto-fix, print actions without executing")
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "Emit results as JSON")
	rootCmd.AddCommand(diagnoseCmd)
}
