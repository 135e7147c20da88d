package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/fixer"
	"github.com/clawkit/clawkit/internal/gateway"
)

var (
	fixesSafeOnly    bool
	fixesJSON        bool
	fixesApplyDryRun bool
	fixesApplyJSON   bool
	fixesApplyYes    bool
)

var fixesCmd = &cobra.Command{
	Use:   "fixes",
	Short: "List and apply fix recipes",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newFixEngine()
		if err != nil {
			return err
		}
		recipes := engine.All()
		if fixesSafeOnly {
			recipes = engine.SafeRecipes()
		}
		if fixesJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(recipes)
		}
		for _, r := range recipes {
			mode := "manual confirmation required"
			if r.SafeAuto {
				mode = "safe to auto-apply"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s (%s)\n", r.ID, r.Title, mode)
			if r.Description != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%22s %s\n", "", r.Description)
			}
		}
		return nil
	},
}

var fixesApplyCmd = &cobra.Command{
	Use:   "apply <recipe-id>",
	Short: "Apply one fix recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newFixEngine()
		if err != nil {
			return err
		}
		id := args[0]
		recipe, ok := engine.Recipe(id)
		if !ok {
			return formatError("UNKNOWN_RECIPE",
				fmt.Errorf("no recipe %q", id),
				"run 'clawkit fixes' to list recipe ids")
		}
		if !recipe.SafeAuto && !fixesApplyDryRun && !fixesApplyYes {
			return formatError("CONFIRMATION_REQUIRED",
				fmt.Errorf("recipe %s modifies state that cannot be rolled back automatically", id),
				"re-run with --yes after reviewing the steps (or --dry-run to preview)")
		}

		result := engine.Execute(id, fixesApplyDryRun, nil)

		if fixesApplyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			for _, action := range result.ActionsTaken {
				fmt.Fprintln(cmd.OutOrStdout(), "  "+action)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			for _, manual := range result.NeedsManual {
				fmt.Fprintln(cmd.OutOrStdout(), "  manual: "+manual)
			}
		}
		if !result.Success {
			return fmt.Errorf("recipe %s did not complete", id)
		}
		return nil
	},
}

func newFixEngine() (*fixer.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
	}
	gatewayPath, err := gateway.ConfigPath(cfg)
	if err != nil {
		gatewayPath = ""
	}
	engine, err := fixer.NewEngine(gatewayPath)
	if err != nil {
		return nil, formatError("RECIPES_LOAD_FAILED", err, "reinstall clawkit; the embedded recipes are corrupt")
	}
	return engine, nil
}

func init() {
	fixesCmd.Flags().BoolVar(&fixesSafeOnly, "safe", false, "Only list recipes safe to auto-apply")
	fixesCmd.Flags().BoolVar(&fixesJSON, "json", false, "Emit recipes as JSON")
	fixesApplyCmd.Flags().BoolVar(&fixesApplyDryRun, "dry-run", false, "Print actions without executing them")
	fixesApplyCmd.Flags().BoolVar(&fixesApplyJSON, "json", false, "Emit the result as JSON")
	fixesApplyCmd.Flags().BoolVar(&fixesApplyYes, "yes", false, "Confirm recipes that require manual approval")
	fixesCmd.AddCommand(fixesApplyCmd)
	rootCmd.AddCommand(fixesCmd)
}
