package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/doctor"
)

var (
	doctorFix         bool
	doctorJSON        bool
	doctorSkipNetwork bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run gateway and environment diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}

		report := doctor.Run(cmd.Context(), cfg, doctor.Options{
			Fix:         doctorFix,
			SkipNetwork: doctorSkipNetwork,
		})

		if doctorJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			failures := 0
			for _, check := range report.Checks {
				symbol := "PASS"
				switch check.Status {
				case doctor.Warn:
					symbol = "WARN"
				case doctor.Fail:
					symbol = "FAIL"
					failures++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, check.Name, check.Message)
				if check.Status == doctor.Fail && check.RecipeID != "" && !doctorFix {
					fmt.Fprintf(cmd.OutOrStdout(), "       fix available: clawkit fixes apply %s\n", check.RecipeID)
				}
			}
			for _, fix := range report.Fixes {
				symbol := "FIXED"
				if !fix.Success {
					symbol = "MANUAL"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, fix.RecipeID, fix.Message)
			}
		}

		if report.HasFailures() {
			return fmt.Errorf("doctor found failing check(s)")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Apply safe fix recipes for failing checks")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Emit the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipNetwork, "skip-network", false, "Skip gateway/channel reachability probes")
	rootCmd.AddCommand(doctorCmd)
}
