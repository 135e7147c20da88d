// Package cli implements the clawkit command tree.
package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/clawkit/clawkit/internal/cli.version=1.2.3"
	version = "1.4.0"
	logo    = "\n" +
		"   ____ _                _  ___ _\n" +
		"  / ___| | __ ___      _| |/ (_) |_\n" +
		" | |   | |/ _` \\ \\ /\\ / / ' /| | __|\n" +
		" | |___| | (_| |\\ V  V /| . \\| | |_\n" +
		"  \\____|_|\\__,_| \\_/\\_/ |_|\\_\\_|\\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "clawkit",
	Short: "ClawKit - gateway doctor and skill vetting toolkit",
	Long: color.CyanString(logo) +
		"\nDiagnostics, guided error fixes, and security-vetted skill installs\nfor OpenClaw gateway operators.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

// formatError wraps a failure with a stable code and a remediation hint.
func formatError(code string, err error, remediation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %v. remediation: %s", strings.ToUpper(strings.TrimSpace(code)), err, remediation)
}
