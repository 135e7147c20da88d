package cli

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/gateway"
	"github.com/clawkit/clawkit/internal/hub"
	"github.com/clawkit/clawkit/internal/vet"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ ClawKit Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show toolkit and gateway status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 ClawKit Status")
		fmt.Printf("Version: %s\n", version)

		cfgPath, _ := config.ConfigPath()
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Println("Config:   ✓ Found (" + cfgPath + ")")
		} else {
			fmt.Println("Config:   ✗ Not found (defaults in use)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Config:   ✗ Unreadable:", err)
			return
		}

		if gwPath, err := gateway.ConfigPath(cfg); err == nil {
			if _, err := os.Stat(gwPath); err == nil {
				fmt.Println("Gateway:  ✓ Config found (" + gwPath + ")")
			} else {
				fmt.Println("Gateway:  ✗ Config not found (run 'clawkit doctor --fix')")
			}
		}

		addr := net.JoinHostPort(cfg.Gateway.Host, fmt.Sprintf("%d", cfg.Gateway.Port))
		if conn, err := net.DialTimeout("tcp", addr, 2*time.Second); err == nil {
			conn.Close()
			fmt.Println("Gateway:  ✓ Listening on " + addr)
		} else {
			fmt.Println("Gateway:  ✗ Not reachable on " + addr)
		}

		if cache, err := hub.OpenCache(cfg); err == nil {
			count, newest, statErr := cache.Stats()
			cache.Close()
			if statErr == nil && count > 0 {
				fmt.Printf("Cache:    ✓ %d skill(s), refreshed %s\n", count, newest.Format(time.RFC3339))
			} else {
				fmt.Println("Cache:    ✗ Empty")
			}
		}

		installer := hub.NewInstaller(cfg, nil)
		if installed, err := installer.Installed(); err == nil {
			fmt.Printf("Skills:   %d installed\n", len(installed))
		}

		if auditPath, err := vet.AuditPath(); err == nil {
			if _, statErr := os.Stat(auditPath); statErr == nil {
				if n, verifyErr := vet.VerifyAuditChain(auditPath); verifyErr == nil {
					fmt.Printf("Audit:    ✓ %d entries, chain intact\n", n)
				} else {
					fmt.Println("Audit:    ✗ Chain broken:", verifyErr)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}
