package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/gateway"
	"github.com/clawkit/clawkit/internal/hub"
	"github.com/clawkit/clawkit/internal/vet"
)

var (
	hubSearchJSON      bool
	hubSearchLimit     int
	hubSearchNoCache   bool
	hubTrendingJSON    bool
	hubTrendingLimit   int
	hubInfoJSON        bool
	hubRecommendJSON   bool
	hubRecommendChan   string
	hubRecommendUse    string
	hubRecommendTop    int
	hubVetJSON         bool
	hubVetInstallSafe  bool
	hubInstallApprove  bool
	hubInstallDryRun   bool
	hubInstallJSON     bool
	hubUpdatesJSON     bool
	hubListJSON        bool
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Search, vet, and install ClawHub skills",
}

var hubSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the skill registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		query := strings.Join(args, " ")

		var skills []hub.Skill
		cache, cacheErr := hub.OpenCache(cfg)
		if cacheErr == nil {
			defer cache.Close()
			if !hubSearchNoCache {
				skills, _ = cache.Search(query, hubSearchLimit)
			}
		}
		if len(skills) == 0 {
			client := hub.NewClient(cfg)
			skills, err = client.Search(cmd.Context(), query, hubSearchLimit)
			if err != nil {
				return formatError("REGISTRY_SEARCH_FAILED", err, "check network access to "+cfg.Registry.BaseURL)
			}
			if cacheErr == nil && len(skills) > 0 {
				_ = cache.Put(skills...)
			}
		}

		if hubSearchJSON {
			return printJSON(cmd, skills)
		}
		if len(skills) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No skills found.")
			return nil
		}
		for _, s := range skills {
			badge := " "
			if s.Verified {
				badge = "✓"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-24s %6d installs  %s\n", badge, s.Slug, s.Installs, s.Description)
		}
		return nil
	},
}

var hubTrendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List currently trending skills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		client := hub.NewClient(cfg)
		skills, err := client.Trending(cmd.Context(), hubTrendingLimit)
		if err != nil {
			return formatError("REGISTRY_SEARCH_FAILED", err, "check network access to "+cfg.Registry.BaseURL)
		}
		if cache, cacheErr := hub.OpenCache(cfg); cacheErr == nil {
			defer cache.Close()
			_ = cache.Put(skills...)
		}

		if hubTrendingJSON {
			return printJSON(cmd, skills)
		}
		if len(skills) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No trending skills reported.")
			return nil
		}
		for i, s := range skills {
			badge := " "
			if s.Verified {
				badge = "✓"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s %-24s %6d installs  %s\n", i+1, badge, s.Slug, s.Installs, s.Description)
		}
		return nil
	},
}

var hubInfoCmd = &cobra.Command{
	Use:   "info <slug>",
	Short: "Show registry details for one skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		slug := args[0]

		var skill *hub.Skill
		cache, cacheErr := hub.OpenCache(cfg)
		if cacheErr == nil {
			defer cache.Close()
			if cached, fresh, err := cache.Get(slug); err == nil && fresh {
				skill = cached
			}
		}
		if skill == nil {
			client := hub.NewClient(cfg)
			skill, err = client.Skill(cmd.Context(), slug)
			if err != nil {
				if errors.Is(err, hub.ErrSkillNotFound) {
					return formatError("SKILL_NOT_FOUND", err, "check the slug with 'clawkit hub search'")
				}
				return formatError("REGISTRY_LOOKUP_FAILED", err, "check network access to "+cfg.Registry.BaseURL)
			}
			if cacheErr == nil {
				_ = cache.Put(*skill)
			}
		}

		if hubInfoJSON {
			return printJSON(cmd, skill)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Slug:        %s\n", skill.Slug)
		fmt.Fprintf(out, "Name:        %s\n", skill.Name)
		fmt.Fprintf(out, "Description: %s\n", skill.Description)
		if skill.Version != "" {
			fmt.Fprintf(out, "Version:     %s\n", skill.Version)
		}
		if skill.Author != "" {
			fmt.Fprintf(out, "Author:      %s\n", skill.Author)
		}
		fmt.Fprintf(out, "Verified:    %v\n", skill.Verified)
		fmt.Fprintf(out, "Installs:    %d\n", skill.Installs)
		if skill.Rating > 0 {
			fmt.Fprintf(out, "Rating:      %.1f\n", skill.Rating)
		}
		if len(skill.Tags) > 0 {
			fmt.Fprintf(out, "Tags:        %v\n", skill.Tags)
		}
		if !skill.PublishedAt.IsZero() {
			fmt.Fprintf(out, "Published:   %s\n", skill.PublishedAt.Format(time.DateOnly))
		}
		return nil
	},
}

var hubRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend skills for your channels or use case",
	Long: "Ranks registry skills for a channel (--channel) or use case\n" +
		"(--use-case). With neither flag, channels are detected from the\n" +
		"gateway config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		recommender := hub.NewRecommender(hub.NewClient(cfg))

		var recs []hub.Recommendation
		if hubRecommendChan == "" && hubRecommendUse == "" {
			doc, _, err := gateway.Load(cfg)
			if err != nil {
				return formatError("GATEWAY_CONFIG_MISSING", err,
					"pass --channel/--use-case, or run 'clawkit doctor --fix'")
			}
			channels := doc.EnabledChannels()
			if len(channels) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No channels enabled in the gateway config.")
				return nil
			}
			recs, err = recommender.SuggestForChannels(cmd.Context(), channels, hubRecommendTop)
			if err != nil {
				return formatError("RECOMMEND_FAILED", err, "check network access to "+cfg.Registry.BaseURL)
			}
		} else {
			recs, err = recommender.Recommend(cmd.Context(), hubRecommendChan, hubRecommendUse, hubRecommendTop)
			if err != nil {
				return formatError("RECOMMEND_FAILED", err, "check network access to "+cfg.Registry.BaseURL)
			}
		}

		if hubRecommendJSON {
			return printJSON(cmd, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No recommendations.")
			return nil
		}
		for _, rec := range recs {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %5.1f  %s\n", rec.Skill.Slug, rec.Score, rec.Skill.Description)
			for _, reason := range rec.Reasons {
				fmt.Fprintf(cmd.OutOrStdout(), "%24s        • %s\n", "", reason)
			}
		}
		return nil
	},
}

var hubVetCmd = &cobra.Command{
	Use:   "vet <slug|path|url>",
	Short: "Run the security audit for a skill without installing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		target := args[0]

		bundle, err := vet.Fetch(cmd.Context(), cfg, target)
		if err != nil {
			return formatError("FETCH_FAILED", err, "check the target path, URL, or slug")
		}
		verdict := vet.Evaluate(cfg, bundle, registryMetaFor(cmd.Context(), cfg, bundle.Slug))

		_ = vet.AppendAudit("vet", map[string]any{
			"runId":  verdict.RunID,
			"slug":   verdict.Slug,
			"target": target,
			"score":  verdict.Score,
			"level":  verdict.Level,
		})

		if hubVetJSON {
			if err := printJSON(cmd, verdict); err != nil {
				return err
			}
		} else {
			vet.Render(cmd.OutOrStdout(), verdict)
		}

		if hubVetInstallSafe {
			if !verdict.OK() {
				return fmt.Errorf("refusing install: %s scored %d (%s)", verdict.Slug, verdict.Score, verdict.Level)
			}
			installer := hub.NewInstaller(cfg, hub.NewClient(cfg))
			res, err := installer.Install(cmd.Context(), target, hub.InstallOptions{})
			if err != nil {
				return formatError("INSTALL_FAILED", err, "see the audit report above")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s to %s\n", res.Slug, res.Path)
			return nil
		}
		if len(verdict.Findings) > 0 {
			return fmt.Errorf("skill %s has %d finding(s), level %s", verdict.Slug, len(verdict.Findings), verdict.Level)
		}
		return nil
	},
}

var hubInstallCmd = &cobra.Command{
	Use:   "install <slug|path|url>",
	Short: "Vet and install a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		installer := hub.NewInstaller(cfg, hub.NewClient(cfg))
		res, err := installer.Install(cmd.Context(), args[0], hub.InstallOptions{
			ApproveWarnings: hubInstallApprove,
			DryRun:          hubInstallDryRun,
		})
		if res != nil && res.Verdict != nil && !hubInstallJSON {
			vet.Render(cmd.OutOrStdout(), res.Verdict)
		}
		if err != nil {
			if errors.Is(err, hub.ErrApprovalRequired) {
				return formatError("APPROVAL_REQUIRED", err, "review the findings above first")
			}
			if errors.Is(err, hub.ErrVetRefused) {
				return formatError("VET_REFUSED", err, "do not install this skill; report it if it came from the registry")
			}
			return formatError("INSTALL_FAILED", err, "check the target path, URL, or slug")
		}
		if hubInstallJSON {
			return printJSON(cmd, res)
		}
		if res.DryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %s passed vetting and would be installed.\n", res.Slug)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s to %s\n", res.Slug, res.Path)
		if res.Replaced {
			fmt.Fprintln(cmd.OutOrStdout(), "Previous version kept at "+res.Path+".previous")
		}
		return nil
	},
}

var hubListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		installed, err := hub.NewInstaller(cfg, nil).Installed()
		if err != nil {
			return formatError("INSTALL_LIST_FAILED", err, "check permissions on the skills directory")
		}
		if hubListJSON {
			return printJSON(cmd, installed)
		}
		if len(installed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No skills installed.")
			return nil
		}
		for _, s := range installed {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %s (score %d, %s)\n",
				s.Slug, s.Version, s.InstalledAt.Format(time.DateOnly), s.Score, s.Level)
		}
		return nil
	},
}

var hubUninstallCmd = &cobra.Command{
	Use:   "uninstall <slug>",
	Short: "Remove an installed skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		if err := hub.NewInstaller(cfg, nil).Uninstall(args[0]); err != nil {
			return formatError("UNINSTALL_FAILED", err, "run 'clawkit hub list' to see installed skills")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var hubUpdatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Check installed skills for newer registry versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return formatError("CONFIG_LOAD_FAILED", err, "check ~/.clawkit/config.json")
		}
		installer := hub.NewInstaller(cfg, hub.NewClient(cfg))
		updates, err := installer.CheckUpdates(cmd.Context())
		if err != nil {
			return formatError("UPDATE_CHECK_FAILED", err, "check network access to "+cfg.Registry.BaseURL)
		}
		if hubUpdatesJSON {
			return printJSON(cmd, updates)
		}
		if len(updates) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All installed skills are up to date.")
			return nil
		}
		for _, u := range updates {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s → %s\n", u.Slug, u.InstalledVersion, u.LatestVersion)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Update with: clawkit hub install <slug>")
		return nil
	},
}

// registryMetaFor looks up reputation metadata for credibility scoring. Lookup
// failures degrade to scoring without credits.
func registryMetaFor(ctx context.Context, cfg *config.Config, slug string) *vet.RegistryMeta {
	if slug == "" {
		return nil
	}
	if cache, err := hub.OpenCache(cfg); err == nil {
		defer cache.Close()
		if cached, fresh, err := cache.Get(slug); err == nil && fresh {
			return cached.RegistryMeta()
		}
	}
	skill, err := hub.NewClient(cfg).Skill(ctx, slug)
	if err != nil {
		return nil
	}
	return skill.RegistryMeta()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	hubSearchCmd.Flags().BoolVar(&hubSearchJSON, "json", false, "Emit results as JSON")
	hubSearchCmd.Flags().IntVar(&hubSearchLimit, "limit", 20, "Maximum results")
	hubSearchCmd.Flags().BoolVar(&hubSearchNoCache, "no-cache", false, "Bypass the local registry cache")
	hubTrendingCmd.Flags().BoolVar(&hubTrendingJSON, "json", false, "Emit results as JSON")
	hubTrendingCmd.Flags().IntVar(&hubTrendingLimit, "limit", 10, "Maximum results")
	hubInfoCmd.Flags().BoolVar(&hubInfoJSON, "json", false, "Emit the record as JSON")
	hubRecommendCmd.Flags().BoolVar(&hubRecommendJSON, "json", false, "Emit recommendations as JSON")
	hubRecommendCmd.Flags().StringVar(&hubRecommendChan, "channel", "", "Recommend for a channel (slack, telegram, ...)")
	hubRecommendCmd.Flags().StringVar(&hubRecommendUse, "use-case", "", "Recommend for a use case (calendar, image, ...)")
	hubRecommendCmd.Flags().IntVar(&hubRecommendTop, "top", 10, "Maximum recommendations")
	hubVetCmd.Flags().BoolVar(&hubVetJSON, "json", false, "Emit the verdict as JSON")
	hubVetCmd.Flags().BoolVar(&hubVetInstallSafe, "install-if-safe", false, "Install only when the verdict is SAFE")
	hubInstallCmd.Flags().BoolVar(&hubInstallApprove, "approve-warnings", false, "Install despite CAUTION-level findings")
	hubInstallCmd.Flags().BoolVar(&hubInstallDryRun, "dry-run", false, "Vet and report without installing")
	hubInstallCmd.Flags().BoolVar(&hubInstallJSON, "json", false, "Emit the result as JSON")
	hubListCmd.Flags().BoolVar(&hubListJSON, "json", false, "Emit the list as JSON")
	hubUpdatesCmd.Flags().BoolVar(&hubUpdatesJSON, "json", false, "Emit updates as JSON")

	hubCmd.AddCommand(hubSearchCmd)
	hubCmd.AddCommand(hubTrendingCmd)
	hubCmd.AddCommand(hubInfoCmd)
	hubCmd.AddCommand(hubRecommendCmd)
	hubCmd.AddCommand(hubVetCmd)
	hubCmd.AddCommand(hubInstallCmd)
	hubCmd.AddCommand(hubListCmd)
	hubCmd.AddCommand(hubUninstallCmd)
	hubCmd.AddCommand(hubUpdatesCmd)
	rootCmd.AddCommand(hubCmd)
}
