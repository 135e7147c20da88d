// Package doctor runs environment diagnostics for a gateway installation and
// can apply safe automatic fixes.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/slack-go/slack"

	"github.com/clawkit/clawkit/internal/config"
	"github.com/clawkit/clawkit/internal/fixer"
	"github.com/clawkit/clawkit/internal/gateway"
)

// Status is the outcome of one diagnostic check.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

// Check is a single diagnostic result. RecipeID names the fix recipe that
// addresses the problem, when one exists.
type Check struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	RecipeID string `json:"recipeId,omitempty"`
}

// Report is the full diagnostic run.
type Report struct {
	Checks      []Check       `json:"checks"`
	Fixes       []FixOutcome  `json:"fixes,omitempty"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Elapsed     time.Duration `json:"-"`
}

// FixOutcome records one auto-fix attempt made during a --fix run.
type FixOutcome struct {
	RecipeID string `json:"recipeId"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// HasFailures reports whether any check failed.
func (r Report) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == Fail {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any check warned.
func (r Report) HasWarnings() bool {
	for _, c := range r.Checks {
		if c.Status == Warn {
			return true
		}
	}
	return false
}

// Options tunes a diagnostic run.
type Options struct {
	// Fix applies safe recipes for failing checks that name one.
	Fix bool
	// SkipNetwork disables gateway/broker/channel reachability probes.
	SkipNetwork bool
}

// Run executes all diagnostics against the given clawkit config.
func Run(ctx context.Context, cfg *config.Config, opts Options) Report {
	start := time.Now()
	report := Report{Checks: make([]Check, 0, 12), GeneratedAt: start.UTC()}

	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			report.add("config_load", Fail, fmt.Sprintf("config load failed: %v", err), "")
			report.Elapsed = time.Since(start)
			return report
		}
		cfg = loaded
		report.add("config_load", Pass, "clawkit config loaded", "")
	}

	doc := checkGatewayConfig(&report, cfg)
	checkGatewaySettings(&report, cfg, doc)
	checkDisk(&report, cfg)
	checkMemory(&report, cfg)
	checkBinaries(&report)
	if !opts.SkipNetwork {
		checkGatewayReachable(ctx, &report, cfg, doc)
		if cfg.Doctor.ProbeChannels && doc != nil {
			checkSlack(ctx, &report, cfg, doc)
			checkBroker(ctx, &report, cfg, doc)
		}
	}

	if opts.Fix {
		applyFixes(&report, cfg)
	}
	report.Elapsed = time.Since(start)
	return report
}

func (r *Report) add(name string, status Status, message, recipeID string) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Message: message, RecipeID: recipeID})
}

func checkGatewayConfig(report *Report, cfg *config.Config) gateway.Document {
	doc, path, err := gateway.Load(cfg)
	if err != nil {
		report.add("gateway_config", Fail,
			fmt.Sprintf("gateway config unreadable at %s: %v", path, err), "init-config")
		return nil
	}
	report.add("gateway_config", Pass, fmt.Sprintf("gateway config found at %s", path), "")
	return doc
}

// checkGatewaySettings bridges the config analyzer into the doctor report:
// analyzer errors fail, warnings warn.
func checkGatewaySettings(report *Report, cfg *config.Config, doc gateway.Document) {
	if doc == nil {
		return
	}
	issues := gateway.Analyze(doc)
	added := 0
	for _, issue := range issues {
		if issue.Severity == gateway.SeverityInfo {
			continue
		}
		status := Warn
		if issue.Severity == gateway.SeverityError {
			status = Fail
		}
		report.add("gateway_settings", status,
			fmt.Sprintf("%s: %s", issue.Path, issue.Message), issue.RecipeID)
		added++
	}
	if added == 0 {
		report.add("gateway_settings", Pass, "gateway config has no issues", "")
	}
}

func checkDisk(report *Report, cfg *config.Config) {
	state, err := config.StateDir()
	if err != nil {
		state = "/"
	}
	usage, err := disk.Usage(state)
	if err != nil {
		// State dir may not exist yet on a fresh machine.
		if usage, err = disk.Usage("/"); err != nil {
			report.add("disk_space", Warn, fmt.Sprintf("cannot read disk usage: %v", err), "")
			return
		}
	}
	freeMB := usage.Free / (1 << 20)
	min := cfg.Doctor.MinFreeDiskMB
	if min > 0 && freeMB < min {
		report.add("disk_space", Fail,
			fmt.Sprintf("only %d MB free (minimum %d MB)", freeMB, min), "prune-state")
		return
	}
	report.add("disk_space", Pass, fmt.Sprintf("%d MB free", freeMB), "")
}

func checkMemory(report *Report, cfg *config.Config) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		report.add("memory", Warn, fmt.Sprintf("cannot read memory stats: %v", err), "")
		return
	}
	availMB := vm.Available / (1 << 20)
	min := cfg.Doctor.MinFreeMemoryMB
	if min > 0 && availMB < min {
		report.add("memory", Warn,
			fmt.Sprintf("only %d MB available (minimum %d MB)", availMB, min), "")
		return
	}
	report.add("memory", Pass, fmt.Sprintf("%d MB available", availMB), "")
}

func checkBinaries(report *Report) {
	for _, bin := range []string{"node", "npm"} {
		if path, err := exec.LookPath(bin); err == nil {
			report.add("binary_"+bin, Pass, fmt.Sprintf("%s found at %s", bin, path), "")
		} else {
			report.add("binary_"+bin, Warn, fmt.Sprintf("%s not found in PATH", bin), "")
		}
	}
}

func checkGatewayReachable(ctx context.Context, report *Report, cfg *config.Config, doc gateway.Document) {
	host := cfg.Gateway.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Gateway.Port
	if doc != nil {
		if p, ok := doc.Path("gateway.port").(float64); ok && int(p) > 0 {
			port = int(p)
		}
	}
	if port <= 0 {
		report.add("gateway_reachable", Warn, "gateway port unknown; skipping probe", "")
		return
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialer := net.Dialer{Timeout: probeTimeout(cfg)}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		report.add("gateway_reachable", Fail,
			fmt.Sprintf("gateway not reachable at %s: %v", addr, err), "")
		return
	}
	conn.Close()
	report.add("gateway_reachable", Pass, fmt.Sprintf("gateway listening on %s", addr), "")
}

// checkSlack verifies the configured Slack bot token with auth.test.
func checkSlack(ctx context.Context, report *Report, cfg *config.Config, doc gateway.Document) {
	slackCfg := doc.Section("channels", "slack")
	if enabled, _ := slackCfg["enabled"].(bool); !enabled {
		return
	}
	token, _ := slackCfg["botToken"].(string)
	if token == "" {
		token, _ = slackCfg["token"].(string)
	}
	if token == "" {
		report.add("slack_auth", Fail, "slack channel enabled but no bot token configured", "")
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout(cfg))
	defer cancel()
	auth, err := slack.New(token).AuthTestContext(probeCtx)
	if err != nil {
		report.add("slack_auth", Fail, fmt.Sprintf("slack auth.test failed: %v", err), "")
		return
	}
	report.add("slack_auth", Pass,
		fmt.Sprintf("slack authenticated as %s (team %s)", auth.User, auth.Team), "")
}

// checkBroker dials the configured Kafka broker and exchanges ApiVersions.
func checkBroker(ctx context.Context, report *Report, cfg *config.Config, doc gateway.Document) {
	broker := firstBroker(doc)
	if broker == "" {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout(cfg))
	defer cancel()
	dialer := &kafka.Dialer{Timeout: probeTimeout(cfg)}
	conn, err := dialer.DialContext(probeCtx, "tcp", broker)
	if err != nil {
		report.add("kafka_broker", Fail, fmt.Sprintf("broker dial failed for %s: %v", broker, err), "")
		return
	}
	defer conn.Close()
	if _, err := conn.ApiVersions(); err != nil {
		report.add("kafka_broker", Fail, fmt.Sprintf("broker %s rejected ApiVersions: %v", broker, err), "")
		return
	}
	report.add("kafka_broker", Pass, fmt.Sprintf("broker %s responded", broker), "")
}

func firstBroker(doc gateway.Document) string {
	switch v := doc.Path("bus.kafka.brokers").(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return doc.String("bus.kafka.broker")
}

// applyFixes runs the safe recipe named by each failing check, once per
// recipe.
func applyFixes(report *Report, cfg *config.Config) {
	gatewayPath, err := gateway.ConfigPath(cfg)
	if err != nil {
		gatewayPath = ""
	}
	engine, err := fixer.NewEngine(gatewayPath)
	if err != nil {
		report.add("auto_fix", Fail, fmt.Sprintf("cannot load fix recipes: %v", err), "")
		return
	}
	applied := map[string]struct{}{}
	for _, c := range report.Checks {
		if c.Status != Fail || c.RecipeID == "" {
			continue
		}
		if _, done := applied[c.RecipeID]; done {
			continue
		}
		applied[c.RecipeID] = struct{}{}
		if !engine.CanAutoFix(c.RecipeID) {
			report.Fixes = append(report.Fixes, FixOutcome{
				RecipeID: c.RecipeID,
				Message:  "recipe requires manual confirmation; run `clawkit fixes` for steps",
			})
			continue
		}
		res := engine.Execute(c.RecipeID, false, nil)
		report.Fixes = append(report.Fixes, FixOutcome{
			RecipeID: c.RecipeID,
			Success:  res.Success,
			Message:  res.Message,
		})
	}
}

func probeTimeout(cfg *config.Config) time.Duration {
	secs := cfg.Doctor.ProbeTimeoutSecs
	if secs <= 0 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}
