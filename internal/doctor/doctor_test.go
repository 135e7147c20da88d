package doctor

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clawkit/clawkit/internal/config"
)

func testConfig(t *testing.T, gatewayDoc map[string]any) *config.Config {
	t.Helper()
	t.Setenv("CLAWKIT_HOME", t.TempDir())
	t.Setenv("CLAWKIT_CONFIG", "")
	cfg := config.DefaultConfig()
	cfg.Doctor.ProbeChannels = false
	if gatewayDoc != nil {
		path := filepath.Join(t.TempDir(), "openclaw.json")
		data, err := json.Marshal(gatewayDoc)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		cfg.Gateway.ConfigPath = path
	} else {
		cfg.Gateway.ConfigPath = filepath.Join(t.TempDir(), "missing.json")
	}
	return cfg
}

func findCheck(t *testing.T, r Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report: %+v", name, r.Checks)
	return Check{}
}

func validGatewayDoc(t *testing.T) map[string]any {
	t.Helper()
	workspace := t.TempDir()
	return map[string]any{
		"gateway": map[string]any{
			"port": 18789,
			"bind": "127.0.0.1",
			"auth": map[string]any{"mode": "token", "token": "secret"},
		},
		"agent": map[string]any{
			"model":     "claude-sonnet",
			"workspace": workspace,
		},
		"channels": map[string]any{
			"slack": map[string]any{
				"enabled":  true,
				"token":    "xoxb-test",
				"appToken": "xapp-test",
			},
		},
	}
}

func TestRunMissingGatewayConfig(t *testing.T) {
	cfg := testConfig(t, nil)
	report := Run(context.Background(), cfg, Options{SkipNetwork: true})

	check := findCheck(t, report, "gateway_config")
	if check.Status != Fail {
		t.Fatalf("gateway_config = %s, want fail", check.Status)
	}
	if check.RecipeID != "init-config" {
		t.Fatalf("recipeId = %q, want init-config", check.RecipeID)
	}
	if !report.HasFailures() {
		t.Fatal("report must flag failures")
	}
}

func TestRunHealthyGatewayConfig(t *testing.T) {
	cfg := testConfig(t, validGatewayDoc(t))
	report := Run(context.Background(), cfg, Options{SkipNetwork: true})

	if c := findCheck(t, report, "gateway_config"); c.Status != Pass {
		t.Fatalf("gateway_config = %s: %s", c.Status, c.Message)
	}
	if c := findCheck(t, report, "gateway_settings"); c.Status != Pass {
		t.Fatalf("gateway_settings = %s: %s", c.Status, c.Message)
	}
	if c := findCheck(t, report, "disk_space"); c.Status == Fail {
		t.Fatalf("disk_space failed unexpectedly: %s", c.Message)
	}
	findCheck(t, report, "memory")
	findCheck(t, report, "binary_node")
}

func TestRunBridgesAnalyzerIssues(t *testing.T) {
	doc := validGatewayDoc(t)
	delete(doc["gateway"].(map[string]any), "auth")
	doc["gateway"].(map[string]any)["port"] = 99999
	cfg := testConfig(t, doc)
	report := Run(context.Background(), cfg, Options{SkipNetwork: true})

	var sawPortError, sawAuthWarning bool
	for _, c := range report.Checks {
		if c.Name != "gateway_settings" {
			continue
		}
		if c.Status == Fail && strings.Contains(c.Message, "gateway.port") {
			sawPortError = true
		}
		if c.Status == Warn && c.RecipeID == "gateway-auth-token" {
			sawAuthWarning = true
		}
	}
	if !sawPortError {
		t.Fatalf("invalid port must fail gateway_settings: %+v", report.Checks)
	}
	if !sawAuthWarning {
		t.Fatalf("missing auth mode must warn with its recipe: %+v", report.Checks)
	}
}

func TestGatewayReachableProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	doc := validGatewayDoc(t)
	doc["gateway"].(map[string]any)["port"] = port
	cfg := testConfig(t, doc)
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Doctor.ProbeTimeoutSecs = 2

	report := Run(context.Background(), cfg, Options{})
	if c := findCheck(t, report, "gateway_reachable"); c.Status != Pass {
		t.Fatalf("gateway_reachable = %s: %s", c.Status, c.Message)
	}
}

func TestGatewayUnreachableProbe(t *testing.T) {
	// Reserve a port, then close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	doc := validGatewayDoc(t)
	doc["gateway"].(map[string]any)["port"] = port
	cfg := testConfig(t, doc)
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Doctor.ProbeTimeoutSecs = 1

	report := Run(context.Background(), cfg, Options{})
	if c := findCheck(t, report, "gateway_reachable"); c.Status != Fail {
		t.Fatalf("gateway_reachable = %s, want fail", c.Status)
	}
}

func TestFixAppliesInitConfigRecipe(t *testing.T) {
	t.Setenv("CLAWKIT_HOME", t.TempDir())
	t.Setenv("CLAWKIT_CONFIG", "")
	cfg := config.DefaultConfig()
	cfg.Doctor.ProbeChannels = false
	cfg.Gateway.ConfigPath = filepath.Join(t.TempDir(), "openclaw.json")

	report := Run(context.Background(), cfg, Options{Fix: true, SkipNetwork: true})

	var fixed bool
	for _, f := range report.Fixes {
		if f.RecipeID == "init-config" && f.Success {
			fixed = true
		}
	}
	if !fixed {
		t.Fatalf("init-config fix did not run: %+v", report.Fixes)
	}
	if _, err := os.Stat(cfg.Gateway.ConfigPath); err != nil {
		t.Fatal("fix did not create the gateway config:", err)
	}
}
