// Package gateway reads and validates the configuration of the gateway
// installation that clawkit assists. The gateway owns this file; clawkit only
// inspects it.
package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clawkit/clawkit/internal/config"
)

// DefaultConfigDir is the gateway's default config directory name.
const DefaultConfigDir = ".openclaw"

// DefaultConfigFile is the gateway's default config file name.
const DefaultConfigFile = "openclaw.json"

// ConfigPath resolves the gateway config file location. Order: clawkit config
// override, OPENCLAW_CONFIG env, then ~/.openclaw/openclaw.json.
func ConfigPath(cfg *config.Config) (string, error) {
	if cfg != nil {
		if explicit := strings.TrimSpace(cfg.Gateway.ConfigPath); explicit != "" {
			return expandHome(explicit)
		}
	}
	if explicit := strings.TrimSpace(os.Getenv("OPENCLAW_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Document is the gateway's parsed config. The gateway accepts several schema
// generations (flat and nested), so the document stays schema-loose and typed
// access goes through helpers.
type Document map[string]any

// Load reads and parses the gateway config file.
func Load(cfg *config.Config) (Document, string, error) {
	path, err := ConfigPath(cfg)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, path, fmt.Errorf("parse gateway config %s: %w", path, err)
	}
	return doc, path, nil
}

// Section returns a nested object, or an empty map when absent or mistyped.
func (d Document) Section(keys ...string) map[string]any {
	cur := map[string]any(d)
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	return cur
}

// Path returns the value at a dot-notation path, or nil.
func (d Document) Path(path string) any {
	keys := strings.Split(path, ".")
	var cur any = map[string]any(d)
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[k]
		if !ok {
			return nil
		}
	}
	return cur
}

// String returns the string at a dot path, or "".
func (d Document) String(path string) string {
	s, _ := d.Path(path).(string)
	return s
}

// EnabledChannels returns the names of channels with enabled=true.
func (d Document) EnabledChannels() []string {
	channels := d.Section("channels")
	names := make([]string, 0, len(channels))
	for name, raw := range channels {
		if cc, ok := raw.(map[string]any); ok {
			if enabled, _ := cc["enabled"].(bool); enabled {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Model returns the configured AI model name, checking the flat agent.model
// field and the nested agents.defaults.model.primary field.
func (d Document) Model() string {
	if m := d.String("agent.model"); m != "" {
		return m
	}
	modelCfg := d.Path("agents.defaults.model")
	switch v := modelCfg.(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["primary"].(string)
		return s
	}
	return ""
}
