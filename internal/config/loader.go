package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".clawkit"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the clawkit config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("CLAWKIT_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// StateDir returns the directory holding clawkit-owned state (cache, audit
// log, installed skill metadata).
func StateDir() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("CLAWKIT_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	return os.UserHomeDir()
}

// Load reads the config file, falling back to defaults when it is missing,
// then applies CLAWKIT_* environment overrides per group.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	envconfig.Process("CLAWKIT_REGISTRY", &cfg.Registry)
	envconfig.Process("CLAWKIT_REGISTRY_LINKPOLICY", &cfg.Registry.LinkPolicy)
	envconfig.Process("CLAWKIT_CACHE", &cfg.Cache)
	envconfig.Process("CLAWKIT_INSTALL", &cfg.Install)
	envconfig.Process("CLAWKIT_GATEWAY", &cfg.Gateway)
	envconfig.Process("CLAWKIT_DOCTOR", &cfg.Doctor)

	normalize(cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Registry.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Registry.BaseURL), "/")
	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = DefaultConfig().Registry.BaseURL
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Registry.LinkPolicy.Mode)) {
	case "allowlist", "denylist", "open":
		cfg.Registry.LinkPolicy.Mode = strings.ToLower(strings.TrimSpace(cfg.Registry.LinkPolicy.Mode))
	default:
		cfg.Registry.LinkPolicy.Mode = "denylist"
	}
	if cfg.Registry.LinkPolicy.MaxLinksPerSkill <= 0 {
		cfg.Registry.LinkPolicy.MaxLinksPerSkill = 20
	}
	if cfg.Cache.MaxAgeHours <= 0 {
		cfg.Cache.MaxAgeHours = 24
	}
	if cfg.Doctor.ProbeTimeoutSecs <= 0 {
		cfg.Doctor.ProbeTimeoutSecs = 10
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
