// Package config provides configuration types and loading for clawkit.
package config

import "time"

// Config is the root configuration struct for the clawkit tool itself.
// The gateway's own configuration lives elsewhere and is only read, never
// owned, by this tool (see the gateway package).
type Config struct {
	Registry RegistryConfig `json:"registry"`
	Cache    CacheConfig    `json:"cache"`
	Install  InstallConfig  `json:"install"`
	Gateway  GatewayRef     `json:"gateway"`
	Doctor   DoctorConfig   `json:"doctor"`
}

// RegistryConfig points at the remote skill registry.
type RegistryConfig struct {
	BaseURL        string     `json:"baseUrl" envconfig:"BASE_URL"`
	TimeoutSeconds int        `json:"timeoutSeconds" envconfig:"TIMEOUT_SECONDS"`
	HTMLFallback   bool       `json:"htmlFallback" envconfig:"HTML_FALLBACK"`
	LinkPolicy     LinkPolicy `json:"linkPolicy"`
}

// LinkPolicy restricts which domains skill bundles may reference or be
// downloaded from.
type LinkPolicy struct {
	Mode             string   `json:"mode,omitempty" envconfig:"MODE"`
	AllowDomains     []string `json:"allowDomains,omitempty"`
	DenyDomains      []string `json:"denyDomains,omitempty"`
	AllowHTTP        bool     `json:"allowHttp,omitempty" envconfig:"ALLOW_HTTP"`
	MaxLinksPerSkill int      `json:"maxLinksPerSkill,omitempty" envconfig:"MAX_LINKS_PER_SKILL"`
}

// CacheConfig controls the local registry cache.
type CacheConfig struct {
	MaxAgeHours int `json:"maxAgeHours" envconfig:"MAX_AGE_HOURS"`
}

// InstallConfig controls where vetted skills are installed.
type InstallConfig struct {
	Root             string `json:"root,omitempty" envconfig:"ROOT"`
	ExternalInstalls bool   `json:"externalInstalls" envconfig:"EXTERNAL_INSTALLS"`
}

// GatewayRef locates the gateway installation this tool assists.
type GatewayRef struct {
	ConfigPath string `json:"configPath,omitempty" envconfig:"CONFIG_PATH"`
	Host       string `json:"host,omitempty" envconfig:"HOST"`
	Port       int    `json:"port,omitempty" envconfig:"PORT"`
}

// DoctorConfig tunes diagnostic thresholds.
type DoctorConfig struct {
	MinFreeDiskMB    uint64 `json:"minFreeDiskMb" envconfig:"MIN_FREE_DISK_MB"`
	MinFreeMemoryMB  uint64 `json:"minFreeMemoryMb" envconfig:"MIN_FREE_MEMORY_MB"`
	ProbeChannels    bool   `json:"probeChannels" envconfig:"PROBE_CHANNELS"`
	ProbeTimeoutSecs int    `json:"probeTimeoutSecs" envconfig:"PROBE_TIMEOUT_SECS"`
}

// RegistryTimeout returns the registry request timeout as a duration.
func (c *Config) RegistryTimeout() time.Duration {
	secs := c.Registry.TimeoutSeconds
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// CacheMaxAge returns the cache freshness window as a duration.
func (c *Config) CacheMaxAge() time.Duration {
	hours := c.Cache.MaxAgeHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// DefaultConfig returns a baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL:        "https://clawhub.ai",
			TimeoutSeconds: 30,
			HTMLFallback:   true,
			LinkPolicy: LinkPolicy{
				Mode:             "denylist",
				AllowHTTP:        false,
				MaxLinksPerSkill: 20,
			},
		},
		Cache: CacheConfig{
			MaxAgeHours: 24,
		},
		Install: InstallConfig{
			ExternalInstalls: true,
		},
		Gateway: GatewayRef{
			Host: "127.0.0.1",
			Port: 18789,
		},
		Doctor: DoctorConfig{
			MinFreeDiskMB:    512,
			MinFreeMemoryMB:  256,
			ProbeChannels:    true,
			ProbeTimeoutSecs: 10,
		},
	}
}
