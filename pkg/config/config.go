package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full Hivemon server configuration
type Config struct {
	// Listen is the address the HTTP/SSE server binds to
	Listen string `yaml:"listen"`

	// DataDir holds the bbolt server registry
	DataDir string `yaml:"data_dir"`

	// Upstream is the default monitored cluster endpoint. Entries in
	// the server registry take precedence when selected explicitly.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Poll controls the multiplexer poll loop
	Poll PollConfig `yaml:"poll"`

	// Cache controls the snapshot cache
	Cache CacheConfig `yaml:"cache"`

	// Log controls structured logging output
	Log LogConfig `yaml:"log"`
}

// UpstreamConfig describes one cluster management API endpoint
type UpstreamConfig struct {
	URL            string        `yaml:"url"`
	TokenID        string        `yaml:"token_id"`
	Secret         string        `yaml:"secret"`
	SkipTLSVerify  bool          `yaml:"skip_tls_verify"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollConfig controls the multiplexer poll loop
type PollConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MaxSubscribers int           `yaml:"max_subscribers"` // 0 = unlimited
}

// CacheConfig controls the snapshot cache
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration defaults applied before any file
// or flag overrides
func Default() Config {
	return Config{
		Listen:  ":8090",
		DataDir: "/var/lib/hivemon",
		Upstream: UpstreamConfig{
			RequestTimeout: 10 * time.Second,
		},
		Poll: PollConfig{
			Interval: 5 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           4 * time.Second,
			MaxEntries:    256,
			SweepInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads the YAML config at path on top of the defaults. A missing
// file is not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Upstream.URL != "" {
		if _, err := url.ParseRequestURI(c.Upstream.URL); err != nil {
			return fmt.Errorf("invalid upstream url: %w", err)
		}
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Poll.MaxSubscribers < 0 {
		return fmt.Errorf("max subscribers must not be negative")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("upstream request timeout must be positive")
	}
	return nil
}
