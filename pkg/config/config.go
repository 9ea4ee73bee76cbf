// Package config loads an optional YAML file bundling TAL locations and
// run-wide defaults, supplementing the plain "point at a directory of
// .tal files" mode cmd/rpkivet supports without any config file at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TrustAnchor names one TAL entry by its on-disk path, so a config file
// can pin a specific set rather than everything under a directory.
type TrustAnchor struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Config is the optional multi-TAL bundle file. Every field has the same
// default the CLI flags apply, so an absent file and an empty file
// behave identically.
type Config struct {
	TrustAnchors []TrustAnchor `yaml:"trust_anchors"`

	CacheDir  string `yaml:"cache_dir"`
	OutputDir string `yaml:"output_dir"`

	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	ParserWorkers int           `yaml:"parser_workers"`

	StatusAddr string `yaml:"status_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads and parses the YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields with the process-wide
// defaults named in spec §6/§2.3.
func (c Config) ApplyDefaults() Config {
	if c.CacheDir == "" {
		c.CacheDir = envOr("RPKI_PATH_BASE_DIR", "/var/cache/rpki-client")
	}
	if c.OutputDir == "" {
		c.OutputDir = envOr("RPKI_PATH_OUT_DIR", "/var/db/rpki-client")
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 5 * time.Minute
	}
	if c.ParserWorkers == 0 {
		c.ParserWorkers = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
