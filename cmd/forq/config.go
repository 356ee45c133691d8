package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forqio/forq"
)

// fileConfig is the YAML configuration file. Every field is optional;
// zero values fall back to the engine defaults.
type fileConfig struct {
	// Store selects the backend: sqlite (default), postgres, or redis.
	Store string `yaml:"store"`

	SQLite struct {
		// Path is the database file. Defaults to forq.db.
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	Postgres struct {
		// DSN is a pgx connection string or URL.
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	Redis struct {
		// Addr is host:port. Defaults to localhost:6379.
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Concurrency         int      `yaml:"concurrency"`
	PollInterval        duration `yaml:"poll_interval"`
	ShutdownTimeout     duration `yaml:"shutdown_timeout"`
	DefaultMaxRetries   *int     `yaml:"default_max_retries"`
	BaseBackoff         duration `yaml:"base_backoff"`
	StaleClaimThreshold duration `yaml:"stale_claim_threshold"`

	Log struct {
		// Level is debug, info, warn, or error. Defaults to info.
		Level string `yaml:"level"`
		// Format is text or json. Defaults to text.
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// duration parses YAML values like "500ms" or "2s"; yaml.v3 only decodes
// time.Duration from integer nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// defaultConfigPath is tried when --config is not given. A missing file
// is not an error; defaults apply.
const defaultConfigPath = "forq.yaml"

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// engineConfig maps the file settings onto the engine config, leaving
// engine defaults in place for anything unset.
func (c *fileConfig) engineConfig() forq.Config {
	cfg := forq.DefaultConfig()
	if c.Concurrency > 0 {
		cfg.Concurrency = c.Concurrency
	}
	if c.PollInterval > 0 {
		cfg.PollInterval = time.Duration(c.PollInterval)
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = time.Duration(c.ShutdownTimeout)
	}
	if c.DefaultMaxRetries != nil && *c.DefaultMaxRetries >= 0 {
		cfg.DefaultMaxRetries = *c.DefaultMaxRetries
	}
	if c.BaseBackoff > 0 {
		cfg.BaseBackoff = time.Duration(c.BaseBackoff)
	}
	if c.StaleClaimThreshold > 0 {
		cfg.StaleClaimThreshold = time.Duration(c.StaleClaimThreshold)
	}
	return cfg
}
