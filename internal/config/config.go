// Package config loads user defaults for flavor-venv from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds user defaults. Command line flags take precedence over every field.
type Config struct {
	LogLevel      string `yaml:"log_level"`
	DefaultPython string `yaml:"default_python"`
	Jobs          int    `yaml:"jobs"`
	Offline       bool   `yaml:"offline"`
	CacheDir      string `yaml:"cache_dir"`
	IndexURL      string `yaml:"index_url"`
	// QueryTimeout bounds the interpreter introspection, zero keeps the built-in limit.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DefaultIndexURL is the trusted archive host.
const DefaultIndexURL = "https://files.pythonhosted.org/packages"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "warn",
		Jobs:     1,
		IndexURL: DefaultIndexURL,
	}
}

// DefaultPath returns the config file location used when none is given.
func DefaultPath() string {
	if p := os.Getenv("FLAVOR_VENV_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "flavor-venv", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	// Override with environment variables
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("FLAVOR_VENV_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FLAVOR_VENV_PYTHON"); v != "" {
		c.DefaultPython = v
	}
	if v := os.Getenv("FLAVOR_VENV_JOBS"); v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLAVOR_VENV_JOBS %q: %w", v, err)
		}
		c.Jobs = jobs
	}
	if v := os.Getenv("FLAVOR_VENV_OFFLINE"); v != "" {
		offline, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FLAVOR_VENV_OFFLINE %q: %w", v, err)
		}
		c.Offline = offline
	}
	if v := os.Getenv("FLAVOR_VENV_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("FLAVOR_VENV_INDEX_URL"); v != "" {
		c.IndexURL = v
	}
	if v := os.Getenv("FLAVOR_VENV_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLAVOR_VENV_QUERY_TIMEOUT %q: %w", v, err)
		}
		c.QueryTimeout = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must not be negative, got %s", c.QueryTimeout)
	}
	if c.Jobs == 0 {
		c.Jobs = 1
	}
	c.IndexURL = strings.TrimRight(c.IndexURL, "/")
	if c.IndexURL == "" {
		c.IndexURL = DefaultIndexURL
	}
	if !strings.HasPrefix(c.IndexURL, "https://") && !strings.HasPrefix(c.IndexURL, "http://") {
		return fmt.Errorf("index_url must be an http(s) URL, got %q", c.IndexURL)
	}
	return nil
}
