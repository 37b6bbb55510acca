package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/picker/internal/filter"
	"github.com/cleared-dev/picker/internal/reconcile"
)

// FileName is the config file picker looks for in the working directory.
const FileName = "picker.yaml"

// EnvPrefix prefixes environment overrides, e.g. PICKER_BACKEND_BASE_URL.
const EnvPrefix = "PICKER"

// Config represents the top-level picker.yaml configuration.
type Config struct {
	Backend     BackendConfig     `yaml:"backend" mapstructure:"backend"`
	Filter      FilterConfig      `yaml:"filter" mapstructure:"filter"`
	ManualEntry ManualEntryConfig `yaml:"manual_entry" mapstructure:"manual_entry"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// BackendConfig locates the statement service.
type BackendConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"` // Go duration, e.g. "30s"
}

// FilterConfig controls how the filter treats unreadable dates.
type FilterConfig struct {
	DatePolicy string `yaml:"date_policy" mapstructure:"date_policy"` // "skip" or "fail"
}

// ManualEntryConfig controls when manually entered rows reach the store.
type ManualEntryConfig struct {
	Policy string `yaml:"policy" mapstructure:"policy"` // "confirmed" or "optimistic"
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "https://axim-backend.onrender.com/api",
			Timeout: "30s",
		},
		Filter: FilterConfig{
			DatePolicy: string(filter.SkipUnparseable),
		},
		ManualEntry: ManualEntryConfig{
			Policy: string(reconcile.Confirmed),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a picker.yaml file from disk and applies PICKER_* environment
// overrides on top. An empty path skips the file and yields the defaults
// plus overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("backend.base_url", def.Backend.BaseURL)
	v.SetDefault("backend.timeout", def.Backend.Timeout)
	v.SetDefault("filter.date_policy", def.Filter.DatePolicy)
	v.SetDefault("manual_entry.policy", def.ManualEntry.Policy)
	v.SetDefault("log.level", def.Log.Level)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks enum values, the log level and the timeout.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("invalid config: backend.base_url is empty")
	}
	if _, err := c.RequestTimeout(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := filter.ParseDatePolicy(c.Filter.DatePolicy); err != nil {
		return fmt.Errorf("invalid config: filter.date_policy: %w", err)
	}
	if _, err := reconcile.ParsePolicy(c.ManualEntry.Policy); err != nil {
		return fmt.Errorf("invalid config: manual_entry.policy: %w", err)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: log.level: %w", err)
	}
	return nil
}

// RequestTimeout parses backend.timeout. Zero means no timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	if c.Backend.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 0, fmt.Errorf("backend.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("backend.timeout: negative duration %s", d)
	}
	return d, nil
}
