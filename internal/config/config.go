// Package config loads taskscope's configuration from defaults, an optional
// YAML file and TASKSCOPE_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

const EnvPrefix = "TASKSCOPE"

type Config struct {
	Vault   VaultConfig   `yaml:"vault" mapstructure:"vault"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Query   QueryConfig   `yaml:"query" mapstructure:"query"`
	Watcher WatcherConfig `yaml:"watcher" mapstructure:"watcher"`
	Limits  LimitsConfig  `yaml:"limits" mapstructure:"limits"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type VaultConfig struct {
	Root          string   `yaml:"root" mapstructure:"root"`
	Extensions    []string `yaml:"extensions" mapstructure:"extensions"`
	IncludeHidden bool     `yaml:"include_hidden" mapstructure:"include_hidden"`
}

type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	// MaxFiles bounds the per-document cache; 0 means unbounded.
	MaxFiles int `yaml:"max_files" mapstructure:"max_files"`
}

type QueryConfig struct {
	// Timezone is an IANA name, "Local" or "UTC".
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	Locale   string `yaml:"locale" mapstructure:"locale"`
	// DefaultSort is used by list when no --sort is given, e.g. "due,priority".
	DefaultSort string `yaml:"default_sort" mapstructure:"default_sort"`
}

type WatcherConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DebounceMs      int           `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
}

type LimitsConfig struct {
	// ReadsPerSecond throttles document reads; 0 disables throttling.
	ReadsPerSecond float64 `yaml:"reads_per_second" mapstructure:"reads_per_second"`
	ReadBurst      int     `yaml:"read_burst" mapstructure:"read_burst"`
	MaxResults     int     `yaml:"max_results" mapstructure:"max_results"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vault.root", ".")
	v.SetDefault("vault.extensions", []string{".md"})
	v.SetDefault("vault.include_hidden", false)

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.batch_size", 10)
	v.SetDefault("cache.max_files", 0)

	v.SetDefault("query.timezone", "Local")
	v.SetDefault("query.locale", "und")
	v.SetDefault("query.default_sort", "due,priority")

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce_ms", 200)
	v.SetDefault("watcher.refresh_interval", 5*time.Minute)

	v.SetDefault("limits.reads_per_second", 0.0)
	v.SetDefault("limits.read_burst", 10)
	v.SetDefault("limits.max_results", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads path when non-empty. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges and returns *ValidationErrors when any fail.
func (c *Config) Validate() error {
	var ve ValidationErrors

	if strings.TrimSpace(c.Vault.Root) == "" {
		ve.add("vault.root", c.Vault.Root, "must not be empty")
	}
	if len(c.Vault.Extensions) == 0 {
		ve.add("vault.extensions", c.Vault.Extensions, "at least one extension is required")
	}
	for i, ext := range c.Vault.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			ve.add(fmt.Sprintf("vault.extensions[%d]", i), ext, "must start with a dot")
		}
	}

	if c.Cache.TTL <= 0 {
		ve.add("cache.ttl", c.Cache.TTL, "must be positive")
	}
	if c.Cache.BatchSize < 1 {
		ve.add("cache.batch_size", c.Cache.BatchSize, "must be at least 1")
	}
	if c.Cache.MaxFiles < 0 {
		ve.add("cache.max_files", c.Cache.MaxFiles, "must not be negative")
	}

	if _, err := c.Location(); err != nil {
		ve.add("query.timezone", c.Query.Timezone, err.Error())
	}
	if _, err := language.Parse(c.Query.Locale); err != nil {
		ve.add("query.locale", c.Query.Locale, err.Error())
	}

	if c.Watcher.DebounceMs < 0 {
		ve.add("watcher.debounce_ms", c.Watcher.DebounceMs, "must not be negative")
	}
	if c.Watcher.RefreshInterval < 0 {
		ve.add("watcher.refresh_interval", c.Watcher.RefreshInterval, "must not be negative")
	}

	if c.Limits.ReadsPerSecond < 0 {
		ve.add("limits.reads_per_second", c.Limits.ReadsPerSecond, "must not be negative")
	}
	if c.Limits.ReadsPerSecond > 0 && c.Limits.ReadBurst < 1 {
		ve.add("limits.read_burst", c.Limits.ReadBurst, "must be at least 1 when reads are throttled")
	}
	if c.Limits.MaxResults < 0 {
		ve.add("limits.max_results", c.Limits.MaxResults, "must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.add("logging.level", c.Logging.Level, "unknown level")
	}

	if !ve.empty() {
		return &ve
	}
	return nil
}

// Location resolves Query.Timezone. Empty and "Local" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	switch tz := strings.TrimSpace(c.Query.Timezone); tz {
	case "", "Local", "local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		return loc, nil
	}
}

// Locale returns the collation tag, language.Und when unparseable.
func (c *Config) Locale() language.Tag {
	tag, err := language.Parse(c.Query.Locale)
	if err != nil {
		return language.Und
	}
	return tag
}

func (w WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}
