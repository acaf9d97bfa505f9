// Package config loads the linkage CLI configuration.
//
// Values are layered, later sources winning: built-in defaults, the
// linkage.yaml file, LINKAGE_ environment variables and command-line flags.
// Nested keys are separated by a double underscore in the environment:
// LINKAGE_CACHE__TTL sets cache.ttl.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Default values.
const (
	DefaultFile      = "linkage.yaml"
	DefaultSchema    = "schema.yaml"
	DefaultDriver    = "sqlite"
	DefaultOutput    = "table"
	DefaultLogLevel  = "warn"
	DefaultBatchWait = time.Millisecond
	DefaultMaxBatch  = 100
	DefaultCacheTTL  = 5 * time.Minute
	DefaultSlowLoad  = 100 * time.Millisecond
)

// Config is the CLI configuration.
type Config struct {
	// Schema is the path of the schema file.
	Schema   string `koanf:"schema"`
	Driver   string `koanf:"driver"`
	DSN      string `koanf:"dsn"`
	Output   string `koanf:"output"` // table or yaml
	LogLevel string `koanf:"log_level"`
	// SlowLoad is the duration above which loads are logged as slow.
	SlowLoad time.Duration `koanf:"slow_load"`
	Batch    BatchConfig   `koanf:"batch"`
	Cache    CacheConfig   `koanf:"cache"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// BatchConfig configures load batching.
type BatchConfig struct {
	Wait time.Duration `koanf:"wait"`
	Max  int           `koanf:"max"`
}

// CacheConfig configures the membership cache.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
	MaxSize int64         `koanf:"max_size"`
}

func defaults() map[string]any {
	return map[string]any{
		"schema":         DefaultSchema,
		"driver":         DefaultDriver,
		"dsn":            "",
		"output":         DefaultOutput,
		"log_level":      DefaultLogLevel,
		"slow_load":      DefaultSlowLoad,
		"batch.wait":     DefaultBatchWait,
		"batch.max":      DefaultMaxBatch,
		"cache.enabled":  false,
		"cache.ttl":      DefaultCacheTTL,
		"cache.max_size": int64(32 << 20),
	}
}

// Load reads the configuration. An empty cfgFile means linkage.yaml in the
// working directory, which may be missing. Only flags that were set
// explicitly override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// LINKAGE_CACHE__TTL -> cache.ttl
	if err := k.Load(env.Provider("LINKAGE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "LINKAGE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the option values.
func (c *Config) Validate() error {
	switch c.Output {
	case "table", "yaml":
	default:
		return fmt.Errorf("config: invalid output %q (want table or yaml)", c.Output)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Batch.Max < 0 {
		return fmt.Errorf("config: batch.max must not be negative")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return l, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type configKey struct{}

// NewContext returns a context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored in ctx, or the defaults.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey{}).(*Config); ok {
		return cfg
	}
	return &Config{
		Schema:   DefaultSchema,
		Driver:   DefaultDriver,
		Output:   DefaultOutput,
		LogLevel: DefaultLogLevel,
		SlowLoad: DefaultSlowLoad,
		Batch:    BatchConfig{Wait: DefaultBatchWait, Max: DefaultMaxBatch},
		Cache:    CacheConfig{TTL: DefaultCacheTTL, MaxSize: 32 << 20},
	}
}
