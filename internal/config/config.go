// Package config loads barforge's runtime settings from a YAML file plus
// environment variable overrides via viper, the way the teacher's own
// internal/config.Load builds a Config from a config file and a prefixed
// env layer.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// Config holds every setting the CLI and HTTP entrypoints bootstrap from.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Workers WorkersConfig `mapstructure:"workers"`
	Study   StudyConfig   `mapstructure:"study"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig controls where study databases and exported artifacts live.
type StorageConfig struct {
	Dir             string   `mapstructure:"dir"`
	AllowedCSVRoots []string `mapstructure:"allowed_csv_roots"`
}

// WorkersConfig bounds the optimizer's trial worker pool.
type WorkersConfig struct {
	Min     int `mapstructure:"min"`
	Max     int `mapstructure:"max"`
	Default int `mapstructure:"default"`
}

// StudyConfig holds default sampler/budget settings read from the config
// file. Load only parses them; nothing in this module copies them into a
// request's OptimizationConfig.
type StudyConfig struct {
	DefaultSampler       types.Sampler    `mapstructure:"default_sampler"`
	DefaultBudgetMode    types.BudgetMode `mapstructure:"default_budget_mode"`
	DefaultBudgetTrials  int              `mapstructure:"default_budget_trials"`
	DefaultWarmupTrials  int              `mapstructure:"default_warmup_trials"`
}

// ServerConfig holds the HTTP/websocket listener settings for cmd/server.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	EnableMetrics      bool          `mapstructure:"enable_metrics"`
}

// LoggingConfig controls the zap logger's encoding and verbosity.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configPath (a barforge.yaml) and layers BARFORGE_*
// environment variables on top. An empty configPath skips the file read
// and falls back to defaults plus environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("BARFORGE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Workers.Min, cfg.Workers.Max = clampPoolBounds(cfg.Workers.Min, cfg.Workers.Max)
	if cfg.Workers.Default < cfg.Workers.Min {
		cfg.Workers.Default = cfg.Workers.Min
	}
	if cfg.Workers.Default > cfg.Workers.Max {
		cfg.Workers.Default = cfg.Workers.Max
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.allowed_csv_roots", []string{"./data/csv"})

	v.SetDefault("workers.min", 1)
	v.SetDefault("workers.max", 32)
	v.SetDefault("workers.default", 4)

	v.SetDefault("study.default_sampler", string(types.SamplerTPE))
	v.SetDefault("study.default_budget_mode", string(types.BudgetTrials))
	v.SetDefault("study.default_budget_trials", 200)
	v.SetDefault("study.default_warmup_trials", 10)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")
	v.SetDefault("server.enable_metrics", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// clampPoolBounds keeps the configured worker pool inside the engine's
// supported [1,32] range, mirroring workers.ClampWorkers so a bad config
// file can't request an out-of-range pool.
func clampPoolBounds(min, max int) (int, int) {
	const lo, hi = 1, 32
	if min < lo {
		min = lo
	}
	if max > hi {
		max = hi
	}
	if max < min {
		max = min
	}
	return min, max
}

// IsCSVRootAllowed reports whether path falls under one of the configured
// allowed CSV roots. Entrypoints use this to reject arbitrary filesystem
// reads requested by a study submission.
func (c *Config) IsCSVRootAllowed(path string) bool {
	for _, root := range c.Storage.AllowedCSVRoots {
		if root == "" {
			continue
		}
		if hasPathPrefix(path, root) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, root string) bool {
	if len(path) < len(root) {
		return false
	}
	if path[:len(root)] != root {
		return false
	}
	return len(path) == len(root) || path[len(root)] == '/'
}
