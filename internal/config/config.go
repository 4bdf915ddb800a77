// Package config loads atlas settings from an optional config file, ATLAS_*
// environment variables and built-in defaults, in increasing order of
// precedence: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jward/atlas/internal/logging"
)

// Config is the complete atlas configuration.
type Config struct {
	CacheDir string      `mapstructure:"cache_dir"`
	Log      LogConfig   `mapstructure:"log"`
	Index    IndexConfig `mapstructure:"index"`
	Query    QueryConfig `mapstructure:"query"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type IndexConfig struct {
	Parallel bool `mapstructure:"parallel"`
	// Workers is the parse pool size; 0 means one per CPU.
	Workers int `mapstructure:"workers"`
}

type QueryConfig struct {
	BudgetMS          int `mapstructure:"budget_ms"`
	ConceptLimit      int `mapstructure:"concept_limit"`
	RelationshipLimit int `mapstructure:"relationship_limit"`
	MaxDepth          int `mapstructure:"max_depth"`
}

// Budget returns the per-request execution budget.
func (q QueryConfig) Budget() time.Duration {
	return time.Duration(q.BudgetMS) * time.Millisecond
}

// DefaultCacheDir is the user cache directory, or the system temp directory
// when the platform has none.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		CacheDir: DefaultCacheDir(),
		Log:      LogConfig{Level: "warn", Format: "text"},
		Index:    IndexConfig{Parallel: true},
		Query: QueryConfig{
			BudgetMS:          2000,
			ConceptLimit:      20,
			RelationshipLimit: 5,
			MaxDepth:          3,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("index.parallel", d.Index.Parallel)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("query.budget_ms", d.Query.BudgetMS)
	v.SetDefault("query.concept_limit", d.Query.ConceptLimit)
	v.SetDefault("query.relationship_limit", d.Query.RelationshipLimit)
	v.SetDefault("query.max_depth", d.Query.MaxDepth)
}

// Load reads configuration. An explicit path must exist; otherwise
// <workspace>/.atlas/config.{yaml,toml,json} is used when present.
func Load(path, workspace string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(workspace, ".atlas"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return &ConfigError{Field: "cache_dir", Message: "must not be empty"}
	}
	if _, ok := logging.ParseFormat(c.Log.Format); !ok {
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	for field, value := range map[string]int{
		"index.workers":            c.Index.Workers,
		"query.budget_ms":          c.Query.BudgetMS,
		"query.concept_limit":      c.Query.ConceptLimit,
		"query.relationship_limit": c.Query.RelationshipLimit,
		"query.max_depth":          c.Query.MaxDepth,
	} {
		if value < 0 {
			return &ConfigError{Field: field, Message: fmt.Sprintf("must not be negative, got %d", value)}
		}
	}
	return nil
}

// ConfigError reports an invalid field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
