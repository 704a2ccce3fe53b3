// Package config loads runtime settings from defaults, an optional YAML
// file, INSIGHT_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. INSIGHT_DB_PATH.
const EnvPrefix = "INSIGHT"

// DefaultConfigName is looked up in the working directory when no config
// file is given explicitly.
const DefaultConfigName = "insight"

// Config holds every runtime setting.
type Config struct {
	DBPath            string `mapstructure:"db_path"`
	MaxResults        int    `mapstructure:"max_results"`
	LogLevel          string `mapstructure:"log_level"`
	LogFormat         string `mapstructure:"log_format"`
	CacheSize         int    `mapstructure:"cache_size"`
	ParallelThreshold int    `mapstructure:"parallel_threshold"`
	Workers           int    `mapstructure:"workers"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath:            "insight.db",
		MaxResults:        5000,
		LogLevel:          "INFO",
		LogFormat:         "text",
		CacheSize:         8,
		ParallelThreshold: 256,
		Workers:           runtime.GOMAXPROCS(0),
	}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("max_results", d.MaxResults)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("cache_size", d.CacheSize)
	v.SetDefault("parallel_threshold", d.ParallelThreshold)
	v.SetDefault("workers", d.Workers)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds flags whose names match config keys, with dashes
// standing in for underscores ("--db-path" sets db_path).
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !slices.Contains(keys, key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %q: %w", f.Name, err)
		}
	})
	return bindErr
}

var keys = []string{"db_path", "max_results", "log_level", "log_format", "cache_size", "parallel_threshold", "workers"}

// Load reads the config file, if any, and decodes the merged settings.
//
// An explicit file must exist. Without one, ./insight.yaml (or any other
// extension viper understands) is read when present and silently skipped
// otherwise.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must be set"))
	}
	if c.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", c.MaxResults))
	}
	if c.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("cache_size must be positive, got %d", c.CacheSize))
	}
	if c.ParallelThreshold < 1 {
		errs = append(errs, fmt.Errorf("parallel_threshold must be positive, got %d", c.ParallelThreshold))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !isFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
