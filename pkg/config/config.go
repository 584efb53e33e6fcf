// Package config provides configuration management for the reduction tool.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// Config holds all configuration for the application.
type Config struct {
	Planner   PlannerConfig   `mapstructure:"planner"`
	Reduction ReductionConfig `mapstructure:"reduction"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

// PlannerConfig holds the cost model constants used by the distribution
// planner. The send/add times are engineering calibrations, not protocol
// constants, so they stay configurable.
type PlannerConfig struct {
	TSendNs      float64 `mapstructure:"t_send_ns"`
	TAddNs       float64 `mapstructure:"t_add_ns"`
	VarianceStep float64 `mapstructure:"variance_step"`
}

// ReductionConfig holds tuning knobs of the tree reduction engine.
type ReductionConfig struct {
	// FlushThreshold is the subtree size above which the outbox is
	// flushed before starting the local reduction.
	FlushThreshold uint64 `mapstructure:"flush_threshold"`
}

// DatabaseConfig holds the run-record database configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, mysql or postgres
	Path     string `mapstructure:"path"` // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds input object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
	LocalPath string `mapstructure:"local_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/allreduce")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file, defaults apply.
		} else if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config file", err)
		}
	}

	v.SetEnvPrefix("ALLREDUCE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Planner.TSendNs <= 0 || c.Planner.TAddNs <= 0 {
		return apperrors.New(apperrors.CodeConfigError, "planner time constants must be positive")
	}
	if c.Planner.VarianceStep <= 0 || c.Planner.VarianceStep >= 1 {
		return apperrors.New(apperrors.CodeConfigError, "planner.variance_step must be in (0, 1)")
	}
	if c.Reduction.FlushThreshold == 0 {
		return apperrors.New(apperrors.CodeConfigError, "reduction.flush_threshold must be positive")
	}
	switch c.Database.Type {
	case "", "sqlite", "mysql", "postgres", "postgresql":
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported database type: %s", c.Database.Type)
	}
	switch c.Storage.Type {
	case "", "local", "cos":
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", c.Storage.Type)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Planner defaults, calibrated on the reference cluster.
	v.SetDefault("planner.t_send_ns", 110.0)
	v.SetDefault("planner.t_add_ns", 2.44)
	v.SetDefault("planner.variance_step", 1e-4)

	v.SetDefault("reduction.flush_threshold", 32)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./allreduce.db")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", ".")
	v.SetDefault("storage.scheme", "https")

	v.SetDefault("log.level", "info")
}
