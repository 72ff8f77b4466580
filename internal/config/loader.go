package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "PRICEFEED"

// envOverrides lists the values that may be set from PRICEFEED_* variables.
type envOverrides struct {
	WSURL     string `envconfig:"WS_URL"`
	RestURL   string `envconfig:"REST_URL"`
	Token     string `envconfig:"TOKEN"`
	Email     string `envconfig:"EMAIL"`
	Password  string `envconfig:"PASSWORD"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
}

// LoadEnvFiles loads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are never overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(".env", filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}

	if env.WSURL != "" {
		c.Feed.WSURL = env.WSURL
	}
	if env.RestURL != "" {
		c.API.RestURL = env.RestURL
	}
	if env.Token != "" {
		c.API.Token = env.Token
	}
	if env.Email != "" {
		c.API.Email = env.Email
	}
	if env.Password != "" {
		c.API.Password = env.Password
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.RedisAddr != "" {
		c.Cache.Addr = env.RedisAddr
	}
	return nil
}
