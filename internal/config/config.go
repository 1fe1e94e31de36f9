// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	faroerr "github.com/faro-dev/faro/pkg/errors"
)

// Config is the top-level Faro configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Routing RoutingConfig `mapstructure:"routing"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// ServerConfig controls the HTTP observation surface.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// RoutingConfig tunes the circuit breaker and dispatch loop.
type RoutingConfig struct {
	FailureThreshold uint64        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	CandidateRetries int           `mapstructure:"candidate_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	DefaultBudgetUSD float64       `mapstructure:"default_budget_usd"`
}

// CatalogConfig locates the provider catalog document. The catalog is
// read once at startup; there is no hot reload.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// SetDefaults installs configuration defaults on the given Viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:18650")
	v.SetDefault("routing.failure_threshold", 3)
	v.SetDefault("routing.cooldown", "300s")
	v.SetDefault("routing.max_attempts", 5)
	v.SetDefault("routing.candidate_retries", 0)
	v.SetDefault("routing.backoff_base", "250ms")
	v.SetDefault("routing.backoff_max", "2s")
	v.SetDefault("routing.default_budget_usd", 0.0)
	v.SetDefault("catalog.path", "catalog.yaml")
}

// SetupEnv binds FARO_-prefixed environment variables on the given Viper.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("FARO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix FARO_).
func Load(path string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, faroerr.Errorf(faroerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config from an already-populated
// Viper (used by the CLI, which layers flags on top).
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, faroerr.Errorf(faroerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a
// slice of all validation errors found, collecting all issues rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateRouting()...)

	if c.Catalog.Path == "" {
		errs = append(errs, faroerr.New(faroerr.CodeConfigValidateInvalidValue,
			"config: catalog.path must not be empty"))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, faroerr.New(faroerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}

	host, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}
	_ = host // host can be empty (e.g., ":8080"), which is valid

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateRouting() []error {
	var errs []error

	if c.Routing.FailureThreshold == 0 {
		errs = append(errs, faroerr.New(faroerr.CodeConfigValidateInvalidValue,
			"config: routing.failure_threshold must be greater than 0"))
	}
	if c.Routing.Cooldown <= 0 {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: routing.cooldown must be positive, got %s", c.Routing.Cooldown))
	}
	if c.Routing.MaxAttempts <= 0 {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: routing.max_attempts must be greater than 0, got %d", c.Routing.MaxAttempts))
	}
	if c.Routing.CandidateRetries < 0 {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: routing.candidate_retries must be non-negative, got %d", c.Routing.CandidateRetries))
	}
	if c.Routing.CandidateRetries > 0 {
		if c.Routing.BackoffBase <= 0 {
			errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
				"config: routing.backoff_base must be positive when retries are enabled, got %s", c.Routing.BackoffBase))
		}
		if c.Routing.BackoffMax < c.Routing.BackoffBase {
			errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
				"config: routing.backoff_max must be at least backoff_base, got %s < %s",
				c.Routing.BackoffMax, c.Routing.BackoffBase))
		}
	}
	if c.Routing.DefaultBudgetUSD < 0 {
		errs = append(errs, faroerr.Errorf(faroerr.CodeConfigValidateInvalidValue,
			"config: routing.default_budget_usd must be non-negative, got %g", c.Routing.DefaultBudgetUSD))
	}

	return errs
}
