// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the intake service configuration.
//
// # Sources
//
// Values are layered, later sources winning:
//
//  1. Default()
//  2. the YAML file passed to Load
//  3. environment variables (see applyEnv)
//  4. CLI flags, applied by cmd/intake
//
// The clinic section can change while the service runs; Watcher reloads it
// from the same file. Every other section is read once at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
	"github.com/AleutianAI/AleutianIntake/services/intake/faq"
)

// Defaults.
const (
	DefaultPort           = 8080
	DefaultSessionDriver  = "memory"
	DefaultBadgerPath     = "./data/sessions"
	DefaultSweepInterval  = 10 * time.Minute
	DefaultRateLimit      = 50
	DefaultRateBurst      = 100
	DefaultServiceName    = "aleutian-intake"
	DefaultRedisKeyPrefix = "intake:session:"
)

var configValidate = validator.New()

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	FAQ       FAQConfig       `yaml:"faq"`
	Clinic    *clinic.Config  `yaml:"clinic" validate:"-"`
}

// ServerConfig controls the HTTP surface.
//
// # Fields
//
//   - Port: Listen port.
//   - RateLimit: Sustained webhook requests per second. 0 disables.
//   - RateBurst: Token bucket size.
//   - ReplayTTL: How long responses are kept for redelivered responseIds.
//   - ReplayCapacity: Maximum cached responses.
//   - ShutdownTimeout: Grace period for in-flight requests.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	RateLimit       float64       `yaml:"rate_limit" validate:"min=0"`
	RateBurst       int           `yaml:"rate_burst" validate:"min=0"`
	ReplayTTL       time.Duration `yaml:"replay_ttl" validate:"min=0"`
	ReplayCapacity  int           `yaml:"replay_capacity" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// SessionConfig selects and tunes the session store driver.
type SessionConfig struct {
	Driver         string        `yaml:"driver" validate:"oneof=memory badger redis"`
	TTL            time.Duration `yaml:"ttl" validate:"min=0"`
	SweepInterval  time.Duration `yaml:"sweep_interval" validate:"min=0"`
	BadgerPath     string        `yaml:"badger_path" validate:"required_if=Driver badger"`
	RedisAddr      string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db" validate:"min=0"`
	RedisKeyPrefix string        `yaml:"redis_key_prefix"`
}

// AuthConfig holds the webhook bearer token. An empty token disables
// authentication.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir    string `yaml:"dir"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// FAQConfig selects FAQ backends. Configured backends are consulted in the
// order catalog file, Cloud Storage catalog, Google Sheets.
type FAQConfig struct {
	CatalogFile string            `yaml:"catalog_file"`
	GCS         *faq.GCSLocation  `yaml:"gcs"`
	Sheets      *faq.SheetsConfig `yaml:"sheets"`
}

// Default returns a configuration that runs locally with no external
// services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			RateLimit:       DefaultRateLimit,
			RateBurst:       DefaultRateBurst,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Driver:         DefaultSessionDriver,
			SweepInterval:  DefaultSweepInterval,
			BadgerPath:     DefaultBadgerPath,
			RedisKeyPrefix: DefaultRedisKeyPrefix,
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{ServiceName: DefaultServiceName},
		Clinic:    clinic.Default(),
	}
}

// Load reads path over Default(), applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals data onto cfg, rejecting unknown keys. An empty
// document leaves cfg unchanged.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Clinic == nil {
		return fmt.Errorf("invalid config: clinic section missing")
	}
	return c.Clinic.Validate()
}

// applyEnv overlays environment variables:
//
//	PORT, INTAKE_PORT             server.port (INTAKE_PORT wins)
//	INTAKE_SESSION_DRIVER         session.driver
//	INTAKE_REDIS_ADDR             session.redis_addr
//	INTAKE_AUTH_TOKEN             auth.token
//	INTAKE_LOG_LEVEL              logging.level
//	OTEL_EXPORTER_OTLP_ENDPOINT   telemetry.endpoint
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, key := range []string{"PORT", "INTAKE_PORT"} {
		if v, ok := lookup(key); ok && v != "" {
			port, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: invalid port %q", key, v)
			}
			cfg.Server.Port = port
		}
	}
	if v, ok := lookup("INTAKE_SESSION_DRIVER"); ok && v != "" {
		cfg.Session.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("INTAKE_REDIS_ADDR"); ok && v != "" {
		cfg.Session.RedisAddr = v
	}
	if v, ok := lookup("INTAKE_AUTH_TOKEN"); ok {
		cfg.Auth.Token = v
	}
	if v, ok := lookup("INTAKE_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		cfg.Telemetry.Endpoint = v
	}
	return nil
}
