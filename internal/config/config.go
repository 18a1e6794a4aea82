// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package config loads Dashline configuration with Koanf v2.
//
// Sources are layered, highest priority last:
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (see envTransformFunc for the mapping table)
//
// Example:
//
//	cfg, err := config.LoadWithKoanf()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Backend  BackendConfig  `koanf:"backend"`
	Store    StoreConfig    `koanf:"store"`
	Query    QueryConfig    `koanf:"query"`
	Filter   FilterConfig   `koanf:"filter"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Timeout bounds read and write of a single HTTP request.
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout bounds graceful shutdown of the supervisor tree.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Environment is development or production.
	Environment string `koanf:"environment"`
}

// BackendConfig describes the managed backend-as-a-service that every read
// and write is proxied to.
type BackendConfig struct {
	// URL is the project base URL, e.g. https://abc.supabase.co
	URL string `koanf:"url"`

	// AnonKey is sent as the apikey header and bearer token.
	AnonKey string `koanf:"anon_key"`

	// Timeout is the per-request HTTP timeout. The cache layer imposes none.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitPerSecond and RateLimitBurst bound outgoing calls.
	// Zero disables client-side limiting.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`

	// Circuit breaker settings (sony/gobreaker).
	BreakerMaxRequests   uint32        `koanf:"breaker_max_requests"`
	BreakerInterval      time.Duration `koanf:"breaker_interval"`
	BreakerTimeout       time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests   uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio  float64       `koanf:"breaker_failure_ratio"`
	BreakerEnabled       bool          `koanf:"breaker_enabled"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes"`
}

// StoreConfig configures the durable key-value store (BadgerDB).
type StoreConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps everything in RAM; the filter does not survive restarts.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites forces fsync on every write.
	SyncWrites bool `koanf:"sync_writes"`
}

// QueryConfig holds query cache defaults and per-operation overrides.
type QueryConfig struct {
	// StaleTime is the default age after which cached data is refetched.
	StaleTime time.Duration `koanf:"stale_time"`

	// GCTime is how long an entry with no observers is retained.
	GCTime time.Duration `koanf:"gc_time"`

	// Retry is the default number of automatic retries after a failed fetch.
	Retry int `koanf:"retry"`

	// RetryDelay is the initial backoff between retries.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// MaxInactive caps the number of unobserved entries kept for GC.
	MaxInactive int `koanf:"max_inactive"`

	// Operations overrides the built-in policy of a named operation.
	Operations map[string]OperationPolicy `koanf:"operations"`
}

// OperationPolicy overrides staleness, polling and retry for one operation.
// Zero durations and a nil Retry keep the built-in value.
type OperationPolicy struct {
	StaleTime    time.Duration `koanf:"stale_time"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Retry        *int          `koanf:"retry"`
}

// FilterConfig configures the shared date-range filter.
type FilterConfig struct {
	// DefaultDays is the preset used on a fresh start or after corruption.
	DefaultDays int `koanf:"default_days"`
}

// SecurityConfig holds API protection and credential encryption settings.
type SecurityConfig struct {
	// CredentialSecret derives the AES key used to encrypt stored
	// integration credentials. Required when the credentials endpoint is used.
	CredentialSecret string `koanf:"credential_secret"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config for file/env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// IsProduction reports whether production checks apply.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}
