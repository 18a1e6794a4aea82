// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateQuery(); err != nil {
		return err
	}
	if err := c.validateFilter(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, production or test, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.URL == "" {
		return errors.New("BACKEND_URL is required")
	}
	if err := validateHTTPURL(c.Backend.URL); err != nil {
		return fmt.Errorf("BACKEND_URL is invalid: %w", err)
	}
	if c.Backend.AnonKey == "" {
		return errors.New("BACKEND_ANON_KEY is required")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be positive")
	}
	if c.Backend.RateLimitPerSecond < 0 {
		return errors.New("BACKEND_RATE_LIMIT cannot be negative")
	}
	if c.Backend.BreakerFailureRatio <= 0 || c.Backend.BreakerFailureRatio > 1 {
		return fmt.Errorf("BACKEND_BREAKER_RATIO must be in (0, 1], got %v", c.Backend.BreakerFailureRatio)
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return errors.New("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateQuery() error {
	if c.Query.StaleTime < 0 {
		return errors.New("QUERY_STALE_TIME cannot be negative")
	}
	if c.Query.GCTime <= 0 {
		return errors.New("QUERY_GC_TIME must be positive")
	}
	if c.Query.Retry < 0 {
		return errors.New("QUERY_RETRY cannot be negative")
	}
	if c.Query.MaxInactive < 1 {
		return errors.New("QUERY_MAX_INACTIVE must be at least 1")
	}
	for name, p := range c.Query.Operations {
		if p.StaleTime < 0 || p.PollInterval < 0 {
			return fmt.Errorf("query.operations.%s: durations cannot be negative", name)
		}
		if p.Retry != nil && *p.Retry < 0 {
			return fmt.Errorf("query.operations.%s: retry cannot be negative", name)
		}
	}
	return nil
}

func (c *Config) validateFilter() error {
	switch c.Filter.DefaultDays {
	case 7, 30, 90:
		return nil
	default:
		return fmt.Errorf("FILTER_DEFAULT_DAYS must be 7, 30 or 90, got %d", c.Filter.DefaultDays)
	}
}

func (c *Config) validateSecurity() error {
	if c.Server.IsProduction() && len(c.Security.CredentialSecret) < 32 {
		return errors.New("CREDENTIAL_SECRET must be at least 32 characters in production")
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs < 1 {
		return errors.New("RATE_LIMIT_REQUESTS must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not recognized", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}
