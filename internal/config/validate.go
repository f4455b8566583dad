package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minPageSize       = 1
	maxPageSize       = 500
	maxRetries        = 10
	minParallelism    = 1
	maxParallelism    = 32
	minRequestTimeout = 1 * time.Second
)

// Validate checks all configuration values and returns all errors
// found. It accumulates every error rather than stopping at the first,
// so users see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateCatalog(&cfg.Catalog)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("base_url: %q is not an http(s) URL", s.BaseURL))
	}

	if d, err := time.ParseDuration(s.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("request_timeout: %w", err))
	} else if d < minRequestTimeout {
		errs = append(errs, fmt.Errorf("request_timeout: must be at least %s, got %s", minRequestTimeout, d))
	}

	if s.RetryMax < 0 || s.RetryMax > maxRetries {
		errs = append(errs, fmt.Errorf("retry_max: must be between 0 and %d, got %d", maxRetries, s.RetryMax))
	}

	return errs
}

func validateCatalog(c *CatalogConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(c.FreshnessWindow); err != nil {
		errs = append(errs, fmt.Errorf("freshness_window: %w", err))
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("freshness_window: must not be negative, got %s", d))
	}

	if c.PageSize < minPageSize || c.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("page_size: must be between %d and %d, got %d", minPageSize, maxPageSize, c.PageSize))
	}

	if c.Parallelism < minParallelism || c.Parallelism > maxParallelism {
		errs = append(errs, fmt.Errorf("parallelism: must be between %d and %d, got %d", minParallelism, maxParallelism, c.Parallelism))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}
