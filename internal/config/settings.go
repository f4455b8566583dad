package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Settings is the fully resolved runtime configuration: the override
// chain applied, durations parsed, and derived paths computed. This is
// what engine construction consumes.
type Settings struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryMax       int
	UserAgent      string

	FreshnessWindow time.Duration
	PageSize        int
	RasterOnly      bool
	Parallelism     int
	Snapshot        bool
	Websocket       bool

	LogLevel  slog.Level
	LogFormat string

	DataDir      string
	SessionPath  string
	SnapshotPath string
}

// buildSettings converts a validated Config into Settings. The parse
// calls cannot fail on a validated config, but the errors are kept in
// the chain in case a caller skips Validate.
func buildSettings(cfg *Config, dataDir string) (*Settings, error) {
	timeout, err := time.ParseDuration(cfg.Service.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}

	freshness, err := time.ParseDuration(cfg.Catalog.FreshnessWindow)
	if err != nil {
		return nil, fmt.Errorf("freshness_window: %w", err)
	}

	level, err := parseLogLevel(cfg.Logging.LogLevel)
	if err != nil {
		return nil, err
	}

	return &Settings{
		BaseURL:         cfg.Service.BaseURL,
		RequestTimeout:  timeout,
		RetryMax:        cfg.Service.RetryMax,
		UserAgent:       cfg.Service.UserAgent,
		FreshnessWindow: freshness,
		PageSize:        cfg.Catalog.PageSize,
		RasterOnly:      cfg.Catalog.RasterOnly,
		Parallelism:     cfg.Catalog.Parallelism,
		Snapshot:        cfg.Catalog.Snapshot,
		Websocket:       cfg.Catalog.Websocket,
		LogLevel:        level,
		LogFormat:       cfg.Logging.LogFormat,
		DataDir:         dataDir,
		SessionPath:     SessionFilePath(dataDir),
		SnapshotPath:    SnapshotFilePath(dataDir),
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, fmt.Errorf("log_level: unknown level %q", s)
}
