// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for stratus-go. It supports a
// four-layer override chain (defaults -> config file -> environment ->
// CLI flags).
package config

// Config is the top-level configuration structure parsed from a TOML
// file. Unset fields keep their defaults, so a partial file only
// overrides what it names.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Catalog CatalogConfig `toml:"catalog"`
	Logging LoggingConfig `toml:"logging"`
}

// ServiceConfig controls how the platform API is reached.
type ServiceConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
	RetryMax       int    `toml:"retry_max"`
	UserAgent      string `toml:"user_agent"`
}

// CatalogConfig controls caching and listing behavior.
type CatalogConfig struct {
	FreshnessWindow string `toml:"freshness_window"`
	PageSize        int    `toml:"page_size"`
	RasterOnly      bool   `toml:"raster_only"`
	Parallelism     int    `toml:"parallelism"`
	Snapshot        bool   `toml:"snapshot"`
	Websocket       bool   `toml:"websocket"`
}

// Log output formats accepted by log_format.
const (
	LogFormatAuto = "auto" // text on a terminal, JSON otherwise
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BaseURL    *string // --base-url flag
	DataDir    *string // --data-dir flag
	LogLevel   *string // --log-level flag
	RasterOnly *bool   // --raster-only flag
}
