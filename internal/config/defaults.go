package config

// Default values for configuration options. These are "layer 0" of the
// four-layer override chain and work without any config file.
const (
	defaultBaseURL         = "https://api.stratushq.com"
	defaultRequestTimeout  = "30s"
	defaultRetryMax        = 3
	defaultUserAgent       = "stratus-go"
	defaultFreshnessWindow = "5m"
	defaultPageSize        = 50
	defaultParallelism     = 4
	defaultLogLevel        = "info"
	defaultLogFormat       = LogFormatAuto
)

// DefaultConfig returns a Config populated with all default values. It
// is used both as the starting point for TOML decoding (so unset fields
// retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
			RetryMax:       defaultRetryMax,
			UserAgent:      defaultUserAgent,
		},
		Catalog: CatalogConfig{
			FreshnessWindow: defaultFreshnessWindow,
			PageSize:        defaultPageSize,
			Parallelism:     defaultParallelism,
			Snapshot:        true,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
