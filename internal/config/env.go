package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "STRATUS_GO_CONFIG"
	EnvBaseURL = "STRATUS_GO_BASE_URL"
	EnvDataDir = "STRATUS_GO_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // STRATUS_GO_CONFIG: override config file path
	BaseURL    string // STRATUS_GO_BASE_URL: override service base URL
	DataDir    string // STRATUS_GO_DATA_DIR: override data directory
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify any Config; callers apply the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
