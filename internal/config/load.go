package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns
// the resulting Config. Unknown keys are fatal: a typo that silently
// falls back to a default is much harder to debug than a startup error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the
// zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override
// chain: defaults -> config file -> environment variables -> CLI flags.
// It returns fully resolved settings ready for engine construction.
// CLI flags always win, matching user expectations for one-off
// overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Settings, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// Env overrides.
	if env.BaseURL != "" {
		cfg.Service.BaseURL = env.BaseURL
	}

	// CLI overrides (pointer fields: nil = not specified).
	if cli.BaseURL != nil {
		cfg.Service.BaseURL = *cli.BaseURL
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	if cli.RasterOnly != nil {
		cfg.Catalog.RasterOnly = *cli.RasterOnly
	}

	// Re-validate: the overrides may have introduced bad values.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	// Data dir: CLI > env > default.
	dataDir := DefaultDataDir()
	if env.DataDir != "" {
		dataDir = env.DataDir
	}

	if cli.DataDir != nil {
		dataDir = *cli.DataDir
	}

	return buildSettings(cfg, dataDir)
}

// checkUnknownKeys rejects config keys the decoder did not map onto any
// field.
func checkUnknownKeys(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}

	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}
