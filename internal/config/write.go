package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteDefaultConfig when the target file
// already exists. User modifications are never overwritten.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate is the default config file content written by
// "config init". All settings are present as commented-out defaults so
// users can discover every option without reading docs.
const configTemplate = `# stratus-go configuration

[service]
# Platform service root URL.
# base_url = "https://api.stratushq.com"

# Per-request timeout.
# request_timeout = "30s"

# Retries for transient failures (0 disables retry).
# retry_max = 3

# User-Agent header sent with every request.
# user_agent = "stratus-go"

[catalog]
# How long a fetched listing is served from cache without re-fetching.
# freshness_window = "5m"

# Items requested per listing page.
# page_size = 50

# Ask the platform for raster-bearing projects and flights only.
# raster_only = false

# Concurrent listing fetches during prefetch.
# parallelism = 4

# Persist the catalog cache to disk between invocations.
# snapshot = true

# Subscribe to live catalog change events in 'stratus watch'.
# websocket = false

[logging]
# Log verbosity: debug, info, warn, error
# log_level = "info"

# Log output format: auto, text, json ("auto" picks text on a terminal)
# log_format = "auto"
`

// WriteDefaultConfig writes the commented default config template to
// path. Refuses to overwrite an existing file. The write is atomic
// (temp file + rename) and parent directories are created as needed.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: checking %s: %w", path, err)
	}

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to path via a temp file in the same
// directory, so a crash mid-write cannot leave a partial config file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
