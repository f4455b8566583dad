package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file with the defaults",
		Long: `Write a starter config file where every key is present, commented out,
and set to its default. Refuses to overwrite an existing file.`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	if settings == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if flagJSON {
		return printConfigJSON(settings)
	}

	return config.RenderEffective(settings, os.Stdout)
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	// Same precedence as loading: --config, then the environment,
	// then the default location.
	path := flagConfigPath
	if path == "" {
		path = config.ReadEnvOverrides().ConfigPath
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	if path == "" {
		return fmt.Errorf("cannot determine a config path; pass --config")
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("config file already exists at %s", path)
		}

		return fmt.Errorf("writing config: %w", err)
	}

	statusf("Wrote %s.\n", path)

	return nil
}

// configJSON mirrors Settings with stable field names and durations as
// strings rather than nanosecond counts.
type configJSON struct {
	BaseURL         string `json:"base_url"`
	RequestTimeout  string `json:"request_timeout"`
	RetryMax        int    `json:"retry_max"`
	UserAgent       string `json:"user_agent"`
	FreshnessWindow string `json:"freshness_window"`
	PageSize        int    `json:"page_size"`
	RasterOnly      bool   `json:"raster_only"`
	Parallelism     int    `json:"parallelism"`
	Snapshot        bool   `json:"snapshot"`
	Websocket       bool   `json:"websocket"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	DataDir         string `json:"data_dir"`
	SessionPath     string `json:"session_path"`
	SnapshotPath    string `json:"snapshot_path"`
}

func printConfigJSON(s *config.Settings) error {
	out := configJSON{
		BaseURL:         s.BaseURL,
		RequestTimeout:  s.RequestTimeout.String(),
		RetryMax:        s.RetryMax,
		UserAgent:       s.UserAgent,
		FreshnessWindow: s.FreshnessWindow.String(),
		PageSize:        s.PageSize,
		RasterOnly:      s.RasterOnly,
		Parallelism:     s.Parallelism,
		Snapshot:        s.Snapshot,
		Websocket:       s.Websocket,
		LogLevel:        strings.ToLower(s.LogLevel.String()),
		LogFormat:       s.LogFormat,
		DataDir:         s.DataDir,
		SessionPath:     s.SessionPath,
		SnapshotPath:    s.SnapshotPath,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
