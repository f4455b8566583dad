package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/config"
	"github.com/stratushq/stratus-go/internal/engine"
	"github.com/stratushq/stratus-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagBaseURL    string
	flagDataDir    string
	flagLogLevel   string
	flagRasterOnly bool
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// settings holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var settings *config.Settings

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stratus",
		Short:   "Stratus platform catalog client",
		Long:    "A fast CLI for browsing Stratus projects, flights, and data products.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		// Every subcommand consumes the resolved settings, so the
		// four-layer resolution runs unconditionally. Login included:
		// it needs the base URL and the session file path.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadSettings(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "platform service root URL")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for session and snapshot files")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flagRasterOnly, "raster-only", false, "list only raster-bearing projects and flights")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newTreeCmd())
	cmd.AddCommand(newPrefetchCmd())
	cmd.AddCommand(newLayerCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadSettings resolves the effective configuration from the four-layer
// override chain and stores the result in settings for use by subcommands.
func loadSettings(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only pass override flags the user explicitly set, so an empty
	// flag value does not clobber the file or env layer.
	if cmd.Flags().Changed("base-url") {
		cli.BaseURL = &flagBaseURL
	}

	if cmd.Flags().Changed("data-dir") {
		cli.DataDir = &flagDataDir
	}

	if cmd.Flags().Changed("log-level") {
		cli.LogLevel = &flagLogLevel
	}

	if cmd.Flags().Changed("raster-only") {
		cli.RasterOnly = &flagRasterOnly
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	settings = resolved

	return nil
}

// buildLogger creates an slog.Logger from the resolved settings and CLI
// flags. Config provides the baseline level; --verbose and --quiet
// override it because CLI flags always win. Format "auto" picks text on
// a terminal and JSON when stderr is piped.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	format := config.LogFormatAuto

	if settings != nil {
		level = settings.LogLevel
		format = settings.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == config.LogFormatAuto {
		format = config.LogFormatJSON
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = config.LogFormatText
		}
	}

	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newEngine constructs the engine from the resolved settings. The caller
// owns Close, which persists the catalog snapshot.
func newEngine() (*engine.Engine, *slog.Logger, error) {
	logger := buildLogger()

	eng, err := engine.New(settings, logger)
	if err != nil {
		return nil, nil, err
	}

	return eng, logger, nil
}

// loginHint rewrites authentication failures into an actionable message.
func loginHint(err error) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return fmt.Errorf("not logged in: run 'stratus login' first")
	}

	return err
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
