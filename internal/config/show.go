package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override
// layers (defaults -> file -> env -> CLI) have been applied.
func RenderEffective(s *Settings, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	ew.printf("[service]\n")
	ew.printf("  base_url        = %q\n", s.BaseURL)
	ew.printf("  request_timeout = %q\n", s.RequestTimeout.String())
	ew.printf("  retry_max       = %d\n", s.RetryMax)
	ew.printf("  user_agent      = %q\n", s.UserAgent)
	ew.printf("\n")

	ew.printf("[catalog]\n")
	ew.printf("  freshness_window = %q\n", s.FreshnessWindow.String())
	ew.printf("  page_size        = %d\n", s.PageSize)
	ew.printf("  raster_only      = %t\n", s.RasterOnly)
	ew.printf("  parallelism      = %d\n", s.Parallelism)
	ew.printf("  snapshot         = %t\n", s.Snapshot)
	ew.printf("  websocket        = %t\n", s.Websocket)
	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", strings.ToLower(s.LogLevel.String()))
	ew.printf("  log_format = %q\n", s.LogFormat)
	ew.printf("\n")

	ew.printf("# Derived paths\n")
	ew.printf("# data_dir = %q\n", s.DataDir)
	ew.printf("# session  = %q\n", s.SessionPath)
	ew.printf("# snapshot = %q\n", s.SnapshotPath)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
