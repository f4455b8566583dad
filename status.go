package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/engine"
)

// Session state constants for status reporting.
const (
	sessionStateMissing = "missing"
	sessionStateExpired = "expired"
	sessionStateValid   = "valid"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and cache status",
		Long: `Display the state of the saved session and the local catalog cache.

Reads from disk only; it does not contact the platform, so an expired
access token still shows here as expired rather than being refreshed.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusInfo is the status output schema.
type statusInfo struct {
	BaseURL        string `json:"base_url"`
	SessionState   string `json:"session_state"`
	Email          string `json:"email,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	CachedNodes    int    `json:"cached_nodes"`
	CachedListings int    `json:"cached_listings"`
	SessionPath    string `json:"session_path"`
	SnapshotPath   string `json:"snapshot_path,omitempty"`
}

func runStatus(*cobra.Command, []string) error {
	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	info := buildStatusInfo(eng)

	if flagJSON {
		return printStatusJSON(info)
	}

	printStatusText(info)

	return nil
}

func buildStatusInfo(eng *engine.Engine) statusInfo {
	info := statusInfo{
		BaseURL:      eng.BaseURL(),
		SessionState: sessionStateMissing,
		SessionPath:  settings.SessionPath,
	}

	if settings.Snapshot {
		info.SnapshotPath = settings.SnapshotPath
	}

	if sess, ok := eng.Current(); ok {
		info.SessionState = sessionStateValid
		if !sess.ExpiresAt.IsZero() {
			info.ExpiresAt = sess.ExpiresAt.UTC().Format(time.RFC3339)
			if time.Now().After(sess.ExpiresAt) {
				info.SessionState = sessionStateExpired
			}
		}

		info.Email = sess.Identity.Email
	}

	info.CachedNodes, info.CachedListings = eng.Store().Stats()

	return info
}

func printStatusJSON(info statusInfo) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(info statusInfo) {
	fmt.Fprintf(os.Stdout, "%-13s %s\n", "Platform:", info.BaseURL)

	state := info.SessionState
	if state == sessionStateExpired {
		// An expired access token refreshes on the next authenticated
		// call as long as the refresh token is still accepted.
		state += " (refreshes on next use)"
	}

	fmt.Fprintf(os.Stdout, "%-13s %s\n", "Session:", state)

	if info.Email != "" {
		fmt.Fprintf(os.Stdout, "%-13s %s\n", "Account:", info.Email)
	}

	if info.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, info.ExpiresAt)
		if err == nil {
			fmt.Fprintf(os.Stdout, "%-13s %s\n", "Expires:", formatExpiry(expiresAt))
		}
	}

	fmt.Fprintf(os.Stdout, "%-13s %d nodes across %d listings\n", "Cache:", info.CachedNodes, info.CachedListings)
	fmt.Fprintf(os.Stdout, "%-13s %s\n", "Session file:", info.SessionPath)

	if info.SnapshotPath != "" {
		fmt.Fprintf(os.Stdout, "%-13s %s\n", "Snapshot:", info.SnapshotPath)
	}
}
