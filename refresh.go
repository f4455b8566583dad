package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/engine"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [id]",
		Short: "Rotate the session tokens or refetch a cached listing",
		Long: `Without an argument, exchange the refresh token for a new token pair
immediately, without waiting for the access token to near expiry.
Useful after changing account permissions on the platform, since new
claims only take effect on the next token.

With a node id, discard everything cached under that node and refetch
its listing from the platform.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRefresh,
	}
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) == 1 {
		return refreshListing(ctx, eng, args[0])
	}

	if _, err := eng.ForceRefresh(ctx); err != nil {
		return loginHint(fmt.Errorf("refreshing session: %w", err))
	}

	sess, ok := eng.Current()
	if !ok {
		return fmt.Errorf("refresh succeeded but no session is present")
	}

	statusf("Session refreshed. Expires %s.\n", formatExpiry(sess.ExpiresAt))

	return nil
}

// refreshListing force-refetches one node's children. The forced listing
// drops the cached subtree first, so stale descendants disappear with it.
func refreshListing(ctx context.Context, eng *engine.Engine, parentID string) error {
	nodes, err := eng.ListChildren(ctx, parentID, true)
	if err != nil {
		return loginHint(fmt.Errorf("refreshing %q: %w", displayParent(parentID), err))
	}

	statusf("Refreshed %s: %d children.\n", displayParent(parentID), len(nodes))

	return nil
}
