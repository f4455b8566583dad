package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPrefetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefetch [parent-id]",
		Short: "Warm the catalog cache",
		Long: `Fetch the catalog below a node into the local cache so later lookups
are served without network round-trips. Without an argument the whole
catalog is warmed.

Listings that are already fresh are reused; --force refetches them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPrefetch,
	}

	cmd.Flags().Bool("force", false, "refetch every listing even if the cached ones are fresh")

	return cmd
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	var parentID string
	if len(args) > 0 {
		parentID = args[0]
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	eng, logger, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	started := time.Now()

	if err := eng.PrefetchSubtree(ctx, parentID, force); err != nil {
		return loginHint(fmt.Errorf("prefetching %q: %w", displayParent(parentID), err))
	}

	nodes, listings := eng.Store().Stats()
	elapsed := time.Since(started).Round(time.Millisecond)

	logger.Debug("prefetch complete",
		"parent_id", parentID,
		"nodes", nodes,
		"listings", listings,
		"elapsed", elapsed)

	statusf("Cached %d nodes across %d listings in %s.\n", nodes, listings, elapsed)

	return nil
}
