package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/api"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [parent-id]",
		Short: "List catalog children",
		Long: `List the children of a catalog node: flights under a project, data
products under a flight. Without an argument, lists top-level projects.

Listings are served from the local cache while fresh; --force always
refetches from the platform.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}

	cmd.Flags().Bool("force", false, "refetch from the platform even if the cached listing is fresh")

	return cmd
}

func runLs(cmd *cobra.Command, args []string) error {
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

	logger.Debug("ls", "parent_id", parentID, "force", force)

	nodes, err := eng.ListChildren(ctx, parentID, force)
	if err != nil {
		return loginHint(fmt.Errorf("listing %q: %w", displayParent(parentID), err))
	}

	if flagJSON {
		return printNodesJSON(nodes)
	}

	printNodesTable(nodes)

	return nil
}

// displayParent names the root listing for error messages.
func displayParent(parentID string) string {
	if parentID == "" {
		return "projects"
	}

	return parentID
}

// lsJSONItem is the JSON output schema for a single node in ls output.
type lsJSONItem struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	AcquiredOn string `json:"acquired_on,omitempty"`
	DataType   string `json:"data_type,omitempty"`
	IsRaster   bool   `json:"is_raster,omitempty"`
}

func printNodesJSON(nodes []api.Node) error {
	out := make([]lsJSONItem, 0, len(nodes))
	for i := range nodes {
		out = append(out, lsJSONItem{
			ID:         nodes[i].ID,
			Kind:       string(nodes[i].Kind),
			Name:       nodes[i].Name,
			AcquiredOn: nodes[i].AcquiredOn,
			DataType:   nodes[i].DataType,
			IsRaster:   nodes[i].IsRaster,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

// printNodesTable renders nodes in platform listing order. The order is
// part of the listing contract, so no client-side sort is applied.
func printNodesTable(nodes []api.Node) {
	headers := []string{"ID", "NAME", "DETAIL"}
	rows := make([][]string, 0, len(nodes))

	for i := range nodes {
		rows = append(rows, []string{nodes[i].ID, nodes[i].Name, nodeDetail(&nodes[i])})
	}

	printTable(os.Stdout, headers, rows)
}

// nodeDetail summarizes the kind-specific column: acquisition date for
// flights, data type (with a raster marker) for data products.
func nodeDetail(node *api.Node) string {
	switch node.Kind {
	case api.KindFlight:
		return node.AcquiredOn
	case api.KindDataProduct:
		if node.IsRaster {
			return node.DataType + " [raster]"
		}

		return node.DataType
	default:
		return ""
	}
}
