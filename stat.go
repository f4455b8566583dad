package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/api"
)

func newStatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat <id>",
		Short: "Show one catalog node",
		Long: `Show the details of a single project, flight, or data product.

By default the node's kind is resolved from the cache, falling back to
probing the platform level by level. Pass --kind to skip resolution and
fetch directly.`,
		Args: cobra.ExactArgs(1),
		RunE: runStat,
	}

	cmd.Flags().String("kind", "", "node kind: project, flight, or data_product")
	cmd.Flags().Bool("force", false, "refetch from the platform even if the cached node is fresh")

	return cmd
}

func runStat(cmd *cobra.Command, args []string) error {
	id := args[0]

	kindName, err := cmd.Flags().GetString("kind")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	var node *api.Node
	if kindName == "" {
		node, err = eng.ResolveNode(ctx, id)
	} else {
		var kind api.Kind
		kind, err = parseKind(kindName)
		if err != nil {
			return err
		}

		node, err = eng.FetchNode(ctx, kind, id, force)
	}

	if err != nil {
		return loginHint(fmt.Errorf("stat %q: %w", id, err))
	}

	if flagJSON {
		return printNodeJSON(node)
	}

	printNodeText(node)

	return nil
}

func parseKind(name string) (api.Kind, error) {
	switch api.Kind(name) {
	case api.KindProject, api.KindFlight, api.KindDataProduct:
		return api.Kind(name), nil
	default:
		return "", fmt.Errorf("unknown kind %q (want project, flight, or data_product)", name)
	}
}

// statJSONItem is the JSON output schema for stat.
type statJSONItem struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	ParentID   string          `json:"parent_id,omitempty"`
	AcquiredOn string          `json:"acquired_on,omitempty"`
	DataType   string          `json:"data_type,omitempty"`
	IsRaster   bool            `json:"is_raster,omitempty"`
	RasterURL  string          `json:"raster_url,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

func printNodeJSON(node *api.Node) error {
	out := statJSONItem{
		ID:         node.ID,
		Kind:       string(node.Kind),
		Name:       node.Name,
		ParentID:   node.ParentID,
		AcquiredOn: node.AcquiredOn,
		DataType:   node.DataType,
		IsRaster:   node.IsRaster,
		RasterURL:  node.RasterURL,
		Raw:        node.Raw,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printNodeText(node *api.Node) {
	fmt.Fprintf(os.Stdout, "%-12s %s\n", "ID:", node.ID)
	fmt.Fprintf(os.Stdout, "%-12s %s\n", "Kind:", node.Kind)
	fmt.Fprintf(os.Stdout, "%-12s %s\n", "Name:", node.Name)

	if node.ParentID != "" {
		fmt.Fprintf(os.Stdout, "%-12s %s\n", "Parent:", node.ParentID)
	}

	if node.AcquiredOn != "" {
		fmt.Fprintf(os.Stdout, "%-12s %s\n", "Acquired:", node.AcquiredOn)
	}

	if node.DataType != "" {
		fmt.Fprintf(os.Stdout, "%-12s %s\n", "Data type:", node.DataType)
	}

	if node.Kind == api.KindDataProduct {
		fmt.Fprintf(os.Stdout, "%-12s %t\n", "Raster:", node.IsRaster)
	}

	if node.RasterURL != "" {
		fmt.Fprintf(os.Stdout, "%-12s %s\n", "Raster URL:", node.RasterURL)
	}

	if !node.FetchedAt.IsZero() {
		fmt.Fprintf(os.Stdout, "%-12s %s\n", "Fetched:", formatTime(node.FetchedAt))
	}
}
