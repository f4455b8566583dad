package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/layer"
)

func newLayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layer <data-product-id>",
		Short: "Resolve a data product to a renderable layer source",
		Long: `Resolve a raster data product into the source descriptor a rendering
host needs: the platform's raster URI and the media kind.

The descriptor also carries an Authorization header hint tied to the
current session. The hint is only included in --json output; rendering
hosts consume it programmatically and it does not belong in a terminal
scrollback.`,
		Args: cobra.ExactArgs(1),
		RunE: runLayer,
	}

	return cmd
}

func runLayer(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	desc, err := eng.ResolveLayer(ctx, id)
	if err != nil {
		if errors.Is(err, layer.ErrNotRaster) {
			return fmt.Errorf("%q has no raster layer", id)
		}

		return loginHint(fmt.Errorf("resolving layer %q: %w", id, err))
	}

	if flagJSON {
		return printLayerJSON(desc)
	}

	fmt.Fprintf(os.Stdout, "%-12s %s\n", "URI:", desc.URI)
	fmt.Fprintf(os.Stdout, "%-12s %s\n", "Media kind:", desc.MediaKind)

	return nil
}

// layerJSONItem is the JSON output schema for layer. Descriptors are
// minted per call; the auth hint expires with the session and must not
// be stored.
type layerJSONItem struct {
	URI            string `json:"uri"`
	AuthHeaderHint string `json:"auth_header_hint"`
	MediaKind      string `json:"media_kind"`
}

func printLayerJSON(desc *layer.SourceDescriptor) error {
	out := layerJSONItem{
		URI:            desc.URI,
		AuthHeaderHint: desc.AuthHeaderHint,
		MediaKind:      desc.MediaKind,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
