// Package layer turns catalog data products into source descriptors a
// rendering host can load directly.
package layer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/catalog"
)

// MediaKindRaster identifies tiled or single-image raster sources.
const MediaKindRaster = "raster"

// ErrNotRaster is returned when the requested node carries no raster
// layer, either because it is not a data product or because the
// platform published no raster output for it.
var ErrNotRaster = errors.New("layer: no raster layer available")

// SourceDescriptor is what a rendering host needs to add one layer. It
// is built fresh per call and must not be cached: the embedded token
// hint expires with the session.
type SourceDescriptor struct {
	// URI is the platform's raster endpoint for the data product,
	// passed through verbatim. It may be a pre-signed URL whose query
	// string must not be re-encoded.
	URI string

	// AuthHeaderHint is the Authorization value to send when fetching
	// the URI. Advisory: the host owns expiry handling on its own
	// subsequent fetches.
	AuthHeaderHint string

	// MediaKind selects the host's loading path.
	MediaKind string
}

// Fetcher materializes a node that is not in the store yet.
// *catalog.Synchronizer satisfies it.
type Fetcher interface {
	FetchNode(ctx context.Context, kind api.Kind, id string, force bool) (*api.Node, error)
}

// Sessions yields a valid access token, refreshing if needed.
// *session.Manager satisfies it.
type Sessions interface {
	EnsureValid(ctx context.Context) (string, error)
}

// Resolver builds source descriptors from cached catalog state.
type Resolver struct {
	store    *catalog.Store
	fetcher  Fetcher
	sessions Sessions
	logger   *slog.Logger
}

// NewResolver wires a resolver over the store, falling back to fetcher
// for nodes the store has not seen.
func NewResolver(store *catalog.Store, fetcher Fetcher, sessions Sessions, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:    store,
		fetcher:  fetcher,
		sessions: sessions,
		logger:   logger,
	}
}

// Resolve builds the descriptor for one data product. The node comes
// from the store when cached; otherwise a single fetch materializes it.
// The session is consulted only after the node qualifies, so resolving
// a non-raster product never touches the network.
func (r *Resolver) Resolve(ctx context.Context, dataProductID string) (*SourceDescriptor, error) {
	node, ok := r.store.GetNode(dataProductID)
	if !ok {
		fetched, err := r.fetcher.FetchNode(ctx, api.KindDataProduct, dataProductID, false)
		if err != nil {
			return nil, fmt.Errorf("layer: resolving %q: %w", dataProductID, err)
		}

		node = *fetched
	}

	if node.Kind != api.KindDataProduct {
		return nil, fmt.Errorf("layer: node %q is a %s, not a data product: %w", dataProductID, node.Kind, ErrNotRaster)
	}

	if !node.IsRaster || node.RasterURL == "" {
		return nil, fmt.Errorf("layer: data product %q: %w", dataProductID, ErrNotRaster)
	}

	token, err := r.sessions.EnsureValid(ctx)
	if err != nil {
		return nil, fmt.Errorf("layer: resolving %q: %w", dataProductID, err)
	}

	r.logger.Debug("resolved layer source",
		slog.String("data_product_id", dataProductID),
		slog.String("media_kind", MediaKindRaster),
	)

	return &SourceDescriptor{
		URI:            node.RasterURL,
		AuthHeaderHint: "Bearer " + token,
		MediaKind:      MediaKindRaster,
	}, nil
}
