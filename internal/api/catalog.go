package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Page is one page of a catalog listing. NextCursor is the opaque
// position token for the following page, or "" when the listing is
// exhausted.
type Page struct {
	Nodes      []Node
	NextCursor string
}

// ListPage fetches a single page of catalog nodes of the given kind.
// parentID scopes flights to a project and data products to a flight;
// it must be "" for projects, which live at the top of the hierarchy.
// cursor resumes a paginated listing ("" starts from the beginning).
// rasterOnly asks the platform to return only raster-bearing entries
// and is supported for projects and flights.
func (c *Client) ListPage(ctx context.Context, kind Kind, parentID, cursor string, limit int, rasterOnly bool) (*Page, error) {
	path, err := listPath(kind, parentID)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	if rasterOnly && kind != KindDataProduct {
		q.Set("rasterOnly", "true")
	}

	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	c.logger.Debug("listing catalog page",
		slog.String("kind", string(kind)),
		slog.String("parent_id", parentID),
		slog.Bool("resuming", cursor != ""),
	)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pr pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("api: decoding %s listing: %w: %w", kind, ErrMalformed, err)
	}

	page := &Page{Nodes: make([]Node, 0, len(pr.Items))}

	for i, raw := range pr.Items {
		var nr nodeResponse
		if err := json.Unmarshal(raw, &nr); err != nil {
			return nil, fmt.Errorf("api: decoding %s listing item %d: %w: %w", kind, i, ErrMalformed, err)
		}

		if nr.ID == "" {
			return nil, fmt.Errorf("api: %s listing item %d missing id: %w", kind, i, ErrMalformed)
		}

		page.Nodes = append(page.Nodes, nr.toNode(kind, parentID, raw, c.logger))
	}

	if pr.NextCursor != nil {
		page.NextCursor = *pr.NextCursor
	}

	c.logger.Debug("fetched catalog page",
		slog.String("kind", string(kind)),
		slog.Int("count", len(page.Nodes)),
		slog.Bool("exhausted", page.NextCursor == ""),
	)

	return page, nil
}

// GetNode fetches a single catalog node by kind and ID.
func (c *Client) GetNode(ctx context.Context, kind Kind, id string) (*Node, error) {
	path, err := nodePath(kind, id)
	if err != nil {
		return nil, err
	}

	c.logger.Info("fetching catalog node",
		slog.String("kind", string(kind)),
		slog.String("id", id),
	)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readRaw(resp)
	if err != nil {
		return nil, fmt.Errorf("api: reading %s response: %w", kind, err)
	}

	var nr nodeResponse
	if err := json.Unmarshal(raw, &nr); err != nil {
		return nil, fmt.Errorf("api: decoding %s response: %w: %w", kind, ErrMalformed, err)
	}

	if nr.ID == "" {
		return nil, fmt.Errorf("api: %s response missing id: %w", kind, ErrMalformed)
	}

	node := nr.toNode(kind, "", raw, c.logger)

	return &node, nil
}

// listPath builds the listing endpoint for a kind under a parent.
func listPath(kind Kind, parentID string) (string, error) {
	switch kind {
	case KindProject:
		if parentID != "" {
			return "", fmt.Errorf("api: projects have no parent, got %q", parentID)
		}

		return "/projects", nil
	case KindFlight:
		if parentID == "" {
			return "", fmt.Errorf("api: listing flights requires a project id")
		}

		return "/projects/" + url.PathEscape(parentID) + "/flights", nil
	case KindDataProduct:
		if parentID == "" {
			return "", fmt.Errorf("api: listing data products requires a flight id")
		}

		return "/flights/" + url.PathEscape(parentID) + "/data_products", nil
	default:
		return "", fmt.Errorf("api: unknown catalog kind %q", kind)
	}
}

// nodePath builds the single-item endpoint for a kind.
func nodePath(kind Kind, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("api: fetching a %s requires an id", kind)
	}

	switch kind {
	case KindProject:
		return "/projects/" + url.PathEscape(id), nil
	case KindFlight:
		return "/flights/" + url.PathEscape(id), nil
	case KindDataProduct:
		return "/data_products/" + url.PathEscape(id), nil
	default:
		return "", fmt.Errorf("api: unknown catalog kind %q", kind)
	}
}

// readRaw drains a response body into a RawMessage for two-pass decoding.
func readRaw(resp *http.Response) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return raw, nil
}
