package api

import (
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies a level of the catalog hierarchy.
type Kind string

// Catalog node kinds, ordered root to leaf.
const (
	KindProject     Kind = "project"
	KindFlight      Kind = "flight"
	KindDataProduct Kind = "data_product"
)

// ChildKind returns the kind one level down the hierarchy, or "" for
// data products, which have no children.
func (k Kind) ChildKind() Kind {
	switch k {
	case KindProject:
		return KindFlight
	case KindFlight:
		return KindDataProduct
	default:
		return ""
	}
}

// Node represents one entry in the catalog hierarchy: a project, a
// flight, or a data product. Fields are normalized from the platform
// response; callers never see raw API data except through Raw, which
// carries the server's JSON verbatim for passthrough display.
type Node struct {
	ID         string
	Kind       Kind
	Name       string
	ParentID   string // "" for projects
	AcquiredOn string // flights only, normalized to YYYY-MM-DD
	DataType   string // data products only, e.g. "ortho", "dsm"
	RasterURL  string // data products only, verbatim from the platform
	IsRaster   bool
	Raw        json.RawMessage
	FetchedAt  time.Time
}

// Grant is the normalized result of a credential or refresh exchange.
// ExpiresAt is zero when the platform omitted the expiry; the session
// layer falls back to the access token's own claims in that case.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Identity describes the authenticated account.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	APIKey      string
}

// nodeResponse mirrors the platform's catalog item JSON exactly.
// Unexported; callers use Node via toNode() normalization. The same
// shape serves all three levels; absent fields stay zero.
type nodeResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Title           string `json:"title"` // projects use title, not name
	ProjectID       string `json:"projectId"`
	FlightID        string `json:"flightId"`
	AcquisitionDate string `json:"acquisitionDate"`
	DataType        string `json:"dataType"`
	RasterURL       string `json:"rasterUrl"`
}

// pageResponse is the platform's listing envelope. Items are kept raw so
// each node's original JSON can ride along on Node.Raw.
type pageResponse struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor *string           `json:"nextCursor"`
}

// grantResponse mirrors the login/refresh response JSON.
type grantResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// identityResponse mirrors the GET /users/current response JSON.
type identityResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	APIKey      string `json:"apiKey"`
}

// loginRequest is the credential exchange body.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// refreshRequest is the token refresh body.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// toNode normalizes a platform catalog response into our Node type.
// raw is the item's original JSON, preserved verbatim.
func (n *nodeResponse) toNode(kind Kind, parentID string, raw json.RawMessage, logger *slog.Logger) Node {
	name := n.Name
	if name == "" {
		name = n.Title
	}

	node := Node{
		ID:   n.ID,
		Kind: kind,
		// Normalize to NFC: the platform stores names as uploaded, and
		// macOS clients upload NFD.
		Name:      norm.NFC.String(name),
		ParentID:  parentID,
		DataType:  n.DataType,
		RasterURL: n.RasterURL,
		IsRaster:  n.RasterURL != "",
		Raw:       raw,
		FetchedAt: time.Now().UTC(),
	}

	// Listing paths imply the parent; single-item responses carry it.
	if node.ParentID == "" {
		switch kind {
		case KindFlight:
			node.ParentID = n.ProjectID
		case KindDataProduct:
			node.ParentID = n.FlightID
		}
	}

	if kind == KindFlight {
		node.AcquiredOn = normalizeAcquiredOn(n.AcquisitionDate, n.ID, logger)
	}

	return node
}

// normalizeAcquiredOn reduces an acquisition timestamp to a bare
// YYYY-MM-DD date. The platform has returned both date-only strings and
// full RFC3339 timestamps for this field; flights sort and display by
// calendar date either way.
func normalizeAcquiredOn(raw, flightID string, logger *slog.Logger) string {
	if raw == "" {
		return ""
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}

	// Unrecognized layout: keep the date prefix if it is long enough.
	const dateLen = len("2006-01-02")
	if len(raw) >= dateLen {
		logger.Warn("unrecognized acquisition date layout, truncating",
			slog.String("flight_id", flightID),
			slog.String("raw", raw),
		)

		return raw[:dateLen]
	}

	logger.Warn("unusable acquisition date, dropping",
		slog.String("flight_id", flightID),
		slog.String("raw", raw),
	)

	return ""
}

// toGrant normalizes a login/refresh response into a Grant.
// An invalid or absent expiresAt yields a zero ExpiresAt and a warning;
// the session layer recovers the expiry from the token itself.
func (g *grantResponse) toGrant(logger *slog.Logger) Grant {
	grant := Grant{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
	}

	if g.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, g.ExpiresAt)
		if err != nil {
			logger.Warn("invalid expiresAt in grant response",
				slog.String("raw", g.ExpiresAt),
				slog.String("error", err.Error()),
			)
		} else {
			grant.ExpiresAt = t
		}
	}

	return grant
}

// toIdentity normalizes a user response into an Identity.
func (i *identityResponse) toIdentity() Identity {
	return Identity{
		ID:          i.ID,
		Email:       i.Email,
		DisplayName: norm.NFC.String(i.DisplayName),
		APIKey:      i.APIKey,
	}
}
