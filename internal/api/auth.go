package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Login exchanges credentials for a token grant. It runs pre-auth: no
// bearer token is attached. Wrong credentials surface as ErrUnauthorized.
// The secret is never logged.
func (c *Client) Login(ctx context.Context, identifier, secret string) (*Grant, error) {
	c.logger.Info("logging in",
		slog.String("identifier", identifier),
	)

	body, err := json.Marshal(loginRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("api: marshaling login request: %w", err)
	}

	resp, err := c.doPreAuth(ctx, http.MethodPost, "/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gr grantResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("api: decoding login response: %w: %w", ErrMalformed, err)
	}

	if gr.AccessToken == "" {
		return nil, fmt.Errorf("api: login response missing accessToken: %w", ErrMalformed)
	}

	grant := gr.toGrant(c.logger)

	c.logger.Info("login succeeded",
		slog.String("identifier", identifier),
		slog.Time("expires_at", grant.ExpiresAt),
	)

	return &grant, nil
}

// Refresh exchanges a refresh token for a new grant. Runs pre-auth; the
// stale access token is not attached. A rejected refresh token surfaces
// as ErrUnauthorized.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	c.logger.Info("refreshing session")

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("api: marshaling refresh request: %w", err)
	}

	resp, err := c.doPreAuth(ctx, http.MethodPost, "/auth/refresh", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gr grantResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("api: decoding refresh response: %w: %w", ErrMalformed, err)
	}

	if gr.AccessToken == "" {
		return nil, fmt.Errorf("api: refresh response missing accessToken: %w", ErrMalformed)
	}

	grant := gr.toGrant(c.logger)

	c.logger.Info("session refreshed",
		slog.Time("expires_at", grant.ExpiresAt),
	)

	return &grant, nil
}

// CurrentUser returns the authenticated account's identity.
func (c *Client) CurrentUser(ctx context.Context) (*Identity, error) {
	c.logger.Info("fetching authenticated user identity")

	resp, err := c.Do(ctx, http.MethodGet, "/users/current", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ir identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("api: decoding identity response: %w: %w", ErrMalformed, err)
	}

	identity := ir.toIdentity()

	c.logger.Debug("fetched identity",
		slog.String("id", identity.ID),
		slog.String("email", identity.Email),
	)

	return &identity, nil
}
