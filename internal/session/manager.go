// Package session owns the authenticated session lifecycle: credential
// exchange, token refresh, and expiry tracking. There is at most one
// active session per Manager, and only the Manager mutates it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/stratushq/stratus-go/internal/api"
)

// Sentinel errors for session state classification.
// Use errors.Is(err, session.ErrNotAuthenticated) to check.
var (
	ErrNotAuthenticated   = errors.New("session: not authenticated")
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrExpired            = errors.New("session: access token expired")
	ErrRefreshFailed      = errors.New("session: refresh failed, login required")
)

// defaultRefreshMargin is how long before expiry a token is considered
// due for refresh. Generous enough to cover a slow request in flight.
const defaultRefreshMargin = 30 * time.Second

// refreshKey is the singleflight key; there is only one session, so
// all refresh attempts collapse onto it.
const refreshKey = "refresh"

// API is the slice of the transport the session manager uses.
// *api.Client satisfies it.
type API interface {
	Login(ctx context.Context, identifier, secret string) (*api.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*api.Grant, error)
	CurrentUser(ctx context.Context) (*api.Identity, error)
}

// Session is the authenticated state: the token pair, its expiry, and
// the account identity fetched at login. Values returned to callers are
// copies; the Manager's own copy never escapes.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     api.Identity
}

// Manager owns the session. It serializes refresh so that concurrent
// callers share a single token exchange, and it clears the session when
// a refresh is rejected so stale credentials cannot be replayed.
type Manager struct {
	api    API
	margin time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	sess *Session

	refreshGroup singleflight.Group

	// onChange, when set, observes every session change.
	onChange func(*Session)

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewManager creates a session manager. margin <= 0 selects the default
// refresh safety margin.
func NewManager(apiClient API, margin time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if margin <= 0 {
		margin = defaultRefreshMargin
	}

	return &Manager{
		api:    apiClient,
		margin: margin,
		logger: logger,
		now:    time.Now,
	}
}

// OnChange registers fn to observe session changes: a copy of the new
// session after login or refresh, nil after logout or an irrecoverable
// refresh. Callers use it to keep a persisted session file current. Set
// it before the manager is shared across goroutines; fn must not call
// back into the Manager.
func (m *Manager) OnChange(fn func(*Session)) {
	m.onChange = fn
}

func (m *Manager) notifyChange(sess *Session) {
	if m.onChange != nil {
		m.onChange(sess)
	}
}

// Login exchanges credentials for a session, replacing any existing one.
// Wrong credentials surface as ErrInvalidCredentials. The account
// identity is fetched right after the exchange; if that lookup fails the
// session is still established, just without identity details.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	grant, err := m.api.Login(ctx, identifier, secret)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}

		return nil, err
	}

	sess := m.install(grant)

	m.logger.Info("session established",
		slog.Time("expires_at", sess.ExpiresAt),
	)

	identity, err := m.api.CurrentUser(ctx)
	if err != nil {
		m.logger.Warn("identity lookup after login failed",
			slog.String("error", err.Error()),
		)

		return &sess, nil
	}

	m.mu.Lock()
	merged := m.sess != nil
	if merged {
		m.sess.Identity = *identity
		sess = *m.sess
	}
	m.mu.Unlock()

	if merged {
		m.notifyChange(&sess)
	}

	return &sess, nil
}

// Logout discards the session. Idempotent; logging out twice is fine.
func (m *Manager) Logout() {
	m.mu.Lock()
	had := m.sess != nil
	m.sess = nil
	m.mu.Unlock()

	if had {
		m.logger.Info("session cleared")
	}

	m.notifyChange(nil)
}

// Restore installs a session persisted by an earlier run. It does not
// validate the tokens against the platform; the first authenticated
// request will do that naturally.
func (m *Manager) Restore(sess Session) {
	m.mu.Lock()
	m.sess = &sess
	m.mu.Unlock()

	m.logger.Debug("session restored",
		slog.Time("expires_at", sess.ExpiresAt),
	)
}

// Current returns a copy of the session, or false when not logged in.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return Session{}, false
	}

	return *m.sess, true
}

// CurrentAccessToken returns the access token without any network I/O.
// Returns ErrNotAuthenticated when no session exists and ErrExpired when
// the token's lifetime has passed. A session with no known expiry is
// treated as expired; EnsureValid will recover it via refresh.
func (m *Manager) CurrentAccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return "", ErrNotAuthenticated
	}

	if m.sess.ExpiresAt.IsZero() || !m.now().Before(m.sess.ExpiresAt) {
		return "", ErrExpired
	}

	return m.sess.AccessToken, nil
}

// EnsureValid returns an access token with at least the safety margin of
// lifetime left, refreshing if needed. Concurrent callers share a single
// refresh. When the refresh is rejected the session is cleared and
// ErrRefreshFailed is returned; the caller must log in again.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	m.mu.Lock()

	if m.sess == nil {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}

	if m.fresh(m.sess) {
		tok := m.sess.AccessToken
		m.mu.Unlock()

		return tok, nil
	}

	m.mu.Unlock()

	return m.refresh(ctx, false)
}

// ForceRefresh unconditionally exchanges the refresh token, regardless
// of the recorded expiry. It is the recovery path when the platform
// rejects a token the clock still considers valid.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	return m.refresh(ctx, true)
}

// AccessToken implements api.TokenProvider: every authenticated request
// gets a token that is valid now and for the near future.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	return m.EnsureValid(ctx)
}

// fresh reports whether the session's token still has more than the
// safety margin of lifetime left. Callers hold m.mu.
func (m *Manager) fresh(sess *Session) bool {
	if sess.ExpiresAt.IsZero() {
		return false
	}

	return m.now().Before(sess.ExpiresAt.Add(-m.margin))
}

// refresh performs the serialized token exchange. With force unset, the
// winner of the singleflight re-checks freshness first so that callers
// queued behind a completed refresh reuse its result instead of
// spending another exchange.
func (m *Manager) refresh(ctx context.Context, force bool) (string, error) {
	tok, err, _ := m.refreshGroup.Do(refreshKey, func() (any, error) {
		m.mu.Lock()

		if m.sess == nil {
			m.mu.Unlock()
			return "", ErrNotAuthenticated
		}

		if !force && m.fresh(m.sess) {
			tok := m.sess.AccessToken
			m.mu.Unlock()

			return tok, nil
		}

		refreshToken := m.sess.RefreshToken
		m.mu.Unlock()

		if refreshToken == "" {
			m.clear()
			return "", fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
		}

		grant, err := m.api.Refresh(ctx, refreshToken)
		if err != nil {
			// Transient transport trouble leaves the session intact so a
			// later attempt can still succeed. Rejection clears it.
			if errors.Is(err, api.ErrUnreachable) || errors.Is(err, api.ErrRateLimited) {
				return "", fmt.Errorf("session: refresh attempt failed: %w", err)
			}

			m.clear()

			m.logger.Warn("refresh rejected, session cleared",
				slog.String("error", err.Error()),
			)

			return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}

		sess := m.install(grant)

		m.logger.Info("session refreshed",
			slog.Time("expires_at", sess.ExpiresAt),
		)

		return sess.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	return tok.(string), nil
}

// install replaces the token state from a grant, keeping any identity
// already on the session, and returns a copy of the result.
func (m *Manager) install(grant *api.Grant) Session {
	expiresAt := grant.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = expiryFromToken(grant.AccessToken, m.logger)
	}

	m.mu.Lock()

	var identity api.Identity
	if m.sess != nil {
		identity = m.sess.Identity
	}

	m.sess = &Session{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    expiresAt,
		Identity:     identity,
	}

	sess := *m.sess
	m.mu.Unlock()

	m.notifyChange(&sess)

	return sess
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.sess = nil
	m.mu.Unlock()

	m.notifyChange(nil)
}

// expiryFromToken recovers the expiry from the access token's exp claim
// when the grant response omitted it. The token is parsed unverified:
// this is a scheduling hint, not an authentication decision; the
// platform remains the authority on token validity.
func expiryFromToken(accessToken string, logger *slog.Logger) time.Time {
	claims := jwt.MapClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		logger.Warn("access token is not a parseable JWT, expiry unknown",
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		logger.Warn("access token carries no exp claim, expiry unknown")
		return time.Time{}
	}

	return exp.Time
}
