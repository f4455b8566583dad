// Package notify subscribes to the platform's catalog event stream and
// keeps long-running hosts current by invalidating changed parts of the
// cached catalog.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/stratushq/stratus-go/internal/catalog"
	"github.com/stratushq/stratus-go/internal/session"
)

// Event kinds published on the stream.
const (
	EventNodeUpdated    = "node.updated"
	EventNodeRemoved    = "node.removed"
	EventListingChanged = "listing.changed"
)

// Reconnect backoff bounds.
const (
	reconnectBase   = time.Second
	reconnectMax    = time.Minute
	reconnectFactor = 2
)

// Event is one catalog change notification.
type Event struct {
	Event  string `json:"event"`
	NodeID string `json:"nodeId"`
}

// Tokens yields a valid access token for the subscribe handshake.
// *session.Manager satisfies it.
type Tokens interface {
	EnsureValid(ctx context.Context) (string, error)
}

// Handler is invoked for each decoded event, on the subscriber's
// goroutine.
type Handler func(Event)

// Subscriber maintains a subscription to the event stream, redialing
// with exponential backoff when the connection drops. Delivery resets
// the backoff.
type Subscriber struct {
	endpoint string
	tokens   Tokens
	handler  Handler
	logger   *slog.Logger

	// sleepFunc is called to wait between redials. Defaults to sleepCtx.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewSubscriber wires a subscriber for the given ws(s) endpoint.
func NewSubscriber(endpoint string, tokens Tokens, handler Handler, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}

	return &Subscriber{
		endpoint:  endpoint,
		tokens:    tokens,
		handler:   handler,
		logger:    logger,
		sleepFunc: sleepCtx,
	}
}

// Endpoint derives the event stream URL from the service base URL:
// https becomes wss, http becomes ws, and the events path is appended.
func Endpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("notify: parsing base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("notify: unsupported scheme %q in base url", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/events"

	return u.String(), nil
}

// Run blocks, keeping the subscription alive until ctx is canceled.
// Authentication failures are fatal: the caller must re-login, so
// retrying them here would spin.
func (s *Subscriber) Run(ctx context.Context) error {
	delay := reconnectBase

	for {
		delivered, err := s.listen(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, session.ErrNotAuthenticated) || errors.Is(err, session.ErrRefreshFailed) {
			return err
		}

		if delivered > 0 {
			delay = reconnectBase
		}

		s.logger.Warn("event stream disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)

		if err := s.sleepFunc(ctx, delay); err != nil {
			return err
		}

		delay *= reconnectFactor
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// listen dials once and decodes events until the connection fails. It
// returns how many events it delivered alongside the terminal error.
func (s *Subscriber) listen(ctx context.Context) (int, error) {
	token, err := s.tokens.EnsureValid(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify: subscribing: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, s.endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return 0, fmt.Errorf("notify: dialing event stream: %w", err)
	}

	defer conn.Close(websocket.StatusNormalClosure, "")

	s.logger.Info("event stream connected", slog.String("endpoint", s.endpoint))

	delivered := 0

	for {
		var ev Event

		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return delivered, fmt.Errorf("notify: reading event: %w", err)
		}

		s.logger.Debug("catalog event",
			slog.String("event", ev.Event),
			slog.String("node_id", ev.NodeID),
		)

		delivered++

		s.handler(ev)
	}
}

// StoreInvalidator maps platform events onto store invalidations:
// changed listings refetch on next access, removed nodes lose their
// cached subtree. Unknown event kinds are ignored so the platform can
// add kinds without breaking older clients.
func StoreInvalidator(store *catalog.Store, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ev Event) {
		switch ev.Event {
		case EventListingChanged:
			store.ResetChildren(ev.NodeID)

		case EventNodeUpdated:
			// The node's row data lives in its parent's listing.
			if node, ok := store.GetNode(ev.NodeID); ok {
				store.ResetChildren(node.ParentID)
			}

		case EventNodeRemoved:
			if node, ok := store.GetNode(ev.NodeID); ok {
				store.InvalidateSubtree(ev.NodeID)
				store.ResetChildren(node.ParentID)
			}

		default:
			logger.Debug("ignoring unknown catalog event", slog.String("event", ev.Event))
		}
	}
}

// sleepCtx waits for d or until ctx is canceled. It is the default
// sleepFunc for Subscriber.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
