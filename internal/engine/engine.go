// Package engine assembles the transport, session manager, catalog
// synchronizer, and layer resolver into the one object command
// handlers drive. Construction restores persisted state (saved session,
// catalog snapshot); Close writes it back out.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/catalog"
	"github.com/stratushq/stratus-go/internal/config"
	"github.com/stratushq/stratus-go/internal/layer"
	"github.com/stratushq/stratus-go/internal/session"
	"github.com/stratushq/stratus-go/internal/sessionfile"
	"github.com/stratushq/stratus-go/internal/snapshot"
)

// Engine owns the full client stack for one platform account.
type Engine struct {
	client   *api.Client
	sessions *session.Manager
	store    *catalog.Store
	catalog  *catalog.Synchronizer
	layers   *layer.Resolver
	snap     *snapshot.DB // nil when snapshot persistence is disabled
	settings *config.Settings
	logger   *slog.Logger
}

// New wires an Engine from resolved settings. A session saved by a
// previous invocation is restored, and the catalog store is warmed from
// the on-disk snapshot when one is enabled. Snapshot trouble degrades
// to an empty cache rather than failing construction.
func New(settings *config.Settings, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: settings.RequestTimeout}
	client := api.NewClient(settings.BaseURL, httpClient, logger, settings.UserAgent, settings.RetryMax)

	sessions := session.NewManager(client, 0, logger)
	client.SetTokenProvider(sessions)

	// Keep the session file current across implicit refreshes: every
	// token rotation is written out, a cleared session deletes the file.
	// Persistence failures must not break the operation that triggered
	// the rotation, so they are logged and swallowed.
	sessionPath := settings.SessionPath
	sessions.OnChange(func(sess *session.Session) {
		if sess == nil {
			if err := sessionfile.Remove(sessionPath); err != nil {
				logger.Warn("removing session file", slog.String("path", sessionPath), slog.Any("error", err))
			}

			return
		}

		if err := sessionfile.Save(sessionPath, *sess); err != nil {
			logger.Warn("saving session file", slog.String("path", sessionPath), slog.Any("error", err))
		}
	})

	restoreSession(sessions, sessionPath, logger)

	store := catalog.NewStore()

	var snap *snapshot.DB
	if settings.Snapshot {
		snap = openSnapshot(store, settings, logger)
	}

	synchronizer := catalog.NewSynchronizer(client, sessions, store, catalog.Options{
		FreshnessWindow: settings.FreshnessWindow,
		PageSize:        settings.PageSize,
		RasterOnly:      settings.RasterOnly,
		Parallelism:     settings.Parallelism,
	}, logger)

	return &Engine{
		client:   client,
		sessions: sessions,
		store:    store,
		catalog:  synchronizer,
		layers:   layer.NewResolver(store, synchronizer, sessions, logger),
		snap:     snap,
		settings: settings,
		logger:   logger,
	}, nil
}

// restoreSession loads the saved session, if any. An unreadable file is
// reported but otherwise treated as "not logged in" so a corrupt file
// never bricks the CLI.
func restoreSession(sessions *session.Manager, path string, logger *slog.Logger) {
	sess, err := sessionfile.Load(path)
	if err != nil {
		logger.Warn("ignoring saved session", slog.Any("error", err))
		return
	}

	if sess == nil {
		return
	}

	sessions.Restore(*sess)
	logger.Debug("session restored", slog.String("path", path))
}

// openSnapshot opens the snapshot database and warms the store from it.
// Any failure returns nil: the engine runs with an empty cache and the
// next Close attempts a fresh snapshot.
func openSnapshot(store *catalog.Store, settings *config.Settings, logger *slog.Logger) *snapshot.DB {
	if err := os.MkdirAll(settings.DataDir, 0o700); err != nil {
		logger.Warn("catalog snapshot disabled", slog.Any("error", err))
		return nil
	}

	db, err := snapshot.Open(settings.SnapshotPath, logger)
	if err != nil {
		logger.Warn("catalog snapshot disabled", slog.String("path", settings.SnapshotPath), slog.Any("error", err))
		return nil
	}

	loaded, err := db.Load(context.Background())
	if err != nil {
		logger.Warn("catalog snapshot unreadable, starting cold", slog.Any("error", err))
		return db
	}

	store.Restore(loaded)
	nodes, listings := store.Stats()
	logger.Debug("catalog snapshot restored",
		slog.Int("nodes", nodes),
		slog.Int("listings", listings))

	return db
}

// Login authenticates with the platform and persists the session.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*session.Session, error) {
	return e.sessions.Login(ctx, identifier, secret)
}

// Logout discards the session and deletes the session file. Safe to
// call when not logged in.
func (e *Engine) Logout() error {
	e.sessions.Logout()
	return sessionfile.Remove(e.settings.SessionPath)
}

// Current returns the in-memory session, if any. It never touches the
// network.
func (e *Engine) Current() (session.Session, bool) {
	return e.sessions.Current()
}

// Identity fetches the authenticated account's identity from the
// platform.
func (e *Engine) Identity(ctx context.Context) (*api.Identity, error) {
	return e.client.CurrentUser(ctx)
}

// ReloadSession re-reads the session file and installs what it finds,
// replacing the in-memory session. A missing file clears the session.
// Installing does not fire the change hook, so picking up tokens saved
// by another process never rewrites the file they came from.
func (e *Engine) ReloadSession() error {
	sess, err := sessionfile.Load(e.settings.SessionPath)
	if err != nil {
		return fmt.Errorf("engine: reloading session: %w", err)
	}

	if sess == nil {
		e.sessions.Logout()
		return nil
	}

	e.sessions.Restore(*sess)

	return nil
}

// CurrentAccessToken returns the current access token without
// refreshing it.
func (e *Engine) CurrentAccessToken() (string, error) {
	return e.sessions.CurrentAccessToken()
}

// EnsureValid returns an access token that is good for at least the
// refresh safety margin, refreshing first if needed.
func (e *Engine) EnsureValid(ctx context.Context) (string, error) {
	return e.sessions.EnsureValid(ctx)
}

// ForceRefresh rotates the token pair regardless of remaining lifetime.
func (e *Engine) ForceRefresh(ctx context.Context) (string, error) {
	return e.sessions.ForceRefresh(ctx)
}

// ListChildren lists the children of parentID, serving from cache when
// the listing is fresh. Empty parentID lists top-level projects.
func (e *Engine) ListChildren(ctx context.Context, parentID string, force bool) ([]api.Node, error) {
	return e.catalog.ListChildren(ctx, parentID, force)
}

// FetchNode returns a single node of the given kind.
func (e *Engine) FetchNode(ctx context.Context, kind api.Kind, id string, force bool) (*api.Node, error) {
	return e.catalog.FetchNode(ctx, kind, id, force)
}

// ResolveNode finds a node by ID when the kind is not known.
func (e *Engine) ResolveNode(ctx context.Context, id string) (*api.Node, error) {
	return e.catalog.ResolveNode(ctx, id)
}

// PrefetchSubtree walks the hierarchy under parentID and warms the
// store with every listing.
func (e *Engine) PrefetchSubtree(ctx context.Context, parentID string, force bool) error {
	return e.catalog.PrefetchSubtree(ctx, parentID, force)
}

// ResolveLayer produces a renderable source descriptor for a raster
// data product.
func (e *Engine) ResolveLayer(ctx context.Context, dataProductID string) (*layer.SourceDescriptor, error) {
	return e.layers.Resolve(ctx, dataProductID)
}

// Store exposes the catalog store for read-side consumers such as the
// notification invalidator.
func (e *Engine) Store() *catalog.Store {
	return e.store
}

// BaseURL returns the platform service root.
func (e *Engine) BaseURL() string {
	return e.client.BaseURL()
}

// SaveSnapshot writes the store's current contents to the snapshot
// database. No-op when snapshot persistence is disabled.
func (e *Engine) SaveSnapshot(ctx context.Context) error {
	if e.snap == nil {
		return nil
	}

	if err := e.snap.Save(ctx, e.store.Export()); err != nil {
		return fmt.Errorf("engine: saving catalog snapshot: %w", err)
	}

	return nil
}

// Close persists the catalog snapshot and releases the snapshot
// database. The snapshot write is best-effort; only the close error is
// returned.
func (e *Engine) Close() error {
	if e.snap == nil {
		return nil
	}

	if err := e.SaveSnapshot(context.Background()); err != nil {
		e.logger.Warn("catalog snapshot not saved", slog.Any("error", err))
	}

	return e.snap.Close()
}
