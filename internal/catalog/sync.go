package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/session"
)

// Synchronizer defaults.
const (
	defaultFreshnessWindow = 5 * time.Minute
	defaultPageSize        = 50
	defaultParallelism     = 4
)

// ErrUnknownParent is returned when a listing is requested for an ID the
// store has never seen. The caller should resolve the node first.
var ErrUnknownParent = errors.New("catalog: unknown parent node")

// CatalogAPI is the slice of the transport the synchronizer uses.
// *api.Client satisfies it.
type CatalogAPI interface {
	ListPage(ctx context.Context, kind api.Kind, parentID, cursor string, limit int, rasterOnly bool) (*api.Page, error)
	GetNode(ctx context.Context, kind api.Kind, id string) (*api.Node, error)
}

// SessionControl is the slice of the session manager the synchronizer
// uses: a valid token before any network work, and the forced exchange
// when the platform rejects one mid-listing. *session.Manager satisfies it.
type SessionControl interface {
	EnsureValid(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Options tune the synchronizer. Zero values select the defaults.
type Options struct {
	// FreshnessWindow is how long a completed listing (or fetched node)
	// is served from the store without a network round-trip.
	FreshnessWindow time.Duration

	// PageSize is the limit passed to listing requests.
	PageSize int

	// RasterOnly asks the platform to list only raster-bearing projects
	// and flights.
	RasterOnly bool

	// Parallelism caps concurrent sibling fetches during prefetch.
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = defaultFreshnessWindow
	}

	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}

	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallelism
	}

	return o
}

// Synchronizer keeps the store consistent with the platform. Listings
// for the same parent are serialized so concurrent callers share one
// pagination run; different parents proceed in parallel.
type Synchronizer struct {
	api      CatalogAPI
	sessions SessionControl
	store    *Store
	opts     Options
	logger   *slog.Logger

	mu          sync.Mutex
	parentLocks map[string]*sync.Mutex

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewSynchronizer wires a synchronizer over the given store.
func NewSynchronizer(catalogAPI CatalogAPI, sessions SessionControl, store *Store, opts Options, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{
		api:         catalogAPI,
		sessions:    sessions,
		store:       store,
		opts:        opts.withDefaults(),
		logger:      logger,
		parentLocks: make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

// Store exposes the underlying catalog store for read-side callers.
func (s *Synchronizer) Store() *Store {
	return s.store
}

// ListChildren returns the children of parentID in listing order,
// fetching from the platform only when the cached listing is absent,
// stale, or incomplete. force bypasses the cache entirely: the subtree
// is invalidated and the listing restarts from the first page.
//
// Pages are committed to the store as they arrive, so a canceled listing
// keeps its prefix and a later call resumes from the stored cursor.
func (s *Synchronizer) ListChildren(ctx context.Context, parentID string, force bool) ([]api.Node, error) {
	childKind, err := s.childKind(parentID)
	if err != nil {
		return nil, err
	}

	// Leaf nodes have no children and need no network to say so.
	if childKind == "" {
		return nil, nil
	}

	if !force {
		if nodes, ok := s.cachedChildren(parentID); ok {
			return nodes, nil
		}
	}

	lock := s.parentLock(parentID)
	lock.Lock()
	defer lock.Unlock()

	// A caller that was blocked here while another finished the same
	// listing reuses that result instead of repeating it.
	if !force {
		if nodes, ok := s.cachedChildren(parentID); ok {
			return nodes, nil
		}
	}

	if _, err := s.sessions.EnsureValid(ctx); err != nil {
		return nil, fmt.Errorf("catalog: listing %q: %w", parentID, err)
	}

	if err := s.paginate(ctx, childKind, parentID, force); err != nil {
		return nil, err
	}

	nodes, _, _ := s.store.Children(parentID)

	return nodes, nil
}

// cachedChildren returns the stored children when the listing is
// complete and inside the freshness window.
func (s *Synchronizer) cachedChildren(parentID string) ([]api.Node, bool) {
	nodes, cur, ok := s.store.Children(parentID)
	if !ok || !cur.Exhausted || !s.fresh(cur.FetchedAt) {
		return nil, false
	}

	s.logger.Debug("serving listing from cache",
		slog.String("parent_id", parentID),
		slog.Int("count", len(nodes)),
	)

	return nodes, true
}

// paginate walks the listing to exhaustion, committing each page.
// Callers hold the parent lock.
func (s *Synchronizer) paginate(ctx context.Context, childKind api.Kind, parentID string, force bool) error {
	cursor := ""

	cur, ok := s.store.Cursor(parentID)

	switch {
	case force:
		// Explicit refresh: the platform is the authority, drop the
		// cached subtree and start over.
		s.store.InvalidateSubtree(parentID)
	case ok && !cur.Exhausted && s.fresh(cur.FetchedAt):
		// A fresh partial listing resumes where it stopped.
		cursor = cur.Token
	case ok:
		// Stale, whether complete or not: restart from the first page.
		// The order rebuilds from what the platform returns now, so
		// entries it no longer lists disappear.
		s.store.ResetChildren(parentID)
	}

	listParent := parentID // listings of projects address the collection root
	if childKind == api.KindProject {
		listParent = ""
	}

	pages := 0

	for {
		page, err := s.fetchPage(ctx, childKind, listParent, cursor)
		if err != nil {
			return err
		}

		pages++

		s.store.AppendChildren(parentID, page.Nodes, PageCursor{
			Token:     page.NextCursor,
			Exhausted: page.NextCursor == "",
			FetchedAt: s.now(),
		})

		if page.NextCursor == "" {
			break
		}

		cursor = page.NextCursor
	}

	s.logger.Info("listing synchronized",
		slog.String("parent_id", parentID),
		slog.String("kind", string(childKind)),
		slog.Int("pages", pages),
	)

	return nil
}

// fetchPage requests one page, recovering from a rejected token by
// forcing a refresh and retrying the same page exactly once. A second
// rejection means the session is genuinely dead.
func (s *Synchronizer) fetchPage(ctx context.Context, childKind api.Kind, listParent, cursor string) (*api.Page, error) {
	page, err := s.api.ListPage(ctx, childKind, listParent, cursor, s.opts.PageSize, s.opts.RasterOnly)
	if err == nil || !errors.Is(err, api.ErrUnauthorized) {
		return page, err
	}

	s.logger.Warn("listing rejected as unauthorized, refreshing session",
		slog.String("kind", string(childKind)),
		slog.String("parent_id", listParent),
	)

	if _, rerr := s.sessions.ForceRefresh(ctx); rerr != nil {
		return nil, fmt.Errorf("catalog: refreshing after rejected request: %w", rerr)
	}

	page, err = s.api.ListPage(ctx, childKind, listParent, cursor, s.opts.PageSize, s.opts.RasterOnly)
	if err != nil && errors.Is(err, api.ErrUnauthorized) {
		return nil, fmt.Errorf("catalog: still unauthorized after refresh: %w", session.ErrNotAuthenticated)
	}

	return page, err
}

// FetchNode returns a single node, served from the store when it was
// fetched inside the freshness window. force always refetches.
func (s *Synchronizer) FetchNode(ctx context.Context, kind api.Kind, id string, force bool) (*api.Node, error) {
	if !force {
		if node, ok := s.store.GetNode(id); ok && s.fresh(node.FetchedAt) {
			return &node, nil
		}
	}

	if _, err := s.sessions.EnsureValid(ctx); err != nil {
		return nil, fmt.Errorf("catalog: fetching %s %q: %w", kind, id, err)
	}

	node, err := s.getNode(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	s.store.UpsertNode(*node)

	// Return the stored view: the upsert may have preserved a parent the
	// response didn't carry.
	if stored, ok := s.store.GetNode(id); ok {
		return &stored, nil
	}

	return node, nil
}

// getNode is FetchNode's transport call with the same rejected-token
// recovery as listings.
func (s *Synchronizer) getNode(ctx context.Context, kind api.Kind, id string) (*api.Node, error) {
	node, err := s.api.GetNode(ctx, kind, id)
	if err == nil || !errors.Is(err, api.ErrUnauthorized) {
		return node, err
	}

	if _, rerr := s.sessions.ForceRefresh(ctx); rerr != nil {
		return nil, fmt.Errorf("catalog: refreshing after rejected request: %w", rerr)
	}

	node, err = s.api.GetNode(ctx, kind, id)
	if err != nil && errors.Is(err, api.ErrUnauthorized) {
		return nil, fmt.Errorf("catalog: still unauthorized after refresh: %w", session.ErrNotAuthenticated)
	}

	return node, err
}

// ResolveNode finds a node by bare ID: from the store if cached, else by
// probing the platform level by level. Useful for deep links where the
// caller has an ID but not its kind.
func (s *Synchronizer) ResolveNode(ctx context.Context, id string) (*api.Node, error) {
	if node, ok := s.store.GetNode(id); ok {
		return &node, nil
	}

	for _, kind := range []api.Kind{api.KindProject, api.KindFlight, api.KindDataProduct} {
		node, err := s.FetchNode(ctx, kind, id, false)
		if err == nil {
			return node, nil
		}

		if errors.Is(err, api.ErrNotFound) {
			continue
		}

		return nil, err
	}

	return nil, fmt.Errorf("catalog: node %q: %w", id, api.ErrNotFound)
}

// PrefetchSubtree warms the store beneath parentID: children first, then
// each child's subtree, with sibling subtrees fetched concurrently up to
// the configured parallelism. The walk stops at data products.
func (s *Synchronizer) PrefetchSubtree(ctx context.Context, parentID string, force bool) error {
	children, err := s.ListChildren(ctx, parentID, force)
	if err != nil {
		return err
	}

	grandKind := ""

	if len(children) > 0 {
		grandKind = string(children[0].Kind.ChildKind())
	}

	if grandKind == "" {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for _, child := range children {
		g.Go(func() error {
			// force applies to the root listing only; descendants were
			// just dropped by the invalidation and refetch regardless.
			return s.PrefetchSubtree(ctx, child.ID, false)
		})
	}

	return g.Wait()
}

// childKind determines what kind of node a listing under parentID
// yields. The root lists projects; everything else requires the parent
// to be cached so its level is known.
func (s *Synchronizer) childKind(parentID string) (api.Kind, error) {
	if parentID == RootID {
		return api.KindProject, nil
	}

	parent, ok := s.store.GetNode(parentID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownParent, parentID)
	}

	return parent.Kind.ChildKind(), nil
}

// parentLock returns the mutex serializing listings for one parent.
func (s *Synchronizer) parentLock(parentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.parentLocks[parentID]
	if !ok {
		lock = &sync.Mutex{}
		s.parentLocks[parentID] = lock
	}

	return lock
}

func (s *Synchronizer) fresh(fetchedAt time.Time) bool {
	if fetchedAt.IsZero() {
		return false
	}

	return s.now().Sub(fetchedAt) < s.opts.FreshnessWindow
}
