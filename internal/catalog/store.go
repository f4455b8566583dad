// Package catalog maintains the local view of the platform's
// Project → Flight → Data Product hierarchy: an in-memory store with
// explicit child ordering and page cursors, and a synchronizer that
// decides when the store is fresh enough to serve a listing and when to
// go back to the platform.
package catalog

import (
	"sync"
	"time"

	"github.com/stratushq/stratus-go/internal/api"
)

// RootID is the synthetic parent of all projects. The root has no node
// of its own; only a child order and a cursor.
const RootID = ""

// PageCursor records how far a parent's listing has been fetched.
// Token is the opaque resume position ("" once Exhausted). FetchedAt is
// when the most recent page landed; listing freshness is judged on it.
type PageCursor struct {
	ParentID  string
	Token     string
	Exhausted bool
	FetchedAt time.Time
}

// Store is the in-memory catalog arena. Three tables keyed by node ID:
// the nodes themselves, each parent's ordered child IDs, and each
// parent's page cursor. All access goes through the mutex; callers
// receive copies, never aliases into the arena.
//
// Invariants: every ID in a child order exists in the node table; a node
// appears in at most one parent's child order; the graph is a tree.
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]api.Node
	children map[string][]string
	cursors  map[string]PageCursor
}

// NewStore creates an empty catalog store.
func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]api.Node),
		children: make(map[string][]string),
		cursors:  make(map[string]PageCursor),
	}
}

// GetNode returns a copy of the node, if cached.
func (s *Store) GetNode(id string) (api.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]

	return node, ok
}

// Children returns the cached child nodes of a parent in listing order,
// together with the parent's page cursor. ok reports whether any listing
// has been recorded for this parent; the synchronizer judges freshness,
// the store just reports what it has.
func (s *Store) Children(parentID string) (nodes []api.Node, cur PageCursor, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok = s.cursors[parentID]

	ids := s.children[parentID]
	nodes = make([]api.Node, 0, len(ids))

	for _, id := range ids {
		if node, found := s.nodes[id]; found {
			nodes = append(nodes, node)
		}
	}

	return nodes, cur, ok
}

// Cursor returns the parent's page cursor, if any listing was recorded.
func (s *Store) Cursor(parentID string) (PageCursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.cursors[parentID]

	return cur, ok
}

// UpsertNode inserts or replaces a node. Replacement is whole-node
// (whatever the platform said most recently wins) with one exception:
// a known parent is never erased by an update that arrived without one.
// A changed (non-empty) parent relocates the node's placement.
func (s *Store) UpsertNode(node api.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(node)
}

func (s *Store) upsertLocked(node api.Node) {
	if existing, ok := s.nodes[node.ID]; ok {
		switch {
		case node.ParentID == "":
			node.ParentID = existing.ParentID
		case node.ParentID != existing.ParentID:
			s.removeFromOrderLocked(existing.ParentID, node.ID)
		}
	}

	s.nodes[node.ID] = node
}

// AppendChildren records one fetched page: the child nodes are upserted,
// IDs not yet in the parent's order are appended in page order, and the
// parent's cursor advances. Re-seen IDs keep their original position but
// still get their node data refreshed, so replaying a page is harmless.
func (s *Store) AppendChildren(parentID string, nodes []api.Node, cur PageCursor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.children[parentID]

	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		seen[id] = struct{}{}
	}

	for _, node := range nodes {
		node.ParentID = parentID
		s.upsertLocked(node)

		if _, dup := seen[node.ID]; dup {
			continue
		}

		seen[node.ID] = struct{}{}
		order = append(order, node.ID)
	}

	s.children[parentID] = order

	cur.ParentID = parentID
	s.cursors[parentID] = cur
}

// ResetChildren drops a parent's child order and cursor so the next
// listing starts from the beginning. The child nodes themselves stay in
// the arena; a restarted listing usually re-sees most of them.
func (s *Store) ResetChildren(parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.children, parentID)
	delete(s.cursors, parentID)
}

// InvalidateSubtree discards everything cached beneath the given node:
// its child order, its cursor, and all descendant nodes with theirs.
// The node's own metadata stays; it was not the thing reported stale.
// Invalidating RootID empties the whole catalog.
func (s *Store) InvalidateSubtree(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, childID := range s.children[id] {
		s.dropSubtreeLocked(childID)
	}

	delete(s.children, id)
	delete(s.cursors, id)
}

// dropSubtreeLocked removes a node and everything beneath it.
func (s *Store) dropSubtreeLocked(id string) {
	for _, childID := range s.children[id] {
		s.dropSubtreeLocked(childID)
	}

	delete(s.children, id)
	delete(s.cursors, id)
	delete(s.nodes, id)
}

// removeFromOrderLocked deletes one ID from a parent's child order,
// preserving the order of the rest.
func (s *Store) removeFromOrderLocked(parentID, id string) {
	order, ok := s.children[parentID]
	if !ok {
		return
	}

	for i, existing := range order {
		if existing == id {
			s.children[parentID] = append(order[:i], order[i+1:]...)

			return
		}
	}
}

// Stats returns the number of cached nodes and recorded listings.
func (s *Store) Stats() (nodeCount, listingCount int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes), len(s.cursors)
}

// Snapshot is a deep copy of the store's tables, used by the snapshot
// layer to persist the catalog between runs.
type Snapshot struct {
	Nodes    []api.Node
	Children map[string][]string
	Cursors  map[string]PageCursor
}

// Export returns a deep copy of the store's contents.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes:    make([]api.Node, 0, len(s.nodes)),
		Children: make(map[string][]string, len(s.children)),
		Cursors:  make(map[string]PageCursor, len(s.cursors)),
	}

	for _, node := range s.nodes {
		snap.Nodes = append(snap.Nodes, node)
	}

	for parentID, order := range s.children {
		snap.Children[parentID] = append([]string(nil), order...)
	}

	for parentID, cur := range s.cursors {
		snap.Cursors[parentID] = cur
	}

	return snap
}

// Restore replaces the store's contents with a previously exported
// snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]api.Node, len(snap.Nodes))
	s.children = make(map[string][]string, len(snap.Children))
	s.cursors = make(map[string]PageCursor, len(snap.Cursors))

	for _, node := range snap.Nodes {
		s.nodes[node.ID] = node
	}

	for parentID, order := range snap.Children {
		s.children[parentID] = append([]string(nil), order...)
	}

	for parentID, cur := range snap.Cursors {
		s.cursors[parentID] = cur
	}
}
