package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratushq/stratus-go/internal/api"
)

func mkNode(id string, kind api.Kind, parentID string) api.Node {
	return api.Node{
		ID:        id,
		Kind:      kind,
		Name:      "node " + id,
		ParentID:  parentID,
		FetchedAt: time.Now().UTC(),
	}
}

func exhaustedCursor() PageCursor {
	return PageCursor{Exhausted: true, FetchedAt: time.Now()}
}

func TestStore_UpsertAndGet(t *testing.T) {
	s := NewStore()

	s.UpsertNode(mkNode("p-1", api.KindProject, ""))

	node, ok := s.GetNode("p-1")
	require.True(t, ok)
	assert.Equal(t, "node p-1", node.Name)

	_, ok = s.GetNode("p-2")
	assert.False(t, ok)
}

func TestStore_AppendChildren_OrderAndDedup(t *testing.T) {
	s := NewStore()

	// First page.
	s.AppendChildren(RootID, []api.Node{
		mkNode("p-1", api.KindProject, ""),
		mkNode("p-2", api.KindProject, ""),
	}, PageCursor{Token: "c2", FetchedAt: time.Now()})

	// Second page overlaps the first: the platform repeated p-2 across
	// a page boundary.
	renamed := mkNode("p-2", api.KindProject, "")
	renamed.Name = "renamed"

	s.AppendChildren(RootID, []api.Node{
		renamed,
		mkNode("p-3", api.KindProject, ""),
	}, exhaustedCursor())

	nodes, cur, ok := s.Children(RootID)
	require.True(t, ok)
	assert.True(t, cur.Exhausted)

	// No duplicates, first-occurrence order, refreshed data.
	require.Len(t, nodes, 3)
	assert.Equal(t, "p-1", nodes[0].ID)
	assert.Equal(t, "p-2", nodes[1].ID)
	assert.Equal(t, "renamed", nodes[1].Name)
	assert.Equal(t, "p-3", nodes[2].ID)
}

func TestStore_AppendChildren_ReplayIsIdempotent(t *testing.T) {
	s := NewStore()

	page := []api.Node{
		mkNode("f-1", api.KindFlight, "p-1"),
		mkNode("f-2", api.KindFlight, "p-1"),
	}

	s.AppendChildren("p-1", page, exhaustedCursor())
	s.AppendChildren("p-1", page, exhaustedCursor())

	nodes, _, _ := s.Children("p-1")
	assert.Len(t, nodes, 2)
}

func TestStore_AppendChildren_StampsParent(t *testing.T) {
	s := NewStore()

	// The node arrives without a parent reference; the listing knows it.
	s.AppendChildren("p-1", []api.Node{mkNode("f-1", api.KindFlight, "")}, exhaustedCursor())

	node, ok := s.GetNode("f-1")
	require.True(t, ok)
	assert.Equal(t, "p-1", node.ParentID)
}

func TestStore_Upsert_PreservesKnownParent(t *testing.T) {
	s := NewStore()

	s.UpsertNode(mkNode("f-1", api.KindFlight, "p-1"))

	// A later update without a parent must not erase the known one.
	update := mkNode("f-1", api.KindFlight, "")
	update.Name = "updated"
	s.UpsertNode(update)

	node, _ := s.GetNode("f-1")
	assert.Equal(t, "p-1", node.ParentID)
	assert.Equal(t, "updated", node.Name)
}

func TestStore_Upsert_RelocatesOnParentChange(t *testing.T) {
	s := NewStore()

	s.AppendChildren("p-1", []api.Node{mkNode("f-1", api.KindFlight, "")}, exhaustedCursor())
	s.AppendChildren("p-2", []api.Node{mkNode("f-9", api.KindFlight, "")}, exhaustedCursor())

	// The platform now lists f-1 under p-2.
	s.AppendChildren("p-2", []api.Node{mkNode("f-1", api.KindFlight, "")}, exhaustedCursor())

	oldSiblings, _, _ := s.Children("p-1")
	assert.Empty(t, oldSiblings)

	newSiblings, _, _ := s.Children("p-2")
	require.Len(t, newSiblings, 2)
	assert.Equal(t, "f-9", newSiblings[0].ID)
	assert.Equal(t, "f-1", newSiblings[1].ID)

	node, _ := s.GetNode("f-1")
	assert.Equal(t, "p-2", node.ParentID)
}

func TestStore_ResetChildren(t *testing.T) {
	s := NewStore()

	s.AppendChildren("p-1", []api.Node{mkNode("f-1", api.KindFlight, "")}, exhaustedCursor())
	s.ResetChildren("p-1")

	nodes, _, ok := s.Children("p-1")
	assert.False(t, ok)
	assert.Empty(t, nodes)

	// The node itself survives a listing reset.
	_, found := s.GetNode("f-1")
	assert.True(t, found)
}

func TestStore_InvalidateSubtree(t *testing.T) {
	s := NewStore()

	// root → {p-1, p-2}; p-1 → f-1 → d-1.
	s.AppendChildren(RootID, []api.Node{
		mkNode("p-1", api.KindProject, ""),
		mkNode("p-2", api.KindProject, ""),
	}, exhaustedCursor())
	s.AppendChildren("p-1", []api.Node{mkNode("f-1", api.KindFlight, "")}, exhaustedCursor())
	s.AppendChildren("f-1", []api.Node{mkNode("d-1", api.KindDataProduct, "")}, exhaustedCursor())

	s.InvalidateSubtree("p-1")

	// The invalidated node's own metadata stays.
	_, ok := s.GetNode("p-1")
	assert.True(t, ok)

	// Its descendants are gone, order and nodes alike.
	_, ok = s.GetNode("f-1")
	assert.False(t, ok)
	_, ok = s.GetNode("d-1")
	assert.False(t, ok)

	_, _, ok = s.Children("p-1")
	assert.False(t, ok)
	_, _, ok = s.Children("f-1")
	assert.False(t, ok)

	// Siblings are untouched, and the root order still lists p-1.
	_, found := s.GetNode("p-2")
	assert.True(t, found)

	rootNodes, _, ok := s.Children(RootID)
	require.True(t, ok)
	assert.Len(t, rootNodes, 2)
}

func TestStore_InvalidateRoot_EmptiesCatalog(t *testing.T) {
	s := NewStore()

	s.AppendChildren(RootID, []api.Node{mkNode("p-1", api.KindProject, "")}, exhaustedCursor())
	s.AppendChildren("p-1", []api.Node{mkNode("f-1", api.KindFlight, "")}, exhaustedCursor())

	s.InvalidateSubtree(RootID)

	nodeCount, listingCount := s.Stats()
	assert.Zero(t, nodeCount)
	assert.Zero(t, listingCount)
}

func TestStore_ExportRestore_RoundTrip(t *testing.T) {
	s := NewStore()

	s.AppendChildren(RootID, []api.Node{
		mkNode("p-1", api.KindProject, ""),
		mkNode("p-2", api.KindProject, ""),
	}, exhaustedCursor())
	s.AppendChildren("p-1", []api.Node{mkNode("f-1", api.KindFlight, "")},
		PageCursor{Token: "c2", FetchedAt: time.Now()})

	snap := s.Export()

	restored := NewStore()
	restored.Restore(snap)

	nodes, cur, ok := restored.Children(RootID)
	require.True(t, ok)
	require.Len(t, nodes, 2)
	assert.Equal(t, "p-1", nodes[0].ID)
	assert.True(t, cur.Exhausted)

	_, cur, ok = restored.Children("p-1")
	require.True(t, ok)
	assert.Equal(t, "c2", cur.Token)
	assert.False(t, cur.Exhausted)
}

func TestStore_Export_IsDeepCopy(t *testing.T) {
	s := NewStore()
	s.AppendChildren(RootID, []api.Node{mkNode("p-1", api.KindProject, "")}, exhaustedCursor())

	snap := s.Export()

	// Mutations after export must not leak into the snapshot.
	s.AppendChildren(RootID, []api.Node{mkNode("p-2", api.KindProject, "")}, exhaustedCursor())

	assert.Len(t, snap.Children[RootID], 1)
	assert.Len(t, snap.Nodes, 1)
}

func TestStore_Stats(t *testing.T) {
	s := NewStore()

	nodeCount, listingCount := s.Stats()
	assert.Zero(t, nodeCount)
	assert.Zero(t, listingCount)

	s.AppendChildren(RootID, []api.Node{mkNode("p-1", api.KindProject, "")}, exhaustedCursor())

	nodeCount, listingCount = s.Stats()
	assert.Equal(t, 1, nodeCount)
	assert.Equal(t, 1, listingCount)
}
