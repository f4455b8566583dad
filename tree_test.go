package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/catalog"
)

// seedStore builds a small two-project catalog: p-1 has one flight with
// two data products, p-2 is empty.
func seedStore() *catalog.Store {
	store := catalog.NewStore()
	cur := catalog.PageCursor{Exhausted: true, FetchedAt: time.Now()}

	store.AppendChildren(catalog.RootID, []api.Node{
		{ID: "p-1", Kind: api.KindProject, Name: "North Orchard"},
		{ID: "p-2", Kind: api.KindProject, Name: "South Field"},
	}, cur)

	store.AppendChildren("p-1", []api.Node{
		{ID: "f-1", Kind: api.KindFlight, Name: "Spring Survey", ParentID: "p-1", AcquiredOn: "2026-03-14"},
	}, cur)

	store.AppendChildren("f-1", []api.Node{
		{ID: "d-1", Kind: api.KindDataProduct, Name: "Orthomosaic", ParentID: "f-1", DataType: "ortho", IsRaster: true},
		{ID: "d-2", Kind: api.KindDataProduct, Name: "Point Cloud", ParentID: "f-1", DataType: "point_cloud"},
	}, cur)

	store.AppendChildren("p-2", nil, cur)

	return store
}

func TestPrintBranch(t *testing.T) {
	store := seedStore()

	var buf bytes.Buffer
	printBranch(&buf, store, "p-1", "")

	want := "└── Spring Survey (f-1)  2026-03-14\n" +
		"    ├── Orthomosaic (d-1)  ortho [raster]\n" +
		"    └── Point Cloud (d-2)  point_cloud\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintBranch_UnlistedParentPrintsNothing(t *testing.T) {
	store := seedStore()

	var buf bytes.Buffer
	printBranch(&buf, store, "f-404", "")

	assert.Empty(t, buf.String())
}

func TestBuildTreeJSON(t *testing.T) {
	store := seedStore()

	root, ok := store.GetNode("p-1")
	assert.True(t, ok)

	item := buildTreeJSON(store, &root)

	assert.Equal(t, "p-1", item.ID)
	assert.Len(t, item.Children, 1)
	assert.Equal(t, "f-1", item.Children[0].ID)
	assert.Len(t, item.Children[0].Children, 2)
	assert.True(t, item.Children[0].Children[0].IsRaster)
}

func TestTreeLabel(t *testing.T) {
	flight := api.Node{ID: "f-1", Kind: api.KindFlight, Name: "Spring Survey", AcquiredOn: "2026-03-14"}
	assert.Equal(t, "Spring Survey (f-1)  2026-03-14", treeLabel(&flight))

	project := api.Node{ID: "p-1", Kind: api.KindProject, Name: "North Orchard"}
	assert.Equal(t, "North Orchard (p-1)", treeLabel(&project))
}
