package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/catalog"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [parent-id]",
		Short: "Show the catalog hierarchy",
		Long: `Walk the catalog below a node and render it as a tree: projects,
their flights, and each flight's data products. Without an argument the
whole catalog is shown.

The subtree is fetched level by level first, so a large catalog can
take a moment on a cold cache.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTree,
	}

	cmd.Flags().Bool("force", false, "refetch every listing even if the cached ones are fresh")

	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	var parentID string
	if len(args) > 0 {
		parentID = args[0]
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.PrefetchSubtree(ctx, parentID, force); err != nil {
		return loginHint(fmt.Errorf("walking %q: %w", displayParent(parentID), err))
	}

	store := eng.Store()

	if flagJSON {
		return printTreeJSON(store, parentID)
	}

	if parentID == "" {
		roots, _, _ := store.Children("")
		for i := range roots {
			fmt.Fprintln(os.Stdout, treeLabel(&roots[i]))
			printBranch(os.Stdout, store, roots[i].ID, "")
		}

		return nil
	}

	root, ok := store.GetNode(parentID)
	if !ok {
		return fmt.Errorf("node %q not found", parentID)
	}

	fmt.Fprintln(os.Stdout, treeLabel(&root))
	printBranch(os.Stdout, store, root.ID, "")

	return nil
}

// printBranch renders the children of parentID, one line each, in
// platform listing order.
func printBranch(w io.Writer, store *catalog.Store, parentID, prefix string) {
	children, _, ok := store.Children(parentID)
	if !ok {
		return
	}

	for i := range children {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(children)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		fmt.Fprintln(w, prefix+connector+treeLabel(&children[i]))
		printBranch(w, store, children[i].ID, childPrefix)
	}
}

func treeLabel(node *api.Node) string {
	label := fmt.Sprintf("%s (%s)", node.Name, node.ID)

	if detail := nodeDetail(node); detail != "" {
		label += "  " + detail
	}

	return label
}

// treeJSONItem is the JSON output schema for tree: a node plus its
// recursively nested children.
type treeJSONItem struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	AcquiredOn string         `json:"acquired_on,omitempty"`
	DataType   string         `json:"data_type,omitempty"`
	IsRaster   bool           `json:"is_raster,omitempty"`
	Children   []treeJSONItem `json:"children,omitempty"`
}

func printTreeJSON(store *catalog.Store, parentID string) error {
	var out any

	if parentID == "" {
		roots, _, _ := store.Children("")
		items := make([]treeJSONItem, 0, len(roots))
		for i := range roots {
			items = append(items, buildTreeJSON(store, &roots[i]))
		}

		out = items
	} else {
		root, ok := store.GetNode(parentID)
		if !ok {
			return fmt.Errorf("node %q not found", parentID)
		}

		out = buildTreeJSON(store, &root)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func buildTreeJSON(store *catalog.Store, node *api.Node) treeJSONItem {
	item := treeJSONItem{
		ID:         node.ID,
		Kind:       string(node.Kind),
		Name:       node.Name,
		AcquiredOn: node.AcquiredOn,
		DataType:   node.DataType,
		IsRaster:   node.IsRaster,
	}

	children, _, ok := store.Children(node.ID)
	if !ok {
		return item
	}

	item.Children = make([]treeJSONItem, 0, len(children))
	for i := range children {
		item.Children = append(item.Children, buildTreeJSON(store, &children[i]))
	}

	return item
}
