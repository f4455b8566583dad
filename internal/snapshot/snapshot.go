// Package snapshot persists the catalog between runs in an embedded
// SQLite database, so listings fetched by one invocation stay inside
// the freshness window for the next.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/catalog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQL statements, grouped by table.
const (
	sqlInsertNode = `INSERT INTO nodes
		(id, kind, name, parent_id, acquired_on, data_type, raster_url, is_raster, raw, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectNodes = `SELECT id, kind, name, parent_id, acquired_on, data_type,
		raster_url, is_raster, raw, fetched_at FROM nodes`

	sqlInsertChild    = `INSERT INTO children (parent_id, ordinal, child_id) VALUES (?, ?, ?)`
	sqlSelectChildren = `SELECT parent_id, child_id FROM children ORDER BY parent_id, ordinal`

	sqlInsertCursor  = `INSERT INTO cursors (parent_id, token, exhausted, fetched_at) VALUES (?, ?, ?, ?)`
	sqlSelectCursors = `SELECT parent_id, token, exhausted, fetched_at FROM cursors`
)

// DB is a catalog snapshot store. A fresh database loads as an empty
// catalog.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the snapshot database at path, creating it if needed, and
// applies pending schema migrations. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening database: %w", err)
	}

	// One connection: per-connection pragmas stay in force, and a
	// ":memory:" database is not silently duplicated per pool slot.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("catalog snapshot ready", slog.String("path", path))

	return &DB{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = NORMAL", "synchronous NORMAL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("snapshot: set pragma %s: %w", p.desc, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations using the goose
// v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("snapshot: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("snapshot: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Save replaces the stored snapshot with snap in one transaction. A
// failed save leaves the previous snapshot intact.
func (d *DB) Save(ctx context.Context, snap catalog.Snapshot) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin save: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	// children references nodes, so it clears first.
	for _, q := range []string{"DELETE FROM children", "DELETE FROM cursors", "DELETE FROM nodes"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("snapshot: clearing tables: %w", err)
		}
	}

	if err := saveNodes(ctx, tx, snap.Nodes); err != nil {
		return err
	}

	if err := saveChildren(ctx, tx, snap.Children); err != nil {
		return err
	}

	if err := saveCursors(ctx, tx, snap.Cursors); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: commit save: %w", err)
	}

	d.logger.Debug("catalog snapshot saved",
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("listings", len(snap.Children)),
	)

	return nil
}

func saveNodes(ctx context.Context, tx *sql.Tx, nodes []api.Node) error {
	stmt, err := tx.PrepareContext(ctx, sqlInsertNode)
	if err != nil {
		return fmt.Errorf("snapshot: preparing node insert: %w", err)
	}
	defer stmt.Close()

	for _, node := range nodes {
		_, err := stmt.ExecContext(ctx,
			node.ID, string(node.Kind), node.Name, node.ParentID,
			node.AcquiredOn, node.DataType, node.RasterURL,
			boolToInt(node.IsRaster), []byte(node.Raw), encodeTime(node.FetchedAt),
		)
		if err != nil {
			return fmt.Errorf("snapshot: saving node %q: %w", node.ID, err)
		}
	}

	return nil
}

func saveChildren(ctx context.Context, tx *sql.Tx, children map[string][]string) error {
	stmt, err := tx.PrepareContext(ctx, sqlInsertChild)
	if err != nil {
		return fmt.Errorf("snapshot: preparing child insert: %w", err)
	}
	defer stmt.Close()

	for parentID, ids := range children {
		for ordinal, childID := range ids {
			if _, err := stmt.ExecContext(ctx, parentID, ordinal, childID); err != nil {
				return fmt.Errorf("snapshot: saving children of %q: %w", parentID, err)
			}
		}
	}

	return nil
}

func saveCursors(ctx context.Context, tx *sql.Tx, cursors map[string]catalog.PageCursor) error {
	stmt, err := tx.PrepareContext(ctx, sqlInsertCursor)
	if err != nil {
		return fmt.Errorf("snapshot: preparing cursor insert: %w", err)
	}
	defer stmt.Close()

	for parentID, cur := range cursors {
		_, err := stmt.ExecContext(ctx, parentID, cur.Token, boolToInt(cur.Exhausted), encodeTime(cur.FetchedAt))
		if err != nil {
			return fmt.Errorf("snapshot: saving cursor of %q: %w", parentID, err)
		}
	}

	return nil
}

// Load reads the stored snapshot. A fresh database yields an empty
// snapshot; rows that fail to decode are skipped with a warning, so a
// damaged snapshot degrades to a partial cache rather than an error.
func (d *DB) Load(ctx context.Context) (catalog.Snapshot, error) {
	snap := catalog.Snapshot{
		Children: make(map[string][]string),
		Cursors:  make(map[string]catalog.PageCursor),
	}

	if err := d.loadNodes(ctx, &snap); err != nil {
		return snap, err
	}

	if err := d.loadChildren(ctx, &snap); err != nil {
		return snap, err
	}

	if err := d.loadCursors(ctx, &snap); err != nil {
		return snap, err
	}

	d.logger.Debug("catalog snapshot loaded",
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("listings", len(snap.Children)),
	)

	return snap, nil
}

func (d *DB) loadNodes(ctx context.Context, snap *catalog.Snapshot) error {
	rows, err := d.db.QueryContext(ctx, sqlSelectNodes)
	if err != nil {
		return fmt.Errorf("snapshot: loading nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			node      api.Node
			kind      string
			isRaster  int64
			raw       []byte
			fetchedAt int64
		)

		err := rows.Scan(&node.ID, &kind, &node.Name, &node.ParentID,
			&node.AcquiredOn, &node.DataType, &node.RasterURL,
			&isRaster, &raw, &fetchedAt)
		if err != nil {
			d.logger.Warn("skipping undecodable snapshot node", slog.String("error", err.Error()))
			continue
		}

		node.Kind = api.Kind(kind)
		node.IsRaster = isRaster != 0
		node.Raw = json.RawMessage(raw)
		node.FetchedAt = decodeTime(fetchedAt)

		snap.Nodes = append(snap.Nodes, node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("snapshot: reading nodes: %w", err)
	}

	return nil
}

func (d *DB) loadChildren(ctx context.Context, snap *catalog.Snapshot) error {
	rows, err := d.db.QueryContext(ctx, sqlSelectChildren)
	if err != nil {
		return fmt.Errorf("snapshot: loading children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parentID, childID string

		if err := rows.Scan(&parentID, &childID); err != nil {
			d.logger.Warn("skipping undecodable snapshot child row", slog.String("error", err.Error()))
			continue
		}

		snap.Children[parentID] = append(snap.Children[parentID], childID)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("snapshot: reading children: %w", err)
	}

	return nil
}

func (d *DB) loadCursors(ctx context.Context, snap *catalog.Snapshot) error {
	rows, err := d.db.QueryContext(ctx, sqlSelectCursors)
	if err != nil {
		return fmt.Errorf("snapshot: loading cursors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			parentID, token string
			exhausted       int64
			fetchedAt       int64
		)

		if err := rows.Scan(&parentID, &token, &exhausted, &fetchedAt); err != nil {
			d.logger.Warn("skipping undecodable snapshot cursor", slog.String("error", err.Error()))
			continue
		}

		snap.Cursors[parentID] = catalog.PageCursor{
			ParentID:  parentID,
			Token:     token,
			Exhausted: exhausted != 0,
			FetchedAt: decodeTime(fetchedAt),
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("snapshot: reading cursors: %w", err)
	}

	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

// encodeTime stores instants as Unix nanoseconds, with 0 reserved for
// the zero time.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func decodeTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}

	return time.Unix(0, v).UTC()
}
