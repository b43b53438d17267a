// Package store persists spectrum workspaces: the clusters of both sides
// with their raw points, hulls and generation parameters. Histograms are
// always recomputed from the points and never stored.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/distance.spectrum/internal/monitoring"
	"github.com/banshee-data/distance.spectrum/internal/spectrum"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/cluster"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a workspace does not exist.
var ErrNotFound = errors.New("workspace not found")

// Store is a SQLite-backed workspace repository.
type Store struct {
	db *sql.DB
}

// Workspace is a loaded workspace.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Clusters  map[spectrum.Side][]*cluster.Cluster
}

// WorkspaceInfo summarises a stored workspace.
type WorkspaceInfo struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Clusters  int
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// foreign_keys is per connection; one connection keeps it in force and
	// keeps :memory: databases alive
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Closing m would close db as well.
	m.Log = migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// SaveWorkspace stores the clusters of both sides under a new workspace and
// returns its id. The whole workspace is written in one transaction.
func (s *Store) SaveWorkspace(ctx context.Context, name string, sides map[spectrum.Side][]*cluster.Cluster) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workspaces (workspace_id, name, created_at) VALUES (?, ?, ?)`,
		id, name, time.Now().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("insert workspace: %w", err)
	}

	clusterStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clusters (workspace_id, cluster_id, side, position, color, normal, deviation, clip_radius, hull)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare cluster insert: %w", err)
	}
	defer clusterStmt.Close()

	pointStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cluster_points (workspace_id, cluster_id, idx, x, y) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare point insert: %w", err)
	}
	defer pointStmt.Close()

	for _, side := range []spectrum.Side{spectrum.Baseline, spectrum.Experimental} {
		for pos, c := range sides[side] {
			hull, err := json.Marshal(c.Hull())
			if err != nil {
				return "", fmt.Errorf("encode hull of %s: %w", c.ID(), err)
			}
			var normal int
			var deviation, clip sql.NullFloat64
			if np := c.Normal(); np != nil {
				normal = 1
				deviation = sql.NullFloat64{Float64: np.Deviation, Valid: true}
				clip = sql.NullFloat64{Float64: np.ClipRadius, Valid: true}
			}
			if _, err := clusterStmt.ExecContext(ctx,
				id, c.ID(), side.String(), pos, c.Color(), normal, deviation, clip, string(hull),
			); err != nil {
				return "", fmt.Errorf("insert cluster %s: %w", c.ID(), err)
			}
			for i, p := range c.Raw() {
				if _, err := pointStmt.ExecContext(ctx, id, c.ID(), i, p[0], p[1]); err != nil {
					return "", fmt.Errorf("insert point %d of %s: %w", i, c.ID(), err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	monitoring.Logf("[store] saved workspace %s (%q): %d baseline, %d experimental clusters",
		id, name, len(sides[spectrum.Baseline]), len(sides[spectrum.Experimental]))
	return id, nil
}

// LoadWorkspace restores the clusters of a workspace, in saved order.
func (s *Store) LoadWorkspace(ctx context.Context, id string) (*Workspace, error) {
	ws := &Workspace{ID: id, Clusters: make(map[spectrum.Side][]*cluster.Cluster)}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, created_at FROM workspaces WHERE workspace_id = ?`, id,
	).Scan(&ws.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query workspace %s: %w", id, err)
	}
	ws.CreatedAt = time.Unix(0, created)

	type row struct {
		clusterID, side, color string
		normal                 bool
		deviation, clip        sql.NullFloat64
		hull                   string
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, side, color, normal, deviation, clip_radius, hull
		FROM clusters WHERE workspace_id = ? ORDER BY side, position`, id)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	var found []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.clusterID, &r.side, &r.color, &r.normal, &r.deviation, &r.clip, &r.hull); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}

	for _, r := range found {
		side, err := spectrum.ParseSide(r.side)
		if err != nil {
			return nil, err
		}
		var hull cluster.Quad
		if err := json.Unmarshal([]byte(r.hull), &hull); err != nil {
			return nil, fmt.Errorf("decode hull of %s: %w", r.clusterID, err)
		}
		var np *cluster.NormalParams
		if r.normal {
			np = &cluster.NormalParams{Deviation: r.deviation.Float64, ClipRadius: r.clip.Float64}
		}
		raw, err := s.loadPoints(ctx, id, r.clusterID)
		if err != nil {
			return nil, err
		}
		c, err := cluster.Restore(r.clusterID, raw, hull, np, r.color)
		if err != nil {
			return nil, err
		}
		ws.Clusters[side] = append(ws.Clusters[side], c)
	}
	return ws, nil
}

func (s *Store) loadPoints(ctx context.Context, workspaceID, clusterID string) ([]spectrum.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y FROM cluster_points WHERE workspace_id = ? AND cluster_id = ? ORDER BY idx`,
		workspaceID, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query points of %s: %w", clusterID, err)
	}
	defer rows.Close()
	var pts []spectrum.Point
	for rows.Next() {
		var x, y float64
		if err := rows.Scan(&x, &y); err != nil {
			return nil, fmt.Errorf("scan point of %s: %w", clusterID, err)
		}
		pts = append(pts, spectrum.Point{x, y})
	}
	return pts, rows.Err()
}

// ListWorkspaces returns every workspace, newest first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]WorkspaceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.workspace_id, w.name, w.created_at, COUNT(c.cluster_id)
		FROM workspaces w LEFT JOIN clusters c ON c.workspace_id = w.workspace_id
		GROUP BY w.workspace_id
		ORDER BY w.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query workspaces: %w", err)
	}
	defer rows.Close()

	var out []WorkspaceInfo
	for rows.Next() {
		var info WorkspaceInfo
		var created int64
		if err := rows.Scan(&info.ID, &info.Name, &created, &info.Clusters); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		info.CreatedAt = time.Unix(0, created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// ResolveWorkspace accepts either a workspace id or a name; a name resolves
// to the newest workspace carrying it.
func (s *Store) ResolveWorkspace(ctx context.Context, ref string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id FROM workspaces
		WHERE workspace_id = ? OR name = ?
		ORDER BY workspace_id = ? DESC, created_at DESC
		LIMIT 1`, ref, ref, ref,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("workspace %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve workspace %q: %w", ref, err)
	}
	return id, nil
}

// DeleteWorkspace removes a workspace with its clusters and points.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE workspace_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	return nil
}
