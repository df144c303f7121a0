// Package sqlite is a SQLite-backed object store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/store/sqlite/migrations"
)

// keysPerQuery bounds the row-value list of one lookup statement.
const keysPerQuery = 200

const objectColumns = `type, id, origin_id, attributes, refs, namespaces, workspaces, updated_at`

const prefixedObjectColumns = `o.type, o.id, o.origin_id, o.attributes, o.refs, o.namespaces, o.workspaces, o.updated_at`

// Store persists saved objects and import history in one SQLite file.
type Store struct {
	db       *sql.DB
	registry *core.TypeRegistry
	now      func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations. Writes are serialized through a single connection.
func Open(ctx context.Context, path string, registry *core.TypeRegistry) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if registry == nil {
		registry = core.DefaultRegistry()
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, registry: registry, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (core.Object, error) {
	var obj core.Object
	var attrs, refs, namespaces, workspaces string
	var updatedAt int64
	if err := row.Scan(&obj.Type, &obj.ID, &obj.OriginID, &attrs, &refs, &namespaces, &workspaces, &updatedAt); err != nil {
		return core.Object{}, err
	}
	for _, f := range []struct {
		raw  string
		dest any
	}{
		{attrs, &obj.Attributes},
		{refs, &obj.References},
		{namespaces, &obj.Namespaces},
		{workspaces, &obj.Workspaces},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return core.Object{}, fmt.Errorf("decode %s: %w", obj.Key(), err)
		}
	}
	obj.UpdatedAt = fromMillis(updatedAt)
	return obj, nil
}

func marshalColumns(obj core.Object) (attrs, refs, namespaces, workspaces string, err error) {
	out := make([]string, 4)
	for i, v := range []any{obj.Attributes, obj.References, obj.Namespaces, obj.Workspaces} {
		b, err := json.Marshal(v)
		if err != nil {
			return "", "", "", "", fmt.Errorf("encode %s: %w", obj.Key(), err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], out[3], nil
}

func (s *Store) queryObjects(ctx context.Context, query string, args ...any) ([]core.Object, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

// BulkGet implements core.Store.
func (s *Store) BulkGet(ctx context.Context, keys []core.ObjectKey, opts core.GetOptions) ([]core.GetResult, error) {
	// Within one call every type maps to exactly one scope, so rows are
	// identified by type and id alone.
	found := make(map[core.ObjectKey]core.Object, len(keys))
	for start := 0; start < len(keys); start += keysPerQuery {
		chunk := keys[start:min(start+keysPerQuery, len(keys))]

		tuples := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*3)
		for i, k := range chunk {
			tuples[i] = "(?, ?, ?)"
			args = append(args, s.registry.Scope(k.Type, opts.Namespace), k.Type, k.ID)
		}
		objs, err := s.queryObjects(ctx, `SELECT `+objectColumns+` FROM saved_objects
WHERE (scope, type, id) IN (VALUES `+strings.Join(tuples, ", ")+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("bulk get: %w", err)
		}
		for _, obj := range objs {
			found[obj.Key()] = obj
		}
	}

	results := make([]core.GetResult, len(keys))
	for i, k := range keys {
		results[i] = core.GetResult{Key: k}
		if obj, ok := found[k]; ok && s.registry.Visible(obj, opts) {
			results[i].Found = true
			results[i].Object = obj
		}
	}
	return results, nil
}

// FindByOrigin implements core.Store. Queries are matched in chunks of
// keysPerQuery against a VALUES list, so the round trips do not grow with
// the number of distinct origins.
func (s *Store) FindByOrigin(ctx context.Context, queries []core.OriginQuery, opts core.GetOptions) (map[core.OriginQuery][]core.Object, error) {
	out := make(map[core.OriginQuery][]core.Object)
	var unique []core.OriginQuery
	for _, q := range queries {
		if _, seen := out[q]; seen {
			continue
		}
		out[q] = nil
		unique = append(unique, q)
	}

	for start := 0; start < len(unique); start += keysPerQuery {
		chunk := unique[start:min(start+keysPerQuery, len(unique))]

		tuples := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*4)
		for i, q := range chunk {
			tuples[i] = "(?, ?, ?, ?)"
			args = append(args, i, s.registry.Scope(q.Type, opts.Namespace), q.Type, q.OriginID)
		}
		rows, err := s.db.QueryContext(ctx, `WITH q(idx, scope, type, origin) AS (VALUES `+strings.Join(tuples, ", ")+`)
SELECT q.idx, `+prefixedObjectColumns+`
FROM q JOIN saved_objects o
  ON o.scope = q.scope AND o.type = q.type AND (o.id = q.origin OR o.origin_id = q.origin)
ORDER BY q.idx, o.id`, args...)
		if err != nil {
			return nil, fmt.Errorf("find by origin: %w", err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var idx int
				obj, err := scanObject(indexedRow{rows, &idx})
				if err != nil {
					return err
				}
				if idx < 0 || idx >= len(chunk) {
					return fmt.Errorf("origin query index %d out of range", idx)
				}
				if s.registry.Visible(obj, opts) {
					out[chunk[idx]] = append(out[chunk[idx]], obj)
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, fmt.Errorf("find by origin: %w", err)
		}
	}
	return out, nil
}

// indexedRow scans a leading query index before the object columns.
type indexedRow struct {
	rowScanner
	idx *int
}

func (r indexedRow) Scan(dest ...any) error {
	return r.rowScanner.Scan(append([]any{r.idx}, dest...)...)
}

// BulkCreate implements core.Store. All objects are written in one
// transaction with a savepoint around each, so one failure leaves the rest
// of the batch intact.
func (s *Store) BulkCreate(ctx context.Context, reqs []core.CreateRequest, opts core.CreateOptions) ([]core.CreateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk create: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Truncate(time.Millisecond)
	results := make([]core.CreateResult, len(reqs))
	for i, req := range reqs {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT object_write`); err != nil {
			return nil, fmt.Errorf("savepoint: %w", err)
		}
		obj, err := s.writeObject(ctx, tx, req, opts.Namespace, now)
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO object_write`); rbErr != nil {
				return nil, fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			results[i].Err = err
		} else {
			results[i].Object = obj
		}
		if _, err := tx.ExecContext(ctx, `RELEASE object_write`); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk create: %w", err)
	}
	return results, nil
}

func (s *Store) writeObject(ctx context.Context, tx *sql.Tx, req core.CreateRequest, namespace string, now time.Time) (core.Object, error) {
	obj := req.Object
	scope := s.registry.Scope(obj.Type, namespace)

	var existing []string
	if req.Overwrite && s.registry.IsMultiNamespace(obj.Type) {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT namespaces FROM saved_objects WHERE scope = ? AND type = ? AND id = ?`,
			scope, obj.Type, obj.ID,
		).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return core.Object{}, fmt.Errorf("read namespaces: %w", err)
		default:
			if err := json.Unmarshal([]byte(raw), &existing); err != nil {
				return core.Object{}, fmt.Errorf("decode namespaces: %w", err)
			}
		}
	}
	obj.Namespaces = s.registry.NamespacesFor(obj.Type, existing, namespace)
	obj.UpdatedAt = now

	attrs, refs, namespaces, workspaces, err := marshalColumns(obj)
	if err != nil {
		return core.Object{}, err
	}

	query := `INSERT INTO saved_objects (scope, ` + objectColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if req.Overwrite {
		query += `
ON CONFLICT (scope, type, id) DO UPDATE SET
    origin_id = excluded.origin_id,
    attributes = excluded.attributes,
    refs = excluded.refs,
    namespaces = excluded.namespaces,
    workspaces = excluded.workspaces,
    updated_at = excluded.updated_at`
	}

	_, err = tx.ExecContext(ctx, query,
		scope, obj.Type, obj.ID, obj.OriginID, attrs, refs, namespaces, workspaces, toMillis(now),
	)
	if err != nil {
		if isConstraintError(err) {
			return core.Object{}, core.ErrObjectConflict
		}
		return core.Object{}, fmt.Errorf("write %s: %w", obj.Key(), err)
	}
	return obj, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Ping implements core.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordImport implements core.HistoryStore.
func (s *Store) RecordImport(ctx context.Context, rec core.ImportRecord) error {
	kinds, err := json.Marshal(rec.ErrorKinds)
	if err != nil {
		return fmt.Errorf("encode error kinds: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO import_history (
    id, namespace, object_count, success_count, error_count, error_kinds,
    overwrite, create_new_copies, data_source_id, ip_address, user_agent,
    duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Namespace, rec.ObjectCount, rec.SuccessCount, rec.ErrorCount, string(kinds),
		rec.Overwrite, rec.CreateNewCopies, rec.DataSourceID, rec.IPAddress, rec.UserAgent,
		rec.DurationMs, toMillis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

// ListImports implements core.HistoryStore.
func (s *Store) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
    id, namespace, object_count, success_count, error_count, error_kinds,
    overwrite, create_new_copies, data_source_id, ip_address, user_agent,
    duration_ms, created_at
FROM import_history
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var out []core.ImportRecord
	for rows.Next() {
		var (
			rec       core.ImportRecord
			kinds     string
			createdAt int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Namespace, &rec.ObjectCount, &rec.SuccessCount, &rec.ErrorCount, &kinds,
			&rec.Overwrite, &rec.CreateNewCopies, &rec.DataSourceID, &rec.IPAddress, &rec.UserAgent,
			&rec.DurationMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		if err := json.Unmarshal([]byte(kinds), &rec.ErrorKinds); err != nil {
			return nil, fmt.Errorf("decode error kinds: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeImports implements core.HistoryStore.
func (s *Store) PurgeImports(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_history WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	return res.RowsAffected()
}
