// Package postgres is the PostgreSQL object store, the default backend for
// multi-instance deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/objimport/internal/config"
	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/store/postgres/migrations"
)

const uniqueViolation = "23505"

const objectColumns = `o.type, o.id, o.origin_id, o.attributes, o.refs, o.namespaces, o.workspaces, o.updated_at`

const insertObject = `
INSERT INTO saved_objects (scope, type, id, origin_id, attributes, refs, namespaces, workspaces, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (scope, type, id) DO NOTHING
RETURNING namespaces`

const upsertObject = `
INSERT INTO saved_objects (scope, type, id, origin_id, attributes, refs, namespaces, workspaces, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (scope, type, id) DO UPDATE SET
    origin_id  = EXCLUDED.origin_id,
    attributes = EXCLUDED.attributes,
    refs       = EXCLUDED.refs,
    namespaces = EXCLUDED.namespaces,
    workspaces = EXCLUDED.workspaces,
    updated_at = EXCLUDED.updated_at
RETURNING namespaces`

// upsertSharedObject keeps the namespaces a shared object already had and
// adds the one being written to.
const upsertSharedObject = `
INSERT INTO saved_objects (scope, type, id, origin_id, attributes, refs, namespaces, workspaces, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (scope, type, id) DO UPDATE SET
    origin_id  = EXCLUDED.origin_id,
    attributes = EXCLUDED.attributes,
    refs       = EXCLUDED.refs,
    namespaces = CASE
        WHEN $10::text = ANY(COALESCE(saved_objects.namespaces, '{}')) THEN saved_objects.namespaces
        ELSE array_append(COALESCE(saved_objects.namespaces, '{}'), $10::text)
    END,
    workspaces = EXCLUDED.workspaces,
    updated_at = EXCLUDED.updated_at
RETURNING namespaces`

// Store persists saved objects and import history in PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	registry *core.TypeRegistry
	now      func() time.Time
}

// Connect opens a connection pool sized from cfg and verifies it.
func Connect(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// New creates a Store on pool. Call Migrate before first use.
func New(pool *pgxpool.Pool, registry *core.TypeRegistry) *Store {
	if registry == nil {
		registry = core.DefaultRegistry()
	}
	return &Store{pool: pool, registry: registry, now: time.Now}
}

// Migrate applies every embedded migration not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.pool, migrations.FS)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, file)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			_, err = tx.Exec(ctx, upSection(string(content)))
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	if start := strings.Index(content, upMarker); start != -1 {
		content = content[start+len(upMarker):]
	}
	if end := strings.Index(content, downMarker); end != -1 {
		content = content[:end]
	}
	return content
}

func scanObject(row pgx.Row) (core.Object, error) {
	var obj core.Object
	err := row.Scan(
		&obj.Type, &obj.ID, &obj.OriginID,
		&obj.Attributes, &obj.References, &obj.Namespaces, &obj.Workspaces,
		&obj.UpdatedAt,
	)
	obj.UpdatedAt = obj.UpdatedAt.UTC()
	return obj, err
}

// BulkGet implements core.Store with one query over unnested key arrays.
func (s *Store) BulkGet(ctx context.Context, keys []core.ObjectKey, opts core.GetOptions) ([]core.GetResult, error) {
	scopes := make([]string, len(keys))
	types := make([]string, len(keys))
	ids := make([]string, len(keys))
	for i, k := range keys {
		scopes[i] = s.registry.Scope(k.Type, opts.Namespace)
		types[i] = k.Type
		ids[i] = k.ID
	}

	rows, err := s.pool.Query(ctx, `
SELECT `+objectColumns+`
FROM unnest($1::text[], $2::text[], $3::text[]) AS k(scope, type, id)
JOIN saved_objects o ON o.scope = k.scope AND o.type = k.type AND o.id = k.id`,
		scopes, types, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("bulk get: %w", err)
	}
	objs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Object, error) {
		return scanObject(row)
	})
	if err != nil {
		return nil, fmt.Errorf("bulk get: %w", err)
	}

	// Within one call every type maps to exactly one scope.
	found := make(map[core.ObjectKey]core.Object, len(objs))
	for _, obj := range objs {
		found[obj.Key()] = obj
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

// FindByOrigin implements core.Store with one query for all queries.
func (s *Store) FindByOrigin(ctx context.Context, queries []core.OriginQuery, opts core.GetOptions) (map[core.OriginQuery][]core.Object, error) {
	out := make(map[core.OriginQuery][]core.Object)
	if len(queries) == 0 {
		return out, nil
	}

	seen := make(map[core.OriginQuery]struct{}, len(queries))
	var scopes, types, origins []string
	for _, q := range queries {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		scopes = append(scopes, s.registry.Scope(q.Type, opts.Namespace))
		types = append(types, q.Type)
		origins = append(origins, q.OriginID)
	}

	rows, err := s.pool.Query(ctx, `
SELECT q.origin, `+objectColumns+`
FROM unnest($1::text[], $2::text[], $3::text[]) AS q(scope, type, origin)
JOIN saved_objects o ON o.scope = q.scope AND o.type = q.type AND (o.id = q.origin OR o.origin_id = q.origin)
ORDER BY o.id`,
		scopes, types, origins,
	)
	if err != nil {
		return nil, fmt.Errorf("find by origin: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var origin string
		var obj core.Object
		if err := rows.Scan(
			&origin,
			&obj.Type, &obj.ID, &obj.OriginID,
			&obj.Attributes, &obj.References, &obj.Namespaces, &obj.Workspaces,
			&obj.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("find by origin: %w", err)
		}
		obj.UpdatedAt = obj.UpdatedAt.UTC()
		if !s.registry.Visible(obj, opts) {
			continue
		}
		q := core.OriginQuery{Type: obj.Type, OriginID: origin}
		out[q] = append(out[q], obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find by origin: %w", err)
	}
	return out, nil
}

// BulkCreate implements core.Store. The batch runs in one transaction.
// Collisions are resolved by ON CONFLICT, so they never abort it; any
// other statement failure fails the whole call.
func (s *Store) BulkCreate(ctx context.Context, reqs []core.CreateRequest, opts core.CreateOptions) ([]core.CreateResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	namespace := opts.Namespace
	if namespace == "" {
		namespace = core.DefaultNamespace
	}

	results := make([]core.CreateResult, len(reqs))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i, req := range reqs {
			obj := req.Object
			obj.Namespaces = s.registry.NamespacesFor(obj.Type, nil, namespace)
			obj.UpdatedAt = now
			results[i].Object = obj

			args := []any{
				s.registry.Scope(obj.Type, namespace), obj.Type, obj.ID, obj.OriginID,
				obj.Attributes, obj.References, obj.Namespaces, obj.Workspaces, now,
			}
			switch {
			case !req.Overwrite:
				batch.Queue(insertObject, args...)
			case s.registry.IsMultiNamespace(obj.Type):
				batch.Queue(upsertSharedObject, append(args, namespace)...)
			default:
				batch.Queue(upsertObject, args...)
			}
		}

		br := tx.SendBatch(ctx, batch)
		for i := range reqs {
			var namespaces []string
			err := br.QueryRow().Scan(&namespaces)
			switch {
			case err == nil:
				results[i].Object.Namespaces = namespaces
			case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
				results[i] = core.CreateResult{Err: core.ErrObjectConflict}
			default:
				br.Close()
				return fmt.Errorf("write %s: %w", reqs[i].Object.Key(), err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("bulk create: %w", err)
	}
	return results, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Ping implements core.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordImport implements core.HistoryStore.
func (s *Store) RecordImport(ctx context.Context, rec core.ImportRecord) error {
	var ip *netip.Addr
	if addr, err := netip.ParseAddr(rec.IPAddress); err == nil {
		ip = &addr
	}
	kinds := rec.ErrorKinds
	if kinds == nil {
		kinds = map[core.ErrorKind]int{}
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO import_history (
    id, namespace, object_count, success_count, error_count, error_kinds,
    overwrite, create_new_copies, data_source_id, ip_address, user_agent,
    duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.Namespace, rec.ObjectCount, rec.SuccessCount, rec.ErrorCount, kinds,
		rec.Overwrite, rec.CreateNewCopies, rec.DataSourceID, ip, rec.UserAgent,
		rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

// ListImports implements core.HistoryStore.
func (s *Store) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, namespace, object_count, success_count, error_count, error_kinds,
       overwrite, create_new_copies, data_source_id, ip_address, user_agent,
       duration_ms, created_at
FROM import_history
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRecord, error) {
		var rec core.ImportRecord
		var ip *netip.Addr
		err := row.Scan(
			&rec.ID, &rec.Namespace, &rec.ObjectCount, &rec.SuccessCount, &rec.ErrorCount, &rec.ErrorKinds,
			&rec.Overwrite, &rec.CreateNewCopies, &rec.DataSourceID, &ip, &rec.UserAgent,
			&rec.DurationMs, &rec.CreatedAt,
		)
		if ip != nil {
			rec.IPAddress = ip.String()
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return recs, nil
}

// PurgeImports implements core.HistoryStore.
func (s *Store) PurgeImports(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_history WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	return tag.RowsAffected(), nil
}
