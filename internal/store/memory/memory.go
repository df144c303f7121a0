// Package memory is an in-process object store. It backs STORE_DRIVER=memory
// and serves as the store double in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/objimport/internal/core"
)

type storeKey struct {
	scope string
	typ   string
	id    string
}

// Store keeps objects and import history in maps guarded by one mutex.
type Store struct {
	registry *core.TypeRegistry
	now      func() time.Time

	mu      sync.RWMutex
	objects map[storeKey]core.Object
	history []core.ImportRecord
}

// New creates an empty store using registry for namespace semantics.
func New(registry *core.TypeRegistry) *Store {
	if registry == nil {
		registry = core.DefaultRegistry()
	}
	return &Store{
		registry: registry,
		now:      time.Now,
		objects:  make(map[storeKey]core.Object),
	}
}

func (s *Store) key(typ, id, namespace string) storeKey {
	return storeKey{scope: s.registry.Scope(typ, namespace), typ: typ, id: id}
}

// Seed writes objects directly into namespace, bypassing conflict checks.
// Shared objects keep their own namespace list when one is set.
func (s *Store) Seed(namespace string, objs ...core.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, obj := range objs {
		if len(obj.Namespaces) == 0 || !s.registry.IsMultiNamespace(obj.Type) {
			obj.Namespaces = s.registry.NamespacesFor(obj.Type, nil, namespace)
		}
		if obj.UpdatedAt.IsZero() {
			obj.UpdatedAt = s.now().UTC()
		}
		s.objects[s.key(obj.Type, obj.ID, namespace)] = obj
	}
}

// Get returns one object as stored, for assertions.
func (s *Store) Get(namespace, typ, id string) (core.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[s.key(typ, id, namespace)]
	return obj, ok
}

// Len returns the number of stored objects across all namespaces.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// BulkGet implements core.Store.
func (s *Store) BulkGet(ctx context.Context, keys []core.ObjectKey, opts core.GetOptions) ([]core.GetResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]core.GetResult, len(keys))
	for i, k := range keys {
		results[i] = core.GetResult{Key: k}
		obj, ok := s.objects[s.key(k.Type, k.ID, opts.Namespace)]
		if ok && s.registry.Visible(obj, opts) {
			results[i].Found = true
			results[i].Object = obj
		}
	}
	return results, nil
}

// FindByOrigin implements core.Store.
func (s *Store) FindByOrigin(ctx context.Context, queries []core.OriginQuery, opts core.GetOptions) (map[core.OriginQuery][]core.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[core.OriginQuery]struct{}, len(queries))
	for _, q := range queries {
		wanted[q] = struct{}{}
	}

	out := make(map[core.OriginQuery][]core.Object)
	for _, obj := range s.objects {
		if !s.registry.Visible(obj, opts) {
			continue
		}
		for _, origin := range []string{obj.ID, obj.OriginID} {
			if origin == "" {
				continue
			}
			q := core.OriginQuery{Type: obj.Type, OriginID: origin}
			if _, ok := wanted[q]; ok {
				out[q] = append(out[q], obj)
			}
			if obj.OriginID == obj.ID {
				break
			}
		}
	}
	for q := range out {
		sort.Slice(out[q], func(i, j int) bool { return out[q][i].ID < out[q][j].ID })
	}
	return out, nil
}

// BulkCreate implements core.Store. Each object succeeds or fails on its own.
func (s *Store) BulkCreate(ctx context.Context, reqs []core.CreateRequest, opts core.CreateOptions) ([]core.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	results := make([]core.CreateResult, len(reqs))
	for i, req := range reqs {
		obj := req.Object
		k := s.key(obj.Type, obj.ID, opts.Namespace)

		existing, exists := s.objects[k]
		if exists && !req.Overwrite {
			results[i].Err = core.ErrObjectConflict
			continue
		}
		obj.Namespaces = s.registry.NamespacesFor(obj.Type, existing.Namespaces, opts.Namespace)
		obj.UpdatedAt = now
		s.objects[k] = obj
		results[i].Object = obj
	}
	return results, nil
}

// Ping implements core.Store.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RecordImport implements core.HistoryStore.
func (s *Store) RecordImport(ctx context.Context, rec core.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

// ListImports implements core.HistoryStore.
func (s *Store) ListImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ImportRecord, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

// PurgeImports implements core.HistoryStore.
func (s *Store) PurgeImports(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	var purged int64
	for _, rec := range s.history {
		if rec.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	s.history = kept
	return purged, nil
}
