package core

import (
	"context"
	"errors"
	"time"
)

// ErrObjectConflict is reported per object by Store.BulkCreate when an
// object already exists and the request did not ask for an overwrite.
var ErrObjectConflict = errors.New("saved object conflict")

// GetOptions scopes a bulk lookup.
type GetOptions struct {
	// Namespace is the namespace single-namespace types are looked up in.
	Namespace string

	// AllNamespaces makes multiple-namespace objects match regardless of
	// their namespace list. When false they match only if listed in Namespace.
	AllNamespaces bool
}

// GetResult is the outcome of looking up one key. Err is set only for
// failures other than absence.
type GetResult struct {
	Key    ObjectKey
	Found  bool
	Object Object
	Err    error
}

// OriginQuery asks for every object of Type whose id or originId equals OriginID.
type OriginQuery struct {
	Type     string
	OriginID string
}

// CreateRequest is one object to write.
type CreateRequest struct {
	Object    Object
	Overwrite bool
}

// CreateOptions apply to a whole bulk create.
type CreateOptions struct {
	Namespace string
}

// CreateResult is the per-object outcome of a bulk create. Object holds the
// stored form on success.
type CreateResult struct {
	Object Object
	Err    error
}

// Store is the object store the import pipeline reads and writes.
//
// Results are positional: BulkGet and BulkCreate return one entry per input,
// in input order. Per-object failures are carried in the entries; the
// returned error is reserved for failures of the whole call.
type Store interface {
	BulkGet(ctx context.Context, keys []ObjectKey, opts GetOptions) ([]GetResult, error)
	FindByOrigin(ctx context.Context, queries []OriginQuery, opts GetOptions) (map[OriginQuery][]Object, error)
	BulkCreate(ctx context.Context, reqs []CreateRequest, opts CreateOptions) ([]CreateResult, error)
	Ping(ctx context.Context) error
}

// HistoryStore persists a summary of every import.
type HistoryStore interface {
	RecordImport(ctx context.Context, rec ImportRecord) error
	ListImports(ctx context.Context, limit int) ([]ImportRecord, error)
	PurgeImports(ctx context.Context, before time.Time) (int64, error)
}

// Scope returns the partition an object of typ lives in: the namespace for
// single-namespace types, "" for shared and global types. Stores key
// objects by (scope, type, id).
func (r *TypeRegistry) Scope(typ, namespace string) string {
	if r.NamespaceTypeOf(typ) == NamespaceSingle {
		if namespace == "" {
			return DefaultNamespace
		}
		return namespace
	}
	return ""
}

// Visible reports whether a stored object matches a lookup made with opts.
func (r *TypeRegistry) Visible(obj Object, opts GetOptions) bool {
	if r.NamespaceTypeOf(obj.Type) != NamespaceMultiple || opts.AllNamespaces {
		return true
	}
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return obj.InNamespace(ns)
}

// NamespacesFor returns the namespace list to store for an object of typ
// written into namespace. Overwriting a shared object adds the namespace to
// the list it already had.
func (r *TypeRegistry) NamespacesFor(typ string, existing []string, namespace string) []string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	switch r.NamespaceTypeOf(typ) {
	case NamespaceAgnostic:
		return nil
	case NamespaceMultiple:
		out := append([]string(nil), existing...)
		for _, ns := range out {
			if ns == namespace {
				return out
			}
		}
		return append(out, namespace)
	default:
		return []string{namespace}
	}
}
