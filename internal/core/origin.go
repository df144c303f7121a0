package core

import (
	"context"
	"fmt"
	"sort"
)

// checkOriginConflicts looks for existing copies of multiple-namespace
// objects in other namespaces, matched by origin. Objects that already
// collide on their own id are left alone.
//
//   - no match: the object is new
//   - one match: the object is written over that copy
//   - several matches: ambiguous_conflict, and the object is dropped
func (p *pipeline) checkOriginConflicts(ctx context.Context, objects []Object, acc resolution) ([]Object, resolution, error) {
	inImport := make(map[ObjectKey]struct{}, len(objects))
	for _, obj := range objects {
		inImport[obj.Key()] = struct{}{}
	}

	queries := make(map[ObjectKey]OriginQuery)
	seen := make(map[OriginQuery]struct{})
	var batch []OriginQuery
	for _, obj := range objects {
		if !p.registry.IsMultiNamespace(obj.Type) || acc.pending.Has(obj.Key()) {
			continue
		}
		q := OriginQuery{Type: obj.Type, OriginID: originOf(obj)}
		queries[obj.Key()] = q
		if _, ok := seen[q]; !ok {
			seen[q] = struct{}{}
			batch = append(batch, q)
		}
	}
	if len(batch) == 0 {
		return objects, acc, nil
	}

	matches, err := p.store.FindByOrigin(ctx, batch, GetOptions{Namespace: p.opts.Namespace, AllNamespaces: true})
	if err != nil {
		return nil, acc, fmt.Errorf("find origin matches: %w", err)
	}

	idMap := make(ImportIDMap)
	pending := make(PendingOverwrites)
	var errs []ImportError
	filtered := make([]Object, 0, len(objects))

	for _, obj := range objects {
		q, checked := queries[obj.Key()]
		if !checked {
			filtered = append(filtered, obj)
			continue
		}

		var dests []Object
		for _, m := range matches[q] {
			if _, ok := inImport[m.Key()]; ok {
				continue
			}
			dests = append(dests, m)
		}

		switch len(dests) {
		case 0:
			filtered = append(filtered, obj)
		case 1:
			idMap[obj.Key()] = IDMapEntry{TargetID: dests[0].ID}
			pending.Add(obj.Key())
			filtered = append(filtered, obj)
		default:
			errs = append(errs, newImportError(obj, AmbiguousConflictError{Destinations: conflictDestinations(dests)}))
		}
	}

	return filtered, acc.fold(idMap, pending, errs), nil
}

// originOf returns the origin an object is matched on.
func originOf(obj Object) string {
	if obj.OriginID != "" {
		return obj.OriginID
	}
	return obj.ID
}

// conflictDestinations lists candidates most recently updated first.
func conflictDestinations(objs []Object) []ConflictDestination {
	dests := make([]ConflictDestination, len(objs))
	for i, o := range objs {
		dests[i] = ConflictDestination{ID: o.ID, Title: o.Title(), UpdatedAt: o.UpdatedAt}
	}
	sort.Slice(dests, func(i, j int) bool {
		if !dests[i].UpdatedAt.Equal(dests[j].UpdatedAt) {
			return dests[i].UpdatedAt.After(dests[j].UpdatedAt)
		}
		return dests[i].ID < dests[j].ID
	})
	return dests
}
