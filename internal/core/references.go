package core

import (
	"context"
	"fmt"
)

// validateReferences reports every object that references something present
// neither in the import set nor in the store. Such objects stay in the set;
// the bulk creator skips anything that has an error.
//
// All referenced keys outside the import set are fetched in one BulkGet.
func (p *pipeline) validateReferences(ctx context.Context, objects []Object) ([]ImportError, error) {
	inImport := make(map[ObjectKey]struct{}, len(objects))
	for _, obj := range objects {
		inImport[obj.Key()] = struct{}{}
	}

	external := make(map[ObjectKey]struct{})
	for _, obj := range objects {
		for _, ref := range obj.References {
			if _, ok := inImport[ref.Key()]; !ok {
				external[ref.Key()] = struct{}{}
			}
		}
	}
	if len(external) == 0 {
		return nil, nil
	}

	keys := sortedKeys(external)
	results, err := p.store.BulkGet(ctx, keys, GetOptions{Namespace: p.opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("look up references: %w", err)
	}

	missing := make(map[ObjectKey]struct{})
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("look up reference %s: %w", r.Key, r.Err)
		}
		if !r.Found {
			missing[r.Key] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	var errs []ImportError
	for _, obj := range objects {
		var refs []ObjectKey
		seen := make(map[ObjectKey]struct{})
		for _, ref := range obj.References {
			k := ref.Key()
			if _, ok := missing[k]; !ok {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			refs = append(refs, k)
		}
		if len(refs) > 0 {
			errs = append(errs, newImportError(obj, MissingReferencesError{References: refs}))
		}
	}
	return errs, nil
}
