package core

import (
	"context"
	"fmt"
	"slices"
)

// validateCopy prepares a workspace copy. Assign-only types such as data
// sources are removed: they are attached to workspaces, never copied. Global
// types cannot be placed in a workspace and are reported as unsupported. A
// copied object that references a data source not assigned to every target
// workspace is reported with that reference as missing.
func (p *pipeline) validateCopy(ctx context.Context, objects []Object) ([]Object, []ImportError, error) {
	kept := make([]Object, 0, len(objects))
	for _, obj := range objects {
		def, _ := p.registry.Get(obj.Type)
		if def.AssignOnly || obj.Type == DataSourceType {
			continue
		}
		kept = append(kept, obj)
	}

	var errs []ImportError
	for _, obj := range kept {
		if p.registry.NamespaceTypeOf(obj.Type) == NamespaceAgnostic {
			errs = append(errs, newImportError(obj, UnsupportedTypeError{}))
		}
	}

	if len(p.opts.Workspaces) == 0 {
		return kept, errs, nil
	}

	refs := make(map[ObjectKey]struct{})
	for _, obj := range kept {
		for _, ref := range obj.References {
			if ref.Type == DataSourceType {
				refs[ref.Key()] = struct{}{}
			}
		}
	}
	if len(refs) == 0 {
		return kept, errs, nil
	}

	results, err := p.store.BulkGet(ctx, sortedKeys(refs), GetOptions{Namespace: p.opts.Namespace})
	if err != nil {
		return nil, nil, fmt.Errorf("look up data sources: %w", err)
	}
	unassigned := make(map[ObjectKey]struct{})
	for _, r := range results {
		if r.Err != nil {
			return nil, nil, fmt.Errorf("look up data source %s: %w", r.Key, r.Err)
		}
		// Absent data sources are already reported by the reference validator.
		if !r.Found {
			continue
		}
		for _, ws := range p.opts.Workspaces {
			if !slices.Contains(r.Object.Workspaces, ws) {
				unassigned[r.Key] = struct{}{}
				break
			}
		}
	}

	for _, obj := range kept {
		var missing []ObjectKey
		for _, ref := range obj.References {
			if _, ok := unassigned[ref.Key()]; ok && !slices.Contains(missing, ref.Key()) {
				missing = append(missing, ref.Key())
			}
		}
		if len(missing) > 0 {
			errs = append(errs, newImportError(obj, MissingReferencesError{References: missing}))
		}
	}
	return kept, errs, nil
}
