package core

import (
	"context"
	"fmt"
	"net/http"
)

// checkConflicts looks every object up under its own id. A collision becomes
// a pending overwrite when the caller asked to overwrite, and a conflict
// error otherwise. Objects with a conflict or a lookup failure are dropped.
// Under a data source context the datasource objects themselves are never
// written, so they skip the check.
func (p *pipeline) checkConflicts(ctx context.Context, objects []Object, acc resolution) ([]Object, resolution, error) {
	if len(objects) == 0 {
		return objects, acc, nil
	}

	keys := make([]ObjectKey, 0, len(objects))
	for _, obj := range objects {
		if p.isContextDataSource(obj) {
			continue
		}
		keys = append(keys, obj.Key())
	}
	if len(keys) == 0 {
		return objects, acc, nil
	}
	existing, err := p.lookup(ctx, keys)
	if err != nil {
		return nil, acc, fmt.Errorf("check conflicts: %w", err)
	}

	pending := make(PendingOverwrites)
	var errs []ImportError
	filtered := make([]Object, 0, len(objects))

	for _, obj := range objects {
		if p.isContextDataSource(obj) {
			filtered = append(filtered, obj)
			continue
		}
		r := existing[obj.Key()]
		switch {
		case r.Err != nil:
			errs = append(errs, newImportError(obj, UnknownError{
				Message:    r.Err.Error(),
				StatusCode: http.StatusInternalServerError,
			}))
		case !r.Found:
			filtered = append(filtered, obj)
		case p.opts.Overwrite:
			pending.Add(obj.Key())
			filtered = append(filtered, obj)
		default:
			errs = append(errs, newImportError(obj, ConflictError{}))
		}
	}

	return filtered, acc.fold(nil, pending, errs), nil
}

// isContextDataSource reports whether obj is a datasource imported under a
// data source context.
func (p *pipeline) isContextDataSource(obj Object) bool {
	return p.opts.DataSource != nil && obj.Type == DataSourceType
}
