package core

import (
	"context"
	"fmt"
	"net/http"
)

// checkDataSourceConflicts moves every non-datasource object into the id
// space of the import's data source and checks that id for collisions, with
// the same overwrite policy as checkConflicts. Datasource objects pass
// through untouched. A scoped id keeps the origin recorded by an earlier
// origin match.
func (p *pipeline) checkDataSourceConflicts(ctx context.Context, objects []Object, acc resolution) ([]Object, resolution, error) {
	ds := p.opts.DataSource
	if ds == nil || len(objects) == 0 {
		return objects, acc, nil
	}

	scoped := make(map[ObjectKey]ObjectKey, len(objects))
	var keys []ObjectKey
	for _, obj := range objects {
		if obj.Type == DataSourceType {
			continue
		}
		target := ObjectKey{Type: obj.Type, ID: scopeToDataSource(ds.ID, acc.idMap.target(obj.Key()))}
		scoped[obj.Key()] = target
		keys = append(keys, target)
	}
	if len(keys) == 0 {
		return objects, acc, nil
	}

	existing, err := p.lookup(ctx, keys)
	if err != nil {
		return nil, acc, fmt.Errorf("check data source conflicts: %w", err)
	}

	idMap := make(ImportIDMap)
	pending := make(PendingOverwrites)
	var stale []ObjectKey
	var errs []ImportError
	filtered := make([]Object, 0, len(objects))

	for _, obj := range objects {
		target, ok := scoped[obj.Key()]
		if !ok {
			filtered = append(filtered, obj)
			continue
		}

		prev, mapped := acc.idMap[obj.Key()]
		entry := IDMapEntry{TargetID: target.ID, OmitOriginID: !mapped || prev.OmitOriginID}

		r := existing[target]
		switch {
		case r.Err != nil:
			errs = append(errs, newImportError(obj, UnknownError{
				Message:    r.Err.Error(),
				StatusCode: http.StatusInternalServerError,
			}))
		case !r.Found:
			// A collision found earlier under the unscoped id no longer applies.
			stale = append(stale, obj.Key())
			idMap[obj.Key()] = entry
			filtered = append(filtered, obj)
		case p.opts.Overwrite:
			idMap[obj.Key()] = entry
			pending.Add(obj.Key())
			filtered = append(filtered, obj)
		default:
			errs = append(errs, newImportError(obj, ConflictError{DestinationID: target.ID}))
		}
	}

	return filtered, acc.withoutPending(stale).fold(idMap, pending, errs), nil
}
