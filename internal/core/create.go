package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// created is one object the store accepted.
type created struct {
	source        ObjectKey
	object        Object
	destinationID string
}

// createObjects writes every object without an accumulated error in one
// bulk call. Datasource objects are skipped under a datasource context since
// the data source already exists. Failures are per object; nothing written
// is rolled back.
func (p *pipeline) createObjects(ctx context.Context, objects []Object, acc resolution) ([]created, []ImportError) {
	failed := acc.failed()

	var sources []Object
	var reqs []CreateRequest
	for _, obj := range objects {
		if _, bad := failed[obj.Key()]; bad {
			continue
		}
		if p.isContextDataSource(obj) {
			continue
		}
		sources = append(sources, obj)
		reqs = append(reqs, CreateRequest{
			Object:    p.relabel(obj, acc.idMap),
			Overwrite: acc.pending.Has(obj.Key()),
		})
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	results, err := p.store.BulkCreate(ctx, reqs, CreateOptions{Namespace: p.opts.Namespace})
	if err == nil && len(results) != len(reqs) {
		err = fmt.Errorf("store returned %d results for %d objects", len(results), len(reqs))
	}
	if err != nil {
		p.logger.Error("bulk create failed", "objects", len(reqs), "error", err)
		errs := make([]ImportError, len(sources))
		for i, obj := range sources {
			errs[i] = newImportError(obj, UnknownError{Message: err.Error(), StatusCode: http.StatusInternalServerError})
		}
		return nil, errs
	}

	var out []created
	var errs []ImportError
	for i, r := range results {
		src := sources[i]
		switch {
		case r.Err == nil:
			out = append(out, created{
				source:        src.Key(),
				object:        r.Object,
				destinationID: acc.idMap[src.Key()].TargetID,
			})
		case errors.Is(r.Err, ErrObjectConflict):
			errs = append(errs, newImportError(src, ConflictError{}))
		default:
			errs = append(errs, newImportError(src, UnknownError{
				Message:    r.Err.Error(),
				StatusCode: http.StatusInternalServerError,
			}))
		}
	}
	return out, errs
}

// relabel returns the object as it will be written: its own id and every
// in-import reference rewritten through idMap, its origin recorded, and the
// datasource and workspace decorations applied.
func (p *pipeline) relabel(obj Object, idMap ImportIDMap) Object {
	out := obj.clone()

	if entry, ok := idMap[obj.Key()]; ok && entry.TargetID != "" {
		out.ID = entry.TargetID
		if entry.OmitOriginID {
			out.OriginID = ""
		} else {
			out.OriginID = originOf(obj)
		}
	}

	for i, ref := range out.References {
		out.References[i].ID = idMap.target(ref.Key())
	}

	if ds := p.opts.DataSource; ds != nil {
		if title := out.Title(); title != "" && ds.Title != "" && !strings.HasSuffix(title, "_"+ds.Title) {
			out.Attributes["title"] = title + "_" + ds.Title
		}
		hasRef := false
		for _, ref := range out.References {
			if ref.Type == DataSourceType && ref.ID == ds.ID {
				hasRef = true
				break
			}
		}
		if !hasRef {
			out.References = append(out.References, Reference{Type: DataSourceType, ID: ds.ID, Name: "dataSource"})
		}
	}

	if len(p.opts.Workspaces) > 0 {
		out.Workspaces = append([]string(nil), p.opts.Workspaces...)
	}
	return out
}
