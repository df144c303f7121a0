package core

import "github.com/google/uuid"

// regenerateIDs assigns a fresh id to every object. Under a datasource
// context the new id is scoped to it, and datasource objects keep their id:
// they are not written, and references to them must still resolve.
// Copies never inherit an origin.
func (p *pipeline) regenerateIDs(objects []Object) ImportIDMap {
	ds := p.opts.DataSource
	idMap := make(ImportIDMap, len(objects))
	for _, obj := range objects {
		if ds != nil && obj.Type == DataSourceType {
			continue
		}
		id := uuid.NewString()
		if ds != nil {
			id = ds.ID + "_" + id
		}
		idMap[obj.Key()] = IDMapEntry{TargetID: id, OmitOriginID: true}
	}
	return idMap
}
