package core

import (
	"strings"

	"github.com/google/uuid"
)

// IsDataSourceScopedID reports whether id has the "<dataSourceID>_<rawID>"
// form produced for datasource imports, with both halves UUIDs.
func IsDataSourceScopedID(id string) bool {
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok || strings.Contains(rest, "_") {
		return false
	}
	if _, err := uuid.Parse(prefix); err != nil {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// guardDataSources returns an unsupported_type error for every datasource
// object and every object whose id is datasource-scoped. It is only run when
// datasource support is disabled; a non-empty result ends the import.
func guardDataSources(objects []Object) []ImportError {
	var errs []ImportError
	for _, obj := range objects {
		if obj.Type == DataSourceType || IsDataSourceScopedID(obj.ID) {
			errs = append(errs, newImportError(obj, UnsupportedTypeError{}))
		}
	}
	return errs
}

// splitDataSourceID separates a datasource prefix from an id. Ids without a
// UUID prefix are returned unchanged with an empty prefix.
func splitDataSourceID(id string) (prefix, raw string) {
	before, after, ok := strings.Cut(id, "_")
	if !ok || after == "" {
		return "", id
	}
	if _, err := uuid.Parse(before); err != nil {
		return "", id
	}
	return before, after
}

// scopeToDataSource returns the id of the object within dataSourceID.
func scopeToDataSource(dataSourceID, id string) string {
	_, raw := splitDataSourceID(id)
	return dataSourceID + "_" + raw
}
