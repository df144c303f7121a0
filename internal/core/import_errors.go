package core

import (
	"encoding/json"
	"time"
)

// ErrorKind names the variant of a per-object import error.
type ErrorKind string

const (
	KindUnsupportedType   ErrorKind = "unsupported_type"
	KindMissingReferences ErrorKind = "missing_references"
	KindConflict          ErrorKind = "conflict"
	KindAmbiguousConflict ErrorKind = "ambiguous_conflict"
	KindUnknown           ErrorKind = "unknown"
)

// ErrorDetail is the kind-specific payload of an ImportError. The set of
// implementations is closed: UnsupportedTypeError, MissingReferencesError,
// ConflictError, AmbiguousConflictError and UnknownError.
type ErrorDetail interface {
	Kind() ErrorKind
	isErrorDetail()
}

// UnsupportedTypeError reports an object whose type may not be imported.
type UnsupportedTypeError struct{}

// MissingReferencesError lists the reference targets that exist neither in
// the import set nor in the store.
type MissingReferencesError struct {
	References []ObjectKey
}

// ConflictError reports an id collision. DestinationID is set when the
// colliding id differs from the imported one.
type ConflictError struct {
	DestinationID string
}

// ConflictDestination is one candidate target of an ambiguous origin match.
type ConflictDestination struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// AmbiguousConflictError reports several existing objects sharing the
// imported object's origin.
type AmbiguousConflictError struct {
	Destinations []ConflictDestination
}

// UnknownError reports a store failure for one object.
type UnknownError struct {
	Message    string
	StatusCode int
}

func (UnsupportedTypeError) Kind() ErrorKind   { return KindUnsupportedType }
func (MissingReferencesError) Kind() ErrorKind { return KindMissingReferences }
func (ConflictError) Kind() ErrorKind          { return KindConflict }
func (AmbiguousConflictError) Kind() ErrorKind { return KindAmbiguousConflict }
func (UnknownError) Kind() ErrorKind           { return KindUnknown }

func (UnsupportedTypeError) isErrorDetail()   {}
func (MissingReferencesError) isErrorDetail() {}
func (ConflictError) isErrorDetail()          {}
func (AmbiguousConflictError) isErrorDetail() {}
func (UnknownError) isErrorDetail()           {}

// ImportError is a per-object failure. Errors are accumulated across the
// pipeline and returned in the result; they never abort an import.
type ImportError struct {
	Type      string
	ID        string
	Title     string
	Meta      Meta
	Error     ErrorDetail
	Overwrite bool
}

// Key returns the key of the failed object.
func (e ImportError) Key() ObjectKey {
	return ObjectKey{Type: e.Type, ID: e.ID}
}

// Kind returns the kind of the error detail, or "" when unset.
func (e ImportError) Kind() ErrorKind {
	if e.Error == nil {
		return ""
	}
	return e.Error.Kind()
}

// newImportError builds an error for obj with the given detail.
func newImportError(obj Object, detail ErrorDetail) ImportError {
	title := obj.Title()
	return ImportError{
		Type:  obj.Type,
		ID:    obj.ID,
		Title: title,
		Meta:  Meta{Title: title},
		Error: detail,
	}
}

// MarshalJSON renders the error with its detail tagged by "type".
func (e ImportError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		Title     string `json:"title,omitempty"`
		Meta      Meta   `json:"meta"`
		Error     any    `json:"error"`
		Overwrite bool   `json:"overwrite,omitempty"`
	}{
		Type:      e.Type,
		ID:        e.ID,
		Title:     e.Title,
		Meta:      e.Meta,
		Error:     detailJSON(e.Error),
		Overwrite: e.Overwrite,
	})
}

func detailJSON(d ErrorDetail) any {
	switch d := d.(type) {
	case UnsupportedTypeError:
		return struct {
			Type ErrorKind `json:"type"`
		}{d.Kind()}
	case MissingReferencesError:
		refs := d.References
		if refs == nil {
			refs = []ObjectKey{}
		}
		return struct {
			Type       ErrorKind   `json:"type"`
			References []ObjectKey `json:"references"`
		}{d.Kind(), refs}
	case ConflictError:
		return struct {
			Type          ErrorKind `json:"type"`
			DestinationID string    `json:"destinationId,omitempty"`
		}{d.Kind(), d.DestinationID}
	case AmbiguousConflictError:
		return struct {
			Type         ErrorKind             `json:"type"`
			Destinations []ConflictDestination `json:"destinations"`
		}{d.Kind(), d.Destinations}
	case UnknownError:
		return struct {
			Type       ErrorKind `json:"type"`
			Message    string    `json:"message"`
			StatusCode int       `json:"statusCode"`
		}{d.Kind(), d.Message, d.StatusCode}
	default:
		return nil
	}
}

// countByKind tallies errors per kind, for history records and logs.
func countByKind(errs []ImportError) map[ErrorKind]int {
	if len(errs) == 0 {
		return nil
	}
	counts := make(map[ErrorKind]int)
	for _, e := range errs {
		counts[e.Kind()]++
	}
	return counts
}
