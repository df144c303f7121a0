package core

import (
	"sort"
	"time"
)

// DefaultNamespace is used when an import names no namespace.
const DefaultNamespace = "default"

// DataSourceType is the type of datasource objects. It is the gated type of
// the type guard and is never copied or re-created under a datasource context.
const DataSourceType = "data-source"

// ObjectKey identifies an object by (type, id).
type ObjectKey struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String returns the "type:id" form used in logs and error metadata.
func (k ObjectKey) String() string {
	return k.Type + ":" + k.ID
}

// Reference is a typed pointer from one object to another.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Key returns the key of the referenced object.
func (r Reference) Key() ObjectKey {
	return ObjectKey{Type: r.Type, ID: r.ID}
}

// Object is a serialized saved object as it appears in an import stream and
// in the store.
type Object struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	References []Reference    `json:"references"`
	OriginID   string         `json:"originId,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitzero"`
	Namespaces []string       `json:"namespaces,omitempty"`
	Workspaces []string       `json:"workspaces,omitempty"`
}

// Key returns the identity key of the object.
func (o Object) Key() ObjectKey {
	return ObjectKey{Type: o.Type, ID: o.ID}
}

// Title returns attributes.title, or "" when absent or not a string.
func (o Object) Title() string {
	if t, ok := o.Attributes["title"].(string); ok {
		return t
	}
	return ""
}

// InNamespace reports whether a multi-namespace object is visible in ns.
func (o Object) InNamespace(ns string) bool {
	for _, n := range o.Namespaces {
		if n == ns || n == "*" {
			return true
		}
	}
	return false
}

// clone returns a copy whose maps and slices can be mutated independently.
func (o Object) clone() Object {
	c := o
	if o.Attributes != nil {
		c.Attributes = make(map[string]any, len(o.Attributes))
		for k, v := range o.Attributes {
			c.Attributes[k] = v
		}
	}
	c.References = append([]Reference(nil), o.References...)
	c.Namespaces = append([]string(nil), o.Namespaces...)
	c.Workspaces = append([]string(nil), o.Workspaces...)
	return c
}

// NamespaceType describes how objects of a type relate to namespaces.
type NamespaceType string

const (
	// NamespaceSingle objects live in exactly one namespace; the same id may
	// exist independently in several namespaces.
	NamespaceSingle NamespaceType = "single"
	// NamespaceMultiple objects are one shared object listed in several namespaces.
	NamespaceMultiple NamespaceType = "multiple"
	// NamespaceAgnostic objects are global.
	NamespaceAgnostic NamespaceType = "agnostic"
)

// DataSourceContext scopes an import to one external data source.
type DataSourceContext struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Options are the per-call import parameters.
type Options struct {
	// ObjectLimit caps the number of records read from the stream. Zero means
	// the service default.
	ObjectLimit int

	// Overwrite marks id collisions as pending overwrites instead of conflicts.
	Overwrite bool

	// CreateNewCopies regenerates every id. Mutually exclusive with Overwrite.
	CreateNewCopies bool

	// Namespace is the destination namespace. Empty means DefaultNamespace.
	Namespace string

	// DataSource, when set, scopes the import to a data source.
	DataSource *DataSourceContext

	// Workspaces are the destination workspaces, if any.
	Workspaces []string

	// IsCopy enables the copy-mode validator.
	IsCopy bool
}

// IDMapEntry is the resolution for one imported object. An empty TargetID
// keeps the original id.
type IDMapEntry struct {
	TargetID     string
	OmitOriginID bool
}

// ImportIDMap maps each imported object to its resolved id.
type ImportIDMap map[ObjectKey]IDMapEntry

// merge copies every entry of other into m, replacing existing entries.
func (m ImportIDMap) merge(other ImportIDMap) {
	for k, v := range other {
		m[k] = v
	}
}

// target returns the id key will be written under.
func (m ImportIDMap) target(key ObjectKey) string {
	if e, ok := m[key]; ok && e.TargetID != "" {
		return e.TargetID
	}
	return key.ID
}

// PendingOverwrites is the set of objects that will replace an existing
// store object.
type PendingOverwrites map[ObjectKey]struct{}

// Add marks key as a pending overwrite.
func (p PendingOverwrites) Add(key ObjectKey) {
	p[key] = struct{}{}
}

// Has reports whether key is a pending overwrite.
func (p PendingOverwrites) Has(key ObjectKey) bool {
	_, ok := p[key]
	return ok
}

func (p PendingOverwrites) merge(other PendingOverwrites) {
	for k := range other {
		p[k] = struct{}{}
	}
}

// Meta is the display metadata attached to result entries and errors.
type Meta struct {
	Title string `json:"title,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// SuccessResult describes one object written by the import.
type SuccessResult struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	Meta          Meta   `json:"meta"`
	Overwrite     bool   `json:"overwrite,omitempty"`
	DestinationID string `json:"destinationId,omitempty"`
	CreateNewCopy bool   `json:"createNewCopy,omitempty"`
}

// ImportResult is the aggregate outcome of one import call.
type ImportResult struct {
	SuccessCount   int             `json:"successCount"`
	Success        bool            `json:"success"`
	SuccessResults []SuccessResult `json:"successResults,omitempty"`
	Errors         []ImportError   `json:"errors,omitempty"`
}

// sortedKeys returns the keys of set in a stable order.
func sortedKeys(set map[ObjectKey]struct{}) []ObjectKey {
	keys := make([]ObjectKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}
