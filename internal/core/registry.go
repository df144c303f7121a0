package core

import (
	"fmt"
	"sort"
	"sync"
)

// Management holds the import/export metadata of a type.
type Management struct {
	Importable  bool   `json:"importable"`
	Icon        string `json:"icon,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// TypeDefinition describes one saved-object type.
type TypeDefinition struct {
	Name          string        `json:"name"`
	NamespaceType NamespaceType `json:"namespaceType"`
	Hidden        bool          `json:"hidden,omitempty"`

	// AssignOnly types are attached to workspaces, never copied into them.
	AssignOnly bool       `json:"assignOnly,omitempty"`
	Management Management `json:"management"`
}

// TypeRegistry is the set of known types. The zero value is not usable;
// use NewTypeRegistry.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]TypeDefinition
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]TypeDefinition)}
}

// Register adds a type definition.
// Panics if a type with the same name is already registered.
func (r *TypeRegistry) Register(def TypeDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.Name]; exists {
		panic(fmt.Sprintf("type already registered: %s", def.Name))
	}
	if def.NamespaceType == "" {
		def.NamespaceType = NamespaceSingle
	}
	r.types[def.Name] = def
}

// Get returns a type definition by name.
func (r *TypeRegistry) Get(name string) (TypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.types[name]
	return def, ok
}

// All returns every registered type sorted by name.
func (r *TypeRegistry) All() []TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TypeDefinition, 0, len(r.types))
	for _, def := range r.types {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// ImportableTypes returns the names of visible, importable types, sorted.
func (r *TypeRegistry) ImportableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, def := range r.types {
		if def.Management.Importable && !def.Hidden {
			names = append(names, def.Name)
		}
	}
	sort.Strings(names)
	return names
}

// IsImportable reports whether objects of the type may appear in a stream.
func (r *TypeRegistry) IsImportable(name string) bool {
	def, ok := r.Get(name)
	return ok && def.Management.Importable && !def.Hidden
}

// NamespaceTypeOf returns the namespace type of name. Unknown types are
// treated as single-namespace.
func (r *TypeRegistry) NamespaceTypeOf(name string) NamespaceType {
	if def, ok := r.Get(name); ok {
		return def.NamespaceType
	}
	return NamespaceSingle
}

// IsMultiNamespace reports whether name is a multiple-namespace type.
func (r *TypeRegistry) IsMultiNamespace(name string) bool {
	return r.NamespaceTypeOf(name) == NamespaceMultiple
}

// Icon returns the management icon of name, or "".
func (r *TypeRegistry) Icon(name string) string {
	def, _ := r.Get(name)
	return def.Management.Icon
}

// Len returns the number of registered types.
func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Clear removes all registered types.
// Primarily useful for testing.
func (r *TypeRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]TypeDefinition)
}

// defaultRegistry is populated at init time by packages that register
// built-in types.
var defaultRegistry = NewTypeRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *TypeRegistry {
	return defaultRegistry
}

// Register adds a type definition to the default registry.
func Register(def TypeDefinition) {
	defaultRegistry.Register(def)
}
