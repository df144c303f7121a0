// Package objtypes registers the built-in saved-object types with the core
// registry. Import this package to ensure all types are registered.
package objtypes

// This file exists to provide a single import point.
// Each type file uses init() to register its types.
