// Package core implements bulk import of saved objects.
//
// An import takes an NDJSON stream of objects, each with a type, an id,
// attributes and typed references to other objects, and reconciles it with
// the store in a fixed sequence of stages. The full plan is computed before
// the single bulk write; per-object problems are reported, never thrown.
//
// # Pipeline
//
//  1. Collect: read the stream, enforce the object limit, reject types the
//     registry does not mark importable.
//  2. Type guard: when data sources are disabled, any datasource object or
//     datasource-scoped id rejects the whole import.
//  3. Validate references: every reference must resolve to the import set
//     or the store (one bulk lookup).
//  4. Validate copy (workspace copies only): drop assign-only types, check
//     data-source assignment to the target workspaces.
//  5. Resolve ids, either by regenerating every id (createNewCopies) or by
//     running the conflict, origin and datasource checkers in order.
//  6. Create: rewrite ids and references, then one bulk create.
//  7. Assemble the result.
//
// Stages communicate through an explicit accumulator holding the id map,
// the pending overwrites and the errors so far.
//
// # Types
//
// Types are registered at init time with [Register]:
//
//	core.Register(core.TypeDefinition{
//	    Name:          "index-pattern",
//	    NamespaceType: core.NamespaceMultiple,
//	    Management:    core.Management{Importable: true, Icon: "indexPatternApp"},
//	})
//
// # Errors
//
// Failures of a whole call are Go errors ([ErrObjectLimitExceeded],
// [ErrMalformedStream], [ErrInvalidOptions], [ErrTooManyImports]) and map to
// support codes with [MapError]. Per-object failures are [ImportError]
// values whose detail is one of a closed set of variants.
//
// # Consistency
//
// Conflict checks read the store before the write. Two imports into the
// same namespace are not coordinated, so a concurrent writer can slip in
// between the check and the write.
package core
