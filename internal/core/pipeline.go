package core

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// resolution is the accumulator threaded through the pipeline stages. Stages
// never mutate a resolution they receive; fold returns a new value.
type resolution struct {
	idMap   ImportIDMap
	pending PendingOverwrites
	errors  []ImportError
}

func newResolution(idMap ImportIDMap, errs []ImportError) resolution {
	r := resolution{
		idMap:   make(ImportIDMap, len(idMap)),
		pending: make(PendingOverwrites),
	}
	r.idMap.merge(idMap)
	r.errors = append(r.errors, errs...)
	return r
}

// fold returns r with a stage's contributions merged in.
func (r resolution) fold(idMap ImportIDMap, pending PendingOverwrites, errs []ImportError) resolution {
	next := resolution{
		idMap:   make(ImportIDMap, len(r.idMap)+len(idMap)),
		pending: make(PendingOverwrites, len(r.pending)+len(pending)),
	}
	next.idMap.merge(r.idMap)
	next.idMap.merge(idMap)
	next.pending.merge(r.pending)
	next.pending.merge(pending)
	next.errors = make([]ImportError, 0, len(r.errors)+len(errs))
	next.errors = append(next.errors, r.errors...)
	next.errors = append(next.errors, errs...)
	return next
}

// withoutPending returns r with keys removed from the pending set.
func (r resolution) withoutPending(keys []ObjectKey) resolution {
	if len(keys) == 0 {
		return r
	}
	next := r.fold(nil, nil, nil)
	for _, k := range keys {
		delete(next.pending, k)
	}
	return next
}

// failed returns the keys that have at least one accumulated error.
func (r resolution) failed() map[ObjectKey]struct{} {
	set := make(map[ObjectKey]struct{}, len(r.errors))
	for _, e := range r.errors {
		set[e.Key()] = struct{}{}
	}
	return set
}

// pipeline holds the collaborators shared by every stage of one import.
type pipeline struct {
	store    Store
	registry *TypeRegistry
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
}

// stage runs fn inside a span named after the stage and logs its outcome.
func (p *pipeline) stage(ctx context.Context, name string, in int, fn func(ctx context.Context) (int, error)) error {
	ctx, span := p.tracer.Start(ctx, "import."+name)
	defer span.End()

	out, err := fn(ctx)
	span.SetAttributes(
		attribute.Int("objects.in", in),
		attribute.Int("objects.out", out),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", name, err)
	}
	p.logger.Debug("import stage completed", "stage", name, "objects_in", in, "objects_out", out)
	return nil
}

// lookup fetches keys from the store. Single-namespace and agnostic types
// are looked up in the target namespace; multiple-namespace types are looked
// up across all namespaces. Each group costs one round trip.
func (p *pipeline) lookup(ctx context.Context, keys []ObjectKey) (map[ObjectKey]GetResult, error) {
	var single, multi []ObjectKey
	for _, k := range keys {
		if p.registry.IsMultiNamespace(k.Type) {
			multi = append(multi, k)
		} else {
			single = append(single, k)
		}
	}

	found := make(map[ObjectKey]GetResult, len(keys))
	groups := []struct {
		keys []ObjectKey
		opts GetOptions
	}{
		{single, GetOptions{Namespace: p.opts.Namespace}},
		{multi, GetOptions{Namespace: p.opts.Namespace, AllNamespaces: true}},
	}
	for _, g := range groups {
		if len(g.keys) == 0 {
			continue
		}
		results, err := p.store.BulkGet(ctx, g.keys, g.opts)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			found[r.Key] = r
		}
	}
	return found, nil
}
