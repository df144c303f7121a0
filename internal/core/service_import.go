package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/JonMunkholm/objimport/internal/logging"
)

// ErrInvalidOptions is returned when overwrite and createNewCopies are both set.
var ErrInvalidOptions = errors.New("overwrite and createNewCopies cannot be combined")

// Import reads an NDJSON stream of saved objects and writes them to the store.
//
// The whole plan is computed before the single bulk write. Per-object
// problems are reported in the result; an error is returned only when the
// call fails as a whole (invalid options, malformed stream, object limit,
// no free import slot, or a store lookup failure), in which case nothing
// has been written.
func (s *Service) Import(ctx context.Context, r io.Reader, opts Options) (*ImportResult, error) {
	if opts.Overwrite && opts.CreateNewCopies {
		return nil, ErrInvalidOptions
	}
	opts = s.normalize(opts)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	importID := uuid.NewString()
	logger := logging.WithFields(ctx,
		"import_id", importID,
		"namespace", opts.Namespace,
	)

	ctx, span := s.tracer.Start(ctx, "import")
	defer span.End()
	span.SetAttributes(
		attribute.String("import.id", importID),
		attribute.String("import.namespace", opts.Namespace),
		attribute.Bool("import.overwrite", opts.Overwrite),
		attribute.Bool("import.create_new_copies", opts.CreateNewCopies),
	)

	start := time.Now()
	logger.Info("import started",
		"overwrite", opts.Overwrite,
		"create_new_copies", opts.CreateNewCopies,
		"is_copy", opts.IsCopy,
	)

	p := &pipeline{
		store:    s.store,
		registry: s.registry,
		opts:     opts,
		logger:   logger,
		tracer:   s.tracer,
	}

	result, objectCount, err := s.run(ctx, p, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("import failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("import.objects", objectCount),
		attribute.Int("import.success_count", result.SuccessCount),
		attribute.Int("import.error_count", len(result.Errors)),
	)
	logger.Info("import completed",
		"objects", objectCount,
		"success_count", result.SuccessCount,
		"error_count", len(result.Errors),
		"duration_ms", duration.Milliseconds(),
	)

	rec := ImportRecord{
		ID:              importID,
		Namespace:       opts.Namespace,
		ObjectCount:     objectCount,
		SuccessCount:    result.SuccessCount,
		ErrorCount:      len(result.Errors),
		ErrorKinds:      countByKind(result.Errors),
		Overwrite:       opts.Overwrite,
		CreateNewCopies: opts.CreateNewCopies,
		DurationMs:      duration.Milliseconds(),
		CreatedAt:       start.UTC(),
	}
	if opts.DataSource != nil {
		rec.DataSourceID = opts.DataSource.ID
	}
	s.recordImport(ctx, logger, rec)

	return result, nil
}

// normalize fills defaults from the service configuration.
func (s *Service) normalize(opts Options) Options {
	if opts.Namespace == "" {
		opts.Namespace = s.cfg.DefaultNamespace
	}
	if opts.ObjectLimit <= 0 {
		opts.ObjectLimit = s.cfg.ObjectLimit
	}
	if opts.DataSource != nil && opts.DataSource.ID == "" {
		opts.DataSource = nil
	}
	return opts
}

// run executes the pipeline stages in order and returns the result and the
// number of records read from the stream.
func (s *Service) run(ctx context.Context, p *pipeline, r io.Reader) (*ImportResult, int, error) {
	var col *collected
	err := p.stage(ctx, "collect", 0, func(ctx context.Context) (int, error) {
		var err error
		col, err = collectObjects(ctx, r, p.opts.ObjectLimit, p.registry, p.logger)
		if err != nil {
			return 0, err
		}
		return len(col.objects), nil
	})
	if err != nil {
		return nil, 0, err
	}
	p.logger.Debug("import stream read", "records", col.records, "bytes", col.bytesRead)

	if !s.cfg.DataSourceEnabled {
		if errs := guardDataSources(col.objects); len(errs) > 0 {
			p.logger.Info("import rejected: data source objects while data sources are disabled", "objects", len(errs))
			return p.assembleResult(newResolution(nil, errs), nil), col.records, nil
		}
	}

	acc := newResolution(col.idMap, col.errors)
	objects := col.objects

	err = p.stage(ctx, "validate_references", len(objects), func(ctx context.Context) (int, error) {
		errs, err := p.validateReferences(ctx, objects)
		if err != nil {
			return 0, err
		}
		acc = acc.fold(nil, nil, errs)
		return len(objects), nil
	})
	if err != nil {
		return nil, col.records, err
	}

	if p.opts.IsCopy {
		err = p.stage(ctx, "validate_copy", len(objects), func(ctx context.Context) (int, error) {
			kept, errs, err := p.validateCopy(ctx, objects)
			if err != nil {
				return 0, err
			}
			objects = kept
			acc = acc.fold(nil, nil, errs)
			return len(objects), nil
		})
		if err != nil {
			return nil, col.records, err
		}
	}

	if p.opts.CreateNewCopies {
		acc = acc.fold(p.regenerateIDs(objects), nil, nil)
	} else {
		checkers := []struct {
			name string
			fn   func(context.Context, []Object, resolution) ([]Object, resolution, error)
		}{
			{"check_conflicts", p.checkConflicts},
			{"check_origin_conflicts", p.checkOriginConflicts},
			{"check_data_source_conflicts", p.checkDataSourceConflicts},
		}
		for _, c := range checkers {
			err = p.stage(ctx, c.name, len(objects), func(ctx context.Context) (int, error) {
				var err error
				objects, acc, err = c.fn(ctx, objects, acc)
				return len(objects), err
			})
			if err != nil {
				return nil, col.records, err
			}
		}
	}

	var written []created
	err = p.stage(ctx, "create", len(objects), func(ctx context.Context) (int, error) {
		var errs []ImportError
		written, errs = p.createObjects(ctx, objects, acc)
		acc = acc.fold(nil, nil, errs)
		return len(written), nil
	})
	if err != nil {
		return nil, col.records, err
	}

	return p.assembleResult(acc, written), col.records, nil
}
