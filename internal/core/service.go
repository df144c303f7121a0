package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/JonMunkholm/objimport/internal/config"
)

const tracerName = "github.com/JonMunkholm/objimport/internal/core"

// Service runs imports against a store. It is safe for concurrent use; the
// number of imports running at once is bounded by its limiter.
type Service struct {
	store    Store
	history  HistoryStore
	registry *TypeRegistry
	cfg      config.ImportConfig
	limiter  *ImportLimiter
	tracer   trace.Tracer
}

// NewService creates a Service. history may be nil to disable import
// history; registry nil means the default registry.
func NewService(store Store, history HistoryStore, registry *TypeRegistry, cfg config.ImportConfig) *Service {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if cfg.DefaultNamespace == "" {
		cfg.DefaultNamespace = DefaultNamespace
	}
	return &Service{
		store:    store,
		history:  history,
		registry: registry,
		cfg:      cfg,
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		tracer:   otel.Tracer(tracerName),
	}
}

// Registry returns the type registry imports are validated against.
func (s *Service) Registry() *TypeRegistry {
	return s.registry
}

// ListTypes returns every registered type, sorted by name.
func (s *Service) ListTypes() []TypeDefinition {
	return s.registry.All()
}

// LimiterStatus reports how many import slots are in use.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.store.Ping(ctx)
}

// WaitForImports blocks until in-flight imports finish or ctx ends.
// Used during graceful shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
