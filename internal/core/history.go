package core

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHistoryLimit is the page size of ListImports when none is given.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps the page size of ListImports.
const MaxHistoryLimit = 500

// ImportRecord summarises one completed import.
type ImportRecord struct {
	ID              string            `json:"id"`
	Namespace       string            `json:"namespace"`
	ObjectCount     int               `json:"objectCount"`
	SuccessCount    int               `json:"successCount"`
	ErrorCount      int               `json:"errorCount"`
	ErrorKinds      map[ErrorKind]int `json:"errorKinds,omitempty"`
	Overwrite       bool              `json:"overwrite"`
	CreateNewCopies bool              `json:"createNewCopies"`
	DataSourceID    string            `json:"dataSourceId,omitempty"`
	IPAddress       string            `json:"ipAddress,omitempty"`
	UserAgent       string            `json:"userAgent,omitempty"`
	DurationMs      int64             `json:"durationMs"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// ListImports returns the most recent import records, newest first.
func (s *Service) ListImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.history.ListImports(ctx, limit)
}

// recordImport stores a history row. Failures are logged, never returned:
// the import itself already happened.
func (s *Service) recordImport(ctx context.Context, logger *slog.Logger, rec ImportRecord) {
	if s.history == nil {
		return
	}
	rec.IPAddress = ClientIPFromContext(ctx)
	rec.UserAgent = UserAgentFromContext(ctx)

	// The request context may already be cancelled once the response is
	// computed; the history row is still worth keeping.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.history.RecordImport(recCtx, rec); err != nil {
		logger.Warn("failed to record import history", "error", err)
	}
}
