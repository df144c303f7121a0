package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/web/templates"
)

const defaultHistoryLimit = 20

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s", errBadParam, name)
	}
	return n, nil
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Store   string                   `json:"store"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Store:   "ok",
		Imports: s.service.LimiterStatus(),
	}
	status := http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListTypes())
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	records, err := s.service.ListImports(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if records == nil {
		records = []core.ImportRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	history, err := s.service.ListImports(r.Context(), defaultHistoryLimit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	page := templates.Layout("Import saved objects",
		templates.ImportPage(namespace, s.service.ListTypes(), history))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}
