package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/objimport/internal/config"
	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/store/memory"
)

func testRegistry() *core.TypeRegistry {
	reg := core.NewTypeRegistry()
	reg.Register(core.TypeDefinition{
		Name:          "dashboard",
		NamespaceType: core.NamespaceSingle,
		Management:    core.Management{Importable: true, Icon: "dashboardApp", DisplayName: "Dashboard"},
	})
	reg.Register(core.TypeDefinition{
		Name:          "index-pattern",
		NamespaceType: core.NamespaceMultiple,
		Management:    core.Management{Importable: true, Icon: "indexPatternApp"},
	})
	return reg
}

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			ObjectLimit:      10,
			MaxBodySize:      1 << 20,
			MaxConcurrent:    2,
			MaxWaitTime:      time.Second,
			DefaultNamespace: core.DefaultNamespace,
		},
		Rate: config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *memory.Store) {
	t.Helper()
	reg := testRegistry()
	store := memory.New(reg)
	svc := core.NewService(store, store, reg, cfg.Import)
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

const sampleExport = `{"type":"index-pattern","id":"ip1","attributes":{"title":"logs-*"},"references":[]}
{"type":"dashboard","id":"d1","attributes":{"title":"Overview"},"references":[{"type":"index-pattern","id":"ip1","name":"ref_0"}]}
`

func doImport(t *testing.T, s *Server, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/ndjson")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestImport_RawBody(t *testing.T) {
	s, store := newTestServer(t, testConfig())

	rec := doImport(t, s, "/api/saved_objects/_import", sampleExport, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decodeResult(t, rec)
	if res["success"] != true || res["successCount"] != float64(2) {
		t.Errorf("result = %v", res)
	}
	if store.Len() != 2 {
		t.Errorf("store has %d objects, want 2", store.Len())
	}

	// Importing again reports conflicts, then overwrite succeeds.
	rec = doImport(t, s, "/api/saved_objects/_import", sampleExport, nil)
	res = decodeResult(t, rec)
	errs, _ := res["errors"].([]any)
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2 conflicts", res["errors"])
	}
	if kind := errs[0].(map[string]any)["error"].(map[string]any)["type"]; kind != "conflict" {
		t.Errorf("error type = %v, want conflict", kind)
	}

	rec = doImport(t, s, "/api/saved_objects/_import?overwrite=true", sampleExport, nil)
	if res := decodeResult(t, rec); res["success"] != true {
		t.Errorf("overwrite result = %v", res)
	}
}

func TestImport_Namespace(t *testing.T) {
	s, store := newTestServer(t, testConfig())

	rec := doImport(t, s, "/api/namespaces/team-a/saved_objects/_import", sampleExport, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.Get("team-a", "dashboard", "d1"); !ok {
		t.Error("dashboard not stored in team-a")
	}
	if _, ok := store.Get(core.DefaultNamespace, "dashboard", "d1"); ok {
		t.Error("dashboard leaked into default namespace")
	}
}

func TestImport_Multipart(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "export.ndjson")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, sampleExport)
	mw.WriteField("mode", "createNewCopies")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/saved_objects/_import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want html fragment", ct)
	}
	if !strings.Contains(rec.Body.String(), "2 object(s) imported") {
		t.Errorf("fragment = %s", rec.Body.String())
	}
}

func TestImport_Errors(t *testing.T) {
	tooMany := strings.Repeat(`{"type":"dashboard","id":"x","attributes":{}}`+"\n", 11)

	tests := []struct {
		name   string
		path   string
		body   string
		header map[string]string
		status int
		code   string
	}{
		{"conflicting options", "/api/saved_objects/_import?overwrite=true&createNewCopies=true", sampleExport, nil, http.StatusBadRequest, "IMP003"},
		{"bad bool", "/api/saved_objects/_import?overwrite=maybe", sampleExport, nil, http.StatusBadRequest, "REQ003"},
		{"malformed", "/api/saved_objects/_import", "{not json\n", nil, http.StatusBadRequest, "IMP002"},
		{"object limit", "/api/saved_objects/_import", tooMany, nil, http.StatusBadRequest, "IMP001"},
		{"multipart without file", "/api/saved_objects/_import", "--x--\r\n", map[string]string{"Content-Type": "multipart/form-data; boundary=x"}, http.StatusBadRequest, "REQ002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestServer(t, testConfig())
			rec := doImport(t, s, tt.path, tt.body, tt.header)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if res := decodeResult(t, rec); res["code"] != tt.code {
				t.Errorf("code = %v, want %s", res["code"], tt.code)
			}
			if store.Len() != 0 {
				t.Errorf("store has %d objects after failed import", store.Len())
			}
		})
	}
}

func TestImport_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxBodySize = 16
	s, _ := newTestServer(t, cfg)

	rec := doImport(t, s, "/api/saved_objects/_import", sampleExport, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, http.StatusRequestEntityTooLarge, rec.Body.String())
	}
}

func TestImport_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s, _ := newTestServer(t, cfg)

	if rec := doImport(t, s, "/api/saved_objects/_import", sampleExport, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d", rec.Code)
	}
	rec := doImport(t, s, "/api/saved_objects/_import", sampleExport, map[string]string{"X-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d", rec.Code)
	}
}

func TestImport_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ImportLimit: 1}
	s, _ := newTestServer(t, cfg)

	doImport(t, s, "/api/saved_objects/_import", sampleExport, nil)
	rec := doImport(t, s, "/api/saved_objects/_import", sampleExport, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if res := decodeResult(t, rec); res["code"] != "RATE001" {
		t.Errorf("code = %v", res["code"])
	}
}

func TestListImports(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	doImport(t, s, "/api/saved_objects/_import", sampleExport, map[string]string{"User-Agent": "cli/1.0"})

	req := httptest.NewRequest(http.MethodGet, "/api/imports?limit=5", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []core.ImportRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].SuccessCount != 2 || records[0].UserAgent != "cli/1.0" {
		t.Errorf("records = %+v", records)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/imports?limit=-1", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d", rec.Code)
	}
}

func TestListTypes(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/types", nil))

	var types []core.TypeDefinition
	if err := json.Unmarshal(rec.Body.Bytes(), &types); err != nil {
		t.Fatal(err)
	}
	if len(types) != 2 || types[0].Name != "dashboard" {
		t.Errorf("types = %+v", types)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Imports.MaxConcurrent != 2 {
		t.Errorf("health = %+v", resp)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestImportPage(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/namespaces/team-a", nil))

	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"/api/namespaces/team-a/saved_objects/_import", "Dashboard", "No imports yet"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidOptions, http.StatusBadRequest},
		{core.ErrTooManyImports, http.StatusTooManyRequests},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errBadParam, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
