package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/objimport/internal/config"
	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/web/templates"
)

// maxMemory is how much of a multipart upload is held in memory before
// spilling to temporary files.
const maxMemory = 32 << 20

// handleImport accepts an NDJSON export either as the "file" part of a
// multipart form or as the raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Import.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBodySize)
	}

	body, form, err := importBody(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer body.Close()

	opts, err := parseImportOptions(r, form)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	opts.Namespace = chi.URLParam(r, "namespace")

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Import(ctx, body, opts)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.ImportResult(result).Render(ctx, w); err != nil {
			respondError(w, r, err, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// importBody returns the import stream and, for multipart requests, the
// other form values.
func importBody(r *http.Request) (io.ReadCloser, map[string][]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil, nil
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", errNoFile, err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return file, r.MultipartForm.Value, nil
}

// parseImportOptions reads the import options from the query string and,
// for form submissions, from the form. The form's "mode" radio maps onto
// overwrite and createNewCopies.
func parseImportOptions(r *http.Request, form map[string][]string) (core.Options, error) {
	get := func(name string) string {
		if v := r.URL.Query().Get(name); v != "" {
			return v
		}
		if vs := form[name]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	var opts core.Options
	var err error
	if opts.Overwrite, err = parseBool(get("overwrite"), "overwrite"); err != nil {
		return opts, err
	}
	if opts.CreateNewCopies, err = parseBool(get("createNewCopies"), "createNewCopies"); err != nil {
		return opts, err
	}
	if opts.IsCopy, err = parseBool(get("isCopy"), "isCopy"); err != nil {
		return opts, err
	}

	switch get("mode") {
	case "":
	case "overwrite":
		opts.Overwrite = true
	case "createNewCopies":
		opts.CreateNewCopies = true
	default:
		return opts, fmt.Errorf("%w: mode", errBadParam)
	}

	if id := get("dataSourceId"); id != "" {
		opts.DataSource = &core.DataSourceContext{ID: id, Title: get("dataSourceTitle")}
	}
	opts.Workspaces = config.SplitList(get("workspaces"))
	return opts, nil
}

func parseBool(v, name string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s", errBadParam, name)
	}
	return b, nil
}
