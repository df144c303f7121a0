package web

// errors.go renders failures of a whole request. Per-object import problems
// are not errors here; they travel in the ImportResult.
//
// Every error is logged with the request ID and mapped through
// core.MapError, then rendered as an HTMX fragment, JSON, or plain text
// depending on the request.

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/logging"
	"github.com/JonMunkholm/objimport/internal/web/templates"
)

var (
	errNoFile     = errors.New("no import file in request")
	errBadParam   = errors.New("invalid query parameter")
	errBodyTooBig = errors.New("request body too large")
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, errBodyTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrInvalidOptions),
		errors.Is(err, core.ErrMalformedStream),
		errors.Is(err, core.ErrObjectLimitExceeded),
		errors.Is(err, bufio.ErrTooLong),
		errors.Is(err, errNoFile),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := logger.Warn
	if status >= http.StatusInternalServerError {
		level = logger.Error
	}
	level("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		writeJSON(w, status, ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
	default:
		http.Error(w, msg.Message+" ("+msg.Code+")", status)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client prefers JSON. API routes default to it.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}
