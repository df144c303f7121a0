package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

var (
	// ErrObjectLimitExceeded aborts an import whose stream holds more records
	// than the object limit. No store access happens before it is returned.
	ErrObjectLimitExceeded = errors.New("object limit exceeded")

	// ErrMalformedStream aborts an import containing a line that is not JSON.
	ErrMalformedStream = errors.New("malformed import stream")
)

// MaxLineSize is the longest NDJSON line the collector accepts.
const MaxLineSize = 16 << 20

// collected is the output of the collector stage.
type collected struct {
	objects   []Object
	errors    []ImportError
	idMap     ImportIDMap
	records   int
	bytesRead int64
}

// recordProbe reads just enough of a line to classify it.
type recordProbe struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	ExportedCount *int   `json:"exportedCount"`
}

// collectObjects reads an NDJSON stream into memory.
//
// Blank lines and the trailing export summary are skipped. Every other line
// counts toward limit. Lines that are not JSON abort the call with
// ErrMalformedStream; records that decode badly or have a type the registry
// does not accept become per-object errors. A repeated (type, id) keeps the
// first occurrence.
func collectObjects(ctx context.Context, r io.Reader, limit int, registry *TypeRegistry, logger *slog.Logger) (*collected, error) {
	counter := wrapImportStream(r)
	scanner := bufio.NewScanner(counter)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	out := &collected{idMap: make(ImportIDMap)}
	line := 0

	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("line %d: %w", line, ErrMalformedStream)
		}

		var probe recordProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			// Valid JSON that is not an object, e.g. a bare array.
			return nil, fmt.Errorf("line %d: %w", line, ErrMalformedStream)
		}
		if probe.ExportedCount != nil && probe.Type == "" {
			continue
		}

		out.records++
		if limit > 0 && out.records > limit {
			return nil, fmt.Errorf("%w: stream holds more than %d objects", ErrObjectLimitExceeded, limit)
		}

		var obj Object
		if err := json.Unmarshal(raw, &obj); err != nil {
			out.errors = append(out.errors, newImportError(
				Object{Type: probe.Type, ID: probe.ID},
				UnknownError{Message: fmt.Sprintf("line %d: %v", line, err), StatusCode: http.StatusBadRequest},
			))
			continue
		}
		if obj.Type == "" || obj.ID == "" {
			out.errors = append(out.errors, newImportError(obj, UnknownError{
				Message:    fmt.Sprintf("line %d: object requires a type and an id", line),
				StatusCode: http.StatusBadRequest,
			}))
			continue
		}
		if !registry.IsImportable(obj.Type) {
			out.errors = append(out.errors, newImportError(obj, UnsupportedTypeError{}))
			continue
		}

		key := obj.Key()
		if _, dup := out.idMap[key]; dup {
			logger.Warn("duplicate object in import stream, keeping first", "object", key.String(), "line", line)
			continue
		}

		// The destination decides namespace membership.
		obj.Namespaces = nil

		out.idMap[key] = IDMapEntry{}
		out.objects = append(out.objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read import stream: %w", err)
	}

	out.bytesRead = counter.BytesRead
	return out, nil
}
