// Package templates renders the HTML pages and HTMX fragments of the import UI.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/objimport/internal/core"
)

// write renders a sequence of already-escaped fragments.
func write(w io.Writer, parts ...string) error {
	_, err := io.WriteString(w, strings.Join(parts, ""))
	return err
}

var esc = templ.EscapeString[string]

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>`, esc(title), `</title>`,
			`<script src="https://unpkg.com/htmx.org@2.0.4"></script>`,
			`</head><body><main class="container">`,
		); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		return write(w, `</main></body></html>`)
	})
}

// ImportPage is the upload form plus the recent import history.
func ImportPage(namespace string, types []core.TypeDefinition, history []core.ImportRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		action := "/api/saved_objects/_import"
		if namespace != "" && namespace != core.DefaultNamespace {
			action = "/api/namespaces/" + esc(namespace) + "/saved_objects/_import"
		}
		if err := write(w,
			`<h1>Import saved objects</h1>`,
			`<form hx-post="`, action, `" hx-encoding="multipart/form-data" hx-target="#import-result">`,
			`<input type="file" name="file" accept=".ndjson" required>`,
			`<fieldset><legend>Conflicts</legend>`,
			`<label><input type="radio" name="mode" value="" checked> Check for existing objects</label>`,
			`<label><input type="radio" name="mode" value="overwrite"> Automatically overwrite conflicts</label>`,
			`<label><input type="radio" name="mode" value="createNewCopies"> Create new objects with random IDs</label>`,
			`</fieldset>`,
			`<button type="submit">Import</button></form>`,
			`<div id="import-result"></div>`,
		); err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString(`<h2>Importable types</h2><ul class="types">`)
		for _, t := range types {
			if !t.Management.Importable || t.Hidden {
				continue
			}
			fmt.Fprintf(&b, `<li data-icon="%s">%s <small>%s</small></li>`,
				esc(t.Management.Icon), esc(displayName(t)), esc(string(t.NamespaceType)))
		}
		b.WriteString(`</ul>`)
		if err := write(w, b.String()); err != nil {
			return err
		}
		return HistoryTable(history).Render(ctx, w)
	})
}

func displayName(t core.TypeDefinition) string {
	if t.Management.DisplayName != "" {
		return t.Management.DisplayName
	}
	return t.Name
}

// ImportResult is the fragment swapped in after an import.
func ImportResult(res *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		status := "success"
		if !res.Success {
			status = "warning"
		}
		fmt.Fprintf(&b, `<div class="import-result %s"><p>%d object(s) imported, %d error(s).</p>`,
			status, res.SuccessCount, len(res.Errors))

		if len(res.SuccessResults) > 0 {
			b.WriteString(`<ul class="imported">`)
			for _, s := range res.SuccessResults {
				fmt.Fprintf(&b, `<li data-icon="%s">%s <code>%s</code>`, esc(s.Meta.Icon), esc(titleOr(s.Meta.Title, s.ID)), esc(s.Type))
				if s.DestinationID != "" {
					fmt.Fprintf(&b, ` &rarr; <code>%s</code>`, esc(s.DestinationID))
				}
				if s.Overwrite {
					b.WriteString(` <em>overwritten</em>`)
				}
				b.WriteString(`</li>`)
			}
			b.WriteString(`</ul>`)
		}

		if len(res.Errors) > 0 {
			b.WriteString(`<table class="errors"><thead><tr><th>Type</th><th>Object</th><th>Problem</th></tr></thead><tbody>`)
			for _, e := range res.Errors {
				fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%s</td></tr>`,
					esc(e.Type), esc(titleOr(e.Title, e.ID)), esc(describe(e)))
			}
			b.WriteString(`</tbody></table>`)
		}
		b.WriteString(`</div>`)
		return write(w, b.String())
	})
}

func titleOr(title, id string) string {
	if title != "" {
		return title
	}
	return id
}

// describe renders an import error detail as one line of text.
func describe(e core.ImportError) string {
	switch d := e.Error.(type) {
	case core.UnsupportedTypeError:
		return "Unsupported type"
	case core.MissingReferencesError:
		refs := make([]string, len(d.References))
		for i, r := range d.References {
			refs[i] = r.String()
		}
		return "Missing references: " + strings.Join(refs, ", ")
	case core.ConflictError:
		if d.DestinationID != "" {
			return "Conflicts with " + d.DestinationID
		}
		return "Conflicts with an existing object"
	case core.AmbiguousConflictError:
		ids := make([]string, len(d.Destinations))
		for i, dest := range d.Destinations {
			ids[i] = dest.ID
		}
		return "Matches several existing copies: " + strings.Join(ids, ", ")
	case core.UnknownError:
		return d.Message
	default:
		return string(e.Kind())
	}
}

// HistoryTable lists recent imports.
func HistoryTable(history []core.ImportRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<h2>Recent imports</h2>`)
		if len(history) == 0 {
			b.WriteString(`<p class="empty">No imports yet.</p>`)
			return write(w, b.String())
		}
		b.WriteString(`<table class="history"><thead><tr><th>When</th><th>Namespace</th><th>Objects</th><th>Imported</th><th>Errors</th></tr></thead><tbody>`)
		for _, rec := range history {
			fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td></tr>`,
				esc(rec.CreatedAt.Format(time.RFC3339)), esc(rec.Namespace),
				rec.ObjectCount, rec.SuccessCount, rec.ErrorCount)
		}
		b.WriteString(`</tbody></table>`)
		return write(w, b.String())
	})
}

// ErrorAlert is the HTMX fragment for a failed request.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div class="alert error" role="alert"><p>%s</p>`, esc(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="action">%s</p>`, esc(action))
		}
		fmt.Fprintf(&b, `<p class="code">Error code: %s</p></div>`, esc(code))
		return write(w, b.String())
	})
}
