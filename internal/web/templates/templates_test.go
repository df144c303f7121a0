package templates

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/objimport/internal/core"
)

func TestImportResult(t *testing.T) {
	res := &core.ImportResult{
		SuccessCount: 1,
		SuccessResults: []core.SuccessResult{
			{Type: "dashboard", ID: "d1", Meta: core.Meta{Title: "Sales <Q1>", Icon: "dashboardApp"}, DestinationID: "new-d1"},
		},
		Errors: []core.ImportError{
			{Type: "index-pattern", ID: "ip1", Error: core.AmbiguousConflictError{Destinations: []core.ConflictDestination{{ID: "a"}, {ID: "b"}}}},
		},
	}

	var b strings.Builder
	if err := ImportResult(res).Render(context.Background(), &b); err != nil {
		t.Fatal(err)
	}
	out := b.String()

	for _, want := range []string{"Sales &lt;Q1&gt;", "new-d1", "Matches several existing copies: a, b", "1 error(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<Q1>") {
		t.Error("title not escaped")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		detail core.ErrorDetail
		want   string
	}{
		{core.UnsupportedTypeError{}, "Unsupported type"},
		{core.MissingReferencesError{References: []core.ObjectKey{{Type: "index-pattern", ID: "ip1"}}}, "Missing references: index-pattern:ip1"},
		{core.ConflictError{}, "Conflicts with an existing object"},
		{core.ConflictError{DestinationID: "x"}, "Conflicts with x"},
		{core.UnknownError{Message: "boom"}, "boom"},
	}
	for _, tt := range tests {
		if got := describe(core.ImportError{Error: tt.detail}); got != tt.want {
			t.Errorf("describe(%T) = %q, want %q", tt.detail, got, tt.want)
		}
	}
}

func TestLayoutAndErrorAlert(t *testing.T) {
	var b strings.Builder
	page := Layout("Import", ErrorAlert("Too many imports", "Try again", "IMP004"))
	if err := page.Render(context.Background(), &b); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	if !strings.HasPrefix(out, "<!DOCTYPE html>") || !strings.HasSuffix(out, "</html>") {
		t.Error("layout shell missing")
	}
	if !strings.Contains(out, "IMP004") || !strings.Contains(out, "Try again") {
		t.Errorf("alert content missing: %s", out)
	}
}

func TestHistoryTableEmpty(t *testing.T) {
	var b strings.Builder
	if err := HistoryTable(nil).Render(context.Background(), &b); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "No imports yet") {
		t.Errorf("output = %s", b.String())
	}
}
