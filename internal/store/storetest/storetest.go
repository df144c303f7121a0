// Package storetest is a conformance suite every object store backend runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/objimport/internal/core"
)

// Store is what a backend under test must provide.
type Store interface {
	core.Store
	core.HistoryStore
}

// Factory returns an empty store that uses reg for namespace semantics.
type Factory func(t *testing.T, reg *core.TypeRegistry) Store

// Registry returns the types the suite works with.
func Registry() *core.TypeRegistry {
	reg := core.NewTypeRegistry()
	reg.Register(core.TypeDefinition{Name: "dashboard", NamespaceType: core.NamespaceSingle, Management: core.Management{Importable: true}})
	reg.Register(core.TypeDefinition{Name: "index-pattern", NamespaceType: core.NamespaceMultiple, Management: core.Management{Importable: true}})
	reg.Register(core.TypeDefinition{Name: core.DataSourceType, NamespaceType: core.NamespaceAgnostic, Management: core.Management{Importable: true}})
	return reg
}

// Seed writes objs into namespace through the store itself.
func Seed(t *testing.T, s core.Store, namespace string, objs ...core.Object) {
	t.Helper()
	reqs := make([]core.CreateRequest, len(objs))
	for i, o := range objs {
		reqs[i] = core.CreateRequest{Object: o, Overwrite: true}
	}
	res, err := s.BulkCreate(context.Background(), reqs, core.CreateOptions{Namespace: namespace})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i, r := range res {
		if r.Err != nil {
			t.Fatalf("seed %s: %v", objs[i].Key(), r.Err)
		}
	}
}

func get(t *testing.T, s core.Store, key core.ObjectKey, opts core.GetOptions) core.GetResult {
	t.Helper()
	res, err := s.BulkGet(context.Background(), []core.ObjectKey{key}, opts)
	if err != nil {
		t.Fatalf("BulkGet: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("BulkGet returned %d results, want 1", len(res))
	}
	if res[0].Key != key {
		t.Fatalf("result key = %s, want %s", res[0].Key, key)
	}
	if res[0].Err != nil {
		t.Fatalf("BulkGet %s: %v", key, res[0].Err)
	}
	return res[0]
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"SingleNamespaceIsolation", testSingleNamespaceIsolation},
		{"MultiNamespaceVisibility", testMultiNamespaceVisibility},
		{"AgnosticVisibleEverywhere", testAgnosticVisibleEverywhere},
		{"BulkGetKeepsInputOrder", testBulkGetOrder},
		{"RoundTrip", testRoundTrip},
		{"ConflictAndOverwrite", testConflictAndOverwrite},
		{"PartialBatch", testPartialBatch},
		{"OverwriteSharedAddsNamespace", testOverwriteSharedAddsNamespace},
		{"FindByOrigin", testFindByOrigin},
		{"FindByOriginManyQueries", testFindByOriginManyQueries},
		{"History", testHistory},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t, Registry()))
		})
	}
}

func testSingleNamespaceIsolation(t *testing.T, s Store) {
	Seed(t, s, "team-a", core.Object{Type: "dashboard", ID: "d1"})
	key := core.ObjectKey{Type: "dashboard", ID: "d1"}

	if !get(t, s, key, core.GetOptions{Namespace: "team-a"}).Found {
		t.Error("d1 should be found in team-a")
	}
	if get(t, s, key, core.GetOptions{Namespace: "team-b"}).Found {
		t.Error("d1 should not be visible from team-b")
	}
	if get(t, s, key, core.GetOptions{Namespace: "team-b", AllNamespaces: true}).Found {
		t.Error("AllNamespaces must not widen single-namespace lookups")
	}
}

func testMultiNamespaceVisibility(t *testing.T, s Store) {
	Seed(t, s, "team-a", core.Object{Type: "index-pattern", ID: "ip1"})
	key := core.ObjectKey{Type: "index-pattern", ID: "ip1"}

	tests := []struct {
		name string
		opts core.GetOptions
		want bool
	}{
		{"own namespace", core.GetOptions{Namespace: "team-a"}, true},
		{"other namespace", core.GetOptions{Namespace: "team-b"}, false},
		{"all namespaces", core.GetOptions{Namespace: "team-b", AllNamespaces: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := get(t, s, key, tt.opts).Found; got != tt.want {
				t.Errorf("Found = %v, want %v", got, tt.want)
			}
		})
	}
}

func testAgnosticVisibleEverywhere(t *testing.T, s Store) {
	Seed(t, s, "team-a", core.Object{Type: core.DataSourceType, ID: "ds1"})
	r := get(t, s, core.ObjectKey{Type: core.DataSourceType, ID: "ds1"}, core.GetOptions{Namespace: "team-b"})
	if !r.Found {
		t.Fatal("global object should be visible from any namespace")
	}
	if len(r.Object.Namespaces) != 0 {
		t.Errorf("namespaces = %v, want none", r.Object.Namespaces)
	}
}

func testBulkGetOrder(t *testing.T, s Store) {
	Seed(t, s, core.DefaultNamespace,
		core.Object{Type: "dashboard", ID: "b"},
		core.Object{Type: "dashboard", ID: "a"},
	)
	keys := []core.ObjectKey{
		{Type: "dashboard", ID: "b"},
		{Type: "dashboard", ID: "missing"},
		{Type: "dashboard", ID: "a"},
	}
	res, err := s.BulkGet(context.Background(), keys, core.GetOptions{Namespace: core.DefaultNamespace})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != len(keys) {
		t.Fatalf("results = %d, want %d", len(res), len(keys))
	}
	for i, k := range keys {
		if res[i].Key != k {
			t.Errorf("result %d key = %s, want %s", i, res[i].Key, k)
		}
	}
	if !res[0].Found || res[1].Found || !res[2].Found {
		t.Errorf("found = %v %v %v, want true false true", res[0].Found, res[1].Found, res[2].Found)
	}
}

func testRoundTrip(t *testing.T, s Store) {
	obj := core.Object{
		Type:       "dashboard",
		ID:         "d1",
		OriginID:   "orig",
		Attributes: map[string]any{"title": "Sales", "panels": "[]"},
		References: []core.Reference{{Type: "index-pattern", ID: "ip1", Name: "panel_0"}},
		Workspaces: []string{"ws1"},
	}
	res, err := s.BulkCreate(context.Background(), []core.CreateRequest{{Object: obj}}, core.CreateOptions{Namespace: "team-a"})
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Err != nil {
		t.Fatal(res[0].Err)
	}
	if res[0].Object.UpdatedAt.IsZero() {
		t.Error("created object has no updated_at")
	}

	got := get(t, s, obj.Key(), core.GetOptions{Namespace: "team-a"}).Object
	if got.Title() != "Sales" || got.Attributes["panels"] != "[]" {
		t.Errorf("attributes = %v", got.Attributes)
	}
	if got.OriginID != "orig" {
		t.Errorf("originId = %q", got.OriginID)
	}
	if len(got.References) != 1 || got.References[0] != obj.References[0] {
		t.Errorf("references = %v", got.References)
	}
	if len(got.Workspaces) != 1 || got.Workspaces[0] != "ws1" {
		t.Errorf("workspaces = %v", got.Workspaces)
	}
	if len(got.Namespaces) != 1 || got.Namespaces[0] != "team-a" {
		t.Errorf("namespaces = %v, want [team-a]", got.Namespaces)
	}
}

func testConflictAndOverwrite(t *testing.T, s Store) {
	ctx := context.Background()
	Seed(t, s, core.DefaultNamespace, core.Object{Type: "dashboard", ID: "d1", Attributes: map[string]any{"title": "old"}})

	obj := core.Object{Type: "dashboard", ID: "d1", Attributes: map[string]any{"title": "new"}}
	opts := core.CreateOptions{Namespace: core.DefaultNamespace}

	res, err := s.BulkCreate(ctx, []core.CreateRequest{{Object: obj}}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(res[0].Err, core.ErrObjectConflict) {
		t.Fatalf("err = %v, want ErrObjectConflict", res[0].Err)
	}
	key := obj.Key()
	if got := get(t, s, key, core.GetOptions{Namespace: core.DefaultNamespace}).Object; got.Title() != "old" {
		t.Errorf("conflicting create changed the object: %q", got.Title())
	}

	res, err = s.BulkCreate(ctx, []core.CreateRequest{{Object: obj, Overwrite: true}}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Err != nil {
		t.Fatalf("overwrite: %v", res[0].Err)
	}
	if got := get(t, s, key, core.GetOptions{Namespace: core.DefaultNamespace}).Object; got.Title() != "new" {
		t.Errorf("title = %q, want new", got.Title())
	}
}

func testPartialBatch(t *testing.T, s Store) {
	Seed(t, s, core.DefaultNamespace, core.Object{Type: "dashboard", ID: "taken"})

	reqs := []core.CreateRequest{
		{Object: core.Object{Type: "dashboard", ID: "first"}},
		{Object: core.Object{Type: "dashboard", ID: "taken"}},
		{Object: core.Object{Type: "dashboard", ID: "last"}},
	}
	res, err := s.BulkCreate(context.Background(), reqs, core.CreateOptions{Namespace: core.DefaultNamespace})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("results = %d, want 3", len(res))
	}
	if res[0].Err != nil || res[2].Err != nil {
		t.Errorf("neighbours of a conflict failed: %v, %v", res[0].Err, res[2].Err)
	}
	if !errors.Is(res[1].Err, core.ErrObjectConflict) {
		t.Errorf("err = %v, want ErrObjectConflict", res[1].Err)
	}
	for _, id := range []string{"first", "last"} {
		if !get(t, s, core.ObjectKey{Type: "dashboard", ID: id}, core.GetOptions{Namespace: core.DefaultNamespace}).Found {
			t.Errorf("%s not written", id)
		}
	}
}

func testOverwriteSharedAddsNamespace(t *testing.T, s Store) {
	Seed(t, s, "team-a", core.Object{Type: "index-pattern", ID: "ip1"})
	Seed(t, s, "team-b", core.Object{Type: "index-pattern", ID: "ip1"})
	Seed(t, s, "team-b", core.Object{Type: "index-pattern", ID: "ip1"})

	got := get(t, s, core.ObjectKey{Type: "index-pattern", ID: "ip1"}, core.GetOptions{Namespace: "team-b"}).Object
	if len(got.Namespaces) != 2 || got.Namespaces[0] != "team-a" || got.Namespaces[1] != "team-b" {
		t.Errorf("namespaces = %v, want [team-a team-b]", got.Namespaces)
	}
}

func testFindByOrigin(t *testing.T, s Store) {
	Seed(t, s, "team-a", core.Object{Type: "index-pattern", ID: "copy-a", OriginID: "ip1"})
	Seed(t, s, "team-b", core.Object{Type: "index-pattern", ID: "copy-b", OriginID: "ip1"})
	Seed(t, s, "team-c", core.Object{Type: "index-pattern", ID: "ip1"})
	Seed(t, s, "team-c", core.Object{Type: "index-pattern", ID: "unrelated"})

	q := core.OriginQuery{Type: "index-pattern", OriginID: "ip1"}
	none := core.OriginQuery{Type: "index-pattern", OriginID: "nothing"}

	got, err := s.FindByOrigin(context.Background(), []core.OriginQuery{q, none}, core.GetOptions{Namespace: "team-a", AllNamespaces: true})
	if err != nil {
		t.Fatal(err)
	}
	if ids := idsOf(got[q]); fmt.Sprint(ids) != "[copy-a copy-b ip1]" {
		t.Errorf("matches = %v, want [copy-a copy-b ip1]", ids)
	}
	if len(got[none]) != 0 {
		t.Errorf("unexpected matches for %v: %v", none, idsOf(got[none]))
	}

	got, err = s.FindByOrigin(context.Background(), []core.OriginQuery{q}, core.GetOptions{Namespace: "team-a"})
	if err != nil {
		t.Fatal(err)
	}
	if ids := idsOf(got[q]); fmt.Sprint(ids) != "[copy-a]" {
		t.Errorf("namespace-scoped matches = %v, want [copy-a]", ids)
	}
}

// testFindByOriginManyQueries resolves more origins than fit in one lookup
// statement and checks every match lands in its own query's bucket.
func testFindByOriginManyQueries(t *testing.T, s Store) {
	const n = 250

	var objs []core.Object
	var queries []core.OriginQuery
	for i := range n {
		origin := fmt.Sprintf("o%04d", i)
		if i%5 != 0 {
			objs = append(objs, core.Object{Type: "index-pattern", ID: "copy-" + origin, OriginID: origin})
		}
		queries = append(queries, core.OriginQuery{Type: "index-pattern", OriginID: origin})
	}
	Seed(t, s, "default", objs...)
	queries = append(queries, queries[7])

	got, err := s.FindByOrigin(context.Background(), queries, core.GetOptions{Namespace: "default"})
	if err != nil {
		t.Fatal(err)
	}
	for i, q := range queries[:n] {
		ids := idsOf(got[q])
		switch {
		case i%5 == 0 && len(ids) != 0:
			t.Errorf("%s: unexpected matches %v", q.OriginID, ids)
		case i%5 != 0 && fmt.Sprint(ids) != "[copy-"+q.OriginID+"]":
			t.Errorf("%s: matches = %v, want [copy-%s]", q.OriginID, ids, q.OriginID)
		}
	}
}

func idsOf(objs []core.Object) []string {
	ids := make([]string, len(objs))
	for i, o := range objs {
		ids[i] = o.ID
	}
	return ids
}

func testHistory(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i, age := range []time.Duration{72 * time.Hour, 48 * time.Hour, time.Hour} {
		rec := core.ImportRecord{
			ID:           fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i+1),
			Namespace:    core.DefaultNamespace,
			ObjectCount:  3,
			SuccessCount: 2,
			ErrorCount:   1,
			ErrorKinds:   map[core.ErrorKind]int{core.KindConflict: 1},
			IPAddress:    "203.0.113.7",
			CreatedAt:    now.Add(-age),
		}
		if err := s.RecordImport(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ListImports(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID[len(recs[0].ID)-1] != '3' || recs[1].ID[len(recs[1].ID)-1] != '2' {
		t.Fatalf("ListImports = %+v, want the two newest, newest first", recs)
	}
	if recs[0].ErrorKinds[core.KindConflict] != 1 || recs[0].IPAddress != "203.0.113.7" {
		t.Errorf("record fields lost: %+v", recs[0])
	}

	purged, err := s.PurgeImports(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
	recs, err = s.ListImports(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("remaining = %d, want 1", len(recs))
	}
}

func testPing(t *testing.T, s Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
