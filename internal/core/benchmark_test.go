package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/JonMunkholm/objimport/internal/core"
	"github.com/JonMunkholm/objimport/internal/store/memory"
)

// generateExport builds an export of n dashboards, each referencing one of
// n/10 index patterns, in the order an export writes them.
func generateExport(n int) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	patterns := max(n/10, 1)
	for i := range patterns {
		enc.Encode(core.Object{
			Type:       "index-pattern",
			ID:         fmt.Sprintf("ip-%d", i),
			Attributes: map[string]any{"title": fmt.Sprintf("logs-%d-*", i)},
		})
	}
	for i := range n {
		enc.Encode(dashboard(fmt.Sprintf("d-%d", i), core.Reference{
			Type: "index-pattern",
			ID:   fmt.Sprintf("ip-%d", i%patterns),
			Name: "ref_0",
		}))
	}
	buf.WriteString(`{"exportedCount":` + fmt.Sprint(n+patterns) + `,"missingRefCount":0}` + "\n")
	return buf.Bytes()
}

func quietLogs(b *testing.B) {
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.Cleanup(func() { slog.SetDefault(prev) })
}

func benchmarkImport(b *testing.B, n int, seed bool, opts core.Options) {
	quietLogs(b)
	data := generateExport(n)
	cfg := testConfig()
	cfg.ObjectLimit = 2 * n

	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		reg := testRegistry()
		store := memory.New(reg)
		svc := core.NewService(store, store, reg, cfg)
		if seed {
			if _, err := svc.Import(context.Background(), bytes.NewReader(data), core.Options{}); err != nil {
				b.Fatal(err)
			}
		}
		b.StartTimer()

		if _, err := svc.Import(context.Background(), bytes.NewReader(data), opts); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkImport_Fresh measures an import into an empty store.
func BenchmarkImport_Fresh(b *testing.B) {
	benchmarkImport(b, 1000, false, core.Options{})
}

// BenchmarkImport_AllConflicts measures a re-import where every object
// conflicts and nothing is written.
func BenchmarkImport_AllConflicts(b *testing.B) {
	benchmarkImport(b, 1000, true, core.Options{})
}

func BenchmarkImport_Overwrite(b *testing.B) {
	benchmarkImport(b, 1000, true, core.Options{Overwrite: true})
}

func BenchmarkImport_CreateNewCopies(b *testing.B) {
	benchmarkImport(b, 1000, true, core.Options{CreateNewCopies: true})
}

func BenchmarkImport_Parallel(b *testing.B) {
	quietLogs(b)
	data := generateExport(200)
	reg := testRegistry()
	store := memory.New(reg)
	cfg := testConfig()
	cfg.ObjectLimit = 1000
	cfg.MaxConcurrent = 8
	svc := core.NewService(store, store, reg, cfg)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.Import(context.Background(), bytes.NewReader(data), core.Options{Overwrite: true}); err != nil {
				b.Error(err)
			}
		}
	})
}
