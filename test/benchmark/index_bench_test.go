// Package benchmark contains Go benchmarks for the search engine core:
// indexing throughput, query latency, and snapshot codec performance.
package benchmark

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/searchlite/searchlite/internal/engine"
)

func benchSchema() engine.Schema {
	return engine.Schema{
		"title":    {Type: engine.FieldString},
		"body":     {Type: engine.FieldString},
		"brand":    {Type: engine.FieldString, Facetable: true},
		"in_stock": {Type: engine.FieldBool, Facetable: true},
		"price":    {Type: engine.FieldNumber, Sortable: true},
	}
}

var benchTerms = []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

func benchDocument(i int) engine.Document {
	return engine.Document{
		"title":    fmt.Sprintf("document about %s and %s", benchTerms[i%len(benchTerms)], benchTerms[(i+1)%len(benchTerms)]),
		"body":     fmt.Sprintf("this document covers %s %s %s in production systems", benchTerms[i%len(benchTerms)], benchTerms[(i+2)%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)]),
		"brand":    fmt.Sprintf("brand-%d", i%5),
		"in_stock": i%2 == 0,
		"price":    float64(10 + i%990),
	}
}

func populatedEngine(b *testing.B, n int) *engine.Engine {
	b.Helper()
	e, err := engine.New(benchSchema())
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if _, err := e.Add(benchDocument(i), fmt.Sprintf("doc-%d", i)); err != nil {
			b.Fatal(err)
		}
	}
	return e
}

// BenchmarkEngineAdd measures per-document indexing throughput at various
// pre-loaded corpus sizes.
func BenchmarkEngineAdd(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, preload := range sizes {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			e := populatedEngine(b, preload)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := e.Add(benchDocument(i), fmt.Sprintf("bench-%d", i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineDelete measures delete-and-reindex cost on a 10 000
// document corpus. Each iteration deletes one document and adds it back.
func BenchmarkEngineDelete(b *testing.B) {
	e := populatedEngine(b, 10000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("doc-%d", i%10000)
		if !e.Delete(id) {
			b.Fatal("delete failed")
		}
		if _, err := e.Add(benchDocument(i%10000), id); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSnapshotSave measures full-state serialization to disk.
func BenchmarkSnapshotSave(b *testing.B) {
	sizes := []int{1000, 10000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			e := populatedEngine(b, n)
			path := filepath.Join(b.TempDir(), "bench.index."+engine.SnapshotExtension)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := e.Save(path); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSnapshotLoad measures decode plus trie rebuild.
func BenchmarkSnapshotLoad(b *testing.B) {
	sizes := []int{1000, 10000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			e := populatedEngine(b, n)
			path := filepath.Join(b.TempDir(), "bench.index."+engine.SnapshotExtension)
			if err := e.Save(path); err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				loaded, err := engine.Load(path)
				if err != nil {
					b.Fatal(err)
				}
				_ = loaded
			}
		})
	}
}
