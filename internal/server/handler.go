// Package server implements the HTTP surface of searchlite: collection
// management, document CRUD, search, health, and stats. Every successful
// mutation snapshots the touched collection before the response is written.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/searchlite/searchlite/internal/analytics"
	"github.com/searchlite/searchlite/internal/engine"
	"github.com/searchlite/searchlite/internal/registry"
	"github.com/searchlite/searchlite/internal/server/cache"
	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/errors"
	"github.com/searchlite/searchlite/pkg/health"
	"github.com/searchlite/searchlite/pkg/logger"
	"github.com/searchlite/searchlite/pkg/metrics"
)

// Handler implements all HTTP endpoints.
type Handler struct {
	registry *registry.Registry
	checker  *health.Checker
	metrics  *metrics.Metrics
	cache    *cache.QueryCache
	recorder *analytics.Recorder
	search   config.SearchConfig
	started  time.Time
	logger   *slog.Logger
}

// Options carries the optional collaborators of a Handler. Nil fields
// disable the corresponding feature.
type Options struct {
	Cache    *cache.QueryCache
	Recorder *analytics.Recorder
}

// New creates a Handler.
func New(reg *registry.Registry, checker *health.Checker, m *metrics.Metrics, search config.SearchConfig, opts Options) *Handler {
	return &Handler{
		registry: reg,
		checker:  checker,
		metrics:  m,
		cache:    opts.Cache,
		recorder: opts.Recorder,
		search:   search,
		started:  time.Now(),
		logger:   slog.Default().With("component", "http-handler"),
	}
}

// ---------- Health and stats ----------

// Health runs all registered component checks and reports the aggregate.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Run(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type processStats struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	HeapBytes     uint64  `json:"heap_bytes"`
}

type statsResponse struct {
	Process     processStats            `json:"process"`
	Collections map[string]engine.Stats `json:"collections"`
	CacheHits   int64                   `json:"cache_hits,omitempty"`
	CacheMisses int64                   `json:"cache_misses,omitempty"`
}

// Stats reports process and per-collection statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := statsResponse{
		Process: processStats{
			UptimeSeconds: time.Since(h.started).Seconds(),
			Goroutines:    runtime.NumGoroutine(),
			HeapBytes:     mem.HeapAlloc,
		},
		Collections: make(map[string]engine.Stats),
	}
	for _, name := range h.registry.Names() {
		if eng, err := h.registry.Get(name); err == nil {
			resp.Collections[name] = eng.Stats()
		}
	}
	if h.cache != nil {
		resp.CacheHits, resp.CacheMisses = h.cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------- Collection management ----------

type createCollectionRequest struct {
	Name   string        `json:"name"`
	Schema engine.Schema `json:"schema"`
}

// ListCollections returns all collection names.
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"collections": h.registry.Names()})
}

// CreateCollection creates an empty collection from a name and schema.
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.Create(req.Name, req.Schema); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.metrics.CollectionDocs.WithLabelValues(req.Name).Set(0)
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// DeleteCollection drops a collection and its snapshot.
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.registry.Drop(name); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.invalidate(r, name)
	h.metrics.CollectionDocs.DeleteLabelValues(name)
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// ---------- Documents ----------

// GetDocument returns a stored document verbatim.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.collection(w, r)
	if !ok {
		return
	}
	doc := eng.Get(r.PathValue("id"))
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// AddDocument indexes a new document. The id comes from the ?id query
// parameter or is generated.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	eng, ok := h.collection(w, r)
	if !ok {
		return
	}
	var doc engine.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document body")
		return
	}
	id, err := eng.Add(doc, r.URL.Query().Get("id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if !h.persist(w, r, name) {
		return
	}
	h.metrics.DocsIndexedTotal.WithLabelValues(name).Inc()
	h.metrics.CollectionDocs.WithLabelValues(name).Set(float64(eng.DocCount()))
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateDocument overlays a partial document onto the stored one.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	eng, ok := h.collection(w, r)
	if !ok {
		return
	}
	var partial engine.Document
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document body")
		return
	}
	id := r.PathValue("id")
	if !eng.Update(id, partial) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if !h.persist(w, r, name) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// DeleteDocument removes a document.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	eng, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if !eng.Delete(id) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if !h.persist(w, r, name) {
		return
	}
	h.metrics.DocsDeletedTotal.WithLabelValues(name).Inc()
	h.metrics.CollectionDocs.WithLabelValues(name).Set(float64(eng.DocCount()))
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// ---------- Search ----------

// Search runs a query against one collection.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	eng, ok := h.collection(w, r)
	if !ok {
		return
	}
	var query engine.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query body")
		return
	}
	h.clampQuery(&query)

	var result engine.Result
	cached := false
	if h.cache != nil {
		result, cached = h.cache.GetOrCompute(r.Context(), name, query, func() engine.Result {
			return eng.Search(query)
		})
	} else {
		result = eng.Search(query)
	}

	resultType := "hit"
	if result.Count == 0 {
		resultType = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(name, resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(name).Observe(float64(result.Elapsed) / 1e6)

	if h.recorder != nil && !cached {
		h.recorder.Record(analytics.SearchEvent{
			Collection: name,
			Query:      query.Q,
			HitCount:   result.Count,
			ElapsedUS:  result.Elapsed,
			Timestamp:  time.Now(),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// clampQuery applies the HTTP-boundary limits: the engine core accepts any
// values, the edge enforces sane ones.
func (h *Handler) clampQuery(q *engine.Query) {
	if q.Limit <= 0 {
		q.Limit = h.search.DefaultLimit
	}
	if q.Limit > h.search.MaxLimit {
		q.Limit = h.search.MaxLimit
	}
	if q.Tolerance < 0 {
		q.Tolerance = 0
	}
	if q.Tolerance > h.search.MaxTolerance {
		q.Tolerance = h.search.MaxTolerance
	}
}

// ---------- Helpers ----------

// collection resolves the {name} path parameter, answering 404 on miss.
func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	eng, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		h.writeAppError(w, r, err)
		return nil, false
	}
	return eng, true
}

// persist snapshots the collection after a successful mutation and
// invalidates its cached queries. A failed save is reported to the caller;
// in-memory state is already updated and stays usable.
func (h *Handler) persist(w http.ResponseWriter, r *http.Request, name string) bool {
	start := time.Now()
	if err := h.registry.SaveCollection(name); err != nil {
		logger.FromContext(r.Context()).Error("snapshot save failed", "collection", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist collection")
		return false
	}
	h.metrics.SnapshotSaveDuration.Observe(time.Since(start).Seconds())
	h.invalidate(r, name)
	return true
}

func (h *Handler) invalidate(r *http.Request, name string) {
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), name)
	}
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
