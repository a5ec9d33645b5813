package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlite/searchlite/internal/engine"
	"github.com/searchlite/searchlite/internal/registry"
	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/health"
	"github.com/searchlite/searchlite/pkg/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:         3000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Search: config.SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
			MaxTolerance: 5,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T) (http.Handler, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)

	cfg := testConfig()
	m := metrics.New()
	checker := health.NewChecker()
	checker.Register("registry", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusOK}
	})

	h := New(reg, checker, m, cfg.Search, Options{})
	return NewRouter(h, m, cfg), reg
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func createProducts(t *testing.T, handler http.Handler) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/collections", map[string]any{
		"name": "products",
		"schema": map[string]any{
			"title": map[string]any{"type": "string"},
			"brand": map[string]any{"type": "string", "facetable": true},
			"price": map[string]any{"type": "number", "sortable": true},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func addDoc(t *testing.T, handler http.Handler, id string, doc map[string]any) {
	t.Helper()
	path := "/collections/products/docs"
	if id != "" {
		path += "?id=" + id
	}
	rec := doJSON(t, handler, http.MethodPost, path, doc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	report := decode[health.Report](t, rec)
	assert.Equal(t, health.StatusOK, report.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthReportsDown(t *testing.T) {
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	cfg := testConfig()
	m := metrics.New()
	checker := health.NewChecker()
	checker.Register("backend", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusDown, Message: "unreachable"}
	})
	h := New(reg, checker, m, cfg.Search, Options{})
	handler := NewRouter(h, m, cfg)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCollectionLifecycle(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/collections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]string](t, rec)
	assert.Equal(t, []string{"products"}, list["collections"])

	rec = doJSON(t, handler, http.MethodDelete, "/collections/products", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/collections", nil)
	list = decode[map[string][]string](t, rec)
	assert.Empty(t, list["collections"])
}

func TestCreateCollectionDuplicateIs400(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/collections", map[string]any{
		"name":   "products",
		"schema": map[string]any{"title": map[string]any{"type": "string"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCollectionInvalidSchema(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/collections", map[string]any{
		"name":   "bad",
		"schema": map[string]any{"title": map[string]any{"type": "blob"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/collections", map[string]any{
		"name":   "bad2",
		"schema": map[string]any{"title": map[string]any{"type": "string", "sortable": true}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCollectionMalformedBody(t *testing.T) {
	handler, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUnknownCollectionIs404(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodDelete, "/collections/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentCRUD(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/collections/products/docs?id=doc-1",
		map[string]any{"title": "Laptop Pro", "brand": "apex", "price": 999.0})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]string](t, rec)
	assert.Equal(t, "doc-1", created["id"])

	rec = doJSON(t, handler, http.MethodGet, "/collections/products/docs/doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "Laptop Pro", doc["title"])
	assert.Equal(t, "doc-1", doc["id"])

	rec = doJSON(t, handler, http.MethodPut, "/collections/products/docs/doc-1",
		map[string]any{"price": 899.0})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/collections/products/docs/doc-1", nil)
	doc = decode[map[string]any](t, rec)
	assert.Equal(t, 899.0, doc["price"])
	assert.Equal(t, "Laptop Pro", doc["title"])

	rec = doJSON(t, handler, http.MethodDelete, "/collections/products/docs/doc-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/collections/products/docs/doc-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddDocumentGeneratesID(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/collections/products/docs",
		map[string]any{"title": "anything"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]string](t, rec)
	assert.NotEmpty(t, created["id"])
}

func TestAddDocumentDuplicateIDIs409(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)
	addDoc(t, handler, "doc-1", map[string]any{"title": "first"})

	rec := doJSON(t, handler, http.MethodPost, "/collections/products/docs?id=doc-1",
		map[string]any{"title": "second"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDocumentRoutesOnUnknownCollection(t *testing.T) {
	handler, _ := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/collections/ghost/docs"},
		{http.MethodGet, "/collections/ghost/docs/x"},
		{http.MethodPut, "/collections/ghost/docs/x"},
		{http.MethodDelete, "/collections/ghost/docs/x"},
		{http.MethodPost, "/collections/ghost/search"},
	} {
		rec := doJSON(t, handler, tc.method, tc.path, map[string]any{})
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestSearchEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)
	addDoc(t, handler, "laptop-pro", map[string]any{"title": "Laptop Pro", "brand": "apex", "price": 1999.0})
	addDoc(t, handler, "laptop-air", map[string]any{"title": "Laptop Air", "brand": "apex", "price": 999.0})
	addDoc(t, handler, "phone", map[string]any{"title": "Phone Mini", "brand": "nimbus", "price": 499.0})

	rec := doJSON(t, handler, http.MethodPost, "/collections/products/search",
		map[string]any{"q": "laptop", "facets": []string{"brand"}})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[engine.Result](t, rec)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, map[string]int{"apex": 2}, result.Facets["brand"])
	for _, hit := range result.Hits {
		assert.NotNil(t, hit.Document)
	}
}

func TestSearchWithFilters(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)
	addDoc(t, handler, "a", map[string]any{"title": "widget", "brand": "apex", "price": 10.0})
	addDoc(t, handler, "b", map[string]any{"title": "widget", "brand": "nimbus", "price": 20.0})

	rec := doJSON(t, handler, http.MethodPost, "/collections/products/search", map[string]any{
		"q":       "widget",
		"filters": map[string]any{"price": map[string]any{"gte": 15.0}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[engine.Result](t, rec)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "b", result.Hits[0].ID)
}

func TestSearchClampsLimitAndTolerance(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)
	for i := 0; i < 15; i++ {
		addDoc(t, handler, fmt.Sprintf("doc-%02d", i), map[string]any{"title": "common token"})
	}

	// Default limit applies when none is given.
	rec := doJSON(t, handler, http.MethodPost, "/collections/products/search",
		map[string]any{"q": "common"})
	result := decode[engine.Result](t, rec)
	assert.Len(t, result.Hits, 10)
	assert.Equal(t, 15, result.Count)

	// An oversized limit is clamped to the configured maximum, not rejected.
	rec = doJSON(t, handler, http.MethodPost, "/collections/products/search",
		map[string]any{"q": "common", "limit": 100000})
	result = decode[engine.Result](t, rec)
	assert.Len(t, result.Hits, 15)

	// A typo finds nothing at clamped tolerance 0 but matches the fuzzy path
	// when tolerance survives the clamp.
	rec = doJSON(t, handler, http.MethodPost, "/collections/products/search",
		map[string]any{"q": "commom", "tolerance": -3})
	result = decode[engine.Result](t, rec)
	assert.Equal(t, 0, result.Count)

	rec = doJSON(t, handler, http.MethodPost, "/collections/products/search",
		map[string]any{"q": "commom", "tolerance": 9999})
	result = decode[engine.Result](t, rec)
	assert.Equal(t, 15, result.Count)
}

func TestSearchMalformedBody(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)
	req := httptest.NewRequest(http.MethodPost, "/collections/products/search",
		bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationsPersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.New(dir)
	require.NoError(t, err)
	cfg := testConfig()
	m := metrics.New()
	h := New(reg, health.NewChecker(), m, cfg.Search, Options{})
	handler := NewRouter(h, m, cfg)

	createProducts(t, handler)
	addDoc(t, handler, "doc-1", map[string]any{"title": "persistent widget"})

	// A fresh registry over the same directory sees the saved state.
	reg2, err := registry.New(dir)
	require.NoError(t, err)
	require.NoError(t, reg2.LoadAll(context.Background()))
	eng, err := reg2.Get("products")
	require.NoError(t, err)
	assert.Equal(t, 1, eng.DocCount())
}

func TestStatsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	createProducts(t, handler)
	addDoc(t, handler, "doc-1", map[string]any{"title": "one two three"})

	rec := doJSON(t, handler, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[statsResponse](t, rec)
	assert.Greater(t, stats.Process.Goroutines, 0)
	require.Contains(t, stats.Collections, "products")
	assert.Equal(t, 1, stats.Collections["products"].DocCount)
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_in_flight")
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerWindow: 2,
		Window:            time.Minute,
	}
	m := metrics.New()
	h := New(reg, health.NewChecker(), m, cfg.Search, Options{})
	handler := NewRouter(h, m, cfg)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/collections", nil)
		req.RemoteAddr = "10.1.2.3:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
