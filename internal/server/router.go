package server

import (
	"net/http"

	"github.com/searchlite/searchlite/pkg/config"
	"github.com/searchlite/searchlite/pkg/metrics"
	"github.com/searchlite/searchlite/pkg/middleware"
)

// NewRouter builds the full HTTP handler with all routes and middleware.
//
// Route table:
//
//	GET    /health                             server + component health
//	GET    /stats                              process and collection stats
//	GET    /metrics                            Prometheus scrape
//	GET    /collections                        list collection names
//	POST   /collections                        create collection
//	DELETE /collections/{name}                 drop collection
//	POST   /collections/{name}/search          run a query
//	GET    /collections/{name}/docs/{id}       fetch document
//	POST   /collections/{name}/docs            add document (?id= optional)
//	PUT    /collections/{name}/docs/{id}       partial update
//	DELETE /collections/{name}/docs/{id}       delete document
//
// Middleware chain (outermost first): RequestID → Metrics → RateLimit →
// Timeout → mux.
func NewRouter(h *Handler, m *metrics.Metrics, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /stats", h.Stats)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", m.Handler())
	}

	mux.HandleFunc("GET /collections", h.ListCollections)
	mux.HandleFunc("POST /collections", h.CreateCollection)
	mux.HandleFunc("DELETE /collections/{name}", h.DeleteCollection)

	mux.HandleFunc("POST /collections/{name}/search", h.Search)
	mux.HandleFunc("GET /collections/{name}/docs/{id}", h.GetDocument)
	mux.HandleFunc("POST /collections/{name}/docs", h.AddDocument)
	mux.HandleFunc("PUT /collections/{name}/docs/{id}", h.UpdateDocument)
	mux.HandleFunc("DELETE /collections/{name}/docs/{id}", h.DeleteDocument)

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewLimiter(cfg.RateLimit.Window)
		chain = middleware.RateLimit(limiter, cfg.RateLimit.RequestsPerWindow)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
