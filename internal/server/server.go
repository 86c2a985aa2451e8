// Package server exposes the engine over HTTP: the streaming chat endpoint
// plus the auxiliary health, catalog, cache and non-streaming insight
// routes.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insight-engine/internal/cache"
	"insight-engine/internal/catalog"
	"insight-engine/internal/common/config"
	"insight-engine/internal/common/database"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/memory"
	"insight-engine/internal/pipeline"
)

// Server wires the engine components to HTTP routes.
type Server struct {
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	memory *memory.Store
	cat    *catalog.Catalog
	cache  *cache.ResultCache
	pg     *database.PostgresClient
	logger logger.Logger
	clock  func() time.Time
}

func New(cfg *config.Config, orch *pipeline.Orchestrator, mem *memory.Store, cat *catalog.Catalog, resultCache *cache.ResultCache, pg *database.PostgresClient, log logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		orch:   orch,
		memory: mem,
		cat:    cat,
		cache:  resultCache,
		pg:     pg,
		logger: log.With(map[string]interface{}{"component": "server"}),
		clock:  time.Now,
	}
}

// WithClock overrides the request clock. Tests only.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// Routes returns the HTTP handler with every route mounted.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/queries", s.handleQueries)
	mux.HandleFunc("POST /api/insights/run", s.handleInsightsRun)
	mux.HandleFunc("POST /api/cache/invalidate", s.handleCacheInvalidate)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) deadline() time.Duration {
	return time.Duration(s.cfg.Engine.RequestDeadlineSeconds) * time.Second
}
