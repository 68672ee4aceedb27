// Package httpapi wraps the prove pipeline, model registry, and receipt
// store in the net/http request surface from spec.md §6, following the
// teacher's own RPC server style (pkg/rpc/server.go): a thin ServeMux
// dispatching to one handler function per operation, JSON in and out.
package httpapi

import (
	"net/http"
	"time"

	"github.com/zkreceipt/receipt-service/internal/log"
	"github.com/zkreceipt/receipt-service/internal/metrics"
	"github.com/zkreceipt/receipt-service/internal/modelpkg"
	"github.com/zkreceipt/receipt-service/internal/preprocess"
	"github.com/zkreceipt/receipt-service/internal/prove"
	"github.com/zkreceipt/receipt-service/internal/ratelimit"
	"github.com/zkreceipt/receipt-service/internal/receipts"
)

var logger = log.Module("httpapi")

// Limiters bundles the three per-endpoint rate limiters named in
// spec.md §4.7.
type Limiters struct {
	SubmitProof *ratelimit.Limiter
	Batch       *ratelimit.Limiter
	Upload      *ratelimit.Limiter
}

// Server holds every dependency a handler needs: the registry and
// preprocessing cache (for model listing/upload), the receipt store,
// the prove pipeline, and boundary-only concerns (CORS, rate limits).
// This is the single composite application-state value spec.md §9
// asks for — no package-level mutable globals.
type Server struct {
	Registry    *modelpkg.Registry
	Cache       *preprocess.Cache
	Store       *receipts.Store
	Pipeline    *prove.Pipeline
	Limiters    Limiters
	CORSOrigins string
	BaseURL     string

	// UploadedModelsDir is where POST /models/upload writes new model
	// directories, distinct from the registry's base scan directory.
	UploadedModelsDir string

	startedAt time.Time
	mux       *http.ServeMux

	requestsTotal   *metrics.Counter
	metricsExporter http.Handler
}

// NewServer wires every route from spec.md §6 plus the supplemented
// /health and /metrics endpoints onto a fresh ServeMux.
func NewServer(s *Server) *Server {
	s.startedAt = time.Now()
	s.mux = http.NewServeMux()
	s.requestsTotal = metrics.DefaultRegistry.Counter("http_requests_total")
	s.metricsExporter = metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig()).Handler()

	s.mux.HandleFunc("GET /models", s.withLogging(s.handleListModels))
	s.mux.HandleFunc("POST /prove", s.withLogging(withCORS(s.CORSOrigins, rateLimited(s.Limiters.SubmitProof, s.handleSubmitProof))))
	s.mux.HandleFunc("POST /prove/batch", s.withLogging(withCORS(s.CORSOrigins, rateLimited(s.Limiters.Batch, s.handleSubmitBatch))))
	s.mux.HandleFunc("GET /receipt/{id}", s.withLogging(withCORS(s.CORSOrigins, s.handleGetReceipt)))
	s.mux.HandleFunc("POST /verify", s.withLogging(withCORS(s.CORSOrigins, s.handleVerify)))
	s.mux.HandleFunc("GET /recent", s.withLogging(s.handleRecent))
	s.mux.HandleFunc("GET /stats", s.withLogging(s.handleStats))
	s.mux.HandleFunc("POST /models/upload", s.withLogging(withCORS(s.CORSOrigins, rateLimited(s.Limiters.Upload, s.handleUploadModel))))
	s.mux.HandleFunc("POST /prove/model", s.withLogging(withCORS(s.CORSOrigins, rateLimited(s.Limiters.Upload, s.handleUploadAndProve))))
	s.mux.HandleFunc("GET /health", s.withLogging(s.handleHealth))
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)

	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// withLogging counts the request and logs its method, path and latency at
// debug level. The response status is not logged: this wrapper has no
// response recorder and cannot see what the handler wrote.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.requestsTotal.Inc()
		next(w, r)
		logger.Debug("request handled", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	}
}
