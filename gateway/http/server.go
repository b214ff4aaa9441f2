package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/health"
	"github.com/wahidkadwaikar/sync-storage/identity"
	"github.com/wahidkadwaikar/sync-storage/metric"
	"github.com/wahidkadwaikar/sync-storage/service"
	"github.com/wahidkadwaikar/sync-storage/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	// bodySlack covers the JSON envelope around a value: key, quoting,
	// option fields. Values themselves are bounded by the service limits.
	bodySlack = 64 * 1024
)

// ServerConfig carries the edge wiring. Metrics may be nil when the scrape
// endpoint is disabled; Backend must match the health checker's component
// name so readiness reads the right probe.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
	Service     *service.Service
	Resolver    *identity.Resolver
	Monitor     *health.Monitor
	Backend     string
	Metrics     *metric.Metrics
	Logger      *slog.Logger
}

// Server is the HTTP edge in front of the storage service.
type Server struct {
	addr        string
	corsOrigins []string
	service     *service.Service
	resolver    *identity.Resolver
	monitor     *health.Monitor
	backend     string
	metrics     *metric.Metrics
	logger      *slog.Logger

	server *http.Server
}

// NewServer wires the edge.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:        cfg.Addr,
		corsOrigins: cfg.CORSOrigins,
		service:     cfg.Service,
		resolver:    cfg.Resolver,
		monitor:     cfg.Monitor,
		backend:     cfg.Backend,
		metrics:     cfg.Metrics,
		logger:      logger.With("component", "http"),
	}
}

// routes builds the full handler chain. Split out from Start so tests can
// exercise the edge through httptest without binding a port.
func (s *Server) routes() http.Handler {
	limits := s.service.Limits()
	itemBody := int64(limits.MaxValueBytes) + bodySlack
	batchBody := int64(limits.MaxBatchSize)*int64(limits.MaxValueBytes) + bodySlack

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/readyz", s.handleReadyz)

	mux.Handle("PUT /v1/items/{key}", s.scoped(s.handlePutItem, itemBody))
	mux.Handle("GET /v1/items/{key}", s.scoped(s.handleGetItem, 0))
	mux.Handle("DELETE /v1/items/{key}", s.scoped(s.handleDeleteItem, 0))

	// ":batchGet" and ":batchPut" are plain path segments, so they never
	// collide with the {key} pattern above.
	mux.Handle("POST /v1/items:batchGet", s.scoped(s.handleBatchGet, batchBody))
	mux.Handle("POST /v1/items:batchPut", s.scoped(s.handleBatchPut, batchBody))

	mux.Handle("GET /v1/items", s.scoped(s.handleListItems, 0))

	var handler http.Handler = mux
	handler = s.observe(handler)
	handler = s.cors(handler)
	handler = withRequestID(handler)
	return handler
}

// scopedHandler is an item handler that runs with a resolved scope.
type scopedHandler func(w http.ResponseWriter, r *http.Request, scope types.Scope)

// scoped authenticates the request, resolves the scope and caps the body
// before invoking the handler. maxBody 0 means the route takes no body.
func (s *Server) scoped(handler scopedHandler, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, err := s.resolver.Resolve(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		handler(w, r, scope)
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if s.server != nil {
		return errors.New(errors.KindValidation, "http", "Start", "server already running")
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.logger.Info("http server starting", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapInternal(err, "http", "Start", "listen on "+s.addr)
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by shutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapInternal(err, "http", "Shutdown", "drain connections")
	}
	return nil
}
