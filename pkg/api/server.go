package api

import (
	"context"
	"fmt"
	"geosql/pkg/function"
	"log/slog"
	"net/http"
)

// APIServer represents the REST API server
type APIServer struct {
	table   *function.Table
	metrics http.Handler
	logger  *slog.Logger
	port    int
	server  *http.Server
}

// NewAPIServer creates a new API server instance. metrics may be nil, in
// which case /metrics is not served.
func NewAPIServer(table *function.Table, metrics http.Handler, port int, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIServer{
		table:   table,
		metrics: metrics,
		logger:  logger,
		port:    port,
	}
}

// Handler builds the route table.
func (s *APIServer) Handler() http.Handler {
	handler := NewAPIHandler(s.table, s.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/functions", handler.ListFunctionsHandler)
	mux.HandleFunc("/api/v1/functions/{name}", handler.CallFunctionHandler)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start starts the REST API server
func (s *APIServer) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info("starting REST API server", "port", s.port)
	return s.server.ListenAndServe()
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
