package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"

	"github.com/hupe1980/paymesh"
	"github.com/hupe1980/paymesh/config"
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
)

// Options configure the HTTP server.
type Options struct {
	// Logger receives access logs and handler diagnostics.
	Logger logging.Logger
	// Version is reported by the health endpoint.
	Version string
}

// Server serves the payment pipeline over HTTP.
type Server struct {
	mesh    *paymesh.PayMesh
	cfg     config.ServerConfig
	logger  logging.Logger
	version string

	httpServer *http.Server
}

// New creates the HTTP server around an assembled PayMesh instance.
func New(mesh *paymesh.PayMesh, cfg config.ServerConfig, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Version: "dev",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{
		mesh:    mesh,
		cfg:     cfg,
		logger:  opts.Logger,
		version: opts.Version,
	}
}

// Router builds the route table with the standard middleware chain.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)

	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/cleanup", s.handleCleanupSessions).Methods(http.MethodPost)
	r.HandleFunc("/sessions/stats", s.handleSessionStats).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", s.mesh.Metrics().Handler()).Methods(http.MethodGet)

	r.Use(s.accessLogMiddleware, requestIDMiddleware, s.recoverMiddleware)

	return r
}

// Start listens on the configured address and blocks until the context
// is cancelled or serving fails. Cancellation triggers a graceful
// shutdown bounded by the configured timeout; serve and shutdown errors
// are aggregated.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return core.WrapError(core.KindConfiguration, err, "failed to listen on %s", s.httpServer.Addr)
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info("server.shutting_down", "timeout", s.cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		shutdownErr <- s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("server.listening", "addr", ln.Addr().String())

	serveErr := s.httpServer.Serve(ln)

	var result *multierror.Error
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		result = multierror.Append(result, serveErr)
	}

	if ctx.Err() != nil {
		if err := <-shutdownErr; err != nil {
			result = multierror.Append(result, core.WrapError(core.KindInternal, err, "graceful shutdown failed"))
		}
	}

	return result.ErrorOrNil()
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr()
}
