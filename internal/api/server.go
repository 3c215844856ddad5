// Package api provides the operations server: gRPC health and reflection,
// Prometheus metrics, the order journal over HTTP, and a WebSocket feed of
// realtime order updates.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"finvasia/internal/metrics"
	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

const shutdownTimeout = 15 * time.Second

// SessionStatus is the view of the realtime session the server reports.
type SessionStatus interface {
	State() finvasia.State
	LastActivity() time.Time
}

// Options configures a Server. Nil dependencies disable the routes that
// need them.
type Options struct {
	HTTPAddr       string
	GRPCAddr       string
	Journal        store.OrderJournal
	Metrics        *metrics.Metrics
	Session        SessionStatus
	Hub            *Hub
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server hosts the HTTP and gRPC listeners.
type Server struct {
	opts       Options
	logger     *zap.Logger
	router     *mux.Router
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
}

// NewServer creates a Server with health and reflection registered and all
// HTTP routes mounted.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:   opts,
		logger: logger,
		router: mux.NewRouter(),
	}
	s.grpcServer, s.health = newGRPCServer()
	s.setupRoutes()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.httpServer = &http.Server{
		Addr:              opts.HTTPAddr,
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Hub != nil {
		s.router.HandleFunc("/ws", s.opts.Hub.HandleWebSocket)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/updates", s.handleListUpdates).Methods(http.MethodGet)
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GRPC returns the gRPC server so callers can register more services
// before ListenAndServe.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// SetServing flips the overall gRPC health status.
func (s *Server) SetServing(serving bool) {
	setServing(s.health, serving)
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a listener fails. Shutdown is graceful.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.opts.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.opts.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen gRPC: %w", err)
		}
		go func() {
			s.logger.Info("gRPC server starting", zap.String("addr", s.opts.GRPCAddr))
			if err := s.grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", s.opts.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case runErr = <-errCh:
	}
	s.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}
