package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	// writeTimeout must exceed the longest facade budget (add_resource)
	// so a slow ingest degrades inside the handler, not at the socket.
	writeTimeout = 150 * time.Second
)

// KnowledgeBase is the facade surface the HTTP layer serves. Every
// method returns a display string; degraded conditions are strings too,
// so handlers only branch on readiness.
type KnowledgeBase interface {
	Ready() bool
	Search(ctx context.Context, query string, limit int) string
	Find(ctx context.Context, query string, limit int) string
	AddResource(ctx context.Context, path string) string
	AddMemory(ctx context.Context, content string) string
	RecordSession(ctx context.Context, title string) string
	ListDirectory(ctx context.Context, uri string) string
	Read(ctx context.Context, uri string) string
	Abstract(ctx context.Context, uri string) string
	ListSessions(ctx context.Context) string
	RetrieveContext(ctx context.Context, query string, limit int) string
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router *chi.Mux
	kb     KnowledgeBase
	logger *slog.Logger
	addr   string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, kb KnowledgeBase, logger *slog.Logger) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		kb:     kb,
		logger: logger,
		addr:   addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/api/kb", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/search", s.handleSearch)
		r.Post("/find", s.handleFind)
		r.Post("/add", s.handleAdd)
		r.Post("/memory", s.handleAddMemory)
		r.Get("/ls", s.handleListDirectory)
		r.Get("/read", s.handleRead)
		r.Get("/abstract", s.handleAbstract)
		r.Get("/sessions", s.handleSessions)
		r.Post("/sessions", s.handleRecordSession)
		r.Post("/retrieve", s.handleRetrieveContext)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
