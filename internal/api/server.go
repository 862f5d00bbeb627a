package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/metrics"
	"github.com/fixgsm/fixgsm-server/internal/service"
)

// RESTServer represents the REST API server
type RESTServer struct {
	config  *config.Config
	svc     *service.Service
	auth    *auth.JWTManager
	metrics *metrics.Metrics
	router  chi.Router
	server  *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(cfg *config.Config, svc *service.Service, jwt *auth.JWTManager, m *metrics.Metrics) *RESTServer {
	if m == nil {
		m = metrics.New(cfg.Metrics.Namespace, nil)
	}
	s := &RESTServer{
		config:  cfg,
		svc:     svc,
		auth:    jwt,
		metrics: m,
		router:  chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	if s.config.Metrics.Enabled {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(middleware.Timeout(s.config.API.RequestTimeout))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.API.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Total-Count", "Content-Disposition"},
		MaxAge:         300,
	}))

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
