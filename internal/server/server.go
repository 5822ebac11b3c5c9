// Package server exposes the configuration engine and diagnostics over
// HTTP for the UI and API consumers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opencfg/internal/config"
	"opencfg/internal/diagnostics"
	"opencfg/internal/logging"
)

// Config holds the HTTP server settings.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         3000,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ConfigFromEffective derives server settings from a resolved snapshot.
func ConfigFromEffective(cfg *config.EffectiveConfig) Config {
	out := DefaultConfig()
	out.Host = cfg.String("server.host")
	out.Port = int(cfg.Int("server.port"))
	return out
}

// Server wires the engine and the diagnostics aggregator into a gin
// router with a websocket event stream and Prometheus metrics.
type Server struct {
	engine     *config.Engine
	aggregator *diagnostics.Aggregator
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
	cfg        Config
}

// New builds the server. Callers that want engine measurements on
// /metrics create the registry first, register a Metrics on it, and hand
// that Metrics to the engine as its Instrumentation.
func New(engine *config.Engine, aggregator *diagnostics.Aggregator, cfg Config, logger logging.Logger, registry *prometheus.Registry) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
		corsConfig.AllowWebSockets = true
		router.Use(cors.New(corsConfig))
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s := &Server{
		engine:     engine,
		aggregator: aggregator,
		router:     router,
		logger:     logging.OrNop(logger),
		cfg:        cfg,
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handlePutConfig)
		api.POST("/config/validate", s.handleValidateConfig)
		api.GET("/config/events", s.handleEvents)
		api.GET("/diagnostics", s.handleDiagnostics)
	}

	return s
}

// Router returns the underlying gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("http server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
