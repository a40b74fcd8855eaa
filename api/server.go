package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/taskboard/config"
	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/metrics"
)

// Subscription declares one broker topic this service wants pushed to a
// local route.
type Subscription struct {
	PubsubName string `json:"pubsub_name"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// Server is the HTTP server shared by every service process. Consumer
// routes, the subscription declaration and operational endpoints are wired
// here; service-specific routes are registered by the callers.
type Server struct {
	cfg           config.Config
	router        *gin.Engine
	httpServer    *http.Server
	db            *gorm.DB
	metrics       *metrics.Metrics
	subscriptions []Subscription
}

// NewServer creates an HTTP server with the standard middleware and
// operational endpoints
func NewServer(cfg config.Config, db *gorm.DB, m *metrics.Metrics) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		cfg:     cfg,
		router:  gin.New(),
		db:      db,
		metrics: m,
	}

	server.router.Use(RequestIDMiddleware())
	server.router.Use(gin.Recovery())
	server.router.Use(LoggingMiddleware())

	server.router.GET("/health", server.health)
	server.router.GET("/readyz", server.ready)
	server.router.GET("/metrics", server.metricsSnapshot)
	server.router.GET("/subscriptions", server.listSubscriptions)

	return server
}

// Router exposes the underlying router for service-specific routes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// RegisterConsumer exposes a consumer at POST /events/{route} and declares
// its topic subscription. The endpoint always answers 200 with the
// tri-state result; the broker inspects the body, not the status code.
func (s *Server) RegisterConsumer(route, topic string, cons *consumer.Consumer) {
	s.subscriptions = append(s.subscriptions, Subscription{
		PubsubName: s.cfg.Broker.PubsubName,
		Topic:      topic,
		Route:      "/events/" + route,
	})

	s.router.POST("/events/"+route, func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusOK, consumer.Result{Status: consumer.StatusDrop})
			return
		}
		c.JSON(http.StatusOK, cons.Consume(c.Request.Context(), body))
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": s.cfg.ServiceName})
}

func (s *Server) ready(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "service": s.cfg.ServiceName})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "service": s.cfg.ServiceName})
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	values, uptime := s.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{"uptime_seconds": uptime, "counters": values})
}

func (s *Server) listSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, s.subscriptions)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ServerAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ServerTimeout,
		WriteTimeout: s.cfg.ServerTimeout,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.ServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
