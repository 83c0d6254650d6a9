// Package server implements the external HTTP interface: a single
// gin.Engine exposing the OpenAI, Anthropic, and Google wire dialects over
// the shared engine.Dispatcher, plus health/ready/metrics.
package server

import (
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/llmsim/simulator/internal/engine"
	"github.com/llmsim/simulator/internal/registry"
)

// Server bundles the gin engine with the dispatcher and admission gate it
// drives. Constructed once in main and never copied.
type Server struct {
	engine         *gin.Engine
	dispatcher     *engine.Dispatcher
	registry       *registry.Registry
	stats          *engine.Stats
	admission      *Admission
	requestTimeout time.Duration
	draining       atomic.Bool
}

// Config carries the knobs main.go resolves from internal/config before
// constructing a Server.
type Config struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	CORSOrigins           []string
}

func New(dispatcher *engine.Dispatcher, reg *registry.Registry, stats *engine.Stats, cfg Config) *Server {
	s := &Server{
		dispatcher:     dispatcher,
		registry:       reg,
		stats:          stats,
		admission:      NewAdmission(cfg.MaxConcurrentRequests),
		requestTimeout: cfg.RequestTimeout,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogging())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Api-Key", "X-Goog-Api-Key"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.mount(r)
	s.engine = r
	return s
}

func (s *Server) mount(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/chat/completions", s.handleOpenAI)
	v1.POST("/embeddings", s.handleOpenAI)
	v1.GET("/models", s.listModels)
	v1.GET("/models/:id", s.getModel)
	v1.POST("/messages", s.handleAnthropic)
	v1.POST("/models/:modelAndMethod", s.handleGoogle)

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", s.metrics)
}

func (s *Server) Handler() *gin.Engine { return s.engine }

// SetDraining flips the readiness gate main.go uses during graceful
// shutdown: /ready starts reporting unavailable immediately so a load
// balancer stops sending new traffic while in-flight requests finish.
func (s *Server) SetDraining(v bool) { s.draining.Store(v) }
