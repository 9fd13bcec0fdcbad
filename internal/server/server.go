// Package server exposes the caches and the synthesis proxy over HTTP so
// that several clients can share one cache.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/content"
	"github.com/telcprep/sprachcache/internal/speech"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Config configures the listener.
type Config struct {
	Addr        string
	CORSOrigins []string
	ReadTimeout time.Duration
}

// Deps are the services behind the routes.
type Deps struct {
	Store       *cache.Store
	Speech      *speech.Service
	Content     *content.Service
	Maintenance *cache.Maintenance
	Logger      *log.Logger
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	logger *log.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds the router. The server does not listen until Start.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default().WithPrefix("server")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}

	s := &Server{deps: deps, logger: deps.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	s.routes(r)
	s.engine = r

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{"Content-Type", "Retry-After", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/tts", s.handleTTS)

	c := v1.Group("/cache")
	c.GET("/stats", s.handleStats)
	c.POST("/evict", s.handleEvict)
	c.DELETE("/:ownerId", s.handlePurge)

	ct := v1.Group("/content/:contentType")
	ct.POST("/lookup", s.handleContentLookup)
	ct.PUT("", s.handleContentSave)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString("request_id"),
		}
		if last := c.Errors.Last(); last != nil {
			kv = append(kv, "error", last.Err)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("Request failed", kv...)
			return
		}
		s.logger.Debug("Request", kv...)
	}
}
