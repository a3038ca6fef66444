package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/api/types"
	"github.com/clipforge/clipforge/pkg/config"
)

// Server is the HTTP status-query surface. Read-only: plans enter the
// pipeline through the plan directory, never through this API.
type Server struct {
	engine             *gin.Engine
	httpServer         *http.Server
	rateLimiters       *sync.Map
	cleanupInitialized sync.Once
	cleanupStop        chan struct{}
	rateLimitRPS       int
	rateLimitBurst     int

	dependencies *types.Dependencies
}

// NewServer creates a new HTTP server
func NewServer(address string, cfg config.ServerConfig) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		engine:         engine,
		rateLimiters:   &sync.Map{},
		cleanupStop:    make(chan struct{}),
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
		httpServer: &http.Server{
			Addr:           address,
			Handler:        engine,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    30 * time.Second,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
	}
}

// SetDependencies sets all handler dependencies
func (s *Server) SetDependencies(deps *types.Dependencies) {
	s.dependencies = deps
}

// Engine returns the Gin engine for testing
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Initialize sets up middleware and routes
func (s *Server) Initialize() error {
	s.engine.Use(gin.Logger())
	s.engine.Use(CORS())
	s.engine.Use(RequestSizeLimit())

	return RegisterRoutes(s.engine, s.dependencies, s.rateLimiters, s.cleanupStop, &s.cleanupInitialized, s.rateLimitRPS, s.rateLimitBurst)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.cleanupStop)
	return s.httpServer.Shutdown(ctx)
}
