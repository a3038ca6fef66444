package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/api/health"
	"github.com/clipforge/clipforge/api/jobs"
	"github.com/clipforge/clipforge/api/types"
)

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once, rps, burst int) error {
	if deps == nil || deps.JobService == nil {
		return fmt.Errorf("job service dependency is required")
	}

	// Public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)

	engine.NoRoute(NotFoundHandler())

	v1 := engine.Group("/api/v1")
	if rps > 0 {
		v1.Use(PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, rps, burst))
	}
	jobs.RegisterRoutes(v1, deps)

	return nil
}
