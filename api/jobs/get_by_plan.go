package jobs

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/api/types"
	jobsService "github.com/clipforge/clipforge/internal/services/jobs"
)

// GetByPlanID returns the render job for a plan id, including its error
// taxonomy, validation violations, and result when present.
func GetByPlanID(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		planID := c.Param("planID")
		if planID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "plan id is required"})
			return
		}

		job, err := deps.JobService.GetJobByPlanID(c.Request.Context(), planID)
		if err != nil {
			if errors.Is(err, jobsService.ErrJobNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no job for plan " + planID})
				return
			}
			log.Printf("Failed to get job for plan %s: %v", planID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
			return
		}

		c.JSON(http.StatusOK, JobResponse(job))
	}
}
