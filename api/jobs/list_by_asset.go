package jobs

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/api/types"
	"github.com/clipforge/clipforge/internal/models"
)

const defaultListLimit = 20

// ListByAsset returns the render jobs for an asset, newest plan first.
func ListByAsset(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID := c.Param("assetID")
		if assetID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "asset id is required"})
			return
		}

		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 100 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
				return
			}
			limit = parsed
		}

		jobs, err := deps.JobService.GetJobsByAsset(c.Request.Context(), assetID, limit)
		if err != nil {
			log.Printf("Failed to list jobs for asset %s: %v", assetID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
			return
		}

		items := make([]gin.H, len(jobs))
		for i, job := range jobs {
			items[i] = JobResponse(job)
		}
		c.JSON(http.StatusOK, gin.H{
			"asset_id": assetID,
			"count":    len(items),
			"jobs":     items,
		})
	}
}

// JobResponse shapes a job row for API consumers.
func JobResponse(job *models.RenderJob) gin.H {
	resp := gin.H{
		"job_id":      job.ID,
		"plan_id":     job.PlanID,
		"asset_id":    job.AssetID,
		"state":       job.State,
		"seq":         job.Seq,
		"retry_count": job.RetryCount,
		"created_at":  job.CreatedAt,
	}
	if job.StartedAt != nil {
		resp["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = job.CompletedAt
	}
	if job.Error != "" {
		resp["error"] = gin.H{
			"kind":    job.ErrorKind,
			"code":    job.ErrorCode,
			"message": job.Error,
			"details": job.ErrorDetails,
		}
	}
	if len(job.Violations) > 0 {
		resp["violations"] = job.Violations
	}
	if len(job.Result) > 0 {
		resp["result"] = job.Result
	}
	return resp
}
