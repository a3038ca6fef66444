package jobs

import (
	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipforge/api/types"
)

// RegisterRoutes registers job status routes on the given group
func RegisterRoutes(group *gin.RouterGroup, deps *types.Dependencies) {
	group.GET("/jobs/:planID", GetByPlanID(deps))
	group.GET("/assets/:assetID/jobs", ListByAsset(deps))
}
