package types

import (
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/services/jobs"
)

// Dependencies holds all dependencies needed by API handlers
type Dependencies struct {
	DB         *database.DB
	JobService jobs.Service
}
