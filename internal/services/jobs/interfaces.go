package jobs

import (
	"context"
	"time"

	"github.com/clipforge/clipforge/internal/models"
)

// Service defines the business logic interface for render job operations
type Service interface {
	// Enqueue operations. EnqueueJob is idempotent on plan ID: re-submitting
	// a plan returns the existing job instead of creating a duplicate.
	EnqueueJob(ctx context.Context, planID, assetID, planPath string, opts ...JobOption) (*models.RenderJob, bool, error)

	// Status and retrieval
	GetJob(ctx context.Context, jobID uint) (*models.RenderJob, error)
	GetJobByPlanID(ctx context.Context, planID string) (*models.RenderJob, error)
	GetJobsByAsset(ctx context.Context, assetID string, limit int) ([]*models.RenderJob, error)

	// Worker operations (used by the worker pool)
	ClaimNextJob(ctx context.Context, workerID string) (*models.RenderJob, error)
	UpdateStage(ctx context.Context, jobID uint, state models.JobState, checkpoint models.JobCheckpoint) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobCheckpoint) error
	FailJob(ctx context.Context, jobID uint, jobErr *models.StructuredJobError) error
	RecordViolations(ctx context.Context, jobID uint, violations models.JobCheckpoint) error

	// Supersede and publish-gate support
	CancelOlderJobs(ctx context.Context, assetID string, seq int64) ([]uint, error)
	IsLatestForAsset(ctx context.Context, assetID string, seq int64) (bool, error)

	// Maintenance
	ReleaseStaleJobs(ctx context.Context, claimedBefore time.Time) (int64, error)
	CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error)
}

// JobOption is a functional option for configuring jobs
type JobOption func(*jobConfig)

type jobConfig struct {
	MaxRetries int
}

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(retries int) JobOption {
	return func(cfg *jobConfig) {
		cfg.MaxRetries = retries
	}
}
