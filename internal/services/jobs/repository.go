package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clipforge/clipforge/internal/models"
)

// Repository errors
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrNoJobsAvailable = errors.New("no jobs available")
)

// claimBatch bounds how many queued rows a claim scan inspects; backoff
// filtering happens in Go, not SQL.
const claimBatch = 10

// Repository defines the interface for render job persistence
type Repository interface {
	CreateJob(ctx context.Context, job *models.RenderJob) error

	GetJob(ctx context.Context, id uint) (*models.RenderJob, error)
	GetJobByPlanID(ctx context.Context, planID string) (*models.RenderJob, error)
	GetJobsByAsset(ctx context.Context, assetID string, limit int) ([]*models.RenderJob, error)
	NextSeqForAsset(ctx context.Context, tx *gorm.DB, assetID string) (int64, error)
	MaxSeqForAsset(ctx context.Context, assetID string) (int64, error)

	ClaimNextJob(ctx context.Context, workerID string, minRetryDelay time.Duration) (*models.RenderJob, error)
	UpdateStage(ctx context.Context, jobID uint, state models.JobState, checkpoint models.JobCheckpoint) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobCheckpoint) error
	FailJob(ctx context.Context, jobID uint, jobErr *models.StructuredJobError, terminal bool) error
	RecordViolations(ctx context.Context, jobID uint, violations models.JobCheckpoint) error
	CancelOlderJobs(ctx context.Context, assetID string, seq int64) ([]uint, error)

	ReleaseStaleJobs(ctx context.Context, claimedBefore time.Time) (int64, error)
	DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error)

	// Transaction runs fn inside a database transaction.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new render job repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repository) CreateJob(ctx context.Context, job *models.RenderJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) GetJob(ctx context.Context, id uint) (*models.RenderJob, error) {
	var job models.RenderJob
	err := r.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return &job, nil
}

func (r *repository) GetJobByPlanID(ctx context.Context, planID string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := r.db.WithContext(ctx).Where("plan_id = ?", planID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job by plan: %w", err)
	}
	return &job, nil
}

func (r *repository) GetJobsByAsset(ctx context.Context, assetID string, limit int) ([]*models.RenderJob, error) {
	var jobs []*models.RenderJob
	query := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&jobs).Error
	return jobs, err
}

// NextSeqForAsset allocates the next per-asset sequence number inside the
// caller's transaction so concurrent enqueues cannot collide.
func (r *repository) NextSeqForAsset(ctx context.Context, tx *gorm.DB, assetID string) (int64, error) {
	var max int64
	err := tx.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("asset_id = ?", assetID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("allocating sequence: %w", err)
	}
	return max + 1, nil
}

func (r *repository) MaxSeqForAsset(ctx context.Context, assetID string) (int64, error) {
	var max int64
	err := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("asset_id = ?", assetID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	return max, err
}

// ClaimNextJob atomically claims the oldest eligible queued job. Jobs
// waiting out their retry backoff are skipped; checkpoints survive the
// claim so a resumed job re-enters mid-pipeline.
func (r *repository) ClaimNextJob(ctx context.Context, workerID string, minRetryDelay time.Duration) (*models.RenderJob, error) {
	var claimed *models.RenderJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []*models.RenderJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("state = ?", models.JobStateQueued).
			Order("created_at ASC").
			Limit(claimBatch).
			Find(&candidates).Error
		if err != nil {
			return fmt.Errorf("finding job to claim: %w", err)
		}

		var job *models.RenderJob
		for _, c := range candidates {
			if c.LastFailedAt == nil || c.CanRetryNow(minRetryDelay) {
				job = c
				break
			}
		}
		if job == nil {
			return ErrNoJobsAvailable
		}

		now := time.Now()
		updates := map[string]interface{}{
			"state":      models.JobStateValidating,
			"worker_id":  workerID,
			"started_at": &now,
		}
		if err := tx.Model(job).Updates(updates).Error; err != nil {
			return fmt.Errorf("updating claimed job: %w", err)
		}

		job.State = models.JobStateValidating
		job.WorkerID = workerID
		job.StartedAt = &now
		claimed = job
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateStage advances the state machine and persists the stage checkpoint
// in the same write. Cancelled jobs are never advanced; the zero
// RowsAffected tells the worker to stop.
func (r *repository) UpdateStage(ctx context.Context, jobID uint, state models.JobState, checkpoint models.JobCheckpoint) error {
	updates := map[string]interface{}{"state": state}
	if checkpoint != nil {
		updates["checkpoint"] = checkpoint
	}

	result := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND state NOT IN ?", jobID, []models.JobState{
			models.JobStateCancelled, models.JobStateDone, models.JobStateFailed,
		}).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating job stage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *repository) CompleteJob(ctx context.Context, jobID uint, result models.JobCheckpoint) error {
	now := time.Now()
	updates := map[string]interface{}{
		"state":        models.JobStateDone,
		"completed_at": &now,
		"result":       result,
		"worker_id":    "",
	}

	res := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ? AND state != ?", jobID, models.JobStateCancelled).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("completing job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FailJob records a failure. Non-terminal failures go back to queued with
// an incremented retry count; the claim path enforces the backoff.
func (r *repository) FailJob(ctx context.Context, jobID uint, jobErr *models.StructuredJobError, terminal bool) error {
	now := time.Now()

	var job models.RenderJob
	if err := r.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("finding job to fail: %w", err)
	}
	if job.State == models.JobStateCancelled {
		return nil
	}

	newRetryCount := job.RetryCount + 1
	state := models.JobStateQueued
	if terminal || newRetryCount >= job.MaxRetries {
		state = models.JobStateFailed
	}

	updates := map[string]interface{}{
		"state":          state,
		"error":          jobErr.Message,
		"error_kind":     string(jobErr.Kind),
		"error_code":     jobErr.Code,
		"error_details":  jobErr.Details,
		"last_failed_at": &now,
		"retry_count":    newRetryCount,
		"worker_id":      "",
	}
	if state == models.JobStateFailed {
		updates["completed_at"] = &now
	}

	if err := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ?", jobID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return nil
}

func (r *repository) RecordViolations(ctx context.Context, jobID uint, violations models.JobCheckpoint) error {
	result := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("id = ?", jobID).
		Update("violations", violations)
	if result.Error != nil {
		return fmt.Errorf("recording violations: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CancelOlderJobs cancels every non-terminal job for the asset with a
// sequence below seq and returns the affected IDs, so already-running
// pipelines can be interrupted.
func (r *repository) CancelOlderJobs(ctx context.Context, assetID string, seq int64) ([]uint, error) {
	var ids []uint

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobs []*models.RenderJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("asset_id = ? AND seq < ?", assetID, seq).
			Where("state NOT IN ?", []models.JobState{
				models.JobStateDone, models.JobStateFailed, models.JobStateCancelled,
			}).
			Find(&jobs).Error
		if err != nil {
			return fmt.Errorf("finding jobs to cancel: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}

		now := time.Now()
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		return tx.Model(&models.RenderJob{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"state":        models.JobStateCancelled,
				"completed_at": &now,
				"error":        "superseded by a newer plan for this asset",
				"error_kind":   "",
				"worker_id":    "",
			}).Error
	})

	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ReleaseStaleJobs requeues in-flight jobs claimed before the cutoff, e.g.
// after a worker crash. Checkpoints are kept so the next claim resumes.
func (r *repository) ReleaseStaleJobs(ctx context.Context, claimedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RenderJob{}).
		Where("state IN ?", []models.JobState{
			models.JobStateValidating, models.JobStateResolving, models.JobStateBuilding,
			models.JobStateRendering, models.JobStatePublishing,
		}).
		Where("started_at < ?", claimedBefore).
		Updates(map[string]interface{}{
			"state":      models.JobStateQueued,
			"worker_id":  "",
			"started_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("releasing stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *repository) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", olderThan).
		Where("state IN ?", []models.JobState{
			models.JobStateDone, models.JobStateFailed, models.JobStateCancelled,
		}).
		Delete(&models.RenderJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
