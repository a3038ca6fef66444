package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/clipforge/clipforge/internal/models"
)

const defaultMaxRetries = 3

// service implements Service on top of Repository
type service struct {
	repo          Repository
	minRetryDelay time.Duration
}

// NewService creates a new render job service. minRetryDelay seeds the
// exponential backoff applied when reclaiming failed jobs.
func NewService(repo Repository, minRetryDelay time.Duration) Service {
	return &service{repo: repo, minRetryDelay: minRetryDelay}
}

// EnqueueJob creates a queued job for a plan, allocating the next per-asset
// sequence number. If the plan was already enqueued the existing job is
// returned with created=false; submitting the same plan twice is a no-op.
func (s *service) EnqueueJob(ctx context.Context, planID, assetID, planPath string, opts ...JobOption) (*models.RenderJob, bool, error) {
	if planID == "" || assetID == "" {
		return nil, false, errors.New("plan id and asset id are required")
	}

	cfg := &jobConfig{MaxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(cfg)
	}

	if existing, err := s.repo.GetJobByPlanID(ctx, planID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrJobNotFound) {
		return nil, false, err
	}

	job := &models.RenderJob{
		PlanID:     planID,
		AssetID:    assetID,
		PlanPath:   planPath,
		State:      models.JobStateQueued,
		MaxRetries: cfg.MaxRetries,
	}

	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		seq, err := s.repo.NextSeqForAsset(ctx, tx, assetID)
		if err != nil {
			return err
		}
		job.Seq = seq
		return tx.Create(job).Error
	})
	if err != nil {
		// A concurrent enqueue of the same plan loses the unique-index race;
		// surface the winner instead of the constraint error.
		if existing, getErr := s.repo.GetJobByPlanID(ctx, planID); getErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("enqueueing job for plan %s: %w", planID, err)
	}

	log.Printf("enqueued render job %d for plan %s (asset %s, seq %d)", job.ID, planID, assetID, job.Seq)
	return job, true, nil
}

func (s *service) GetJob(ctx context.Context, jobID uint) (*models.RenderJob, error) {
	return s.repo.GetJob(ctx, jobID)
}

func (s *service) GetJobByPlanID(ctx context.Context, planID string) (*models.RenderJob, error) {
	return s.repo.GetJobByPlanID(ctx, planID)
}

func (s *service) GetJobsByAsset(ctx context.Context, assetID string, limit int) ([]*models.RenderJob, error) {
	return s.repo.GetJobsByAsset(ctx, assetID, limit)
}

func (s *service) ClaimNextJob(ctx context.Context, workerID string) (*models.RenderJob, error) {
	return s.repo.ClaimNextJob(ctx, workerID, s.minRetryDelay)
}

func (s *service) UpdateStage(ctx context.Context, jobID uint, state models.JobState, checkpoint models.JobCheckpoint) error {
	return s.repo.UpdateStage(ctx, jobID, state, checkpoint)
}

func (s *service) CompleteJob(ctx context.Context, jobID uint, result models.JobCheckpoint) error {
	return s.repo.CompleteJob(ctx, jobID, result)
}

// FailJob persists a failure using the error taxonomy to decide whether the
// job may retry. Deterministic failures (bad plan, impossible graph, a
// render the executor already classified) fail terminally; publish and
// system failures requeue under the retry cap.
func (s *service) FailJob(ctx context.Context, jobID uint, jobErr *models.StructuredJobError) error {
	terminal := false
	switch jobErr.Kind {
	case models.ErrorKindValidation, models.ErrorKindResolution, models.ErrorKindBuild, models.ErrorKindRender:
		terminal = true
	}
	return s.repo.FailJob(ctx, jobID, jobErr, terminal)
}

func (s *service) RecordViolations(ctx context.Context, jobID uint, violations models.JobCheckpoint) error {
	return s.repo.RecordViolations(ctx, jobID, violations)
}

func (s *service) CancelOlderJobs(ctx context.Context, assetID string, seq int64) ([]uint, error) {
	ids, err := s.repo.CancelOlderJobs(ctx, assetID, seq)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.Printf("superseded %d older job(s) for asset %s below seq %d", len(ids), assetID, seq)
	}
	return ids, nil
}

// IsLatestForAsset is the publish gate: it reports whether seq is still the
// newest sequence recorded for the asset.
func (s *service) IsLatestForAsset(ctx context.Context, assetID string, seq int64) (bool, error) {
	max, err := s.repo.MaxSeqForAsset(ctx, assetID)
	if err != nil {
		return false, err
	}
	return seq >= max, nil
}

func (s *service) ReleaseStaleJobs(ctx context.Context, claimedBefore time.Time) (int64, error) {
	released, err := s.repo.ReleaseStaleJobs(ctx, claimedBefore)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		log.Printf("released %d stale job(s) back to the queue", released)
	}
	return released, nil
}

func (s *service) CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return s.repo.DeleteOldJobs(ctx, cutoff)
}
