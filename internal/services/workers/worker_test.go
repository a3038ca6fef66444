package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/jobs"
)

type stubJobService struct {
	jobs.Service
	claimJob   *models.RenderJob
	claimErr   error
	failedWith *models.StructuredJobError
	jobState   models.JobState
}

func (s *stubJobService) ClaimNextJob(_ context.Context, _ string) (*models.RenderJob, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.claimJob, nil
}

func (s *stubJobService) FailJob(_ context.Context, _ uint, jobErr *models.StructuredJobError) error {
	s.failedWith = jobErr
	return nil
}

func (s *stubJobService) GetJob(_ context.Context, _ uint) (*models.RenderJob, error) {
	job := *s.claimJob
	job.State = s.jobState
	return &job, nil
}

type stubProcessor struct {
	err error
}

func (p *stubProcessor) ProcessJob(_ context.Context, _ *models.RenderJob) error {
	return p.err
}

type stubFailures struct {
	published []*models.RenderJob
}

func (f *stubFailures) PublishFailure(job *models.RenderJob) error {
	f.published = append(f.published, job)
	return nil
}

func testJob() *models.RenderJob {
	job := &models.RenderJob{PlanID: "plan-1", AssetID: "asset-1", State: models.JobStateValidating}
	job.ID = 7
	return job
}

func newTestWorker(svc jobs.Service, proc JobProcessor, failures FailureRecorder) *Worker {
	return NewWorker("worker-test", svc, proc, failures, NewActiveJobs(), time.Second, 0)
}

func TestProcessNextJobNoJobs(t *testing.T) {
	svc := &stubJobService{claimErr: jobs.ErrNoJobsAvailable}
	w := newTestWorker(svc, &stubProcessor{}, &stubFailures{})

	assert.NoError(t, w.processNextJob(context.Background()))
}

func TestProcessNextJobSuccess(t *testing.T) {
	svc := &stubJobService{claimJob: testJob()}
	w := newTestWorker(svc, &stubProcessor{}, &stubFailures{})

	require.NoError(t, w.processNextJob(context.Background()))
	assert.Nil(t, svc.failedWith)
}

func TestProcessNextJobCancelledIsNotFailure(t *testing.T) {
	svc := &stubJobService{claimJob: testJob()}
	w := newTestWorker(svc, &stubProcessor{err: context.Canceled}, &stubFailures{})

	assert.NoError(t, w.processNextJob(context.Background()))
	assert.Nil(t, svc.failedWith)
}

func TestProcessNextJobKeepsErrorTaxonomy(t *testing.T) {
	svc := &stubJobService{claimJob: testJob(), jobState: models.JobStateFailed}
	failures := &stubFailures{}
	jobErr := models.NewJobError(models.ErrorKindBuild, "graph_build", "bad graph", "", nil)
	w := newTestWorker(svc, &stubProcessor{err: jobErr}, failures)

	err := w.processNextJob(context.Background())
	require.Error(t, err)
	require.NotNil(t, svc.failedWith)
	assert.Equal(t, models.ErrorKindBuild, svc.failedWith.Kind)
	assert.Equal(t, "graph_build", svc.failedWith.Code)

	// Terminal failure publishes a failure record.
	require.Len(t, failures.published, 1)
	assert.Equal(t, models.JobStateFailed, failures.published[0].State)
}

func TestProcessNextJobWrapsPlainErrorsAsSystem(t *testing.T) {
	svc := &stubJobService{claimJob: testJob(), jobState: models.JobStateQueued}
	failures := &stubFailures{}
	w := newTestWorker(svc, &stubProcessor{err: assert.AnError}, failures)

	err := w.processNextJob(context.Background())
	require.Error(t, err)
	require.NotNil(t, svc.failedWith)
	assert.Equal(t, models.ErrorKindSystem, svc.failedWith.Kind)
	assert.Equal(t, "system_error", svc.failedWith.Code)

	// Requeued jobs do not get a failure record.
	assert.Empty(t, failures.published)
}

func TestActiveJobsCancel(t *testing.T) {
	active := NewActiveJobs()

	ctx, done := active.Track(context.Background(), 7)
	defer done()

	active.Cancel(7)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestActiveJobsDoneRemovesTracking(t *testing.T) {
	active := NewActiveJobs()

	ctx, done := active.Track(context.Background(), 7)
	done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// Cancelling an untracked job is a no-op.
	active.Cancel(7)
	active.Cancel(99)
}
