package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/jobs"
)

// JobProcessor runs one claimed job through the pipeline. A returned
// *models.StructuredJobError carries the failure taxonomy; any other error
// is treated as a system failure.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.RenderJob) error
}

// FailureRecorder publishes a terminal-failure artifact so downstream
// consumers see the outcome without querying the API.
type FailureRecorder interface {
	PublishFailure(job *models.RenderJob) error
}

// ActiveJobs tracks the cancel function of every job currently being
// processed, so the coordinator can interrupt superseded work mid-render.
type ActiveJobs struct {
	mu      sync.Mutex
	cancels map[uint]context.CancelFunc
}

func NewActiveJobs() *ActiveJobs {
	return &ActiveJobs{cancels: make(map[uint]context.CancelFunc)}
}

// Track derives a cancellable context for a job. The returned done func
// must be called when processing ends.
func (a *ActiveJobs) Track(ctx context.Context, jobID uint) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[jobID] = cancel
	a.mu.Unlock()

	return ctx, func() {
		a.mu.Lock()
		delete(a.cancels, jobID)
		a.mu.Unlock()
		cancel()
	}
}

// Cancel interrupts the job if it is currently being processed.
func (a *ActiveJobs) Cancel(jobID uint) {
	a.mu.Lock()
	cancel, ok := a.cancels[jobID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
}

// Worker is a background worker that claims and processes render jobs
type Worker struct {
	id           string
	jobService   jobs.Service
	processor    JobProcessor
	failures     FailureRecorder
	active       *ActiveJobs
	pollInterval time.Duration
	jobTimeout   time.Duration
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(id string, jobService jobs.Service, processor JobProcessor, failures FailureRecorder, active *ActiveJobs, pollInterval, jobTimeout time.Duration) *Worker {
	return &Worker{
		id:           id,
		jobService:   jobService,
		processor:    processor,
		failures:     failures,
		active:       active,
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
		stopChan:     make(chan struct{}),
	}
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log.Printf("Worker %s starting", w.id)
	defer log.Printf("Worker %s stopped", w.id)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx); err != nil {
				log.Printf("Worker %s: error processing job: %v", w.id, err)
			}
		}
	}
}

// processNextJob claims and processes the next available job
func (w *Worker) processNextJob(ctx context.Context) error {
	job, err := w.jobService.ClaimNextJob(ctx, w.id)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJobsAvailable) {
			return nil
		}
		return fmt.Errorf("claiming job: %w", err)
	}

	log.Printf("Worker %s claimed job %d (plan %s)", w.id, job.ID, job.PlanID)

	jobCtx, done := w.active.Track(ctx, job.ID)
	defer done()
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.jobTimeout)
		defer cancel()
	}

	err = w.processor.ProcessJob(jobCtx, job)
	if err == nil {
		log.Printf("Worker %s completed job %d", w.id, job.ID)
		return nil
	}

	// A superseded job is cancelled, not failed; its row was already
	// finalized by the cancel path.
	if errors.Is(err, context.Canceled) {
		log.Printf("Worker %s: job %d cancelled", w.id, job.ID)
		return nil
	}

	var jobErr *models.StructuredJobError
	if !errors.As(err, &jobErr) {
		jobErr = models.NewJobError(models.ErrorKindSystem, "system_error", err.Error(), "", err)
	}

	if failErr := w.jobService.FailJob(ctx, job.ID, jobErr); failErr != nil {
		log.Printf("Worker %s: failed to mark job %d as failed: %v", w.id, job.ID, failErr)
	}

	// Terminal failures get a published failure record alongside the job row.
	if updated, getErr := w.jobService.GetJob(ctx, job.ID); getErr == nil && updated.State == models.JobStateFailed {
		if pubErr := w.failures.PublishFailure(updated); pubErr != nil {
			log.Printf("Worker %s: failed to publish failure record for job %d: %v", w.id, job.ID, pubErr)
		}
	}

	return fmt.Errorf("job %d processing failed: %w", job.ID, err)
}

// WorkerPool manages multiple workers sharing one processor
type WorkerPool struct {
	workers []*Worker
	mu      sync.Mutex
	started bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(jobService jobs.Service, processor JobProcessor, failures FailureRecorder, active *ActiveJobs, workerCount int, pollInterval, jobTimeout time.Duration) *WorkerPool {
	pool := &WorkerPool{workers: make([]*Worker, workerCount)}
	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		pool.workers[i] = NewWorker(workerID, jobService, processor, failures, active, pollInterval, jobTimeout)
	}
	return pool
}

// Start starts all workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}

	log.Printf("Starting worker pool with %d workers", len(p.workers))
	for _, worker := range p.workers {
		worker.Start(ctx)
	}
	p.started = true
	return nil
}

// Stop stops all workers gracefully
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	log.Printf("Stopping worker pool")
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.started = false
}
