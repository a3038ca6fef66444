package coordinator

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/services/jobs"
	"github.com/clipforge/clipforge/internal/services/plans"
	"github.com/clipforge/clipforge/internal/services/workers"
)

const (
	maintenanceInterval = 5 * time.Minute
	jobRetentionDays    = 30
)

// Coordinator turns plan files into render jobs. It scans the plan
// directory on startup so plans dropped while the service was down are not
// lost, then follows the watcher. Enqueueing is idempotent per plan id; a
// newly enqueued plan supersedes older in-flight jobs for the same asset.
type Coordinator struct {
	jobService jobs.Service
	notifier   Notifier
	active     *workers.ActiveJobs
	planDir    string
	staleAfter time.Duration

	wg sync.WaitGroup
}

func New(jobService jobs.Service, notifier Notifier, active *workers.ActiveJobs, planDir string, staleAfter time.Duration) *Coordinator {
	return &Coordinator{
		jobService: jobService,
		notifier:   notifier,
		active:     active,
		planDir:    planDir,
		staleAfter: staleAfter,
	}
}

// Start scans existing plans, then consumes watcher events and runs
// periodic maintenance until the context ends.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.notifier.Start(ctx); err != nil {
		return err
	}

	if err := c.scanExisting(ctx); err != nil {
		log.Printf("coordinator: initial plan scan failed: %v", err)
	}

	c.wg.Add(2)
	go c.consumeEvents(ctx)
	go c.maintain(ctx)
	return nil
}

// Wait blocks until the coordinator's goroutines have exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// scanExisting enqueues every plan already sitting in the plan directory,
// in name order so per-asset sequence numbers follow producer order.
func (c *Coordinator) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(c.planDir)
	if err != nil {
		return err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(c.planDir, e.Name()))
	}
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.ingest(ctx, path)
	}
	return nil
}

func (c *Coordinator) consumeEvents(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-c.notifier.Events():
			if !ok {
				return
			}
			c.ingest(ctx, path)
		}
	}
}

// ingest enqueues one plan file and supersedes older jobs for its asset.
// Malformed files are logged and skipped; the producer may still be
// writing, and a follow-up event will retry.
func (c *Coordinator) ingest(ctx context.Context, path string) {
	ref, err := plans.LoadRef(path)
	if err != nil {
		log.Printf("coordinator: skipping plan file %s: %v", path, err)
		return
	}

	job, created, err := c.jobService.EnqueueJob(ctx, ref.PlanID, ref.AssetID, ref.Path)
	if err != nil {
		log.Printf("coordinator: failed to enqueue plan %s: %v", ref.PlanID, err)
		return
	}
	if !created {
		log.Printf("coordinator: plan %s already enqueued as job %d", ref.PlanID, job.ID)
		return
	}

	cancelled, err := c.jobService.CancelOlderJobs(ctx, ref.AssetID, job.Seq)
	if err != nil {
		log.Printf("coordinator: failed to supersede older jobs for asset %s: %v", ref.AssetID, err)
		return
	}
	for _, id := range cancelled {
		c.active.Cancel(id)
	}
}

// maintain periodically requeues jobs orphaned by crashed workers and
// prunes terminal jobs past retention.
func (c *Coordinator) maintain(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * c.staleAfter)
			if _, err := c.jobService.ReleaseStaleJobs(ctx, cutoff); err != nil {
				log.Printf("coordinator: releasing stale jobs failed: %v", err)
			}
			if _, err := c.jobService.CleanupOldJobs(ctx, jobRetentionDays); err != nil {
				log.Printf("coordinator: job cleanup failed: %v", err)
			}
		}
	}
}
