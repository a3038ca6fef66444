package publish

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/render"
)

const (
	publishRetries    = 3
	publishRetryDelay = 200 * time.Millisecond
)

// StatusRecord is the machine-readable completion marker written alongside
// the output files. It exists for every terminal job, success or failure,
// so downstream pollers never have to guess from file presence alone.
type StatusRecord struct {
	JobID          uint    `json:"job_id"`
	PlanID         string  `json:"plan_id"`
	AssetID        string  `json:"asset_id"`
	State          string  `json:"state"`
	Video          string  `json:"video,omitempty"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
	OutputDuration float64 `json:"output_duration,omitempty"`
	EmptyOutput    bool    `json:"empty_output,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty"`
	ErrorCode      string  `json:"error_code,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	PublishedAt    string  `json:"published_at"`
}

// Publisher moves finished renders into the output directory. Every file
// lands via a temp path in the destination directory followed by a rename,
// so a consumer never observes a partial file.
type Publisher struct {
	outputDir string
}

func NewPublisher(outputDir string) *Publisher {
	return &Publisher{outputDir: outputDir}
}

// PublishSuccess installs the rendered video, thumbnail, and status record
// for a finished job. The status record goes last: its presence means the
// files it names are already in place.
func (p *Publisher) PublishSuccess(job *models.RenderJob, res *render.Result) (*models.Artifact, error) {
	dir := filepath.Join(p.outputDir, job.AssetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	videoPath := filepath.Join(dir, job.PlanID+".mp4")
	if err := p.install(res.VideoPath, videoPath); err != nil {
		return nil, fmt.Errorf("publishing video: %w", err)
	}
	thumbPath := filepath.Join(dir, job.PlanID+"_thumb.jpg")
	if err := p.install(res.ThumbnailPath, thumbPath); err != nil {
		return nil, fmt.Errorf("publishing thumbnail: %w", err)
	}

	rec := StatusRecord{
		JobID:          job.ID,
		PlanID:         job.PlanID,
		AssetID:        job.AssetID,
		State:          string(models.JobStateDone),
		Video:          filepath.Base(videoPath),
		Thumbnail:      filepath.Base(thumbPath),
		OutputDuration: res.OutputDuration,
		PublishedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	statusPath, err := p.writeStatus(dir, job.PlanID, rec)
	if err != nil {
		return nil, err
	}

	return &models.Artifact{
		VideoPath:      videoPath,
		ThumbnailPath:  thumbPath,
		StatusPath:     statusPath,
		OutputDuration: res.OutputDuration,
	}, nil
}

// PublishEmpty writes a status-only artifact for a plan whose cuts removed
// everything. Deliberate empty output is a success, not an error.
func (p *Publisher) PublishEmpty(job *models.RenderJob) (*models.Artifact, error) {
	dir := filepath.Join(p.outputDir, job.AssetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	rec := StatusRecord{
		JobID:       job.ID,
		PlanID:      job.PlanID,
		AssetID:     job.AssetID,
		State:       string(models.JobStateDone),
		EmptyOutput: true,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	statusPath, err := p.writeStatus(dir, job.PlanID, rec)
	if err != nil {
		return nil, err
	}
	return &models.Artifact{StatusPath: statusPath, EmptyOutput: true}, nil
}

// PublishFailure records a terminal failure so downstream consumers see
// the error taxonomy without querying the API. Best effort beyond the
// bounded retries; the job row stays the source of truth.
func (p *Publisher) PublishFailure(job *models.RenderJob) error {
	dir := filepath.Join(p.outputDir, job.AssetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	rec := StatusRecord{
		JobID:        job.ID,
		PlanID:       job.PlanID,
		AssetID:      job.AssetID,
		State:        string(models.JobStateFailed),
		ErrorKind:    job.ErrorKind,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.Error,
		PublishedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	_, err := p.writeStatus(dir, job.PlanID, rec)
	return err
}

func (p *Publisher) writeStatus(dir, planID string, rec StatusRecord) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding status record: %w", err)
	}
	path := filepath.Join(dir, planID+".status.json")
	if err := p.withRetries("status record", func() error {
		return atomicWrite(path, data)
	}); err != nil {
		return "", err
	}
	return path, nil
}

// install copies src into place at dest via a temp file in dest's
// directory. A plain rename is not enough because the work directory may
// sit on a different filesystem.
func (p *Publisher) install(src, dest string) error {
	return p.withRetries(filepath.Base(dest), func() error {
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer in.Close()

		tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, in); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), dest)
	})
}

func (p *Publisher) withRetries(what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= publishRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < publishRetries {
			log.Printf("publish of %s failed (attempt %d/%d), retrying: %v", what, attempt, publishRetries, err)
			time.Sleep(publishRetryDelay)
		}
	}
	return fmt.Errorf("publishing %s: %w", what, err)
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
