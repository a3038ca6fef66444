package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/services/filtergraph"
	"github.com/clipforge/clipforge/pkg/config"
	"github.com/clipforge/clipforge/pkg/ffmpeg"
)

// Request is one render: a built graph plus the thumbnail frame to pull
// from the finished video, in output time.
type Request struct {
	Graph         *filtergraph.Graph
	ThumbnailTime float64
}

// Result points at the rendered files inside an isolated work directory.
// The caller owns the directory once Render returns successfully and must
// remove it after publishing.
type Result struct {
	Workdir        string
	VideoPath      string
	ThumbnailPath  string
	OutputDuration float64
	Attempts       int
}

// Executor runs encoder invocations under a concurrency ceiling smaller
// than the worker pool, so validation and graph building never starve
// behind encodes.
type Executor struct {
	ff       *ffmpeg.FFmpeg
	output   config.OutputConfig
	tempDir  string
	attempts int
	delay    time.Duration
	slots    chan struct{}
}

func NewExecutor(ff *ffmpeg.FFmpeg, cfg *config.Config) *Executor {
	return &Executor{
		ff:       ff,
		output:   cfg.Output,
		tempDir:  cfg.Storage.TempDir,
		attempts: cfg.Processing.RetryAttempts,
		delay:    cfg.Processing.RetryDelay,
		slots:    make(chan struct{}, cfg.Processing.RenderSlots),
	}
}

// Render acquires a render slot, runs the encode in a fresh work
// directory, and extracts the thumbnail from the finished video. Transient
// failures are retried with exponential backoff up to the configured
// attempt cap; fatal failures return immediately. The work directory is
// removed on every failure path.
func (e *Executor) Render(ctx context.Context, req Request) (*Result, error) {
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	workdir := filepath.Join(e.tempDir, "render-"+uuid.NewString())
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}

	res, err := e.renderInto(ctx, req, workdir)
	if err != nil {
		os.RemoveAll(workdir)
		return nil, err
	}
	return res, nil
}

func (e *Executor) renderInto(ctx context.Context, req Request, workdir string) (*Result, error) {
	spec := ffmpeg.RenderSpec{
		Inputs:        req.Graph.Inputs,
		FilterComplex: req.Graph.FilterComplex(),
		VideoLabel:    req.Graph.VideoOut,
		AudioLabel:    req.Graph.AudioOut,
		OutputPath:    filepath.Join(workdir, "video.mp4"),
		VideoCodec:    e.output.VideoCodec,
		CRF:           e.output.CRF,
		Preset:        e.output.Preset,
		AudioCodec:    e.output.AudioCodec,
		AudioBitrate:  e.output.AudioBitrate,
	}

	attempts := 0
	for {
		attempts++
		stderr, err := e.ff.Render(ctx, spec)
		if err == nil {
			break
		}

		class := Classify(err, stderr)
		if class == ClassFatal || attempts >= e.attempts {
			return nil, fmt.Errorf("render failed (%s, attempt %d/%d): %w", class, attempts, e.attempts, err)
		}

		delay := Backoff(e.delay, attempts-1)
		log.Printf("render attempt %d/%d failed (%s), retrying in %s: %v", attempts, e.attempts, class, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	thumbPath := filepath.Join(workdir, "thumbnail.jpg")
	err := e.ff.ExtractThumbnail(ctx, ffmpeg.ThumbnailSpec{
		Input:      spec.OutputPath,
		Timestamp:  req.ThumbnailTime,
		Width:      e.output.Width,
		OutputPath: thumbPath,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting thumbnail: %w", err)
	}

	return &Result{
		Workdir:        workdir,
		VideoPath:      spec.OutputPath,
		ThumbnailPath:  thumbPath,
		OutputDuration: req.Graph.OutputDuration,
		Attempts:       attempts,
	}, nil
}
