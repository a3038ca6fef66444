package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/bgm"
	"github.com/clipforge/clipforge/internal/services/filtergraph"
	"github.com/clipforge/clipforge/internal/services/jobs"
	"github.com/clipforge/clipforge/internal/services/plans"
	"github.com/clipforge/clipforge/internal/services/publish"
	"github.com/clipforge/clipforge/internal/services/render"
	"github.com/clipforge/clipforge/internal/services/timeline"
	"github.com/clipforge/clipforge/pkg/config"
	"github.com/clipforge/clipforge/pkg/ffmpeg"
)

// assetExtensions are tried in order when resolving an asset id to a file.
var assetExtensions = []string{".mp4", ".mov", ".mkv", ".webm"}

// RenderProcessor drives a claimed job through the full pipeline:
// validate, resolve, build, render, publish. Each stage persists its state
// transition before running, and validation and resolution results are
// checkpointed so a requeued job resumes without redoing them.
type RenderProcessor struct {
	jobService jobs.Service
	validator  *plans.Validator
	library    *bgm.Library
	builder    *filtergraph.Builder
	executor   *render.Executor
	publisher  *publish.Publisher
	prober     *ffmpeg.FFmpeg
	assetDir   string
	seDir      string
}

// NewRenderProcessor wires the pipeline stages together.
func NewRenderProcessor(
	jobService jobs.Service,
	library *bgm.Library,
	executor *render.Executor,
	publisher *publish.Publisher,
	prober *ffmpeg.FFmpeg,
	cfg *config.Config,
) *RenderProcessor {
	return &RenderProcessor{
		jobService: jobService,
		validator:  plans.NewValidator(library),
		library:    library,
		builder: filtergraph.NewBuilder(filtergraph.Options{
			OutputWidth:        cfg.Output.Width,
			OutputHeight:       cfg.Output.Height,
			TransitionDuration: cfg.Output.TransitionDuration,
			DuckAttenuationDB:  cfg.Ducking.AttenuationDB,
			DuckAttackMs:       cfg.Ducking.AttackMs,
			DuckReleaseMs:      cfg.Ducking.ReleaseMs,
			BGMGain:            cfg.Ducking.BGMGain,
			SEFade:             cfg.Ducking.SEFade,
		}),
		executor:  executor,
		publisher: publisher,
		prober:    prober,
		assetDir:  cfg.Storage.AssetDir,
		seDir:     cfg.Library.SEDir,
	}
}

// stageState is what a checkpoint restores: the decoded plan, the probed
// asset, and the resolved timeline with its drop report.
type stageState struct {
	Plan     *models.EditingPlan           `json:"plan"`
	Asset    *models.SourceAsset           `json:"asset"`
	Resolved *timeline.ResolvedPlan        `json:"resolved,omitempty"`
	Dropped  []timeline.DroppedInstruction `json:"dropped,omitempty"`
}

// ProcessJob runs the pipeline for one job.
func (p *RenderProcessor) ProcessJob(ctx context.Context, job *models.RenderJob) error {
	state, err := p.restoreCheckpoint(job)
	if err != nil {
		log.Printf("job %d: discarding unreadable checkpoint: %v", job.ID, err)
		state = nil
	}

	if state == nil || state.Resolved == nil {
		state, err = p.validateAndResolve(ctx, job)
		if err != nil {
			return err
		}
	} else {
		log.Printf("job %d: resuming from checkpoint (plan %s already resolved)", job.ID, job.PlanID)
	}

	if state.Resolved.Timeline.Empty() {
		return p.publishEmpty(ctx, job, state)
	}

	graph, err := p.buildGraph(ctx, job, state)
	if err != nil {
		return err
	}

	res, err := p.renderGraph(ctx, job, state, graph)
	if err != nil {
		return err
	}
	defer os.RemoveAll(res.Workdir)

	return p.publishResult(ctx, job, state, res)
}

// validateAndResolve runs the two plan-side stages and checkpoints their
// combined output.
func (p *RenderProcessor) validateAndResolve(ctx context.Context, job *models.RenderJob) (*stageState, error) {
	plan, err := plans.Load(job.PlanPath)
	if err != nil {
		var vErr *plans.ValidationError
		if errors.As(err, &vErr) {
			return nil, p.failValidation(ctx, job, vErr)
		}
		return nil, models.NewJobError(models.ErrorKindSystem, "plan_read", "reading plan file", err.Error(), err)
	}

	assetPath, err := p.resolveAssetPath(plan.AssetID)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindSystem, "asset_missing", fmt.Sprintf("locating asset %s", plan.AssetID), err.Error(), err)
	}
	meta, err := p.prober.Probe(ctx, assetPath)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindSystem, "asset_probe", fmt.Sprintf("probing asset %s", plan.AssetID), err.Error(), err)
	}
	asset := &models.SourceAsset{
		ID:        plan.AssetID,
		Path:      assetPath,
		Duration:  meta.Duration,
		FrameRate: meta.FrameRate,
		Width:     meta.Width,
		Height:    meta.Height,
		HasAudio:  meta.HasAudio,
	}

	if _, err := p.validator.Validate(plan, asset); err != nil {
		var vErr *plans.ValidationError
		if errors.As(err, &vErr) {
			return nil, p.failValidation(ctx, job, vErr)
		}
		return nil, models.NewJobError(models.ErrorKindSystem, "validate", "validating plan", err.Error(), err)
	}

	if err := p.jobService.UpdateStage(ctx, job.ID, models.JobStateResolving, nil); err != nil {
		return nil, err
	}

	tl, err := timeline.Resolve(plan.Cuts, asset.Duration)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindResolution, "resolve", "resolving cut timeline", err.Error(), err)
	}
	resolved, report := timeline.ResolveInstructions(plan, tl)
	for _, d := range report.Dropped {
		log.Printf("job %d: dropped %s at %.3fs: %s", job.ID, d.Kind, d.SourceTime, d.Reason)
	}

	state := &stageState{Plan: plan, Asset: asset, Resolved: resolved, Dropped: report.Dropped}
	checkpoint, err := encodeCheckpoint(state)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindSystem, "checkpoint", "encoding checkpoint", err.Error(), err)
	}
	if err := p.jobService.UpdateStage(ctx, job.ID, models.JobStateBuilding, checkpoint); err != nil {
		return nil, err
	}
	return state, nil
}

func (p *RenderProcessor) failValidation(ctx context.Context, job *models.RenderJob, vErr *plans.ValidationError) error {
	violations := make([]interface{}, len(vErr.Violations))
	for i, v := range vErr.Violations {
		violations[i] = map[string]interface{}{"field": v.Field, "rule": v.Rule, "message": v.Message}
	}
	if err := p.jobService.RecordViolations(ctx, job.ID, models.JobCheckpoint{"violations": violations}); err != nil {
		log.Printf("job %d: failed to record violations: %v", job.ID, err)
	}
	return models.NewJobError(models.ErrorKindValidation, "plan_invalid", vErr.Error(), "", vErr)
}

func (p *RenderProcessor) buildGraph(ctx context.Context, job *models.RenderJob, state *stageState) (*filtergraph.Graph, error) {
	if err := p.jobService.UpdateStage(ctx, job.ID, models.JobStateBuilding, nil); err != nil {
		return nil, err
	}

	var bgmPath string
	if track := p.library.Select(state.Plan); track != nil {
		bgmPath = track.Path
	}

	sePaths := make([]string, len(state.Resolved.SoundEffects))
	for i, se := range state.Resolved.SoundEffects {
		sePaths[i] = filepath.Join(p.seDir, string(se.Type)+".wav")
	}

	graph, err := p.builder.Build(filtergraph.Inputs{
		Asset:    state.Asset,
		Plan:     state.Plan,
		Resolved: state.Resolved,
		BGMPath:  bgmPath,
		SEPaths:  sePaths,
	})
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindBuild, "graph_build", "building filter graph", err.Error(), err)
	}
	return graph, nil
}

func (p *RenderProcessor) renderGraph(ctx context.Context, job *models.RenderJob, state *stageState, graph *filtergraph.Graph) (*render.Result, error) {
	if err := p.jobService.UpdateStage(ctx, job.ID, models.JobStateRendering, nil); err != nil {
		return nil, err
	}

	res, err := p.executor.Render(ctx, render.Request{
		Graph:         graph,
		ThumbnailTime: p.thumbnailTime(state, graph),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewJobError(models.ErrorKindRender, "render", "rendering output", err.Error(), err)
	}
	return res, nil
}

// thumbnailTime maps the plan's thumbnail timestamp from source time into
// the rendered output, falling back to the first frame when the requested
// frame was cut away or never specified.
func (p *RenderProcessor) thumbnailTime(state *stageState, graph *filtergraph.Graph) float64 {
	if state.Plan.Thumbnail == nil {
		return 0
	}
	out, ok := state.Resolved.Timeline.MapTime(state.Plan.Thumbnail.Timestamp)
	if !ok || out >= graph.OutputDuration {
		return 0
	}
	return out
}

func (p *RenderProcessor) publishResult(ctx context.Context, job *models.RenderJob, state *stageState, res *render.Result) error {
	if err := p.jobService.UpdateStage(ctx, job.ID, models.JobStatePublishing, nil); err != nil {
		return err
	}

	// Publish gate: a newer plan for this asset may have arrived while we
	// were rendering. Cancelling here keeps output ordering per asset.
	latest, err := p.jobService.IsLatestForAsset(ctx, job.AssetID, job.Seq)
	if err != nil {
		return models.NewJobError(models.ErrorKindSystem, "publish_gate", "checking publish gate", err.Error(), err)
	}
	if !latest {
		if _, err := p.jobService.CancelOlderJobs(ctx, job.AssetID, job.Seq+1); err != nil {
			log.Printf("job %d: failed to cancel superseded self: %v", job.ID, err)
		}
		return context.Canceled
	}

	artifact, err := p.publisher.PublishSuccess(job, res)
	if err != nil {
		return models.NewJobError(models.ErrorKindPublish, "publish", "publishing artifacts", err.Error(), err)
	}

	result := models.JobCheckpoint{
		"video_path":      artifact.VideoPath,
		"thumbnail_path":  artifact.ThumbnailPath,
		"status_path":     artifact.StatusPath,
		"output_duration": artifact.OutputDuration,
		"render_attempts": res.Attempts,
		"dropped":         len(state.Dropped),
	}
	return p.jobService.CompleteJob(ctx, job.ID, result)
}

func (p *RenderProcessor) publishEmpty(ctx context.Context, job *models.RenderJob, state *stageState) error {
	if err := p.jobService.UpdateStage(ctx, job.ID, models.JobStatePublishing, nil); err != nil {
		return err
	}

	latest, err := p.jobService.IsLatestForAsset(ctx, job.AssetID, job.Seq)
	if err != nil {
		return models.NewJobError(models.ErrorKindSystem, "publish_gate", "checking publish gate", err.Error(), err)
	}
	if !latest {
		return context.Canceled
	}

	artifact, err := p.publisher.PublishEmpty(job)
	if err != nil {
		return models.NewJobError(models.ErrorKindPublish, "publish", "publishing empty-output record", err.Error(), err)
	}

	log.Printf("job %d: plan %s removed all material, published empty output", job.ID, job.PlanID)
	return p.jobService.CompleteJob(ctx, job.ID, models.JobCheckpoint{
		"status_path":  artifact.StatusPath,
		"empty_output": true,
		"dropped":      len(state.Dropped),
	})
}

// resolveAssetPath finds the media file for an asset id under the asset
// directory, trying known extensions in a fixed order.
func (p *RenderProcessor) resolveAssetPath(assetID string) (string, error) {
	for _, ext := range assetExtensions {
		path := filepath.Join(p.assetDir, assetID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// Fall back to a glob so unusual container extensions still resolve.
	matches, err := filepath.Glob(filepath.Join(p.assetDir, assetID+".*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no media file for asset %s in %s", assetID, p.assetDir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// encodeCheckpoint stores typed stage state in the job's JSON column.
func encodeCheckpoint(state *stageState) (models.JobCheckpoint, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return models.JobCheckpoint{"stage_state": raw}, nil
}

// restoreCheckpoint decodes stage state persisted by a previous attempt.
// Returns nil when the job has no checkpoint.
func (p *RenderProcessor) restoreCheckpoint(job *models.RenderJob) (*stageState, error) {
	raw, ok := job.Checkpoint["stage_state"]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var state stageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Plan == nil || state.Asset == nil {
		return nil, errors.New("checkpoint missing plan or asset")
	}
	return &state, nil
}
