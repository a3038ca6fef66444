package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/bgm"
	"github.com/clipforge/clipforge/internal/services/filtergraph"
	"github.com/clipforge/clipforge/internal/services/plans"
	"github.com/clipforge/clipforge/internal/services/publish"
	"github.com/clipforge/clipforge/internal/services/render"
	"github.com/clipforge/clipforge/internal/services/timeline"
	"github.com/clipforge/clipforge/pkg/config"
	"github.com/clipforge/clipforge/pkg/ffmpeg"
)

// renderCmd runs one plan through the pipeline without the job queue.
// Useful for debugging a plan or a filter graph in isolation.
var renderCmd = &cobra.Command{
	Use:   "render <plan.json>",
	Short: "Render a single plan file and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

var renderAssetPath string

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVar(&renderAssetPath, "asset", "", "path to the source asset (overrides asset directory lookup)")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	plan, err := plans.Load(args[0])
	if err != nil {
		return err
	}

	ff := ffmpeg.New(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.FFmpegTimeout)
	if err := ff.ValidateBinaries(); err != nil {
		return err
	}

	assetPath := renderAssetPath
	if assetPath == "" {
		assetPath, err = findAsset(cfg.Storage.AssetDir, plan.AssetID)
		if err != nil {
			return err
		}
	}
	meta, err := ff.Probe(ctx, assetPath)
	if err != nil {
		return fmt.Errorf("probing asset: %w", err)
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

	library, err := bgm.LoadLibrary(cfg.Library.BGMManifest)
	if err != nil {
		return fmt.Errorf("loading BGM library: %w", err)
	}
	if _, err := plans.NewValidator(library).Validate(plan, asset); err != nil {
		return err
	}

	tl, err := timeline.Resolve(plan.Cuts, asset.Duration)
	if err != nil {
		return err
	}
	resolved, report := timeline.ResolveInstructions(plan, tl)
	for _, d := range report.Dropped {
		fmt.Fprintf(os.Stderr, "dropped %s at %.3fs: %s\n", d.Kind, d.SourceTime, d.Reason)
	}

	job := &models.RenderJob{PlanID: plan.PlanID, AssetID: plan.AssetID}
	publisher := publish.NewPublisher(cfg.Storage.OutputDir)

	if tl.Empty() {
		artifact, err := publisher.PublishEmpty(job)
		if err != nil {
			return err
		}
		fmt.Printf("plan removed all material; wrote %s\n", artifact.StatusPath)
		return nil
	}

	var bgmPath string
	if track := library.Select(plan); track != nil {
		bgmPath = track.Path
	}
	sePaths := make([]string, len(resolved.SoundEffects))
	for i, se := range resolved.SoundEffects {
		sePaths[i] = fmt.Sprintf("%s/%s.wav", cfg.Library.SEDir, se.Type)
	}

	builder := filtergraph.NewBuilder(filtergraph.Options{
		OutputWidth:        cfg.Output.Width,
		OutputHeight:       cfg.Output.Height,
		TransitionDuration: cfg.Output.TransitionDuration,
		DuckAttenuationDB:  cfg.Ducking.AttenuationDB,
		DuckAttackMs:       cfg.Ducking.AttackMs,
		DuckReleaseMs:      cfg.Ducking.ReleaseMs,
		BGMGain:            cfg.Ducking.BGMGain,
		SEFade:             cfg.Ducking.SEFade,
	})
	graph, err := builder.Build(filtergraph.Inputs{
		Asset:    asset,
		Plan:     plan,
		Resolved: resolved,
		BGMPath:  bgmPath,
		SEPaths:  sePaths,
	})
	if err != nil {
		return err
	}

	thumbTime := 0.0
	if plan.Thumbnail != nil {
		if out, ok := tl.MapTime(plan.Thumbnail.Timestamp); ok {
			thumbTime = out
		}
	}

	executor := render.NewExecutor(ff, cfg)
	res, err := executor.Render(ctx, render.Request{Graph: graph, ThumbnailTime: thumbTime})
	if err != nil {
		return err
	}
	defer os.RemoveAll(res.Workdir)

	artifact, err := publisher.PublishSuccess(job, res)
	if err != nil {
		return err
	}

	fmt.Printf("rendered %s (%.2fs, %d attempt(s))\n", artifact.VideoPath, artifact.OutputDuration, res.Attempts)
	return nil
}

func findAsset(dir, assetID string) (string, error) {
	for _, ext := range []string{".mp4", ".mov", ".mkv", ".webm"} {
		path := fmt.Sprintf("%s/%s%s", dir, assetID, ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no media file for asset %s in %s", assetID, dir)
}
