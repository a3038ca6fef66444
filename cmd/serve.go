package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/api"
	"github.com/clipforge/clipforge/api/types"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/bgm"
	"github.com/clipforge/clipforge/internal/services/coordinator"
	"github.com/clipforge/clipforge/internal/services/jobs"
	"github.com/clipforge/clipforge/internal/services/publish"
	"github.com/clipforge/clipforge/internal/services/render"
	"github.com/clipforge/clipforge/internal/services/workers"
	"github.com/clipforge/clipforge/pkg/config"
	"github.com/clipforge/clipforge/pkg/ffmpeg"
)

var (
	serverHost string
	serverPort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the render pipeline and status API",
	Long: `Run the full ClipForge pipeline: watch the plan directory, process
render jobs with the worker pool, and serve the read-only status API.

Example:
  clipforge serve
  clipforge serve --port 9090
  clipforge serve --host 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if serverHost == "" {
		serverHost = cfg.Server.Host
	}
	if serverPort == 0 {
		serverPort = cfg.Server.Port
	}

	for _, dir := range []string{cfg.Storage.PlanDir, cfg.Storage.OutputDir, cfg.Storage.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	db, err := database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()
	if err := db.AutoMigrate(&models.RenderJob{}); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	ff := ffmpeg.New(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.FFmpegTimeout)
	if err := ff.ValidateBinaries(); err != nil {
		return fmt.Errorf("validating ffmpeg binaries: %w", err)
	}

	library, err := bgm.LoadLibrary(cfg.Library.BGMManifest)
	if err != nil {
		return fmt.Errorf("loading BGM library: %w", err)
	}

	jobService := jobs.NewService(jobs.NewRepository(db.DB), cfg.Processing.RetryDelay)
	publisher := publish.NewPublisher(cfg.Storage.OutputDir)
	executor := render.NewExecutor(ff, cfg)
	processor := workers.NewRenderProcessor(jobService, library, executor, publisher, ff, cfg)
	active := workers.NewActiveJobs()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Requeue whatever a previous run left in flight; checkpoints make the
	// resume cheap.
	if _, err := jobService.ReleaseStaleJobs(ctx, time.Now()); err != nil {
		return fmt.Errorf("releasing stale jobs: %w", err)
	}

	pool := workers.NewWorkerPool(jobService, processor, publisher, active,
		cfg.Processing.Workers, cfg.Processing.PollInterval, cfg.Processing.JobTimeout)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}

	watcher, err := coordinator.NewPlanWatcher(cfg.Storage.PlanDir)
	if err != nil {
		return err
	}
	defer watcher.Close()

	coord := coordinator.New(jobService, watcher, active, cfg.Storage.PlanDir, cfg.Processing.JobTimeout)
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}

	address := fmt.Sprintf("%s:%d", serverHost, serverPort)
	srv := api.NewServer(address, cfg.Server)
	srv.SetDependencies(&types.Dependencies{DB: db, JobService: jobService})
	if err := srv.Initialize(); err != nil {
		return fmt.Errorf("initializing API server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Printf("ClipForge is watching %s and serving status at %s\n", cfg.Storage.PlanDir, address)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
		fmt.Println("Shutting down...")
	}

	cancel()
	pool.Stop()
	coord.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Server forced to shutdown: %v\n", err)
		return err
	}

	fmt.Println("Stopped cleanly")
	return nil
}
