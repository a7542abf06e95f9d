// Package app runs scoring jobs end to end and serves their results.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/vbet/internal/grid"
	"github.com/chrissnell/vbet/internal/report"
	"github.com/chrissnell/vbet/internal/scoring"
	"github.com/chrissnell/vbet/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Library loads and validates the scoring configuration.
func (a *App) Library() (*scoring.Library, error) {
	lib, err := config.Load(a.configProvider)
	if err != nil {
		return nil, fmt.Errorf("error loading scoring configuration: %w", err)
	}
	return lib, nil
}

// Run executes one job: it scores the input grids, classifies connectivity
// and summarizes segments as configured, writing every product to a new run
// directory below job.OutputDir. Every grid is read and shape-checked before
// scoring starts, and products are staged in a hidden directory that only
// becomes the run directory once every stage has succeeded.
func (a *App) Run(ctx context.Context, job *config.JobConfig) (*report.Manifest, error) {
	lib, err := a.Library()
	if err != nil {
		return nil, err
	}

	opts := []scoring.Option{
		scoring.WithWorkers(job.Workers),
		scoring.WithLogger(a.logger),
	}
	if job.InputLayers {
		opts = append(opts, scoring.WithInputLayers())
	}
	ev, err := scoring.NewEvaluator(lib, job.Scenario, opts...)
	if err != nil {
		return nil, err
	}

	m := &report.Manifest{
		ID:         uuid.New(),
		Name:       job.Name,
		Scenario:   job.Scenario,
		StartedAt:  time.Now().UTC(),
		Thresholds: job.Thresholds,
		Outputs:    make(map[string]string),
	}
	logger := a.logger.With("run", m.ID)
	logger.Infow("starting run", "name", job.Name, "scenario", job.Scenario)

	grids, err := loadGrids(job, ev.Scenario())
	if err != nil {
		return nil, err
	}
	scores, err := ev.EvaluateGrid(ctx, grids.layers, grids.context)
	if err != nil {
		return nil, fmt.Errorf("error evaluating scenario %s: %w", job.Scenario, err)
	}
	m.Rows, m.Cols = scores.Composite.Shape()
	m.NoDataCells = scores.NoDataCells
	m.OverrideCells = scores.OverrideCells

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	staging, err := os.MkdirTemp(job.OutputDir, "."+m.ID.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()
	dir := filepath.Join(job.OutputDir, m.ID.String())
	out := &outputs{dir: staging, format: job.OutputFormat, files: m.Outputs}

	if err := writeLayer(out, "composite", scores.Composite); err != nil {
		return nil, err
	}
	for name, g := range scores.Inputs {
		if err := writeLayer(out, "input_"+name, g); err != nil {
			return nil, err
		}
	}
	for _, t := range job.Thresholds {
		if err := writeLayer(out, thresholdLayer(t), grid.Threshold(scores.Composite, t)); err != nil {
			return nil, err
		}
	}

	cr, err := a.classify(ctx, job, grids, scores.Composite, m, out)
	if err != nil {
		return nil, err
	}
	if err := a.summarize(job, grids, scores.Composite, cr, m, out); err != nil {
		return nil, err
	}

	m.FinishedAt = time.Now().UTC()
	if err := report.WriteManifest(staging, m); err != nil {
		return nil, err
	}

	if job.Database != nil {
		if err := a.persist(ctx, job.Database, m, dir, scores.Composite, cr); err != nil {
			return nil, err
		}
	}

	if err := os.Chmod(staging, 0o755); err != nil {
		return nil, fmt.Errorf("failed to publish run directory: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return nil, fmt.Errorf("failed to publish run directory: %w", err)
	}
	committed = true

	logger.Infow("run complete",
		"dir", dir,
		"outputs", len(m.Outputs),
		"elapsed", m.FinishedAt.Sub(m.StartedAt).String())
	return m, nil
}

// Serve runs the report server over dir until ctx is cancelled or a
// shutdown signal arrives.
func (a *App) Serve(ctx context.Context, dir, addr string) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := report.NewServer(dir, addr, a.logger)
	srv.Start(ctx, &wg)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()
	wg.Wait()
	a.logger.Info("shutdown complete")
	return nil
}
