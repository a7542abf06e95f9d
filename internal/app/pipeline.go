package app

import (
	"context"
	"fmt"

	"github.com/chrissnell/vbet/internal/connectivity"
	"github.com/chrissnell/vbet/internal/database"
	"github.com/chrissnell/vbet/internal/grid"
	"github.com/chrissnell/vbet/internal/metrics"
	"github.com/chrissnell/vbet/internal/report"
	"github.com/chrissnell/vbet/pkg/config"
)

// classify runs the connectivity classifier when the job configures it.
// Without a valley-bottom grid the valley is the composite thresholded at
// job.ValleyThreshold.
func (a *App) classify(ctx context.Context, job *config.JobConfig, grids *jobGrids, composite *grid.Grid[float64], m *report.Manifest, out *outputs) (*connectivity.Result, error) {
	if grids.flow == nil {
		return nil, nil
	}
	in := *grids.flow
	if in.ValleyBottom == nil {
		in.ValleyBottom = grid.Threshold(composite, job.ValleyThreshold)
		if err := writeLayer(out, "valley_bottom", in.ValleyBottom); err != nil {
			return nil, err
		}
	}

	res, err := connectivity.Classify(ctx, in,
		connectivity.WithWorkers(job.Connectivity.Workers),
		connectivity.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("error classifying connectivity: %w", err)
	}

	names := grids.barriers
	if err := writeLayer(out, "classes", res.Classes); err != nil {
		return nil, err
	}
	if len(names) > 0 {
		if err := writeLayer(out, "blockers", res.Blocker); err != nil {
			return nil, err
		}
	}

	m.Connectivity = report.ConnectivityFromStats(res.Stats)
	m.Connectivity.Barriers = names
	if len(names) > 0 {
		m.Connectivity.BlockedBy = blockedBy(res, names)
	}
	return res, nil
}

// blockedBy counts disconnected cells per barrier layer.
func blockedBy(res *connectivity.Result, names []string) map[string]int {
	counts := make(map[string]int, len(names))
	for i, b := range res.Blocker.Values() {
		if b == connectivity.NoBlocker || res.Classes.AtIndex(i) != connectivity.Disconnected {
			continue
		}
		counts[names[b]]++
	}
	return counts
}

// summarize builds the per-segment tables when the job configures segments.
// Class tables need a classification; score tables are always produced.
func (a *App) summarize(job *config.JobConfig, grids *jobGrids, composite *grid.Grid[float64], cr *connectivity.Result, m *report.Manifest, out *outputs) error {
	sj := job.Segments
	if sj == nil {
		return nil
	}

	segs, err := metrics.SegmentsFromGrid(grids.segmentIDs, grids.levelPaths)
	if err != nil {
		return err
	}
	opts := []metrics.Option{metrics.WithLogger(a.logger)}
	if len(sj.BinEdges) > 0 {
		opts = append(opts, metrics.WithEdges(sj.BinEdges))
	}
	agg, err := metrics.NewAggregator(opts...)
	if err != nil {
		return err
	}

	var windows []metrics.Segment
	if sj.Window > 0 {
		windows = metrics.Windows(segs, sj.Window)
	}

	if m.ScoreSummaries, err = agg.Scores(composite, segs); err != nil {
		return err
	}
	if err := writeSummaries(out, metrics.KindScore, agg.Labels(), m.ScoreSummaries); err != nil {
		return err
	}
	if windows != nil {
		if m.ScoreWindows, err = agg.Scores(composite, windows); err != nil {
			return err
		}
		if err := writeSummaries(out, metrics.KindScoreWindow, agg.Labels(), m.ScoreWindows); err != nil {
			return err
		}
	}

	if cr == nil {
		return nil
	}
	if m.ClassSummaries, err = agg.Classes(cr.Classes, segs); err != nil {
		return err
	}
	if err := writeSummaries(out, metrics.KindClass, metrics.ClassLabels, m.ClassSummaries); err != nil {
		return err
	}
	if windows != nil {
		if m.ClassWindows, err = agg.Classes(cr.Classes, windows); err != nil {
			return err
		}
		if err := writeSummaries(out, metrics.KindClassWindow, metrics.ClassLabels, m.ClassWindows); err != nil {
			return err
		}
	}

	a.logger.Infow("segments summarized", "segments", len(segs), "window", sj.Window)
	return nil
}

// persist stores the run and its summary tables, and optionally every
// valley cell, in the results database.
func (a *App) persist(ctx context.Context, dj *config.DatabaseJob, m *report.Manifest, dir string, composite *grid.Grid[float64], cr *connectivity.Result) error {
	client := database.NewClient(dj.ConnectionString, a.logger)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("error connecting to results database: %w", err)
	}
	defer client.Close()

	run := runRecord(m)
	run.OutputDir = dir
	var rows []database.SegmentSummary
	for _, kind := range metrics.Kinds {
		summaries, _ := m.Summaries(kind)
		r, err := database.SummaryRows(m.ID, kind, summaries)
		if err != nil {
			return err
		}
		rows = append(rows, r...)
	}
	if err := client.SaveRun(ctx, run, rows); err != nil {
		return err
	}

	if dj.CopyCells && cr != nil {
		if _, err := client.CopyCells(ctx, m.ID, cr.Classes, composite); err != nil {
			return err
		}
	}
	return nil
}

func runRecord(m *report.Manifest) *database.Run {
	run := &database.Run{
		ID:            m.ID,
		Name:          m.Name,
		Scenario:      m.Scenario,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		Rows:          m.Rows,
		Cols:          m.Cols,
		NoDataCells:   m.NoDataCells,
		OverrideCells: m.OverrideCells,
	}
	if c := m.Connectivity; c != nil {
		run.Connected = c.Connected
		run.Disconnected = c.Disconnected
		run.Unresolved = c.Unresolved
	}
	return run
}
