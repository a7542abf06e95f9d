package app

import (
	"fmt"
	"maps"
	"slices"

	"github.com/chrissnell/vbet/internal/connectivity"
	"github.com/chrissnell/vbet/internal/grid"
	"github.com/chrissnell/vbet/internal/scoring"
	"github.com/chrissnell/vbet/pkg/config"
)

// jobGrids holds every grid a job names. All of them are read and checked
// for a common shape before any cell is evaluated.
type jobGrids struct {
	layers  scoring.Layers
	context *grid.Grid[float64]

	// flow is nil when the job does not classify connectivity. Its
	// ValleyBottom is nil until derived from the composite.
	flow     *connectivity.Inputs
	barriers []string

	segmentIDs *grid.Grid[int32]
	levelPaths *grid.Grid[int32]
}

// loadGrids reads the scenario inputs, the context grid, the connectivity
// grids and the segment grids, then checks that they all line up.
func loadGrids(job *config.JobConfig, sc *scoring.Scenario) (*jobGrids, error) {
	layers, contextGrid, err := loadLayers(job, sc)
	if err != nil {
		return nil, err
	}
	g := &jobGrids{layers: layers, context: contextGrid}

	if cj := job.Connectivity; cj != nil {
		in := &connectivity.Inputs{}
		if in.FlowDir, err = grid.ReadFileAs[int32](cj.FlowDirection); err != nil {
			return nil, fmt.Errorf("error reading flow direction grid: %w", err)
		}
		if in.Channel, err = readMask("channel", cj.Channel); err != nil {
			return nil, err
		}
		if cj.ValleyBottom != "" {
			if in.ValleyBottom, err = readMask("valley bottom", cj.ValleyBottom); err != nil {
				return nil, err
			}
		}
		for _, b := range cj.Barriers {
			mask, err := readMask("barrier "+b.Name, b.Path)
			if err != nil {
				return nil, err
			}
			in.Barriers = append(in.Barriers, connectivity.Barrier{Name: b.Name, Mask: mask})
			g.barriers = append(g.barriers, b.Name)
		}
		g.flow = in
	}

	if sj := job.Segments; sj != nil {
		if g.segmentIDs, err = grid.ReadFileAs[int32](sj.IDs); err != nil {
			return nil, fmt.Errorf("error reading segment id grid: %w", err)
		}
		if sj.LevelPaths != "" {
			if g.levelPaths, err = grid.ReadFileAs[int32](sj.LevelPaths); err != nil {
				return nil, fmt.Errorf("error reading level path grid: %w", err)
			}
		}
	}

	if err := g.checkShape(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *jobGrids) checkShape() error {
	var all []grid.Named
	for _, name := range slices.Sorted(maps.Keys(g.layers)) {
		all = named(all, name, g.layers[name])
	}
	all = named(all, "context", g.context)
	if in := g.flow; in != nil {
		all = named(all, "flow direction", in.FlowDir)
		all = named(all, "channel", in.Channel)
		all = named(all, "valley bottom", in.ValleyBottom)
		for _, b := range in.Barriers {
			all = named(all, "barrier "+b.Name, b.Mask)
		}
	}
	all = named(all, "segment ids", g.segmentIDs)
	all = named(all, "level paths", g.levelPaths)
	return grid.CheckShape(all...)
}

// named appends g unless it is nil; a nil *Grid must not reach CheckShape
// as a non-nil interface.
func named[T grid.Cell](list []grid.Named, name string, g *grid.Grid[T]) []grid.Named {
	if g == nil {
		return list
	}
	return append(list, grid.Named{Name: name, Grid: g})
}

// loadLayers reads the grids the scenario needs: one per weighted input,
// the override input if any, and the context grid when the job names one.
// Grids the scenario does not use are not read.
func loadLayers(job *config.JobConfig, sc *scoring.Scenario) (scoring.Layers, *grid.Grid[float64], error) {
	names := make([]string, 0, len(sc.Inputs)+1)
	for _, wi := range sc.Inputs {
		names = append(names, wi.Input)
	}
	if sc.Override != "" {
		names = append(names, sc.Override)
	}

	layers := make(scoring.Layers, len(names))
	for _, name := range names {
		if _, ok := layers[name]; ok {
			continue
		}
		path, ok := job.Inputs[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: job has no grid for input %q", scoring.ErrMissingLayer, name)
		}
		g, err := grid.ReadFileAs[float64](path)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading input %s: %w", name, err)
		}
		layers[name] = g
	}

	var contextGrid *grid.Grid[float64]
	if job.Context != "" {
		g, err := grid.ReadFileAs[float64](job.Context)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading context grid: %w", err)
		}
		contextGrid = g
	}
	return layers, contextGrid, nil
}

func readMask(name, path string) (*grid.Grid[uint8], error) {
	g, err := grid.ReadFileAs[uint8](path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s grid: %w", name, err)
	}
	return g, nil
}
