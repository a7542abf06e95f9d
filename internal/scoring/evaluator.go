package scoring

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/vbet/internal/grid"
)

// NoData is the sentinel written to score grids.
const NoData = -9999.0

// Layers maps input names to raw measurement grids.
type Layers map[string]*grid.Grid[float64]

// Result holds the grids produced by EvaluateGrid.
type Result struct {
	Composite *grid.Grid[float64]
	// Inputs holds the normalized score of every scenario input, when
	// requested with WithInputLayers.
	Inputs        map[string]*grid.Grid[float64]
	NoDataCells   int
	OverrideCells int
}

// Evaluator computes composite scores for one scenario. It holds no
// per-cell state and may be shared between goroutines.
type Evaluator struct {
	scenario    *Scenario
	bindings    []*binding
	weights     []float64
	workers     int
	inputLayers bool
	logger      *zap.SugaredLogger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWorkers bounds the number of row bands evaluated concurrently.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithInputLayers keeps the per-input normalized grids in the Result.
func WithInputLayers() Option {
	return func(e *Evaluator) { e.inputLayers = true }
}

// WithLogger sets the logger used for run summaries.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEvaluator prepares the named scenario of lib for evaluation.
func NewEvaluator(lib *Library, scenario string, opts ...Option) (*Evaluator, error) {
	sc, err := lib.Scenario(scenario)
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		scenario: sc,
		workers:  runtime.GOMAXPROCS(0),
		logger:   zap.NewNop().Sugar(),
	}
	for _, wi := range sc.Inputs {
		e.bindings = append(e.bindings, lib.resolver.binding(wi.Input))
		e.weights = append(e.weights, wi.Weight)
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Scenario returns the scenario being evaluated.
func (e *Evaluator) Scenario() *Scenario { return e.scenario }

// EvaluateCell scores one cell. raw holds every scenario input (and the
// override input, if any); NaN marks nodata. The result is NaN when the cell
// has no score.
func (e *Evaluator) EvaluateCell(raw map[string]float64, contextValue float64) (float64, error) {
	if e.scenario.Override != "" {
		if v, ok := raw[e.scenario.Override]; ok && overridePresent(v) {
			return e.scenario.OverrideValue, nil
		}
	}
	vals := make([]float64, len(e.bindings))
	for i, b := range e.bindings {
		v, ok := raw[b.input]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingLayer, b.input)
		}
		vals[i] = v
	}
	score, err := e.combine(vals, contextValue, nil)
	if err != nil {
		return 0, err
	}
	return score, nil
}

func overridePresent(v float64) bool {
	return !math.IsNaN(v) && v != 0
}

// combine transforms vals (NaN for nodata) and fuses them. When scores is
// non-nil the normalized value of every input is written to it. A cell with
// a nodata input, or a nodata context under a zoned input, is nodata before
// any zone is resolved.
func (e *Evaluator) combine(vals []float64, contextValue float64, scores []float64) (float64, error) {
	if e.missing(vals, contextValue) {
		for k := range scores {
			scores[k] = e.score(k, vals[k], contextValue)
		}
		return math.NaN(), nil
	}

	var acc float64
	switch e.scenario.Combination {
	case CombineMean:
		acc = 0
	default:
		acc = 1
	}
	for i, b := range e.bindings {
		t, n := b.lookup(contextValue)
		if n != 1 {
			return 0, &ZoneLookupError{Input: b.input, Context: contextValue, Matches: n}
		}
		s := t.Evaluate(vals[i])
		if scores != nil {
			scores[i] = s
		}
		w := e.weights[i]
		switch e.scenario.Combination {
		case CombineMean:
			acc += w * s
		case CombineGeometric:
			acc *= math.Pow(s, w/e.scenario.totalWeight)
		case CombineProduct:
			acc *= math.Pow(s, w)
		}
	}
	if e.scenario.Combination == CombineMean {
		acc /= e.scenario.totalWeight
	}
	return math.Max(0, math.Min(1, acc)), nil
}

// missing reports whether a cell is nodata regardless of its zones.
func (e *Evaluator) missing(vals []float64, contextValue float64) bool {
	for i, b := range e.bindings {
		if math.IsNaN(vals[i]) || (b.fixed == nil && math.IsNaN(contextValue)) {
			return true
		}
	}
	return false
}

// score is the normalized value v of input k, or NaN when v is nodata or no
// single zone holds contextValue.
func (e *Evaluator) score(k int, v, contextValue float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	t, n := e.bindings[k].lookup(contextValue)
	if n != 1 {
		return math.NaN()
	}
	return t.Evaluate(v)
}

// EvaluateGrid scores every cell. layers must hold a grid for every scenario
// input and for the override input; contextGrid may be nil only when no input
// is zoned. Shapes and zone coverage are checked before any cell is scored,
// so a failing call never yields partial output.
func (e *Evaluator) EvaluateGrid(ctx context.Context, layers Layers, contextGrid *grid.Grid[float64]) (*Result, error) {
	inputs := make([]*grid.Grid[float64], len(e.bindings))
	named := make([]grid.Named, 0, len(e.bindings)+2)
	zoned := false
	for i, b := range e.bindings {
		g, ok := layers[b.input]
		if !ok || g == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingLayer, b.input)
		}
		inputs[i] = g
		named = append(named, grid.Named{Name: b.input, Grid: g})
		zoned = zoned || b.fixed == nil
	}
	var override *grid.Grid[float64]
	if name := e.scenario.Override; name != "" {
		g, ok := layers[name]
		if !ok || g == nil {
			return nil, fmt.Errorf("%w: override %q", ErrMissingLayer, name)
		}
		override = g
		named = append(named, grid.Named{Name: name, Grid: g})
	}
	if contextGrid != nil {
		named = append(named, grid.Named{Name: "context", Grid: contextGrid})
	} else if zoned {
		return nil, fmt.Errorf("%w: context grid required by zoned inputs", ErrMissingLayer)
	}
	if err := grid.CheckShape(named...); err != nil {
		return nil, err
	}
	if err := e.checkZones(inputs, override, contextGrid); err != nil {
		return nil, err
	}

	ref := inputs[0]
	res := &Result{Composite: grid.Like[float64](ref, NoData)}
	var layerOut []*grid.Grid[float64]
	if e.inputLayers {
		res.Inputs = make(map[string]*grid.Grid[float64], len(inputs))
		for _, b := range e.bindings {
			g := grid.Like[float64](ref, NoData)
			res.Inputs[b.input] = g
			layerOut = append(layerOut, g)
		}
	}

	rows, cols := ref.Shape()
	band := bandSize(rows, e.workers)
	var nodata, overridden atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < rows; start += band {
		lo, hi := start, min(start+band, rows)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vals := make([]float64, len(inputs))
			scores := make([]float64, len(inputs))
			var nd, ov int64
			for i := lo * cols; i < hi*cols; i++ {
				if override != nil && overridePresent(override.Float(i)) {
					res.Composite.SetIndex(i, e.scenario.OverrideValue)
					ov++
					for k := range layerOut {
						layerOut[k].SetIndex(i, e.layerScore(inputs[k], contextGrid, k, i))
					}
					continue
				}
				for k, in := range inputs {
					vals[k] = in.Float(i)
				}
				cv := 0.0
				if contextGrid != nil {
					cv = contextGrid.Float(i)
				}
				var sp []float64
				if layerOut != nil {
					sp = scores
				}
				s, err := e.combine(vals, cv, sp)
				if err != nil {
					return err
				}
				for k := range layerOut {
					if !math.IsNaN(scores[k]) {
						layerOut[k].SetIndex(i, scores[k])
					}
				}
				if math.IsNaN(s) {
					nd++
					continue
				}
				res.Composite.SetIndex(i, s)
			}
			nodata.Add(nd)
			overridden.Add(ov)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.NoDataCells = int(nodata.Load())
	res.OverrideCells = int(overridden.Load())

	e.logger.Infow("scenario evaluated",
		"scenario", e.scenario.Name,
		"rows", rows, "cols", cols,
		"nodata_cells", res.NoDataCells,
		"override_cells", res.OverrideCells)
	return res, nil
}

// layerScore is the normalized score of input k at cell i, or NoData.
func (e *Evaluator) layerScore(in, contextGrid *grid.Grid[float64], k, i int) float64 {
	cv := math.NaN()
	if contextGrid != nil {
		cv = contextGrid.Float(i)
	}
	if s := e.score(k, in.Float(i), cv); !math.IsNaN(s) {
		return s
	}
	return NoData
}

// checkZones resolves every distinct context value for every zoned input.
// Only cells that reach the weighted combination count: override cells and
// cells with a nodata input never resolve a zone.
func (e *Evaluator) checkZones(inputs []*grid.Grid[float64], override, contextGrid *grid.Grid[float64]) error {
	if contextGrid == nil {
		return nil
	}
	vals := make([]float64, len(inputs))
	seen := make(map[float64]struct{})
	for i := 0; i < contextGrid.Len(); i++ {
		if override != nil && overridePresent(override.Float(i)) {
			continue
		}
		for k, in := range inputs {
			vals[k] = in.Float(i)
		}
		v := contextGrid.Float(i)
		if e.missing(vals, v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		for _, b := range e.bindings {
			if b.fixed != nil {
				continue
			}
			if _, n := b.lookup(v); n != 1 {
				return &ZoneLookupError{Input: b.input, Context: v, Matches: n}
			}
		}
	}
	return nil
}

// bandSize splits rows into about four bands per worker.
func bandSize(rows, workers int) int {
	if workers < 1 {
		workers = 1
	}
	n := rows / (workers * 4)
	if n < 1 {
		n = 1
	}
	return n
}
