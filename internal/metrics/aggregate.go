// Package metrics reduces classification and score grids to per-segment
// summary tables.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/vbet/internal/connectivity"
	"github.com/chrissnell/vbet/internal/grid"
)

// DefaultEdges bins composite scores at the usual valley-bottom cutoffs.
var DefaultEdges = []float64{0, 0.65, 0.85, 1}

// Summary table kinds.
const (
	KindClass       = "class"
	KindScore       = "score"
	KindClassWindow = "class_window"
	KindScoreWindow = "score_window"
)

// Kinds lists every summary table kind.
var Kinds = []string{KindClass, KindScore, KindClassWindow, KindScoreWindow}

var (
	// ErrBadEdges indicates fewer than two bin edges or edges out of order.
	ErrBadEdges = errors.New("metrics: bin edges must be at least two strictly increasing values")
	// ErrCellRange indicates a segment member outside the grid.
	ErrCellRange = errors.New("metrics: segment cell outside grid")
)

// Bin is the tally of one class or score range within a segment.
type Bin struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Area       float64 `json:"area"`
	Proportion float64 `json:"proportion"`
}

// Summary holds the statistics for one segment or moving window.
type Summary struct {
	SegmentID int64 `json:"segment_id"`
	LevelPath int64 `json:"level_path"`
	Seq       int   `json:"seq"`
	Window    int   `json:"window"`
	Cells     int   `json:"cells"`
	NoData    int   `json:"nodata"`

	// OutOfRange counts scored cells outside the bin edges. They are part
	// of Cells and the statistics but of no bin.
	OutOfRange int `json:"out_of_range"`

	// Empty is set when no member cell holds data; every count and
	// statistic is then zero.
	Empty bool    `json:"empty"`
	Area  float64 `json:"area"`
	Bins  []Bin   `json:"bins"`

	// Score statistics; zero for class summaries.
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Bin returns the bin with the given label.
func (s Summary) Bin(label string) (Bin, bool) {
	for _, b := range s.Bins {
		if b.Label == label {
			return b, true
		}
	}
	return Bin{}, false
}

// Aggregator computes segment summaries.
type Aggregator struct {
	edges  []float64
	logger *zap.SugaredLogger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithEdges sets the score bin edges. Bins are half-open [e[i], e[i+1]),
// except the last, which includes its upper edge.
func WithEdges(edges []float64) Option {
	return func(a *Aggregator) { a.edges = edges }
}

// WithLogger sets the aggregator's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator returns an Aggregator using DefaultEdges unless overridden.
func NewAggregator(opts ...Option) (*Aggregator, error) {
	a := &Aggregator{edges: DefaultEdges, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(a)
	}
	if len(a.edges) < 2 {
		return nil, ErrBadEdges
	}
	for i := 1; i < len(a.edges); i++ {
		if !(a.edges[i] > a.edges[i-1]) {
			return nil, fmt.Errorf("%w: %v", ErrBadEdges, a.edges)
		}
	}
	return a, nil
}

// Edges returns the score bin edges.
func (a *Aggregator) Edges() []float64 { return a.edges }

// Labels returns the score bin labels in order.
func (a *Aggregator) Labels() []string {
	labels := make([]string, len(a.edges)-1)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.2f-%.2f", a.edges[i], a.edges[i+1])
	}
	return labels
}

// ClassLabels are the bin labels of class summaries.
var ClassLabels = []string{
	connectivity.Connected.String(),
	connectivity.Disconnected.String(),
	connectivity.Unresolved.String(),
}

// Classes tallies connectivity classes per segment. NoData cells are
// counted in Summary.NoData and excluded from proportions.
func (a *Aggregator) Classes(classes *grid.Grid[connectivity.Class], segs []Segment) ([]Summary, error) {
	cellArea := classes.Geo().CellArea()
	out := make([]Summary, 0, len(segs))
	for _, seg := range segs {
		s := newSummary(seg, ClassLabels)
		for _, i := range seg.Cells {
			if i < 0 || i >= classes.Len() {
				return nil, fmt.Errorf("%w: segment %d cell %d", ErrCellRange, seg.ID, i)
			}
			c := classes.AtIndex(i)
			if c < connectivity.Connected || c > connectivity.Unresolved {
				s.NoData++
				continue
			}
			s.Bins[c-connectivity.Connected].Count++
			s.Cells++
		}
		s.finish(cellArea)
		out = append(out, s)
	}
	a.logger.Debugw("class summaries", "segments", len(out))
	return out, nil
}

// Scores bins composite scores per segment and records their mean,
// standard deviation and range.
func (a *Aggregator) Scores(scores *grid.Grid[float64], segs []Segment) ([]Summary, error) {
	cellArea := scores.Geo().CellArea()
	labels := a.Labels()
	last := len(a.edges) - 1
	out := make([]Summary, 0, len(segs))
	var vals []float64
	for _, seg := range segs {
		s := newSummary(seg, labels)
		vals = vals[:0]
		for _, i := range seg.Cells {
			if i < 0 || i >= scores.Len() {
				return nil, fmt.Errorf("%w: segment %d cell %d", ErrCellRange, seg.ID, i)
			}
			v := scores.Float(i)
			if math.IsNaN(v) {
				s.NoData++
				continue
			}
			vals = append(vals, v)
			s.Cells++
			if b := a.bin(v, last); b >= 0 {
				s.Bins[b].Count++
			} else {
				s.OutOfRange++
			}
		}
		s.finish(cellArea)
		if len(vals) > 0 {
			s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
			if len(vals) < 2 {
				s.StdDev = 0
			}
			s.Min, s.Max = floats.Min(vals), floats.Max(vals)
		}
		out = append(out, s)
	}
	a.logger.Debugw("score summaries", "segments", len(out), "bins", len(labels))
	return out, nil
}

// bin returns the index of the bin holding v, or -1 when v is outside the
// edges.
func (a *Aggregator) bin(v float64, last int) int {
	if v < a.edges[0] || v > a.edges[last] {
		return -1
	}
	if v == a.edges[last] {
		return last - 1
	}
	// First edge strictly greater than v closes v's bin.
	return sort.Search(len(a.edges), func(i int) bool { return a.edges[i] > v }) - 1
}

func newSummary(seg Segment, labels []string) Summary {
	s := Summary{
		SegmentID: seg.ID,
		LevelPath: seg.LevelPath,
		Seq:       seg.Seq,
		Window:    max(seg.Window, 1),
		Bins:      make([]Bin, len(labels)),
	}
	for i, l := range labels {
		s.Bins[i].Label = l
	}
	return s
}

func (s *Summary) finish(cellArea float64) {
	if s.Cells == 0 {
		s.Empty = true
		return
	}
	s.Area = float64(s.Cells) * cellArea
	// Proportions are shares of the binned cells, so they sum to 1
	// whenever any cell falls inside the edges.
	binned := s.Cells - s.OutOfRange
	for i := range s.Bins {
		b := &s.Bins[i]
		b.Area = float64(b.Count) * cellArea
		if binned > 0 {
			b.Proportion = float64(b.Count) / float64(binned)
		}
	}
}
