package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind names a transform family. It fixes how many inflections are allowed
// and which direction the curve may run.
type Kind string

const (
	// KindLinear is a straight ramp between exactly two inflections.
	KindLinear Kind = "linear"
	// KindIncreasing outputs are non-decreasing in the input.
	KindIncreasing Kind = "increasing"
	// KindInverse outputs are non-increasing in the input.
	KindInverse Kind = "inverse"
	// KindPiecewise accepts any curve, e.g. one derived from log-likelihood ratios.
	KindPiecewise Kind = "piecewise"
)

// Kinds lists the supported transform kinds.
var Kinds = []Kind{KindLinear, KindIncreasing, KindInverse, KindPiecewise}

// ParseKind maps a configuration string to a Kind. Matching ignores case.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Inflection is one (input, output) point of a transform curve.
type Inflection struct {
	Input  float64
	Output float64
}

// Transform maps a raw measurement to a score in [0,1] by interpolating
// between inflections and clamping outside them.
type Transform struct {
	name string
	kind Kind
	xs   []float64
	ys   []float64
}

// NewTransform validates the inflections and returns an immutable transform.
// Points are sorted by input; equal inputs form a vertical step.
func NewTransform(name string, kind Kind, points []Inflection) (*Transform, error) {
	if len(points) == 0 {
		return nil, configErr("transform", name, ErrNoInflections)
	}
	kind, err := ParseKind(string(kind))
	if err != nil {
		return nil, configErr("transform", name, err)
	}

	pts := append([]Inflection(nil), points...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Input < pts[j].Input })

	t := &Transform{name: name, kind: kind, xs: make([]float64, len(pts)), ys: make([]float64, len(pts))}
	for i, p := range pts {
		if math.IsNaN(p.Input) || math.IsInf(p.Input, 0) || math.IsNaN(p.Output) {
			return nil, configErr("transform", name, ErrInflectionValue)
		}
		if p.Output < 0 || p.Output > 1 {
			return nil, configErr("transform", name, fmt.Errorf("%w: (%g, %g)", ErrInflectionRange, p.Input, p.Output))
		}
		t.xs[i], t.ys[i] = p.Input, p.Output
	}

	switch kind {
	case KindLinear:
		if len(pts) != 2 {
			return nil, configErr("transform", name, fmt.Errorf("%w: linear needs 2 inflections, got %d", ErrNotMonotonic, len(pts)))
		}
	case KindIncreasing:
		for i := 1; i < len(t.ys); i++ {
			if t.ys[i] < t.ys[i-1] {
				return nil, configErr("transform", name, fmt.Errorf("%w: output falls at input %g", ErrNotMonotonic, t.xs[i]))
			}
		}
	case KindInverse:
		for i := 1; i < len(t.ys); i++ {
			if t.ys[i] > t.ys[i-1] {
				return nil, configErr("transform", name, fmt.Errorf("%w: output rises at input %g", ErrNotMonotonic, t.xs[i]))
			}
		}
	}
	return t, nil
}

func (t *Transform) Name() string { return t.name }
func (t *Transform) Kind() Kind { return t.kind }

// Inflections returns a copy of the sorted inflection points.
func (t *Transform) Inflections() []Inflection {
	out := make([]Inflection, len(t.xs))
	for i := range t.xs {
		out[i] = Inflection{Input: t.xs[i], Output: t.ys[i]}
	}
	return out
}

// Evaluate returns the score for x. NaN propagates.
func (t *Transform) Evaluate(x float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	n := len(t.xs)
	if x <= t.xs[0] {
		return t.ys[0]
	}
	if x >= t.xs[n-1] {
		return t.ys[n-1]
	}
	// First inflection with input >= x; j is in [1, n-1] after the clamps.
	j := sort.SearchFloat64s(t.xs, x)
	if t.xs[j] == x {
		return t.ys[j]
	}
	i := j - 1
	frac := (x - t.xs[i]) / (t.xs[j] - t.xs[i])
	return t.ys[i] + frac*(t.ys[j]-t.ys[i])
}

// EvaluateNoData is Evaluate with an explicit sentinel: x == nodata yields nodata.
func (t *Transform) EvaluateNoData(x, nodata float64) float64 {
	if x == nodata || math.IsNaN(x) {
		return nodata
	}
	return t.Evaluate(x)
}
