package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Zone selects the transform an input uses when the context value (stream
// size class, drainage area, ...) falls in [Min, Max). The highest zone of
// an input also admits Max itself.
type Zone struct {
	Input     string
	Min       float64
	Max       float64
	Transform *Transform
}

// binding is the resolved lookup for one input: either a sorted,
// non-overlapping zone list or a single context-free transform.
type binding struct {
	input string
	fixed *Transform
	zones []Zone
}

// lookup returns the transform for v and how many zones matched.
func (b *binding) lookup(v float64) (*Transform, int) {
	if b.fixed != nil {
		return b.fixed, 1
	}
	if math.IsNaN(v) {
		return nil, 0
	}
	// Last zone whose Min <= v.
	i := sort.Search(len(b.zones), func(i int) bool { return b.zones[i].Min > v }) - 1
	if i < 0 {
		return nil, 0
	}
	z := b.zones[i]
	if v < z.Max || (i == len(b.zones)-1 && v == z.Max) {
		return z.Transform, 1
	}
	return nil, 0
}

// Resolver picks the transform for (input, context value). It is built once
// from validated zones and is safe for concurrent use.
type Resolver struct {
	bindings map[string]*binding
}

// NewResolver indexes zones per input and checks them for overlap.
// functions binds context-free transforms to inputs that have no zones.
func NewResolver(zones []Zone, functions map[string]*Transform) (*Resolver, error) {
	r := &Resolver{bindings: make(map[string]*binding)}
	for _, z := range zones {
		if z.Transform == nil {
			return nil, configErr("zone", z.Input, ErrUnknownTransform)
		}
		if math.IsNaN(z.Min) || math.IsNaN(z.Max) || z.Min >= z.Max {
			return nil, configErr("zone", z.Input, fmt.Errorf("%w: [%g, %g)", ErrBadZone, z.Min, z.Max))
		}
		b, ok := r.bindings[z.Input]
		if !ok {
			b = &binding{input: z.Input}
			r.bindings[z.Input] = b
		}
		b.zones = append(b.zones, z)
	}

	for input, b := range r.bindings {
		sort.SliceStable(b.zones, func(i, j int) bool { return b.zones[i].Min < b.zones[j].Min })
		for i := 1; i < len(b.zones); i++ {
			prev, cur := b.zones[i-1], b.zones[i]
			if cur.Min < prev.Max {
				lookupErr := &ZoneLookupError{Input: input, Context: cur.Min, Matches: 2}
				return nil, configErr("zone", input, fmt.Errorf("[%g, %g) overlaps [%g, %g): %w",
					cur.Min, cur.Max, prev.Min, prev.Max, lookupErr))
			}
		}
	}

	for input, t := range functions {
		if _, ok := r.bindings[input]; ok {
			return nil, configErr("function", input, ErrAmbiguousBinding)
		}
		if t == nil {
			return nil, configErr("function", input, ErrUnknownTransform)
		}
		r.bindings[input] = &binding{input: input, fixed: t}
	}
	return r, nil
}

// Bound reports whether input has zones or a function.
func (r *Resolver) Bound(input string) bool {
	_, ok := r.bindings[input]
	return ok
}

// Zoned reports whether input's transform depends on the context value.
func (r *Resolver) Zoned(input string) bool {
	b, ok := r.bindings[input]
	return ok && b.fixed == nil
}

// Resolve returns the transform input uses at context value v.
func (r *Resolver) Resolve(input string, v float64) (*Transform, error) {
	b, ok := r.bindings[input]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInput, input)
	}
	t, n := b.lookup(v)
	if n != 1 {
		return nil, &ZoneLookupError{Input: input, Context: v, Matches: n}
	}
	return t, nil
}

// Zones returns the sorted zones of input.
func (r *Resolver) Zones(input string) []Zone {
	b, ok := r.bindings[input]
	if !ok {
		return nil
	}
	return append([]Zone(nil), b.zones...)
}

func (r *Resolver) binding(input string) *binding { return r.bindings[input] }
