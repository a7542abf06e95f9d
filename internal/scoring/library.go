// Package scoring turns raw per-cell measurements into normalized evidence
// scores and fuses them into a composite valley-bottom score.
//
// A Library is built once from configuration rows (inputs, transforms,
// inflections, zones, functions, scenarios) and is fully validated on
// construction. Evaluation never reports configuration errors; only data
// errors such as a context value outside every zone.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultOverrideValue is the composite score forced wherever a scenario's
// override input (normally the active channel) is present.
const DefaultOverrideValue = 0.995

// Combination selects how normalized input scores are fused.
type Combination string

const (
	// CombineMean is the weighted arithmetic mean Σw·s / Σw.
	CombineMean Combination = "mean"
	// CombineGeometric is the weighted geometric mean Π s^(w/Σw).
	CombineGeometric Combination = "geometric"
	// CombineProduct is the weighted product Π s^w.
	CombineProduct Combination = "product"
)

// ParseCombination maps a configuration string to a Combination. An empty
// string selects CombineMean.
func ParseCombination(s string) (Combination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mean", "weighted_mean", "sum":
		return CombineMean, nil
	case "geometric", "geometric_mean":
		return CombineGeometric, nil
	case "product":
		return CombineProduct, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCombination, s)
}

// Input is a named raw measurement source such as "slope" or "hand".
type Input struct {
	Name          string
	Description   string
	Units         string
	DefaultWeight float64
}

// TransformDef is the configuration form of a Transform.
type TransformDef struct {
	Name        string
	Kind        string
	Inflections []Inflection
}

// ZoneDef binds a transform to an input over a context range.
type ZoneDef struct {
	Input     string
	Transform string
	Min       float64
	Max       float64
}

// FunctionDef binds a context-free transform to an input.
type FunctionDef struct {
	Input     string
	Transform string
}

// WeightedInput is one (input, weight) pair of a scenario. A zero weight
// falls back to the input's DefaultWeight.
type WeightedInput struct {
	Input  string
	Weight float64
}

// ScenarioDef is the configuration form of a Scenario.
type ScenarioDef struct {
	Name          string
	Description   string
	Combination   string
	Inputs        []WeightedInput
	Override      string
	OverrideValue float64
}

// Definition is the complete set of scoring configuration rows.
type Definition struct {
	Inputs     []Input
	Transforms []TransformDef
	Zones      []ZoneDef
	Functions  []FunctionDef
	Scenarios  []ScenarioDef
}

// Scenario is a validated composite configuration.
type Scenario struct {
	Name          string
	Description   string
	Combination   Combination
	Inputs        []WeightedInput
	Override      string
	OverrideValue float64
	totalWeight   float64
}

// TotalWeight returns Σ weight over the scenario inputs.
func (s *Scenario) TotalWeight() float64 { return s.totalWeight }

// Library holds validated transforms, the zone resolver and scenarios.
type Library struct {
	inputs     map[string]Input
	transforms map[string]*Transform
	resolver   *Resolver
	scenarios  map[string]*Scenario
}

// NewLibrary validates def and indexes it. Any failure is a *ConfigError.
func NewLibrary(def Definition) (*Library, error) {
	lib := &Library{
		inputs:     make(map[string]Input, len(def.Inputs)),
		transforms: make(map[string]*Transform, len(def.Transforms)),
		scenarios:  make(map[string]*Scenario, len(def.Scenarios)),
	}

	for _, in := range def.Inputs {
		if _, dup := lib.inputs[in.Name]; dup {
			return nil, configErr("input", in.Name, ErrDuplicate)
		}
		if in.DefaultWeight < 0 || math.IsNaN(in.DefaultWeight) || math.IsInf(in.DefaultWeight, 0) {
			return nil, configErr("input", in.Name, ErrBadWeight)
		}
		lib.inputs[in.Name] = in
	}

	for _, td := range def.Transforms {
		if _, dup := lib.transforms[td.Name]; dup {
			return nil, configErr("transform", td.Name, ErrDuplicate)
		}
		kind, err := ParseKind(td.Kind)
		if err != nil {
			return nil, configErr("transform", td.Name, err)
		}
		t, err := NewTransform(td.Name, kind, td.Inflections)
		if err != nil {
			return nil, err
		}
		lib.transforms[td.Name] = t
	}

	zones := make([]Zone, 0, len(def.Zones))
	for _, zd := range def.Zones {
		if _, ok := lib.inputs[zd.Input]; !ok {
			return nil, configErr("zone", zd.Input, ErrUnknownInput)
		}
		t, ok := lib.transforms[zd.Transform]
		if !ok {
			return nil, configErr("zone", zd.Input, fmt.Errorf("%w: %q", ErrUnknownTransform, zd.Transform))
		}
		zones = append(zones, Zone{Input: zd.Input, Min: zd.Min, Max: zd.Max, Transform: t})
	}

	functions := make(map[string]*Transform, len(def.Functions))
	for _, fd := range def.Functions {
		if _, ok := lib.inputs[fd.Input]; !ok {
			return nil, configErr("function", fd.Input, ErrUnknownInput)
		}
		if _, dup := functions[fd.Input]; dup {
			return nil, configErr("function", fd.Input, ErrDuplicate)
		}
		t, ok := lib.transforms[fd.Transform]
		if !ok {
			return nil, configErr("function", fd.Input, fmt.Errorf("%w: %q", ErrUnknownTransform, fd.Transform))
		}
		functions[fd.Input] = t
	}

	resolver, err := NewResolver(zones, functions)
	if err != nil {
		return nil, err
	}
	lib.resolver = resolver

	for _, sd := range def.Scenarios {
		sc, err := lib.buildScenario(sd)
		if err != nil {
			return nil, err
		}
		if _, dup := lib.scenarios[sc.Name]; dup {
			return nil, configErr("scenario", sc.Name, ErrDuplicate)
		}
		lib.scenarios[sc.Name] = sc
	}
	return lib, nil
}

func (lib *Library) buildScenario(sd ScenarioDef) (*Scenario, error) {
	comb, err := ParseCombination(sd.Combination)
	if err != nil {
		return nil, configErr("scenario", sd.Name, err)
	}
	if len(sd.Inputs) == 0 {
		return nil, configErr("scenario", sd.Name, ErrEmptyScenario)
	}

	sc := &Scenario{
		Name:        sd.Name,
		Description: sd.Description,
		Combination: comb,
		Inputs:      make([]WeightedInput, 0, len(sd.Inputs)),
		Override:    sd.Override,
	}
	seen := make(map[string]bool, len(sd.Inputs))
	for _, wi := range sd.Inputs {
		in, ok := lib.inputs[wi.Input]
		if !ok {
			return nil, configErr("scenario", sd.Name, fmt.Errorf("%w: %q", ErrUnknownInput, wi.Input))
		}
		if seen[wi.Input] {
			return nil, configErr("scenario", sd.Name, fmt.Errorf("%w: input %q", ErrDuplicate, wi.Input))
		}
		seen[wi.Input] = true
		if !lib.resolver.Bound(wi.Input) {
			return nil, configErr("scenario", sd.Name, fmt.Errorf("%w: %q", ErrUnboundInput, wi.Input))
		}
		w := wi.Weight
		if w == 0 {
			w = in.DefaultWeight
		}
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, configErr("scenario", sd.Name, fmt.Errorf("%w: input %q has weight %g", ErrBadWeight, wi.Input, w))
		}
		sc.Inputs = append(sc.Inputs, WeightedInput{Input: wi.Input, Weight: w})
		sc.totalWeight += w
	}

	if sd.Override != "" {
		if _, ok := lib.inputs[sd.Override]; !ok {
			return nil, configErr("scenario", sd.Name, fmt.Errorf("%w: override %q", ErrUnknownInput, sd.Override))
		}
		sc.OverrideValue = sd.OverrideValue
		if sc.OverrideValue == 0 {
			sc.OverrideValue = DefaultOverrideValue
		}
		if sc.OverrideValue < 0 || sc.OverrideValue > 1 || math.IsNaN(sc.OverrideValue) {
			return nil, configErr("scenario", sd.Name, ErrOverrideValue)
		}
	}
	return sc, nil
}

// Scenario returns the named scenario.
func (lib *Library) Scenario(name string) (*Scenario, error) {
	sc, ok := lib.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return sc, nil
}

// ScenarioNames returns the scenario names in sorted order.
func (lib *Library) ScenarioNames() []string {
	names := make([]string, 0, len(lib.scenarios))
	for n := range lib.scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Transform returns the named transform.
func (lib *Library) Transform(name string) (*Transform, bool) {
	t, ok := lib.transforms[name]
	return t, ok
}

// Input returns the named input.
func (lib *Library) Input(name string) (Input, bool) {
	in, ok := lib.inputs[name]
	return in, ok
}

// Resolver returns the zone resolver.
func (lib *Library) Resolver() *Resolver { return lib.resolver }
