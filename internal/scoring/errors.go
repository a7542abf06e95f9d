package scoring

import (
	"errors"
	"fmt"
)

// Causes wrapped by ConfigError.
var (
	ErrNoInflections      = errors.New("transform has no inflection points")
	ErrInflectionRange    = errors.New("inflection output outside [0,1]")
	ErrInflectionValue    = errors.New("inflection value is not finite")
	ErrNotMonotonic       = errors.New("inflections violate the transform kind's monotonicity")
	ErrUnknownKind        = errors.New("unknown transform kind")
	ErrUnknownTransform   = errors.New("unknown transform")
	ErrUnknownInput       = errors.New("unknown input")
	ErrDuplicate          = errors.New("duplicate name")
	ErrBadZone            = errors.New("zone min must be below max")
	ErrAmbiguousBinding   = errors.New("input has both zones and a function")
	ErrUnboundInput       = errors.New("input has no zones and no function")
	ErrBadWeight          = errors.New("weight must be positive and finite")
	ErrEmptyScenario      = errors.New("scenario has no inputs")
	ErrUnknownScenario    = errors.New("unknown scenario")
	ErrUnknownCombination = errors.New("unknown combination kind")
	ErrOverrideValue      = errors.New("override value outside [0,1]")
)

// ErrZoneLookup is matched by every *ZoneLookupError via errors.Is.
var ErrZoneLookup = errors.New("zone lookup failed")

// ErrMissingLayer is returned when a scenario input has no raw grid.
var ErrMissingLayer = errors.New("missing input layer")

// ConfigError reports a configuration row that failed validation. It is only
// produced while a Library is built, never during evaluation.
type ConfigError struct {
	Object string // "transform", "zone", "function", "scenario", "input"
	Name   string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scoring config: %s %q: %v", e.Object, e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(object, name string, err error) error {
	return &ConfigError{Object: object, Name: name, Err: err}
}

// ZoneLookupError reports a context value matched by no zone (Matches == 0)
// or by several overlapping zones (Matches > 1).
type ZoneLookupError struct {
	Input   string
	Context float64
	Matches int
}

func (e *ZoneLookupError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("no zone of input %q contains context value %g", e.Input, e.Context)
	}
	return fmt.Sprintf("%d zones of input %q contain context value %g", e.Matches, e.Input, e.Context)
}

func (e *ZoneLookupError) Unwrap() error { return ErrZoneLookup }
