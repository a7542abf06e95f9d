// Package config loads scoring configuration (inputs, transforms, zones,
// scenarios) from YAML files or SQLite databases, and run jobs from YAML.
package config

import (
	"fmt"
	"path/filepath"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetInputs() ([]InputData, error)
	GetTransforms() ([]TransformData, error)
	GetZones() ([]ZoneData, error)
	GetFunctions() ([]FunctionData, error)
	GetScenarios() ([]ScenarioData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete scoring configuration
type ConfigData struct {
	Inputs     []InputData     `json:"inputs"`
	Transforms []TransformData `json:"transforms"`
	Zones      []ZoneData      `json:"zones,omitempty"`
	Functions  []FunctionData  `json:"functions,omitempty"`
	Scenarios  []ScenarioData  `json:"scenarios"`
}

// InputData describes one raw measurement layer
type InputData struct {
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Units         string  `json:"units,omitempty"`
	DefaultWeight float64 `json:"default_weight,omitempty"`
}

// TransformData is a named curve and its inflection points
type TransformData struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Inflections []InflectionData `json:"inflections"`
}

// InflectionData is one (input, output) point of a transform
type InflectionData struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ZoneData binds a transform to an input over a context range [Min, Max)
type ZoneData struct {
	Input     string  `json:"input"`
	Transform string  `json:"transform"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// FunctionData binds a transform to an input regardless of context
type FunctionData struct {
	Input     string `json:"input"`
	Transform string `json:"transform"`
}

// ScenarioData holds a weighted combination of inputs
type ScenarioData struct {
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Combination   string              `json:"combination,omitempty"`
	Inputs        []ScenarioInputData `json:"inputs"`
	Override      string              `json:"override,omitempty"`
	OverrideValue float64             `json:"override_value,omitempty"`
}

// ScenarioInputData is one weighted scenario member
type ScenarioInputData struct {
	Input  string  `json:"input"`
	Weight float64 `json:"weight,omitempty"`
}

// NewProvider opens the configuration source at filename using backend
// "yaml" or "sqlite".
func NewProvider(backend, filename string) (ConfigProvider, error) {
	filename, _ = filepath.Abs(filename)

	switch backend {
	case "yaml":
		return NewYAMLProvider(filename), nil
	case "sqlite":
		provider, err := NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", backend)
}
