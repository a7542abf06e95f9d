package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// ParseYAML decodes a scoring configuration document.
func ParseYAML(data []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Inputs     []InputYAML     `yaml:"inputs"`
		Transforms []TransformYAML `yaml:"transforms"`
		Zones      []ZoneYAML      `yaml:"zones,omitempty"`
		Functions  []FunctionYAML  `yaml:"functions,omitempty"`
		Scenarios  []ScenarioYAML  `yaml:"scenarios"`
	}

	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Inputs:     make([]InputData, len(yamlConfig.Inputs)),
		Transforms: make([]TransformData, len(yamlConfig.Transforms)),
		Zones:      make([]ZoneData, len(yamlConfig.Zones)),
		Functions:  make([]FunctionData, len(yamlConfig.Functions)),
		Scenarios:  make([]ScenarioData, len(yamlConfig.Scenarios)),
	}

	for i, in := range yamlConfig.Inputs {
		config.Inputs[i] = InputData(in)
	}

	for i, tr := range yamlConfig.Transforms {
		config.Transforms[i] = TransformData{
			Name:        tr.Name,
			Type:        tr.Type,
			Inflections: make([]InflectionData, len(tr.Inflections)),
		}
		// Inflections are written as [input, output] pairs.
		for j, p := range tr.Inflections {
			config.Transforms[i].Inflections[j] = InflectionData{Input: p[0], Output: p[1]}
		}
	}

	for i, z := range yamlConfig.Zones {
		config.Zones[i] = ZoneData(z)
	}

	for i, f := range yamlConfig.Functions {
		config.Functions[i] = FunctionData(f)
	}

	for i, sc := range yamlConfig.Scenarios {
		config.Scenarios[i] = ScenarioData{
			Name:          sc.Name,
			Description:   sc.Description,
			Combination:   sc.Combination,
			Override:      sc.Override,
			OverrideValue: sc.OverrideValue,
			Inputs:        make([]ScenarioInputData, len(sc.Inputs)),
		}
		for j, in := range sc.Inputs {
			config.Scenarios[i].Inputs[j] = ScenarioInputData(in)
		}
	}

	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		return y.LoadConfig()
	}
	return y.config, nil
}

// GetInputs returns input configurations
func (y *YAMLProvider) GetInputs() ([]InputData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return cfg.Inputs, nil
}

// GetTransforms returns transform configurations
func (y *YAMLProvider) GetTransforms() ([]TransformData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return cfg.Transforms, nil
}

// GetZones returns zone configurations
func (y *YAMLProvider) GetZones() ([]ZoneData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return cfg.Zones, nil
}

// GetFunctions returns context-free transform bindings
func (y *YAMLProvider) GetFunctions() ([]FunctionData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return cfg.Functions, nil
}

// GetScenarios returns scenario configurations
func (y *YAMLProvider) GetScenarios() ([]ScenarioData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return cfg.Scenarios, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type InputYAML struct {
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description,omitempty"`
	Units         string  `yaml:"units,omitempty"`
	DefaultWeight float64 `yaml:"default-weight,omitempty"`
}

type TransformYAML struct {
	Name        string       `yaml:"name"`
	Type        string       `yaml:"type"`
	Inflections [][2]float64 `yaml:"inflections"`
}

type ZoneYAML struct {
	Input     string  `yaml:"input"`
	Transform string  `yaml:"transform"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

type FunctionYAML struct {
	Input     string `yaml:"input"`
	Transform string `yaml:"transform"`
}

type ScenarioYAML struct {
	Name          string              `yaml:"name"`
	Description   string              `yaml:"description,omitempty"`
	Combination   string              `yaml:"combination,omitempty"`
	Inputs        []ScenarioInputYAML `yaml:"inputs"`
	Override      string              `yaml:"override,omitempty"`
	OverrideValue float64             `yaml:"override-value,omitempty"`
}

type ScenarioInputYAML struct {
	Input  string  `yaml:"input"`
	Weight float64 `yaml:"weight,omitempty"`
}
