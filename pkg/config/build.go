package config

import (
	"github.com/chrissnell/vbet/internal/scoring"
)

// Definition converts configuration rows to the scoring engine's form.
func (c *ConfigData) Definition() scoring.Definition {
	def := scoring.Definition{
		Inputs:     make([]scoring.Input, len(c.Inputs)),
		Transforms: make([]scoring.TransformDef, len(c.Transforms)),
		Zones:      make([]scoring.ZoneDef, len(c.Zones)),
		Functions:  make([]scoring.FunctionDef, len(c.Functions)),
		Scenarios:  make([]scoring.ScenarioDef, len(c.Scenarios)),
	}

	for i, in := range c.Inputs {
		def.Inputs[i] = scoring.Input(in)
	}
	for i, tr := range c.Transforms {
		points := make([]scoring.Inflection, len(tr.Inflections))
		for j, p := range tr.Inflections {
			points[j] = scoring.Inflection(p)
		}
		def.Transforms[i] = scoring.TransformDef{Name: tr.Name, Kind: tr.Type, Inflections: points}
	}
	for i, z := range c.Zones {
		def.Zones[i] = scoring.ZoneDef(z)
	}
	for i, f := range c.Functions {
		def.Functions[i] = scoring.FunctionDef(f)
	}
	for i, sc := range c.Scenarios {
		inputs := make([]scoring.WeightedInput, len(sc.Inputs))
		for j, in := range sc.Inputs {
			inputs[j] = scoring.WeightedInput(in)
		}
		def.Scenarios[i] = scoring.ScenarioDef{
			Name:          sc.Name,
			Description:   sc.Description,
			Combination:   sc.Combination,
			Inputs:        inputs,
			Override:      sc.Override,
			OverrideValue: sc.OverrideValue,
		}
	}
	return def
}

// Build validates the configuration and returns the scoring library. Every
// problem is reported here, before any cell is evaluated.
func Build(c *ConfigData) (*scoring.Library, error) {
	return scoring.NewLibrary(c.Definition())
}

// Load reads the configuration from provider and builds it.
func Load(provider ConfigProvider) (*scoring.Library, error) {
	data, err := provider.LoadConfig()
	if err != nil {
		return nil, err
	}
	return Build(data)
}
