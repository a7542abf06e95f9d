package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vbet/internal/scoring"
)

const defaultConfig = "../../configs/vbet.yaml"

func TestYAMLProviderDefaultConfig(t *testing.T) {
	provider := NewYAMLProvider(defaultConfig)
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	require.NoError(t, err)
	assert.True(t, provider.IsReadOnly())

	require.Len(t, cfg.Inputs, 3)
	assert.Equal(t, InputData{Name: "slope", Description: "Terrain slope", Units: "degrees", DefaultWeight: 0.65}, cfg.Inputs[0])
	require.Len(t, cfg.Transforms, 6)
	assert.Equal(t, []InflectionData{{0, 1}, {6, 0.5}, {12, 0}}, cfg.Transforms[0].Inflections)
	assert.Len(t, cfg.Zones, 6)

	sc, err := provider.GetScenarios()
	require.NoError(t, err)
	require.Len(t, sc, 2)
	assert.Equal(t, "channel", sc[0].Override)
	assert.Equal(t, 0.995, sc[0].OverrideValue)

	lib, err := Build(cfg)
	require.NoError(t, err)
	scenario, err := lib.Scenario("vbet")
	require.NoError(t, err)
	assert.Equal(t, []scoring.WeightedInput{{Input: "slope", Weight: 0.65}, {Input: "hand", Weight: 0.35}}, scenario.Inputs)
}

func TestParseYAMLRejectsUnknownKeys(t *testing.T) {
	_, err := ParseYAML([]byte("inputs:\n  - name: slope\n    weight: 1\n"))
	assert.Error(t, err)
}

func TestBuildReportsConfigErrors(t *testing.T) {
	cfg, err := NewYAMLProvider(defaultConfig).LoadConfig()
	require.NoError(t, err)

	cfg.Zones[1].Min = 0.5 // overlaps slope_small
	_, err = Build(cfg)
	var cfgErr *scoring.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, scoring.ErrZoneLookup)
}

func TestSQLiteRoundTrip(t *testing.T) {
	want, err := NewYAMLProvider(defaultConfig).LoadConfig()
	require.NoError(t, err)
	want.Functions = []FunctionData{{Input: "channel", Transform: "hand_small"}}

	dbPath := filepath.Join(t.TempDir(), "nested", "vbet.db")
	require.NoError(t, CreateSQLiteDatabase(dbPath, nil))

	provider, err := NewSQLiteProvider(dbPath)
	require.NoError(t, err)
	defer provider.Close()
	assert.False(t, provider.IsReadOnly())

	require.NoError(t, provider.SaveConfig(want))
	got, err := provider.LoadConfig()
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SQLite round trip mismatch (-yaml +sqlite):\n%s", diff)
	}

	// Saving again replaces rather than appends.
	require.NoError(t, provider.SaveConfig(want))
	inputs, err := provider.GetInputs()
	require.NoError(t, err)
	assert.Len(t, inputs, 3)

	// The upgraded schema is left at the latest version.
	require.NoError(t, CreateSQLiteDatabase(dbPath, nil))
}

func TestSQLiteSaveRejectsDanglingNames(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vbet.db")
	require.NoError(t, CreateSQLiteDatabase(dbPath, nil))
	provider, err := NewSQLiteProvider(dbPath)
	require.NoError(t, err)
	defer provider.Close()

	cfg := &ConfigData{
		Inputs:     []InputData{{Name: "slope"}},
		Transforms: []TransformData{{Name: "t", Type: "cubic", Inflections: []InflectionData{{0, 1}}}},
	}
	assert.ErrorContains(t, provider.SaveConfig(cfg), "unknown transform type")

	cfg.Transforms[0].Type = "Inverse"
	cfg.Zones = []ZoneData{{Input: "hand", Transform: "t", Min: 0, Max: 1}}
	assert.ErrorContains(t, provider.SaveConfig(cfg), `unknown input "hand"`)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("yaml", defaultConfig)
	require.NoError(t, err)
	assert.IsType(t, &YAMLProvider{}, p)

	_, err = NewProvider("toml", defaultConfig)
	assert.Error(t, err)
}

func writeJob(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadJob(t *testing.T) {
	path := writeJob(t, `
name: upper reach
inputs:
  slope: grids/slope.asc
  hand: /data/hand.vbg
context: grids/stream_size.asc
connectivity:
  flow-direction: grids/fd.asc
  channel: grids/channel.asc
  barriers:
    - name: roads
      path: grids/roads.asc
segments:
  ids: grids/dgo.asc
  window: 2
`)
	job, err := LoadJob(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "upper reach", job.Name)
	assert.Equal(t, DefaultScenario, job.Scenario)
	assert.Equal(t, filepath.Join(dir, "grids/slope.asc"), job.Inputs["slope"])
	assert.Equal(t, "/data/hand.vbg", job.Inputs["hand"])
	assert.Equal(t, filepath.Join(dir, "out"), job.OutputDir)
	assert.Equal(t, DefaultThresholds, job.Thresholds)
	assert.Equal(t, DefaultValleyThreshold, job.ValleyThreshold)
	assert.Equal(t, filepath.Join(dir, "grids/roads.asc"), job.Connectivity.Barriers[0].Path)
	assert.Equal(t, "", job.Connectivity.ValleyBottom)
	assert.Equal(t, DefaultBinEdges, job.Segments.BinEdges)
	assert.Equal(t, 2, job.Segments.Window)
	assert.Equal(t, DefaultOutputFormat, job.OutputFormat)
}

func TestLoadJobErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no inputs", "scenario: vbet\n"},
		{"threshold out of range", "inputs: {slope: s.asc}\nthresholds: [1.5]\n"},
		{"connectivity without channel", "inputs: {slope: s.asc}\nconnectivity: {flow-direction: fd.asc}\n"},
		{"segments without ids", "inputs: {slope: s.asc}\nsegments: {window: 1}\n"},
		{"database without dsn", "inputs: {slope: s.asc}\ndatabase: {copy-cells: true}\n"},
		{"unknown output format", "inputs: {slope: s.asc}\noutput-format: tif\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJob(writeJob(t, tt.body))
			assert.ErrorIs(t, err, ErrJob)
		})
	}

	_, err := LoadJob(writeJob(t, "inputs: {slope: s.asc}\nunknown: 1\n"))
	assert.Error(t, err)
}

func TestLoadExampleJob(t *testing.T) {
	job, err := LoadJob("../../configs/job.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "vbet", job.Scenario)
	assert.Len(t, job.Inputs, 3)
	require.NotNil(t, job.Connectivity)
	assert.Equal(t, []string{"roads", "railways"}, []string{job.Connectivity.Barriers[0].Name, job.Connectivity.Barriers[1].Name})
	assert.Nil(t, job.Database)
	require.NotNil(t, job.Report)
	assert.Equal(t, ":8080", job.Report.ListenAddr)
}
