package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Defaults applied by LoadJob.
var (
	DefaultThresholds = []float64{0.65, 0.85}
	DefaultBinEdges   = []float64{0, 0.65, 0.85, 1}
)

const (
	DefaultScenario        = "vbet"
	DefaultOutputDir       = "out"
	DefaultValleyThreshold = 0.65
	DefaultOutputFormat    = "vbg"
)

// ErrJob reports an incomplete job file.
var ErrJob = errors.New("invalid job")

// JobConfig describes one run: where the grids are and what to produce.
// Relative paths are resolved against the job file's directory.
type JobConfig struct {
	Name            string            `yaml:"name,omitempty"`
	Scenario        string            `yaml:"scenario"`
	Inputs          map[string]string `yaml:"inputs"`
	Context         string            `yaml:"context,omitempty"`
	Workers         int               `yaml:"workers,omitempty"`
	OutputDir       string            `yaml:"output-dir,omitempty"`
	Thresholds      []float64         `yaml:"thresholds,omitempty"`
	InputLayers     bool              `yaml:"input-layers,omitempty"`
	Connectivity    *ConnectivityJob  `yaml:"connectivity,omitempty"`
	Segments        *SegmentsJob      `yaml:"segments,omitempty"`
	Database        *DatabaseJob      `yaml:"database,omitempty"`
	Report          *ReportJob        `yaml:"report,omitempty"`
	ValleyThreshold float64           `yaml:"valley-threshold,omitempty"`
	OutputFormat    string            `yaml:"output-format,omitempty"`
}

// ConnectivityJob configures the flow-connectivity classification.
type ConnectivityJob struct {
	FlowDirection string `yaml:"flow-direction"`
	Channel       string `yaml:"channel"`
	// ValleyBottom is optional; without it the valley is the composite
	// score thresholded at JobConfig.ValleyThreshold.
	ValleyBottom string       `yaml:"valley-bottom,omitempty"`
	Barriers     []BarrierJob `yaml:"barriers,omitempty"`
	Workers      int          `yaml:"workers,omitempty"`
}

// BarrierJob names one barrier mask, in precedence order.
type BarrierJob struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// SegmentsJob configures per-segment summaries.
type SegmentsJob struct {
	IDs        string    `yaml:"ids"`
	LevelPaths string    `yaml:"level-paths,omitempty"`
	Window     int       `yaml:"window,omitempty"`
	BinEdges   []float64 `yaml:"bin-edges,omitempty"`
}

// DatabaseJob configures persistence of run summaries.
type DatabaseJob struct {
	ConnectionString string `yaml:"connection-string"`
	CopyCells        bool   `yaml:"copy-cells,omitempty"`
}

// ReportJob configures the report server started by "vbet serve".
type ReportJob struct {
	ListenAddr string `yaml:"listen-addr"`
}

// LoadJob reads and validates a job file.
func LoadJob(filename string) (*JobConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var job JobConfig
	if err := yaml.UnmarshalStrict(data, &job); err != nil {
		return nil, fmt.Errorf("error parsing job file %s: %w", filename, err)
	}

	abs, _ := filepath.Abs(filename)
	job.setDefaults()
	job.resolvePaths(filepath.Dir(abs))

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *JobConfig) setDefaults() {
	if j.Scenario == "" {
		j.Scenario = DefaultScenario
	}
	if j.OutputDir == "" {
		j.OutputDir = DefaultOutputDir
	}
	if len(j.Thresholds) == 0 {
		j.Thresholds = DefaultThresholds
	}
	if j.ValleyThreshold == 0 {
		j.ValleyThreshold = DefaultValleyThreshold
	}
	if j.OutputFormat == "" {
		j.OutputFormat = DefaultOutputFormat
	}
	if j.Segments != nil && len(j.Segments.BinEdges) == 0 {
		j.Segments.BinEdges = DefaultBinEdges
	}
}

func (j *JobConfig) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	for name, p := range j.Inputs {
		resolve(&p)
		j.Inputs[name] = p
	}
	resolve(&j.Context)
	resolve(&j.OutputDir)
	if c := j.Connectivity; c != nil {
		resolve(&c.FlowDirection)
		resolve(&c.Channel)
		resolve(&c.ValleyBottom)
		for i := range c.Barriers {
			resolve(&c.Barriers[i].Path)
		}
	}
	if s := j.Segments; s != nil {
		resolve(&s.IDs)
		resolve(&s.LevelPaths)
	}
}

// Validate checks that every required grid path is present.
func (j *JobConfig) Validate() error {
	if len(j.Inputs) == 0 {
		return fmt.Errorf("%w: no input grids", ErrJob)
	}
	for name, p := range j.Inputs {
		if p == "" {
			return fmt.Errorf("%w: input %s has no path", ErrJob, name)
		}
	}
	for _, t := range j.Thresholds {
		if t < 0 || t > 1 {
			return fmt.Errorf("%w: threshold %g outside [0, 1]", ErrJob, t)
		}
	}
	if j.OutputFormat != "vbg" && j.OutputFormat != "asc" {
		return fmt.Errorf("%w: output-format must be vbg or asc, not %q", ErrJob, j.OutputFormat)
	}
	if c := j.Connectivity; c != nil {
		if c.FlowDirection == "" || c.Channel == "" {
			return fmt.Errorf("%w: connectivity needs flow-direction and channel grids", ErrJob)
		}
		for i, b := range c.Barriers {
			if b.Name == "" || b.Path == "" {
				return fmt.Errorf("%w: barrier %d needs a name and a path", ErrJob, i)
			}
		}
	}
	if s := j.Segments; s != nil {
		if s.IDs == "" {
			return fmt.Errorf("%w: segments need an id grid", ErrJob)
		}
		if s.Window < 0 {
			return fmt.Errorf("%w: negative segment window", ErrJob)
		}
	}
	if d := j.Database; d != nil && d.ConnectionString == "" {
		return fmt.Errorf("%w: database needs a connection-string", ErrJob)
	}
	return nil
}
