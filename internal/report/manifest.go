// Package report records completed runs on disk and serves them over HTTP.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/vbet/internal/connectivity"
	"github.com/chrissnell/vbet/internal/metrics"
)

// ManifestFile is the name of the run record inside a run directory.
const ManifestFile = "summary.json"

// ErrNoRun is returned when a run directory holds no manifest.
var ErrNoRun = errors.New("run not found")

// Connectivity is the classification tally of a run.
type Connectivity struct {
	Connected    int            `json:"connected"`
	Disconnected int            `json:"disconnected"`
	Unresolved   int            `json:"unresolved"`
	Traces       int            `json:"traces"`
	Steps        int            `json:"steps"`
	Cycles       int            `json:"cycles"`
	Deferred     int            `json:"deferred"`
	Barriers     []string       `json:"barriers,omitempty"`
	BlockedBy    map[string]int `json:"blocked_by,omitempty"`
}

// ConnectivityFromStats copies classifier counters into a Connectivity.
func ConnectivityFromStats(s connectivity.Stats) *Connectivity {
	return &Connectivity{
		Connected:    s.Count(connectivity.Connected),
		Disconnected: s.Count(connectivity.Disconnected),
		Unresolved:   s.Count(connectivity.Unresolved),
		Traces:       s.Traces,
		Steps:        s.Steps,
		Cycles:       s.Cycles,
		Deferred:     s.Deferred,
	}
}

// Manifest describes one run and everything it produced. Output paths are
// relative to the run directory.
type Manifest struct {
	ID            uuid.UUID         `json:"id"`
	Name          string            `json:"name,omitempty"`
	Scenario      string            `json:"scenario"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	Rows          int               `json:"rows"`
	Cols          int               `json:"cols"`
	NoDataCells   int               `json:"nodata_cells"`
	OverrideCells int               `json:"override_cells"`
	Thresholds    []float64         `json:"thresholds,omitempty"`
	Connectivity  *Connectivity     `json:"connectivity,omitempty"`
	Outputs       map[string]string `json:"outputs"`

	ClassSummaries []metrics.Summary `json:"class_summaries,omitempty"`
	ScoreSummaries []metrics.Summary `json:"score_summaries,omitempty"`
	ClassWindows   []metrics.Summary `json:"class_windows,omitempty"`
	ScoreWindows   []metrics.Summary `json:"score_windows,omitempty"`
}

// Summaries returns the summary table of the given kind.
func (m *Manifest) Summaries(kind string) ([]metrics.Summary, bool) {
	switch kind {
	case metrics.KindClass:
		return m.ClassSummaries, true
	case metrics.KindScore:
		return m.ScoreSummaries, true
	case metrics.KindClassWindow:
		return m.ClassWindows, true
	case metrics.KindScoreWindow:
		return m.ScoreWindows, true
	}
	return nil, false
}

// RunInfo is the listing entry for a run, without its summary tables.
type RunInfo struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name,omitempty"`
	Scenario   string    `json:"scenario"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Segments   int       `json:"segments"`
}

// Info returns the listing entry for m.
func (m *Manifest) Info() RunInfo {
	n := len(m.ScoreSummaries)
	if len(m.ClassSummaries) > n {
		n = len(m.ClassSummaries)
	}
	return RunInfo{
		ID:         m.ID,
		Name:       m.Name,
		Scenario:   m.Scenario,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Rows:       m.Rows,
		Cols:       m.Cols,
		Segments:   n,
	}
}

// WriteManifest stores m as dir/summary.json, creating dir if needed.
func WriteManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, ManifestFile))
}

// ReadManifest loads dir/summary.json.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoRun, dir)
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", dir, err)
	}
	return &m, nil
}

// ListManifests loads every run directory directly below root, most recent
// first. Directories without a manifest and hidden staging directories are
// skipped.
func ListManifests(root string) ([]*Manifest, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var runs []*Manifest
	for _, e := range entries {
		// Hidden directories are runs still being staged.
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m, err := ReadManifest(filepath.Join(root, e.Name()))
		if errors.Is(err, ErrNoRun) {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, m)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}
