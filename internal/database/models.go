package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/vbet/internal/metrics"
)

// Summary kinds stored in SegmentSummary.Kind.
const (
	KindClass       = metrics.KindClass
	KindScore       = metrics.KindScore
	KindClassWindow = metrics.KindClassWindow
	KindScoreWindow = metrics.KindScoreWindow
)

// Run is one completed scoring and classification run.
type Run struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;column:id"`
	Name          string    `gorm:"column:name"`
	Scenario      string    `gorm:"column:scenario;not null"`
	StartedAt     time.Time `gorm:"column:started_at;not null"`
	FinishedAt    time.Time `gorm:"column:finished_at;not null"`
	Rows          int       `gorm:"column:rows"`
	Cols          int       `gorm:"column:cols"`
	NoDataCells   int       `gorm:"column:nodata_cells"`
	OverrideCells int       `gorm:"column:override_cells"`
	Connected     int       `gorm:"column:connected"`
	Disconnected  int       `gorm:"column:disconnected"`
	Unresolved    int       `gorm:"column:unresolved"`
	OutputDir     string    `gorm:"column:output_dir"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// SegmentSummary is one row of a per-segment summary table.
type SegmentSummary struct {
	ID         uint      `gorm:"primaryKey;autoIncrement;column:id"`
	RunID      uuid.UUID `gorm:"type:uuid;not null;index:idx_segment_summaries_run;column:run_id"`
	Kind       string    `gorm:"not null;index:idx_segment_summaries_run;column:kind"`
	SegmentID  int64     `gorm:"column:segment_id"`
	LevelPath  int64     `gorm:"column:level_path"`
	Seq        int       `gorm:"column:seq"`
	Window     int       `gorm:"column:window_size"`
	Cells      int       `gorm:"column:cells"`
	NoData     int       `gorm:"column:nodata"`
	OutOfRange int       `gorm:"column:out_of_range"`
	Empty      bool      `gorm:"column:empty"`
	Area       float64   `gorm:"column:area"`
	Bins       string    `gorm:"type:jsonb;column:bins"`
	Mean       float64   `gorm:"column:mean"`
	StdDev     float64   `gorm:"column:stddev"`
	Min        float64   `gorm:"column:min"`
	Max        float64   `gorm:"column:max"`
}

// TableName specifies the table name for SegmentSummary
func (SegmentSummary) TableName() string {
	return "segment_summaries"
}

// RunCell is one valley cell of a run, loaded with CopyCells.
type RunCell struct {
	RunID uuid.UUID `gorm:"type:uuid;not null;index;column:run_id"`
	Cell  int64     `gorm:"not null;column:cell"`
	Row   int32     `gorm:"column:row"`
	Col   int32     `gorm:"column:col"`
	Class int16     `gorm:"column:class"`
	Score *float64  `gorm:"column:score"`
}

// TableName specifies the table name for RunCell
func (RunCell) TableName() string {
	return "run_cells"
}

// SummaryRows converts aggregator output to table rows.
func SummaryRows(runID uuid.UUID, kind string, summaries []metrics.Summary) ([]SegmentSummary, error) {
	rows := make([]SegmentSummary, 0, len(summaries))
	for _, s := range summaries {
		bins, err := json.Marshal(s.Bins)
		if err != nil {
			return nil, err
		}
		rows = append(rows, SegmentSummary{
			RunID:      runID,
			Kind:       kind,
			SegmentID:  s.SegmentID,
			LevelPath:  s.LevelPath,
			Seq:        s.Seq,
			Window:     s.Window,
			Cells:      s.Cells,
			NoData:     s.NoData,
			OutOfRange: s.OutOfRange,
			Empty:      s.Empty,
			Area:       s.Area,
			Bins:       string(bins),
			Mean:       s.Mean,
			StdDev:     s.StdDev,
			Min:        s.Min,
			Max:        s.Max,
		})
	}
	return rows, nil
}
