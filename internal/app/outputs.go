package app

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chrissnell/vbet/internal/grid"
	"github.com/chrissnell/vbet/internal/metrics"
)

// outputs tracks the files written to a run directory, keyed by layer name.
type outputs struct {
	dir    string
	format string
	files  map[string]string
}

func writeLayer[T grid.Cell](out *outputs, name string, g *grid.Grid[T]) error {
	file := name + "." + out.format
	if err := grid.WriteFile(filepath.Join(out.dir, file), g); err != nil {
		return fmt.Errorf("error writing %s layer: %w", name, err)
	}
	out.files[name] = file
	return nil
}

func thresholdLayer(cutoff float64) string {
	return "threshold_" + strconv.FormatFloat(cutoff, 'f', -1, 64)
}

var summaryHeader = []string{
	"segment_id", "level_path", "seq", "window", "cells", "nodata", "out_of_range", "empty",
	"area", "mean", "stddev", "min", "max",
}

// writeSummaries stores one summary table as <kind>.csv. Each bin label
// adds a count and a proportion column.
func writeSummaries(out *outputs, kind string, labels []string, rows []metrics.Summary) error {
	file := kind + ".csv"
	f, err := os.Create(filepath.Join(out.dir, file))
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	header := append([]string(nil), summaryHeader...)
	for _, l := range labels {
		header = append(header, "count_"+l, "proportion_"+l)
	}
	w.Write(header)

	ff := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, s := range rows {
		rec := []string{
			strconv.FormatInt(s.SegmentID, 10),
			strconv.FormatInt(s.LevelPath, 10),
			strconv.Itoa(s.Seq),
			strconv.Itoa(s.Window),
			strconv.Itoa(s.Cells),
			strconv.Itoa(s.NoData),
			strconv.Itoa(s.OutOfRange),
			strconv.FormatBool(s.Empty),
			ff(s.Area), ff(s.Mean), ff(s.StdDev), ff(s.Min), ff(s.Max),
		}
		for _, l := range labels {
			b, _ := s.Bin(l)
			rec = append(rec, strconv.Itoa(b.Count), ff(b.Proportion))
		}
		w.Write(rec)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", file, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	out.files[kind] = file
	return nil
}
