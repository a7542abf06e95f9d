package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chrissnell/vbet/internal/connectivity"
	"github.com/chrissnell/vbet/internal/grid"
)

var runCellColumns = []string{"run_id", "cell", "row", "col", "class", "score"}

// cellSource streams valley cells into COPY without materializing rows.
type cellSource struct {
	runID   uuid.UUID
	classes *grid.Grid[connectivity.Class]
	scores  *grid.Grid[float64]
	i       int
	cur     []any
}

func newCellSource(runID uuid.UUID, classes *grid.Grid[connectivity.Class], scores *grid.Grid[float64]) *cellSource {
	return &cellSource{runID: runID, classes: classes, scores: scores, i: -1, cur: make([]any, len(runCellColumns))}
}

func (s *cellSource) Next() bool {
	for s.i++; s.i < s.classes.Len(); s.i++ {
		if s.classes.AtIndex(s.i) != connectivity.NoData {
			return true
		}
	}
	return false
}

func (s *cellSource) Values() ([]any, error) {
	r, c := s.classes.Coordinate(s.i)
	s.cur[0] = s.runID
	s.cur[1] = int64(s.i)
	s.cur[2] = int32(r)
	s.cur[3] = int32(c)
	s.cur[4] = int16(s.classes.AtIndex(s.i))
	s.cur[5] = nil
	if s.scores != nil && s.scores.Valid(s.i) {
		s.cur[5] = s.scores.AtIndex(s.i)
	}
	return s.cur, nil
}

func (s *cellSource) Err() error { return nil }

// CopyCells bulk-loads every valley cell of a run (class plus composite
// score when scores is not nil) into run_cells with COPY.
func (c *Client) CopyCells(ctx context.Context, runID uuid.UUID, classes *grid.Grid[connectivity.Class], scores *grid.Grid[float64]) (int64, error) {
	if scores != nil {
		if err := grid.CheckShape(
			grid.Named{Name: "classes", Grid: classes},
			grid.Named{Name: "scores", Grid: scores},
		); err != nil {
			return 0, err
		}
	}

	conn, err := pgx.Connect(ctx, c.connectionString)
	if err != nil {
		return 0, fmt.Errorf("failed to connect for cell copy: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{RunCell{}.TableName()}, runCellColumns, newCellSource(runID, classes, scores))
	if err != nil {
		return 0, fmt.Errorf("failed to copy run cells: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Infow("run cells copied", "run", runID, "cells", n)
	return n, nil
}
