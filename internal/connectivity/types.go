// Package connectivity classifies floodplain cells by whether D8 surface
// flow from them reaches the active channel before a barrier intercepts it.
//
// Every valley-bottom cell is traced downstream until it meets an already
// classified cell, the channel, a barrier, or a dead end (nodata flow
// direction, a step off the grid, or a cycle). The outcome is written to
// the whole traced path, so each cell is finalized exactly once.
package connectivity

import (
	"errors"

	"github.com/chrissnell/vbet/internal/grid"
)

// Class is the terminal classification of a cell.
type Class uint8

const (
	// NoData marks cells outside the valley bottom.
	NoData Class = iota
	// Connected cells drain to the active channel.
	Connected
	// Disconnected cells drain into a barrier first.
	Disconnected
	// Unresolved cells drain into a cycle, a nodata flow direction or off the grid.
	Unresolved
)

// Classes lists the terminal classes in order.
var Classes = []Class{NoData, Connected, Disconnected, Unresolved}

func (c Class) String() string {
	switch c {
	case NoData:
		return "nodata"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Unresolved:
		return "unresolved"
	}
	return "invalid"
}

// NoBlocker marks cells in Result.Blocker not disconnected by a barrier.
const NoBlocker int16 = -1

// Barrier is a named obstruction mask (roads, railroads, canals, ...).
type Barrier struct {
	Name string
	Mask *grid.Grid[uint8]
}

// Inputs bundles the co-registered grids the classifier reads.
type Inputs struct {
	// FlowDir holds D8 codes 1..8 (1=E, counter-clockwise to 8=SE).
	FlowDir      *grid.Grid[int32]
	Channel      *grid.Grid[uint8]
	ValleyBottom *grid.Grid[uint8]
	// Barriers are checked in order; the first layer flagging a cell is
	// recorded as the one that disconnected its path.
	Barriers []Barrier
}

// Stats summarizes one classification run.
type Stats struct {
	Cells    [4]int // valley cells per Class
	Traces   int    // traces started from unclassified seeds
	Steps    int    // cells claimed across all traces
	Cycles   int    // traces ended by a cycle
	Deferred int    // seeds retried after meeting another worker's trace
}

// Count returns the number of valley cells in class c.
func (s Stats) Count(c Class) int { return s.Cells[c] }

// Result is the output of Classify.
type Result struct {
	Classes *grid.Grid[Class]
	// Blocker holds, for Disconnected cells, the index into Inputs.Barriers
	// of the layer that intercepted the flow path; NoBlocker elsewhere.
	Blocker *grid.Grid[int16]
	Stats   Stats
}

var (
	// ErrMissingInput indicates a nil flow-direction, channel, valley or barrier grid.
	ErrMissingInput = errors.New("connectivity: missing input grid")
	// ErrBadScanOrder indicates a scan order that is not a permutation of the cells.
	ErrBadScanOrder = errors.New("connectivity: scan order is not a permutation of the grid cells")
)
