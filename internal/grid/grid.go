// Package grid provides the row/column addressable raster shared by the
// scoring engine and the connectivity classifier.
//
// A Grid stores cells in row-major order with an explicit nodata sentinel.
// Grids taking part in one pass must share shape and geotransform; use
// CheckShape before touching any cell.
package grid

import (
	"fmt"
	"math"
)

// Cell enumerates the cell types a Grid can hold.
type Cell interface {
	~uint8 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// GeoTransform maps row/col to real-world coordinates. The core algorithms
// carry it along without interpreting it.
type GeoTransform struct {
	OriginX  float64 `msgpack:"ox" json:"origin_x"`
	OriginY  float64 `msgpack:"oy" json:"origin_y"`
	CellSize float64 `msgpack:"cs" json:"cell_size"`
}

// CellArea returns the area of one cell in squared map units.
// A zero cell size yields 1 so areas degrade to cell counts.
func (gt GeoTransform) CellArea() float64 {
	if gt.CellSize == 0 {
		return 1
	}
	return gt.CellSize * gt.CellSize
}

// Grid is a rows×cols raster. Cells are written while a grid is being built
// and treated as read-only once handed to an engine.
type Grid[T Cell] struct {
	rows, cols int
	nodata     T
	geo        GeoTransform
	data       []T
}

// New allocates a grid filled with the nodata value.
func New[T Cell](rows, cols int, nodata T) (*Grid[T], error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyGrid, rows, cols)
	}
	g := &Grid[T]{rows: rows, cols: cols, nodata: nodata, data: make([]T, rows*cols)}
	g.Fill(nodata)
	return g, nil
}

// FromRows copies a rectangular [][]T into a new grid.
func FromRows[T Cell](values [][]T, nodata T) (*Grid[T], error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	rows, cols := len(values), len(values[0])
	g := &Grid[T]{rows: rows, cols: cols, nodata: nodata, data: make([]T, 0, rows*cols)}
	for r, row := range values {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrNonRectangular, r, len(row), cols)
		}
		g.data = append(g.data, row...)
	}
	return g, nil
}

// FromSlice wraps data (row-major, len rows*cols) without copying.
func FromSlice[T Cell](rows, cols int, data []T, nodata T) (*Grid[T], error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrEmptyGrid
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d cells for %dx%d", ErrNonRectangular, len(data), rows, cols)
	}
	return &Grid[T]{rows: rows, cols: cols, nodata: nodata, data: data}, nil
}

// Like allocates a nodata-filled grid with the shape and geotransform of g.
func Like[T, U Cell](g *Grid[U], nodata T) *Grid[T] {
	out := &Grid[T]{rows: g.rows, cols: g.cols, nodata: nodata, geo: g.geo, data: make([]T, len(g.data))}
	out.Fill(nodata)
	return out
}

// Convert copies g into a grid of another cell type. Nodata cells map to the
// new nodata value.
func Convert[T, U Cell](g *Grid[U], nodata T) *Grid[T] {
	out := Like[T](g, nodata)
	for i, v := range g.data {
		if g.IsNoData(v) {
			continue
		}
		out.data[i] = T(v)
	}
	return out
}

func (g *Grid[T]) Rows() int { return g.rows }
func (g *Grid[T]) Cols() int { return g.cols }
func (g *Grid[T]) Len() int { return len(g.data) }
func (g *Grid[T]) NoData() T { return g.nodata }
func (g *Grid[T]) Geo() GeoTransform { return g.geo }
func (g *Grid[T]) SetGeo(gt GeoTransform) { g.geo = gt }
func (g *Grid[T]) Shape() (rows, cols int) { return g.rows, g.cols }
func (g *Grid[T]) Index(row, col int) int { return row*g.cols + col }
func (g *Grid[T]) Coordinate(i int) (r, c int) { return i / g.cols, i % g.cols }

// InBounds reports whether (row, col) lies inside the grid.
func (g *Grid[T]) InBounds(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// At returns the cell at (row, col). It panics outside the grid.
func (g *Grid[T]) At(row, col int) T { return g.data[row*g.cols+col] }

// AtIndex returns the cell at a row-major index.
func (g *Grid[T]) AtIndex(i int) T { return g.data[i] }

// Set writes a cell. Only the goroutine owning the row may call it.
func (g *Grid[T]) Set(row, col int, v T) { g.data[row*g.cols+col] = v }

// SetIndex writes a cell by row-major index.
func (g *Grid[T]) SetIndex(i int, v T) { g.data[i] = v }

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Values exposes the backing slice. Callers must not modify it.
func (g *Grid[T]) Values() []T { return g.data }

// IsNoData reports whether v is the sentinel. NaN always counts as nodata
// for float grids.
func (g *Grid[T]) IsNoData(v T) bool {
	return v == g.nodata || v != v
}

// Valid reports whether the cell at index i holds data.
func (g *Grid[T]) Valid(i int) bool { return !g.IsNoData(g.data[i]) }

// Truthy reports whether the cell at i is set in a mask: non-zero and not nodata.
func (g *Grid[T]) Truthy(i int) bool {
	v := g.data[i]
	return v != 0 && !g.IsNoData(v)
}

// Float returns the cell at i as float64, or NaN for nodata.
func (g *Grid[T]) Float(i int) float64 {
	v := g.data[i]
	if g.IsNoData(v) {
		return math.NaN()
	}
	return float64(v)
}

// CountValid returns the number of cells that hold data.
func (g *Grid[T]) CountValid() int {
	n := 0
	for _, v := range g.data {
		if !g.IsNoData(v) {
			n++
		}
	}
	return n
}

// Equal reports whether a and b have the same shape, nodata and cells.
func Equal[T Cell](a, b *Grid[T]) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	if a.nodata != b.nodata && !(a.nodata != a.nodata && b.nodata != b.nodata) {
		return false
	}
	for i := range a.data {
		if a.data[i] != b.data[i] && !(a.IsNoData(a.data[i]) && b.IsNoData(b.data[i])) {
			return false
		}
	}
	return true
}
