package grid

import "errors"

var (
	// ErrEmptyGrid indicates a grid with no rows or no columns.
	ErrEmptyGrid = errors.New("grid: must have at least one row and one column")
	// ErrNonRectangular indicates rows of differing lengths or a short backing slice.
	ErrNonRectangular = errors.New("grid: all rows must have the same length")
	// ErrShapeMismatch indicates grids of one pass with different extents.
	ErrShapeMismatch = errors.New("grid: shape mismatch")
	// ErrKindMismatch indicates a grid file holding a different cell type.
	ErrKindMismatch = errors.New("grid: cell type mismatch")
	// ErrBadFormat indicates an unreadable grid file.
	ErrBadFormat = errors.New("grid: bad file format")
)
