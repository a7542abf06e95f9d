package grid

import (
	"fmt"
	"math"
)

// Shaped is satisfied by every *Grid[T] regardless of cell type.
type Shaped interface {
	Shape() (rows, cols int)
	Geo() GeoTransform
}

// Named pairs a grid with the name used in error messages.
type Named struct {
	Name string
	Grid Shaped
}

// CheckShape verifies that every grid shares the shape and geotransform of
// the first one. Nil grids are skipped.
func CheckShape(grids ...Named) error {
	var ref *Named
	for i := range grids {
		if grids[i].Grid == nil {
			continue
		}
		if ref == nil {
			ref = &grids[i]
			continue
		}
		rr, rc := ref.Grid.Shape()
		r, c := grids[i].Grid.Shape()
		if r != rr || c != rc {
			return fmt.Errorf("%w: %s is %dx%d, %s is %dx%d", ErrShapeMismatch, grids[i].Name, r, c, ref.Name, rr, rc)
		}
		if !sameGeo(ref.Grid.Geo(), grids[i].Grid.Geo()) {
			return fmt.Errorf("%w: %s and %s have different geotransforms", ErrShapeMismatch, grids[i].Name, ref.Name)
		}
	}
	return nil
}

func sameGeo(a, b GeoTransform) bool {
	const eps = 1e-9
	return math.Abs(a.OriginX-b.OriginX) < eps &&
		math.Abs(a.OriginY-b.OriginY) < eps &&
		math.Abs(a.CellSize-b.CellSize) < eps
}
