package grid

// MaskNoData is the nodata value of masks produced by this package.
const MaskNoData uint8 = 255

// Threshold returns a mask with 1 where g >= cutoff, 0 below it and
// MaskNoData where g has no data.
func Threshold[T Cell](g *Grid[T], cutoff float64) *Grid[uint8] {
	out := Like[uint8](g, MaskNoData)
	for i, v := range g.data {
		switch {
		case g.IsNoData(v):
		case float64(v) >= cutoff:
			out.data[i] = 1
		default:
			out.data[i] = 0
		}
	}
	return out
}

// Union returns a mask set wherever any input mask is set. Cells are nodata
// only where every input is nodata.
func Union(masks ...*Grid[uint8]) *Grid[uint8] {
	if len(masks) == 0 {
		return nil
	}
	out := Like[uint8](masks[0], MaskNoData)
	for _, m := range masks {
		for i, v := range m.data {
			if m.IsNoData(v) {
				continue
			}
			if v != 0 {
				out.data[i] = 1
			} else if out.data[i] == MaskNoData {
				out.data[i] = 0
			}
		}
	}
	return out
}
