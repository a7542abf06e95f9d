package grid

// D8 flow-direction codes, counter-clockwise from east.
const (
	D8East      = 1
	D8NorthEast = 2
	D8North     = 3
	D8NorthWest = 4
	D8West      = 5
	D8SouthWest = 6
	D8South     = 7
	D8SouthEast = 8
)

// d8Offsets[code] is the (drow, dcol) step for a D8 code. North is row-1.
var d8Offsets = [9][2]int{
	{0, 0},
	{0, 1},   // E
	{-1, 1},  // NE
	{-1, 0},  // N
	{-1, -1}, // NW
	{0, -1},  // W
	{1, -1},  // SW
	{1, 0},   // S
	{1, 1},   // SE
}

// D8Offset returns the row/col step for code and whether the code is valid.
func D8Offset(code int) (drow, dcol int, ok bool) {
	if code < 1 || code > 8 {
		return 0, 0, false
	}
	d := d8Offsets[code]
	return d[0], d[1], true
}

// D8Downstream returns the row-major index of the neighbour that cell i of a
// rows×cols grid drains to. ok is false for invalid codes and for steps that
// leave the grid.
func D8Downstream(rows, cols, i, code int) (next int, ok bool) {
	dr, dc, valid := D8Offset(code)
	if !valid {
		return -1, false
	}
	r, c := i/cols+dr, i%cols+dc
	if r < 0 || r >= rows || c < 0 || c >= cols {
		return -1, false
	}
	return r*cols + c, true
}
