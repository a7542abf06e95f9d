package grid

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	g, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}}, -9999)
	require.NoError(t, err)

	rows, cols := g.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 6.0, g.At(1, 2))
	assert.Equal(t, 4, g.Index(1, 1))

	r, c := g.Coordinate(5)
	assert.Equal(t, [2]int{1, 2}, [2]int{r, c})

	_, err = FromRows([][]float64{{1, 2}, {3}}, 0)
	assert.ErrorIs(t, err, ErrNonRectangular)

	_, err = FromRows[float64](nil, 0)
	assert.ErrorIs(t, err, ErrEmptyGrid)
}

func TestNoData(t *testing.T) {
	g, err := FromRows([][]float64{{-9999, math.NaN(), 0, 2}}, -9999)
	require.NoError(t, err)

	assert.False(t, g.Valid(0))
	assert.False(t, g.Valid(1), "NaN is always nodata")
	assert.True(t, g.Valid(2))
	assert.False(t, g.Truthy(2))
	assert.True(t, g.Truthy(3))
	assert.Equal(t, 2, g.CountValid())
	assert.True(t, math.IsNaN(g.Float(0)))
}

func TestCheckShape(t *testing.T) {
	a, _ := New[float64](3, 4, -1)
	b, _ := New[uint8](3, 4, 255)
	c, _ := New[int32](4, 3, -1)

	require.NoError(t, CheckShape(Named{"a", a}, Named{"b", b}, Named{"skip", nil}))

	err := CheckShape(Named{"a", a}, Named{"c", c})
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "c is 4x3")

	b.SetGeo(GeoTransform{CellSize: 10})
	assert.ErrorIs(t, CheckShape(Named{"a", a}, Named{"b", b}), ErrShapeMismatch)
}

func TestD8Downstream(t *testing.T) {
	// 3x3 grid, centre cell is index 4.
	tests := []struct {
		code int
		want int
		ok   bool
	}{
		{D8East, 5, true},
		{D8NorthEast, 2, true},
		{D8North, 1, true},
		{D8NorthWest, 0, true},
		{D8West, 3, true},
		{D8SouthWest, 6, true},
		{D8South, 7, true},
		{D8SouthEast, 8, true},
		{0, -1, false},
		{9, -1, false},
	}
	for _, tt := range tests {
		got, ok := D8Downstream(3, 3, 4, tt.code)
		assert.Equal(t, tt.ok, ok, "code %d", tt.code)
		assert.Equal(t, tt.want, got, "code %d", tt.code)
	}

	_, ok := D8Downstream(3, 3, 2, D8East)
	assert.False(t, ok, "stepping off the east edge")
}

func TestThreshold(t *testing.T) {
	g, _ := FromRows([][]float64{{0.1, 0.65, 0.9, -1}}, -1)

	low := Threshold(g, 0.65)
	assert.Equal(t, []uint8{0, 1, 1, MaskNoData}, low.Values())

	high := Threshold(g, 0.85)
	assert.Equal(t, []uint8{0, 0, 1, MaskNoData}, high.Values())

	u := Union(high, low)
	assert.Equal(t, []uint8{0, 1, 1, MaskNoData}, u.Values())
}

func TestMsgpackRoundTrip(t *testing.T) {
	g, _ := FromRows([][]int32{{1, 2}, {-1, 8}}, -1)
	g.SetGeo(GeoTransform{OriginX: 500000, OriginY: 4100000, CellSize: 10})

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	got, err := Decode[int32](bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, Equal(g, got))
	assert.Equal(t, g.Geo(), got.Geo())

	_, err = Decode[float64](bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestDecodeASCII(t *testing.T) {
	src := `ncols 3
nrows 2
xllcorner 100
yllcorner 200
cellsize 5
NODATA_value -9999
1 2 3
4 -9999 6
`
	g, err := DecodeASCII(strings.NewReader(src))
	require.NoError(t, err)

	if diff := cmp.Diff([]float64{1, 2, 3, 4, -9999, 6}, g.Values()); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, g.Valid(4))
	assert.Equal(t, GeoTransform{OriginX: 100, OriginY: 210, CellSize: 5}, g.Geo())

	var buf bytes.Buffer
	require.NoError(t, EncodeASCII(&buf, g))
	again, err := DecodeASCII(&buf)
	require.NoError(t, err)
	assert.True(t, Equal(g, again))
	assert.Equal(t, g.Geo(), again.Geo())
}

func TestDecodeASCIIErrors(t *testing.T) {
	_, err := DecodeASCII(strings.NewReader("ncols 2\n"))
	assert.ErrorIs(t, err, ErrBadFormat)

	_, err = DecodeASCII(strings.NewReader("ncols 2\nnrows 1\n1 x\n"))
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g, _ := FromRows([][]float64{{0.5, 1}, {-9999, 0}}, -9999)

	for _, name := range []string{"score.vbg", "score.asc"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, g))
		got, err := ReadFile[float64](path)
		require.NoError(t, err, name)
		assert.True(t, Equal(g, got), name)
	}
}

func TestReadASCIIAsMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.asc")
	g, _ := FromRows([][]float64{{1, 0}, {-9999, 1}}, -9999)
	require.NoError(t, WriteFile(path, g))

	mask, err := ReadFile[uint8](path)
	require.NoError(t, err)
	assert.Equal(t, MaskNoData, mask.NoData(), "-9999 does not fit in uint8")
	assert.Equal(t, []uint8{1, 0, MaskNoData, 1}, mask.Values())

	fd, err := ReadFile[int32](path)
	require.NoError(t, err)
	assert.Equal(t, int32(-9999), fd.NoData())
}

func TestReadFileAs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channel.vbg")
	src, err := FromRows([][]float64{{0, 1}, {-9999, 1}}, -9999)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, src))

	_, err = ReadFile[uint8](path)
	assert.ErrorIs(t, err, ErrKindMismatch)

	mask, err := ReadFileAs[uint8](path)
	require.NoError(t, err)
	assert.Equal(t, MaskNoData, mask.NoData())
	assert.Equal(t, []uint8{0, 1, MaskNoData, 1}, mask.Values())

	same, err := ReadFileAs[float64](path)
	require.NoError(t, err)
	assert.True(t, Equal(src, same))
}
