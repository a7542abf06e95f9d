package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vbet/internal/connectivity"
	"github.com/chrissnell/vbet/internal/grid"
)

func TestSegmentsFromGrid(t *testing.T) {
	ids, err := grid.FromRows([][]int32{
		{10, 10, 11, -1},
		{12, 11, 11, -1},
	}, -1)
	require.NoError(t, err)
	paths, err := grid.FromRows([][]int32{
		{1, 1, 1, -1},
		{2, 1, 1, -1},
	}, -1)
	require.NoError(t, err)

	segs, err := SegmentsFromGrid(ids, paths)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, Segment{ID: 10, LevelPath: 1, Seq: 0, Cells: []int{0, 1}, Window: 1}, segs[0])
	assert.Equal(t, Segment{ID: 11, LevelPath: 1, Seq: 1, Cells: []int{2, 5, 6}, Window: 1}, segs[1])
	assert.Equal(t, Segment{ID: 12, LevelPath: 2, Seq: 0, Cells: []int{4}, Window: 1}, segs[2])

	wide, _ := grid.New[int32](2, 5, -1)
	_, err = SegmentsFromGrid(ids, wide)
	assert.ErrorIs(t, err, grid.ErrShapeMismatch)
}

func TestClassSummaries(t *testing.T) {
	classes, err := grid.FromRows([][]connectivity.Class{
		{connectivity.Connected, connectivity.Connected, connectivity.Disconnected, connectivity.NoData},
	}, connectivity.NoData)
	require.NoError(t, err)
	classes.SetGeo(grid.GeoTransform{CellSize: 2})

	agg, err := NewAggregator()
	require.NoError(t, err)

	sums, err := agg.Classes(classes, []Segment{
		{ID: 1, Cells: []int{0, 1, 2, 3}},
		{ID: 2, Cells: []int{3}},
		{ID: 3},
	})
	require.NoError(t, err)
	require.Len(t, sums, 3)

	s := sums[0]
	assert.False(t, s.Empty)
	assert.Equal(t, 3, s.Cells)
	assert.Equal(t, 1, s.NoData)
	assert.Equal(t, 12.0, s.Area)
	conn, ok := s.Bin("connected")
	require.True(t, ok)
	assert.Equal(t, Bin{Label: "connected", Count: 2, Area: 8, Proportion: 2.0 / 3}, conn)
	disc, _ := s.Bin("disconnected")
	assert.Equal(t, 1, disc.Count)
	unres, _ := s.Bin("unresolved")
	assert.Equal(t, 0.0, unres.Proportion)

	for _, empty := range sums[1:] {
		assert.True(t, empty.Empty, "segment %d", empty.SegmentID)
		assert.Zero(t, empty.Area)
		for _, b := range empty.Bins {
			assert.Zero(t, b.Count)
			assert.False(t, math.IsNaN(b.Proportion))
		}
	}

	_, err = agg.Classes(classes, []Segment{{ID: 9, Cells: []int{4}}})
	assert.ErrorIs(t, err, ErrCellRange)
}

func TestScoreSummaries(t *testing.T) {
	scores, err := grid.FromRows([][]float64{{0.1, 0.65, 0.7, 0.9, 1, -9999}}, -9999)
	require.NoError(t, err)

	agg, err := NewAggregator()
	require.NoError(t, err)
	assert.Equal(t, []string{"0.00-0.65", "0.65-0.85", "0.85-1.00"}, agg.Labels())

	sums, err := agg.Scores(scores, []Segment{{ID: 1, Cells: []int{0, 1, 2, 3, 4, 5}}, {ID: 2, Cells: []int{3}}})
	require.NoError(t, err)

	s := sums[0]
	assert.Equal(t, 5, s.Cells)
	assert.Equal(t, 1, s.NoData)
	counts := []int{}
	for _, b := range s.Bins {
		counts = append(counts, b.Count)
	}
	assert.Equal(t, []int{1, 2, 2}, counts, "0.65 opens the middle bin, 1 closes the top bin")
	assert.InDelta(t, 0.67, s.Mean, 1e-12)
	assert.InDelta(t, 0.1, s.Min, 1e-12)
	assert.InDelta(t, 1.0, s.Max, 1e-12)
	assert.Greater(t, s.StdDev, 0.0)

	assert.Equal(t, 0.0, sums[1].StdDev, "single cell has no spread")
	assert.Equal(t, 0.9, sums[1].Mean)
}

func TestScoreSummariesOutOfRange(t *testing.T) {
	scores, err := grid.FromRows([][]float64{{0.2, 0.4, 0.6, 0.9}}, -9999)
	require.NoError(t, err)

	agg, err := NewAggregator(WithEdges([]float64{0.3, 0.5, 0.8}))
	require.NoError(t, err)

	sums, err := agg.Scores(scores, []Segment{{ID: 1, Cells: []int{0, 1, 2, 3}}, {ID: 2, Cells: []int{0}}})
	require.NoError(t, err)

	s := sums[0]
	assert.Equal(t, 4, s.Cells)
	assert.Equal(t, 2, s.OutOfRange)
	assert.InDelta(t, 0.525, s.Mean, 1e-12)
	total := 0.0
	for _, b := range s.Bins {
		assert.Equal(t, 1, b.Count, b.Label)
		total += b.Proportion
	}
	assert.InDelta(t, 1.0, total, 1e-12)

	// Nothing binned: no proportions, no division by zero.
	assert.Equal(t, 1, sums[1].OutOfRange)
	for _, b := range sums[1].Bins {
		assert.Zero(t, b.Proportion)
	}
}

func TestNewAggregatorEdges(t *testing.T) {
	_, err := NewAggregator(WithEdges([]float64{0.5}))
	assert.ErrorIs(t, err, ErrBadEdges)

	_, err = NewAggregator(WithEdges([]float64{0, 0.5, 0.5, 1}))
	assert.ErrorIs(t, err, ErrBadEdges)

	agg, err := NewAggregator(WithEdges([]float64{0, 0.5, 1}))
	require.NoError(t, err)
	assert.Equal(t, []string{"0.00-0.50", "0.50-1.00"}, agg.Labels())
}

func TestWindows(t *testing.T) {
	segs := []Segment{
		{ID: 3, LevelPath: 1, Seq: 2, Cells: []int{3}},
		{ID: 1, LevelPath: 1, Seq: 0, Cells: []int{1}},
		{ID: 2, LevelPath: 1, Seq: 1, Cells: []int{2}},
		{ID: 4, LevelPath: 1, Seq: 3, Cells: []int{4}},
		{ID: 9, LevelPath: 2, Seq: 0, Cells: []int{9}},
	}

	wins := Windows(segs, 1)
	require.Len(t, wins, len(segs))

	byID := map[int64]Segment{}
	for _, w := range wins {
		byID[w.ID] = w
	}
	assert.ElementsMatch(t, []int{1, 2}, byID[1].Cells, "upstream end is truncated")
	assert.Equal(t, 2, byID[1].Window)
	assert.ElementsMatch(t, []int{2, 3, 4}, byID[3].Cells)
	assert.Equal(t, 3, byID[3].Window)
	assert.ElementsMatch(t, []int{9}, byID[9].Cells, "windows never cross level paths")

	// Input order is preserved and the input is not modified.
	assert.Equal(t, int64(3), wins[0].ID)
	assert.Equal(t, []int{3}, segs[0].Cells)

	for _, n := range []int{0, -2} {
		wins := Windows(segs, n)
		require.Len(t, wins, len(segs))
		for i, w := range wins {
			assert.Equal(t, segs[i].Cells, w.Cells, "n=%d segment %d", n, w.ID)
			assert.Equal(t, 1, w.Window)
		}
	}
}

func TestWindowSummaries(t *testing.T) {
	classes, err := grid.FromRows([][]connectivity.Class{
		{connectivity.Connected, connectivity.Disconnected, connectivity.NoData, connectivity.Connected},
	}, connectivity.NoData)
	require.NoError(t, err)

	segs := []Segment{
		{ID: 1, LevelPath: 1, Seq: 0, Cells: []int{0}},
		{ID: 2, LevelPath: 1, Seq: 1, Cells: []int{2}},
		{ID: 3, LevelPath: 1, Seq: 2, Cells: []int{1, 3}},
	}
	agg, err := NewAggregator()
	require.NoError(t, err)

	plain, err := agg.Classes(classes, segs)
	require.NoError(t, err)
	assert.True(t, plain[1].Empty)

	moving, err := agg.Classes(classes, Windows(segs, 1))
	require.NoError(t, err)
	mid := moving[1]
	assert.False(t, mid.Empty, "a window borrows cells from its neighbours")
	assert.Equal(t, 3, mid.Window)
	assert.Equal(t, 3, mid.Cells)
	conn, _ := mid.Bin("connected")
	assert.InDelta(t, 2.0/3, conn.Proportion, 1e-12)
}
