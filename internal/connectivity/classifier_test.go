package connectivity

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chrissnell/vbet/internal/grid"
)

const fdNoData int32 = -1

func mask(t *testing.T, rows [][]uint8) *grid.Grid[uint8] {
	t.Helper()
	g, err := grid.FromRows(rows, grid.MaskNoData)
	require.NoError(t, err)
	return g
}

func flow(t *testing.T, rows [][]int32) *grid.Grid[int32] {
	t.Helper()
	g, err := grid.FromRows(rows, fdNoData)
	require.NoError(t, err)
	return g
}

func filled(t *testing.T, rows, cols int, v uint8) *grid.Grid[uint8] {
	t.Helper()
	g, err := grid.New[uint8](rows, cols, grid.MaskNoData)
	require.NoError(t, err)
	g.Fill(v)
	return g
}

func classRows(res *Result) [][]Class {
	rows, cols := res.Classes.Shape()
	out := make([][]Class, rows)
	for r := range out {
		out[r] = make([]Class, cols)
		for c := range out[r] {
			out[r][c] = res.Classes.At(r, c)
		}
	}
	return out
}

func TestClassifyEastIntoChannel(t *testing.T) {
	in := Inputs{
		FlowDir:      flow(t, [][]int32{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}}),
		Channel:      mask(t, [][]uint8{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}),
		ValleyBottom: filled(t, 3, 3, 1),
	}
	res, err := Classify(context.Background(), in)
	require.NoError(t, err)

	for _, row := range classRows(res) {
		for _, c := range row {
			assert.Equal(t, Connected, c)
		}
	}
	assert.Equal(t, 9, res.Stats.Count(Connected))
	assert.Equal(t, 3, res.Stats.Traces, "one trace per row, the rest memoized")
	assert.Equal(t, 9, res.Stats.Steps, "every cell claimed exactly once")
}

func TestClassifyCycle(t *testing.T) {
	in := Inputs{
		FlowDir:      flow(t, [][]int32{{grid.D8East, grid.D8West}}),
		Channel:      filled(t, 1, 2, 0),
		ValleyBottom: filled(t, 1, 2, 1),
	}
	res, err := Classify(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, [][]Class{{Unresolved, Unresolved}}, classRows(res))
	assert.Equal(t, 1, res.Stats.Cycles)
}

func TestClassifyBarrier(t *testing.T) {
	in := Inputs{
		FlowDir:      flow(t, [][]int32{{1, 1, 1, 1, 1}}),
		Channel:      mask(t, [][]uint8{{0, 0, 0, 0, 1}}),
		ValleyBottom: filled(t, 1, 5, 1),
		Barriers: []Barrier{
			{Name: "roads", Mask: mask(t, [][]uint8{{0, 0, 0, 1, 0}})},
			{Name: "railroads", Mask: mask(t, [][]uint8{{0, 1, 0, 1, 0}})},
		},
	}
	res, err := Classify(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, [][]Class{{Disconnected, Disconnected, Disconnected, Disconnected, Connected}}, classRows(res))
	// Cells 0-1 hit the railroad first; cells 2-3 hit the road, which wins
	// over the railroad on the cell both flag.
	want := []int16{1, 1, 0, 0, NoBlocker}
	assert.Equal(t, want, res.Blocker.Values())
}

func TestClassifyDeadEnds(t *testing.T) {
	in := Inputs{
		// Row 0 runs off the east edge, row 1 reaches a nodata flow
		// direction, row 2 holds an invalid code.
		FlowDir:      flow(t, [][]int32{{1, 1, 1}, {1, 1, fdNoData}, {1, 9, 1}}),
		Channel:      filled(t, 3, 3, 0),
		ValleyBottom: filled(t, 3, 3, 1),
	}
	res, err := Classify(context.Background(), in)
	require.NoError(t, err)

	for _, row := range classRows(res) {
		for _, c := range row {
			assert.Equal(t, Unresolved, c)
		}
	}
	assert.Equal(t, 0, res.Stats.Cycles)
}

func TestClassifyTraversesOutsideValley(t *testing.T) {
	in := Inputs{
		FlowDir:      flow(t, [][]int32{{1, 1, 1}}),
		Channel:      mask(t, [][]uint8{{0, 0, 1}}),
		ValleyBottom: mask(t, [][]uint8{{1, 0, 0}}),
	}
	res, err := Classify(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, [][]Class{{Connected, NoData, NoData}}, classRows(res))
	assert.Equal(t, 1, res.Stats.Count(Connected))
	assert.Equal(t, 0, res.Stats.Count(NoData), "only valley cells are counted")
}

func TestClassifyChannelBeatsBarrier(t *testing.T) {
	in := Inputs{
		FlowDir:      flow(t, [][]int32{{1, 1}}),
		Channel:      mask(t, [][]uint8{{0, 1}}),
		ValleyBottom: filled(t, 1, 2, 1),
		Barriers:     []Barrier{{Name: "levee", Mask: mask(t, [][]uint8{{0, 1}})}},
	}
	res, err := Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, [][]Class{{Connected, Connected}}, classRows(res))
}

func TestClassifyErrors(t *testing.T) {
	ok := Inputs{
		FlowDir:      flow(t, [][]int32{{1, 1}}),
		Channel:      filled(t, 1, 2, 0),
		ValleyBottom: filled(t, 1, 2, 1),
	}

	tests := []struct {
		name string
		in   Inputs
		opts []Option
		want error
	}{
		{
			name: "missing flow direction",
			in:   Inputs{Channel: ok.Channel, ValleyBottom: ok.ValleyBottom},
			want: ErrMissingInput,
		},
		{
			name: "nil barrier mask",
			in:   Inputs{FlowDir: ok.FlowDir, Channel: ok.Channel, ValleyBottom: ok.ValleyBottom, Barriers: []Barrier{{Name: "roads"}}},
			want: ErrMissingInput,
		},
		{
			name: "shape mismatch",
			in:   Inputs{FlowDir: ok.FlowDir, Channel: filled(t, 2, 2, 0), ValleyBottom: ok.ValleyBottom},
			want: grid.ErrShapeMismatch,
		},
		{
			name: "short scan order",
			in:   ok,
			opts: []Option{WithScanOrder([]int{0})},
			want: ErrBadScanOrder,
		},
		{
			name: "repeated scan index",
			in:   ok,
			opts: []Option{WithScanOrder([]int{1, 1})},
			want: ErrBadScanOrder,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(context.Background(), tt.in, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// randomInputs builds a landscape with random flow directions, so it is
// full of cycles, convergent paths, barriers and dead ends.
func randomInputs(t *testing.T, rows, cols int, seed int64) Inputs {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	fd, err := grid.New[int32](rows, cols, fdNoData)
	require.NoError(t, err)
	channel := filled(t, rows, cols, 0)
	valley := filled(t, rows, cols, 0)
	roads := filled(t, rows, cols, 0)
	canals := filled(t, rows, cols, 0)
	for i := 0; i < rows*cols; i++ {
		switch p := rng.Float64(); {
		case p < 0.02:
			fd.SetIndex(i, fdNoData)
		default:
			fd.SetIndex(i, int32(1+rng.Intn(8)))
		}
		if rng.Float64() < 0.08 {
			channel.SetIndex(i, 1)
		}
		if rng.Float64() < 0.85 {
			valley.SetIndex(i, 1)
		}
		if rng.Float64() < 0.03 {
			roads.SetIndex(i, 1)
		}
		if rng.Float64() < 0.03 {
			canals.SetIndex(i, 1)
		}
	}
	return Inputs{
		FlowDir:      fd,
		Channel:      channel,
		ValleyBottom: valley,
		Barriers:     []Barrier{{Name: "roads", Mask: roads}, {Name: "canals", Mask: canals}},
	}
}

func TestClassifyOrderIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	const rows, cols = 41, 37
	in := randomInputs(t, rows, cols, 7)
	base, err := Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, base.Stats.Deferred)

	n := rows * cols
	reverse := make([]int, n)
	for i := range reverse {
		reverse[i] = n - 1 - i
	}
	shuffled := rand.New(rand.NewSource(99)).Perm(n)

	runs := map[string][]Option{
		"reverse":            {WithScanOrder(reverse)},
		"shuffled":           {WithScanOrder(shuffled)},
		"4 workers":          {WithWorkers(4)},
		"16 workers":         {WithWorkers(16)},
		"8 workers shuffled": {WithWorkers(8), WithScanOrder(shuffled)},
	}
	for name, opts := range runs {
		t.Run(name, func(t *testing.T) {
			got, err := Classify(context.Background(), in, opts...)
			require.NoError(t, err)
			if diff := cmp.Diff(base.Classes.Values(), got.Classes.Values()); diff != "" {
				t.Errorf("classes differ (-raster +%s):\n%s", name, diff)
			}
			if diff := cmp.Diff(base.Blocker.Values(), got.Blocker.Values()); diff != "" {
				t.Errorf("blockers differ (-raster +%s):\n%s", name, diff)
			}
			assert.Equal(t, base.Stats.Cells, got.Stats.Cells)
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	in := randomInputs(t, 25, 25, 3)
	first, err := Classify(context.Background(), in)
	require.NoError(t, err)

	second, err := Classify(context.Background(), in, WithPrior(first))
	require.NoError(t, err)

	assert.True(t, grid.Equal(first.Classes, second.Classes))
	assert.True(t, grid.Equal(first.Blocker, second.Blocker))
	assert.Equal(t, first.Stats.Cells, second.Stats.Cells)
	assert.Zero(t, second.Stats.Traces, "every valley cell was already terminal")
}

func TestClassifyEveryValleyCellTerminal(t *testing.T) {
	in := randomInputs(t, 30, 30, 5)
	res, err := Classify(context.Background(), in, WithWorkers(3))
	require.NoError(t, err)

	total := 0
	for i, c := range res.Classes.Values() {
		if !in.ValleyBottom.Truthy(i) {
			assert.Equal(t, NoData, c)
			continue
		}
		total++
		assert.Contains(t, []Class{Connected, Disconnected, Unresolved}, c, "cell %d", i)
		if c == Disconnected {
			assert.NotEqual(t, NoBlocker, res.Blocker.AtIndex(i))
		} else {
			assert.Equal(t, NoBlocker, res.Blocker.AtIndex(i))
		}
	}
	assert.Equal(t, total, res.Stats.Count(Connected)+res.Stats.Count(Disconnected)+res.Stats.Count(Unresolved))
}

func TestClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Classify(ctx, randomInputs(t, 10, 10, 1), WithWorkers(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unresolved", Unresolved.String())
	assert.Equal(t, "invalid", Class(9).String())
}
