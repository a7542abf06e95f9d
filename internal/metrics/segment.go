package metrics

import (
	"sort"

	"github.com/chrissnell/vbet/internal/grid"
)

// Segment is one aggregation unit (a DGO): a set of member cells plus its
// position along a level path.
type Segment struct {
	ID        int64
	LevelPath int64
	Seq       int   // position along LevelPath, upstream first
	Cells     []int // row-major cell indices
	// Window is the number of segments merged into this one by Windows;
	// zero or one for a plain segment.
	Window int
}

// SegmentsFromGrid collects segment membership from a rasterized segment id
// grid. levelPaths is optional; when present each segment takes the level
// path of its first cell. Segments are numbered along each level path in
// ascending id order, which matches how DGO ids are assigned downstream.
func SegmentsFromGrid(ids *grid.Grid[int32], levelPaths *grid.Grid[int32]) ([]Segment, error) {
	if levelPaths != nil {
		if err := grid.CheckShape(
			grid.Named{Name: "segment ids", Grid: ids},
			grid.Named{Name: "level paths", Grid: levelPaths},
		); err != nil {
			return nil, err
		}
	}

	index := make(map[int32]int)
	var segs []Segment
	for i, id := range ids.Values() {
		if ids.IsNoData(id) {
			continue
		}
		k, ok := index[id]
		if !ok {
			k = len(segs)
			index[id] = k
			seg := Segment{ID: int64(id), Window: 1}
			if levelPaths != nil && levelPaths.Valid(i) {
				seg.LevelPath = int64(levelPaths.AtIndex(i))
			}
			segs = append(segs, seg)
		}
		segs[k].Cells = append(segs[k].Cells, i)
	}

	sort.Slice(segs, func(a, b int) bool {
		if segs[a].LevelPath != segs[b].LevelPath {
			return segs[a].LevelPath < segs[b].LevelPath
		}
		return segs[a].ID < segs[b].ID
	})
	for i := range segs {
		if i > 0 && segs[i].LevelPath == segs[i-1].LevelPath {
			segs[i].Seq = segs[i-1].Seq + 1
		}
	}
	return segs, nil
}

// Windows builds one moving-window segment per input segment: the union of
// its own cells and those of up to n neighbours upstream and n downstream on
// the same level path. The window keeps the centre segment's identity. A
// negative n is treated as 0, so every window is its own segment.
func Windows(segs []Segment, n int) []Segment {
	n = max(n, 0)
	paths := make(map[int64][]int)
	for i, s := range segs {
		paths[s.LevelPath] = append(paths[s.LevelPath], i)
	}
	for _, members := range paths {
		sort.SliceStable(members, func(a, b int) bool {
			return segs[members[a]].Seq < segs[members[b]].Seq
		})
	}

	out := make([]Segment, len(segs))
	for _, members := range paths {
		for pos, centre := range members {
			lo := max(pos-n, 0)
			hi := min(pos+n+1, len(members))
			w := segs[centre]
			w.Cells = nil
			w.Window = hi - lo
			for _, m := range members[lo:hi] {
				w.Cells = append(w.Cells, segs[m].Cells...)
			}
			out[centre] = w
		}
	}
	return out
}
