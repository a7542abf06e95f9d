package connectivity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/vbet/internal/grid"
)

// Cell states in classifier.state: 0 is unclaimed, 1..3 are terminal
// classes, negative values are claims held by worker -(state+1).
const unclaimed int32 = 0

type options struct {
	workers int
	order   []int
	prior   *Result
	logger  *zap.SugaredLogger
}

// Option configures Classify.
type Option func(*options)

// WithWorkers traces seeds on n goroutines. One worker (the default) runs
// the plain sequential algorithm.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithScanOrder visits seeds in the given order instead of raster order.
// order must be a permutation of the row-major cell indices.
func WithScanOrder(order []int) Option {
	return func(o *options) { o.order = order }
}

// WithPrior seeds the run with the classes of an earlier result; cells
// already terminal there are never traced again.
func WithPrior(prior *Result) Option {
	return func(o *options) { o.prior = prior }
}

// WithLogger sets the logger used for the run summary.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type classifier struct {
	in       Inputs
	rows     int
	cols     int
	state    []int32
	blocker  []int16
	barriers []*grid.Grid[uint8]
}

// Classify traces every valley-bottom cell to a terminal class.
func Classify(ctx context.Context, in Inputs, opts ...Option) (*Result, error) {
	o := options{workers: 1, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	if in.FlowDir == nil || in.Channel == nil || in.ValleyBottom == nil {
		return nil, ErrMissingInput
	}
	named := []grid.Named{
		{Name: "flow_direction", Grid: in.FlowDir},
		{Name: "channel", Grid: in.Channel},
		{Name: "valley_bottom", Grid: in.ValleyBottom},
	}
	c := &classifier{in: in}
	for _, b := range in.Barriers {
		if b.Mask == nil {
			return nil, fmt.Errorf("%w: barrier %q", ErrMissingInput, b.Name)
		}
		named = append(named, grid.Named{Name: "barrier " + b.Name, Grid: b.Mask})
		c.barriers = append(c.barriers, b.Mask)
	}
	if o.prior != nil {
		named = append(named, grid.Named{Name: "prior", Grid: o.prior.Classes})
	}
	if err := grid.CheckShape(named...); err != nil {
		return nil, err
	}

	c.rows, c.cols = in.FlowDir.Shape()
	n := c.rows * c.cols
	c.state = make([]int32, n)
	c.blocker = make([]int16, n)
	for i := range c.blocker {
		c.blocker[i] = NoBlocker
	}
	if o.prior != nil {
		c.seedPrior(o.prior)
	}

	order := o.order
	if order == nil {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	} else if err := checkPermutation(order, n); err != nil {
		return nil, err
	}

	var stats Stats
	var err error
	if o.workers <= 1 {
		t := c.newTracer(0)
		err = t.run(ctx, order, nil)
		stats = t.stats
	} else {
		stats, err = c.runParallel(ctx, order, o.workers)
	}
	if err != nil {
		return nil, err
	}

	res := c.result(stats)
	o.logger.Infow("connectivity classified",
		"rows", c.rows, "cols", c.cols,
		"connected", res.Stats.Count(Connected),
		"disconnected", res.Stats.Count(Disconnected),
		"unresolved", res.Stats.Count(Unresolved),
		"traces", res.Stats.Traces,
		"cycles", res.Stats.Cycles,
		"deferred", res.Stats.Deferred)
	return res, nil
}

func (c *classifier) seedPrior(prior *Result) {
	for i, cls := range prior.Classes.Values() {
		if cls == NoData || cls > Unresolved || !c.in.ValleyBottom.Truthy(i) {
			continue
		}
		c.state[i] = int32(cls)
		if prior.Blocker != nil {
			c.blocker[i] = prior.Blocker.AtIndex(i)
		}
	}
}

// runParallel splits the scan order into contiguous chunks, one per worker.
// A worker that runs into another worker's unfinished path gives its own
// claims back and defers the seed; deferred seeds are traced sequentially
// once every worker has finished.
func (c *classifier) runParallel(ctx context.Context, order []int, workers int) (Stats, error) {
	var (
		mu       sync.Mutex
		deferred []int
		total    Stats
	)
	chunk := (len(order) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= len(order) {
			break
		}
		hi := min(lo+chunk, len(order))
		t := c.newTracer(w)
		g.Go(func() error {
			var mine []int
			err := t.run(gctx, order[lo:hi], &mine)
			mu.Lock()
			deferred = append(deferred, mine...)
			total.add(t.stats)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	if len(deferred) > 0 {
		t := c.newTracer(0)
		if err := t.run(ctx, deferred, nil); err != nil {
			return Stats{}, err
		}
		total.add(t.stats)
	}
	total.Deferred = len(deferred)
	return total, nil
}

func (s *Stats) add(o Stats) {
	s.Traces += o.Traces
	s.Steps += o.Steps
	s.Cycles += o.Cycles
}

func (c *classifier) result(stats Stats) *Result {
	classes := grid.Like[Class](c.in.FlowDir, NoData)
	blocker := grid.Like[int16](c.in.FlowDir, NoBlocker)
	for i := range c.state {
		if !c.in.ValleyBottom.Truthy(i) {
			continue
		}
		cls := Class(c.state[i])
		classes.SetIndex(i, cls)
		stats.Cells[cls]++
		if cls == Disconnected {
			blocker.SetIndex(i, c.blocker[i])
		}
	}
	return &Result{Classes: classes, Blocker: blocker, Stats: stats}
}

func checkPermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("%w: %d entries for %d cells", ErrBadScanOrder, len(order), n)
	}
	seen := make([]bool, n)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			return fmt.Errorf("%w: index %d", ErrBadScanOrder, i)
		}
		seen[i] = true
	}
	return nil
}

// tracer follows flow paths for one worker. path is reused between traces
// so a run allocates no per-trace memory once it has grown.
type tracer struct {
	c     *classifier
	tag   int32
	path  []int
	stats Stats
}

func (c *classifier) newTracer(worker int) *tracer {
	return &tracer{c: c, tag: -int32(worker + 1), path: make([]int, 0, 64)}
}

// run traces every unclassified valley seed in seeds. When deferred is nil
// the tracer is alone and never defers.
func (t *tracer) run(ctx context.Context, seeds []int, deferred *[]int) error {
	c := t.c
	for k, seed := range seeds {
		if k%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !c.in.ValleyBottom.Truthy(seed) || atomic.LoadInt32(&c.state[seed]) > 0 {
			continue
		}
		if !t.trace(seed) && deferred != nil {
			*deferred = append(*deferred, seed)
		}
	}
	return nil
}

// trace follows the flow path from seed. It reports false when the path ran
// into another worker's claim and was abandoned.
func (t *tracer) trace(seed int) bool {
	c := t.c
	t.path = t.path[:0]
	cur := seed
	var (
		class   Class
		blocker = NoBlocker
	)

	for {
		s := atomic.LoadInt32(&c.state[cur])
		if s > 0 {
			// Memoized: adopt the downstream outcome.
			class = Class(s)
			blocker = c.blocker[cur]
			break
		}
		if s != unclaimed {
			// Claimed by another worker mid-trace; cells claimed by this
			// tracer never get here because the cycle check stops first.
			t.release()
			return false
		}
		if !atomic.CompareAndSwapInt32(&c.state[cur], unclaimed, t.tag) {
			continue
		}
		t.path = append(t.path, cur)

		if c.in.Channel.Truthy(cur) {
			class = Connected
			break
		}
		if k := c.barrierAt(cur); k != NoBlocker {
			class, blocker = Disconnected, k
			break
		}
		code := c.in.FlowDir.AtIndex(cur)
		if c.in.FlowDir.IsNoData(code) {
			class = Unresolved
			break
		}
		next, ok := grid.D8Downstream(c.rows, c.cols, cur, int(code))
		if !ok {
			class = Unresolved
			break
		}
		if atomic.LoadInt32(&c.state[next]) == t.tag {
			t.stats.Cycles++
			class = Unresolved
			break
		}
		cur = next
	}

	t.stats.Traces++
	t.stats.Steps += len(t.path)
	for _, p := range t.path {
		c.blocker[p] = blocker
		atomic.StoreInt32(&c.state[p], int32(class))
	}
	return true
}

func (t *tracer) release() {
	for _, p := range t.path {
		atomic.StoreInt32(&t.c.state[p], unclaimed)
	}
	t.path = t.path[:0]
}

func (c *classifier) barrierAt(i int) int16 {
	for k, b := range c.barriers {
		if b.Truthy(i) {
			return int16(k)
		}
	}
	return NoBlocker
}
