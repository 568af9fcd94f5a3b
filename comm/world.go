// Package comm hosts a fixed-size set of cooperating ranks inside one
// process and gives each rank the collective operations the mesh layers
// are written against: global reductions, gathers, and dense or
// neighbor-restricted all-to-all exchanges with variable counts.
//
// Ranks run one goroutine each and interact only through messages; there
// is no shared mutable state. Every collective must be entered by all
// participating ranks in the same order. A rank that skips a collective
// deadlocks the world, which is the intended failure mode: there is no
// timeout or retry layer.
package comm

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// mailboxDepth bounds in-flight messages per rank pair. Collectives are
// globally ordered, so at most two operations' messages can overlap on
// one pair at any time.
const mailboxDepth = 8

// packet is the unit of rank-to-rank transfer.
type packet struct {
	ints   []int64
	floats []float64
}

// World owns the mailboxes connecting a fixed set of ranks.
type World struct {
	id    uuid.UUID
	size  int
	debug bool
	log   *zap.Logger

	// mail[from][to] carries packets from rank "from" to rank "to".
	mail [][]chan packet
}

// Option configures a World.
type Option func(*World)

// WithLogger attaches a logger used by the world and its ranks.
func WithLogger(l *zap.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDebugChecks enables cross-rank consistency assertions, such as
// neighbor-graph symmetry verification on construction.
func WithDebugChecks() Option {
	return func(w *World) { w.debug = true }
}

// NewWorld creates a world of size ranks.
func NewWorld(size int, opts ...Option) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size %d must be at least 1", size)
	}
	w := &World{
		id:   uuid.New(),
		size: size,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.mail = make([][]chan packet, size)
	for from := 0; from < size; from++ {
		w.mail[from] = make([]chan packet, size)
		for to := 0; to < size; to++ {
			w.mail[from][to] = make(chan packet, mailboxDepth)
		}
	}
	return w, nil
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// ID returns the world's session identifier, shared by all ranks.
func (w *World) ID() uuid.UUID { return w.id }

// Comm returns the communicator for one rank. Useful for serial
// (size-1) use; multi-rank programs normally go through Run.
func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("rank %d out of range [0,%d)", rank, w.size))
	}
	return &Comm{w: w, rank: rank}
}

// Run executes fn once per rank, each on its own goroutine, and waits
// for all of them. The first non-nil error is returned. Errors should
// be raised uniformly across ranks: a rank that returns early while
// others are blocked inside a collective leaves the world deadlocked.
func (w *World) Run(fn func(c *Comm) error) error {
	w.log.Debug("world run",
		zap.Stringer("world", w.id), zap.Int("ranks", w.size))
	var g errgroup.Group
	for rank := 0; rank < w.size; rank++ {
		c := w.Comm(rank)
		g.Go(func() error { return fn(c) })
	}
	return g.Wait()
}
