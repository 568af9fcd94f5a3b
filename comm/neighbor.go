package comm

import (
	"fmt"
	"sort"
)

// Neighbor is a sparse communication pattern over a fixed directed
// graph: this rank sends one buffer to each destination and receives one
// buffer from each source per operation. The graphs on all ranks must
// transpose consistently (rank a lists b as a destination exactly when b
// lists a as a source); Verify checks that property.
type Neighbor struct {
	c       *Comm
	sources []int32
	dests   []int32
}

// NewNeighbor creates a neighbor pattern from this rank's incoming and
// outgoing edges. Ranks with no edges in either direction get a valid
// degenerate pattern whose collectives are size-0 no-ops.
//
// This is not itself a collective unless debug checks are enabled, in
// which case every rank of the world must construct its pattern
// together so the symmetry verification can run.
func (c *Comm) NewNeighbor(sources, dests []int32) (*Neighbor, error) {
	for _, r := range sources {
		if int(r) < 0 || int(r) >= c.Size() || int(r) == c.rank {
			return nil, fmt.Errorf("neighbor source rank %d invalid on rank %d", r, c.rank)
		}
	}
	for _, r := range dests {
		if int(r) < 0 || int(r) >= c.Size() || int(r) == c.rank {
			return nil, fmt.Errorf("neighbor dest rank %d invalid on rank %d", r, c.rank)
		}
	}
	if hasDuplicate(sources) || hasDuplicate(dests) {
		return nil, fmt.Errorf("neighbor ranks must be unique on rank %d", c.rank)
	}
	n := &Neighbor{
		c:       c,
		sources: append([]int32(nil), sources...),
		dests:   append([]int32(nil), dests...),
	}
	if c.debug() {
		if err := n.Verify(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func hasDuplicate(ranks []int32) bool {
	seen := make(map[int32]struct{}, len(ranks))
	for _, r := range ranks {
		if _, ok := seen[r]; ok {
			return true
		}
		seen[r] = struct{}{}
	}
	return false
}

// Sources returns the ranks this rank receives from. Do not modify.
func (n *Neighbor) Sources() []int32 { return n.sources }

// Dests returns the ranks this rank sends to. Do not modify.
func (n *Neighbor) Dests() []int32 { return n.dests }

// Transpose returns the reversed pattern, swapping sources and dests.
func (n *Neighbor) Transpose() *Neighbor {
	return &Neighbor{c: n.c, sources: n.dests, dests: n.sources}
}

// AllToAllInts sends send[i] to Dests()[i] and returns one buffer per
// source, aligned with Sources(). Empty and absent buffers are legal;
// a degenerate pattern returns immediately.
func (n *Neighbor) AllToAllInts(send [][]int64) ([][]int64, error) {
	if len(send) != len(n.dests) {
		return nil, fmt.Errorf("neighbor alltoall send has %d rows for %d dests",
			len(send), len(n.dests))
	}
	for i, to := range n.dests {
		n.c.send(int(to), packet{ints: send[i], floats: []float64{}})
	}
	recv := make([][]int64, len(n.sources))
	for j, from := range n.sources {
		recv[j] = n.c.recv(int(from)).ints
	}
	return recv, nil
}

// AllToAllFloats mirrors AllToAllInts for float64 payloads.
func (n *Neighbor) AllToAllFloats(send [][]float64) ([][]float64, error) {
	if len(send) != len(n.dests) {
		return nil, fmt.Errorf("neighbor alltoall send has %d rows for %d dests",
			len(send), len(n.dests))
	}
	for i, to := range n.dests {
		n.c.send(int(to), packet{ints: []int64{}, floats: send[i]})
	}
	recv := make([][]float64, len(n.sources))
	for j, from := range n.sources {
		recv[j] = n.c.recv(int(from)).floats
	}
	return recv, nil
}

// Verify is a collective that checks the neighbor graph transposes
// consistently across the world: every destination edge here must be
// matched by a source edge on the peer, and vice versa.
func (n *Neighbor) Verify() error {
	send := make([][]int64, n.c.Size())
	for _, to := range n.dests {
		send[to] = []int64{1}
	}
	got, err := n.c.AllToAllInts(send)
	if err != nil {
		return err
	}
	expect := make(map[int32]struct{}, len(n.sources))
	for _, from := range n.sources {
		expect[from] = struct{}{}
	}
	for from := range got {
		_, listed := expect[int32(from)]
		arrived := len(got[from]) > 0
		if arrived && !listed {
			return fmt.Errorf("rank %d receives from %d but does not list it as a source",
				n.c.Rank(), from)
		}
		if !arrived && listed {
			return fmt.Errorf("rank %d lists source %d but %d does not send to it",
				n.c.Rank(), from, from)
		}
	}
	return nil
}

// RanksToNeighbor builds sorted source/dest lists from unordered rank
// sets, dropping any self references.
func RanksToNeighbor(c *Comm, sourceSet, destSet map[int32]struct{}) (*Neighbor, error) {
	self := int32(c.Rank())
	sources := make([]int32, 0, len(sourceSet))
	for r := range sourceSet {
		if r != self {
			sources = append(sources, r)
		}
	}
	dests := make([]int32, 0, len(destSet))
	for r := range destSet {
		if r != self {
			dests = append(dests, r)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	sort.Slice(dests, func(i, j int) bool { return dests[i] < dests[j] })
	return c.NewNeighbor(sources, dests)
}
