package comm

import (
	"fmt"

	"github.com/google/uuid"
)

// Op selects the combining function of a reduction.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

// Comm is one rank's endpoint into a World. All methods are collectives
// unless stated otherwise and must be entered by every rank of the world
// in the same order.
type Comm struct {
	w    *World
	rank int
}

// Rank returns this rank's index in [0, Size()).
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the world.
func (c *Comm) Size() int { return c.w.size }

// WorldID returns the session identifier shared by all ranks.
func (c *Comm) WorldID() uuid.UUID { return c.w.id }

// debug reports whether cross-rank consistency assertions are enabled.
func (c *Comm) debug() bool { return c.w.debug }

// send posts p to rank "to". Slices are copied so the caller may keep
// mutating its buffers after the call.
func (c *Comm) send(to int, p packet) {
	cp := packet{}
	if p.ints != nil {
		cp.ints = append([]int64(nil), p.ints...)
	}
	if p.floats != nil {
		cp.floats = append([]float64(nil), p.floats...)
	}
	c.w.mail[c.rank][to] <- cp
}

// recv blocks until a packet from rank "from" arrives.
func (c *Comm) recv(from int) packet {
	return <-c.w.mail[from][c.rank]
}

func combine(op Op, a, b int64) int64 {
	switch op {
	case OpSum:
		return a + b
	case OpMax:
		if b > a {
			return b
		}
		return a
	case OpMin:
		if b < a {
			return b
		}
		return a
	}
	panic(fmt.Sprintf("unknown reduction op %d", op))
}

// AllReduce combines v across all ranks and returns the result on every
// rank.
func (c *Comm) AllReduce(v int64, op Op) int64 {
	if c.w.size == 1 {
		return v
	}
	if c.rank == 0 {
		acc := v
		for r := 1; r < c.w.size; r++ {
			acc = combine(op, acc, c.recv(r).ints[0])
		}
		for r := 1; r < c.w.size; r++ {
			c.send(r, packet{ints: []int64{acc}})
		}
		return acc
	}
	c.send(0, packet{ints: []int64{v}})
	return c.recv(0).ints[0]
}

// AllGather returns every rank's v, indexed by rank, on every rank.
func (c *Comm) AllGather(v int64) []int64 {
	all := make([]int64, c.w.size)
	if c.w.size == 1 {
		all[0] = v
		return all
	}
	if c.rank == 0 {
		all[0] = v
		for r := 1; r < c.w.size; r++ {
			all[r] = c.recv(r).ints[0]
		}
		for r := 1; r < c.w.size; r++ {
			c.send(r, packet{ints: all})
		}
		return all
	}
	c.send(0, packet{ints: []int64{v}})
	copy(all, c.recv(0).ints)
	return all
}

// ExScan returns the exclusive prefix sum of v over ranks: rank r
// receives the sum of ranks 0..r-1, with rank 0 receiving zero.
func (c *Comm) ExScan(v int64) int64 {
	all := c.AllGather(v)
	var sum int64
	for r := 0; r < c.rank; r++ {
		sum += all[r]
	}
	return sum
}

// AllToAllInts exchanges one int64 slice with every rank. send must have
// one entry per rank (nil entries send nothing-length slices). The result
// holds, per source rank, the slice that rank sent here.
func (c *Comm) AllToAllInts(send [][]int64) ([][]int64, error) {
	if len(send) != c.w.size {
		return nil, fmt.Errorf("alltoall send has %d rows, world has %d ranks",
			len(send), c.w.size)
	}
	recv := make([][]int64, c.w.size)
	for to := 0; to < c.w.size; to++ {
		if to == c.rank {
			recv[to] = append([]int64(nil), send[to]...)
			continue
		}
		c.send(to, packet{ints: send[to], floats: []float64{}})
	}
	for from := 0; from < c.w.size; from++ {
		if from == c.rank {
			continue
		}
		recv[from] = c.recv(from).ints
	}
	return recv, nil
}

// AllToAllFloats exchanges one float64 slice with every rank, mirroring
// AllToAllInts.
func (c *Comm) AllToAllFloats(send [][]float64) ([][]float64, error) {
	if len(send) != c.w.size {
		return nil, fmt.Errorf("alltoall send has %d rows, world has %d ranks",
			len(send), c.w.size)
	}
	recv := make([][]float64, c.w.size)
	for to := 0; to < c.w.size; to++ {
		if to == c.rank {
			recv[to] = append([]float64(nil), send[to]...)
			continue
		}
		c.send(to, packet{ints: []int64{}, floats: send[to]})
	}
	for from := 0; from < c.w.size; from++ {
		if from == c.rank {
			continue
		}
		recv[from] = c.recv(from).floats
	}
	return recv, nil
}
