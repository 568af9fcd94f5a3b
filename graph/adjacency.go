// Package graph provides the flat adjacency structures, dual-graph assembly,
// and partitioning interfaces used by the distributed mesh layers.
package graph

import (
	"fmt"
	"sort"
)

// Adjacency is a compressed sparse row list of int32 links.
// Node i's links occupy Data[Offsets[i]:Offsets[i+1]].
type Adjacency struct {
	Offsets []int32 // Length NumNodes+1, Offsets[0] == 0
	Data    []int32 // Concatenated link lists
}

// Adjacency64 is a compressed sparse row list of int64 links,
// used wherever links are global indices rather than local ones.
type Adjacency64 struct {
	Offsets []int32
	Data    []int64
}

// NewAdjacency builds a CSR list from per-node rows.
func NewAdjacency(rows [][]int32) *Adjacency {
	a := &Adjacency{Offsets: make([]int32, len(rows)+1)}
	total := 0
	for _, r := range rows {
		total += len(r)
	}
	a.Data = make([]int32, 0, total)
	for i, r := range rows {
		a.Data = append(a.Data, r...)
		a.Offsets[i+1] = a.Offsets[i] + int32(len(r))
	}
	return a
}

// NewAdjacency64 builds a CSR list from per-node rows of global indices.
func NewAdjacency64(rows [][]int64) *Adjacency64 {
	a := &Adjacency64{Offsets: make([]int32, len(rows)+1)}
	total := 0
	for _, r := range rows {
		total += len(r)
	}
	a.Data = make([]int64, 0, total)
	for i, r := range rows {
		a.Data = append(a.Data, r...)
		a.Offsets[i+1] = a.Offsets[i] + int32(len(r))
	}
	return a
}

// NewFixedAdjacency64 wraps a flat array of uniform-width rows.
func NewFixedAdjacency64(width int, data []int64) (*Adjacency64, error) {
	if width <= 0 {
		return nil, fmt.Errorf("adjacency row width %d must be positive", width)
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("adjacency data length %d not divisible by width %d",
			len(data), width)
	}
	n := len(data) / width
	a := &Adjacency64{Offsets: make([]int32, n+1), Data: data}
	for i := 1; i <= n; i++ {
		a.Offsets[i] = int32(i * width)
	}
	return a, nil
}

// NumNodes returns the number of rows.
func (a *Adjacency) NumNodes() int { return len(a.Offsets) - 1 }

// Row returns node i's links. The slice aliases the underlying storage.
func (a *Adjacency) Row(i int32) []int32 {
	return a.Data[a.Offsets[i]:a.Offsets[i+1]]
}

// Degree returns the number of links of node i.
func (a *Adjacency) Degree(i int32) int {
	return int(a.Offsets[i+1] - a.Offsets[i])
}

// Validate checks structural consistency of the offsets array.
func (a *Adjacency) Validate() error {
	if len(a.Offsets) == 0 || a.Offsets[0] != 0 {
		return fmt.Errorf("adjacency offsets must start at 0")
	}
	for i := 1; i < len(a.Offsets); i++ {
		if a.Offsets[i] < a.Offsets[i-1] {
			return fmt.Errorf("adjacency offsets decrease at row %d", i-1)
		}
	}
	if int(a.Offsets[len(a.Offsets)-1]) != len(a.Data) {
		return fmt.Errorf("adjacency offsets end at %d, data length %d",
			a.Offsets[len(a.Offsets)-1], len(a.Data))
	}
	return nil
}

// NumNodes returns the number of rows.
func (a *Adjacency64) NumNodes() int { return len(a.Offsets) - 1 }

// Row returns node i's links. The slice aliases the underlying storage.
func (a *Adjacency64) Row(i int32) []int64 {
	return a.Data[a.Offsets[i]:a.Offsets[i+1]]
}

// Degree returns the number of links of node i.
func (a *Adjacency64) Degree(i int32) int {
	return int(a.Offsets[i+1] - a.Offsets[i])
}

// Transpose inverts an adjacency over a target node range: the result lists,
// for each target node t < numTargets, the source rows that link to t. Rows
// of the result are sorted ascending.
func Transpose(a *Adjacency, numTargets int32) *Adjacency {
	counts := make([]int32, numTargets)
	for _, t := range a.Data {
		counts[t]++
	}
	out := &Adjacency{Offsets: make([]int32, numTargets+1)}
	for t := int32(0); t < numTargets; t++ {
		out.Offsets[t+1] = out.Offsets[t] + counts[t]
	}
	out.Data = make([]int32, len(a.Data))
	pos := make([]int32, numTargets)
	copy(pos, out.Offsets[:numTargets])
	for src := int32(0); src < int32(a.NumNodes()); src++ {
		for _, t := range a.Row(src) {
			out.Data[pos[t]] = src
			pos[t]++
		}
	}
	// Sources visit targets in increasing order, so rows are already sorted.
	return out
}

// SortRows sorts every row in place, ascending.
func (a *Adjacency) SortRows() {
	for i := int32(0); i < int32(a.NumNodes()); i++ {
		r := a.Row(i)
		sort.Slice(r, func(x, y int) bool { return r[x] < r[y] })
	}
}
