package graph

import (
	"fmt"
	"sort"

	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/notargets/meshkernel/comm"
)

// PartitionFunc assigns every local node of a distributed dual graph to
// a set of destination ranks. The returned adjacency has one row per
// local node: the new owning rank first, followed by any ranks that
// should hold the node as a ghost (only when ghosting is requested).
// numGhostNodes counts the distinct non-local link targets of the dual
// graph; built-in partitioners ignore it but external bindings need it.
type PartitionFunc func(c *comm.Comm, nParts int, dual *Adjacency64,
	numGhostNodes int, ghosting bool) (*Adjacency, error)

// nodeRange describes the contiguous global ids held by each rank, as
// produced by an exclusive scan over local node counts.
type nodeRange struct {
	offset int64
	count  int64
	total  int64
}

func newNodeRange(c *comm.Comm, localNodes int) nodeRange {
	n := int64(localNodes)
	return nodeRange{
		offset: c.ExScan(n),
		count:  n,
		total:  c.AllReduce(n, comm.OpSum),
	}
}

// blockOwner maps a global node id to its part under a contiguous block
// split of total nodes into nParts, early parts one larger on remainder.
func blockOwner(gid, total int64, nParts int) int32 {
	base := total / int64(nParts)
	rem := total % int64(nParts)
	cut := rem * (base + 1)
	if gid < cut {
		return int32(gid / (base + 1))
	}
	return int32(rem + (gid-cut)/base)
}

// BlockPartition splits nodes into contiguous equal slabs of the global
// id space. With ghosting enabled, each row also lists the owners of the
// node's dual-graph neighbors, so cells crossing a slab boundary become
// ghosts on both sides.
func BlockPartition(c *comm.Comm, nParts int, dual *Adjacency64,
	numGhostNodes int, ghosting bool) (*Adjacency, error) {
	if nParts < 1 {
		return nil, fmt.Errorf("partition into %d parts", nParts)
	}
	rng := newNodeRange(c, dual.NumNodes())
	rows := make([][]int32, dual.NumNodes())
	for i := range rows {
		gid := rng.offset + int64(i)
		owner := blockOwner(gid, rng.total, nParts)
		row := []int32{owner}
		if ghosting {
			row = appendNeighborOwners(row, owner, dual.Row(int32(i)), func(nb int64) int32 {
				return blockOwner(nb, rng.total, nParts)
			})
		}
		rows[i] = row
	}
	return NewAdjacency(rows), nil
}

// KeepPartition leaves every node on the rank that contributed it, so
// cells keep their placement through a rebuild. With ghosting enabled,
// each row extends to the owners of the node's dual-graph neighbors;
// under the keep assignment a neighbor's owner is the rank whose
// global id range contains it, so no assignment exchange is needed.
func KeepPartition(c *comm.Comm, nParts int, dual *Adjacency64,
	numGhostNodes int, ghosting bool) (*Adjacency, error) {
	if nParts != c.Size() {
		return nil, fmt.Errorf("keep partition: %d parts for a %d rank world", nParts, c.Size())
	}
	owner := int32(c.Rank())
	rows := make([][]int32, dual.NumNodes())
	if !ghosting {
		for i := range rows {
			rows[i] = []int32{owner}
		}
		return NewAdjacency(rows), nil
	}
	all := c.AllGather(int64(dual.NumNodes()))
	starts := make([]int64, c.Size()+1)
	for r := 0; r < c.Size(); r++ {
		starts[r+1] = starts[r] + all[r]
	}
	holder := func(gid int64) int32 {
		return int32(sort.Search(c.Size(), func(r int) bool { return starts[r+1] > gid }))
	}
	for i := range rows {
		rows[i] = appendNeighborOwners([]int32{owner}, owner, dual.Row(int32(i)), holder)
	}
	return NewAdjacency(rows), nil
}

// appendNeighborOwners extends a destination row with the distinct
// owners of neighboring nodes, sorted, keeping the owner first.
func appendNeighborOwners(row []int32, owner int32, links []int64,
	ownerOf func(int64) int32) []int32 {
	seen := map[int32]struct{}{owner: {}}
	for _, nb := range links {
		r := ownerOf(nb)
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			row = append(row, r)
		}
	}
	sort.Slice(row[1:], func(i, j int) bool { return row[1+i] < row[1+j] })
	return row
}

// GreedyPartition gathers the dual graph to rank 0 and grows parts by
// breadth-first search from the lowest unassigned node until each part
// reaches its target size, then scatters the assignment. Neighbor
// expansion is ordered by global id, so the result is reproducible.
func GreedyPartition(c *comm.Comm, nParts int, dual *Adjacency64,
	numGhostNodes int, ghosting bool) (*Adjacency, error) {
	if nParts < 1 {
		return nil, fmt.Errorf("partition into %d parts", nParts)
	}
	rng := newNodeRange(c, dual.NumNodes())

	// Ship [count, deg_0, links_0..., deg_1, ...] to the root.
	payload := []int64{rng.count}
	for i := 0; i < dual.NumNodes(); i++ {
		row := dual.Row(int32(i))
		payload = append(payload, int64(len(row)))
		payload = append(payload, row...)
	}
	send := make([][]int64, c.Size())
	send[0] = payload
	gathered, err := c.AllToAllInts(send)
	if err != nil {
		return nil, err
	}

	var assignedParts [][]int64
	if c.Rank() == 0 {
		counts := make([]int64, c.Size())
		links := make([][][]int64, c.Size())
		for r := 0; r < c.Size(); r++ {
			buf := gathered[r]
			counts[r] = buf[0]
			pos := 1
			rows := make([][]int64, counts[r])
			for i := range rows {
				deg := int(buf[pos])
				pos++
				rows[i] = buf[pos : pos+deg]
				pos += deg
			}
			links[r] = rows
		}
		assigned := growParts(counts, links, rng.total, nParts)
		assignedParts = make([][]int64, c.Size())
		var off int64
		for r := 0; r < c.Size(); r++ {
			assignedParts[r] = assigned[off : off+counts[r]]
			off += counts[r]
		}
	} else {
		assignedParts = make([][]int64, c.Size())
	}
	scattered, err := c.AllToAllInts(assignedParts)
	if err != nil {
		return nil, err
	}
	mine := scattered[0]
	if int64(len(mine)) != rng.count {
		return nil, fmt.Errorf("rank %d expected %d assignments, got %d",
			c.Rank(), rng.count, len(mine))
	}

	// Resolve neighbor owners for ghosting. Each rank knows only its own
	// slice of the assignment, so owners of remote links are fetched from
	// the rank holding them in the global id layout.
	rows := make([][]int32, len(mine))
	if !ghosting {
		for i, p := range mine {
			rows[i] = []int32{int32(p)}
		}
		return NewAdjacency(rows), nil
	}
	all := c.AllGather(rng.count)
	starts := make([]int64, c.Size()+1)
	for r := 0; r < c.Size(); r++ {
		starts[r+1] = starts[r] + all[r]
	}
	holder := func(gid int64) int {
		return sort.Search(c.Size(), func(r int) bool { return starts[r+1] > gid })
	}
	want := make([][]int64, c.Size())
	for i := 0; i < dual.NumNodes(); i++ {
		for _, nb := range dual.Row(int32(i)) {
			want[holder(nb)] = append(want[holder(nb)], nb)
		}
	}
	asked, err := c.AllToAllInts(want)
	if err != nil {
		return nil, err
	}
	replies := make([][]int64, c.Size())
	for r := range asked {
		reply := make([]int64, len(asked[r]))
		for k, gid := range asked[r] {
			reply[k] = mine[gid-rng.offset]
		}
		replies[r] = reply
	}
	answers, err := c.AllToAllInts(replies)
	if err != nil {
		return nil, err
	}
	ownerOf := make(map[int64]int32)
	cursor := make([]int, c.Size())
	for i := 0; i < dual.NumNodes(); i++ {
		for _, nb := range dual.Row(int32(i)) {
			h := holder(nb)
			ownerOf[nb] = int32(answers[h][cursor[h]])
			cursor[h]++
		}
	}
	for i, p := range mine {
		owner := int32(p)
		rows[i] = appendNeighborOwners([]int32{owner}, owner, dual.Row(int32(i)),
			func(nb int64) int32 { return ownerOf[nb] })
	}
	return NewAdjacency(rows), nil
}

// growParts runs the root-side greedy growth over the gathered graph.
// counts and links are per source rank; the result is the part id per
// node in global id order.
func growParts(counts []int64, links [][][]int64, total int64, nParts int) []int64 {
	assigned := make([]int64, total)
	for i := range assigned {
		assigned[i] = -1
	}
	neighbor := make([][]int64, total)
	var gid int64
	for r := range links {
		for _, row := range links[r] {
			nb := append([]int64(nil), row...)
			sort.Slice(nb, func(i, j int) bool { return nb[i] < nb[j] })
			neighbor[gid] = nb
			gid++
		}
	}
	base := total / int64(nParts)
	rem := total % int64(nParts)
	next := int64(0)
	for p := 0; p < nParts; p++ {
		target := base
		if int64(p) < rem {
			target++
		}
		var filled int64
		for filled < target {
			for next < total && assigned[next] != -1 {
				next++
			}
			if next >= total {
				break
			}
			queue := []int64{next}
			assigned[next] = int64(p)
			filled++
			for len(queue) > 0 && filled < target {
				u := queue[0]
				queue = queue[1:]
				for _, v := range neighbor[u] {
					if assigned[v] != -1 || filled >= target {
						continue
					}
					assigned[v] = int64(p)
					filled++
					queue = append(queue, v)
				}
			}
		}
	}
	return assigned
}

// PartitionStats summarizes the quality of a destination assignment.
type PartitionStats struct {
	Counts    []int64 // Owned nodes per part
	Imbalance float64 // max(Counts) over the ideal per-part share
	EdgeCut   int64   // Dual edges whose endpoints land on different parts
	Connected []bool  // Whether each part induces a connected subgraph
}

// AnalyzePartition is a collective that gathers the assignment and dual
// graph to rank 0, measures balance, edge cut, and per-part
// connectivity, and returns the same stats on every rank.
func AnalyzePartition(c *comm.Comm, nParts int, dual *Adjacency64,
	dests *Adjacency) (PartitionStats, error) {
	if dests.NumNodes() != dual.NumNodes() {
		return PartitionStats{}, fmt.Errorf("assignment covers %d nodes, dual graph %d",
			dests.NumNodes(), dual.NumNodes())
	}
	rng := newNodeRange(c, dual.NumNodes())
	payload := []int64{rng.count}
	for i := 0; i < dual.NumNodes(); i++ {
		payload = append(payload, int64(dests.Row(int32(i))[0]))
		row := dual.Row(int32(i))
		payload = append(payload, int64(len(row)))
		payload = append(payload, row...)
	}
	send := make([][]int64, c.Size())
	send[0] = payload
	gathered, err := c.AllToAllInts(send)
	if err != nil {
		return PartitionStats{}, err
	}

	// Root computes, then broadcasts the flattened stats.
	var flat []int64
	if c.Rank() == 0 {
		owners := make([]int64, rng.total)
		g := simple.NewUndirectedGraph()
		var gid int64
		var cut int64
		type edge struct{ u, v int64 }
		var edges []edge
		for r := 0; r < c.Size(); r++ {
			buf := gathered[r]
			n := buf[0]
			pos := 1
			for i := int64(0); i < n; i++ {
				owners[gid] = buf[pos]
				pos++
				deg := int(buf[pos])
				pos++
				for _, nb := range buf[pos : pos+deg] {
					edges = append(edges, edge{gid, nb})
				}
				pos += deg
				gid++
			}
		}
		counts := make([]int64, nParts)
		for _, p := range owners {
			counts[p]++
		}
		for i := int64(0); i < rng.total; i++ {
			if g.Node(i) == nil {
				g.AddNode(simple.Node(i))
			}
		}
		for _, e := range edges {
			if owners[e.u] != owners[e.v] {
				cut++ // counted from both sides, halved below
			}
			if e.u != e.v && !g.HasEdgeBetween(e.u, e.v) {
				g.SetEdge(g.NewEdge(simple.Node(e.u), simple.Node(e.v)))
			}
		}
		cut /= 2
		connected := partConnectivity(g, owners, nParts)
		flat = append(flat, counts...)
		flat = append(flat, cut)
		for _, ok := range connected {
			if ok {
				flat = append(flat, 1)
			} else {
				flat = append(flat, 0)
			}
		}
	}
	bcast := make([][]int64, c.Size())
	if c.Rank() == 0 {
		for r := 0; r < c.Size(); r++ {
			bcast[r] = flat
		}
	}
	got, err := c.AllToAllInts(bcast)
	if err != nil {
		return PartitionStats{}, err
	}
	flat = got[0]

	st := PartitionStats{Counts: flat[:nParts], EdgeCut: flat[nParts]}
	for _, v := range flat[nParts+1:] {
		st.Connected = append(st.Connected, v == 1)
	}
	var max int64
	for _, n := range st.Counts {
		if n > max {
			max = n
		}
	}
	ideal := float64(rng.total) / float64(nParts)
	if ideal > 0 {
		st.Imbalance = float64(max) / ideal
	}
	return st, nil
}

// partConnectivity walks each part's induced subgraph breadth-first
// from its lowest node and reports whether the walk covers the part.
func partConnectivity(g *simple.UndirectedGraph, owners []int64, nParts int) []bool {
	connected := make([]bool, nParts)
	for p := 0; p < nParts; p++ {
		var seed int64 = -1
		var size int64
		for gid, owner := range owners {
			if owner != int64(p) {
				continue
			}
			if seed == -1 {
				seed = int64(gid)
			}
			size++
		}
		if size == 0 {
			connected[p] = true
			continue
		}
		var visited int64
		bfs := traverse.BreadthFirst{
			Visit: func(n gograph.Node) {
				if owners[n.ID()] == int64(p) {
					visited++
				}
			},
			Traverse: func(e gograph.Edge) bool {
				return owners[e.To().ID()] == int64(p)
			},
		}
		bfs.Walk(g, g.Node(seed), nil)
		connected[p] = visited == size
	}
	return connected
}
