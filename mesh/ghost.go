package mesh

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

// AddGhostLayer rebuilds a mesh so that every rank holds, beyond its
// owned cells, all cells of other ranks incident to a vertex on the
// partition interface. Ownership of interface vertices is resolved in
// three rounds: ghosters report interface vertices to their owners,
// owners return the complete sharer set to every reporter, and each
// rank expands the sets over its owned cells to form destination
// lists. The mesh is then reconstructed from owned cells with those
// fixed destinations.
//
// Collective. The input mesh is unchanged apart from facet entities
// being created on its topology.
func AddGhostLayer(m *Mesh, log *zap.Logger) (*Mesh, error) {
	if log == nil {
		log = zap.NewNop()
	}
	topo := m.Topology
	c := topo.Comm()
	tdim := topo.Dim()

	ifacets, err := topo.InterfaceFacets()
	if err != nil {
		return nil, err
	}
	fv := topo.Connectivity(tdim-1, 0)
	vmap := topo.IndexMap(0)
	cmap := topo.IndexMap(tdim)

	// Ghost vertices on the interface, reported to their owners.
	ghostSet := make(map[int32]struct{})
	for _, f := range ifacets {
		for _, v := range fv.Row(f) {
			if v >= vmap.SizeLocal() {
				ghostSet[v] = struct{}{}
			}
		}
	}
	rev := vmap.Reverse()
	fwd := vmap.Forward()
	report := make([][]int64, len(rev.Dests()))
	destIdx := make(map[int32]int, len(rev.Dests()))
	for i, r := range rev.Dests() {
		destIdx[r] = i
	}
	ghostVerts := make([]int32, 0, len(ghostSet))
	for v := range ghostSet {
		ghostVerts = append(ghostVerts, v)
	}
	sort.Slice(ghostVerts, func(a, b int) bool { return ghostVerts[a] < ghostVerts[b] })
	for _, v := range ghostVerts {
		i, ok := destIdx[vmap.Owner(v)]
		if !ok {
			return nil, fmt.Errorf("vertex owner %d is not a neighbor", vmap.Owner(v))
		}
		report[i] = append(report[i], vmap.LocalToGlobal(v))
	}
	reported, err := rev.AllToAllInts(report)
	if err != nil {
		return nil, err
	}

	// Owners collect reporters per vertex and send back the full rank
	// set, owner first.
	reporters := make(map[int64][]int32)
	for i, buf := range reported {
		r := rev.Sources()[i]
		for _, gid := range buf {
			reporters[gid] = append(reporters[gid], r)
		}
	}
	reply := make([][]int64, len(fwd.Dests()))
	for i, buf := range reported {
		var rep []int64
		for _, gid := range buf {
			full := rankSet(int32(c.Rank()), reporters[gid])
			rep = append(rep, gid, int64(len(full)))
			for _, r := range full {
				rep = append(rep, int64(r))
			}
		}
		reply[i] = rep
	}
	replies, err := fwd.AllToAllInts(reply)
	if err != nil {
		return nil, err
	}

	// Per-vertex sharing sets, merged from owned entries and replies.
	vranks := make(map[int32][]int32)
	for gid, rs := range reporters {
		v, ok := vmap.GlobalToLocal(gid)
		if !ok {
			return nil, fmt.Errorf("reported vertex %d is not local", gid)
		}
		vranks[v] = rankSet(int32(c.Rank()), rs)
	}
	for _, buf := range replies {
		for k := 0; k < len(buf); {
			gid, n := buf[k], int(buf[k+1])
			k += 2
			v, ok := vmap.GlobalToLocal(gid)
			if !ok {
				return nil, fmt.Errorf("replied vertex %d is not local", gid)
			}
			rs := make([]int32, n)
			for j := 0; j < n; j++ {
				rs[j] = int32(buf[k+j])
			}
			k += n
			vranks[v] = rs
		}
	}

	// Expand over owned cells: a cell goes to every rank sharing one of
	// its interface vertices.
	if err := topo.CreateConnectivity(0, tdim); err != nil {
		return nil, err
	}
	v2c := topo.Connectivity(0, tdim)
	numOwned := int(cmap.SizeLocal())
	acc := make([][]int32, numOwned)
	order := make([]int32, 0, len(vranks))
	for v := range vranks {
		order = append(order, v)
	}
	sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })
	for _, v := range order {
		for _, ci := range v2c.Row(v) {
			if int(ci) < numOwned {
				acc[ci] = append(acc[ci], vranks[v]...)
			}
		}
	}
	dests := make([][]int32, numOwned)
	for i := 0; i < numOwned; i++ {
		row := []int32{int32(c.Rank())}
		seen := map[int32]struct{}{int32(c.Rank()): {}}
		sort.Slice(acc[i], func(a, b int) bool { return acc[i][a] < acc[i][b] })
		for _, r := range acc[i] {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				row = append(row, r)
			}
		}
		dests[i] = row
	}

	// Rebuild from owned cells and owned coordinates with the
	// precomputed destinations.
	cv := topo.Connectivity(tdim, 0)
	ownedCells := make([][]int64, numOwned)
	for i := 0; i < numOwned; i++ {
		row := cv.Row(int32(i))
		g := make([]int64, len(row))
		for j, v := range row {
			g[j] = vmap.LocalToGlobal(v)
		}
		ownedCells[i] = g
	}
	gdim := m.Geometry.GDim
	ownedIDs := vmap.Globals()[:vmap.SizeLocal()]
	ownedX := m.Geometry.X[:int(vmap.SizeLocal())*gdim]

	destAdj := graph.NewAdjacency(dests)
	log.Debug("ghost layer destinations computed",
		zap.Int("rank", c.Rank()),
		zap.Int("interfaceFacets", len(ifacets)),
		zap.Int("interfaceVertices", len(vranks)))
	return Create(c, topo.CellType(), graph.NewAdjacency64(ownedCells),
		ownedIDs, ownedX, gdim, FixedPartitioner(destAdj), GhostSharedFacet, log)
}

// FixedPartitioner returns a cell partitioner that ignores its inputs
// and hands back precomputed destination rows.
func FixedPartitioner(dests *graph.Adjacency) CellPartitioner {
	return func(_ *comm.Comm, _ int, _ CellType, _ *graph.Adjacency64,
		_ bool) (*graph.Adjacency, error) {
		return dests, nil
	}
}

// rankSet returns the sorted union of owner and reporters without
// duplicates.
func rankSet(owner int32, reporters []int32) []int32 {
	full := make([]int32, 0, 1+len(reporters))
	full = append(full, owner)
	full = append(full, reporters...)
	sort.Slice(full, func(a, b int) bool { return full[a] < full[b] })
	out := full[:1]
	for _, r := range full[1:] {
		if r != out[len(out)-1] {
			out = append(out, r)
		}
	}
	return out
}
