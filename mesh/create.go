package mesh

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

// GhostMode selects which off-rank cells a constructed mesh carries.
type GhostMode int

const (
	// GhostNone keeps owned cells only.
	GhostNone GhostMode = iota
	// GhostSharedFacet ghosts every cell that shares a facet with an
	// owned cell on another rank.
	GhostSharedFacet
)

func (g GhostMode) String() string {
	switch g {
	case GhostNone:
		return "none"
	case GhostSharedFacet:
		return "shared_facet"
	}
	return fmt.Sprintf("GhostMode(%d)", int(g))
}

// CellPartitioner decides the destination ranks of every locally held
// cell. Row i of the result lists the ranks receiving cell i, owner
// first. Collective over c.
type CellPartitioner func(c *comm.Comm, nParts int, cell CellType,
	cells *graph.Adjacency64, ghosting bool) (*graph.Adjacency, error)

// CellPartitionerFromGraph adapts a graph partitioner to cells by
// building the distributed dual graph and partitioning that.
func CellPartitionerFromGraph(part graph.PartitionFunc) CellPartitioner {
	return func(c *comm.Comm, nParts int, cell CellType,
		cells *graph.Adjacency64, ghosting bool) (*graph.Adjacency, error) {
		dual, numGhostNodes, err := DualGraph(c, cell, cells)
		if err != nil {
			return nil, fmt.Errorf("dual graph: %w", err)
		}
		return part(c, nParts, dual, numGhostNodes, ghosting)
	}
}

// Create assembles a distributed mesh from per-rank cell lists given in
// global vertex numbering together with the coordinates of the vertices
// each rank happens to hold. Cells are repartitioned with part (nil
// selects GreedyPartition), scattered to their destination ranks, and
// vertex ownership is settled by rendezvous so that every shared vertex
// has exactly one owner across the world. Coordinates are fetched for
// all local vertices, wherever their input rows live.
//
// Collective over c.
func Create(c *comm.Comm, cell CellType, cells *graph.Adjacency64, vertIDs []int64,
	x []float64, gdim int, part CellPartitioner, mode GhostMode,
	log *zap.Logger) (*Mesh, error) {

	if log == nil {
		log = zap.NewNop()
	}
	nv := cell.NumVertices()
	if err := validateCells(cells, nv); err != nil {
		return nil, err
	}
	if len(x) != len(vertIDs)*gdim {
		return nil, fmt.Errorf("coordinate block has %d values for %d vertices of dim %d",
			len(x), len(vertIDs), gdim)
	}
	if part == nil {
		part = CellPartitionerFromGraph(graph.GreedyPartition)
	}

	numCells := cells.NumNodes()
	cellOffset := c.ExScan(int64(numCells))

	dests, err := part(c, c.Size(), cell, cells, mode != GhostNone)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	if dests.NumNodes() != numCells {
		return nil, fmt.Errorf("partitioner returned %d rows for %d cells",
			dests.NumNodes(), numCells)
	}
	log.Debug("cells partitioned",
		zap.Int("rank", c.Rank()), zap.Int("localCells", numCells))

	// Scatter each cell to every destination. A record carries the
	// cell's global id, its owner, the full destination list and the
	// global vertex ids.
	send := make([][]int64, c.Size())
	for i := 0; i < numCells; i++ {
		row := dests.Row(int32(i))
		if len(row) == 0 {
			return nil, fmt.Errorf("cell %d has no destination", i)
		}
		rec := make([]int64, 0, 3+len(row)+nv)
		rec = append(rec, cellOffset+int64(i), int64(row[0]), int64(len(row)))
		for _, r := range row {
			rec = append(rec, int64(r))
		}
		rec = append(rec, cells.Row(int32(i))...)
		for _, r := range row {
			send[r] = append(send[r], rec...)
		}
	}
	recv, err := c.AllToAllInts(send)
	if err != nil {
		return nil, err
	}

	type cellRec struct {
		gid   int64
		owner int32
		dests []int32
		verts []int64
	}
	var owned, ghosts []cellRec
	for r := 0; r < c.Size(); r++ {
		buf := recv[r]
		for k := 0; k < len(buf); {
			gid, owner, nd := buf[k], int32(buf[k+1]), int(buf[k+2])
			k += 3
			ds := make([]int32, nd)
			for j := 0; j < nd; j++ {
				ds[j] = int32(buf[k+j])
			}
			k += nd
			vs := make([]int64, nv)
			copy(vs, buf[k:k+nv])
			k += nv
			rec := cellRec{gid, owner, ds, vs}
			if owner == int32(c.Rank()) {
				owned = append(owned, rec)
			} else {
				ghosts = append(ghosts, rec)
			}
		}
	}
	sort.Slice(owned, func(a, b int) bool { return owned[a].gid < owned[b].gid })
	sort.Slice(ghosts, func(a, b int) bool { return ghosts[a].gid < ghosts[b].gid })
	local := append(append([]cellRec{}, owned...), ghosts...)

	cellGlobals := make([]int64, len(local))
	cellSharers := make([][]int32, len(local))
	ghostCellOwners := make([]int32, len(ghosts))
	for i, rec := range local {
		cellGlobals[i] = rec.gid
		var sh []int32
		for _, d := range rec.dests {
			if d != int32(c.Rank()) {
				sh = append(sh, d)
			}
		}
		sort.Slice(sh, func(a, b int) bool { return sh[a] < sh[b] })
		cellSharers[i] = sh
		if i >= len(owned) {
			ghostCellOwners[i-len(owned)] = rec.owner
		}
	}

	// Vertex universe and ownership. Every rank reports each vertex it
	// references to a rendezvous rank, flagging whether one of its
	// owned cells touches it. The rendezvous rank elects the lowest
	// flagged reporter as owner and returns owner plus the complete
	// holder set to every reporter.
	touched := make(map[int64]bool)
	for i, rec := range local {
		for _, v := range rec.verts {
			if i < len(owned) {
				touched[v] = true
			} else if _, ok := touched[v]; !ok {
				touched[v] = false
			}
		}
	}
	vids := make([]int64, 0, len(touched))
	for v := range touched {
		vids = append(vids, v)
	}
	sort.Slice(vids, func(a, b int) bool { return vids[a] < vids[b] })

	ask := make([][]int64, c.Size())
	for _, v := range vids {
		a := int(v % int64(c.Size()))
		flag := int64(0)
		if touched[v] {
			flag = 1
		}
		ask[a] = append(ask[a], v, flag)
	}
	reports, err := c.AllToAllInts(ask)
	if err != nil {
		return nil, err
	}
	type vclaim struct {
		rank  int32
		owned bool
	}
	vboard := make(map[int64][]vclaim)
	for r := 0; r < c.Size(); r++ {
		buf := reports[r]
		for k := 0; k+2 <= len(buf); k += 2 {
			vboard[buf[k]] = append(vboard[buf[k]], vclaim{int32(r), buf[k+1] == 1})
		}
	}
	replies := make([][]int64, c.Size())
	for r := 0; r < c.Size(); r++ {
		buf := reports[r]
		var rep []int64
		for k := 0; k+2 <= len(buf); k += 2 {
			claims := vboard[buf[k]]
			owner := int32(-1)
			for _, cl := range claims {
				if cl.owned && (owner < 0 || cl.rank < owner) {
					owner = cl.rank
				}
			}
			if owner < 0 {
				return nil, fmt.Errorf("vertex %d has no owning candidate", buf[k])
			}
			rep = append(rep, int64(owner), int64(len(claims)))
			for _, cl := range claims {
				rep = append(rep, int64(cl.rank))
			}
		}
		replies[r] = rep
	}
	answers, err := c.AllToAllInts(replies)
	if err != nil {
		return nil, err
	}

	vertOwner := make(map[int64]int32, len(vids))
	vertHolders := make(map[int64][]int32, len(vids))
	cursor := make([]int, c.Size())
	for _, v := range vids {
		a := int(v % int64(c.Size()))
		buf := answers[a]
		k := cursor[a]
		owner, n := int32(buf[k]), int(buf[k+1])
		hs := make([]int32, 0, n)
		for j := 0; j < n; j++ {
			if h := int32(buf[k+2+j]); h != int32(c.Rank()) {
				hs = append(hs, h)
			}
		}
		sort.Slice(hs, func(x, y int) bool { return hs[x] < hs[y] })
		cursor[a] = k + 2 + n
		vertOwner[v] = owner
		vertHolders[v] = hs
	}

	// Owned vertices first, ghosts after, each block sorted by id.
	var ownedVerts, ghostVerts []int64
	for _, v := range vids {
		if vertOwner[v] == int32(c.Rank()) {
			ownedVerts = append(ownedVerts, v)
		} else {
			ghostVerts = append(ghostVerts, v)
		}
	}
	vertGlobals := append(append([]int64{}, ownedVerts...), ghostVerts...)
	ghostVertOwners := make([]int32, len(ghostVerts))
	vertSharers := make([][]int32, len(vertGlobals))
	for i, v := range vertGlobals {
		if i >= len(ownedVerts) {
			ghostVertOwners[i-len(ownedVerts)] = vertOwner[v]
		}
		vertSharers[i] = vertHolders[v]
	}

	vertexMap, err := NewIndexMap(c, int32(len(ownedVerts)), vertGlobals,
		ghostVertOwners, graph.NewAdjacency(vertSharers))
	if err != nil {
		return nil, err
	}
	cellMap, err := NewIndexMap(c, int32(len(owned)), cellGlobals,
		ghostCellOwners, graph.NewAdjacency(cellSharers))
	if err != nil {
		return nil, err
	}

	g2l := make(map[int64]int32, len(vertGlobals))
	for i, v := range vertGlobals {
		g2l[v] = int32(i)
	}
	cellVerts := make([][]int32, len(local))
	for i, rec := range local {
		row := make([]int32, nv)
		for j, v := range rec.verts {
			row[j] = g2l[v]
		}
		cellVerts[i] = row
	}

	topo, err := NewTopology(c, cell, vertexMap, cellMap, graph.NewAdjacency(cellVerts))
	if err != nil {
		return nil, err
	}

	coords, err := graph.FetchFloatRows(c, vertIDs, x, gdim, vertGlobals)
	if err != nil {
		return nil, fmt.Errorf("fetch coordinates: %w", err)
	}
	dofmap := make([][]int32, len(cellVerts))
	for i, row := range cellVerts {
		dofmap[i] = append([]int32{}, row...)
	}
	geom, err := NewGeometry(gdim, coords, vertexMap, dofmap)
	if err != nil {
		return nil, err
	}
	log.Debug("mesh created",
		zap.Int("rank", c.Rank()),
		zap.Int("ownedCells", len(owned)),
		zap.Int("ghostCells", len(ghosts)),
		zap.Int("vertices", len(vertGlobals)))
	return &Mesh{Topology: topo, Geometry: geom}, nil
}

func validateCells(cells *graph.Adjacency64, nv int) error {
	for i := 0; i < cells.NumNodes(); i++ {
		if len(cells.Row(int32(i))) != nv {
			return fmt.Errorf("cell %d has %d vertices, want %d",
				i, len(cells.Row(int32(i))), nv)
		}
	}
	return nil
}
