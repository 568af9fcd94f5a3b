package refine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
	"github.com/notargets/meshkernel/mesh"
)

// Report summarises one refinement pass.
type Report struct {
	WorldID     uuid.UUID
	Rounds      int
	NewVertices int64
	CellsBefore int64
	CellsAfter  int64
	Elapsed     time.Duration
}

type options struct {
	markerDim   int
	markerFlags []bool
	part        mesh.CellPartitioner
	mode        mesh.GhostMode
	log         *zap.Logger
}

// Option configures a refinement pass.
type Option func(*options)

// WithMarker seeds refinement from flagged entities instead of
// refining uniformly. Cell markers (dim equal to the topological
// dimension) mark every edge of flagged cells; edge markers (dim 1)
// are taken as is. Flags cover all local entities, ghosts included.
func WithMarker(dim int, flags []bool) Option {
	return func(o *options) {
		o.markerDim = dim
		o.markerFlags = append([]bool{}, flags...)
	}
}

// WithPartitioner replaces the partitioner used when rebuilding the
// refined mesh. The default keeps every child cell on the rank that
// refined its parent.
func WithPartitioner(p mesh.CellPartitioner) Option {
	return func(o *options) { o.part = p }
}

// WithGhostMode sets the ghost mode of the refined mesh.
func WithGhostMode(m mesh.GhostMode) Option {
	return func(o *options) { o.mode = m }
}

// WithLogger attaches a logger to the pass.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// Refine subdivides marked cells of a distributed mesh and rebuilds a
// conforming refined mesh. Edge marks are first propagated across
// ranks until every cell settles on a pattern the templates cover,
// midpoint vertices are numbered by the owning rank of each edge, and
// every owned cell is subdivided and fed back through mesh.Create.
// Without a marker the whole mesh is refined.
//
// Collective over the mesh's communicator.
func Refine(m *mesh.Mesh, opts ...Option) (*mesh.Mesh, *Report, error) {
	start := time.Now()
	o := options{markerDim: -1, mode: mesh.GhostNone}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.part == nil {
		o.part = mesh.CellPartitionerFromGraph(graph.KeepPartition)
	}

	topo := m.Topology
	c := topo.Comm()
	ct := topo.CellType()
	tdim := topo.Dim()
	gdim := m.Geometry.GDim
	if ct != mesh.Triangle && ct != mesh.Tetrahedron {
		return nil, nil, fmt.Errorf("cannot refine %s cells", ct)
	}
	if ct == mesh.Tetrahedron && gdim != 3 {
		return nil, nil, fmt.Errorf("tetrahedral refinement needs 3 coordinates, geometry has %d", gdim)
	}
	if err := topo.CreateEntities(1); err != nil {
		return nil, nil, err
	}

	marked, err := initialMarks(topo, o.markerDim, o.markerFlags)
	if err != nil {
		return nil, nil, err
	}
	rounds, err := propagate(c, topo, marked, o.log)
	if err != nil {
		return nil, nil, err
	}

	mid, newIDs, newX, err := assignMidpoints(m, marked)
	if err != nil {
		return nil, nil, err
	}
	children, err := buildChildren(m, marked, mid)
	if err != nil {
		return nil, nil, err
	}

	vmap := topo.IndexMap(0)
	nOwned := int(vmap.SizeLocal())
	ids := make([]int64, 0, nOwned+len(newIDs))
	ids = append(ids, vmap.Globals()[:nOwned]...)
	ids = append(ids, newIDs...)
	coords := make([]float64, 0, (nOwned+len(newIDs))*gdim)
	coords = append(coords, m.Geometry.X[:nOwned*gdim]...)
	coords = append(coords, newX...)

	refined, err := mesh.Create(c, ct, children, ids, coords, gdim, o.part, o.mode, o.log)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild refined mesh: %w", err)
	}

	rep := &Report{
		WorldID:     c.WorldID(),
		Rounds:      rounds,
		NewVertices: c.AllReduce(int64(len(newIDs)), comm.OpSum),
		CellsBefore: topo.IndexMap(tdim).SizeGlobal(),
		CellsAfter:  refined.Topology.IndexMap(tdim).SizeGlobal(),
		Elapsed:     time.Since(start),
	}
	o.log.Info("mesh refined",
		zap.Int("rank", c.Rank()),
		zap.Int("rounds", rep.Rounds),
		zap.Int64("newVertices", rep.NewVertices),
		zap.Int64("cellsBefore", rep.CellsBefore),
		zap.Int64("cellsAfter", rep.CellsAfter),
		zap.Duration("elapsed", rep.Elapsed))
	return refined, rep, nil
}

// initialMarks seeds the per-edge flag array from the marker, or marks
// everything when there is none.
func initialMarks(topo *mesh.Topology, dim int, flags []bool) ([]bool, error) {
	emap := topo.IndexMap(1)
	marked := make([]bool, emap.SizeTotal())
	switch dim {
	case -1:
		for i := range marked {
			marked[i] = true
		}
	case 1:
		if len(flags) != len(marked) {
			return nil, fmt.Errorf("%w: %d edge flags for %d edges",
				ErrMarkerDimension, len(flags), len(marked))
		}
		copy(marked, flags)
	case topo.Dim():
		cmap := topo.IndexMap(dim)
		if len(flags) != int(cmap.SizeTotal()) {
			return nil, fmt.Errorf("%w: %d cell flags for %d cells",
				ErrMarkerDimension, len(flags), cmap.SizeTotal())
		}
		ce := topo.Connectivity(topo.Dim(), 1)
		for ci, f := range flags {
			if !f {
				continue
			}
			for _, e := range ce.Row(int32(ci)) {
				marked[e] = true
			}
		}
	default:
		return nil, fmt.Errorf("%w: dimension %d", ErrMarkerDimension, dim)
	}
	return marked, nil
}

// propagate exchanges shared-edge marks and applies the escalation
// rules until no rank changes anything. Tetrahedra escalate 4 or 5
// marked edges, and 3 marked edges not on a single face, to all 6;
// triangles escalate 2 to all 3. Marks only ever turn on, so the count
// of marked edges is monotone and the loop terminates.
func propagate(c *comm.Comm, topo *mesh.Topology, marked []bool, log *zap.Logger) (int, error) {
	ct := topo.CellType()
	tdim := topo.Dim()
	ce := topo.Connectivity(tdim, 1)
	cmap := topo.IndexMap(tdim)
	emap := topo.IndexMap(1)

	rounds := 0
	for {
		rounds++
		if err := syncMarks(emap, marked); err != nil {
			return rounds, err
		}
		var updates int64
		for ci := int32(0); ci < cmap.SizeTotal(); ci++ {
			row := ce.Row(ci)
			n := 0
			for _, e := range row {
				if marked[e] {
					n++
				}
			}
			escalate := false
			switch ct {
			case mesh.Tetrahedron:
				if n == 4 || n == 5 {
					escalate = true
				}
				if n == 3 && !onOneFace(row, marked) {
					escalate = true
				}
			case mesh.Triangle:
				if n == 2 {
					escalate = true
				}
			}
			if escalate {
				for _, e := range row {
					marked[e] = true
				}
				updates++
			}
		}
		total := c.AllReduce(updates, comm.OpSum)
		log.Debug("edge marks propagated",
			zap.Int("rank", c.Rank()), zap.Int("round", rounds), zap.Int64("updates", total))
		if total == 0 {
			return rounds, nil
		}
	}
}

// onOneFace reports whether the marked edges of one tetrahedron all
// lie on a single face. row is the cell's edge list in cell-local
// order.
func onOneFace(row []int32, marked []bool) bool {
	for f := 0; f < 4; f++ {
		n := 0
		for _, j := range mesh.FaceEdges(f) {
			if marked[row[j]] {
				n++
			}
		}
		if n == 3 {
			return true
		}
	}
	return false
}

// syncMarks makes shared-edge marks agree across ranks: ghost marks
// flow to the owner, then owner marks flow back out to every sharer.
// Marks are merged by logical or.
func syncMarks(emap *mesh.IndexMap, marked []bool) error {
	rev := emap.Reverse()
	toOwner := make([][]int64, len(rev.Dests()))
	revIdx := make(map[int32]int, len(rev.Dests()))
	for i, r := range rev.Dests() {
		revIdx[r] = i
	}
	for g := emap.SizeLocal(); g < emap.SizeTotal(); g++ {
		if !marked[g] {
			continue
		}
		i := revIdx[emap.Owner(g)]
		toOwner[i] = append(toOwner[i], emap.LocalToGlobal(g))
	}
	fromGhosts, err := rev.AllToAllInts(toOwner)
	if err != nil {
		return err
	}
	for _, buf := range fromGhosts {
		for _, gid := range buf {
			li, ok := emap.GlobalToLocal(gid)
			if !ok {
				return fmt.Errorf("ghost mark for unknown edge %d", gid)
			}
			marked[li] = true
		}
	}

	fwd := emap.Forward()
	toGhosts := make([][]int64, len(fwd.Dests()))
	fwdIdx := make(map[int32]int, len(fwd.Dests()))
	for i, r := range fwd.Dests() {
		fwdIdx[r] = i
	}
	for i := int32(0); i < emap.SizeLocal(); i++ {
		if !marked[i] {
			continue
		}
		for _, r := range emap.Sharers(i) {
			toGhosts[fwdIdx[r]] = append(toGhosts[fwdIdx[r]], emap.LocalToGlobal(i))
		}
	}
	fromOwners, err := fwd.AllToAllInts(toGhosts)
	if err != nil {
		return err
	}
	for _, buf := range fromOwners {
		for _, gid := range buf {
			li, ok := emap.GlobalToLocal(gid)
			if !ok {
				return fmt.Errorf("owner mark for unknown edge %d", gid)
			}
			marked[li] = true
		}
	}
	return nil
}

// assignMidpoints gives every marked edge a fresh global vertex id,
// assigned by the edge's owner past the current maximum, and returns
// the per-edge midpoint table plus the ids and coordinates of the new
// vertices this rank owns.
func assignMidpoints(m *mesh.Mesh, marked []bool) ([]int64, []int64, []float64, error) {
	topo := m.Topology
	c := topo.Comm()
	emap := topo.IndexMap(1)
	vmap := topo.IndexMap(0)
	ev := topo.Connectivity(1, 0)
	gdim := m.Geometry.GDim

	base := vmap.MaxGlobalIndex() + 1
	var nNew int64
	for i := int32(0); i < emap.SizeLocal(); i++ {
		if marked[i] {
			nNew++
		}
	}
	offset := c.ExScan(nNew)

	mid := make([]int64, emap.SizeTotal())
	for i := range mid {
		mid[i] = -1
	}
	newIDs := make([]int64, 0, nNew)
	newX := make([]float64, 0, int(nNew)*gdim)
	next := base + offset
	for i := int32(0); i < emap.SizeLocal(); i++ {
		if !marked[i] {
			continue
		}
		mid[i] = next
		newIDs = append(newIDs, next)
		next++
		verts := ev.Row(i)
		p0 := m.Geometry.Point(verts[0])
		p1 := m.Geometry.Point(verts[1])
		for k := 0; k < gdim; k++ {
			newX = append(newX, (p0[k]+p1[k])/2)
		}
	}

	// Owners announce midpoint ids to every sharer of the edge.
	fwd := emap.Forward()
	ann := make([][]int64, len(fwd.Dests()))
	fwdIdx := make(map[int32]int, len(fwd.Dests()))
	for i, r := range fwd.Dests() {
		fwdIdx[r] = i
	}
	for i := int32(0); i < emap.SizeLocal(); i++ {
		if !marked[i] {
			continue
		}
		for _, r := range emap.Sharers(i) {
			j := fwdIdx[r]
			ann[j] = append(ann[j], emap.LocalToGlobal(i), mid[i])
		}
	}
	got, err := fwd.AllToAllInts(ann)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, buf := range got {
		for k := 0; k+2 <= len(buf); k += 2 {
			li, ok := emap.GlobalToLocal(buf[k])
			if !ok {
				return nil, nil, nil, fmt.Errorf("midpoint for unknown edge %d", buf[k])
			}
			mid[li] = buf[k+1]
		}
	}
	for i := emap.SizeLocal(); i < emap.SizeTotal(); i++ {
		if marked[i] && mid[i] < 0 {
			return nil, nil, nil, fmt.Errorf("marked edge %d received no midpoint id",
				emap.LocalToGlobal(i))
		}
	}
	return mid, newIDs, newX, nil
}

// buildChildren subdivides every owned cell and returns the new cell
// list in global vertex ids.
func buildChildren(m *mesh.Mesh, marked []bool, mid []int64) (*graph.Adjacency64, error) {
	topo := m.Topology
	ct := topo.CellType()
	tdim := topo.Dim()
	cv := topo.Connectivity(tdim, 0)
	ce := topo.Connectivity(tdim, 1)
	cmap := topo.IndexMap(tdim)
	vmap := topo.IndexMap(0)

	var rows [][]int64
	for ci := int32(0); ci < cmap.SizeLocal(); ci++ {
		verts := cv.Row(ci)
		edges := ce.Row(ci)
		switch ct {
		case mesh.Tetrahedron:
			var v [4]int64
			var x [4][3]float64
			var mk [6]bool
			var md [6]int64
			for j := 0; j < 4; j++ {
				v[j] = vmap.LocalToGlobal(verts[j])
				copy(x[j][:], m.Geometry.Point(verts[j]))
			}
			for j := 0; j < 6; j++ {
				mk[j] = marked[edges[j]]
				md[j] = mid[edges[j]]
			}
			kids, err := SubdivideTet(v, x, mk, md)
			if err != nil {
				return nil, fmt.Errorf("cell %d: %w", cmap.LocalToGlobal(ci), err)
			}
			for _, k := range kids {
				rows = append(rows, k[:])
			}
		case mesh.Triangle:
			var v [3]int64
			var mk [3]bool
			var md [3]int64
			for j := 0; j < 3; j++ {
				v[j] = vmap.LocalToGlobal(verts[j])
			}
			for j := 0; j < 3; j++ {
				mk[j] = marked[edges[j]]
				md[j] = mid[edges[j]]
			}
			kids, err := SubdivideTriangle(v, mk, md)
			if err != nil {
				return nil, fmt.Errorf("cell %d: %w", cmap.LocalToGlobal(ci), err)
			}
			for _, k := range kids {
				rows = append(rows, k[:])
			}
		}
	}
	return graph.NewAdjacency64(rows), nil
}
