package refine

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
	"github.com/notargets/meshkernel/mesh"
)

// runWorld runs fn on every rank of a fresh world and fails the test on
// any rank's error.
func runWorld(t *testing.T, size int, fn func(c *comm.Comm) error) {
	t.Helper()
	w, err := comm.NewWorld(size)
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	if err := w.Run(fn); err != nil {
		t.Fatal(err)
	}
}

// totalVolume adds the owned cell volumes across the world.
func totalVolume(c *comm.Comm, m *mesh.Mesh) (float64, error) {
	owned := make([]int32, m.NumOwnedCells())
	for i := range owned {
		owned[i] = int32(i)
	}
	vols, err := mesh.CellVolumes(m, owned)
	if err != nil {
		return 0, err
	}
	var local float64
	for _, v := range vols {
		local += v
	}
	send := make([][]float64, c.Size())
	for r := range send {
		send[r] = []float64{local}
	}
	got, err := c.AllToAllFloats(send)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, buf := range got {
		sum += buf[0]
	}
	return sum, nil
}

func TestRefineUniformSerial(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitCubeCells(1)
		m, err := mesh.Create(c, mesh.Tetrahedron, cells, ids, x, 3, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		refined, rep, err := Refine(m)
		if err != nil {
			return err
		}
		if rep.CellsBefore != 6 || rep.CellsAfter != 48 {
			return fmt.Errorf("cells %d -> %d, want 6 -> 48", rep.CellsBefore, rep.CellsAfter)
		}
		if rep.NewVertices != 19 {
			return fmt.Errorf("NewVertices = %d, want one per edge, 19", rep.NewVertices)
		}
		if rep.Rounds < 1 || rep.Elapsed <= 0 {
			return fmt.Errorf("rounds %d, elapsed %s", rep.Rounds, rep.Elapsed)
		}
		if rep.WorldID != c.WorldID() {
			return fmt.Errorf("report names world %s, want %s", rep.WorldID, c.WorldID())
		}
		if got := refined.Topology.IndexMap(3).SizeGlobal(); got != 48 {
			return fmt.Errorf("refined mesh has %d cells, want 48", got)
		}
		if got := refined.Topology.IndexMap(0).SizeGlobal(); got != 27 {
			return fmt.Errorf("refined mesh has %d vertices, want 27", got)
		}
		vol, err := totalVolume(c, refined)
		if err != nil {
			return err
		}
		if math.Abs(vol-1) > 1e-12 {
			return fmt.Errorf("refined volume = %g, want 1", vol)
		}
		return nil
	})
}

func TestRefineUniformDistributed(t *testing.T) {
	runWorld(t, 2, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitCubeCells(2)
		if c.Rank() != 0 {
			cells, ids, x = graph.NewAdjacency64(nil), nil, nil
		}
		m, err := mesh.Create(c, mesh.Tetrahedron, cells, ids, x, 3, nil, mesh.GhostSharedFacet, nil)
		if err != nil {
			return err
		}
		refined, rep, err := Refine(m,
			WithPartitioner(mesh.CellPartitionerFromGraph(graph.BlockPartition)),
			WithGhostMode(mesh.GhostSharedFacet))
		if err != nil {
			return err
		}
		if rep.CellsBefore != 48 || rep.CellsAfter != 384 {
			return fmt.Errorf("cells %d -> %d, want 48 -> 384", rep.CellsBefore, rep.CellsAfter)
		}
		if rep.NewVertices != 98 {
			return fmt.Errorf("NewVertices = %d, want one per edge, 98", rep.NewVertices)
		}
		if got := refined.Topology.IndexMap(0).SizeGlobal(); got != 125 {
			return fmt.Errorf("refined mesh has %d vertices, want 125", got)
		}
		if refined.NumOwnedCells() != 192 {
			return fmt.Errorf("rank %d owns %d refined cells, want 192", c.Rank(), refined.NumOwnedCells())
		}
		if refined.Topology.IndexMap(3).NumGhosts() == 0 {
			return fmt.Errorf("rank %d has no ghost cells under shared-facet ghosting", c.Rank())
		}
		vol, err := totalVolume(c, refined)
		if err != nil {
			return err
		}
		if math.Abs(vol-1) > 1e-12 {
			return fmt.Errorf("refined volume = %g, want 1", vol)
		}
		ext, err := refined.Topology.ExteriorFacets()
		if err != nil {
			return err
		}
		if total := c.AllReduce(int64(len(ext)), comm.OpSum); total != 192 {
			return fmt.Errorf("refined boundary has %d facets, want 192", total)
		}
		return nil
	})
}

// TestRefineEdgeMarkerSerial marks only the diagonal of the unit
// square, which both triangles share, so each bisects once.
func TestRefineEdgeMarkerSerial(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitSquareCells(1)
		m, err := mesh.Create(c, mesh.Triangle, cells, ids, x, 2, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		topo := m.Topology
		if err := topo.CreateEntities(1); err != nil {
			return err
		}
		emap := topo.IndexMap(1)
		vmap := topo.IndexMap(0)
		ev := topo.Connectivity(1, 0)
		flags := make([]bool, emap.SizeTotal())
		found := false
		for e := int32(0); e < emap.SizeTotal(); e++ {
			row := ev.Row(e)
			a, b := vmap.LocalToGlobal(row[0]), vmap.LocalToGlobal(row[1])
			if a > b {
				a, b = b, a
			}
			if a == 0 && b == 3 {
				flags[e] = true
				found = true
			}
		}
		if !found {
			return fmt.Errorf("no edge joins vertices 0 and 3")
		}
		refined, rep, err := Refine(m, WithMarker(1, flags))
		if err != nil {
			return err
		}
		if rep.CellsBefore != 2 || rep.CellsAfter != 4 {
			return fmt.Errorf("cells %d -> %d, want 2 -> 4", rep.CellsBefore, rep.CellsAfter)
		}
		if rep.NewVertices != 1 || rep.Rounds != 1 {
			return fmt.Errorf("NewVertices = %d, Rounds = %d, want 1 and 1", rep.NewVertices, rep.Rounds)
		}
		rvmap := refined.Topology.IndexMap(0)
		if rvmap.SizeGlobal() != 5 {
			return fmt.Errorf("refined mesh has %d vertices, want 5", rvmap.SizeGlobal())
		}
		// The midpoint takes the first id past the input numbering.
		li, ok := rvmap.GlobalToLocal(4)
		if !ok {
			return fmt.Errorf("midpoint vertex 4 missing")
		}
		p := refined.Geometry.Point(li)
		if p[0] != 0.5 || p[1] != 0.5 {
			return fmt.Errorf("midpoint at (%g, %g), want (0.5, 0.5)", p[0], p[1])
		}
		area, err := totalVolume(c, refined)
		if err != nil {
			return err
		}
		if math.Abs(area-1) > 1e-12 {
			return fmt.Errorf("refined area = %g, want 1", area)
		}
		return nil
	})
}

// TestRefineCellMarkerDistributed flags every cell, which must mark
// every edge and reproduce uniform refinement.
func TestRefineCellMarkerDistributed(t *testing.T) {
	runWorld(t, 2, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitSquareCells(2)
		if c.Rank() != 0 {
			cells, ids, x = graph.NewAdjacency64(nil), nil, nil
		}
		m, err := mesh.Create(c, mesh.Triangle, cells, ids, x, 2, nil, mesh.GhostSharedFacet, nil)
		if err != nil {
			return err
		}
		cmap := m.Topology.IndexMap(2)
		flags := make([]bool, cmap.SizeTotal())
		for i := range flags {
			flags[i] = true
		}
		refined, rep, err := Refine(m, WithMarker(2, flags))
		if err != nil {
			return err
		}
		if rep.CellsBefore != 8 || rep.CellsAfter != 32 {
			return fmt.Errorf("cells %d -> %d, want 8 -> 32", rep.CellsBefore, rep.CellsAfter)
		}
		if rep.NewVertices != 16 {
			return fmt.Errorf("NewVertices = %d, want one per edge, 16", rep.NewVertices)
		}
		if got := refined.Topology.IndexMap(0).SizeGlobal(); got != 25 {
			return fmt.Errorf("refined mesh has %d vertices, want 25", got)
		}
		area, err := totalVolume(c, refined)
		if err != nil {
			return err
		}
		if math.Abs(area-1) > 1e-12 {
			return fmt.Errorf("refined area = %g, want 1", area)
		}
		return nil
	})
}

// TestRefineEscalation marks four edges of one tetrahedron, a pattern
// the templates reject, and relies on propagation to escalate it to a
// full split before subdividing.
func TestRefineEscalation(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitCubeCells(1)
		m, err := mesh.Create(c, mesh.Tetrahedron, cells, ids, x, 3, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		topo := m.Topology
		if err := topo.CreateEntities(1); err != nil {
			return err
		}
		flags := make([]bool, topo.IndexMap(1).SizeTotal())
		for _, e := range topo.Connectivity(3, 1).Row(0)[:4] {
			flags[e] = true
		}
		refined, rep, err := Refine(m, WithMarker(1, flags))
		if err != nil {
			return err
		}
		if rep.Rounds < 2 {
			return fmt.Errorf("Rounds = %d, want at least 2 for an escalated pattern", rep.Rounds)
		}
		if rep.CellsAfter <= rep.CellsBefore || rep.CellsAfter > 48 {
			return fmt.Errorf("cells %d -> %d", rep.CellsBefore, rep.CellsAfter)
		}
		vol, err := totalVolume(c, refined)
		if err != nil {
			return err
		}
		if math.Abs(vol-1) > 1e-12 {
			return fmt.Errorf("refined volume = %g, want 1", vol)
		}
		return nil
	})
}

// TestPropagateFixedPoint checks that mark propagation is idempotent:
// once a marking has settled, running it again performs a single sweep
// that changes nothing, and every cell is left on a pattern the
// templates accept.
func TestPropagateFixedPoint(t *testing.T) {
	check := func(c *comm.Comm, m *mesh.Mesh) error {
		topo := m.Topology
		if err := topo.CreateEntities(1); err != nil {
			return err
		}
		marked := make([]bool, topo.IndexMap(1).SizeTotal())
		if c.Rank() == 0 {
			for _, e := range topo.Connectivity(3, 1).Row(0)[:4] {
				marked[e] = true
			}
		}
		log := zap.NewNop()
		if _, err := propagate(c, topo, marked, log); err != nil {
			return err
		}
		settled := make([]bool, len(marked))
		copy(settled, marked)
		rounds, err := propagate(c, topo, settled, log)
		if err != nil {
			return err
		}
		if rounds != 1 {
			return fmt.Errorf("second propagation took %d rounds, want 1", rounds)
		}
		for i := range marked {
			if settled[i] != marked[i] {
				return fmt.Errorf("second propagation flipped edge %d", i)
			}
		}
		ce := topo.Connectivity(3, 1)
		for ci := int32(0); ci < topo.IndexMap(3).SizeTotal(); ci++ {
			row := ce.Row(ci)
			n := 0
			for _, e := range row {
				if marked[e] {
					n++
				}
			}
			if n == 4 || n == 5 || (n == 3 && !onOneFace(row, marked)) {
				return fmt.Errorf("cell %d settled on %d marked edges", ci, n)
			}
		}
		return nil
	}

	t.Run("serial", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells, ids, x := mesh.UnitCubeCells(1)
			m, err := mesh.Create(c, mesh.Tetrahedron, cells, ids, x, 3, nil, mesh.GhostNone, nil)
			if err != nil {
				return err
			}
			return check(c, m)
		})
	})

	t.Run("distributed", func(t *testing.T) {
		runWorld(t, 2, func(c *comm.Comm) error {
			cells, ids, x := mesh.UnitCubeCells(2)
			if c.Rank() != 0 {
				cells, ids, x = graph.NewAdjacency64(nil), nil, nil
			}
			m, err := mesh.Create(c, mesh.Tetrahedron, cells, ids, x, 3, nil, mesh.GhostSharedFacet, nil)
			if err != nil {
				return err
			}
			return check(c, m)
		})
	})
}

func TestRefineNothingMarked(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitCubeCells(1)
		m, err := mesh.Create(c, mesh.Tetrahedron, cells, ids, x, 3, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		if err := m.Topology.CreateEntities(1); err != nil {
			return err
		}
		flags := make([]bool, m.Topology.IndexMap(1).SizeTotal())
		refined, rep, err := Refine(m, WithMarker(1, flags))
		if err != nil {
			return err
		}
		if rep.CellsBefore != 6 || rep.CellsAfter != 6 {
			return fmt.Errorf("cells %d -> %d, want 6 -> 6", rep.CellsBefore, rep.CellsAfter)
		}
		if rep.NewVertices != 0 || rep.Rounds != 1 {
			return fmt.Errorf("NewVertices = %d, Rounds = %d, want 0 and 1", rep.NewVertices, rep.Rounds)
		}
		if got := refined.Topology.IndexMap(0).SizeGlobal(); got != 8 {
			return fmt.Errorf("refined mesh has %d vertices, want 8", got)
		}
		return nil
	})
}

func TestRefineTwice(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitSquareCells(1)
		m, err := mesh.Create(c, mesh.Triangle, cells, ids, x, 2, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		once, rep, err := Refine(m, WithLogger(zap.NewNop()))
		if err != nil {
			return err
		}
		if rep.CellsAfter != 8 || rep.NewVertices != 5 {
			return fmt.Errorf("first pass: %d cells, %d new vertices, want 8 and 5",
				rep.CellsAfter, rep.NewVertices)
		}
		twice, rep, err := Refine(once)
		if err != nil {
			return err
		}
		if rep.CellsAfter != 32 || rep.NewVertices != 16 {
			return fmt.Errorf("second pass: %d cells, %d new vertices, want 32 and 16",
				rep.CellsAfter, rep.NewVertices)
		}
		if got := twice.Topology.IndexMap(0).SizeGlobal(); got != 25 {
			return fmt.Errorf("twice-refined mesh has %d vertices, want 25", got)
		}
		area, err := totalVolume(c, twice)
		if err != nil {
			return err
		}
		if math.Abs(area-1) > 1e-12 {
			return fmt.Errorf("twice-refined area = %g, want 1", area)
		}
		return nil
	})
}

func TestRefineMarkerValidation(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := mesh.UnitSquareCells(1)
		m, err := mesh.Create(c, mesh.Triangle, cells, ids, x, 2, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		if _, _, err := Refine(m, WithMarker(0, make([]bool, 4))); !errors.Is(err, ErrMarkerDimension) {
			return fmt.Errorf("vertex marker: error %v, want ErrMarkerDimension", err)
		}
		if _, _, err := Refine(m, WithMarker(1, []bool{true})); !errors.Is(err, ErrMarkerDimension) {
			return fmt.Errorf("short edge marker: error %v, want ErrMarkerDimension", err)
		}
		if _, _, err := Refine(m, WithMarker(2, []bool{true})); !errors.Is(err, ErrMarkerDimension) {
			return fmt.Errorf("short cell marker: error %v, want ErrMarkerDimension", err)
		}
		return nil
	})
}

func TestRefineUnsupportedCell(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells := graph.NewAdjacency64([][]int64{{0, 1}, {1, 2}})
		m, err := mesh.Create(c, mesh.Interval, cells, []int64{0, 1, 2},
			[]float64{0, 0.5, 1}, 1, nil, mesh.GhostNone, nil)
		if err != nil {
			return err
		}
		if _, _, err := Refine(m); err == nil || !strings.Contains(err.Error(), "cannot refine") {
			return fmt.Errorf("interval mesh: error %v, want refusal", err)
		}
		return nil
	})
}
