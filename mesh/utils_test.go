package mesh

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

func TestCellVolumes(t *testing.T) {
	t.Run("tetrahedra", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells, ids, x := UnitCubeCells(1)
			m, err := Create(c, Tetrahedron, cells, ids, x, 3, nil, GhostNone, nil)
			if err != nil {
				return err
			}
			sum, err := ownedVolumeSum(m)
			if err != nil {
				return err
			}
			if math.Abs(sum-1) > 1e-12 {
				return fmt.Errorf("cube volume = %v, want 1", sum)
			}
			vols, err := CellVolumes(m, []int32{0})
			if err != nil {
				return err
			}
			if math.Abs(vols[0]-1.0/6) > 1e-12 {
				return fmt.Errorf("tet volume = %v, want 1/6", vols[0])
			}
			return nil
		})
	})
	t.Run("triangles", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells, ids, x := UnitSquareCells(1)
			m, err := Create(c, Triangle, cells, ids, x, 2, nil, GhostNone, nil)
			if err != nil {
				return err
			}
			vols, err := CellVolumes(m, []int32{0, 1})
			if err != nil {
				return err
			}
			for _, v := range vols {
				if math.Abs(v-0.5) > 1e-12 {
					return fmt.Errorf("triangle area = %v, want 0.5", v)
				}
			}
			return nil
		})
	})
	t.Run("intervals", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells := graph.NewAdjacency64([][]int64{{0, 1}, {1, 2}})
			ids := []int64{0, 1, 2}
			x := []float64{0, 0.25, 1}
			m, err := Create(c, Interval, cells, ids, x, 1, nil, GhostNone, nil)
			if err != nil {
				return err
			}
			vols, err := CellVolumes(m, []int32{0, 1})
			if err != nil {
				return err
			}
			if vols[0] != 0.25 || vols[1] != 0.75 {
				return fmt.Errorf("interval lengths = %v, want [0.25 0.75]", vols)
			}
			return nil
		})
	})
}

func TestH(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := UnitCubeCells(1)
		m, err := Create(c, Tetrahedron, cells, ids, x, 3, nil, GhostNone, nil)
		if err != nil {
			return err
		}
		all := make([]int32, m.NumCells())
		for i := range all {
			all[i] = int32(i)
		}
		hs, err := H(m, 3, all)
		if err != nil {
			return err
		}
		// Every tet of the six-tet cube contains the main diagonal.
		for i, h := range hs {
			if math.Abs(h-math.Sqrt(3)) > 1e-12 {
				return fmt.Errorf("cell %d diameter = %v, want sqrt(3)", i, h)
			}
		}
		hs, err = H(m, 1, nil)
		if err != nil {
			return err
		}
		if len(hs) != 0 {
			return fmt.Errorf("empty entity list gave %d diameters", len(hs))
		}
		return nil
	})
}

func TestMidpoints(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := UnitSquareCells(1)
		m, err := Create(c, Triangle, cells, ids, x, 2, nil, GhostNone, nil)
		if err != nil {
			return err
		}
		mids, err := Midpoints(m, 2, []int32{0, 1})
		if err != nil {
			return err
		}
		want := []float64{2.0 / 3, 1.0 / 3, 1.0 / 3, 2.0 / 3}
		if !floats.EqualApprox(mids, want, 1e-12) {
			return fmt.Errorf("midpoints = %v, want %v", mids, want)
		}
		// Vertex midpoints are the vertices themselves.
		vm, err := Midpoints(m, 0, []int32{0})
		if err != nil {
			return err
		}
		p := m.Geometry.Point(0)
		if vm[0] != p[0] || vm[1] != p[1] {
			return fmt.Errorf("vertex midpoint = %v, want %v", vm, p)
		}
		return nil
	})
}

func TestCellNormals(t *testing.T) {
	t.Run("interval facets in 2d", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells, ids, x := UnitSquareCells(2)
			m, err := Create(c, Triangle, cells, ids, x, 2, nil, GhostNone, nil)
			if err != nil {
				return err
			}
			if err := m.Topology.CreateEntities(1); err != nil {
				return err
			}
			emap := m.Topology.IndexMap(1)
			all := make([]int32, emap.SizeTotal())
			for i := range all {
				all[i] = int32(i)
			}
			normals, err := CellNormals(m, 1, all)
			if err != nil {
				return err
			}
			ev := m.Topology.Connectivity(1, 0)
			for k, e := range all {
				n := normals[k*3 : (k+1)*3]
				if math.Abs(floats.Norm(n, 2)-1) > 1e-12 {
					return fmt.Errorf("edge %d normal %v is not unit", e, n)
				}
				r := ev.Row(e)
				tan := sub(m.Geometry.Point(r[1]), m.Geometry.Point(r[0]))
				if math.Abs(floats.Dot(n, tan)) > 1e-12 {
					return fmt.Errorf("edge %d normal %v not perpendicular to %v", e, n, tan)
				}
			}
			return nil
		})
	})
	t.Run("triangle facets in 3d", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells, ids, x := UnitCubeCells(1)
			m, err := Create(c, Tetrahedron, cells, ids, x, 3, nil, GhostNone, nil)
			if err != nil {
				return err
			}
			ext, err := m.Topology.ExteriorFacets()
			if err != nil {
				return err
			}
			normals, err := CellNormals(m, 2, ext)
			if err != nil {
				return err
			}
			fv := m.Topology.Connectivity(2, 0)
			for k, f := range ext {
				n := normals[k*3 : (k+1)*3]
				if math.Abs(floats.Norm(n, 2)-1) > 1e-12 {
					return fmt.Errorf("facet %d normal %v is not unit", f, n)
				}
				r := fv.Row(f)
				u := sub(m.Geometry.Point(r[1]), m.Geometry.Point(r[0]))
				v := sub(m.Geometry.Point(r[2]), m.Geometry.Point(r[0]))
				if math.Abs(floats.Dot(n, u)) > 1e-12 || math.Abs(floats.Dot(n, v)) > 1e-12 {
					return fmt.Errorf("facet %d normal %v not perpendicular to its plane", f, n)
				}
			}
			return nil
		})
	})
	t.Run("unsupported", func(t *testing.T) {
		runWorld(t, 1, func(c *comm.Comm) error {
			cells, ids, x := UnitCubeCells(1)
			m, err := Create(c, Tetrahedron, cells, ids, x, 3, nil, GhostNone, nil)
			if err != nil {
				return err
			}
			if _, err := CellNormals(m, 3, []int32{0}); err == nil {
				return fmt.Errorf("expected error for cell normals of tetrahedra")
			}
			return nil
		})
	})
}

func TestLocateEntities(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := UnitSquareCells(2)
		m, err := Create(c, Triangle, cells, ids, x, 2, nil, GhostNone, nil)
		if err != nil {
			return err
		}
		left := func(p []float64) bool { return p[0] <= 0.5+1e-12 }
		verts, err := LocateEntities(m, 0, left)
		if err != nil {
			return err
		}
		if len(verts) != 6 {
			return fmt.Errorf("%d vertices in left half, want 6", len(verts))
		}
		edges, err := LocateEntities(m, 1, left)
		if err != nil {
			return err
		}
		if len(edges) != 9 {
			return fmt.Errorf("%d edges in left half, want 9", len(edges))
		}
		cellsIn, err := LocateEntities(m, 2, left)
		if err != nil {
			return err
		}
		if len(cellsIn) != 4 {
			return fmt.Errorf("%d cells in left half, want 4", len(cellsIn))
		}
		return nil
	})
}

func TestLocateEntitiesBoundary(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := UnitSquareCells(2)
		m, err := Create(c, Triangle, cells, ids, x, 2, nil, GhostNone, nil)
		if err != nil {
			return err
		}
		onLeft := func(p []float64) bool { return p[0] == 0 }
		verts, err := LocateEntitiesBoundary(m, 0, onLeft)
		if err != nil {
			return err
		}
		if len(verts) != 3 {
			return fmt.Errorf("%d boundary vertices at x=0, want 3", len(verts))
		}
		edges, err := LocateEntitiesBoundary(m, 1, onLeft)
		if err != nil {
			return err
		}
		if len(edges) != 2 {
			return fmt.Errorf("%d boundary edges at x=0, want 2", len(edges))
		}
		if _, err := LocateEntitiesBoundary(m, 2, onLeft); !errors.Is(err, ErrBoundaryDim) {
			return fmt.Errorf("cell search error = %v, want ErrBoundaryDim", err)
		}
		return nil
	})
}

func TestEntitiesToGeometry(t *testing.T) {
	runWorld(t, 1, func(c *comm.Comm) error {
		cells, ids, x := UnitCubeCells(1)
		m, err := Create(c, Tetrahedron, cells, ids, x, 3, nil, GhostNone, nil)
		if err != nil {
			return err
		}
		all := make([]int32, m.NumCells())
		for i := range all {
			all[i] = int32(i)
		}
		rows, err := EntitiesToGeometry(m, 3, all, true)
		if err != nil {
			return err
		}
		for ci, row := range rows {
			a := m.Geometry.Point(row[0])
			e := make([]float64, 0, 9)
			for _, v := range row[1:] {
				e = append(e, sub(m.Geometry.Point(v), a)...)
			}
			if det3(e) <= 0 {
				return fmt.Errorf("cell %d not positively oriented after orient", ci)
			}
		}
		if _, err := EntitiesToGeometry(m, 2, []int32{0}, true); err == nil {
			return fmt.Errorf("expected error orienting facets")
		}
		return nil
	})
}

func det3(e []float64) float64 {
	return e[0]*(e[4]*e[8]-e[5]*e[7]) -
		e[1]*(e[3]*e[8]-e[5]*e[6]) +
		e[2]*(e[3]*e[7]-e[4]*e[6])
}

// reversedLayout places vertex i at the last columns of a 6-point row,
// in reverse, the way a second order element might.
type reversedLayout struct{}

func (reversedLayout) EntityDofs(dim, entity int) []int {
	if dim != 0 {
		return nil
	}
	return []int{5 - entity}
}

func TestExtractTopology(t *testing.T) {
	in := graph.NewAdjacency64([][]int64{
		{4, 2, 7, 1, 99, 98},
		{0, 1, 2, 3},
	})
	out, err := ExtractTopology(Tetrahedron, nil, in)
	if err != nil {
		t.Fatalf("ExtractTopology failed: %v", err)
	}
	if out.Degree(0) != 4 || out.Row(0)[3] != 1 {
		t.Errorf("row 0 = %v, want leading four vertices", out.Row(0))
	}

	wide := graph.NewAdjacency64([][]int64{{30, 31, 10, 11, 12, 13}})
	out, err = ExtractTopology(Tetrahedron, reversedLayout{}, wide)
	if err != nil {
		t.Fatalf("ExtractTopology with layout failed: %v", err)
	}
	if want := []int64{13, 12, 11, 10}; !reflect.DeepEqual(out.Row(0), want) {
		t.Errorf("row 0 = %v, want %v", out.Row(0), want)
	}

	short := graph.NewAdjacency64([][]int64{{0, 1}})
	if _, err := ExtractTopology(Tetrahedron, nil, short); err == nil {
		t.Error("expected error for short row")
	}
	if _, err := ExtractTopology(Tetrahedron, reversedLayout{}, short); err == nil {
		t.Error("expected error for layout column past the row")
	}
}
