package mesh

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

// ErrBoundaryDim is returned when a boundary search targets cells.
var ErrBoundaryDim = errors.New("cells cannot be located on the boundary")

// CellVolumes returns the measure of each listed cell: length for
// intervals, area for triangles, volume for tetrahedra.
func CellVolumes(m *Mesh, cells []int32) ([]float64, error) {
	g := m.Geometry
	cv := m.Topology.Connectivity(m.Topology.Dim(), 0)
	out := make([]float64, len(cells))
	for k, ci := range cells {
		verts := cv.Row(ci)
		switch m.Topology.CellType() {
		case Interval:
			out[k] = floats.Distance(g.Point(verts[0]), g.Point(verts[1]), 2)
		case Triangle:
			a, b, c := g.Point(verts[0]), g.Point(verts[1]), g.Point(verts[2])
			u := sub(b, a)
			v := sub(c, a)
			if g.GDim == 2 {
				out[k] = math.Abs(u[0]*v[1]-u[1]*v[0]) / 2
			} else {
				out[k] = floats.Norm(cross(u, v), 2) / 2
			}
		case Tetrahedron:
			a := g.Point(verts[0])
			e := make([]float64, 0, 9)
			for _, vi := range verts[1:] {
				e = append(e, sub(g.Point(vi), a)...)
			}
			out[k] = math.Abs(mat.Det(mat.NewDense(3, 3, e))) / 6
		default:
			return nil, fmt.Errorf("no volume for cell type %s", m.Topology.CellType())
		}
	}
	return out, nil
}

// H returns the diameter of each listed entity, the largest distance
// between two of its vertices.
func H(m *Mesh, dim int, entities []int32) ([]float64, error) {
	ev, err := entityVertexRows(m.Topology, dim)
	if err != nil {
		return nil, err
	}
	g := m.Geometry
	out := make([]float64, len(entities))
	for k, e := range entities {
		verts := ev.Row(e)
		var h float64
		for i := 0; i < len(verts); i++ {
			for j := i + 1; j < len(verts); j++ {
				d := floats.Distance(g.Point(verts[i]), g.Point(verts[j]), 2)
				if d > h {
					h = d
				}
			}
		}
		out[k] = h
	}
	return out, nil
}

// Midpoints returns the vertex centroid of each listed entity, packed
// row-major with the geometric dimension as stride.
func Midpoints(m *Mesh, dim int, entities []int32) ([]float64, error) {
	ev, err := entityVertexRows(m.Topology, dim)
	if err != nil {
		return nil, err
	}
	g := m.Geometry
	out := make([]float64, len(entities)*g.GDim)
	for k, e := range entities {
		verts := ev.Row(e)
		row := out[k*g.GDim : (k+1)*g.GDim]
		for _, v := range verts {
			floats.Add(row, g.Point(v))
		}
		floats.Scale(1/float64(len(verts)), row)
	}
	return out, nil
}

// CellNormals returns unit normals of the listed entities, packed
// row-major with stride 3. Defined for intervals in two dimensions and
// triangles in three.
func CellNormals(m *Mesh, dim int, entities []int32) ([]float64, error) {
	ev, err := entityVertexRows(m.Topology, dim)
	if err != nil {
		return nil, err
	}
	g := m.Geometry
	et := m.Topology.CellType().EntityType(dim)
	out := make([]float64, len(entities)*3)
	for k, e := range entities {
		verts := ev.Row(e)
		n := out[k*3 : (k+1)*3]
		switch {
		case et == Interval && g.GDim == 2:
			t := sub(g.Point(verts[1]), g.Point(verts[0]))
			n[0], n[1] = -t[1], t[0]
		case et == Triangle && g.GDim == 3:
			u := sub(g.Point(verts[1]), g.Point(verts[0]))
			v := sub(g.Point(verts[2]), g.Point(verts[0]))
			copy(n, cross(u, v))
		default:
			return nil, fmt.Errorf("no normal for %s entities in %d dimensions", et, g.GDim)
		}
		floats.Scale(1/floats.Norm(n, 2), n)
	}
	return out, nil
}

// LocateEntities returns the local entities of one dimension whose
// vertices all satisfy the marker, ghosts included, in ascending
// order. Collective on first use of a dimension, since entities may
// need to be created.
func LocateEntities(m *Mesh, dim int, marker func(x []float64) bool) ([]int32, error) {
	topo := m.Topology
	ev, err := entityVertexRows(topo, dim)
	if err != nil {
		return nil, err
	}
	vmap := topo.IndexMap(0)
	marked := make([]bool, vmap.SizeTotal())
	for v := int32(0); v < vmap.SizeTotal(); v++ {
		marked[v] = marker(m.Geometry.Point(v))
	}
	var out []int32
	for e := int32(0); e < topo.IndexMap(dim).SizeTotal(); e++ {
		all := true
		for _, v := range ev.Row(e) {
			if !marked[v] {
				all = false
				break
			}
		}
		if all {
			out = append(out, e)
		}
	}
	return out, nil
}

// LocateEntitiesBoundary restricts the search to entities whose
// vertices all lie on the domain boundary. Cells are rejected, since a
// cell is never contained in the boundary.
func LocateEntitiesBoundary(m *Mesh, dim int, marker func(x []float64) bool) ([]int32, error) {
	topo := m.Topology
	if dim == topo.Dim() {
		return nil, ErrBoundaryDim
	}
	ext, err := topo.ExteriorFacets()
	if err != nil {
		return nil, err
	}
	ev, err := entityVertexRows(topo, dim)
	if err != nil {
		return nil, err
	}
	fv := topo.Connectivity(topo.Dim()-1, 0)
	vmap := topo.IndexMap(0)
	onBoundary := make([]bool, vmap.SizeTotal())
	for _, f := range ext {
		for _, v := range fv.Row(f) {
			onBoundary[v] = true
		}
	}
	var out []int32
	for e := int32(0); e < topo.IndexMap(dim).SizeTotal(); e++ {
		all := true
		for _, v := range ev.Row(e) {
			if !onBoundary[v] || !marker(m.Geometry.Point(v)) {
				all = false
				break
			}
		}
		if all {
			out = append(out, e)
		}
	}
	return out, nil
}

// EntitiesToGeometry returns the geometry point indices of each listed
// entity. With orient set, tetrahedral cells are permuted so their
// vertex order spans a positive volume; orientation of anything else
// is rejected.
func EntitiesToGeometry(m *Mesh, dim int, entities []int32, orient bool) ([][]int32, error) {
	topo := m.Topology
	if orient && (dim != topo.Dim() || topo.CellType() != Tetrahedron) {
		return nil, fmt.Errorf("orientation requires tetrahedral cells, got dim %d", dim)
	}
	ev, err := entityVertexRows(topo, dim)
	if err != nil {
		return nil, err
	}
	g := m.Geometry
	out := make([][]int32, len(entities))
	for k, e := range entities {
		row := append([]int32{}, ev.Row(e)...)
		if orient {
			a := g.Point(row[0])
			ed := make([]float64, 0, 9)
			for _, vi := range row[1:] {
				ed = append(ed, sub(g.Point(vi), a)...)
			}
			if mat.Det(mat.NewDense(3, 3, ed)) < 0 {
				row[2], row[3] = row[3], row[2]
			}
		}
		out[k] = row
	}
	return out, nil
}

// DofLayout answers where the dofs of one reference cell entity sit
// inside a per-cell point row. Element layouts richer than the plain
// vertex layout implement it; topology extraction only ever asks for
// dim 0.
type DofLayout interface {
	EntityDofs(dim, entity int) []int
}

// ExtractTopology reduces a cell list to its vertex columns. Input
// rows may carry extra geometry points past the cell's vertices, as
// higher order formats do. A nil layout reads vertex i from column i;
// otherwise the layout's vertex dofs pick the columns.
func ExtractTopology(cell CellType, layout DofLayout, cells *graph.Adjacency64) (*graph.Adjacency64, error) {
	nv := cell.NumVertices()
	cols := make([]int, nv)
	for v := range cols {
		cols[v] = v
		if layout != nil {
			dofs := layout.EntityDofs(0, v)
			if len(dofs) != 1 {
				return nil, fmt.Errorf("layout has %d dofs on vertex %d, want 1", len(dofs), v)
			}
			cols[v] = dofs[0]
		}
	}
	rows := make([][]int64, cells.NumNodes())
	for i := range rows {
		row := cells.Row(int32(i))
		out := make([]int64, nv)
		for v, col := range cols {
			if col >= len(row) {
				return nil, fmt.Errorf("cell %d has %d points, vertex %d needs column %d",
					i, len(row), v, col)
			}
			out[v] = row[col]
		}
		rows[i] = out
	}
	return graph.NewAdjacency64(rows), nil
}

// PartitionCells computes destination ranks for locally held cells by
// partitioning their distributed dual graph. Collective over c.
func PartitionCells(c *comm.Comm, nParts int, cell CellType, cells *graph.Adjacency64,
	part graph.PartitionFunc, ghosting bool) (*graph.Adjacency, error) {
	if part == nil {
		part = graph.GreedyPartition
	}
	return CellPartitionerFromGraph(part)(c, nParts, cell, cells, ghosting)
}

// entityVertexRows returns the dim-to-vertex connectivity, creating
// entities on demand.
func entityVertexRows(t *Topology, dim int) (*graph.Adjacency, error) {
	if dim == 0 {
		if err := t.CreateConnectivity(0, 0); err != nil {
			return nil, err
		}
		return t.conn[0][0], nil
	}
	if err := t.CreateEntities(dim); err != nil {
		return nil, err
	}
	if t.conn[dim][0] == nil {
		return nil, fmt.Errorf("no vertex connectivity for dimension %d", dim)
	}
	return t.conn[dim][0], nil
}

func sub(a, b []float64) []float64 {
	out := make([]float64, 3)
	for i := range b {
		out[i] = a[i] - b[i]
	}
	return out
}

func cross(u, v []float64) []float64 {
	return []float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
}
