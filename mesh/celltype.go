// Package mesh implements the distributed topology and geometry model:
// entity index maps with ghost regions, lazily built adjacency, the
// interface ownership resolver, and construction of freshly partitioned
// meshes from global cell-vertex lists.
package mesh

import "fmt"

// CellType identifies the closed set of supported reference cells.
type CellType int8

const (
	Point CellType = iota
	Interval
	Triangle
	Tetrahedron
)

func (ct CellType) String() string {
	switch ct {
	case Point:
		return "point"
	case Interval:
		return "interval"
	case Triangle:
		return "triangle"
	case Tetrahedron:
		return "tetrahedron"
	}
	return fmt.Sprintf("celltype(%d)", int(ct))
}

// Dim returns the topological dimension.
func (ct CellType) Dim() int {
	switch ct {
	case Point:
		return 0
	case Interval:
		return 1
	case Triangle:
		return 2
	case Tetrahedron:
		return 3
	}
	panic("unknown cell type")
}

// NumVertices returns the vertex count of the reference cell.
func (ct CellType) NumVertices() int {
	switch ct {
	case Point:
		return 1
	case Interval:
		return 2
	case Triangle:
		return 3
	case Tetrahedron:
		return 4
	}
	panic("unknown cell type")
}

// NumEntities returns how many sub-entities of dimension dim one cell
// carries.
func (ct CellType) NumEntities(dim int) int {
	if dim == 0 {
		return ct.NumVertices()
	}
	if dim == ct.Dim() {
		return 1
	}
	switch ct {
	case Triangle:
		if dim == 1 {
			return 3
		}
	case Tetrahedron:
		switch dim {
		case 1:
			return 6
		case 2:
			return 4
		}
	}
	panic(fmt.Sprintf("%s has no dimension-%d entities", ct, dim))
}

// FacetType returns the cell type of codimension-1 entities.
func (ct CellType) FacetType() CellType {
	switch ct {
	case Interval:
		return Point
	case Triangle:
		return Interval
	case Tetrahedron:
		return Triangle
	}
	panic(fmt.Sprintf("%s has no facets", ct))
}

// EntityType returns the cell type of dimension-dim sub-entities.
func (ct CellType) EntityType(dim int) CellType {
	switch dim {
	case 0:
		return Point
	case 1:
		return Interval
	}
	if dim == ct.Dim() {
		return ct
	}
	if ct == Tetrahedron && dim == 2 {
		return Triangle
	}
	panic(fmt.Sprintf("%s has no dimension-%d entities", ct, dim))
}

// Tetrahedron edges are enumerated so that opposite pairs sum to 5:
// edge i and edge 5-i share no vertex.
var tetEdgeVertices = [6][2]int{
	{2, 3}, {1, 3}, {1, 2}, {0, 3}, {0, 2}, {0, 1},
}

// Tetrahedron face i is the triangle excluding vertex i.
var tetFaceVertices = [4][3]int{
	{1, 2, 3}, {0, 2, 3}, {0, 1, 3}, {0, 1, 2},
}

// tetFaceEdges lists, per face, the cell-local edges lying on it.
var tetFaceEdges = [4][3]int{
	{0, 1, 2}, {0, 3, 4}, {1, 3, 5}, {2, 4, 5},
}

// Triangle edge i is opposite vertex i.
var triEdgeVertices = [3][2]int{
	{1, 2}, {0, 2}, {0, 1},
}

// EntityVertices returns the cell-local vertex indices of sub-entity
// (dim, idx) of the reference cell.
func (ct CellType) EntityVertices(dim, idx int) []int {
	if dim == 0 {
		return []int{idx}
	}
	if dim == ct.Dim() {
		all := make([]int, ct.NumVertices())
		for i := range all {
			all[i] = i
		}
		return all
	}
	switch ct {
	case Triangle:
		if dim == 1 {
			return triEdgeVertices[idx][:]
		}
	case Tetrahedron:
		switch dim {
		case 1:
			return tetEdgeVertices[idx][:]
		case 2:
			return tetFaceVertices[idx][:]
		}
	}
	panic(fmt.Sprintf("%s has no entity (%d,%d)", ct, dim, idx))
}

// FaceEdges returns the cell-local edges on face idx of a tetrahedron.
func FaceEdges(idx int) []int { return tetFaceEdges[idx][:] }
