package mesh

import "fmt"

// Geometry is the read-only coordinate table of one mesh. Coordinates
// are indexed by geometry dof, a separate index space from topological
// vertices: DofMap gives each cell's dof row, and for the linear cells
// built here it mirrors the cell-vertex list. X is row-major with
// stride GDim and covers owned vertices then ghosts.
type Geometry struct {
	GDim   int
	X      []float64
	Map    *IndexMap
	DofMap [][]int32
}

// NewGeometry validates the coordinate table against its index map.
func NewGeometry(gdim int, x []float64, im *IndexMap, dofmap [][]int32) (*Geometry, error) {
	if gdim < 1 || gdim > 3 {
		return nil, fmt.Errorf("geometric dimension %d out of range", gdim)
	}
	if len(x) != int(im.SizeTotal())*gdim {
		return nil, fmt.Errorf("geometry has %d coordinates for %d points of dimension %d",
			len(x), im.SizeTotal(), gdim)
	}
	return &Geometry{GDim: gdim, X: x, Map: im, DofMap: dofmap}, nil
}

// Point returns the coordinates of geometry dof i. The slice aliases
// the underlying table.
func (g *Geometry) Point(i int32) []float64 {
	return g.X[int(i)*g.GDim : (int(i)+1)*g.GDim]
}

// Mesh pairs one immutable topology with its geometry.
type Mesh struct {
	Topology *Topology
	Geometry *Geometry
}

// NumCells returns owned plus ghost cells on this rank.
func (m *Mesh) NumCells() int32 {
	return m.Topology.IndexMap(m.Topology.Dim()).SizeTotal()
}

// NumOwnedCells returns the owned cell count on this rank.
func (m *Mesh) NumOwnedCells() int32 {
	return m.Topology.IndexMap(m.Topology.Dim()).SizeLocal()
}
