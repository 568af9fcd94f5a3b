package mesh

import (
	"fmt"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

// Topology is the distributed entity model of one mesh: an index map
// per created entity dimension and cached adjacency between dimensions.
// A topology is immutable once constructed; refinement and re-ghosting
// always build a new one. Entity creation and connectivity building are
// cached in place but never invalidate earlier results.
type Topology struct {
	c    *comm.Comm
	cell CellType
	maps [4]*IndexMap
	conn [4][4]*graph.Adjacency
}

// NewTopology assembles a topology from its cell-vertex list and the
// vertex and cell index maps. cellVertices rows are local vertex
// indices, one row per local cell (owned first, then ghosts).
func NewTopology(c *comm.Comm, cell CellType, vertexMap, cellMap *IndexMap,
	cellVertices *graph.Adjacency) (*Topology, error) {
	if cellVertices.NumNodes() != int(cellMap.SizeTotal()) {
		return nil, fmt.Errorf("topology has %d cell rows for %d cells",
			cellVertices.NumNodes(), cellMap.SizeTotal())
	}
	nv := cell.NumVertices()
	for i := int32(0); i < int32(cellVertices.NumNodes()); i++ {
		if cellVertices.Degree(i) != nv {
			return nil, fmt.Errorf("cell %d has %d vertices, %s needs %d",
				i, cellVertices.Degree(i), cell, nv)
		}
	}
	t := &Topology{c: c, cell: cell}
	t.maps[0] = vertexMap
	t.maps[cell.Dim()] = cellMap
	t.conn[cell.Dim()][0] = cellVertices
	return t, nil
}

// Comm returns the communicator the topology lives on.
func (t *Topology) Comm() *comm.Comm { return t.c }

// Dim returns the topological dimension.
func (t *Topology) Dim() int { return t.cell.Dim() }

// CellType returns the cell type.
func (t *Topology) CellType() CellType { return t.cell }

// IndexMap returns the index map for one dimension, or nil if those
// entities have not been created.
func (t *Topology) IndexMap(dim int) *IndexMap { return t.maps[dim] }

// Connectivity returns the cached d0 to d1 adjacency, or nil if it has
// not been built. Rows are local indices of dimension d1 per local
// entity of dimension d0.
func (t *Topology) Connectivity(d0, d1 int) *graph.Adjacency {
	return t.conn[d0][d1]
}

// CreateConnectivity builds and caches the d0 to d1 adjacency. Both
// dimensions' entities must exist (CreateEntities builds intermediate
// dimensions along with their cell connectivity).
func (t *Topology) CreateConnectivity(d0, d1 int) error {
	if t.conn[d0][d1] != nil {
		return nil
	}
	tdim := t.Dim()
	if t.maps[d0] == nil || t.maps[d1] == nil {
		return fmt.Errorf("connectivity (%d,%d) needs entities of both dimensions", d0, d1)
	}
	switch {
	case d0 == d1:
		rows := make([][]int32, t.maps[d0].SizeTotal())
		for i := range rows {
			rows[i] = []int32{int32(i)}
		}
		t.conn[d0][d1] = graph.NewAdjacency(rows)
	case d0 < d1 && d1 == tdim:
		// Transpose of the cell-to-entity list built during creation.
		if t.conn[tdim][d0] == nil {
			return fmt.Errorf("connectivity (%d,%d) needs (%d,%d) first", d0, d1, tdim, d0)
		}
		t.conn[d0][d1] = graph.Transpose(t.conn[tdim][d0], t.maps[d0].SizeTotal())
	default:
		return fmt.Errorf("connectivity (%d,%d) is not derivable", d0, d1)
	}
	return nil
}

// InterfaceFacets returns the local indices of facets lying between two
// ranks' shares of cells: facets whose incident cells have different
// owners, or single-cell facets shared with another rank.
func (t *Topology) InterfaceFacets() ([]int32, error) {
	tdim := t.Dim()
	if err := t.CreateEntities(tdim - 1); err != nil {
		return nil, err
	}
	if err := t.CreateConnectivity(tdim-1, tdim); err != nil {
		return nil, err
	}
	fc := t.conn[tdim-1][tdim]
	fmap := t.maps[tdim-1]
	cmap := t.maps[tdim]
	var facets []int32
	for f := int32(0); f < fmap.SizeTotal(); f++ {
		cells := fc.Row(f)
		switch len(cells) {
		case 1:
			if len(fmap.Sharers(f)) > 0 {
				facets = append(facets, f)
			}
		case 2:
			if cmap.Owner(cells[0]) != cmap.Owner(cells[1]) {
				facets = append(facets, f)
			}
		}
	}
	return facets, nil
}

// ExteriorFacets returns the owned facets on the domain boundary: one
// incident cell globally. Without ghost cells a facet on a rank
// boundary also has one local cell, so shared facets are excluded.
func (t *Topology) ExteriorFacets() ([]int32, error) {
	tdim := t.Dim()
	if err := t.CreateEntities(tdim - 1); err != nil {
		return nil, err
	}
	if err := t.CreateConnectivity(tdim-1, tdim); err != nil {
		return nil, err
	}
	fc := t.conn[tdim-1][tdim]
	fmap := t.maps[tdim-1]
	noGhostCells := t.maps[tdim].NumGhosts() == 0
	var facets []int32
	for f := int32(0); f < fmap.SizeLocal(); f++ {
		if fc.Degree(f) != 1 {
			continue
		}
		if noGhostCells && len(fmap.Sharers(f)) > 0 {
			continue
		}
		facets = append(facets, f)
	}
	return facets, nil
}
