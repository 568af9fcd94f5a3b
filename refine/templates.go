// Package refine implements marked-edge mesh refinement: cross-rank
// propagation of edge marks to a settled pattern, pure per-cell
// subdivision templates, and reconstruction of the refined mesh.
package refine

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/meshkernel/mesh"
)

var (
	// ErrMarkedPattern reports a marked-edge count the templates do not
	// cover. Propagation settles every cell on 0, 1, 2, 3 or 6 marked
	// edges; seeing 4 or 5 here means it was skipped or interrupted.
	ErrMarkedPattern = errors.New("marked edge pattern is not a settled state")

	// ErrNonCoplanar reports three marked edges not lying on one face.
	ErrNonCoplanar = errors.New("three marked edges do not lie on one face")

	// ErrMarkerDimension reports a marker defined on entities that
	// cannot seed refinement.
	ErrMarkerDimension = errors.New("markers must be cell or edge based")
)

// SubdivideTet splits one tetrahedron according to its marked edges.
// Vertices v and coordinates x are in cell-local order, marked and mid
// follow the cell-local edge numbering, and mid holds the global id of
// the midpoint vertex of each marked edge. Children are emitted as
// global vertex ids.
//
// The split is a pure function of global ids and coordinates, so two
// ranks holding copies of the same cell produce identical children.
func SubdivideTet(v [4]int64, x [4][3]float64, marked [6]bool, mid [6]int64) ([][4]int64, error) {
	var me []int
	for i, m := range marked {
		if m {
			me = append(me, i)
		}
	}
	switch len(me) {
	case 0:
		return [][4]int64{v}, nil
	case 1:
		return bisectTet(v, me[0], mid[me[0]]), nil
	case 2:
		if me[0]+me[1] == 5 {
			return quadrisectOpposite(v, me[0], me[1], mid), nil
		}
		return quadrisectSameFace(v, x, me[0], me[1], mid), nil
	case 3:
		return subdivideFace(v, me, mid)
	case 6:
		return octasectTet(v, x, mid), nil
	default:
		return nil, fmt.Errorf("%w: %d marked edges", ErrMarkedPattern, len(me))
	}
}

// bisectTet splits along one marked edge: the midpoint joins the two
// vertices of the opposite edge, giving two children.
func bisectTet(v [4]int64, e int, m int64) [][4]int64 {
	near := mesh.Tetrahedron.EntityVertices(1, e)
	far := mesh.Tetrahedron.EntityVertices(1, 5-e)
	return [][4]int64{
		{v[far[0]], v[far[1]], m, v[near[0]]},
		{v[far[0]], v[far[1]], m, v[near[1]]},
	}
}

// quadrisectOpposite handles two marked edges with no shared vertex, a
// double bisection. The split is symmetric by construction, so no
// diagonal choice is needed.
func quadrisectOpposite(v [4]int64, ea, eb int, mid [6]int64) [][4]int64 {
	m0, m1 := mid[ea], mid[eb]
	a := mesh.Tetrahedron.EntityVertices(1, ea)
	b := mesh.Tetrahedron.EntityVertices(1, eb)
	return [][4]int64{
		{m0, m1, v[a[0]], v[b[0]]},
		{m0, m1, v[a[1]], v[b[0]]},
		{m0, m1, v[a[0]], v[b[1]]},
		{m0, m1, v[a[1]], v[b[1]]},
	}
}

// quadrisectSameFace handles two marked edges sharing a vertex. The
// trapezoid left under the top cell is cut along its shorter diagonal;
// equal lengths fall back to comparing the global ids of the two leg
// vertices, so both holders of a shared face cut it the same way.
func quadrisectSameFace(v [4]int64, x [4][3]float64, ea, eb int, mid [6]int64) [][4]int64 {
	m0, m1 := mid[ea], mid[eb]
	a := mesh.Tetrahedron.EntityVertices(1, ea)
	b := mesh.Tetrahedron.EntityVertices(1, eb)

	var common, leg0, leg1 int
	var d0, d1 float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if a[i] == b[j] {
				common, leg0, leg1 = a[i], a[1-i], b[1-j]
				mb := edgeMidpoint(x, eb)
				ma := edgeMidpoint(x, ea)
				d0 = floats.Distance(x[leg0][:], mb[:], 2)
				d1 = floats.Distance(x[leg1][:], ma[:], 2)
			}
		}
	}
	far := 0
	for i := 0; i < 4; i++ {
		if i != common && i != leg0 && i != leg1 {
			far = i
		}
	}
	cells := [][4]int64{{v[far], v[common], m0, m1}}
	if d0 > d1 || (d0 == d1 && v[leg0] > v[leg1]) {
		cells = append(cells,
			[4]int64{v[far], m0, m1, v[leg1]},
			[4]int64{v[far], m0, v[leg0], v[leg1]})
	} else {
		cells = append(cells,
			[4]int64{v[far], m1, m0, v[leg0]},
			[4]int64{v[far], m1, v[leg1], v[leg0]})
	}
	return cells
}

// subdivideFace handles three marked edges on a single face: the face
// splits into four triangles, each joined to the apex vertex.
func subdivideFace(v [4]int64, me []int, mid [6]int64) ([][4]int64, error) {
	face := -1
	for f := 0; f < 4; f++ {
		fe := mesh.FaceEdges(f)
		if fe[0] == me[0] && fe[1] == me[1] && fe[2] == me[2] {
			face = f
			break
		}
	}
	if face < 0 {
		return nil, fmt.Errorf("%w: edges %v", ErrNonCoplanar, me)
	}
	a := mesh.Tetrahedron.EntityVertices(1, me[0])
	b := mesh.Tetrahedron.EntityVertices(1, me[1])
	c := mesh.Tetrahedron.EntityVertices(1, me[2])
	vab := sharedVertex(a, b)
	vbc := sharedVertex(b, c)
	vca := sharedVertex(c, a)
	apex := v[face]
	return [][4]int64{
		{apex, mid[me[0]], mid[me[1]], mid[me[2]]},
		{apex, mid[me[0]], v[vab], mid[me[1]]},
		{apex, mid[me[1]], v[vbc], mid[me[2]]},
		{apex, mid[me[2]], v[vca], mid[me[0]]},
	}, nil
}

// octasectTet handles the fully marked cell: four corner children plus
// the central octahedron, which is cut along the shortest of its three
// internal diagonals. Equal lengths resolve in edge-index order, which
// is the same on every rank.
func octasectTet(v [4]int64, x [4][3]float64, mid [6]int64) [][4]int64 {
	cells := [][4]int64{
		{v[0], mid[3], mid[4], mid[5]},
		{v[1], mid[1], mid[2], mid[5]},
		{v[2], mid[0], mid[2], mid[4]},
		{v[3], mid[0], mid[1], mid[3]},
	}
	d05 := diagonal(x, 0, 5)
	d14 := diagonal(x, 1, 4)
	d23 := diagonal(x, 2, 3)
	switch {
	case d05 <= d14 && d05 <= d23:
		cells = append(cells,
			[4]int64{mid[0], mid[1], mid[2], mid[5]},
			[4]int64{mid[0], mid[1], mid[3], mid[5]},
			[4]int64{mid[0], mid[2], mid[4], mid[5]},
			[4]int64{mid[0], mid[3], mid[4], mid[5]})
	case d14 <= d23:
		cells = append(cells,
			[4]int64{mid[0], mid[1], mid[2], mid[4]},
			[4]int64{mid[0], mid[1], mid[3], mid[4]},
			[4]int64{mid[1], mid[2], mid[4], mid[5]},
			[4]int64{mid[1], mid[3], mid[4], mid[5]})
	default:
		cells = append(cells,
			[4]int64{mid[0], mid[1], mid[2], mid[3]},
			[4]int64{mid[0], mid[2], mid[3], mid[4]},
			[4]int64{mid[1], mid[2], mid[3], mid[5]},
			[4]int64{mid[2], mid[3], mid[4], mid[5]})
	}
	return cells
}

func edgeMidpoint(x [4][3]float64, e int) [3]float64 {
	ev := mesh.Tetrahedron.EntityVertices(1, e)
	var m [3]float64
	for k := 0; k < 3; k++ {
		m[k] = (x[ev[0]][k] + x[ev[1]][k]) / 2
	}
	return m
}

func diagonal(x [4][3]float64, ea, eb int) float64 {
	ma := edgeMidpoint(x, ea)
	mb := edgeMidpoint(x, eb)
	return floats.Distance(ma[:], mb[:], 2)
}

func sharedVertex(a, b []int) int {
	for _, i := range a {
		for _, j := range b {
			if i == j {
				return i
			}
		}
	}
	return -1
}
