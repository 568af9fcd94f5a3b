package refine

import (
	"fmt"

	"github.com/notargets/meshkernel/mesh"
)

// SubdivideTriangle splits one triangle according to its marked edges.
// Propagation settles triangles on 0, 1 or 3 marked edges; no diagonal
// choice arises, so coordinates are not needed. Children preserve the
// parent's orientation.
func SubdivideTriangle(v [3]int64, marked [3]bool, mid [3]int64) ([][3]int64, error) {
	var me []int
	for i, m := range marked {
		if m {
			me = append(me, i)
		}
	}
	switch len(me) {
	case 0:
		return [][3]int64{v}, nil
	case 1:
		// Bisect towards the opposite vertex, which shares the edge's
		// index. The opposite edge is walked in the parent's winding,
		// which starts at vertex e+1, so both children keep the
		// parent's orientation.
		e := me[0]
		ev := mesh.Triangle.EntityVertices(1, e)
		a, b := ev[0], ev[1]
		if a != (e+1)%3 {
			a, b = b, a
		}
		m := mid[e]
		return [][3]int64{
			{v[e], v[a], m},
			{v[e], m, v[b]},
		}, nil
	case 3:
		return [][3]int64{
			{v[0], mid[2], mid[1]},
			{v[1], mid[0], mid[2]},
			{v[2], mid[1], mid[0]},
			{mid[0], mid[1], mid[2]},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d marked edges", ErrMarkedPattern, len(me))
	}
}
