package mesh

import "github.com/notargets/meshkernel/graph"

// UnitCubeCells triangulates the unit cube into n by n by n sub-cubes
// of six tetrahedra each, all sharing the sub-cube's main diagonal, and
// returns the cell list with vertex ids and coordinates. Neighbouring
// sub-cubes cut their shared faces the same way, so the mesh conforms.
// All cells come out with positive orientation.
func UnitCubeCells(n int) (*graph.Adjacency64, []int64, []float64) {
	p := n + 1
	ids := make([]int64, p*p*p)
	x := make([]float64, 0, len(ids)*3)
	for k := 0; k <= n; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				idx := i + p*(j+p*k)
				ids[idx] = int64(idx)
				x = append(x,
					float64(i)/float64(n),
					float64(j)/float64(n),
					float64(k)/float64(n))
			}
		}
	}
	rows := make([][]int64, 0, 6*n*n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				v0 := int64(i + p*(j+p*k))
				v1 := v0 + 1
				v2 := v0 + int64(p)
				v3 := v1 + int64(p)
				v4 := v0 + int64(p*p)
				v5 := v1 + int64(p*p)
				v6 := v2 + int64(p*p)
				v7 := v3 + int64(p*p)
				rows = append(rows,
					[]int64{v0, v1, v3, v7},
					[]int64{v0, v1, v7, v5},
					[]int64{v0, v5, v7, v4},
					[]int64{v0, v3, v2, v7},
					[]int64{v0, v6, v4, v7},
					[]int64{v0, v2, v6, v7})
			}
		}
	}
	return graph.NewAdjacency64(rows), ids, x
}

// UnitSquareCells triangulates the unit square into n by n quads of
// two triangles each, cut along the same diagonal throughout.
func UnitSquareCells(n int) (*graph.Adjacency64, []int64, []float64) {
	p := n + 1
	ids := make([]int64, p*p)
	x := make([]float64, 0, len(ids)*2)
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			idx := i + p*j
			ids[idx] = int64(idx)
			x = append(x, float64(i)/float64(n), float64(j)/float64(n))
		}
	}
	rows := make([][]int64, 0, 2*n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			v0 := int64(i + p*j)
			v1 := v0 + 1
			v2 := v0 + int64(p)
			v3 := v2 + 1
			rows = append(rows,
				[]int64{v0, v1, v3},
				[]int64{v0, v3, v2})
		}
	}
	return graph.NewAdjacency64(rows), ids, x
}
