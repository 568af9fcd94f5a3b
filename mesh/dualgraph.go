package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

// DualGraph builds the distributed dual graph of a cell list given in
// global vertex numbering: one node per local cell, linked to the
// global ids of every cell sharing a facet with it, local or remote.
// Facets left unmatched locally are paired at a rendezvous rank keyed
// by their lowest vertex id. Also returns the number of distinct
// off-rank link targets.
//
// Collective. Fails on non-manifold input (a facet with more than two
// incident cells).
func DualGraph(c *comm.Comm, cell CellType, cells *graph.Adjacency64) (*graph.Adjacency64, int, error) {
	tdim := cell.Dim()
	nFV := cell.FacetType().NumVertices()
	nCF := cell.NumEntities(tdim - 1)
	numCells := cells.NumNodes()
	offset := c.ExScan(int64(numCells))

	// Local facet matching.
	facetCells := make(map[entityKey][]int32)
	for i := 0; i < numCells; i++ {
		verts := cells.Row(int32(i))
		for f := 0; f < nCF; f++ {
			key := entityKey{-1, -1, -1}
			for j, rv := range cell.EntityVertices(tdim-1, f) {
				key[j] = verts[rv]
			}
			sort.Slice(key[:nFV], func(x, y int) bool { return key[x] < key[y] })
			facetCells[key] = append(facetCells[key], int32(i))
		}
	}
	links := make([][]int64, numCells)
	sendKeys := make([][]int64, c.Size())
	reportedCell := make([][]int32, c.Size())
	for i := 0; i < numCells; i++ {
		verts := cells.Row(int32(i))
		for f := 0; f < nCF; f++ {
			key := entityKey{-1, -1, -1}
			for j, rv := range cell.EntityVertices(tdim-1, f) {
				key[j] = verts[rv]
			}
			sort.Slice(key[:nFV], func(x, y int) bool { return key[x] < key[y] })
			holders := facetCells[key]
			switch len(holders) {
			case 1:
				// Possibly matched on another rank.
				a := int(key[0] % int64(c.Size()))
				sendKeys[a] = append(sendKeys[a], key[:nFV]...)
				sendKeys[a] = append(sendKeys[a], offset+int64(i))
				reportedCell[a] = append(reportedCell[a], int32(i))
			case 2:
				other := holders[0]
				if other == int32(i) {
					other = holders[1]
				}
				links[i] = append(links[i], offset+int64(other))
			default:
				return nil, 0, fmt.Errorf("facet %v attached to %d cells", key, len(holders))
			}
		}
	}

	reports, err := c.AllToAllInts(sendKeys)
	if err != nil {
		return nil, 0, err
	}
	type claim struct {
		rank int32
		gid  int64
	}
	board := make(map[entityKey][]claim)
	rec := nFV + 1
	for r := 0; r < c.Size(); r++ {
		buf := reports[r]
		for k := 0; k+rec <= len(buf); k += rec {
			key := entityKey{-1, -1, -1}
			copy(key[:nFV], buf[k:k+nFV])
			board[key] = append(board[key], claim{int32(r), buf[k+nFV]})
		}
	}
	replies := make([][]int64, c.Size())
	for r := 0; r < c.Size(); r++ {
		buf := reports[r]
		var rep []int64
		for k := 0; k+rec <= len(buf); k += rec {
			key := entityKey{-1, -1, -1}
			copy(key[:nFV], buf[k:k+nFV])
			own := buf[k+nFV]
			claims := board[key]
			if len(claims) > 2 {
				return nil, 0, fmt.Errorf("facet %v attached to %d cells across ranks",
					key, len(claims))
			}
			match := int64(-1)
			for _, cl := range claims {
				if cl.gid != own {
					match = cl.gid
				}
			}
			rep = append(rep, match)
		}
		replies[r] = rep
	}
	answers, err := c.AllToAllInts(replies)
	if err != nil {
		return nil, 0, err
	}
	remote := make(map[int64]struct{})
	for a := 0; a < c.Size(); a++ {
		for k, cellIdx := range reportedCell[a] {
			match := answers[a][k]
			if match < 0 {
				continue // exterior facet
			}
			links[cellIdx] = append(links[cellIdx], match)
			remote[match] = struct{}{}
		}
	}
	for i := range links {
		sort.Slice(links[i], func(x, y int) bool { return links[i][x] < links[i][y] })
	}
	return graph.NewAdjacency64(links), len(remote), nil
}
