package graph

import (
	"fmt"

	"github.com/notargets/meshkernel/comm"
)

// FetchFloatRows moves fixed-stride float rows keyed by global id from
// the ranks that have them to the ranks that want them, without either
// side knowing the other. Ids are routed through an anchor rank
// (id mod world size): holders push their rows to the anchors, wanters
// ask the anchors, anchors answer. The result is aligned with want.
//
// Collective. Every wanted id must be held by exactly one rank somewhere
// in the world; an unknown id fails the fetch.
func FetchFloatRows(c *comm.Comm, have []int64, haveData []float64,
	stride int, want []int64) ([]float64, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("fetch stride %d must be positive", stride)
	}
	if len(haveData) != len(have)*stride {
		return nil, fmt.Errorf("fetch holds %d ids but %d values at stride %d",
			len(have), len(haveData), stride)
	}
	size := c.Size()
	anchor := func(id int64) int { return int(id % int64(size)) }

	// Push held rows to their anchors.
	pushIDs := make([][]int64, size)
	pushRows := make([][]float64, size)
	for k, id := range have {
		a := anchor(id)
		pushIDs[a] = append(pushIDs[a], id)
		pushRows[a] = append(pushRows[a], haveData[k*stride:(k+1)*stride]...)
	}
	gotIDs, err := c.AllToAllInts(pushIDs)
	if err != nil {
		return nil, err
	}
	gotRows, err := c.AllToAllFloats(pushRows)
	if err != nil {
		return nil, err
	}
	board := make(map[int64][]float64)
	for r := 0; r < size; r++ {
		for k, id := range gotIDs[r] {
			board[id] = gotRows[r][k*stride : (k+1)*stride]
		}
	}

	// Ask the anchors for wanted rows.
	askIDs := make([][]int64, size)
	askPos := make([][]int, size)
	for k, id := range want {
		a := anchor(id)
		askIDs[a] = append(askIDs[a], id)
		askPos[a] = append(askPos[a], k)
	}
	asked, err := c.AllToAllInts(askIDs)
	if err != nil {
		return nil, err
	}
	replies := make([][]float64, size)
	for r := 0; r < size; r++ {
		reply := make([]float64, 0, len(asked[r])*stride)
		for _, id := range asked[r] {
			row, ok := board[id]
			if !ok {
				return nil, fmt.Errorf("rank %d anchors no row for id %d", c.Rank(), id)
			}
			reply = append(reply, row...)
		}
		replies[r] = reply
	}
	answered, err := c.AllToAllFloats(replies)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(want)*stride)
	for r := 0; r < size; r++ {
		if len(answered[r]) != len(askIDs[r])*stride {
			return nil, fmt.Errorf("rank %d answered %d values for %d ids",
				r, len(answered[r]), len(askIDs[r]))
		}
		for k, pos := range askPos[r] {
			copy(out[pos*stride:(pos+1)*stride], answered[r][k*stride:(k+1)*stride])
		}
	}
	return out, nil
}
