package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/meshkernel/graph"
)

// entityKey canonically names an entity by its sorted vertex global
// indices, padded with -1 beyond the entity's vertex count.
type entityKey [3]int64

func keyLess(a, b entityKey) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// CreateEntities enumerates the dimension-dim entities of all local
// cells, agrees ownership and global numbering for entities on rank
// boundaries, and caches the dim index map together with the cell to
// entity connectivity. Vertices and cells exist from construction, so
// those dimensions are no-ops.
//
// Collective: an entity shared between ranks is detected through the
// sharing sets of its vertices, claimed at a rendezvous rank derived
// from its lowest vertex id, and numbered by its lowest holding rank.
func (t *Topology) CreateEntities(dim int) error {
	tdim := t.Dim()
	if dim < 0 || dim > tdim {
		return fmt.Errorf("cannot create dimension-%d entities on a %s mesh", dim, t.cell)
	}
	if dim == 0 || dim == tdim || t.maps[dim] != nil {
		return nil
	}

	c := t.c
	size := c.Size()
	self := int32(c.Rank())
	vmap := t.maps[0]
	cv := t.conn[tdim][0]
	nEV := t.cell.EntityType(dim).NumVertices()
	nCE := t.cell.NumEntities(dim)
	numCells := int(t.maps[tdim].SizeTotal())

	// Enumerate distinct entities over all local cells, owned and ghost.
	keyIndex := make(map[entityKey]int32)
	var keys []entityKey
	var keyVerts [][]int32 // local vertex tuple per entity, key order
	cellEnt := make([]int32, numCells*nCE)
	for cell := 0; cell < numCells; cell++ {
		verts := cv.Row(int32(cell))
		for e := 0; e < nCE; e++ {
			ref := t.cell.EntityVertices(dim, e)
			key := entityKey{-1, -1, -1}
			local := make([]int32, nEV)
			for j, rv := range ref {
				local[j] = verts[rv]
				key[j] = vmap.LocalToGlobal(verts[rv])
			}
			sortKey(key[:nEV], local)
			idx, ok := keyIndex[key]
			if !ok {
				idx = int32(len(keys))
				keyIndex[key] = idx
				keys = append(keys, key)
				keyVerts = append(keyVerts, local)
			}
			cellEnt[cell*nCE+e] = idx
		}
	}

	// An entity can only be shared with ranks sharing every one of its
	// vertices; those go through the rendezvous rounds.
	sendKeys := make([][]int64, size)
	reportedTo := make([][]int32, size)
	for idx, key := range keys {
		if !sharedCandidate(vmap, keyVerts[idx]) {
			continue
		}
		a := int(key[0] % int64(size))
		sendKeys[a] = append(sendKeys[a], key[:nEV]...)
		reportedTo[a] = append(reportedTo[a], int32(idx))
	}
	reports, err := c.AllToAllInts(sendKeys)
	if err != nil {
		return err
	}

	// Rendezvous side: gather holders per key, then answer each
	// reporter with the full holder list in its own request order.
	board := make(map[entityKey][]int32)
	for r := 0; r < size; r++ {
		buf := reports[r]
		for k := 0; k+nEV <= len(buf); k += nEV {
			key := entityKey{-1, -1, -1}
			copy(key[:nEV], buf[k:k+nEV])
			board[key] = append(board[key], int32(r))
		}
	}
	replies := make([][]int64, size)
	for r := 0; r < size; r++ {
		buf := reports[r]
		var rep []int64
		for k := 0; k+nEV <= len(buf); k += nEV {
			key := entityKey{-1, -1, -1}
			copy(key[:nEV], buf[k:k+nEV])
			holders := board[key]
			rep = append(rep, int64(len(holders)))
			for _, h := range holders {
				rep = append(rep, int64(h))
			}
		}
		replies[r] = rep
	}
	answers, err := c.AllToAllInts(replies)
	if err != nil {
		return err
	}

	owner := make([]int32, len(keys))
	for i := range owner {
		owner[i] = self
	}
	sharers := make([][]int32, len(keys))
	for a := 0; a < size; a++ {
		buf := answers[a]
		pos := 0
		for _, idx := range reportedTo[a] {
			n := int(buf[pos])
			pos++
			min := self
			var others []int32
			for _, h := range buf[pos : pos+n] {
				r := int32(h)
				if r < min {
					min = r
				}
				if r != self {
					others = append(others, r)
				}
			}
			pos += n
			owner[idx] = min
			sharers[idx] = others
		}
	}

	// Owned first, ghosts after, both ordered by key.
	var ownedOrder, ghostOrder []int32
	for idx := range keys {
		if owner[idx] == self {
			ownedOrder = append(ownedOrder, int32(idx))
		} else {
			ghostOrder = append(ghostOrder, int32(idx))
		}
	}
	byKey := func(order []int32) {
		sort.Slice(order, func(i, j int) bool {
			return keyLess(keys[order[i]], keys[order[j]])
		})
	}
	byKey(ownedOrder)
	byKey(ghostOrder)
	nOwned := int32(len(ownedOrder))

	newLocal := make([]int32, len(keys))
	for k, idx := range ownedOrder {
		newLocal[idx] = int32(k)
	}
	for k, idx := range ghostOrder {
		newLocal[idx] = nOwned + int32(k)
	}

	// Owners assign global indices and notify the sharing ranks.
	offset := c.ExScan(int64(nOwned))
	l2g := make([]int64, len(keys))
	sendIDs := make([][]int64, size)
	for k, idx := range ownedOrder {
		gid := offset + int64(k)
		l2g[newLocal[idx]] = gid
		for _, r := range sharers[idx] {
			sendIDs[r] = append(sendIDs[r], keys[idx][0], keys[idx][1], keys[idx][2], gid)
		}
	}
	gotIDs, err := c.AllToAllInts(sendIDs)
	if err != nil {
		return err
	}
	for r := 0; r < size; r++ {
		buf := gotIDs[r]
		for k := 0; k+4 <= len(buf); k += 4 {
			key := entityKey{buf[k], buf[k+1], buf[k+2]}
			idx, ok := keyIndex[key]
			if !ok {
				return fmt.Errorf("rank %d received dimension-%d entity %v it does not hold",
					self, dim, key)
			}
			l2g[newLocal[idx]] = buf[k+3]
		}
	}

	ghostOwners := make([]int32, len(ghostOrder))
	sharerRows := make([][]int32, len(keys))
	for idx := range keys {
		sharerRows[newLocal[idx]] = sharers[idx]
	}
	for k, idx := range ghostOrder {
		ghostOwners[k] = owner[idx]
	}
	im, err := NewIndexMap(c, nOwned, l2g, ghostOwners, graph.NewAdjacency(sharerRows))
	if err != nil {
		return fmt.Errorf("dimension-%d index map: %w", dim, err)
	}
	t.maps[dim] = im

	ceData := make([]int32, len(cellEnt))
	for i, idx := range cellEnt {
		ceData[i] = newLocal[idx]
	}
	ceRows := make([][]int32, numCells)
	for cell := 0; cell < numCells; cell++ {
		ceRows[cell] = ceData[cell*nCE : (cell+1)*nCE]
	}
	t.conn[tdim][dim] = graph.NewAdjacency(ceRows)

	evRows := make([][]int32, len(keys))
	for idx := range keys {
		evRows[newLocal[idx]] = keyVerts[idx]
	}
	t.conn[dim][0] = graph.NewAdjacency(evRows)
	return nil
}

// sortKey orders an entity's global ids ascending, permuting the local
// vertex tuple the same way.
func sortKey(gids []int64, local []int32) {
	for i := 1; i < len(gids); i++ {
		for j := i; j > 0 && gids[j] < gids[j-1]; j-- {
			gids[j], gids[j-1] = gids[j-1], gids[j]
			local[j], local[j-1] = local[j-1], local[j]
		}
	}
}

// sharedCandidate reports whether every vertex of an entity is shared
// with at least one common remote rank.
func sharedCandidate(vmap *IndexMap, verts []int32) bool {
	common := make(map[int32]struct{})
	for _, r := range vmap.Sharers(verts[0]) {
		common[r] = struct{}{}
	}
	for _, v := range verts[1:] {
		if len(common) == 0 {
			return false
		}
		next := make(map[int32]struct{})
		for _, r := range vmap.Sharers(v) {
			if _, ok := common[r]; ok {
				next[r] = struct{}{}
			}
		}
		common = next
	}
	return len(common) > 0
}
