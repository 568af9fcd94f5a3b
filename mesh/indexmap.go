package mesh

import (
	"fmt"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
)

// IndexMap numbers one entity dimension across ranks. Owned entities
// occupy local indices [0, SizeLocal); ghosts follow in
// [SizeLocal, SizeTotal). Global indices are 64-bit, unique across the
// world, and assigned only by owners; a ghost entity never originates
// a global index.
//
// The map also records sharing: for every local entity, the other ranks
// holding it (for an owned entity, the ranks ghosting it; for a ghost,
// the owner and its other ghosters). Two neighbor patterns derive from
// this: forward (owner to ghoster) and reverse (ghoster to owner).
type IndexMap struct {
	c             *comm.Comm
	sizeLocal     int32
	localToGlobal []int64
	ghostOwners   []int32
	sharers       *graph.Adjacency
	globalToLocal map[int64]int32
	sizeGlobal    int64
	maxGlobal     int64
	fwd, rev      *comm.Neighbor
}

// NewIndexMap builds an index map from this rank's numbering slice.
// localToGlobal covers owned entities then ghosts; ghostOwners gives the
// owning rank per ghost; sharers has one row per local entity listing
// the remote ranks that also hold it (nil means nothing is shared).
//
// Collective: global sizes and the neighbor patterns are established
// here, so every rank of the world must construct its map together.
func NewIndexMap(c *comm.Comm, sizeLocal int32, localToGlobal []int64,
	ghostOwners []int32, sharers *graph.Adjacency) (*IndexMap, error) {
	numGhosts := len(localToGlobal) - int(sizeLocal)
	if numGhosts < 0 {
		return nil, fmt.Errorf("index map has %d entries for %d owned entities",
			len(localToGlobal), sizeLocal)
	}
	if len(ghostOwners) != numGhosts {
		return nil, fmt.Errorf("index map has %d ghosts but %d ghost owners",
			numGhosts, len(ghostOwners))
	}
	if sharers == nil {
		sharers = graph.NewAdjacency(make([][]int32, len(localToGlobal)))
	}
	if sharers.NumNodes() != len(localToGlobal) {
		return nil, fmt.Errorf("sharing lists cover %d entities, map has %d",
			sharers.NumNodes(), len(localToGlobal))
	}

	im := &IndexMap{
		c:             c,
		sizeLocal:     sizeLocal,
		localToGlobal: localToGlobal,
		ghostOwners:   ghostOwners,
		sharers:       sharers,
		globalToLocal: make(map[int64]int32, len(localToGlobal)),
	}
	for i, g := range localToGlobal {
		im.globalToLocal[g] = int32(i)
	}

	var localMax int64 = -1
	for _, g := range localToGlobal {
		if g > localMax {
			localMax = g
		}
	}
	im.sizeGlobal = c.AllReduce(int64(sizeLocal), comm.OpSum)
	im.maxGlobal = c.AllReduce(localMax, comm.OpMax)

	ghosters := make(map[int32]struct{})
	for i := int32(0); i < sizeLocal; i++ {
		for _, r := range sharers.Row(i) {
			ghosters[r] = struct{}{}
		}
	}
	owners := make(map[int32]struct{})
	for _, r := range ghostOwners {
		owners[r] = struct{}{}
	}
	var err error
	im.fwd, err = comm.RanksToNeighbor(c, owners, ghosters)
	if err != nil {
		return nil, fmt.Errorf("forward neighbor pattern: %w", err)
	}
	im.rev = im.fwd.Transpose()
	return im, nil
}

// Comm returns the communicator the map was built over.
func (im *IndexMap) Comm() *comm.Comm { return im.c }

// SizeLocal returns the number of owned entities.
func (im *IndexMap) SizeLocal() int32 { return im.sizeLocal }

// NumGhosts returns the number of ghost entities.
func (im *IndexMap) NumGhosts() int32 {
	return int32(len(im.localToGlobal)) - im.sizeLocal
}

// SizeTotal returns owned plus ghost entities.
func (im *IndexMap) SizeTotal() int32 { return int32(len(im.localToGlobal)) }

// SizeGlobal returns the world-wide count of owned entities.
func (im *IndexMap) SizeGlobal() int64 { return im.sizeGlobal }

// MaxGlobalIndex returns the largest global index held anywhere, or -1
// for an empty map. Fresh indices are allocated past it.
func (im *IndexMap) MaxGlobalIndex() int64 { return im.maxGlobal }

// LocalToGlobal returns the global index of local entity i.
func (im *IndexMap) LocalToGlobal(i int32) int64 { return im.localToGlobal[i] }

// Globals returns the full local-to-global slice. Do not modify.
func (im *IndexMap) Globals() []int64 { return im.localToGlobal }

// GlobalToLocal resolves a global index to a local one.
func (im *IndexMap) GlobalToLocal(g int64) (int32, bool) {
	i, ok := im.globalToLocal[g]
	return i, ok
}

// Ghosts returns the global indices of ghost entities. Do not modify.
func (im *IndexMap) Ghosts() []int64 { return im.localToGlobal[im.sizeLocal:] }

// GhostOwners returns the owning rank per ghost entity. Do not modify.
func (im *IndexMap) GhostOwners() []int32 { return im.ghostOwners }

// Owner returns the owning rank of local entity i.
func (im *IndexMap) Owner(i int32) int32 {
	if i < im.sizeLocal {
		return int32(im.c.Rank())
	}
	return im.ghostOwners[i-im.sizeLocal]
}

// Sharers returns the other ranks holding local entity i. Do not modify.
func (im *IndexMap) Sharers(i int32) []int32 { return im.sharers.Row(i) }

// Forward returns the owner-to-ghoster neighbor pattern.
func (im *IndexMap) Forward() *comm.Neighbor { return im.fwd }

// Reverse returns the ghoster-to-owner neighbor pattern.
func (im *IndexMap) Reverse() *comm.Neighbor { return im.rev }
