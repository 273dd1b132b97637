package phasing

import (
	"github.com/calehh/hac-ledger/types"
	"github.com/google/btree"
)

type candidate struct {
	height uint64
	index  uint32
	id     uint64
}

func candidateLess(a, b candidate) bool {
	if a.height != b.height {
		return a.height < b.height
	}
	if a.index != b.index {
		return a.index < b.index
	}
	return a.id < b.id
}

// Block carries the per-block phasing bookkeeping: the duplicate tracker
// shared with transaction processing and the polls eligible for early
// resolution, kept in submission order.
type Block struct {
	Height     uint64
	Duplicates types.Duplicates

	candidates *btree.BTreeG[candidate]
}

func NewBlock(height uint64, dups types.Duplicates) *Block {
	if dups == nil {
		dups = types.NewDuplicates()
	}
	return &Block{
		Height:     height,
		Duplicates: dups,
		candidates: btree.NewG[candidate](8, candidateLess),
	}
}

func (b *Block) addCandidate(p *Poll) {
	b.candidates.ReplaceOrInsert(candidate{height: p.Height, index: p.Index, id: p.TransactionID})
}

// Candidates returns the ids of the early resolution candidates in
// submission order.
func (b *Block) Candidates() []uint64 {
	ids := make([]uint64, 0, b.candidates.Len())
	b.candidates.Ascend(func(c candidate) bool {
		ids = append(ids, c.id)
		return true
	})
	return ids
}
