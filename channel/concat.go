package channel

import "github.com/sifdata/sif/block"

// ConcatSource presents a set of per-source queues as a single source,
// draining them one at a time in source-rank order: rank 0 fully, then
// rank 1, and so on. This is deterministic but not FIFO across sources
// (spec §5's ordering guarantees).
type ConcatSource struct {
	ranks []uint32
	byRank map[uint32]block.Source
	idx   int
}

// NewConcatSource builds a ConcatSource over byRank, draining in
// ascending rank order.
func NewConcatSource(byRank map[uint32]block.Source) *ConcatSource {
	ranks := make([]uint32, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	// simple insertion sort: the rank set is small (num_workers) and this
	// runs once per channel open, not per block.
	for i := 1; i < len(ranks); i++ {
		for j := i; j > 0 && ranks[j-1] > ranks[j]; j-- {
			ranks[j-1], ranks[j] = ranks[j], ranks[j-1]
		}
	}
	return &ConcatSource{ranks: ranks, byRank: byRank}
}

// NextBlock drains the current rank's source to exhaustion before
// advancing to the next.
func (c *ConcatSource) NextBlock() (block.Virtual, bool, error) {
	for c.idx < len(c.ranks) {
		src := c.byRank[c.ranks[c.idx]]
		vb, ok, err := src.NextBlock()
		if err != nil {
			return block.Virtual{}, false, err
		}
		if ok {
			return vb, true, nil
		}
		c.idx++
	}
	return block.Virtual{}, false, nil
}

var _ block.Source = (*ConcatSource)(nil)
