package channel

import (
	"bytes"
	"io/ioutil"
	"sync"

	"github.com/pierrec/lz4"
	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/blockpool"
)

// CachingQueue wraps a Source, recording every block it yields
// lz4-compressed in memory so a second pass can replay the exact same
// sequence of virtual blocks without re-touching the network or the
// upstream queue — the "open_cat_reader(cache?)" variant of spec §4.5,
// adapted from the teacher's zstd spill idiom (internal/pcache/cache.go)
// but using lz4 for its faster decompression on the hot replay path.
type CachingQueue struct {
	src  block.Source
	pool *blockpool.Pool

	mu       sync.Mutex
	replay   bool
	cache    [][]byte // one lz4-compressed payload per recorded block
	recorded []recordedHeader
	pos      int
}

type recordedHeader struct {
	firstItemOffset int
	nItems          int
}

// NewCachingQueue wraps src, recording into blocks allocated from pool
// on replay.
func NewCachingQueue(src block.Source, pool *blockpool.Pool) *CachingQueue {
	return &CachingQueue{src: src, pool: pool}
}

// NextBlock pulls from the wrapped source on the first pass, recording
// a compressed copy of each block; on replay it decompresses from the
// recorded cache instead of touching src again.
func (c *CachingQueue) NextBlock() (block.Virtual, bool, error) {
	c.mu.Lock()
	replay := c.replay
	c.mu.Unlock()
	if replay {
		return c.nextFromCache()
	}
	vb, ok, err := c.src.NextBlock()
	if err != nil || !ok {
		return vb, ok, err
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(vb.Bytes()); err != nil {
		return block.Virtual{}, false, err
	}
	if err := zw.Close(); err != nil {
		return block.Virtual{}, false, err
	}
	c.mu.Lock()
	c.cache = append(c.cache, buf.Bytes())
	c.recorded = append(c.recorded, recordedHeader{
		firstItemOffset: vb.FirstItemOffset - vb.Begin,
		nItems:          vb.NItems,
	})
	c.mu.Unlock()
	return vb, true, nil
}

// Rewind switches the queue into replay mode, starting back at the
// first recorded block.
func (c *CachingQueue) Rewind() {
	c.mu.Lock()
	c.replay = true
	c.pos = 0
	c.mu.Unlock()
}

func (c *CachingQueue) nextFromCache() (block.Virtual, bool, error) {
	c.mu.Lock()
	if c.pos >= len(c.cache) {
		c.mu.Unlock()
		return block.Virtual{}, false, nil
	}
	payload := c.cache[c.pos]
	hdr := c.recorded[c.pos]
	c.pos++
	c.mu.Unlock()

	zr := lz4.NewReader(bytes.NewReader(payload))
	raw, err := ioutil.ReadAll(zr)
	if err != nil {
		return block.Virtual{}, false, err
	}
	ref, err := c.pool.Allocate(len(raw))
	if err != nil {
		return block.Virtual{}, false, err
	}
	copy(ref.Bytes(), raw)
	return block.Virtual{
		Ref:             ref,
		Begin:           0,
		End:             len(raw),
		FirstItemOffset: hdr.firstItemOffset,
		NItems:          hdr.nItems,
	}, true, nil
}

var _ block.Source = (*CachingQueue)(nil)
