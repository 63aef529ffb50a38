package reduce

import (
	"github.com/hashicorp/go-multierror"
	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/serr"
)

// frameSize is F, the small per-node entry capacity for the chaining
// variant's overflow frames (spec §4.6: "a small frame size, e.g. 128
// entries per frame").
const frameSize = 128

type chainNode struct {
	keys   [frameSize]interface{}
	values [frameSize]interface{}
	n      int
	next   *chainNode
}

// Chaining is spec §4.6's Variant B: each partition owns a fixed-size
// frame of bucket heads; collisions chain through linked nodes that
// each hold up to frameSize entries.
type Chaining struct {
	cfg         Config
	buckets     int // bucket heads per partition
	heads       []*chainNode
	perPart     []int
	numItems    int
	emitters    []*emitter
}

// NewChaining builds a Chaining table emitting to writers, one per
// partition in partition order.
func NewChaining(cfg Config, writers []*block.Writer) (*Chaining, error) {
	if cfg.P <= 0 || cfg.P != len(writers) {
		return nil, serr.New(serr.InvalidArgument, "reduce.Chaining", nil)
	}
	ems, err := buildEmitters(writers)
	if err != nil {
		return nil, err
	}
	t := &Chaining{
		cfg:      cfg,
		buckets:  cfg.InitialScale,
		heads:    make([]*chainNode, cfg.P*cfg.InitialScale),
		perPart:  make([]int, cfg.P),
		emitters: ems,
	}
	return t, nil
}

func (t *Chaining) bucketIndex(p int, h uint64) int {
	return p*t.buckets + int(h%uint64(t.buckets))
}

// Insert implements Table.Insert.
func (t *Chaining) Insert(item interface{}) error {
	key := t.cfg.KeyOf(item)
	value := t.cfg.ValueOf(item)
	t.insertKV(key, value)
	return t.maybeFlushOrResize()
}

func (t *Chaining) insertKV(key, value interface{}) {
	h := t.cfg.Hash(key)
	p := int(h % uint64(t.cfg.P))
	idx := t.bucketIndex(p, h)
	for n := t.heads[idx]; n != nil; n = n.next {
		for i := 0; i < n.n; i++ {
			if n.keys[i] == key {
				n.values[i] = t.cfg.Reduce(n.values[i], value)
				return
			}
		}
	}
	// No existing entry: append to the first node with room, or grow
	// the chain with a fresh node at the head.
	for n := t.heads[idx]; n != nil; n = n.next {
		if n.n < frameSize {
			n.keys[n.n] = key
			n.values[n.n] = value
			n.n++
			t.perPart[p]++
			t.numItems++
			return
		}
	}
	fresh := &chainNode{next: t.heads[idx]}
	fresh.keys[0] = key
	fresh.values[0] = value
	fresh.n = 1
	t.heads[idx] = fresh
	t.perPart[p]++
	t.numItems++
}

func (t *Chaining) resize() error {
	newBuckets := t.buckets * t.cfg.ResizeScale
	if newBuckets <= t.buckets {
		newBuckets = t.buckets + 1
	}
	old := t.heads
	t.buckets = newBuckets
	t.heads = make([]*chainNode, t.cfg.P*newBuckets)
	t.perPart = make([]int, t.cfg.P)
	t.numItems = 0
	for _, head := range old {
		for n := head; n != nil; n = n.next {
			for i := 0; i < n.n; i++ {
				t.insertKV(n.keys[i], n.values[i])
			}
		}
	}
	return nil
}

func (t *Chaining) maybeFlushOrResize() error {
	if t.cfg.MaxTableItems > 0 && t.numItems > t.cfg.MaxTableItems {
		return t.FlushLargestPartition()
	}
	for p := 0; p < t.cfg.P; p++ {
		if t.cfg.MaxPartitionFillRatio > 0 && float64(t.perPart[p])/float64(t.buckets) > t.cfg.MaxPartitionFillRatio {
			return t.resize()
		}
	}
	return nil
}

// flushPartition walks every bucket's chain in bucket order, emitting
// each entry (spec §4.6). Within a bucket, nodes are walked from the
// head, which is the most recently added node, so insertion order is
// kept only inside each node.
func (t *Chaining) flushPartition(p int) error {
	var merr *multierror.Error
	base := p * t.buckets
	for b := base; b < base+t.buckets; b++ {
		for n := t.heads[b]; n != nil; n = n.next {
			for i := 0; i < n.n; i++ {
				if err := t.emitters[p].emit(t.cfg, n.keys[i], n.values[i]); err != nil {
					merr = multierror.Append(merr, err)
				}
			}
		}
		t.heads[b] = nil
	}
	t.perPart[p] = 0
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}
	return t.emitters[p].flush()
}

// Flush implements Table.Flush.
func (t *Chaining) Flush() error {
	var merr *multierror.Error
	for p := 0; p < t.cfg.P; p++ {
		if err := t.flushPartition(p); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	t.numItems = 0
	return merr.ErrorOrNil()
}

// FlushLargestPartition implements Table.FlushLargestPartition.
func (t *Chaining) FlushLargestPartition() error {
	p := largestPartition(t.perPart)
	n := t.perPart[p]
	if err := t.flushPartition(p); err != nil {
		return err
	}
	t.numItems -= n
	return nil
}

// CloseEmitters implements Table.CloseEmitters.
func (t *Chaining) CloseEmitters() error {
	if err := t.Flush(); err != nil {
		return err
	}
	var merr *multierror.Error
	for _, e := range t.emitters {
		if err := e.close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// NumItems implements Table.NumItems.
func (t *Chaining) NumItems() int { return t.numItems }

var _ Table = (*Chaining)(nil)
