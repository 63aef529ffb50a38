package reduce

import (
	"github.com/hashicorp/go-multierror"
	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/serr"
)

type probingSlot struct {
	key   interface{}
	value interface{}
}

// Probing is spec §4.6's Variant A: a flat array of P*S slots, S per
// partition, with a reserved sentinel key marking empty slots and
// linear probing (wrapping within the partition) to resolve collisions.
type Probing struct {
	cfg      Config
	scale    int // S: slots per partition
	slots    []probingSlot
	perPart  []int
	numItems int
	emitters []*emitter
}

// NewProbing builds a Probing table emitting to writers, one per
// partition in partition order.
func NewProbing(cfg Config, writers []*block.Writer) (*Probing, error) {
	if cfg.P <= 0 || cfg.P != len(writers) {
		return nil, serr.New(serr.InvalidArgument, "reduce.Probing", nil)
	}
	ems, err := buildEmitters(writers)
	if err != nil {
		return nil, err
	}
	t := &Probing{cfg: cfg, scale: cfg.InitialScale, perPart: make([]int, cfg.P), emitters: ems}
	t.slots = t.freshSlots(cfg.P * cfg.InitialScale)
	return t, nil
}

func (t *Probing) freshSlots(n int) []probingSlot {
	s := make([]probingSlot, n)
	for i := range s {
		s[i].key = t.cfg.Sentinel
	}
	return s
}

// errNeedsResize signals the caller to grow the table and retry.
var errNeedsResize = serr.New(serr.InvalidArgument, "reduce.Probing", nil)

// Insert implements Table.Insert.
func (t *Probing) Insert(item interface{}) error {
	key := t.cfg.KeyOf(item)
	if key == t.cfg.Sentinel {
		return serr.New(serr.SentinelViolation, "reduce.Probing", nil)
	}
	value := t.cfg.ValueOf(item)
	if err := t.insertKV(key, value); err != nil {
		return err
	}
	return t.maybeFlushOrResize()
}

func (t *Probing) insertKV(key, value interface{}) error {
	h := t.cfg.Hash(key)
	p := int(h % uint64(t.cfg.P))
	idx, err := t.findOrProbe(p, h, key)
	if err == errNeedsResize {
		if err := t.resize(); err != nil {
			return err
		}
		h = t.cfg.Hash(key)
		p = int(h % uint64(t.cfg.P))
		idx, err = t.findOrProbe(p, h, key)
	}
	if err != nil {
		return err
	}
	slot := &t.slots[idx]
	if slot.key == t.cfg.Sentinel {
		slot.key = key
		slot.value = value
		t.perPart[p]++
		t.numItems++
	} else {
		slot.value = t.cfg.Reduce(slot.value, value)
	}
	return nil
}

// findOrProbe scans partition p's slot range looking for an existing
// entry with key, or the first empty slot, wrapping within the
// partition and bounded by MaxProbeLength (spec §4.6).
func (t *Probing) findOrProbe(p int, h uint64, key interface{}) (int, error) {
	base := p * t.scale
	start := int(h % uint64(t.scale))
	maxProbe := t.cfg.MaxProbeLength
	if maxProbe <= 0 || maxProbe > t.scale {
		maxProbe = t.scale
	}
	for i := 0; i < maxProbe; i++ {
		idx := base + (start+i)%t.scale
		if t.slots[idx].key == t.cfg.Sentinel || t.slots[idx].key == key {
			return idx, nil
		}
	}
	return 0, errNeedsResize
}

func (t *Probing) resize() error {
	newScale := t.scale * t.cfg.ResizeScale
	if newScale <= t.scale {
		newScale = t.scale + 1
	}
	old := t.slots
	t.slots = t.freshSlots(t.cfg.P * newScale)
	t.scale = newScale
	t.perPart = make([]int, t.cfg.P)
	t.numItems = 0
	for _, s := range old {
		if s.key == t.cfg.Sentinel {
			continue
		}
		if err := t.insertKV(s.key, s.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Probing) maybeFlushOrResize() error {
	if t.cfg.MaxTableItems > 0 && t.numItems > t.cfg.MaxTableItems {
		return t.FlushLargestPartition()
	}
	for p := 0; p < t.cfg.P; p++ {
		if t.cfg.MaxPartitionFillRatio > 0 && float64(t.perPart[p])/float64(t.scale) > t.cfg.MaxPartitionFillRatio {
			return t.resize()
		}
	}
	return nil
}

// flushPartition emits partition p's non-sentinel entries in slot
// order, then clears it (spec §4.6's "Flush of partition p").
func (t *Probing) flushPartition(p int) error {
	base := p * t.scale
	var merr *multierror.Error
	for i := base; i < base+t.scale; i++ {
		if t.slots[i].key == t.cfg.Sentinel {
			continue
		}
		if err := t.emitters[p].emit(t.cfg, t.slots[i].key, t.slots[i].value); err != nil {
			merr = multierror.Append(merr, err)
		}
		t.slots[i] = probingSlot{key: t.cfg.Sentinel}
	}
	t.perPart[p] = 0
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}
	return t.emitters[p].flush()
}

// Flush implements Table.Flush.
func (t *Probing) Flush() error {
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
func (t *Probing) FlushLargestPartition() error {
	p := largestPartition(t.perPart)
	n := t.perPart[p]
	if err := t.flushPartition(p); err != nil {
		return err
	}
	t.numItems -= n
	return nil
}

// CloseEmitters implements Table.CloseEmitters.
func (t *Probing) CloseEmitters() error {
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
func (t *Probing) NumItems() int { return t.numItems }

var _ Table = (*Probing)(nil)
