// Package reduce implements C6: the pre-shuffle reduce table performing
// streaming local reduction by key and partition-aware emission to the
// next operator's shuffle inputs, in two interchangeable variants —
// linear probing and separate chaining with frames (spec §4.6).
package reduce

import (
	"github.com/cespare/xxhash/v2"
	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/serr"
)

// KeyOf extracts the grouping key from an item. The returned value must
// be comparable with Go's == (ints, strings, and small structs of
// comparable fields all qualify).
type KeyOf func(item interface{}) interface{}

// ValueOf extracts the value to be folded from an item.
type ValueOf func(item interface{}) interface{}

// ReduceFunc folds two values sharing a key into one. It must be
// associative and commutative: spec §4.6 requires downstream not to
// rely on intra-partition order.
type ReduceFunc func(a, b interface{}) interface{}

// HashFunc hashes a key to a uint64 for bucket placement. HashBytes
// below covers the common case of byte-serializable keys.
type HashFunc func(key interface{}) uint64

// HashBytes hashes key's byte serialization (produced by toBytes) with
// xxhash/v2, matching the teacher's own key-hashing idiom in
// internal/partition/partition-keyable.go.
func HashBytes(toBytes func(key interface{}) []byte) HashFunc {
	return func(key interface{}) uint64 {
		h := xxhash.New()
		h.Write(toBytes(key))
		return h.Sum64()
	}
}

// Config parameterizes both table variants (spec §4.6's policy knobs).
type Config struct {
	// P is the number of partitions, one per destination worker.
	P int
	// Sentinel marks an empty probing slot. It must never equal a real
	// key (spec: "a programming error ... reported as
	// SENTINEL_VIOLATION at insert time if detectable"). Unused by the
	// chaining variant.
	Sentinel interface{}
	// InitialScale is the per-partition slot (probing) or bucket-head
	// (chaining) count at birth.
	InitialScale int
	// ResizeScale multiplies the per-partition scale on resize.
	ResizeScale int
	// MaxPartitionFillRatio triggers a resize once a partition's
	// occupancy divided by its capacity exceeds it.
	MaxPartitionFillRatio float64
	// MaxTableItems triggers a partial flush of the largest partition,
	// rather than a resize, once exceeded.
	MaxTableItems int
	// MaxProbeLength bounds the probing variant's linear scan before
	// forcing a resize; ignored by the chaining variant.
	MaxProbeLength int

	KeyOf   KeyOf
	ValueOf ValueOf
	Reduce  ReduceFunc
	Hash    HashFunc

	// PairMode, when true, makes the emitted stream carry (key, value)
	// pairs for a reduce-pair consumer; otherwise only values are
	// emitted and the consumer re-extracts the key (spec §4.6's
	// "robust-key option"). The writers passed to NewProbing/NewChaining
	// must already be bound to a codec matching this choice — a PairCodec
	// when true, the bare value's codec otherwise.
	PairMode bool
}

// Pair is the wire representation of a (key, value) entry in PairMode.
type Pair struct {
	Key   interface{}
	Value interface{}
}

// Table is C6's external contract, shared by both variants.
type Table interface {
	// Insert extracts k = KeyOf(item); if the table already holds
	// (k, v'), replaces it with (k, Reduce(v', ValueOf(item)));
	// otherwise inserts (k, ValueOf(item)). May trigger a partial flush
	// or a resize.
	Insert(item interface{}) error
	// Flush emits all entries to the emitter vector in partition order,
	// then resets counters, retaining table capacity.
	Flush() error
	// FlushLargestPartition emits only the partition with the most
	// entries, resetting just that partition.
	FlushLargestPartition() error
	// CloseEmitters flushes then closes every emitter.
	CloseEmitters() error
	// NumItems returns the current total entry count across partitions.
	NumItems() int
}

// emitter wraps one partition's destination block.Writer.
type emitter struct {
	w *block.Writer
}

func (e *emitter) emit(cfg Config, key, value interface{}) error {
	if cfg.PairMode {
		return e.w.AppendItem(Pair{Key: key, Value: value})
	}
	return e.w.AppendItem(value)
}

func (e *emitter) flush() error { return e.w.Flush() }
func (e *emitter) close() error { return e.w.Close() }

func buildEmitters(writers []*block.Writer) ([]*emitter, error) {
	if len(writers) == 0 {
		return nil, serr.New(serr.InvalidArgument, "reduce.Table", nil)
	}
	out := make([]*emitter, len(writers))
	for i, w := range writers {
		out[i] = &emitter{w: w}
	}
	return out, nil
}

func largestPartition(itemsPerPartition []int) int {
	best := 0
	for p, n := range itemsPerPartition {
		if n > itemsPerPartition[best] {
			best = p
		}
	}
	return best
}
