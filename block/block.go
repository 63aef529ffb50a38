// Package block implements C2 and C3: the virtual block and the
// cursor-based writer/reader machinery that serializes typed items into
// and out of sequences of virtual blocks.
package block

import "github.com/sifdata/sif/blockpool"

// Virtual is C2: a byte-block reference plus the byte range and item
// range describing where items live inside it. A Virtual is immutable
// after construction.
//
// Invariants (spec §3): begin <= firstItemOffset <= end <= len(ref.Bytes());
// nItems >= 0.
type Virtual struct {
	Ref             *blockpool.Ref
	Begin           int
	End             int
	FirstItemOffset int
	NItems          int
}

// Bytes returns the full byte range [Begin, End) of the underlying block.
func (v Virtual) Bytes() []byte {
	return v.Ref.Bytes()[v.Begin:v.End]
}

// ItemBytes returns the range starting at the first fully contained
// item, [FirstItemOffset, End) — the range a fresh reader should begin
// deserializing from without needing to skip a spilled-over item.
func (v Virtual) ItemBytes() []byte {
	return v.Ref.Bytes()[v.FirstItemOffset:v.End]
}

// Size returns the number of payload bytes, End-Begin.
func (v Virtual) Size() int { return v.End - v.Begin }

// Retain increments the underlying byte block's reference count, for
// callers (Files, caches) that hold onto a Virtual independently of
// whoever produced it.
func (v Virtual) Retain() Virtual {
	v.Ref.Retain()
	return v
}

// Drop releases this Virtual's hold on its underlying byte block.
func (v Virtual) Drop() {
	v.Ref.Drop()
}

// Sink is anything that accepts virtual blocks and a close signal:
// files, channel sinks, discard sinks, block queues (spec §4.4).
type Sink interface {
	AppendBlock(vb Virtual) error
	Close() error
}

// DiscardSink is a Sink that drops every appended block immediately,
// for benchmarking writers without a real consumer.
type DiscardSink struct{}

// AppendBlock releases vb's hold on its byte block.
func (DiscardSink) AppendBlock(vb Virtual) error {
	vb.Drop()
	return nil
}

// Close is a no-op.
func (DiscardSink) Close() error { return nil }

// Source is anything blocks can be pulled from: files, block queues, or
// a concatenation thereof (spec §4.4, §4.5 OpenConcatReader).
//
// NextBlock returns (vb, true, nil) on success, (Virtual{}, false, nil)
// on clean exhaustion, or a non-nil error on failure.
type Source interface {
	NextBlock() (Virtual, bool, error)
}
