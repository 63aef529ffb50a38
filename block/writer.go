package block

import (
	"encoding/binary"
	"io"

	xxhash "github.com/cespare/xxhash"
	"github.com/sifdata/sif/blockpool"
	"github.com/sifdata/sif/serr"
)

// Writer is C3's writer half: a cursor-based serializer of typed items
// into a sequence of virtual blocks, bound to a Sink. It owns one
// in-progress byte block at a time (spec §4.2).
type Writer struct {
	sink      Sink
	pool      *blockpool.Pool
	blockSize int
	codec     Codec
	selfVerify bool
	typeHash  uint64

	ref     *blockpool.Ref
	current int // absolute cursor offset into ref.Bytes()
	end     int
	nItems  int
	first   int
	closed  bool
}

// NewWriter binds a Writer to sink, allocating blocks of blockSize bytes
// from pool. selfVerify, when true, prefixes each serialized item with
// an 8-byte hash of the codec's type identity (spec §4.2).
func NewWriter(sink Sink, pool *blockpool.Pool, blockSize int, codec Codec, selfVerify bool) (*Writer, error) {
	if blockSize <= 0 {
		return nil, serr.New(serr.InvalidArgument, "block.Writer", nil)
	}
	w := &Writer{
		sink:       sink,
		pool:       pool,
		blockSize:  blockSize,
		codec:      codec,
		selfVerify: selfVerify,
		typeHash:   xxhash.Sum64String(codec.TypeID()),
	}
	if err := w.allocate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) allocate() error {
	ref, err := w.pool.Allocate(w.blockSize)
	if err != nil {
		return err
	}
	w.ref = ref
	w.current = 0
	w.end = w.blockSize
	w.nItems = 0
	w.first = 0
	return nil
}

// MarkItem begins a new item: flushing and allocating a fresh block if
// the current one is full, recording first_offset if this is the first
// item of the (possibly just-allocated) block, then incrementing the
// item counter. It never writes any bytes itself.
func (w *Writer) MarkItem() error {
	if w.current == w.end {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if w.nItems == 0 {
		w.first = w.current
	}
	w.nItems++
	return nil
}

// AppendItem marks and serializes x via the bound Codec, spanning
// blocks transparently. In self-verify mode the serialization is
// prefixed by a stable hash of the codec's type identity.
func (w *Writer) AppendItem(x interface{}) error {
	if w.closed {
		return serr.New(serr.Closed, "block.Writer", nil)
	}
	if err := w.MarkItem(); err != nil {
		return err
	}
	if w.selfVerify {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], w.typeHash)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.codec.Write(x, w)
}

// AppendRaw copies data into the block sequence, flushing as needed,
// without touching the item counter.
func (w *Writer) AppendRaw(data []byte) error {
	if w.closed {
		return serr.New(serr.Closed, "block.Writer", nil)
	}
	_, err := w.Write(data)
	return err
}

// Write implements io.Writer so Codec implementations can write
// directly into the writer's cursor, transparently crossing block
// boundaries.
func (w *Writer) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if w.current == w.end {
			if err := w.Flush(); err != nil {
				return total - len(p), err
			}
		}
		n := copy(w.ref.Bytes()[w.current:w.end], p)
		w.current += n
		p = p[n:]
	}
	return total, nil
}

// Flush emits the in-progress block to the sink (if it holds any bytes
// or any item starts) and allocates a fresh one. It is always safe to
// call, including when nothing has been written since the last flush.
func (w *Writer) Flush() error {
	if w.current != 0 || w.nItems > 0 {
		vb := Virtual{
			Ref:             w.ref,
			Begin:           0,
			End:             w.current,
			FirstItemOffset: w.first,
			NItems:          w.nItems,
		}
		if err := w.sink.AppendBlock(vb); err != nil {
			return err
		}
		return w.allocate()
	}
	return nil
}

// Close flushes any partial block, releases the writer's own empty
// in-progress block, then closes the sink. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.Flush(); err != nil {
		return err
	}
	w.ref.Drop()
	w.ref = nil
	return w.sink.Close()
}

var _ io.Writer = (*Writer)(nil)
