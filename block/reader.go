package block

import (
	"encoding/binary"
	"io"

	xxhash "github.com/cespare/xxhash"
	"github.com/sifdata/sif/blockpool"
	"github.com/sifdata/sif/serr"
)

// Reader is C3's reader half: pulls virtual blocks from a Source and
// exposes typed Next/HasNext, tracking cursors inside the current block
// and a remaining-item count, fetching fresh virtual blocks on
// underflow (spec §4.2).
type Reader struct {
	src        Source
	codec      Codec
	selfVerify bool
	typeHash   uint64

	hasBlock  bool
	curBlock  Virtual
	pos       int // absolute offset into curBlock.Ref.Bytes()
	itemsLeft int // item-starts in curBlock not yet begun

	// onCross and onItemStart are hooks used internally by GetItemRange
	// to track block-boundary crossings and item-start moments without
	// duplicating the crossing logic in two places.
	onCross    func(old Virtual)
	onItemStart func()
}

// NewReader binds a Reader to src.
func NewReader(src Source, codec Codec, selfVerify bool) *Reader {
	return &Reader{
		src:        src,
		codec:      codec,
		selfVerify: selfVerify,
		typeHash:   xxhash.Sum64String(codec.TypeID()),
	}
}

// fetchNext pulls the next virtual block from the source, firing
// onCross with the block being left behind (if any) once the new block
// is already installed as curBlock.
func (r *Reader) fetchNext() (bool, error) {
	vb, ok, err := r.src.NextBlock()
	if err != nil {
		return false, serr.New(serr.TransportFailure, "block.Reader", err)
	}
	if !ok {
		return false, nil
	}
	old := r.curBlock
	hadOld := r.hasBlock
	r.curBlock = vb
	r.pos = vb.Begin
	r.itemsLeft = vb.NItems
	r.hasBlock = true
	if hadOld {
		// Fire onCross (which, in GetItemRange, Retains a reference for
		// the emitted Virtual) before dropping the reader's own hold, so
		// the byte block is never observed at a zero refcount in between.
		if r.onCross != nil {
			r.onCross(old)
		}
		old.Drop()
	}
	return true, nil
}

// ensureItem advances through (and drops) any zero-item blocks until
// one with at least one remaining item-start is current, or the source
// is exhausted.
func (r *Reader) ensureItem() (bool, error) {
	for r.itemsLeft == 0 {
		ok, err := r.fetchNext()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasNext reports whether at least one more item is available.
func (r *Reader) HasNext() bool {
	ok, err := r.ensureItem()
	return ok && err == nil
}

// Close drops the reader's hold on its current block, if any. A reader
// that drains its source to exhaustion never needs this — fetchNext
// drops each block as it's left behind — but a reader abandoned early
// (or one that reached EOF, whose last block is never "left behind" by
// a further fetchNext call) must call it to release that last hold.
func (r *Reader) Close() error {
	if r.hasBlock {
		r.curBlock.Drop()
		r.hasBlock = false
	}
	return nil
}

// Next deserializes and returns the next item, fetching additional
// virtual blocks from the source as needed — including mid-item, for
// items whose serialization spans a block boundary.
func (r *Reader) Next() (interface{}, error) {
	ok, err := r.ensureItem()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, serr.New(serr.UnexpectedEOS, "block.Reader", nil)
	}
	r.itemsLeft--
	if r.onItemStart != nil {
		r.onItemStart()
	}
	if r.selfVerify {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, r.wrapEOS(err)
		}
		if binary.LittleEndian.Uint64(buf[:]) != r.typeHash {
			return nil, serr.New(serr.TypeMismatch, "block.Reader", nil)
		}
	}
	item, err := r.codec.Read(r)
	if err != nil {
		return nil, r.wrapEOS(err)
	}
	return item, nil
}

func (r *Reader) wrapEOS(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return serr.New(serr.UnexpectedEOS, "block.Reader", err)
	}
	return err
}

// SkipItems advances past n items of a known on-wire size (selfVerify's
// 8-byte type-hash prefix included by the caller in itemSize) without
// deserializing them, for File.GetReaderAt's arithmetic-skip fast path
// over fixed-size codecs (spec §4.3).
func (r *Reader) SkipItems(n int, itemSize int) error {
	buf := make([]byte, itemSize)
	for i := 0; i < n; i++ {
		ok, err := r.ensureItem()
		if err != nil {
			return err
		}
		if !ok {
			return serr.New(serr.UnexpectedEOS, "block.Reader", nil)
		}
		r.itemsLeft--
		if r.onItemStart != nil {
			r.onItemStart()
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return r.wrapEOS(err)
		}
	}
	return nil
}

// Read implements io.Reader over the sequence of virtual blocks,
// transparently fetching the next block when the current one is
// exhausted, which is how items spanning block boundaries are
// reassembled.
func (r *Reader) Read(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if !r.hasBlock || r.pos == r.curBlock.End {
			ok, err := r.fetchNext()
			if err != nil {
				return total, err
			}
			if !ok {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
		}
		avail := r.curBlock.End - r.pos
		n := len(p)
		if n > avail {
			n = avail
		}
		copy(p[:n], r.curBlock.Ref.Bytes()[r.pos:r.pos+n])
		r.pos += n
		p = p[n:]
		total += n
	}
	return total, nil
}

// segAccum tracks the virtual block currently being built up for
// emission by GetItemRange.
type segAccum struct {
	ref              *blockpool.Ref
	begin            int
	blockFirstOffset int
	nItems           int
}

// GetItemRange returns the minimal sequence of virtual blocks whose
// union contains exactly n contiguous items starting at the reader's
// cursor, without fully deserializing them, per spec §4.2's zero-copy
// algorithm. Each returned virtual block carries a firstItemOffset such
// that a downstream reader can begin deserializing at it directly.
func (r *Reader) GetItemRange(n int) ([]Virtual, error) {
	if n <= 0 {
		return nil, nil
	}
	ok, err := r.ensureItem()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, serr.New(serr.UnexpectedEOS, "block.Reader", nil)
	}

	var out []Virtual
	seg := segAccum{ref: r.curBlock.Ref, begin: r.pos, blockFirstOffset: r.curBlock.FirstItemOffset}
	finalize := func(end int) {
		fo := seg.begin
		if seg.blockFirstOffset > fo {
			fo = seg.blockFirstOffset
		}
		out = append(out, Virtual{
			Ref:             seg.ref.Retain(),
			Begin:           seg.begin,
			End:             end,
			FirstItemOffset: fo,
			NItems:          seg.nItems,
		})
	}

	prevCross, prevStart := r.onCross, r.onItemStart
	r.onCross = func(old Virtual) {
		finalize(old.End)
		seg = segAccum{ref: r.curBlock.Ref, begin: r.pos, blockFirstOffset: r.curBlock.FirstItemOffset}
	}
	r.onItemStart = func() { seg.nItems++ }
	defer func() { r.onCross, r.onItemStart = prevCross, prevStart }()

	for i := 0; i < n; i++ {
		if _, err := r.Next(); err != nil {
			return nil, err
		}
	}
	finalize(r.pos)
	return out, nil
}
