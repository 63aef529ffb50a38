// Package blockpool implements C1: a refcounted byte-block allocator
// with a process-wide advisory memory counter. It deliberately does not
// enforce a hard cap — spec §4.1 calls the counter "eventually
// consistent... advisory, not a hard cap" — callers that want
// back-pressure must read Pool.TotalBytes themselves.
package blockpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sifdata/sif/serr"
)

// DefaultSize is the default byte-block size, per spec §3.
const DefaultSize = 2 << 20 // 2 MiB

// Pool allocates and tracks fixed-size byte blocks.
type Pool struct {
	totalBytes int64 // atomic

	spillMu sync.Mutex
	spill   Spiller // optional overflow tier, nil if unused
}

// Spiller is the optional disk-spill tier a Pool may delegate to when
// under memory pressure. It is not part of C1's hard contract (spec §4.1
// treats the counter as advisory only) — it exists so a caller that
// wants real back-pressure has somewhere to put evicted blocks.
type Spiller interface {
	// Offer may retain buf for later Reclaim, freeing the caller's copy.
	Offer(id string, buf []byte) error
	Reclaim(id string) ([]byte, error)
}

// New creates an empty Pool. spill may be nil.
func New(spill Spiller) *Pool {
	return &Pool{spill: spill}
}

// Ref is a reference-counted byte block. The zero Ref is not valid; use
// Pool.Allocate.
type Ref struct {
	pool    *Pool
	bytes   []byte
	size    int
	rc      int32 // atomic
	spilled bool
}

// Allocate returns a new Ref of size bytes with a reference count of 1,
// incrementing the pool's total-bytes counter. Fails with
// serr.OutOfMemory only if size is negative (Go's allocator panics
// rather than returning an error on real exhaustion, so that is the one
// allocator failure this layer can turn into the documented error kind
// without recovering from a panic on every call).
func (p *Pool) Allocate(size int) (*Ref, error) {
	if size < 0 {
		return nil, serr.New(serr.OutOfMemory, "blockpool", nil)
	}
	r := &Ref{
		pool:  p,
		bytes: make([]byte, size),
		size:  size,
		rc:    1,
	}
	atomic.AddInt64(&p.totalBytes, int64(size))
	return r, nil
}

// TotalBytes returns the pool's current advisory byte total.
func (p *Pool) TotalBytes() int64 {
	return atomic.LoadInt64(&p.totalBytes)
}

// Bytes exposes the underlying buffer. Callers must not retain a slice
// of it past the last Drop of this Ref.
func (r *Ref) Bytes() []byte { return r.bytes }

// Size returns the block's allocated size in bytes.
func (r *Ref) Size() int { return r.size }

// Retain increments the reference count and returns r, for callers that
// hand out a Ref to multiple virtual blocks.
func (r *Ref) Retain() *Ref {
	atomic.AddInt32(&r.rc, 1)
	return r
}

// Drop decrements the reference count; once it reaches zero the block's
// size is subtracted from the pool's counter. Dropping more times than
// Allocate+Retain produced references is a programming error and panics,
// matching the invariant in spec §3 that a referenced block is never
// freed early. A Ref that was handed off to Pool.Spill has already had
// its bytes removed from the counter, so its final Drop does not
// subtract a second time.
func (r *Ref) Drop() {
	n := atomic.AddInt32(&r.rc, -1)
	if n < 0 {
		panic("blockpool: Ref dropped more times than it was referenced")
	}
	if n == 0 && !r.spilled {
		atomic.AddInt64(&r.pool.totalBytes, -int64(r.size))
	}
}

// Spill hands r's bytes off to the Pool's configured Spiller under id,
// removing r's size from the advisory counter immediately rather than
// waiting for a final Drop, and frees r's in-memory copy. Only a block
// with no outstanding Retain beyond its own Allocate (refcount 1) may be
// spilled, since any other holder would see its Bytes() go away out from
// under it. Reclaim(id, ...) is the inverse.
func (p *Pool) Spill(r *Ref, id string) error {
	if p.spill == nil {
		return serr.New(serr.InvalidArgument, "blockpool", fmt.Errorf("no spill tier configured"))
	}
	if atomic.LoadInt32(&r.rc) != 1 {
		return serr.New(serr.InvalidArgument, "blockpool", fmt.Errorf("cannot spill a block with outstanding references"))
	}
	p.spillMu.Lock()
	defer p.spillMu.Unlock()
	if err := p.spill.Offer(id, r.bytes); err != nil {
		return err
	}
	atomic.AddInt64(&p.totalBytes, -int64(r.size))
	r.bytes = nil
	r.spilled = true
	return nil
}

// Reclaim retrieves a block previously handed to Spill under id, adding
// its size back to the advisory counter and returning a fresh
// refcount-1 Ref over the decompressed bytes.
func (p *Pool) Reclaim(id string) (*Ref, error) {
	if p.spill == nil {
		return nil, serr.New(serr.InvalidArgument, "blockpool", fmt.Errorf("no spill tier configured"))
	}
	p.spillMu.Lock()
	buf, err := p.spill.Reclaim(id)
	p.spillMu.Unlock()
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&p.totalBytes, int64(len(buf)))
	return &Ref{pool: p, bytes: buf, size: len(buf), rc: 1}, nil
}
