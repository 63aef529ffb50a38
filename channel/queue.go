// Package channel implements C5: the channel multiplexer, a per-worker
// many-to-many block exchange layered over an abstract group transport.
package channel

import (
	"sync"

	"github.com/sifdata/sif/block"
)

// Queue is a block sink and source at once: an in-process FIFO hand-off
// of virtual blocks between a producer and a consumer, guarded by its
// own mutex and condition variable (spec §5's "each block queue has its
// own mutex and condition variable"). It is the loopback and inbound
// primitive C5 builds on.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	blocks      []block.Virtual
	writeClosed bool
}

// NewQueue returns an empty, write-open Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// AppendBlock enqueues vb for the consumer. Appending after Close is a
// programming error and panics — the multiplexer never does this itself
// (spec §4.5's close sequences sink closure before tearing anything
// else down).
func (q *Queue) AppendBlock(vb block.Virtual) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.writeClosed {
		panic("channel: AppendBlock on a write-closed Queue")
	}
	q.blocks = append(q.blocks, vb)
	q.cond.Broadcast()
	return nil
}

// Close marks the queue write-closed: no more blocks will arrive, and
// NextBlock returns (Virtual{}, false, nil) once drained. Idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.writeClosed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}

// NextBlock blocks until a block is available or the queue is
// write-closed and drained (spec §5's suspension point (i)).
func (q *Queue) NextBlock() (block.Virtual, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.blocks) == 0 && !q.writeClosed {
		q.cond.Wait()
	}
	if len(q.blocks) == 0 {
		return block.Virtual{}, false, nil
	}
	vb := q.blocks[0]
	q.blocks = q.blocks[1:]
	return vb, true, nil
}

// WriteClosed reports whether Close has been called, regardless of
// whether any queued blocks remain unread.
func (q *Queue) WriteClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writeClosed
}

// Drained reports whether the queue is write-closed and fully consumed
// — the condition Channel.Close waits for on every inbound queue
// (spec §4.5).
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writeClosed && len(q.blocks) == 0
}

var (
	_ block.Sink   = (*Queue)(nil)
	_ block.Source = (*Queue)(nil)
)
