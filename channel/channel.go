package channel

import (
	"sync"
	"time"

	"github.com/sifdata/sif/block"
)

// Channel is one logical many-to-many stream identified by a
// (channel id, receiver local worker) pair, fed by every sender worker
// in the cluster through its own per-sender inbound Queue (spec §4.5).
type Channel struct {
	id             uint64
	localWorkerID  uint32
	mp             *Multiplexer

	mu       sync.Mutex
	inbound  map[uint32]*Queue // keyed by sender global worker rank
	outbound map[uint32]block.Sink
}

// ID returns the channel's allocated id.
func (c *Channel) ID() uint64 { return c.id }

func newChannel(id uint64, localWorkerID uint32, mp *Multiplexer) *Channel {
	return &Channel{
		id:            id,
		localWorkerID: localWorkerID,
		mp:            mp,
		inbound:       make(map[uint32]*Queue),
		outbound:      make(map[uint32]block.Sink),
	}
}

// inboundQueue returns (lazily creating) the queue fed by senderRank.
// This is what lets a block arrive before the receiver ever calls
// get_or_create_channel (spec §4.5's inbound dispatch step 1).
func (c *Channel) inboundQueue(senderRank uint32) *Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.inbound[senderRank]
	if !ok {
		q = NewQueue()
		c.inbound[senderRank] = q
	}
	return q
}

// OutboundSinks returns one block.Sink per destination worker, in
// ascending global-rank order, backed by loopback queues for
// same-host destinations and netSinks for remote ones. Scatter uses
// this directly to push existing virtual blocks zero-copy, bypassing
// the Writer/Codec layer entirely.
func (c *Channel) OutboundSinks() []block.Sink {
	return c.mp.outboundSinks(c)
}

// OpenWriters returns one block.Writer per destination worker, in
// ascending global-rank order, backed by loopback queues for
// same-host destinations and netSinks for remote ones.
func (c *Channel) OpenWriters(blockSize int, codec block.Codec, selfVerify bool) ([]*block.Writer, error) {
	sinks := c.OutboundSinks()
	writers := make([]*block.Writer, len(sinks))
	for w, sink := range sinks {
		wr, err := block.NewWriter(sink, c.mp.pool, blockSize, codec, selfVerify)
		if err != nil {
			return nil, err
		}
		writers[w] = wr
	}
	return writers, nil
}

// OpenReaders returns one block.Reader per source worker, in ascending
// global-rank order, each reading that source's inbound queue.
func (c *Channel) OpenReaders(codec block.Codec, selfVerify bool) []*block.Reader {
	readers := make([]*block.Reader, c.mp.numWorkers())
	for w := 0; w < len(readers); w++ {
		readers[w] = block.NewReader(c.inboundQueue(uint32(w)), codec, selfVerify)
	}
	return readers
}

// OpenConcatReader returns a single reader draining every source's
// inbound queue in ascending rank order (spec §4.5, §5).
func (c *Channel) OpenConcatReader(codec block.Codec, selfVerify bool) *block.Reader {
	byRank := make(map[uint32]block.Source, c.mp.numWorkers())
	for w := 0; w < c.mp.numWorkers(); w++ {
		byRank[uint32(w)] = c.inboundQueue(uint32(w))
	}
	return block.NewReader(NewConcatSource(byRank), codec, selfVerify)
}

// OpenCatReader is OpenConcatReader's replayable variant: when cache is
// true, the concatenated stream is recorded so a second pass can replay
// it without re-draining (now-exhausted) source queues.
func (c *Channel) OpenCatReader(codec block.Codec, selfVerify bool, cache bool) (*block.Reader, *CachingQueue) {
	byRank := make(map[uint32]block.Source, c.mp.numWorkers())
	for w := 0; w < c.mp.numWorkers(); w++ {
		byRank[uint32(w)] = c.inboundQueue(uint32(w))
	}
	concat := NewConcatSource(byRank)
	if !cache {
		return block.NewReader(concat, codec, selfVerify), nil
	}
	cq := NewCachingQueue(concat, c.mp.pool)
	return block.NewReader(cq, codec, selfVerify), cq
}

// Close closes every outbound sink belonging to this channel, then
// busy-waits (spec §5: "Channel close() busy-waits with a short sleep
// for peers to finish — acceptable because close is rare") until every
// inbound queue is write-closed and drained, then drops the channel
// from the multiplexer's registry.
func (c *Channel) Close() error {
	c.mu.Lock()
	outbound := make([]block.Sink, 0, len(c.outbound))
	for _, s := range c.outbound {
		outbound = append(outbound, s)
	}
	c.mu.Unlock()
	for _, s := range outbound {
		if err := s.Close(); err != nil {
			return err
		}
	}
	// Pre-create every sender's inbound placeholder, mirroring
	// OpenReaders/OpenConcatReader, so a sender whose first header
	// (even an end-of-stream-only one) hasn't arrived yet still has a
	// queue entry to be found undrained below rather than being
	// vacuously treated as already drained.
	for w := 0; w < c.mp.numWorkers(); w++ {
		c.inboundQueue(uint32(w))
	}
	for {
		c.mu.Lock()
		allDrained := true
		for _, q := range c.inbound {
			if !q.Drained() {
				allDrained = false
				break
			}
		}
		c.mu.Unlock()
		if allDrained {
			break
		}
		time.Sleep(time.Millisecond)
	}
	c.mp.dropChannel(c.id, c.localWorkerID)
	return nil
}
