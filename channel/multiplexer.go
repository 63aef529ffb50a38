package channel

import (
	"sync"

	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/blockpool"
	"github.com/sifdata/sif/group"
	"github.com/sifdata/sif/internal/wire"
	"github.com/sifdata/sif/serr"
)

type channelKey struct {
	id            uint64
	localWorkerID uint32
}

// Multiplexer is C5: it gives num_hosts * workers_per_host workers
// named logical streams (channels) over one shared group.Group
// transport, dispatching inbound blocks by (channel id, receiver local
// worker) and routing outbound ones to a local loopback queue or a
// remote netSink depending on the destination's host.
type Multiplexer struct {
	grp            group.Group
	workersPerHost int
	pool           *blockpool.Pool

	mu         sync.Mutex
	registry   map[channelKey]*Channel
	idCounters map[uint32]uint64 // next id per local worker

	dispatchWg sync.WaitGroup
}

// New builds a Multiplexer over grp, with workersPerHost local workers
// per host sharing byte blocks allocated from pool.
func New(grp group.Group, workersPerHost int, pool *blockpool.Pool) *Multiplexer {
	return &Multiplexer{
		grp:            grp,
		workersPerHost: workersPerHost,
		pool:           pool,
		registry:       make(map[channelKey]*Channel),
		idCounters:     make(map[uint32]uint64),
	}
}

func (mp *Multiplexer) numWorkers() int { return mp.grp.NumHosts() * mp.workersPerHost }

// AllocateChannelID returns the next id for localWorker, per
// (host, local worker) — deterministic across hosts when every host
// calls it in the same order (spec §4.5's cooperative invariant).
func (mp *Multiplexer) AllocateChannelID(localWorker uint32) uint64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	id := mp.idCounters[localWorker]
	mp.idCounters[localWorker] = id + 1
	return id
}

// GetOrCreateChannel returns the Channel for (id, localWorker),
// creating it if this is the first reference on this host — from
// either the owning worker's own call or an inbound dispatcher racing
// to create it first (spec §4.5's lazy creation).
func (mp *Multiplexer) GetOrCreateChannel(id uint64, localWorker uint32) *Channel {
	key := channelKey{id: id, localWorkerID: localWorker}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	ch, ok := mp.registry[key]
	if !ok {
		ch = newChannel(id, localWorker, mp)
		mp.registry[key] = ch
	}
	return ch
}

func (mp *Multiplexer) dropChannel(id uint64, localWorker uint32) {
	mp.mu.Lock()
	delete(mp.registry, channelKey{id: id, localWorkerID: localWorker})
	mp.mu.Unlock()
}

// outboundSinks builds, in ascending destination-global-rank order, one
// sink per destination worker: a direct reference to the destination
// Channel's inbound queue for same-host destinations (loopback bypasses
// the network per spec §4.5), or a netSink over the destination host's
// connection otherwise.
func (mp *Multiplexer) outboundSinks(c *Channel) []block.Sink {
	myHostRank := mp.grp.MyHostRank()
	senderRank := uint32(myHostRank*mp.workersPerHost) + c.localWorkerID
	sinks := make([]block.Sink, mp.numWorkers())
	for w := 0; w < len(sinks); w++ {
		destHostRank := w / mp.workersPerHost
		destLocalID := uint32(w % mp.workersPerHost)
		var sink block.Sink
		if destHostRank == myHostRank {
			destCh := mp.GetOrCreateChannel(c.id, destLocalID)
			sink = destCh.inboundQueue(senderRank)
		} else {
			conn, err := mp.grp.Connection(destHostRank)
			if err != nil {
				// Connection failure is discovered lazily, at the first
				// AppendBlock/Close call against this sink, by wrapping
				// it as a sink that always fails — matching spec §4.5's
				// "short read/write is TRANSPORT_FAILURE, fatal" framing.
				sink = failingSink{err: serr.New(serr.TransportFailure, "channel.Multiplexer", err)}
			} else {
				sink = &netSink{
					conn:             conn,
					channelID:        c.id,
					senderWorkerRank: senderRank,
					receiverLocalID:  destLocalID,
				}
			}
		}
		c.mu.Lock()
		c.outbound[uint32(w)] = sink
		c.mu.Unlock()
		sinks[w] = sink
	}
	return sinks
}

type failingSink struct{ err error }

func (f failingSink) AppendBlock(block.Virtual) error { return f.err }
func (f failingSink) Close() error                    { return f.err }

// StartDispatcher launches the inbound dispatch loop for one transport
// peer connection: a single reader task per peer, per spec §4.5's
// "Inbound dispatch (receive path)." It returns immediately; the loop
// runs on its own goroutine until a read from conn fails, a message is
// shorter than a header, or dispatching a block fails. Callers start
// one per remote host.
func (mp *Multiplexer) StartDispatcher(conn group.Conn) {
	mp.dispatchWg.Add(1)
	go func() {
		defer mp.dispatchWg.Done()
		for {
			buf, err := conn.AsyncRecvBytes(-1)
			if err != nil {
				return
			}
			if len(buf) < wire.HeaderSize {
				return
			}
			h := wire.Decode(buf[:wire.HeaderSize])
			payload := buf[wire.HeaderSize:]
			if err := mp.dispatchInbound(h, payload); err != nil {
				return
			}
		}
	}()
}

func (mp *Multiplexer) dispatchInbound(h wire.Header, payload []byte) error {
	ch := mp.GetOrCreateChannel(h.ChannelID, h.ReceiverLocalWorkerID)
	q := ch.inboundQueue(h.SenderWorkerRank)
	if h.IsEndOfStream() {
		return q.Close()
	}
	ref, err := mp.pool.Allocate(len(payload))
	if err != nil {
		return err
	}
	copy(ref.Bytes(), payload)
	return q.AppendBlock(block.Virtual{
		Ref:             ref,
		Begin:           0,
		End:             len(payload),
		FirstItemOffset: int(h.FirstItemOffset),
		NItems:          int(h.NumItems),
	})
}
