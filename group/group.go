// Package group defines the abstract peer-group transport the channel
// multiplexer depends on (spec §6's "Group transport (required from
// collaborator)"): reliable, ordered byte streams per peer plus a small
// set of collectives. The core (channel, reduce) only calls this
// interface; group/tcp provides one concrete implementation.
package group

import "context"

// ReduceOp combines two values of the same collective round.
type ReduceOp func(a, b int64) int64

// Sum is the ReduceOp used by prefix-sum/reduce collectives over plain
// counts (e.g. spec §8's S6 prefix-sum scenario).
func Sum(a, b int64) int64 { return a + b }

// Conn is a reliable, ordered byte stream to one peer.
type Conn interface {
	// SyncSend blocks until all of p has been written.
	SyncSend(p []byte) error
	// SyncRecv blocks until exactly len(p) bytes have been read into p.
	SyncRecv(p []byte) error
	// AsyncSendBytes queues p for delivery without blocking the caller
	// past the point of a single in-flight write per peer (spec §5's
	// "must not have two concurrent outstanding async_write operations
	// to the same transport peer").
	AsyncSendBytes(p []byte) error
	// AsyncRecvBytes blocks the calling goroutine (not the caller's
	// peer) until the next message sent with AsyncSendBytes has arrived,
	// then returns it. A non-negative nExpected makes a message of any
	// other length an error; a negative one accepts any length.
	AsyncRecvBytes(nExpected int) ([]byte, error)
}

// Group is the abstract peer group the multiplexer is layered over.
type Group interface {
	NumHosts() int
	MyHostRank() int
	Connection(peerHostRank int) (Conn, error)

	// PrefixSum returns x's prefix sum over all hosts under op. When
	// inclusive is true the local host's own x is folded into its
	// result; a host of rank r with inclusive=false observes the fold
	// of ranks [0, r) only.
	PrefixSum(ctx context.Context, x int64, initial int64, op ReduceOp, inclusive bool) (int64, error)
	AllReduce(ctx context.Context, x int64, op ReduceOp) (int64, error)
	Broadcast(ctx context.Context, x int64, root int) (int64, error)
	ReduceToRoot(ctx context.Context, x int64, op ReduceOp, root int) (int64, error)
	Barrier(ctx context.Context) error
}
