package tcp

import (
	"context"
	"encoding/binary"

	"github.com/sifdata/sif/group"
)

// PrefixSum, AllReduce, ReduceToRoot and Barrier below are
// root-gather-then-root-scatter algorithms: every non-root host sends
// its value to rank 0 and receives back whatever the collective
// promises it. Broadcast instead sends directly from its root host to
// every other host. This is not latency-optimal (a
// tree or ring would be), but it is simple to reason about and correct,
// matching spec §6's framing of collectives as something "implementations
// live outside the core; the core only calls them" — this package is
// the one reference implementation, not a performance target.

func encodeInt64(x int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(x))
	return buf[:]
}

func decodeInt64(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

func (g *Group) gatherToRoot(ctx context.Context, x int64) ([]int64, error) {
	n := g.NumHosts()
	vals := make([]int64, n)
	vals[g.myHostRank] = x
	if g.myHostRank != 0 {
		c, err := g.Connection(0)
		if err != nil {
			return nil, err
		}
		if err := c.SyncSend(encodeInt64(x)); err != nil {
			return nil, err
		}
		return nil, nil
	}
	for r := 1; r < n; r++ {
		c, err := g.Connection(r)
		if err != nil {
			return nil, err
		}
		var buf [8]byte
		if err := c.SyncRecv(buf[:]); err != nil {
			return nil, err
		}
		vals[r] = decodeInt64(buf[:])
	}
	return vals, nil
}

func (g *Group) scatterFromRoot(ctx context.Context, perHost []int64) (int64, error) {
	if g.myHostRank == 0 {
		for r := 1; r < g.NumHosts(); r++ {
			c, err := g.Connection(r)
			if err != nil {
				return 0, err
			}
			if err := c.SyncSend(encodeInt64(perHost[r])); err != nil {
				return 0, err
			}
		}
		return perHost[0], nil
	}
	c, err := g.Connection(0)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	if err := c.SyncRecv(buf[:]); err != nil {
		return 0, err
	}
	return decodeInt64(buf[:]), nil
}

// PrefixSum implements group.Group.PrefixSum by gathering all values to
// root, folding, and scattering back each host's exclusive or inclusive
// prefix.
func (g *Group) PrefixSum(ctx context.Context, x int64, initial int64, op group.ReduceOp, inclusive bool) (int64, error) {
	vals, err := g.gatherToRoot(ctx, x)
	if err != nil {
		return 0, err
	}
	if g.myHostRank == 0 {
		out := make([]int64, len(vals))
		acc := initial
		for r, v := range vals {
			if inclusive {
				acc = op(acc, v)
				out[r] = acc
			} else {
				out[r] = acc
				acc = op(acc, v)
			}
		}
		return g.scatterFromRoot(ctx, out)
	}
	return g.scatterFromRoot(ctx, nil)
}

// AllReduce folds x across every host under op and returns the combined
// result to all of them.
func (g *Group) AllReduce(ctx context.Context, x int64, op group.ReduceOp) (int64, error) {
	vals, err := g.gatherToRoot(ctx, x)
	if err != nil {
		return 0, err
	}
	if g.myHostRank == 0 {
		acc := vals[0]
		for _, v := range vals[1:] {
			acc = op(acc, v)
		}
		out := make([]int64, len(vals))
		for r := range out {
			out[r] = acc
		}
		return g.scatterFromRoot(ctx, out)
	}
	return g.scatterFromRoot(ctx, nil)
}

// ReduceToRoot folds x across every host under op; the result is only
// meaningful on the host whose rank equals root, and is 0 elsewhere.
func (g *Group) ReduceToRoot(ctx context.Context, x int64, op group.ReduceOp, root int) (int64, error) {
	vals, err := g.gatherToRoot(ctx, x)
	if err != nil {
		return 0, err
	}
	if g.myHostRank != 0 {
		if g.myHostRank != root {
			return 0, nil
		}
		c, err := g.Connection(0)
		if err != nil {
			return 0, err
		}
		var buf [8]byte
		if err := c.SyncRecv(buf[:]); err != nil {
			return 0, err
		}
		return decodeInt64(buf[:]), nil
	}
	acc := vals[0]
	for _, v := range vals[1:] {
		acc = op(acc, v)
	}
	if root == 0 {
		return acc, nil
	}
	c, err := g.Connection(root)
	if err != nil {
		return 0, err
	}
	if err := c.SyncSend(encodeInt64(acc)); err != nil {
		return 0, err
	}
	return 0, nil
}

// Broadcast sends x, as known on host root, to every other host.
func (g *Group) Broadcast(ctx context.Context, x int64, root int) (int64, error) {
	if g.myHostRank == root {
		for r := 0; r < g.NumHosts(); r++ {
			if r == root {
				continue
			}
			c, err := g.Connection(r)
			if err != nil {
				return 0, err
			}
			if err := c.SyncSend(encodeInt64(x)); err != nil {
				return 0, err
			}
		}
		return x, nil
	}
	c, err := g.Connection(root)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	if err := c.SyncRecv(buf[:]); err != nil {
		return 0, err
	}
	return decodeInt64(buf[:]), nil
}

// Barrier blocks every host until all have called Barrier, via the same
// gather/scatter shape as the value collectives with a dummy payload.
func (g *Group) Barrier(ctx context.Context) error {
	_, err := g.AllReduce(ctx, 0, group.Sum)
	return err
}
