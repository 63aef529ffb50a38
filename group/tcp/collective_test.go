package tcp

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sifdata/sif/group"
)

// threeHostRing wires three in-process Groups together over net.Pipe in
// a full mesh, the same connectivity Dial produces for a real cluster
// (every collective, including Broadcast from a non-zero root, assumes
// every pair of hosts can talk directly).
func threeHostRing() (g0, g1, g2 *Group) {
	peers := []string{"", "", ""}
	g0 = &Group{myHostRank: 0, peers: peers, conns: make(map[int]*conn)}
	g1 = &Group{myHostRank: 1, peers: peers, conns: make(map[int]*conn)}
	g2 = &Group{myHostRank: 2, peers: peers, conns: make(map[int]*conn)}

	a, b := net.Pipe()
	g0.conns[1] = newConn(a)
	g1.conns[0] = newConn(b)

	c, d := net.Pipe()
	g0.conns[2] = newConn(c)
	g2.conns[0] = newConn(d)

	e, f := net.Pipe()
	g1.conns[2] = newConn(e)
	g2.conns[1] = newConn(f)

	return g0, g1, g2
}

func TestAllReduceSum(t *testing.T) {
	g0, g1, g2 := threeHostRing()
	ctx := context.Background()
	results := make([]int64, 3)
	errs := make([]error, 3)
	done := make(chan int, 3)
	run := func(i int, g *Group, x int64) {
		results[i], errs[i] = g.AllReduce(ctx, x, group.Sum)
		done <- i
	}
	go run(0, g0, 1)
	go run(1, g1, 2)
	go run(2, g2, 3)
	for i := 0; i < 3; i++ {
		<-done
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, int64(6), results[i])
	}
}

func TestPrefixSumInclusive(t *testing.T) {
	g0, g1, g2 := threeHostRing()
	ctx := context.Background()
	results := make([]int64, 3)
	errs := make([]error, 3)
	done := make(chan int, 3)
	run := func(i int, g *Group, x int64) {
		results[i], errs[i] = g.PrefixSum(ctx, x, 0, group.Sum, true)
		done <- i
	}
	go run(0, g0, 10)
	go run(1, g1, 20)
	go run(2, g2, 30)
	for i := 0; i < 3; i++ {
		<-done
	}
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NoError(t, errs[2])
	require.Equal(t, int64(10), results[0])
	require.Equal(t, int64(30), results[1])
	require.Equal(t, int64(60), results[2])
}

// TestReduceToRootNonZeroRoot exercises root != 0: the root host must
// itself receive the folded value from rank 0 rather than treat it as
// already local.
func TestReduceToRootNonZeroRoot(t *testing.T) {
	g0, g1, g2 := threeHostRing()
	ctx := context.Background()
	results := make([]int64, 3)
	errs := make([]error, 3)
	done := make(chan int, 3)
	run := func(i int, g *Group, x int64) {
		results[i], errs[i] = g.ReduceToRoot(ctx, x, group.Sum, 2)
		done <- i
	}
	go run(0, g0, 1)
	go run(1, g1, 2)
	go run(2, g2, 3)
	for i := 0; i < 3; i++ {
		<-done
	}
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NoError(t, errs[2])
	require.Equal(t, int64(0), results[0])
	require.Equal(t, int64(0), results[1])
	require.Equal(t, int64(6), results[2])
}

func TestBroadcastFromNonZeroRoot(t *testing.T) {
	g0, g1, g2 := threeHostRing()
	ctx := context.Background()
	results := make([]int64, 3)
	errs := make([]error, 3)
	done := make(chan int, 3)
	run := func(i int, g *Group) {
		results[i], errs[i] = g.Broadcast(ctx, 42, 1)
		done <- i
	}
	go run(0, g0)
	go run(1, g1)
	go run(2, g2)
	for i := 0; i < 3; i++ {
		<-done
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, int64(42), results[i])
	}
}

func TestBarrierReleasesAllHosts(t *testing.T) {
	g0, g1, g2 := threeHostRing()
	ctx := context.Background()
	done := make(chan error, 3)
	go func() { done <- g0.Barrier(ctx) }()
	go func() { done <- g1.Barrier(ctx) }()
	go func() { done <- g2.Barrier(ctx) }()
	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
}
