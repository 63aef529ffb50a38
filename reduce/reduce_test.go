package reduce

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/blockpool"
	"github.com/sifdata/sif/vfile"
)

func intPairSum(a, b interface{}) interface{} { return a.(int) + b.(int) }

func newWriters(t *testing.T, n int, pool *blockpool.Pool) ([]*block.Writer, []*vfile.File) {
	files := make([]*vfile.File, n)
	writers := make([]*block.Writer, n)
	for i := 0; i < n; i++ {
		f := vfile.New()
		w, err := f.GetWriter(pool, 256, block.IntCodec{}, false)
		require.NoError(t, err)
		files[i] = f
		writers[i] = w
	}
	return writers, files
}

// S3 — Probing reduce table flush. With P=2, max_num_items_table=4,
// insert 0,1,2,3,4; after insert 4 the largest partition is flushed;
// flush all; combined emitted keys across both partitions equal
// {0,1,2,3,4}.
func TestProbingPartialFlushAndDrain(t *testing.T) {
	pool := blockpool.New(nil)
	writers, files := newWriters(t, 2, pool)
	cfg := Config{
		P:                     2,
		Sentinel:              -1,
		InitialScale:          4,
		ResizeScale:           2,
		MaxPartitionFillRatio: 1.0,
		MaxTableItems:         4,
		MaxProbeLength:        4,
		KeyOf:                 func(item interface{}) interface{} { return item },
		ValueOf:               func(item interface{}) interface{} { return item },
		Reduce:                intPairSum,
		Hash:                  func(key interface{}) uint64 { return uint64(key.(int)) },
	}
	tbl, err := NewProbing(cfg, writers)
	require.NoError(t, err)

	for _, x := range []int{0, 1, 2, 3, 4} {
		require.NoError(t, tbl.Insert(x))
	}
	require.NoError(t, tbl.Flush())
	require.NoError(t, tbl.CloseEmitters())
	for _, f := range files {
		require.NoError(t, f.Close())
	}

	seen := map[int]bool{}
	for _, f := range files {
		r := f.GetReader(block.IntCodec{}, false)
		for r.HasNext() {
			v, err := r.Next()
			require.NoError(t, err)
			seen[v.(int)] = true
		}
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true}, seen)
}

// S4 — Reduce-by-key with sum. With key = x mod 500, reduce = +, insert
// {(i,1) : i in 0..(1<<16)-1} (scaled down from 1<<20 for test speed):
// exactly 500 emitted entries, their values sum to the input count.
func TestProbingReduceByKeySum(t *testing.T) {
	const n = 1 << 16
	const mod = 500
	pool := blockpool.New(nil)
	writers, files := newWriters(t, 4, pool)
	cfg := Config{
		P:                     4,
		Sentinel:              -1,
		InitialScale:          8,
		ResizeScale:           2,
		MaxPartitionFillRatio: 0.75,
		MaxTableItems:         1 << 12,
		MaxProbeLength:        0,
		PairMode:              true,
		KeyOf:                 func(item interface{}) interface{} { return item.(Pair).Key },
		ValueOf:               func(item interface{}) interface{} { return item.(Pair).Value },
		Reduce:                intPairSum,
		Hash:                  func(key interface{}) uint64 { return uint64(key.(int)) },
	}
	// rebind writers to the PairCodec since PairMode is set
	for i, f := range files {
		w, err := f.GetWriter(pool, 256, NewPairCodec(block.IntCodec{}, block.IntCodec{}), false)
		require.NoError(t, err)
		writers[i] = w
	}
	tbl, err := NewProbing(cfg, writers)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, tbl.Insert(Pair{Key: i % mod, Value: 1}))
	}
	require.NoError(t, tbl.CloseEmitters())
	for _, f := range files {
		require.NoError(t, f.Close())
	}

	sums := map[int]int{}
	count := 0
	for _, f := range files {
		r := f.GetReader(NewPairCodec(block.IntCodec{}, block.IntCodec{}), false)
		for r.HasNext() {
			v, err := r.Next()
			require.NoError(t, err)
			p := v.(Pair)
			sums[p.Key.(int)] += p.Value.(int)
			count++
		}
	}
	require.Len(t, sums, mod)
	total := 0
	for _, v := range sums {
		total += v
	}
	require.Equal(t, n, total)
	require.Equal(t, mod, count)
}

func TestChainingReduceByKeySum(t *testing.T) {
	const n = 1 << 14
	const mod = 37
	pool := blockpool.New(nil)
	writers, files := newWriters(t, 3, pool)
	for i, f := range files {
		w, err := f.GetWriter(pool, 256, NewPairCodec(block.IntCodec{}, block.IntCodec{}), false)
		require.NoError(t, err)
		writers[i] = w
	}
	cfg := Config{
		P:                     3,
		InitialScale:          4,
		ResizeScale:           2,
		MaxPartitionFillRatio: 0.75,
		MaxTableItems:         1 << 10,
		PairMode:              true,
		KeyOf:                 func(item interface{}) interface{} { return item.(Pair).Key },
		ValueOf:               func(item interface{}) interface{} { return item.(Pair).Value },
		Reduce:                intPairSum,
		Hash:                  func(key interface{}) uint64 { return uint64(key.(int)) },
	}
	tbl, err := NewChaining(cfg, writers)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, tbl.Insert(Pair{Key: i % mod, Value: 1}))
	}
	require.NoError(t, tbl.CloseEmitters())
	for _, f := range files {
		require.NoError(t, f.Close())
	}

	sums := map[int]int{}
	for _, f := range files {
		r := f.GetReader(NewPairCodec(block.IntCodec{}, block.IntCodec{}), false)
		for r.HasNext() {
			v, err := r.Next()
			require.NoError(t, err)
			p := v.(Pair)
			sums[p.Key.(int)] += p.Value.(int)
		}
	}
	require.Len(t, sums, mod)
	total := 0
	for _, v := range sums {
		total += v
	}
	require.Equal(t, n, total)
}

// TestReduceConfigSweep is spec.md §8's second quantified property: for
// reduce-table configurations drawn from P, init_scale, and max_items'
// own parameter sets, S4-style reduce-by-key-with-sum holds. Covers both
// Probing and Chaining.
func TestReduceConfigSweep(t *testing.T) {
	const n = 1 << 12
	const mod = 50

	ps := []int{1, 2, 3, 8, 32}
	initScales := []int{2, 5, 10}
	maxItems := []int{256, 4096}

	for _, p := range ps {
		for _, initScale := range initScales {
			for _, mi := range maxItems {
				p, initScale, mi := p, initScale, mi
				for _, variant := range []string{"probing", "chaining"} {
					variant := variant
					t.Run(fmt.Sprintf("variant=%s/P=%d/initScale=%d/maxItems=%d", variant, p, initScale, mi), func(t *testing.T) {
						pool := blockpool.New(nil)
						writers, files := newWriters(t, p, pool)
						for i, f := range files {
							w, err := f.GetWriter(pool, 256, NewPairCodec(block.IntCodec{}, block.IntCodec{}), false)
							require.NoError(t, err)
							writers[i] = w
						}
						cfg := Config{
							P:                     p,
							Sentinel:              -1,
							InitialScale:          initScale,
							ResizeScale:           2,
							MaxPartitionFillRatio: 0.75,
							MaxTableItems:         mi,
							PairMode:              true,
							KeyOf:                 func(item interface{}) interface{} { return item.(Pair).Key },
							ValueOf:               func(item interface{}) interface{} { return item.(Pair).Value },
							Reduce:                intPairSum,
							Hash:                  func(key interface{}) uint64 { return uint64(key.(int)) },
						}
						var tbl Table
						var err error
						if variant == "probing" {
							tbl, err = NewProbing(cfg, writers)
						} else {
							tbl, err = NewChaining(cfg, writers)
						}
						require.NoError(t, err)

						for i := 0; i < n; i++ {
							require.NoError(t, tbl.Insert(Pair{Key: i % mod, Value: 1}))
						}
						require.NoError(t, tbl.CloseEmitters())
						for _, f := range files {
							require.NoError(t, f.Close())
						}

						sums := map[int]int{}
						for _, f := range files {
							r := f.GetReader(NewPairCodec(block.IntCodec{}, block.IntCodec{}), false)
							for r.HasNext() {
								v, err := r.Next()
								require.NoError(t, err)
								pair := v.(Pair)
								sums[pair.Key.(int)] += pair.Value.(int)
							}
						}
						require.Len(t, sums, mod)
						total := 0
						for _, v := range sums {
							total += v
						}
						require.Equal(t, n, total)
					})
				}
			}
		}
	}
}

func TestProbingSentinelViolation(t *testing.T) {
	pool := blockpool.New(nil)
	writers, _ := newWriters(t, 1, pool)
	cfg := Config{
		P:            1,
		Sentinel:     -1,
		InitialScale: 4,
		ResizeScale:  2,
		KeyOf:        func(item interface{}) interface{} { return item },
		ValueOf:      func(item interface{}) interface{} { return item },
		Reduce:       intPairSum,
		Hash:         func(key interface{}) uint64 { return uint64(key.(int)) },
	}
	tbl, err := NewProbing(cfg, writers)
	require.NoError(t, err)
	err = tbl.Insert(-1)
	require.Error(t, err)
}
