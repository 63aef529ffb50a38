package vfile_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/blockpool"
	"github.com/sifdata/sif/vfile"
)

// S1 — File round-trip. Write integers 0..15 to a file, read them
// back: the sequence equals 0..15 and num_items == 16.
func TestFileRoundTrip(t *testing.T) {
	pool := blockpool.New(nil)
	f := vfile.New()
	w, err := f.GetWriter(pool, 48, block.IntCodec{}, false)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		require.NoError(t, w.AppendItem(i))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	require.Equal(t, 16, f.NumItems())

	r := f.GetReader(block.IntCodec{}, false)
	got := make([]int, 0, 16)
	for r.HasNext() {
		v, err := r.Next()
		require.NoError(t, err)
		got = append(got, v.(int))
	}
	want := make([]int, 16)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, got)
}

func TestFileAppendAfterCloseFails(t *testing.T) {
	pool := blockpool.New(nil)
	f := vfile.New()
	w, err := f.GetWriter(pool, 48, block.IntCodec{}, false)
	require.NoError(t, err)
	require.NoError(t, w.AppendItem(1))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	err = f.AppendBlock(block.Virtual{})
	require.Error(t, err)
}

// GetReaderAt must return item i for any valid i < num_items, including
// via the fixed-size arithmetic-skip fast path.
func TestGetReaderAtArithmeticSkip(t *testing.T) {
	pool := blockpool.New(nil)
	f := vfile.New()
	w, err := f.GetWriter(pool, 48, block.IntCodec{}, false)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, w.AppendItem(i * 10))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	for _, i := range []int{0, 1, 37, 99} {
		r, err := f.GetReaderAt(i, block.IntCodec{}, false)
		require.NoError(t, err)
		v, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, i*10, v.(int))
	}
}

func TestGetReaderAtVariableSize(t *testing.T) {
	pool := blockpool.New(nil)
	f := vfile.New()
	w, err := f.GetWriter(pool, 48, block.StringCodec{}, false)
	require.NoError(t, err)
	in := []string{"zero", "one-longer", "two", "three-even-longer-string", "four"}
	for _, s := range in {
		require.NoError(t, w.AppendItem(s))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	for i, want := range in {
		r, err := f.GetReaderAt(i, block.StringCodec{}, false)
		require.NoError(t, err)
		v, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, want, v.(string))
	}
}

// S2 — item range zero-copy, through File.GetItemRange.
func TestFileGetItemRange(t *testing.T) {
	pool := blockpool.New(nil)
	f := vfile.New()
	w, err := f.GetWriter(pool, 40, block.IntCodec{}, false)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.NoError(t, w.AppendItem(i))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	vbs, err := f.GetItemRange(250, 750, block.IntCodec{}, false)
	require.NoError(t, err)

	src := &sliceSrc{blocks: vbs}
	r := block.NewReader(src, block.IntCodec{}, false)
	got := make([]int, 0, 500)
	for r.HasNext() {
		v, err := r.Next()
		require.NoError(t, err)
		got = append(got, v.(int))
	}
	want := make([]int, 500)
	for i := range want {
		want[i] = i + 250
	}
	require.Equal(t, want, got)
}

type sliceSrc struct {
	blocks []block.Virtual
	idx    int
}

func (s *sliceSrc) NextBlock() (block.Virtual, bool, error) {
	if s.idx >= len(s.blocks) {
		return block.Virtual{}, false, nil
	}
	vb := s.blocks[s.idx]
	s.idx++
	return vb, true, nil
}
