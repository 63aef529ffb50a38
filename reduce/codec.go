package reduce

import "io"

// PairCodec adapts a key codec and a value codec into a block.Codec for
// Pair, used when a table runs in PairMode (spec §4.6's "reduce
// consumer is a reduce-pair" case, where the emitter sends the whole
// pair instead of re-extracting the key downstream).
type PairCodec struct {
	Key   codec
	Value codec
}

// codec is the minimal slice of block.Codec this adapter needs; it is
// declared locally (rather than importing block.Codec's fuller
// interface) so reduce stays free to be used with any Write/Read pair,
// including the block package's own codecs which satisfy it structurally.
type codec interface {
	Write(x interface{}, w io.Writer) error
	Read(r io.Reader) (interface{}, error)
}

// NewPairCodec builds a PairCodec from a key and value codec.
func NewPairCodec(key, value codec) PairCodec {
	return PairCodec{Key: key, Value: value}
}

func (PairCodec) TypeID() string { return "sif.reduce.pair" }

func (c PairCodec) Write(x interface{}, w io.Writer) error {
	p := x.(Pair)
	if err := c.Key.Write(p.Key, w); err != nil {
		return err
	}
	return c.Value.Write(p.Value, w)
}

func (c PairCodec) Read(r io.Reader) (interface{}, error) {
	k, err := c.Key.Read(r)
	if err != nil {
		return nil, err
	}
	v, err := c.Value.Read(r)
	if err != nil {
		return nil, err
	}
	return Pair{Key: k, Value: v}, nil
}

// FixedSize reports no fixed size: Pair widths depend on the wrapped
// codecs, and File.GetReaderAt's arithmetic-skip path only matters for
// File-backed replay, not the channel-fed reduce emitters.
func (PairCodec) FixedSize() (int, bool) { return 0, false }
