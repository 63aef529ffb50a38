package block

import (
	"encoding/binary"
	"io"
	"math"
)

// Codec is the item-serialization capability interface of spec §9's
// design notes: "item serialization as a capability interface
// {write(item, sink), read(source) -> item, fixed_size?}, keyed on the
// item type." This module predates generics in the teacher's own
// toolchain (go-sif targets Go 1.15), so items travel as interface{}
// and callers are expected to know which Codec matches which Go type —
// exactly how the teacher's sif.Schema/sif.ColumnType pair works.
type Codec interface {
	// TypeID is a stable identity string for this type, hashed for
	// self-verify prefixes (spec §4.2).
	TypeID() string
	// Write serializes x to w.
	Write(x interface{}, w io.Writer) error
	// Read deserializes one item from r.
	Read(r io.Reader) (interface{}, error)
	// FixedSize reports the item's encoded size when constant, enabling
	// File.GetReaderAt's arithmetic-skip fast path (spec §4.3).
	FixedSize() (size int, ok bool)
}

// IntCodec serializes Go ints as fixed 8-byte little-endian int64s.
type IntCodec struct{}

func (IntCodec) TypeID() string { return "sif.int" }

func (IntCodec) Write(x interface{}, w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(x.(int)))
	_, err := w.Write(buf[:])
	return err
}

func (IntCodec) Read(r io.Reader) (interface{}, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	return int(int64(binary.LittleEndian.Uint64(buf[:]))), nil
}

func (IntCodec) FixedSize() (int, bool) { return 8, true }

// StringCodec serializes Go strings as a varint length prefix followed
// by the raw bytes.
type StringCodec struct{}

func (StringCodec) TypeID() string { return "sif.string" }

func (StringCodec) Write(x interface{}, w io.Writer) error {
	s := x.(string)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func (StringCodec) Read(r io.Reader) (interface{}, error) {
	n, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (StringCodec) FixedSize() (int, bool) { return 0, false }

// StringIntPair is the pair<string,int> item type used by the
// property tests in spec §8.
type StringIntPair struct {
	Key   string
	Value int
}

// StringIntPairCodec serializes StringIntPair values.
type StringIntPairCodec struct{}

func (StringIntPairCodec) TypeID() string { return "sif.pair<string,int>" }

func (StringIntPairCodec) Write(x interface{}, w io.Writer) error {
	p := x.(StringIntPair)
	if err := (StringCodec{}).Write(p.Key, w); err != nil {
		return err
	}
	return (IntCodec{}).Write(p.Value, w)
}

func (StringIntPairCodec) Read(r io.Reader) (interface{}, error) {
	k, err := (StringCodec{}).Read(r)
	if err != nil {
		return nil, err
	}
	v, err := (IntCodec{}).Read(r)
	if err != nil {
		return nil, err
	}
	return StringIntPair{Key: k.(string), Value: v.(int)}, nil
}

func (StringIntPairCodec) FixedSize() (int, bool) { return 0, false }

// IntStringFloatTuple is the tuple<int,string,double> item type used by
// the property tests in spec §8.
type IntStringFloatTuple struct {
	A int
	B string
	C float64
}

// IntStringFloatTupleCodec serializes IntStringFloatTuple values.
type IntStringFloatTupleCodec struct{}

func (IntStringFloatTupleCodec) TypeID() string { return "sif.tuple<int,string,double>" }

func (IntStringFloatTupleCodec) Write(x interface{}, w io.Writer) error {
	t := x.(IntStringFloatTuple)
	if err := (IntCodec{}).Write(t.A, w); err != nil {
		return err
	}
	if err := (StringCodec{}).Write(t.B, w); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(t.C))
	_, err := w.Write(buf[:])
	return err
}

func (IntStringFloatTupleCodec) Read(r io.Reader) (interface{}, error) {
	a, err := (IntCodec{}).Read(r)
	if err != nil {
		return nil, err
	}
	b, err := (StringCodec{}).Read(r)
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	c := math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))
	return IntStringFloatTuple{A: a.(int), B: b.(string), C: c}, nil
}

func (IntStringFloatTupleCodec) FixedSize() (int, bool) { return 0, false }

// byteReader adapts an io.Reader to io.ByteReader for binary.ReadUvarint,
// one byte at a time — acceptable here since item headers are a handful
// of bytes, not a hot inner loop.
type byteReader struct {
	io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b, buf[:])
	return buf[0], err
}
