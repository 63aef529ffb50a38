// Package wire defines the fixed stream-block header that the channel
// multiplexer (C5) prefixes to every block it sends over a Group
// connection, per spec §4.5 and §9's packed wire format.
package wire

import "encoding/binary"

// HeaderSize is the packed, little-endian, fixed encoding of Header: six
// unsigned fields, no padding (spec §9).
const HeaderSize = 28

// Header precedes every block transmitted by the multiplexer.
// A header with NumBytes == 0 && NumItems == 0 is the end-of-stream
// marker for (ChannelID, SenderWorkerRank, ReceiverLocalWorkerID).
type Header struct {
	ChannelID             uint64
	SenderWorkerRank      uint32
	ReceiverLocalWorkerID uint32
	NumBytes              uint32
	NumItems              uint32
	FirstItemOffset       uint32
}

// IsEndOfStream reports whether h is the end-of-stream marker.
func (h Header) IsEndOfStream() bool {
	return h.NumBytes == 0 && h.NumItems == 0
}

// EndOfStream builds the end-of-stream marker header for the given
// (channel, sender, receiver) triple.
func EndOfStream(channelID uint64, sender, receiver uint32) Header {
	return Header{ChannelID: channelID, SenderWorkerRank: sender, ReceiverLocalWorkerID: receiver}
}

// Encode writes h into buf, which must be at least HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.ChannelID)
	binary.LittleEndian.PutUint32(buf[8:12], h.SenderWorkerRank)
	binary.LittleEndian.PutUint32(buf[12:16], h.ReceiverLocalWorkerID)
	binary.LittleEndian.PutUint32(buf[16:20], h.NumBytes)
	binary.LittleEndian.PutUint32(buf[20:24], h.NumItems)
	binary.LittleEndian.PutUint32(buf[24:28], h.FirstItemOffset)
}

// Decode reads a Header out of buf, which must be at least HeaderSize bytes.
func Decode(buf []byte) Header {
	return Header{
		ChannelID:             binary.LittleEndian.Uint64(buf[0:8]),
		SenderWorkerRank:      binary.LittleEndian.Uint32(buf[8:12]),
		ReceiverLocalWorkerID: binary.LittleEndian.Uint32(buf[12:16]),
		NumBytes:              binary.LittleEndian.Uint32(buf[16:20]),
		NumItems:              binary.LittleEndian.Uint32(buf[20:24]),
		FirstItemOffset:       binary.LittleEndian.Uint32(buf[24:28]),
	}
}
