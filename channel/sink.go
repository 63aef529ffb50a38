package channel

import (
	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/group"
	"github.com/sifdata/sif/internal/wire"
)

// netSink is a block.Sink that frames each appended block behind a
// wire.Header and ships it across a group.Conn to a remote worker
// (spec §4.5's wire framing).
type netSink struct {
	conn             group.Conn
	channelID        uint64
	senderWorkerRank uint32
	receiverLocalID  uint32
	closed           bool
}

func (s *netSink) AppendBlock(vb block.Virtual) error {
	defer vb.Drop()
	payload := vb.Bytes()
	h := wire.Header{
		ChannelID:             s.channelID,
		SenderWorkerRank:      s.senderWorkerRank,
		ReceiverLocalWorkerID: s.receiverLocalID,
		NumBytes:              uint32(len(payload)),
		NumItems:              uint32(vb.NItems),
		FirstItemOffset:       uint32(vb.FirstItemOffset - vb.Begin),
	}
	buf := make([]byte, wire.HeaderSize+len(payload))
	h.Encode(buf[:wire.HeaderSize])
	copy(buf[wire.HeaderSize:], payload)
	return s.conn.AsyncSendBytes(buf)
}

func (s *netSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	h := wire.EndOfStream(s.channelID, s.senderWorkerRank, s.receiverLocalID)
	buf := make([]byte, wire.HeaderSize)
	h.Encode(buf)
	return s.conn.AsyncSendBytes(buf)
}

var _ block.Sink = (*netSink)(nil)
