package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		ChannelID:             42,
		SenderWorkerRank:      3,
		ReceiverLocalWorkerID: 1,
		NumBytes:              1024,
		NumItems:              7,
		FirstItemOffset:       16,
	}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	require.Equal(t, h, Decode(buf))
	require.False(t, h.IsEndOfStream())
}

func TestEndOfStreamMarker(t *testing.T) {
	h := EndOfStream(7, 2, 5)
	require.True(t, h.IsEndOfStream())
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	require.True(t, Decode(buf).IsEndOfStream())
}
