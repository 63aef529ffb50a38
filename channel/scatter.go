package channel

import (
	"github.com/sifdata/sif/block"
	"github.com/sifdata/sif/serr"
	"github.com/sifdata/sif/vfile"
)

// Scatter sends, for each destination worker w, the range of items of
// sourceFile between offsets[w-1] (or 0) and offsets[w] to worker w,
// preferring the zero-copy GetItemRange path, then closes that
// destination's writer (spec §4.5). Precondition: len(offsets) equals
// the worker count and offsets is monotonic non-decreasing.
func Scatter(c *Channel, sourceFile *vfile.File, offsets []int, codec block.Codec, selfVerify bool) error {
	if len(offsets) != c.mp.numWorkers() {
		return serr.New(serr.InvalidArgument, "channel.Scatter", nil)
	}
	for w := 1; w < len(offsets); w++ {
		if offsets[w] < offsets[w-1] {
			return serr.New(serr.InvalidArgument, "channel.Scatter", nil)
		}
	}
	sinks := c.OutboundSinks()
	begin := 0
	for w, sink := range sinks {
		end := offsets[w]
		if end > begin {
			vbs, err := sourceFile.GetItemRange(begin, end, codec, selfVerify)
			if err != nil {
				return err
			}
			for _, vb := range vbs {
				if err := sink.AppendBlock(vb); err != nil {
					return err
				}
			}
		}
		if err := sink.Close(); err != nil {
			return err
		}
		begin = end
	}
	return nil
}
