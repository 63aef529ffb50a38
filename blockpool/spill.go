package blockpool

import (
	"fmt"
	"sync"

	"github.com/docker/docker/pkg/locker"
	"github.com/klauspost/compress/zstd"
)

// ZstdSpiller is a reference Spiller that keeps evicted blocks
// zstd-compressed in memory, adapted from the teacher's
// internal/pcache LRU's compressed tier (internal/pcache/cache.go) down
// to the part the block pool actually needs: compress-on-offer,
// decompress-on-reclaim. Unlike the teacher's LRU it does not also
// manage an uncompressed hot tier or a disk tier of its own — Pool
// already holds the hot, uncompressed copy; ZstdSpiller is purely the
// "swapped out" tier. Per-id locking mirrors the teacher's plocks: two
// Offers for different ids never block each other, only a racing
// Offer/Reclaim pair on the same id does.
type ZstdSpiller struct {
	idLocks    *locker.Locker
	mapMu      sync.Mutex
	compressed map[string][]byte
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
}

// NewZstdSpiller builds a ZstdSpiller.
func NewZstdSpiller() (*ZstdSpiller, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("blockpool: unable to initialize zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blockpool: unable to initialize zstd decoder: %w", err)
	}
	return &ZstdSpiller{
		idLocks:    locker.New(),
		compressed: make(map[string][]byte),
		encoder:    enc,
		decoder:    dec,
	}, nil
}

// Offer compresses buf and retains it under id.
func (s *ZstdSpiller) Offer(id string, buf []byte) error {
	s.idLocks.Lock(id)
	defer s.idLocks.Unlock(id)
	encoded := s.encoder.EncodeAll(buf, nil)
	s.mapMu.Lock()
	s.compressed[id] = encoded
	s.mapMu.Unlock()
	return nil
}

// Reclaim decompresses and returns the block previously offered under id.
func (s *ZstdSpiller) Reclaim(id string) ([]byte, error) {
	s.idLocks.Lock(id)
	defer s.idLocks.Unlock(id)
	s.mapMu.Lock()
	data, ok := s.compressed[id]
	if ok {
		delete(s.compressed, id)
	}
	s.mapMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blockpool: no spilled block %q", id)
	}
	// DecodeAll, unlike Reset+Read, is documented safe to call
	// concurrently on one shared *zstd.Decoder — two Reclaims on
	// different ids must not serialize on decoder state.
	return s.decoder.DecodeAll(data, nil)
}
