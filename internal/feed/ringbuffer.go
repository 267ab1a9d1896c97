package feed

import (
	"sync"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// ringBufferCapacity bounds the in-memory 1-minute candle history kept per
// asset. Older candles are still queryable from internal/store/postgres's
// CandleStore; the ring buffer only serves the live tail.
const ringBufferCapacity = 5000

// ringBuffer is a bounded FIFO of 1-minute candles for a single asset,
// guarded by one mutex so concurrent StartPolling writes and Candles reads
// never race.
type ringBuffer struct {
	mu      sync.Mutex
	candles []domain.Candle
}

func newRingBuffer() *ringBuffer {
	return &ringBuffer{candles: make([]domain.Candle, 0, ringBufferCapacity)}
}

// push appends c, evicting the oldest entry once capacity is reached.
func (rb *ringBuffer) push(c domain.Candle) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.candles) >= ringBufferCapacity {
		rb.candles = rb.candles[1:]
	}
	rb.candles = append(rb.candles, c)
}

// snapshot returns a copy of the buffered candles, oldest first.
func (rb *ringBuffer) snapshot() []domain.Candle {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]domain.Candle, len(rb.candles))
	copy(out, rb.candles)
	return out
}

// len returns the number of candles currently buffered.
func (rb *ringBuffer) len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.candles)
}

// last returns the most recently pushed candle and whether one exists.
func (rb *ringBuffer) last() (domain.Candle, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.candles) == 0 {
		return domain.Candle{}, false
	}
	return rb.candles[len(rb.candles)-1], true
}
