package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubOracle struct {
	price float64
	err   error
}

func (s *stubOracle) IndexPrice(ctx context.Context, asset string) (float64, error) {
	return s.price, s.err
}

func TestLatestPriceUsesRingBufferFirst(t *testing.T) {
	f := New(nil, &stubOracle{price: 999}, nil, nil, []string{"BTC"}, testLogger())
	f.bufferFor("BTC").push(domain.Candle{Timestamp: time.Now(), Close: 42})

	p, err := f.LatestPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 42 {
		t.Fatalf("LatestPrice = %v, want 42 (ring buffer value)", p)
	}
}

func TestLatestPriceFallsBackToOracle(t *testing.T) {
	f := New(nil, &stubOracle{price: 123}, nil, nil, []string{"BTC"}, testLogger())

	p, err := f.LatestPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 123 {
		t.Fatalf("LatestPrice = %v, want 123 (oracle value)", p)
	}
}

func TestLatestPriceSentinelOnTotalFailure(t *testing.T) {
	f := New(nil, &stubOracle{err: errors.New("boom")}, nil, nil, []string{"BTC"}, testLogger())

	p, err := f.LatestPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("expected no error on total failure, got %v", err)
	}
	if p != 0.0 {
		t.Fatalf("LatestPrice = %v, want 0.0 sentinel", p)
	}
}

func TestFoldTickClosesCandleOnMinuteBoundary(t *testing.T) {
	f := New(nil, nil, nil, nil, []string{"BTC"}, testLogger())
	ctx := context.Background()

	m0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.foldTick(ctx, "BTC", 100, m0)
	f.foldTick(ctx, "BTC", 105, m0)
	f.foldTick(ctx, "BTC", 95, m0)

	m1 := m0.Add(time.Minute)
	f.foldTick(ctx, "BTC", 110, m1)

	buffered := f.bufferFor("BTC").snapshot()
	if len(buffered) != 1 {
		t.Fatalf("expected 1 closed candle after minute rollover, got %d", len(buffered))
	}
	c := buffered[0]
	if c.Open != 100 || c.High != 105 || c.Low != 95 || c.Close != 95 || c.Volume != 3 {
		t.Fatalf("unexpected closed candle: %+v", c)
	}
}
