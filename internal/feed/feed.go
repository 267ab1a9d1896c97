// Package feed is the market data feed: it polls a benchmark price source on
// a fixed interval, builds 1-minute OHLCV candles in an in-memory ring
// buffer per asset, and answers LatestPrice queries with an oracle/HTTP
// fallback chain when the ring buffer is empty, and Candles queries from the
// persisted candle store merged with the ring buffer.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// OracleReader is the subset of chainreader.Reader the feed needs for its
// fallback path.
type OracleReader interface {
	IndexPrice(ctx context.Context, asset string) (float64, error)
}

type Feed struct {
	benchmark   *BenchmarkClient
	oracle      OracleReader
	priceCache  domain.PriceCache
	candleStore domain.CandleStore
	assets      []string
	logger      *slog.Logger

	mu      sync.Mutex
	buffers map[string]*ringBuffer
	pending map[string]*domain.Candle // in-progress 1m candle per asset
}

// New builds a Feed polling the given assets (uppercase symbols, e.g. "BTC").
func New(benchmark *BenchmarkClient, oracle OracleReader, priceCache domain.PriceCache, candleStore domain.CandleStore, assets []string, logger *slog.Logger) *Feed {
	buffers := make(map[string]*ringBuffer, len(assets))
	for _, a := range assets {
		buffers[a] = newRingBuffer()
	}
	return &Feed{
		benchmark:   benchmark,
		oracle:      oracle,
		priceCache:  priceCache,
		candleStore: candleStore,
		assets:      assets,
		logger:      logger.With(slog.String("component", "feed")),
		buffers:     buffers,
		pending:     make(map[string]*domain.Candle),
	}
}

func (f *Feed) bufferFor(asset string) *ringBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	rb, ok := f.buffers[asset]
	if !ok {
		rb = newRingBuffer()
		f.buffers[asset] = rb
	}
	return rb
}

// LatestPrice resolves the current price for asset: ring buffer's latest
// close, then the on-chain oracle, then the benchmark HTTP source. Returns
// a 0.0 sentinel (no error) if every source fails, matching the original
// feed's total-failure behavior — callers must treat 0.0 as "no price".
func (f *Feed) LatestPrice(ctx context.Context, asset string) (float64, error) {
	if c, ok := f.bufferFor(asset).last(); ok {
		return c.Close, nil
	}

	if f.oracle != nil {
		if p, err := f.oracle.IndexPrice(ctx, asset); err == nil {
			return p, nil
		}
	}

	if f.benchmark != nil {
		p, err := f.benchmark.LatestPrice(ctx, asset)
		if err == nil {
			return p, nil
		}
		f.logger.WarnContext(ctx, "benchmark price fetch failed",
			slog.String("asset", asset), slog.String("error", err.Error()))
	}

	return 0.0, nil
}

// Candles returns up to limit candles for asset at the given timeframe,
// merging persisted history with the live ring buffer and resampling for
// timeframes coarser than 1m.
func (f *Feed) Candles(ctx context.Context, asset, timeframe string, limit int) ([]domain.Candle, error) {
	base, err := f.baseCandles(ctx, asset, limit)
	if err != nil {
		return nil, err
	}
	if timeframe == "1m" || timeframe == "" {
		return tail(base, limit), nil
	}

	bucket, err := timeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	return tail(resample(base, bucket), limit), nil
}

// baseCandles merges persisted 1m candles with the live ring buffer,
// favoring the ring buffer for any timestamp both cover.
func (f *Feed) baseCandles(ctx context.Context, asset string, limit int) ([]domain.Candle, error) {
	var persisted []domain.Candle
	if f.candleStore != nil {
		var err error
		persisted, err = f.candleStore.List(ctx, asset, "1m", limit)
		if err != nil {
			return nil, fmt.Errorf("feed: loading persisted candles for %s: %w", asset, err)
		}
	}
	live := f.bufferFor(asset).snapshot()

	byTs := make(map[int64]domain.Candle, len(persisted)+len(live))
	for _, c := range persisted {
		byTs[c.Timestamp.Unix()] = c
	}
	for _, c := range live {
		byTs[c.Timestamp.Unix()] = c
	}

	merged := make([]domain.Candle, 0, len(byTs))
	for _, c := range byTs {
		merged = append(merged, c)
	}
	sortCandles(merged)
	return merged, nil
}

// StartPolling runs until ctx is cancelled, fetching the benchmark price for
// every configured asset on each tick and folding it into the in-progress
// 1-minute candle. On a minute-boundary transition the in-progress candle is
// closed, pushed to the ring buffer, and persisted.
func (f *Feed) StartPolling(ctx context.Context, interval time.Duration) error {
	f.logger.InfoContext(ctx, "market data feed polling started",
		slog.Duration("interval", interval), slog.Any("assets", f.assets))

	f.pollOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.InfoContext(ctx, "market data feed polling stopped")
			return nil
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *Feed) pollOnce(ctx context.Context) {
	now := time.Now().UTC()
	minute := now.Truncate(time.Minute)

	for _, asset := range f.assets {
		price, err := f.benchmark.LatestPrice(ctx, asset)
		if err != nil {
			f.logger.WarnContext(ctx, "benchmark poll failed",
				slog.String("asset", asset), slog.String("error", err.Error()))
			continue
		}

		if f.priceCache != nil {
			if err := f.priceCache.SetPrice(ctx, asset, price, now); err != nil {
				f.logger.WarnContext(ctx, "price cache write failed",
					slog.String("asset", asset), slog.String("error", err.Error()))
			}
		}

		f.foldTick(ctx, asset, price, minute)
	}
}

// foldTick updates the in-progress candle for asset with a new price
// observation, closing and persisting the previous candle if minute has
// advanced past it.
func (f *Feed) foldTick(ctx context.Context, asset string, price float64, minute time.Time) {
	f.mu.Lock()
	cur, ok := f.pending[asset]
	if !ok || !cur.Timestamp.Equal(minute) {
		if ok {
			closed := *cur
			f.mu.Unlock()
			f.closeCandle(ctx, asset, closed)
			f.mu.Lock()
		}
		f.pending[asset] = &domain.Candle{
			Timestamp: minute,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1,
		}
		f.mu.Unlock()
		return
	}

	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
	cur.Volume++
	f.mu.Unlock()
}

// StartStreaming runs an optional push-price client, folding every received
// tick into the same in-progress-candle machinery StartPolling uses. Use
// this instead of (or alongside) StartPolling when the benchmark source
// exposes a WebSocket stream.
func (f *Feed) StartStreaming(ctx context.Context, client *PriceStreamClient) error {
	client.OnTick(func(tick PriceTick) {
		if f.priceCache != nil {
			_ = f.priceCache.SetPrice(ctx, tick.Asset, tick.Price, tick.Timestamp)
		}
		f.foldTick(ctx, tick.Asset, tick.Price, tick.Timestamp.Truncate(time.Minute))
	})
	return client.Run(ctx)
}

// BufferSizes reports the current ring buffer occupancy per asset, for the
// scheduler's health_loop to log.
func (f *Feed) BufferSizes() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.buffers))
	for asset, rb := range f.buffers {
		out[asset] = rb.len()
	}
	return out
}

func (f *Feed) closeCandle(ctx context.Context, asset string, c domain.Candle) {
	f.bufferFor(asset).push(c)
	if f.candleStore == nil {
		return
	}
	if err := f.candleStore.Insert(ctx, asset, "1m", c); err != nil {
		f.logger.WarnContext(ctx, "candle persist failed",
			slog.String("asset", asset), slog.String("error", err.Error()))
	}
}
