package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// timeframeDuration maps a candle timeframe token to its bucket width.
func timeframeDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h", "1H":
		return time.Hour, nil
	case "4h", "4H":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("feed: unknown timeframe %q", timeframe)
	}
}

func sortCandles(candles []domain.Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

// resample aggregates 1m candles (already sorted ascending) into buckets of
// the given width: first open, max high, min low, last close, summed
// volume.
func resample(candles []domain.Candle, bucket time.Duration) []domain.Candle {
	if len(candles) == 0 {
		return nil
	}

	out := make([]domain.Candle, 0, len(candles))
	var cur domain.Candle
	var bucketStart time.Time
	open := false

	for _, c := range candles {
		ts := c.Timestamp.Truncate(bucket)
		if !open || !ts.Equal(bucketStart) {
			if open {
				out = append(out, cur)
			}
			bucketStart = ts
			cur = domain.Candle{
				Timestamp: ts,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			open = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// tail returns the last n elements of candles (or all of them if n <= 0 or
// n >= len(candles)).
func tail(candles []domain.Candle, n int) []domain.Candle {
	if n <= 0 || n >= len(candles) {
		return candles
	}
	return candles[len(candles)-n:]
}
