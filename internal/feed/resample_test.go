package feed

import (
	"testing"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func minuteCandle(minute int, open, high, low, close, volume float64) domain.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Candle{
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Open:      open, High: high, Low: low, Close: close, Volume: volume,
	}
}

func TestResampleAggregatesOHLCV(t *testing.T) {
	candles := []domain.Candle{
		minuteCandle(0, 100, 105, 95, 102, 10),
		minuteCandle(1, 102, 110, 101, 108, 20),
		minuteCandle(2, 108, 109, 90, 95, 5),
		minuteCandle(5, 95, 96, 94, 96, 1),
	}

	out := resample(candles, 5*time.Minute)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}

	first := out[0]
	if first.Open != 100 {
		t.Errorf("Open = %v, want 100", first.Open)
	}
	if first.High != 110 {
		t.Errorf("High = %v, want 110", first.High)
	}
	if first.Low != 90 {
		t.Errorf("Low = %v, want 90", first.Low)
	}
	if first.Close != 95 {
		t.Errorf("Close = %v, want 95", first.Close)
	}
	if first.Volume != 35 {
		t.Errorf("Volume = %v, want 35", first.Volume)
	}

	second := out[1]
	if second.Open != 95 || second.Close != 96 {
		t.Errorf("unexpected second bucket: %+v", second)
	}
}

func TestResampleEmptyInput(t *testing.T) {
	if out := resample(nil, time.Hour); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}

func TestTimeframeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m": time.Minute, "5m": 5 * time.Minute, "15m": 15 * time.Minute,
		"1h": time.Hour, "1H": time.Hour, "4h": 4 * time.Hour, "1d": 24 * time.Hour,
	}
	for tf, want := range cases {
		got, err := timeframeDuration(tf)
		if err != nil {
			t.Fatalf("timeframeDuration(%q): %v", tf, err)
		}
		if got != want {
			t.Errorf("timeframeDuration(%q) = %v, want %v", tf, got, want)
		}
	}
	if _, err := timeframeDuration("bogus"); err == nil {
		t.Fatal("expected error for unknown timeframe")
	}
}

func TestTail(t *testing.T) {
	candles := []domain.Candle{minuteCandle(0, 1, 1, 1, 1, 1), minuteCandle(1, 2, 2, 2, 2, 1), minuteCandle(2, 3, 3, 3, 3, 1)}
	if got := tail(candles, 2); len(got) != 2 || got[0].Open != 2 {
		t.Fatalf("tail(candles, 2) = %+v", got)
	}
	if got := tail(candles, 0); len(got) != 3 {
		t.Fatalf("tail(candles, 0) = %+v, want full slice", got)
	}
}
