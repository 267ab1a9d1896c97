package strategy

import (
	"testing"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func flatCandles(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	base := time.Now().UTC()
	for i := range out {
		out[i] = domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1,
		}
	}
	return out
}

func TestMeanReversionNotEnoughHistory(t *testing.T) {
	mr := NewMeanReversion(20, 2.0, Meta{Asset: "BTC"})
	candles := flatCandles(5, 100)
	out, err := mr.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("index %d: expected 0 with insufficient history, got %d", i, s)
		}
	}
}

func TestMeanReversionFiresLongOnDip(t *testing.T) {
	mr := NewMeanReversion(5, 2.0, Meta{Asset: "BTC"})
	candles := flatCandles(5, 100)
	// Spike in variance so std isn't degenerate, then a deep dip.
	candles[2].Close = 105
	candles[3].Close = 95
	dip := domain.Candle{Timestamp: time.Now().UTC(), Open: 100, High: 100, Low: 50, Close: 50}
	candles = append(candles, dip)

	out, err := mr.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[len(out)-1] != 1 {
		t.Fatalf("expected long signal on deep dip, got %d", out[len(out)-1])
	}
}

func TestMeanReversionOutputLengthMatchesInput(t *testing.T) {
	mr := NewMeanReversion(20, 2.0, Meta{Asset: "BTC"})
	candles := flatCandles(50, 100)
	out, err := mr.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(candles) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(candles))
	}
}
