package strategy

import (
	"testing"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func TestTrendBreakoutNotEnoughHistory(t *testing.T) {
	tb := NewTrendBreakout(24, 0.5, Meta{Asset: "BTC"})
	candles := flatCandles(10, 100)
	out, err := tb.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("index %d: expected 0 with insufficient history, got %d", i, s)
		}
	}
}

func TestTrendBreakoutFiresLongOnUpsideBreak(t *testing.T) {
	tb := NewTrendBreakout(5, 0.5, Meta{Asset: "BTC"})
	candles := flatCandles(5, 100)
	brk := domain.Candle{Open: 100, High: 200, Low: 100, Close: 200}
	candles = append(candles, brk)

	out, err := tb.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[len(out)-1] != 1 {
		t.Fatalf("expected long signal on upside break, got %d", out[len(out)-1])
	}
}

func TestTrendBreakoutFiresShortOnDownsideBreak(t *testing.T) {
	tb := NewTrendBreakout(5, 0.5, Meta{Asset: "BTC"})
	candles := flatCandles(5, 100)
	brk := domain.Candle{Open: 100, High: 100, Low: 1, Close: 1}
	candles = append(candles, brk)

	out, err := tb.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[len(out)-1] != -1 {
		t.Fatalf("expected short signal on downside break, got %d", out[len(out)-1])
	}
}

func TestTrendBreakoutNoSignalInsideChannel(t *testing.T) {
	tb := NewTrendBreakout(5, 0.5, Meta{Asset: "BTC"})
	candles := flatCandles(6, 100)

	out, err := tb.GenerateSignals(candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[len(out)-1] != 0 {
		t.Fatalf("expected no signal inside channel, got %d", out[len(out)-1])
	}
}
