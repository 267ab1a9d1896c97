// Package strategy holds the statically-linked set of signal generators a
// vault can be assigned. Each implementation turns a window of OHLCV candles
// into a per-bar directional call; the executor and scheduler own everything
// about turning that call into an on-chain position.
package strategy

import "github.com/atlasxyz/vaultrunner/internal/domain"

// Meta describes the fixed, non-tunable facts about a strategy: what asset
// and timeframe it expects to be fed, and the risk bracket it was built for.
type Meta struct {
	Asset         string
	Timeframe     string
	StopLossPct   float64
	TakeProfitPct float64
}

// Strategy turns a candle history into a directional signal per bar.
//
// GenerateSignals is pure: given the same candles it must return the same
// output, and the returned slice is exactly len(candles) long, one entry per
// input candle, each in {-1, 0, 1}. Implementations must not retain a
// position across calls — the executor reconciles desired direction against
// the vault's actual on-chain position, so "no opinion yet" is 0, not "hold
// whatever I said last time".
type Strategy interface {
	Meta() Meta
	GenerateSignals(candles []domain.Candle) ([]int8, error)
}
