package strategy

import "github.com/atlasxyz/vaultrunner/internal/domain"

const (
	breakoutLookback   = 24
	breakoutNoiseAtrMu = 0.5
)

// TrendBreakout goes long when the close clears the highest high of the
// trailing window by more than a noise buffer, and short when it breaks
// below the trailing lowest low by the same margin. The buffer is sized off
// the window's average true range so the strategy does not fire on ordinary
// intrabar noise.
type TrendBreakout struct {
	lookback int
	noiseMul float64
	meta     Meta
}

// NewTrendBreakout builds a TrendBreakout strategy. lookback is the number of
// prior candles defining the channel; noiseMul scales the average true range
// used as the breakout buffer. Zero values fall back to the package
// defaults.
func NewTrendBreakout(lookback int, noiseMul float64, meta Meta) *TrendBreakout {
	if lookback <= 1 {
		lookback = breakoutLookback
	}
	if noiseMul <= 0 {
		noiseMul = breakoutNoiseAtrMu
	}
	return &TrendBreakout{lookback: lookback, noiseMul: noiseMul, meta: meta}
}

func (tb *TrendBreakout) Meta() Meta { return tb.meta }

// GenerateSignals computes, for every candle with at least lookback prior
// candles available, the trailing channel high/low and average true range,
// then calls a breakout long or short if the close clears the channel by
// more than noiseMul*ATR. Candles without enough history get 0.
func (tb *TrendBreakout) GenerateSignals(candles []domain.Candle) ([]int8, error) {
	out := make([]int8, len(candles))
	for i := range candles {
		if i < tb.lookback {
			continue
		}
		window := candles[i-tb.lookback : i]
		hi, lo := channelHighLow(window)
		atr := averageTrueRange(window)
		buffer := tb.noiseMul * atr

		close := candles[i].Close
		switch {
		case close > hi+buffer:
			out[i] = 1
		case close < lo-buffer:
			out[i] = -1
		}
	}
	return out, nil
}

func channelHighLow(window []domain.Candle) (hi, lo float64) {
	if len(window) == 0 {
		return 0, 0
	}
	hi, lo = window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return hi, lo
}

// averageTrueRange computes the mean true range over window, using each
// candle's own high/low (a simplified range measure, not Wilder's
// close-anchored true range, since the candle feed here carries no
// guaranteed-continuous prior close across gaps).
func averageTrueRange(window []domain.Candle) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, c := range window {
		sum += c.High - c.Low
	}
	return sum / float64(len(window))
}
