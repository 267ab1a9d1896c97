package strategy

import (
	"math"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

const (
	meanReversionLookback  = 20
	meanReversionThreshold = 2.0
)

// MeanReversion goes long when the close is significantly below its trailing
// mean and short when it is significantly above, where "significantly" is
// measured in multiples of the trailing standard deviation.
type MeanReversion struct {
	lookback  int
	threshold float64
	meta      Meta
}

// NewMeanReversion builds a MeanReversion strategy. lookback is the number of
// prior candles used to compute the rolling mean and standard deviation;
// threshold is how many standard deviations away from that mean a close must
// sit before a signal fires. Zero values fall back to the package defaults.
func NewMeanReversion(lookback int, threshold float64, meta Meta) *MeanReversion {
	if lookback <= 1 {
		lookback = meanReversionLookback
	}
	if threshold <= 0 {
		threshold = meanReversionThreshold
	}
	return &MeanReversion{lookback: lookback, threshold: threshold, meta: meta}
}

func (mr *MeanReversion) Meta() Meta { return mr.meta }

// GenerateSignals computes, for every candle with at least lookback prior
// candles available, the z-score of its close against the trailing window's
// mean and standard deviation. A close more than threshold sigma below the
// mean is a long call; more than threshold sigma above is a short call.
// Candles without enough history get 0.
func (mr *MeanReversion) GenerateSignals(candles []domain.Candle) ([]int8, error) {
	out := make([]int8, len(candles))
	for i := range candles {
		if i < mr.lookback {
			continue
		}
		window := candles[i-mr.lookback : i]
		avg, std := meanStdDev(window)
		if std == 0 {
			continue
		}
		deviation := (candles[i].Close - avg) / std
		switch {
		case deviation <= -mr.threshold:
			out[i] = 1
		case deviation >= mr.threshold:
			out[i] = -1
		}
	}
	return out, nil
}

func meanStdDev(window []domain.Candle) (avg, std float64) {
	if len(window) == 0 {
		return 0, 0
	}
	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	avg = sum / float64(len(window))

	var sqDiff float64
	for _, c := range window {
		d := c.Close - avg
		sqDiff += d * d
	}
	std = math.Sqrt(sqDiff / float64(len(window)))
	return avg, std
}
