package domain

import "time"

// Signal is an ephemeral value object produced per scheduler tick. A signal
// is actionable iff Direction != 0.
type Signal struct {
	Direction    int8 // -1, 0, +1
	Confidence   float64
	SizePct      float64
	CurrentPrice float64
	StopPrice    *float64
	TakePrice    *float64
	Asset        string
	Timeframe    string
	StrategySlug string
	Reason       string
	CreatedAt    time.Time
}

// IsActionable reports whether the signal carries a tradeable direction.
func (s Signal) IsActionable() bool {
	return s.Direction != 0
}

// DirectionString renders the signal's direction for logging.
func (s Signal) DirectionString() string {
	switch {
	case s.Direction > 0:
		return "LONG"
	case s.Direction < 0:
		return "SHORT"
	default:
		return "NEUTRAL"
	}
}

// SignalLog is the persisted, audit-trail form of a Signal.
type SignalLog struct {
	ID           int64
	VaultAddress string
	StrategyID   *int64
	Signal       Signal
	CreatedAt    time.Time
}
