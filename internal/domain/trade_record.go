package domain

import "time"

// TradeSide is the directional side of a trade record.
type TradeSide string

const (
	TradeSideLong    TradeSide = "LONG"
	TradeSideShort   TradeSide = "SHORT"
	TradeSideNeutral TradeSide = "NEUTRAL" // a close
)

// TradeResultKind is the outcome of a trade attempt.
type TradeResultKind string

const (
	TradeResultSuccess TradeResultKind = "success"
	TradeResultFailed  TradeResultKind = "failed"
)

// TradeRecord is the persisted outcome of one trade attempt. TradeNum is
// strictly increasing per vault with no gaps (existing count + 1 at
// insert time).
type TradeRecord struct {
	ID           int64
	VaultAddress string
	StrategyID   *int64
	Side         TradeSide
	Asset        string
	Size         float64
	EntryPrice   float64
	Result       TradeResultKind
	TxHash       *string
	ErrorMessage *string
	Timestamp    time.Time
	TradeNum     int64
}
