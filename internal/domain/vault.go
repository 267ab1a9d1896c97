package domain

import "time"

// VaultStatus is the operational status of a registered vault.
type VaultStatus string

const (
	VaultStatusActive VaultStatus = "active"
	VaultStatusPaused VaultStatus = "paused"
)

// CheckInterval is one of the allowed scheduler intervals for a vault.
type CheckInterval string

const (
	Interval1m  CheckInterval = "1m"
	Interval5m  CheckInterval = "5m"
	Interval15m CheckInterval = "15m"
	Interval1h  CheckInterval = "1h"
	Interval4h  CheckInterval = "4h"
	Interval1d  CheckInterval = "1d"
)

// Seconds maps a CheckInterval token to its fixed second count. Unknown
// tokens default to 60s (same as the 1m interval), matching the scheduler's
// INTERVAL_SECONDS fallback.
func (c CheckInterval) Seconds() int64 {
	switch c {
	case Interval1m:
		return 60
	case Interval5m:
		return 300
	case Interval15m:
		return 900
	case Interval1h:
		return 3600
	case Interval4h:
		return 14400
	case Interval1d:
		return 86400
	default:
		return 60
	}
}

// Vault is an externally-deployed on-chain smart contract that holds
// depositor funds and exposes a guarded execTransaction interface to a
// designated trader. Address is always stored lowercased.
type Vault struct {
	Address       string
	StrategyID    *int64
	Status        VaultStatus
	CheckInterval CheckInterval
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VaultWithStrategy is a Vault joined to its linked Strategy, for the
// scheduler's main_loop query.
type VaultWithStrategy struct {
	Vault
	Strategy *Strategy
}
