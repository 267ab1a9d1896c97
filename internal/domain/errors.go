package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// Order builder.
	ErrInvalidOrderArgument = errors.New("invalid order argument")

	// Trade executor error taxonomy. Each is either counted toward the
	// circuit breaker or not; see executor.CountsTowardBreaker.
	ErrTradingDisabled     = errors.New("trading disabled")
	ErrMissingSigningKey   = errors.New("missing trader private key")
	ErrUnknownMarket       = errors.New("unknown market for asset")
	ErrLongTokenMissing    = errors.New("long token not in vault supported-asset set")
	ErrInsufficientFunds   = errors.New("insufficient funds for trade")
	ErrGasEstimateReverted = errors.New("gas estimate reverted")
	ErrTxReverted          = errors.New("transaction reverted")
	ErrTxTimeout           = errors.New("transaction confirmation timeout")
	ErrRpcTransient        = errors.New("transient rpc error")
)
