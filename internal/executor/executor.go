// Package executor runs the ten-step trade execution pipeline: validate a
// signal, size the trade against vault TVL and available collateral, build
// GMX calldata, sign and submit the wrapped transaction, and wait for its
// receipt.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/atlasxyz/vaultrunner/internal/domain"
	"github.com/atlasxyz/vaultrunner/internal/orderbuilder"
)

// ChainReader is the subset of chainreader.Reader the executor needs. A
// local interface keeps this package testable without standing up a real
// ethclient.Client, matching the teacher's OrderPlacer/RiskChecker
// abstraction idiom.
type ChainReader interface {
	ResolveMarket(ctx context.Context, asset string) (common.Address, error)
	LongToken(ctx context.Context, market common.Address) (common.Address, error)
	SupportedAssets(ctx context.Context, vault common.Address) ([]common.Address, error)
	Positions(ctx context.Context, vault common.Address) ([]domain.Position, error)
	TVL(ctx context.Context, vault common.Address) (float64, error)
	TokenBalance(ctx context.Context, token, holder common.Address, decimals int) (float64, error)
}

// Signer is the subset of crypto.Signer the executor needs.
type Signer interface {
	Address() common.Address
	SignTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasTipCap, gasFeeCap *big.Int, data []byte) (*ethtypes.Transaction, error)
}

// Config bundles the on-chain addresses and tunables the executor needs to
// build and submit orders.
type Config struct {
	TradingEnabled        bool
	DefaultLeverage       float64
	SlippageBps           int
	CollateralToken       common.Address // USDC
	WETHAddress           common.Address
	OrderVaultAddress     common.Address
	ExchangeRouterAddress common.Address
	ExecutionFeeFloorWei  *big.Int
	GasLimit              uint64 // minimum gas limit, applied after the estimate's buffer
	TxConfirmTimeout      time.Duration
	TxPollInterval        time.Duration
}

// Executor builds, signs, and submits GMX V2 orders through a vault's
// execTransaction guard.
type Executor struct {
	chain  ChainReader
	client *ethclient.Client
	signer Signer
	cfg    Config
	logger *slog.Logger
}

// New constructs an Executor. signer may be nil, in which case every trade
// attempt fails with ErrMissingSigningKey (step 3), matching the original's
// "no trader configured" behavior.
func New(chain ChainReader, client *ethclient.Client, signer Signer, cfg Config, logger *slog.Logger) *Executor {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 800_000
	}
	if cfg.TxConfirmTimeout == 0 {
		cfg.TxConfirmTimeout = 120 * time.Second
	}
	if cfg.TxPollInterval == 0 {
		cfg.TxPollInterval = 2 * time.Second
	}
	return &Executor{
		chain:  chain,
		client: client,
		signer: signer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// TradeOutcome is the result of one ExecuteTrade call. Success is the
// discriminant; Error carries the failure reason when Success is false
// (the idiomatic stand-in for a Go sum type, matching the teacher's
// domain.OrderResult shape).
type TradeOutcome struct {
	Success    bool
	TxHash     *string
	Error      error
	GasUsed    uint64
	Timestamp  time.Time
	Direction  int8
	Asset      string
	Size       float64
	EntryPrice float64
}

// CountsTowardBreaker reports whether err should be recorded as a circuit
// breaker failure, per the executor's error taxonomy. A nil err (i.e. a
// successful outcome) never counts.
func CountsTowardBreaker(err error) bool {
	switch {
	case err == nil:
		return false
	case isErr(err, domain.ErrTradingDisabled, domain.ErrMissingSigningKey, domain.ErrInsufficientFunds):
		return false
	default:
		return true
	}
}

func isErr(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// ExecuteTrade runs the ten-step pipeline for one signal against one vault.
// A non-actionable signal short-circuits to a no-op success without
// touching the chain — callers that need to close a position on a neutral
// signal must use ExecuteClose instead. Every other branch is recorded via
// the returned outcome's Error field so the caller (the scheduler) can
// decide whether to count it toward the vault's circuit breaker.
func (e *Executor) ExecuteTrade(ctx context.Context, signal domain.Signal, vaultAddress string, sizeOverride float64) (TradeOutcome, error) {
	if !signal.IsActionable() {
		base := baseOutcome(signal)
		base.Success = true
		return base, nil
	}
	return e.execute(ctx, signal, vaultAddress, sizeOverride)
}

// ExecuteClose runs the same pipeline to close any open position on asset,
// bypassing ExecuteTrade's actionable short-circuit — the scheduler's
// decision tree calls this when the desired direction is neutral but the
// vault currently holds a position. orderbuilder.BuildClose is selected
// because the synthesized signal's Direction is always 0. positionSizeUSD
// is the current position's absolute notional (from chainreader.Positions),
// passed through as the size override so step 6 never recomputes a TVL-based
// size for a decrease order.
func (e *Executor) ExecuteClose(ctx context.Context, asset string, currentPrice, positionSizeUSD float64, vaultAddress string) (TradeOutcome, error) {
	signal := domain.Signal{
		Direction:    0,
		Asset:        asset,
		CurrentPrice: currentPrice,
		CreatedAt:    time.Now().UTC(),
	}
	return e.execute(ctx, signal, vaultAddress, positionSizeUSD)
}

func baseOutcome(signal domain.Signal) TradeOutcome {
	return TradeOutcome{
		Timestamp:  time.Now().UTC(),
		Direction:  signal.Direction,
		Asset:      signal.Asset,
		EntryPrice: signal.CurrentPrice,
	}
}

// execute runs steps 2-10 of the pipeline, shared by ExecuteTrade's open/flip
// path and ExecuteClose's always-close path.
func (e *Executor) execute(ctx context.Context, signal domain.Signal, vaultAddress string, sizeOverride float64) (TradeOutcome, error) {
	base := baseOutcome(signal)

	// 2. Trading disabled.
	if !e.cfg.TradingEnabled {
		base.Error = domain.ErrTradingDisabled
		return base, domain.ErrTradingDisabled
	}

	// 3. Missing signing key.
	if e.signer == nil {
		base.Error = domain.ErrMissingSigningKey
		return base, domain.ErrMissingSigningKey
	}

	vault := common.HexToAddress(vaultAddress)
	log := e.logger.With(
		slog.String("vault", vaultAddress),
		slog.String("asset", signal.Asset),
		slog.String("direction", signal.DirectionString()),
	)

	// 4. Resolve market.
	market, err := e.chain.ResolveMarket(ctx, signal.Asset)
	if err != nil {
		log.Error("unknown market", slog.String("error", err.Error()))
		base.Error = fmt.Errorf("%w: %s", domain.ErrUnknownMarket, signal.Asset)
		return base, base.Error
	}

	// 5. Long-token pre-flight.
	if err := e.validateLongToken(ctx, vault, market); err != nil {
		log.Error("long-token pre-flight failed", slog.String("error", err.Error()))
		base.Error = err
		return base, err
	}

	// 6. Size calculation.
	sizeUSD := sizeOverride
	if sizeUSD <= 0 {
		sizeUSD, err = e.calculateSizeUSD(ctx, vault, signal)
		if err != nil {
			log.Warn("size calculation failed", slog.String("error", err.Error()))
			base.Error = err
			return base, err
		}
	}
	if sizeUSD <= 0 {
		base.Error = fmt.Errorf("%w: computed trade size is zero", domain.ErrInsufficientFunds)
		return base, base.Error
	}
	base.Size = sizeUSD

	// 7. Build calldata.
	built, err := e.buildOrder(signal, vault, market, sizeUSD)
	if err != nil {
		log.Error("order build failed", slog.String("error", err.Error()))
		base.Error = err
		return base, err
	}

	calldata, err := orderbuilder.WrapExecTransaction(e.cfg.ExchangeRouterAddress, built.Calldata)
	if err != nil {
		base.Error = fmt.Errorf("%w: %v", domain.ErrGasEstimateReverted, err)
		return base, base.Error
	}

	gasLimit, err := e.estimateGas(ctx, vault, calldata)
	if err != nil {
		log.Error("gas estimate reverted", slog.String("error", err.Error()))
		base.Error = fmt.Errorf("%w: %v", domain.ErrGasEstimateReverted, err)
		return base, base.Error
	}

	// 8. Sign + submit.
	txHash, err := e.submit(ctx, vault, calldata, gasLimit)
	if err != nil {
		log.Error("submission failed", slog.String("error", err.Error()))
		base.Error = err
		return base, err
	}

	// 9. Poll for receipt.
	gasUsed, err := e.waitForReceipt(ctx, txHash)
	if err != nil {
		hex := txHash.Hex()
		base.TxHash = &hex
		base.Error = err
		return base, err
	}

	// 10. Success.
	hex := txHash.Hex()
	base.Success = true
	base.TxHash = &hex
	base.GasUsed = gasUsed
	log.Info("trade executed", slog.String("tx_hash", hex), slog.Float64("size_usd", sizeUSD))
	return base, nil
}

// validateLongToken ensures the market's long token is in the vault's
// manager-configured supported asset set, matching
// trade_executor.py._validate_vault_assets. A resolution failure for the
// long token itself is treated as "cannot verify" and allowed through,
// mirroring the original's warn-and-continue behavior.
func (e *Executor) validateLongToken(ctx context.Context, vault, market common.Address) error {
	longToken, err := e.chain.LongToken(ctx, market)
	if err != nil {
		e.logger.Warn("could not resolve long token, skipping pre-flight check",
			slog.String("market", market.Hex()), slog.String("error", err.Error()))
		return nil
	}

	supported, err := e.chain.SupportedAssets(ctx, vault)
	if err != nil {
		e.logger.Warn("could not validate vault assets", slog.String("error", err.Error()))
		return nil
	}
	for _, a := range supported {
		if a == longToken {
			return nil
		}
	}
	return fmt.Errorf("%w: vault %s is missing long token %s in supported assets; add it via changeAssets() before trading",
		domain.ErrLongTokenMissing, vault.Hex(), longToken.Hex())
}

// calculateSizeUSD sizes a trade off vault TVL, capping to what the vault's
// USDC balance can actually afford (with a 5% buffer) and verifying WETH
// covers the execution fee — a direct port of
// trade_executor.py._calculate_size_usd.
func (e *Executor) calculateSizeUSD(ctx context.Context, vault common.Address, signal domain.Signal) (float64, error) {
	tvl, err := e.chain.TVL(ctx, vault)
	if err != nil {
		return 0, fmt.Errorf("%w: reading tvl: %v", domain.ErrInsufficientFunds, err)
	}
	if tvl <= 0 {
		return 0, nil
	}

	sizeUSD := tvl * signal.SizePct
	leverage := e.cfg.DefaultLeverage
	if leverage < 1.0 {
		leverage = 1.0
	}
	collateralNeeded := sizeUSD / leverage

	usdcBalance, err := e.chain.TokenBalance(ctx, e.cfg.CollateralToken, vault, 6)
	if err != nil {
		return 0, fmt.Errorf("%w: reading usdc balance: %v", domain.ErrInsufficientFunds, err)
	}
	if collateralNeeded > usdcBalance {
		maxSize := usdcBalance * leverage * 0.95
		if maxSize < 1.0 {
			return 0, nil
		}
		e.logger.Info("capping trade size to available collateral",
			slog.Float64("from_usd", sizeUSD), slog.Float64("to_usd", maxSize))
		sizeUSD = maxSize
	}

	wethBalance, err := e.chain.TokenBalance(ctx, e.cfg.WETHAddress, vault, 18)
	if err != nil {
		return 0, fmt.Errorf("%w: reading weth balance: %v", domain.ErrInsufficientFunds, err)
	}
	feeEth := weiToEth(e.cfg.ExecutionFeeFloorWei)
	if wethBalance < feeEth {
		return 0, nil
	}

	return sizeUSD, nil
}

func weiToEth(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	scaled := new(big.Float).Quo(f, big.NewFloat(1e18))
	out, _ := scaled.Float64()
	return out
}

func (e *Executor) buildOrder(signal domain.Signal, vault, market common.Address, sizeUSD float64) (orderbuilder.Built, error) {
	gasPrice, err := e.client.SuggestGasPrice(context.Background())
	if err != nil {
		gasPrice = big.NewInt(100_000_000) // 0.1 gwei fallback
	}

	params := orderbuilder.Params{
		VaultAddress:          vault,
		MarketAddress:         market,
		CollateralToken:       e.cfg.CollateralToken,
		CallbackContract:      common.Address{},
		UIFeeReceiver:         common.Address{},
		WETHAddress:           e.cfg.WETHAddress,
		OrderVaultAddress:     e.cfg.OrderVaultAddress,
		ExchangeRouterAddress: e.cfg.ExchangeRouterAddress,
		SizeUSD:               sizeUSD,
		CurrentPrice:          signal.CurrentPrice,
		Leverage:              e.cfg.DefaultLeverage,
		IsLong:                signal.Direction > 0,
		SlippageBps:           e.cfg.SlippageBps,
		GasPriceWei:           gasPrice,
		ExecutionFeeFloorWei:  e.cfg.ExecutionFeeFloorWei,
	}

	if signal.Direction != 0 {
		return orderbuilder.BuildOpen(params)
	}
	return orderbuilder.BuildClose(params)
}

// estimateGas estimates gas for the wrapped execTransaction call and applies
// a 1.3x buffer over the estimate, matching the original's 1.2-1.3x
// headroom for state drift between estimate and execution.
func (e *Executor) estimateGas(ctx context.Context, vault common.Address, calldata []byte) (uint64, error) {
	msg := ethereum.CallMsg{
		From: e.signer.Address(),
		To:   &vault,
		Data: calldata,
	}
	est, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, err
	}
	buffered := uint64(float64(est) * 1.3)
	if buffered < e.cfg.GasLimit {
		buffered = e.cfg.GasLimit
	}
	return buffered, nil
}

func (e *Executor) submit(ctx context.Context, vault common.Address, calldata []byte, gasLimit uint64) (common.Hash, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: fetching nonce: %v", domain.ErrRpcTransient, err)
	}
	tipCap, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(100_000_000)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		gasPrice = big.NewInt(100_000_000)
	}
	feeCap := new(big.Int).Add(gasPrice, tipCap)

	tx, err := e.signer.SignTx(nonce, vault, big.NewInt(0), gasLimit, tipCap, feeCap, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	sendFn := func() error { return e.client.SendTransaction(ctx, tx) }
	if err := retryOnce(ctx, sendFn); err != nil {
		return common.Hash{}, fmt.Errorf("%w: submitting transaction: %v", domain.ErrRpcTransient, err)
	}

	return tx.Hash(), nil
}

// retryOnce retries a transient-failure-prone RPC call exactly once after a
// 500ms backoff, directly reused from the teacher executor's retryOrder
// idiom, applied only to submission — never to a reverted or timed-out
// receipt.
func retryOnce(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return fn()
}

// waitForReceipt polls for a transaction receipt until it lands or
// cfg.TxConfirmTimeout elapses, matching
// ChoSanghyuk-blackholedex's txlistener poll-interval/timeout shape.
func (e *Executor) waitForReceipt(ctx context.Context, txHash common.Hash) (uint64, error) {
	deadline := time.Now().Add(e.cfg.TxConfirmTimeout)
	ticker := time.NewTicker(e.cfg.TxPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return 0, fmt.Errorf("%w: tx %s reverted", domain.ErrTxReverted, txHash.Hex())
			}
			return receipt.GasUsed, nil
		}

		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: tx %s not confirmed within %s", domain.ErrTxTimeout, txHash.Hex(), e.cfg.TxConfirmTimeout)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Action is the state-machine decision for one vault tick.
type Action string

const (
	ActionNoop          Action = "noop"
	ActionClose         Action = "close"
	ActionOpen          Action = "open"
	ActionCloseThenOpen Action = "close_then_open"
)

// Decide is a pure function mapping a signal's desired direction and the
// vault's current net position direction to the action the scheduler
// should take, a direct transcription of scheduler.py._process_vault's
// desired/current comparison.
func Decide(desiredDir, currentDir int8, actionable bool) Action {
	if desiredDir == 0 {
		if currentDir != 0 {
			return ActionClose
		}
		return ActionNoop
	}
	if desiredDir == currentDir {
		return ActionNoop
	}
	if currentDir != 0 {
		if !actionable {
			return ActionClose
		}
		return ActionCloseThenOpen
	}
	if !actionable {
		return ActionNoop
	}
	return ActionOpen
}
