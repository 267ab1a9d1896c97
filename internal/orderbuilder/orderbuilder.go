// Package orderbuilder constructs GMX V2 order calldata for the trade
// executor. It performs no I/O of its own except reading the caller-supplied
// gas price; every numeric quantity that crosses the ABI boundary is a
// *big.Int to avoid float precision loss on-wire.
package orderbuilder

import (
	"bytes"
	"embed"
	"fmt"
	"math/big"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

const (
	priceScale = 1_000_000_000_000_000_000_000_000_000_000 // 10^30
	usdcScale  = 1_000_000                                  // 10^6

	orderTypeMarketIncrease = 2
	orderTypeMarketDecrease = 4

	decreasePositionSwapTypeNoSwap = 0

	executionGasBase     = 4_000_000
	callbackGasLimit     = 750_000
	executionFeeSafetyPc = 1.5 // 1.5x safety margin over estimated gas cost
)

//go:embed exchange_router.json vault_proxy.json
var embeddedABIs embed.FS

var (
	exchangeRouterABI ethabi.ABI
	vaultProxyABI     ethabi.ABI
)

func init() {
	raw, err := embeddedABIs.ReadFile("exchange_router.json")
	if err != nil {
		panic(err)
	}
	exchangeRouterABI, err = ethabi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(err)
	}

	raw, err = embeddedABIs.ReadFile("vault_proxy.json")
	if err != nil {
		panic(err)
	}
	vaultProxyABI, err = ethabi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(err)
	}
}

// Params bundles everything needed to build an open or close order. Callers
// fill this from resolved on-chain state (chainreader) and config.
type Params struct {
	VaultAddress          common.Address
	MarketAddress         common.Address
	CollateralToken        common.Address
	CallbackContract       common.Address // GMX V2 Guard address
	UIFeeReceiver          common.Address
	WETHAddress            common.Address
	OrderVaultAddress      common.Address
	ExchangeRouterAddress  common.Address
	SizeUSD                float64
	IsLong                 bool
	CurrentPrice           float64
	Leverage               float64
	SlippageBps            int
	GasPriceWei            *big.Int
	ExecutionFeeFloorWei   *big.Int
}

// Built is the output of a successful Build call: calldata ready to pass as
// the `data` argument of execTransaction, plus the execution fee (in wei)
// and USDC collateral amount the caller must ensure the vault can afford.
type Built struct {
	Calldata            []byte
	ExecutionFeeWei     *big.Int
	CollateralAmountWei *big.Int
	SizeDeltaUsdWei     *big.Int
}

// BuildOpen constructs calldata for a MarketIncrease order: a multicall of
// sendTokens(WETH, orderVault, fee) -> sendTokens(collateralToken,
// orderVault, collateral) -> createOrder(params).
func BuildOpen(p Params) (Built, error) {
	if p.SizeUSD <= 0 || p.CurrentPrice <= 0 {
		return Built{}, fmt.Errorf("orderbuilder: %w: size_usd and current_price must be positive", domain.ErrInvalidOrderArgument)
	}

	fee := executionFee(p.GasPriceWei, p.ExecutionFeeFloorWei)
	leverage := p.Leverage
	if leverage < 1 {
		leverage = 1
	}
	collateralUSD := p.SizeUSD / leverage
	collateralAmount := toFixed(collateralUSD, usdcScale)
	sizeDeltaUSD := toFixed(p.SizeUSD, priceScale)
	acceptablePrice := acceptablePriceOpen(p.CurrentPrice, p.IsLong, p.SlippageBps)

	orderParams := buildOrderParams(p, sizeDeltaUSD, collateralAmount, acceptablePrice, fee, orderTypeMarketIncrease)

	sendFee, err := exchangeRouterABI.Pack("sendTokens", p.WETHAddress, p.OrderVaultAddress, fee)
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing sendTokens(fee): %w", err)
	}
	sendCollateral, err := exchangeRouterABI.Pack("sendTokens", p.CollateralToken, p.OrderVaultAddress, collateralAmount)
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing sendTokens(collateral): %w", err)
	}
	createOrder, err := exchangeRouterABI.Pack("createOrder", orderParams)
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing createOrder: %w", err)
	}

	calldata, err := exchangeRouterABI.Pack("multicall", [][]byte{sendFee, sendCollateral, createOrder})
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing multicall: %w", err)
	}

	return Built{
		Calldata:            calldata,
		ExecutionFeeWei:     fee,
		CollateralAmountWei: collateralAmount,
		SizeDeltaUsdWei:     sizeDeltaUSD,
	}, nil
}

// BuildClose constructs calldata for a MarketDecrease order: omits the
// collateral sendTokens step, initialCollateralDeltaAmount = 0.
func BuildClose(p Params) (Built, error) {
	if p.SizeUSD <= 0 || p.CurrentPrice <= 0 {
		return Built{}, fmt.Errorf("orderbuilder: %w: size_usd and current_price must be positive", domain.ErrInvalidOrderArgument)
	}

	fee := executionFee(p.GasPriceWei, p.ExecutionFeeFloorWei)
	sizeDeltaUSD := toFixed(p.SizeUSD, priceScale)
	acceptablePrice := acceptablePriceClose(p.CurrentPrice, p.IsLong, p.SlippageBps)

	orderParams := buildOrderParams(p, sizeDeltaUSD, big.NewInt(0), acceptablePrice, fee, orderTypeMarketDecrease)

	sendFee, err := exchangeRouterABI.Pack("sendTokens", p.WETHAddress, p.OrderVaultAddress, fee)
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing sendTokens(fee): %w", err)
	}
	createOrder, err := exchangeRouterABI.Pack("createOrder", orderParams)
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing createOrder: %w", err)
	}

	calldata, err := exchangeRouterABI.Pack("multicall", [][]byte{sendFee, createOrder})
	if err != nil {
		return Built{}, fmt.Errorf("orderbuilder: packing multicall: %w", err)
	}

	return Built{
		Calldata:        calldata,
		ExecutionFeeWei: fee,
		SizeDeltaUsdWei: sizeDeltaUSD,
	}, nil
}

// WrapExecTransaction wraps inner calldata (targeting the exchange router)
// in the vault proxy's execTransaction(target, data), the call the trader
// key actually signs and submits.
func WrapExecTransaction(target common.Address, innerCalldata []byte) ([]byte, error) {
	out, err := vaultProxyABI.Pack("execTransaction", target, innerCalldata)
	if err != nil {
		return nil, fmt.Errorf("orderbuilder: packing execTransaction: %w", err)
	}
	return out, nil
}

type addressesGroup struct {
	Receiver               common.Address
	CancellationReceiver   common.Address
	CallbackContract       common.Address
	UiFeeReceiver          common.Address
	Market                 common.Address
	InitialCollateralToken common.Address
	SwapPath               []common.Address
}

type numbersGroup struct {
	SizeDeltaUsd                 *big.Int
	InitialCollateralDeltaAmount *big.Int
	TriggerPrice                 *big.Int
	AcceptablePrice              *big.Int
	ExecutionFee                 *big.Int
	CallbackGasLimit             *big.Int
	MinOutputAmount              *big.Int
	ValidFromTime                *big.Int
}

type orderParamsStruct struct {
	Addresses                addressesGroup
	Numbers                  numbersGroup
	OrderType                uint8
	DecreasePositionSwapType uint8
	IsLong                   bool
	ShouldUnwrapNativeToken  bool
	AutoCancel               bool
	ReferralCode             [32]byte
	DataList                 [][32]byte
}

func buildOrderParams(p Params, sizeDeltaUSD, collateralAmount, acceptablePrice, fee *big.Int, orderType uint8) orderParamsStruct {
	return orderParamsStruct{
		Addresses: addressesGroup{
			Receiver:               p.VaultAddress,
			CancellationReceiver:   common.Address{},
			CallbackContract:       p.CallbackContract,
			UiFeeReceiver:          p.UIFeeReceiver,
			Market:                 p.MarketAddress,
			InitialCollateralToken: p.CollateralToken,
			SwapPath:               nil,
		},
		Numbers: numbersGroup{
			SizeDeltaUsd:                 sizeDeltaUSD,
			InitialCollateralDeltaAmount: collateralAmount,
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              acceptablePrice,
			ExecutionFee:                 fee,
			CallbackGasLimit:             big.NewInt(callbackGasLimit),
			MinOutputAmount:              big.NewInt(0),
			ValidFromTime:                big.NewInt(0),
		},
		OrderType:                orderType,
		DecreasePositionSwapType: decreasePositionSwapTypeNoSwap,
		IsLong:                   p.IsLong,
		ShouldUnwrapNativeToken:  false,
		AutoCancel:               false,
		ReferralCode:             [32]byte{},
		DataList:                 nil,
	}
}

// executionFee computes max(gasPrice*(baseGas+callbackGas)*1.5, floor),
// matching _calculate_execution_fee exactly.
func executionFee(gasPriceWei, floorWei *big.Int) *big.Int {
	totalGas := big.NewInt(executionGasBase + callbackGasLimit)
	estimate := new(big.Int).Mul(gasPriceWei, totalGas)
	// *1.5 via *3/2 to stay in integer arithmetic
	estimate = estimate.Mul(estimate, big.NewInt(3))
	estimate = estimate.Div(estimate, big.NewInt(2))

	if floorWei != nil && floorWei.Cmp(estimate) > 0 {
		return floorWei
	}
	return estimate
}

// acceptablePriceOpen: longs accept up to price*(1+slippage), shorts down to
// price*(1-slippage).
func acceptablePriceOpen(currentPrice float64, isLong bool, slippageBps int) *big.Int {
	slippage := float64(slippageBps) / 10_000
	if isLong {
		return toFixed(currentPrice*(1+slippage), priceScale)
	}
	return toFixed(currentPrice*(1-slippage), priceScale)
}

// acceptablePriceClose inverts the open-side tolerance: closing a long wants
// a price floor, closing a short wants a price ceiling.
func acceptablePriceClose(currentPrice float64, isLong bool, slippageBps int) *big.Int {
	slippage := float64(slippageBps) / 10_000
	if isLong {
		return toFixed(currentPrice*(1-slippage), priceScale)
	}
	return toFixed(currentPrice*(1+slippage), priceScale)
}

// toFixed scales a float by `scale` and truncates to a *big.Int, matching
// Python's `int(value * SCALE)` truncation-toward-zero semantics.
func toFixed(value float64, scale float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(value), big.NewFloat(scale))
	out, _ := scaled.Int(nil)
	return out
}
