package orderbuilder

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func validParams() Params {
	return Params{
		VaultAddress:         common.HexToAddress("0x1"),
		MarketAddress:        common.HexToAddress("0x2"),
		CollateralToken:      common.HexToAddress("0x3"),
		CallbackContract:     common.HexToAddress("0x4"),
		UIFeeReceiver:        common.HexToAddress("0x5"),
		WETHAddress:          common.HexToAddress("0x6"),
		OrderVaultAddress:    common.HexToAddress("0x7"),
		ExchangeRouterAddress: common.HexToAddress("0x8"),
		SizeUSD:              1000,
		IsLong:               true,
		CurrentPrice:         50000,
		Leverage:             5,
		SlippageBps:          50,
		GasPriceWei:          big.NewInt(100_000_000), // 0.1 gwei
		ExecutionFeeFloorWei: big.NewInt(100_000_000_000_000),
	}
}

func TestBuildOpenRejectsInvalidArguments(t *testing.T) {
	p := validParams()
	p.SizeUSD = 0
	if _, err := BuildOpen(p); err == nil {
		t.Fatal("expected error for zero size_usd")
	} else if !errors.Is(err, domain.ErrInvalidOrderArgument) {
		t.Errorf("expected ErrInvalidOrderArgument, got %v", err)
	}

	p2 := validParams()
	p2.CurrentPrice = 0
	if _, err := BuildOpen(p2); err == nil {
		t.Fatal("expected error for zero current_price")
	}
}

func TestBuildOpenProducesCalldata(t *testing.T) {
	p := validParams()
	built, err := BuildOpen(p)
	if err != nil {
		t.Fatalf("BuildOpen: %v", err)
	}
	if len(built.Calldata) == 0 {
		t.Fatal("expected non-empty calldata")
	}
	if built.ExecutionFeeWei.Sign() <= 0 {
		t.Fatal("expected positive execution fee")
	}
	if built.CollateralAmountWei.Sign() <= 0 {
		t.Fatal("expected positive collateral amount")
	}
}

func TestBuildCloseOmitsCollateralStep(t *testing.T) {
	p := validParams()
	built, err := BuildClose(p)
	if err != nil {
		t.Fatalf("BuildClose: %v", err)
	}
	if built.CollateralAmountWei != nil {
		t.Fatal("close orders must not set a collateral amount")
	}
}

func TestAcceptablePriceDirection(t *testing.T) {
	longOpen := acceptablePriceOpen(100, true, 50)
	shortOpen := acceptablePriceOpen(100, false, 50)
	if longOpen.Cmp(shortOpen) <= 0 {
		t.Error("long open acceptable price should exceed short open acceptable price")
	}

	longClose := acceptablePriceClose(100, true, 50)
	shortClose := acceptablePriceClose(100, false, 50)
	if longClose.Cmp(shortClose) >= 0 {
		t.Error("long close acceptable price should be below short close acceptable price")
	}
}

func TestExecutionFeeUsesFloor(t *testing.T) {
	floor := big.NewInt(1_000_000_000_000_000_000) // deliberately huge
	fee := executionFee(big.NewInt(1), floor)
	if fee.Cmp(floor) != 0 {
		t.Errorf("expected floor to win, got %s", fee.String())
	}
}
