package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubChainReader struct {
	resolveMarketErr error
}

func (s *stubChainReader) ResolveMarket(ctx context.Context, asset string) (common.Address, error) {
	if s.resolveMarketErr != nil {
		return common.Address{}, s.resolveMarketErr
	}
	return common.HexToAddress("0x1"), nil
}
func (s *stubChainReader) LongToken(ctx context.Context, market common.Address) (common.Address, error) {
	return common.HexToAddress("0x2"), nil
}
func (s *stubChainReader) SupportedAssets(ctx context.Context, vault common.Address) ([]common.Address, error) {
	return []common.Address{common.HexToAddress("0x2")}, nil
}
func (s *stubChainReader) Positions(ctx context.Context, vault common.Address) ([]domain.Position, error) {
	return nil, nil
}
func (s *stubChainReader) TVL(ctx context.Context, vault common.Address) (float64, error) {
	return 100_000, nil
}
func (s *stubChainReader) TokenBalance(ctx context.Context, token, holder common.Address, decimals int) (float64, error) {
	return 1_000_000, nil
}

func TestExecuteTradeNotActionable(t *testing.T) {
	e := New(&stubChainReader{}, nil, nil, Config{}, testLogger())
	out, err := e.ExecuteTrade(context.Background(), domain.Signal{Direction: 0, Asset: "BTC"}, "0xabc", 0)
	if err != nil {
		t.Fatalf("expected no error for non-actionable signal, got %v", err)
	}
	if !out.Success {
		t.Fatal("expected success outcome for non-actionable signal")
	}
}

func TestExecuteTradeDisabled(t *testing.T) {
	e := New(&stubChainReader{}, nil, nil, Config{TradingEnabled: false}, testLogger())
	sig := domain.Signal{Direction: 1, Asset: "BTC", CurrentPrice: 50000, SizePct: 0.1}
	out, err := e.ExecuteTrade(context.Background(), sig, "0xabc", 0)
	if !errors.Is(err, domain.ErrTradingDisabled) {
		t.Fatalf("expected ErrTradingDisabled, got %v", err)
	}
	if out.Success {
		t.Fatal("expected failed outcome")
	}
}

func TestExecuteTradeMissingSigner(t *testing.T) {
	e := New(&stubChainReader{}, nil, nil, Config{TradingEnabled: true}, testLogger())
	sig := domain.Signal{Direction: 1, Asset: "BTC", CurrentPrice: 50000, SizePct: 0.1}
	_, err := e.ExecuteTrade(context.Background(), sig, "0xabc", 0)
	if !errors.Is(err, domain.ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
}

func TestExecuteCloseBypassesActionableShortCircuit(t *testing.T) {
	// A Direction:0 signal to ExecuteTrade is a guaranteed no-op success (see
	// TestExecuteTradeNotActionable). ExecuteClose must reach the real
	// pipeline instead — proven here by observing the *next* gated error
	// (missing signing key) rather than a short-circuited success.
	e := New(&stubChainReader{}, nil, nil, Config{TradingEnabled: true}, testLogger())
	out, err := e.ExecuteClose(context.Background(), "BTC", 50000, 1000, "0xabc")
	if !errors.Is(err, domain.ErrMissingSigningKey) {
		t.Fatalf("expected ExecuteClose to reach the signer check, got %v", err)
	}
	if out.Success {
		t.Fatal("expected a failed outcome, not a short-circuited success")
	}
}

func TestExecuteCloseRespectsTradingDisabled(t *testing.T) {
	e := New(&stubChainReader{}, nil, nil, Config{TradingEnabled: false}, testLogger())
	_, err := e.ExecuteClose(context.Background(), "BTC", 50000, 1000, "0xabc")
	if !errors.Is(err, domain.ErrTradingDisabled) {
		t.Fatalf("expected ErrTradingDisabled, got %v", err)
	}
}

type fakeSigner struct{ addr common.Address }

func (f *fakeSigner) Address() common.Address { return f.addr }
func (f *fakeSigner) SignTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, tipCap, feeCap *big.Int, data []byte) (*ethtypes.Transaction, error) {
	return nil, errors.New("unused in this test")
}

func TestExecuteTradeUnknownMarket(t *testing.T) {
	chain := &stubChainReader{resolveMarketErr: domain.ErrNotFound}
	e := New(chain, nil, &fakeSigner{}, Config{TradingEnabled: true}, testLogger())
	sig := domain.Signal{Direction: 1, Asset: "DOGE", CurrentPrice: 1, SizePct: 0.1}
	_, err := e.ExecuteTrade(context.Background(), sig, "0xabc", 0)
	if !errors.Is(err, domain.ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
}

func TestCountsTowardBreaker(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{domain.ErrTradingDisabled, false},
		{domain.ErrMissingSigningKey, false},
		{domain.ErrInsufficientFunds, false},
		{domain.ErrUnknownMarket, true},
		{domain.ErrLongTokenMissing, true},
		{domain.ErrTxReverted, true},
		{domain.ErrTxTimeout, true},
		{domain.ErrRpcTransient, true},
	}
	for _, c := range cases {
		if got := CountsTowardBreaker(c.err); got != c.want {
			t.Errorf("CountsTowardBreaker(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		desired, current int8
		actionable       bool
		want             Action
	}{
		{0, 0, false, ActionNoop},
		{0, 1, false, ActionClose},
		{0, -1, false, ActionClose},
		{1, 1, true, ActionNoop},
		{-1, -1, true, ActionNoop},
		{1, -1, true, ActionCloseThenOpen},
		{-1, 1, true, ActionCloseThenOpen},
		{1, 0, true, ActionOpen},
		{-1, 0, true, ActionOpen},
	}
	for _, c := range cases {
		if got := Decide(c.desired, c.current, c.actionable); got != c.want {
			t.Errorf("Decide(%d,%d,%v) = %v, want %v", c.desired, c.current, c.actionable, got, c.want)
		}
	}
}
