// Package chainreader is a view-only adapter over go-ethereum's
// ethclient.Client, resolving GMX market addresses, vault TVL/share price,
// and open positions.
package chainreader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

const (
	priceScale   = 1e30
	usdcDecimals = 1e6
	wethScale    = 1e18
)

// Config bundles the on-chain addresses and tunables the Reader needs.
type Config struct {
	ReaderAddress    common.Address
	DataStoreAddress common.Address
	MarketAddresses  map[string]common.Address // asset -> GMX market token, configured first
	CacheTTL         time.Duration             // default TTL applied to TVL/share-price/total-supply reads
	MaxRetries       int
	BackoffSeconds   float64
	// RateLimiter, if set, throttles every retryCall-wrapped RPC so a large
	// vault set doesn't outrun the RPC provider's rate cap. Nil disables
	// throttling.
	RateLimiter domain.RateLimiter
}

// Reader reads vault and market state from chain. TVL, SharePrice and
// TotalSupply go through a TTL cache and exponential-backoff retry,
// matching vault_reader.py's _retry_call/_get_cached discipline; the other
// reads (depositor count, supported assets, market resolution, long token,
// positions, token balance) call the node directly, uncached and unretried.
type Reader struct {
	client *ethclient.Client
	cache  domain.ChainCache
	cfg    Config
	logger *slog.Logger

	gmxReaderClient *contractClient
}

// New constructs a Reader. The embedded ABI fragments are parsed once here
// to fail fast on a packaging bug; a parse failure indicates the embedded
// JSON is malformed, not a runtime condition, so it panics like the
// teacher's embed-backed migration loader does on a malformed SQL file.
func New(client *ethclient.Client, cache domain.ChainCache, cfg Config, logger *slog.Logger) *Reader {
	gmxABI, err := loadABI("gmx_reader")
	if err != nil {
		panic(fmt.Sprintf("chainreader: %v", err))
	}
	if _, err := loadABI("pool_logic"); err != nil {
		panic(fmt.Sprintf("chainreader: %v", err))
	}
	if _, err := loadABI("pool_manager_logic"); err != nil {
		panic(fmt.Sprintf("chainreader: %v", err))
	}
	if _, err := loadABI("erc20"); err != nil {
		panic(fmt.Sprintf("chainreader: %v", err))
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BackoffSeconds == 0 {
		cfg.BackoffSeconds = 0.5
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 300 * time.Second
	}

	return &Reader{
		client:          client,
		cache:           cache,
		cfg:             cfg,
		logger:          logger.With(slog.String("component", "chainreader")),
		gmxReaderClient: newContractClient(client, cfg.ReaderAddress, gmxABI),
	}
}

// poolLogic binds the pool-logic ABI to a specific vault address.
func (r *Reader) poolLogic(vault common.Address) *contractClient {
	abi, _ := loadABI("pool_logic")
	return newContractClient(r.client, vault, abi)
}

// poolManagerLogic binds the pool-manager-logic ABI to a specific managed
// logic address.
func (r *Reader) poolManagerLogic(managed common.Address) *contractClient {
	abi, _ := loadABI("pool_manager_logic")
	return newContractClient(r.client, managed, abi)
}

// erc20(address) binds the ERC20 symbol() ABI to a specific token address.
func (r *Reader) erc20(token common.Address) *contractClient {
	abi, _ := loadABI("erc20")
	return newContractClient(r.client, token, abi)
}

// retryCall runs fn up to cfg.MaxRetries+1 times with exponential backoff
// (backoffSeconds * 2^attempt) between attempts, purging cacheKey from the
// cache before each retry — mirrors vault_reader.py._retry_call exactly. If
// a RateLimiter is configured, it throttles every attempt under one shared
// "chain_rpc" key before the call reaches the node.
func (r *Reader) retryCall(ctx context.Context, cacheKey string, fn func() (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if r.cfg.RateLimiter != nil {
			if err := r.cfg.RateLimiter.Wait(ctx, "chain_rpc"); err != nil {
				return nil, fmt.Errorf("chainreader: %w", err)
			}
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if cacheKey != "" {
			_ = r.cache.Purge(ctx, cacheKey)
		}
		if attempt >= r.cfg.MaxRetries {
			break
		}
		backoff := time.Duration(r.cfg.BackoffSeconds*math.Pow(2, float64(attempt))) * time.Second
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("chainreader: %w", lastErr)
}

func (r *Reader) cacheGetFloat(ctx context.Context, key string) (float64, bool) {
	v, ok, err := r.cache.Get(ctx, key)
	if err != nil || !ok {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return 0, false
	}
	return f, true
}

func (r *Reader) cacheSetFloat(ctx context.Context, key string, f float64) {
	_ = r.cache.Set(ctx, key, fmt.Sprintf("%g", f), r.cfg.CacheTTL)
}

// TVL returns the vault's total fund value in USD, falling back through
// three explicit tiers: (1) PoolManagerLogic.totalFundValue, resolved via
// the same poolManagerLogic() address lookup DepositorCount uses, (2)
// PoolLogic's own totalFundValue, and (3) SharePrice() * TotalSupply() —
// matching get_tvl's try/except chain.
func (r *Reader) TVL(ctx context.Context, vault common.Address) (float64, error) {
	key := fmt.Sprintf("%s:tvl", strings.ToLower(vault.Hex()))
	if cached, ok := r.cacheGetFloat(ctx, key); ok {
		return cached, nil
	}

	pl := r.poolLogic(vault)

	v, err := r.retryCall(ctx, key, func() (any, error) {
		managerOut, err := pl.call(ctx, "poolManagerLogic")
		if err != nil {
			return nil, err
		}
		managerAddr := managerOut[0].(common.Address)

		pm := r.poolManagerLogic(managerAddr)
		out, err := pm.call(ctx, "totalFundValue")
		if err != nil {
			return nil, err
		}
		return out[0].(*big.Int), nil
	})
	if err != nil {
		v, err = r.retryCall(ctx, key, func() (any, error) {
			out, err := pl.call(ctx, "totalFundValue")
			if err != nil {
				return nil, err
			}
			return out[0].(*big.Int), nil
		})
	}
	if err == nil {
		tvl := weiToFloat(v.(*big.Int), wethScale)
		r.cacheSetFloat(ctx, key, tvl)
		return tvl, nil
	}

	sharePrice, priceErr := r.SharePrice(ctx, vault)
	if priceErr != nil {
		r.logger.Warn("tvl unavailable, returning 0.0",
			slog.String("vault", vault.Hex()), slog.Any("err", priceErr))
		return 0.0, nil
	}
	totalSupply, supplyErr := r.TotalSupply(ctx, vault)
	if supplyErr != nil {
		r.logger.Warn("tvl unavailable, returning 0.0",
			slog.String("vault", vault.Hex()), slog.Any("err", supplyErr))
		return 0.0, nil
	}

	tvl := sharePrice * totalSupply
	r.cacheSetFloat(ctx, key, tvl)
	return tvl, nil
}

// SharePrice returns tokenPrice() scaled to a float.
func (r *Reader) SharePrice(ctx context.Context, vault common.Address) (float64, error) {
	key := fmt.Sprintf("%s:share_price", strings.ToLower(vault.Hex()))
	if cached, ok := r.cacheGetFloat(ctx, key); ok {
		return cached, nil
	}
	pl := r.poolLogic(vault)
	v, err := r.retryCall(ctx, key, func() (any, error) {
		out, err := pl.call(ctx, "tokenPrice")
		if err != nil {
			return nil, err
		}
		return out[0].(*big.Int), nil
	})
	if err != nil {
		return 0, err
	}
	price := weiToFloat(v.(*big.Int), wethScale)
	r.cacheSetFloat(ctx, key, price)
	return price, nil
}

// TotalSupply returns totalSupply() scaled to a float.
func (r *Reader) TotalSupply(ctx context.Context, vault common.Address) (float64, error) {
	key := fmt.Sprintf("%s:total_supply", strings.ToLower(vault.Hex()))
	if cached, ok := r.cacheGetFloat(ctx, key); ok {
		return cached, nil
	}
	pl := r.poolLogic(vault)
	v, err := r.retryCall(ctx, key, func() (any, error) {
		out, err := pl.call(ctx, "totalSupply")
		if err != nil {
			return nil, err
		}
		return out[0].(*big.Int), nil
	})
	if err != nil {
		return 0, err
	}
	supply := weiToFloat(v.(*big.Int), wethScale)
	r.cacheSetFloat(ctx, key, supply)
	return supply, nil
}

// DepositorCount returns the number of addresses holding vault shares, via
// poolManagerLogic().getMembers() — the vault guard pattern's own member
// roster, not a Transfer-log-derived unique-holder count.
func (r *Reader) DepositorCount(ctx context.Context, vault common.Address) (int, error) {
	pl := r.poolLogic(vault)
	out, err := pl.call(ctx, "poolManagerLogic")
	if err != nil {
		return 0, fmt.Errorf("chainreader: resolving pool manager logic: %w", err)
	}
	managerAddr := out[0].(common.Address)

	pm := r.poolManagerLogic(managerAddr)
	membersOut, err := pm.call(ctx, "getMembers")
	if err != nil {
		return 0, fmt.Errorf("chainreader: getMembers: %w", err)
	}
	members, ok := membersOut[0].([]common.Address)
	if !ok {
		return 0, fmt.Errorf("chainreader: unexpected getMembers return shape")
	}
	return len(members), nil
}

// SupportedAssets returns the addresses of the vault's manager-configured
// supported assets, read through poolManagerLogic(). The per-asset isDeposit
// flag is not returned.
func (r *Reader) SupportedAssets(ctx context.Context, vault common.Address) ([]common.Address, error) {
	pl := r.poolLogic(vault)
	out, err := pl.call(ctx, "poolManagerLogic")
	if err != nil {
		return nil, fmt.Errorf("chainreader: resolving pool manager logic: %w", err)
	}
	managerAddr := out[0].(common.Address)

	pm := r.poolManagerLogic(managerAddr)
	assetsOut, err := pm.call(ctx, "getSupportedAssets")
	if err != nil {
		return nil, fmt.Errorf("chainreader: getSupportedAssets: %w", err)
	}

	type assetTuple struct {
		Asset     common.Address
		IsDeposit bool
	}
	raw, ok := assetsOut[0].([]assetTuple)
	if !ok {
		return nil, fmt.Errorf("chainreader: unexpected getSupportedAssets return shape")
	}
	addrs := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		addrs = append(addrs, a.Asset)
	}
	return addrs, nil
}

// ResolveMarket maps an asset symbol to its GMX market token address: the
// configured map first, falling back to an on-chain Reader.getMarkets scan
// matching by index-token symbol.
func (r *Reader) ResolveMarket(ctx context.Context, asset string) (common.Address, error) {
	asset = strings.ToUpper(asset)
	if addr, ok := r.cfg.MarketAddresses[asset]; ok {
		return addr, nil
	}

	markets, err := r.listMarkets(ctx, 0, 50)
	if err != nil {
		return common.Address{}, fmt.Errorf("chainreader: enumerating markets: %w", err)
	}
	for _, m := range markets {
		symbol, err := r.symbolOf(ctx, m.indexToken)
		if err != nil {
			continue
		}
		if normalizeSymbol(symbol) == asset {
			return m.marketToken, nil
		}
	}
	return common.Address{}, fmt.Errorf("chainreader: %w: no market found for asset %s", domain.ErrNotFound, asset)
}

// LongToken returns the long-token address for a GMX market, used by the
// trade executor's long-token pre-flight check.
func (r *Reader) LongToken(ctx context.Context, market common.Address) (common.Address, error) {
	markets, err := r.listMarkets(ctx, 0, 100)
	if err != nil {
		return common.Address{}, err
	}
	for _, m := range markets {
		if m.marketToken == market {
			return m.longToken, nil
		}
	}
	return common.Address{}, fmt.Errorf("chainreader: %w: long token for market %s", domain.ErrNotFound, market.Hex())
}

type marketInfo struct {
	marketToken common.Address
	indexToken  common.Address
	longToken   common.Address
	shortToken  common.Address
}

func (r *Reader) listMarkets(ctx context.Context, start, end int64) ([]marketInfo, error) {
	out, err := r.gmxReaderClient.call(ctx, "getMarkets", r.cfg.DataStoreAddress, big.NewInt(start), big.NewInt(end))
	if err != nil {
		return nil, err
	}

	type rawMarket struct {
		MarketToken common.Address
		IndexToken  common.Address
		LongToken   common.Address
		ShortToken  common.Address
	}
	raw, ok := out[0].([]rawMarket)
	if !ok {
		return nil, fmt.Errorf("chainreader: unexpected getMarkets return shape")
	}
	infos := make([]marketInfo, 0, len(raw))
	for _, m := range raw {
		infos = append(infos, marketInfo{
			marketToken: m.MarketToken,
			indexToken:  m.IndexToken,
			longToken:   m.LongToken,
			shortToken:  m.ShortToken,
		})
	}
	return infos, nil
}

func (r *Reader) symbolOf(ctx context.Context, token common.Address) (string, error) {
	out, err := r.erc20(token).call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return out[0].(string), nil
}

// TokenBalance returns an ERC-20 token's balanceOf(holder), scaled by
// 10^decimals — used by the trade executor's pre-flight funding checks
// (USDC collateral, WETH execution fee), matching
// trade_executor.py's _get_vault_token_balance.
func (r *Reader) TokenBalance(ctx context.Context, token, holder common.Address, decimals int) (float64, error) {
	out, err := r.erc20(token).call(ctx, "balanceOf", holder)
	if err != nil {
		return 0, fmt.Errorf("chainreader: balanceOf: %w", err)
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chainreader: unexpected balanceOf return shape")
	}
	return weiToFloat(raw, math.Pow(10, float64(decimals))), nil
}

func normalizeSymbol(symbol string) string {
	clean := strings.ToUpper(symbol)
	if strings.HasPrefix(clean, "W") && len(clean) > 1 {
		clean = clean[1:]
	}
	return clean
}

// Positions reads the vault's open GMX positions via
// Reader.getAccountPositions, scaling sizeInUsd/sizeInTokens by the 10^30
// GMX price scale and collateralAmount by the 10^6 USDC scale, applying sign
// from isLong — mirrors vault_reader.py's get_positions/_parse_gmx_position.
func (r *Reader) Positions(ctx context.Context, vault common.Address) ([]domain.Position, error) {
	out, err := r.gmxReaderClient.call(ctx, "getAccountPositions", r.cfg.DataStoreAddress, vault, big.NewInt(0), big.NewInt(10))
	if err != nil {
		return nil, fmt.Errorf("chainreader: getAccountPositions: %w", err)
	}

	type addressesGroup struct {
		Account         common.Address
		Market          common.Address
		CollateralToken common.Address
	}
	type numbersGroup struct {
		SizeInUsd                              *big.Int
		SizeInTokens                           *big.Int
		CollateralAmount                       *big.Int
		BorrowingFactor                        *big.Int
		FundingFeeAmountPerSize                *big.Int
		LongTokenClaimableFundingAmountPerSize  *big.Int
		ShortTokenClaimableFundingAmountPerSize *big.Int
		IncreasedAtBlock                        *big.Int
		DecreasedAtBlock                        *big.Int
		IncreasedAtTime                         *big.Int
		DecreasedAtTime                         *big.Int
	}
	type flagsGroup struct {
		IsLong bool
	}
	type rawPosition struct {
		Addresses addressesGroup
		Numbers   numbersGroup
		Flags     flagsGroup
	}

	raw, ok := out[0].([]rawPosition)
	if !ok {
		return nil, fmt.Errorf("chainreader: unexpected getAccountPositions return shape")
	}

	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		sizeUSD := weiToFloat(p.Numbers.SizeInUsd, priceScale)
		if sizeUSD == 0 {
			continue
		}
		sizeTokens := weiToFloat(p.Numbers.SizeInTokens, priceScale)
		collateralUSD := weiToFloat(p.Numbers.CollateralAmount, usdcDecimals)

		symbol, err := r.symbolOf(ctx, p.Addresses.Market)
		if err != nil {
			symbol = p.Addresses.Market.Hex()
		}

		signedSize := sizeTokens
		if !p.Flags.IsLong {
			signedSize = -sizeTokens
		}

		leverage := 0.0
		if collateralUSD > 0 {
			leverage = sizeUSD / collateralUSD
		}

		positions = append(positions, domain.Position{
			MarketID:      p.Addresses.Market.Hex(),
			Asset:         normalizeSymbol(symbol),
			Size:          signedSize,
			SizeUSD:       sizeUSD,
			EntryPrice:    0, // GMX position struct carries no explicit entry price field
			CurrentPrice:  0,
			UnrealizedPnL: 0,
			Leverage:      leverage,
			CollateralUSD: collateralUSD,
		})
	}
	return positions, nil
}

// IndexPrice is the market data feed's on-chain price fallback, tried before
// the benchmark HTTP source. It resolves the asset's market and then always
// returns an error wrapping domain.ErrNotFound: no on-chain price is read,
// so the feed proceeds to the benchmark source.
func (r *Reader) IndexPrice(ctx context.Context, asset string) (float64, error) {
	market, err := r.ResolveMarket(ctx, asset)
	if err != nil {
		return 0, err
	}
	// The GMX Reader's index-price view requires a signed oracle price
	// payload that only the keeper network can provide off-chain; absent
	// that, TVL/shares-based vaults expose no standalone spot price, so the
	// feed's oracle fallback degrades to "unavailable" here and the caller
	// proceeds to the benchmark HTTP source.
	_ = market
	return 0, fmt.Errorf("chainreader: %w: index price requires signed oracle payload", domain.ErrNotFound)
}

func weiToFloat(v *big.Int, scale float64) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	scaled := new(big.Float).Quo(f, big.NewFloat(scale))
	out, _ := scaled.Float64()
	return out
}
