package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// BenchmarkClient is the primary price source for the market data feed: a
// small REST client over a configured price-benchmark API.
type BenchmarkClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBenchmarkClient creates a BenchmarkClient rooted at baseURL.
func NewBenchmarkClient(baseURL string) *BenchmarkClient {
	return &BenchmarkClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type benchmarkPriceResponse struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// LatestPrice fetches the current spot price for asset from the benchmark
// source.
func (b *BenchmarkClient) LatestPrice(ctx context.Context, asset string) (float64, error) {
	path := fmt.Sprintf("/price?asset=%s", url.QueryEscape(asset))

	body, err := b.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("feed/benchmark: latest price %s: %w", asset, err)
	}

	var resp benchmarkPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("feed/benchmark: decode price %s: %w", asset, err)
	}
	return resp.Price, nil
}

func (b *BenchmarkClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
