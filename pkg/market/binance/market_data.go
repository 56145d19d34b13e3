package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"order-gateway/pkg/exchanges/common"
)

// MarketDataClient wraps the unauthenticated futures market data endpoints.
type MarketDataClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

// NewMarketDataClient builds a public data client; testnet toggles the host.
func NewMarketDataClient(testnet bool) *MarketDataClient {
	base := "https://fapi.binance.com"
	if testnet {
		base = "https://testnet.binancefuture.com"
	}
	return &MarketDataClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
	}
}

// NewMarketDataClientURL builds a client against an explicit base URL; used
// by tests.
func NewMarketDataClientURL(baseURL string) *MarketDataClient {
	c := NewMarketDataClient(false)
	c.baseURL = baseURL
	c.retryBase = 5 * time.Millisecond
	return c
}

// ServerTime fetches the exchange clock in milliseconds.
func (c *MarketDataClient) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// ExchangeInfo fetches the full instrument list with per-symbol filters.
func (c *MarketDataClient) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.do(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchangeInfo: %w", err)
	}
	return &info, nil
}

// Klines returns closed candles ordered oldest first.
func (c *MarketDataClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.do(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	// Each kline is a positional array: openTime, open, high, low, close,
	// volume, closeTime, ...
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	candles := make([]common.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		candles = append(candles, common.Candle{
			OpenTime: toInt64(k[0]),
			Open:     toFloat(k[1]),
			High:     toFloat(k[2]),
			Low:      toFloat(k[3]),
			Close:    toFloat(k[4]),
			Volume:   toFloat(k[5]),
		})
	}
	return candles, nil
}

// TickerPrice returns the last traded price for a symbol.
func (c *MarketDataClient) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.do(ctx, "/fapi/v1/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

// do issues one GET with bounded retry on transient failures. Market data
// reads are idempotent, so retrying is always safe.
func (c *MarketDataClient) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}
		body, err := c.get(ctx, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !common.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *MarketDataClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.Transientf("GET %s: %v", path, err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == 418 || res.StatusCode >= 500 {
			return nil, common.Transientf("GET %s status %d: %s", path, res.StatusCode, string(body))
		}
		return nil, fmt.Errorf("GET %s status %d: %s", path, res.StatusCode, string(body))
	}
	return body, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		i, _ := strconv.ParseInt(t, 10, 64)
		return i
	default:
		return 0
	}
}
