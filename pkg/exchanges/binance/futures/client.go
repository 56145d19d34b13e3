package futures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"order-gateway/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials and tuning.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
	MaxRetries int   // transient-failure retry ceiling for idempotent reads

	// RetryBaseDelay seeds the exponential backoff between retries.
	RetryBaseDelay time.Duration

	// SyncInterval is the clock sync period.
	SyncInterval time.Duration

	// BaseURL overrides the venue URL; used by tests.
	BaseURL string
}

// Client signs and issues authenticated calls against Binance USDT-M futures.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	timeSync   *common.TimeSync
	weights    *common.WeightTracker
}

// NewClient creates a futures client. Call TimeSync().Start to begin clock
// synchronization before placing signed requests.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://fapi.binance.com"
		if cfg.Testnet {
			base = "https://testnet.binancefuture.com"
		}
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		weights:    common.NewWeightTracker(2400, time.Minute),
	}
	c.timeSync = common.NewTimeSync(cfg.SyncInterval, c.ServerTime)
	return c
}

// TimeSync exposes the clock sync manager for startup wiring and the API
// layer's adjusted-time endpoint.
func (c *Client) TimeSync() *common.TimeSync {
	return c.timeSync
}

// Weights exposes the exchange weight tracker.
func (c *Client) Weights() *common.WeightTracker {
	return c.weights
}

// ServerTime fetches the futures server clock (unauthenticated).
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, common.Transientf("server time: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return 0, common.Transientf("server time status %d: %s", res.StatusCode, string(b))
	}
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ServerTime, nil
}

// PlaceOrder submits an order. Placement is never retried at the network
// layer: a timed-out POST may still have reached the matching engine.
func (c *Client) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderAck, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderAck{}, errors.New("binance futures: API key/secret required")
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Qty))

	switch req.Type {
	case common.OrderTypeLimit:
		params.Set("price", formatFloat(req.Price))
		tif := req.TimeInForce
		if tif == "" {
			tif = common.TIFGTC
		}
		params.Set("timeInForce", string(tif))
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		params.Set("stopPrice", formatFloat(req.StopPrice))
	}

	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	// Ask for the final order state in the ack so fills are visible
	// immediately for market orders.
	params.Set("newOrderRespType", "RESULT")

	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderAck{}, err
	}

	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderAck{}, fmt.Errorf("decode order ack: %w", err)
	}
	return common.OrderAck{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientID:        resp.ClientOrderID,
		Symbol:          resp.Symbol,
		Side:            common.Side(resp.Side),
		Type:            common.OrderType(resp.Type),
		Status:          mapStatus(resp.Status),
		ExecutedQty:     parseFloat(resp.ExecutedQty),
		AvgPrice:        parseFloat(resp.AvgPrice),
		StopPrice:       parseFloat(resp.StopPrice),
	}, nil
}

// CancelOrder cancels an open order by exchange ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", exchangeOrderID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// Account returns the futures account snapshot. Read-only, so transient
// failures are retried up to the configured ceiling.
func (c *Client) Account(ctx context.Context) (*AccountSnapshot, error) {
	body, err := c.signedRead(ctx, "/fapi/v2/account", url.Values{})
	if err != nil {
		return nil, err
	}
	var info AccountSnapshot
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &info, nil
}

// Positions returns position risk rows; symbol optional.
func (c *Client) Positions(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.signedRead(ctx, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var pos []PositionRisk
	if err := json.Unmarshal(body, &pos); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return pos, nil
}

// signedRead issues a signed GET with bounded retry on transient failures.
// Each attempt is signed fresh so the timestamp stays inside recvWindow.
func (c *Client) signedRead(ctx context.Context, path string, params url.Values) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}
		body, err := c.doSigned(ctx, http.MethodGet, path, cloneValues(params))
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

// doSigned merges timestamp and recvWindow into params, signs the canonical
// query string, and issues the call with the API-key header set.
//
// url.Values.Encode sorts keys in byte order, and the signature is computed
// over exactly the encoded bytes that go on the wire. Any divergence between
// the signed and transmitted strings is rejected upstream.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(c.timeSync.Now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	payload := params.Encode()
	query := payload + "&signature=" + sign(payload, c.cfg.APISecret)

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+query, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(query))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.Transientf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	c.weights.Observe(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		var eresp errorResp
		_ = json.Unmarshal(body, &eresp)
		apiErr := common.ClassifyExchangeError(res.StatusCode, eresp.Code, strings.TrimSpace(eresp.Msg))
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("%s %s status %d", method, path, res.StatusCode)
		}
		if apiErr.Kind == common.KindSignature {
			// Clock drift or a canonicalization bug; refresh the offset
			// before the next signed call.
			c.timeSync.Resync()
		}
		return nil, apiErr
	}
	return body, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
