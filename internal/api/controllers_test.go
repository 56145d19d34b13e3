package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"order-gateway/internal/bracket"
	"order-gateway/internal/filters"
	"order-gateway/internal/monitor"
	"order-gateway/internal/volatility"
	"order-gateway/pkg/exchanges/binance/futures"
	"order-gateway/pkg/exchanges/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrders struct {
	res *bracket.Result
	err error
}

func (f *fakeOrders) PlaceOrder(ctx context.Context, req bracket.Request) (*bracket.Result, error) {
	return f.res, f.err
}

type fakeFilters struct {
	f   filters.InstrumentFilters
	err error
}

func (f *fakeFilters) FiltersFor(ctx context.Context, symbol string) (filters.InstrumentFilters, error) {
	return f.f, f.err
}

type fakeOrderValidator struct{ err error }

func (f *fakeOrderValidator) Validate(ctx context.Context, symbol string, quantity, price float64) error {
	return f.err
}

type fakeVol struct {
	atr    float64
	atrErr error
	stops  volatility.Stops
}

func (f *fakeVol) ATR(ctx context.Context, symbol, interval string, period int) (float64, error) {
	return f.atr, f.atrErr
}

func (f *fakeVol) DynamicStops(ctx context.Context, symbol string, side common.Side, entryPrice float64) volatility.Stops {
	return f.stops
}

type fakeAccounts struct {
	snap *futures.AccountSnapshot
	err  error
}

func (f *fakeAccounts) Account(ctx context.Context) (*futures.AccountSnapshot, error) {
	return f.snap, f.err
}

type fakeCandles struct{ candles []common.Candle }

func (f *fakeCandles) Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	return f.candles, nil
}

type fakeTickerSvc struct {
	price float64
	err   error
}

func (f *fakeTickerSvc) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.err
}

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) LastPrice(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

func testServer(t *testing.T, d Deps) *Server {
	t.Helper()
	if d.Orders == nil {
		d.Orders = &fakeOrders{res: &bracket.Result{}}
	}
	if d.Validator == nil {
		d.Validator = &fakeOrderValidator{}
	}
	if d.Vol == nil {
		d.Vol = &fakeVol{atr: 350, stops: volatility.Stops{StopLoss: 41000, TakeProfit: 44000}}
	}
	if d.Filters == nil {
		d.Filters = &fakeFilters{f: filters.InstrumentFilters{Symbol: "BTCUSDT"}}
	}
	if d.Accounts == nil {
		d.Accounts = &fakeAccounts{snap: &futures.AccountSnapshot{CanTrade: true}}
	}
	if d.Candles == nil {
		d.Candles = &fakeCandles{}
	}
	if d.Ticker == nil {
		d.Ticker = &fakeTickerSvc{price: 42000}
	}
	if d.Metrics == nil {
		d.Metrics = monitor.NewMetrics()
	}
	if d.JWTSecret == "" {
		d.JWTSecret = "test-secret"
	}
	s, err := NewServer(d)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func doRequest(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := testServer(t, Deps{})
	w := doRequest(s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body: %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := testServer(t, Deps{APIUser: "operator", APIPassword: "hunter2"})

	w := doRequest(s, http.MethodGet, "/api/account", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401 without token", w.Code)
	}

	w = doRequest(s, http.MethodPost, "/api/orders", `{"symbol":"BTCUSDT"}`, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401 with bad token", w.Code)
	}
}

func TestLoginAndPlaceOrder(t *testing.T) {
	orders := &fakeOrders{res: &bracket.Result{
		Entry:     common.OrderAck{ExchangeOrderID: "1", Status: common.StatusFilled},
		Bracketed: true,
		StopLoss:  &bracket.LegOutcome{Placed: true},
	}}
	s := testServer(t, Deps{Orders: orders, APIUser: "operator", APIPassword: "hunter2"})

	w := doRequest(s, http.MethodPost, "/api/auth/login",
		`{"user":"operator","password":"hunter2"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("no token in response: %s", w.Body)
	}

	w = doRequest(s, http.MethodPost, "/api/orders",
		`{"symbol":"BTCUSDT","side":"BUY","type":"MARKET","quantity":0.01,"placeSLTP":true}`,
		map[string]string{"Authorization": "Bearer " + login.Token})
	if w.Code != http.StatusOK {
		t.Fatalf("order status %d: %s", w.Code, w.Body)
	}
	var res bracket.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Bracketed || res.Entry.ExchangeOrderID != "1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := testServer(t, Deps{APIUser: "operator", APIPassword: "hunter2"})

	w := doRequest(s, http.MethodPost, "/api/auth/login",
		`{"user":"operator","password":"wrong"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
}

func TestLoginDisabledWithoutPassword(t *testing.T) {
	s := testServer(t, Deps{APIUser: "operator"})

	w := doRequest(s, http.MethodPost, "/api/auth/login",
		`{"user":"operator","password":"anything"}`, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", w.Code)
	}
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	token := loginToken(t)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", common.Validationf("qty off grid"), http.StatusBadRequest},
		{"transient", common.Transientf("venue down"), http.StatusServiceUnavailable},
		{"rejection", common.ClassifyExchangeError(400, -2019, "margin"), http.StatusBadGateway},
		{"signature", common.ClassifyExchangeError(400, -1021, "recvWindow"), http.StatusBadGateway},
		{"insufficient data", common.InsufficientDataf("short history"), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, Deps{
				Orders:      &fakeOrders{err: tt.err},
				APIUser:     "operator",
				APIPassword: "hunter2",
			})
			w := doRequest(s, http.MethodPost, "/api/orders",
				`{"symbol":"BTCUSDT","side":"BUY","type":"MARKET","quantity":0.01}`,
				map[string]string{"Authorization": "Bearer " + token})
			if w.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestPlaceOrderUnprotectedFillReturnsResultWithError(t *testing.T) {
	token := loginToken(t)
	orders := &fakeOrders{
		res: &bracket.Result{
			Entry:       common.OrderAck{ExchangeOrderID: "9", Status: common.StatusFilled},
			Bracketed:   true,
			Unprotected: true,
			Warning:     "entry filled but left unprotected: bad sidedness",
		},
		err: common.Validationf("BUY bracket requires stopLoss below entry"),
	}
	s := testServer(t, Deps{Orders: orders, APIUser: "operator", APIPassword: "hunter2"})

	w := doRequest(s, http.MethodPost, "/api/orders",
		`{"symbol":"BTCUSDT","side":"BUY","type":"MARKET","quantity":0.01,"placeSLTP":true,"stopLossPrice":43000,"takeProfitPrice":45000}`,
		map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", w.Code, w.Body)
	}
	var body struct {
		Error  string          `json:"error"`
		Result *bracket.Result `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Result == nil || !body.Result.Unprotected {
		t.Fatalf("response must carry the unprotected fill: %s", w.Body)
	}
	if body.Error == "" {
		t.Fatal("response must carry the validation error")
	}
}

// loginToken issues a token against a throwaway server sharing the test
// JWT secret.
func loginToken(t *testing.T) string {
	t.Helper()
	s := testServer(t, Deps{APIUser: "operator", APIPassword: "hunter2"})
	w := doRequest(s, http.MethodPost, "/api/auth/login",
		`{"user":"operator","password":"hunter2"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return login.Token
}

func TestPostValidate(t *testing.T) {
	s := testServer(t, Deps{Validator: &fakeOrderValidator{}})
	w := doRequest(s, http.MethodPost, "/api/validate",
		`{"symbol":"BTCUSDT","quantity":0.01,"price":42000.5}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), `"valid":true`) {
		t.Fatalf("body: %s", w.Body)
	}
}

func TestPostValidateViolation(t *testing.T) {
	s := testServer(t, Deps{Validator: &fakeOrderValidator{err: common.Validationf("off grid")}})
	w := doRequest(s, http.MethodPost, "/api/validate",
		`{"symbol":"BTCUSDT","quantity":0.0015}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), `"valid":false`) {
		t.Fatalf("body: %s", w.Body)
	}
}

func TestPostValidateBadPayload(t *testing.T) {
	s := testServer(t, Deps{})
	w := doRequest(s, http.MethodPost, "/api/validate", `{"symbol":""}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}

func TestPostStops(t *testing.T) {
	s := testServer(t, Deps{})
	w := doRequest(s, http.MethodPost, "/api/stops",
		`{"symbol":"BTCUSDT","side":"BUY","entryPrice":42000}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	var stops volatility.Stops
	if err := json.Unmarshal(w.Body.Bytes(), &stops); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stops.StopLoss != 41000 || stops.TakeProfit != 44000 {
		t.Fatalf("unexpected stops: %+v", stops)
	}
}

func TestGetATRInsufficientData(t *testing.T) {
	s := testServer(t, Deps{Vol: &fakeVol{atrErr: common.InsufficientDataf("need more candles")}})
	w := doRequest(s, http.MethodGet, "/api/atr?symbol=BTCUSDT&period=14", "", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, want 422: %s", w.Code, w.Body)
	}
}

func TestGetPricePrefersStream(t *testing.T) {
	s := testServer(t, Deps{
		Prices: &fakePrices{prices: map[string]float64{"BTCUSDT": 42123.4}},
		Ticker: &fakeTickerSvc{price: 41000},
	})
	w := doRequest(s, http.MethodGet, "/api/price/BTCUSDT", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), `"source":"stream"`) {
		t.Fatalf("expected stream source: %s", w.Body)
	}

	// Symbol not in the cache falls back to REST.
	w = doRequest(s, http.MethodGet, "/api/price/ETHUSDT", "", nil)
	if !strings.Contains(w.Body.String(), `"source":"rest"`) {
		t.Fatalf("expected rest fallback: %s", w.Body)
	}
}

func TestGetFiltersUnknownSymbol(t *testing.T) {
	s := testServer(t, Deps{Filters: &fakeFilters{err: common.Validationf("symbol NOPE not listed on exchange")}})
	w := doRequest(s, http.MethodGet, "/api/filters/NOPE", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", w.Code, w.Body)
	}
}

func TestGetKlinesRequiresSymbol(t *testing.T) {
	s := testServer(t, Deps{})
	w := doRequest(s, http.MethodGet, "/api/klines", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}
