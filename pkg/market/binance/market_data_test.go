package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-gateway/pkg/exchanges/common"
)

func TestKlinesParsesPositionalArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
			t.Fatalf("unexpected query: %v", q)
		}
		w.Write([]byte(`[
			[1700000000000, "42000.1", "42100.5", "41900.0", "42050.2", "123.45", 1700003599999, "0", 100, "0", "0", "0"],
			[1700003600000, "42050.2", "42200.0", "42000.0", "42150.0", "98.76", 1700007199999, "0", 90, "0", "0", "0"]
		]`))
	}))
	defer srv.Close()

	c := NewMarketDataClientURL(srv.URL)
	candles, err := c.Klines(context.Background(), "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if first.OpenTime != 1700000000000 || first.Open != 42000.1 || first.High != 42100.5 ||
		first.Low != 41900.0 || first.Close != 42050.2 || first.Volume != 123.45 {
		t.Fatalf("unexpected first candle: %+v", first)
	}
	if candles[0].OpenTime >= candles[1].OpenTime {
		t.Fatal("candles must stay oldest first")
	}
}

func TestTickerPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "BTCUSDT", "price": "42000.50"}`))
	}))
	defer srv.Close()

	c := NewMarketDataClientURL(srv.URL)
	price, err := c.TickerPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if price != 42000.50 {
		t.Fatalf("got %v, want 42000.50", price)
	}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"serverTime": 1700000000000}`))
	}))
	defer srv.Close()

	c := NewMarketDataClientURL(srv.URL)
	ts, err := c.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	if ts != 1700000000000 || calls != 2 {
		t.Fatalf("ts=%d calls=%d", ts, calls)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
	}))
	defer srv.Close()

	c := NewMarketDataClientURL(srv.URL)
	if _, err := c.TickerPrice(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("got %d calls, 4xx must not retry", calls)
	}
}

func TestExchangeInfoDecodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols": [{"symbol": "BTCUSDT", "status": "TRADING", "filters": [
			{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "1000", "stepSize": "0.001"},
			{"filterType": "MIN_NOTIONAL", "notional": "100"}
		]}]}`))
	}))
	defer srv.Close()

	c := NewMarketDataClientURL(srv.URL)
	info, err := c.ExchangeInfo(context.Background())
	if err != nil {
		t.Fatalf("exchangeInfo: %v", err)
	}
	if len(info.Symbols) != 1 || info.Symbols[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Symbols[0].Filters[0].StepSize != "0.001" {
		t.Fatalf("filters not decoded: %+v", info.Symbols[0].Filters)
	}
}

func TestRetriesSurfaceAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewMarketDataClientURL(srv.URL)
	_, err := c.ServerTime(context.Background())
	if common.KindOf(err) != common.KindTransient {
		t.Fatalf("got kind %s, want transient", common.KindOf(err))
	}
}
