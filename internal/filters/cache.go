package filters

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"order-gateway/pkg/exchanges/common"
	market "order-gateway/pkg/market/binance"
)

// InstrumentFilters holds the trading constraints for one symbol. Fields are
// decimals so grid membership checks stay exact at the validation boundary.
type InstrumentFilters struct {
	Symbol      string
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	StepSize    decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	TickSize    decimal.Decimal
	MinNotional decimal.Decimal
}

// InfoSource fetches the exchange instrument list.
type InfoSource interface {
	ExchangeInfo(ctx context.Context) (*market.ExchangeInfo, error)
}

// Cache resolves per-symbol filters lazily with a TTL. One fetch pulls the
// whole instrument list and stamps a new cache epoch; concurrent misses
// collapse into a single upstream call.
type Cache struct {
	source InfoSource
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]InstrumentFilters
	fetched time.Time

	group singleflight.Group
}

// NewCache creates a filter cache with the given epoch TTL.
func NewCache(source InfoSource, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]InstrumentFilters),
	}
}

// FiltersFor returns the constraints for symbol, refetching the instrument
// list when the epoch has expired. An expired entry is never served: a
// failed refresh surfaces the error instead of stale data.
func (c *Cache) FiltersFor(ctx context.Context, symbol string) (InstrumentFilters, error) {
	c.mu.RLock()
	fresh := !c.fetched.IsZero() && time.Since(c.fetched) < c.ttl
	f, ok := c.entries[symbol]
	c.mu.RUnlock()

	if fresh {
		if ok {
			return f, nil
		}
		// The epoch list is complete; a missing symbol is not listed.
		return InstrumentFilters{}, common.Validationf("symbol %s not listed on exchange", symbol)
	}

	if _, err, _ := c.group.Do("exchangeInfo", func() (any, error) {
		return nil, c.refresh(ctx)
	}); err != nil {
		return InstrumentFilters{}, err
	}

	c.mu.RLock()
	f, ok = c.entries[symbol]
	c.mu.RUnlock()
	if !ok {
		return InstrumentFilters{}, common.Validationf("symbol %s not listed on exchange", symbol)
	}
	return f, nil
}

// refresh replaces the whole entry map atomically from one exchangeInfo
// fetch.
func (c *Cache) refresh(ctx context.Context) error {
	info, err := c.source.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch exchangeInfo: %w", err)
	}

	entries := make(map[string]InstrumentFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		f, err := parseFilters(s)
		if err != nil {
			log.Printf("[FILTERS] skipping %s: %v", s.Symbol, err)
			continue
		}
		entries[s.Symbol] = f
	}

	c.mu.Lock()
	c.entries = entries
	c.fetched = time.Now()
	c.mu.Unlock()
	return nil
}

func parseFilters(s market.SymbolInfo) (InstrumentFilters, error) {
	out := InstrumentFilters{Symbol: s.Symbol}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			var err error
			if out.MinQty, err = decimal.NewFromString(f.MinQty); err != nil {
				return out, fmt.Errorf("minQty: %w", err)
			}
			if out.MaxQty, err = decimal.NewFromString(f.MaxQty); err != nil {
				return out, fmt.Errorf("maxQty: %w", err)
			}
			if out.StepSize, err = decimal.NewFromString(f.StepSize); err != nil {
				return out, fmt.Errorf("stepSize: %w", err)
			}
		case "PRICE_FILTER":
			var err error
			if out.MinPrice, err = decimal.NewFromString(f.MinPrice); err != nil {
				return out, fmt.Errorf("minPrice: %w", err)
			}
			if out.MaxPrice, err = decimal.NewFromString(f.MaxPrice); err != nil {
				return out, fmt.Errorf("maxPrice: %w", err)
			}
			if out.TickSize, err = decimal.NewFromString(f.TickSize); err != nil {
				return out, fmt.Errorf("tickSize: %w", err)
			}
		case "MIN_NOTIONAL":
			raw := f.Notional
			if raw == "" {
				raw = f.MinNotional
			}
			if raw != "" {
				var err error
				if out.MinNotional, err = decimal.NewFromString(raw); err != nil {
					return out, fmt.Errorf("minNotional: %w", err)
				}
			}
		}
	}
	return out, nil
}
