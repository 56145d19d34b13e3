package market

import (
	"context"
	"log"
	"sync"
	"time"

	"order-gateway/internal/events"
	"order-gateway/pkg/exchanges/common"
	marketpkg "order-gateway/pkg/market/binance"
)

// Feed streams mark prices for the configured symbols, publishes ticks on
// the event bus, and keeps an in-memory last-price cache for the API layer.
type Feed struct {
	Client  *marketpkg.MarketDataClient
	Stream  *marketpkg.StreamClient
	Bus     *events.Bus
	Symbols []string

	mu     sync.RWMutex
	prices map[string]common.PriceTick
}

// Start kicks off one websocket subscription per symbol plus a REST polling
// fallback to cover stream gaps.
func (f *Feed) Start(ctx context.Context) {
	if f.Client == nil || f.Stream == nil {
		log.Println("[MARKET] feed not fully configured; skipping start")
		return
	}

	for _, sym := range f.Symbols {
		symbol := sym
		ch, stop, err := f.Stream.SubscribeMarkPrice(ctx, symbol)
		if err != nil {
			log.Printf("[MARKET] ws subscribe %s error: %v", symbol, err)
			continue
		}
		go func() {
			defer stop()
			for tick := range ch {
				f.record(tick)
			}
		}()
	}

	go f.pollSnapshots(ctx)
}

// LastPrice returns the most recent observed price for symbol.
func (f *Feed) LastPrice(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tick, ok := f.prices[symbol]
	return tick.Price, ok
}

func (f *Feed) record(tick common.PriceTick) {
	f.mu.Lock()
	if f.prices == nil {
		f.prices = make(map[string]common.PriceTick)
	}
	f.prices[tick.Symbol] = tick
	f.mu.Unlock()

	if f.Bus != nil {
		f.Bus.Publish(events.EventPriceTick, tick)
	}
}

func (f *Feed) pollSnapshots(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range f.Symbols {
				price, err := f.Client.TickerPrice(ctx, sym)
				if err != nil {
					log.Printf("[MARKET] snapshot %s error: %v", sym, err)
					continue
				}
				f.record(common.PriceTick{Symbol: sym, Price: price, Time: time.Now().UnixMilli()})
			}
		}
	}
}
