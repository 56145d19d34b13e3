package volatility

import (
	"context"
	"log"

	"order-gateway/pkg/exchanges/common"
)

// CandleSource provides historical candles, oldest first.
type CandleSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error)
}

// Stops pairs a stop-loss with a take-profit price.
type Stops struct {
	StopLoss   float64 `json:"stopLossPrice"`
	TakeProfit float64 `json:"takeProfitPrice"`
}

// Engine computes ATR from exchange candles and derives protective prices.
type Engine struct {
	source   CandleSource
	settings Settings
}

// NewEngine builds a volatility engine over a candle source.
func NewEngine(source CandleSource, settings Settings) *Engine {
	return &Engine{source: source, settings: settings}
}

// Settings returns the engine's stop parameters.
func (e *Engine) Settings() Settings {
	return e.settings
}

// ATR fetches period+1 candles (one extra for the first previous-close
// reference) and returns the average true range. Empty interval or
// non-positive period fall back to the configured defaults.
func (e *Engine) ATR(ctx context.Context, symbol, interval string, period int) (float64, error) {
	if interval == "" {
		interval = e.settings.Interval
	}
	if period <= 0 {
		period = e.settings.Period
	}
	candles, err := e.source.Klines(ctx, symbol, interval, period+1)
	if err != nil {
		return 0, err
	}
	return ATR(candles, period)
}

// DynamicStops derives protective prices from ATR when possible and falls
// back to the fixed-percentage rule otherwise. It always returns a usable
// pair; ATR failure is absorbed here, never surfaced.
func (e *Engine) DynamicStops(ctx context.Context, symbol string, side common.Side, entryPrice float64) Stops {
	atr, err := e.ATR(ctx, symbol, "", 0)
	if err != nil || atr <= 0 {
		log.Printf("[VOL] atr unavailable for %s, using %.2f%% fallback: %v",
			symbol, e.settings.FallbackRiskPct*100, err)
		return FallbackStops(side, entryPrice, e.settings.FallbackRiskPct, e.settings.RiskReward)
	}
	return StopsFromATR(side, entryPrice, atr, e.settings.ATRMultiplier, e.settings.RiskReward)
}

// StopsFromATR derives stops at atr*mult from entry, with the take-profit
// scaled by the risk-reward ratio. BUY stops sit below the entry and
// targets above; SELL is the mirror image.
func StopsFromATR(side common.Side, entry, atr, mult, rr float64) Stops {
	risk := atr * mult
	if side == common.SideSell {
		return Stops{StopLoss: entry + risk, TakeProfit: entry - risk*rr}
	}
	return Stops{StopLoss: entry - risk, TakeProfit: entry + risk*rr}
}

// FallbackStops applies a symmetric percentage risk around the entry. It is
// total: any positive entry yields a valid pair.
func FallbackStops(side common.Side, entry, riskPct, rr float64) Stops {
	risk := entry * riskPct
	if side == common.SideSell {
		return Stops{StopLoss: entry + risk, TakeProfit: entry - risk*rr}
	}
	return Stops{StopLoss: entry - risk, TakeProfit: entry + risk*rr}
}
