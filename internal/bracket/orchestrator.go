package bracket

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"order-gateway/internal/events"
	"order-gateway/internal/filters"
	"order-gateway/internal/volatility"
	"order-gateway/pkg/exchanges/common"
)

// OrderPlacer submits orders to the exchange.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderAck, error)
}

// OrderValidator checks an order against instrument constraints.
type OrderValidator interface {
	Validate(ctx context.Context, symbol string, quantity, price float64) error
}

// StopComputer derives protective prices for a filled entry. It is total:
// it always returns a usable pair.
type StopComputer interface {
	DynamicStops(ctx context.Context, symbol string, side common.Side, entryPrice float64) volatility.Stops
}

// PriceSource supplies a last price when the entry ack lacks one.
type PriceSource interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// FilterSource supplies instrument constraints for tick-grid snapping of
// computed protective prices.
type FilterSource interface {
	FiltersFor(ctx context.Context, symbol string) (filters.InstrumentFilters, error)
}

// Orchestrator drives one order through validation, entry placement, and —
// for an immediately filled entry with a bracket requested — two
// independent protective legs.
type Orchestrator struct {
	placer    OrderPlacer
	validator OrderValidator
	stops     StopComputer
	prices    PriceSource
	filters   FilterSource
	bus       *events.Bus
}

// New wires the orchestrator. filters and bus may be nil.
func New(placer OrderPlacer, validator OrderValidator, stops StopComputer, prices PriceSource, filters FilterSource, bus *events.Bus) *Orchestrator {
	return &Orchestrator{
		placer:    placer,
		validator: validator,
		stops:     stops,
		prices:    prices,
		filters:   filters,
		bus:       bus,
	}
}

// PlaceOrder executes the bracket lifecycle. On a sidedness violation after
// a filled entry it returns both the result (so the caller sees the open,
// unprotected position) and the validation error.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	if !req.Side.Valid() {
		return nil, common.Validationf("side must be BUY or SELL, got %q", req.Side)
	}
	if req.Type != common.OrderTypeMarket && req.Type != common.OrderTypeLimit {
		return nil, common.Validationf("entry type must be MARKET or LIMIT, got %q", req.Type)
	}
	if req.Type == common.OrderTypeLimit && req.Price <= 0 {
		return nil, common.Validationf("limit order requires a positive price")
	}

	// Validation happens before any network call for the entry.
	if err := o.validator.Validate(ctx, req.Symbol, req.Quantity, req.Price); err != nil {
		return nil, err
	}

	entry := common.OrderRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Qty:      req.Quantity,
		Price:    req.Price,
		ClientID: "gw-" + uuid.NewString(),
	}
	ack, err := o.placer.PlaceOrder(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("entry order: %w", err)
	}
	o.publish(OrderUpdate{Stage: "entry_submitted", Symbol: req.Symbol, Order: ack})

	res := &Result{Entry: ack}

	// Protective orders only attach to an immediately filled entry; a
	// resting limit order returns alone.
	if !req.PlaceSLTP || ack.Status != common.StatusFilled {
		return res, nil
	}
	res.Bracketed = true
	o.publish(OrderUpdate{Stage: "entry_filled", Symbol: req.Symbol, Order: ack})

	entryPrice, err := o.entryPrice(ctx, req, ack)
	if err != nil {
		res.Unprotected = true
		res.Warning = "entry filled but left unprotected: " + err.Error()
		return res, err
	}

	stops, err := o.resolveStops(ctx, req, entryPrice)
	if err != nil {
		// Sidedness violation: no protective order is placed; the filled
		// position stands unprotected and must be visible to the caller.
		res.Unprotected = true
		res.Warning = "entry filled but left unprotected: " + err.Error()
		return res, err
	}

	qty := ack.ExecutedQty
	if qty <= 0 {
		qty = req.Quantity
	}
	exit := req.Side.Opposite()

	// Both legs are attempted unconditionally; one leg failing never
	// aborts the other and never rolls back the entry.
	res.StopLoss = o.placeLeg(ctx, req.Symbol, exit, common.OrderTypeStopMarket, qty, stops.StopLoss)
	res.TakeProfit = o.placeLeg(ctx, req.Symbol, exit, common.OrderTypeTakeProfitMarket, qty, stops.TakeProfit)

	if !res.StopLoss.Placed && !res.TakeProfit.Placed {
		res.Unprotected = true
		res.Warning = "entry filled but both protective orders failed"
	}
	return res, nil
}

// entryPrice resolves the price protective orders are anchored to: the fill
// ack's average price, the limit price, or the last ticker price.
func (o *Orchestrator) entryPrice(ctx context.Context, req Request, ack common.OrderAck) (float64, error) {
	if ack.AvgPrice > 0 {
		return ack.AvgPrice, nil
	}
	if req.Price > 0 {
		return req.Price, nil
	}
	price, err := o.prices.TickerPrice(ctx, req.Symbol)
	if err != nil {
		return 0, fmt.Errorf("resolve entry price: %w", err)
	}
	return price, nil
}

// resolveStops picks explicit caller prices (sidedness-checked) or computed
// dynamic stops.
func (o *Orchestrator) resolveStops(ctx context.Context, req Request, entryPrice float64) (volatility.Stops, error) {
	if req.StopLossPrice > 0 || req.TakeProfitPrice > 0 {
		if req.StopLossPrice <= 0 || req.TakeProfitPrice <= 0 {
			return volatility.Stops{}, common.Validationf(
				"explicit bracket requires both stopLossPrice and takeProfitPrice")
		}
		if err := checkSidedness(req.Side, entryPrice, req.StopLossPrice, req.TakeProfitPrice); err != nil {
			return volatility.Stops{}, err
		}
		return volatility.Stops{StopLoss: req.StopLossPrice, TakeProfit: req.TakeProfitPrice}, nil
	}
	return o.snapStops(ctx, req.Symbol, o.stops.DynamicStops(ctx, req.Symbol, req.Side, entryPrice)), nil
}

// snapStops aligns computed protective prices to the symbol's tick grid so
// the exchange does not reject them for price granularity. Best effort: with
// no filter source, or when filters are unavailable, the raw prices are kept.
func (o *Orchestrator) snapStops(ctx context.Context, symbol string, s volatility.Stops) volatility.Stops {
	if o.filters == nil {
		return s
	}
	f, err := o.filters.FiltersFor(ctx, symbol)
	if err != nil {
		log.Printf("[BRACKET] filters unavailable for %s, placing unsnapped stops: %v", symbol, err)
		return s
	}
	if f.TickSize.IsZero() {
		return s
	}
	s.StopLoss = snapToTick(s.StopLoss, f.TickSize)
	s.TakeProfit = snapToTick(s.TakeProfit, f.TickSize)
	return s
}

// snapToTick rounds price to the nearest tick-grid point.
func snapToTick(price float64, tick decimal.Decimal) float64 {
	snapped, _ := decimal.NewFromFloat(price).Div(tick).Round(0).Mul(tick).Float64()
	return snapped
}

// checkSidedness enforces stop < entry < target for BUY and the reverse
// for SELL.
func checkSidedness(side common.Side, entry, stopLoss, takeProfit float64) error {
	switch side {
	case common.SideBuy:
		if !(stopLoss < entry && entry < takeProfit) {
			return common.Validationf(
				"BUY bracket requires stopLoss %v < entry %v < takeProfit %v",
				stopLoss, entry, takeProfit)
		}
	case common.SideSell:
		if !(takeProfit < entry && entry < stopLoss) {
			return common.Validationf(
				"SELL bracket requires takeProfit %v < entry %v < stopLoss %v",
				takeProfit, entry, stopLoss)
		}
	}
	return nil
}

// placeLeg submits one protective order and records the outcome as data.
func (o *Orchestrator) placeLeg(ctx context.Context, symbol string, side common.Side, typ common.OrderType, qty, stopPrice float64) *LegOutcome {
	ack, err := o.placer.PlaceOrder(ctx, common.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       typ,
		Qty:        qty,
		StopPrice:  stopPrice,
		ClientID:   "gw-" + uuid.NewString(),
		ReduceOnly: true,
	})
	if err != nil {
		log.Printf("[BRACKET] %s %s leg failed for %s: %v", side, typ, symbol, err)
		o.publish(OrderUpdate{Stage: "leg_failed", Symbol: symbol, Detail: fmt.Sprintf("%s: %v", typ, err)})
		return &LegOutcome{Placed: false, Error: err.Error()}
	}
	o.publish(OrderUpdate{Stage: "leg_placed", Symbol: symbol, Order: ack})
	return &LegOutcome{Placed: true, Order: &ack}
}

func (o *Orchestrator) publish(u OrderUpdate) {
	if o.bus != nil {
		o.bus.Publish(events.EventOrderUpdate, u)
	}
}
