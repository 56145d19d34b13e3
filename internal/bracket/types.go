package bracket

import "order-gateway/pkg/exchanges/common"

// Request is a caller order intent, optionally with a protective bracket.
// StopLossPrice and TakeProfitPrice are optional; when both are zero and
// PlaceSLTP is set, the volatility engine derives them.
type Request struct {
	Symbol          string           `json:"symbol"`
	Side            common.Side      `json:"side"`
	Type            common.OrderType `json:"type"`
	Quantity        float64          `json:"quantity"`
	Price           float64          `json:"price,omitempty"`
	PlaceSLTP       bool             `json:"placeSLTP"`
	StopLossPrice   float64          `json:"stopLossPrice,omitempty"`
	TakeProfitPrice float64          `json:"takeProfitPrice,omitempty"`
}

// LegOutcome records one protective leg: either the exchange ack or the
// failure that left the leg unplaced. Failures are data, not aborts.
type LegOutcome struct {
	Placed bool             `json:"placed"`
	Order  *common.OrderAck `json:"order,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Result aggregates the entry and both protective legs. Partial success is
// a valid terminal state; callers inspect each leg to see what stands.
type Result struct {
	Entry       common.OrderAck `json:"entry"`
	Bracketed   bool            `json:"bracketed"`
	StopLoss    *LegOutcome     `json:"stopLoss,omitempty"`
	TakeProfit  *LegOutcome     `json:"takeProfit,omitempty"`
	Unprotected bool            `json:"unprotected,omitempty"`
	Warning     string          `json:"warning,omitempty"`
}

// OrderUpdate is published on the event bus at each lifecycle transition.
type OrderUpdate struct {
	Stage  string          `json:"stage"` // entry_submitted, entry_filled, leg_placed, leg_failed
	Symbol string          `json:"symbol"`
	Order  common.OrderAck `json:"order,omitempty"`
	Detail string          `json:"detail,omitempty"`
}
