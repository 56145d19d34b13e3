package filters

import (
	"context"

	"github.com/shopspring/decimal"

	"order-gateway/pkg/exchanges/common"
)

// Validator checks proposed orders against exchange instrument constraints.
type Validator struct {
	cache *Cache
}

// NewValidator wraps a filter cache.
func NewValidator(cache *Cache) *Validator {
	return &Validator{cache: cache}
}

// Validate checks quantity and optional price for a symbol. A price of zero
// or less means no price (market order); price rules are skipped.
func (v *Validator) Validate(ctx context.Context, symbol string, quantity, price float64) error {
	f, err := v.cache.FiltersFor(ctx, symbol)
	if err != nil {
		return err
	}
	return CheckOrder(f, quantity, price)
}

// CheckOrder applies the filter rules in order; the first violation wins.
// All comparisons run in decimal arithmetic: a stepSize of 0.001 accepts
// exactly three decimals, regardless of how the quantity reads as a float.
func CheckOrder(f InstrumentFilters, quantity, price float64) error {
	qty := decimal.NewFromFloat(quantity)

	if qty.LessThan(f.MinQty) || qty.GreaterThan(f.MaxQty) {
		return common.Validationf("quantity %s outside [%s, %s] for %s",
			qty, f.MinQty, f.MaxQty, f.Symbol)
	}
	if !onGrid(qty, f.StepSize) {
		return common.Validationf("quantity %s is not a multiple of step size %s for %s",
			qty, f.StepSize, f.Symbol)
	}

	if price <= 0 {
		return nil
	}
	p := decimal.NewFromFloat(price)

	if p.LessThan(f.MinPrice) || p.GreaterThan(f.MaxPrice) {
		return common.Validationf("price %s outside [%s, %s] for %s",
			p, f.MinPrice, f.MaxPrice, f.Symbol)
	}
	if !onGrid(p, f.TickSize) {
		return common.Validationf("price %s is not a multiple of tick size %s for %s",
			p, f.TickSize, f.Symbol)
	}
	if notional := qty.Mul(p); notional.LessThan(f.MinNotional) {
		return common.Validationf("notional %s below minimum %s for %s",
			notional, f.MinNotional, f.Symbol)
	}
	return nil
}

// onGrid reports whether v sits on the grid defined by step: it rounds to
// the nearest grid point and requires an exact match in decimal space.
func onGrid(v, step decimal.Decimal) bool {
	if step.IsZero() {
		return true
	}
	nearest := v.Div(step).Round(0).Mul(step)
	return v.Equal(nearest)
}
