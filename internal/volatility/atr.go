package volatility

import (
	"math"

	"order-gateway/pkg/exchanges/common"
)

// TrueRange is the largest of high-low, |high-prevClose|, |low-prevClose|.
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if hc := math.Abs(high - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// TrueRanges derives the true-range series from oldest-first candles. The
// first candle has no predecessor, so the result is one element shorter.
func TrueRanges(candles []common.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		out = append(out, TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close))
	}
	return out
}

// ATR is the arithmetic mean of the most recent period true ranges — a
// simple moving average, not Wilder's smoothing.
func ATR(candles []common.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, common.InsufficientDataf("atr period must be positive, got %d", period)
	}
	trs := TrueRanges(candles)
	if len(trs) < period {
		return 0, common.InsufficientDataf("atr needs %d true ranges, have %d", period, len(trs))
	}
	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period), nil
}
