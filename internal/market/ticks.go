package market

import "github.com/shopspring/decimal"

// RoundToTick rounds price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

// FloorToTick rounds price down to a multiple of tick.
func FloorToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Floor().Mul(t).InexactFloat64()
}

// OffsetTicks returns price moved by n ticks, computed exactly.
func OffsetTicks(price, tick float64, n int) float64 {
	off := decimal.NewFromFloat(tick).Mul(decimal.NewFromInt(int64(n)))
	return decimal.NewFromFloat(price).Add(off).InexactFloat64()
}

// IsTickMultiple reports whether price lies on the tick grid.
func IsTickMultiple(price, tick float64) bool {
	if tick <= 0 {
		return true
	}
	return decimal.NewFromFloat(price).Mod(decimal.NewFromFloat(tick)).IsZero()
}

// SpreadTicks converts a price spread into a whole number of ticks, at
// least one.
func SpreadTicks(spread, tick float64) int {
	if tick <= 0 {
		return 1
	}
	n := int(decimal.NewFromFloat(spread).Div(decimal.NewFromFloat(tick)).Round(0).IntPart())
	if n < 1 {
		return 1
	}
	return n
}
