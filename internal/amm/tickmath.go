// Package amm holds the pure concentrated-liquidity math: price/tick
// conversion, sqrt-ratio helpers, and amount/liquidity formulas. All
// functions are stateless.
package amm

import (
	"math"

	"github.com/shopspring/decimal"
)

// Tick bounds of the representable price range, price = 1.0001^tick.
const (
	MinTick = -887272
	MaxTick = 887272
)

// AmountScale is the number of fractional digits kept on ledger amounts.
// DisplayScale is the smaller scale used for price/tick conversions.
const (
	AmountScale  int32 = 16
	DisplayScale int32 = 8
)

var tickBaseLog = math.Log(1.0001)

// PriceToTick returns the tick whose price is nearest to the given price,
// clamped to [MinTick, MaxTick]. Non-positive prices map to tick 0.
func PriceToTick(price decimal.Decimal) int {
	if !price.IsPositive() {
		return 0
	}
	tick := int(math.Round(math.Log(price.InexactFloat64()) / tickBaseLog))
	return clampTick(tick)
}

// TickToPrice returns 1.0001^tick rounded to the display scale.
func TickToPrice(tick int) decimal.Decimal {
	tick = clampTick(tick)
	return decimal.NewFromFloat(math.Pow(1.0001, float64(tick))).Round(DisplayScale)
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) at the amount scale. The sqrt
// keeps the full amount scale because in-range liquidity math divides by
// differences of neighbouring ratios.
func SqrtRatioAtTick(tick int) decimal.Decimal {
	tick = clampTick(tick)
	return decimal.NewFromFloat(math.Pow(1.0001, float64(tick)/2)).Round(AmountScale)
}

// Sqrt returns the square root of a non-negative price at the amount scale.
func Sqrt(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Sqrt(price.InexactFloat64())).Round(AmountScale)
}

func clampTick(tick int) int {
	if tick < MinTick {
		return MinTick
	}
	if tick > MaxTick {
		return MaxTick
	}
	return tick
}
