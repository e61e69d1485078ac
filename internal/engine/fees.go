package engine

import (
	"github.com/shopspring/decimal"

	"ammEngine/internal/model"
)

// FeeGrowthInside computes the fee growth accumulated inside a tick range,
// per token, from the outside accumulators of its boundary ticks and the
// pool's globals.
func FeeGrowthInside(pool *model.AmmPool, lower, upper *model.Tick) (decimal.Decimal, decimal.Decimal) {
	below0, below1 := growthBelow(pool, lower)
	above0, above1 := growthAbove(pool, upper)
	inside0 := pool.FeeGrowthGlobal0.Sub(below0).Sub(above0)
	inside1 := pool.FeeGrowthGlobal1.Sub(below1).Sub(above1)
	return inside0, inside1
}

func growthBelow(pool *model.AmmPool, lower *model.Tick) (decimal.Decimal, decimal.Decimal) {
	if pool.CurrentTick >= lower.Index {
		return lower.FeeGrowthOutside0, lower.FeeGrowthOutside1
	}
	return pool.FeeGrowthGlobal0.Sub(lower.FeeGrowthOutside0),
		pool.FeeGrowthGlobal1.Sub(lower.FeeGrowthOutside1)
}

func growthAbove(pool *model.AmmPool, upper *model.Tick) (decimal.Decimal, decimal.Decimal) {
	if pool.CurrentTick < upper.Index {
		return upper.FeeGrowthOutside0, upper.FeeGrowthOutside1
	}
	return pool.FeeGrowthGlobal0.Sub(upper.FeeGrowthOutside0),
		pool.FeeGrowthGlobal1.Sub(upper.FeeGrowthOutside1)
}

// TokensOwed converts a fee-growth-inside delta into token amounts owed to a
// position. Negative deltas (from ranges entered after growth accrued) clamp
// to zero.
func TokensOwed(liquidity, insideNow, insideLast decimal.Decimal) decimal.Decimal {
	delta := insideNow.Sub(insideLast)
	if delta.IsNegative() {
		return decimal.Zero
	}
	return delta.Mul(liquidity)
}
