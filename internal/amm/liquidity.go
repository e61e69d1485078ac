package amm

import "github.com/shopspring/decimal"

var maxUint128 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(128)).Sub(decimal.NewFromInt(1))

// LiquidityForAmounts returns the liquidity achievable from the given token
// amounts over a sqrt-price range. Below the range only token0 contributes,
// above it only token1; inside the range the smaller of the two single-sided
// values binds.
func LiquidityForAmounts(sqrtCurrent, sqrtLower, sqrtUpper, amount0, amount1 decimal.Decimal) decimal.Decimal {
	if sqrtLower.GreaterThan(sqrtUpper) {
		sqrtLower, sqrtUpper = sqrtUpper, sqrtLower
	}

	switch {
	case sqrtCurrent.LessThanOrEqual(sqrtLower):
		return liquidityForAmount0(sqrtLower, sqrtUpper, amount0)
	case sqrtCurrent.LessThan(sqrtUpper):
		liquidity0 := liquidityForAmount0(sqrtCurrent, sqrtUpper, amount0)
		liquidity1 := liquidityForAmount1(sqrtLower, sqrtCurrent, amount1)
		return decimal.Min(liquidity0, liquidity1)
	default:
		return liquidityForAmount1(sqrtLower, sqrtUpper, amount1)
	}
}

// liquidityForAmount0 computes amount0 * (sqrtA*sqrtB) / (sqrtB - sqrtA).
func liquidityForAmount0(sqrtA, sqrtB, amount0 decimal.Decimal) decimal.Decimal {
	span := sqrtB.Sub(sqrtA)
	if !span.IsPositive() || !amount0.IsPositive() {
		return decimal.Zero
	}
	return amount0.Mul(sqrtA).Mul(sqrtB).DivRound(span, AmountScale)
}

// liquidityForAmount1 computes amount1 / (sqrtB - sqrtA).
func liquidityForAmount1(sqrtA, sqrtB, amount1 decimal.Decimal) decimal.Decimal {
	span := sqrtB.Sub(sqrtA)
	if !span.IsPositive() || !amount1.IsPositive() {
		return decimal.Zero
	}
	return amount1.DivRound(span, AmountScale)
}

// Amount0ForLiquidity is the token0 amount locked by liquidity over a range:
// liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB).
func Amount0ForLiquidity(liquidity, sqrtA, sqrtB decimal.Decimal) decimal.Decimal {
	if sqrtA.GreaterThan(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	denom := sqrtA.Mul(sqrtB)
	if !denom.IsPositive() || !liquidity.IsPositive() {
		return decimal.Zero
	}
	return liquidity.Mul(sqrtB.Sub(sqrtA)).DivRound(denom, AmountScale)
}

// Amount1ForLiquidity is the token1 amount locked by liquidity over a range:
// liquidity * (sqrtB - sqrtA).
func Amount1ForLiquidity(liquidity, sqrtA, sqrtB decimal.Decimal) decimal.Decimal {
	if sqrtA.GreaterThan(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if !liquidity.IsPositive() {
		return decimal.Zero
	}
	return liquidity.Mul(sqrtB.Sub(sqrtA)).Round(AmountScale)
}

// MaxLiquidityPerTick spreads the maximum representable liquidity evenly
// across every initializable tick for the given spacing.
func MaxLiquidityPerTick(tickSpacing int) decimal.Decimal {
	if tickSpacing <= 0 {
		return decimal.Zero
	}
	minInitialized := (MinTick / tickSpacing) * tickSpacing
	maxInitialized := (MaxTick / tickSpacing) * tickSpacing
	numTicks := (maxInitialized-minInitialized)/tickSpacing + 1
	return maxUint128.DivRound(decimal.NewFromInt(int64(numTicks)), 0)
}
