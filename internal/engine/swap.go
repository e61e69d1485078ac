package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ammEngine/internal/amm"
	"ammEngine/internal/model"
)

// maxSwapSteps bounds the tick walk. A swap crossing this many initialized
// ticks is malformed input, not a legitimate trade.
const maxSwapSteps = 512

// SwapResult is the computed outcome of a swap, ready to be applied to the
// pool through UpdatePoolAfterSwap. CrossedTicks holds an independent copy of
// every boundary tick crossed during the walk; the caller persists them only
// once the swap is committed.
type SwapResult struct {
	ZeroForOne     bool
	AmountConsumed decimal.Decimal // input spent, fees included
	AmountOut      decimal.Decimal
	Remaining      decimal.Decimal // unfilled input when liquidity ran out
	LpFee          decimal.Decimal
	ProtocolFee    decimal.Decimal

	NewTick             int
	NewSqrtPrice        decimal.Decimal
	NewLiquidity        decimal.Decimal
	NewFeeGrowthGlobal0 decimal.Decimal
	NewFeeGrowthGlobal1 decimal.Decimal

	CrossedTicks []*model.Tick
}

// ComputeSwap walks the pool's initialized ticks and computes the outcome of
// swapping amountIn of the input token. Neither the pool nor the stored ticks
// are mutated: crossing is applied to copies, so an aborted swap leaves the
// fee-growth-outside accumulators untouched.
func ComputeSwap(
	pool *model.AmmPool,
	bitmap *model.TickBitmap,
	ticks model.TickSource,
	zeroForOne bool,
	amountIn decimal.Decimal,
) (*SwapResult, error) {
	if !pool.Seeded() {
		return nil, fmt.Errorf("pool %s has no seeded price", pool.Pair)
	}
	if !pool.IsActive {
		return nil, fmt.Errorf("pool %s is not active", pool.Pair)
	}
	if !amountIn.IsPositive() {
		return nil, fmt.Errorf("swap amount must be positive, got %s", amountIn)
	}

	one := decimal.NewFromInt(1)
	feeComplement := one.Sub(pool.FeePct)
	if !feeComplement.IsPositive() {
		return nil, fmt.Errorf("pool %s fee pct %s leaves no swappable input", pool.Pair, pool.FeePct)
	}

	result := &SwapResult{
		ZeroForOne:          zeroForOne,
		NewTick:             pool.CurrentTick,
		NewSqrtPrice:        pool.SqrtPrice,
		NewLiquidity:        pool.Liquidity,
		NewFeeGrowthGlobal0: pool.FeeGrowthGlobal0,
		NewFeeGrowthGlobal1: pool.FeeGrowthGlobal1,
	}
	remaining := amountIn

	for step := 0; remaining.IsPositive(); step++ {
		if step >= maxSwapSteps {
			return nil, fmt.Errorf("swap on %s exceeded %d tick crossings", pool.Pair, maxSwapSteps)
		}

		var boundary int
		var haveBoundary bool
		if zeroForOne {
			boundary, haveBoundary = bitmap.PreviousInitialized(result.NewTick)
			if !haveBoundary {
				boundary = amm.MinTick
			}
		} else {
			boundary, haveBoundary = bitmap.NextInitialized(result.NewTick + 1)
			if !haveBoundary {
				boundary = amm.MaxTick
			}
		}
		if boundary < amm.MinTick {
			boundary = amm.MinTick
		} else if boundary > amm.MaxTick {
			boundary = amm.MaxTick
		}
		sqrtTarget := amm.SqrtRatioAtTick(boundary)

		if result.NewLiquidity.IsPositive() {
			stepIn, stepOut, sqrtNext, reached := computeStep(
				zeroForOne, result.NewSqrtPrice, sqrtTarget, result.NewLiquidity,
				remaining.Mul(feeComplement).Round(amm.AmountScale),
			)

			var feeAmount decimal.Decimal
			if reached {
				feeAmount = stepIn.Mul(pool.FeePct).DivRound(feeComplement, amm.AmountScale)
				if stepIn.Add(feeAmount).GreaterThan(remaining) {
					feeAmount = remaining.Sub(stepIn)
				}
			} else {
				// A partial step absorbs the whole remainder; whatever the
				// curve did not consume is the fee.
				feeAmount = remaining.Sub(stepIn)
			}
			protocolStep := feeAmount.Mul(pool.ProtocolFeePct).Round(amm.AmountScale)
			lpStep := feeAmount.Sub(protocolStep)

			growth := lpStep.DivRound(result.NewLiquidity, amm.AmountScale)
			if zeroForOne {
				result.NewFeeGrowthGlobal0 = result.NewFeeGrowthGlobal0.Add(growth)
			} else {
				result.NewFeeGrowthGlobal1 = result.NewFeeGrowthGlobal1.Add(growth)
			}

			remaining = remaining.Sub(stepIn).Sub(feeAmount)
			result.AmountConsumed = result.AmountConsumed.Add(stepIn).Add(feeAmount)
			result.AmountOut = result.AmountOut.Add(stepOut)
			result.LpFee = result.LpFee.Add(lpStep)
			result.ProtocolFee = result.ProtocolFee.Add(protocolStep)
			result.NewSqrtPrice = sqrtNext

			if !reached {
				result.NewTick = amm.PriceToTick(sqrtNext.Mul(sqrtNext))
				break
			}
		} else {
			if !haveBoundary {
				// Nothing left to trade against in this direction.
				break
			}
			// No active liquidity here: the price jumps straight to the next
			// initialized tick without consuming input.
			result.NewSqrtPrice = sqrtTarget
		}

		if !haveBoundary {
			// Ran off the last initialized tick with input left over.
			result.NewTick = boundary
			break
		}

		stored, err := pool.Tick(ticks, boundary)
		if err != nil {
			return nil, err
		}
		crossed := *stored
		liquidityNet := crossed.Cross(result.NewFeeGrowthGlobal0, result.NewFeeGrowthGlobal1)
		if zeroForOne {
			liquidityNet = liquidityNet.Neg()
		}
		result.NewLiquidity = decimal.Max(decimal.Zero, result.NewLiquidity.Add(liquidityNet))
		result.CrossedTicks = append(result.CrossedTicks, &crossed)

		if zeroForOne {
			result.NewTick = boundary - 1
		} else {
			result.NewTick = boundary
		}
	}

	result.Remaining = remaining
	return result, nil
}

// computeStep advances the price within a single tick range. It returns the
// input consumed, the output produced, the resulting sqrt price, and whether
// the range boundary was reached.
func computeStep(
	zeroForOne bool,
	sqrtCurrent, sqrtTarget, liquidity, inputBudget decimal.Decimal,
) (stepIn, stepOut, sqrtNext decimal.Decimal, reached bool) {
	if zeroForOne {
		inToTarget := amm.Amount0ForLiquidity(liquidity, sqrtTarget, sqrtCurrent)
		if inputBudget.GreaterThanOrEqual(inToTarget) {
			stepIn = inToTarget
			sqrtNext = sqrtTarget
			reached = true
		} else {
			stepIn = inputBudget
			// 1/sqrtNext = 1/sqrtCurrent + in/L
			sqrtNext = liquidity.Mul(sqrtCurrent).
				DivRound(liquidity.Add(stepIn.Mul(sqrtCurrent)), amm.AmountScale)
		}
		stepOut = amm.Amount1ForLiquidity(liquidity, sqrtNext, sqrtCurrent)
		return stepIn, stepOut, sqrtNext, reached
	}

	inToTarget := amm.Amount1ForLiquidity(liquidity, sqrtCurrent, sqrtTarget)
	if inputBudget.GreaterThanOrEqual(inToTarget) {
		stepIn = inToTarget
		sqrtNext = sqrtTarget
		reached = true
	} else {
		stepIn = inputBudget
		sqrtNext = sqrtCurrent.Add(stepIn.DivRound(liquidity, amm.AmountScale))
	}
	stepOut = amm.Amount0ForLiquidity(liquidity, sqrtCurrent, sqrtNext)
	return stepIn, stepOut, sqrtNext, reached
}
