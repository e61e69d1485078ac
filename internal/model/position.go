package model

import (
	"fmt"
	"time"

	"ammEngine/internal/amm"

	"github.com/shopspring/decimal"
)

// AmmPosition is an owner's liquidity range within a pool. Lifecycle:
// PENDING -> OPEN -> CLOSED, with ERROR terminal from PENDING or OPEN.
type AmmPosition struct {
	ID          string
	Pair        string
	Account0Key string
	Account1Key string

	TickLower int
	TickUpper int
	Liquidity decimal.Decimal

	Amount0        decimal.Decimal
	Amount1        decimal.Decimal
	InitialAmount0 decimal.Decimal
	InitialAmount1 decimal.Decimal
	Slippage       decimal.Decimal

	FeeGrowthInside0Last decimal.Decimal
	FeeGrowthInside1Last decimal.Decimal
	TokensOwed0          decimal.Decimal
	TokensOwed1          decimal.Decimal
	FeeCollected0        decimal.Decimal
	FeeCollected1        decimal.Decimal

	Withdrawn0 decimal.Decimal
	Withdrawn1 decimal.Decimal

	Status       PositionStatus
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
	StoppedAt time.Time
}

func NewAmmPosition(id, pair, account0Key, account1Key string, tickLower, tickUpper int, amount0, amount1, slippage decimal.Decimal) *AmmPosition {
	now := time.Now().UTC()
	return &AmmPosition{
		ID:                   id,
		Pair:                 pair,
		Account0Key:          account0Key,
		Account1Key:          account1Key,
		TickLower:            tickLower,
		TickUpper:            tickUpper,
		Liquidity:            decimal.Zero,
		Amount0:              amount0,
		Amount1:              amount1,
		InitialAmount0:       amount0,
		InitialAmount1:       amount1,
		Slippage:             slippage,
		FeeGrowthInside0Last: decimal.Zero,
		FeeGrowthInside1Last: decimal.Zero,
		TokensOwed0:          decimal.Zero,
		TokensOwed1:          decimal.Zero,
		FeeCollected0:        decimal.Zero,
		FeeCollected1:        decimal.Zero,
		Withdrawn0:           decimal.Zero,
		Withdrawn1:           decimal.Zero,
		Status:               PositionPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// OpenPosition moves the position from PENDING to OPEN.
func (p *AmmPosition) OpenPosition() Transition {
	if p.Status != PositionPending {
		return TransitionNoOp
	}
	p.Status = PositionOpen
	p.UpdatedAt = time.Now().UTC()
	return TransitionApplied
}

// UpdateAfterCreate writes the computed range, liquidity, amounts, and
// fee-growth snapshot in one step. Only valid while PENDING.
func (p *AmmPosition) UpdateAfterCreate(tickLower, tickUpper int, liquidity, amount0, amount1, feeGrowthInside0Last, feeGrowthInside1Last decimal.Decimal) Transition {
	if p.Status != PositionPending {
		return TransitionNoOp
	}
	p.TickLower = tickLower
	p.TickUpper = tickUpper
	p.Liquidity = liquidity
	p.Amount0 = amount0
	p.Amount1 = amount1
	p.FeeGrowthInside0Last = feeGrowthInside0Last
	p.FeeGrowthInside1Last = feeGrowthInside1Last
	p.UpdatedAt = time.Now().UTC()
	return TransitionApplied
}

// UpdateAfterCollectFee zeroes the owed amounts, adds the collected amounts
// to the running totals, and overwrites the fee-growth-inside snapshot. Only
// valid while OPEN.
func (p *AmmPosition) UpdateAfterCollectFee(tokensOwed0, tokensOwed1, feeGrowthInside0, feeGrowthInside1 decimal.Decimal) Transition {
	if p.Status != PositionOpen {
		return TransitionNoOp
	}
	p.FeeCollected0 = p.FeeCollected0.Add(tokensOwed0)
	p.FeeCollected1 = p.FeeCollected1.Add(tokensOwed1)
	p.TokensOwed0 = decimal.Zero
	p.TokensOwed1 = decimal.Zero
	p.FeeGrowthInside0Last = feeGrowthInside0
	p.FeeGrowthInside1Last = feeGrowthInside1
	p.UpdatedAt = time.Now().UTC()
	return TransitionApplied
}

// ClosePosition zeroes the liquidity, records the withdrawal amounts and the
// final fee-growth snapshot, and transitions to CLOSED. Only valid while
// OPEN.
func (p *AmmPosition) ClosePosition(amount0Withdrawal, amount1Withdrawal, feeGrowthInside0Last, feeGrowthInside1Last decimal.Decimal) Transition {
	if p.Status != PositionOpen {
		return TransitionNoOp
	}
	now := time.Now().UTC()
	p.Liquidity = decimal.Zero
	p.Withdrawn0 = amount0Withdrawal
	p.Withdrawn1 = amount1Withdrawal
	p.FeeGrowthInside0Last = feeGrowthInside0Last
	p.FeeGrowthInside1Last = feeGrowthInside1Last
	p.Status = PositionClosed
	p.StoppedAt = now
	p.UpdatedAt = now
	return TransitionApplied
}

// MarkError moves a PENDING or OPEN position to the terminal ERROR state. A
// second call is rejected and leaves the recorded message untouched.
func (p *AmmPosition) MarkError(message string) Transition {
	if p.Status != PositionPending && p.Status != PositionOpen {
		return TransitionNoOp
	}
	now := time.Now().UTC()
	p.Status = PositionError
	p.ErrorMessage = message
	p.StoppedAt = now
	p.UpdatedAt = now
	return TransitionApplied
}

// EstimatedLiquidity computes the liquidity achievable from the position's
// initial amounts at the pool's current price. An unresolvable pool yields
// zero rather than an error.
func (p *AmmPosition) EstimatedLiquidity(pools PoolSource) decimal.Decimal {
	pool, err := pools.AmmPool(p.Pair)
	if err != nil || pool == nil {
		return decimal.Zero
	}
	sqrtCurrent := amm.SqrtRatioAtTick(pool.CurrentTick)
	sqrtLower := amm.SqrtRatioAtTick(p.TickLower)
	sqrtUpper := amm.SqrtRatioAtTick(p.TickUpper)
	return amm.LiquidityForAmounts(sqrtCurrent, sqrtLower, sqrtUpper, p.InitialAmount0, p.InitialAmount1)
}

// ValidateRequiredFields returns every violated position invariant. The
// tick-spacing check is skipped when the pool cannot be resolved.
func (p *AmmPosition) ValidateRequiredFields(pools PoolSource, limits Limits) []string {
	var violations []string

	if p.ID == "" {
		violations = append(violations, "identifier is required")
	}
	if p.Pair == "" {
		violations = append(violations, "pool pair is required")
	}
	if p.Account0Key == "" {
		violations = append(violations, "account0 key is required")
	}
	if p.Account1Key == "" {
		violations = append(violations, "account1 key is required")
	}
	if p.TickUpper <= p.TickLower {
		violations = append(violations, fmt.Sprintf("tick upper %d must be greater than tick lower %d", p.TickUpper, p.TickLower))
	}
	if p.TickLower < amm.MinTick || p.TickLower > amm.MaxTick {
		violations = append(violations, fmt.Sprintf("tick lower %d is out of bounds", p.TickLower))
	}
	if p.TickUpper < amm.MinTick || p.TickUpper > amm.MaxTick {
		violations = append(violations, fmt.Sprintf("tick upper %d is out of bounds", p.TickUpper))
	}

	if pool, err := pools.AmmPool(p.Pair); err == nil && pool != nil && pool.TickSpacing > 0 {
		if p.TickLower%pool.TickSpacing != 0 {
			violations = append(violations, fmt.Sprintf("tick lower %d is not a multiple of tick spacing %d", p.TickLower, pool.TickSpacing))
		}
		if p.TickUpper%pool.TickSpacing != 0 {
			violations = append(violations, fmt.Sprintf("tick upper %d is not a multiple of tick spacing %d", p.TickUpper, pool.TickSpacing))
		}
	}

	if p.Slippage.LessThan(limits.MinSlippage) || p.Slippage.GreaterThan(limits.MaxSlippage) {
		violations = append(violations, fmt.Sprintf("slippage %s is outside [%s, %s]", p.Slippage, limits.MinSlippage, limits.MaxSlippage))
	}

	if p.Status == PositionPending {
		if p.EstimatedLiquidity(pools).LessThan(limits.MinPositionLiquidity) {
			violations = append(violations, fmt.Sprintf("estimated liquidity is below minimum %s", limits.MinPositionLiquidity))
		}
	} else if p.Liquidity.LessThan(limits.MinPositionLiquidity) {
		violations = append(violations, fmt.Sprintf("liquidity is below minimum %s", limits.MinPositionLiquidity))
	}

	return violations
}

// ValidateResourcesExist reports each missing related resource as a separate
// message. It never fails hard.
func (p *AmmPosition) ValidateResourcesExist(pools PoolSource, accounts AccountSource, bitmaps TickBitmapSource) []string {
	var violations []string

	pool, err := pools.AmmPool(p.Pair)
	switch {
	case err != nil || pool == nil:
		violations = append(violations, fmt.Sprintf("amm pool %s does not exist", p.Pair))
	case !pool.IsActive:
		violations = append(violations, fmt.Sprintf("amm pool %s is not active", p.Pair))
	}

	if account, err := accounts.Account(p.Account0Key); err != nil || account == nil {
		violations = append(violations, fmt.Sprintf("account %s does not exist", p.Account0Key))
	}
	if account, err := accounts.Account(p.Account1Key); err != nil || account == nil {
		violations = append(violations, fmt.Sprintf("account %s does not exist", p.Account1Key))
	}

	if bitmap, err := bitmaps.TickBitmap(p.Pair); err != nil || bitmap == nil {
		violations = append(violations, fmt.Sprintf("tick bitmap %s does not exist", p.Pair))
	}

	return violations
}

// MessageView is the flat snapshot published downstream.
func (p *AmmPosition) MessageView() map[string]any {
	view := map[string]any{
		"identifier":           p.ID,
		"pair":                 p.Pair,
		"account0Key":          p.Account0Key,
		"account1Key":          p.Account1Key,
		"tickLowerIndex":       p.TickLower,
		"tickUpperIndex":       p.TickUpper,
		"liquidity":            p.Liquidity.String(),
		"amount0":              p.Amount0.String(),
		"amount1":              p.Amount1.String(),
		"initialAmount0":       p.InitialAmount0.String(),
		"initialAmount1":       p.InitialAmount1.String(),
		"slippage":             p.Slippage.String(),
		"feeGrowthInside0Last": p.FeeGrowthInside0Last.String(),
		"feeGrowthInside1Last": p.FeeGrowthInside1Last.String(),
		"tokensOwed0":          p.TokensOwed0.String(),
		"tokensOwed1":          p.TokensOwed1.String(),
		"feeCollected0":        p.FeeCollected0.String(),
		"feeCollected1":        p.FeeCollected1.String(),
		"withdrawn0":           p.Withdrawn0.String(),
		"withdrawn1":           p.Withdrawn1.String(),
		"status":               string(p.Status),
		"createdAt":            p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":            p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if p.ErrorMessage != "" {
		view["errorMessage"] = p.ErrorMessage
	}
	if !p.StoppedAt.IsZero() {
		view["stoppedAt"] = p.StoppedAt.UTC().Format(time.RFC3339Nano)
	}
	return view
}
