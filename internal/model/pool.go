package model

import (
	"fmt"
	"time"

	"ammEngine/internal/amm"

	"github.com/shopspring/decimal"
)

// AmmPool is the pool aggregate: price/tick/liquidity/fee-growth globals plus
// reserve and volume totals. Mutation methods assume the caller already holds
// exclusive access to the pool key.
type AmmPool struct {
	Pair        string
	Token0      string
	Token1      string
	TickSpacing int

	CurrentTick int
	SqrtPrice   decimal.Decimal
	Price       decimal.Decimal
	Liquidity   decimal.Decimal

	FeeGrowthGlobal0 decimal.Decimal
	FeeGrowthGlobal1 decimal.Decimal
	ProtocolFees0    decimal.Decimal
	ProtocolFees1    decimal.Decimal

	TVL0    decimal.Decimal
	TVL1    decimal.Decimal
	Volume0 decimal.Decimal
	Volume1 decimal.Decimal
	TxCount int64

	FeePct         decimal.Decimal
	ProtocolFeePct decimal.Decimal

	// InitPrice is the bootstrap price; nil when never supplied.
	InitPrice *decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAmmPool(pair, token0, token1 string, tickSpacing int, feePct, protocolFeePct decimal.Decimal) *AmmPool {
	now := time.Now().UTC()
	return &AmmPool{
		Pair:             pair,
		Token0:           token0,
		Token1:           token1,
		TickSpacing:      tickSpacing,
		SqrtPrice:        decimal.Zero,
		Price:            decimal.Zero,
		Liquidity:        decimal.Zero,
		FeeGrowthGlobal0: decimal.Zero,
		FeeGrowthGlobal1: decimal.Zero,
		ProtocolFees0:    decimal.Zero,
		ProtocolFees1:    decimal.Zero,
		TVL0:             decimal.Zero,
		TVL1:             decimal.Zero,
		Volume0:          decimal.Zero,
		Volume1:          decimal.Zero,
		FeePct:           feePct,
		ProtocolFeePct:   protocolFeePct,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Seeded reports whether the pool holds any reserves. Bootstrap pricing is
// frozen from the first non-zero reserve onward.
func (p *AmmPool) Seeded() bool {
	return !p.TVL0.IsZero() || !p.TVL1.IsZero()
}

// CalculateInitialPriceAndTick derives price, sqrt price, and current tick
// from the bootstrap price. It is a no-op once the pool is seeded or while no
// positive bootstrap price is present.
func (p *AmmPool) CalculateInitialPriceAndTick() {
	if p.Seeded() {
		return
	}
	if p.InitPrice == nil || !p.InitPrice.IsPositive() {
		return
	}
	p.Price = p.InitPrice.Round(amm.DisplayScale)
	p.SqrtPrice = amm.Sqrt(*p.InitPrice)
	p.CurrentTick = amm.PriceToTick(*p.InitPrice)
}

// Update applies the mutable pool settings. Fee percentages only apply when
// non-nil, non-negative, and different. A positive newInitPrice always
// re-invokes bootstrap pricing and reports a change even when numerically
// unchanged; once the pool is seeded the recompute itself is a no-op, so the
// visible effect disappears naturally.
func (p *AmmPool) Update(active bool, feePct, protocolFeePct, newInitPrice *decimal.Decimal) bool {
	changed := false

	if active != p.IsActive {
		p.IsActive = active
		changed = true
	}
	if feePct != nil && !feePct.IsNegative() && !feePct.Equal(p.FeePct) {
		p.FeePct = *feePct
		changed = true
	}
	if protocolFeePct != nil && !protocolFeePct.IsNegative() && !protocolFeePct.Equal(p.ProtocolFeePct) {
		p.ProtocolFeePct = *protocolFeePct
		changed = true
	}
	if newInitPrice != nil && newInitPrice.IsPositive() {
		price := *newInitPrice
		p.InitPrice = &price
		p.CalculateInitialPriceAndTick()
		changed = true
	}

	if changed {
		p.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// UpdateForAddPosition applies the pool-side effects of opening a position.
// Active liquidity grows only for in-range positions; reserves always grow by
// the deposited amounts. The transaction counter and timestamp move on every
// call.
func (p *AmmPool) UpdateForAddPosition(liquidityDelta decimal.Decimal, inRange bool, amount0, amount1 decimal.Decimal) bool {
	changed := false

	if inRange && !liquidityDelta.IsZero() {
		p.Liquidity = p.Liquidity.Add(liquidityDelta)
		changed = true
	}
	if !amount0.IsZero() {
		p.TVL0 = p.TVL0.Add(amount0)
		changed = true
	}
	if !amount1.IsZero() {
		p.TVL1 = p.TVL1.Add(amount1)
		changed = true
	}

	p.TxCount++
	p.UpdatedAt = time.Now().UTC()
	return changed
}

// UpdateForClosePosition applies the pool-side effects of closing a position.
// Each supplied positive quantity is subtracted from the matching pool field
// with a floor of zero. A nil liquidity fails the call outright; a call with
// only non-positive quantities is a counted no-op.
func (p *AmmPool) UpdateForClosePosition(liquidityToRemove *decimal.Decimal, token0ToRemove, token1ToRemove decimal.Decimal) bool {
	if liquidityToRemove == nil {
		return false
	}

	changed := false
	if liquidityToRemove.IsPositive() {
		p.Liquidity = floorSub(p.Liquidity, *liquidityToRemove)
		changed = true
	}
	if token0ToRemove.IsPositive() {
		p.TVL0 = floorSub(p.TVL0, token0ToRemove)
		changed = true
	}
	if token1ToRemove.IsPositive() {
		p.TVL1 = floorSub(p.TVL1, token1ToRemove)
		changed = true
	}

	p.TxCount++
	p.UpdatedAt = time.Now().UTC()
	return changed
}

// UpdatePoolAfterSwap overwrites the pool state with a computed swap result.
// The call is all-or-nothing: any nil argument or internal arithmetic fault
// leaves every field at its pre-call value and never escapes to the caller.
func (p *AmmPool) UpdatePoolAfterSwap(
	newTick *int,
	newSqrtPrice, newLiquidity,
	newFeeGrowthGlobal0, newFeeGrowthGlobal1,
	newTVL0, newTVL1,
	newVolume0, newVolume1 *decimal.Decimal,
) (changed bool) {
	if newTick == nil || newSqrtPrice == nil || newLiquidity == nil ||
		newFeeGrowthGlobal0 == nil || newFeeGrowthGlobal1 == nil ||
		newTVL0 == nil || newTVL1 == nil || newVolume0 == nil || newVolume1 == nil {
		return false
	}

	snapshot := *p
	defer func() {
		if recover() != nil {
			*p = snapshot
			changed = false
		}
	}()

	p.CurrentTick = *newTick
	p.SqrtPrice = *newSqrtPrice
	p.Price = newSqrtPrice.Mul(*newSqrtPrice).Round(amm.DisplayScale)
	p.Liquidity = *newLiquidity
	p.FeeGrowthGlobal0 = *newFeeGrowthGlobal0
	p.FeeGrowthGlobal1 = *newFeeGrowthGlobal1
	p.TVL0 = *newTVL0
	p.TVL1 = *newTVL1
	p.Volume0 = *newVolume0
	p.Volume1 = *newVolume1
	p.TxCount++
	p.UpdatedAt = time.Now().UTC()
	return true
}

// PriceToTick is the pool-scoped wrapper over the tick math.
func (p *AmmPool) PriceToTick(price decimal.Decimal) int {
	return amm.PriceToTick(price)
}

// TickToPrice is the pool-scoped wrapper over the tick math.
func (p *AmmPool) TickToPrice(tick int) decimal.Decimal {
	return amm.TickToPrice(tick)
}

// Tick fetches a tick of this pool from the lookup collaborator, failing
// fast when absent. Callers are expected to have confirmed existence through
// the soft-validation path first.
func (p *AmmPool) Tick(src TickSource, index int) (*Tick, error) {
	key := TickKey(p.Pair, index)
	tick, err := src.Tick(key)
	if err != nil {
		return nil, fmt.Errorf("lookup tick %s: %w", key, err)
	}
	if tick == nil {
		return nil, fmt.Errorf("tick %s: %w", key, ErrNotFound)
	}
	return tick, nil
}

// TickBitmap fetches this pool's bitmap from the lookup collaborator,
// failing fast when absent.
func (p *AmmPool) TickBitmap(src TickBitmapSource) (*TickBitmap, error) {
	bitmap, err := src.TickBitmap(p.Pair)
	if err != nil {
		return nil, fmt.Errorf("lookup tick bitmap %s: %w", p.Pair, err)
	}
	if bitmap == nil {
		return nil, fmt.Errorf("tick bitmap %s: %w", p.Pair, ErrNotFound)
	}
	return bitmap, nil
}

// ValidateRequiredFields returns every violated pool invariant. All checks
// run independently so one call can report multiple violations.
func (p *AmmPool) ValidateRequiredFields(coins CoinSet) []string {
	var violations []string

	if p.Pair == "" {
		violations = append(violations, "pair is required")
	}
	if p.Token0 == "" {
		violations = append(violations, "token0 is required")
	}
	if p.Token1 == "" {
		violations = append(violations, "token1 is required")
	}
	if p.Token0 != "" && p.Token0 == p.Token1 {
		violations = append(violations, "token0 and token1 must be distinct")
	}
	if p.Token0 != "" && !coins.IsSupported(p.Token0) {
		violations = append(violations, fmt.Sprintf("token0 %s is not a supported coin", p.Token0))
	}
	if p.Token1 != "" && !coins.IsSupported(p.Token1) {
		violations = append(violations, fmt.Sprintf("token1 %s is not a supported coin", p.Token1))
	}
	if p.TickSpacing <= 0 {
		violations = append(violations, "tick spacing must be greater than zero")
	}
	if p.FeePct.IsNegative() {
		violations = append(violations, "fee percentage must not be negative")
	}
	if p.ProtocolFeePct.IsNegative() {
		violations = append(violations, "protocol fee percentage must not be negative")
	}
	if p.FeeGrowthGlobal0.IsNegative() || p.FeeGrowthGlobal1.IsNegative() {
		violations = append(violations, "fee growth accumulators must not be negative")
	}
	if p.ProtocolFees0.IsNegative() || p.ProtocolFees1.IsNegative() {
		violations = append(violations, "protocol fee accumulators must not be negative")
	}
	if p.TVL0.IsNegative() || p.TVL1.IsNegative() {
		violations = append(violations, "reserve totals must not be negative")
	}
	if p.Volume0.IsNegative() || p.Volume1.IsNegative() {
		violations = append(violations, "volume totals must not be negative")
	}
	if p.CurrentTick < amm.MinTick || p.CurrentTick > amm.MaxTick {
		violations = append(violations, fmt.Sprintf("current tick %d is out of bounds", p.CurrentTick))
	}
	if p.InitPrice != nil && !p.InitPrice.IsPositive() {
		violations = append(violations, "init price must be positive when present")
	}

	return violations
}

// MessageView is the flat snapshot published downstream.
func (p *AmmPool) MessageView() map[string]any {
	view := map[string]any{
		"pair":             p.Pair,
		"token0":           p.Token0,
		"token1":           p.Token1,
		"tickSpacing":      p.TickSpacing,
		"currentTick":      p.CurrentTick,
		"sqrtPrice":        p.SqrtPrice.String(),
		"price":            p.Price.String(),
		"liquidity":        p.Liquidity.String(),
		"feeGrowthGlobal0": p.FeeGrowthGlobal0.String(),
		"feeGrowthGlobal1": p.FeeGrowthGlobal1.String(),
		"protocolFees0":    p.ProtocolFees0.String(),
		"protocolFees1":    p.ProtocolFees1.String(),
		"tvl0":             p.TVL0.String(),
		"tvl1":             p.TVL1.String(),
		"volume0":          p.Volume0.String(),
		"volume1":          p.Volume1.String(),
		"txCount":          p.TxCount,
		"feePct":           p.FeePct.String(),
		"protocolFeePct":   p.ProtocolFeePct.String(),
		"isActive":         p.IsActive,
		"createdAt":        p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":        p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if p.InitPrice != nil {
		view["initPrice"] = p.InitPrice.String()
	}
	return view
}

func floorSub(current, delta decimal.Decimal) decimal.Decimal {
	result := current.Sub(delta)
	if result.IsNegative() {
		return decimal.Zero
	}
	return result
}
