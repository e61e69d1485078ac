package model

import (
	"errors"
	"fmt"
	"time"

	"ammEngine/internal/amm"

	"github.com/shopspring/decimal"
)

// ErrMaxLiquidityPerTick is returned when an update would push a tick's
// gross liquidity over the configured per-tick ceiling. It indicates a
// caller bug, not a transient condition.
var ErrMaxLiquidityPerTick = errors.New("liquidity gross exceeds max liquidity per tick")

// Tick is the per-tick liquidity and fee-growth ledger of a pool. Gross
// liquidity never goes negative; net liquidity is signed and unclamped.
type Tick struct {
	Pair              string
	Index             int
	LiquidityGross    decimal.Decimal
	LiquidityNet      decimal.Decimal
	FeeGrowthOutside0 decimal.Decimal
	FeeGrowthOutside1 decimal.Decimal
	Initialized       bool
	TickInitializedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewTick(pair string, index int) *Tick {
	now := time.Now().UTC()
	return &Tick{
		Pair:              pair,
		Index:             index,
		LiquidityGross:    decimal.Zero,
		LiquidityNet:      decimal.Zero,
		FeeGrowthOutside0: decimal.Zero,
		FeeGrowthOutside1: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Key is the composite lookup key of this tick.
func (t *Tick) Key() string {
	return TickKey(t.Pair, t.Index)
}

// IsFlipped reports whether gross liquidity crossed the zero boundary.
func IsFlipped(after, before decimal.Decimal) bool {
	return after.IsZero() != before.IsZero()
}

// Update applies a liquidity delta to the tick. Gross liquidity is floored
// at zero; net liquidity moves by +delta for a lower tick and -delta for an
// upper tick. Returns whether the tick flipped.
func (t *Tick) Update(liquidityDelta decimal.Decimal, upper bool, maxLiquidityPerTick decimal.Decimal) (bool, error) {
	grossBefore := t.LiquidityGross
	grossAfter := decimal.Max(decimal.Zero, grossBefore.Add(liquidityDelta))
	if grossAfter.GreaterThan(maxLiquidityPerTick) {
		return false, fmt.Errorf("tick %s: gross %s over ceiling %s: %w",
			t.Key(), grossAfter, maxLiquidityPerTick, ErrMaxLiquidityPerTick)
	}

	if upper {
		t.LiquidityNet = t.LiquidityNet.Sub(liquidityDelta)
	} else {
		t.LiquidityNet = t.LiquidityNet.Add(liquidityDelta)
	}

	// A zero delta against an untouched tick is the one call that does not
	// mark the tick initialized.
	if !liquidityDelta.IsZero() || !grossBefore.IsZero() {
		t.Initialized = true
	}

	flipped := IsFlipped(grossAfter, grossBefore)
	now := time.Now().UTC()
	if flipped && grossBefore.IsZero() {
		t.TickInitializedAt = now
	}
	t.LiquidityGross = grossAfter
	t.UpdatedAt = now
	return flipped, nil
}

// UpdateWithFeeGrowth is Update plus the fee-growth-outside seeding rule:
// when the tick sits at or below the current tick, its outside accumulators
// are assigned the pool's current globals.
func (t *Tick) UpdateWithFeeGrowth(
	liquidityDelta decimal.Decimal,
	upper bool,
	maxLiquidityPerTick decimal.Decimal,
	currentTick int,
	feeGrowthGlobal0, feeGrowthGlobal1 decimal.Decimal,
) (bool, error) {
	flipped, err := t.Update(liquidityDelta, upper, maxLiquidityPerTick)
	if err != nil {
		return false, err
	}
	if t.Index <= currentTick {
		t.FeeGrowthOutside0 = feeGrowthGlobal0
		t.FeeGrowthOutside1 = feeGrowthGlobal1
	}
	return flipped, nil
}

// Cross flips the fee-growth-outside accumulators to the other side of the
// tick and returns the unmodified net liquidity for the caller to apply to
// the pool's active liquidity. Crossing twice with the same globals restores
// the original values.
func (t *Tick) Cross(feeGrowthGlobal0, feeGrowthGlobal1 decimal.Decimal) decimal.Decimal {
	t.FeeGrowthOutside0 = feeGrowthGlobal0.Sub(t.FeeGrowthOutside0)
	t.FeeGrowthOutside1 = feeGrowthGlobal1.Sub(t.FeeGrowthOutside1)
	t.UpdatedAt = time.Now().UTC()
	return t.LiquidityNet
}

// Clear resets the tick to its untouched state.
func (t *Tick) Clear() {
	t.LiquidityGross = decimal.Zero
	t.LiquidityNet = decimal.Zero
	t.FeeGrowthOutside0 = decimal.Zero
	t.FeeGrowthOutside1 = decimal.Zero
	t.Initialized = false
	t.UpdatedAt = time.Now().UTC()
}

// InBounds reports whether the tick index is representable.
func (t *Tick) InBounds() bool {
	return t.Index >= amm.MinTick && t.Index <= amm.MaxTick
}

// MessageView is the flat snapshot published downstream.
func (t *Tick) MessageView() map[string]any {
	view := map[string]any{
		"pair":              t.Pair,
		"tickIndex":         t.Index,
		"liquidityGross":    t.LiquidityGross.String(),
		"liquidityNet":      t.LiquidityNet.String(),
		"feeGrowthOutside0": t.FeeGrowthOutside0.String(),
		"feeGrowthOutside1": t.FeeGrowthOutside1.String(),
		"initialized":       t.Initialized,
		"createdAt":         t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":         t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !t.TickInitializedAt.IsZero() {
		view["tickInitializedAt"] = t.TickInitializedAt.UTC().Format(time.RFC3339Nano)
	}
	return view
}
