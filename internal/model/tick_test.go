package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

var noCeiling = dec("1000000000000")

func TestIsFlippedSymmetry(t *testing.T) {
	cases := []struct {
		before string
		delta  string
	}{
		{"0", "0"},
		{"0", "100"},
		{"100", "-100"},
		{"100", "-40"},
		{"100", "50"},
		{"0", "-10"},
		{"30", "-50"},
	}

	for _, tc := range cases {
		before := dec(tc.before)
		delta := dec(tc.delta)
		after := decimal.Max(decimal.Zero, before.Add(delta))

		want := before.IsZero() != after.IsZero()
		if got := IsFlipped(after, before); got != want {
			t.Fatalf("isFlipped(%s, %s) = %v, want %v", after, before, got, want)
		}

		tick := NewTick("BTC-USDT", 60)
		tick.LiquidityGross = before
		flipped, err := tick.Update(delta, false, noCeiling)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if flipped != want {
			t.Fatalf("update(%s) on gross %s: flipped = %v, want %v", delta, before, flipped, want)
		}
	}
}

func TestTickUpdateFloorsGross(t *testing.T) {
	tick := NewTick("BTC-USDT", 0)
	if _, err := tick.Update(dec("100"), false, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := tick.Update(dec("-250"), false, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !tick.LiquidityGross.IsZero() {
		t.Fatalf("gross should floor at zero, got %s", tick.LiquidityGross)
	}
	// Net is unclamped: +100 then -250 leaves -150.
	if !tick.LiquidityNet.Equal(dec("-150")) {
		t.Fatalf("net = %s, want -150", tick.LiquidityNet)
	}
}

func TestTickUpdateUpperMovesNetOpposite(t *testing.T) {
	tick := NewTick("BTC-USDT", 120)
	if _, err := tick.Update(dec("100"), true, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !tick.LiquidityNet.Equal(dec("-100")) {
		t.Fatalf("upper tick net = %s, want -100", tick.LiquidityNet)
	}
	if !tick.LiquidityGross.Equal(dec("100")) {
		t.Fatalf("gross = %s, want 100", tick.LiquidityGross)
	}
}

func TestTickUpdateMaxLiquidityCeiling(t *testing.T) {
	tick := NewTick("BTC-USDT", 0)
	_, err := tick.Update(dec("11"), false, dec("10"))
	if !errors.Is(err, ErrMaxLiquidityPerTick) {
		t.Fatalf("expected ErrMaxLiquidityPerTick, got %v", err)
	}
	if !tick.LiquidityGross.IsZero() {
		t.Fatalf("failed update must not change gross, got %s", tick.LiquidityGross)
	}
}

func TestTickUpdateMarksInitialized(t *testing.T) {
	tick := NewTick("BTC-USDT", 0)

	// Zero delta on an untouched tick is the one call that does not mark it.
	if _, err := tick.Update(decimal.Zero, false, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	if tick.Initialized {
		t.Fatalf("first no-op should leave tick uninitialized")
	}

	if _, err := tick.Update(dec("5"), false, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !tick.Initialized {
		t.Fatalf("tick should be initialized after liquidity arrives")
	}
	if tick.TickInitializedAt.IsZero() {
		t.Fatalf("first liquidity should stamp tickInitializedAt")
	}
}

func TestTickUpdateWithFeeGrowthSeedsOutside(t *testing.T) {
	tick := NewTick("BTC-USDT", 100)

	// Tick above the current tick: outside values untouched.
	if _, err := tick.UpdateWithFeeGrowth(dec("10"), false, noCeiling, 50, dec("1.5"), dec("2.5")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !tick.FeeGrowthOutside0.IsZero() || !tick.FeeGrowthOutside1.IsZero() {
		t.Fatalf("outside values should stay zero above current tick")
	}

	// Tick at or below the current tick: outside values assigned the globals.
	if _, err := tick.UpdateWithFeeGrowth(dec("10"), false, noCeiling, 100, dec("1.5"), dec("2.5")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !tick.FeeGrowthOutside0.Equal(dec("1.5")) || !tick.FeeGrowthOutside1.Equal(dec("2.5")) {
		t.Fatalf("outside = (%s, %s), want (1.5, 2.5)", tick.FeeGrowthOutside0, tick.FeeGrowthOutside1)
	}
}

func TestTickCrossIdempotentPair(t *testing.T) {
	globals := [][2]string{
		{"0", "0"},
		{"1.5", "2.5"},
		{"100.123456", "0.000001"},
	}

	for _, pair := range globals {
		tick := NewTick("BTC-USDT", -60)
		tick.FeeGrowthOutside0 = dec("0.7")
		tick.FeeGrowthOutside1 = dec("3.1")
		tick.LiquidityNet = dec("42")

		g0, g1 := dec(pair[0]), dec(pair[1])
		if got := tick.Cross(g0, g1); !got.Equal(dec("42")) {
			t.Fatalf("cross should return net liquidity, got %s", got)
		}
		tick.Cross(g0, g1)

		if !tick.FeeGrowthOutside0.Equal(dec("0.7")) || !tick.FeeGrowthOutside1.Equal(dec("3.1")) {
			t.Fatalf("double cross with globals (%s, %s) did not restore: (%s, %s)",
				g0, g1, tick.FeeGrowthOutside0, tick.FeeGrowthOutside1)
		}
	}
}

func TestTickClear(t *testing.T) {
	tick := NewTick("BTC-USDT", 60)
	if _, err := tick.Update(dec("100"), false, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	tick.FeeGrowthOutside0 = dec("1")
	tick.FeeGrowthOutside1 = dec("2")

	tick.Clear()

	if !tick.LiquidityGross.IsZero() || !tick.LiquidityNet.IsZero() {
		t.Fatalf("clear should zero liquidity, got gross %s net %s", tick.LiquidityGross, tick.LiquidityNet)
	}
	if !tick.FeeGrowthOutside0.IsZero() || !tick.FeeGrowthOutside1.IsZero() {
		t.Fatalf("clear should zero fee growth outside")
	}
	if tick.Initialized {
		t.Fatalf("clear should reset initialized")
	}
}

func TestTickMessageViewCarriesInitializedAt(t *testing.T) {
	tick := NewTick("BTC-USDT", 60)

	if _, ok := tick.MessageView()["tickInitializedAt"]; ok {
		t.Fatalf("untouched tick should not publish tickInitializedAt")
	}

	if _, err := tick.Update(dec("100"), false, noCeiling); err != nil {
		t.Fatalf("update: %v", err)
	}
	view := tick.MessageView()
	if view["tickInitializedAt"] == "" || view["tickInitializedAt"] == nil {
		t.Fatalf("initialized tick must publish tickInitializedAt, got %v", view["tickInitializedAt"])
	}
}
