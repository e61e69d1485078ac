package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammEngine/internal/model"
	"ammEngine/internal/storage"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testLimits() model.Limits {
	return model.Limits{
		MinSlippage:          decimal.Zero,
		MaxSlippage:          dec("0.5"),
		MinPositionLiquidity: dec("1"),
	}
}

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return New(store, nil, testLimits(), model.NewCoinSet("ETH", "USDC"), nil), store
}

func fundAccount(t *testing.T, store *storage.MemoryStore, key, coin, amount string) {
	t.Helper()
	account := model.NewAccount(key, "owner-1", coin)
	require.NoError(t, account.Credit(dec(amount)))
	require.NoError(t, store.PutAccount(context.Background(), account))
}

func createTestPool(t *testing.T, e *Engine, initPrice string) *model.AmmPool {
	t.Helper()
	params := CreatePoolParams{
		Pair:           "ETH-USDC",
		Token0:         "ETH",
		Token1:         "USDC",
		TickSpacing:    60,
		FeePct:         dec("0.003"),
		ProtocolFeePct: dec("0.1"),
	}
	if initPrice != "" {
		params.InitPrice = decPtr(initPrice)
	}
	pool, err := e.CreatePool(context.Background(), params)
	require.NoError(t, err)
	return pool
}

func openTestPosition(t *testing.T, e *Engine, tickLower, tickUpper int, amount0, amount1 string) *model.AmmPosition {
	t.Helper()
	position, err := e.OpenPosition(context.Background(), OpenPositionParams{
		Pair:        "ETH-USDC",
		Account0Key: "acct-eth",
		Account1Key: "acct-usdc",
		TickLower:   tickLower,
		TickUpper:   tickUpper,
		Amount0:     dec(amount0),
		Amount1:     dec(amount1),
		Slippage:    dec("0.01"),
	})
	require.NoError(t, err)
	return position
}

func TestCreatePool(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	pool := createTestPool(t, e, "1")
	assert.True(t, pool.IsActive)
	assert.Equal(t, 0, pool.CurrentTick)
	assert.True(t, pool.Price.Equal(dec("1")), "price %s", pool.Price)
	assert.True(t, pool.SqrtPrice.Equal(dec("1")), "sqrt price %s", pool.SqrtPrice)

	bitmap, err := store.TickBitmap("ETH-USDC")
	require.NoError(t, err)
	require.NotNil(t, bitmap)
	assert.Empty(t, bitmap.SetBits())

	_, err = e.CreatePool(ctx, CreatePoolParams{
		Pair: "ETH-USDC", Token0: "ETH", Token1: "USDC", TickSpacing: 60,
		FeePct: dec("0.003"), ProtocolFeePct: dec("0.1"),
	})
	assert.Error(t, err, "duplicate pair must be rejected")
}

func TestCreatePoolRejectsUnsupportedCoin(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.CreatePool(context.Background(), CreatePoolParams{
		Pair: "DOGE-USDC", Token0: "DOGE", Token1: "USDC", TickSpacing: 60,
		FeePct: dec("0.003"), ProtocolFeePct: dec("0.1"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOGE")
}

func TestOpenPosition(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")

	position := openTestPosition(t, e, -600, 600, "1000", "1000")
	assert.Equal(t, model.PositionOpen, position.Status)
	assert.True(t, position.Liquidity.GreaterThan(dec("30000")), "liquidity %s", position.Liquidity)
	assert.True(t, position.Amount0.LessThanOrEqual(dec("1000")))
	assert.True(t, position.Amount1.LessThanOrEqual(dec("1000")))

	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, pool.Liquidity.Equal(position.Liquidity), "pool liquidity %s", pool.Liquidity)
	assert.True(t, pool.TVL0.Equal(position.Amount0))
	assert.True(t, pool.TVL1.Equal(position.Amount1))

	bitmap, err := store.TickBitmap("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, bitmap.IsSet(-600))
	assert.True(t, bitmap.IsSet(600))

	lower, err := store.Tick(model.TickKey("ETH-USDC", -600))
	require.NoError(t, err)
	require.NotNil(t, lower)
	assert.True(t, lower.LiquidityGross.Equal(position.Liquidity))
	assert.True(t, lower.LiquidityNet.Equal(position.Liquidity))
	upper, err := store.Tick(model.TickKey("ETH-USDC", 600))
	require.NoError(t, err)
	require.NotNil(t, upper)
	assert.True(t, upper.LiquidityNet.Equal(position.Liquidity.Neg()))

	account0, err := store.Account("acct-eth")
	require.NoError(t, err)
	assert.True(t, account0.Available.Equal(dec("10000").Sub(position.Amount0)))
	account1, err := store.Account("acct-usdc")
	require.NoError(t, err)
	assert.True(t, account1.Available.Equal(dec("10000").Sub(position.Amount1)))
}

func TestOpenPositionBootstrapsPrice(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")

	// First deposit of 1000/4000 fixes the price at 4.
	position, err := e.OpenPosition(context.Background(), OpenPositionParams{
		Pair:        "ETH-USDC",
		Account0Key: "acct-eth",
		Account1Key: "acct-usdc",
		TickLower:   6000,
		TickUpper:   21600,
		Amount0:     dec("1000"),
		Amount1:     dec("4000"),
		Slippage:    dec("0.01"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PositionOpen, position.Status)

	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, pool.Price.Equal(dec("4")), "price %s", pool.Price)
	assert.InDelta(t, 13863, pool.CurrentTick, 1) // log(4)/log(1.0001)
	assert.True(t, pool.Seeded())
}

func TestOpenPositionValidation(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")

	t.Run("tick not on spacing", func(t *testing.T) {
		_, err := e.OpenPosition(context.Background(), OpenPositionParams{
			Pair: "ETH-USDC", Account0Key: "acct-eth", Account1Key: "acct-usdc",
			TickLower: -601, TickUpper: 600,
			Amount0: dec("1000"), Amount1: dec("1000"), Slippage: dec("0.01"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tick spacing")
	})

	t.Run("slippage above maximum", func(t *testing.T) {
		_, err := e.OpenPosition(context.Background(), OpenPositionParams{
			Pair: "ETH-USDC", Account0Key: "acct-eth", Account1Key: "acct-usdc",
			TickLower: -600, TickUpper: 600,
			Amount0: dec("1000"), Amount1: dec("1000"), Slippage: dec("0.9"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "slippage")
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := e.OpenPosition(context.Background(), OpenPositionParams{
			Pair: "ETH-USDC", Account0Key: "acct-nope", Account1Key: "acct-usdc",
			TickLower: -600, TickUpper: 600,
			Amount0: dec("1000"), Amount1: dec("1000"), Slippage: dec("0.01"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "acct-nope")
	})
}

func TestExecuteOrderInRange(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")
	pos := openTestPosition(t, e, -600, 600, "1000", "1000")

	order, err := e.ExecuteOrder(context.Background(), SwapParams{
		Pair:        "ETH-USDC",
		Account0Key: "acct-eth",
		Account1Key: "acct-usdc",
		ZeroForOne:  true,
		AmountIn:    dec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderSuccess, order.Status)
	assert.True(t, order.AmountConsumed.Equal(dec("10")), "consumed %s", order.AmountConsumed)
	assert.True(t, order.AmountReceived.GreaterThan(dec("9.9")), "received %s", order.AmountReceived)
	assert.True(t, order.AmountReceived.LessThan(dec("10")))
	assert.Equal(t, 0, order.TickBefore)
	assert.Less(t, order.TickAfter, 0)
	assert.False(t, order.CompletedAt.IsZero())

	totalFee := order.Fees["lp_fee"].Add(order.Fees["protocol_fee"])
	assert.True(t, totalFee.GreaterThan(dec("0.029")), "fee %s", totalFee)
	assert.True(t, totalFee.LessThan(dec("0.031")))

	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.Equal(t, order.TickAfter, pool.CurrentTick)
	assert.True(t, pool.SqrtPrice.LessThan(dec("1")))
	assert.True(t, pool.FeeGrowthGlobal0.IsPositive())
	assert.True(t, pool.FeeGrowthGlobal1.IsZero())
	assert.True(t, pool.ProtocolFees0.IsPositive())
	assert.True(t, pool.Volume0.Equal(dec("10")))
	assert.True(t, pool.Volume1.IsZero())

	account0, err := store.Account("acct-eth")
	require.NoError(t, err)
	account1, err := store.Account("acct-usdc")
	require.NoError(t, err)
	// Everything debited went into the pool or out to the counter account.
	assert.True(t, account0.Available.Equal(dec("10000").Sub(pos.Amount0).Sub(dec("10"))))
	assert.True(t, account1.Available.Equal(dec("10000").Sub(pos.Amount1).Add(order.AmountReceived)))
}

func TestExecuteOrderSlippageGuard(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")
	pos := openTestPosition(t, e, -600, 600, "1000", "1000")

	order, err := e.ExecuteOrder(context.Background(), SwapParams{
		ID:                 "order-slip",
		Pair:               "ETH-USDC",
		Account0Key:        "acct-eth",
		Account1Key:        "acct-usdc",
		ZeroForOne:         true,
		AmountIn:           dec("10"),
		EstimatedAmountOut: dec("10"),
		Slippage:           dec("0.0001"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slippage")
	assert.Equal(t, model.OrderError, order.Status)

	stored, err := store.Order("order-slip")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.OrderError, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)

	// The failed order must not have moved any balance.
	account0, err := store.Account("acct-eth")
	require.NoError(t, err)
	assert.True(t, account0.Available.Equal(dec("10000").Sub(pos.Amount0)))
}

func TestExecuteOrderCrossesTick(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "100000")
	fundAccount(t, store, "acct-usdc", "USDC", "100000")
	outer := openTestPosition(t, e, -600, 600, "1000", "1000")
	inner := openTestPosition(t, e, -60, 60, "100", "100")

	order, err := e.ExecuteOrder(context.Background(), SwapParams{
		Pair:        "ETH-USDC",
		Account0Key: "acct-eth",
		Account1Key: "acct-usdc",
		ZeroForOne:  true,
		AmountIn:    dec("300"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderSuccess, order.Status)
	assert.Less(t, order.TickAfter, -60, "swap must exit the inner range")

	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, pool.Liquidity.Equal(outer.Liquidity),
		"active liquidity %s should fall back to the outer position's %s", pool.Liquidity, outer.Liquidity)
	assert.True(t, pool.Liquidity.LessThan(outer.Liquidity.Add(inner.Liquidity)))

	crossed, err := store.Tick(model.TickKey("ETH-USDC", -60))
	require.NoError(t, err)
	require.NotNil(t, crossed)
	assert.True(t, crossed.FeeGrowthOutside0.IsPositive(),
		"crossing must flip fee growth outside, got %s", crossed.FeeGrowthOutside0)
}

func TestExecuteOrderInsufficientLiquidity(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "100000")
	fundAccount(t, store, "acct-usdc", "USDC", "100000")
	openTestPosition(t, e, -60, 60, "100", "100")

	order, err := e.ExecuteOrder(context.Background(), SwapParams{
		ID:          "order-dry",
		Pair:        "ETH-USDC",
		Account0Key: "acct-eth",
		Account1Key: "acct-usdc",
		ZeroForOne:  true,
		AmountIn:    dec("50000"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient liquidity")
	assert.Equal(t, model.OrderError, order.Status)
}

func TestExecuteOrderAbortLeavesTicksUntouched(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "1000000")
	fundAccount(t, store, "acct-usdc", "USDC", "1000000")
	openTestPosition(t, e, -600, 600, "1000", "1000")

	_, err := e.ExecuteOrder(context.Background(), SwapParams{
		Pair:        "ETH-USDC",
		Account0Key: "acct-eth",
		Account1Key: "acct-usdc",
		ZeroForOne:  true,
		AmountIn:    dec("500000"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient liquidity")

	// The aborted walk crossed -600 internally; the stored tick must not
	// have picked up the flipped fee-growth-outside values.
	lower, err := store.Tick(model.TickKey("ETH-USDC", -600))
	require.NoError(t, err)
	require.NotNil(t, lower)
	assert.True(t, lower.FeeGrowthOutside0.IsZero(),
		"aborted swap corrupted the stored tick: %s", lower.FeeGrowthOutside0)

	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.Equal(t, 0, pool.CurrentTick)
	assert.True(t, pool.FeeGrowthGlobal0.IsZero())
}

func TestAccountLocksPrecedeValidation(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")

	held, err := e.locks.Acquire("SWAP", "order-held", "ETH-USDC", []string{"acct-eth", "acct-usdc"})
	require.NoError(t, err)
	defer e.locks.Release(held)

	// Even a request that would fail validation must claim the accounts
	// first, so the held lock is what rejects it.
	_, err = e.OpenPosition(context.Background(), OpenPositionParams{
		Pair: "ETH-USDC", Account0Key: "acct-eth", Account1Key: "acct-usdc",
		TickLower: -601, TickUpper: 600,
		Amount0: dec("1000"), Amount1: dec("1000"), Slippage: dec("0.01"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already locked")

	_, err = e.ExecuteOrder(context.Background(), SwapParams{
		Pair: "ETH-USDC", Account0Key: "acct-eth", Account1Key: "acct-usdc",
		ZeroForOne: true, AmountIn: dec("10"), Slippage: dec("0.9"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already locked")
}

func TestCollectFees(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")
	position := openTestPosition(t, e, -600, 600, "1000", "1000")

	order, err := e.ExecuteOrder(context.Background(), SwapParams{
		Pair: "ETH-USDC", Account0Key: "acct-eth", Account1Key: "acct-usdc",
		ZeroForOne: true, AmountIn: dec("10"),
	})
	require.NoError(t, err)

	before, err := store.Account("acct-eth")
	require.NoError(t, err)
	availableBefore := before.Available
	poolBefore, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	tvl0Before := poolBefore.TVL0

	collected, err := e.CollectFees(context.Background(), position.ID)
	require.NoError(t, err)
	assert.True(t, collected.FeeCollected0.IsPositive())
	assert.True(t, collected.TokensOwed0.IsZero())
	// The sole LP earns (within rounding) the whole LP fee of the swap.
	diff := collected.FeeCollected0.Sub(order.Fees["lp_fee"]).Abs()
	assert.True(t, diff.LessThan(dec("0.0001")), "fee drift %s", diff)

	after, err := store.Account("acct-eth")
	require.NoError(t, err)
	assert.True(t, after.Available.Equal(availableBefore.Add(collected.FeeCollected0)))

	// The payout left the pool's reserves, not thin air.
	poolAfter, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, poolAfter.TVL0.Equal(tvl0Before.Sub(collected.FeeCollected0)),
		"tvl0 %s -> %s, payout %s", tvl0Before, poolAfter.TVL0, collected.FeeCollected0)

	// A second collect right away finds nothing new.
	again, err := e.CollectFees(context.Background(), position.ID)
	require.NoError(t, err)
	assert.True(t, again.FeeCollected0.Equal(collected.FeeCollected0))
}

func TestClosePosition(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")
	position := openTestPosition(t, e, -600, 600, "1000", "1000")

	closed, err := e.ClosePosition(context.Background(), position.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionClosed, closed.Status)
	assert.True(t, closed.Liquidity.IsZero())
	assert.True(t, closed.Withdrawn0.Equal(position.Amount0))
	assert.True(t, closed.Withdrawn1.Equal(position.Amount1))
	assert.False(t, closed.StoppedAt.IsZero())

	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, pool.Liquidity.IsZero())
	assert.True(t, pool.TVL0.IsZero())
	assert.True(t, pool.TVL1.IsZero())

	// Both boundary ticks drained to zero and were deleted.
	lower, err := store.Tick(model.TickKey("ETH-USDC", -600))
	require.NoError(t, err)
	assert.Nil(t, lower)
	bitmap, err := store.TickBitmap("ETH-USDC")
	require.NoError(t, err)
	assert.Empty(t, bitmap.SetBits())

	// Principal came back untouched: no swaps, no fees.
	account0, err := store.Account("acct-eth")
	require.NoError(t, err)
	assert.True(t, account0.Available.Equal(dec("10000")))
	account1, err := store.Account("acct-usdc")
	require.NoError(t, err)
	assert.True(t, account1.Available.Equal(dec("10000")))

	_, err = e.ClosePosition(context.Background(), position.ID)
	require.Error(t, err, "closing twice must fail")
}

func TestClosePositionSettlesFeesFromReserves(t *testing.T) {
	e, store := newTestEngine(t)
	createTestPool(t, e, "1")
	fundAccount(t, store, "acct-eth", "ETH", "10000")
	fundAccount(t, store, "acct-usdc", "USDC", "10000")
	position := openTestPosition(t, e, -600, 600, "1000", "1000")

	_, err := e.ExecuteOrder(context.Background(), SwapParams{
		Pair: "ETH-USDC", Account0Key: "acct-eth", Account1Key: "acct-usdc",
		ZeroForOne: true, AmountIn: dec("10"),
	})
	require.NoError(t, err)

	closed, err := e.ClosePosition(context.Background(), position.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionClosed, closed.Status)
	assert.True(t, closed.Withdrawn0.GreaterThan(position.Amount0),
		"withdrawal must include the accrued fees")

	// The sole LP withdrew principal plus fees; only rounding dust may stay.
	pool, err := store.AmmPool("ETH-USDC")
	require.NoError(t, err)
	assert.True(t, pool.TVL0.LessThan(dec("0.001")), "tvl0 %s", pool.TVL0)
	assert.True(t, pool.TVL1.LessThan(dec("0.001")), "tvl1 %s", pool.TVL1)
}
