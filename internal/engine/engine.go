// Package engine orchestrates pool, position, and order operations over the
// aggregate model. Every multi-account mutation runs under a balance lock;
// the engine is the single writer for a pool's state.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ammEngine/internal/amm"
	"ammEngine/internal/model"
	"ammEngine/internal/storage"
)

// Engine executes AMM operations against a store. Mutated aggregates are
// written back individually and their message views appended to the journal.
type Engine struct {
	store   storage.Store
	journal *storage.SnapshotJournal
	locks   *Locker
	logger  *zap.Logger
	limits  model.Limits
	coins   model.CoinSet
}

func New(store storage.Store, journal *storage.SnapshotJournal, limits model.Limits, coins model.CoinSet, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		journal: journal,
		locks:   NewLocker(),
		logger:  logger,
		limits:  limits,
		coins:   coins,
	}
}

type CreatePoolParams struct {
	Pair           string
	Token0         string
	Token1         string
	TickSpacing    int
	FeePct         decimal.Decimal
	ProtocolFeePct decimal.Decimal
	InitPrice      *decimal.Decimal
}

// CreatePool registers a pool and its empty tick bitmap. A supplied initial
// price seeds the bootstrap tick; otherwise the first deposit ratio decides.
func (e *Engine) CreatePool(ctx context.Context, params CreatePoolParams) (*model.AmmPool, error) {
	existing, err := e.store.AmmPool(params.Pair)
	if err != nil {
		return nil, fmt.Errorf("lookup pool %s: %w", params.Pair, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("pool %s already exists", params.Pair)
	}

	pool := model.NewAmmPool(params.Pair, params.Token0, params.Token1, params.TickSpacing, params.FeePct, params.ProtocolFeePct)
	pool.InitPrice = params.InitPrice
	pool.CalculateInitialPriceAndTick()
	if violations := pool.ValidateRequiredFields(e.coins); len(violations) > 0 {
		return nil, fmt.Errorf("pool %s invalid: %s", params.Pair, strings.Join(violations, "; "))
	}

	bitmap := model.NewTickBitmap(params.Pair)
	if err := e.store.PutAmmPool(ctx, pool); err != nil {
		return nil, err
	}
	if err := e.store.PutTickBitmap(ctx, bitmap); err != nil {
		return nil, err
	}
	if err := e.journal.Append("amm_pool", pool.MessageView()); err != nil {
		e.logger.Warn("journal append failed", zap.Error(err))
	}

	e.logger.Info("pool created",
		zap.String("pair", pool.Pair),
		zap.Int("tick_spacing", pool.TickSpacing),
		zap.String("fee_pct", pool.FeePct.String()),
		zap.Bool("seeded_price", pool.InitPrice != nil))
	return pool, nil
}

type OpenPositionParams struct {
	ID          string
	Pair        string
	Account0Key string
	Account1Key string
	TickLower   int
	TickUpper   int
	Amount0     decimal.Decimal
	Amount1     decimal.Decimal
	Slippage    decimal.Decimal
}

// OpenPosition provisions liquidity in a tick range: it debits the funding
// accounts for the amounts actually used, updates both boundary ticks and the
// bitmap, and opens the position with its fee-growth snapshot.
func (e *Engine) OpenPosition(ctx context.Context, params OpenPositionParams) (*model.AmmPosition, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	position := model.NewAmmPosition(id, params.Pair, params.Account0Key, params.Account1Key,
		params.TickLower, params.TickUpper, params.Amount0, params.Amount1, params.Slippage)

	// The balance lock comes first so every account read, validation included,
	// happens with exclusive claim over both funding accounts.
	lock, err := e.locks.Acquire("OPEN_POSITION", id, params.Pair, []string{params.Account0Key, params.Account1Key})
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(lock)

	if violations := position.ValidateRequiredFields(e.store, e.limits); len(violations) > 0 {
		return nil, fmt.Errorf("position %s invalid: %s", id, strings.Join(violations, "; "))
	}
	if violations := position.ValidateResourcesExist(e.store, e.store, e.store); len(violations) > 0 {
		return nil, fmt.Errorf("position %s resources: %s", id, strings.Join(violations, "; "))
	}

	pool, err := e.poolOf(params.Pair)
	if err != nil {
		return position, e.failPosition(ctx, position, err)
	}
	if !pool.Seeded() && pool.InitPrice == nil {
		// Bootstrap pricing: the first deposit's ratio fixes the price.
		if !params.Amount0.IsPositive() || !params.Amount1.IsPositive() {
			return position, e.failPosition(ctx, position,
				fmt.Errorf("pool %s has no price; first position needs both amounts", pool.Pair))
		}
		price := params.Amount1.DivRound(params.Amount0, amm.AmountScale)
		pool.InitPrice = &price
	}
	pool.CalculateInitialPriceAndTick()

	sqrtLower := amm.SqrtRatioAtTick(params.TickLower)
	sqrtUpper := amm.SqrtRatioAtTick(params.TickUpper)
	liquidity := amm.LiquidityForAmounts(pool.SqrtPrice, sqrtLower, sqrtUpper, params.Amount0, params.Amount1)
	if liquidity.LessThan(e.limits.MinPositionLiquidity) {
		return position, e.failPosition(ctx, position,
			fmt.Errorf("liquidity %s below minimum %s", liquidity, e.limits.MinPositionLiquidity))
	}

	used0, used1, inRange := amountsForRange(pool.SqrtPrice, sqrtLower, sqrtUpper, liquidity, pool.CurrentTick, params.TickLower, params.TickUpper)

	account0, err := e.accountOf(params.Account0Key)
	if err != nil {
		return position, e.failPosition(ctx, position, err)
	}
	account1, err := e.accountOf(params.Account1Key)
	if err != nil {
		return position, e.failPosition(ctx, position, err)
	}
	if used0.IsPositive() && account0.Available.LessThan(used0) {
		return position, e.failPosition(ctx, position,
			fmt.Errorf("insufficient balance on %s: have %s, need %s", account0.Key, account0.Available, used0))
	}
	if used1.IsPositive() && account1.Available.LessThan(used1) {
		return position, e.failPosition(ctx, position,
			fmt.Errorf("insufficient balance on %s: have %s, need %s", account1.Key, account1.Available, used1))
	}

	bitmap, err := pool.TickBitmap(e.store)
	if err != nil {
		return position, e.failPosition(ctx, position, err)
	}
	maxLiquidity := amm.MaxLiquidityPerTick(pool.TickSpacing)

	lowerTick, err := e.applyTickDelta(pool, bitmap, params.TickLower, liquidity, false, maxLiquidity)
	if err != nil {
		return position, e.failPosition(ctx, position, err)
	}
	upperTick, err := e.applyTickDelta(pool, bitmap, params.TickUpper, liquidity, true, maxLiquidity)
	if err != nil {
		return position, e.failPosition(ctx, position, err)
	}

	if used0.IsPositive() {
		if err := account0.Debit(used0); err != nil {
			return position, e.failPosition(ctx, position, err)
		}
		lock.AddLockedBalance(account0.Key, used0)
	}
	if used1.IsPositive() {
		if err := account1.Debit(used1); err != nil {
			return position, e.failPosition(ctx, position, err)
		}
		lock.AddLockedBalance(account1.Key, used1)
	}

	inside0, inside1 := FeeGrowthInside(pool, lowerTick, upperTick)
	position.UpdateAfterCreate(params.TickLower, params.TickUpper, liquidity, used0, used1, inside0, inside1)
	position.OpenPosition()
	pool.UpdateForAddPosition(liquidity, inRange, used0, used1)

	if err := e.store.PutTick(ctx, lowerTick); err != nil {
		return position, err
	}
	if err := e.store.PutTick(ctx, upperTick); err != nil {
		return position, err
	}
	if err := e.store.PutTickBitmap(ctx, bitmap); err != nil {
		return position, err
	}
	if err := e.store.PutAmmPool(ctx, pool); err != nil {
		return position, err
	}
	if err := e.store.PutAccount(ctx, account0); err != nil {
		return position, err
	}
	if err := e.store.PutAccount(ctx, account1); err != nil {
		return position, err
	}
	if err := e.store.PutPosition(ctx, position); err != nil {
		return position, err
	}
	if err := e.journal.Append("amm_position", position.MessageView()); err != nil {
		e.logger.Warn("journal append failed", zap.Error(err))
	}

	e.logger.Info("position opened",
		zap.String("position_id", position.ID),
		zap.String("pair", position.Pair),
		zap.Int("tick_lower", position.TickLower),
		zap.Int("tick_upper", position.TickUpper),
		zap.String("liquidity", position.Liquidity.String()),
		zap.Bool("in_range", inRange))
	return position, nil
}

// CollectFees settles a position's accrued fees into its funding accounts.
func (e *Engine) CollectFees(ctx context.Context, positionID string) (*model.AmmPosition, error) {
	position, err := e.positionOf(positionID)
	if err != nil {
		return nil, err
	}

	lock, err := e.locks.Acquire("COLLECT_FEES", positionID, position.Pair, []string{position.Account0Key, position.Account1Key})
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(lock)

	pool, err := e.poolOf(position.Pair)
	if err != nil {
		return nil, err
	}
	lowerTick, err := pool.Tick(e.store, position.TickLower)
	if err != nil {
		return nil, err
	}
	upperTick, err := pool.Tick(e.store, position.TickUpper)
	if err != nil {
		return nil, err
	}

	inside0, inside1 := FeeGrowthInside(pool, lowerTick, upperTick)
	owed0 := position.TokensOwed0.Add(TokensOwed(position.Liquidity, inside0, position.FeeGrowthInside0Last)).Round(amm.AmountScale)
	owed1 := position.TokensOwed1.Add(TokensOwed(position.Liquidity, inside1, position.FeeGrowthInside1Last)).Round(amm.AmountScale)

	if !position.UpdateAfterCollectFee(owed0, owed1, inside0, inside1).Applied() {
		return nil, fmt.Errorf("position %s is %s, cannot collect fees", position.ID, position.Status)
	}

	if err := e.creditPair(ctx, position.Account0Key, position.Account1Key, owed0, owed1); err != nil {
		return nil, err
	}
	if owed0.IsPositive() || owed1.IsPositive() {
		// Accrued fees sit in the pool's reserves until paid out here.
		noLiquidity := decimal.Zero
		pool.UpdateForClosePosition(&noLiquidity, owed0, owed1)
		if err := e.store.PutAmmPool(ctx, pool); err != nil {
			return nil, err
		}
	}
	if err := e.store.PutPosition(ctx, position); err != nil {
		return nil, err
	}
	if err := e.journal.Append("amm_position", position.MessageView()); err != nil {
		e.logger.Warn("journal append failed", zap.Error(err))
	}

	e.logger.Info("fees collected",
		zap.String("position_id", position.ID),
		zap.String("owed0", owed0.String()),
		zap.String("owed1", owed1.String()))
	return position, nil
}

// ClosePosition withdraws a position's principal and outstanding fees,
// unwinds the boundary ticks, and clears ticks whose liquidity hits zero.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) (*model.AmmPosition, error) {
	position, err := e.positionOf(positionID)
	if err != nil {
		return nil, err
	}

	lock, err := e.locks.Acquire("CLOSE_POSITION", positionID, position.Pair, []string{position.Account0Key, position.Account1Key})
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(lock)

	pool, err := e.poolOf(position.Pair)
	if err != nil {
		return nil, err
	}
	bitmap, err := pool.TickBitmap(e.store)
	if err != nil {
		return nil, err
	}
	lowerTick, err := pool.Tick(e.store, position.TickLower)
	if err != nil {
		return nil, err
	}
	upperTick, err := pool.Tick(e.store, position.TickUpper)
	if err != nil {
		return nil, err
	}

	inside0, inside1 := FeeGrowthInside(pool, lowerTick, upperTick)
	fees0 := position.TokensOwed0.Add(TokensOwed(position.Liquidity, inside0, position.FeeGrowthInside0Last)).Round(amm.AmountScale)
	fees1 := position.TokensOwed1.Add(TokensOwed(position.Liquidity, inside1, position.FeeGrowthInside1Last)).Round(amm.AmountScale)

	sqrtLower := amm.SqrtRatioAtTick(position.TickLower)
	sqrtUpper := amm.SqrtRatioAtTick(position.TickUpper)
	liquidity := position.Liquidity
	amount0, amount1, inRange := amountsForRange(pool.SqrtPrice, sqrtLower, sqrtUpper, liquidity, pool.CurrentTick, position.TickLower, position.TickUpper)

	if !position.ClosePosition(amount0.Add(fees0), amount1.Add(fees1), inside0, inside1).Applied() {
		return nil, fmt.Errorf("position %s is %s, cannot close", position.ID, position.Status)
	}

	maxLiquidity := amm.MaxLiquidityPerTick(pool.TickSpacing)
	if err := e.unwindTick(ctx, bitmap, lowerTick, liquidity, false, maxLiquidity); err != nil {
		return nil, err
	}
	if err := e.unwindTick(ctx, bitmap, upperTick, liquidity, true, maxLiquidity); err != nil {
		return nil, err
	}

	removedLiquidity := decimal.Zero
	if inRange {
		removedLiquidity = liquidity
	}
	// Withdrawn fees leave the reserves along with the principal.
	pool.UpdateForClosePosition(&removedLiquidity, amount0.Add(fees0), amount1.Add(fees1))

	if err := e.creditPair(ctx, position.Account0Key, position.Account1Key, amount0.Add(fees0), amount1.Add(fees1)); err != nil {
		return nil, err
	}
	if err := e.store.PutTickBitmap(ctx, bitmap); err != nil {
		return nil, err
	}
	if err := e.store.PutAmmPool(ctx, pool); err != nil {
		return nil, err
	}
	if err := e.store.PutPosition(ctx, position); err != nil {
		return nil, err
	}
	if err := e.journal.Append("amm_position", position.MessageView()); err != nil {
		e.logger.Warn("journal append failed", zap.Error(err))
	}

	e.logger.Info("position closed",
		zap.String("position_id", position.ID),
		zap.String("withdrawn0", position.Withdrawn0.String()),
		zap.String("withdrawn1", position.Withdrawn1.String()))
	return position, nil
}

type SwapParams struct {
	ID                 string
	Pair               string
	Account0Key        string
	Account1Key        string
	ZeroForOne         bool
	AmountIn           decimal.Decimal
	EstimatedAmountOut decimal.Decimal
	Slippage           decimal.Decimal
}

// ExecuteOrder runs a swap end to end: compute the tick walk, apply the
// result to the pool all-or-nothing, settle both accounts, and finalize the
// order. Any failure after the lock is taken marks the order ERROR.
func (e *Engine) ExecuteOrder(ctx context.Context, params SwapParams) (*model.AmmOrder, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	order := model.NewAmmOrder(id, params.Pair, params.Account0Key, params.Account1Key,
		params.ZeroForOne, params.AmountIn, params.Slippage)
	order.EstimatedAmountOut = params.EstimatedAmountOut

	// Lock both legs before validation so account reads only happen under
	// exclusive claim.
	lock, err := e.locks.Acquire("SWAP", id, params.Pair, []string{params.Account0Key, params.Account1Key})
	if err != nil {
		return nil, err
	}
	defer e.locks.Release(lock)

	if violations := order.ValidateRequiredFields(e.limits); len(violations) > 0 {
		return nil, fmt.Errorf("order %s invalid: %s", id, strings.Join(violations, "; "))
	}
	if violations := order.ValidateResourcesExist(e.store, e.store); len(violations) > 0 {
		return nil, fmt.Errorf("order %s resources: %s", id, strings.Join(violations, "; "))
	}

	pool, err := e.poolOf(params.Pair)
	if err != nil {
		return order, e.failOrder(ctx, order, err)
	}
	bitmap, err := pool.TickBitmap(e.store)
	if err != nil {
		return order, e.failOrder(ctx, order, err)
	}

	inAccount, outAccount, err := e.swapAccounts(order)
	if err != nil {
		return order, e.failOrder(ctx, order, err)
	}
	if inAccount.Available.LessThan(params.AmountIn) {
		return order, e.failOrder(ctx, order,
			fmt.Errorf("insufficient balance on %s: have %s, need %s", inAccount.Key, inAccount.Available, params.AmountIn))
	}

	result, err := ComputeSwap(pool, bitmap, e.store, params.ZeroForOne, params.AmountIn)
	if err != nil {
		return order, e.failOrder(ctx, order, err)
	}
	if result.Remaining.IsPositive() {
		return order, e.failOrder(ctx, order,
			fmt.Errorf("insufficient liquidity on %s: %s of %s unfilled", pool.Pair, result.Remaining, params.AmountIn))
	}
	if params.EstimatedAmountOut.IsPositive() {
		minOut := params.EstimatedAmountOut.Mul(decimal.NewFromInt(1).Sub(params.Slippage))
		if result.AmountOut.LessThan(minOut) {
			return order, e.failOrder(ctx, order,
				fmt.Errorf("slippage exceeded: out %s below minimum %s", result.AmountOut, minOut))
		}
	}

	tickBefore := pool.CurrentTick
	tvl0, tvl1, volume0, volume1 := poolTotalsAfterSwap(pool, result)
	if !pool.UpdatePoolAfterSwap(&result.NewTick, &result.NewSqrtPrice, &result.NewLiquidity,
		&result.NewFeeGrowthGlobal0, &result.NewFeeGrowthGlobal1,
		&tvl0, &tvl1, &volume0, &volume1) {
		return order, e.failOrder(ctx, order, fmt.Errorf("pool %s rejected swap result", pool.Pair))
	}
	if params.ZeroForOne {
		pool.ProtocolFees0 = pool.ProtocolFees0.Add(result.ProtocolFee)
	} else {
		pool.ProtocolFees1 = pool.ProtocolFees1.Add(result.ProtocolFee)
	}

	if err := inAccount.Debit(result.AmountConsumed); err != nil {
		return order, e.failOrder(ctx, order, err)
	}
	lock.AddLockedBalance(inAccount.Key, result.AmountConsumed)
	if result.AmountOut.IsPositive() {
		if err := outAccount.Credit(result.AmountOut); err != nil {
			return order, e.failOrder(ctx, order, err)
		}
	}

	fees := map[string]decimal.Decimal{
		"lp_fee":       result.LpFee,
		"protocol_fee": result.ProtocolFee,
	}
	order.UpdateAfterExecution(result.AmountConsumed, result.AmountOut, tickBefore, result.NewTick, fees)
	order.MarkSuccess()

	for _, crossed := range result.CrossedTicks {
		if err := e.store.PutTick(ctx, crossed); err != nil {
			return order, err
		}
	}
	if err := e.store.PutAmmPool(ctx, pool); err != nil {
		return order, err
	}
	if err := e.store.PutAccount(ctx, inAccount); err != nil {
		return order, err
	}
	if err := e.store.PutAccount(ctx, outAccount); err != nil {
		return order, err
	}
	if err := e.store.PutOrder(ctx, order); err != nil {
		return order, err
	}
	if err := e.journal.Append("amm_order", order.MessageView()); err != nil {
		e.logger.Warn("journal append failed", zap.Error(err))
	}
	if err := e.journal.Append("amm_pool", pool.MessageView()); err != nil {
		e.logger.Warn("journal append failed", zap.Error(err))
	}

	e.logger.Info("swap executed",
		zap.String("order_id", order.ID),
		zap.String("pair", order.Pair),
		zap.Bool("zero_for_one", order.ZeroForOne),
		zap.String("amount_in", order.AmountConsumed.String()),
		zap.String("amount_out", order.AmountReceived.String()),
		zap.Int("tick_before", order.TickBefore),
		zap.Int("tick_after", order.TickAfter),
		zap.Int("crossed_ticks", len(result.CrossedTicks)))
	return order, nil
}

// applyTickDelta loads or creates a boundary tick, applies the liquidity
// delta with fee-growth seeding, and reflects any flip in the bitmap.
func (e *Engine) applyTickDelta(pool *model.AmmPool, bitmap *model.TickBitmap, index int, liquidityDelta decimal.Decimal, upper bool, maxLiquidity decimal.Decimal) (*model.Tick, error) {
	tick, err := e.store.Tick(model.TickKey(pool.Pair, index))
	if err != nil {
		return nil, fmt.Errorf("lookup tick %s: %w", model.TickKey(pool.Pair, index), err)
	}
	if tick == nil {
		tick = model.NewTick(pool.Pair, index)
	}
	flipped, err := tick.UpdateWithFeeGrowth(liquidityDelta, upper, maxLiquidity, pool.CurrentTick, pool.FeeGrowthGlobal0, pool.FeeGrowthGlobal1)
	if err != nil {
		return nil, err
	}
	bitmap.FlipBit(index, flipped, tick.Initialized)
	return tick, nil
}

// unwindTick removes closing liquidity from a boundary tick. A tick whose
// gross liquidity hits zero is cleared and deleted from the store.
func (e *Engine) unwindTick(ctx context.Context, bitmap *model.TickBitmap, tick *model.Tick, liquidity decimal.Decimal, upper bool, maxLiquidity decimal.Decimal) error {
	flipped, err := tick.Update(liquidity.Neg(), upper, maxLiquidity)
	if err != nil {
		return err
	}
	if flipped && tick.LiquidityGross.IsZero() {
		tick.Clear()
		bitmap.FlipBit(tick.Index, true, false)
		return e.store.DeleteTick(ctx, tick.Key())
	}
	bitmap.FlipBit(tick.Index, flipped, tick.Initialized)
	return e.store.PutTick(ctx, tick)
}

// swapAccounts resolves the debit and credit sides of an order.
func (e *Engine) swapAccounts(order *model.AmmOrder) (in, out *model.Account, err error) {
	account0, err := order.Account0(e.store)
	if err != nil {
		return nil, nil, err
	}
	account1, err := order.Account1(e.store)
	if err != nil {
		return nil, nil, err
	}
	if order.ZeroForOne {
		return account0, account1, nil
	}
	return account1, account0, nil
}

func (e *Engine) creditPair(ctx context.Context, key0, key1 string, amount0, amount1 decimal.Decimal) error {
	for _, leg := range []struct {
		key    string
		amount decimal.Decimal
	}{{key0, amount0}, {key1, amount1}} {
		if !leg.amount.IsPositive() {
			continue
		}
		account, err := e.accountOf(leg.key)
		if err != nil {
			return err
		}
		if err := account.Credit(leg.amount); err != nil {
			return err
		}
		if err := e.store.PutAccount(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) failPosition(ctx context.Context, position *model.AmmPosition, cause error) error {
	position.MarkError(cause.Error())
	if err := e.store.PutPosition(ctx, position); err != nil {
		e.logger.Warn("persist errored position failed", zap.String("position_id", position.ID), zap.Error(err))
	}
	e.logger.Warn("position failed", zap.String("position_id", position.ID), zap.Error(cause))
	return cause
}

func (e *Engine) failOrder(ctx context.Context, order *model.AmmOrder, cause error) error {
	order.MarkError(cause.Error())
	if err := e.store.PutOrder(ctx, order); err != nil {
		e.logger.Warn("persist errored order failed", zap.String("order_id", order.ID), zap.Error(err))
	}
	e.logger.Warn("order failed", zap.String("order_id", order.ID), zap.Error(cause))
	return cause
}

func (e *Engine) poolOf(pair string) (*model.AmmPool, error) {
	pool, err := e.store.AmmPool(pair)
	if err != nil {
		return nil, fmt.Errorf("lookup pool %s: %w", pair, err)
	}
	if pool == nil {
		return nil, fmt.Errorf("pool %s: %w", pair, model.ErrNotFound)
	}
	return pool, nil
}

func (e *Engine) positionOf(id string) (*model.AmmPosition, error) {
	position, err := e.store.Position(id)
	if err != nil {
		return nil, fmt.Errorf("lookup position %s: %w", id, err)
	}
	if position == nil {
		return nil, fmt.Errorf("position %s: %w", id, model.ErrNotFound)
	}
	return position, nil
}

func (e *Engine) accountOf(key string) (*model.Account, error) {
	account, err := e.store.Account(key)
	if err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", key, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", key, model.ErrNotFound)
	}
	return account, nil
}

// amountsForRange splits a liquidity figure into token amounts relative to
// the current price, and reports whether the range is active.
func amountsForRange(sqrtCurrent, sqrtLower, sqrtUpper, liquidity decimal.Decimal, currentTick, tickLower, tickUpper int) (amount0, amount1 decimal.Decimal, inRange bool) {
	switch {
	case currentTick < tickLower:
		return amm.Amount0ForLiquidity(liquidity, sqrtLower, sqrtUpper), decimal.Zero, false
	case currentTick >= tickUpper:
		return decimal.Zero, amm.Amount1ForLiquidity(liquidity, sqrtLower, sqrtUpper), false
	default:
		return amm.Amount0ForLiquidity(liquidity, sqrtCurrent, sqrtUpper),
			amm.Amount1ForLiquidity(liquidity, sqrtLower, sqrtCurrent), true
	}
}

// poolTotalsAfterSwap derives the pool's TVL and volume after a swap. LP fees
// stay in the pool; the protocol share is tracked separately and excluded.
func poolTotalsAfterSwap(pool *model.AmmPool, result *SwapResult) (tvl0, tvl1, volume0, volume1 decimal.Decimal) {
	retained := result.AmountConsumed.Sub(result.ProtocolFee)
	if result.ZeroForOne {
		tvl0 = pool.TVL0.Add(retained)
		tvl1 = decimal.Max(decimal.Zero, pool.TVL1.Sub(result.AmountOut))
		volume0 = pool.Volume0.Add(result.AmountConsumed)
		volume1 = pool.Volume1
	} else {
		tvl0 = decimal.Max(decimal.Zero, pool.TVL0.Sub(result.AmountOut))
		tvl1 = pool.TVL1.Add(retained)
		volume0 = pool.Volume0
		volume1 = pool.Volume1.Add(result.AmountConsumed)
	}
	return tvl0, tvl1, volume0, volume1
}
