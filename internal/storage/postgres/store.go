// Package postgres persists AMM aggregates to Postgres. Decimals travel as
// text both ways so no precision is lost in numeric conversion.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ammEngine/internal/model"
)

// Store provides Postgres persistence for every aggregate kind. Lookup
// methods satisfy the model lookup interfaces: an absent row is (nil, nil).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Account(key string) (*model.Account, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT key, owner, coin, available::text, locked::text, created_at, updated_at
		FROM accounts WHERE key = $1
	`, key)

	var account model.Account
	var available, locked string
	err := row.Scan(&account.Key, &account.Owner, &account.Coin, &available, &locked, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	if account.Available, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("parse available: %w", err)
	}
	if account.Locked, err = decimal.NewFromString(locked); err != nil {
		return nil, fmt.Errorf("parse locked: %w", err)
	}
	return &account, nil
}

func (s *Store) PutAccount(ctx context.Context, account *model.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (key, owner, coin, available, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			available = EXCLUDED.available,
			locked = EXCLUDED.locked,
			updated_at = EXCLUDED.updated_at
	`, account.Key, account.Owner, account.Coin,
		account.Available.String(), account.Locked.String(),
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

func (s *Store) AmmPool(pair string) (*model.AmmPool, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT pair, token0, token1, tick_spacing, current_tick,
			sqrt_price::text, price::text, liquidity::text,
			fee_growth_global0::text, fee_growth_global1::text,
			protocol_fees0::text, protocol_fees1::text,
			tvl0::text, tvl1::text, volume0::text, volume1::text,
			tx_count, fee_pct::text, protocol_fee_pct::text,
			init_price::text, is_active, created_at, updated_at
		FROM amm_pools WHERE pair = $1
	`, pair)

	var pool model.AmmPool
	var initPrice *string
	raws := make([]string, 13)

	err := row.Scan(&pool.Pair, &pool.Token0, &pool.Token1, &pool.TickSpacing, &pool.CurrentTick,
		&raws[0], &raws[1], &raws[2], &raws[3], &raws[4],
		&raws[5], &raws[6], &raws[7], &raws[8], &raws[9], &raws[10],
		&pool.TxCount, &raws[11], &raws[12],
		&initPrice, &pool.IsActive, &pool.CreatedAt, &pool.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select amm pool: %w", err)
	}

	targets := []*decimal.Decimal{
		&pool.SqrtPrice, &pool.Price, &pool.Liquidity,
		&pool.FeeGrowthGlobal0, &pool.FeeGrowthGlobal1,
		&pool.ProtocolFees0, &pool.ProtocolFees1,
		&pool.TVL0, &pool.TVL1, &pool.Volume0, &pool.Volume1,
		&pool.FeePct, &pool.ProtocolFeePct,
	}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(raws[i]); err != nil {
			return nil, fmt.Errorf("parse amm pool decimal %q: %w", raws[i], err)
		}
	}
	if initPrice != nil {
		value, err := decimal.NewFromString(*initPrice)
		if err != nil {
			return nil, fmt.Errorf("parse init price: %w", err)
		}
		pool.InitPrice = &value
	}
	return &pool, nil
}

func (s *Store) PutAmmPool(ctx context.Context, pool *model.AmmPool) error {
	var initPrice *string
	if pool.InitPrice != nil {
		raw := pool.InitPrice.String()
		initPrice = &raw
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO amm_pools (
			pair, token0, token1, tick_spacing, current_tick,
			sqrt_price, price, liquidity,
			fee_growth_global0, fee_growth_global1,
			protocol_fees0, protocol_fees1,
			tvl0, tvl1, volume0, volume1,
			tx_count, fee_pct, protocol_fee_pct,
			init_price, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::numeric,
			$11::numeric,$12::numeric,$13::numeric,$14::numeric,$15::numeric,$16::numeric,
			$17,$18::numeric,$19::numeric,$20::numeric,$21,$22,$23)
		ON CONFLICT (pair) DO UPDATE SET
			current_tick = EXCLUDED.current_tick,
			sqrt_price = EXCLUDED.sqrt_price,
			price = EXCLUDED.price,
			liquidity = EXCLUDED.liquidity,
			fee_growth_global0 = EXCLUDED.fee_growth_global0,
			fee_growth_global1 = EXCLUDED.fee_growth_global1,
			protocol_fees0 = EXCLUDED.protocol_fees0,
			protocol_fees1 = EXCLUDED.protocol_fees1,
			tvl0 = EXCLUDED.tvl0,
			tvl1 = EXCLUDED.tvl1,
			volume0 = EXCLUDED.volume0,
			volume1 = EXCLUDED.volume1,
			tx_count = EXCLUDED.tx_count,
			fee_pct = EXCLUDED.fee_pct,
			protocol_fee_pct = EXCLUDED.protocol_fee_pct,
			init_price = EXCLUDED.init_price,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`, pool.Pair, pool.Token0, pool.Token1, pool.TickSpacing, pool.CurrentTick,
		pool.SqrtPrice.String(), pool.Price.String(), pool.Liquidity.String(),
		pool.FeeGrowthGlobal0.String(), pool.FeeGrowthGlobal1.String(),
		pool.ProtocolFees0.String(), pool.ProtocolFees1.String(),
		pool.TVL0.String(), pool.TVL1.String(), pool.Volume0.String(), pool.Volume1.String(),
		pool.TxCount, pool.FeePct.String(), pool.ProtocolFeePct.String(),
		initPrice, pool.IsActive, pool.CreatedAt, pool.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert amm pool: %w", err)
	}
	return nil
}

func (s *Store) Tick(key string) (*model.Tick, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT pair, tick_index, liquidity_gross::text, liquidity_net::text,
			fee_growth_outside0::text, fee_growth_outside1::text,
			initialized, tick_initialized_at, created_at, updated_at
		FROM ticks WHERE key = $1
	`, key)

	var tick model.Tick
	var gross, net, outside0, outside1 string
	var initializedAt *time.Time
	err := row.Scan(&tick.Pair, &tick.Index, &gross, &net, &outside0, &outside1,
		&tick.Initialized, &initializedAt, &tick.CreatedAt, &tick.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select tick: %w", err)
	}
	if tick.LiquidityGross, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("parse liquidity gross: %w", err)
	}
	if tick.LiquidityNet, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("parse liquidity net: %w", err)
	}
	if tick.FeeGrowthOutside0, err = decimal.NewFromString(outside0); err != nil {
		return nil, fmt.Errorf("parse fee growth outside0: %w", err)
	}
	if tick.FeeGrowthOutside1, err = decimal.NewFromString(outside1); err != nil {
		return nil, fmt.Errorf("parse fee growth outside1: %w", err)
	}
	if initializedAt != nil {
		tick.TickInitializedAt = *initializedAt
	}
	return &tick, nil
}

func (s *Store) PutTick(ctx context.Context, tick *model.Tick) error {
	var initializedAt *time.Time
	if !tick.TickInitializedAt.IsZero() {
		initializedAt = &tick.TickInitializedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticks (
			key, pair, tick_index, liquidity_gross, liquidity_net,
			fee_growth_outside0, fee_growth_outside1,
			initialized, tick_initialized_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7::numeric,$8,$9,$10,$11)
		ON CONFLICT (key) DO UPDATE SET
			liquidity_gross = EXCLUDED.liquidity_gross,
			liquidity_net = EXCLUDED.liquidity_net,
			fee_growth_outside0 = EXCLUDED.fee_growth_outside0,
			fee_growth_outside1 = EXCLUDED.fee_growth_outside1,
			initialized = EXCLUDED.initialized,
			tick_initialized_at = EXCLUDED.tick_initialized_at,
			updated_at = EXCLUDED.updated_at
	`, tick.Key(), tick.Pair, tick.Index,
		tick.LiquidityGross.String(), tick.LiquidityNet.String(),
		tick.FeeGrowthOutside0.String(), tick.FeeGrowthOutside1.String(),
		tick.Initialized, initializedAt, tick.CreatedAt, tick.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tick: %w", err)
	}
	return nil
}

func (s *Store) DeleteTick(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ticks WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete tick: %w", err)
	}
	return nil
}

func (s *Store) TickBitmap(pair string) (*model.TickBitmap, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT pair, words, created_at, updated_at FROM tick_bitmaps WHERE pair = $1
	`, pair)

	var bitmap model.TickBitmap
	var encoded []byte
	err := row.Scan(&bitmap.Pair, &encoded, &bitmap.CreatedAt, &bitmap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select tick bitmap: %w", err)
	}
	if err := bitmap.FromByteArray(encoded); err != nil {
		return nil, fmt.Errorf("decode tick bitmap: %w", err)
	}
	return &bitmap, nil
}

func (s *Store) PutTickBitmap(ctx context.Context, bitmap *model.TickBitmap) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tick_bitmaps (pair, words, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair) DO UPDATE SET
			words = EXCLUDED.words,
			updated_at = EXCLUDED.updated_at
	`, bitmap.Pair, bitmap.ToByteArray(), bitmap.CreatedAt, bitmap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tick bitmap: %w", err)
	}
	return nil
}

func (s *Store) Position(id string) (*model.AmmPosition, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT id, pair, account0_key, account1_key, tick_lower, tick_upper,
			liquidity::text, amount0::text, amount1::text,
			initial_amount0::text, initial_amount1::text, slippage::text,
			fee_growth_inside0_last::text, fee_growth_inside1_last::text,
			tokens_owed0::text, tokens_owed1::text,
			fee_collected0::text, fee_collected1::text,
			withdrawn0::text, withdrawn1::text,
			status, error_message, created_at, updated_at, stopped_at
		FROM amm_positions WHERE id = $1
	`, id)

	var position model.AmmPosition
	raws := make([]string, 14)
	var status string
	var stoppedAt *time.Time
	err := row.Scan(&position.ID, &position.Pair, &position.Account0Key, &position.Account1Key,
		&position.TickLower, &position.TickUpper,
		&raws[0], &raws[1], &raws[2], &raws[3], &raws[4], &raws[5],
		&raws[6], &raws[7], &raws[8], &raws[9], &raws[10], &raws[11], &raws[12], &raws[13],
		&status, &position.ErrorMessage, &position.CreatedAt, &position.UpdatedAt, &stoppedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select position: %w", err)
	}

	targets := []*decimal.Decimal{
		&position.Liquidity, &position.Amount0, &position.Amount1,
		&position.InitialAmount0, &position.InitialAmount1, &position.Slippage,
		&position.FeeGrowthInside0Last, &position.FeeGrowthInside1Last,
		&position.TokensOwed0, &position.TokensOwed1,
		&position.FeeCollected0, &position.FeeCollected1,
		&position.Withdrawn0, &position.Withdrawn1,
	}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(raws[i]); err != nil {
			return nil, fmt.Errorf("parse position decimal %q: %w", raws[i], err)
		}
	}
	position.Status = model.PositionStatus(status)
	if stoppedAt != nil {
		position.StoppedAt = *stoppedAt
	}
	return &position, nil
}

func (s *Store) PutPosition(ctx context.Context, position *model.AmmPosition) error {
	var stoppedAt *time.Time
	if !position.StoppedAt.IsZero() {
		stoppedAt = &position.StoppedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO amm_positions (
			id, pair, account0_key, account1_key, tick_lower, tick_upper,
			liquidity, amount0, amount1, initial_amount0, initial_amount1, slippage,
			fee_growth_inside0_last, fee_growth_inside1_last,
			tokens_owed0, tokens_owed1, fee_collected0, fee_collected1,
			withdrawn0, withdrawn1, status, error_message, created_at, updated_at, stopped_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,
			$12::numeric,$13::numeric,$14::numeric,$15::numeric,$16::numeric,$17::numeric,
			$18::numeric,$19::numeric,$20::numeric,$21,$22,$23,$24,$25)
		ON CONFLICT (id) DO UPDATE SET
			tick_lower = EXCLUDED.tick_lower,
			tick_upper = EXCLUDED.tick_upper,
			liquidity = EXCLUDED.liquidity,
			amount0 = EXCLUDED.amount0,
			amount1 = EXCLUDED.amount1,
			fee_growth_inside0_last = EXCLUDED.fee_growth_inside0_last,
			fee_growth_inside1_last = EXCLUDED.fee_growth_inside1_last,
			tokens_owed0 = EXCLUDED.tokens_owed0,
			tokens_owed1 = EXCLUDED.tokens_owed1,
			fee_collected0 = EXCLUDED.fee_collected0,
			fee_collected1 = EXCLUDED.fee_collected1,
			withdrawn0 = EXCLUDED.withdrawn0,
			withdrawn1 = EXCLUDED.withdrawn1,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			stopped_at = EXCLUDED.stopped_at
	`, position.ID, position.Pair, position.Account0Key, position.Account1Key,
		position.TickLower, position.TickUpper,
		position.Liquidity.String(), position.Amount0.String(), position.Amount1.String(),
		position.InitialAmount0.String(), position.InitialAmount1.String(), position.Slippage.String(),
		position.FeeGrowthInside0Last.String(), position.FeeGrowthInside1Last.String(),
		position.TokensOwed0.String(), position.TokensOwed1.String(),
		position.FeeCollected0.String(), position.FeeCollected1.String(),
		position.Withdrawn0.String(), position.Withdrawn1.String(),
		string(position.Status), position.ErrorMessage,
		position.CreatedAt, position.UpdatedAt, stoppedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (s *Store) Order(id string) (*model.AmmOrder, error) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT id, pair, account0_key, account1_key, zero_for_one,
			amount_specified::text, estimated_amount_out::text,
			amount_consumed::text, amount_received::text,
			tick_before, tick_after, fees, slippage::text,
			status, error_message, created_at, updated_at, completed_at
		FROM amm_orders WHERE id = $1
	`, id)

	var order model.AmmOrder
	var amountSpecified, estimatedOut, consumed, received, slippage string
	var feesJSON []byte
	var status string
	var completedAt *time.Time
	err := row.Scan(&order.ID, &order.Pair, &order.Account0Key, &order.Account1Key, &order.ZeroForOne,
		&amountSpecified, &estimatedOut, &consumed, &received,
		&order.TickBefore, &order.TickAfter, &feesJSON, &slippage,
		&status, &order.ErrorMessage, &order.CreatedAt, &order.UpdatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	raws := []struct {
		target *decimal.Decimal
		raw    string
	}{
		{&order.AmountSpecified, amountSpecified},
		{&order.EstimatedAmountOut, estimatedOut},
		{&order.AmountConsumed, consumed},
		{&order.AmountReceived, received},
		{&order.Slippage, slippage},
	}
	for _, field := range raws {
		if *field.target, err = decimal.NewFromString(field.raw); err != nil {
			return nil, fmt.Errorf("parse order decimal %q: %w", field.raw, err)
		}
	}

	feeStrings := make(map[string]string)
	if len(feesJSON) > 0 {
		if err := json.Unmarshal(feesJSON, &feeStrings); err != nil {
			return nil, fmt.Errorf("decode order fees: %w", err)
		}
	}
	order.Fees = make(map[string]decimal.Decimal, len(feeStrings))
	for component, raw := range feeStrings {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse fee %s: %w", component, err)
		}
		order.Fees[component] = amount
	}

	order.Status = model.OrderStatus(status)
	if completedAt != nil {
		order.CompletedAt = *completedAt
	}
	return &order, nil
}

func (s *Store) PutOrder(ctx context.Context, order *model.AmmOrder) error {
	feeStrings := make(map[string]string, len(order.Fees))
	for component, amount := range order.Fees {
		feeStrings[component] = amount.String()
	}
	feesJSON, err := json.Marshal(feeStrings)
	if err != nil {
		return fmt.Errorf("encode order fees: %w", err)
	}

	var completedAt *time.Time
	if !order.CompletedAt.IsZero() {
		completedAt = &order.CompletedAt
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO amm_orders (
			id, pair, account0_key, account1_key, zero_for_one,
			amount_specified, estimated_amount_out, amount_consumed, amount_received,
			tick_before, tick_after, fees, slippage,
			status, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,
			$10,$11,$12,$13::numeric,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			amount_consumed = EXCLUDED.amount_consumed,
			amount_received = EXCLUDED.amount_received,
			tick_before = EXCLUDED.tick_before,
			tick_after = EXCLUDED.tick_after,
			fees = EXCLUDED.fees,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`, order.ID, order.Pair, order.Account0Key, order.Account1Key, order.ZeroForOne,
		order.AmountSpecified.String(), order.EstimatedAmountOut.String(),
		order.AmountConsumed.String(), order.AmountReceived.String(),
		order.TickBefore, order.TickAfter, feesJSON, order.Slippage.String(),
		string(order.Status), order.ErrorMessage,
		order.CreatedAt, order.UpdatedAt, completedAt)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}
