package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AmmOrder is a single swap request against a pool. Lifecycle:
// PROCESSING -> SUCCESS | ERROR, both terminal.
type AmmOrder struct {
	ID          string
	Pair        string
	Account0Key string
	Account1Key string

	ZeroForOne         bool
	AmountSpecified    decimal.Decimal
	EstimatedAmountOut decimal.Decimal
	AmountConsumed     decimal.Decimal
	AmountReceived     decimal.Decimal

	TickBefore int
	TickAfter  int
	Fees       map[string]decimal.Decimal
	Slippage   decimal.Decimal

	Status       OrderStatus
	ErrorMessage string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

func NewAmmOrder(id, pair, account0Key, account1Key string, zeroForOne bool, amountSpecified, slippage decimal.Decimal) *AmmOrder {
	now := time.Now().UTC()
	return &AmmOrder{
		ID:                 id,
		Pair:               pair,
		Account0Key:        account0Key,
		Account1Key:        account1Key,
		ZeroForOne:         zeroForOne,
		AmountSpecified:    amountSpecified,
		EstimatedAmountOut: decimal.Zero,
		AmountConsumed:     decimal.Zero,
		AmountReceived:     decimal.Zero,
		Fees:               make(map[string]decimal.Decimal),
		Slippage:           slippage,
		Status:             OrderProcessing,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// UpdateAfterExecution writes the execution outcome atomically. Only valid
// while PROCESSING. The fee mapping is copied, not aliased.
func (o *AmmOrder) UpdateAfterExecution(amountActual, amountReceived decimal.Decimal, beforeTick, afterTick int, fees map[string]decimal.Decimal) Transition {
	if o.Status != OrderProcessing {
		return TransitionNoOp
	}
	o.AmountConsumed = amountActual
	o.AmountReceived = amountReceived
	o.TickBefore = beforeTick
	o.TickAfter = afterTick
	o.Fees = make(map[string]decimal.Decimal, len(fees))
	for component, amount := range fees {
		o.Fees[component] = amount
	}
	o.UpdatedAt = time.Now().UTC()
	return TransitionApplied
}

// MarkSuccess terminates the order successfully; only valid from PROCESSING.
func (o *AmmOrder) MarkSuccess() Transition {
	if o.Status != OrderProcessing {
		return TransitionNoOp
	}
	now := time.Now().UTC()
	o.Status = OrderSuccess
	o.CompletedAt = now
	o.UpdatedAt = now
	return TransitionApplied
}

// MarkError terminates the order with an error message; only valid from
// PROCESSING.
func (o *AmmOrder) MarkError(message string) Transition {
	if o.Status != OrderProcessing {
		return TransitionNoOp
	}
	now := time.Now().UTC()
	o.Status = OrderError
	o.ErrorMessage = message
	o.CompletedAt = now
	o.UpdatedAt = now
	return TransitionApplied
}

// ValidateRequiredFields returns every violated order invariant.
func (o *AmmOrder) ValidateRequiredFields(limits Limits) []string {
	var violations []string

	if o.ID == "" {
		violations = append(violations, "identifier is required")
	}
	if o.Pair == "" {
		violations = append(violations, "pool pair is required")
	}
	if !o.AmountSpecified.IsPositive() {
		violations = append(violations, "amount specified must be positive")
	}
	if o.Slippage.LessThan(limits.MinSlippage) || o.Slippage.GreaterThan(limits.MaxSlippage) {
		violations = append(violations, fmt.Sprintf("slippage %s is outside [%s, %s]", o.Slippage, limits.MinSlippage, limits.MaxSlippage))
	}

	return violations
}

// ValidateResourcesExist checks pool and both owner accounts, reporting each
// missing resource independently.
func (o *AmmOrder) ValidateResourcesExist(pools PoolSource, accounts AccountSource) []string {
	var violations []string

	pool, err := pools.AmmPool(o.Pair)
	switch {
	case err != nil || pool == nil:
		violations = append(violations, fmt.Sprintf("amm pool %s does not exist", o.Pair))
	case !pool.IsActive:
		violations = append(violations, fmt.Sprintf("amm pool %s is not active", o.Pair))
	}

	if account, err := accounts.Account(o.Account0Key); err != nil || account == nil {
		violations = append(violations, fmt.Sprintf("account %s does not exist", o.Account0Key))
	}
	if account, err := accounts.Account(o.Account1Key); err != nil || account == nil {
		violations = append(violations, fmt.Sprintf("account %s does not exist", o.Account1Key))
	}

	return violations
}

// Account0 is the fail-fast accessor for the token0-leg account. By the time
// it is called, existence should already have been confirmed through
// ValidateResourcesExist.
func (o *AmmOrder) Account0(src AccountSource) (*Account, error) {
	return o.account(src, o.Account0Key)
}

// Account1 is the fail-fast accessor for the token1-leg account.
func (o *AmmOrder) Account1(src AccountSource) (*Account, error) {
	return o.account(src, o.Account1Key)
}

func (o *AmmOrder) account(src AccountSource, key string) (*Account, error) {
	account, err := src.Account(key)
	if err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", key, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", key, ErrNotFound)
	}
	return account, nil
}

// MessageView is the flat snapshot published downstream.
func (o *AmmOrder) MessageView() map[string]any {
	fees := make(map[string]string, len(o.Fees))
	for component, amount := range o.Fees {
		fees[component] = amount.String()
	}
	view := map[string]any{
		"identifier":         o.ID,
		"pair":               o.Pair,
		"account0Key":        o.Account0Key,
		"account1Key":        o.Account1Key,
		"zeroForOne":         o.ZeroForOne,
		"amountSpecified":    o.AmountSpecified.String(),
		"estimatedAmountOut": o.EstimatedAmountOut.String(),
		"amountConsumed":     o.AmountConsumed.String(),
		"amountReceived":     o.AmountReceived.String(),
		"tickBefore":         o.TickBefore,
		"tickAfter":          o.TickAfter,
		"fees":               fees,
		"slippage":           o.Slippage.String(),
		"status":             string(o.Status),
		"createdAt":          o.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":          o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.ErrorMessage != "" {
		view["errorMessage"] = o.ErrorMessage
	}
	if !o.CompletedAt.IsZero() {
		view["completedAt"] = o.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return view
}
