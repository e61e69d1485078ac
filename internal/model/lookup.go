package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound marks a fail-fast lookup of a related entity whose existence
// should already have been confirmed.
var ErrNotFound = errors.New("not found")

// Lookup collaborators. Implementations return (nil, nil) for an absent key;
// errors are reserved for infrastructure failures. The aggregates decide per
// call site whether absence is a soft validation message or a hard fault.
type (
	AccountSource interface {
		Account(key string) (*Account, error)
	}

	PoolSource interface {
		AmmPool(pair string) (*AmmPool, error)
	}

	TickSource interface {
		Tick(key string) (*Tick, error)
	}

	TickBitmapSource interface {
		TickBitmap(pair string) (*TickBitmap, error)
	}
)

// TickKey builds the composite lookup key for a tick of a pool.
func TickKey(pair string, index int) string {
	return fmt.Sprintf("%s-%d", pair, index)
}

// CoinSet answers whether a token symbol is tradeable on this deployment.
// A nil set accepts everything.
type CoinSet map[string]struct{}

func NewCoinSet(symbols ...string) CoinSet {
	set := make(CoinSet, len(symbols))
	for _, symbol := range symbols {
		set[symbol] = struct{}{}
	}
	return set
}

func (c CoinSet) IsSupported(symbol string) bool {
	if c == nil {
		return true
	}
	_, ok := c[symbol]
	return ok
}

// Limits carries the configured validation bounds. It is supplied by the
// configuration collaborator, never parsed here.
type Limits struct {
	MinSlippage          decimal.Decimal
	MaxSlippage          decimal.Decimal
	MinPositionLiquidity decimal.Decimal
}
