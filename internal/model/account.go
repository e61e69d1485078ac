package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account is one coin leg of a user's ledger. Aggregates never synchronize
// internally; callers mutate an account only while holding a BalanceLock
// covering its key.
type Account struct {
	Key       string
	Owner     string
	Coin      string
	Available decimal.Decimal
	Locked    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAccount(key, owner, coin string) *Account {
	now := time.Now().UTC()
	return &Account{
		Key:       key,
		Owner:     owner,
		Coin:      coin,
		Available: decimal.Zero,
		Locked:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Credit adds a strictly positive amount to the available balance.
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	a.Available = a.Available.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Debit removes a strictly positive amount from the available balance.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	if a.Available.LessThan(amount) {
		return fmt.Errorf("insufficient balance on %s: have %s, need %s", a.Key, a.Available, amount)
	}
	a.Available = a.Available.Sub(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// LockAmount moves funds from available to locked.
func (a *Account) LockAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("lock amount must be positive, got %s", amount)
	}
	if a.Available.LessThan(amount) {
		return fmt.Errorf("insufficient balance on %s: have %s, need %s", a.Key, a.Available, amount)
	}
	a.Available = a.Available.Sub(amount)
	a.Locked = a.Locked.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// UnlockAmount moves funds back from locked to available.
func (a *Account) UnlockAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("unlock amount must be positive, got %s", amount)
	}
	if a.Locked.LessThan(amount) {
		return fmt.Errorf("insufficient locked balance on %s: have %s, need %s", a.Key, a.Locked, amount)
	}
	a.Locked = a.Locked.Sub(amount)
	a.Available = a.Available.Add(amount)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// MessageView is the flat snapshot published downstream.
func (a *Account) MessageView() map[string]any {
	return map[string]any{
		"key":       a.Key,
		"owner":     a.Owner,
		"coin":      a.Coin,
		"available": a.Available.String(),
		"locked":    a.Locked.String(),
		"createdAt": a.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
