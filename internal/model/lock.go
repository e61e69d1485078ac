package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceLock is the cross-account mutual-exclusion claim taken by any
// operation that mutates more than one account. The lock carries no timeout
// semantics; acquisition ordering and retry policy belong to the surrounding
// pipeline.
type BalanceLock struct {
	LockID         string
	ActionType     string
	ActionID       string
	Identifier     string
	AccountKeys    []string
	LockedBalances map[string]decimal.Decimal
	Status         LockStatus
	CreatedAt      time.Time
}

// NewBalanceLock takes an independent copy of the supplied account-key list;
// mutating the caller's slice afterwards does not affect the lock.
func NewBalanceLock(lockID, actionType, actionID, identifier string, accountKeys []string) *BalanceLock {
	keys := make([]string, len(accountKeys))
	copy(keys, accountKeys)
	return &BalanceLock{
		LockID:         lockID,
		ActionType:     actionType,
		ActionID:       actionID,
		Identifier:     identifier,
		AccountKeys:    keys,
		LockedBalances: make(map[string]decimal.Decimal),
		Status:         LockLocked,
		CreatedAt:      time.Now().UTC(),
	}
}

// AddLockedBalance records an amount claimed on an account. Empty keys and
// non-positive amounts are ignored.
func (l *BalanceLock) AddLockedBalance(accountKey string, amount decimal.Decimal) {
	if accountKey == "" || !amount.IsPositive() {
		return
	}
	if l.LockedBalances == nil {
		l.LockedBalances = make(map[string]decimal.Decimal)
	}
	l.LockedBalances[accountKey] = l.LockedBalances[accountKey].Add(amount)
}

// ContainsAccountKey reports whether the key is part of the lock's claimed
// account set, whether or not a balance has been recorded against it yet.
func (l *BalanceLock) ContainsAccountKey(accountKey string) bool {
	for _, key := range l.AccountKeys {
		if key == accountKey {
			return true
		}
	}
	return false
}

// LockedBalanceFor returns the amount claimed on an account, zero when none.
func (l *BalanceLock) LockedBalanceFor(accountKey string) decimal.Decimal {
	if amount, ok := l.LockedBalances[accountKey]; ok {
		return amount
	}
	return decimal.Zero
}

// Release transitions the lock to RELEASED when the guarded operation
// completes or aborts.
func (l *BalanceLock) Release() Transition {
	if l.Status != LockLocked {
		return TransitionNoOp
	}
	l.Status = LockReleased
	return TransitionApplied
}

// Validate returns every violated lock invariant.
func (l *BalanceLock) Validate() []string {
	var violations []string

	if l.LockID == "" {
		violations = append(violations, "lock id is required")
	}
	if len(l.AccountKeys) == 0 {
		violations = append(violations, "account key list is required and must not be empty")
	}
	if l.Identifier == "" {
		violations = append(violations, "identifier is required")
	}
	if !l.Status.Valid() {
		violations = append(violations, "status must be one of LOCKED, RELEASED")
	}

	return violations
}

// MessageView is the flat snapshot published downstream.
func (l *BalanceLock) MessageView() map[string]any {
	lockedBalances := make(map[string]string, len(l.LockedBalances))
	for key, amount := range l.LockedBalances {
		lockedBalances[key] = amount.String()
	}
	keys := make([]string, len(l.AccountKeys))
	copy(keys, l.AccountKeys)
	return map[string]any{
		"lockId":         l.LockID,
		"actionType":     l.ActionType,
		"actionId":       l.ActionID,
		"identifier":     l.Identifier,
		"accountKeys":    keys,
		"lockedBalances": lockedBalances,
		"status":         string(l.Status),
		"createdAt":      l.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
