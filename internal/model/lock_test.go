package model

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestLock() *BalanceLock {
	return NewBalanceLock("lock-1", "SWAP", "order-1", "order-1", []string{"acct-0", "acct-1"})
}

func TestLockIgnoresInvalidBalances(t *testing.T) {
	lock := newTestLock()

	lock.AddLockedBalance("", dec("10"))
	lock.AddLockedBalance("acct-0", decimal.Zero)
	lock.AddLockedBalance("acct-0", dec("-5"))

	if len(lock.LockedBalances) != 0 {
		t.Fatalf("invalid inputs must not record balances: %v", lock.LockedBalances)
	}

	lock.AddLockedBalance("acct-0", dec("10"))
	lock.AddLockedBalance("acct-0", dec("2.5"))
	if !lock.LockedBalanceFor("acct-0").Equal(dec("12.5")) {
		t.Fatalf("locked balance = %s, want 12.5", lock.LockedBalanceFor("acct-0"))
	}
	if !lock.LockedBalanceFor("missing").IsZero() {
		t.Fatalf("unknown account should default to zero")
	}
}

func TestLockContainsAccountKeyTracksClaimedSet(t *testing.T) {
	lock := newTestLock()

	// Membership follows the claimed key set, not the recorded balances.
	if !lock.ContainsAccountKey("acct-0") || !lock.ContainsAccountKey("acct-1") {
		t.Fatalf("claimed accounts must be reported as contained")
	}
	if lock.ContainsAccountKey("acct-2") {
		t.Fatalf("unclaimed account reported as contained")
	}

	lock.AddLockedBalance("acct-0", dec("10"))
	if !lock.ContainsAccountKey("acct-1") {
		t.Fatalf("claimed account without a balance must still be contained")
	}
}

func TestLockCopiesAccountKeys(t *testing.T) {
	keys := []string{"acct-0", "acct-1"}
	lock := NewBalanceLock("lock-1", "SWAP", "order-1", "order-1", keys)

	keys[0] = "mutated"
	if lock.AccountKeys[0] != "acct-0" {
		t.Fatalf("lock aliased the caller's key list")
	}
}

func TestLockRelease(t *testing.T) {
	lock := newTestLock()
	if !lock.Release().Applied() {
		t.Fatalf("release from LOCKED should apply")
	}
	if lock.Status != LockReleased {
		t.Fatalf("status = %s, want RELEASED", lock.Status)
	}
	if lock.Release().Applied() {
		t.Fatalf("second release should be a no-op")
	}
}

func TestLockValidate(t *testing.T) {
	lock := newTestLock()
	if violations := lock.Validate(); len(violations) != 0 {
		t.Fatalf("valid lock reported violations: %v", violations)
	}

	bad := NewBalanceLock("", "SWAP", "order-1", "", nil)
	bad.Status = LockStatus("BROKEN")
	violations := bad.Validate()
	joined := strings.Join(violations, "; ")
	for _, fragment := range []string{"lock id", "account key list", "identifier", "status"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("violations missing %q: %v", fragment, violations)
		}
	}
}
