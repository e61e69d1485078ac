package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestOrder() *AmmOrder {
	return NewAmmOrder("order-1", "BTC-USDT", "acct-0", "acct-1", true, dec("100"), dec("0.01"))
}

func TestOrderTransitions(t *testing.T) {
	order := newTestOrder()

	fees := map[string]decimal.Decimal{"lp": dec("0.27"), "protocol": dec("0.03")}
	if !order.UpdateAfterExecution(dec("100"), dec("98.5"), 30, 25, fees).Applied() {
		t.Fatalf("updateAfterExecution from PROCESSING should apply")
	}
	if order.TickBefore != 30 || order.TickAfter != 25 {
		t.Fatalf("ticks not recorded: %d -> %d", order.TickBefore, order.TickAfter)
	}

	// The fee mapping is copied, not aliased.
	fees["lp"] = dec("999")
	if !order.Fees["lp"].Equal(dec("0.27")) {
		t.Fatalf("fee mapping aliased caller memory")
	}

	if !order.MarkSuccess().Applied() {
		t.Fatalf("markSuccess from PROCESSING should apply")
	}
	if order.CompletedAt.IsZero() {
		t.Fatalf("markSuccess should stamp completedAt")
	}
	if order.MarkSuccess().Applied() || order.MarkError("late").Applied() {
		t.Fatalf("terminal order must reject further transitions")
	}
	if order.UpdateAfterExecution(dec("1"), dec("1"), 0, 0, nil).Applied() {
		t.Fatalf("updateAfterExecution after terminal state should be a no-op")
	}
}

func TestOrderMarkError(t *testing.T) {
	order := newTestOrder()
	if !order.MarkError("insufficient liquidity").Applied() {
		t.Fatalf("markError from PROCESSING should apply")
	}
	if order.Status != OrderError || order.ErrorMessage != "insufficient liquidity" {
		t.Fatalf("error state not recorded")
	}
	if order.CompletedAt.IsZero() {
		t.Fatalf("markError should stamp completedAt")
	}
}

func TestOrderValidateRequiredFields(t *testing.T) {
	order := newTestOrder()
	if violations := order.ValidateRequiredFields(testLimits()); len(violations) != 0 {
		t.Fatalf("valid order reported violations: %v", violations)
	}

	bad := NewAmmOrder("", "", "acct-0", "acct-1", false, dec("0"), dec("9"))
	violations := bad.ValidateRequiredFields(testLimits())
	joined := strings.Join(violations, "; ")
	for _, fragment := range []string{"identifier", "pool pair", "amount specified", "slippage"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("violations missing %q: %v", fragment, violations)
		}
	}
}

func TestOrderValidateResourcesExistIndependent(t *testing.T) {
	src := newStubSources()
	order := newTestOrder()

	violations := order.ValidateResourcesExist(src, src)
	if len(violations) != 3 {
		t.Fatalf("expected pool + two account violations, got %v", violations)
	}

	src.pools["BTC-USDT"] = NewAmmPool("BTC-USDT", "BTC", "USDT", 60, dec("0.003"), dec("0.1"))
	src.accounts["acct-0"] = NewAccount("acct-0", "user", "BTC")

	violations = order.ValidateResourcesExist(src, src)
	if len(violations) != 1 || !strings.Contains(violations[0], "acct-1") {
		t.Fatalf("expected only the acct-1 violation, got %v", violations)
	}
}

func TestOrderAccountAccessorsFailFast(t *testing.T) {
	src := newStubSources()
	order := newTestOrder()

	if _, err := order.Account0(src); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing account0 should fail fast, got %v", err)
	}

	src.accounts["acct-0"] = NewAccount("acct-0", "user", "BTC")
	account, err := order.Account0(src)
	if err != nil || account.Key != "acct-0" {
		t.Fatalf("account0 lookup: %v", err)
	}

	if _, err := order.Account1(src); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing account1 should fail fast, got %v", err)
	}
}
