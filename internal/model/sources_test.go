package model

import "github.com/shopspring/decimal"

// stubSources is a map-backed lookup collaborator for tests. Absent keys
// resolve to nil without error, matching the lookup contract.
type stubSources struct {
	pools    map[string]*AmmPool
	accounts map[string]*Account
	ticks    map[string]*Tick
	bitmaps  map[string]*TickBitmap
}

func newStubSources() *stubSources {
	return &stubSources{
		pools:    make(map[string]*AmmPool),
		accounts: make(map[string]*Account),
		ticks:    make(map[string]*Tick),
		bitmaps:  make(map[string]*TickBitmap),
	}
}

func (s *stubSources) AmmPool(pair string) (*AmmPool, error) {
	return s.pools[pair], nil
}

func (s *stubSources) Account(key string) (*Account, error) {
	return s.accounts[key], nil
}

func (s *stubSources) Tick(key string) (*Tick, error) {
	return s.ticks[key], nil
}

func (s *stubSources) TickBitmap(pair string) (*TickBitmap, error) {
	return s.bitmaps[pair], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	value := decimal.RequireFromString(s)
	return &value
}

func intPtr(i int) *int {
	return &i
}

func testLimits() Limits {
	return Limits{
		MinSlippage:          dec("0"),
		MaxSlippage:          dec("0.5"),
		MinPositionLiquidity: dec("1"),
	}
}
