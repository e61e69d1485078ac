package storage

import (
	"context"
	"sync"

	"ammEngine/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store, used by tests and as the
// default backend when no Postgres DSN is configured. Aggregates are held by
// reference; the per-pool single-writer discipline of the caller keeps that
// safe.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	pools     map[string]*model.AmmPool
	ticks     map[string]*model.Tick
	bitmaps   map[string]*model.TickBitmap
	positions map[string]*model.AmmPosition
	orders    map[string]*model.AmmOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		pools:     make(map[string]*model.AmmPool),
		ticks:     make(map[string]*model.Tick),
		bitmaps:   make(map[string]*model.TickBitmap),
		positions: make(map[string]*model.AmmPosition),
		orders:    make(map[string]*model.AmmOrder),
	}
}

func (s *MemoryStore) Account(key string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[key], nil
}

func (s *MemoryStore) PutAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Key] = account
	return nil
}

func (s *MemoryStore) AmmPool(pair string) (*model.AmmPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pools[pair], nil
}

func (s *MemoryStore) PutAmmPool(_ context.Context, pool *model.AmmPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool.Pair] = pool
	return nil
}

func (s *MemoryStore) Tick(key string) (*model.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks[key], nil
}

func (s *MemoryStore) PutTick(_ context.Context, tick *model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[tick.Key()] = tick
	return nil
}

func (s *MemoryStore) DeleteTick(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ticks, key)
	return nil
}

func (s *MemoryStore) TickBitmap(pair string) (*model.TickBitmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bitmaps[pair], nil
}

func (s *MemoryStore) PutTickBitmap(_ context.Context, bitmap *model.TickBitmap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bitmaps[bitmap.Pair] = bitmap
	return nil
}

func (s *MemoryStore) Position(id string) (*model.AmmPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[id], nil
}

func (s *MemoryStore) PutPosition(_ context.Context, position *model.AmmPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.ID] = position
	return nil
}

func (s *MemoryStore) Order(id string) (*model.AmmOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders[id], nil
}

func (s *MemoryStore) PutOrder(_ context.Context, order *model.AmmOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}
