// Package storage provides the lookup and persistence collaborators consumed
// by the engine. The core aggregates never persist themselves; the store is
// responsible for writing back mutated aggregates.
package storage

import (
	"context"

	"ammEngine/internal/model"
)

// Store is the read/write collaborator for every aggregate kind. Get methods
// return (nil, nil) for an absent key; errors are reserved for infrastructure
// failures.
type Store interface {
	Account(key string) (*model.Account, error)
	PutAccount(ctx context.Context, account *model.Account) error

	AmmPool(pair string) (*model.AmmPool, error)
	PutAmmPool(ctx context.Context, pool *model.AmmPool) error

	Tick(key string) (*model.Tick, error)
	PutTick(ctx context.Context, tick *model.Tick) error
	DeleteTick(ctx context.Context, key string) error

	TickBitmap(pair string) (*model.TickBitmap, error)
	PutTickBitmap(ctx context.Context, bitmap *model.TickBitmap) error

	Position(id string) (*model.AmmPosition, error)
	PutPosition(ctx context.Context, position *model.AmmPosition) error

	Order(id string) (*model.AmmOrder, error)
	PutOrder(ctx context.Context, order *model.AmmOrder) error
}
