// internal/storage/unitofwork.go
package storage

import (
	"context"
	"fmt"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/storage/models"
)

// UnitOfWork stages the storage writes of one settlement so that nothing
// reaches the store before the caller's point of no return. Staged writes are
// invisible until Commit; Discard drops them without side effects.
type UnitOfWork struct {
	store PoolStore
	pool  *ledger.Pool
	recs  []*models.SettlementLog
}

// NewUnitOfWork opens an empty unit of work against a store.
func NewUnitOfWork(store PoolStore) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// StagePool records the pool snapshot to persist on Commit. Staging a second
// snapshot replaces the first; a settlement touches exactly one pool.
func (u *UnitOfWork) StagePool(pool *ledger.Pool) {
	u.pool = pool
}

// StageSettlement queues an audit row to persist on Commit.
func (u *UnitOfWork) StageSettlement(rec *models.SettlementLog) {
	u.recs = append(u.recs, rec)
}

// Commit writes every staged change. The pool snapshot lands first; audit
// rows are best-effort after it.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.pool != nil {
		if err := u.store.SavePool(ctx, u.pool); err != nil {
			return fmt.Errorf("persist pool %s: %w", u.pool.Address, err)
		}
	}
	for _, rec := range u.recs {
		if err := u.store.SaveSettlement(ctx, rec); err != nil {
			return fmt.Errorf("persist settlement audit row: %w", err)
		}
	}
	u.Discard()
	return nil
}

// Discard drops all staged writes.
func (u *UnitOfWork) Discard() {
	u.pool = nil
	u.recs = nil
}
