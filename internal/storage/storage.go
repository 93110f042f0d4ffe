// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/storage/models"
)

// PoolStore is the durable home of pool records and the settlement audit
// log. Implementations must make SavePool atomic per record; the settlement
// processor serializes mutations per pool on top of that.
type PoolStore interface {
	CreatePool(ctx context.Context, pool *ledger.Pool) error
	GetPool(ctx context.Context, address solana.PublicKey) (*ledger.Pool, error)
	GetPoolByID(ctx context.Context, id ledger.PoolID) (*ledger.Pool, error)
	SavePool(ctx context.Context, pool *ledger.Pool) error
	ListPools(ctx context.Context) ([]*ledger.Pool, error)

	SaveSettlement(ctx context.Context, rec *models.SettlementLog) error
}
