// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/storage/models"
)

// Store is the in-memory PoolStore, used by tests and single-process
// deployments that do not need durability.
type Store struct {
	mu          sync.RWMutex
	pools       map[solana.PublicKey]*ledger.Pool
	byID        map[ledger.PoolID]solana.PublicKey
	settlements []*models.SettlementLog
}

// New creates an empty store.
func New() *Store {
	return &Store{
		pools: make(map[solana.PublicKey]*ledger.Pool),
		byID:  make(map[ledger.PoolID]solana.PublicKey),
	}
}

func (s *Store) CreatePool(ctx context.Context, pool *ledger.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.Address]; ok {
		return fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrPoolExists)
	}
	if _, ok := s.byID[pool.PoolID]; ok {
		return fmt.Errorf("pool id already registered: %w", ledger.ErrPoolExists)
	}
	s.pools[pool.Address] = pool.Clone()
	s.byID[pool.PoolID] = pool.Address
	return nil
}

func (s *Store) GetPool(ctx context.Context, address solana.PublicKey) (*ledger.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[address]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", address, ledger.ErrPoolNotFound)
	}
	return pool.Clone(), nil
}

func (s *Store) GetPoolByID(ctx context.Context, id ledger.PoolID) (*ledger.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	address, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("pool id not registered: %w", ledger.ErrPoolNotFound)
	}
	return s.pools[address].Clone(), nil
}

func (s *Store) SavePool(ctx context.Context, pool *ledger.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.Address]; !ok {
		return fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrPoolNotFound)
	}
	s.pools[pool.Address] = pool.Clone()
	return nil
}

func (s *Store) ListPools(ctx context.Context) ([]*ledger.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pools := make([]*ledger.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p.Clone())
	}
	return pools, nil
}

func (s *Store) SaveSettlement(ctx context.Context, rec *models.SettlementLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, rec)
	return nil
}

// Settlements returns the audit log accumulated so far.
func (s *Store) Settlements() []*models.SettlementLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SettlementLog, len(s.settlements))
	copy(out, s.settlements)
	return out
}
