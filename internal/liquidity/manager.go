// internal/liquidity/manager.go
package liquidity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/authority"
	"github.com/tarlanisaev/poolbridge/internal/events"
	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/storage"
	"github.com/tarlanisaev/poolbridge/internal/token"
)

// Manager owns the local-chain pool operations: creation and the direct
// add/remove-liquidity paths. It shares the token-movement primitives and
// the ledger mutations with the settlement processor but none of its
// message-handling logic.
type Manager struct {
	programID solana.PublicKey
	store     storage.PoolStore
	bank      token.AccountManager
	mover     *token.Mover
	bus       *events.Bus
	logger    *zap.Logger

	lanesMu sync.Mutex
	lanes   map[solana.PublicKey]*sync.Mutex
}

// NewManager wires the local liquidity operations.
func NewManager(
	programID solana.PublicKey,
	store storage.PoolStore,
	bank token.AccountManager,
	mover *token.Mover,
	bus *events.Bus,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		programID: programID,
		store:     store,
		bank:      bank,
		mover:     mover,
		bus:       bus,
		logger:    logger.Named("liquidity"),
		lanes:     make(map[solana.PublicKey]*sync.Mutex),
	}
}

func (m *Manager) lane(pool solana.PublicKey) *sync.Mutex {
	m.lanesMu.Lock()
	defer m.lanesMu.Unlock()
	mu, ok := m.lanes[pool]
	if !ok {
		mu = &sync.Mutex{}
		m.lanes[pool] = mu
	}
	return mu
}

// CreatePool initializes the empty record and custody accounts for an asset
// pair. Every address is derived from the pair, so creating the same pair
// twice collides on the pool address and fails with ErrPoolExists.
func (m *Manager) CreatePool(ctx context.Context, tokenAMint, tokenBMint solana.PublicKey, feeBasisPoints uint64, poolID ledger.PoolID) (*ledger.Pool, error) {
	if feeBasisPoints > ledger.MaxFeeBasisPoints {
		return nil, fmt.Errorf("fee rate %d bps: %w", feeBasisPoints, ledger.ErrInvalidFeeRate)
	}

	derived, err := authority.Derive(m.programID, tokenAMint, tokenBMint)
	if err != nil {
		return nil, fmt.Errorf("derive pool accounts: %w", err)
	}

	pool := &ledger.Pool{
		Address:        derived.Pool,
		Authority:      derived.Authority,
		TokenAMint:     tokenAMint,
		TokenBMint:     tokenBMint,
		TokenAAccount:  derived.TokenAAccount,
		TokenBAccount:  derived.TokenBAccount,
		LPMint:         derived.LPMint,
		FeeBasisPoints: feeBasisPoints,
		PoolID:         poolID,
		Status:         ledger.StatusActive,
		LastUpdatedAt:  time.Now().UTC().Unix(),
		Bump:           derived.PoolBump,
		AuthorityBump:  derived.AuthorityBump,
		LPMintBump:     derived.LPMintBump,
		TokenABump:     derived.TokenABump,
		TokenBBump:     derived.TokenBBump,
	}

	if err := m.store.CreatePool(ctx, pool); err != nil {
		return nil, err
	}

	m.bank.RegisterMint(pool.LPMint, pool.Authority)
	if err := m.bank.CreateAccount(pool.TokenAAccount, tokenAMint, pool.Authority); err != nil {
		return nil, fmt.Errorf("create reserve A account: %w", err)
	}
	if err := m.bank.CreateAccount(pool.TokenBAccount, tokenBMint, pool.Authority); err != nil {
		return nil, fmt.Errorf("create reserve B account: %w", err)
	}

	m.logger.Info("Pool created",
		zap.String("pool", pool.Address.String()),
		zap.String("token_a_mint", tokenAMint.String()),
		zap.String("token_b_mint", tokenBMint.String()),
		zap.Uint64("fee_bps", feeBasisPoints))

	if m.bus != nil {
		_ = m.bus.Publish(&events.PoolCreatedEvent{
			BaseEvent:   events.BaseEvent{EventType: events.PoolCreated, EventTime: time.Now().UTC()},
			PoolAddress: pool.Address.String(),
			TokenAMint:  tokenAMint.String(),
			TokenBMint:  tokenBMint.String(),
		})
	}
	return pool, nil
}

// AddParams names the provider-side accounts for a local deposit.
type AddParams struct {
	PoolAddress solana.PublicKey
	Provider    solana.PublicKey

	ProviderTokenAAccount solana.PublicKey
	ProviderTokenBAccount solana.PublicKey
	ProviderShareAccount  solana.PublicKey

	AmountA      uint64
	AmountB      uint64
	MinSharesOut uint64
}

// AddLiquidity moves both deposits into the reserves and issues the
// proportional liquidity shares, as one atomic step. The first deposit sets
// supply to sqrt(amountA*amountB); later deposits get the smaller of the two
// proportional grants so over-contributing one side never mints extra.
func (m *Manager) AddLiquidity(ctx context.Context, params AddParams) (uint64, error) {
	mu := m.lane(params.PoolAddress)
	mu.Lock()
	defer mu.Unlock()

	pool, err := m.store.GetPool(ctx, params.PoolAddress)
	if err != nil {
		return 0, err
	}
	if err := pool.RequireActive(); err != nil {
		return 0, err
	}
	if params.AmountA == 0 || params.AmountB == 0 {
		return 0, ledger.ErrZeroLiquidityMinted
	}

	reserveA, err := m.bank.Balance(pool.TokenAAccount)
	if err != nil {
		return 0, err
	}
	reserveB, err := m.bank.Balance(pool.TokenBAccount)
	if err != nil {
		return 0, err
	}

	var shares uint64
	if pool.TotalLiquidityShares == 0 {
		shares = isqrt(params.AmountA, params.AmountB)
	} else {
		if reserveA == 0 || reserveB == 0 {
			// Supply without reserves means the record and the token
			// ledger disagree; refuse to touch either.
			return 0, ledger.ErrInvalidPoolStatus
		}
		grantA, err := mulDiv(params.AmountA, pool.TotalLiquidityShares, reserveA)
		if err != nil {
			return 0, err
		}
		grantB, err := mulDiv(params.AmountB, pool.TotalLiquidityShares, reserveB)
		if err != nil {
			return 0, err
		}
		shares = grantA
		if grantB < shares {
			shares = grantB
		}
	}
	if shares == 0 {
		return 0, ledger.ErrZeroLiquidityMinted
	}
	if shares < params.MinSharesOut {
		return 0, fmt.Errorf("minted %d, minimum %d: %w", shares, params.MinSharesOut, ledger.ErrSlippageExceeded)
	}

	mint, err := m.mover.IssueShares(pool, pool.Authority, params.ProviderShareAccount, shares)
	if err != nil {
		return 0, err
	}

	next := pool.Clone()
	if err := next.ApplyShareIssue(shares); err != nil {
		return 0, err
	}

	err = m.bank.Apply(
		token.Operation{
			Kind:        token.OpTransfer,
			Source:      params.ProviderTokenAAccount,
			Destination: pool.TokenAAccount,
			Amount:      params.AmountA,
			Authority:   params.Provider,
		},
		token.Operation{
			Kind:        token.OpTransfer,
			Source:      params.ProviderTokenBAccount,
			Destination: pool.TokenBAccount,
			Amount:      params.AmountB,
			Authority:   params.Provider,
		},
		mint,
	)
	if err != nil {
		return 0, err
	}

	if err := m.store.SavePool(ctx, next); err != nil {
		return 0, err
	}

	m.logger.Info("Liquidity added",
		zap.String("pool", pool.Address.String()),
		zap.String("provider", params.Provider.String()),
		zap.Uint64("amount_a", params.AmountA),
		zap.Uint64("amount_b", params.AmountB),
		zap.Uint64("shares", shares))

	if m.bus != nil {
		_ = m.bus.Publish(&events.LiquidityChangedEvent{
			BaseEvent:   events.BaseEvent{EventType: events.LiquidityAdded, EventTime: time.Now().UTC()},
			PoolAddress: pool.Address.String(),
			Provider:    params.Provider.String(),
			Shares:      shares,
			AmountA:     params.AmountA,
			AmountB:     params.AmountB,
		})
	}
	return shares, nil
}

// RemoveParams names the provider-side accounts for a local withdrawal.
type RemoveParams struct {
	PoolAddress solana.PublicKey
	Provider    solana.PublicKey

	ProviderTokenAAccount solana.PublicKey
	ProviderTokenBAccount solana.PublicKey
	ProviderShareAccount  solana.PublicKey

	Shares     uint64
	MinAmountA uint64
	MinAmountB uint64
}

// RemoveLiquidity burns the provider's shares and releases the proportional
// reserves, net of the protocol fee at the pool's fee rate. Burn and both
// releases land as one fail-atomic batch.
func (m *Manager) RemoveLiquidity(ctx context.Context, params RemoveParams) (uint64, uint64, error) {
	mu := m.lane(params.PoolAddress)
	mu.Lock()
	defer mu.Unlock()

	pool, err := m.store.GetPool(ctx, params.PoolAddress)
	if err != nil {
		return 0, 0, err
	}
	if err := pool.RequireActive(); err != nil {
		return 0, 0, err
	}
	if pool.TotalLiquidityShares == 0 {
		return 0, 0, ledger.ErrPoolEmpty
	}
	if params.Shares == 0 {
		return 0, 0, ledger.ErrZeroLiquidityBurned
	}

	held, err := m.bank.Balance(params.ProviderShareAccount)
	if err != nil {
		return 0, 0, err
	}
	if params.Shares > held {
		return 0, 0, fmt.Errorf("burning %d of %d held: %w", params.Shares, held, ledger.ErrInsufficientLpTokens)
	}

	reserveA, err := m.bank.Balance(pool.TokenAAccount)
	if err != nil {
		return 0, 0, err
	}
	reserveB, err := m.bank.Balance(pool.TokenBAccount)
	if err != nil {
		return 0, 0, err
	}

	grossA, err := mulDiv(params.Shares, reserveA, pool.TotalLiquidityShares)
	if err != nil {
		return 0, 0, err
	}
	grossB, err := mulDiv(params.Shares, reserveB, pool.TotalLiquidityShares)
	if err != nil {
		return 0, 0, err
	}

	feeA, netA, err := feeSplit(grossA, pool.FeeBasisPoints)
	if err != nil {
		return 0, 0, err
	}
	feeB, netB, err := feeSplit(grossB, pool.FeeBasisPoints)
	if err != nil {
		return 0, 0, err
	}

	if netA < params.MinAmountA || netB < params.MinAmountB {
		return 0, 0, fmt.Errorf("net %d/%d below minimum %d/%d: %w",
			netA, netB, params.MinAmountA, params.MinAmountB, ledger.ErrSlippageExceeded)
	}

	ops := []token.Operation{
		m.mover.BurnShares(pool, params.ProviderShareAccount, params.Provider, params.Shares),
	}
	if netA > 0 {
		op, err := m.mover.ReleaseReserve(pool, pool.Authority, pool.TokenAAccount, params.ProviderTokenAAccount, netA)
		if err != nil {
			return 0, 0, err
		}
		ops = append(ops, op)
	}
	if netB > 0 {
		op, err := m.mover.ReleaseReserve(pool, pool.Authority, pool.TokenBAccount, params.ProviderTokenBAccount, netB)
		if err != nil {
			return 0, 0, err
		}
		ops = append(ops, op)
	}

	next := pool.Clone()
	if err := next.ApplyShareBurn(params.Shares); err != nil {
		return 0, 0, err
	}
	if err := next.AccrueProtocolFee(feeA, feeB); err != nil {
		return 0, 0, err
	}

	if err := m.bank.Apply(ops...); err != nil {
		return 0, 0, err
	}
	if err := m.store.SavePool(ctx, next); err != nil {
		return 0, 0, err
	}

	m.logger.Info("Liquidity removed",
		zap.String("pool", pool.Address.String()),
		zap.String("provider", params.Provider.String()),
		zap.Uint64("shares", params.Shares),
		zap.Uint64("amount_a", netA),
		zap.Uint64("amount_b", netB))

	if m.bus != nil {
		_ = m.bus.Publish(&events.LiquidityChangedEvent{
			BaseEvent:   events.BaseEvent{EventType: events.LiquidityRemoved, EventTime: time.Now().UTC()},
			PoolAddress: pool.Address.String(),
			Provider:    params.Provider.String(),
			Shares:      params.Shares,
			AmountA:     netA,
			AmountB:     netB,
		})
	}
	return netA, netB, nil
}

// SetPoolStatus pauses or resumes a pool. Administrative; the only mutation
// allowed on a paused pool is the resume itself.
func (m *Manager) SetPoolStatus(ctx context.Context, poolAddress solana.PublicKey, status ledger.Status) error {
	mu := m.lane(poolAddress)
	mu.Lock()
	defer mu.Unlock()

	pool, err := m.store.GetPool(ctx, poolAddress)
	if err != nil {
		return err
	}

	eventType := events.PoolPaused
	switch status {
	case ledger.StatusPaused:
		pool.Pause()
	case ledger.StatusActive:
		pool.Resume()
		eventType = events.PoolResumed
	default:
		return ledger.ErrInvalidPoolStatus
	}

	if err := m.store.SavePool(ctx, pool); err != nil {
		return err
	}
	if m.bus != nil {
		_ = m.bus.Publish(&events.PoolStatusEvent{
			BaseEvent:   events.BaseEvent{EventType: eventType, EventTime: time.Now().UTC()},
			PoolAddress: poolAddress.String(),
		})
	}
	return nil
}
