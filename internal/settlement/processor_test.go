package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/authority"
	"github.com/tarlanisaev/poolbridge/internal/bridge"
	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/registry"
	"github.com/tarlanisaev/poolbridge/internal/storage/memory"
	"github.com/tarlanisaev/poolbridge/internal/token"
)

var testProgramID = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

type env struct {
	store     *memory.Store
	registry  *registry.Registry
	bank      *token.MemoryBank
	processor *Processor

	pool   *ledger.Pool
	faucet solana.PublicKey

	recipient       solana.PublicKey
	recipientShares solana.PublicKey
	recipientA      solana.PublicKey
	recipientB      solana.PublicKey
}

// newEnv builds a settler around one funded pool: derived accounts, an LP
// mint controlled by the pool authority, and reserves holding 10_000 of each
// token.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	mintA := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	mintB := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	d, err := authority.Derive(testProgramID, mintA, mintB)
	require.NoError(t, err)

	pool := &ledger.Pool{
		Address:       d.Pool,
		Authority:     d.Authority,
		TokenAMint:    mintA,
		TokenBMint:    mintB,
		TokenAAccount: d.TokenAAccount,
		TokenBAccount: d.TokenBAccount,
		LPMint:        d.LPMint,
		Status:        ledger.StatusActive,
		Bump:          d.PoolBump,
		AuthorityBump: d.AuthorityBump,
	}
	for i := range pool.PoolID {
		pool.PoolID[i] = 0xAA
	}

	store := memory.New()
	require.NoError(t, store.CreatePool(ctx, pool))

	recipientWallet := solana.NewWallet().PublicKey()
	faucet := solana.NewWallet().PublicKey()

	bank := token.NewMemoryBank()
	bank.RegisterMint(pool.LPMint, pool.Authority)
	bank.RegisterMint(mintA, faucet)
	bank.RegisterMint(mintB, faucet)

	e := &env{
		store:           store,
		registry:        registry.New(nil, zap.NewNop()),
		bank:            bank,
		pool:            pool,
		faucet:          faucet,
		recipient:       recipientWallet,
		recipientShares: solana.NewWallet().PublicKey(),
		recipientA:      solana.NewWallet().PublicKey(),
		recipientB:      solana.NewWallet().PublicKey(),
	}

	require.NoError(t, bank.CreateAccount(d.TokenAAccount, mintA, pool.Authority))
	require.NoError(t, bank.CreateAccount(d.TokenBAccount, mintB, pool.Authority))
	require.NoError(t, bank.CreateAccount(e.recipientShares, pool.LPMint, recipientWallet))
	require.NoError(t, bank.CreateAccount(e.recipientA, mintA, recipientWallet))
	require.NoError(t, bank.CreateAccount(e.recipientB, mintB, recipientWallet))

	require.NoError(t, bank.Apply(
		token.Operation{Kind: token.OpMint, Mint: mintA, Destination: d.TokenAAccount, Amount: 10_000, Authority: faucet},
		token.Operation{Kind: token.OpMint, Mint: mintB, Destination: d.TokenBAccount, Amount: 10_000, Authority: faucet},
	))

	mover := token.NewMover(testProgramID, zap.NewNop())
	e.processor = NewProcessor(store, e.registry, bank, mover, nil, zap.NewNop())
	return e
}

func (e *env) request(seq uint64, payload bridge.Payload) Request {
	msg := bridge.Message{
		EmitterChain: 21,
		Sequence:     seq,
		Payload:      bridge.EncodePayload(payload),
	}
	for i := range msg.EmitterAddress {
		msg.EmitterAddress[i] = 0xEE
	}
	return Request{
		Message:                msg,
		PoolAddress:            e.pool.Address,
		Recipient:              e.recipient,
		RecipientShareAccount:  e.recipientShares,
		RecipientTokenAAccount: e.recipientA,
		RecipientTokenBAccount: e.recipientB,
	}
}

func (e *env) addCompletion(amount uint64) *bridge.AddLiquidityCompletion {
	return &bridge.AddLiquidityCompletion{
		OriginalPoolID: e.pool.PoolID,
		Recipient:      [32]byte(e.recipient),
		LpAmountToMint: amount,
	}
}

func (e *env) removeCompletion(amountA, amountB uint64) *bridge.RemoveLiquidityCompletion {
	return &bridge.RemoveLiquidityCompletion{
		OriginalPoolID:    e.pool.PoolID,
		Recipient:         [32]byte(e.recipient),
		AmountAToTransfer: amountA,
		AmountBToTransfer: amountB,
	}
}

func TestAddCompletionMintsSharesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.request(1, e.addCompletion(1000))

	require.NoError(t, e.processor.Process(ctx, req))

	shares, err := e.bank.Balance(e.recipientShares)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), shares)

	pool, err := e.store.GetPool(ctx, e.pool.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pool.TotalLiquidityShares)

	// The identical message is consumed: the second run rejects and mints
	// nothing more.
	err = e.processor.Process(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrVaaAlreadyProcessed)

	shares, _ = e.bank.Balance(e.recipientShares)
	assert.Equal(t, uint64(1000), shares)
	pool, _ = e.store.GetPool(ctx, e.pool.Address)
	assert.Equal(t, uint64(1000), pool.TotalLiquidityShares)
}

func TestRemoveCompletionReleasesBothReserves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.processor.Process(ctx, e.request(1, e.removeCompletion(500, 700))))

	aBal, _ := e.bank.Balance(e.recipientA)
	bBal, _ := e.bank.Balance(e.recipientB)
	assert.Equal(t, uint64(500), aBal)
	assert.Equal(t, uint64(700), bBal)

	reserveA, _ := e.bank.Balance(e.pool.TokenAAccount)
	reserveB, _ := e.bank.Balance(e.pool.TokenBAccount)
	assert.Equal(t, uint64(9_500), reserveA)
	assert.Equal(t, uint64(9_300), reserveB)
}

func TestRemoveCompletionIsAtomicAcrossLegs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Second leg overdraws the reserve; the first must not land either.
	req := e.request(1, e.removeCompletion(500, 20_000))
	err := e.processor.Process(ctx, req)
	require.Error(t, err)

	aBal, _ := e.bank.Balance(e.recipientA)
	reserveA, _ := e.bank.Balance(e.pool.TokenAAccount)
	assert.Zero(t, aBal)
	assert.Equal(t, uint64(10_000), reserveA)

	// The failure did not consume the identity: a corrected message with the
	// same identity settles.
	require.NoError(t, e.processor.Process(ctx, e.request(1, e.removeCompletion(500, 700))))
}

func TestRemoveCompletionSkipsZeroLeg(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.processor.Process(ctx, e.request(1, e.removeCompletion(500, 0))))

	aBal, _ := e.bank.Balance(e.recipientA)
	bBal, _ := e.bank.Balance(e.recipientB)
	assert.Equal(t, uint64(500), aBal)
	assert.Zero(t, bBal)
}

func TestRemoveCompletionRejectsBothZero(t *testing.T) {
	e := newEnv(t)
	err := e.processor.Process(context.Background(), e.request(1, e.removeCompletion(0, 0)))
	assert.ErrorIs(t, err, ledger.ErrZeroLiquidityBurned)
}

func TestAddCompletionRejectsZeroMint(t *testing.T) {
	e := newEnv(t)
	err := e.processor.Process(context.Background(), e.request(1, e.addCompletion(0)))
	assert.ErrorIs(t, err, ledger.ErrZeroLiquidityMinted)

	// And the identity stays replayable for a corrected message.
	require.NoError(t, e.processor.Process(context.Background(), e.request(1, e.addCompletion(10))))
}

func TestPoolIDBinding(t *testing.T) {
	e := newEnv(t)
	payload := e.addCompletion(1000)
	payload.OriginalPoolID[0] ^= 0xFF

	err := e.processor.Process(context.Background(), e.request(1, payload))
	assert.ErrorIs(t, err, ledger.ErrPoolIdMismatch)

	shares, _ := e.bank.Balance(e.recipientShares)
	assert.Zero(t, shares)
}

func TestRecipientBinding(t *testing.T) {
	e := newEnv(t)
	payload := e.addCompletion(1000)
	payload.Recipient[5] ^= 0xFF

	err := e.processor.Process(context.Background(), e.request(1, payload))
	assert.ErrorIs(t, err, ledger.ErrRecipientMismatch)
}

func TestPausedPoolRejectsCompletions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pool, err := e.store.GetPool(ctx, e.pool.Address)
	require.NoError(t, err)
	pool.Pause()
	require.NoError(t, e.store.SavePool(ctx, pool))

	err = e.processor.Process(ctx, e.request(1, e.addCompletion(1000)))
	assert.ErrorIs(t, err, ledger.ErrPoolPaused)

	// After resume the same identity settles.
	pool.Resume()
	require.NoError(t, e.store.SavePool(ctx, pool))
	require.NoError(t, e.processor.Process(ctx, e.request(1, e.addCompletion(1000))))
}

func TestEmptyPayloadRejected(t *testing.T) {
	e := newEnv(t)
	req := e.request(1, e.addCompletion(1))
	req.Message.Payload = nil

	err := e.processor.Process(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrInvalidVaaPayload)
}

func TestUnknownSelectorRejected(t *testing.T) {
	e := newEnv(t)
	req := e.request(1, e.addCompletion(1))
	req.Message.Payload[0] = 9

	err := e.processor.Process(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrInvalidBridgeOperation)
}

func TestUnknownPoolRejected(t *testing.T) {
	e := newEnv(t)
	req := e.request(1, e.addCompletion(1000))
	req.PoolAddress = solana.NewWallet().PublicKey()

	err := e.processor.Process(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrPoolNotFound)
}

func TestDistinctSequencesSettleIndependently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.processor.Process(ctx, e.request(1, e.addCompletion(100))))
	require.NoError(t, e.processor.Process(ctx, e.request(2, e.addCompletion(200))))

	shares, _ := e.bank.Balance(e.recipientShares)
	assert.Equal(t, uint64(300), shares)
}

func TestConcurrentReplaySettlesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if err := e.processor.Process(ctx, e.request(1, e.addCompletion(1000))); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	shares, _ := e.bank.Balance(e.recipientShares)
	assert.Equal(t, uint64(1000), shares)
}

// flakyStore fails the next failSaves calls to SavePool and then behaves
// like the wrapped store.
type flakyStore struct {
	*memory.Store
	failSaves int
}

func (s *flakyStore) SavePool(ctx context.Context, pool *ledger.Pool) error {
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("connection reset by peer")
	}
	return s.Store.SavePool(ctx, pool)
}

func TestTransientSnapshotFailureNeverMintsTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	flaky := &flakyStore{Store: e.store, failSaves: 1}
	mover := token.NewMover(testProgramID, zap.NewNop())
	processor := NewProcessor(flaky, e.registry, e.bank, mover, nil, zap.NewNop())

	// The snapshot write fails after the shares were minted. The settlement
	// still counts as done: returning an error here would send the same
	// message back through the retry loop with the value already moved.
	req := e.request(1, e.addCompletion(1000))
	require.NoError(t, processor.Process(ctx, req))

	shares, err := e.bank.Balance(e.recipientShares)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), shares)

	// A retry of the same request, store healthy again, mints nothing more.
	err = processor.Process(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrVaaAlreadyProcessed)

	shares, _ = e.bank.Balance(e.recipientShares)
	assert.Equal(t, uint64(1000), shares)

	entry, ok := e.registry.Get(req.Message.Identity())
	require.True(t, ok)
	assert.Equal(t, registry.StatusCompleted, entry.Status)
}

func TestReserveReleaseSurvivesSnapshotFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	flaky := &flakyStore{Store: e.store, failSaves: 1}
	mover := token.NewMover(testProgramID, zap.NewNop())
	processor := NewProcessor(flaky, e.registry, e.bank, mover, nil, zap.NewNop())

	req := e.request(1, e.removeCompletion(500, 700))
	require.NoError(t, processor.Process(ctx, req))

	aBal, _ := e.bank.Balance(e.recipientA)
	bBal, _ := e.bank.Balance(e.recipientB)
	assert.Equal(t, uint64(500), aBal)
	assert.Equal(t, uint64(700), bBal)

	err := processor.Process(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrVaaAlreadyProcessed)

	aBal, _ = e.bank.Balance(e.recipientA)
	bBal, _ = e.bank.Balance(e.recipientB)
	assert.Equal(t, uint64(500), aBal)
	assert.Equal(t, uint64(700), bBal)
}

// brokenPersistence refuses every durable write.
type brokenPersistence struct{}

func (brokenPersistence) SaveEntry(context.Context, *registry.Entry) error { return errors.New("disk full") }
func (brokenPersistence) DeleteEntry(context.Context, bridge.Identity) error { return nil }
func (brokenPersistence) LoadEntries(context.Context) ([]*registry.Entry, error) { return nil, nil }
func (brokenPersistence) PruneCompletedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestRegistryPersistFailureKeepsIdentityConsumed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	reg := registry.New(brokenPersistence{}, zap.NewNop())
	mover := token.NewMover(testProgramID, zap.NewNop())
	processor := NewProcessor(e.store, reg, e.bank, mover, nil, zap.NewNop())

	req := e.request(1, e.addCompletion(1000))
	require.NoError(t, processor.Process(ctx, req))

	shares, _ := e.bank.Balance(e.recipientShares)
	assert.Equal(t, uint64(1000), shares)

	// The durable write was lost but the in-process index holds the
	// identity, so the replay is still rejected.
	err := processor.Process(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrVaaAlreadyProcessed)

	shares, _ = e.bank.Balance(e.recipientShares)
	assert.Equal(t, uint64(1000), shares)
}

func TestAuditLogRecordsOutcomes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.processor.Process(ctx, e.request(1, e.addCompletion(1000))))
	err := e.processor.Process(ctx, e.request(1, e.addCompletion(1000)))
	require.ErrorIs(t, err, ledger.ErrVaaAlreadyProcessed)

	logs := e.store.Settlements()
	require.Len(t, logs, 2)
	assert.Equal(t, "completed", logs[0].Status)
	assert.Equal(t, uint64(1000), logs[0].LpMinted)
	assert.Equal(t, "rejected", logs[1].Status)
	assert.NotEmpty(t, logs[1].ErrorMessage)
}
