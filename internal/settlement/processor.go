// internal/settlement/processor.go
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/bridge"
	"github.com/tarlanisaev/poolbridge/internal/events"
	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/registry"
	"github.com/tarlanisaev/poolbridge/internal/storage"
	"github.com/tarlanisaev/poolbridge/internal/storage/models"
	"github.com/tarlanisaev/poolbridge/internal/token"
)

// Request names a verified cross-chain message and every account it touches.
// The relayer reads the message off-chain, determines the recipient and the
// required accounts, and supplies them here; the processor verifies all of
// them instead of trusting the relayer.
type Request struct {
	Message bridge.Message

	PoolAddress solana.PublicKey
	Recipient   solana.PublicKey

	// Recipient-side accounts for the two completion variants.
	RecipientShareAccount  solana.PublicKey
	RecipientTokenAAccount solana.PublicKey
	RecipientTokenBAccount solana.PublicKey
}

// Processor applies bridge-originated completion operations to pools,
// exactly once per message identity. Its entire value-add over the external
// bridge verification is the uniqueness check, the pool and recipient
// binding checks, and atomic application; each is a hard precondition, never
// a logged warning.
type Processor struct {
	store    storage.PoolStore
	registry *registry.Registry
	bank     token.Bank
	mover    *token.Mover
	bus      *events.Bus
	logger   *zap.Logger

	// One lock per pool: a settlement request holds exclusive logical
	// access to its pool record from load to commit.
	lanesMu sync.Mutex
	lanes   map[solana.PublicKey]*sync.Mutex
}

// NewProcessor wires the settlement core. bus may be nil when no one
// observes lifecycle events.
func NewProcessor(
	store storage.PoolStore,
	reg *registry.Registry,
	bank token.Bank,
	mover *token.Mover,
	bus *events.Bus,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		store:    store,
		registry: reg,
		bank:     bank,
		mover:    mover,
		bus:      bus,
		logger:   logger.Named("settlement"),
		lanes:    make(map[solana.PublicKey]*sync.Mutex),
	}
}

func (p *Processor) lane(pool solana.PublicKey) *sync.Mutex {
	p.lanesMu.Lock()
	defer p.lanesMu.Unlock()
	mu, ok := p.lanes[pool]
	if !ok {
		mu = &sync.Mutex{}
		p.lanes[pool] = mu
	}
	return mu
}

// Process runs one settlement request through the state machine: admission,
// replay check, decode, binding, staging, value movement, commit.
//
// Every check and every staging step runs before anything mutates, and any
// failure up to that point aborts with no state change and releases the
// message identity for a corrected resubmission. The bank batch is the point
// of no return: once value has moved the identity stays consumed no matter
// what, and failures persisting the registry entry or the pool snapshot are
// logged rather than returned, because surfacing them as request errors
// would invite a retry that moves value a second time.
func (p *Processor) Process(ctx context.Context, req Request) error {
	id := req.Message.Identity()
	logger := p.logger.With(
		zap.String("message", id.String()),
		zap.String("pool", req.PoolAddress.String()),
	)

	// Admission: the selector byte must exist before anything else runs.
	if len(req.Message.Payload) == 0 {
		return p.reject(ctx, logger, req, 255, fmt.Errorf("empty payload: %w", ledger.ErrInvalidVaaPayload))
	}
	selector := req.Message.Payload[0]

	// Replay check. Claim is compare-and-set: of any number of concurrent
	// requests for this identity exactly one passes, the rest observe
	// ErrVaaAlreadyProcessed here.
	if err := p.registry.Claim(ctx, id); err != nil {
		return p.reject(ctx, logger, req, selector, err)
	}

	valueMoved := false
	defer func() {
		if !valueMoved {
			p.registry.Release(ctx, id)
		}
	}()

	payload, err := bridge.ParsePayload(req.Message.Payload)
	if err != nil {
		return p.reject(ctx, logger, req, selector, err)
	}

	mu := p.lane(req.PoolAddress)
	mu.Lock()
	defer mu.Unlock()

	pool, err := p.store.GetPool(ctx, req.PoolAddress)
	if err != nil {
		return p.reject(ctx, logger, req, selector, err)
	}

	// Binding: the payload must target this pool and this recipient,
	// byte for byte. Without these checks a message could be replayed
	// against a different pool, or a relayer could redirect funds to
	// itself.
	if payload.PoolID() != pool.PoolID {
		return p.reject(ctx, logger, req, selector,
			fmt.Errorf("payload targets pool %x: %w", payload.PoolID(), ledger.ErrPoolIdMismatch))
	}
	if payload.RecipientAddress() != [32]byte(req.Recipient) {
		return p.reject(ctx, logger, req, selector,
			fmt.Errorf("payload names recipient %x: %w", payload.RecipientAddress(), ledger.ErrRecipientMismatch))
	}

	rec := &models.SettlementLog{
		MessageKey:  id.String(),
		PoolAddress: req.PoolAddress.String(),
		Operation:   selector,
		Recipient:   req.Recipient.String(),
	}

	// Staging: build the bank batch and the successor pool snapshot without
	// touching either the bank or the store.
	var (
		ops  []token.Operation
		next *ledger.Pool
	)
	switch completion := payload.(type) {
	case *bridge.AddLiquidityCompletion:
		ops, next, err = p.stageAdd(pool, req, completion)
		rec.LpMinted = completion.LpAmountToMint
	case *bridge.RemoveLiquidityCompletion:
		ops, next, err = p.stageRemove(pool, req, completion)
		rec.AmountA = completion.AmountAToTransfer
		rec.AmountB = completion.AmountBToTransfer
	default:
		err = fmt.Errorf("unhandled payload variant: %w", ledger.ErrInvalidBridgeOperation)
	}
	if err != nil {
		return p.reject(ctx, logger, req, selector, err)
	}

	rec.Status = "completed"
	uow := storage.NewUnitOfWork(p.store)
	uow.StagePool(next)
	uow.StageSettlement(rec)

	// Value movement: the fail-atomic bank batch either lands whole or not
	// at all. A failure here still releases the claim; success consumes the
	// identity for good.
	if err := p.bank.Apply(ops...); err != nil {
		uow.Discard()
		return p.reject(ctx, logger, req, selector, err)
	}
	valueMoved = true

	if err := p.registry.Complete(ctx, id, req.Message.Payload); err != nil {
		// The in-memory index already holds the identity as consumed, so
		// in-process replays stay rejected; only the durable copy is behind.
		logger.Error("Registry persist failed after value movement", zap.Error(err))
	}

	if err := uow.Commit(ctx); err != nil {
		logger.Error("Storage commit failed after value movement", zap.Error(err))
	}

	logger.Info("Settlement completed",
		zap.Uint8("operation", selector),
		zap.String("recipient", req.Recipient.String()))

	if p.bus != nil {
		_ = p.bus.Publish(&events.SettlementCompletedEvent{
			BaseEvent:   events.BaseEvent{EventType: events.SettlementCompleted, EventTime: time.Now().UTC()},
			MessageKey:  id.String(),
			PoolAddress: req.PoolAddress.String(),
			Operation:   selector,
			Recipient:   req.Recipient.String(),
			LpMinted:    rec.LpMinted,
			AmountA:     rec.AmountA,
			AmountB:     rec.AmountB,
		})
	}
	return nil
}

// stageAdd builds the share mint a completed originating-chain deposit is
// owed, plus the pool snapshot carrying the supply increase. The reserve
// increase already happened over there; this side only mints the matching
// supply.
func (p *Processor) stageAdd(pool *ledger.Pool, req Request, completion *bridge.AddLiquidityCompletion) ([]token.Operation, *ledger.Pool, error) {
	if err := pool.RequireActive(); err != nil {
		return nil, nil, err
	}
	if completion.LpAmountToMint == 0 {
		return nil, nil, ledger.ErrZeroLiquidityMinted
	}

	mint, err := p.mover.IssueShares(pool, pool.Authority, req.RecipientShareAccount, completion.LpAmountToMint)
	if err != nil {
		return nil, nil, err
	}

	next := pool.Clone()
	if err := next.ApplyShareIssue(completion.LpAmountToMint); err != nil {
		return nil, nil, err
	}
	return []token.Operation{mint}, next, nil
}

// stageRemove builds the release of both reserves to the recipient. The two
// legs go through the bank as one fail-atomic batch: a partial release (one
// token transferred, the other failing) is impossible.
//
// A completion with both amounts zero is rejected; a single zero leg is
// allowed and skipped, which is what a single-sided withdrawal completion
// looks like on the wire.
func (p *Processor) stageRemove(pool *ledger.Pool, req Request, completion *bridge.RemoveLiquidityCompletion) ([]token.Operation, *ledger.Pool, error) {
	if err := pool.RequireActive(); err != nil {
		return nil, nil, err
	}
	if completion.AmountAToTransfer == 0 && completion.AmountBToTransfer == 0 {
		return nil, nil, ledger.ErrZeroLiquidityBurned
	}

	var ops []token.Operation
	if completion.AmountAToTransfer > 0 {
		op, err := p.mover.ReleaseReserve(pool, pool.Authority, pool.TokenAAccount, req.RecipientTokenAAccount, completion.AmountAToTransfer)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, op)
	}
	if completion.AmountBToTransfer > 0 {
		op, err := p.mover.ReleaseReserve(pool, pool.Authority, pool.TokenBAccount, req.RecipientTokenBAccount, completion.AmountBToTransfer)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, op)
	}

	// The share burn happened on the originating chain; locally only the
	// mutation timestamp moves.
	next := pool.Clone()
	next.Touch()
	return ops, next, nil
}

func (p *Processor) reject(ctx context.Context, logger *zap.Logger, req Request, selector uint8, err error) error {
	logger.Warn("Settlement rejected", zap.Error(err))

	rec := &models.SettlementLog{
		MessageKey:   req.Message.Identity().String(),
		PoolAddress:  req.PoolAddress.String(),
		Operation:    selector,
		Recipient:    req.Recipient.String(),
		Status:       "rejected",
		ErrorMessage: err.Error(),
	}
	if saveErr := p.store.SaveSettlement(ctx, rec); saveErr != nil {
		logger.Warn("Failed to record settlement audit row", zap.Error(saveErr))
	}

	if p.bus != nil {
		_ = p.bus.Publish(&events.SettlementRejectedEvent{
			BaseEvent:   events.BaseEvent{EventType: events.SettlementRejected, EventTime: time.Now().UTC()},
			MessageKey:  req.Message.Identity().String(),
			PoolAddress: req.PoolAddress.String(),
			Error:       err,
		})
	}
	return err
}
