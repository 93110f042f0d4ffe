// internal/relayer/relayer.go
package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/registry"
	"github.com/tarlanisaev/poolbridge/internal/settlement"
)

// Options tunes the relayer worker pool.
type Options struct {
	// Workers is the number of concurrent settlement workers. Deliveries for
	// the same pool still serialize inside the processor.
	Workers int

	// EmitterAllowList restricts which originating contracts are accepted,
	// keyed by "chain/base58(address)". Empty means accept all; verification
	// of the message itself happened upstream either way.
	EmitterAllowList []string

	// RetryMaxTries bounds delivery attempts for transient failures.
	// Rejections never retry.
	RetryMaxTries uint
	RetryInterval time.Duration

	// PruneRetention drops completed registry entries older than this. Zero
	// disables pruning.
	PruneRetention time.Duration
	PruneInterval  time.Duration
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.RetryMaxTries == 0 {
		o.RetryMaxTries = 5
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = time.Hour
	}
}

// Relayer pulls verified deliveries off a transport and drives them through
// the settlement processor with a bounded worker pool. Transient failures
// (storage hiccups, timeouts) retry with exponential backoff; settlement
// rejections are final and surface once.
type Relayer struct {
	transport Transport
	processor *settlement.Processor
	registry  *registry.Registry
	logger    *zap.Logger
	opts      Options

	allowed map[string]struct{}
}

// New wires a relayer. reg may be nil when pruning is disabled.
func New(transport Transport, processor *settlement.Processor, reg *registry.Registry, opts Options, logger *zap.Logger) *Relayer {
	opts.withDefaults()

	var allowed map[string]struct{}
	if len(opts.EmitterAllowList) > 0 {
		allowed = make(map[string]struct{}, len(opts.EmitterAllowList))
		for _, e := range opts.EmitterAllowList {
			allowed[e] = struct{}{}
		}
	}

	return &Relayer{
		transport: transport,
		processor: processor,
		registry:  reg,
		logger:    logger.Named("relayer"),
		opts:      opts,
		allowed:   allowed,
	}
}

// Run blocks until the transport closes or the context is cancelled.
func (r *Relayer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < r.opts.Workers; i++ {
		id := i + 1
		g.Go(func() error {
			return r.worker(ctx, id)
		})
	}

	if r.opts.PruneRetention > 0 && r.registry != nil {
		g.Go(func() error {
			return r.pruneLoop(ctx)
		})
	}

	return g.Wait()
}

func (r *Relayer) worker(ctx context.Context, id int) error {
	logger := r.logger.With(zap.Int("worker_id", id))
	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker shutting down")
			return ctx.Err()
		case d, ok := <-r.transport.Deliveries():
			if !ok {
				logger.Info("Delivery stream closed")
				return nil
			}
			r.handle(ctx, d, logger)
		}
	}
}

func (r *Relayer) handle(ctx context.Context, d Delivery, logger *zap.Logger) {
	id := d.Message.Identity()

	if !r.emitterAllowed(d) {
		logger.Warn("Dropping delivery from unlisted emitter",
			zap.String("message", id.String()),
			zap.Uint16("emitter_chain", d.Message.EmitterChain))
		return
	}

	req := settlement.Request{
		Message:                d.Message,
		PoolAddress:            d.TargetPool,
		Recipient:              d.Recipient,
		RecipientShareAccount:  d.RecipientShareAccount,
		RecipientTokenAAccount: d.RecipientReserveA,
		RecipientTokenBAccount: d.RecipientReserveB,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.opts.RetryInterval
	policy.MaxInterval = r.opts.RetryInterval * 10

	notify := func(err error, wait time.Duration) {
		logger.Info("Retrying delivery",
			zap.String("message", id.String()),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	operation := func() (struct{}, error) {
		err := r.processor.Process(ctx, req)
		if err != nil && ledger.IsRejection(err) {
			// A rejection is deterministic; resubmitting the same bytes can
			// only be rejected again.
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.opts.RetryMaxTries),
		backoff.WithNotify(notify))
	if err != nil {
		logger.Error("Delivery failed",
			zap.String("message", id.String()),
			zap.Error(err))
	}
}

func (r *Relayer) emitterAllowed(d Delivery) bool {
	if r.allowed == nil {
		return true
	}
	key := fmt.Sprintf("%d/%s", d.Message.EmitterChain, base58.Encode(d.Message.EmitterAddress[:]))
	_, ok := r.allowed[key]
	return ok
}

func (r *Relayer) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-r.opts.PruneRetention)
			if _, err := r.registry.PruneCompletedBefore(ctx, cutoff); err != nil {
				r.logger.Warn("Registry prune failed", zap.Error(err))
			}
		}
	}
}
