// cmd/settler/runner.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/config"
	"github.com/tarlanisaev/poolbridge/internal/events"
	"github.com/tarlanisaev/poolbridge/internal/logger"
	"github.com/tarlanisaev/poolbridge/internal/registry"
	"github.com/tarlanisaev/poolbridge/internal/relayer"
	"github.com/tarlanisaev/poolbridge/internal/settlement"
	"github.com/tarlanisaev/poolbridge/internal/storage"
	"github.com/tarlanisaev/poolbridge/internal/storage/memory"
	"github.com/tarlanisaev/poolbridge/internal/storage/postgres"
	"github.com/tarlanisaev/poolbridge/internal/token"
)

// Runner wires the settlement service: storage, registry, processor and the
// relayer reading deliveries from stdin.
type Runner struct {
	config     *config.Config
	logger     *logger.Logger
	store      storage.PoolStore
	registry   *registry.Registry
	bus        *events.Bus
	relayer    *relayer.Relayer
	shutdownCh chan os.Signal
}

func NewRunner(cfg *config.Config, log *logger.Logger) (*Runner, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("parse program id: %w", err)
	}

	var (
		store       storage.PoolStore
		persistence registry.Persistence
	)
	if cfg.PostgresURL != "" {
		pg, err := postgres.NewStore(cfg.PostgresURL, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.RunMigrations(); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		store = pg
		persistence = pg
		log.Info("Using PostgreSQL storage")
	} else {
		store = memory.New()
		log.Info("Using in-memory storage; processed messages will not survive restart")
	}

	bus := events.NewBus(log.Logger, cfg.EventBufferSize)
	reg := registry.New(persistence, log.Logger)

	bank := token.NewMemoryBank()
	mover := token.NewMover(programID, log.Logger)
	processor := settlement.NewProcessor(store, reg, bank, mover, bus, log.Logger)

	transport := relayer.NewStreamTransport(os.Stdin, cfg.EventBufferSize, log.Logger)
	rel := relayer.New(transport, processor, reg, relayer.Options{
		Workers:          cfg.Workers,
		EmitterAllowList: cfg.EmitterAllowList,
		RetryMaxTries:    uint(cfg.Retries),
		RetryInterval:    time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		PruneRetention:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, log.Logger)

	return &Runner{
		config:     cfg,
		logger:     log,
		store:      store,
		registry:   reg,
		bus:        bus,
		relayer:    rel,
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	shutdownCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.logger.Info("Signal received: " + sig.String())
		cancel()
	}()

	if err := r.registry.Load(shutdownCtx); err != nil {
		return fmt.Errorf("hydrate registry: %w", err)
	}

	r.logger.Info("Relayer starting", zap.Int("workers", r.config.Workers))

	err := r.relayer.Run(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	busCtx, busCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer busCancel()
	if err := r.bus.Shutdown(busCtx); err != nil {
		r.logger.Warn("Event bus shutdown incomplete", zap.Error(err))
	}

	r.logger.Info("Settler stopped")
	return nil
}
