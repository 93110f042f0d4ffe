// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tarlanisaev/poolbridge/internal/bridge"
	"github.com/tarlanisaev/poolbridge/internal/ledger"
	"github.com/tarlanisaev/poolbridge/internal/registry"
	"github.com/tarlanisaev/poolbridge/internal/storage/models"
)

// gormLogger adapts zap to gorm's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

// Store is the postgres-backed PoolStore and registry persistence.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore connects to postgres and configures the connection pool.
func NewStore(dsn string, zapLogger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{
		db:     db,
		logger: zapLogger,
	}, nil
}

// RunMigrations creates or updates the schema.
func (s *Store) RunMigrations() error {
	return s.db.AutoMigrate(
		&models.PoolRecord{},
		&models.ProcessedMessage{},
		&models.SettlementLog{},
	)
}

////////////////////////////////////////////////////////////////////////////////
// PoolStore
////////////////////////////////////////////////////////////////////////////////

func poolToRecord(pool *ledger.Pool) *models.PoolRecord {
	return &models.PoolRecord{
		Address:    pool.Address.String(),
		PoolID:     base58.Encode(pool.PoolID[:]),
		TokenAMint: pool.TokenAMint.String(),
		TokenBMint: pool.TokenBMint.String(),
		Status:     uint8(pool.Status),
		Data:       ledger.EncodePool(pool),
	}
}

func (s *Store) CreatePool(ctx context.Context, pool *ledger.Pool) error {
	rec := poolToRecord(pool)
	err := s.db.WithContext(ctx).Create(rec).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrPoolExists)
	}
	return err
}

func (s *Store) getPoolWhere(ctx context.Context, query string, args ...interface{}) (*ledger.Pool, error) {
	var rec models.PoolRecord
	err := s.db.WithContext(ctx).Where(query, args...).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return ledger.DecodePool(rec.Data)
}

func (s *Store) GetPool(ctx context.Context, address solana.PublicKey) (*ledger.Pool, error) {
	return s.getPoolWhere(ctx, "address = ?", address.String())
}

func (s *Store) GetPoolByID(ctx context.Context, id ledger.PoolID) (*ledger.Pool, error) {
	return s.getPoolWhere(ctx, "pool_id = ?", base58.Encode(id[:]))
}

func (s *Store) SavePool(ctx context.Context, pool *ledger.Pool) error {
	rec := poolToRecord(pool)
	result := s.db.WithContext(ctx).
		Model(&models.PoolRecord{}).
		Where("address = ?", rec.Address).
		Updates(map[string]interface{}{
			"status": rec.Status,
			"data":   rec.Data,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrPoolNotFound)
	}
	return nil
}

func (s *Store) ListPools(ctx context.Context) ([]*ledger.Pool, error) {
	var recs []models.PoolRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	pools := make([]*ledger.Pool, 0, len(recs))
	for _, rec := range recs {
		pool, err := ledger.DecodePool(rec.Data)
		if err != nil {
			s.logger.Error("Skipping undecodable pool record",
				zap.String("address", rec.Address), zap.Error(err))
			continue
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func (s *Store) SaveSettlement(ctx context.Context, rec *models.SettlementLog) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

////////////////////////////////////////////////////////////////////////////////
// Registry persistence
////////////////////////////////////////////////////////////////////////////////

func (s *Store) SaveEntry(ctx context.Context, e *registry.Entry) error {
	rec := &models.ProcessedMessage{
		EmitterChain:   e.Identity.EmitterChain,
		EmitterAddress: base58.Encode(e.Identity.EmitterAddress[:]),
		Sequence:       e.Identity.Sequence,
		Status:         uint8(e.Status),
		Payload:        e.Payload,
		ObservedAt:     e.ObservedAt,
	}
	if !e.AppliedAt.IsZero() {
		applied := e.AppliedAt
		rec.AppliedAt = &applied
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) DeleteEntry(ctx context.Context, id bridge.Identity) error {
	return s.db.WithContext(ctx).
		Where("emitter_chain = ? AND emitter_address = ? AND sequence = ?",
			id.EmitterChain, base58.Encode(id.EmitterAddress[:]), id.Sequence).
		Delete(&models.ProcessedMessage{}).Error
}

func (s *Store) LoadEntries(ctx context.Context) ([]*registry.Entry, error) {
	var recs []models.ProcessedMessage
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}

	entries := make([]*registry.Entry, 0, len(recs))
	for _, rec := range recs {
		emitter, err := base58.Decode(rec.EmitterAddress)
		if err != nil || len(emitter) != 32 {
			s.logger.Error("Skipping registry row with bad emitter address",
				zap.String("emitter", rec.EmitterAddress))
			continue
		}
		e := &registry.Entry{
			Identity: bridge.Identity{
				EmitterChain: rec.EmitterChain,
				Sequence:     rec.Sequence,
			},
			Status:     registry.Status(rec.Status),
			Payload:    rec.Payload,
			ObservedAt: rec.ObservedAt,
		}
		copy(e.Identity.EmitterAddress[:], emitter)
		if rec.AppliedAt != nil {
			e.AppliedAt = *rec.AppliedAt
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) PruneCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND applied_at < ?", uint8(registry.StatusCompleted), cutoff).
		Delete(&models.ProcessedMessage{})
	return result.RowsAffected, result.Error
}
