package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskboard/backend/internal/config"
)

// Store is the board's Postgres connection. The pool is tuned for many
// short commit transactions: the services open explicit transactions around
// every multi-statement write, so GORM's implicit per-statement transaction
// is disabled, and all server timestamps are generated in UTC to match the
// ordering rule on the event feeds.
type Store struct {
	*gorm.DB
}

// PoolStats is a snapshot of the connection pool, exposed on the admin
// surface and logged at shutdown.
type PoolStats struct {
	MaxOpen        int           `json:"max_open"`
	Open           int           `json:"open"`
	InUse          int           `json:"in_use"`
	Idle           int           `json:"idle"`
	WaitCount      int64         `json:"wait_count"`
	WaitDuration   time.Duration `json:"wait_duration"`
	LifetimeClosed int64         `json:"lifetime_closed"`
}

// Connect opens the board store using the pool limits from cfg. Production
// runs log only warnings from the query layer.
func Connect(cfg *config.Config) (*Store, error) {
	logLevel := logger.Info
	if cfg.IsProduction() {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open board store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping board store: %w", err)
	}

	log.Printf("✅ Board store pool ready (max %d open, %d idle)",
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	return &Store{DB: db}, nil
}

// Health pings the store with a short deadline so a stalled pool reports
// unhealthy instead of hanging the caller.
func (s *Store) Health() error {
	if s == nil || s.DB == nil {
		return errors.New("board store not connected")
	}

	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

func (s *Store) Stats() PoolStats {
	if s == nil || s.DB == nil {
		return PoolStats{}
	}

	sqlDB, err := s.DB.DB()
	if err != nil {
		return PoolStats{}
	}

	raw := sqlDB.Stats()
	return PoolStats{
		MaxOpen:        raw.MaxOpenConnections,
		Open:           raw.OpenConnections,
		InUse:          raw.InUse,
		Idle:           raw.Idle,
		WaitCount:      raw.WaitCount,
		WaitDuration:   raw.WaitDuration,
		LifetimeClosed: raw.MaxLifetimeClosed,
	}
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}

	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
