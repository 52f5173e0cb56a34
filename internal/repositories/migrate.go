package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"
)

// Migrator applies the board schema (tasks, subtasks, attachments, activity
// log) to the store. The store may still be starting when the server boots,
// so readiness is polled before the first migration runs.
type Migrator struct {
	m     *migrate.Migrate
	sqlDB *sql.DB
	cfg   *MigrationConfig
}

type MigrationConfig struct {
	// SourceURL is a golang-migrate source, normally file://migrations.
	SourceURL string
	DBName    string
	// ReadyWait bounds how long to poll a store that is still starting.
	ReadyWait time.Duration
}

func DefaultMigrationConfig() *MigrationConfig {
	return &MigrationConfig{
		SourceURL: "file://migrations",
		DBName:    "taskboard",
		ReadyWait: 10 * time.Second,
	}
}

func NewMigrator(db *gorm.DB, cfg *MigrationConfig) (*Migrator, error) {
	if cfg == nil {
		cfg = DefaultMigrationConfig()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		DatabaseName:          cfg.DBName,
		MigrationsTable:       "schema_migrations",
		MultiStatementEnabled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.SourceURL, cfg.DBName, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return &Migrator{m: m, sqlDB: sqlDB, cfg: cfg}, nil
}

// Up applies every pending migration and returns the resulting schema
// version. An already current schema is not an error.
func (mg *Migrator) Up() (uint, error) {
	if err := mg.waitForStore(); err != nil {
		return 0, err
	}

	if version, dirty, err := mg.Version(); err == nil {
		log.Printf("📋 Board schema at version %d (dirty: %v)", version, dirty)
	} else if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("📋 Empty store, applying full board schema")
	}

	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("✅ Board schema already current")
			version, _, _ := mg.Version()
			return version, nil
		}
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	log.Printf("✅ Board schema migrated to version %d", version)
	return version, nil
}

// Down rolls back the most recent migration.
func (mg *Migrator) Down() error {
	log.Println("⬇️  Rolling back last board schema migration...")
	if err := mg.m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	log.Println("✅ Migration rolled back")
	return nil
}

func (mg *Migrator) Version() (uint, bool, error) {
	return mg.m.Version()
}

func (mg *Migrator) waitForStore() error {
	deadline := time.Now().Add(mg.cfg.ReadyWait)
	for {
		err := mg.sqlDB.Ping()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("store not ready after %s: %w", mg.cfg.ReadyWait, err)
		}
		log.Printf("⏳ Board store not ready, retrying: %v", err)
		time.Sleep(time.Second)
	}
}

// RunMigrations is the boot-time entry point: build a migrator, bring the
// schema current, discard the migrator.
func RunMigrations(db *gorm.DB, cfg *MigrationConfig) error {
	mg, err := NewMigrator(db, cfg)
	if err != nil {
		return err
	}
	_, err = mg.Up()
	return err
}
