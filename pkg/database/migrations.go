package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations
type Migrator struct {
	path   string
	logger *zap.Logger
}

// NewMigrator creates a migrator for the database file at path
func NewMigrator(path string, logger *zap.Logger) *Migrator {
	return &Migrator{
		path:   path,
		logger: logger,
	}
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	m.logger.Info("Starting database migrations", zap.String("path", m.path))
	return m.run(func(mg *migrate.Migrate) error {
		return mg.Up()
	})
}

// Down reverts every applied migration
func (m *Migrator) Down() error {
	m.logger.Info("Reverting database migrations", zap.String("path", m.path))
	return m.run(func(mg *migrate.Migrate) error {
		return mg.Down()
	})
}

// Version reports the applied schema version
func (m *Migrator) Version() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(func(mg *migrate.Migrate) error {
		var err error
		version, dirty, err = mg.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

// run uses its own connection; closing the migrate driver closes it too
func (m *Migrator) run(fn func(mg *migrate.Migrate) error) error {
	migrateDB, err := sql.Open("sqlite3", DSN(m.path))
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite3.WithInstance(migrateDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer mg.Close()
	mg.Log = &migrateLogger{logger: m.logger}

	if err := fn(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	m.logger.Info("Database migrations completed")
	return nil
}

// migrateLogger adapts zap to migrate.Logger
type migrateLogger struct {
	logger *zap.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Sugar().Debugf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
