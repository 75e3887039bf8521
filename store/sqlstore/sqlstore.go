/*
Package sqlstore provides a SQL-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore and reference.Source over sqlx. The same
  queries run against SQLite (mattn/go-sqlite3) and PostgreSQL (lib/pq);
  placeholders are rebound per driver and the schema is rendered per
  dialect.

INTERFACES IMPLEMENTED:
  generic.TxStore:  teachers, calculations, leave records, transfers, audit
  reference.Source: the five rate tables

KEY TABLES:
  teachers:               teacher profiles
  salary_calculations:    append-only payroll history
  teacher_vacations:      leave records and their status
  vacation_days_transfer: carry-over of unused days
  audit_log:              ledger mutations
  position_coefficients, academic_degree_bonuses, experience_bonuses,
  qualification_bonuses, vacation_days: reference tables

CONCURRENCY:
  SQLite allows a single writer. WithTx takes a process-wide mutex and the
  connection string asks for immediate transactions, so two balance checks
  never interleave. PostgreSQL transactions run SERIALIZABLE instead.

USAGE:
  store, err := sqlstore.Open(ctx, cfg.Database)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on Open. Every statement is CREATE ... IF NOT
  EXISTS so reopening an existing database is a no-op.

SEE ALSO:
  - generic/store.go: interface definitions
  - generic/store/memory.go: in-memory implementation for testing
  - queries.go: the generic.Store methods
  - reference.go: rate table reads and seeding
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
)

// Store implements generic.TxStore over a sqlx database.
type Store struct {
	*queries
	db *sqlx.DB
	mu sync.Mutex
}

var _ generic.TxStore = (*Store)(nil)

// Open connects to the database, checks the connection and migrates the
// schema. Use ":memory:" with sqlite3 for a throwaway database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver, dsn := cfg.Driver, cfg.DSN
	if driver == config.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == config.DriverSQLite {
		// Every connection to :memory: is its own database.
		if strings.HasPrefix(dsn, ":memory:") {
			db.SetMaxOpenConns(1)
			db.SetConnMaxLifetime(0)
		}
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewFromDB(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func sqliteDSN(dsn string) string {
	const params = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// NewFromDB wraps an open database. The schema is not touched; call Migrate.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db, queries: &queries{q: db, driver: db.DriverName()}}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(renderSchema(s.driver)) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Reset drops every teacher, calculation, leave record, transfer and audit
// entry and restarts the id sequences. Reference tables are kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.driver == config.DriverPostgres {
		_, err := s.db.ExecContext(ctx,
			"TRUNCATE audit_log, vacation_days_transfer, teacher_vacations, salary_calculations, teachers RESTART IDENTITY CASCADE")
		if err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
		return nil
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"audit_log", "vacation_days_transfer", "teacher_vacations", "salary_calculations", "teachers"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
			return fmt.Errorf("failed to reset sequences: %w", err)
		}
		return nil
	})
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. fn must only use the
// Store it is given; the outer Store may be blocked until fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	if s.driver != config.DriverPostgres {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&queries{q: tx, driver: s.driver})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var opts *sql.TxOptions
	if s.driver == config.DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
