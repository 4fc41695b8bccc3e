package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cablepark/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const busyTimeoutMillis = 5000

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewDB opens the schedule database. Every transaction starts with
// BEGIN IMMEDIATE, so concurrent writers queue on the write lock instead of
// failing at commit.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMillis)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// each connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT NOT NULL UNIQUE,
            customer_name TEXT NOT NULL,
            customer_email TEXT NOT NULL,
            customer_phone TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            equipment_rental BOOLEAN NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS slots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            start_unix INTEGER NOT NULL UNIQUE,
            end_unix INTEGER NOT NULL,
            price TEXT NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('available', 'blocked', 'booked')),
            booking_reference TEXT REFERENCES bookings(reference),
            block_reason TEXT NOT NULL DEFAULT '',
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            CHECK (end_unix - start_unix = 1800),
            CHECK ((status = 'booked') = (booking_reference IS NOT NULL))
        )`,
		`CREATE TABLE IF NOT EXISTS operating_hours (
            day INTEGER PRIMARY KEY CHECK (day BETWEEN 0 AND 6),
            open_minute INTEGER NOT NULL,
            close_minute INTEGER NOT NULL,
            closed BOOLEAN NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS schedule_revision (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            value INTEGER NOT NULL
        )`,
		`INSERT OR IGNORE INTO schedule_revision (id, value) VALUES (1, 0)`,
		`CREATE TABLE IF NOT EXISTS reference_counters (
            period TEXT PRIMARY KEY,
            value INTEGER NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_slots_reference ON slots(booking_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_status ON slots(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Revision returns the schedule revision. It grows with every committed
// change to slots, bookings or operating hours.
func (db *DB) Revision(ctx context.Context) (int64, error) {
	return revision(ctx, db.DB)
}

func revision(ctx context.Context, q querier) (int64, error) {
	var value int64
	if err := q.QueryRowContext(ctx, `SELECT value FROM schedule_revision WHERE id = 1`).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read schedule revision: %w", err)
	}
	return value, nil
}

func bumpRevision(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, `UPDATE schedule_revision SET value = value + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to bump schedule revision: %w", err)
	}
	return nil
}

// Atomically runs fn inside one write transaction. Nothing fn wrote is kept
// unless fn returns nil and the commit succeeds.
func (db *DB) Atomically(ctx context.Context, fn func(tx domain.SlotTx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	tx := &slotTx{tx: sqlTx, now: time.Now().UTC()}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		if err := bumpRevision(ctx, sqlTx); err != nil {
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ domain.SlotStore = (*DB)(nil)
