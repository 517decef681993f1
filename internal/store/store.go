// Package store owns the SQLite database behind the ledger: connection
// pools, schema migrations and the two public primitives, Execute and Begin.
//
// Writes go through a single-connection pool whose transactions start with
// BEGIN IMMEDIATE, so every write transaction holds the database write lock
// from its first statement and writers are serialized. Reads use a separate
// query_only pool; in WAL mode each read transaction sees a consistent
// snapshot of committed data and never observes a half-applied posting.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

const busyTimeoutMillis = 5000

// DB is an open ledger database.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string
	log    *zap.Logger
}

// Open opens (creating if needed) the ledger database at path and migrates
// the schema to the latest version.
func Open(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	writer, err := sql.Open("sqlite", writerDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrateUp(writer, log); err != nil {
		writer.Close()
		return nil, err
	}

	reader, err := sql.Open("sqlite", readerDSN(path))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("opening read pool: %w", err)
	}

	log.Debug("database opened", zap.String("path", path))
	return &DB{writer: writer, reader: reader, path: path, log: log}, nil
}

func writerDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, busyTimeoutMillis)
}

func readerDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=query_only(1)",
		path, busyTimeoutMillis)
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes both connection pools.
func (db *DB) Close() error {
	rerr := db.reader.Close()
	if err := db.writer.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	if rerr != nil {
		return fmt.Errorf("closing read pool: %w", rerr)
	}
	return nil
}

// Execute runs a single read statement outside any caller transaction and
// returns its rows. Mutations must go through the ledger command services.
func (db *DB) Execute(ctx context.Context, stmt string, args ...any) (*RowSet, error) {
	if !IsReadStatement(stmt) {
		return nil, errInvalidStatement(stmt)
	}
	rows, err := db.reader.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return collect(rows)
}

// Begin starts a transaction. Write transactions take the database write
// lock immediately; read transactions see a snapshot of committed data.
func (db *DB) Begin(ctx context.Context, mode Mode) (*Tx, error) {
	pool := db.reader
	if mode == ModeWrite {
		pool = db.writer
	}
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning %s transaction: %w", mode, err)
	}
	return &Tx{tx: tx, mode: mode}, nil
}

// Update runs fn inside a write transaction. If fn returns an error or
// panics the transaction is rolled back and no side effect survives;
// otherwise it is committed.
func (db *DB) Update(ctx context.Context, fn func(*Tx) error) error {
	return db.run(ctx, ModeWrite, fn)
}

// View runs fn inside a read transaction.
func (db *DB) View(ctx context.Context, fn func(*Tx) error) error {
	return db.run(ctx, ModeRead, fn)
}

func (db *DB) run(ctx context.Context, mode Mode, fn func(*Tx) error) error {
	tx, err := db.Begin(ctx, mode)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		db.log.Debug("transaction rolled back", zap.Stringer("mode", mode), zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
