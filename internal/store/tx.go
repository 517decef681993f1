package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
)

// Mode selects a read or write transaction.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// Tx is a caller-scoped transaction. The ledger command services issue all
// their guard queries and writes through one Tx so a failed guard leaves no
// partial write behind.
type Tx struct {
	tx   *sql.Tx
	mode Mode
	done bool
}

// Mode returns the transaction mode.
func (t *Tx) Mode() Mode {
	return t.mode
}

// Execute runs a read statement inside the transaction and returns its rows.
func (t *Tx) Execute(ctx context.Context, stmt string, args ...any) (*RowSet, error) {
	if !IsReadStatement(stmt) {
		return nil, errInvalidStatement(stmt)
	}
	rows, err := t.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Exec runs a mutating statement. It is reserved for the command services,
// which run their guards before calling it.
func (t *Tx) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	if t.done {
		return nil, ledgererr.ErrTransactionDone
	}
	if t.mode != ModeWrite {
		return nil, ledgererr.ErrReadOnlyTransaction
	}
	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		if guard := triggerError(err); guard != nil {
			return nil, guard
		}
		return nil, fmt.Errorf("exec: %w", err)
	}
	return res, nil
}

// Insert runs an INSERT and returns the new row id.
func (t *Tx) Insert(ctx context.Context, stmt string, args ...any) (int64, error) {
	res, err := t.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}
	return id, nil
}

// Query runs a statement that returns rows.
func (t *Tx) Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	if t.done {
		return nil, ledgererr.ErrTransactionDone
	}
	rows, err := t.tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// Row is the result of QueryRow. Its error, if any, is deferred to Scan.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the row's columns into dest. A missing row yields
// sql.ErrNoRows.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// QueryRow runs a statement expected to return at most one row.
func (t *Tx) QueryRow(ctx context.Context, stmt string, args ...any) *Row {
	if t.done {
		return &Row{err: ledgererr.ErrTransactionDone}
	}
	return &Row{row: t.tx.QueryRowContext(ctx, stmt, args...)}
}

// Count runs a COUNT-style query and returns its single integer.
func (t *Tx) Count(ctx context.Context, stmt string, args ...any) (int64, error) {
	if t.done {
		return 0, ledgererr.ErrTransactionDone
	}
	var n int64
	if err := t.tx.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return ledgererr.ErrTransactionDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op so it can be deferred unconditionally.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// triggerAborts maps the RAISE messages of the schema's immutability
// triggers to their ledger errors.
var triggerAborts = []*ledgererr.Error{
	ledgererr.ErrPostedEntryImmutable,
	ledgererr.ErrImmutableTag,
}

func triggerError(err error) error {
	msg := err.Error()
	for _, e := range triggerAborts {
		if strings.Contains(msg, e.Code) {
			return e.With("rejected by schema trigger")
		}
	}
	return nil
}
