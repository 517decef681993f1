package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

const itemColumns = `id, session_id, item_time, description, reference, amount, status, matched_journal_entry_ref`

func scanItem(r interface{ Scan(...any) error }) (model.StatementItem, error) {
	var (
		it         model.StatementItem
		itemMs     int64
		status     string
		matchedRef sql.NullInt64
	)
	if err := r.Scan(&it.ID, &it.SessionID, &itemMs, &it.Description, &it.Reference, &it.Amount, &status, &matchedRef); err != nil {
		return model.StatementItem{}, err
	}
	it.ItemTime = store.FromMillis(itemMs)
	it.Status = model.StatementItemStatus(status)
	it.MatchedJournalEntryRef = matchedRef.Int64
	return it, nil
}

func validItem(p ItemParams) error {
	if p.Amount == 0 {
		return ledgererr.ErrInvalidItem.With("amount is zero")
	}
	if p.ItemTime.IsZero() {
		return ledgererr.ErrInvalidItem.With("missing date")
	}
	return nil
}

// Items returns the statement items of a session in statement order.
func (s *Service) Items(ctx context.Context, tx *store.Tx, sessionID int64) ([]model.StatementItem, error) {
	rows, err := tx.Query(ctx, `SELECT `+itemColumns+` FROM reconciliation_statement_items WHERE session_id = ? ORDER BY item_time, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing items of %d: %w", sessionID, err)
	}
	defer rows.Close()

	var items []model.StatementItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Service) item(ctx context.Context, tx *store.Tx, itemID int64) (model.StatementItem, error) {
	it, err := scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM reconciliation_statement_items WHERE id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.StatementItem{}, ledgererr.ErrStatementItemNotFound.With("%d", itemID)
	}
	if err != nil {
		return model.StatementItem{}, fmt.Errorf("reading item %d: %w", itemID, err)
	}
	return it, nil
}

// AddItem appends a statement item to a draft session.
func (s *Service) AddItem(ctx context.Context, tx *store.Tx, sessionID int64, p ItemParams) (model.StatementItem, error) {
	if _, err := s.draft(ctx, tx, sessionID); err != nil {
		return model.StatementItem{}, err
	}
	if err := validItem(p); err != nil {
		return model.StatementItem{}, err
	}
	itemID, err := tx.Insert(ctx, `
		INSERT INTO reconciliation_statement_items (session_id, item_time, description, reference, amount, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, store.Millis(p.ItemTime), p.Description, p.Reference, p.Amount, string(model.ItemPending))
	if err != nil {
		return model.StatementItem{}, fmt.Errorf("inserting item: %w", err)
	}
	return s.item(ctx, tx, itemID)
}

// AddItems appends several statement items, for example from a bank import.
func (s *Service) AddItems(ctx context.Context, tx *store.Tx, sessionID int64, ps []ItemParams) (int, error) {
	for i, p := range ps {
		if _, err := s.AddItem(ctx, tx, sessionID, p); err != nil {
			return i, fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return len(ps), nil
}

// UpdateItem changes a statement item of a draft session.
func (s *Service) UpdateItem(ctx context.Context, tx *store.Tx, itemID int64, p ItemParams) error {
	it, err := s.item(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.draft(ctx, tx, it.SessionID); err != nil {
		return err
	}
	if err := validItem(p); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE reconciliation_statement_items
		SET item_time = ?, description = ?, reference = ?, amount = ?, status = ?, matched_journal_entry_ref = NULL
		WHERE id = ?`,
		store.Millis(p.ItemTime), p.Description, p.Reference, p.Amount, string(model.ItemPending), itemID)
	if err != nil {
		return fmt.Errorf("updating item %d: %w", itemID, err)
	}
	return nil
}

// RemoveItem deletes a statement item of a draft session.
func (s *Service) RemoveItem(ctx context.Context, tx *store.Tx, itemID int64) error {
	it, err := s.item(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.draft(ctx, tx, it.SessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reconciliation_statement_items WHERE id = ?`, itemID); err != nil {
		return fmt.Errorf("deleting item %d: %w", itemID, err)
	}
	return nil
}
