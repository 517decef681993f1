package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

// AddTag labels an account. Unique tags may be held by one account only.
func (s *Service) AddTag(ctx context.Context, tx *store.Tx, code int, tag model.Tag) error {
	if !tag.Valid() {
		return ledgererr.ErrUnknownTag.With("%q", tag)
	}
	if _, err := s.Get(ctx, tx, code); err != nil {
		return err
	}

	has, err := s.HasTag(ctx, tx, code, tag)
	if err != nil {
		return err
	}
	if has {
		return ledgererr.ErrDuplicateTag.With("account %d already has %q", code, tag)
	}

	if tag.Unique() {
		var holder int
		err := tx.QueryRow(ctx, `SELECT account_code FROM account_tags WHERE tag = ? LIMIT 1`, string(tag)).Scan(&holder)
		switch {
		case err == nil:
			return ledgererr.ErrDuplicateUniqueTag.With("%q is already assigned to account %d", tag, holder)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking holder of %q: %w", tag, err)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO account_tags (account_code, tag) VALUES (?, ?)`, code, string(tag)); err != nil {
		return fmt.Errorf("tagging account %d: %w", code, err)
	}
	s.log.Debug("account tagged", zap.Int("code", code), zap.String("tag", string(tag)))
	return nil
}

// RemoveTag removes a tag from an account. Removing an absent tag is a no-op.
func (s *Service) RemoveTag(ctx context.Context, tx *store.Tx, code int, tag model.Tag) error {
	if _, err := s.Get(ctx, tx, code); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM account_tags WHERE account_code = ? AND tag = ?`, code, string(tag)); err != nil {
		return fmt.Errorf("untagging account %d: %w", code, err)
	}
	return nil
}

// UpdateTag always fails: tag rows are immutable and must be replaced with
// RemoveTag followed by AddTag.
func (s *Service) UpdateTag(_ context.Context, _ *store.Tx, code int, from, to model.Tag) error {
	return ledgererr.ErrImmutableTag.With("account %d: %q -> %q", code, from, to)
}

// HasTag reports whether an account carries a tag.
func (s *Service) HasTag(ctx context.Context, tx *store.Tx, code int, tag model.Tag) (bool, error) {
	n, err := tx.Count(ctx, `SELECT COUNT(*) FROM account_tags WHERE account_code = ? AND tag = ?`, code, string(tag))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Tags returns the tags of an account in alphabetical order.
func (s *Service) Tags(ctx context.Context, tx *store.Tx, code int) ([]model.Tag, error) {
	rows, err := tx.Query(ctx, `SELECT tag FROM account_tags WHERE account_code = ? ORDER BY tag`, code)
	if err != nil {
		return nil, fmt.Errorf("listing tags of %d: %w", code, err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, model.Tag(tag))
	}
	return tags, rows.Err()
}

// AccountsWithTag returns every account carrying tag, ordered by code.
func (s *Service) AccountsWithTag(ctx context.Context, tx *store.Tx, tag model.Tag) ([]model.Account, error) {
	return s.query(ctx, tx, `
		SELECT `+accountColumnsA+`
		FROM accounts a
		JOIN account_tags t ON t.account_code = a.code
		WHERE t.tag = ?
		ORDER BY a.code`, string(tag))
}

// AccountWithTag returns the account holding a unique tag.
func (s *Service) AccountWithTag(ctx context.Context, tx *store.Tx, tag model.Tag) (model.Account, error) {
	accts, err := s.AccountsWithTag(ctx, tx, tag)
	if err != nil {
		return model.Account{}, err
	}
	if len(accts) == 0 {
		return model.Account{}, ledgererr.ErrTaggedAccountMissing.With("%q", tag)
	}
	return accts[0], nil
}
