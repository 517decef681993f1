package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

// Service is the single write path for the accounts and account_tags
// tables. Every method runs inside the caller's transaction.
type Service struct {
	log *zap.Logger
	now func() time.Time
}

// NewService creates an account registry.
func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, now: time.Now}
}

// SetClock overrides the time source used for create/update timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams holds parameters for creating an account.
type CreateParams struct {
	Code               int
	Name               string
	NormalBalance      model.NormalBalance
	ControlAccountCode int // 0 = top-level
}

const (
	accountColumns  = `code, name, normal_balance, balance, is_active, is_posting_account, control_account_code, create_time, update_time`
	accountColumnsA = `a.code, a.name, a.normal_balance, a.balance, a.is_active, a.is_posting_account, a.control_account_code, a.create_time, a.update_time`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(r rowScanner) (model.Account, error) {
	var (
		a                  model.Account
		normal             int
		active, posting    bool
		control            sql.NullInt64
		createMs, updateMs int64
	)
	if err := r.Scan(&a.Code, &a.Name, &normal, &a.Balance, &active, &posting, &control, &createMs, &updateMs); err != nil {
		return model.Account{}, err
	}
	a.NormalBalance = model.NormalBalance(normal)
	a.IsActive = active
	a.IsPostingAccount = posting
	a.ControlAccountCode = int(control.Int64)
	a.CreateTime = store.FromMillis(createMs)
	a.UpdateTime = store.FromMillis(updateMs)
	return a, nil
}

// Get returns an account by code.
func (s *Service) Get(ctx context.Context, tx *store.Tx, code int) (model.Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ledgererr.ErrAccountNotFound.With("%d", code)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("reading account %d: %w", code, err)
	}
	return a, nil
}

// Exists reports whether an account code exists.
func (s *Service) Exists(ctx context.Context, tx *store.Tx, code int) (bool, error) {
	n, err := tx.Count(ctx, `SELECT COUNT(*) FROM accounts WHERE code = ?`, code)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all accounts ordered by code.
func (s *Service) List(ctx context.Context, tx *store.Tx) ([]model.Account, error) {
	return s.query(ctx, tx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
}

// Children returns the accounts whose control account is code.
func (s *Service) Children(ctx context.Context, tx *store.Tx, code int) ([]model.Account, error) {
	return s.query(ctx, tx, `SELECT `+accountColumns+` FROM accounts WHERE control_account_code = ? ORDER BY code`, code)
}

func (s *Service) query(ctx context.Context, tx *store.Tx, stmt string, args ...any) ([]model.Account, error) {
	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var result []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Create inserts a new posting account. When ControlAccountCode is set the
// target must be untouched (zero balance, no posted entries) and becomes a
// non-posting control account in the same transaction.
func (s *Service) Create(ctx context.Context, tx *store.Tx, p CreateParams) (model.Account, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Code <= 0 {
		return model.Account{}, ledgererr.ErrInvalidAccount.With("code must be positive, got %d", p.Code)
	}
	if p.Name == "" {
		return model.Account{}, ledgererr.ErrInvalidAccount.With("account %d has no name", p.Code)
	}
	if !p.NormalBalance.Valid() {
		return model.Account{}, ledgererr.ErrInvalidAccount.With("account %d has normal balance %d", p.Code, p.NormalBalance)
	}

	exists, err := s.Exists(ctx, tx, p.Code)
	if err != nil {
		return model.Account{}, err
	}
	if exists {
		return model.Account{}, ledgererr.ErrDuplicateAccount.With("%d", p.Code)
	}

	if p.ControlAccountCode != 0 {
		if p.ControlAccountCode == p.Code {
			return model.Account{}, ledgererr.ErrControlAccountCycle.With("account %d cannot control itself", p.Code)
		}
		if err := s.guardControlTarget(ctx, tx, p.ControlAccountCode); err != nil {
			return model.Account{}, err
		}
	}

	now := store.Millis(s.now())
	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (code, name, normal_balance, balance, is_active, is_posting_account, control_account_code, create_time, update_time)
		VALUES (?, ?, ?, 0, 1, 1, ?, ?, ?)`,
		p.Code, p.Name, int(p.NormalBalance), store.NullInt(int64(p.ControlAccountCode)), now, now)
	if err != nil {
		return model.Account{}, fmt.Errorf("inserting account %d: %w", p.Code, err)
	}

	if p.ControlAccountCode != 0 {
		if err := s.refreshPostingFlag(ctx, tx, p.ControlAccountCode); err != nil {
			return model.Account{}, err
		}
	}

	s.log.Info("account created",
		zap.Int("code", p.Code),
		zap.String("name", p.Name),
		zap.Int("control_account_code", p.ControlAccountCode),
	)
	return s.Get(ctx, tx, p.Code)
}

// PostedEntryCount returns the number of posted journal entries with at
// least one line on the account.
func (s *Service) PostedEntryCount(ctx context.Context, tx *store.Tx, code int) (int64, error) {
	return tx.Count(ctx, `
		SELECT COUNT(DISTINCT e.ref)
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.ref = l.journal_entry_ref
		WHERE l.account_code = ? AND e.post_time IS NOT NULL`, code)
}

// guardControlTarget rejects a control relationship whose target already
// carries activity, which would hide that activity inside the hierarchy.
func (s *Service) guardControlTarget(ctx context.Context, tx *store.Tx, target int) error {
	parent, err := s.Get(ctx, tx, target)
	if err != nil {
		return err
	}
	posted, err := s.PostedEntryCount(ctx, tx, target)
	if err != nil {
		return err
	}
	if parent.Balance != 0 || posted > 0 {
		return ledgererr.ErrControlAccountHasActivity.With("account %d has %d posted entries and balance %d", target, posted, parent.Balance)
	}
	return nil
}

// refreshPostingFlag recomputes is_posting_account for code from its
// current children. It is the only statement that writes the flag.
func (s *Service) refreshPostingFlag(ctx context.Context, tx *store.Tx, code int) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts
		SET is_posting_account = NOT EXISTS (SELECT 1 FROM accounts c WHERE c.control_account_code = accounts.code),
		    update_time = ?
		WHERE code = ?`, store.Millis(s.now()), code)
	if err != nil {
		return fmt.Errorf("updating posting flag of %d: %w", code, err)
	}
	return nil
}

// SetControlAccount moves code under controlCode (0 detaches it). The new
// control account must be untouched; the previous one reverts to a posting
// account if code was its last child.
func (s *Service) SetControlAccount(ctx context.Context, tx *store.Tx, code, controlCode int) error {
	acct, err := s.Get(ctx, tx, code)
	if err != nil {
		return err
	}
	if acct.ControlAccountCode == controlCode {
		return nil
	}

	if controlCode != 0 {
		if err := s.guardCycle(ctx, tx, code, controlCode); err != nil {
			return err
		}
		if err := s.guardControlTarget(ctx, tx, controlCode); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `UPDATE accounts SET control_account_code = ?, update_time = ? WHERE code = ?`,
		store.NullInt(int64(controlCode)), store.Millis(s.now()), code)
	if err != nil {
		return fmt.Errorf("updating control account of %d: %w", code, err)
	}

	if acct.ControlAccountCode != 0 {
		if err := s.refreshPostingFlag(ctx, tx, acct.ControlAccountCode); err != nil {
			return err
		}
	}
	if controlCode != 0 {
		if err := s.refreshPostingFlag(ctx, tx, controlCode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) guardCycle(ctx context.Context, tx *store.Tx, code, controlCode int) error {
	seen := make(map[int]bool)
	for c := controlCode; c != 0; {
		if c == code {
			return ledgererr.ErrControlAccountCycle.With("account %d is an ancestor of %d", code, controlCode)
		}
		if seen[c] {
			break
		}
		seen[c] = true
		a, err := s.Get(ctx, tx, c)
		if err != nil {
			return err
		}
		c = a.ControlAccountCode
	}
	return nil
}

// Rename changes an account's display name.
func (s *Service) Rename(ctx context.Context, tx *store.Tx, code int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledgererr.ErrInvalidAccount.With("account %d has no name", code)
	}
	return s.updateColumn(ctx, tx, code, "name", name)
}

// SetActive activates or deactivates an account. Inactive accounts cannot
// receive new journal lines.
func (s *Service) SetActive(ctx context.Context, tx *store.Tx, code int, active bool) error {
	return s.updateColumn(ctx, tx, code, "is_active", active)
}

func (s *Service) updateColumn(ctx context.Context, tx *store.Tx, code int, column string, value any) error {
	if _, err := s.Get(ctx, tx, code); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `UPDATE accounts SET `+column+` = ?, update_time = ? WHERE code = ?`, value, store.Millis(s.now()), code)
	if err != nil {
		return fmt.Errorf("updating %s of %d: %w", column, code, err)
	}
	return nil
}

// Delete removes an account that nothing references. Its tags go with it,
// and its control account reverts to posting if it was the last child.
func (s *Service) Delete(ctx context.Context, tx *store.Tx, code int) error {
	acct, err := s.Get(ctx, tx, code)
	if err != nil {
		return err
	}

	children, err := tx.Count(ctx, `SELECT COUNT(*) FROM accounts WHERE control_account_code = ?`, code)
	if err != nil {
		return err
	}
	if children > 0 {
		return ledgererr.ErrAccountHasChildren.With("account %d has %d child accounts", code, children)
	}

	refs := []struct {
		what string
		stmt string
	}{
		{"journal lines", `SELECT COUNT(*) FROM journal_entry_lines WHERE account_code = ?`},
		{"reconciliation sessions", `SELECT COUNT(*) FROM reconciliation_sessions WHERE account_code = ?`},
		{"cash counts", `SELECT COUNT(*) FROM cash_count_history WHERE account_code = ?`},
	}
	for _, ref := range refs {
		n, err := tx.Count(ctx, ref.stmt, code)
		if err != nil {
			return err
		}
		if n > 0 {
			return ledgererr.ErrAccountInUse.With("account %d is referenced by %d %s", code, n, ref.what)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM account_tags WHERE account_code = ?`, code); err != nil {
		return fmt.Errorf("deleting tags of %d: %w", code, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE code = ?`, code); err != nil {
		return fmt.Errorf("deleting account %d: %w", code, err)
	}

	if acct.ControlAccountCode != 0 {
		if err := s.refreshPostingFlag(ctx, tx, acct.ControlAccountCode); err != nil {
			return err
		}
	}

	s.log.Info("account deleted", zap.Int("code", code))
	return nil
}
