package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/importer"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/reconcile"
	"github.com/cleared-dev/tillbook/internal/store"
)

func newReconcileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile",
		Aliases: []string{"rec"},
		Short:   "Reconcile accounts against external statements",
	}
	cmd.AddCommand(
		newReconcileListCommand(a),
		newReconcileNewCommand(a),
		newReconcileShowCommand(a),
		newReconcileItemCommand(a),
		newReconcileRemoveItemCommand(a),
		newReconcileImportCommand(a),
		newReconcileCompleteCommand(a),
		newReconcileDeleteCommand(a),
	)
	return cmd
}

func newReconcileListCommand(a *app) *cobra.Command {
	var account int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reconciliation sessions",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				sessions, err := a.reconcile.List(ctx, tx, account)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "ACCOUNT", "BEGIN", "END", "STATE", "CLOSING", "DISCREPANCY")
				for _, rs := range sessions {
					row(tw, rs.ID, rs.AccountCode, day(rs.StatementBeginTime), day(rs.StatementEndTime), rs.State,
						amount(rs.StatementClosingBalance), amount(rs.Discrepancy))
				}
				return tw.Flush()
			})
		}),
	}
	cmd.Flags().IntVar(&account, "account", 0, "only sessions for this account")
	return cmd
}

func newReconcileNewCommand(a *app) *cobra.Command {
	var begin, end, opening, closing, ref, note string
	cmd := &cobra.Command{
		Use:   "new <account>",
		Short: "Start a draft reconciliation session",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			p := reconcile.CreateParams{AccountCode: code, Reference: ref, Note: note}
			if p.BeginTime, err = parseTime(begin); err != nil {
				return err
			}
			if p.EndTime, err = parseTime(end); err != nil {
				return err
			}
			if p.OpeningBalance, err = money.Parse(opening); err != nil {
				return err
			}
			if p.ClosingBalance, err = money.Parse(closing); err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				rs, err := a.reconcile.Create(ctx, tx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started reconciliation %d for account %d\n", rs.ID, rs.AccountCode)
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&begin, "begin", "", "statement period start (required)")
	cmd.Flags().StringVar(&end, "end", "", "statement period end, exclusive (required)")
	cmd.Flags().StringVar(&opening, "opening", "0", "statement opening balance")
	cmd.Flags().StringVar(&closing, "closing", "", "statement closing balance (required)")
	cmd.Flags().StringVar(&ref, "ref", "", "statement reference")
	cmd.Flags().StringVar(&note, "note", "", "note")
	for _, f := range []string{"begin", "end", "closing"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newReconcileShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session and its statement items",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				rs, err := a.reconcile.Get(ctx, tx, sessionID)
				if err != nil {
					return err
				}
				items, err := a.reconcile.Items(ctx, tx, sessionID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Reconciliation %d: account %d, %s to %s, %s\n",
					rs.ID, rs.AccountCode, day(rs.StatementBeginTime), day(rs.StatementEndTime), rs.State)
				fmt.Fprintf(out, "  statement: %s -> %s\n", amount(rs.StatementOpeningBalance), amount(rs.StatementClosingBalance))
				fmt.Fprintf(out, "  internal:  %s -> %s\n", amount(rs.InternalOpeningBalance), amount(rs.InternalClosingBalance))
				fmt.Fprintf(out, "  unmatched: %s  discrepancy: %s  adjustment: %s\n",
					amount(rs.UnmatchedTotal), amount(rs.Discrepancy), entryRef(rs.AdjustmentJournalEntryRef))

				tw := newTable(out, "ITEM", "DATE", "AMOUNT", "STATUS", "MATCH", "REFERENCE", "DESCRIPTION")
				for _, it := range items {
					row(tw, it.ID, day(it.ItemTime), amount(it.Amount), it.Status, entryRef(it.MatchedJournalEntryRef), it.Reference, it.Description)
				}
				return tw.Flush()
			})
		}),
	}
}

func newReconcileItemCommand(a *app) *cobra.Command {
	var p struct{ when, amt, desc, ref string }
	cmd := &cobra.Command{
		Use:   "item <id>",
		Short: "Add a statement item to a draft session",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			item := reconcile.ItemParams{Description: p.desc, Reference: p.ref}
			if item.ItemTime, err = parseTime(p.when); err != nil {
				return err
			}
			if item.Amount, err = money.Parse(p.amt); err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				it, err := a.reconcile.AddItem(ctx, tx, sessionID, item)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %d\n", it.ID)
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&p.when, "time", "", "item date (required)")
	cmd.Flags().StringVar(&p.amt, "amount", "", "signed amount, positive grows the account (required)")
	cmd.Flags().StringVar(&p.desc, "desc", "", "description")
	cmd.Flags().StringVar(&p.ref, "ref", "", "journal entry reference to match, e.g. JE-000042")
	_ = cmd.MarkFlagRequired("time")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newReconcileRemoveItemCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rmitem <item-id>",
		Short: "Remove a statement item from a draft session",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.reconcile.RemoveItem(ctx, tx, itemID)
			})
		}),
	}
}

func newReconcileImportCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <id> [file]",
		Short: "Import statement items from a bank CSV",
		Long: "Import statement items from a bank CSV. Without a file every CSV in the\n" +
			"project's import/ directory is read and moved to import/processed/.",
		Args: cobra.RangeArgs(1, 2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}

			var files []string
			if len(args) == 2 {
				files = []string{args[1]}
			} else {
				found, err := importer.Scan(filepath.Join(a.dir, importDir))
				if err != nil {
					return err
				}
				for _, fi := range found {
					files = append(files, fi.Path)
				}
			}
			if len(files) == 0 {
				return fmt.Errorf("no statement files to import")
			}

			err = a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				rs, err := a.reconcile.Get(ctx, tx, sessionID)
				if err != nil {
					return err
				}
				acct, err := a.accounts.Get(ctx, tx, rs.AccountCode)
				if err != nil {
					return err
				}
				parser, err := a.parserFor(format, rs.AccountCode)
				if err != nil {
					return err
				}
				for _, path := range files {
					txns, err := readStatement(parser, path)
					if err != nil {
						return err
					}
					params, err := importer.ToItems(txns, acct.NormalBalance)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					n, err := a.reconcile.AddItems(ctx, tx, sessionID, params)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					a.log.Info("statement imported", zap.String("file", path), zap.Int("items", n))
					fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items from %s\n", n, filepath.Base(path))
				}
				return nil
			})
			if err != nil || len(args) == 2 {
				return err
			}
			for _, path := range files {
				if err := importer.MarkProcessed(filepath.Dir(path), filepath.Base(path)); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&format, "format", "", "statement format (default from bank_accounts, else generic)")
	return cmd
}

// parserFor picks the explicit format, then the configured bank account
// format, then the generic parser.
func (a *app) parserFor(format string, accountCode int) (importer.Parser, error) {
	if format == "" {
		if b, ok := a.cfg.BankAccount(accountCode); ok && b.Format != "" {
			format = b.Format
		} else {
			format = "generic"
		}
	}
	p := importer.DefaultRegistry().Get(format)
	if p == nil {
		return nil, fmt.Errorf("unknown statement format %q", format)
	}
	return p, nil
}

func readStatement(p importer.Parser, path string) ([]model.BankTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	txns, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txns, nil
}

func newReconcileCompleteCommand(a *app) *cobra.Command {
	var (
		tolerance string
		adjust    bool
	)
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Match statement items and complete the session",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			p := reconcile.CompleteParams{PostAdjustment: adjust}
			if tolerance != "" {
				p.Tolerance, err = money.Parse(tolerance)
			} else {
				p.Tolerance, err = a.cfg.ToleranceCents()
			}
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				rs, err := a.reconcile.Complete(ctx, tx, sessionID, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed reconciliation %d: unmatched %s, discrepancy %s, adjustment %s\n",
					rs.ID, amount(rs.UnmatchedTotal), amount(rs.Discrepancy), entryRef(rs.AdjustmentJournalEntryRef))
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&tolerance, "tolerance", "", "largest amount difference still matched (default from config)")
	cmd.Flags().BoolVar(&adjust, "adjust", false, "post an adjustment entry for the discrepancy")
	return cmd
}

func newReconcileDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft session",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.reconcile.Delete(ctx, tx, sessionID)
			})
		}),
	}
}
