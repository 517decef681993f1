package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tillbook/internal/cashcount"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/store"
)

func newCashCountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cashcount",
		Aliases: []string{"count"},
		Short:   "Physical cash counts",
	}
	cmd.AddCommand(
		newCashCountNewCommand(a),
		newCashCountListCommand(a),
		newCashCountShowCommand(a),
	)
	return cmd
}

func newCashCountNewCommand(a *app) *cobra.Command {
	var when, note string
	cmd := &cobra.Command{
		Use:   "new <account> <counted-amount>",
		Short: "Record a cash count and post any over/short adjustment",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			p := cashcount.CreateParams{AccountCode: code, Note: note}
			if p.CountedAmount, err = money.Parse(args[1]); err != nil {
				return err
			}
			if p.CountTime, err = parseOptionalTime(when); err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				cc, err := a.cashcount.Create(ctx, tx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cash count %d: counted %s, system %s, %s %s (%s)\n",
					cc.ID, amount(cc.CountedAmount), amount(cc.SystemBalance),
					cc.DiscrepancyType, amount(cc.Discrepancy), entryRef(cc.AdjustmentJournalEntryRef))
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&when, "time", "", "count time (default now)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func newCashCountListCommand(a *app) *cobra.Command {
	var account int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cash counts, newest first",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				counts, err := a.cashcount.List(ctx, tx, account)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "ACCOUNT", "TIME", "COUNTED", "SYSTEM", "DISCREPANCY", "TYPE", "ADJUSTMENT")
				for _, cc := range counts {
					row(tw, cc.ID, cc.AccountCode, stamp(&cc.CountTime), amount(cc.CountedAmount), amount(cc.SystemBalance),
						amount(cc.Discrepancy), cc.DiscrepancyType, entryRef(cc.AdjustmentJournalEntryRef))
				}
				return tw.Flush()
			})
		}),
	}
	cmd.Flags().IntVar(&account, "account", 0, "only counts of this account")
	return cmd
}

func newCashCountShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a cash count",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			countID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				cc, err := a.cashcount.Get(ctx, tx, countID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Cash count %d of account %d at %s\n", cc.ID, cc.AccountCode, stamp(&cc.CountTime))
				fmt.Fprintf(out, "  counted:     %s\n", amount(cc.CountedAmount))
				fmt.Fprintf(out, "  system:      %s\n", amount(cc.SystemBalance))
				fmt.Fprintf(out, "  discrepancy: %s (%s)\n", amount(cc.Discrepancy), cc.DiscrepancyType)
				fmt.Fprintf(out, "  adjustment:  %s\n", entryRef(cc.AdjustmentJournalEntryRef))
				if cc.Note != "" {
					fmt.Fprintf(out, "  note:        %s\n", cc.Note)
				}
				return nil
			})
		}),
	}
}
