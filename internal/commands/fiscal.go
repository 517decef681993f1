package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tillbook/internal/fiscal"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

func newFiscalCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fiscal",
		Short: "Fiscal years",
	}
	cmd.AddCommand(
		newFiscalListCommand(a),
		newFiscalCreateCommand(a),
		newFiscalTransitionCommand(a, "close", "Close a fiscal year into retained earnings", a.closeYear),
		newFiscalTransitionCommand(a, "reverse", "Reverse the closing of a fiscal year", a.reverseYear),
		newFiscalDeleteCommand(a),
	)
	return cmd
}

func (a *app) closeYear(ctx context.Context, tx *store.Tx, yearID int64) (model.FiscalYear, error) {
	return a.fiscal.Close(ctx, tx, yearID)
}

func (a *app) reverseYear(ctx context.Context, tx *store.Tx, yearID int64) (model.FiscalYear, error) {
	return a.fiscal.Reverse(ctx, tx, yearID)
}

func newFiscalListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List fiscal years",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				years, err := a.fiscal.List(ctx, tx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "BEGIN", "END", "STATE", "CLOSING", "REVERSAL")
				for _, fy := range years {
					row(tw, fy.ID, fy.Name, day(fy.BeginTime), day(fy.EndTime), fy.State(),
						entryRef(fy.ClosingJournalEntryRef), entryRef(fy.ReversalJournalEntryRef))
				}
				return tw.Flush()
			})
		}),
	}
}

func newFiscalCreateCommand(a *app) *cobra.Command {
	var name, begin, end string
	cmd := &cobra.Command{
		Use:   "create [year]",
		Short: "Open a fiscal year",
		Long: "Open a fiscal year. With a year argument the period starts on the configured\n" +
			"fiscal.year_start in that year; otherwise --begin and --end are required.",
		Args: cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			p := fiscal.CreateParams{Name: name}
			if len(args) == 1 {
				year, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid year %q", args[0])
				}
				month, err := a.cfg.StartMonth()
				if err != nil {
					return err
				}
				p.BeginTime, p.EndTime = fiscal.PeriodFor(year, month)
			} else {
				var err error
				if p.BeginTime, err = parseTime(begin); err != nil {
					return err
				}
				if p.EndTime, err = parseTime(end); err != nil {
					return err
				}
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				fy, err := a.fiscal.Create(ctx, tx, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Opened fiscal year %d %s (%s to %s)\n", fy.ID, fy.Name, day(fy.BeginTime), day(fy.EndTime))
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "fiscal year name (default FY<year>)")
	cmd.Flags().StringVar(&begin, "begin", "", "period start")
	cmd.Flags().StringVar(&end, "end", "", "period end (exclusive)")
	return cmd
}

func newFiscalTransitionCommand(a *app, use, short string, fn func(context.Context, *store.Tx, int64) (model.FiscalYear, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			yearID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				fy, err := fn(ctx, tx, yearID)
				if err != nil {
					return err
				}
				ref := fy.ClosingJournalEntryRef
				if fy.State() == model.FiscalYearReversed {
					ref = fy.ReversalJournalEntryRef
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Fiscal year %s is %s (%s)\n", fy.Name, fy.State(), entryRef(ref))
				return nil
			})
		}),
	}
}

func newFiscalDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an open fiscal year",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			yearID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.fiscal.Delete(ctx, tx, yearID)
			})
		}),
	}
}
