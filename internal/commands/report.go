package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tillbook/internal/reports"
	"github.com/cleared-dev/tillbook/internal/store"
)

func newReportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Financial reports and consistency checks",
	}
	cmd.AddCommand(
		newReportTrialBalanceCommand(a),
		newReportBalanceSheetCommand(a),
		newReportIncomeCommand(a),
		newReportRevenueCommand(a),
		newReportVerifyCommand(a),
	)
	return cmd
}

func newReportTrialBalanceCommand(a *app) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Posted debit and credit totals per account",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			t, err := parseOptionalTime(asOf)
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				tb, err := a.reports.TrialBalance(ctx, tx, t)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "CODE", "NAME", "DEBIT", "CREDIT", "BALANCE")
				for _, r := range tb.Rows {
					row(tw, r.AccountCode, r.Name, amount(r.Debit), amount(r.Credit), amount(r.Balance))
				}
				row(tw, "", "total", amount(tb.TotalDebit), amount(tb.TotalCredit), "")
				if err := tw.Flush(); err != nil {
					return err
				}
				if !tb.Balanced() {
					return fmt.Errorf("trial balance is out of balance by %s", amount(tb.TotalDebit-tb.TotalCredit))
				}
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "include entries before this time")
	return cmd
}

func printSection(w io.Writer, title string, sec reports.Section) {
	row(w, title, "", "")
	for _, l := range sec.Lines {
		row(w, "", fmt.Sprintf("%d %s", l.AccountCode, l.Name), amount(l.Amount))
	}
	row(w, "", "total "+title, amount(sec.Total))
}

func newReportBalanceSheetCommand(a *app) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "balance-sheet",
		Short: "Assets, liabilities and equity at a point in time",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			t, err := parseOptionalTime(asOf)
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				bs, err := a.reports.BalanceSheet(ctx, tx, t)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				printSection(tw, "current assets", bs.CurrentAssets)
				printSection(tw, "non-current assets", bs.NonCurrentAssets)
				row(tw, "ASSETS", "", amount(bs.TotalAssets))
				printSection(tw, "current liabilities", bs.CurrentLiabilities)
				printSection(tw, "non-current liabilities", bs.NonCurrentLiabilities)
				row(tw, "LIABILITIES", "", amount(bs.TotalLiabilities))
				printSection(tw, "equity", bs.Equity)
				row(tw, "", "current earnings", amount(bs.CurrentEarnings))
				row(tw, "EQUITY", "", amount(bs.TotalEquity))
				if err := tw.Flush(); err != nil {
					return err
				}
				if !bs.Balanced() {
					fmt.Fprintln(cmd.OutOrStdout(), "warning: some accounts carry no balance sheet or income statement tag")
				}
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "include entries before this time")
	return cmd
}

type periodFlags struct{ from, to string }

func (pf *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&pf.from, "from", "", "period start (required)")
	cmd.Flags().StringVar(&pf.to, "to", "", "period end, exclusive (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

func (pf *periodFlags) parse() (time.Time, time.Time, error) {
	from, err := parseTime(pf.from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(pf.to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func newReportIncomeCommand(a *app) *cobra.Command {
	var pf periodFlags
	cmd := &cobra.Command{
		Use:   "income",
		Short: "Revenue, expense and net income for a period",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			from, to, err := pf.parse()
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				is, err := a.reports.IncomeStatement(ctx, tx, from, to)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				printSection(tw, "revenue", is.Revenue)
				printSection(tw, "expense", is.Expense)
				row(tw, "NET INCOME", "", amount(is.NetIncome))
				return tw.Flush()
			})
		}),
	}
	pf.register(cmd)
	return cmd
}

func newReportRevenueCommand(a *app) *cobra.Command {
	var (
		pf    periodFlags
		daily bool
	)
	cmd := &cobra.Command{
		Use:   "revenue",
		Short: "Sales revenue from the daily rollup",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			from, to, err := pf.parse()
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				tw := newTable(cmd.OutOrStdout(), "DAY", "REVENUE", "ENTRIES")
				if daily {
					days, err := a.reports.DailyRevenue(ctx, tx, from, to)
					if err != nil {
						return err
					}
					for _, d := range days {
						row(tw, d.Day, amount(d.Revenue), d.EntryCount)
					}
				}
				total, err := a.reports.PeriodRevenue(ctx, tx, from, to)
				if err != nil {
					return err
				}
				row(tw, "total", amount(total.Revenue), total.EntryCount)
				return tw.Flush()
			})
		}),
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&daily, "daily", false, "show one row per day")
	return cmd
}

func newReportVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute balances and the revenue rollup from posted lines",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				balances, err := a.reports.VerifyBalances(ctx, tx)
				if err != nil {
					return err
				}
				revenue, err := a.reports.VerifyDailyRevenue(ctx, tx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, c := range balances {
					fmt.Fprintf(out, "account %d: cached %s, posted lines %s\n", c.AccountCode, amount(c.Cached), amount(c.Folded))
				}
				for _, m := range revenue {
					fmt.Fprintf(out, "revenue %s: stored %s/%d, recomputed %s/%d\n", m.Day,
						amount(m.Stored.Revenue), m.Stored.EntryCount, amount(m.Recomputed.Revenue), m.Recomputed.EntryCount)
				}
				if n := len(balances) + len(revenue); n > 0 {
					return fmt.Errorf("%d inconsistencies found", n)
				}
				fmt.Fprintln(out, "OK")
				return nil
			})
		}),
	}
}
