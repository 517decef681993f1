package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tillbook/internal/id"
	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/store"
)

func newJournalCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "journal",
		Aliases: []string{"je"},
		Short:   "Journal entries",
	}
	cmd.AddCommand(
		newJournalListCommand(a),
		newJournalShowCommand(a),
		newJournalNewCommand(a),
		newJournalLineCommand(a),
		newJournalRemoveLineCommand(a),
		newJournalPostCommand(a),
		newJournalDeleteCommand(a),
		newJournalRecordCommand(a),
		newJournalExportCommand(a),
		newJournalImportCommand(a),
	)
	return cmd
}

type listFlags struct {
	from, to string
	source   string
	account  int
	drafts   bool
	posted   bool
	limit    int
}

func (lf *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.from, "from", "", "entry time on or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&lf.to, "to", "", "entry time before")
	cmd.Flags().StringVar(&lf.source, "source", "", "entry source")
	cmd.Flags().IntVar(&lf.account, "account", 0, "only entries touching this account")
	cmd.Flags().BoolVar(&lf.drafts, "drafts", false, "only drafts")
	cmd.Flags().BoolVar(&lf.posted, "posted", false, "only posted entries")
	cmd.MarkFlagsMutuallyExclusive("drafts", "posted")
}

func (lf *listFlags) filter() (journal.ListFilter, error) {
	var (
		f   journal.ListFilter
		err error
	)
	if f.From, err = parseOptionalTime(lf.from); err != nil {
		return f, err
	}
	if f.To, err = parseOptionalTime(lf.to); err != nil {
		return f, err
	}
	f.Source = model.EntrySource(lf.source)
	f.AccountCode = lf.account
	f.Limit = lf.limit
	switch {
	case lf.drafts:
		posted := false
		f.Posted = &posted
	case lf.posted:
		posted := true
		f.Posted = &posted
	}
	return f, nil
}

func newJournalListCommand(a *app) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			f, err := lf.filter()
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				entries, err := a.journal.List(ctx, tx, f)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "REF", "DATE", "SOURCE", "STATE", "NOTE")
				for _, e := range entries {
					state := "draft"
					if e.Posted() {
						state = "posted"
					}
					row(tw, entryRef(e.Ref), day(e.EntryTime), e.Source, state, e.Note)
				}
				return tw.Flush()
			})
		}),
	}
	lf.register(cmd)
	cmd.Flags().IntVar(&lf.limit, "limit", 0, "maximum number of entries")
	return cmd
}

func newJournalShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show an entry and its lines",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ref, err := id.ParseEntryRef(args[0])
			if err != nil {
				return err
			}
			return a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				e, err := a.journal.Get(ctx, tx, ref)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s %s\n", entryRef(e.Ref), day(e.EntryTime), e.Note)
				fmt.Fprintf(out, "  source: %s  posted: %s\n", e.Source, stamp(e.PostTime))

				tw := newTable(out, "LINE", "ACCOUNT", "DEBIT", "CREDIT", "DESCRIPTION")
				for _, l := range e.Lines {
					row(tw, id.FormatLineRef(e.Ref, l.LineNumber), l.AccountCode, sideAmount(l.Debit), sideAmount(l.Credit), l.Description)
				}
				debit, credit := e.Totals()
				row(tw, "", "total", amount(debit), amount(credit), "")
				return tw.Flush()
			})
		}),
	}
}

func sideAmount(v int64) string {
	if v == 0 {
		return ""
	}
	return amount(v)
}

func newJournalNewCommand(a *app) *cobra.Command {
	var when, note, source string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a draft entry",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			t, err := parseTime(when)
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				e, err := a.journal.Create(ctx, tx, journal.CreateParams{EntryTime: t, Note: note, Source: model.EntrySource(source)})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), entryRef(e.Ref))
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&when, "time", "", "entry time (YYYY-MM-DD or RFC3339, required)")
	_ = cmd.MarkFlagRequired("time")
	cmd.Flags().StringVar(&note, "note", "", "entry note")
	cmd.Flags().StringVar(&source, "source", string(model.SourceManual), "entry source")
	return cmd
}

func newJournalLineCommand(a *app) *cobra.Command {
	var debit, credit, desc string
	cmd := &cobra.Command{
		Use:   "line <ref> <account>",
		Short: "Add a line to a draft entry",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ref, err := id.ParseEntryRef(args[0])
			if err != nil {
				return err
			}
			code, err := parseCode(args[1])
			if err != nil {
				return err
			}
			p := journal.LineParams{AccountCode: code, Description: desc}
			if debit != "" {
				if p.Debit, err = money.Parse(debit); err != nil {
					return err
				}
			}
			if credit != "" {
				if p.Credit, err = money.Parse(credit); err != nil {
					return err
				}
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				l, err := a.journal.AddLine(ctx, tx, ref, p)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id.FormatLineRef(ref, l.LineNumber))
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&debit, "debit", "", "debit amount")
	cmd.Flags().StringVar(&credit, "credit", "", "credit amount")
	cmd.Flags().StringVar(&desc, "desc", "", "line description")
	cmd.MarkFlagsOneRequired("debit", "credit")
	return cmd
}

func newJournalRemoveLineCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rmline <ref> <line-number>",
		Short: "Remove a line from a draft entry",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ref, err := id.ParseEntryRef(args[0])
			if err != nil {
				return err
			}
			n, err := parseID(args[1])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				lines, err := a.journal.Lines(ctx, tx, ref)
				if err != nil {
					return err
				}
				for _, l := range lines {
					if int64(l.LineNumber) == n {
						return a.journal.DeleteLine(ctx, tx, l.ID)
					}
				}
				return ledgererr.ErrLineNotFound.With("%s", id.FormatLineRef(ref, int(n)))
			})
		}),
	}
}

func newJournalPostCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "post <ref>...",
		Short: "Post draft entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			refs := make([]int64, 0, len(args))
			for _, arg := range args {
				ref, err := id.ParseEntryRef(arg)
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				for _, ref := range refs {
					if err := a.journal.Post(ctx, tx, ref); err != nil {
						return fmt.Errorf("%s: %w", entryRef(ref), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Posted %s\n", entryRef(ref))
				}
				return nil
			})
		}),
	}
}

func newJournalDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a draft entry",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ref, err := id.ParseEntryRef(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.journal.Delete(ctx, tx, ref)
			})
		}),
	}
}

// parseLegs reads "CODE=AMOUNT" pairs.
func parseLegs(pairs []string, debit bool) ([]journal.LineParams, error) {
	lines := make([]journal.LineParams, 0, len(pairs))
	for _, pair := range pairs {
		codeStr, amtStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid line %q (want CODE=AMOUNT)", pair)
		}
		code, err := parseCode(codeStr)
		if err != nil {
			return nil, err
		}
		amt, err := money.Parse(amtStr)
		if err != nil {
			return nil, err
		}
		l := journal.LineParams{AccountCode: code}
		if debit {
			l.Debit = amt
		} else {
			l.Credit = amt
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func newJournalRecordCommand(a *app) *cobra.Command {
	var (
		when, note, source string
		debits, credits    []string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Create and post an entry in one step",
		Example: `  tillbook journal record --time 2025-03-14 --note "cash sale" \
    --debit 1000=500.00 --credit 4000=500.00`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			t, err := parseTime(when)
			if err != nil {
				return err
			}
			dr, err := parseLegs(debits, true)
			if err != nil {
				return err
			}
			cr, err := parseLegs(credits, false)
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				e, err := a.journal.Record(ctx, tx, journal.RecordParams{
					EntryTime: t,
					Note:      note,
					Source:    model.EntrySource(source),
					Lines:     append(dr, cr...),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Posted %s\n", entryRef(e.Ref))
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&when, "time", "", "entry time (YYYY-MM-DD or RFC3339, required)")
	_ = cmd.MarkFlagRequired("time")
	cmd.Flags().StringVar(&note, "note", "", "entry note")
	cmd.Flags().StringVar(&source, "source", string(model.SourceManual), "entry source")
	cmd.Flags().StringArrayVar(&debits, "debit", nil, "debit line CODE=AMOUNT (repeatable)")
	cmd.Flags().StringArrayVar(&credits, "credit", nil, "credit line CODE=AMOUNT (repeatable)")
	return cmd
}

func newJournalExportCommand(a *app) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write entries and lines as CSV (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			f, err := lf.filter()
			if err != nil {
				return err
			}
			var entries []model.JournalEntry
			err = a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				entries, err = a.journal.Export(ctx, tx, f)
				return err
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), args, func(w io.Writer) error {
				return journal.WriteEntries(w, entries)
			})
		}),
	}
	lf.register(cmd)
	return cmd
}

func newJournalImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create draft entries from a journal CSV",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer f.Close()

			imported, err := journal.ReadEntries(f)
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				refs, err := a.journal.ImportDrafts(ctx, tx, imported)
				if err != nil {
					return err
				}
				for _, ref := range refs {
					fmt.Fprintf(cmd.OutOrStdout(), "Drafted %s\n", entryRef(ref))
				}
				return nil
			})
		}),
	}
}
