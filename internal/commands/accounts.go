package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tillbook/internal/accounts"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

func newAccountsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Chart of accounts",
	}
	cmd.AddCommand(
		newAccountsListCommand(a),
		newAccountsShowCommand(a),
		newAccountsAddCommand(a),
		newAccountsRenameCommand(a),
		newAccountsParentCommand(a),
		newAccountsActiveCommand(a, "activate", true),
		newAccountsActiveCommand(a, "deactivate", false),
		newAccountsDeleteCommand(a),
		newAccountsTagCommand(a),
		newAccountsUntagCommand(a),
		newAccountsTagsCommand(),
		newAccountsExportCommand(a),
		newAccountsImportCommand(a),
	)
	return cmd
}

func newAccountsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with balances",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.view(ctx, func(ctx context.Context, tx *store.Tx) error {
				list, err := a.accounts.List(ctx, tx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "CODE", "NAME", "NORMAL", "BALANCE", "PARENT", "FLAGS")
				for _, acct := range list {
					parent := "-"
					if acct.ControlAccountCode != 0 {
						parent = fmt.Sprint(acct.ControlAccountCode)
					}
					row(tw, acct.Code, acct.Name, acct.NormalBalance, amount(acct.Balance), parent, accountFlags(acct))
				}
				return tw.Flush()
			})
		}),
	}
}

func accountFlags(acct model.Account) string {
	var flags []string
	if !acct.IsPostingAccount {
		flags = append(flags, "control")
	}
	if !acct.IsActive {
		flags = append(flags, "inactive")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func newAccountsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show an account with its tags and children",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.view(ctx, func(ctx context.Context, tx *store.Tx) error {
				acct, err := a.accounts.Get(ctx, tx, code)
				if err != nil {
					return err
				}
				tags, err := a.accounts.Tags(ctx, tx, code)
				if err != nil {
					return err
				}
				children, err := a.accounts.Children(ctx, tx, code)
				if err != nil {
					return err
				}
				posted, err := a.accounts.PostedEntryCount(ctx, tx, code)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d %s\n", acct.Code, acct.Name)
				fmt.Fprintf(out, "  normal balance: %s\n", acct.NormalBalance)
				fmt.Fprintf(out, "  balance:        %s\n", amount(acct.Balance))
				fmt.Fprintf(out, "  flags:          %s\n", accountFlags(acct))
				fmt.Fprintf(out, "  posted entries: %d\n", posted)
				for _, t := range tags {
					fmt.Fprintf(out, "  tag:            %s\n", t)
				}
				for _, c := range children {
					fmt.Fprintf(out, "  child:          %d %s\n", c.Code, c.Name)
				}
				return nil
			})
		}),
	}
}

func newAccountsAddCommand(a *app) *cobra.Command {
	var (
		normal string
		parent int
		tags   []string
	)
	cmd := &cobra.Command{
		Use:   "add <code> <name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			nb, ok := model.ParseNormalBalance(normal)
			if !ok {
				return fmt.Errorf("invalid normal balance %q (want debit or credit)", normal)
			}
			ctx := cmd.Context()
			return a.update(ctx, func(ctx context.Context, tx *store.Tx) error {
				acct, err := a.accounts.Create(ctx, tx, accounts.CreateParams{
					Code:               code,
					Name:               args[1],
					NormalBalance:      nb,
					ControlAccountCode: parent,
				})
				if err != nil {
					return err
				}
				for _, t := range tags {
					if err := a.accounts.AddTag(ctx, tx, code, model.Tag(t)); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created account %d %s\n", acct.Code, acct.Name)
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&normal, "normal", "debit", "normal balance side: debit or credit")
	cmd.Flags().IntVar(&parent, "parent", 0, "control account code")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag to assign (repeatable)")
	return cmd
}

func newAccountsRenameCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <code> <name>",
		Short: "Rename an account",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.Rename(ctx, tx, code, args[1])
			})
		}),
	}
}

func newAccountsParentCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parent <code> <control-code>",
		Short: "Move an account under a control account (0 for top level)",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			var parent int
			if args[1] != "0" {
				if parent, err = parseCode(args[1]); err != nil {
					return err
				}
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.SetControlAccount(ctx, tx, code, parent)
			})
		}),
	}
}

func newAccountsActiveCommand(a *app, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <code>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an account",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.SetActive(ctx, tx, code, active)
			})
		}),
	}
}

func newAccountsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete an account that nothing references",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.Delete(ctx, tx, code)
			})
		}),
	}
}

func newAccountsTagCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <code> <tag>",
		Short: "Assign a tag to an account",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.AddTag(ctx, tx, code, model.Tag(args[1]))
			})
		}),
	}
}

func newAccountsUntagCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "untag <code> <tag>",
		Short: "Remove a tag from an account",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			code, err := parseCode(args[0])
			if err != nil {
				return err
			}
			return a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.RemoveTag(ctx, tx, code, model.Tag(args[1]))
			})
		}),
	}
}

func newAccountsTagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List the known account tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := newTable(cmd.OutOrStdout(), "TAG", "UNIQUE")
			for _, t := range model.AllTags() {
				row(tw, t, t.Unique())
			}
			return tw.Flush()
		},
	}
}

func newAccountsExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the chart of accounts as CSV (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var chart []accounts.ChartAccount
			err := a.view(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				var err error
				chart, err = a.accounts.ExportChart(ctx, tx)
				return err
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), args, func(w io.Writer) error {
				return accounts.WriteChart(w, chart)
			})
		}),
	}
}

func newAccountsImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create accounts from a chart CSV",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening chart: %w", err)
			}
			defer f.Close()

			chart, err := accounts.ReadChart(f)
			if err != nil {
				return err
			}
			err = a.update(cmd.Context(), func(ctx context.Context, tx *store.Tx) error {
				return a.accounts.ImportChart(ctx, tx, chart)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts\n", len(chart))
			return nil
		}),
	}
}

// writeOutput writes to the file named by args[0], or to out without one.
func writeOutput(out io.Writer, args []string, fn func(w io.Writer) error) error {
	if len(args) == 0 {
		return fn(out)
	}
	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating %s: %w", args[0], err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
