package commands

import (
	"github.com/spf13/cobra"
)

func newSQLCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement> [args...]",
		Short: "Run a read-only SQL statement against the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			params := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				params = append(params, arg)
			}
			rs, err := a.db.Execute(cmd.Context(), args[0], params...)
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout(), rs.Columns...)
			for _, r := range rs.Rows {
				cols := make([]any, len(r))
				for i, v := range r {
					if v == nil {
						v = "NULL"
					}
					cols[i] = v
				}
				row(tw, cols...)
			}
			return tw.Flush()
		}),
	}
}
