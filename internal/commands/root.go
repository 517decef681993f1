package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/accounts"
	"github.com/cleared-dev/tillbook/internal/buildinfo"
	"github.com/cleared-dev/tillbook/internal/cashcount"
	"github.com/cleared-dev/tillbook/internal/config"
	"github.com/cleared-dev/tillbook/internal/fiscal"
	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/logger"
	"github.com/cleared-dev/tillbook/internal/reconcile"
	"github.com/cleared-dev/tillbook/internal/reports"
	"github.com/cleared-dev/tillbook/internal/store"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "tillbook",
		Short:   "Double-entry bookkeeping for small retail shops",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.dir, "dir", ".", "project directory holding "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides config and "+config.EnvDB+")")

	rootCmd.AddCommand(
		newInitCommand(),
		newAccountsCommand(a),
		newJournalCommand(a),
		newFiscalCommand(a),
		newReconcileCommand(a),
		newCashCountCommand(a),
		newReportCommand(a),
		newSQLCommand(a),
	)

	return rootCmd
}

// app holds what a subcommand needs once the project is opened.
type app struct {
	dir    string
	dbPath string

	cfg *config.Config
	log *zap.Logger
	db  *store.DB

	accounts  *accounts.Service
	journal   *journal.Service
	fiscal    *fiscal.Service
	reconcile *reconcile.Service
	cashcount *cashcount.Service
	reports   *reports.Service
}

func (a *app) open(ctx context.Context) error {
	dir, err := filepath.Abs(a.dir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if err := config.LoadEnv(dir); err != nil {
		return err
	}
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return fmt.Errorf("%s is not a tillbook project (run tillbook init): %w", dir, err)
	}
	cfg.ApplyEnv()
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	db, err := store.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		_ = log.Sync()
		return err
	}

	a.dir, a.cfg, a.log, a.db = dir, cfg, log, db
	a.wire()
	return nil
}

func (a *app) wire() {
	a.accounts = accounts.NewService(a.log)
	a.journal = journal.NewService(a.log, a.accounts)
	a.fiscal = fiscal.NewService(a.log, a.accounts, a.journal)
	a.reconcile = reconcile.NewService(a.log, a.accounts, a.journal)
	a.cashcount = cashcount.NewService(a.log, a.accounts, a.journal, a.reconcile)
	a.reports = reports.NewService(a.log)
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing database", zap.Error(err))
		}
		a.db = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// run wraps a RunE body so it executes against an opened project.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd.Context()); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) update(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	return a.db.Update(ctx, func(tx *store.Tx) error { return fn(ctx, tx) })
}

func (a *app) view(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	return a.db.View(ctx, func(tx *store.Tx) error { return fn(ctx, tx) })
}
