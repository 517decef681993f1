package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/accounts"
	"github.com/cleared-dev/tillbook/internal/config"
	"github.com/cleared-dev/tillbook/internal/fiscal"
	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/logger"
	"github.com/cleared-dev/tillbook/internal/store"
)

// importDir holds bank statement exports waiting to be reconciled.
const importDir = "import"

func newInitCommand() *cobra.Command {
	var (
		name         string
		businessType string
		year         int
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new tillbook project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), cmd.OutOrStdout(), absDir, name, businessType, year)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "business name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&businessType, "type", "pos_retail", "business type selecting the default chart of accounts")
	cmd.Flags().IntVar(&year, "fiscal-year", 0, "open this fiscal year after seeding the chart")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, dir, name, businessType string, year int) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", cfgPath, err)
	}

	// Create directory structure.
	for _, d := range []string{importDir, filepath.Join(importDir, "processed")} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write tillbook.yaml.
	cfg := config.Default(name, businessType)
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Write .gitignore.
	gitignore := "*.db\n*.db-wal\n*.db-shm\n.env\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	month, err := cfg.StartMonth()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Create the database and seed the chart of accounts.
	db, err := store.Open(ctx, filepath.Join(dir, cfg.Database.Path), log)
	if err != nil {
		return err
	}
	defer db.Close()

	accts := accounts.NewService(log)
	years := fiscal.NewService(log, accts, journal.NewService(log, accts))
	err = db.Update(ctx, func(tx *store.Tx) error {
		if err := accts.SeedDefaults(ctx, tx, businessType); err != nil {
			return err
		}
		if year <= 0 {
			return nil
		}
		begin, end := fiscal.PeriodFor(year, month)
		_, err := years.Create(ctx, tx, fiscal.CreateParams{BeginTime: begin, EndTime: end})
		return err
	})
	if err != nil {
		return fmt.Errorf("seeding ledger: %w", err)
	}

	log.Info("project initialized", zap.String("dir", dir), zap.String("type", businessType))
	fmt.Fprintf(out, "Initialized tillbook project at %s\n", dir)
	return nil
}
