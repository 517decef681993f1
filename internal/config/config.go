// Package config reads and writes tillbook.yaml and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/tillbook/internal/money"
)

// FileName is the config file created by init.
const FileName = "tillbook.yaml"

// Environment overrides.
const (
	EnvDB       = "TILLBOOK_DB"
	EnvLogMode  = "TILLBOOK_LOG_MODE"
	EnvLogLevel = "TILLBOOK_LOG_LEVEL"
)

// Config represents the top-level tillbook.yaml configuration.
type Config struct {
	Business       BusinessConfig       `yaml:"business"`
	Database       DatabaseConfig       `yaml:"database"`
	Log            LogConfig            `yaml:"log"`
	Fiscal         FiscalConfig         `yaml:"fiscal"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	BankAccounts   []BankAccount        `yaml:"bank_accounts,omitempty"`
}

// BusinessConfig identifies the business entity.
type BusinessConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // default chart template, e.g. "pos_retail"
}

// DatabaseConfig locates the ledger database. A relative path is resolved
// against the directory holding tillbook.yaml.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the logger built by internal/logger.
type LogConfig struct {
	Mode  string `yaml:"mode"`  // development, production or quiet
	Level string `yaml:"level"` // debug, info, warn, error
}

// FiscalConfig defines the fiscal year boundaries.
type FiscalConfig struct {
	YearStart string `yaml:"year_start"` // "MM-DD" format, e.g. "01-01"
}

// ReconciliationConfig sets matching defaults.
type ReconciliationConfig struct {
	Tolerance string `yaml:"tolerance"` // decimal amount, e.g. "0.00"
}

// BankAccount maps a bank statement export to a chart-of-accounts entry.
type BankAccount struct {
	Name        string `yaml:"name"`
	Format      string `yaml:"format"` // importer format, e.g. "chase"
	LastFour    string `yaml:"last_four"`
	AccountCode int    `yaml:"account_code"`
}

// Load reads a tillbook.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Database.Path != "" && !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(filepath.Dir(path), cfg.Database.Path)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(businessName, businessType string) *Config {
	return &Config{
		Business: BusinessConfig{
			Name: businessName,
			Type: businessType,
		},
		Database: DatabaseConfig{
			Path: "tillbook.db",
		},
		Log: LogConfig{
			Mode:  "production",
			Level: "warn",
		},
		Fiscal: FiscalConfig{
			YearStart: "01-01",
		},
		Reconciliation: ReconciliationConfig{
			Tolerance: "0.00",
		},
	}
}

// LoadEnv loads dir/.env into the process environment if it exists.
// Variables already set are not overwritten.
func LoadEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with TILLBOOK_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogMode); v != "" {
		c.Log.Mode = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// StartMonth parses Fiscal.YearStart. Fiscal years begin on the first day
// of a month.
func (c *Config) StartMonth() (time.Month, error) {
	if c.Fiscal.YearStart == "" {
		return time.January, nil
	}
	t, err := time.Parse("01-02", c.Fiscal.YearStart)
	if err != nil {
		return 0, fmt.Errorf("parsing fiscal year_start %q: %w", c.Fiscal.YearStart, err)
	}
	if t.Day() != 1 {
		return 0, fmt.Errorf("fiscal year_start %q must be the first of a month", c.Fiscal.YearStart)
	}
	return t.Month(), nil
}

// ToleranceCents parses Reconciliation.Tolerance into minor units.
func (c *Config) ToleranceCents() (int64, error) {
	s := strings.TrimSpace(c.Reconciliation.Tolerance)
	if s == "" {
		return 0, nil
	}
	cents, err := money.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("parsing reconciliation tolerance: %w", err)
	}
	if cents < 0 {
		return 0, fmt.Errorf("reconciliation tolerance %q is negative", s)
	}
	return cents, nil
}

// BankAccount returns the bank mapping for an account code.
func (c *Config) BankAccount(code int) (BankAccount, bool) {
	for _, b := range c.BankAccounts {
		if b.AccountCode == code {
			return b, true
		}
	}
	return BankAccount{}, false
}

// Validate checks the values that other packages parse.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, err := c.StartMonth(); err != nil {
		return err
	}
	if _, err := c.ToleranceCents(); err != nil {
		return err
	}
	return nil
}
