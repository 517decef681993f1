package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/cleared-dev/tillbook/internal/journal"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/store"
)

// DayRevenue is one row of the daily revenue rollup.
type DayRevenue struct {
	Day        string // UTC YYYY-MM-DD
	Revenue    int64
	EntryCount int64
}

func dayBounds(from, to time.Time) (string, string) {
	lo, hi := "0000-00-00", "9999-99-99"
	if !from.IsZero() {
		lo = from.UTC().Format(journal.DayFormat)
	}
	if !to.IsZero() {
		hi = to.UTC().Format(journal.DayFormat)
	}
	return lo, hi
}

// DailyRevenue reads the rollup for UTC days in [from, to).
func (s *Service) DailyRevenue(ctx context.Context, tx *store.Tx, from, to time.Time) ([]DayRevenue, error) {
	lo, hi := dayBounds(from, to)
	rows, err := tx.Query(ctx, `
		SELECT day, revenue, entry_count FROM daily_revenue
		WHERE day >= ? AND day < ?
		ORDER BY day`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("reading daily revenue: %w", err)
	}
	defer rows.Close()

	var days []DayRevenue
	for rows.Next() {
		var d DayRevenue
		if err := rows.Scan(&d.Day, &d.Revenue, &d.EntryCount); err != nil {
			return nil, fmt.Errorf("scanning daily revenue: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// PeriodRevenue sums the rollup for UTC days in [from, to).
func (s *Service) PeriodRevenue(ctx context.Context, tx *store.Tx, from, to time.Time) (DayRevenue, error) {
	lo, hi := dayBounds(from, to)
	total := DayRevenue{Day: lo}
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(revenue), 0), COALESCE(SUM(entry_count), 0)
		FROM daily_revenue WHERE day >= ? AND day < ?`, lo, hi).Scan(&total.Revenue, &total.EntryCount)
	if err != nil {
		return DayRevenue{}, fmt.Errorf("summing period revenue: %w", err)
	}
	return total, nil
}

// RecomputeDailyRevenue derives the rollup from posted lines on accounts
// currently tagged as revenue.
func (s *Service) RecomputeDailyRevenue(ctx context.Context, tx *store.Tx) ([]DayRevenue, error) {
	rows, err := tx.Query(ctx, `
		SELECT strftime('%Y-%m-%d', p.entry_time / 1000, 'unixepoch') AS day,
		       SUM(p.credit - p.debit),
		       COUNT(DISTINCT p.journal_entry_ref)
		FROM posted_journal_lines p
		JOIN account_tags t ON t.account_code = p.account_code AND t.tag = ?
		WHERE p.source NOT IN (?, ?)
		GROUP BY day
		ORDER BY day`,
		string(model.TagRevenue), string(model.SourceFiscalYearClosing), string(model.SourceFiscalYearReversal))
	if err != nil {
		return nil, fmt.Errorf("recomputing daily revenue: %w", err)
	}
	defer rows.Close()

	var days []DayRevenue
	for rows.Next() {
		var d DayRevenue
		if err := rows.Scan(&d.Day, &d.Revenue, &d.EntryCount); err != nil {
			return nil, fmt.Errorf("scanning daily revenue: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// RevenueMismatch is a day where the rollup and its recomputation disagree.
type RevenueMismatch struct {
	Day        string
	Stored     DayRevenue
	Recomputed DayRevenue
}

// VerifyDailyRevenue compares the rollup with its recomputation and returns
// every day that differs.
func (s *Service) VerifyDailyRevenue(ctx context.Context, tx *store.Tx) ([]RevenueMismatch, error) {
	stored, err := s.DailyRevenue(ctx, tx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	recomputed, err := s.RecomputeDailyRevenue(ctx, tx)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*RevenueMismatch)
	var order []string
	get := func(day string) *RevenueMismatch {
		m, ok := byDay[day]
		if !ok {
			m = &RevenueMismatch{Day: day}
			byDay[day] = m
			order = append(order, day)
		}
		return m
	}
	for _, d := range stored {
		get(d.Day).Stored = d
	}
	for _, d := range recomputed {
		get(d.Day).Recomputed = d
	}

	var mismatches []RevenueMismatch
	for _, day := range order {
		m := byDay[day]
		if m.Stored.Revenue != m.Recomputed.Revenue || m.Stored.EntryCount != m.Recomputed.EntryCount {
			mismatches = append(mismatches, *m)
		}
	}
	return mismatches, nil
}
