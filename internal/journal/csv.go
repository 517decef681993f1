package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/tillbook/internal/id"
	"github.com/cleared-dev/tillbook/internal/ledgererr"
	"github.com/cleared-dev/tillbook/internal/model"
	"github.com/cleared-dev/tillbook/internal/money"
	"github.com/cleared-dev/tillbook/internal/store"
)

// Header is the CSV header of a journal export. Each row is one line; rows
// sharing an entry value belong to the same entry.
const Header = "entry,entry_time,post_time,source,note,line,account_code,debit,credit,description"

const (
	numFields      = 10
	dateFormat     = "2006-01-02"
	colEntry       = 0
	colEntryTime   = 1
	colPostTime    = 2
	colSource      = 3
	colNote        = 4
	colLine        = 5
	colAccountCode = 6
	colDebit       = 7
	colCredit      = 8
	colDesc        = 9
)

// ImportedEntry is a draft read from a journal CSV. Key groups its rows and
// is not stored.
type ImportedEntry struct {
	Key       string
	EntryTime time.Time
	Note      string
	Lines     []LineParams
}

// WriteEntries writes entries and their loaded lines, including the header.
func WriteEntries(w io.Writer, entries []model.JournalEntry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, e := range entries {
		for _, row := range MarshalEntry(e) {
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing %s: %w", id.FormatEntryRef(e.Ref), err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalEntry converts an entry to CSV rows, one per line. An entry without
// lines yields a single row with empty line columns.
func MarshalEntry(e model.JournalEntry) [][]string {
	head := make([]string, numFields)
	head[colEntry] = id.FormatEntryRef(e.Ref)
	head[colEntryTime] = e.EntryTime.UTC().Format(time.RFC3339)
	if e.PostTime != nil {
		head[colPostTime] = e.PostTime.UTC().Format(time.RFC3339)
	}
	head[colSource] = string(e.Source)
	head[colNote] = e.Note

	if len(e.Lines) == 0 {
		return [][]string{head}
	}

	rows := make([][]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		row := make([]string, numFields)
		copy(row, head)
		row[colLine] = strconv.Itoa(l.LineNumber)
		row[colAccountCode] = strconv.Itoa(l.AccountCode)
		if l.Debit != 0 {
			row[colDebit] = money.Format(l.Debit)
		}
		if l.Credit != 0 {
			row[colCredit] = money.Format(l.Credit)
		}
		row[colDesc] = l.Description
		rows = append(rows, row)
	}
	return rows
}

// ReadEntries reads a journal CSV into drafts grouped by the entry column,
// in order of first appearance. post_time, source and line are ignored:
// imported entries are always new drafts.
func ReadEntries(r io.Reader) ([]ImportedEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading journal CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var entries []ImportedEntry
	index := make(map[string]int)
	for i, rec := range records[1:] {
		key := rec[colEntry]
		if key == "" {
			return nil, fmt.Errorf("row %d: missing entry", i+2)
		}

		pos, seen := index[key]
		if !seen {
			entryTime, err := parseTime(rec[colEntryTime])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
			entries = append(entries, ImportedEntry{Key: key, EntryTime: entryTime, Note: rec[colNote]})
			pos = len(entries) - 1
			index[key] = pos
		}

		if rec[colAccountCode] == "" {
			continue
		}
		line, err := UnmarshalLine(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries[pos].Lines = append(entries[pos].Lines, line)
	}
	return entries, nil
}

// UnmarshalLine converts the line columns of a CSV row.
func UnmarshalLine(record []string) (LineParams, error) {
	if len(record) != numFields {
		return LineParams{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	code, err := strconv.Atoi(record[colAccountCode])
	if err != nil {
		return LineParams{}, fmt.Errorf("parsing account_code %q: %w", record[colAccountCode], err)
	}

	var debit, credit int64
	if record[colDebit] != "" {
		if debit, err = money.Parse(record[colDebit]); err != nil {
			return LineParams{}, fmt.Errorf("parsing debit: %w", err)
		}
	}
	if record[colCredit] != "" {
		if credit, err = money.Parse(record[colCredit]); err != nil {
			return LineParams{}, fmt.Errorf("parsing credit: %w", err)
		}
	}

	return LineParams{
		AccountCode: code,
		Debit:       debit,
		Credit:      credit,
		Description: record[colDesc],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing entry_time %q", s)
	}
	return t, nil
}

// Export returns the entries matching f with their lines loaded.
func (s *Service) Export(ctx context.Context, tx *store.Tx, f ListFilter) ([]model.JournalEntry, error) {
	entries, err := s.List(ctx, tx, f)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines, err = s.Lines(ctx, tx, entries[i].Ref)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ImportDrafts validates every entry against the chart, then creates them
// as drafts with source import. Nothing is written if any entry is invalid.
func (s *Service) ImportDrafts(ctx context.Context, tx *store.Tx, entries []ImportedEntry) ([]int64, error) {
	accts, err := s.accounts.List(ctx, tx)
	if err != nil {
		return nil, err
	}
	if verrs := ValidateImported(entries, NewChartIndex(accts)); len(verrs) > 0 {
		return nil, ledgererr.ErrInvalidEntry.With("%s", joinValidationErrors(verrs))
	}

	refs := make([]int64, 0, len(entries))
	for _, ie := range entries {
		e, err := s.Create(ctx, tx, CreateParams{EntryTime: ie.EntryTime, Note: ie.Note, Source: model.SourceImport})
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", ie.Key, err)
		}
		for _, l := range ie.Lines {
			if _, err := s.AddLine(ctx, tx, e.Ref, l); err != nil {
				return nil, fmt.Errorf("entry %s: %w", ie.Key, err)
			}
		}
		refs = append(refs, e.Ref)
	}

	s.log.Info("journal entries imported", zap.Int("entries", len(refs)))
	return refs, nil
}
