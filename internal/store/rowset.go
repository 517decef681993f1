package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
)

// RowSet is the materialized result of Execute.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// Value returns the value at row i of the named column, or nil.
func (rs *RowSet) Value(i int, column string) any {
	if i < 0 || i >= len(rs.Rows) {
		return nil
	}
	for c, name := range rs.Columns {
		if name == column {
			return rs.Rows[i][c]
		}
	}
	return nil
}

func collect(rows *sql.Rows) (*RowSet, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	rs := &RowSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rs, nil
}

var mutatingKW = regexp.MustCompile(`(?i)\b(insert|update|delete|replace\s+into|create|drop|alter|attach|detach|pragma|vacuum|reindex|analyze)\b`)

// stripLiterals blanks out string literals, quoted identifiers and comments
// so keyword and separator checks only see SQL tokens.
func stripLiterals(stmt string) string {
	var b strings.Builder
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(stmt) {
				if stmt[j] == c {
					if j+1 < len(stmt) && stmt[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			b.WriteString(" ? ")
			i = j
		case c == '[':
			j := strings.IndexByte(stmt[i:], ']')
			if j < 0 {
				j = len(stmt) - i - 1
			}
			b.WriteString(" ? ")
			i += j
		case c == '-' && i+1 < len(stmt) && stmt[i+1] == '-':
			j := strings.IndexByte(stmt[i:], '\n')
			if j < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += j
		case c == '/' && i+1 < len(stmt) && stmt[i+1] == '*':
			j := strings.Index(stmt[i+2:], "*/")
			if j < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += j + 3
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsReadStatement reports whether stmt is a single SELECT, WITH ... SELECT
// or VALUES statement.
func IsReadStatement(stmt string) bool {
	s := strings.TrimSpace(stripLiterals(stmt))
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" || strings.Contains(s, ";") {
		return false
	}
	switch strings.ToLower(strings.Fields(s)[0]) {
	case "select", "values", "with":
		return !mutatingKW.MatchString(s)
	}
	return false
}

func errInvalidStatement(stmt string) error {
	s := strings.TrimSpace(stmt)
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return ledgererr.ErrInvalidStatement.With("%q", s)
}
