// Package id formats and parses the display form of journal entry
// reference numbers.
package id

import (
	"fmt"
	"strconv"
	"strings"
)

// EntryPrefix starts every formatted entry reference.
const EntryPrefix = "JE-"

// FormatEntryRef returns an entry reference like "JE-000042".
func FormatEntryRef(ref int64) string {
	return fmt.Sprintf("%s%06d", EntryPrefix, ref)
}

// FormatLineRef returns a line reference like "JE-000042a" (line 1='a',
// 2='b', etc.).
func FormatLineRef(ref int64, lineNumber int) string {
	if lineNumber < 1 || lineNumber > 26 {
		return fmt.Sprintf("%s/%d", FormatEntryRef(ref), lineNumber)
	}
	return FormatEntryRef(ref) + string(rune('a'+lineNumber-1))
}

// ParseEntryRef parses "JE-000042", "je-42", "42" or a line reference such
// as "JE-000042a" into the entry reference number.
func ParseEntryRef(s string) (int64, error) {
	base := EntryGroup(strings.TrimSpace(s))
	if len(base) >= len(EntryPrefix) && strings.EqualFold(base[:len(EntryPrefix)], EntryPrefix) {
		base = base[len(EntryPrefix):]
	}
	if base == "" {
		return 0, fmt.Errorf("invalid entry reference: %q", s)
	}

	ref, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry reference %q: %w", s, err)
	}
	if ref <= 0 {
		return 0, fmt.Errorf("invalid entry reference %q: must be positive", s)
	}
	return ref, nil
}

// MatchesEntryRef reports whether an external reference (for example from a
// bank statement) names entry ref, in either its formatted or bare form.
func MatchesEntryRef(reference string, ref int64) bool {
	got, err := ParseEntryRef(reference)
	return err == nil && got == ref
}

// EntryGroup strips the line suffix from a line reference.
// "JE-000042a" -> "JE-000042"
func EntryGroup(lineRef string) string {
	if i := strings.IndexByte(lineRef, '/'); i >= 0 {
		return lineRef[:i]
	}
	i := len(lineRef)
	for i > 0 && lineRef[i-1] >= 'a' && lineRef[i-1] <= 'z' {
		i--
	}
	return lineRef[:i]
}
