package store

import (
	"database/sql"
	"time"
)

// Times are stored as INTEGER Unix milliseconds in UTC.

// Millis converts t to its stored form.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts a stored time back to a UTC time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NullMillis converts an optional time to a nullable column value.
func NullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// TimePtr converts a nullable column value to an optional time.
func TimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMillis(v.Int64)
	return &t
}

// NullInt converts 0 to NULL for optional foreign keys.
func NullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

// Truncate drops sub-millisecond precision so a time survives a round trip.
func Truncate(t time.Time) time.Time {
	return FromMillis(Millis(t))
}
