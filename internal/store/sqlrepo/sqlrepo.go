// Package sqlrepo implements the dataset, bucket config and mapping profile
// repositories on database/sql. Queries are written with '?' placeholders and
// rebound for the backend's dialect, so the Postgres (lib/pq) and SQLite
// stores share them.
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TalkToDataLoanPro/internal/bucket"
)

// DB is the part of *sql.DB the repositories use.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Rebind rewrites '?' placeholders into the dialect's form.
func Rebind(d bucket.Dialect, query string) string {
	if d == nil || d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// In renders "?, ?, ?" for n values.
func In(n int) string {
	if n <= 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Qualify prefixes a table with a schema when one is set.
func Qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp scans the timestamp forms both drivers return.
type Timestamp struct{ Time time.Time }

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	}
	return fmt.Errorf("timestamp: cannot scan %T", src)
}

func (t *Timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised value %q", s)
}
