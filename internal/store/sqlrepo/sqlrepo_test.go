package sqlrepo

import (
	"testing"
	"time"

	"TalkToDataLoanPro/internal/bucket"
)

func TestRebind(t *testing.T) {
	t.Parallel()
	q := `SELECT a FROM t WHERE x = ? AND y IN (` + In(2) + `)`
	if got := Rebind(bucket.Postgres, q); got != `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)` {
		t.Fatalf("postgres = %s", got)
	}
	if got := Rebind(bucket.SQLite, q); got != q {
		t.Fatalf("sqlite = %s", got)
	}
	if In(0) != "NULL" {
		t.Fatalf("In(0) = %s", In(0))
	}
}

func TestTimestampScan(t *testing.T) {
	t.Parallel()
	want := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	for _, src := range []any{want, "2025-03-04 05:06:07", []byte("2025-03-04T05:06:07Z"), "2025-03-04 05:06:07+00:00"} {
		var ts Timestamp
		if err := ts.Scan(src); err != nil {
			t.Fatalf("Scan(%v): %v", src, err)
		}
		if !ts.Time.Equal(want) {
			t.Fatalf("Scan(%v) = %v", src, ts.Time)
		}
	}
	var ts Timestamp
	if err := ts.Scan(3.5); err == nil {
		t.Fatal("float accepted")
	}
}
