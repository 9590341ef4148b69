package pgstore

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func TestNumericRoundTrip(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"0", "150000", "-12.5", "0.000123", "98765432109876543210.01"} {
		d := decimal.RequireFromString(s)
		got := fromNumeric(toNumeric(d))
		if !got.Valid || !got.Decimal.Equal(d) {
			t.Fatalf("%s -> %v", s, got)
		}
	}
	if got := fromNumeric(pgtype.Numeric{NaN: true, Valid: true}); got.Valid {
		t.Fatalf("NaN -> %v", got)
	}
	if got := pgValue(decimal.NullDecimal{}); got != nil {
		t.Fatalf("null decimal -> %v", got)
	}
	if got := pgValue("x"); got != "x" {
		t.Fatalf("string -> %v", got)
	}
}

func TestRecordsDDLUsesNativeTypes(t *testing.T) {
	t.Parallel()
	ddl := RecordsDDL("loanbook")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS loanbook.loan_records",
		"dataset_id UUID NOT NULL",
		"principal_os_amt NUMERIC",
		"date_of_npa DATE",
		"additional_fields JSONB",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("DDL missing %q:\n%s", want, ddl)
		}
	}
}
