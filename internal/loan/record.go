package loan

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/timeseries"
)

// Record is the read-side view of a loan_records row. Canonical columns are
// struct fields; anything else lives in Additional and is reached only through
// the Extra accessors.
type Record struct {
	ID          string
	DatasetID   string
	AgreementNo string
	PrincipalOS decimal.NullDecimal
	DateOfNPA   *time.Time
	DateOfWOff  *time.Time

	M3Collection       decimal.NullDecimal
	M6Collection       decimal.NullDecimal
	M12Collection      decimal.NullDecimal
	TotalCollection    decimal.NullDecimal
	PostNPACollection  decimal.NullDecimal
	PostWOffCollection decimal.NullDecimal

	Additional map[string]any
}

// Extra looks a key up in additional fields by exact name.
func (r *Record) Extra(key string) (any, bool) {
	if r.Additional == nil {
		return nil, false
	}
	v, ok := r.Additional[key]
	return v, ok
}

// ExtraFold is Extra with a case-insensitive key match.
func (r *Record) ExtraFold(key string) (any, bool) {
	if v, ok := r.Extra(key); ok {
		return v, true
	}
	for k, v := range r.Additional {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// Namespaces returns the normalised dpd36m / collection36m maps.
func (r *Record) Namespaces() timeseries.Namespaces {
	return timeseries.NormalizeAdditionalFields(r.Additional)
}

// DPDSeries is the monthly DPD reading series.
func (r *Record) DPDSeries() timeseries.Series {
	return timeseries.ParseValues(r.Namespaces().DPD)
}

// CollectionSeries is the monthly collection amount series.
func (r *Record) CollectionSeries() timeseries.Series {
	return timeseries.ParseAmounts(r.Namespaces().Collection)
}

// NPADate is the recorded NPA date, or one inferred from the DPD series.
func (r *Record) NPADate() *time.Time {
	if r.DateOfNPA != nil {
		return r.DateOfNPA
	}
	if d, ok := timeseries.InferNPAFromDPD(r.DPDSeries()); ok {
		return &d
	}
	return nil
}
