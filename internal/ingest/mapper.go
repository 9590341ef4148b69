package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/timeseries"
)

// Canonical is one loan record ready to load, keyed by column name.
type Canonical map[string]any

// Batch is the mapped output of one upload.
type Batch struct {
	Columns []string
	Records []Canonical
	// Missing lists mapped source columns the table did not have.
	Missing []string
}

// Rows returns the records as value slices in Columns order.
func (b *Batch) Rows() [][]any {
	out := make([][]any, len(b.Records))
	for i, rec := range b.Records {
		row := make([]any, len(b.Columns))
		for j, c := range b.Columns {
			row[j] = rec[c]
		}
		out[i] = row
	}
	return out
}

// MapTable turns the combined table into canonical records. Each mapped
// source value is coerced separately for every target it fans out to.
// Unmapped columns are dropped; extras become additional_fields; the
// collection metrics are derived last.
func MapTable(t *Table, mapping ColumnMapping, datasetID string) (*Batch, error) {
	type binding struct {
		idx     int
		targets []string
	}
	sources := make([]string, 0, len(mapping))
	for src := range mapping {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	b := &Batch{}
	targeted := map[string]bool{}
	var bindings []binding
	for _, src := range sources {
		targets := mapping[src]
		for _, tgt := range targets {
			if !loan.IsCanonical(tgt) {
				return nil, fmt.Errorf("%w: unknown target column %q", ErrMapping, tgt)
			}
			targeted[tgt] = true
		}
		if src == DatasetSource {
			continue
		}
		idx := t.Index(src)
		if idx < 0 {
			b.Missing = append(b.Missing, src)
			continue
		}
		bindings = append(bindings, binding{idx: idx, targets: targets})
	}
	if !targeted[loan.ColDatasetID] {
		return nil, fmt.Errorf("%w: no mapping targets %s", ErrMapping, loan.ColDatasetID)
	}
	// Header-mode sheets may already carry the event date columns by name.
	for _, col := range []string{loan.ColDateOfNPA, loan.ColDateOfWOff} {
		if idx := t.Index(col); idx >= 0 && !targeted[col] {
			bindings = append(bindings, binding{idx: idx, targets: []string{col}})
			targeted[col] = true
		}
	}

	b.Columns = []string{loan.ColDatasetID}
	mapped := make([]string, 0, len(targeted))
	for col := range targeted {
		if col != loan.ColDatasetID {
			mapped = append(mapped, col)
		}
	}
	sort.Strings(mapped)
	b.Columns = append(b.Columns, mapped...)
	b.Columns = append(b.Columns, loan.DerivedColumns...)

	b.Records = make([]Canonical, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := Canonical{loan.ColDatasetID: datasetID}
		for _, bd := range bindings {
			for _, tgt := range bd.targets {
				v, err := loan.Coerce(tgt, row.Cells[bd.idx])
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMapping, err)
				}
				rec[tgt] = v
			}
		}
		rec[loan.ColAdditionalFields] = NestExtras(row.Extra)
		Derive(rec)
		b.Records = append(b.Records, rec)
	}
	return b, nil
}

// Derive fills the collection metric columns of rec from its collection36m
// series. The NPA date falls back to the one inferred from dpd36m. A record
// whose metrics cannot be computed gets zeros.
func Derive(rec Canonical) {
	m := timeseries.ZeroMetrics()
	func() {
		defer func() {
			if r := recover(); r != nil {
				m = timeseries.ZeroMetrics()
			}
		}()
		af, _ := rec[loan.ColAdditionalFields].(map[string]any)
		ns := timeseries.NormalizeAdditionalFields(af)
		npa := dateOf(rec[loan.ColDateOfNPA])
		if npa == nil {
			if d, ok := timeseries.InferNPAFromDPD(timeseries.ParseValues(ns.DPD)); ok {
				npa = &d
			}
		}
		woff := dateOf(rec[loan.ColDateOfWOff])
		m = timeseries.ComputeCollectionMetrics(timeseries.ParseAmounts(ns.Collection), npa, woff)
	}()

	rec[loan.ColTotalCollection] = m.Total
	rec[loan.ColM6Collection] = m.Trailing6
	rec[loan.ColM12Collection] = m.Trailing12
	rec[loan.ColPostNPACollection] = decimalOrNil(m.PostNPA)
	rec[loan.ColPostWOffCollection] = decimalOrNil(m.PostWOff)
}

func dateOf(v any) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
