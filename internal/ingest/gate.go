package ingest

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/normalize"
	"TalkToDataLoanPro/internal/timeseries"
)

// MaxDPD is the largest plausible days-past-due reading.
const MaxDPD = 1000

// Validate runs the dataset-wide checks on a mapped batch. The first failure
// is returned wrapped in ErrValidation.
func Validate(b *Batch) error {
	if len(b.Records) == 0 {
		return fmt.Errorf("%w: No records found after mapping", ErrValidation)
	}
	sample, ok := b.Records[0][loan.ColAdditionalFields].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: additional_fields not created", ErrValidation)
	}
	_, hasDPD := sample[timeseries.NamespaceDPD]
	_, hasCollection := sample[timeseries.NamespaceCollection]
	if !hasDPD && !hasCollection {
		return fmt.Errorf("%w: DPD36M and Collection36M both missing", ErrValidation)
	}

	for i, rec := range b.Records {
		af, _ := rec[loan.ColAdditionalFields].(map[string]any)
		if hasDPD {
			if key, bad := firstOutside(af[timeseries.NamespaceDPD], decimal.Zero, decimal.NewFromInt(MaxDPD)); bad {
				return fmt.Errorf("%w: Invalid DPD36M value (must be 0-%d) at row %d, %s", ErrValidation, MaxDPD, i+1, key)
			}
		}
		if hasCollection {
			if key, bad := firstOutside(af[timeseries.NamespaceCollection], decimal.Zero, decimal.Decimal{}); bad {
				return fmt.Errorf("%w: Negative collection value at row %d, %s", ErrValidation, i+1, key)
			}
		}
		npa, okN := rec[loan.ColPostNPACollection].(decimal.Decimal)
		woff, okW := rec[loan.ColPostWOffCollection].(decimal.Decimal)
		if okN && okW && woff.GreaterThan(npa) {
			return fmt.Errorf("%w: Post-WOFF > Post-NPA at row %d (%s > %s)", ErrValidation, i+1, woff, npa)
		}
	}
	return nil
}

// firstOutside reports the first non-null value of a namespace map below lo
// or above hi. A zero hi means no upper bound.
func firstOutside(ns any, lo, hi decimal.Decimal) (string, bool) {
	m, ok := ns.(map[string]any)
	if !ok {
		return "", false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if v == nil {
			continue
		}
		d, ok := normalize.CleanNumeric(v)
		if !ok {
			continue
		}
		if d.LessThan(lo) || (!hi.IsZero() && d.GreaterThan(hi)) {
			return k, true
		}
	}
	return "", false
}
