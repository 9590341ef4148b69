package timeseries

import (
	"strings"
	"time"

	"TalkToDataLoanPro/internal/normalize"
)

const (
	NamespaceDPD        = "dpd36m"
	NamespaceCollection = "collection36m"

	legacyDPD        = "dpd"
	legacyCollection = "collection"

	// NPAThreshold is the DPD at which an account is classified NPA.
	NPAThreshold = 90
)

// Namespaces holds the two month-keyed maps of additional_fields.
type Namespaces struct {
	DPD        map[string]any
	Collection map[string]any
}

// NormalizeAdditionalFields reads the current {dpd36m, collection36m} shape,
// the older {dpd, collection} shape and the oldest flat month-key map (which
// always held DPD readings). Non month keys are dropped and keys lowercased.
func NormalizeAdditionalFields(af map[string]any) Namespaces {
	out := Namespaces{DPD: map[string]any{}, Collection: map[string]any{}}
	if len(af) == 0 {
		return out
	}

	_, hasDPD := af[NamespaceDPD]
	_, hasCollection := af[NamespaceCollection]
	if hasDPD || hasCollection {
		out.DPD = filterMonthKeys(af[NamespaceDPD])
		out.Collection = filterMonthKeys(af[NamespaceCollection])
		return out
	}

	out.DPD = filterMonthKeys(af[legacyDPD])
	out.Collection = filterMonthKeys(af[legacyCollection])
	if len(out.DPD) == 0 && len(out.Collection) == 0 {
		out.DPD = filterMonthKeys(af)
	}
	return out
}

func filterMonthKeys(v any) map[string]any {
	out := map[string]any{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		if MonthKeyPattern.MatchString(k) {
			out[strings.ToLower(k)] = val
		}
	}
	return out
}

// InferNPAFromDPD finds the first month where DPD crosses the NPA threshold
// and estimates the day it crossed: an account at 60 DPD at the previous
// month end crosses 90 about 30 days in.
func InferNPAFromDPD(dpd Series) (time.Time, bool) {
	if len(dpd) < 2 {
		return time.Time{}, false
	}
	for i := 1; i < len(dpd); i++ {
		prev := dpd[i-1].Amount.IntPart()
		curr := dpd[i].Amount.IntPart()
		if prev < NPAThreshold && curr >= NPAThreshold {
			year, month := dpd[i].Month.Year(), dpd[i].Month.Month()
			day := int(NPAThreshold - prev)
			if last := normalize.DaysIn(year, month); day > last {
				day = last
			}
			if day < 1 {
				day = 1
			}
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
