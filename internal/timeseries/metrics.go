package timeseries

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metrics are the collection figures derived from a collection36m series.
// PostNPA and PostWOff stay nil when the event date is unknown so that
// "never became NPA" is not reported as "collected nothing after NPA".
type Metrics struct {
	Total      decimal.Decimal
	PostNPA    *decimal.Decimal
	PostWOff   *decimal.Decimal
	Trailing6  decimal.Decimal
	Trailing12 decimal.Decimal
}

// ZeroMetrics is what an empty or unusable series produces.
func ZeroMetrics() Metrics {
	npa, woff := decimal.Zero, decimal.Zero
	return Metrics{
		Total:      decimal.Zero,
		PostNPA:    &npa,
		PostWOff:   &woff,
		Trailing6:  decimal.Zero,
		Trailing12: decimal.Zero,
	}
}

// IsPostEvent treats the whole event month as post-event.
func IsPostEvent(month, event time.Time) bool {
	start := time.Date(event.Year(), event.Month(), 1, 0, 0, 0, 0, time.UTC)
	return !month.Before(start)
}

// ComputeCollectionMetrics derives totals from a chronologically sorted series.
// Trailing windows count entries, not calendar months.
func ComputeCollectionMetrics(series Series, npaDate, woffDate *time.Time) Metrics {
	if len(series) == 0 {
		return ZeroMetrics()
	}
	m := Metrics{
		Total:      series.Sum(),
		Trailing6:  series.Last(6).Sum(),
		Trailing12: series.Last(12).Sum(),
	}
	if npaDate != nil {
		v := sumSince(series, *npaDate)
		m.PostNPA = &v
	}
	if woffDate != nil {
		v := sumSince(series, *woffDate)
		m.PostWOff = &v
	}
	return m
}

func sumSince(series Series, event time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, p := range series {
		if IsPostEvent(p.Month, event) {
			total = total.Add(p.Amount)
		}
	}
	return total
}
