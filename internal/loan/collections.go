package loan

import (
	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/normalize"
	"TalkToDataLoanPro/internal/timeseries"
)

// collectionAliases are the headers older exports used for the collection
// summary columns before the monthly series existed.
var collectionAliases = map[string][]string{
	ColM3Collection: {
		"3m col", "3m_col", "3mcol", "3 month collection", "3_month_collection",
		"3monthcollection", "collection_3m", "collection 3m", "m3 collection", "m3_collection", "m3collection",
	},
	ColM6Collection: {
		"6m col", "6m_col", "6mcol", "6 month collection", "6_month_collection",
		"6monthcollection", "collection_6m", "collection 6m", "m6 collection", "m6_collection", "m6collection",
	},
	ColM12Collection: {
		"12m col", "12m_col", "12mcol", "12 month collection", "12_month_collection",
		"12monthcollection", "collection_12m", "collection 12m", "1y col", "1y_col", "1ycol",
		"1 year collection", "1_year_collection", "1yearcollection", "m12 collection", "m12_collection", "m12collection",
	},
	ColTotalCollection: {
		"total collection", "total_collection", "totalcollection", "total col", "total_col", "totalcol",
	},
}

// CollectionUpdate is the set of collection columns to write back for one
// record. Only columns present in Values change.
type CollectionUpdate struct {
	RecordID string
	Values   map[string]decimal.NullDecimal
}

// RecomputeCollections re-derives the collection columns of r. A record with
// a collection36m series gets its metrics recomputed from the series; any
// summary column still empty (null or <= 0) afterwards is filled from a
// matching alias key in additional fields. ok is false when nothing changes.
func (r *Record) RecomputeCollections() (CollectionUpdate, bool) {
	current := map[string]decimal.NullDecimal{
		ColM3Collection:       r.M3Collection,
		ColM6Collection:       r.M6Collection,
		ColM12Collection:      r.M12Collection,
		ColTotalCollection:    r.TotalCollection,
		ColPostNPACollection:  r.PostNPACollection,
		ColPostWOffCollection: r.PostWOffCollection,
	}
	next := make(map[string]decimal.NullDecimal, len(current))
	for k, v := range current {
		next[k] = v
	}

	if series := r.CollectionSeries(); len(series) > 0 {
		m := timeseries.ComputeCollectionMetrics(series, r.NPADate(), r.DateOfWOff)
		next[ColTotalCollection] = decimal.NewNullDecimal(m.Total)
		next[ColM6Collection] = decimal.NewNullDecimal(m.Trailing6)
		next[ColM12Collection] = decimal.NewNullDecimal(m.Trailing12)
		next[ColPostNPACollection] = nullable(m.PostNPA)
		next[ColPostWOffCollection] = nullable(m.PostWOff)
	}

	for col, aliases := range collectionAliases {
		if v := next[col]; v.Valid && v.Decimal.IsPositive() {
			continue
		}
		for _, alias := range aliases {
			raw, ok := r.ExtraFold(alias)
			if !ok {
				continue
			}
			if d, ok := normalize.CleanNumeric(raw); ok {
				next[col] = decimal.NewNullDecimal(d)
				break
			}
		}
	}

	update := CollectionUpdate{RecordID: r.ID, Values: map[string]decimal.NullDecimal{}}
	for col, v := range next {
		if !sameNull(current[col], v) {
			update.Values[col] = v
		}
	}
	return update, len(update.Values) > 0
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func sameNull(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
