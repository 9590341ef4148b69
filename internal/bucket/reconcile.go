package bucket

import (
	"github.com/shopspring/decimal"
)

// TotalLabel names the grand total row.
const TotalLabel = "Total"

var hundred = decimal.NewFromInt(100)

// Bucket is one row of a summary. A nil Label is the null group of a
// wildcard summary.
type Bucket struct {
	Label    *string         `json:"label"`
	Count    int64           `json:"count"`
	POS      decimal.Decimal `json:"POS"`
	POSPer   decimal.Decimal `json:"POS_Per"`
	PostNPA  decimal.Decimal `json:"Post_NPA_Coll"`
	PostWOff decimal.Decimal `json:"Post_W_Off_Coll"`
	M6       decimal.Decimal `json:"M6_Collection"`
	M12      decimal.Decimal `json:"M12_Collection"`
	Total    decimal.Decimal `json:"total_collection"`
}

// Reconcile shapes grouped rows into summary buckets followed by a Total
// row.
//
// Without a wildcard, groups without a label are dropped and, when
// showEmpty is set, the result lists every configured label in rule order
// (zero rows for labels with no records) followed by any other labels the
// query produced. A wildcard summary reports the groups exactly as found.
func Reconcile(rows []GroupRow, rules Rules, showEmpty bool) []Bucket {
	wildcard := rules.Wildcard()
	kept := make([]GroupRow, 0, len(rows))
	for _, r := range rows {
		if r.Label == nil && !wildcard {
			continue
		}
		kept = append(kept, r)
	}

	total := GroupRow{}
	for _, r := range kept {
		total.Count += r.Count
		total.POS = total.POS.Add(r.POS)
		total.PostNPA = total.PostNPA.Add(r.PostNPA)
		total.PostWOff = total.PostWOff.Add(r.PostWOff)
		total.M6 = total.M6.Add(r.M6)
		total.M12 = total.M12.Add(r.M12)
		total.Total = total.Total.Add(r.Total)
	}

	out := make([]Bucket, 0, len(kept)+len(rules)+1)
	if showEmpty && !wildcard {
		byLabel := make(map[string]GroupRow, len(kept))
		for _, r := range kept {
			byLabel[*r.Label] = r
		}
		configured := make(map[string]bool, len(rules))
		for _, label := range rules.Labels() {
			configured[label] = true
			r, ok := byLabel[label]
			if !ok {
				l := label
				r = GroupRow{Label: &l}
			}
			out = append(out, toBucket(r, total.POS))
		}
		for _, r := range kept {
			if !configured[*r.Label] {
				out = append(out, toBucket(r, total.POS))
			}
		}
	} else {
		for _, r := range kept {
			out = append(out, toBucket(r, total.POS))
		}
	}

	label := TotalLabel
	totalRow := toBucket(total, total.POS)
	totalRow.Label = &label
	totalRow.POSPer = hundred
	return append(out, totalRow)
}

func toBucket(r GroupRow, totalPOS decimal.Decimal) Bucket {
	per := decimal.Zero
	if !totalPOS.IsZero() {
		per = r.POS.Div(totalPOS).Mul(hundred).Round(2)
	}
	return Bucket{
		Label:    r.Label,
		Count:    r.Count,
		POS:      r.POS,
		POSPer:   per,
		PostNPA:  r.PostNPA,
		PostWOff: r.PostWOff,
		M6:       r.M6,
		M12:      r.M12,
		Total:    r.Total,
	}
}
