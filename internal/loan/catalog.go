// Package loan describes the canonical loan record: the typed column catalog
// used when mapping spreadsheet columns, and the Record view used by code that
// reads records back.
package loan

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/normalize"
)

// Kind is the storage type of a canonical column.
type Kind int

const (
	Text Kind = iota
	Integer
	Numeric
	Date
	Boolean
	JSON
	UUID
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "int"
	case Numeric:
		return "float"
	case Date:
		return "date"
	case Boolean:
		return "bool"
	case JSON:
		return "json"
	case UUID:
		return "uuid"
	}
	return "str"
}

// Column names referenced directly by the engine.
const (
	ColDatasetID          = "dataset_id"
	ColAgreementNo        = "agreement_no"
	ColAdditionalFields   = "additional_fields"
	ColPrincipalOS        = "principal_os_amt"
	ColDateOfNPA          = "date_of_npa"
	ColDateOfWOff         = "date_of_woff"
	ColTotalCollection    = "total_collection"
	ColPostNPACollection  = "post_npa_collection"
	ColPostWOffCollection = "post_woff_collection"
	ColM3Collection       = "m3_collection"
	ColM6Collection       = "m6_collection"
	ColM12Collection      = "m12_collection"
)

// DerivedColumns are filled by the ingestion pipeline itself, never by a
// source mapping, and are always part of a load.
var DerivedColumns = []string{
	ColAdditionalFields,
	ColTotalCollection,
	ColPostNPACollection,
	ColPostWOffCollection,
	ColM6Collection,
	ColM12Collection,
}

var catalog = map[string]Kind{
	ColDatasetID:     UUID,
	ColAgreementNo:   Text,
	"loan_id":        Text,
	"account_number": Text,

	"first_disb_date": Date,
	"last_disb_date":  Date,
	"sanction_date":   Date,
	ColDateOfNPA:      Date,
	ColDateOfWOff:     Date,

	"npa_write_off":           Text,
	"date_woff_gt_npa_date":   Boolean,
	"dpd_as_on_31st_jan_2025": Integer,
	"dpd_as_per_string":       Integer,
	"difference":              Integer,
	"dpd_by_skc":              Integer,
	"diff":                    Integer,
	"dpd":                     Integer,

	ColPrincipalOS:                 Numeric,
	"interest_overdue_amt":         Numeric,
	"penal_interest_overdue":       Numeric,
	"chq_bounce_other_charges_amt": Numeric,
	"total_balance_amt":            Numeric,
	"provision_done_till_date":     Numeric,
	"carrying_value_as_on_date":    Numeric,
	"sanction_amt":                 Numeric,
	"total_amt_disb":               Numeric,
	"pos_amount":                   Numeric,
	"disbursement_amount":          Numeric,
	"emi_amt":                      Numeric,
	"roi_at_booking":               Numeric,
	"pos_gt_dis":                   Boolean,

	"classification":       Text,
	"product_type":         Text,
	"product_type_skc":     Text,
	"status":               Text,
	"customer_name":        Text,
	"state":                Text,
	"city":                 Text,
	"employment_type":      Text,
	"vehicle_description":  Text,
	"brand_name_skc":       Text,
	"bureau_score":         Integer,
	"current_bureau_score": Integer,

	"current_tenor":         Integer,
	"balance_tenor":         Integer,
	"original_tenor_months": Integer,
	"no_of_emi_paid":        Integer,

	"m1_collection":       Numeric,
	"m2_collection":       Numeric,
	ColM3Collection:       Numeric,
	"m4_collection":       Numeric,
	"m5_collection":       Numeric,
	ColM6Collection:       Numeric,
	"m7_collection":       Numeric,
	"m8_collection":       Numeric,
	"m9_collection":       Numeric,
	"m10_collection":      Numeric,
	"m11_collection":      Numeric,
	ColM12Collection:      Numeric,
	"collection_12m":      Numeric,
	ColTotalCollection:    Numeric,
	ColPostNPACollection:  Numeric,
	ColPostWOffCollection: Numeric,

	"auto_dpd_bucket":            Text,
	"auto_pos_bucket":            Text,
	"auto_model_year_skc_bucket": Text,
	"auto_roi_at_booking_bucket": Text,
	"auto_bureau_score_bucket":   Text,
	"auto_current_ltv_bucket":    Text,

	"arbitration_status": Text,
	ColAdditionalFields:  JSON,
}

// KindOf reports the kind of a canonical column.
func KindOf(column string) (Kind, bool) {
	k, ok := catalog[column]
	return k, ok
}

// IsCanonical reports whether column is a native loan_records column.
func IsCanonical(column string) bool {
	_, ok := catalog[column]
	return ok
}

// ColumnInfo describes one column for field pickers.
type ColumnInfo struct {
	Name   string `json:"column_name"`
	Type   string `json:"data_type"`
	IsJSON bool   `json:"is_json"`
}

// Columns lists the catalog sorted by name.
func Columns() []ColumnInfo {
	out := make([]ColumnInfo, 0, len(catalog))
	for name, kind := range catalog {
		out = append(out, ColumnInfo{Name: name, Type: kind.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Coerce converts a raw cell into the Go value stored for column. A nil
// result means SQL NULL. Values that cannot be read as the column's kind are
// stored as NULL rather than failing the row.
func Coerce(column string, v any) (any, error) {
	kind, ok := catalog[column]
	if !ok {
		return nil, fmt.Errorf("unknown loan record column %q", column)
	}
	switch kind {
	case Text, UUID:
		if s, ok := normalize.ToString(v); ok {
			return s, nil
		}
	case Integer:
		if n, ok := normalize.ToInt(v); ok {
			return n, nil
		}
	case Numeric:
		if d, ok := normalize.CleanNumeric(v); ok {
			return d, nil
		}
	case Date:
		if t, ok := normalize.NormalizeDate(v); ok {
			return t, nil
		}
	case Boolean:
		if b, ok := normalize.ToBool(v); ok {
			return b, nil
		}
	case JSON:
		return coerceJSON(v)
	}
	return nil, nil
}

func coerceJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, fmt.Errorf("additional fields: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("additional fields: unsupported value %T", v)
}

// TextValue converts a coerced value into the plain text form used by
// database/sql drivers without native numeric, date or JSON types.
func TextValue(v any) (any, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t.String(), nil
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case time.Time:
		return t.Format(normalize.DateLayout), nil
	}
	return v, nil
}
