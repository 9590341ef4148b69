// Package bucket resolves bucket configurations for a dataset, compiles
// their rule lists into categorical expressions and aggregates loan records
// into bucket summaries.
package bucket

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"TalkToDataLoanPro/internal/loan"
)

// WildcardValue as the only value of a rule groups by every distinct value.
const WildcardValue = "ALL"

// BlankSummaryType stands in for datasets without a file type.
const BlankSummaryType = "--BLANK--"

var (
	ErrInvalidRules     = errors.New("invalid bucket rules")
	ErrInvalidDataset   = errors.New("invalid dataset id")
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrConfigNotFound   = errors.New("bucket config not found")
	ErrConfigExists     = errors.New("bucket config already exists for this dataset and field")
	ErrConfigForbidden  = errors.New("bucket config belongs to another user")
	ErrNoConfigSelector = errors.New("provide config_ids or config_types")
	ErrInvalidFilter    = errors.New("invalid filter")
	ErrUnknownColumn    = errors.New("unknown loan record column")
)

// Rule is one bucket. A rule either lists values (string mode) or carries a
// numeric min/max range where either bound may be absent.
type Rule struct {
	Values []string `json:"values,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Label  string   `json:"label"`
}

// IsWildcard reports whether the rule is {values: ["ALL"]}.
func (r Rule) IsWildcard() bool {
	return len(r.Values) == 1 && strings.EqualFold(r.Values[0], WildcardValue)
}

func (r *Rule) UnmarshalJSON(b []byte) error {
	var raw struct {
		Values *[]any  `json:"values"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
		Label  any      `json:"label"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Rule{Min: raw.Min, Max: raw.Max, Label: scalarText(raw.Label)}
	if raw.Values != nil {
		// Present but empty marks a string-mode catch-all rule.
		r.Values = make([]string, 0, len(*raw.Values))
		for _, v := range *raw.Values {
			r.Values = append(r.Values, scalarText(v))
		}
	}
	return nil
}

func (r Rule) MarshalJSON() ([]byte, error) {
	out := map[string]any{"label": r.Label}
	if r.Values != nil {
		out["values"] = r.Values
	} else {
		out["min"] = r.Min
		out["max"] = r.Max
	}
	return json.Marshal(out)
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Rules is an ordered rule list; the first matching rule wins.
type Rules []Rule

// StringMode reports whether the rules list values rather than ranges.
func (rs Rules) StringMode() bool {
	return len(rs) > 0 && rs[0].Values != nil
}

// Wildcard reports whether any rule is a wildcard.
func (rs Rules) Wildcard() bool {
	for _, r := range rs {
		if r.IsWildcard() {
			return true
		}
	}
	return false
}

// Labels returns the distinct labels in configured order.
func (rs Rules) Labels() []string {
	seen := make(map[string]bool, len(rs))
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if !seen[r.Label] {
			seen[r.Label] = true
			out = append(out, r.Label)
		}
	}
	return out
}

// Validate checks a rule list before it is stored.
func (rs Rules) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("%w: at least one rule is required", ErrInvalidRules)
	}
	stringMode := rs.StringMode()
	for i, r := range rs {
		if strings.TrimSpace(r.Label) == "" {
			return fmt.Errorf("%w: rule %d has no label", ErrInvalidRules, i+1)
		}
		if (r.Values != nil) != stringMode {
			return fmt.Errorf("%w: rule %d mixes value and range rules", ErrInvalidRules, i+1)
		}
		if stringMode {
			if r.Min != nil || r.Max != nil {
				return fmt.Errorf("%w: rule %d has both values and a range", ErrInvalidRules, i+1)
			}
			continue
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("%w: rule %d has min %v above max %v", ErrInvalidRules, i+1, *r.Min, *r.Max)
		}
	}
	return nil
}

// Value stores the rules as JSON.
func (rs Rules) Value() (driver.Value, error) {
	b, err := json.Marshal(rs)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads rules stored as JSON.
func (rs *Rules) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*rs = nil
		return nil
	case []byte:
		return json.Unmarshal(v, rs)
	case string:
		return json.Unmarshal([]byte(v), rs)
	}
	return fmt.Errorf("bucket rules: cannot scan %T", src)
}

// Config is a stored bucket configuration. A nil DatasetID makes it global.
type Config struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	DatasetID         *string   `json:"dataset_id"`
	Name              string    `json:"name"`
	SummaryType       string    `json:"summary_type"`
	TargetField       string    `json:"target_field"`
	TargetFieldIsJSON bool      `json:"target_field_is_json"`
	IsDefault         bool      `json:"is_default"`
	Description       string    `json:"description,omitempty"`
	SortOrder         *int      `json:"sort_order"`
	Rules             Rules     `json:"bucket_config"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks a configuration before it is stored.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRules)
	}
	if strings.TrimSpace(c.TargetField) == "" {
		return fmt.Errorf("%w: target_field is required", ErrInvalidRules)
	}
	if !c.TargetFieldIsJSON && !loan.IsCanonical(c.TargetField) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, c.TargetField)
	}
	if strings.TrimSpace(c.SummaryType) == "" {
		return fmt.Errorf("%w: summary_type is required", ErrInvalidRules)
	}
	return c.Rules.Validate()
}
