package bucket

import (
	"fmt"
	"log"
	"strings"

	"TalkToDataLoanPro/internal/loan"
)

// Filter narrows the records a summary runs over. Fields that are not
// canonical columns address additional_fields keys as text.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	MinValue any    `json:"min_value"`
	MaxValue any    `json:"max_value"`
	Enabled  *bool  `json:"enabled"`
}

// IsEnabled treats a missing flag as enabled.
func (f Filter) IsEnabled() bool { return f.Enabled == nil || *f.Enabled }

// FilterPolicy decides what a malformed filter does to the request.
type FilterPolicy int

const (
	// LenientFilters logs and skips a malformed filter.
	LenientFilters FilterPolicy = iota
	// StrictFilters fails the request.
	StrictFilters
)

// renderFilters returns the AND-ed predicates of the enabled filters, or an
// empty string when none apply.
func renderFilters(q *query, filters []Filter, policy FilterPolicy) (string, error) {
	var parts []string
	for _, f := range filters {
		if !f.IsEnabled() {
			continue
		}
		sql, err := renderFilter(q, f)
		if err != nil {
			if policy == StrictFilters {
				return "", err
			}
			log.Printf("[BUCKET] Skipping filter %s %s: %v", f.Field, f.Operator, err)
			continue
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

func renderFilter(q *query, f Filter) (string, error) {
	field := strings.TrimSpace(f.Field)
	if field == "" {
		return "", fmt.Errorf("%w: missing field", ErrInvalidFilter)
	}
	col := q.d.JSONText(field)
	if loan.IsCanonical(field) {
		col = quoteIdent(field)
	}
	// Args are bound only once the filter is known to be well formed so a
	// skipped filter leaves no dangling placeholder.
	switch f.Operator {
	case "=", "!=", ">", ">=", "<", "<=":
		if f.Value == nil {
			return "", fmt.Errorf("%w: %s needs a value", ErrInvalidFilter, f.Operator)
		}
		op := f.Operator
		if op == "!=" {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", col, op, q.arg(filterArg(f.Value))), nil
	case "between":
		if f.MinValue == nil || f.MaxValue == nil {
			return "", fmt.Errorf("%w: between needs min_value and max_value", ErrInvalidFilter)
		}
		lo := q.arg(filterArg(f.MinValue))
		hi := q.arg(filterArg(f.MaxValue))
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil
	case "isNull":
		return col + " IS NULL", nil
	case "isNotNull":
		return col + " IS NOT NULL", nil
	case "contains", "startsWith", "endsWith":
		if f.Value == nil {
			return "", fmt.Errorf("%w: %s needs a value", ErrInvalidFilter, f.Operator)
		}
		v := likeEscape(fmt.Sprint(filterArg(f.Value)))
		switch f.Operator {
		case "contains":
			v = "%" + v + "%"
		case "startsWith":
			v += "%"
		default:
			v = "%" + v
		}
		return fmt.Sprintf(`CAST(%s AS TEXT) %s %s ESCAPE '\'`, col, q.d.Like(), q.arg(v)), nil
	}
	return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, f.Operator)
}

func filterArg(v any) any {
	switch t := v.(type) {
	case string, float64, int, int64, bool:
		return t
	}
	return fmt.Sprint(v)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string { return likeEscaper.Replace(s) }
