package bucket

import (
	"fmt"
	"strconv"
	"strings"

	"TalkToDataLoanPro/internal/loan"
)

// Dialect renders expressions for one SQL backend.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	// JSONText extracts a top-level additional_fields key as text.
	JSONText(key string) string
	// AsNumber turns a text expression into a number, NULL when it is not one.
	AsNumber(expr string) string
	// Like is the case-insensitive pattern match operator.
	Like() string
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

type postgresDialect struct{}

func (postgresDialect) Name() string               { return "postgres" }
func (postgresDialect) Placeholder(n int) string   { return "$" + strconv.Itoa(n) }
func (postgresDialect) JSONText(key string) string { return "(additional_fields->>" + quoteLiteral(key) + ")" }
func (postgresDialect) Like() string               { return "ILIKE" }

func (postgresDialect) AsNumber(expr string) string {
	return fmt.Sprintf(`(CASE WHEN TRIM(%[1]s) ~ '^-?[0-9]+(\.[0-9]+)?$' THEN CAST(TRIM(%[1]s) AS double precision) END)`, expr)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string             { return "sqlite" }
func (sqliteDialect) Placeholder(n int) string { return "?" }
func (sqliteDialect) Like() string             { return "LIKE" }

func (sqliteDialect) JSONText(key string) string {
	path := `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
	return "CAST(json_extract(additional_fields, " + quoteLiteral(path) + ") AS TEXT)"
}

func (sqliteDialect) AsNumber(expr string) string {
	return fmt.Sprintf(`(CASE WHEN TRIM(%[1]s) GLOB '[0-9]*' OR TRIM(%[1]s) GLOB '-[0-9]*' THEN CAST(TRIM(%[1]s) AS REAL) END)`, expr)
}

// query collects SQL text and its positional arguments.
type query struct {
	d    Dialect
	args []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// columnExpr addresses a canonical column or, for JSON targets, an
// additional_fields key read as text (or as a number for range rules).
func columnExpr(d Dialect, field string, isJSON, numeric bool) (string, error) {
	if isJSON {
		expr := d.JSONText(field)
		if numeric {
			expr = d.AsNumber(expr)
		}
		return expr, nil
	}
	if !loan.IsCanonical(field) {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, field)
	}
	return quoteIdent(field), nil
}

// renderCase renders c over col. Labels and bounds come from stored
// configuration and are inlined as literals.
func renderCase(c Case, col string) string {
	if c.Passthrough {
		return col
	}
	if len(c.Whens) == 0 {
		if c.Else == nil {
			return "NULL"
		}
		return quoteLiteral(*c.Else)
	}
	var b strings.Builder
	b.WriteString("CASE")
	for _, w := range c.Whens {
		b.WriteString(" WHEN ")
		b.WriteString(renderPred(w.Pred, col))
		b.WriteString(" THEN ")
		b.WriteString(quoteLiteral(w.Label))
	}
	if c.Else != nil {
		b.WriteString(" ELSE ")
		b.WriteString(quoteLiteral(*c.Else))
	}
	b.WriteString(" END")
	return b.String()
}

func renderPred(p Pred, col string) string {
	switch t := p.(type) {
	case IsNull:
		return col + " IS NULL"
	case LessThan:
		return col + " < " + formatNumber(t.V)
	case AtLeast:
		return col + " >= " + formatNumber(t.V)
	case AtMost:
		return col + " <= " + formatNumber(t.V)
	case Equals:
		return col + " = " + formatNumber(t.V)
	case Between:
		if t.HalfOpen {
			return fmt.Sprintf("(%s >= %s AND %s < %s)", col, formatNumber(t.Lo), col, formatNumber(t.Hi))
		}
		return fmt.Sprintf("(%s >= %s AND %s <= %s)", col, formatNumber(t.Lo), col, formatNumber(t.Hi))
	case InSet:
		vals := make([]string, len(t.Values))
		for i, v := range t.Values {
			vals[i] = quoteLiteral(v)
		}
		return col + " IN (" + strings.Join(vals, ", ") + ")"
	}
	return "FALSE"
}
