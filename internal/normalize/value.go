// Package normalize converts raw spreadsheet cell values into typed values.
// Every converter reports success with a bool; a false result means the cell
// is treated as null by callers.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// nullTokens are placeholder strings exported by spreadsheet tools for empty cells.
var nullTokens = map[string]struct{}{
	"":     {},
	"-":    {},
	"na":   {},
	"n/a":  {},
	"#n/a": {},
	"none": {},
	"null": {},
	"nan":  {},
}

var numericStripper = strings.NewReplacer(
	"$", "",
	"₹", "",
	"€", "",
	"£", "",
	"¥", "",
	",", "",
	" ", "",
	"\u00a0", "",
)

var hundred = decimal.NewFromInt(100)

// IsNullToken reports whether s (after trimming) is one of the null placeholders.
func IsNullToken(s string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsNullLike reports whether v should be stored as null.
func IsNullLike(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return IsNullToken(t)
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	case *string:
		return t == nil || IsNullToken(*t)
	}
	return false
}

// CleanNumeric parses numbers the way finance exports write them:
// "1,20,000", "₹ 500", "(250)" for negatives and "12.5%" for percentages.
func CleanNumeric(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint32:
		return decimal.NewFromInt(int64(t)), true
	case uint64:
		if t > math.MaxInt64 {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(int64(t)), true
	case bool, time.Time:
		return decimal.Zero, false
	case string:
		return parseNumericString(t)
	case *string:
		if t == nil {
			return decimal.Zero, false
		}
		return parseNumericString(*t)
	}
	return parseNumericString(fmt.Sprint(v))
}

func parseNumericString(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if IsNullToken(s) {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSuffix(s, "%")
	}

	s = numericStripper.Replace(s)
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if percent {
		d = d.Div(hundred)
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ToFloat is CleanNumeric for callers that want a float64.
func ToFloat(v any) (float64, bool) {
	d, ok := CleanNumeric(v)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// ToInt truncates any numeric value toward zero.
func ToInt(v any) (int64, bool) {
	d, ok := CleanNumeric(v)
	if !ok {
		return 0, false
	}
	return d.IntPart(), true
}

// ToString renders a cell as trimmed text. Whole floats lose their ".0" so
// account numbers read from numeric cells keep their original form.
func ToString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		if IsNullToken(s) {
			return "", false
		}
		return s, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case decimal.Decimal:
		return t.String(), true
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.Format(DateLayout), true
	case bool:
		return strconv.FormatBool(t), true
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if IsNullToken(s) {
		return "", false
	}
	return s, true
}

// ToBool accepts the usual yes/no spellings.
func ToBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case nil:
		return false, false
	}
	s, ok := ToString(v)
	if !ok {
		return false, false
	}
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "t":
		return true, true
	case "false", "no", "n", "0", "f":
		return false, true
	}
	return false, false
}
