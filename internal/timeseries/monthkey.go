// Package timeseries parses month-keyed series ("apr_25" -> amount) stored in a
// loan record's additional fields and derives collection metrics from them.
package timeseries

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/normalize"
)

// MonthKeyPattern matches keys such as "apr_25" or "sept_24".
var MonthKeyPattern = regexp.MustCompile(`^[a-zA-Z]+_\d{2}$`)

// Only the first three letters are significant, so "june", "july" and
// "sept" resolve through the same table.
var monthTokens = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

// Point is one month of a series, dated at the month's last day.
type Point struct {
	Key    string
	Month  time.Time
	Amount decimal.Decimal
}

// Series is a chronologically ordered list of points.
type Series []Point

// ParseMonthKey converts "apr_25" into 2025-04-30.
func ParseMonthKey(key string) (time.Time, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	if !MonthKeyPattern.MatchString(k) {
		return time.Time{}, false
	}
	name, yy, _ := strings.Cut(k, "_")
	if len(name) < 3 {
		return time.Time{}, false
	}
	month, ok := monthTokens[name[:3]]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yy)
	if err != nil {
		return time.Time{}, false
	}
	return normalize.EndOfMonth(2000+year, month), true
}

// ParseAmounts builds a series from a month-key map. Keys that are not month
// keys are dropped; values that are not numbers count as zero.
func ParseAmounts(raw map[string]any) Series {
	return parse(raw, true)
}

// ParseValues is ParseAmounts for series where a non-numeric value means
// "no observation" (DPD readings) and the point is dropped instead.
func ParseValues(raw map[string]any) Series {
	return parse(raw, false)
}

func parse(raw map[string]any, zeroInvalid bool) Series {
	if len(raw) == 0 {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Series, 0, len(keys))
	for _, k := range keys {
		month, ok := ParseMonthKey(k)
		if !ok {
			continue
		}
		amount, ok := normalize.CleanNumeric(raw[k])
		if !ok {
			if !zeroInvalid {
				continue
			}
			amount = decimal.Zero
		}
		out = append(out, Point{Key: strings.ToLower(k), Month: month, Amount: amount})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// Sum adds every amount in the series.
func (s Series) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s {
		total = total.Add(p.Amount)
	}
	return total
}

// Last returns the trailing n entries (or the whole series when shorter).
func (s Series) Last(n int) Series {
	if n <= 0 {
		return nil
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
