package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical storage format for dates.
const DateLayout = "2006-01-02"

// excelEpoch is day zero of the 1900 date system as spreadsheets count it
// (30 Dec 1899, which absorbs the 1900 leap-year bug).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// dateLayouts are tried in order. Day-first forms come before month-first
// ones so "05/04/2025" reads as 5 April.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-1-2",
	"2-1-2006",
	"2/1/2006",
	"1/2/2006",
	"2/1/06",
	"1/2/06",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"2 January 2006",
	"2.1.2006",
	"2006/1/2",
	"Jan 2, 2006",
}

// NormalizeDate converts time values, Excel serial numbers and the common
// text layouts into a UTC midnight date.
func NormalizeDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return dateOnly(t), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return dateOnly(*t), true
	case float64:
		return FromExcelSerial(t)
	case float32:
		return FromExcelSerial(float64(t))
	case int:
		return FromExcelSerial(float64(t))
	case int64:
		return FromExcelSerial(float64(t))
	case string:
		return ParseDate(t)
	}
	if d, ok := CleanNumeric(v); ok {
		return FromExcelSerial(d.InexactFloat64())
	}
	return time.Time{}, false
}

// ParseDate parses a text date. Bare numbers are read as Excel serials.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if IsNullToken(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromExcelSerial(f)
	}
	return time.Time{}, false
}

// FromExcelSerial converts a spreadsheet day count into a date. The
// fractional part (time of day) is discarded.
func FromExcelSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || serial <= 0 || serial > maxExcelSerial {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(math.Floor(serial))), true
}

// EndOfMonth returns the last calendar day of the month.
func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return EndOfMonth(year, month).Day()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
