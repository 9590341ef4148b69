package timeseries

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseMonthKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key    string
		want   time.Time
		wantOK bool
	}{
		{"apr_25", date(2025, time.April, 30), true},
		{"APR_25", date(2025, time.April, 30), true},
		{"feb_24", date(2024, time.February, 29), true},
		{"june_25", date(2025, time.June, 30), true},
		{"sept_24", date(2024, time.September, 30), true},
		{"xyz_25", time.Time{}, false},
		{"apr_2025", time.Time{}, false},
		{"apr25", time.Time{}, false},
		{"total", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseMonthKey(tc.key)
		if ok != tc.wantOK || (ok && !got.Equal(tc.want)) {
			t.Errorf("ParseMonthKey(%q) = %s, %v; want %s, %v", tc.key, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestParseAmountsSortsAndDrops(t *testing.T) {
	t.Parallel()

	s := ParseAmounts(map[string]any{
		"jun_25": 300,
		"apr_25": "100",
		"may_25": 200.0,
		"note":   "ignored",
		"jul_25": "n/a",
	})
	if len(s) != 4 {
		t.Fatalf("want 4 points, got %d", len(s))
	}
	wantKeys := []string{"apr_25", "may_25", "jun_25", "jul_25"}
	for i, k := range wantKeys {
		if s[i].Key != k {
			t.Fatalf("point %d = %s, want %s", i, s[i].Key, k)
		}
	}
	if !s[3].Amount.IsZero() {
		t.Fatalf("non-numeric amount should count as zero, got %s", s[3].Amount)
	}
	if v := ParseValues(map[string]any{"jul_25": "n/a", "aug_25": 30}); len(v) != 1 {
		t.Fatalf("ParseValues should drop non-numeric readings, got %d points", len(v))
	}
}

// TestPostNPAFromEventMonth checks that the whole NPA month counts as post-NPA.
func TestPostNPAFromEventMonth(t *testing.T) {
	t.Parallel()

	series := ParseAmounts(map[string]any{"apr_25": 100, "may_25": 200, "jun_25": 300})
	npa := date(2025, time.May, 10)

	m := ComputeCollectionMetrics(series, &npa, nil)
	if !m.Total.Equal(dec("600")) {
		t.Fatalf("total = %s, want 600", m.Total)
	}
	if m.PostNPA == nil || !m.PostNPA.Equal(dec("500")) {
		t.Fatalf("post_npa = %v, want 500", m.PostNPA)
	}
	if m.PostWOff != nil {
		t.Fatalf("post_woff should be unknown without a write-off date, got %s", m.PostWOff)
	}
	if !m.Trailing6.Equal(dec("600")) || !m.Trailing12.Equal(dec("600")) {
		t.Fatalf("trailing sums = %s / %s", m.Trailing6, m.Trailing12)
	}
}

func TestComputeCollectionMetricsEmpty(t *testing.T) {
	t.Parallel()

	npa := date(2025, time.May, 10)
	m := ComputeCollectionMetrics(nil, &npa, &npa)
	if !m.Total.IsZero() || m.PostNPA == nil || !m.PostNPA.IsZero() || m.PostWOff == nil || !m.PostWOff.IsZero() {
		t.Fatalf("empty series must yield zeros, got %+v", m)
	}
	if !m.Trailing6.IsZero() || !m.Trailing12.IsZero() {
		t.Fatalf("empty series trailing sums must be zero")
	}
}

// TestTrailingSixWithinTwelve checks on random series that the six-month
// window's months are the last six of the twelve-month window's months.
func TestTrailingSixWithinTwelve(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	months := []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

	for iter := 0; iter < 200; iter++ {
		n := 12 + rng.Intn(25)
		raw := map[string]any{}
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("%s_%02d", months[i%12], 20+i/12)
			raw[key] = rng.Intn(10000)
		}
		s := ParseAmounts(raw)
		six, twelve := s.Last(6), s.Last(12)

		inTwelve := map[string]bool{}
		for _, p := range twelve {
			inTwelve[p.Key] = true
		}
		for _, p := range six {
			if !inTwelve[p.Key] {
				t.Fatalf("iter %d: %s in trailing 6 but not trailing 12", iter, p.Key)
			}
		}
		m := ComputeCollectionMetrics(s, nil, nil)
		if m.Trailing6.GreaterThan(m.Trailing12) {
			t.Fatalf("iter %d: trailing6 %s > trailing12 %s", iter, m.Trailing6, m.Trailing12)
		}
	}
}

func TestNormalizeAdditionalFields(t *testing.T) {
	t.Parallel()

	current := NormalizeAdditionalFields(map[string]any{
		"dpd36m":        map[string]any{"APR_25": 30, "bad": 1},
		"collection36m": map[string]any{"apr_25": 100},
		"branch":        "Pune",
	})
	if len(current.DPD) != 1 || current.DPD["apr_25"] != 30 {
		t.Fatalf("current shape DPD = %v", current.DPD)
	}
	if len(current.Collection) != 1 {
		t.Fatalf("current shape collection = %v", current.Collection)
	}

	legacy := NormalizeAdditionalFields(map[string]any{
		"dpd":        map[string]any{"may_25": 60},
		"collection": map[string]any{"may_25": 10},
	})
	if legacy.DPD["may_25"] != 60 || legacy.Collection["may_25"] != 10 {
		t.Fatalf("legacy shape = %+v", legacy)
	}

	flat := NormalizeAdditionalFields(map[string]any{"jun_25": 95, "branch": "Pune"})
	if len(flat.DPD) != 1 || len(flat.Collection) != 0 {
		t.Fatalf("flat shape should map to dpd36m, got %+v", flat)
	}

	empty := NormalizeAdditionalFields(nil)
	if len(empty.DPD) != 0 || len(empty.Collection) != 0 {
		t.Fatalf("nil map should normalise to empty namespaces")
	}
}

func TestInferNPAFromDPD(t *testing.T) {
	t.Parallel()

	got, ok := InferNPAFromDPD(ParseValues(map[string]any{"apr_25": 30, "may_25": 60, "jun_25": 91}))
	if !ok || !got.Equal(date(2025, time.June, 30)) {
		t.Fatalf("crossing from 60 should land on day 30, got %s %v", got, ok)
	}

	got, ok = InferNPAFromDPD(ParseValues(map[string]any{"jan_25": 0, "feb_25": 120}))
	if !ok || !got.Equal(date(2025, time.February, 28)) {
		t.Fatalf("day must clamp to month length, got %s %v", got, ok)
	}

	got, ok = InferNPAFromDPD(ParseValues(map[string]any{"jan_25": 89, "feb_25": 90}))
	if !ok || got.Day() != 1 {
		t.Fatalf("day must be at least 1, got %s %v", got, ok)
	}

	if _, ok := InferNPAFromDPD(ParseValues(map[string]any{"jan_25": 120})); ok {
		t.Fatalf("a single reading cannot show a crossing")
	}
	if _, ok := InferNPAFromDPD(ParseValues(map[string]any{"jan_25": 95, "feb_25": 120})); ok {
		t.Fatalf("already-NPA series has no crossing")
	}
}
