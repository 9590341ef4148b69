package bucket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

func f64(v float64) *float64 { return &v }
func ip(v int) *int          { return &v }
func sp(v string) *string    { return &v }

/* -------------------------------------------------------------------------- */
/* Compiler                                                                   */
/* -------------------------------------------------------------------------- */

func TestCompileNumericShapes(t *testing.T) {
	t.Parallel()

	rules := Rules{
		{Label: "Blank"},
		{Max: f64(-1), Label: "Negative"},
		{Min: f64(0), Max: f64(0), Label: "Zero"},
		{Min: f64(1), Max: f64(30), Label: "1-30"},
		{Min: f64(31), Label: "31+"},
	}
	c := Compile(rules, Options{})
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{nil, "Blank", true},
		{-5.0, "Negative", true},
		{0, "Zero", true},
		{"30", "1-30", true},
		{1, "1-30", true},
		{30.5, "", false},
		{31, "31+", true},
		{"abc", "", false},
	}
	for _, tc := range cases {
		got, ok := c.Label(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Label(%v) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}

	others := Compile(rules, Options{Unmatched: OthersBucket})
	if got, _ := others.Label(30.5); got != OthersLabel {
		t.Fatalf("unmatched with Others policy = %q", got)
	}
}

func TestPointBucketMatchesExactlyZero(t *testing.T) {
	t.Parallel()

	c := Compile(Rules{{Min: f64(0), Max: f64(0), Label: "Zero"}}, Options{})
	if _, ok := c.Label(0.0); !ok {
		t.Fatalf("0 must match the point bucket")
	}
	for _, v := range []float64{0.0001, -0.0001} {
		if _, ok := c.Label(v); ok {
			t.Fatalf("%v must not match the point bucket", v)
		}
	}
}

func TestMaxOnlyRuleIsUpperBounded(t *testing.T) {
	t.Parallel()

	c := Compile(Rules{{Max: f64(100), Label: "Upto100"}}, Options{})
	for _, v := range []float64{-5, 0, 100} {
		if got, ok := c.Label(v); !ok || got != "Upto100" {
			t.Fatalf("Label(%v) = %q, %v", v, got, ok)
		}
	}
	if _, ok := c.Label(100.5); ok {
		t.Fatalf("100.5 must fall outside a max-only rule")
	}
	if _, ok := c.Label(nil); ok {
		t.Fatalf("null must not match a max-only rule")
	}
}

func TestCompileBoundsOption(t *testing.T) {
	t.Parallel()

	rules := Rules{{Min: f64(0), Max: f64(1000), Label: "A"}, {Min: f64(1000), Label: "B"}}
	if got, _ := Compile(rules, Options{}).Label(1000); got != "A" {
		t.Fatalf("inclusive bounds put 1000 in %q", got)
	}
	if got, _ := Compile(rules, Options{Bounds: HalfOpen}).Label(1000); got != "B" {
		t.Fatalf("half-open bounds put 1000 in %q", got)
	}
}

func TestCompileStringMode(t *testing.T) {
	t.Parallel()

	rules := Rules{
		{Values: []string{"MH", "GJ"}, Label: "West"},
		{Values: []string{}, Label: "Rest"},
		{Values: []string{"KA"}, Label: "South"},
	}
	c := Compile(rules, Options{})
	for in, want := range map[string]string{"MH": "West", "KA": "South", "DL": "Rest"} {
		if got, _ := c.Label(in); got != want {
			t.Fatalf("Label(%s) = %s, want %s", in, got, want)
		}
	}

	wild := Compile(Rules{{Values: []string{"ALL"}, Label: "x"}, {Values: []string{"MH"}, Label: "West"}}, Options{})
	if !wild.Passthrough {
		t.Fatalf("a wildcard rule must group by the raw value")
	}
}

func TestCompileStringModeDefaultsToOthers(t *testing.T) {
	t.Parallel()

	rules := Rules{
		{Values: []string{"MH", "GJ"}, Label: "West"},
		{Values: []string{"KA"}, Label: "South"},
	}
	for _, opts := range []Options{{}, {Unmatched: ExcludeUnmatched}, {Unmatched: OthersBucket}} {
		c := Compile(rules, opts)
		if got, ok := c.Label("DL"); !ok || got != OthersLabel {
			t.Fatalf("%+v: Label(DL) = %q, %v; want %s", opts, got, ok, OthersLabel)
		}
		if got, ok := c.Label(nil); !ok || got != OthersLabel {
			t.Fatalf("%+v: Label(nil) = %q, %v; want %s", opts, got, ok, OthersLabel)
		}
		if sql := renderCase(c, `"state"`); !strings.HasSuffix(sql, "ELSE 'Others' END") {
			t.Fatalf("%+v: rendered %s", opts, sql)
		}
	}
}

func TestParseCompileOptions(t *testing.T) {
	t.Parallel()

	if u, err := ParseUnmatched(" Others "); err != nil || u != OthersBucket {
		t.Fatalf("ParseUnmatched(others) = %v, %v", u, err)
	}
	if u, err := ParseUnmatched(""); err != nil || u != ExcludeUnmatched {
		t.Fatalf("ParseUnmatched(\"\") = %v, %v", u, err)
	}
	if _, err := ParseUnmatched("drop"); err == nil {
		t.Fatal("ParseUnmatched accepted drop")
	}
	if b, err := ParseBounds("half-open"); err != nil || b != HalfOpen {
		t.Fatalf("ParseBounds(half-open) = %v, %v", b, err)
	}
	if b, err := ParseBounds(""); err != nil || b != Inclusive {
		t.Fatalf("ParseBounds(\"\") = %v, %v", b, err)
	}
	if _, err := ParseBounds("open"); err == nil {
		t.Fatal("ParseBounds accepted open")
	}
}

func TestRulesJSONKeepsCatchAll(t *testing.T) {
	t.Parallel()

	var rs Rules
	if err := json.Unmarshal([]byte(`[{"values":["A",1]},{"values":[],"label":"Rest"},{"values":["B"],"label":"b"}]`), &rs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rs.StringMode() || rs[1].Values == nil || len(rs[1].Values) != 0 {
		t.Fatalf("rules = %+v", rs)
	}
	if !reflect.DeepEqual(rs[0].Values, []string{"A", "1"}) {
		t.Fatalf("values = %v", rs[0].Values)
	}
	if err := rs.Validate(); !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("first rule has no label, err = %v", err)
	}

	mixed := Rules{{Values: []string{"A"}, Label: "a"}, {Min: f64(1), Label: "b"}}
	if err := mixed.Validate(); !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("mixed rules accepted: %v", err)
	}
	inverted := Rules{{Min: f64(10), Max: f64(1), Label: "x"}}
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("min above max accepted: %v", err)
	}
}

/* -------------------------------------------------------------------------- */
/* Reconciliation                                                             */
/* -------------------------------------------------------------------------- */

func labels(bs []Bucket) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		if b.Label == nil {
			out[i] = "<null>"
		} else {
			out[i] = *b.Label
		}
	}
	return out
}

func TestReconcileFillsConfiguredOrder(t *testing.T) {
	t.Parallel()

	rules := Rules{{Max: f64(-1), Label: "Neg"}, {Min: f64(0), Max: f64(10), Label: "Low"}, {Min: f64(11), Label: "High"}}
	rows := []GroupRow{
		{Label: sp("High"), Count: 3, POS: decimal.NewFromInt(300)},
		{Label: sp("Legacy"), Count: 1, POS: decimal.NewFromInt(100)},
		{Label: nil, Count: 5, POS: decimal.NewFromInt(999)},
	}
	got := Reconcile(rows, rules, true)
	want := []string{"Neg", "Low", "High", "Legacy", "Total"}
	if !reflect.DeepEqual(labels(got), want) {
		t.Fatalf("labels = %v, want %v", labels(got), want)
	}
	if got[0].Count != 0 || !got[0].POS.IsZero() {
		t.Fatalf("empty bucket = %+v", got[0])
	}
	if !got[2].POSPer.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("High POS_Per = %s", got[2].POSPer)
	}
	total := got[len(got)-1]
	if total.Count != 4 || !total.POSPer.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total = %+v", total)
	}

	plain := Reconcile(rows, rules, false)
	if !reflect.DeepEqual(labels(plain), []string{"High", "Legacy", "Total"}) {
		t.Fatalf("labels without empty fill = %v", labels(plain))
	}
}

func TestReconcileZeroTotalPOS(t *testing.T) {
	t.Parallel()

	got := Reconcile([]GroupRow{{Label: sp("a"), Count: 1}}, Rules{{Values: []string{"a"}, Label: "a"}}, false)
	if !got[0].POSPer.IsZero() {
		t.Fatalf("POS_Per with zero total = %s", got[0].POSPer)
	}
}

/* -------------------------------------------------------------------------- */
/* Resolver                                                                   */
/* -------------------------------------------------------------------------- */

type memSource struct {
	configs []Config
	calls   int
}

func (m *memSource) DatasetConfigs(_ context.Context, datasetID string) ([]Config, error) {
	m.calls++
	var out []Config
	for _, c := range m.configs {
		if c.DatasetID != nil && *c.DatasetID == datasetID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memSource) GlobalDefaults(_ context.Context, types []string) ([]Config, error) {
	var out []Config
	for _, c := range m.configs {
		if c.DatasetID != nil || !c.IsDefault {
			continue
		}
		for _, t := range types {
			if c.SummaryType == t {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *memSource) ConfigsByIDs(_ context.Context, ids []string, userID string) ([]Config, error) {
	var out []Config
	for _, c := range m.configs {
		for _, id := range ids {
			if c.ID == id && (c.UserID == userID || c.IsDefault) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func resolverFixture() *memSource {
	ds := sp("ds-1")
	return &memSource{configs: []Config{
		{ID: "g-dpd", Name: "DPD", TargetField: "dpd", SummaryType: "Retail", IsDefault: true, SortOrder: ip(1)},
		{ID: "g-dpd-2", Name: "DPD alt", TargetField: "dpd", SummaryType: "Retail", IsDefault: true, SortOrder: ip(5)},
		{ID: "g-pos", Name: "POS", TargetField: "principal_os_amt", SummaryType: "Retail", IsDefault: true, SortOrder: ip(2)},
		{ID: "g-state", Name: "State", TargetField: "state", SummaryType: "Retail", IsDefault: true},
		{ID: "g-msme", Name: "MSME POS", TargetField: "principal_os_amt", SummaryType: "MSME", IsDefault: true, SortOrder: ip(0)},
		{ID: "d-pos-default", Name: "POS ds", DatasetID: ds, TargetField: "principal_os_amt", SummaryType: "Retail", IsDefault: true, SortOrder: ip(2)},
		{ID: "d-dpd-u1", Name: "DPD mine", DatasetID: ds, UserID: "u1", TargetField: "dpd", SummaryType: "Retail", SortOrder: ip(1)},
		{ID: "d-dpd-u2", Name: "DPD theirs", DatasetID: ds, UserID: "u2", TargetField: "dpd", SummaryType: "Retail", SortOrder: ip(1)},
	}}
}

func ids(cfgs []Config) []string {
	out := make([]string, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.ID
	}
	return out
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	src := resolverFixture()
	got, err := Resolve(context.Background(), src, Request{DatasetID: "ds-1", UserID: "u1", FileType: "Retail"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"d-dpd-u1", "d-pos-default", "g-state"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("u1 configs = %v, want %v", ids(got), want)
	}

	got, _ = Resolve(context.Background(), src, Request{DatasetID: "ds-1", UserID: "u3", FileType: "Retail"})
	want = []string{"g-dpd", "d-pos-default", "g-state"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("u3 configs = %v, want %v", ids(got), want)
	}

	got, _ = Resolve(context.Background(), src, Request{DatasetID: "other", UserID: "u1"})
	if len(got) != 0 {
		t.Fatalf("blank file type should match no Retail defaults: %v", ids(got))
	}

	got, _ = Resolve(context.Background(), src, Request{DatasetID: "other", SummaryTypes: []string{"MSME"}, TargetFields: []string{"principal_os_amt"}})
	if !reflect.DeepEqual(ids(got), []string{"g-msme"}) {
		t.Fatalf("requested type configs = %v", ids(got))
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	src := resolverFixture()
	req := Request{DatasetID: "ds-1", UserID: "u2", FileType: "Retail", TargetFields: []string{"dpd", "state", "principal_os_amt"}}
	first, err := Resolve(context.Background(), src, req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, _ := Resolve(context.Background(), src, req)
		if !reflect.DeepEqual(ids(first), ids(again)) {
			t.Fatalf("run %d: %v != %v", i, ids(again), ids(first))
		}
	}
}

func TestCachedSourceInvalidate(t *testing.T) {
	t.Parallel()

	src := resolverFixture()
	cached := NewCachedSource(src, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cached.DatasetConfigs(ctx, "ds-1"); err != nil {
			t.Fatal(err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}
	cached.Invalidate(sp("ds-1"))
	_, _ = cached.DatasetConfigs(ctx, "ds-1")
	if src.calls != 2 {
		t.Fatalf("source called %d times after invalidate, want 2", src.calls)
	}
}

/* -------------------------------------------------------------------------- */
/* Filters and SQL                                                            */
/* -------------------------------------------------------------------------- */

func TestRenderFiltersPolicies(t *testing.T) {
	t.Parallel()

	filters := []Filter{
		{Field: "state", Operator: "=", Value: "MH"},
		{Field: "branch", Operator: "contains", Value: "50%"},
		{Field: "dpd", Operator: "between", MinValue: 1},
		{Field: "dpd", Operator: "~~"},
		{Field: "city", Operator: "isNull", Enabled: new(bool)},
	}
	q := &query{d: Postgres}
	got, err := renderFilters(q, filters, LenientFilters)
	if err != nil {
		t.Fatalf("lenient: %v", err)
	}
	want := `"state" = $1 AND CAST((additional_fields->>'branch') AS TEXT) ILIKE $2 ESCAPE '\'`
	if got != want {
		t.Fatalf("sql = %s\nwant  %s", got, want)
	}
	if len(q.args) != 2 || q.args[1] != `%50\%%` {
		t.Fatalf("args = %#v", q.args)
	}

	if _, err := renderFilters(&query{d: Postgres}, filters, StrictFilters); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("strict err = %v", err)
	}
}

func TestStatementRejectsUnknownColumn(t *testing.T) {
	t.Parallel()

	a := &Aggregator{Dialect: SQLite}
	cfg := &Config{Name: "x", TargetField: `dpd"; DROP TABLE loan_records; --`, Rules: Rules{{Min: f64(0), Label: "a"}}}
	if _, _, err := a.Statement("ds", cfg, nil); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("err = %v", err)
	}
}

func newMemDB(tb testing.TB) *sql.DB {
	tb.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	tb.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE loan_records (
		dataset_id TEXT NOT NULL,
		dpd INTEGER,
		state TEXT,
		principal_os_amt NUMERIC,
		post_npa_collection NUMERIC,
		post_woff_collection NUMERIC,
		m6_collection NUMERIC,
		m12_collection NUMERIC,
		total_collection NUMERIC,
		additional_fields TEXT
	)`)
	if err != nil {
		tb.Fatalf("create table: %v", err)
	}
	rows := []struct {
		ds    string
		dpd   any
		state any
		pos   float64
		af    string
	}{
		{"ds-1", 500, "MH", 100, `{"score":"720"}`},
		{"ds-1", 1500, "GJ", 300, `{"score":"n/a"}`},
		{"ds-1", nil, "KA", 50, `{"score":610}`},
		{"ds-1", 20, nil, 25.5, `{}`},
		{"ds-2", 600, "MH", 1000, `{}`},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO loan_records (dataset_id, dpd, state, principal_os_amt, post_npa_collection,
			post_woff_collection, m6_collection, m12_collection, total_collection, additional_fields)
			VALUES (?, ?, ?, ?, 10, 5, 1, 2, 20, ?)`, r.ds, r.dpd, r.state, r.pos, r.af)
		if err != nil {
			tb.Fatalf("insert: %v", err)
		}
	}
	return db
}

func TestAggregateRangeBucketsExcludeUnmatched(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	a := &Aggregator{DB: db, Dialect: SQLite}
	cfg := &Config{
		Name:        "DPD",
		TargetField: "dpd",
		Rules:       Rules{{Min: f64(0), Max: f64(1000), Label: "A"}, {Min: f64(1000), Label: "B"}},
	}
	filters := []Filter{{Field: "dpd", Operator: ">=", Value: 100}}
	rows, err := a.Aggregate(context.Background(), "ds-1", cfg, filters)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	got := Reconcile(rows, cfg.Rules, true)
	if !reflect.DeepEqual(labels(got), []string{"A", "B", "Total"}) {
		t.Fatalf("labels = %v", labels(got))
	}
	if got[0].Count != 1 || got[1].Count != 1 || got[2].Count != 2 {
		t.Fatalf("counts = %d %d %d", got[0].Count, got[1].Count, got[2].Count)
	}
	if !got[0].POSPer.Equal(decimal.NewFromInt(25)) || !got[2].POS.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("A = %+v, total = %+v", got[0], got[2])
	}

	// Without the filter the null dpd row is unmatched and left out.
	rows, _ = a.Aggregate(context.Background(), "ds-1", cfg, nil)
	got = Reconcile(rows, cfg.Rules, true)
	if total := got[len(got)-1]; total.Count != 3 {
		t.Fatalf("total count = %d, want 3", total.Count)
	}
}

func TestAggregateWildcardKeepsNullGroup(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	a := &Aggregator{DB: db, Dialect: SQLite}
	cfg := &Config{Name: "State", TargetField: "state", Rules: Rules{{Values: []string{"ALL"}, Label: "x"}}}
	rows, err := a.Aggregate(context.Background(), "ds-1", cfg, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	got := Reconcile(rows, cfg.Rules, true)
	if len(got) != 5 {
		t.Fatalf("want 4 distinct values plus Total, got %v", labels(got))
	}
	if got[0].Label != nil {
		t.Fatalf("null group should sort first in sqlite, got %v", labels(got))
	}
	if got[4].Count != 4 {
		t.Fatalf("total = %+v", got[4])
	}
}

func TestAggregateJSONTarget(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	a := &Aggregator{DB: db, Dialect: SQLite, Options: Options{Unmatched: OthersBucket}}
	cfg := &Config{
		Name:              "Score",
		TargetField:       "score",
		TargetFieldIsJSON: true,
		Rules:             Rules{{Min: f64(0), Max: f64(699), Label: "Low"}, {Min: f64(700), Label: "High"}},
	}
	stmt, _, err := a.Statement("ds-1", cfg, nil)
	if err != nil || !strings.Contains(stmt, "json_extract") {
		t.Fatalf("statement = %s, %v", stmt, err)
	}
	rows, err := a.Aggregate(context.Background(), "ds-1", cfg, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	got := Reconcile(rows, cfg.Rules, true)
	want := []string{"Low", "High", "Others", "Total"}
	if !reflect.DeepEqual(labels(got), want) {
		t.Fatalf("labels = %v, want %v", labels(got), want)
	}
	if got[0].Count != 1 || got[1].Count != 1 || got[2].Count != 2 {
		t.Fatalf("counts = %d %d %d", got[0].Count, got[1].Count, got[2].Count)
	}
}

func TestAggregateStringModeCollectsOthers(t *testing.T) {
	t.Parallel()

	db := newMemDB(t)
	a := &Aggregator{DB: db, Dialect: SQLite}
	cfg := &Config{
		Name:        "Region",
		TargetField: "state",
		Rules: Rules{
			{Values: []string{"MH", "GJ"}, Label: "West"},
			{Values: []string{"DL"}, Label: "North"},
		},
	}
	rows, err := a.Aggregate(context.Background(), "ds-1", cfg, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	got := Reconcile(rows, cfg.Rules, true)
	want := []string{"West", "North", "Others", "Total"}
	if !reflect.DeepEqual(labels(got), want) {
		t.Fatalf("labels = %v, want %v", labels(got), want)
	}
	// KA and the null state land in Others, so the total keeps every row.
	if got[0].Count != 2 || got[1].Count != 0 || got[2].Count != 2 || got[3].Count != 4 {
		t.Fatalf("counts = %d %d %d %d", got[0].Count, got[1].Count, got[2].Count, got[3].Count)
	}
}
