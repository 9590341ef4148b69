package loanbook

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/api"
	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/store/sqlitestore"
)

const poolCSV = `agreement,pos,npa,c_apr,c_may,c_jun,m3 col
A1,150000,2025-05-10,100,200,300,
A2,90000,,0,50,0,75
`

const poolProfile = `{
  "id": "pool",
  "name": "Pool tape",
  "file_type": "Retail",
  "definition": {
    "file_type": "Retail",
    "sheets": {
      "1": {
        "alias": "Pool",
        "header_row": 0,
        "cols_to_read": "all",
        "timeseries": [
          {"source_col": 3, "target_name": "collection__apr_25"},
          {"source_col": 4, "target_name": "collection__may_25"},
          {"source_col": 5, "target_name": "collection__jun_25"}
        ],
        "extra": [{"6": "m3_collection"}]
      }
    },
    "column_mapping": {
      "agreement": "agreement_no",
      "pos": ["principal_os_amt"],
      "npa": "date_of_npa"
    }
  }
}`

type env struct {
	st     *store.Store
	server *httptest.Server
}

func newEnv(tb testing.TB) *env {
	tb.Helper()
	db, err := sqlitestore.Open(context.Background(), ":memory:")
	if err != nil {
		tb.Fatalf("open: %v", err)
	}
	st := sqlitestore.New(db)
	deps := NewDeps(st, nil, Settings{MaxUploadMB: 1, MaxEmptyRows: 20, ConfigCacheTTL: time.Minute},
		func() map[string]string { return map[string]string{"db": "ok"} })
	srv := httptest.NewServer(api.RecoverPanics(NewRouter(deps)))
	tb.Cleanup(func() {
		srv.Close()
		_ = db.Close()
	})
	return &env{st: st, server: srv}
}

type response struct {
	status int
	body   map[string]json.RawMessage
}

func (r response) field(tb testing.TB, key string, v any) {
	tb.Helper()
	raw, ok := r.body[key]
	if !ok {
		tb.Fatalf("response has no %q: %v", key, r.body)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		tb.Fatalf("decode %q: %v", key, err)
	}
}

func (e *env) do(tb testing.TB, method, path string, body any) response {
	tb.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			tb.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		tb.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return send(tb, req)
}

func (e *env) upload(tb testing.TB, fileName, content string, fields map[string]string) response {
	tb.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			tb.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		tb.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/datasets/upload", &buf)
	if err != nil {
		tb.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return send(tb, req)
}

func send(tb testing.TB, req *http.Request) response {
	tb.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		tb.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	out := response{status: resp.StatusCode, body: map[string]json.RawMessage{}}
	_ = json.NewDecoder(resp.Body).Decode(&out.body)
	return out
}

// seed stores the pool profile and uploads the pool tape for u1.
func (e *env) seed(t *testing.T) string {
	t.Helper()
	if r := e.do(t, http.MethodPost, "/api/mapping-profiles", poolProfile); r.status != http.StatusCreated {
		t.Fatalf("create profile status = %d: %v", r.status, r.body)
	}
	r := e.upload(t, "pool.csv", poolCSV, map[string]string{"user_id": "u1", "mapping_profile_id": "pool", "name": "May pool"})
	if r.status != http.StatusCreated {
		t.Fatalf("upload status = %d: %v", r.status, r.body)
	}
	var ds dataset.Dataset
	r.field(t, "dataset", &ds)
	if ds.Status != dataset.StatusUploaded || ds.TotalRecords != 2 || ds.FileType != "Retail" {
		t.Fatalf("dataset = %+v", ds)
	}
	return ds.ID
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	r := e.do(t, http.MethodGet, "/api/health", nil)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	var resources map[string]string
	r.field(t, "resources", &resources)
	if resources["db"] != "ok" {
		t.Fatalf("resources = %v", resources)
	}
	if r := e.do(t, http.MethodGet, "/api/nowhere", nil); r.status != http.StatusNotFound {
		t.Fatalf("unknown route status = %d", r.status)
	}
}

func TestUploadRejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	if r := e.do(t, http.MethodPost, "/api/mapping-profiles", poolProfile); r.status != http.StatusCreated {
		t.Fatalf("create profile status = %d", r.status)
	}
	ok := map[string]string{"user_id": "u1", "mapping_profile_id": "pool"}

	tests := []struct {
		name   string
		file   string
		body   string
		fields map[string]string
		want   int
	}{
		{"unsupported extension", "pool.pdf", poolCSV, ok, http.StatusBadRequest},
		{"missing user", "pool.csv", poolCSV, map[string]string{"mapping_profile_id": "pool"}, http.StatusBadRequest},
		{"missing profile id", "pool.csv", poolCSV, map[string]string{"user_id": "u1"}, http.StatusBadRequest},
		{"unknown profile", "pool.csv", poolCSV, map[string]string{"user_id": "u1", "mapping_profile_id": "nope"}, http.StatusNotFound},
		{"empty file", "pool.csv", "", ok, http.StatusBadRequest},
		{"too large", "pool.csv", strings.Repeat("x", 3<<19), ok, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		if r := e.upload(t, tc.file, tc.body, tc.fields); r.status != tc.want {
			t.Errorf("%s: status = %d, want %d (%v)", tc.name, r.status, tc.want, r.body)
		}
	}

	_, total, err := e.st.Datasets.List(context.Background(), "u1", 10, 0)
	if err != nil || total != 0 {
		t.Fatalf("rejected uploads created datasets: %d, %v", total, err)
	}
}

func TestUploadDuplicateAndFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t)

	r := e.upload(t, "again.csv", poolCSV, map[string]string{"user_id": "u1", "mapping_profile_id": "pool"})
	if r.status != http.StatusConflict {
		t.Fatalf("duplicate status = %d: %v", r.status, r.body)
	}
	// another user may load the same bytes
	r = e.upload(t, "pool.csv", poolCSV, map[string]string{"user_id": "u2", "mapping_profile_id": "pool"})
	if r.status != http.StatusCreated {
		t.Fatalf("other user status = %d: %v", r.status, r.body)
	}

	bad := "agreement,pos,npa,c_apr,c_may,c_jun,m3 col\nA9,100,,-5,0,0,\n"
	r = e.upload(t, "bad.csv", bad, map[string]string{"user_id": "u1", "mapping_profile_id": "pool", "description": "tape"})
	if r.status != http.StatusBadRequest {
		t.Fatalf("invalid batch status = %d: %v", r.status, r.body)
	}
	var id string
	r.field(t, "dataset_id", &id)
	ds, err := e.st.Datasets.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Status != dataset.StatusError || !strings.HasPrefix(ds.Description, "tape (Error: ") {
		t.Fatalf("failed dataset = %+v", ds)
	}
}

func TestDatasetEndpoints(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	id := e.seed(t)

	r := e.do(t, http.MethodGet, "/api/datasets?user_id=u1&page=1&limit=5", nil)
	var page struct {
		Items      []dataset.Dataset `json:"items"`
		Pagination struct {
			TotalRecords int `json:"total_records"`
		} `json:"pagination"`
	}
	r.field(t, "rows", &page)
	if len(page.Items) != 1 || page.Pagination.TotalRecords != 1 || page.Items[0].ID != id {
		t.Fatalf("list = %+v", page)
	}
	if r := e.do(t, http.MethodGet, "/api/datasets?user_id=u1&page=0", nil); r.status != http.StatusBadRequest {
		t.Fatalf("bad page status = %d", r.status)
	}

	if r := e.do(t, http.MethodGet, "/api/datasets/"+id+"?user_id=u2", nil); r.status != http.StatusForbidden {
		t.Fatalf("foreign get status = %d", r.status)
	}
	if r := e.do(t, http.MethodGet, "/api/datasets/not-a-uuid?user_id=u1", nil); r.status != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", r.status)
	}

	r = e.do(t, http.MethodGet, "/api/datasets/"+id+"/fields", nil)
	var fields []loan.ColumnInfo
	r.field(t, "rows", &fields)
	var sawCanonical, sawJSON bool
	for _, f := range fields {
		if f.Name == loan.ColPrincipalOS && !f.IsJSON {
			sawCanonical = true
		}
		if f.Name == "collection36m" && f.IsJSON {
			sawJSON = true
		}
	}
	if !sawCanonical || !sawJSON {
		t.Fatalf("fields = %+v", fields)
	}

	if r := e.do(t, http.MethodPost, "/api/datasets/"+id+"/collection-fields", map[string]string{"user_id": "u2"}); r.status != http.StatusForbidden {
		t.Fatalf("foreign recompute status = %d", r.status)
	}
	r = e.do(t, http.MethodPost, "/api/datasets/"+id+"/collection-fields", map[string]string{"user_id": "u1"})
	if r.status != http.StatusOK {
		t.Fatalf("recompute status = %d: %v", r.status, r.body)
	}
	ds, err := e.st.Datasets.Get(context.Background(), id)
	if err != nil || ds.Status != dataset.StatusCollectionFields {
		t.Fatalf("dataset after recompute = %+v, %v", ds, err)
	}

	if r := e.do(t, http.MethodPut, "/api/datasets/"+id+"/file-type", map[string]string{"user_id": "u1"}); r.status != http.StatusBadRequest {
		t.Fatalf("empty file type status = %d", r.status)
	}
	r = e.do(t, http.MethodPut, "/api/datasets/"+id+"/file-type", map[string]string{"user_id": "u1", "file_type": "MSME"})
	if r.status != http.StatusOK {
		t.Fatalf("file type status = %d: %v", r.status, r.body)
	}
	if ds, _ := e.st.Datasets.Get(context.Background(), id); ds.FileType != "MSME" {
		t.Fatalf("file type = %q", ds.FileType)
	}
}

func posBands(datasetID string) map[string]any {
	return map[string]any{
		"user_id":      "u1",
		"dataset_id":   datasetID,
		"name":         "POS bands",
		"summary_type": "Retail",
		"target_field": loan.ColPrincipalOS,
		"bucket_config": []map[string]any{
			{"min": 0, "max": 100000, "label": "Low"},
			{"min": 100000.01, "label": "High"},
		},
	}
}

func TestBucketConfigLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	id := e.seed(t)

	r := e.do(t, http.MethodPost, "/api/bucket-configs", posBands(id))
	if r.status != http.StatusCreated {
		t.Fatalf("create status = %d: %v", r.status, r.body)
	}
	var cfg bucket.Config
	r.field(t, "rows", &cfg)
	if cfg.ID == "" || len(cfg.Rules) != 2 {
		t.Fatalf("created = %+v", cfg)
	}
	if r := e.do(t, http.MethodPost, "/api/bucket-configs", posBands(id)); r.status != http.StatusConflict {
		t.Fatalf("duplicate status = %d", r.status)
	}
	invalid := posBands(id)
	invalid["bucket_config"] = []map[string]any{}
	if r := e.do(t, http.MethodPost, "/api/bucket-configs", invalid); r.status != http.StatusBadRequest {
		t.Fatalf("empty rules status = %d", r.status)
	}
	unknown := posBands(id)
	unknown["target_field"] = "not_a_column"
	if r := e.do(t, http.MethodPost, "/api/bucket-configs", unknown); r.status != http.StatusBadRequest {
		t.Fatalf("unknown column status = %d", r.status)
	}

	field := map[string]string{"dataset_id": id, "user_id": "u1", "target_field": loan.ColPrincipalOS}
	r = e.do(t, http.MethodPost, "/api/bucket-configs/check", field)
	var exists bool
	r.field(t, "exists", &exists)
	if !exists {
		t.Fatalf("check = %v", r.body)
	}
	r = e.do(t, http.MethodPost, "/api/bucket-configs/lookup", field)
	var found bucket.Config
	r.field(t, "rows", &found)
	if found.ID != cfg.ID {
		t.Fatalf("lookup = %+v", found)
	}
	field["user_id"] = "u2"
	r = e.do(t, http.MethodPost, "/api/bucket-configs/check", field)
	r.field(t, "exists", &exists)
	if exists {
		t.Fatal("check found another user's config")
	}
	if r := e.do(t, http.MethodPost, "/api/bucket-configs/lookup", field); r.status != http.StatusNotFound {
		t.Fatalf("lookup miss status = %d", r.status)
	}

	r = e.do(t, http.MethodGet, "/api/bucket-configs/effective/"+id+"?user_id=u1", nil)
	var effective []bucket.Config
	r.field(t, "rows", &effective)
	if len(effective) != 1 || effective[0].ID != cfg.ID {
		t.Fatalf("effective = %+v", effective)
	}

	update := posBands(id)
	update["name"] = "POS bands v2"
	update["user_id"] = "u2"
	if r := e.do(t, http.MethodPut, "/api/bucket-configs/"+cfg.ID, update); r.status != http.StatusForbidden {
		t.Fatalf("foreign update status = %d", r.status)
	}
	update["user_id"] = "u1"
	if r := e.do(t, http.MethodPut, "/api/bucket-configs/"+cfg.ID, update); r.status != http.StatusOK {
		t.Fatalf("update status = %d: %v", r.status, r.body)
	}
	// the cached dataset lookup must see the rename
	r = e.do(t, http.MethodGet, "/api/bucket-configs/effective/"+id+"?user_id=u1", nil)
	r.field(t, "rows", &effective)
	if len(effective) != 1 || effective[0].Name != "POS bands v2" {
		t.Fatalf("effective after update = %+v", effective)
	}

	r = e.do(t, http.MethodGet, "/api/bucket-configs?user_id=u1", nil)
	var page struct {
		Items []bucket.Config `json:"items"`
	}
	r.field(t, "rows", &page)
	if len(page.Items) != 1 {
		t.Fatalf("list = %+v", page)
	}

	if r := e.do(t, http.MethodDelete, "/api/bucket-configs/"+cfg.ID+"?user_id=u2", nil); r.status != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d", r.status)
	}
	if r := e.do(t, http.MethodDelete, "/api/bucket-configs/"+cfg.ID, map[string]string{"user_id": "u1"}); r.status != http.StatusOK {
		t.Fatalf("delete status = %d: %v", r.status, r.body)
	}
	if r := e.do(t, http.MethodGet, "/api/bucket-configs/"+cfg.ID, nil); r.status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", r.status)
	}
	if r := e.do(t, http.MethodGet, "/api/bucket-configs/abc", nil); r.status != http.StatusBadRequest {
		t.Fatalf("bad config id status = %d", r.status)
	}
}

func TestBucketSummary(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	id := e.seed(t)
	if r := e.do(t, http.MethodPost, "/api/bucket-configs", posBands(id)); r.status != http.StatusCreated {
		t.Fatalf("create status = %d", r.status)
	}

	r := e.do(t, http.MethodPost, "/api/bucket-summary/"+id, map[string]any{"user_id": "u1", "config_types": []string{"Retail"}})
	if r.status != http.StatusOK {
		t.Fatalf("summary status = %d: %v", r.status, r.body)
	}
	var sums []struct {
		Name    string `json:"name"`
		Buckets []struct {
			Label *string         `json:"label"`
			Count int64           `json:"count"`
			POS   decimal.Decimal `json:"POS"`
		} `json:"buckets"`
	}
	r.field(t, "rows", &sums)
	if len(sums) != 1 || len(sums[0].Buckets) != 3 {
		t.Fatalf("summaries = %+v", sums)
	}
	total := sums[0].Buckets[2]
	if *total.Label != bucket.TotalLabel || total.Count != 2 || !total.POS.Equal(decimal.NewFromInt(240000)) {
		t.Fatalf("total = %+v", total)
	}

	filtered := map[string]any{
		"user_id":      "u1",
		"config_types": []string{"Retail"},
		"filters":      []map[string]any{{"field": loan.ColAgreementNo, "operator": "=", "value": "A2"}},
	}
	r = e.do(t, http.MethodPost, "/api/bucket-summary/"+id, filtered)
	r.field(t, "rows", &sums)
	if got := sums[0].Buckets[len(sums[0].Buckets)-1]; got.Count != 1 {
		t.Fatalf("filtered total = %+v", got)
	}

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"no selector", "/api/bucket-summary/" + id, map[string]any{"user_id": "u1"}, http.StatusBadRequest},
		{"bad dataset id", "/api/bucket-summary/xyz", map[string]any{"config_types": []string{"Retail"}}, http.StatusBadRequest},
		{"missing dataset", "/api/bucket-summary/1f0e2b7c-4d1a-4c8e-9b7a-000000000000", map[string]any{"config_types": []string{"Retail"}}, http.StatusNotFound},
		{"bad json", "/api/bucket-summary/" + id, "{", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if r := e.do(t, http.MethodPost, tc.path, tc.body); r.status != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, r.status, tc.want)
		}
	}
}
