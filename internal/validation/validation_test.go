package validation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"TalkToDataLoanPro/internal/dataset"
)

func TestExtractUserID(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/x", strings.NewReader(`{"user_id":"u1","name":"n"}`))
	r.Header.Set("Content-Type", "application/json")
	if id, err := ExtractUserID(r); err != nil || id != "u1" {
		t.Fatalf("json = %q, %v", id, err)
	}
	if body, _ := io.ReadAll(r.Body); !strings.Contains(string(body), `"name":"n"`) {
		t.Fatalf("body not restored: %s", body)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("user_id", "u2")
	mw.Close()
	r = httptest.NewRequest("POST", "/x", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	if id, err := ExtractUserID(r); err != nil || id != "u2" {
		t.Fatalf("multipart = %q, %v", id, err)
	}

	r = httptest.NewRequest("GET", "/x?user_id=u3", nil)
	if id, err := ExtractUserID(r); err != nil || id != "u3" {
		t.Fatalf("query = %q, %v", id, err)
	}

	r = httptest.NewRequest("POST", "/x", strings.NewReader(`{}`))
	if _, err := ExtractUserID(r); err == nil {
		t.Fatal("missing user_id accepted")
	}
}

type lookup map[string]*dataset.Dataset

func (l lookup) Get(_ context.Context, id string) (*dataset.Dataset, error) {
	if ds, ok := l[id]; ok {
		return ds, nil
	}
	return nil, dataset.ErrNotFound
}

func TestPreValidateDataset(t *testing.T) {
	t.Parallel()
	const id = "8a5c3c1e-2d1b-4f55-9a43-0d6f1e2b7c11"
	db := lookup{id: {ID: id, UserID: "u1"}}
	ctx := context.Background()

	if res, err := PreValidateDataset(ctx, db, id, "u1", true); err != nil || res.Dataset.ID != id {
		t.Fatalf("owner = %+v, %v", res, err)
	}
	if _, err := PreValidateDataset(ctx, db, id, "u2", true); !errors.Is(err, dataset.ErrForbidden) {
		t.Fatalf("other user err = %v", err)
	}
	if _, err := PreValidateDataset(ctx, db, id, "u2", false); err != nil {
		t.Fatalf("read access err = %v", err)
	}
	if _, err := PreValidateDataset(ctx, db, "42", "u1", true); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("bad id err = %v", err)
	}
	if _, err := PreValidateDataset(ctx, db, "0b4f7f44-6f1d-4d7e-8d55-3e3f6c9b1a20", "u1", true); !errors.Is(err, dataset.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := PreValidateDataset(ctx, db, id, "", true); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("no user err = %v", err)
	}
}
