package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"TalkToDataLoanPro/internal/loan"
)

type memRecords struct {
	recs    []*loan.Record
	applied []loan.CollectionUpdate
	readErr error
}

func (m *memRecords) ForDataset(_ context.Context, _ string, fn func(*loan.Record) error) error {
	if m.readErr != nil {
		return m.readErr
	}
	for _, r := range m.recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memRecords) ApplyCollections(_ context.Context, updates []loan.CollectionUpdate) (int, error) {
	m.applied = append(m.applied, updates...)
	return len(updates), nil
}

type statusLog map[string]string

func (s statusLog) SetStatus(_ context.Context, id, status string) error {
	s[id] = status
	return nil
}

func TestRecomputeCollectionsWritesChangedRecords(t *testing.T) {
	t.Parallel()
	recs := &memRecords{recs: []*loan.Record{
		{ID: "a", Additional: map[string]any{"Total Collection": 4000}},
		{ID: "b"},
	}}
	status := statusLog{}

	n, err := RecomputeCollections(context.Background(), recs, status, "ds1")
	if err != nil {
		t.Fatalf("RecomputeCollections: %v", err)
	}
	if n != 1 || len(recs.applied) != 1 || recs.applied[0].RecordID != "a" {
		t.Fatalf("n = %d, applied = %+v", n, recs.applied)
	}
	if status["ds1"] != StatusCollectionFields {
		t.Fatalf("status = %q", status["ds1"])
	}
}

func TestRecomputeCollectionsReadFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	status := statusLog{}
	_, err := RecomputeCollections(context.Background(), &memRecords{readErr: boom}, status, "ds1")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := status["ds1"]; ok {
		t.Fatal("status must not change when reading fails")
	}
}

func TestErrorDescription(t *testing.T) {
	t.Parallel()
	tests := []struct {
		desc, reason, want string
	}{
		{"tape", "bad header", "tape (Error: bad header)"},
		{"", "x", " (Error: x)"},
		{"tape", strings.Repeat("e", 120), "tape (Error: " + strings.Repeat("e", 100) + "...)"},
	}
	for _, tc := range tests {
		if got := ErrorDescription(tc.desc, tc.reason); got != tc.want {
			t.Errorf("ErrorDescription(%q, %d chars) = %q", tc.desc, len(tc.reason), got)
		}
	}
}
