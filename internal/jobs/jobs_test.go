package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/loan"
)

type memDatasets struct {
	sets map[string]*dataset.Dataset
}

func (m *memDatasets) ListByStatus(_ context.Context, status string) ([]dataset.Dataset, error) {
	var out []dataset.Dataset
	for _, id := range []string{"d1", "d2", "d3"} {
		if ds, ok := m.sets[id]; ok && ds.Status == status {
			out = append(out, *ds)
		}
	}
	return out, nil
}

func (m *memDatasets) SetStatus(_ context.Context, id, status string) error {
	m.sets[id].Status = status
	return nil
}

type memRecords struct {
	byDataset map[string][]*loan.Record
	failFor   string
	applied   []loan.CollectionUpdate
}

func (m *memRecords) ForDataset(_ context.Context, id string, fn func(*loan.Record) error) error {
	if id == m.failFor {
		return errors.New("connection reset")
	}
	for _, r := range m.byDataset[id] {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memRecords) ApplyCollections(_ context.Context, u []loan.CollectionUpdate) (int, error) {
	m.applied = append(m.applied, u...)
	return len(u), nil
}

func TestRecomputeJobRun(t *testing.T) {
	t.Parallel()
	datasets := &memDatasets{sets: map[string]*dataset.Dataset{
		"d1": {ID: "d1", Status: dataset.StatusUploaded},
		"d2": {ID: "d2", Status: dataset.StatusUploaded},
		"d3": {ID: "d3", Status: dataset.StatusError},
	}}
	records := &memRecords{
		byDataset: map[string][]*loan.Record{
			"d1": {{ID: "r1", Additional: map[string]any{"6m col": "250"}}},
		},
		failFor: "d2",
	}
	job := &RecomputeJob{Datasets: datasets, Records: records, Config: RecomputeConfig{MaxRetries: 0}}

	done, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done != 1 {
		t.Fatalf("done = %d", done)
	}
	if datasets.sets["d1"].Status != dataset.StatusCollectionFields || datasets.sets["d2"].Status != dataset.StatusUploaded {
		t.Fatalf("statuses = %s, %s", datasets.sets["d1"].Status, datasets.sets["d2"].Status)
	}
	if len(records.applied) != 1 || !records.applied[0].Values[loan.ColM6Collection].Decimal.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("applied = %+v", records.applied)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()
	calls := 0
	err := RetryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryWithBackoff(ctx, 3, time.Hour, func() error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewCronServiceReadsConfig(t *testing.T) {
	t.Parallel()
	svc := NewCronService(map[string]interface{}{"recompute_schedule": "*/5 * * * *", "batch_size": 3, "max_retries": 0}, nil, nil).(*CronService)
	rc := svc.job.Config
	if rc.Schedule != "*/5 * * * *" || rc.BatchSize != 3 || rc.MaxRetries != 0 {
		t.Fatalf("config = %+v", rc)
	}
}
