package dataset

import (
	"context"
	"fmt"
	"log"
	"time"

	"TalkToDataLoanPro/internal/loan"
)

// RecordStore is what recomputing collection fields needs from storage.
type RecordStore interface {
	ForDataset(ctx context.Context, datasetID string, fn func(*loan.Record) error) error
	ApplyCollections(ctx context.Context, updates []loan.CollectionUpdate) (int, error)
}

// StatusWriter moves a dataset to a new status.
type StatusWriter interface {
	SetStatus(ctx context.Context, id, status string) error
}

// RecomputeCollections re-derives the collection columns of every record in
// a dataset and writes back the ones that changed.
func RecomputeCollections(ctx context.Context, records RecordStore, status StatusWriter, datasetID string) (int, error) {
	start := time.Now()
	var updates []loan.CollectionUpdate
	err := records.ForDataset(ctx, datasetID, func(r *loan.Record) error {
		if u, ok := r.RecomputeCollections(); ok {
			updates = append(updates, u)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read records: %w", err)
	}

	n, err := records.ApplyCollections(ctx, updates)
	if err != nil {
		return 0, fmt.Errorf("apply collection updates: %w", err)
	}
	if status != nil {
		if err := status.SetStatus(ctx, datasetID, StatusCollectionFields); err != nil {
			return n, err
		}
	}
	log.Printf("[COLLECTIONS] dataset=%s updated=%d in %v", datasetID, n, time.Since(start))
	return n, nil
}
