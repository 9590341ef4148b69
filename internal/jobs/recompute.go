package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/logger"
)

// DatasetSource lists datasets and moves their status.
type DatasetSource interface {
	ListByStatus(ctx context.Context, status string) ([]dataset.Dataset, error)
	SetStatus(ctx context.Context, id, status string) error
}

// RecomputeConfig controls the scheduled collection recompute.
type RecomputeConfig struct {
	Schedule   string
	TimeZone   string
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// RecomputeJob re-derives the collection columns of every uploaded dataset
// that has not been recomputed yet.
type RecomputeJob struct {
	Datasets DatasetSource
	Records  dataset.RecordStore
	Config   RecomputeConfig
}

// Run processes up to BatchSize datasets and returns how many succeeded.
func (j *RecomputeJob) Run(ctx context.Context) (int, error) {
	pending, err := j.Datasets.ListByStatus(ctx, dataset.StatusUploaded)
	if err != nil {
		return 0, fmt.Errorf("list uploaded datasets: %w", err)
	}
	if j.Config.BatchSize > 0 && len(pending) > j.Config.BatchSize {
		pending = pending[:j.Config.BatchSize]
	}

	done := 0
	for _, ds := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		id := ds.ID
		err := RetryWithBackoff(ctx, j.Config.MaxRetries, j.Config.RetryDelay, func() error {
			_, err := dataset.RecomputeCollections(ctx, j.Records, j.Datasets, id)
			return err
		})
		if err != nil {
			logger.Audit("collection recompute failed for dataset %s: %v", id, err)
			continue
		}
		done++
	}
	logger.Audit("collection recompute finished: %d of %d datasets", done, len(pending))
	return done, nil
}

// RetryWithBackoff calls fn until it succeeds, doubling the delay after each
// failure.
func RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			logger.Audit("Retrying after %v (attempt %d/%d)", delay, attempt, maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		logger.Audit("Attempt %d failed: %v", attempt+1, lastErr)
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}
