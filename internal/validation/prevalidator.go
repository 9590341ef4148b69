package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"TalkToDataLoanPro/internal/dataset"
)

var (
	ErrMissingUserID  = errors.New("user_id is required")
	ErrInvalidDataset = errors.New("invalid dataset id")
)

// DatasetLookup loads a dataset by id.
type DatasetLookup interface {
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
}

// ValidationResult is what a dataset-scoped request has been checked
// against.
type ValidationResult struct {
	UserID  string
	Dataset *dataset.Dataset
}

// PreValidateDataset checks the ids of a dataset-scoped request with one
// lookup: the dataset id must be a UUID, the dataset must exist and, when
// requireOwner is set, belong to userID.
func PreValidateDataset(ctx context.Context, db DatasetLookup, datasetID, userID string, requireOwner bool) (*ValidationResult, error) {
	if requireOwner && userID == "" {
		return nil, ErrMissingUserID
	}
	if _, err := uuid.Parse(datasetID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDataset, datasetID)
	}
	ds, err := db.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if requireOwner && ds.UserID != userID {
		return nil, dataset.ErrForbidden
	}
	return &ValidationResult{UserID: userID, Dataset: ds}, nil
}
