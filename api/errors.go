package api

import (
	"errors"
	"net/http"

	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/validation"
)

var statusByError = []struct {
	err    error
	status int
}{
	{bucket.ErrInvalidDataset, http.StatusBadRequest},
	{validation.ErrInvalidDataset, http.StatusBadRequest},
	{validation.ErrMissingUserID, http.StatusBadRequest},
	{bucket.ErrInvalidRules, http.StatusBadRequest},
	{bucket.ErrInvalidFilter, http.StatusBadRequest},
	{bucket.ErrUnknownColumn, http.StatusBadRequest},
	{bucket.ErrNoConfigSelector, http.StatusBadRequest},
	{ingest.ErrFormat, http.StatusBadRequest},
	{ingest.ErrMapping, http.StatusBadRequest},
	{ingest.ErrValidation, http.StatusBadRequest},
	{bucket.ErrDatasetNotFound, http.StatusNotFound},
	{dataset.ErrNotFound, http.StatusNotFound},
	{bucket.ErrConfigNotFound, http.StatusNotFound},
	{store.ErrProfileNotFound, http.StatusNotFound},
	{bucket.ErrConfigExists, http.StatusConflict},
	{bucket.ErrConfigForbidden, http.StatusForbidden},
	{dataset.ErrForbidden, http.StatusForbidden},
}

// StatusFor maps engine errors to HTTP statuses. Anything unrecognised is a
// server error.
func StatusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondWithErr writes err with the status StatusFor picks.
func RespondWithErr(w http.ResponseWriter, err error) {
	RespondWithError(w, StatusFor(err), err.Error())
}
