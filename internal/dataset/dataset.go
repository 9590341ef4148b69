// Package dataset holds the dataset record shared by the stores, the
// ingestion endpoints and the summary service.
package dataset

import (
	"errors"
	"fmt"
	"time"
)

// Status values a dataset moves through.
const (
	StatusProcessing       = "processing"
	StatusUploaded         = "uploaded"
	StatusError            = "error"
	StatusCollectionFields = "collection_fields_updated"
)

var (
	ErrNotFound  = errors.New("dataset not found")
	ErrForbidden = errors.New("dataset belongs to another user")
)

// errorNoteLimit caps how much of a failure reason is appended to the
// dataset description.
const errorNoteLimit = 100

// Dataset is one uploaded loan book.
type Dataset struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	FileType     string    `json:"file_type"`
	Status       string    `json:"status"`
	TotalRecords int64     `json:"total_records"`
	FileChecksum string    `json:"file_checksum,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrorDescription appends a shortened failure reason to a description.
func ErrorDescription(description, reason string) string {
	if len(reason) > errorNoteLimit {
		reason = reason[:errorNoteLimit] + "..."
	}
	return fmt.Sprintf("%s (Error: %s)", description, reason)
}
