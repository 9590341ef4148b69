package ingest

import "errors"

var (
	// ErrFormat means the upload could not be read as a workbook.
	ErrFormat = errors.New("unreadable spreadsheet")
	// ErrMapping means the mapping profile is missing or inconsistent.
	ErrMapping = errors.New("invalid mapping")
	// ErrValidation means the mapped batch failed a dataset-wide check.
	ErrValidation = errors.New("validation failed")
	// ErrLoad means the bulk insert failed or was incomplete.
	ErrLoad = errors.New("load failed")
)
