package constants

import "fmt"

// ============================================================================
// REQUEST ERRORS
// ============================================================================

const (
	ErrMissingUserID   = "user_id is required in the request"
	ErrUnauthorized    = "You are not authorized to perform this action"
	ErrInvalidID       = "Invalid ID specified"
	ErrMissingDataset  = "dataset id is required"
	ErrInvalidPage     = "Invalid pagination parameters: %s"
	ErrMissingFields   = "dataset_id, user_id and target_field are required"
	ErrFileTypeMissing = "file_type is required"
)

// ============================================================================
// FILE UPLOAD ERRORS
// ============================================================================

const (
	ErrFileUploadFailed  = "File upload failed. Please check the file format and try again"
	ErrInvalidFileFormat = "Unsupported file type %q. Upload one of %v"
	ErrFileTooLarge      = "File size exceeds the maximum limit of %d MB"
	ErrEmptyFile         = "Uploaded file is empty"
	ErrMissingFile       = "file is required"
	ErrMissingProfile    = "mapping_profile_id is required"
	ErrProfileNotFound   = "Mapping profile %s not found"
	ErrDuplicateUpload   = "This file was already uploaded as dataset %s"
)

// ============================================================================
// DATABASE OPERATION ERRORS
// ============================================================================

const (
	ErrDatabaseConnection = "Database connection failed. Please try again later"
	ErrRecordNotFound     = "Record not found in the database"
	ErrDuplicateEntry     = "This entry already exists in the system"
)

// ============================================================================
// GENERAL ERRORS
// ============================================================================

const (
	ErrInternalServer = "Internal server error. Please contact support"
	ErrInvalidRequest = "Invalid request. Please check your input"
)

// ============================================================================
// SUCCESS MESSAGES
// ============================================================================

const (
	SuccessCreated         = "Record created successfully"
	SuccessUpdated         = "Record updated successfully"
	SuccessDeleted         = "Record deleted successfully"
	SuccessUploaded        = "File uploaded successfully. %d records processed"
	SuccessFieldsRecompute = "Collection fields updated for %d records"
)

// FormatError formats an error message with additional context
func FormatError(baseError string, context ...interface{}) string {
	if len(context) == 0 {
		return baseError
	}
	return fmt.Sprintf(baseError, context...)
}
