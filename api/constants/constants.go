package constants

// Common error messages
const (
	ErrInvalidJSON         = "invalid json or missing fields"
	ErrInvalidJSONRequired = "invalid json or missing required fields"
	ErrInvalidJSONShort    = "Invalid JSON"
	ErrUserIDRequired      = "user_id required"
	ErrDB                  = "DB error"
	ErrInvalidRequestBody  = "Invalid request body"
	ErrMethodNotAllowed    = "Method Not Allowed"
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "Content-Type"
)

// Date formats
const (
	DateTimeFormat = "2006-01-02 15:04:05"
	DateFormat     = "2006-01-02"
)

// Upload form fields
const (
	FormFile             = "file"
	FormUserID           = "user_id"
	FormName             = "name"
	FormDescription      = "description"
	FormMappingProfileID = "mapping_profile_id"
)

// Upload file extensions the workbook reader understands.
var UploadExtensions = []string{".xlsx", ".xlsm", ".xls", ".csv"}
