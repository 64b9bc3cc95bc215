package errors

import "errors"

// Error codes shared by the client domains and the HTTP layer.
const (
	CodeMissingLocation      = "missing_location"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeValidation           = "validation_error"
	CodeAuthorizationExpired = "authorization_expired"
	CodeGenerationFailed     = "generation_failed"
	CodeGenerationTimeout    = "generation_timeout"
	CodeGenerationInProgress = "generation_in_progress"
	CodeGenerationCancelled  = "generation_cancelled"
	CodeNetwork              = "network_error"
	CodeNotFound             = "not_found"
	CodeStorage              = "storage_error"
)

// AppError encodes domain specific error details.
type AppError struct {
	Code     string
	Message  string
	Err      error
	Fields   map[string]string
	Warnings []string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance.
func Wrap(code, message string, err error) error {
	if err == nil {
		return &AppError{Code: code, Message: message}
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// Validation reports per-field messages, e.g. from a rejected form.
func Validation(message string, fields map[string]string) error {
	return &AppError{Code: CodeValidation, Message: message, Fields: fields}
}

// WithWarnings attaches advisory warnings to a wrapped error.
func WithWarnings(code, message string, err error, warnings []string) error {
	return &AppError{Code: code, Message: message, Err: err, Warnings: warnings}
}

// IsCode helps handler differentiate failures.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// FieldsOf returns field-level messages carried by err, if any.
func FieldsOf(err error) map[string]string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}

// WarningsOf returns advisory warnings carried by err, if any.
func WarningsOf(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Warnings
	}
	return nil
}
