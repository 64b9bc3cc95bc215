package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status   int
	Code     string
	Message  string
	Fields   map[string]string
	Warnings []string
	Err      error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// fromAppError maps a domain error onto its HTTP representation.
func fromAppError(err error) *HTTPError {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return asHTTPError(err)
	}
	return &HTTPError{
		Status:   statusForCode(appErr.Code),
		Code:     appErr.Code,
		Message:  appErr.Message,
		Fields:   appErr.Fields,
		Warnings: appErr.Warnings,
		Err:      err,
	}
}

func statusForCode(code string) int {
	switch code {
	case apperrors.CodeMissingLocation, apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeInvalidCredentials, apperrors.CodeAuthorizationExpired:
		return http.StatusUnauthorized
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeGenerationInProgress, apperrors.CodeGenerationCancelled:
		return http.StatusConflict
	case apperrors.CodeNetwork, apperrors.CodeGenerationFailed:
		return http.StatusBadGateway
	case apperrors.CodeGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "something went wrong",
		Err:     err,
	}
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func fail(c *gin.Context, err error) {
	abortWithError(c, fromAppError(err))
}
