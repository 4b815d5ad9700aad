package errors

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel marks. Every error returned across a package boundary should carry exactly one of them.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation error")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDatabase         = errors.New("database error")
	ErrInternal         = errors.New("internal error")
	ErrSystem           = errors.New("system error")
)

// statusCodes is ordered; the first matching mark wins.
var statusCodes = []struct {
	mark error
	code int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrAlreadyExists, http.StatusConflict},
	{ErrValidation, http.StatusBadRequest},
	{ErrInvalidOperation, http.StatusConflict},
	{ErrPermissionDenied, http.StatusForbidden},
	{ErrDatabase, http.StatusInternalServerError},
	{ErrInternal, http.StatusInternalServerError},
	{ErrSystem, http.StatusInternalServerError},
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// HTTPStatusFromErr maps the sentinel mark of err to an HTTP status code.
func HTTPStatusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.mark) {
			return sc.code
		}
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the JSON body rendered for failed API calls.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Display  string         `json:"display"`
	Internal string         `json:"internal_error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// NewErrorResponse builds the API body for err. Hints become the display message.
func NewErrorResponse(err error) ErrorResponse {
	display := "An unexpected error occurred"
	if hints := errors.FlattenHints(err); hints != "" {
		display = hints
	}

	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display:  display,
			Internal: err.Error(),
			Details:  reportableDetails(err),
		},
	}
}
