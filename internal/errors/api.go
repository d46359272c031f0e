package errors

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

// APIError is the error shape returned by the relay's HTTP endpoints
type APIError struct {
	Status   int               `json:"-"`
	Message  string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Internal error             `json:"-"`
}

func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Internal
}

func BadRequest(msg string, err error) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: msg, Internal: err}
}

func Unauthorized(msg string, err error) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: msg, Internal: err}
}

func Forbidden(msg string, err error) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: msg, Internal: err}
}

func NotFound(msg string, err error) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: msg, Internal: err}
}

func Internal(err error) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: "Internal server error", Internal: err}
}

// NewValidationError maps validator failures to a per-field message map
func NewValidationError(err error) *APIError {
	apiErr := &APIError{
		Status:   http.StatusUnprocessableEntity,
		Message:  "Validation failed",
		Internal: err,
	}

	var fieldErrs validator.ValidationErrors
	if As(err, &fieldErrs) {
		apiErr.Fields = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			apiErr.Fields[fe.Field()] = fe.Tag()
		}
	}
	return apiErr
}
