// Package domain holds the data model shared by the collaboration engine,
// the relay server and the CLI.
package domain

import (
	"time"

	collabErrors "school-collab/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewID returns a lexically sortable unique id
func NewID() string {
	return ulid.Make().String()
}

// Now returns the current time in unix milliseconds, the unit used on the wire
func Now() int64 {
	return time.Now().UnixMilli()
}

// Validate checks struct tags and wraps failures as a validation error
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return collabErrors.Validation(err)
	}
	return nil
}
