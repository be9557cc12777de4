// Package imagegen turns generation form fields into a remote image request.
// Everything here is pure: no I/O, no shared state.
package imagegen

import (
	"errors"
	"net/http"
	"strings"

	"portraitd/pkg/types"
)

// Form field names reported by ValidationError.
const (
	FieldPrompt = "prompt"
	FieldModel  = "model"
)

// ValidationError reports a missing or malformed form field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// IsValidation reports whether err is a form ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the required fields. It must pass before Build is called.
func Validate(f types.FormFields) error {
	if strings.TrimSpace(f.Prompt) == "" {
		return &ValidationError{Field: FieldPrompt, Msg: "Please enter a prompt"}
	}
	if strings.TrimSpace(f.Model) == "" {
		return &ValidationError{Field: FieldModel, Msg: "Please enter a model"}
	}
	return nil
}
