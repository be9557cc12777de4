package settings

import (
	"errors"
	"net/http"
)

// ErrUnknownSetting is returned for keys that were never registered.
var ErrUnknownSetting = errors.New("unknown setting")

// ErrNotConfigurable is returned when a hidden setting is written through the
// generic settings surface.
var ErrNotConfigurable = errors.New("setting is not user-editable")

// ValidationError reports a value that does not fit its definition.
type ValidationError struct {
	Key string
	Msg string
}

func (e *ValidationError) Error() string { return e.Key + " " + e.Msg }

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// IsValidation reports whether err is a settings ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
