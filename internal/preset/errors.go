package preset

import (
	"errors"
	"net/http"
)

// ErrEditorClosed is returned by every editor operation after Close or a
// successful Commit.
var ErrEditorClosed = errors.New("preset editor is closed")

// ValidationError rejects a whole commit. Msg is shown to the user as is.
type ValidationError struct {
	PresetID string
	Msg      string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// IsValidation reports whether err is a commit ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
