package dialog

import (
	"errors"
	"net/http"
)

// statusError is a sentinel error the HTTP layer maps to a fixed status.
type statusError struct {
	msg  string
	code int
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) StatusCode() int { return e.code }

var (
	ErrAlreadyGenerating = &statusError{"generation already in progress", http.StatusConflict}
	ErrNoImages          = &statusError{"no images were generated", http.StatusBadGateway}
	ErrMissingAPIKey     = &statusError{"Please configure your Runware API key in module settings.", http.StatusPreconditionFailed}
	ErrPermissionDenied  = &statusError{"permission denied", http.StatusForbidden}
	ErrDialogNotFound    = &statusError{"dialog not found", http.StatusNotFound}
	ErrEditorNotFound    = &statusError{"editor not found", http.StatusNotFound}
	ErrDialogClosed      = &statusError{"dialog is closed", http.StatusGone}
	ErrNoPendingPrompt   = &statusError{"no prompt is waiting for an answer", http.StatusConflict}
	ErrInvalidChoice     = &statusError{"choice index out of range", http.StatusBadRequest}
)

// ErrCancelled ends a pipeline whose image pick was cancelled. Nothing was saved.
var ErrCancelled = errors.New("image selection cancelled")

// GenerationError wraps a failed remote call.
type GenerationError struct{ Err error }

func (e *GenerationError) Error() string   { return "image generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error   { return e.Err }
func (e *GenerationError) StatusCode() int { return http.StatusBadGateway }

// IsGenerationFailure reports whether err came from the remote image call,
// including an empty result set.
func IsGenerationFailure(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) || errors.Is(err, ErrNoImages)
}

// IsBusy reports whether err rejected a second concurrent generation.
func IsBusy(err error) bool { return errors.Is(err, ErrAlreadyGenerating) }

// IsCancelled reports whether the user cancelled the image pick.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
