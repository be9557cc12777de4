package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"portraitd/internal/dialog"
	"portraitd/pkg/types"
)

// streamUI answers the pipeline's questions over an NDJSON response. Prompts
// are announced on the stream and answered by /choice and /confirm.
type streamUI struct {
	mu      sync.Mutex
	w       io.Writer
	flush   func()
	prompts *dialog.Prompts
	err     error
}

func (u *streamUI) emit(ev types.StreamEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		u.err = err
		return
	}
	if _, err := u.w.Write(append(b, '\n')); err != nil {
		u.err = err
		return
	}
	if u.flush != nil {
		u.flush()
	}
}

func (u *streamUI) Notify(level dialog.Level, msg string) {
	u.emit(types.StreamEvent{Type: types.StreamNotice, Level: string(level), Message: msg})
}

func (u *streamUI) Choose(ctx context.Context, candidates []types.ImageResult) (int, bool, error) {
	return u.prompts.AwaitChoice(ctx, len(candidates), func() {
		u.emit(types.StreamEvent{Type: types.StreamChoose, Candidates: candidates})
	})
}

func (u *streamUI) Confirm(ctx context.Context, title, message, image string, defaultYes bool) (bool, error) {
	return u.prompts.AwaitConfirm(ctx, func() {
		u.emit(types.StreamEvent{
			Type:       types.StreamConfirm,
			Title:      title,
			Message:    message,
			Image:      image,
			DefaultYes: defaultYes,
		})
	})
}

// @Summary		Run the generation pipeline
// @Description	Streams NDJSON events: notice, choose, confirm, then done or error.
// @Accept			json
// @Produce		application/x-ndjson
// @Param			id		path		string				true	"Dialog id"
// @Param			body	body		types.FormFields	true	"Form values"
// @Success		200		{object}	types.StreamEvent
// @Router			/dialogs/{id}/generate [post]
func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dialogFor(w, r)
	if !ok {
		return
	}
	var f types.FormFields
	if !decodeJSON(w, r, &f) {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if fl, ok := w.(http.Flusher); ok {
		flush = fl.Flush
	}
	writer := io.Writer(w)
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{})
	}
	start := time.Now()
	logStart(r, lvl, "generate", map[string]string{"dialog": d.ID(), "model": f.Model})

	ctx, cancel := generationContext(r)
	defer cancel()

	ui := &streamUI{w: writer, flush: flush, prompts: d.Prompts()}
	out, err := d.Generate(ctx, f, ui)
	switch {
	case err == nil:
		ui.emit(types.StreamEvent{Type: types.StreamDone, Outcome: &out})
	case dialog.IsCancelled(err):
		ui.emit(types.StreamEvent{Type: types.StreamDone, Outcome: &out})
		err = nil
	case clientGone(r):
		// Client went away or the server is shutting down.
		logEnd(r, lvl, "generate", 499, start, err)
		return
	default:
		if dialog.IsBusy(err) {
			IncrementRejection("busy")
		}
		ui.emit(types.StreamEvent{Type: types.StreamError, Message: err.Error(), Code: statusFor(err)})
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	logEnd(r, lvl, "generate", status, start, err)
}
