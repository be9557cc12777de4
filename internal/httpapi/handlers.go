package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"portraitd/internal/dialog"
	"portraitd/internal/preset"
	"portraitd/pkg/types"
)

// @Summary		List settings
// @Description	Registered user-editable settings with their values. The API key is redacted.
// @Produce		json
// @Success		200	{object}	types.SettingsResponse
// @Router			/settings [get]
func (s *server) getSettings(w http.ResponseWriter, r *http.Request) {
	views, err := s.Settings.Views(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	key, err := s.Settings.APIKey(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if views == nil {
		views = []types.SettingView{}
	}
	writeJSON(w, http.StatusOK, types.SettingsResponse{Settings: views, APIKeySet: key != ""})
}

// @Summary		Update a setting
// @Accept			json
// @Param			key		path	string				true	"Setting key"
// @Param			body	body	types.SettingUpdate	true	"New value"
// @Success		204
// @Failure		400	{object}	types.ErrorResponse
// @Failure		403	{object}	types.ErrorResponse
// @Failure		404	{object}	types.ErrorResponse
// @Router			/settings/{key} [put]
func (s *server) putSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireGM(w, r) {
		return
	}
	var body types.SettingUpdate
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Value) == 0 {
		writeJSONError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := s.Settings.SetFromUser(r.Context(), chi.URLParam(r, "key"), body.Value); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary		List presets
// @Produce		json
// @Success		200	{object}	types.PresetsResponse
// @Router			/presets [get]
func (s *server) listPresets(w http.ResponseWriter, r *http.Request) {
	list, err := s.Presets.LoadAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PresetsResponse{Presets: list})
}

// @Summary		Open the preset editor
// @Produce		json
// @Success		201	{object}	types.EditorView
// @Failure		403	{object}	types.ErrorResponse
// @Router			/editors [post]
func (s *server) openEditor(w http.ResponseWriter, r *http.Request) {
	ed, err := s.Dialogs.OpenEditor(userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := ed.View(r.Context())
	if err != nil {
		ed.Close()
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// editor resolves {id} and checks the caller may edit presets.
func (s *server) editor(w http.ResponseWriter, r *http.Request) (*preset.Editor, bool) {
	if !s.requireGM(w, r) {
		return nil, false
	}
	ed, err := s.Dialogs.Editor(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return ed, true
}

// writeEditorView answers an editor mutation with the updated view.
func writeEditorView(w http.ResponseWriter, r *http.Request, ed *preset.Editor, status int) {
	view, err := ed.View(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, status, view)
}

// @Summary		Preset editor view
// @Produce		json
// @Param			id	path		string	true	"Editor id"
// @Success		200	{object}	types.EditorView
// @Failure		404	{object}	types.ErrorResponse
// @Router			/editors/{id} [get]
func (s *server) editorView(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	writeEditorView(w, r, ed, http.StatusOK)
}

// @Summary		Close the preset editor without saving
// @Param			id	path	string	true	"Editor id"
// @Success		204
// @Router			/editors/{id} [delete]
func (s *server) closeEditor(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	ed.Close()
	w.WriteHeader(http.StatusNoContent)
}

// @Summary		Add a blank preset to the working copy
// @Produce		json
// @Param			id	path		string	true	"Editor id"
// @Success		201	{object}	types.EditorView
// @Router			/editors/{id}/presets [post]
func (s *server) addPreset(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	if _, err := ed.AddPreset(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeEditorView(w, r, ed, http.StatusCreated)
}

// @Summary		Remove a preset from the working copy
// @Produce		json
// @Param			id	path		string	true	"Editor id"
// @Param			pid	path		string	true	"Preset id"
// @Success		200	{object}	types.EditorView
// @Router			/editors/{id}/presets/{pid} [delete]
func (s *server) removePreset(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	if err := ed.RemovePreset(r.Context(), chi.URLParam(r, "pid")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeEditorView(w, r, ed, http.StatusOK)
}

// @Summary		Add a blank embedding to a preset
// @Produce		json
// @Param			id	path		string	true	"Editor id"
// @Param			pid	path		string	true	"Preset id"
// @Success		200	{object}	types.EditorView
// @Router			/editors/{id}/presets/{pid}/embeddings [post]
func (s *server) addEmbedding(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	if err := ed.AddEmbedding(r.Context(), chi.URLParam(r, "pid")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeEditorView(w, r, ed, http.StatusOK)
}

// @Summary		Remove an embedding from a preset
// @Produce		json
// @Param			id		path		string	true	"Editor id"
// @Param			pid		path		string	true	"Preset id"
// @Param			index	path		int		true	"Embedding index"
// @Success		200		{object}	types.EditorView
// @Failure		400		{object}	types.ErrorResponse
// @Router			/editors/{id}/presets/{pid}/embeddings/{index} [delete]
func (s *server) removeEmbedding(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := ed.RemoveEmbedding(r.Context(), chi.URLParam(r, "pid"), index); err != nil {
		writeServiceError(w, err)
		return
	}
	writeEditorView(w, r, ed, http.StatusOK)
}

// @Summary		Validate and save every preset row, then close the editor
// @Accept			json
// @Produce		json
// @Param			id		path		string				true	"Editor id"
// @Param			body	body		types.CommitRequest	true	"Edited rows"
// @Success		200		{object}	types.PresetsResponse
// @Failure		400		{object}	types.ErrorResponse
// @Router			/editors/{id}/commit [post]
func (s *server) commitEditor(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	var body types.CommitRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	list, err := ed.Commit(r.Context(), body.Rows)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PresetsResponse{Presets: list})
}

// @Summary		Upsert an entity record
// @Accept			json
// @Param			id		path	string				true	"Entity id"
// @Param			body	body	types.EntityUpsert	true	"Entity"
// @Success		204
// @Router			/entities/{id} [put]
func (s *server) putEntity(w http.ResponseWriter, r *http.Request) {
	if !s.requireGM(w, r) {
		return
	}
	var body types.EntityUpsert
	if !decodeJSON(w, r, &body) {
		return
	}
	e := types.Entity{
		ID:        chi.URLParam(r, "id"),
		Name:      body.Name,
		Img:       body.Img,
		TokenImg:  body.TokenImg,
		Ownership: body.Ownership,
	}
	if err := s.Entities.Put(r.Context(), e); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary		Sheet header actions for the calling user
// @Produce		json
// @Param			id	path	string	true	"Entity id"
// @Success		200	{array}	types.HeaderAction
// @Router			/entities/{id}/actions [get]
func (s *server) entityActions(w http.ResponseWriter, r *http.Request) {
	e, err := s.Entities.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Entities.HeaderActions(e, userID(r)))
}

// @Summary		Saved portraits of an entity
// @Produce		json
// @Param			id	path		string	true	"Entity id"
// @Success		200	{object}	types.ImagesResponse
// @Router			/entities/{id}/images [get]
func (s *server) entityImages(w http.ResponseWriter, r *http.Request) {
	e, err := s.Entities.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ImagesResponse{Images: s.Images.ListImages(r.Context(), e.Name)})
}

// @Summary		Open a generation dialog
// @Produce		json
// @Param			id	path		string	true	"Entity id"
// @Success		201	{object}	types.DialogView
// @Failure		403	{object}	types.ErrorResponse
// @Failure		412	{object}	types.ErrorResponse
// @Router			/entities/{id}/dialogs [post]
func (s *server) openDialog(w http.ResponseWriter, r *http.Request) {
	d, err := s.Dialogs.Open(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := d.Prepare(r.Context())
	if err != nil {
		d.Close()
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// dialogFor resolves {id} to a dialog opened by the caller.
func (s *server) dialogFor(w http.ResponseWriter, r *http.Request) (*dialog.Dialog, bool) {
	d, err := s.Dialogs.Dialog(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if d.UserID() != userID(r) {
		writeServiceError(w, dialog.ErrPermissionDenied)
		return nil, false
	}
	return d, true
}

// @Summary		Dialog render model
// @Produce		json
// @Param			id	path		string	true	"Dialog id"
// @Success		200	{object}	types.DialogView
// @Failure		404	{object}	types.ErrorResponse
// @Router			/dialogs/{id} [get]
func (s *server) dialogView(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dialogFor(w, r)
	if !ok {
		return
	}
	view, err := d.Prepare(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// @Summary		Close a dialog, cancelling pending prompts
// @Param			id	path	string	true	"Dialog id"
// @Success		204
// @Router			/dialogs/{id} [delete]
func (s *server) closeDialog(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dialogFor(w, r)
	if !ok {
		return
	}
	d.Close()
	w.WriteHeader(http.StatusNoContent)
}

// noticeCollector keeps the last notification of a non-streaming call.
type noticeCollector struct{ msg string }

func (n *noticeCollector) Notify(_ dialog.Level, msg string) { n.msg = msg }

// @Summary		Apply a preset to the form
// @Accept			json
// @Produce		json
// @Param			id		path		string						true	"Dialog id"
// @Param			body	body		types.ApplyPresetRequest	true	"Preset and current form"
// @Success		200		{object}	types.ApplyPresetResponse
// @Router			/dialogs/{id}/preset [post]
func (s *server) applyPreset(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dialogFor(w, r)
	if !ok {
		return
	}
	var body types.ApplyPresetRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	var n noticeCollector
	fields, err := d.ApplyPreset(body.PresetID, body.Fields, &n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ApplyPresetResponse{Fields: fields, Notice: n.msg})
}

// @Summary		Answer the pending image choice
// @Accept			json
// @Param			id		path	string				true	"Dialog id"
// @Param			body	body	types.ChoiceRequest	true	"Selected index, negative cancels"
// @Success		204
// @Failure		409	{object}	types.ErrorResponse
// @Router			/dialogs/{id}/choice [post]
func (s *server) choose(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dialogFor(w, r)
	if !ok {
		return
	}
	var body types.ChoiceRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := d.Prompts().Choose(body.Index); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary		Answer the pending confirmation
// @Accept			json
// @Param			id		path	string					true	"Dialog id"
// @Param			body	body	types.ConfirmRequest	true	"Answer"
// @Success		204
// @Failure		409	{object}	types.ErrorResponse
// @Router			/dialogs/{id}/confirm [post]
func (s *server) confirm(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dialogFor(w, r)
	if !ok {
		return
	}
	var body types.ConfirmRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := d.Prompts().Confirm(body.Yes); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
