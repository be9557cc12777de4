package preset

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"portraitd/pkg/types"
)

// State is the editor lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateEditing State = "editing"
	StateSaving  State = "saving"
	StateError   State = "error"
	StateClosed  State = "closed"
)

// Editor is a CRUD screen over a private working copy of the preset list.
// Edits stay in memory until Commit writes the whole list back.
type Editor struct {
	mu      sync.Mutex
	id      string
	store   *Store
	presets []types.Preset // nil until first load
	state   State
	lastErr string
	onClose func()
}

// NewEditor returns an idle editor. The working copy is loaded on first use.
func NewEditor(store *Store) *Editor {
	return &Editor{id: uuid.NewString(), store: store, state: StateIdle}
}

func (e *Editor) ID() string { return e.id }

// OnClose registers fn to run once when the editor closes. fn runs with the
// editor locked and must not call back into it.
func (e *Editor) OnClose(fn func()) {
	e.mu.Lock()
	e.onClose = fn
	e.mu.Unlock()
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// View returns the render model, loading the working copy if needed.
func (e *Editor) View(ctx context.Context) (types.EditorView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return types.EditorView{}, err
	}
	return types.EditorView{
		ID:      e.id,
		State:   string(e.state),
		Presets: clonePresets(e.presets),
		Error:   e.lastErr,
	}, nil
}

// AddPreset appends a blank preset named "New Preset". Nothing is persisted.
func (e *Editor) AddPreset(ctx context.Context) (types.Preset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.beginEdit(ctx); err != nil {
		return types.Preset{}, err
	}
	p := NormalizePreset(types.Preset{Name: "New Preset", Lora: &types.Lora{Weight: 1}})
	e.presets = append(e.presets, p)
	return p.Clone(), nil
}

// RemovePreset drops the preset with id from the working copy.
func (e *Editor) RemovePreset(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.beginEdit(ctx); err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	kept := e.presets[:0:0]
	for _, p := range e.presets {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	e.presets = kept
	return nil
}

// AddEmbedding appends a blank embedding to the named preset. Unknown ids are ignored.
func (e *Editor) AddEmbedding(ctx context.Context, presetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.beginEdit(ctx); err != nil {
		return err
	}
	if p := e.find(presetID); p != nil {
		p.Embeddings = append(p.Embeddings, types.Embedding{Weight: 1})
	}
	return nil
}

// RemoveEmbedding removes embedding index from the named preset. An out of
// range index is a no-op.
func (e *Editor) RemoveEmbedding(ctx context.Context, presetID string, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.beginEdit(ctx); err != nil {
		return err
	}
	p := e.find(presetID)
	if p == nil || index < 0 || index >= len(p.Embeddings) {
		return nil
	}
	p.Embeddings = append(p.Embeddings[:index:index], p.Embeddings[index+1:]...)
	return nil
}

// Commit validates every submitted row, then persists the resulting list as a
// whole. The first invalid row aborts with a ValidationError and nothing is
// written. A persistence failure leaves the editor open with its working copy.
// On success the editor closes and returns the canonical list.
func (e *Editor) Commit(ctx context.Context, rows []types.PresetRow) ([]types.Preset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return nil, ErrEditorClosed
	}
	prev := e.state
	e.state = StateSaving
	presets := make([]types.Preset, 0, len(rows))
	for _, row := range rows {
		p, err := readRow(row)
		if err != nil {
			e.state = prev
			if e.state == StateIdle {
				e.state = StateEditing
			}
			e.lastErr = err.Error()
			return nil, err
		}
		presets = append(presets, p)
	}
	canonical, err := e.store.SaveAll(ctx, presets)
	if err != nil {
		e.state = StateError
		e.lastErr = err.Error()
		return nil, err
	}
	e.presets = canonical
	e.lastErr = ""
	e.closeLocked()
	return clonePresets(canonical), nil
}

// Close discards the working copy without saving.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *Editor) closeLocked() {
	if e.state == StateClosed {
		return
	}
	e.state = StateClosed
	if fn := e.onClose; fn != nil {
		e.onClose = nil
		fn()
	}
}

func (e *Editor) ensureLoaded(ctx context.Context) error {
	if e.presets != nil {
		return nil
	}
	list, err := e.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	e.presets = list
	return nil
}

func (e *Editor) beginEdit(ctx context.Context) error {
	if e.state == StateClosed {
		return ErrEditorClosed
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}
	e.state = StateEditing
	return nil
}

func (e *Editor) find(id string) *types.Preset {
	for i := range e.presets {
		if e.presets[i].ID == id {
			return &e.presets[i]
		}
	}
	return nil
}

// readRow converts one submitted form row into a preset, omitting empty
// optional parts.
func readRow(row types.PresetRow) (types.Preset, error) {
	id := row.ID
	if id == "" {
		id = NewID()
	}
	name := strings.TrimSpace(row.Name)
	model := strings.TrimSpace(row.Model)
	if name == "" {
		return types.Preset{}, &ValidationError{PresetID: id, Msg: "Preset name cannot be empty."}
	}
	if model == "" {
		return types.Preset{}, &ValidationError{PresetID: id, Msg: fmt.Sprintf("Preset %q must specify a model.", name)}
	}
	p := types.Preset{ID: id, Name: name, Model: model}
	if lm := strings.TrimSpace(row.LoraModel); lm != "" {
		p.Lora = &types.Lora{
			Model:   lm,
			Weight:  weightOrOne(row.LoraWeight),
			Trigger: strings.TrimSpace(row.LoraTrigger),
		}
	}
	if vae := strings.TrimSpace(row.VAE); vae != "" {
		p.VAE = vae
	}
	for _, er := range row.Embeddings {
		m := strings.TrimSpace(er.Model)
		if m == "" {
			continue
		}
		p.Embeddings = append(p.Embeddings, types.Embedding{Model: m, Weight: weightOrOne(er.Weight)})
	}
	return p, nil
}

func weightOrOne(s string) float64 {
	if f, ok := ParseNumber(s); ok {
		return f
	}
	return 1
}

// Rows renders presets as editable form rows, the inverse of Commit's parsing.
func Rows(presets []types.Preset) []types.PresetRow {
	rows := make([]types.PresetRow, 0, len(presets))
	for _, p := range presets {
		row := types.PresetRow{ID: p.ID, Name: p.Name, Model: p.Model, VAE: p.VAE}
		if p.Lora != nil {
			row.LoraModel = p.Lora.Model
			row.LoraWeight = strconv.FormatFloat(p.Lora.Weight, 'f', -1, 64)
			row.LoraTrigger = p.Lora.Trigger
		}
		for _, em := range p.Embeddings {
			row.Embeddings = append(row.Embeddings, types.EmbeddingRow{
				Model:  em.Model,
				Weight: strconv.FormatFloat(em.Weight, 'f', -1, 64),
			})
		}
		rows = append(rows, row)
	}
	return rows
}
