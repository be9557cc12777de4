// Package dialog implements the image generation dialog: its render model,
// preset application with live preset updates, the generation pipeline and
// the registry of open dialogs and preset editors.
package dialog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"portraitd/internal/events"
	"portraitd/internal/imagegen"
	"portraitd/internal/preset"
	"portraitd/internal/settings"
	"portraitd/pkg/types"
)

// ImageService is the remote image API.
type ImageService interface {
	RequestImages(ctx context.Context, req types.GenerationRequest) ([]types.ImageResult, error)
	RemoveBackground(ctx context.Context, req types.BackgroundRemovalRequest) (types.ImageResult, error)
}

// ImageSaver persists a base64 or data URI PNG and returns its storage path.
type ImageSaver interface {
	SavePortrait(ctx context.Context, entityName, b64 string) (string, error)
	SaveToken(ctx context.Context, entityName, b64 string) (string, error)
}

// Entities is the entity access dialogs need.
type Entities interface {
	Get(ctx context.Context, id string) (types.Entity, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	CanOwn(e types.Entity, userID string) bool
	IsGM(userID string) bool
}

// ModelSuggestions are the quick-pick models offered by every dialog.
var ModelSuggestions = []types.ModelSuggestion{
	{Value: "runware:100@1", Label: "Stable Diffusion 1.5"},
	{Value: "runware:101@1", Label: "Stable Diffusion XL"},
	{Value: "civitai:130869@143722", Label: "Fantastic Characters SDXL"},
	{Value: "civitai:4384@128713", Label: "DreamShaper"},
}

// Dialog is one open generation dialog for one entity and one user.
type Dialog struct {
	id       string
	userID   string
	entity   types.Entity
	images   ImageService
	saver    ImageSaver
	entities Entities
	settings *settings.Settings
	prompts  *Prompts
	log      zerolog.Logger

	generating atomic.Bool

	mu        sync.Mutex
	presets   []types.Preset
	appliedID string
	closed    bool
	unsub     func()
	onClose   func()
}

func (d *Dialog) ID() string       { return d.id }
func (d *Dialog) UserID() string   { return d.userID }
func (d *Dialog) EntityID() string { return d.entity.ID }

// Prompts returns the dialog's pending question slot.
func (d *Dialog) Prompts() *Prompts { return d.prompts }

// IsGenerating reports whether a pipeline run is in flight.
func (d *Dialog) IsGenerating() bool { return d.generating.Load() }

func (d *Dialog) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Presets returns the presets currently offered, sorted by name.
func (d *Dialog) Presets() []types.Preset {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clonePresets(d.presets)
}

// AppliedPresetID returns the id of the last applied preset still offered.
func (d *Dialog) AppliedPresetID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.appliedID
}

// Prepare builds the render model from current settings and presets.
func (d *Dialog) Prepare(ctx context.Context) (types.DialogView, error) {
	model, err := d.settings.DefaultModel(ctx)
	if err != nil {
		return types.DialogView{}, err
	}
	width, err := d.settings.ImageWidth(ctx)
	if err != nil {
		return types.DialogView{}, err
	}
	height, err := d.settings.ImageHeight(ctx)
	if err != nil {
		return types.DialogView{}, err
	}
	n, err := d.settings.NumberResults(ctx)
	if err != nil {
		return types.DialogView{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return types.DialogView{
		ID:               d.id,
		EntityID:         d.entity.ID,
		EntityName:       d.entity.Name,
		DefaultModel:     model,
		ImageWidth:       width,
		ImageHeight:      height,
		NumberResults:    n,
		IsGenerating:     d.generating.Load(),
		Presets:          clonePresets(d.presets),
		CanManagePresets: d.entities.IsGM(d.userID),
		AppliedPresetID:  d.appliedID,
		ModelSuggestions: append([]types.ModelSuggestion(nil), ModelSuggestions...),
	}, nil
}

// ApplyPreset writes the offered preset id over f. An unknown id clears the
// applied preset and returns f unchanged.
func (d *Dialog) ApplyPreset(id string, f types.FormFields, n Notifier) (types.FormFields, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return f, ErrDialogClosed
	}
	p, ok := preset.Find(d.presets, id)
	if !ok {
		d.appliedID = ""
		d.mu.Unlock()
		f.PresetID = ""
		return f, nil
	}
	d.appliedID = p.ID
	d.mu.Unlock()
	if n != nil {
		notify(n, LevelInfo, fmt.Sprintf("Applied preset %q.", p.Name))
	}
	return imagegen.ApplyPreset(f, p), nil
}

// Close unsubscribes from preset updates, resolves pending prompts and drops
// the dialog from its registry. It is idempotent.
func (d *Dialog) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsub, onClose := d.unsub, d.onClose
	d.unsub, d.onClose = nil, nil
	d.mu.Unlock()

	d.prompts.Close()
	if unsub != nil {
		unsub()
	}
	if onClose != nil {
		onClose()
	}
	d.log.Debug().Str("dialog", d.id).Msg("dialog closed")
}

func (d *Dialog) handlePresetsUpdated(ev events.Event) {
	list, ok := ev.Payload.([]types.Preset)
	if !ok {
		d.log.Debug().Str("dialog", d.id).Msgf("ignoring presets payload of type %T", ev.Payload)
		return
	}
	available := preset.Available(list)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.presets = available
	if _, ok := preset.Find(available, d.appliedID); !ok {
		d.appliedID = ""
	}
}

func notify(n Notifier, lvl Level, msg string) {
	n.Notify(lvl, ModuleName+": "+msg)
}

func clonePresets(in []types.Preset) []types.Preset {
	out := make([]types.Preset, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
