// Package preset owns the world-scoped list of generation presets: the store
// that normalizes and persists it, the editor that mutates a working copy, and
// the catalog view open dialogs consume.
package preset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"portraitd/internal/events"
	"portraitd/internal/settings"
	"portraitd/pkg/types"
)

// EventPresetsUpdated is broadcast after every successful save. Its payload is
// the canonical []types.Preset reloaded from the settings store.
const EventPresetsUpdated = "presetsUpdated"

// Store reads and writes the preset list held in settings.
type Store struct {
	settings *settings.Settings
	pub      events.Publisher
	log      zerolog.Logger
}

// NewStore returns a Store. pub may be nil when nobody listens.
func NewStore(s *settings.Settings, pub events.Publisher, log zerolog.Logger) *Store {
	return &Store{settings: s, pub: pub, log: log}
}

// LoadAll returns every persisted preset, normalized. A stored value that is
// not a list maps to an empty list.
func (s *Store) LoadAll(ctx context.Context) ([]types.Preset, error) {
	raw, err := s.settings.Raw(ctx, settings.KeyGenerationPresets)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.log.Warn().Err(err).Msg("stored presets are not valid JSON; treating as empty")
		return []types.Preset{}, nil
	}
	list, ok := decoded.([]any)
	if !ok {
		return []types.Preset{}, nil
	}
	out := make([]types.Preset, 0, len(list))
	for _, item := range list {
		out = append(out, Normalize(item))
	}
	return out, nil
}

// SaveAll replaces the whole stored list, reloads it and broadcasts the
// reloaded list so every observer derives state from what was persisted.
func (s *Store) SaveAll(ctx context.Context, presets []types.Preset) ([]types.Preset, error) {
	if presets == nil {
		presets = []types.Preset{}
	}
	if err := s.settings.Set(ctx, settings.KeyGenerationPresets, presets); err != nil {
		return nil, fmt.Errorf("save presets: %w", err)
	}
	s.log.Info().Int("count", len(presets)).Msg("presets saved")
	return s.Refresh(ctx)
}

// Refresh reloads the canonical list and broadcasts it. It is also called
// when another process changed the stored presets.
func (s *Store) Refresh(ctx context.Context) ([]types.Preset, error) {
	canonical, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.Publish(events.Event{Name: EventPresetsUpdated, Payload: clonePresets(canonical)})
	}
	return canonical, nil
}

func clonePresets(in []types.Preset) []types.Preset {
	out := make([]types.Preset, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
