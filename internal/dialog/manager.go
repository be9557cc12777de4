package dialog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portraitd/internal/events"
	"portraitd/internal/preset"
	"portraitd/internal/settings"
)

// Config wires a Manager.
type Config struct {
	Settings *settings.Settings
	Presets  *preset.Store
	// NewImageService binds the remote image client to an API key.
	NewImageService func(apiKey string) ImageService
	Saver           ImageSaver
	Entities        Entities
	// Bus delivers preset.EventPresetsUpdated to open dialogs.
	Bus    events.Subscriber
	Logger zerolog.Logger
}

// Manager is the registry of open generation dialogs and preset editors.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	dialogs map[string]*Dialog
	editors map[string]*preset.Editor
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     cfg.Logger,
		dialogs: make(map[string]*Dialog),
		editors: make(map[string]*preset.Editor),
	}
}

// Open creates a dialog for entityID on behalf of userID. The API key must
// be configured and the user must own the entity.
func (m *Manager) Open(ctx context.Context, entityID, userID string) (*Dialog, error) {
	apiKey, err := m.cfg.Settings.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	e, err := m.cfg.Entities.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if !m.cfg.Entities.CanOwn(e, userID) {
		return nil, ErrPermissionDenied
	}
	list, err := m.cfg.Presets.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	d := &Dialog{
		id:       uuid.NewString(),
		userID:   userID,
		entity:   e,
		images:   m.cfg.NewImageService(apiKey),
		saver:    m.cfg.Saver,
		entities: m.cfg.Entities,
		settings: m.cfg.Settings,
		prompts:  NewPrompts(),
		log:      m.log,
		presets:  preset.Available(list),
	}
	if m.cfg.Bus != nil {
		d.unsub = m.cfg.Bus.Subscribe(preset.EventPresetsUpdated, d.handlePresetsUpdated)
	}
	d.onClose = func() { m.removeDialog(d.id) }

	m.mu.Lock()
	m.dialogs[d.id] = d
	m.mu.Unlock()
	openDialogs.Inc()
	m.log.Info().Str("dialog", d.id).Str("entity", e.ID).Str("user", userID).Msg("dialog opened")
	return d, nil
}

// Dialog returns an open dialog.
func (m *Manager) Dialog(id string) (*Dialog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dialogs[id]
	if !ok {
		return nil, ErrDialogNotFound
	}
	return d, nil
}

// OpenDialogs returns the number of open dialogs.
func (m *Manager) OpenDialogs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dialogs)
}

func (m *Manager) removeDialog(id string) {
	m.mu.Lock()
	_, ok := m.dialogs[id]
	delete(m.dialogs, id)
	m.mu.Unlock()
	if ok {
		openDialogs.Dec()
	}
}

// OpenEditor starts a preset editor. Only game masters manage presets.
func (m *Manager) OpenEditor(userID string) (*preset.Editor, error) {
	if !m.cfg.Entities.IsGM(userID) {
		return nil, ErrPermissionDenied
	}
	ed := preset.NewEditor(m.cfg.Presets)
	id := ed.ID()
	ed.OnClose(func() { m.removeEditor(id) })
	m.mu.Lock()
	m.editors[id] = ed
	m.mu.Unlock()
	m.log.Info().Str("editor", id).Str("user", userID).Msg("preset editor opened")
	return ed, nil
}

// Editor returns an open preset editor.
func (m *Manager) Editor(id string) (*preset.Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ed, ok := m.editors[id]
	if !ok {
		return nil, ErrEditorNotFound
	}
	return ed, nil
}

func (m *Manager) removeEditor(id string) {
	m.mu.Lock()
	delete(m.editors, id)
	m.mu.Unlock()
}

// CloseAll closes every dialog and editor, resolving pending prompts.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	dialogs := make([]*Dialog, 0, len(m.dialogs))
	for _, d := range m.dialogs {
		dialogs = append(dialogs, d)
	}
	editors := make([]*preset.Editor, 0, len(m.editors))
	for _, ed := range m.editors {
		editors = append(editors, ed)
	}
	m.mu.Unlock()
	for _, d := range dialogs {
		d.Close()
	}
	for _, ed := range editors {
		ed.Close()
	}
}
