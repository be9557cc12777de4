package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"portraitd/internal/config"
	"portraitd/internal/dialog"
	"portraitd/internal/entity"
	"portraitd/internal/events"
	"portraitd/internal/preset"
	"portraitd/internal/runware"
	"portraitd/internal/settings"
	"portraitd/internal/storage"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	bus      *events.Bus
	store    settings.Store
	settings *settings.Settings
	presets  *preset.Store
	entities *entity.Repository
	local    *storage.LocalStorage
	images   *storage.ImageStore
	dialogs  *dialog.Manager
	closers  []func() error
}

func newApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, bus: events.NewBus()}
	switch cfg.Settings.Backend {
	case "redis":
		rs, err := settings.NewRedisStore(settings.RedisOptions{
			Addr:     cfg.Settings.Redis.Addr,
			Password: cfg.Settings.Redis.Password,
			DB:       cfg.Settings.Redis.DB,
			Channel:  cfg.Settings.Redis.Channel,
		})
		if err != nil {
			return nil, err
		}
		a.store = rs
		a.closers = append(a.closers, rs.Close)
	default:
		fs, err := settings.OpenFileStore(cfg.Settings.Path)
		if err != nil {
			return nil, err
		}
		a.store = fs
	}
	a.settings = settings.New(a.store, cfg.ModuleID, a.bus)
	a.presets = preset.NewStore(a.settings, a.bus, log.With().Str("component", "presets").Logger())
	a.entities = entity.NewRepository(entity.Options{
		Store:     a.store,
		ModuleID:  cfg.ModuleID,
		IsGM:      cfg.IsGM,
		Publisher: a.bus,
		Logger:    log.With().Str("component", "entities").Logger(),
	})

	local, err := storage.NewLocalStorage(filepath.Join(cfg.DataDir, "files"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.local = local
	a.images = storage.NewImageStore(local, cfg.ModuleID, log.With().Str("component", "storage").Logger())

	client := runware.New(runware.Config{
		BaseURL:        cfg.Runware.BaseURL,
		RequestTimeout: time.Duration(cfg.Runware.TimeoutSeconds) * time.Second,
		ConnectTimeout: time.Duration(cfg.Runware.ConnectTimeoutSeconds) * time.Second,
		Logger:         log.With().Str("component", "runware").Logger(),
	})
	a.dialogs = dialog.NewManager(dialog.Config{
		Settings:        a.settings,
		Presets:         a.presets,
		NewImageService: func(key string) dialog.ImageService { return client.WithAPIKey(key) },
		Saver:           a.images,
		Entities:        a.entities,
		Bus:             a.bus,
		Logger:          log.With().Str("component", "dialogs").Logger(),
	})
	return a, nil
}

// warnMissingAPIKey logs the start-up reminder shown when no key is set.
func (a *app) warnMissingAPIKey(ctx context.Context) {
	key, err := a.settings.APIKey(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("read api key")
		return
	}
	if key == "" {
		a.log.Warn().Msg(dialog.ModuleName + ": Please configure your Runware API key in module settings.")
	}
}

func (a *app) Close() {
	a.dialogs.CloseAll()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Debug().Err(err).Msg("close")
		}
	}
}

// setup loads configuration and wires the app for a command.
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, newLogger(cfg))
}
