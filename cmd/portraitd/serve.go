package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"portraitd/internal/entity"
	"portraitd/internal/events"
	"portraitd/internal/httpapi"
	"portraitd/internal/preset"
	"portraitd/internal/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.warnMissingAPIKey(ctx)
	httpapi.SetLogger(a.log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(a.cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(a.cfg.CORS.Enabled, a.cfg.CORS.Origins, a.cfg.CORS.Methods, a.cfg.CORS.Headers)

	hub := httpapi.NewHub(a.bus, preset.EventPresetsUpdated, entity.EventEntityUpdated, settings.EventSettingChanged)
	defer hub.Close()

	srv := &http.Server{
		Addr: a.cfg.Addr,
		Handler: httpapi.NewMux(httpapi.Deps{
			Settings: a.settings,
			Presets:  a.presets,
			Dialogs:  a.dialogs,
			Entities: a.entities,
			Images:   a.images,
			FilesDir: a.local.Base(),
			Hub:      hub,
			Bus:      a.bus,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.Addr).Str("data_dir", a.cfg.DataDir).Msg("portraitd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if w, ok := a.store.(settings.Watcher); ok {
		g.Go(func() error { return relayChanges(gctx, a, w) })
	}
	g.Go(func() error {
		<-gctx.Done()
		// Resolve parked prompts so streaming handlers can return.
		a.dialogs.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	return g.Wait()
}

// relayChanges turns settings writes made by other processes into local
// events: preset changes are reloaded and broadcast, other keys are
// announced as setting changes.
func relayChanges(ctx context.Context, a *app, w settings.Watcher) error {
	err := w.Watch(ctx, func(c settings.Change) {
		if c.Scope != a.settings.Scope() {
			return
		}
		if c.Key == settings.KeyGenerationPresets {
			if _, err := a.presets.Refresh(ctx); err != nil {
				a.log.Error().Err(err).Msg("refresh presets after remote change")
			}
			return
		}
		a.bus.Publish(events.Event{Name: settings.EventSettingChanged, Payload: c})
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
