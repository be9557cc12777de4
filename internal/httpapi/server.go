package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portraitd/internal/dialog"
	"portraitd/internal/entity"
	"portraitd/internal/events"
	"portraitd/internal/preset"
	"portraitd/internal/settings"
	"portraitd/internal/storage"
)

// UserHeader identifies the calling user.
const UserHeader = "X-User-ID"

// Deps are the services the HTTP API exposes.
type Deps struct {
	Settings *settings.Settings
	Presets  *preset.Store
	Dialogs  *dialog.Manager
	Entities *entity.Repository
	Images   *storage.ImageStore
	// FilesDir is served read-only under /files/.
	FilesDir string
	// Hub feeds GET /events. When nil one is created on Bus.
	Hub *Hub
	Bus events.Subscriber
	// Ready reports readiness for /readyz; nil means always ready.
	Ready func() bool
}

type server struct {
	Deps
}

func NewMux(d Deps) http.Handler {
	if d.Hub == nil {
		d.Hub = NewHub(d.Bus, preset.EventPresetsUpdated, entity.EventEntityUpdated)
	}
	s := &server{Deps: d}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)

	r.Get("/settings", s.getSettings)
	r.Put("/settings/{key}", s.putSetting)

	r.Get("/presets", s.listPresets)

	r.Post("/editors", s.openEditor)
	r.Route("/editors/{id}", func(r chi.Router) {
		r.Get("/", s.editorView)
		r.Delete("/", s.closeEditor)
		r.Post("/presets", s.addPreset)
		r.Delete("/presets/{pid}", s.removePreset)
		r.Post("/presets/{pid}/embeddings", s.addEmbedding)
		r.Delete("/presets/{pid}/embeddings/{index}", s.removeEmbedding)
		r.Post("/commit", s.commitEditor)
	})

	r.Route("/entities/{id}", func(r chi.Router) {
		r.Put("/", s.putEntity)
		r.Get("/actions", s.entityActions)
		r.Get("/images", s.entityImages)
		r.Post("/dialogs", s.openDialog)
	})

	r.Route("/dialogs/{id}", func(r chi.Router) {
		r.Get("/", s.dialogView)
		r.Delete("/", s.closeDialog)
		r.Post("/preset", s.applyPreset)
		r.Post("/generate", s.generate)
		r.Post("/choice", s.choose)
		r.Post("/confirm", s.confirm)
	})

	r.Get("/events", s.Hub.ServeHTTP)

	if s.FilesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(s.FilesDir))))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.Ready == nil || s.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

// decodeJSON enforces a JSON content type and the body size limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// requireGM rejects callers that are not game masters.
func (s *server) requireGM(w http.ResponseWriter, r *http.Request) bool {
	if !s.Entities.IsGM(userID(r)) {
		writeServiceError(w, dialog.ErrPermissionDenied)
		return false
	}
	return true
}
