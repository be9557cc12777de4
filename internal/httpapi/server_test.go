package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"portraitd/internal/dialog"
	"portraitd/internal/entity"
	"portraitd/internal/events"
	"portraitd/internal/preset"
	"portraitd/internal/settings"
	"portraitd/internal/storage"
	"portraitd/pkg/types"
)

type fakeImages struct {
	mu      sync.Mutex
	results []types.ImageResult
	err     error
	calls   int
}

func (f *fakeImages) RequestImages(ctx context.Context, req types.GenerationRequest) ([]types.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, f.err
}

func (f *fakeImages) RemoveBackground(ctx context.Context, req types.BackgroundRemovalRequest) (types.ImageResult, error) {
	return types.ImageResult{ImageBase64Data: png("nobg")}, nil
}

func (f *fakeImages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	handler  http.Handler
	bus      *events.Bus
	settings *settings.Settings
	presets  *preset.Store
	entities *entity.Repository
	dialogs  *dialog.Manager
	images   *fakeImages
	files    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	bus := events.NewBus()
	s := settings.New(settings.NewMemoryStore(), "mod", bus)
	if err := s.Set(ctx, settings.KeyAPIKey, "secret"); err != nil {
		t.Fatal(err)
	}
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ents := entity.NewRepository(entity.Options{
		Store:     settings.NewMemoryStore(),
		ModuleID:  "mod",
		IsGM:      func(u string) bool { return u == "gm" },
		Publisher: bus,
		Logger:    zerolog.Nop(),
	})
	if err := ents.Put(ctx, types.Entity{ID: "Actor.1", Name: "Aria", Ownership: map[string]int{"alice": entity.LevelOwner}}); err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		bus:      bus,
		settings: s,
		presets:  preset.NewStore(s, bus, zerolog.Nop()),
		entities: ents,
		images:   &fakeImages{},
		files:    local.Base(),
	}
	imgs := storage.NewImageStore(local, "mod", zerolog.Nop())
	env.dialogs = dialog.NewManager(dialog.Config{
		Settings:        s,
		Presets:         env.presets,
		NewImageService: func(string) dialog.ImageService { return env.images },
		Saver:           imgs,
		Entities:        ents,
		Bus:             bus,
		Logger:          zerolog.Nop(),
	})
	env.handler = NewMux(Deps{
		Settings: s,
		Presets:  env.presets,
		Dialogs:  env.dialogs,
		Entities: ents,
		Images:   imgs,
		FilesDir: local.Base(),
		Bus:      bus,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/readyz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rr.Code)
	}
	h := NewMux(Deps{Ready: func() bool { return false }})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestSettings_ListRedactsAPIKey(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/settings", "alice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("api key leaked: %s", rr.Body.String())
	}
	resp := decode[types.SettingsResponse](t, rr)
	if !resp.APIKeySet {
		t.Fatalf("apiKeySet=false")
	}
	for _, v := range resp.Settings {
		if v.Key == settings.KeyGenerationPresets {
			t.Fatalf("hidden setting listed")
		}
	}
}

func TestSettings_Update(t *testing.T) {
	env := newTestEnv(t)
	body := types.SettingUpdate{Value: json.RawMessage(`3`)}
	if rr := env.do(t, http.MethodPut, "/settings/numberResults", "alice", body); rr.Code != http.StatusForbidden {
		t.Fatalf("non-gm: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/settings/numberResults", "gm", body); rr.Code != http.StatusNoContent {
		t.Fatalf("gm: %d %s", rr.Code, rr.Body.String())
	}
	if n, _ := env.settings.NumberResults(context.Background()); n != 3 {
		t.Fatalf("numberResults=%d", n)
	}
	if rr := env.do(t, http.MethodPut, "/settings/numberResults", "gm", types.SettingUpdate{Value: json.RawMessage(`9`)}); rr.Code != http.StatusBadRequest {
		t.Fatalf("out of range: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/settings/generationPresets", "gm", types.SettingUpdate{Value: json.RawMessage(`[]`)}); rr.Code != http.StatusForbidden {
		t.Fatalf("not configurable: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/settings/nope", "gm", body); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown: %d", rr.Code)
	}
}

func TestDecodeJSON_RequiresContentType(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPut, "/settings/numberResults", strings.NewReader(`{"value":2}`))
	req.Header.Set(UserHeader, "gm")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", rr.Code)
	}
	e := decode[types.ErrorResponse](t, rr)
	if e.Code != http.StatusUnsupportedMediaType || e.Error == "" {
		t.Fatalf("error body: %+v", e)
	}
}

func TestEditor_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodPost, "/editors", "alice", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("non-gm open: %d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/editors", "gm", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open: %d %s", rr.Code, rr.Body.String())
	}
	view := decode[types.EditorView](t, rr)
	base := "/editors/" + view.ID

	rr = env.do(t, http.MethodPost, base+"/presets", "gm", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add: %d", rr.Code)
	}
	view = decode[types.EditorView](t, rr)
	if len(view.Presets) != 1 || view.Presets[0].Name != "New Preset" || view.State != string(preset.StateEditing) {
		t.Fatalf("after add: %+v", view)
	}
	pid := view.Presets[0].ID
	rr = env.do(t, http.MethodPost, base+"/presets/"+pid+"/embeddings", "gm", nil)
	if got := decode[types.EditorView](t, rr); len(got.Presets[0].Embeddings) != 1 {
		t.Fatalf("embedding not added: %+v", got)
	}
	if rr := env.do(t, http.MethodDelete, base+"/presets/"+pid+"/embeddings/x", "gm", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad index: %d", rr.Code)
	}

	rows := types.CommitRequest{Rows: []types.PresetRow{{ID: pid, Name: "Ranger"}}}
	rr = env.do(t, http.MethodPost, base+"/commit", "gm", rows)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), `must specify a model.`) {
		t.Fatalf("invalid commit: %d %s", rr.Code, rr.Body.String())
	}
	rows.Rows[0].Model = "runware:101@1"
	rr = env.do(t, http.MethodPost, base+"/commit", "gm", rows)
	if rr.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[types.PresetsResponse](t, rr); len(got.Presets) != 1 || got.Presets[0].Model != "runware:101@1" {
		t.Fatalf("committed: %+v", got)
	}
	if rr := env.do(t, http.MethodGet, base, "gm", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("editor still open: %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/presets", "alice", nil)
	if got := decode[types.PresetsResponse](t, rr); len(got.Presets) != 1 || got.Presets[0].Name != "Ranger" {
		t.Fatalf("presets: %+v", got)
	}
}

func TestEntities_ActionsAndImages(t *testing.T) {
	env := newTestEnv(t)
	up := types.EntityUpsert{Name: "Borin", Ownership: map[string]int{"bob": entity.LevelObserver}}
	if rr := env.do(t, http.MethodPut, "/entities/Actor.2", "bob", up); rr.Code != http.StatusForbidden {
		t.Fatalf("non-gm put: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/entities/Actor.2", "gm", up); rr.Code != http.StatusNoContent {
		t.Fatalf("put: %d %s", rr.Code, rr.Body.String())
	}
	rr := env.do(t, http.MethodGet, "/entities/Actor.2/actions", "bob", nil)
	if got := decode[[]types.HeaderAction](t, rr); len(got) != 0 {
		t.Fatalf("observer got actions: %+v", got)
	}
	rr = env.do(t, http.MethodGet, "/entities/Actor.1/actions", "alice", nil)
	if got := decode[[]types.HeaderAction](t, rr); len(got) != 1 || got[0].Label != "Generate Image" {
		t.Fatalf("owner actions: %+v", got)
	}
	if rr := env.do(t, http.MethodGet, "/entities/Actor.404/actions", "alice", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing entity: %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/entities/Actor.1/images", "alice", nil)
	if got := decode[types.ImagesResponse](t, rr); got.Images == nil || len(got.Images) != 0 {
		t.Fatalf("images: %+v", got)
	}
}

func TestDialog_OpenAndApplyPreset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _ = env.presets.SaveAll(ctx, []types.Preset{{ID: "p1", Name: "Elf", Model: "civitai:1@2", VAE: "vae:1"}})

	if rr := env.do(t, http.MethodPost, "/entities/Actor.1/dialogs", "bob", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("non-owner: %d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/entities/Actor.1/dialogs", "alice", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open: %d %s", rr.Code, rr.Body.String())
	}
	view := decode[types.DialogView](t, rr)
	if view.EntityName != "Aria" || len(view.Presets) != 1 || view.CanManagePresets {
		t.Fatalf("view: %+v", view)
	}
	base := "/dialogs/" + view.ID
	if rr := env.do(t, http.MethodGet, base, "bob", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign dialog: %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, base+"/preset", "alice", types.ApplyPresetRequest{PresetID: "p1", Fields: types.FormFields{Prompt: "keep"}})
	got := decode[types.ApplyPresetResponse](t, rr)
	if got.Fields.Model != "civitai:1@2" || got.Fields.VAEModel != "vae:1" || got.Fields.Prompt != "keep" {
		t.Fatalf("fields: %+v", got.Fields)
	}
	if got.Notice != `Runware AI Image Generator: Applied preset "Elf".` {
		t.Fatalf("notice=%q", got.Notice)
	}

	if rr := env.do(t, http.MethodPost, base+"/choice", "alice", types.ChoiceRequest{Index: 0}); rr.Code != http.StatusConflict {
		t.Fatalf("choice without prompt: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, base, "alice", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("close: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, base, "alice", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("closed dialog: %d", rr.Code)
	}
}

func TestDialog_OpenWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t)
	_ = env.settings.Set(context.Background(), settings.KeyAPIKey, "")
	if rr := env.do(t, http.MethodPost, "/entities/Actor.1/dialogs", "alice", nil); rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("status=%d", rr.Code)
	}
}

// streamClient drives a generation stream against a live server.
type streamClient struct {
	t    *testing.T
	srv  *httptest.Server
	base string
}

func (c *streamClient) post(path string, body any) int {
	c.t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+c.base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserHeader, "alice")
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("post %s: %v", path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

// run starts a generation and calls answer for every event until done or error.
func (c *streamClient) run(f types.FormFields, answer func(types.StreamEvent)) []types.StreamEvent {
	c.t.Helper()
	b, _ := json.Marshal(f)
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+c.base+"/generate", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserHeader, "alice")
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("generate: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		c.t.Fatalf("content-type=%q", ct)
	}
	var out []types.StreamEvent
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var ev types.StreamEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			c.t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, ev)
		if answer != nil {
			answer(ev)
		}
	}
	return out
}

func openStream(t *testing.T, env *testEnv) *streamClient {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/entities/Actor.1/dialogs", "alice", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open: %d", rr.Code)
	}
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)
	return &streamClient{t: t, srv: srv, base: "/dialogs/" + decode[types.DialogView](t, rr).ID}
}

func lastEvent(t *testing.T, evs []types.StreamEvent) types.StreamEvent {
	t.Helper()
	if len(evs) == 0 {
		t.Fatalf("empty stream")
	}
	return evs[len(evs)-1]
}

func png(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestGenerate_StreamConfirmsAndApplies(t *testing.T) {
	env := newTestEnv(t)
	env.images.results = []types.ImageResult{{ImageUUID: "u1", ImageBase64Data: png("one")}}
	c := openStream(t, env)

	var confirmed bool
	evs := c.run(types.FormFields{Prompt: "a ranger", Model: "runware:101@1"}, func(ev types.StreamEvent) {
		if ev.Type == types.StreamConfirm {
			if ev.Title != dialog.ConfirmTitle || !ev.DefaultYes || ev.Image == "" {
				t.Errorf("confirm event: %+v", ev)
			}
			confirmed = true
			if code := c.post("/confirm", types.ConfirmRequest{Yes: true}); code != http.StatusNoContent {
				t.Errorf("confirm: %d", code)
			}
		}
	})
	if !confirmed {
		t.Fatalf("no confirm event in %+v", evs)
	}
	done := lastEvent(t, evs)
	if done.Type != types.StreamDone || done.Outcome == nil || !done.Outcome.PortraitApplied {
		t.Fatalf("done: %+v", done)
	}
	var sawSaving bool
	for _, ev := range evs {
		if ev.Type == types.StreamNotice && strings.Contains(ev.Message, "Generating image...") {
			sawSaving = true
		}
	}
	if !sawSaving {
		t.Fatalf("missing progress notice: %+v", evs)
	}
	e, _ := env.entities.Get(context.Background(), "Actor.1")
	if e.Img != done.Outcome.PortraitPath {
		t.Fatalf("img=%q want %q", e.Img, done.Outcome.PortraitPath)
	}
	// Saved files are served back.
	resp, err := c.srv.Client().Get(c.srv.URL + "/files/" + done.Outcome.PortraitPath)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "one" {
		t.Fatalf("file: %d %q", resp.StatusCode, data)
	}
	// Success closes the dialog.
	if code := c.post("/confirm", types.ConfirmRequest{Yes: true}); code != http.StatusNotFound {
		t.Fatalf("dialog still open: %d", code)
	}
}

func TestGenerate_CancelledChoiceEndsStream(t *testing.T) {
	env := newTestEnv(t)
	env.images.results = []types.ImageResult{{ImageBase64Data: png("a")}, {ImageBase64Data: png("b")}}
	c := openStream(t, env)

	evs := c.run(types.FormFields{Prompt: "p", Model: "m"}, func(ev types.StreamEvent) {
		if ev.Type == types.StreamChoose {
			if len(ev.Candidates) != 2 {
				t.Errorf("candidates=%d", len(ev.Candidates))
			}
			if code := c.post("/choice", types.ChoiceRequest{Index: 5}); code != http.StatusBadRequest {
				t.Errorf("out of range choice: %d", code)
			}
			c.post("/choice", types.ChoiceRequest{Index: -1})
		}
	})
	done := lastEvent(t, evs)
	if done.Type != types.StreamDone || done.Outcome == nil || !done.Outcome.Cancelled {
		t.Fatalf("done: %+v", done)
	}
}

func TestGenerate_ValidationAndRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	c := openStream(t, env)

	evs := c.run(types.FormFields{Model: "m"}, nil)
	last := lastEvent(t, evs)
	if last.Type != types.StreamError || last.Code != http.StatusBadRequest || last.Message != "Please enter a prompt" {
		t.Fatalf("validation: %+v", last)
	}

	env.images.results = nil
	evs = c.run(types.FormFields{Prompt: "p", Model: "m"}, nil)
	last = lastEvent(t, evs)
	if last.Type != types.StreamError || last.Code != http.StatusBadGateway {
		t.Fatalf("no images: %+v", last)
	}
	if n := env.images.callCount(); n != 1 {
		t.Fatalf("remote calls=%d", n)
	}
}

func TestRequestPath_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	body := types.SettingUpdate{Value: json.RawMessage(`"` + strings.Repeat("x", 64) + `"`)}
	if rr := env.do(t, http.MethodPut, "/settings/defaultModel", "gm", body); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}
