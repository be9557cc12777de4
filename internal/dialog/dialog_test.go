package dialog

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"portraitd/internal/entity"
	"portraitd/internal/events"
	"portraitd/internal/imagegen"
	"portraitd/internal/preset"
	"portraitd/internal/settings"
	"portraitd/internal/storage"
	"portraitd/pkg/types"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

type fakeImages struct {
	mu       sync.Mutex
	results  []types.ImageResult
	err      error
	bg       types.ImageResult
	bgErr    error
	calls    int
	bgInputs []string
	entered  chan struct{}
	release  chan struct{}
}

func (f *fakeImages) RequestImages(ctx context.Context, req types.GenerationRequest) ([]types.ImageResult, error) {
	f.mu.Lock()
	f.calls++
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	return f.results, f.err
}

func (f *fakeImages) RemoveBackground(ctx context.Context, req types.BackgroundRemovalRequest) (types.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bgInputs = append(f.bgInputs, req.InputImage)
	return f.bg, f.bgErr
}

type fakeUI struct {
	mu       sync.Mutex
	notices  []string
	choice   int
	chooseOK bool
	chosen   int
	confirm  bool
	asked    []string
}

func (u *fakeUI) Notify(level Level, msg string) {
	u.mu.Lock()
	u.notices = append(u.notices, string(level)+"|"+msg)
	u.mu.Unlock()
}

func (u *fakeUI) Choose(ctx context.Context, c []types.ImageResult) (int, bool, error) {
	u.chosen = len(c)
	return u.choice, u.chooseOK, nil
}

func (u *fakeUI) Confirm(ctx context.Context, title, msg, image string, defaultYes bool) (bool, error) {
	u.asked = append(u.asked, title+"|"+image)
	return u.confirm, nil
}

func (u *fakeUI) has(sub string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, n := range u.notices {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}

type failingTokenSaver struct {
	*storage.ImageStore
}

func (failingTokenSaver) SaveToken(ctx context.Context, entityName, b64 string) (string, error) {
	return "", errors.New("quota exceeded")
}

type harness struct {
	mgr      *Manager
	images   *fakeImages
	local    *storage.LocalStorage
	store    *storage.ImageStore
	entities *entity.Repository
	presets  *preset.Store
	settings *settings.Settings
	bus      *events.Bus
	cfg      Config
}

func newHarness(t *testing.T) *harness {
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
		Store:    settings.NewMemoryStore(),
		ModuleID: "mod",
		IsGM:     func(u string) bool { return u == "gm" },
		Logger:   zerolog.Nop(),
	})
	if err := ents.Put(ctx, types.Entity{ID: "Actor.1", Name: "Aria Swiftwind", Ownership: map[string]int{"alice": entity.LevelOwner}}); err != nil {
		t.Fatal(err)
	}
	h := &harness{
		images:   &fakeImages{},
		local:    local,
		store:    storage.NewImageStore(local, "mod", zerolog.Nop()),
		entities: ents,
		presets:  preset.NewStore(s, bus, zerolog.Nop()),
		settings: s,
		bus:      bus,
	}
	h.cfg = Config{
		Settings:        s,
		Presets:         h.presets,
		NewImageService: func(string) ImageService { return h.images },
		Saver:           h.store,
		Entities:        ents,
		Bus:             bus,
		Logger:          zerolog.Nop(),
	}
	h.mgr = NewManager(h.cfg)
	return h
}

func (h *harness) open(t *testing.T) *Dialog {
	t.Helper()
	d, err := h.mgr.Open(context.Background(), "Actor.1", "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return d
}

func validFields() types.FormFields {
	return types.FormFields{Prompt: "a ranger", Model: "runware:101@1"}
}

func TestOpen_RequiresAPIKeyAndOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.mgr.Open(ctx, "Actor.1", "bob"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err=%v", err)
	}
	if _, err := h.mgr.Open(ctx, "Actor.404", "alice"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := h.mgr.Open(ctx, "Actor.1", "gm"); err != nil {
		t.Fatalf("gm open: %v", err)
	}
	_ = h.settings.Set(ctx, settings.KeyAPIKey, "")
	if _, err := h.mgr.Open(ctx, "Actor.1", "alice"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v", err)
	}
}

func TestPrepare_RenderModel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.settings.Set(ctx, settings.KeyNumberResults, 3)
	_, _ = h.presets.SaveAll(ctx, []types.Preset{
		{ID: "b", Name: "beta", Model: "m"},
		{ID: "x", Name: "", Model: "m"},
		{ID: "a", Name: "Alpha", Model: "m"},
	})
	d := h.open(t)
	v, err := d.Prepare(ctx)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if v.EntityName != "Aria Swiftwind" || v.DefaultModel != "runware:100@1" || v.ImageWidth != 512 || v.NumberResults != 3 {
		t.Fatalf("view=%+v", v)
	}
	if len(v.Presets) != 2 || v.Presets[0].ID != "a" || v.Presets[1].ID != "b" {
		t.Fatalf("presets=%+v", v.Presets)
	}
	if v.CanManagePresets || v.IsGenerating || len(v.ModelSuggestions) != 4 {
		t.Fatalf("view=%+v", v)
	}
}

func TestGenerate_SingleResultSavesAndApplies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.images.results = []types.ImageResult{{ImageUUID: "u1", ImageBase64Data: b64("portrait")}}
	h.images.bg = types.ImageResult{ImageUUID: "nobg", ImageBase64Data: b64("token")}
	d := h.open(t)
	ui := &fakeUI{confirm: true}

	out, err := d.Generate(ctx, validFields(), ui)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wantPortrait := "modules/mod/images/aria_swiftwind/image_1.png"
	wantToken := "modules/mod/images/aria_swiftwind/tokens/image_1.png"
	if out.PortraitPath != wantPortrait || out.TokenPath != wantToken || !out.PortraitApplied || !out.TokenApplied || out.BackgroundRemoved {
		t.Fatalf("outcome=%+v", out)
	}
	if ui.chosen != 0 {
		t.Fatalf("single result should not prompt for a pick")
	}
	if len(h.images.bgInputs) != 1 || h.images.bgInputs[0] != "u1" {
		t.Fatalf("token background removal input=%v", h.images.bgInputs)
	}
	e, _ := h.entities.Get(ctx, "Actor.1")
	if e.Img != wantPortrait || e.TokenImg != wantToken {
		t.Fatalf("entity=%+v", e)
	}
	if !ui.has("info|Runware AI Image Generator: Image saved successfully at " + wantPortrait) {
		t.Fatalf("notices=%v", ui.notices)
	}
	if !d.Closed() || h.mgr.OpenDialogs() != 0 || h.bus.Count(preset.EventPresetsUpdated) != 0 {
		t.Fatalf("dialog should close on success")
	}
	if d.IsGenerating() {
		t.Fatalf("in-flight flag not cleared")
	}
}

func TestGenerate_ZeroResultsSavesNothing(t *testing.T) {
	h := newHarness(t)
	d := h.open(t)
	ui := &fakeUI{confirm: true}
	_, err := d.Generate(context.Background(), validFields(), ui)
	if !errors.Is(err, ErrNoImages) || !IsGenerationFailure(err) {
		t.Fatalf("err=%v", err)
	}
	if files := h.store.ListImages(context.Background(), "Aria Swiftwind"); len(files) != 0 {
		t.Fatalf("saved files: %v", files)
	}
	if !ui.has("Image generation failed - no images were generated") {
		t.Fatalf("notices=%v", ui.notices)
	}
	if d.Closed() || d.IsGenerating() {
		t.Fatalf("dialog should stay open and idle")
	}
}

func TestGenerate_RemoteFailure(t *testing.T) {
	h := newHarness(t)
	h.images.err = errors.New("invalid model")
	d := h.open(t)
	_, err := d.Generate(context.Background(), validFields(), &fakeUI{})
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.StatusCode() != 502 {
		t.Fatalf("err=%v", err)
	}
	if d.IsGenerating() {
		t.Fatalf("in-flight flag not cleared")
	}
}

func TestGenerate_RejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	h.images.results = []types.ImageResult{{ImageBase64Data: b64("p")}}
	h.images.entered = make(chan struct{})
	h.images.release = make(chan struct{})
	d := h.open(t)

	done := make(chan error, 1)
	go func() {
		_, err := d.Generate(context.Background(), validFields(), &fakeUI{confirm: true})
		done <- err
	}()
	select {
	case <-h.images.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never reached the remote call")
	}
	if !d.IsGenerating() {
		t.Fatalf("flag not set during run")
	}
	ui := &fakeUI{}
	if _, err := d.Generate(context.Background(), validFields(), ui); !IsBusy(err) {
		t.Fatalf("second run err=%v", err)
	}
	if !ui.has("warn|Runware AI Image Generator: Generation already in progress") {
		t.Fatalf("notices=%v", ui.notices)
	}
	close(h.images.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if h.images.calls != 1 {
		t.Fatalf("remote calls=%d", h.images.calls)
	}
}

func TestGenerate_ValidationStopsBeforeRequest(t *testing.T) {
	h := newHarness(t)
	d := h.open(t)
	ui := &fakeUI{}
	_, err := d.Generate(context.Background(), types.FormFields{Prompt: " ", Model: "m"}, ui)
	if !imagegen.IsValidation(err) || h.images.calls != 0 {
		t.Fatalf("err=%v calls=%d", err, h.images.calls)
	}
	if !ui.has("error|Runware AI Image Generator: Please enter a prompt") {
		t.Fatalf("notices=%v", ui.notices)
	}
}

func TestGenerate_MultipleResultsCancel(t *testing.T) {
	h := newHarness(t)
	h.images.results = []types.ImageResult{{ImageBase64Data: b64("a")}, {ImageBase64Data: b64("b")}}
	d := h.open(t)
	ui := &fakeUI{chooseOK: false, choice: -1}
	out, err := d.Generate(context.Background(), validFields(), ui)
	if !IsCancelled(err) || !out.Cancelled || ui.chosen != 2 {
		t.Fatalf("out=%+v err=%v chosen=%d", out, err, ui.chosen)
	}
	if files := h.store.ListImages(context.Background(), "Aria Swiftwind"); len(files) != 0 {
		t.Fatalf("saved after cancel: %v", files)
	}
}

func TestGenerate_MultipleResultsPick(t *testing.T) {
	h := newHarness(t)
	h.images.results = []types.ImageResult{{ImageBase64Data: b64("a")}, {ImageBase64Data: b64("b")}}
	h.images.bgErr = errors.New("bg down")
	d := h.open(t)
	ui := &fakeUI{chooseOK: true, choice: 1, confirm: false}
	out, err := d.Generate(context.Background(), validFields(), ui)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	files, _ := h.local.Browse(context.Background(), storage.RootData, "modules/mod/images/aria_swiftwind")
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	if got, _ := os.ReadFile(filepath.Join(h.local.Base(), filepath.FromSlash(files[0]))); string(got) != "b" {
		t.Fatalf("saved the wrong candidate: %q", got)
	}
	if out.PortraitApplied || !out.TokenApplied {
		t.Fatalf("confirm=no should only apply the token: %+v", out)
	}
	e, _ := h.entities.Get(context.Background(), "Actor.1")
	if e.Img != "" || e.TokenImg != out.TokenPath {
		t.Fatalf("entity=%+v", e)
	}
	// Token fell back to the picked image after removal failed.
	if len(h.images.bgInputs) != 1 || h.images.bgInputs[0] != "data:image/png;base64,"+b64("b") {
		t.Fatalf("bg inputs=%v", h.images.bgInputs)
	}
}

func TestGenerate_BackgroundRemovalReusedForToken(t *testing.T) {
	h := newHarness(t)
	h.images.results = []types.ImageResult{{ImageUUID: "u1", ImageBase64Data: b64("orig")}}
	h.images.bg = types.ImageResult{ImageUUID: "nobg", ImageBase64Data: b64("clean")}
	d := h.open(t)
	f := validFields()
	f.RemoveBackground = true
	out, err := d.Generate(context.Background(), f, &fakeUI{confirm: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !out.BackgroundRemoved || len(h.images.bgInputs) != 1 {
		t.Fatalf("out=%+v bg calls=%d", out, len(h.images.bgInputs))
	}
}

func TestGenerate_BackgroundRemovalFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.images.results = []types.ImageResult{{ImageBase64Data: b64("orig")}}
	h.images.bgErr = errors.New("bg down")
	d := h.open(t)
	f := validFields()
	f.RemoveBackground = true
	ui := &fakeUI{confirm: true}
	out, err := d.Generate(context.Background(), f, ui)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.BackgroundRemoved || out.PortraitPath == "" || out.TokenPath == "" {
		t.Fatalf("out=%+v", out)
	}
	if !ui.has("warn|Runware AI Image Generator: Background removal failed - bg down") {
		t.Fatalf("notices=%v", ui.notices)
	}
}

func TestGenerate_TokenSaveFailureKeepsPortrait(t *testing.T) {
	h := newHarness(t)
	h.cfg.Saver = failingTokenSaver{ImageStore: h.store}
	h.mgr = NewManager(h.cfg)
	h.images.results = []types.ImageResult{{ImageBase64Data: b64("orig")}}
	h.images.bgErr = errors.New("bg down")
	d := h.open(t)
	ui := &fakeUI{confirm: true}
	out, err := d.Generate(context.Background(), validFields(), ui)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.PortraitPath == "" || out.TokenPath != "" || !out.PortraitApplied || out.TokenApplied {
		t.Fatalf("out=%+v", out)
	}
	if len(h.store.ListImages(context.Background(), "Aria Swiftwind")) != 1 {
		t.Fatalf("portrait was rolled back")
	}
	if !ui.has("Failed to save token image - quota exceeded") {
		t.Fatalf("notices=%v", ui.notices)
	}
}

func TestDialog_LiveUpdatesAndApplyPreset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.presets.SaveAll(ctx, []types.Preset{{ID: "p1", Name: "Ranger", Model: "m1", Lora: &types.Lora{Model: "L", Weight: 0.5, Trigger: "elf"}}})
	d := h.open(t)
	ui := &fakeUI{}
	f, err := d.ApplyPreset("p1", validFields(), ui)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.Model != "m1" || f.LoraModel != "L" || f.LoraWeight != "0.5" || f.PresetID != "p1" || f.Prompt != "a ranger" {
		t.Fatalf("fields=%+v", f)
	}
	if !ui.has(`info|Runware AI Image Generator: Applied preset "Ranger".`) || d.AppliedPresetID() != "p1" {
		t.Fatalf("notices=%v applied=%q", ui.notices, d.AppliedPresetID())
	}

	_, _ = h.presets.SaveAll(ctx, []types.Preset{{ID: "p2", Name: "Knight", Model: "m2"}})
	if ps := d.Presets(); len(ps) != 1 || ps[0].ID != "p2" {
		t.Fatalf("presets not refreshed: %+v", ps)
	}
	if d.AppliedPresetID() != "" {
		t.Fatalf("applied preset should be cleared once removed")
	}

	f, _ = d.ApplyPreset("nope", f, ui)
	if f.PresetID != "" || f.Model != "m1" {
		t.Fatalf("unknown preset changed fields: %+v", f)
	}

	d.Close()
	d.Close()
	if h.bus.Count(preset.EventPresetsUpdated) != 0 {
		t.Fatalf("dialog still subscribed after close")
	}
	_, _ = h.presets.SaveAll(ctx, []types.Preset{})
	if ps := d.Presets(); len(ps) != 1 {
		t.Fatalf("closed dialog received update")
	}
	if _, err := d.ApplyPreset("p2", f, ui); !errors.Is(err, ErrDialogClosed) {
		t.Fatalf("err=%v", err)
	}
	if _, err := h.mgr.Dialog(d.ID()); !errors.Is(err, ErrDialogNotFound) {
		t.Fatalf("closed dialog still registered")
	}
}

func TestManager_EditorIsGMOnly(t *testing.T) {
	h := newHarness(t)
	if _, err := h.mgr.OpenEditor("alice"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err=%v", err)
	}
	ed, err := h.mgr.OpenEditor("gm")
	if err != nil {
		t.Fatalf("open editor: %v", err)
	}
	if got, err := h.mgr.Editor(ed.ID()); err != nil || got != ed {
		t.Fatalf("editor lookup: %v", err)
	}
	ed.Close()
	if _, err := h.mgr.Editor(ed.ID()); !errors.Is(err, ErrEditorNotFound) {
		t.Fatalf("closed editor still registered")
	}
}

func TestManager_CloseAll(t *testing.T) {
	h := newHarness(t)
	d := h.open(t)
	_, _ = h.mgr.OpenEditor("gm")
	h.mgr.CloseAll()
	if !d.Closed() || h.mgr.OpenDialogs() != 0 {
		t.Fatalf("dialogs left open")
	}
}

func TestBackgroundInputPriority(t *testing.T) {
	cases := []struct {
		img  types.ImageResult
		want string
	}{
		{types.ImageResult{ImageUUID: "u", ImageDataURI: "data:x", ImageBase64Data: "AAA"}, "u"},
		{types.ImageResult{ImageDataURI: "data:x", ImageBase64Data: "AAA"}, "data:x"},
		{types.ImageResult{ImageBase64Data: "AAA"}, "data:image/png;base64,AAA"},
		{types.ImageResult{}, ""},
	}
	for _, c := range cases {
		if got := backgroundInput(c.img); got != c.want {
			t.Fatalf("backgroundInput(%+v)=%q want %q", c.img, got, c.want)
		}
	}
}
