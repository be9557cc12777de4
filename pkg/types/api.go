package types

import "encoding/json"

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// FormFields are the raw values of the generation dialog form, as typed by the user.
// Numeric fields stay strings so parsing and defaulting happen in one place.
type FormFields struct {
	// Required prompt text.
	// example: a stern dwarven blacksmith, portrait, dramatic lighting
	Prompt string `json:"prompt" example:"a stern dwarven blacksmith, portrait, dramatic lighting"`
	// example: blurry, lowres
	NegativePrompt string `json:"negativePrompt,omitempty" example:"blurry, lowres"`
	// Required model identifier.
	// example: runware:101@1
	Model         string `json:"model" example:"runware:101@1"`
	Width         string `json:"width,omitempty" example:"512"`
	Height        string `json:"height,omitempty" example:"512"`
	NumberResults string `json:"numberResults,omitempty" example:"2"`
	LoraModel     string `json:"loraModel,omitempty"`
	LoraWeight    string `json:"loraWeight,omitempty" example:"0.8"`
	LoraTrigger   string `json:"loraTrigger,omitempty"`
	VAEModel      string `json:"vaeModel,omitempty"`
	// Free text, one "<model>" or "<model>:<weight>" per line or comma-separated segment.
	Embeddings string `json:"embeddings,omitempty" example:"civitai:7808@9208:0.7"`
	Steps      string `json:"steps,omitempty" example:"30"`
	CFGScale   string `json:"cfgScale,omitempty" example:"7.5"`
	Seed       string `json:"seed,omitempty"`
	// Strip the background of the selected portrait before saving.
	RemoveBackground bool   `json:"removeBackground,omitempty"`
	PresetID         string `json:"presetSelection,omitempty"`
}

// SettingView describes one registered setting and its current value.
type SettingView struct {
	Key     string          `json:"key" example:"numberResults"`
	Name    string          `json:"name" example:"Number of Results"`
	Hint    string          `json:"hint,omitempty"`
	Scope   string          `json:"scope" example:"world"`
	Type    string          `json:"type" example:"number"`
	Default json.RawMessage `json:"default,omitempty" swaggertype:"object"`
	Value   json.RawMessage `json:"value,omitempty" swaggertype:"object"`
	Range   *SettingRange   `json:"range,omitempty"`
}

// SettingRange bounds a numeric setting.
type SettingRange struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step"`
}

// SettingsResponse is returned by GET /settings. The API key is never echoed.
type SettingsResponse struct {
	Settings  []SettingView `json:"settings"`
	APIKeySet bool          `json:"apiKeySet"`
}

// SettingUpdate is the body of PUT /settings/{key}.
type SettingUpdate struct {
	Value json.RawMessage `json:"value" swaggertype:"object"`
}

// PresetsResponse wraps the canonical preset list.
type PresetsResponse struct {
	Presets []Preset `json:"presets"`
}

// PresetRow is one editable preset row as submitted by the editor form.
type PresetRow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Model       string         `json:"model"`
	LoraModel   string         `json:"loraModel,omitempty"`
	LoraWeight  string         `json:"loraWeight,omitempty"`
	LoraTrigger string         `json:"loraTrigger,omitempty"`
	VAE         string         `json:"vae,omitempty"`
	Embeddings  []EmbeddingRow `json:"embeddings,omitempty"`
}

// EmbeddingRow is one embedding line inside a PresetRow.
type EmbeddingRow struct {
	Model  string `json:"model"`
	Weight string `json:"weight,omitempty"`
}

// CommitRequest is the body of POST /editors/{id}/commit.
type CommitRequest struct {
	Rows []PresetRow `json:"rows"`
}

// EditorView is the render model of the preset editor.
type EditorView struct {
	ID      string   `json:"id"`
	State   string   `json:"state" example:"editing"`
	Presets []Preset `json:"presets"`
	Error   string   `json:"error,omitempty"`
}

// ModelSuggestion is a quick-pick model shown by the dialog.
type ModelSuggestion struct {
	Value string `json:"value" example:"runware:101@1"`
	Label string `json:"label" example:"Stable Diffusion XL"`
}

// DialogView is the render model of a generation dialog.
type DialogView struct {
	ID               string            `json:"id"`
	EntityID         string            `json:"entityId"`
	EntityName       string            `json:"entityName"`
	DefaultModel     string            `json:"defaultModel"`
	ImageWidth       int               `json:"imageWidth"`
	ImageHeight      int               `json:"imageHeight"`
	NumberResults    int               `json:"numberResults"`
	IsGenerating     bool              `json:"isGenerating"`
	Presets          []Preset          `json:"presets"`
	CanManagePresets bool              `json:"canManagePresets"`
	AppliedPresetID  string            `json:"appliedPresetId,omitempty"`
	ModelSuggestions []ModelSuggestion `json:"modelSuggestions"`
}

// ApplyPresetRequest is the body of POST /dialogs/{id}/preset.
type ApplyPresetRequest struct {
	PresetID string `json:"preset_id"`
	// Current form values; preset fields are written over them.
	Fields FormFields `json:"fields"`
}

// ChoiceRequest answers a pending multi-image choice. A negative index cancels.
type ChoiceRequest struct {
	Index int `json:"index"`
}

// ConfirmRequest answers a pending yes/no prompt.
type ConfirmRequest struct {
	Yes bool `json:"yes"`
}

// HeaderAction is an action offered on an entity sheet header.
type HeaderAction struct {
	Label  string `json:"label" example:"Generate Image"`
	Icon   string `json:"icon" example:"fas fa-palette"`
	Action string `json:"action" example:"generate-image"`
}

// EntityUpsert is the body of PUT /entities/{id}.
type EntityUpsert struct {
	Name      string         `json:"name"`
	Img       string         `json:"img,omitempty"`
	TokenImg  string         `json:"token_img,omitempty"`
	Ownership map[string]int `json:"ownership,omitempty"`
}

// ImagesResponse lists saved portrait paths for an entity.
type ImagesResponse struct {
	Images []string `json:"images"`
}

// Outcome summarizes a finished generation pipeline.
type Outcome struct {
	PortraitPath      string `json:"portraitPath,omitempty"`
	TokenPath         string `json:"tokenPath,omitempty"`
	PortraitApplied   bool   `json:"portraitApplied"`
	TokenApplied      bool   `json:"tokenApplied"`
	BackgroundRemoved bool   `json:"backgroundRemoved"`
	Cancelled         bool   `json:"cancelled,omitempty"`
}

// Stream event types written by POST /dialogs/{id}/generate.
const (
	StreamNotice  = "notice"
	StreamChoose  = "choose"
	StreamConfirm = "confirm"
	StreamDone    = "done"
	StreamError   = "error"
)

// StreamEvent is one NDJSON line of the generation stream.
type StreamEvent struct {
	Type       string        `json:"type"`
	Level      string        `json:"level,omitempty"`
	Message    string        `json:"message,omitempty"`
	Title      string        `json:"title,omitempty"`
	Image      string        `json:"image,omitempty"`
	DefaultYes bool          `json:"defaultYes,omitempty"`
	Candidates []ImageResult `json:"candidates,omitempty"`
	Outcome    *Outcome      `json:"outcome,omitempty"`
	Code       int           `json:"code,omitempty"`
}

// EventMessage is pushed to websocket subscribers of GET /events.
type EventMessage struct {
	Type string `json:"type" example:"presetsUpdated"`
	Data any    `json:"data"`
	Time int64  `json:"time"`
}

// ApplyPresetResponse is returned by POST /dialogs/{id}/preset.
type ApplyPresetResponse struct {
	Fields FormFields `json:"fields"`
	// User notification, empty when no preset matched.
	Notice string `json:"notice,omitempty" example:"Runware AI Image Generator: Applied preset \"Elven Ranger\"."`
}
