package types

// Fixed output shape requested from the remote service.
const (
	OutputTypeBase64 = "base64Data"
	OutputFormatPNG  = "PNG"
)

// LoraRef references a LoRA in a generation request.
type LoraRef struct {
	Model  string  `json:"model"`
	Weight float64 `json:"weight"`
}

// GenerationRequest is the validated request sent to the remote image service.
// It is derived from form fields and never persisted.
type GenerationRequest struct {
	PositivePrompt string      `json:"positivePrompt"`
	NegativePrompt string      `json:"negativePrompt,omitempty"`
	Model          string      `json:"model"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	NumberResults  int         `json:"numberResults"`
	Lora           []LoraRef   `json:"lora,omitempty"`
	VAE            string      `json:"vae,omitempty"`
	Embeddings     []Embedding `json:"embeddings,omitempty"`
	Steps          *int        `json:"steps,omitempty"`
	CFGScale       *float64    `json:"CFGScale,omitempty"`
	Seed           *int64      `json:"seed,omitempty"`
	OutputType     string      `json:"outputType"`
	OutputFormat   string      `json:"outputFormat"`
}

// BackgroundRemovalRequest asks the remote service to strip an image background.
// InputImage is an image UUID, a data URI, or a URL.
type BackgroundRemovalRequest struct {
	InputImage   string `json:"inputImage"`
	OutputType   string `json:"outputType"`
	OutputFormat string `json:"outputFormat"`
}

// ImageResult is an opaque image record returned by the remote service.
type ImageResult struct {
	TaskUUID        string  `json:"taskUUID,omitempty"`
	ImageUUID       string  `json:"imageUUID,omitempty"`
	ImageURL        string  `json:"imageURL,omitempty"`
	ImageBase64Data string  `json:"imageBase64Data,omitempty"`
	ImageDataURI    string  `json:"imageDataURI,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
	NSFWContent     bool    `json:"NSFWContent,omitempty"`
	Cost            float64 `json:"cost,omitempty"`
}
