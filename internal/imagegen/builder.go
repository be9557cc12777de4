package imagegen

import (
	"strconv"
	"strings"

	"portraitd/internal/preset"
	"portraitd/pkg/types"
)

// Fallbacks for absent or non-numeric size fields.
const (
	DefaultWidth         = 512
	DefaultHeight        = 512
	DefaultNumberResults = 1
)

// Build derives the remote request from validated form fields. The result
// count is not clamped here; range limits belong to the settings schema.
func Build(f types.FormFields) types.GenerationRequest {
	loraModel := strings.TrimSpace(f.LoraModel)
	req := types.GenerationRequest{
		PositivePrompt: PromptWithTrigger(f.Prompt, loraModel, f.LoraTrigger),
		Model:          strings.TrimSpace(f.Model),
		Width:          leadingIntOr(f.Width, DefaultWidth),
		Height:         leadingIntOr(f.Height, DefaultHeight),
		NumberResults:  leadingIntOr(f.NumberResults, DefaultNumberResults),
		OutputType:     types.OutputTypeBase64,
		OutputFormat:   types.OutputFormatPNG,
	}
	if neg := strings.TrimSpace(f.NegativePrompt); neg != "" {
		req.NegativePrompt = neg
	}
	if loraModel != "" {
		w, ok := preset.ParseNumber(f.LoraWeight)
		if !ok {
			w = 1
		}
		req.Lora = []types.LoraRef{{Model: loraModel, Weight: w}}
	}
	if vae := strings.TrimSpace(f.VAEModel); vae != "" {
		req.VAE = vae
	}
	if embs := ParseEmbeddings(f.Embeddings); len(embs) > 0 {
		req.Embeddings = embs
	}
	if n, ok := leadingInt(f.Steps); ok {
		req.Steps = &n
	}
	if c, ok := preset.ParseNumber(f.CFGScale); ok {
		req.CFGScale = &c
	}
	if s, ok := leadingInt64(f.Seed); ok {
		req.Seed = &s
	}
	return req
}

// PromptWithTrigger trims prompt and, when a LoRA model and trigger are both
// set and the prompt does not already mention the trigger (ignoring case),
// prepends "<trigger>, ".
func PromptWithTrigger(prompt, loraModel, trigger string) string {
	prompt = strings.TrimSpace(prompt)
	trigger = strings.TrimSpace(trigger)
	if strings.TrimSpace(loraModel) == "" || trigger == "" {
		return prompt
	}
	if strings.Contains(strings.ToLower(prompt), strings.ToLower(trigger)) {
		return prompt
	}
	return trigger + ", " + prompt
}

func leadingIntOr(s string, fallback int) int {
	n, ok := leadingInt(s)
	if !ok || n == 0 {
		return fallback
	}
	return n
}

func leadingInt(s string) (int, bool) {
	n, ok := leadingInt64(s)
	return int(n), ok
}

// leadingInt64 parses an optional sign followed by the leading decimal digits
// of s, so "768px" reads as 768 and "12.9" as 12.
func leadingInt64(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
