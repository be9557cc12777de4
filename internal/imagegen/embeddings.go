package imagegen

import (
	"strconv"
	"strings"

	"portraitd/internal/preset"
	"portraitd/pkg/types"
)

// ParseEmbeddings reads free text where each line or comma separated segment
// is "<model>" or "<model>:<weight>". Model ids may themselves contain a
// colon (civitai:7808@9208), so only a trailing numeric suffix is taken as the
// weight. Missing or non-numeric weights become 1 and model-less segments are
// dropped. The result is never nil.
func ParseEmbeddings(raw string) []types.Embedding {
	out := []types.Embedding{}
	segments := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == ',' })
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		model, weight := splitWeight(seg)
		if model == "" {
			continue
		}
		out = append(out, types.Embedding{Model: model, Weight: weight})
	}
	return out
}

func splitWeight(seg string) (string, float64) {
	i := strings.LastIndex(seg, ":")
	if i < 0 {
		return seg, 1
	}
	head := strings.TrimSpace(seg[:i])
	tail := strings.TrimSpace(seg[i+1:])
	if w, ok := preset.ParseNumber(tail); ok {
		return head, w
	}
	if strings.Contains(tail, "@") {
		// AIR id with no weight suffix.
		return seg, 1
	}
	return head, 1
}

// FormatEmbeddings is the inverse of ParseEmbeddings: one embedding per line,
// with the weight appended only when it differs from 1.
func FormatEmbeddings(embs []types.Embedding) string {
	lines := make([]string, 0, len(embs))
	for _, e := range embs {
		if e.Model == "" {
			continue
		}
		if e.Weight != 1 {
			lines = append(lines, e.Model+":"+strconv.FormatFloat(e.Weight, 'f', -1, 64))
			continue
		}
		lines = append(lines, e.Model)
	}
	return strings.Join(lines, "\n")
}

// ApplyPreset writes the preset's model, LoRA, VAE and embeddings over f.
// Prompt, size and sampling fields are left as typed.
func ApplyPreset(f types.FormFields, p types.Preset) types.FormFields {
	f.PresetID = p.ID
	f.Model = p.Model
	f.LoraModel, f.LoraWeight, f.LoraTrigger = "", "1", ""
	if p.Lora != nil {
		f.LoraModel = p.Lora.Model
		f.LoraWeight = strconv.FormatFloat(p.Lora.Weight, 'f', -1, 64)
		f.LoraTrigger = p.Lora.Trigger
	}
	f.VAEModel = p.VAE
	f.Embeddings = FormatEmbeddings(p.Embeddings)
	return f
}
