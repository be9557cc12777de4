package preset

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"portraitd/pkg/types"
)

// NewID returns a fresh preset id.
func NewID() string { return uuid.NewString() }

// Normalize turns one decoded JSON value into a structurally valid preset.
// It never fails: missing or mistyped fields fall back to defaults (empty
// name/model, LoRA weight 1, no embeddings) and a missing id is generated.
func Normalize(raw any) types.Preset {
	m, _ := raw.(map[string]any)
	p := types.Preset{
		ID:    stringField(m, "id"),
		Name:  stringField(m, "name"),
		Model: stringField(m, "model"),
		VAE:   stringField(m, "vae"),
	}
	if p.ID == "" {
		p.ID = NewID()
	}
	if lm, ok := m["lora"].(map[string]any); ok {
		p.Lora = &types.Lora{
			Model:   stringField(lm, "model"),
			Weight:  coerceNumber(lm["weight"], 1),
			Trigger: stringField(lm, "trigger"),
		}
	}
	p.Embeddings = []types.Embedding{}
	if list, ok := m["embeddings"].([]any); ok {
		for _, item := range list {
			em, _ := item.(map[string]any)
			p.Embeddings = append(p.Embeddings, types.Embedding{
				Model:  stringField(em, "model"),
				Weight: coerceNumber(em["weight"], 1),
			})
		}
	}
	return p
}

// NormalizePreset applies the same defaults to an already typed preset.
func NormalizePreset(p types.Preset) types.Preset {
	out := p.Clone()
	if out.ID == "" {
		out.ID = NewID()
	}
	if out.Lora != nil && !isFinite(out.Lora.Weight) {
		out.Lora.Weight = 1
	}
	if out.Embeddings == nil {
		out.Embeddings = []types.Embedding{}
	}
	for i := range out.Embeddings {
		if !isFinite(out.Embeddings[i].Weight) {
			out.Embeddings[i].Weight = 1
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// coerceNumber accepts JSON numbers and numeric strings; anything else, or a
// non-finite result, yields fallback.
func coerceNumber(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		if isFinite(n) {
			return n
		}
	case int:
		return float64(n)
	case string:
		if f, ok := ParseNumber(n); ok {
			return f
		}
	}
	return fallback
}

// ParseNumber parses a trimmed decimal string into a finite float.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
