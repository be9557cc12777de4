package preset

import (
	"sort"
	"strings"

	"portraitd/pkg/types"
)

// Available returns the presets a generation dialog may offer: only those with
// a name and a model, sorted case-insensitively by name.
func Available(list []types.Preset) []types.Preset {
	out := make([]types.Preset, 0, len(list))
	for _, p := range list {
		if p.Name == "" || p.Model == "" {
			continue
		}
		c := p.Clone()
		if c.ID == "" {
			c.ID = NewID()
		}
		if c.Embeddings == nil {
			c.Embeddings = []types.Embedding{}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Find returns the preset with id from list.
func Find(list []types.Preset, id string) (types.Preset, bool) {
	if id == "" {
		return types.Preset{}, false
	}
	for _, p := range list {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return types.Preset{}, false
}
