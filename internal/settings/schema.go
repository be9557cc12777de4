package settings

import (
	"encoding/json"
	"fmt"
	"math"

	"portraitd/pkg/types"
)

// Registered setting keys.
const (
	KeyAPIKey            = "apiKey"
	KeyDefaultModel      = "defaultModel"
	KeyImageWidth        = "imageWidth"
	KeyImageHeight       = "imageHeight"
	KeyNumberResults     = "numberResults"
	KeyGenerationPresets = "generationPresets"
)

// Type is the value type of a setting.
type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeList   Type = "list"
)

// Definition registers one setting.
type Definition struct {
	Key   string
	Name  string
	Hint  string
	Scope string
	// Config marks settings editable through the generic settings surface.
	Config  bool
	Type    Type
	Default any
	Range   *types.SettingRange
}

// Schema is an ordered set of Definitions.
type Schema struct {
	defs  []Definition
	index map[string]int
}

func NewSchema() *Schema { return &Schema{index: make(map[string]int)} }

// Register adds or replaces a definition.
func (s *Schema) Register(d Definition) {
	if d.Scope == "" {
		d.Scope = "world"
	}
	if i, ok := s.index[d.Key]; ok {
		s.defs[i] = d
		return
	}
	s.index[d.Key] = len(s.defs)
	s.defs = append(s.defs, d)
}

func (s *Schema) Lookup(key string) (Definition, bool) {
	i, ok := s.index[key]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// Definitions returns the registered definitions in registration order.
func (s *Schema) Definitions() []Definition {
	return append([]Definition(nil), s.defs...)
}

// DefaultSchema returns the service settings.
func DefaultSchema() *Schema {
	s := NewSchema()
	s.Register(Definition{
		Key:     KeyAPIKey,
		Name:    "Runware API Key",
		Hint:    "Your Runware API key for image generation",
		Config:  true,
		Type:    TypeString,
		Default: "",
	})
	s.Register(Definition{
		Key:     KeyDefaultModel,
		Name:    "Default Model",
		Hint:    "The default AI model to use for image generation",
		Config:  true,
		Type:    TypeString,
		Default: "runware:100@1",
	})
	s.Register(Definition{
		Key:     KeyImageWidth,
		Name:    "Image Width",
		Hint:    "Default width for generated images",
		Config:  true,
		Type:    TypeNumber,
		Default: 512,
	})
	s.Register(Definition{
		Key:     KeyImageHeight,
		Name:    "Image Height",
		Hint:    "Default height for generated images",
		Config:  true,
		Type:    TypeNumber,
		Default: 512,
	})
	s.Register(Definition{
		Key:     KeyNumberResults,
		Name:    "Number of Results",
		Hint:    "How many images to generate per request (1-4)",
		Config:  true,
		Type:    TypeNumber,
		Default: 1,
		Range:   &types.SettingRange{Min: 1, Max: 4, Step: 1},
	})
	s.Register(Definition{
		Key:     KeyGenerationPresets,
		Name:    "Generation Presets",
		Config:  false,
		Type:    TypeList,
		Default: []any{},
	})
	return s
}

// validate checks raw against the definition's type and range.
func (d Definition) validate(raw json.RawMessage) error {
	switch d.Type {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return &ValidationError{Key: d.Key, Msg: "must be a string"}
		}
	case TypeNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return &ValidationError{Key: d.Key, Msg: "must be a number"}
		}
		if math.Trunc(f) != f {
			return &ValidationError{Key: d.Key, Msg: "must be an integer"}
		}
		if d.Range != nil && (f < float64(d.Range.Min) || f > float64(d.Range.Max)) {
			return &ValidationError{Key: d.Key, Msg: fmt.Sprintf("must be between %d and %d", d.Range.Min, d.Range.Max)}
		}
	case TypeList:
		var l []json.RawMessage
		if err := json.Unmarshal(raw, &l); err != nil {
			return &ValidationError{Key: d.Key, Msg: "must be a list"}
		}
	}
	return nil
}
