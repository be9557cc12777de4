package types

// Preset is a named, reusable bundle of generation parameters.
// Optional parts are omitted from JSON when absent.
type Preset struct {
	// Stable identifier.
	// example: 6f1c4a0e-0c55-4b52-9a5b-0d0d8f0c9b11
	ID string `json:"id" example:"6f1c4a0e-0c55-4b52-9a5b-0d0d8f0c9b11"`
	// Display and sort key.
	// example: Elven Ranger
	Name string `json:"name" example:"Elven Ranger"`
	// Base model identifier.
	// example: civitai:130869@143722
	Model string `json:"model" example:"civitai:130869@143722"`
	// Optional LoRA adapter.
	Lora *Lora `json:"lora,omitempty"`
	// Optional VAE identifier.
	// example: runware:5@1
	VAE string `json:"vae,omitempty" example:"runware:5@1"`
	// Textual-inversion embeddings, in order.
	Embeddings []Embedding `json:"embeddings,omitempty"`
}

// Lora is a lightweight model adapter applied with a weight and an optional
// activation trigger phrase.
type Lora struct {
	Model   string  `json:"model" example:"civitai:58390@62833"`
	Weight  float64 `json:"weight" example:"0.8"`
	Trigger string  `json:"trigger,omitempty" example:"elfranger"`
}

// Embedding is a textual-inversion model fragment.
type Embedding struct {
	Model  string  `json:"model" example:"civitai:7808@9208"`
	Weight float64 `json:"weight" example:"1"`
}

// Clone returns a deep copy of p.
func (p Preset) Clone() Preset {
	out := p
	if p.Lora != nil {
		l := *p.Lora
		out.Lora = &l
	}
	if p.Embeddings != nil {
		out.Embeddings = make([]Embedding, len(p.Embeddings))
		copy(out.Embeddings, p.Embeddings)
	}
	return out
}

// Entity is a host-managed record whose portrait and token image this service writes.
type Entity struct {
	ID   string `json:"id" example:"Actor.x1Y2z3"`
	Name string `json:"name" example:"Aria Swiftwind"`
	// Primary portrait path.
	Img string `json:"img,omitempty" example:"modules/runware-imagegen/images/aria_swiftwind/image_3.png"`
	// Token / map icon path.
	TokenImg string `json:"token_img,omitempty"`
	// Ownership levels keyed by user id.
	Ownership map[string]int `json:"ownership,omitempty"`
}
