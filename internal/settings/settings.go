package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"portraitd/internal/events"
	"portraitd/pkg/types"
)

// Settings binds a Store to a Schema under one scope (the module namespace).
type Settings struct {
	store  Store
	schema *Schema
	scope  string
	pub    events.Publisher
}

// New returns Settings over store using DefaultSchema. pub may be nil.
func New(store Store, scope string, pub events.Publisher) *Settings {
	return &Settings{store: store, schema: DefaultSchema(), scope: scope, pub: pub}
}

func (s *Settings) Scope() string   { return s.scope }
func (s *Settings) Schema() *Schema { return s.schema }
func (s *Settings) Store() Store    { return s.store }

// Raw returns the stored value of key, or its default when unset.
func (s *Settings) Raw(ctx context.Context, key string) (json.RawMessage, error) {
	def, ok := s.schema.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	v, found, err := s.store.Get(ctx, s.scope, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return json.Marshal(def.Default)
	}
	return v, nil
}

// String returns a string setting; malformed stored values yield the default.
func (s *Settings) String(ctx context.Context, key string) (string, error) {
	raw, err := s.Raw(ctx, key)
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		def, _ := s.schema.Lookup(key)
		str, _ := def.Default.(string)
		return str, nil
	}
	return out, nil
}

// Int returns a numeric setting; malformed stored values yield the default.
func (s *Settings) Int(ctx context.Context, key string) (int, error) {
	raw, err := s.Raw(ctx, key)
	if err != nil {
		return 0, err
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		def, _ := s.schema.Lookup(key)
		n, _ := def.Default.(int)
		return n, nil
	}
	return int(f), nil
}

// Set validates and stores value, then publishes EventSettingChanged.
func (s *Settings) Set(ctx context.Context, key string, value any) error {
	def, ok := s.schema.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	raw, err := marshalValue(value)
	if err != nil {
		return &ValidationError{Key: key, Msg: "is not valid JSON"}
	}
	if err := def.validate(raw); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.scope, key, raw); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	if s.pub != nil {
		s.pub.Publish(events.Event{Name: EventSettingChanged, Payload: Change{Scope: s.scope, Key: key}})
	}
	return nil
}

// SetFromUser is Set restricted to settings registered with Config=true.
func (s *Settings) SetFromUser(ctx context.Context, key string, value json.RawMessage) error {
	def, ok := s.schema.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if !def.Config {
		return fmt.Errorf("%w: %s", ErrNotConfigurable, key)
	}
	return s.Set(ctx, key, value)
}

// Views lists user-editable settings with their values. The API key value is
// never included.
func (s *Settings) Views(ctx context.Context) ([]types.SettingView, error) {
	var out []types.SettingView
	for _, d := range s.schema.Definitions() {
		if !d.Config {
			continue
		}
		defRaw, _ := json.Marshal(d.Default)
		v := types.SettingView{
			Key:     d.Key,
			Name:    d.Name,
			Hint:    d.Hint,
			Scope:   d.Scope,
			Type:    string(d.Type),
			Default: defRaw,
			Range:   d.Range,
		}
		if d.Key != KeyAPIKey {
			raw, err := s.Raw(ctx, d.Key)
			if err != nil {
				return nil, err
			}
			v.Value = raw
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Settings) APIKey(ctx context.Context) (string, error) { return s.String(ctx, KeyAPIKey) }

func (s *Settings) DefaultModel(ctx context.Context) (string, error) {
	return s.String(ctx, KeyDefaultModel)
}

func (s *Settings) ImageWidth(ctx context.Context) (int, error) { return s.Int(ctx, KeyImageWidth) }

func (s *Settings) ImageHeight(ctx context.Context) (int, error) { return s.Int(ctx, KeyImageHeight) }

func (s *Settings) NumberResults(ctx context.Context) (int, error) {
	return s.Int(ctx, KeyNumberResults)
}
