// Package settings registers the service's world-scoped settings and persists
// their values through a pluggable Store.
package settings

import (
	"context"
	"encoding/json"
	"errors"
)

var errInvalidJSON = errors.New("invalid JSON value")

// Store is the persistent settings contract. Values are JSON documents; a
// missing key is reported with found=false and no error.
type Store interface {
	Get(ctx context.Context, scope, key string) (value json.RawMessage, found bool, err error)
	Set(ctx context.Context, scope, key string, value any) error
}

// Change identifies a setting whose value was replaced.
type Change struct {
	Scope string `json:"scope"`
	Key   string `json:"key"`
}

// Watcher is implemented by stores that can observe writes from other processes.
// Watch blocks until ctx is done or the subscription fails.
type Watcher interface {
	Watch(ctx context.Context, fn func(Change)) error
}

// EventSettingChanged is published after every successful Set through Settings.
const EventSettingChanged = "settingChanged"

func storageKey(scope, key string) string { return scope + "." + key }

func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errInvalidJSON
		}
		return append(json.RawMessage(nil), raw...), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return b, nil
}
