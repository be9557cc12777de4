// Package entity keeps the host entity records whose portrait and token
// image the generator writes, and answers ownership questions about them.
package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"portraitd/internal/events"
	"portraitd/internal/settings"
	"portraitd/pkg/types"
)

// Updatable fields.
const (
	FieldImg      = "img"
	FieldTokenImg = "prototypeToken.texture.src"
)

// Ownership levels, matching the host's document permission scale.
const (
	LevelNone     = 0
	LevelLimited  = 1
	LevelObserver = 2
	LevelOwner    = 3
)

// DefaultOwnershipKey grants a level to every user without an explicit entry.
const DefaultOwnershipKey = "default"

// EventEntityUpdated is published after an entity record changes.
const EventEntityUpdated = "entityUpdated"

var (
	ErrNotFound     = errors.New("entity not found")
	ErrUnknownField = errors.New("unknown entity field")
)

// notFound carries ErrNotFound with an HTTP status.
type notFound struct{ id string }

func (e notFound) Error() string   { return fmt.Sprintf("entity %q not found", e.id) }
func (e notFound) Unwrap() error   { return ErrNotFound }
func (e notFound) StatusCode() int { return http.StatusNotFound }

// Updater applies field updates to one entity.
type Updater interface {
	Update(ctx context.Context, id string, fields map[string]any) error
}

// Repository persists entities in a settings Store under its own scope.
type Repository struct {
	store settings.Store
	scope string
	isGM  func(userID string) bool
	pub   events.Publisher
	log   zerolog.Logger
}

// Options configures a Repository.
type Options struct {
	Store    settings.Store
	ModuleID string
	// IsGM reports users that own every entity. Nil means nobody.
	IsGM      func(userID string) bool
	Publisher events.Publisher
	Logger    zerolog.Logger
}

func NewRepository(o Options) *Repository {
	isGM := o.IsGM
	if isGM == nil {
		isGM = func(string) bool { return false }
	}
	return &Repository{store: o.Store, scope: o.ModuleID + ":entities", isGM: isGM, pub: o.Publisher, log: o.Logger}
}

// IsGM reports whether userID is a game master.
func (r *Repository) IsGM(userID string) bool { return r.isGM(userID) }

func (r *Repository) Get(ctx context.Context, id string) (types.Entity, error) {
	raw, found, err := r.store.Get(ctx, r.scope, id)
	if err != nil {
		return types.Entity{}, fmt.Errorf("load entity %s: %w", id, err)
	}
	if !found {
		return types.Entity{}, notFound{id: id}
	}
	var e types.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return types.Entity{}, fmt.Errorf("decode entity %s: %w", id, err)
	}
	e.ID = id
	return e, nil
}

// Put creates or replaces an entity record.
func (r *Repository) Put(ctx context.Context, e types.Entity) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return errors.New("entity id is required")
	}
	if err := r.store.Set(ctx, r.scope, e.ID, e); err != nil {
		return fmt.Errorf("store entity %s: %w", e.ID, err)
	}
	r.publish(e)
	return nil
}

// Update sets FieldImg and/or FieldTokenImg on an existing entity. Any other
// field name is rejected and nothing is written.
func (r *Repository) Update(ctx context.Context, id string, fields map[string]any) error {
	e, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", ErrUnknownField, k)
		}
		switch k {
		case FieldImg:
			e.Img = s
		case FieldTokenImg:
			e.TokenImg = s
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
	}
	if err := r.store.Set(ctx, r.scope, id, e); err != nil {
		return fmt.Errorf("update entity %s: %w", id, err)
	}
	r.log.Info().Str("entity", id).Interface("fields", fields).Msg("entity updated")
	r.publish(e)
	return nil
}

func (r *Repository) publish(e types.Entity) {
	if r.pub != nil {
		r.pub.Publish(events.Event{Name: EventEntityUpdated, Payload: e})
	}
}

// Level returns userID's ownership level on e.
func (r *Repository) Level(e types.Entity, userID string) int {
	if r.isGM(userID) {
		return LevelOwner
	}
	if lvl, ok := e.Ownership[userID]; ok {
		return lvl
	}
	return e.Ownership[DefaultOwnershipKey]
}

// CanOwn reports whether userID holds owner permission on e.
func (r *Repository) CanOwn(e types.Entity, userID string) bool {
	return userID != "" && r.Level(e, userID) >= LevelOwner
}

// HeaderActions lists the sheet header actions offered to userID on e.
func (r *Repository) HeaderActions(e types.Entity, userID string) []types.HeaderAction {
	if !r.CanOwn(e, userID) {
		return []types.HeaderAction{}
	}
	return []types.HeaderAction{{Label: "Generate Image", Icon: "fas fa-palette", Action: "generate-image"}}
}
