// Package item implements the owned-item resource: user-created records
// guarded by the ownership rules in internal/auth.
package item

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stackpad.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("item: not found")
	ErrInvalidInput = errors.New("item: invalid input")
)

const (
	maxTitleLen       = 255
	maxDescriptionLen = 2048
)

// Item is an owned resource. OwnerID is set at creation and never changes.
type Item struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ref adapts the item for the authorization evaluator.
func (i *Item) Ref() *auth.ResourceRef {
	if i == nil {
		return nil
	}
	return &auth.ResourceRef{ID: i.ID, OwnerID: i.OwnerID}
}

// Store is the persistence boundary for items. An empty ownerID in ListItems
// means no owner filter.
type Store interface {
	CreateItem(ctx context.Context, it *Item) error
	FindItem(ctx context.Context, id string) (*Item, error)
	ListItems(ctx context.Context, ownerID string, limit, offset int) ([]*Item, int, error)
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, id string) error
}

// CreateInput are the caller-supplied attributes of a new item.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateInput carries optional field updates; nil means "leave unchanged".
type UpdateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Service applies ownership-based access control on top of the store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("item: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create inserts a new item owned by the principal.
func (s *Service) Create(ctx context.Context, p *auth.Principal, in CreateInput) (*Item, error) {
	if d := auth.AuthorizeCreate(p); d != auth.Allowed {
		return nil, d.Err()
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLen)
	}
	if len(in.Description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, maxDescriptionLen)
	}
	now := s.now().UTC()
	it := &Item{
		ID:          uuid.NewString(),
		OwnerID:     p.ID(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return it, nil
}

// Get returns an item the principal may read.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (*Item, error) {
	it, err := s.load(ctx, p, id, auth.ActionRead)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// List returns items visible to the principal with the total count.
// Non-superusers only see their own items.
func (s *Service) List(ctx context.Context, p *auth.Principal, limit, offset int) ([]*Item, int, error) {
	ownerID, ok := auth.ListScope(p)
	if !ok {
		return nil, 0, auth.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.ListItems(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	return items, total, nil
}

// Update modifies an item the principal may update.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id string, in UpdateInput) (*Item, error) {
	it, err := s.load(ctx, p, id, auth.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		if len(title) > maxTitleLen {
			return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLen)
		}
		it.Title = title
	}
	if in.Description != nil {
		if len(*in.Description) > maxDescriptionLen {
			return nil, fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, maxDescriptionLen)
		}
		it.Description = strings.TrimSpace(*in.Description)
	}
	it.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return it, nil
}

// Delete removes an item the principal may delete.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	it, err := s.load(ctx, p, id, auth.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, it.ID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// load fetches the item and runs the evaluator. Existence is confirmed before
// ownership, so anonymous callers never reach the lookup and non-owners of an
// existing item get forbidden rather than not-found.
func (s *Service) load(ctx context.Context, p *auth.Principal, id string, action auth.Action) (*Item, error) {
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}
	it, err := s.store.FindItem(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find item: %w", err)
	}
	if d := auth.Authorize(p, action, it.Ref()); d != auth.Allowed {
		return nil, d.Err()
	}
	return it, nil
}
