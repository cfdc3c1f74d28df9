package item

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"stackpad.org/internal/auth"
)

type memStore struct {
	mu    sync.Mutex
	items map[string]*Item
}

func newMemStore() *memStore {
	return &memStore{items: map[string]*Item{}}
}

func (m *memStore) CreateItem(ctx context.Context, it *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *it
	m.items[it.ID] = &copied
	return nil
}

func (m *memStore) FindItem(ctx context.Context, id string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *it
	return &copied, nil
}

func (m *memStore) ListItems(ctx context.Context, ownerID string, limit, offset int) ([]*Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Item
	for _, it := range m.items {
		if ownerID != "" && it.OwnerID != ownerID {
			continue
		}
		copied := *it
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memStore) UpdateItem(ctx context.Context, it *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; !ok {
		return ErrNotFound
	}
	copied := *it
	m.items[it.ID] = &copied
	return nil
}

func (m *memStore) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func principal(id string, superuser bool) *auth.Principal {
	return &auth.Principal{User: auth.User{ID: id, Active: true, Superuser: superuser}}
}

func testService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc, err := NewService(store, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestCreateSetsOwner(t *testing.T) {
	svc, _ := testService(t)
	owner := principal("user-a", false)

	it, err := svc.Create(context.Background(), owner, CreateInput{Title: "  groceries  ", Description: "weekly"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if it.OwnerID != "user-a" {
		t.Fatalf("owner = %s, want user-a", it.OwnerID)
	}
	if it.Title != "groceries" {
		t.Fatalf("title not trimmed: %q", it.Title)
	}
	if it.ID == "" {
		t.Fatal("missing id")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := testService(t)

	if _, err := svc.Create(context.Background(), nil, CreateInput{Title: "x"}); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("anonymous create: %v", err)
	}
	if _, err := svc.Create(context.Background(), principal("user-a", false), CreateInput{Title: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank title: %v", err)
	}
}

func TestOwnershipRules(t *testing.T) {
	svc, _ := testService(t)
	owner := principal("user-a", false)
	stranger := principal("user-b", false)
	root := principal("user-root", true)

	it, err := svc.Create(context.Background(), owner, CreateInput{Title: "groceries"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Get(context.Background(), owner, it.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.Get(context.Background(), stranger, it.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("stranger get: %v", err)
	}
	if _, err := svc.Get(context.Background(), root, it.ID); err != nil {
		t.Fatalf("superuser get: %v", err)
	}
	if _, err := svc.Get(context.Background(), nil, it.ID); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("anonymous get: %v", err)
	}
	if _, err := svc.Get(context.Background(), owner, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing get: %v", err)
	}
}

func TestDeleteScenario(t *testing.T) {
	svc, _ := testService(t)
	a := principal("user-a", false)
	b := principal("user-b", false)
	root := principal("user-root", true)

	it, err := svc.Create(context.Background(), a, CreateInput{Title: "groceries"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), b, it.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("stranger delete: %v", err)
	}
	if err := svc.Delete(context.Background(), root, it.ID); err != nil {
		t.Fatalf("superuser delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), root, it.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("item still resolvable after delete: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	svc, _ := testService(t)
	owner := principal("user-a", false)
	stranger := principal("user-b", false)

	it, err := svc.Create(context.Background(), owner, CreateInput{Title: "groceries"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "errands"
	updated, err := svc.Update(context.Background(), owner, it.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "errands" {
		t.Fatalf("title = %q", updated.Title)
	}
	if updated.OwnerID != "user-a" {
		t.Fatal("owner changed on update")
	}

	if _, err := svc.Update(context.Background(), stranger, it.ID, UpdateInput{Title: &title}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("stranger update: %v", err)
	}
	blank := "   "
	if _, err := svc.Update(context.Background(), owner, it.ID, UpdateInput{Title: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank title update: %v", err)
	}
}

func TestListScoping(t *testing.T) {
	svc, _ := testService(t)
	a := principal("user-a", false)
	b := principal("user-b", false)
	root := principal("user-root", true)

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(context.Background(), a, CreateInput{Title: "a item"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := svc.Create(context.Background(), b, CreateInput{Title: "b item"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	items, total, err := svc.List(context.Background(), a, 100, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("owner list: total=%d len=%d, want 3/3", total, len(items))
	}
	for _, it := range items {
		if it.OwnerID != "user-a" {
			t.Fatalf("foreign item leaked into list: %+v", it)
		}
	}

	_, total, err = svc.List(context.Background(), root, 100, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 {
		t.Fatalf("superuser list total = %d, want 4", total)
	}

	if _, _, err := svc.List(context.Background(), nil, 100, 0); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("anonymous list: %v", err)
	}
}
