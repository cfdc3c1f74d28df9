package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"stackpad.org/internal/account"
	"stackpad.org/internal/auth"
	"stackpad.org/internal/config"
	"stackpad.org/internal/file"
	"stackpad.org/internal/i18n"
	"stackpad.org/internal/item"
)

// memStore backs every domain service in handler tests.
type memStore struct {
	mu    sync.Mutex
	users map[string]*auth.User
	items map[string]*item.Item
	files map[string]*file.File
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]*auth.User),
		items: make(map[string]*item.Item),
		files: make(map[string]*file.File),
	}
}

func (m *memStore) CreateUser(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) FindUser(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context, limit, offset int) ([]*auth.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.User
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memStore) UpdateUser(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.HashedPassword = hash
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.users, id)
	for k, it := range m.items {
		if it.OwnerID == id {
			delete(m.items, k)
		}
	}
	for k, f := range m.files {
		if f.OwnerID == id {
			delete(m.files, k)
		}
	}
	return nil
}

func (m *memStore) CreateItem(_ context.Context, it *item.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *memStore) FindItem(_ context.Context, id string) (*item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memStore) ListItems(_ context.Context, ownerID string, limit, offset int) ([]*item.Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*item.Item
	for _, it := range m.items {
		if ownerID != "" && it.OwnerID != ownerID {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memStore) UpdateItem(_ context.Context, it *item.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; !ok {
		return item.ErrNotFound
	}
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *memStore) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return item.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memStore) CreateFile(_ context.Context, f *file.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *memStore) FindFile(_ context.Context, id string) (*file.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, file.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) ListFiles(_ context.Context, ownerID string, limit, offset int) ([]*file.File, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*file.File
	for _, f := range m.files {
		if ownerID != "" && f.OwnerID != ownerID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memStore) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return file.ErrNotFound
	}
	delete(m.files, id)
	return nil
}

type testEnv struct {
	api     *API
	handler http.Handler
	store   *memStore
	issuer  *auth.Issuer
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "local",
		AuthSecret:        "test-secret",
		SessionTTL:        time.Hour,
		RateLimitEnabled:  false,
		MaxUploadSize:     1 << 20,
		AllowedExtensions: []string{"png", "txt", "pdf"},
		AllowedMIMETypes:  []string{"image/png", "text/plain", "application/pdf"},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	store := newMemStore()

	issuer, err := auth.NewIssuer(cfg.AuthSecret, "stackpad")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	resolver, err := auth.NewResolver(issuer, store, auth.NewMemorySessionStore(cfg.SessionTTL))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	accounts, err := account.NewService(store, issuer)
	if err != nil {
		t.Fatalf("account.NewService: %v", err)
	}
	items, err := item.NewService(store)
	if err != nil {
		t.Fatalf("item.NewService: %v", err)
	}
	blobs, err := file.NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore: %v", err)
	}
	files := file.NewService(store, blobs, cfg.MaxUploadSize, cfg.AllowedExtensions, cfg.AllowedMIMETypes)
	translator, err := i18n.New("en_US")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}

	api := New(Options{
		Config:     cfg,
		Accounts:   accounts,
		Items:      items,
		Files:      files,
		Resolver:   resolver,
		Issuer:     issuer,
		Translator: translator,
		Version:    "test",
	})
	return &testEnv{api: api, handler: api.Handler(), store: store, issuer: issuer}
}

// seedUser registers a user directly in the store with a bcrypt hash.
func (e *testEnv) seedUser(t *testing.T, id, email, password string, superuser bool) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now().UTC()
	u := &auth.User{
		ID: id, Email: email, HashedPassword: hash,
		Active: true, Superuser: superuser,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// token issues a bearer token for the user id.
func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.issuer.IssueAccessToken(userID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return token
}

// do runs one request through the full middleware chain.
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
