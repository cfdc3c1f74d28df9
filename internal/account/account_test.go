package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stackpad.org/internal/auth"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*auth.User{}}
}

func (m *memStore) FindUser(ctx context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, auth.ErrNotFound
}

func (m *memStore) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memStore) CreateUser(ctx context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return auth.ErrAlreadyExists
		}
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memStore) ListUsers(ctx context.Context, limit, offset int) ([]*auth.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*auth.User
	for _, u := range m.users {
		copied := *u
		all = append(all, &copied)
	}
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

func (m *memStore) UpdateUser(ctx context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.HashedPassword = passwordHash
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type recordingNotifier struct {
	recoveries    []string
	verifications []string
	created       []string
	tokens        map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{tokens: map[string]string{}}
}

func (n *recordingNotifier) PasswordRecovery(ctx context.Context, email, token string) error {
	n.recoveries = append(n.recoveries, email)
	n.tokens[email] = token
	return nil
}

func (n *recordingNotifier) AccountCreated(ctx context.Context, email, password string) error {
	n.created = append(n.created, email)
	return nil
}

func (n *recordingNotifier) VerificationRequested(ctx context.Context, email, token string) error {
	n.verifications = append(n.verifications, email)
	n.tokens[email] = token
	return nil
}

func testService(t *testing.T) (*Service, *memStore, *recordingNotifier) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := auth.NewIssuer("unit-test-secret", "stackpad-test", auth.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	store := newMemStore()
	notifier := newRecordingNotifier()
	svc, err := NewService(store, issuer,
		WithNotifier(notifier),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, notifier
}

func superuser(id string) *auth.Principal {
	return &auth.Principal{User: auth.User{ID: id, Active: true, Superuser: true}}
}

func regular(id string) *auth.Principal {
	return &auth.Principal{User: auth.User{ID: id, Email: id + "@example.com", Active: true}}
}

func TestRegisterDefaults(t *testing.T) {
	svc, _, _ := testService(t)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "New.User@Example.COM",
		Password: "longenough",
		FullName: " New User ",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "new.user@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.FullName != "New User" {
		t.Fatalf("full name not trimmed: %q", user.FullName)
	}
	if !user.Active || user.Superuser || user.Verified {
		t.Fatalf("unexpected flags: %+v", user)
	}
	if user.HashedPassword == "longenough" {
		t.Fatal("plaintext stored as hash")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "longenough"}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "short"}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("short password: %v", err)
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "longenough"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "A@example.com", Password: "longenough"}); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("duplicate email: %v", err)
	}
}

func TestCreateRequiresSuperuser(t *testing.T) {
	svc, _, notifier := testService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, regular("user-1"), CreateInput{Email: "x@example.com", Password: "longenough"}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("regular create: %v", err)
	}
	if _, err := svc.Create(ctx, nil, CreateInput{Email: "x@example.com", Password: "longenough"}); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("anonymous create: %v", err)
	}

	user, err := svc.Create(ctx, superuser("root-1"), CreateInput{
		Email:     "admin2@example.com",
		Password:  "longenough",
		Superuser: true,
		Verified:  true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !user.Superuser || !user.Verified {
		t.Fatalf("flags not applied: %+v", user)
	}
	if len(notifier.created) != 1 || notifier.created[0] != "admin2@example.com" {
		t.Fatalf("welcome mail not enqueued: %v", notifier.created)
	}
}

func TestGetAccessControl(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	store.users["user-1"] = &auth.User{ID: "user-1", Email: "u1@example.com", Active: true}
	store.users["user-2"] = &auth.User{ID: "user-2", Email: "u2@example.com", Active: true}

	if _, err := svc.Get(ctx, regular("user-1"), "user-1"); err != nil {
		t.Fatalf("self get: %v", err)
	}
	if _, err := svc.Get(ctx, regular("user-1"), "user-2"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("cross get: %v", err)
	}
	if _, err := svc.Get(ctx, superuser("root-1"), "user-2"); err != nil {
		t.Fatalf("superuser get: %v", err)
	}
	if _, err := svc.Get(ctx, superuser("root-1"), "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing get: %v", err)
	}
}

func TestUpdatePasswordMe(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	hash, err := auth.HashPassword("oldpassword")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.users["user-1"] = &auth.User{ID: "user-1", Email: "u1@example.com", HashedPassword: hash, Active: true}
	p := regular("user-1")

	if err := svc.UpdatePasswordMe(ctx, p, "wrongpassword", "newpassword1"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("wrong current: %v", err)
	}
	if err := svc.UpdatePasswordMe(ctx, p, "oldpassword", "oldpassword"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("unchanged password: %v", err)
	}
	if err := svc.UpdatePasswordMe(ctx, p, "oldpassword", "newpassword1"); err != nil {
		t.Fatalf("UpdatePasswordMe: %v", err)
	}
	if err := auth.VerifyPassword(store.users["user-1"].HashedPassword, "newpassword1"); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}
}

func TestDeleteRules(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	store.users["root-1"] = &auth.User{ID: "root-1", Email: "root@example.com", Active: true, Superuser: true}
	store.users["user-1"] = &auth.User{ID: "user-1", Email: "u1@example.com", Active: true}

	if err := svc.Delete(ctx, regular("user-1"), "root-1"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("regular delete: %v", err)
	}
	// Administrators cannot delete themselves through the admin path either.
	if err := svc.Delete(ctx, superuser("root-1"), "root-1"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("admin self delete: %v", err)
	}
	if err := svc.Delete(ctx, superuser("root-1"), "user-1"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, ok := store.users["user-1"]; ok {
		t.Fatal("user still present after delete")
	}
}

func TestDeleteMeCarveOut(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	store.users["root-1"] = &auth.User{ID: "root-1", Email: "root@example.com", Active: true, Superuser: true}
	store.users["user-1"] = &auth.User{ID: "user-1", Email: "u1@example.com", Active: true}

	if err := svc.DeleteMe(ctx, superuser("root-1")); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("superuser self-service delete: %v", err)
	}
	if err := svc.DeleteMe(ctx, regular("user-1")); err != nil {
		t.Fatalf("DeleteMe: %v", err)
	}
	if err := svc.DeleteMe(ctx, nil); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("anonymous DeleteMe: %v", err)
	}
}

func TestPasswordRecoveryFlow(t *testing.T) {
	svc, store, notifier := testService(t)
	ctx := context.Background()
	hash, err := auth.HashPassword("oldpassword")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.users["user-1"] = &auth.User{ID: "user-1", Email: "u1@example.com", HashedPassword: hash, Active: true}

	if err := svc.RecoverPassword(ctx, "ghost@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown email: %v", err)
	}
	if err := svc.RecoverPassword(ctx, "U1@example.com"); err != nil {
		t.Fatalf("RecoverPassword: %v", err)
	}
	token, ok := notifier.tokens["u1@example.com"]
	if !ok {
		t.Fatal("no recovery token delivered")
	}

	if err := svc.ResetPassword(ctx, "bogus-token", "newpassword1"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("bogus token: %v", err)
	}
	if err := svc.ResetPassword(ctx, token, "newpassword1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := auth.VerifyPassword(store.users["user-1"].HashedPassword, "newpassword1"); err != nil {
		t.Fatalf("password not rotated: %v", err)
	}

	// Inactive accounts cannot complete a reset.
	store.users["user-1"].Active = false
	if err := svc.ResetPassword(ctx, token, "anotherpassword"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("inactive reset: %v", err)
	}
}

func TestVerificationFlow(t *testing.T) {
	svc, store, notifier := testService(t)
	ctx := context.Background()
	store.users["user-1"] = &auth.User{ID: "user-1", Email: "u1@example.com", Active: true}
	p := &auth.Principal{User: *store.users["user-1"]}

	if err := svc.RequestVerification(ctx, p); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}
	token := notifier.tokens["u1@example.com"]
	if token == "" {
		t.Fatal("no verification token delivered")
	}

	user, err := svc.ConfirmVerification(ctx, token)
	if err != nil {
		t.Fatalf("ConfirmVerification: %v", err)
	}
	if !user.Verified {
		t.Fatal("user not marked verified")
	}
	if !store.users["user-1"].Verified {
		t.Fatal("verification not persisted")
	}
}

func TestEnsureFirstSuperuser(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	if err := svc.EnsureFirstSuperuser(ctx, "root@example.com", "rootpassword"); err != nil {
		t.Fatalf("EnsureFirstSuperuser: %v", err)
	}
	user, err := store.FindUserByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if !user.Superuser || !user.Active || !user.Verified {
		t.Fatalf("unexpected bootstrap flags: %+v", user)
	}

	// Idempotent on restart.
	if err := svc.EnsureFirstSuperuser(ctx, "root@example.com", "rootpassword"); err != nil {
		t.Fatalf("second EnsureFirstSuperuser: %v", err)
	}

	// Disabled when not configured.
	if err := svc.EnsureFirstSuperuser(ctx, "", ""); err != nil {
		t.Fatalf("blank EnsureFirstSuperuser: %v", err)
	}
}
