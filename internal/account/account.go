// Package account implements user lifecycle: registration, administration,
// profile and password management, recovery and email verification.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"stackpad.org/internal/auth"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	maxEmailLen    = 320
	maxFullNameLen = 255
)

// Store is the persistence boundary for users. It extends the resolver's
// read-only view with mutations. DeleteUser cascades to owned items and files.
type Store interface {
	auth.UserStore
	CreateUser(ctx context.Context, u *auth.User) error
	ListUsers(ctx context.Context, limit, offset int) ([]*auth.User, int, error)
	UpdateUser(ctx context.Context, u *auth.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error
}

// Notifier delivers account-related mail out of band. Implementations enqueue
// onto the background task queue; a nil Notifier disables notifications.
type Notifier interface {
	PasswordRecovery(ctx context.Context, email, token string) error
	AccountCreated(ctx context.Context, email, password string) error
	VerificationRequested(ctx context.Context, email, token string) error
}

// RegisterInput is the public signup payload.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// CreateInput is the administrative creation payload; flags are settable
// directly, unlike signup.
type CreateInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	Active    *bool  `json:"is_active"`
	Superuser bool   `json:"is_superuser"`
	Verified  bool   `json:"is_verified"`
}

// UpdateMeInput updates the caller's own profile.
type UpdateMeInput struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

// UpdateInput is the administrative update payload.
type UpdateInput struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FullName  *string `json:"full_name"`
	Active    *bool   `json:"is_active"`
	Superuser *bool   `json:"is_superuser"`
	Verified  *bool   `json:"is_verified"`
}

// Service owns user lifecycle rules on top of the store and credential issuer.
type Service struct {
	store    Store
	issuer   *auth.Issuer
	notifier Notifier
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithNotifier wires outbound account mail.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, issuer *auth.Issuer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("account: store is required")
	}
	if issuer == nil {
		return nil, errors.New("account: issuer is required")
	}
	s := &Service{store: store, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a user through public signup: active, unverified and
// without elevated rights, no matter what the caller sends.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*auth.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	fullName, err := normalizeFullName(in.FullName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &auth.User{
		ID:             uuid.NewString(),
		Email:          email,
		FullName:       fullName,
		HashedPassword: hash,
		Active:         true,
		Superuser:      false,
		Verified:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Create is the administrative creation path; only superusers may use it.
func (s *Service) Create(ctx context.Context, p *auth.Principal, in CreateInput) (*auth.User, error) {
	if err := requireSuperuser(p); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	fullName, err := normalizeFullName(in.FullName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	now := s.now().UTC()
	user := &auth.User{
		ID:             uuid.NewString(),
		Email:          email,
		FullName:       fullName,
		HashedPassword: hash,
		Active:         active,
		Superuser:      in.Superuser,
		Verified:       in.Verified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if s.notifier != nil {
		_ = s.notifier.AccountCreated(ctx, email, in.Password)
	}
	return user, nil
}

// List returns users with the total count; superusers only.
func (s *Service) List(ctx context.Context, p *auth.Principal, limit, offset int) ([]*auth.User, int, error) {
	if err := requireSuperuser(p); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	users, total, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// Get returns a user: callers may read themselves; everything else requires
// superuser.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (*auth.User, error) {
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}
	if p.ID() != id && !p.IsSuperuser() {
		return nil, auth.ErrForbidden
	}
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// UpdateMe updates the caller's own profile.
func (s *Service) UpdateMe(ctx context.Context, p *auth.Principal, in UpdateMeInput) (*auth.User, error) {
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}
	user, err := s.store.FindUser(ctx, p.ID())
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
			return nil, err
		}
		if email != user.Email {
			user.Email = email
			user.Verified = false
		}
	}
	if in.FullName != nil {
		fullName, err := normalizeFullName(*in.FullName)
		if err != nil {
			return nil, err
		}
		user.FullName = fullName
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// UpdatePasswordMe rotates the caller's password after re-verifying the
// current one.
func (s *Service) UpdatePasswordMe(ctx context.Context, p *auth.Principal, currentPassword, newPassword string) error {
	if p == nil {
		return auth.ErrUnauthenticated
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.store.FindUser(ctx, p.ID())
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if err := auth.VerifyPassword(user.HashedPassword, currentPassword); err != nil {
		return auth.ErrInvalidCredential
	}
	if currentPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the current one", auth.ErrInvalidInput)
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Update is the administrative update path; superusers only.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id string, in UpdateInput) (*auth.User, error) {
	if err := requireSuperuser(p); err != nil {
		return nil, err
	}
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if in.FullName != nil {
		fullName, err := normalizeFullName(*in.FullName)
		if err != nil {
			return nil, err
		}
		user.FullName = fullName
	}
	if in.Active != nil {
		user.Active = *in.Active
	}
	if in.Superuser != nil {
		user.Superuser = *in.Superuser
	}
	if in.Verified != nil {
		user.Verified = *in.Verified
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.HashedPassword = hash
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// Delete removes a user by id; superusers only, and never themselves through
// this path.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if err := requireSuperuser(p); err != nil {
		return err
	}
	if p.ID() == id {
		return auth.ErrForbidden
	}
	if _, err := s.store.FindUser(ctx, id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.ErrNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// DeleteMe removes the caller's own account. The superuser carve-out applies.
func (s *Service) DeleteMe(ctx context.Context, p *auth.Principal) error {
	if d := auth.AuthorizeSelfDelete(p); d != auth.Allowed {
		return d.Err()
	}
	if err := s.store.DeleteUser(ctx, p.ID()); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// RecoverPassword issues a reset token for the given email and hands it to
// the notifier.
func (s *Service) RecoverPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.store.FindUserByEmail(ctx, email); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.ErrNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	token, _, err := s.issuer.IssuePasswordResetToken(email)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.PasswordRecovery(ctx, email, token); err != nil {
			return fmt.Errorf("enqueue recovery mail: %w", err)
		}
	}
	return nil
}

// ResetPassword validates a recovery token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.issuer.VerifyPasswordResetToken(token)
	if err != nil {
		return auth.ErrInvalidCredential
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.ErrNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		return auth.ErrForbidden
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// RequestVerification issues an email-verification token for the caller.
func (s *Service) RequestVerification(ctx context.Context, p *auth.Principal) error {
	if p == nil {
		return auth.ErrUnauthenticated
	}
	if p.User.Verified {
		return fmt.Errorf("%w: already verified", auth.ErrInvalidInput)
	}
	token, _, err := s.issuer.IssueVerificationToken(p.ID())
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}
	if s.notifier != nil {
		if err := s.notifier.VerificationRequested(ctx, p.User.Email, token); err != nil {
			return fmt.Errorf("enqueue verification mail: %w", err)
		}
	}
	return nil
}

// ConfirmVerification marks the token's subject as verified.
func (s *Service) ConfirmVerification(ctx context.Context, token string) (*auth.User, error) {
	userID, err := s.issuer.VerifyVerificationToken(token)
	if err != nil {
		return nil, auth.ErrInvalidCredential
	}
	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.Verified {
		user.Verified = true
		user.UpdatedAt = s.now().UTC()
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	return user, nil
}

// EnsureFirstSuperuser creates the bootstrap administrator if it is missing.
// Called once at startup; a no-op when the email already exists.
func (s *Service) EnsureFirstSuperuser(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	_, err = s.store.FindUserByEmail(ctx, normalized)
	if err == nil {
		return nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return fmt.Errorf("find user: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	return s.store.CreateUser(ctx, &auth.User{
		ID:             uuid.NewString(),
		Email:          normalized,
		HashedPassword: hash,
		Active:         true,
		Superuser:      true,
		Verified:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (s *Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if existing.ID == selfID {
		return nil
	}
	return auth.ErrAlreadyExists
}

func requireSuperuser(p *auth.Principal) error {
	if p == nil {
		return auth.ErrUnauthenticated
	}
	if !p.IsSuperuser() {
		return auth.ErrForbidden
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || len(email) > maxEmailLen {
		return "", fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email address", auth.ErrInvalidInput)
	}
	return email, nil
}

func normalizeFullName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxFullNameLen {
		return "", fmt.Errorf("%w: full name exceeds %d characters", auth.ErrInvalidInput, maxFullNameLen)
	}
	return name, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", auth.ErrInvalidInput, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password exceeds %d characters", auth.ErrInvalidInput, maxPasswordLen)
	}
	return nil
}
