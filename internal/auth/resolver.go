package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver converts raw request credentials into validated principals.
// The API surface uses stateless bearer tokens; the admin surface uses a
// server-side session referenced by an opaque cookie. Both re-check current
// user state on every request, so deactivation takes effect immediately even
// while a token signature still verifies.
type Resolver struct {
	issuer   *Issuer
	users    UserStore
	sessions SessionStore
}

// NewResolver constructs a Resolver. The session store may be nil when the
// admin surface is disabled.
func NewResolver(issuer *Issuer, users UserStore, sessions SessionStore) (*Resolver, error) {
	if issuer == nil {
		return nil, errors.New("auth: issuer is required")
	}
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	return &Resolver{issuer: issuer, users: users, sessions: sessions}, nil
}

// ResolveBearer validates an API bearer token and returns the principal it
// names. Signature validity alone is not enough: the user must still exist
// and be active.
func (r *Resolver) ResolveBearer(ctx context.Context, token string) (*Principal, error) {
	userID, err := r.issuer.VerifyAccessToken(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := r.users.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if !user.Active {
		return nil, ErrUnauthenticated
	}
	return &Principal{User: *user}, nil
}

// ResolveSession validates an admin session. The referenced user must exist,
// be active and be a superuser; any failure clears the session server-side so
// stale state cannot be retried with identical effect.
func (r *Resolver) ResolveSession(ctx context.Context, sessionID string) (*Principal, error) {
	if r.sessions == nil || strings.TrimSpace(sessionID) == "" {
		return nil, ErrUnauthenticated
	}
	userID, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := r.users.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = r.sessions.Clear(ctx, sessionID)
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if !user.Active || !user.Superuser {
		_ = r.sessions.Clear(ctx, sessionID)
		return nil, ErrUnauthenticated
	}
	return &Principal{User: *user}, nil
}

// LoginSession authenticates admin credentials and opens a session. Unknown
// email, wrong password, inactive user and non-superuser all fail with the
// same error so callers cannot enumerate accounts.
func (r *Resolver) LoginSession(ctx context.Context, email, password string) (string, error) {
	if r.sessions == nil {
		return "", ErrInvalidCredential
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", ErrInvalidCredential
	}
	user, err := r.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredential
		}
		return "", fmt.Errorf("load principal: %w", err)
	}
	if err := VerifyPassword(user.HashedPassword, password); err != nil {
		return "", ErrInvalidCredential
	}
	if !user.Active || !user.Superuser {
		return "", ErrInvalidCredential
	}
	sessionID, err := NewSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	if err := r.sessions.Put(ctx, sessionID, user.ID); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

// Logout discards the session.
func (r *Resolver) Logout(ctx context.Context, sessionID string) error {
	if r.sessions == nil || sessionID == "" {
		return nil
	}
	return r.sessions.Clear(ctx, sessionID)
}

// Authenticate validates user credentials for the API login flow and returns
// the user on success. Failure reasons are collapsed, matching LoginSession.
func (r *Resolver) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredential
	}
	user, err := r.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if err := VerifyPassword(user.HashedPassword, password); err != nil {
		return nil, ErrInvalidCredential
	}
	if !user.Active {
		return nil, ErrInvalidCredential
	}
	return user, nil
}
