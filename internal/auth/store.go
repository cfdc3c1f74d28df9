package auth

import "context"

// UserStore is the persistence boundary the resolver depends on. Lookups have
// no side effects; missing users are reported as ErrNotFound.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}
