package auth

import "errors"

var (
	// ErrUnauthenticated means no valid principal could be derived from the
	// request. The message is deliberately generic: callers must not reveal
	// which part of credential validation failed.
	ErrUnauthenticated = errors.New("auth: not authenticated")

	// ErrForbidden means the principal is authenticated but lacks rights.
	ErrForbidden = errors.New("auth: not enough permissions")

	// ErrInvalidCredential covers bad login secrets and unverifiable tokens.
	// Identical whether the identifier was unknown or the secret was wrong.
	ErrInvalidCredential = errors.New("auth: invalid credentials")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
)
