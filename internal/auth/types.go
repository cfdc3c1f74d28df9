package auth

import "time"

// User is the persisted account record behind a principal.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	HashedPassword string    `json:"-"`
	Active         bool      `json:"is_active"`
	Superuser      bool      `json:"is_superuser"`
	Verified       bool      `json:"is_verified"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Principal is an authenticated actor resolved from a request credential.
// A nil *Principal is the explicit "anonymous" case; the evaluator treats it
// as a first-class variant rather than an error.
type Principal struct {
	User User
}

// ID returns the stable identity of the principal.
func (p *Principal) ID() string {
	if p == nil {
		return ""
	}
	return p.User.ID
}

// IsSuperuser reports whether the principal has unrestricted access.
func (p *Principal) IsSuperuser() bool {
	return p != nil && p.User.Superuser
}

// ResourceRef carries the minimum a caller must know about a resource for an
// authorization decision: that it exists, and who owns it.
type ResourceRef struct {
	ID      string
	OwnerID string
}
