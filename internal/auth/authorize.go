package auth

// Action is an operation a principal attempts on a resource.
type Action int

const (
	ActionRead Action = iota
	ActionUpdate
	ActionDelete
)

// Decision is the outcome of evaluating (principal, action, resource).
type Decision int

const (
	// Allowed permits the operation.
	Allowed Decision = iota
	// DeniedForbidden: the resource exists but the principal lacks rights.
	DeniedForbidden
	// DeniedNotFound: the resource does not exist. Returned before any
	// ownership check so a miss never leaks more than "not found".
	DeniedNotFound
	// Unauthenticated: no principal was presented.
	Unauthenticated
)

// Err maps a denial to its sentinel error; Allowed maps to nil.
func (d Decision) Err() error {
	switch d {
	case Allowed:
		return nil
	case DeniedNotFound:
		return ErrNotFound
	case Unauthenticated:
		return ErrUnauthenticated
	default:
		return ErrForbidden
	}
}

// Authorize applies the uniform ownership rule: superusers may act on any
// resource; everyone else only on resources they own. Existence is checked
// first, so a non-owner of an existing resource gets "forbidden" rather than
// "not found" (a deliberate disclosure tradeoff).
func Authorize(p *Principal, action Action, res *ResourceRef) Decision {
	if p == nil {
		return Unauthenticated
	}
	if res == nil {
		return DeniedNotFound
	}
	if p.IsSuperuser() {
		return Allowed
	}
	if res.OwnerID == p.ID() {
		return Allowed
	}
	return DeniedForbidden
}

// AuthorizeCreate permits resource creation for any authenticated principal.
// The new resource's owner is the creator and is immutable thereafter.
func AuthorizeCreate(p *Principal) Decision {
	if p == nil {
		return Unauthenticated
	}
	return Allowed
}

// AuthorizeSelfDelete guards the self-service account deletion path.
// Superusers may not delete their own account this way: the carve-out
// prevents accidentally locking out the only administrator.
func AuthorizeSelfDelete(p *Principal) Decision {
	if p == nil {
		return Unauthenticated
	}
	if p.IsSuperuser() {
		return DeniedForbidden
	}
	return Allowed
}

// ListScope returns the owner filter for list endpoints: empty means
// unrestricted (superuser), otherwise results are limited to the owner.
func ListScope(p *Principal) (ownerID string, ok bool) {
	if p == nil {
		return "", false
	}
	if p.IsSuperuser() {
		return "", true
	}
	return p.ID(), true
}
