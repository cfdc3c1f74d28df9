package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"stackpad.org/internal/account"
	"stackpad.org/internal/audit"
	"stackpad.org/internal/auth"
)

const sessionCookie = "stackpad_session"

func (a *API) setSessionCookie(w http.ResponseWriter, sessionID string, maxAge int) {
	secure := a.cfg != nil && a.cfg.IsProduction()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/admin",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// adminPrincipal resolves the session cookie to a superuser principal.
// Any failure clears the cookie and answers 401; the caller stops.
func (a *API) adminPrincipal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		a.writeError(w, r, http.StatusUnauthorized, "error.unauthorized")
		return nil, false
	}
	p, err := a.resolver.ResolveSession(r.Context(), c.Value)
	if err != nil {
		a.setSessionCookie(w, "", -1)
		if errors.Is(err, auth.ErrUnauthenticated) {
			a.writeError(w, r, http.StatusUnauthorized, "error.unauthorized")
		} else {
			a.writeError(w, r, http.StatusInternalServerError, "error.internal")
		}
		return nil, false
	}
	return p, true
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) adminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	sessionID, err := a.resolver.LoginSession(r.Context(), req.Email, req.Password)
	if err != nil {
		// One indistinguishable answer for every failure mode.
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_credentials")
		return
	}
	maxAge := 0
	if a.cfg != nil {
		maxAge = int(a.cfg.SessionTTL.Seconds())
	}
	a.setSessionCookie(w, sessionID, maxAge)

	p, err := a.resolver.ResolveSession(r.Context(), sessionID)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "error.internal")
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.login", map[string]any{"user_id": p.ID()})
	writeJSON(w, http.StatusOK, p.User)
}

func (a *API) adminLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		_ = a.resolver.Logout(r.Context(), c.Value)
	}
	a.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// adminSession is the whoami endpoint for the admin surface.
func (a *API) adminSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := a.adminPrincipal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.User)
}

func (a *API) adminUsersCollection(w http.ResponseWriter, r *http.Request) {
	p, ok := a.adminPrincipal(w, r)
	if !ok {
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), p)
	r = r.WithContext(ctx)

	switch r.Method {
	case http.MethodGet:
		limit, offset, err := parsePage(r)
		if err != nil {
			a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
			return
		}
		users, total, err := a.accounts.List(ctx, p, limit, offset)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		if users == nil {
			users = []*auth.User{}
		}
		writeJSON(w, http.StatusOK, usersResponse{Data: users, Count: total})
	case http.MethodPost:
		var req account.CreateInput
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
			return
		}
		user, err := a.accounts.Create(ctx, p, req)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(ctx, "admin.user_create", map[string]any{"user_id": user.ID})
		a.invalidate(ctx, "users")
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) adminUserResource(w http.ResponseWriter, r *http.Request) {
	p, ok := a.adminPrincipal(w, r)
	if !ok {
		return
	}
	ctx := auth.ContextWithPrincipal(r.Context(), p)
	r = r.WithContext(ctx)

	id := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.accounts.Get(ctx, p, id)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req account.UpdateInput
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
			return
		}
		user, err := a.accounts.Update(ctx, p, id, req)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(ctx, "admin.user_update", map[string]any{"target": id})
		a.invalidate(ctx, "users")
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := a.accounts.Delete(ctx, p, id); err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(ctx, "admin.user_delete", map[string]any{"target": id})
		a.invalidate(ctx, "users")
		a.invalidate(ctx, "items")
		a.invalidate(ctx, "files")
		a.writeMessage(w, r, "user.deleted")
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
