package httpapi

import (
	"net/http"
	"strings"

	"stackpad.org/internal/account"
	"stackpad.org/internal/audit"
	"stackpad.org/internal/auth"
)

type usersResponse struct {
	Data  []*auth.User `json:"data"`
	Count int          `json:"count"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req account.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	user, err := a.accounts.Register(r.Context(), req)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.signup", map[string]any{"user_id": user.ID})
	a.invalidate(r.Context(), "users")
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	p := principal(r)
	// Only superusers may list users, so the cache is consulted only for
	// them; everyone else falls through to the service and its denial.
	var key string
	if p != nil && p.IsSuperuser() {
		key = a.listKey("users", listScope(p), limit, offset)
		var cached usersResponse
		if a.cacheGet(r.Context(), key, &cached) {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	users, total, err := a.accounts.List(r.Context(), p, limit, offset)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	resp := usersResponse{Data: users, Count: total}
	a.cachePut(r.Context(), key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req account.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	user, err := a.accounts.Create(r.Context(), principal(r), req)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{"user_id": user.ID})
	a.invalidate(r.Context(), "users")
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p == nil {
		a.writeError(w, r, http.StatusUnauthorized, "error.unauthorized")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, p.User)
	case http.MethodPatch:
		var req account.UpdateMeInput
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
			return
		}
		user, err := a.accounts.UpdateMe(r.Context(), p, req)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		a.invalidate(r.Context(), "users")
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := a.accounts.DeleteMe(r.Context(), p); err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.self_delete", nil)
		a.invalidate(r.Context(), "users")
		a.invalidate(r.Context(), "items")
		a.invalidate(r.Context(), "files")
		a.writeMessage(w, r, "user.deleted")
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) updateMyPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, http.MethodPatch)
		return
	}
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	if err := a.accounts.UpdatePasswordMe(r.Context(), principal(r), req.CurrentPassword, req.NewPassword); err != nil {
		a.domainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password_change", nil)
	a.writeMessage(w, r, "password.updated")
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.accounts.Get(r.Context(), principal(r), id)
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
		user, err := a.accounts.Update(r.Context(), principal(r), id, req)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.update", map[string]any{"target": id})
		a.invalidate(r.Context(), "users")
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := a.accounts.Delete(r.Context(), principal(r), id); err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.delete", map[string]any{"target": id})
		// Deleting a user cascades to owned rows.
		a.invalidate(r.Context(), "users")
		a.invalidate(r.Context(), "items")
		a.invalidate(r.Context(), "files")
		a.writeMessage(w, r, "user.deleted")
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) requestVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if err := a.accounts.RequestVerification(r.Context(), principal(r)); err != nil {
		a.domainError(w, r, err)
		return
	}
	a.writeMessage(w, r, "verification.sent")
}

type confirmVerificationRequest struct {
	Token string `json:"token"`
}

func (a *API) confirmVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req confirmVerificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	user, err := a.accounts.ConfirmVerification(r.Context(), req.Token)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.verified", map[string]any{"user_id": user.ID})
	a.invalidate(r.Context(), "users")
	a.writeMessage(w, r, "verification.confirmed")
}
