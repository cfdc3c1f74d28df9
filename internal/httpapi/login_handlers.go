package httpapi

import (
	"net/http"
	"strings"

	"stackpad.org/internal/audit"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// loginAccessToken implements the OAuth2 password flow: a form-encoded
// username/password pair exchanged for a bearer token.
func (a *API) loginAccessToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	// PostFormValue parses both urlencoded and multipart bodies.
	email := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_credentials")
		return
	}

	user, err := a.resolver.Authenticate(r.Context(), email, password)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	token, _, err := a.issuer.IssueAccessToken(user.ID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// loginTestToken echoes the authenticated user; clients use it to
// validate a stored token.
func (a *API) loginTestToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	p := principal(r)
	if p == nil {
		a.writeError(w, r, http.StatusUnauthorized, "error.unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, p.User)
}

// passwordRecovery handles POST /v1/password-recovery/{email}.
func (a *API) passwordRecovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/v1/password-recovery/")
	email = strings.TrimSuffix(email, "/")
	if email == "" || strings.Contains(email, "/") {
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	if err := a.accounts.RecoverPassword(r.Context(), email); err != nil {
		a.domainError(w, r, err)
		return
	}
	a.writeMessage(w, r, "password.recovery_sent")
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	if err := a.accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.domainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset", nil)
	a.writeMessage(w, r, "password.updated")
}
