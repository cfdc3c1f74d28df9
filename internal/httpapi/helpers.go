package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stackpad.org/internal/auth"
	"stackpad.org/internal/file"
	"stackpad.org/internal/item"
	"stackpad.org/internal/obs"
)

// translate resolves a message key in the request's negotiated locale.
func (a *API) translate(r *http.Request, key string) string {
	if a.translator == nil {
		return key
	}
	return a.translator.Translate(a.translator.Negotiate(r), key)
}

// writeError emits the fixed error shape {error, request_id} with the
// message localized for the request.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, code int, msgKey string) {
	payload := map[string]any{
		"error": a.translate(r, msgKey),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, code, payload)
}

// writeMessage emits the {message} shape used by flows that have no
// resource to return.
func (a *API) writeMessage(w http.ResponseWriter, r *http.Request, msgKey string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": a.translate(r, msgKey),
	})
}

// domainError maps domain sentinels onto HTTP statuses. Anything
// unmapped is logged and reported as a generic 500.
func (a *API) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		a.writeError(w, r, http.StatusUnauthorized, "error.unauthorized")
	case errors.Is(err, auth.ErrInvalidCredential):
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_credentials")
	case errors.Is(err, auth.ErrForbidden):
		a.writeError(w, r, http.StatusForbidden, "error.forbidden")
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, item.ErrNotFound),
		errors.Is(err, file.ErrNotFound):
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
	case errors.Is(err, auth.ErrAlreadyExists):
		a.writeError(w, r, http.StatusConflict, "error.conflict")
	case errors.Is(err, file.ErrTooLarge):
		a.writeError(w, r, http.StatusRequestEntityTooLarge, "error.too_large")
	case errors.Is(err, file.ErrUnsupportedType):
		a.writeError(w, r, http.StatusUnsupportedMediaType, "error.unsupported_type")
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, item.ErrInvalidInput),
		errors.Is(err, file.ErrInvalidInput):
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
	default:
		obs.LogRequest(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "error",
			"msg":        "unhandled error",
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		a.writeError(w, r, http.StatusInternalServerError, "error.internal")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": "method not allowed",
	})
}

// parsePage reads limit/skip query parameters with defaults matching
// the list endpoints' contract.
func parsePage(r *http.Request) (limit, offset int, err error) {
	limit = 100
	offset = 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			return 0, 0, errors.New("limit must be between 1 and 1000")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("skip")); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("skip must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// principal returns the request's authenticated principal, nil for
// anonymous.
func principal(r *http.Request) *auth.Principal {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	return p
}
