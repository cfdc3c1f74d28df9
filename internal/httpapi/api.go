// Package httpapi is the HTTP layer: routing, middleware, and the
// translation of domain errors into the wire error shape.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"stackpad.org/internal/account"
	"stackpad.org/internal/auth"
	"stackpad.org/internal/cache"
	"stackpad.org/internal/config"
	"stackpad.org/internal/file"
	"stackpad.org/internal/i18n"
	"stackpad.org/internal/item"
	"stackpad.org/internal/obs"
)

// ReadyProbe checks the hard dependencies behind /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Config     *config.Config
	Accounts   *account.Service
	Items      *item.Service
	Files      *file.Service
	Resolver   *auth.Resolver
	Issuer     *auth.Issuer
	Translator *i18n.Translator
	ReadyProbe ReadyProbe
	// Cache, when set, backs list responses; writes invalidate it.
	Cache   *cache.Cache
	Version string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	cfg        *config.Config
	accounts   *account.Service
	items      *item.Service
	files      *file.Service
	resolver   *auth.Resolver
	issuer     *auth.Issuer
	translator *i18n.Translator
	readyProbe ReadyProbe
	rcache     *cache.Cache
	version    string
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        opts.Config,
		accounts:   opts.Accounts,
		items:      opts.Items,
		files:      opts.Files,
		resolver:   opts.Resolver,
		issuer:     opts.Issuer,
		translator: opts.Translator,
		readyProbe: opts.ReadyProbe,
		rcache:     opts.Cache,
		version:    opts.Version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/login/access-token", a.limited("login", a.loginAccessToken))
	a.mux.HandleFunc("/v1/login/test-token", a.loginTestToken)
	a.mux.HandleFunc("/v1/password-recovery/", a.limited("recovery", a.passwordRecovery))
	a.mux.HandleFunc("/v1/reset-password", a.resetPassword)

	// users
	a.mux.HandleFunc("/v1/users/signup", a.limited("register", a.signup))
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/me", a.handleMe)
	a.mux.HandleFunc("/v1/users/me/password", a.updateMyPassword)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/verification/request", a.requestVerification)
	a.mux.HandleFunc("/v1/verification/confirm", a.confirmVerification)

	// items
	a.mux.HandleFunc("/v1/items", a.handleItemsCollection)
	a.mux.HandleFunc("/v1/items/", a.handleItemResource)

	// files
	a.mux.HandleFunc("/v1/files", a.handleFilesCollection)
	a.mux.HandleFunc("/v1/files/upload", a.uploadFile)
	a.mux.HandleFunc("/v1/files/", a.handleFileResource)

	// admin surface (cookie sessions, JSON only)
	a.mux.HandleFunc("/admin/login", a.limited("login", a.adminLogin))
	a.mux.HandleFunc("/admin/logout", a.adminLogout)
	a.mux.HandleFunc("/admin/session", a.adminSession)
	a.mux.HandleFunc("/admin/users", a.adminUsersCollection)
	a.mux.HandleFunc("/admin/users/", a.adminUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	if a.cfg != nil && a.cfg.RateLimitEnabled {
		h = RateLimit(h, a.cfg.RateLimitBurst, a.cfg.RateLimitPerSec)
	}
	maxBody := int64(1 << 20)
	if a.cfg != nil && a.cfg.MaxUploadSize > maxBody {
		// Leave headroom for multipart framing around the payload.
		maxBody = a.cfg.MaxUploadSize + (1 << 20)
	}
	h = MaxBodyBytes(h, maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "stackpad-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "stackpad-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
