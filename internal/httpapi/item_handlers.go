package httpapi

import (
	"net/http"
	"strings"

	"stackpad.org/internal/item"
)

type itemsResponse struct {
	Data  []*item.Item `json:"data"`
	Count int          `json:"count"`
}

func (a *API) handleItemsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listItems(w, r)
	case http.MethodPost:
		a.createItem(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	p := principal(r)
	// The key carries the caller's list scope, so a cached page can only be
	// served back to a caller entitled to that scope.
	var key string
	if p != nil {
		key = a.listKey("items", listScope(p), limit, offset)
		var cached itemsResponse
		if a.cacheGet(r.Context(), key, &cached) {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	items, total, err := a.items.List(r.Context(), p, limit, offset)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if items == nil {
		items = []*item.Item{}
	}
	resp := itemsResponse{Data: items, Count: total}
	a.cachePut(r.Context(), key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) createItem(w http.ResponseWriter, r *http.Request) {
	var req item.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	it, err := a.items.Create(r.Context(), principal(r), req)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.invalidate(r.Context(), "items")
	w.Header().Set("Location", "/v1/items/"+it.ID)
	writeJSON(w, http.StatusCreated, it)
}

func (a *API) handleItemResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/items/")
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		it, err := a.items.Get(r.Context(), principal(r), id)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	case http.MethodPut:
		var req item.UpdateInput
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
			return
		}
		it, err := a.items.Update(r.Context(), principal(r), id, req)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		a.invalidate(r.Context(), "items")
		writeJSON(w, http.StatusOK, it)
	case http.MethodDelete:
		if err := a.items.Delete(r.Context(), principal(r), id); err != nil {
			a.domainError(w, r, err)
			return
		}
		a.invalidate(r.Context(), "items")
		a.writeMessage(w, r, "item.deleted")
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
