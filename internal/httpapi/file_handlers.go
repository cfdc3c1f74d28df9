package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stackpad.org/internal/audit"
	"stackpad.org/internal/file"
)

type filesResponse struct {
	Data  []*file.File `json:"data"`
	Count int          `json:"count"`
}

func (a *API) handleFilesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit, offset, err := parsePage(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	p := principal(r)
	var key string
	if p != nil {
		key = a.listKey("files", listScope(p), limit, offset)
		var cached filesResponse
		if a.cacheGet(r.Context(), key, &cached) {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	files, total, err := a.files.List(r.Context(), p, limit, offset)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if files == nil {
		files = []*file.File{}
	}
	resp := filesResponse{Data: files, Count: total}
	a.cachePut(r.Context(), key, resp)
	writeJSON(w, http.StatusOK, resp)
}

// uploadFile accepts one multipart upload under the "file" field.
func (a *API) uploadFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
		return
	}
	// Stream parts until the file field; nothing is buffered to disk.
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		f, err := a.files.Upload(r.Context(), principal(r), file.UploadInput{
			Filename: part.FileName(),
			Body:     part,
		})
		part.Close()
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "file.upload", map[string]any{
			"file_id": f.ID,
			"size":    f.Size,
		})
		a.invalidate(r.Context(), "files")
		w.Header().Set("Location", "/v1/files/"+f.ID)
		writeJSON(w, http.StatusCreated, f)
		return
	}
	a.writeError(w, r, http.StatusBadRequest, "error.invalid_input")
}

func (a *API) handleFileResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/files/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/download"); ok {
		if id == "" || strings.Contains(id, "/") {
			a.writeError(w, r, http.StatusNotFound, "error.not_found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		a.downloadFile(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		a.writeError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		f, err := a.files.Get(r.Context(), principal(r), path)
		if err != nil {
			a.domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	case http.MethodDelete:
		if err := a.files.Delete(r.Context(), principal(r), path); err != nil {
			a.domainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "file.delete", map[string]any{"file_id": path})
		a.invalidate(r.Context(), "files")
		a.writeMessage(w, r, "file.deleted")
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) downloadFile(w http.ResponseWriter, r *http.Request, id string) {
	f, rc, err := a.files.Download(r.Context(), principal(r), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
