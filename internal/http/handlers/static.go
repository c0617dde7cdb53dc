package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"airemaster/internal/storage"
)

// StaticFile serves a stored object when the URL carries a valid signature.
func (a *App) StaticFile(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "static files are not served")
		return
	}
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := a.Files.Verify(key, q.Get("expires"), q.Get("signature")); err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "invalid or expired signature")
		return
	}
	data, err := a.Files.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		a.fail(w, r, err)
		return
	}
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
