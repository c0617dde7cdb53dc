package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"airemaster/internal/media"
)

type deleteMediumRequest struct {
	ID string `json:"id" validate:"required"`
}

type archiveRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

type generateRequest struct {
	Prompt           string `json:"prompt" validate:"required,max=4000"`
	Quantity         int    `json:"quantity" validate:"omitempty,min=1,max=10"`
	Service          string `json:"service" validate:"omitempty,oneof=dalle dreamstudio replicate midjourney"`
	Size             string `json:"size" validate:"omitempty,oneof=256 512 768 1024"`
	UpscaleIndex     *int   `json:"upscale_index" validate:"omitempty,min=1,max=4"`
	DiscordMessageID string `json:"discord_message_id" validate:"max=64"`
	Wait             bool   `json:"wait"`
}

type transformRequest struct {
	MediaID string `json:"media_id" validate:"required_without=URL"`
	URL     string `json:"url" validate:"omitempty,http_url"`
	Kind    string `json:"kind" validate:"omitempty,oneof=upscale background-removal"`
	Wait    bool   `json:"wait"`
}

// GetMedia lists the caller's media with signed URLs.
func (a *App) GetMedia(w http.ResponseWriter, r *http.Request) {
	views, err := a.Media.ListMedia(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if views == nil {
		views = []media.View{}
	}
	a.json(w, http.StatusOK, map[string]any{"media": views})
}

func (a *App) DeleteMedium(w http.ResponseWriter, r *http.Request) {
	var req deleteMediumRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.Media.DeleteMedium(r.Context(), a.currentUserID(r), req.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadSourceMedia accepts a multipart form with a "file" part and an optional
// "fileExtension" field; the extension defaults to the uploaded file name's.
func (a *App) UploadSourceMedia(w http.ResponseWriter, r *http.Request) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read file")
		return
	}
	if int64(len(data)) > limit {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("file exceeds %d bytes", limit))
		return
	}
	ext := r.FormValue("fileExtension")
	if ext == "" {
		ext = strings.TrimPrefix(path.Ext(header.Filename), ".")
	}
	view, err := a.Media.UploadSource(r.Context(), a.currentUserID(r), ext, header.Header.Get("Content-Type"), data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, view)
}

// ArchiveMedia streams a zip of the requested media.
func (a *App) ArchiveMedia(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if !a.decode(w, r, &req) {
		return
	}
	archive, err := a.Media.Archive(r.Context(), a.currentUserID(r), req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=media.zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
