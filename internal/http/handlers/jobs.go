package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"airemaster/internal/media"
)

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Media.Job(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, media.NewJobView(job))
}

// CancelJob is idempotent: cancelling a finished job returns it unchanged.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Media.CancelJob(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, media.NewJobView(job))
}
