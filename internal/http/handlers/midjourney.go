package handlers

import (
	"net/http"

	"airemaster/internal/media"
)

type finishGenerationRequest struct {
	ID               string `json:"id"`
	URL              string `json:"url" validate:"required,http_url"`
	DiscordMessageID string `json:"discord_message_id" validate:"max=64"`
}

func (a *App) UnstartedGenerations(w http.ResponseWriter, r *http.Request) {
	gens, err := a.Media.UnstartedGenerations(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"generations": nonNil(gens)})
}

func (a *App) StartGenerations(w http.ResponseWriter, r *http.Request) {
	gens, err := a.Media.StartGenerations(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"generations": nonNil(gens)})
}

// FinishedGeneration is called by the bot with the output URL of a started
// generation. Without an id the oldest started generation is finished.
func (a *App) FinishedGeneration(w http.ResponseWriter, r *http.Request) {
	var req finishGenerationRequest
	if !a.decode(w, r, &req) {
		return
	}
	g, err := a.Media.FinishGeneration(r.Context(), req.ID, req.URL, req.DiscordMessageID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, g)
}

// NewlyGeneratedMedia ingests every finished generation as media.
func (a *App) NewlyGeneratedMedia(w http.ResponseWriter, r *http.Request) {
	views, err := a.Media.CollectGeneratedMedia(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if views == nil {
		views = []media.View{}
	}
	a.json(w, http.StatusOK, map[string]any{"media": views})
}

func nonNil(gens []media.GenerationView) []media.GenerationView {
	if gens == nil {
		return []media.GenerationView{}
	}
	return gens
}
