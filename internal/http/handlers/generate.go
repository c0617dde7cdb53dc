package handlers

import (
	"net/http"

	"airemaster/internal/jobs"
	"airemaster/internal/media"
)

type generateResponse struct {
	Media      []media.View          `json:"media"`
	Job        *media.JobView        `json:"job,omitempty"`
	Generation *media.GenerationView `json:"generation,omitempty"`
}

type transformResponse struct {
	Job   *media.JobView `json:"job"`
	Media *media.View    `json:"media,omitempty"`
}

// Generate runs a text-to-image request. Synchronous results answer 200;
// queued work (polled jobs still running, midjourney generations) answers 202.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Media.Generate(r.Context(), a.currentUserID(r), media.GenerateRequest{
		Prompt:           req.Prompt,
		Quantity:         req.Quantity,
		Service:          req.Service,
		Size:             req.Size,
		UpscaleIndex:     req.UpscaleIndex,
		DiscordMessageID: req.DiscordMessageID,
		Wait:             req.Wait,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := generateResponse{Media: res.Media, Job: media.NewJobView(res.Job)}
	if out.Media == nil {
		out.Media = []media.View{}
	}
	status := http.StatusOK
	if res.Generation != nil {
		g := media.NewGenerationView(*res.Generation)
		out.Generation = &g
		status = http.StatusAccepted
	}
	if res.Job != nil && !res.Job.Status.Terminal() {
		status = http.StatusAccepted
	}
	a.json(w, status, out)
}

// UpscaleMedia submits an upscale or background-removal job for a stored
// medium or a public URL.
func (a *App) UpscaleMedia(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if !a.decode(w, r, &req) {
		return
	}
	kind := jobs.KindUpscale
	if req.Kind != "" {
		kind = jobs.Kind(req.Kind)
	}
	job, view, err := a.Media.Transform(r.Context(), a.currentUserID(r), media.TransformRequest{
		MediaID: req.MediaID,
		URL:     req.URL,
		Kind:    kind,
		Wait:    req.Wait,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !job.Status.Terminal() {
		status = http.StatusAccepted
	}
	a.json(w, status, transformResponse{Job: media.NewJobView(job), Media: view})
}
