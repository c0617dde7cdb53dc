package media

import (
	"time"

	"airemaster/internal/domain"
	"airemaster/internal/jobs"
)

// View is a medium as returned to clients, with a signed URL.
type View struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	FileExtension    string    `json:"file_extension"`
	Prompt           string    `json:"prompt,omitempty"`
	Service          string    `json:"service,omitempty"`
	Size             string    `json:"size,omitempty"`
	UpscaleIndex     *int      `json:"upscale_index,omitempty"`
	DiscordMessageID string    `json:"discord_message_id,omitempty"`
	JobID            string    `json:"job_id,omitempty"`
	URL              string    `json:"url"`
	CreatedAt        time.Time `json:"created_at"`
}

func newView(m domain.Media, url string) View {
	return View{
		ID:               m.ID,
		Type:             string(m.Type),
		FileExtension:    m.Extension(),
		Prompt:           m.Prompt,
		Service:          m.Service,
		Size:             m.Size,
		UpscaleIndex:     m.UpscaleIndex,
		DiscordMessageID: m.DiscordMessageID,
		JobID:            m.JobID,
		URL:              url,
		CreatedAt:        m.CreatedAt,
	}
}

// JobView is the client representation of a generation job.
type JobView struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Provider        string    `json:"provider"`
	Status          string    `json:"status"`
	ResultReference string    `json:"result_reference,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Attempts        int       `json:"attempts"`
	CancelRequested bool      `json:"cancel_requested"`
	SubmittedAt     time.Time `json:"submitted_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewJobView converts a job for output.
func NewJobView(j *jobs.Job) *JobView {
	if j == nil {
		return nil
	}
	return &JobView{
		ID:              j.ID,
		Kind:            string(j.Kind),
		Provider:        j.Provider,
		Status:          string(j.Status),
		ResultReference: j.ResultReference,
		LastError:       j.LastError,
		Attempts:        j.Attempts,
		CancelRequested: j.CancelRequested,
		SubmittedAt:     j.SubmittedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

// GenerationView is a queued midjourney generation.
type GenerationView struct {
	ID               string    `json:"id"`
	Service          string    `json:"service"`
	Status           string    `json:"status"`
	Prompt           string    `json:"prompt"`
	UpscaleIndex     *int      `json:"upscale_index,omitempty"`
	DiscordMessageID string    `json:"discord_message_id,omitempty"`
	URL              string    `json:"url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewGenerationView converts a generation for output.
func NewGenerationView(g domain.Generation) GenerationView {
	return GenerationView{
		ID:               g.ID,
		Service:          g.Service,
		Status:           string(g.Status),
		Prompt:           g.Prompt,
		UpscaleIndex:     g.UpscaleIndex,
		DiscordMessageID: g.DiscordMessageID,
		URL:              g.URL,
		CreatedAt:        g.CreatedAt,
	}
}

func newGenerationViews(gens []domain.Generation) []GenerationView {
	out := make([]GenerationView, 0, len(gens))
	for _, g := range gens {
		out = append(out, NewGenerationView(g))
	}
	return out
}
