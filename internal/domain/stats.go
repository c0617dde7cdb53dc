package domain

// Stats summarises jobs and media for the operator dashboard.
type Stats struct {
	JobsByStatus map[string]int `json:"jobs_by_status"`
	MediaTotal   int            `json:"media_total"`
	Generations  int            `json:"queued_generations"`
}
