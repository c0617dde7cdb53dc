package domain

import "time"

// GenerationStatus tracks a queued generation handled by an external bot.
type GenerationStatus string

const (
	GenerationUnstarted      GenerationStatus = "unstarted"
	GenerationStarted        GenerationStatus = "started"
	GenerationFinished       GenerationStatus = "finished"
	GenerationMediaGenerated GenerationStatus = "mediaGenerated"
)

// Generation is a queued text-to-image request picked up by the midjourney bot.
type Generation struct {
	ID               string
	OwnerID          string
	Service          string
	Status           GenerationStatus
	Prompt           string
	UpscaleIndex     *int
	DiscordMessageID string
	URL              string
	CreatedAt        time.Time
}
