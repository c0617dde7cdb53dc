package domain

import (
	"strings"
	"time"
)

// MediaType distinguishes user uploads from generated output.
type MediaType string

const (
	MediaTypeSource     MediaType = "source"
	MediaTypeGeneration MediaType = "generation"
)

// DefaultFileExtension is used for media rows stored without an extension.
const DefaultFileExtension = "jpg"

// Media is one stored image. Rows are soft-deleted only.
type Media struct {
	ID               string
	OwnerID          string
	Type             MediaType
	FileExtension    string
	Deleted          bool
	Prompt           string
	Service          string
	Size             string
	UpscaleIndex     *int
	DiscordMessageID string
	JobID            string
	CreatedAt        time.Time
}

// Extension returns the lower-cased file extension, defaulting to jpg.
func (m Media) Extension() string {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(m.FileExtension), "."))
	if ext == "" {
		return DefaultFileExtension
	}
	return ext
}
