package domain

import "context"

// UserRepository resolves access codes to users.
type UserRepository interface {
	FindByAccessCode(ctx context.Context, code string) (*User, error)
}

// MediaRepository persists media rows.
type MediaRepository interface {
	Insert(ctx context.Context, m *Media) error
	Get(ctx context.Context, ownerID, id string) (*Media, error)
	List(ctx context.Context, ownerID string) ([]Media, error)
	ListByIDs(ctx context.Context, ownerID string, ids []string) ([]Media, error)
	SoftDelete(ctx context.Context, ownerID, id string) error
}

// GenerationRepository persists the midjourney generation queue.
type GenerationRepository interface {
	Insert(ctx context.Context, g *Generation) error
	ListByStatus(ctx context.Context, status GenerationStatus) ([]Generation, error)
	StartUnstarted(ctx context.Context) ([]Generation, error)
	Finish(ctx context.Context, id, url, discordMessageID string) (*Generation, error)
	CollectFinished(ctx context.Context) ([]Generation, error)
}

// StatsRepository aggregates counters.
type StatsRepository interface {
	Summary(ctx context.Context) (*Stats, error)
}
