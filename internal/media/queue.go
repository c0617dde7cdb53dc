package media

import (
	"context"
	"fmt"
	"strings"

	"airemaster/internal/domain"
)

// UnstartedGenerations lists queued midjourney generations the bot has not
// picked up yet.
func (s *Service) UnstartedGenerations(ctx context.Context) ([]GenerationView, error) {
	gens, err := s.generations.ListByStatus(ctx, domain.GenerationUnstarted)
	if err != nil {
		return nil, err
	}
	return newGenerationViews(gens), nil
}

// StartGenerations hands every unstarted generation to the bot.
func (s *Service) StartGenerations(ctx context.Context) ([]GenerationView, error) {
	gens, err := s.generations.StartUnstarted(ctx)
	if err != nil {
		return nil, err
	}
	return newGenerationViews(gens), nil
}

// FinishGeneration records the bot's output for a started generation. An
// empty id finishes the oldest started one.
func (s *Service) FinishGeneration(ctx context.Context, id, url, discordMessageID string) (*GenerationView, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}
	g, err := s.generations.Finish(ctx, strings.TrimSpace(id), url, strings.TrimSpace(discordMessageID))
	if err != nil {
		return nil, err
	}
	view := NewGenerationView(*g)
	return &view, nil
}

// CollectGeneratedMedia downloads the output of every finished generation into
// the object store. A generation whose download fails is logged and skipped.
func (s *Service) CollectGeneratedMedia(ctx context.Context) ([]View, error) {
	gens, err := s.generations.CollectFinished(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(gens))
	for _, g := range gens {
		view, err := s.ingestURL(ctx, &domain.Media{
			OwnerID:          g.OwnerID,
			Type:             domain.MediaTypeGeneration,
			Prompt:           g.Prompt,
			Service:          ServiceMidjourney,
			Size:             "1024",
			UpscaleIndex:     g.UpscaleIndex,
			DiscordMessageID: g.DiscordMessageID,
		}, g.URL, "png")
		if err != nil {
			s.logger.Error().Err(err).Str("generation_id", g.ID).Msg("media: collect generation")
			continue
		}
		views = append(views, *view)
	}
	return views, nil
}
