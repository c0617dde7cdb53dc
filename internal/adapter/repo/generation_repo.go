package repo

import (
	"context"
	"fmt"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/sqlinline"
)

// GenerationRepository implements domain.GenerationRepository for the
// midjourney queue.
type GenerationRepository struct {
	sql infra.SQLExecutor
}

func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepository {
	return &GenerationRepository{sql: sql}
}

func (r *GenerationRepository) Insert(ctx context.Context, g *domain.Generation) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneration,
		g.OwnerID,
		g.Service,
		g.Prompt,
		g.UpscaleIndex,
		g.DiscordMessageID,
	)
	if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	g.Status = domain.GenerationUnstarted
	return nil
}

func (r *GenerationRepository) ListByStatus(ctx context.Context, status domain.GenerationStatus) ([]domain.Generation, error) {
	return r.query(ctx, sqlinline.QListGenerationsByStatus, string(status))
}

// StartUnstarted moves every unstarted generation to started and returns them.
func (r *GenerationRepository) StartUnstarted(ctx context.Context) ([]domain.Generation, error) {
	return r.query(ctx, sqlinline.QStartUnstartedGenerations)
}

// Finish marks one started generation finished. An empty id picks the oldest.
func (r *GenerationRepository) Finish(ctx context.Context, id, url, discordMessageID string) (*domain.Generation, error) {
	if id != "" && !validID(id) {
		return nil, fmt.Errorf("generation %s: %w", id, domain.ErrNotFound)
	}
	g, err := scanGeneration(r.sql.QueryRow(ctx, sqlinline.QFinishGeneration, id, url, discordMessageID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("started generation: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return g, nil
}

// CollectFinished moves finished generations to mediaGenerated and returns them.
func (r *GenerationRepository) CollectFinished(ctx context.Context) ([]domain.Generation, error) {
	return r.query(ctx, sqlinline.QCollectFinishedGenerations)
}

func (r *GenerationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Generation, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var out []domain.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanGeneration(row scanner) (*domain.Generation, error) {
	var (
		g      domain.Generation
		status string
	)
	if err := row.Scan(
		&g.ID,
		&g.OwnerID,
		&g.Service,
		&status,
		&g.Prompt,
		&g.UpscaleIndex,
		&g.DiscordMessageID,
		&g.URL,
		&g.CreatedAt,
	); err != nil {
		return nil, err
	}
	g.Status = domain.GenerationStatus(status)
	return &g, nil
}

var _ domain.GenerationRepository = (*GenerationRepository)(nil)
