package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/sqlinline"
)

// MediaRepository implements domain.MediaRepository.
type MediaRepository struct {
	sql infra.SQLExecutor
}

func NewMediaRepository(sql infra.SQLExecutor) *MediaRepository {
	return &MediaRepository{sql: sql}
}

// Insert stores m and fills in its generated id and creation time.
func (r *MediaRepository) Insert(ctx context.Context, m *domain.Media) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertMedia,
		m.OwnerID,
		string(m.Type),
		m.Extension(),
		m.Prompt,
		m.Service,
		m.Size,
		m.UpscaleIndex,
		m.DiscordMessageID,
		m.JobID,
	)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) && m.JobID != "" {
			return fmt.Errorf("media for job %s: %w", m.JobID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (r *MediaRepository) Get(ctx context.Context, ownerID, id string) (*domain.Media, error) {
	if !validID(id) {
		return nil, fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
	}
	m, err := scanMedia(r.sql.QueryRow(ctx, sqlinline.QSelectMediaByID, id, ownerID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// List returns the owner's media, newest first.
func (r *MediaRepository) List(ctx context.Context, ownerID string) ([]domain.Media, error) {
	return r.query(ctx, sqlinline.QListMediaByOwner, ownerID)
}

func (r *MediaRepository) ListByIDs(ctx context.Context, ownerID string, ids []string) ([]domain.Media, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return r.query(ctx, sqlinline.QListMediaByIDs, ownerID, valid)
}

// SoftDelete hides a medium; the stored object is kept.
func (r *MediaRepository) SoftDelete(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSoftDeleteMedia, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete media %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *MediaRepository) query(ctx context.Context, query string, args ...any) ([]domain.Media, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var media []domain.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		media = append(media, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return media, nil
}

func scanMedia(row scanner) (*domain.Media, error) {
	var (
		m         domain.Media
		mediaType string
	)
	if err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&mediaType,
		&m.FileExtension,
		&m.Deleted,
		&m.Prompt,
		&m.Service,
		&m.Size,
		&m.UpscaleIndex,
		&m.DiscordMessageID,
		&m.JobID,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Type = domain.MediaType(mediaType)
	return &m, nil
}

var _ domain.MediaRepository = (*MediaRepository)(nil)
