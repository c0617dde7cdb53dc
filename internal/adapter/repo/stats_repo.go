package repo

import (
	"context"
	"fmt"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/sqlinline"
)

// StatsRepository aggregates job and media counters.
type StatsRepository struct {
	sql infra.SQLExecutor
}

func NewStatsRepository(sql infra.SQLExecutor) *StatsRepository {
	return &StatsRepository{sql: sql}
}

func (r *StatsRepository) Summary(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{JobsByStatus: map[string]int{}}

	rows, err := r.sql.Query(ctx, sqlinline.QJobCountsByStatus)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.JobsByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.sql.QueryRow(ctx, sqlinline.QMediaTotal).Scan(&stats.MediaTotal); err != nil {
		return nil, fmt.Errorf("media total: %w", err)
	}
	if err := r.sql.QueryRow(ctx, sqlinline.QQueuedGenerations).Scan(&stats.Generations); err != nil {
		return nil, fmt.Errorf("queued generations: %w", err)
	}
	return stats, nil
}

var _ domain.StatsRepository = (*StatsRepository)(nil)
