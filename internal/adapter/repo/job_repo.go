package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/jobs"
	"airemaster/internal/sqlinline"
)

// JobRepository persists generation jobs and implements jobs.Store.
type JobRepository struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository over a marker-checked executor.
func NewJobRepository(sql infra.SQLExecutor) *JobRepository {
	return &JobRepository{sql: sql}
}

// Insert records a freshly submitted job.
func (r *JobRepository) Insert(ctx context.Context, job *jobs.Job) error {
	input := job.Input
	if input == nil {
		input = map[string]any{}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode job input: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.OwnerID,
		string(job.Kind),
		job.Provider,
		job.Model,
		raw,
		job.SubmittedAt,
		job.ExternalJobID,
		job.StatusURL,
		string(job.Status),
		job.ResultReference,
		job.LastError,
		job.Attempts,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*jobs.Job, error) {
	if !validID(id) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return job, nil
}

// UpdateStatus writes one transition if the row still has status from.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, from jobs.Status, u jobs.Update) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJobStatus,
		id,
		string(from),
		string(u.Status),
		u.ResultReference,
		u.LastError,
		u.Attempts,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return jobs.ErrStatusConflict
	}
	return nil
}

// RequestCancel raises the cancel flag on a non-terminal job. Terminal or
// unknown jobs are left alone.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QRequestJobCancel, id); err != nil {
		return fmt.Errorf("request cancel %s: %w", id, err)
	}
	return nil
}

// CancelRequested reads the cancel flag.
func (r *JobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectJobCancelRequested, id).Scan(&requested); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return requested, nil
}

// ClaimOrphaned locks and claims up to limit non-terminal jobs untouched for
// longer than olderThan.
func (r *JobRepository) ClaimOrphaned(ctx context.Context, olderThan time.Duration, limit int) ([]*jobs.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QWorkerClaimOrphanedJobs, int(olderThan.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("claim orphaned jobs: %w", err)
	}
	defer rows.Close()

	var claimed []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claimed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*jobs.Job, error) {
	var (
		job          jobs.Job
		kind, status string
		rawInput     []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&kind,
		&job.Provider,
		&job.Model,
		&rawInput,
		&job.SubmittedAt,
		&job.ExternalJobID,
		&job.StatusURL,
		&status,
		&job.ResultReference,
		&job.LastError,
		&job.Attempts,
		&job.CancelRequested,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = jobs.Kind(kind)
	job.Status = jobs.Status(status)
	if len(rawInput) > 0 {
		if err := json.Unmarshal(rawInput, &job.Input); err != nil {
			return nil, fmt.Errorf("decode job %s input: %w", job.ID, err)
		}
	}
	return &job, nil
}

var _ jobs.Store = (*JobRepository)(nil)
