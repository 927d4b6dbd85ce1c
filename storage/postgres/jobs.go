package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

const jobColumns = `id, task_id, document_id, status, started_at, completed_at, error_message, stats, created_at, updated_at`

func scanJob(row rowScanner) (*core.ProcessingJob, error) {
	var (
		j                      core.ProcessingJob
		startedAt, completedAt sql.NullTime
		message                sql.NullString
		stats                  []byte
	)
	err := row.Scan(&j.ID, &j.TaskID, &j.DocumentID, &j.Status, &startedAt, &completedAt, &message, &stats, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	j.ErrorMessage = message.String
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if j.Stats, err = storage.UnmarshalStats(stats); err != nil {
		return nil, err
	}
	return &j, nil
}

// StartJob creates or restarts the job for taskID.
func (s *Store) StartJob(ctx context.Context, taskID, documentID string, startedAt time.Time) (*core.ProcessingJob, error) {
	const q = `
		INSERT INTO processing_jobs (id, task_id, document_id, status, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'running', $4, $4, $4)
		ON CONFLICT (task_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			status = 'running',
			started_at = EXCLUDED.started_at,
			completed_at = NULL,
			error_message = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + jobColumns
	job, err := scanJob(s.conn.QueryRowContext(ctx, q, uuid.NewString(), taskID, documentID, startedAt))
	if err != nil {
		return nil, mapError(err, "start job "+taskID)
	}
	return job, nil
}

// GetJob retrieves a job by task ID.
func (s *Store) GetJob(ctx context.Context, taskID string) (*core.ProcessingJob, error) {
	job, err := scanJob(s.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE task_id = $1`, taskID))
	if err != nil {
		return nil, mapError(err, "job "+taskID)
	}
	return job, nil
}

// ListJobs returns jobs in creation order.
func (s *Store) ListJobs(ctx context.Context, documentID string) ([]*core.ProcessingJob, error) {
	q := `SELECT ` + jobColumns + ` FROM processing_jobs`
	var args []any
	if documentID != "" {
		q += ` WHERE document_id = $1`
		args = append(args, documentID)
	}
	q += ` ORDER BY created_at ASC, task_id ASC`
	return s.queryJobs(ctx, s.conn, q, args...)
}

func (s *Store) queryJobs(ctx context.Context, db querier, q string, args ...any) ([]*core.ProcessingJob, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "list jobs")
	}
	defer rows.Close()

	var out []*core.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, mapError(err, "scan job")
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CompleteJob marks a job completed.
func (s *Store) CompleteJob(ctx context.Context, taskID string, stats core.Stats, completedAt time.Time) error {
	return s.finishJob(ctx, taskID, core.JobCompleted, "", stats, completedAt)
}

// FailJob marks a job failed.
func (s *Store) FailJob(ctx context.Context, taskID, message string, stats core.Stats, completedAt time.Time) error {
	return s.finishJob(ctx, taskID, core.JobFailed, message, stats, completedAt)
}

func (s *Store) finishJob(ctx context.Context, taskID string, status core.JobStatus, message string, stats core.Stats, completedAt time.Time) error {
	encoded, err := storage.MarshalStats(stats)
	if err != nil {
		return err
	}
	const q = `
		UPDATE processing_jobs
		SET status = $2, error_message = $3, stats = $4::jsonb, completed_at = $5, updated_at = $5
		WHERE task_id = $1
	`
	res, err := s.conn.ExecContext(ctx, q, taskID, string(status), nullString(message), string(encoded), completedAt)
	if err != nil {
		return mapError(err, "job "+taskID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapError(sql.ErrNoRows, "job "+taskID)
	}
	return nil
}

// FailStaleJobs force-fails running jobs started before cutoff.
func (s *Store) FailStaleJobs(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]*core.ProcessingJob, error) {
	const q = `
		UPDATE processing_jobs
		SET status = 'failed', error_message = $2, completed_at = $3, updated_at = $3
		WHERE status = 'running' AND started_at < $1
		RETURNING ` + jobColumns
	return s.queryJobs(ctx, s.conn, q, cutoff, message, now)
}
