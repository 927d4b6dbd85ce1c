package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
)

// StartJob creates or restarts the job for taskID.
func (s *Store) StartJob(ctx context.Context, taskID, documentID string, startedAt time.Time) (*core.ProcessingJob, error) {
	var job *core.ProcessingJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = s.readJob(tx, makeJobKey(taskID))
		if err != nil {
			return err
		}
		if job == nil {
			job = &core.ProcessingJob{
				ID:        uuid.NewString(),
				TaskID:    taskID,
				CreatedAt: startedAt,
			}
			if err := tx.Set(makeJobCreatedKey(job.CreatedAt, taskID), []byte(taskID)); err != nil {
				return err
			}
		}
		job.DocumentID = documentID
		job.Status = core.JobRunning
		job.StartedAt = &startedAt
		job.CompletedAt = nil
		job.ErrorMessage = ""
		job.UpdatedAt = startedAt
		if err := s.writeJob(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by task ID.
func (s *Store) GetJob(ctx context.Context, taskID string) (*core.ProcessingJob, error) {
	var result *core.ProcessingJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = s.readJob(tx, makeJobKey(taskID))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListJobs returns jobs in creation order.
func (s *Store) ListJobs(ctx context.Context, documentID string) ([]*core.ProcessingJob, error) {
	var results []*core.ProcessingJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(jobCreatedPrefix), true, func(item *badger.Item) (bool, error) {
			taskID, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}
			job, err := s.readJob(tx, makeJobKey(string(taskID)))
			if err != nil {
				return false, err
			}
			if job != nil && (documentID == "" || job.DocumentID == documentID) {
				results = append(results, job)
			}
			return true, nil
		})
	}, false)
	return results, err
}

// CompleteJob marks a job completed.
func (s *Store) CompleteJob(ctx context.Context, taskID string, stats core.Stats, completedAt time.Time) error {
	return s.updateJob(taskID, func(job *core.ProcessingJob) {
		job.Status = core.JobCompleted
		job.CompletedAt = &completedAt
		job.ErrorMessage = ""
		job.Stats = stats
		job.UpdatedAt = completedAt
	})
}

// FailJob marks a job failed.
func (s *Store) FailJob(ctx context.Context, taskID, message string, stats core.Stats, completedAt time.Time) error {
	return s.updateJob(taskID, func(job *core.ProcessingJob) {
		job.Status = core.JobFailed
		job.CompletedAt = &completedAt
		job.ErrorMessage = message
		job.Stats = stats
		job.UpdatedAt = completedAt
	})
}

// FailStaleJobs force-fails running jobs started before cutoff.
func (s *Store) FailStaleJobs(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]*core.ProcessingJob, error) {
	var failed []*core.ProcessingJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var stale []*core.ProcessingJob
		err := scanPrefix(tx, []byte(jobPrefix), true, func(item *badger.Item) (bool, error) {
			err := item.Value(func(val []byte) error {
				job, err := storage.UnmarshalJob(val)
				if err != nil {
					return err
				}
				if job.Status == core.JobRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
					stale = append(stale, job)
				}
				return nil
			})
			return err == nil, err
		})
		if err != nil {
			return err
		}

		for _, job := range stale {
			job.Status = core.JobFailed
			job.CompletedAt = &now
			job.ErrorMessage = message
			job.UpdatedAt = now
			if err := s.writeJob(tx, job); err != nil {
				return err
			}
		}
		failed = stale
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (s *Store) updateJob(taskID string, update func(*core.ProcessingJob)) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		job, err := s.readJob(tx, makeJobKey(taskID))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		update(job)
		if err := s.writeJob(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func (s *Store) readJob(tx *badger.Txn, key []byte) (*core.ProcessingJob, error) {
	return getJSON(tx, key, storage.UnmarshalJob)
}

func (s *Store) writeJob(tx *badger.Txn, job *core.ProcessingJob) error {
	value, err := storage.MarshalJob(job)
	if err != nil {
		return err
	}
	return tx.Set(makeJobKey(job.TaskID), value)
}
