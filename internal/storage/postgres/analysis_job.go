package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tender_fetcher/internal/domain"
)

const jobColumns = `id, tender_ref, requested_by, status, progress, status_message, error_message,
	created_at, started_at, completed_at`

// claimLockKey serializes claimers across processes sharing the database.
const claimLockKey int64 = 0x7465_6e64_6572

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Get(ctx context.Context, ref string) (*domain.AnalysisJob, error) {
	return s.getOne(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE tender_ref = $1`, ref)
}

func (s *JobStore) Active(ctx context.Context) (*domain.AnalysisJob, error) {
	return s.getOne(ctx, `
		SELECT `+jobColumns+` FROM analysis_jobs
		WHERE status IN ('parsing', 'analyzing')
		ORDER BY started_at
		LIMIT 1`)
}

func (s *JobStore) InsertPending(ctx context.Context, job *domain.AnalysisJob) (bool, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = domain.JobPending

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, tender_ref, requested_by, status, progress, created_at)
		VALUES ($1, $2, $3, 'pending', 0, $4)
		ON CONFLICT (tender_ref) DO NOTHING`,
		job.ID, job.TenderRef, job.RequestedBy, job.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert analysis job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *JobStore) Requeue(ctx context.Context, ref string, requestedBy *uuid.UUID) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE analysis_jobs SET
			status = 'pending',
			progress = 0,
			status_message = NULL,
			error_message = NULL,
			started_at = NULL,
			completed_at = NULL,
			requested_by = COALESCE($2, requested_by)
		WHERE tender_ref = $1 AND status = 'failed'`, ref, requestedBy)
	if err != nil {
		return false, fmt.Errorf("requeue analysis job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *JobStore) CountPendingBefore(ctx context.Context, job *domain.AnalysisJob) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `
		SELECT COUNT(*) FROM analysis_jobs
		WHERE status = 'pending'
			AND (created_at < $1 OR (created_at = $1 AND id < $2))`,
		job.CreatedAt, job.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func (s *JobStore) ListPending(ctx context.Context) ([]domain.AnalysisJob, error) {
	var jobs []domain.AnalysisJob
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &jobs, `
		SELECT `+jobColumns+` FROM analysis_jobs
		WHERE status = 'pending'
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	return jobs, nil
}

// FailStuck fails every active job started before the cutoff, or never stamped.
func (s *JobStore) FailStuck(ctx context.Context, startedBefore time.Time, message string) ([]domain.AnalysisJob, error) {
	var jobs []domain.AnalysisJob
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &jobs, `
		UPDATE analysis_jobs SET
			status = 'failed',
			error_message = $2,
			completed_at = NOW()
		WHERE status IN ('parsing', 'analyzing')
			AND (started_at IS NULL OR started_at < $1)
		RETURNING `+jobColumns, startedBefore, message)
	if err != nil {
		return nil, fmt.Errorf("fail stuck jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNext moves the oldest pending job to parsing inside its own transaction.
// An advisory lock serializes claimers and the partial unique index on active
// jobs rejects a second active row.
func (s *JobStore) ClaimNext(ctx context.Context) (*domain.AnalysisJob, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", claimLockKey); err != nil {
		return nil, fmt.Errorf("acquire claim lock: %w", err)
	}

	var job domain.AnalysisJob
	err = tx.GetContext(ctx, &job, `
		UPDATE analysis_jobs SET
			status = 'parsing',
			progress = 0,
			status_message = 'Claimed for analysis',
			error_message = NULL,
			started_at = NOW(),
			completed_at = NULL
		WHERE id = (
			SELECT id FROM analysis_jobs
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND NOT EXISTS (
			SELECT 1 FROM analysis_jobs WHERE status IN ('parsing', 'analyzing')
		)
		RETURNING `+jobColumns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if isUniqueViolation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return &job, nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, ref string, status domain.JobStatus, progress int, message string) (bool, error) {
	return s.execOne(ctx, `
		UPDATE analysis_jobs SET status = $2, progress = $3, status_message = $4
		WHERE tender_ref = $1 AND status IN ('parsing', 'analyzing')`,
		ref, status, progress, message)
}

func (s *JobStore) Complete(ctx context.Context, ref string) (bool, error) {
	return s.execOne(ctx, `
		UPDATE analysis_jobs SET
			status = 'completed',
			progress = 100,
			status_message = 'Analysis completed',
			completed_at = NOW()
		WHERE tender_ref = $1 AND status IN ('parsing', 'analyzing')`, ref)
}

func (s *JobStore) Fail(ctx context.Context, ref string, message string) (bool, error) {
	return s.execOne(ctx, `
		UPDATE analysis_jobs SET
			status = 'failed',
			error_message = $2,
			completed_at = NOW()
		WHERE tender_ref = $1 AND status IN ('parsing', 'analyzing')`, ref, message)
}

func (s *JobStore) getOne(ctx context.Context, query string, args ...interface{}) (*domain.AnalysisJob, error) {
	var job domain.AnalysisJob
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &job, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select analysis job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) execOne(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update analysis job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
