package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/metrics"
)

var (
	ErrEmptyReference = errors.New("empty tender reference")
	ErrJobNotActive   = errors.New("analysis job is not active")
)

// maxQueueAttempts bounds the re-reads when a concurrent writer changes the job row.
const maxQueueAttempts = 3

type QueueConfig struct {
	StuckTimeout    time.Duration
	DefaultEstimate time.Duration
}

// QueueService owns every AnalysisJob state transition.
type QueueService struct {
	jobs    JobStore
	cfg     QueueConfig
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger

	mu   sync.RWMutex
	wake func()
}

func NewQueueService(jobs JobStore, cfg QueueConfig, m *metrics.Metrics, logger *slog.Logger) *QueueService {
	return &QueueService{
		jobs:    jobs,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		logger:  logger.With("component", "analysis_queue"),
	}
}

// OnChange registers a callback fired whenever the queue may have claimable work.
func (q *QueueService) OnChange(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.wake = fn
}

func (q *QueueService) notify() {
	q.mu.RLock()
	fn := q.wake
	q.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// AddToQueue upserts the job for ref. It never creates a second row for the same reference.
func (q *QueueService) AddToQueue(ctx context.Context, ref string, requestedBy *uuid.UUID) (*domain.QueueResult, error) {
	if ref == "" {
		return nil, ErrEmptyReference
	}

	for attempt := 0; attempt < maxQueueAttempts; attempt++ {
		existing, err := q.jobs.Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load job: %w", err)
		}

		if existing == nil {
			job := &domain.AnalysisJob{
				TenderRef:   ref,
				RequestedBy: requestedBy,
				Status:      domain.JobPending,
				CreatedAt:   q.now().UTC(),
			}
			inserted, err := q.jobs.InsertPending(ctx, job)
			if err != nil {
				return nil, fmt.Errorf("insert job: %w", err)
			}
			if !inserted {
				continue
			}
			q.metrics.IncJob("queued")
			q.logger.Info("analysis queued", "tender_ref", ref, "job_id", job.ID)
			return q.pendingResult(ctx, domain.QueueQueued, job)
		}

		switch existing.Status {
		case domain.JobCompleted:
			return &domain.QueueResult{Outcome: domain.QueueAlreadyCompleted, JobID: existing.ID, Progress: existing.Progress}, nil

		case domain.JobParsing, domain.JobAnalyzing:
			return &domain.QueueResult{Outcome: domain.QueueInProgress, JobID: existing.ID, Progress: existing.Progress}, nil

		case domain.JobPending:
			return q.pendingResult(ctx, domain.QueueQueued, existing)

		case domain.JobFailed:
			requeued, err := q.jobs.Requeue(ctx, ref, requestedBy)
			if err != nil {
				return nil, fmt.Errorf("requeue job: %w", err)
			}
			if !requeued {
				continue
			}
			job := *existing
			job.Status = domain.JobPending
			job.Progress = 0
			q.metrics.IncJob("requeued")
			q.logger.Info("analysis requeued", "tender_ref", ref, "job_id", job.ID)
			return q.pendingResult(ctx, domain.QueueRequeued, &job)

		default:
			return nil, fmt.Errorf("job %s has unknown status %q", ref, existing.Status)
		}
	}

	return nil, fmt.Errorf("queue %s: job changed concurrently", ref)
}

func (q *QueueService) pendingResult(ctx context.Context, outcome domain.QueueOutcome, job *domain.AnalysisJob) (*domain.QueueResult, error) {
	before, err := q.jobs.CountPendingBefore(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("queue position: %w", err)
	}
	position := before + 1

	q.notify()
	return &domain.QueueResult{Outcome: outcome, JobID: job.ID, Position: &position}, nil
}

// QueuePosition returns the 1-based position of a pending job, or nil when ref is not pending.
func (q *QueueService) QueuePosition(ctx context.Context, ref string) (*int, error) {
	job, err := q.jobs.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil || job.Status != domain.JobPending {
		return nil, nil
	}

	before, err := q.jobs.CountPendingBefore(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("queue position: %w", err)
	}
	position := before + 1
	return &position, nil
}

func (q *QueueService) QueueStatus(ctx context.Context) (*domain.QueueStatus, error) {
	status := &domain.QueueStatus{Queued: []domain.QueuedJob{}}

	active, err := q.jobs.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active job: %w", err)
	}
	if active != nil {
		elapsed := q.elapsed(active)
		status.HasActive = true
		status.Active = &domain.ActiveJobStatus{
			Job:                active,
			Elapsed:            elapsed,
			EstimatedRemaining: q.estimateRemaining(active.Progress, elapsed),
		}
	}

	pending, err := q.jobs.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	for i, job := range pending {
		status.Queued = append(status.Queued, domain.QueuedJob{Job: job, Position: i + 1})
	}

	return status, nil
}

func (q *QueueService) elapsed(job *domain.AnalysisJob) time.Duration {
	if job.StartedAt == nil {
		return 0
	}
	elapsed := q.now().Sub(*job.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// estimateRemaining extrapolates linearly from progress, or falls back to the default estimate.
func (q *QueueService) estimateRemaining(progress int, elapsed time.Duration) time.Duration {
	if progress > 0 {
		total := time.Duration(float64(elapsed) / float64(progress) * 100)
		if remaining := total - elapsed; remaining > 0 {
			return remaining
		}
		return 0
	}
	if remaining := q.cfg.DefaultEstimate - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// CleanupStuckJobs fails active jobs started more than timeout ago and returns how many.
func (q *QueueService) CleanupStuckJobs(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := q.now().Add(-timeout).UTC()
	message := fmt.Sprintf("Analysis timed out after %d minutes", int(timeout.Minutes()))

	jobs, err := q.jobs.FailStuck(ctx, cutoff, message)
	if err != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	for _, job := range jobs {
		q.logger.Warn("analysis timed out",
			"tender_ref", job.TenderRef,
			"job_id", job.ID,
			"progress", job.Progress,
		)
	}
	q.metrics.AddStuck(len(jobs))
	q.notify()
	return len(jobs), nil
}

// IsAnalysisRunning sweeps stuck jobs first so a crashed worker never blocks the queue.
func (q *QueueService) IsAnalysisRunning(ctx context.Context) (bool, error) {
	if _, err := q.CleanupStuckJobs(ctx, q.cfg.StuckTimeout); err != nil {
		return false, err
	}
	active, err := q.jobs.Active(ctx)
	if err != nil {
		return false, fmt.Errorf("load active job: %w", err)
	}
	return active != nil, nil
}

// ClaimNext claims the oldest pending job when no analysis is active.
func (q *QueueService) ClaimNext(ctx context.Context) (*domain.AnalysisJob, error) {
	job, err := q.jobs.ClaimNext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job != nil {
		q.metrics.IncJob("claimed")
		q.logger.Info("analysis claimed", "tender_ref", job.TenderRef, "job_id", job.ID)
	}
	return job, nil
}

func (q *QueueService) ReportProgress(ctx context.Context, ref string, status domain.JobStatus, progress int, message string) error {
	if !status.Active() {
		return fmt.Errorf("report progress for %s: status %q is not an active status", ref, status)
	}
	progress = max(0, min(progress, 100))

	ok, err := q.jobs.UpdateProgress(ctx, ref, status, progress, message)
	if err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	if !ok {
		return fmt.Errorf("report progress for %s: %w", ref, ErrJobNotActive)
	}
	q.logger.Debug("analysis progress", "tender_ref", ref, "status", status, "progress", progress)
	return nil
}

func (q *QueueService) Complete(ctx context.Context, ref string) error {
	ok, err := q.jobs.Complete(ctx, ref)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !ok {
		return fmt.Errorf("complete %s: %w", ref, ErrJobNotActive)
	}
	q.metrics.IncJob("completed")
	q.logger.Info("analysis completed", "tender_ref", ref)
	q.notify()
	return nil
}

func (q *QueueService) Fail(ctx context.Context, ref string, message string) error {
	ok, err := q.jobs.Fail(ctx, ref, message)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if !ok {
		return fmt.Errorf("fail %s: %w", ref, ErrJobNotActive)
	}
	q.metrics.IncJob("failed")
	q.logger.Warn("analysis failed", "tender_ref", ref, "error", message)
	q.notify()
	return nil
}
