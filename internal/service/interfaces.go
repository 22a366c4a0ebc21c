package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tender_fetcher/internal/domain"
)

type ProcessingLogStore interface {
	// LatestActive returns the newest non-superseded successful entry for url, or nil.
	LatestActive(ctx context.Context, url string) (*domain.ProcessingLog, error)
	Insert(ctx context.Context, entry *domain.ProcessingLog) error
	MarkSuperseded(ctx context.Context, id uuid.UUID, reason string) error
}

type RunStore interface {
	CreateRun(ctx context.Context, run *domain.ScrapeRun) error
}

type SnapshotStore interface {
	Save(ctx context.Context, snap *domain.TenderSnapshot) error
	// GetPrevious returns the newest snapshot of reference scraped no later than
	// snap, excluding snap itself, or nil.
	GetPrevious(ctx context.Context, reference string, snap *domain.TenderSnapshot) (*domain.TenderSnapshot, error)
	AppendDocumentChange(ctx context.Context, id uuid.UUID, change domain.DocumentChange) error
	ListRecent(ctx context.Context, since time.Time) ([]domain.TenderSnapshot, error)
}

type ChangeStore interface {
	ReplaceForPair(ctx context.Context, oldID, newID uuid.UUID, records []domain.ChangeRecord) error
	ListByReference(ctx context.Context, reference string) ([]domain.ChangeRecord, error)
}

type JobStore interface {
	Get(ctx context.Context, ref string) (*domain.AnalysisJob, error)
	// InsertPending inserts job unless one already exists for its ref.
	InsertPending(ctx context.Context, job *domain.AnalysisJob) (bool, error)
	// Requeue moves a failed job back to pending, keeping its created_at.
	Requeue(ctx context.Context, ref string, requestedBy *uuid.UUID) (bool, error)
	CountPendingBefore(ctx context.Context, job *domain.AnalysisJob) (int, error)
	Active(ctx context.Context) (*domain.AnalysisJob, error)
	ListPending(ctx context.Context) ([]domain.AnalysisJob, error)
	FailStuck(ctx context.Context, startedBefore time.Time, message string) ([]domain.AnalysisJob, error)
	// ClaimNext atomically moves the oldest pending job to parsing when no job is
	// active. It returns nil when nothing was claimed.
	ClaimNext(ctx context.Context) (*domain.AnalysisJob, error)
	UpdateProgress(ctx context.Context, ref string, status domain.JobStatus, progress int, message string) (bool, error)
	Complete(ctx context.Context, ref string) (bool, error)
	Fail(ctx context.Context, ref string, message string) (bool, error)
}

type ListingSource interface {
	FetchListing(ctx context.Context, url string) (*domain.Listing, error)
	FetchDetail(ctx context.Context, url string) (*domain.TenderSnapshot, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FollowUpPolicy decides whether a tender should be analysed after it is persisted.
type FollowUpPolicy interface {
	NeedsFollowUp(ctx context.Context, reference string) (bool, error)
}

// FolderAssigner pre-assigns storage for listing tenders and returns the release date.
type FolderAssigner interface {
	Assign(ctx context.Context, listing *domain.Listing) (time.Time, error)
}

type JobDispatcher interface {
	Dispatch(ctx context.Context, job *domain.AnalysisJob) error
}

type RunNotifier interface {
	PublishRunCompleted(ctx context.Context, result *domain.RunResult) error
}

type CachePurger interface {
	Purge()
}

// AnalysisEnqueuer adds a tender to the analysis queue.
type AnalysisEnqueuer interface {
	AddToQueue(ctx context.Context, ref string, requestedBy *uuid.UUID) (*domain.QueueResult, error)
}
