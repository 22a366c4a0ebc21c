package consumer

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"tender_fetcher/internal/domain"
)

type Runner interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error)
}

// ProgressTracker receives analysis lifecycle events from the external worker.
type ProgressTracker interface {
	ReportProgress(ctx context.Context, ref string, status domain.JobStatus, progress int, message string) error
	Complete(ctx context.Context, ref string) error
	Fail(ctx context.Context, ref string, message string) error
}
