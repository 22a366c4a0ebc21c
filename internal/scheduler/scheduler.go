package scheduler

import (
	"context"
	"log/slog"
	"time"

	"tender_fetcher/internal/domain"
)

// Runner runs one scrape of a listing page.
type Runner interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error)
}

// Scheduler polls the configured listing pages at low priority, so manual and
// email-triggered runs always win dedup conflicts.
type Scheduler struct {
	runner     Runner
	urls       []string
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(runner Runner, urls []string, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		urls:       urls,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "listings", len(s.urls))

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, url := range s.urls {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, url)
	}
}

func (s *Scheduler) run(ctx context.Context, url string) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	result, err := s.runner.Run(runCtx, domain.RunRequest{
		URL:      url,
		Priority: domain.PriorityLow,
		Source:   "scheduler",
	})
	if err != nil {
		s.logger.Error("scheduled run failed", "url", url, "error", err)
		return
	}
	s.logger.Debug("scheduled run finished", "url", url, "status", result.Status)
}
