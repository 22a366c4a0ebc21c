package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tender_fetcher/internal/domain"
)

type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionSkip    Decision = "skip"
)

// Resolution is the outcome of a dedup check. SupersededID is set when a
// lower-priority entry was overridden.
type Resolution struct {
	Decision     Decision
	Existing     *domain.ProcessingLog
	SupersededID *uuid.UUID
}

// Resolver decides whether a URL should be processed and is the only writer of
// the processing log.
type Resolver struct {
	logs   ProcessingLogStore
	now    func() time.Time
	logger *slog.Logger
}

func NewResolver(logs ProcessingLogStore, logger *slog.Logger) *Resolver {
	return &Resolver{
		logs:   logs,
		now:    time.Now,
		logger: logger.With("component", "resolver"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, url string, priority domain.Priority, requestedBy *uuid.UUID, source string) (*Resolution, error) {
	existing, err := r.logs.LatestActive(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("load processing log: %w", err)
	}

	if existing == nil {
		return &Resolution{Decision: DecisionProceed}, nil
	}

	if priority.Rank() > existing.Priority.Rank() {
		reason := fmt.Sprintf("reprocessed with higher priority (%s)", priority)
		if err := r.logs.MarkSuperseded(ctx, existing.ID, reason); err != nil {
			return nil, fmt.Errorf("supersede entry: %w", err)
		}
		r.logger.Info("superseding earlier run",
			"url", url,
			"existing_priority", existing.Priority,
			"priority", priority,
		)
		id := existing.ID
		return &Resolution{Decision: DecisionProceed, Existing: existing, SupersededID: &id}, nil
	}

	msg := fmt.Sprintf("Duplicate tender (existing priority: %s, new: %s)", existing.Priority, priority)
	skipped := &domain.ProcessingLog{
		TenderURL:    url,
		Priority:     priority,
		Status:       domain.ProcessingSkipped,
		ErrorMessage: &msg,
		RequestedBy:  requestedBy,
		Source:       source,
		ProcessedAt:  r.now().UTC(),
	}
	if err := r.logs.Insert(ctx, skipped); err != nil {
		return nil, fmt.Errorf("record skip: %w", err)
	}

	r.logger.Info("skipping duplicate",
		"url", url,
		"existing_priority", existing.Priority,
		"priority", priority,
	)
	return &Resolution{Decision: DecisionSkip, Existing: existing}, nil
}

// RecordSuccess appends the final success entry for a run.
func (r *Resolver) RecordSuccess(ctx context.Context, req domain.RunRequest, runID uuid.UUID) error {
	entry := &domain.ProcessingLog{
		TenderURL:   req.URL,
		Priority:    req.Priority,
		Status:      domain.ProcessingSuccess,
		ScrapeRunID: &runID,
		RequestedBy: req.RequestedBy,
		Source:      req.Source,
		ProcessedAt: r.now().UTC(),
	}
	if err := r.logs.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// RecordFailure appends a failed entry carrying the run error.
func (r *Resolver) RecordFailure(ctx context.Context, req domain.RunRequest, runID *uuid.UUID, cause error) error {
	msg := cause.Error()
	entry := &domain.ProcessingLog{
		TenderURL:    req.URL,
		Priority:     req.Priority,
		Status:       domain.ProcessingFailed,
		ErrorMessage: &msg,
		ScrapeRunID:  runID,
		RequestedBy:  req.RequestedBy,
		Source:       req.Source,
		ProcessedAt:  r.now().UTC(),
	}
	if err := r.logs.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}
