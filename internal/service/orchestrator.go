package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/metrics"
	"tender_fetcher/internal/source/portal"
)

type OrchestratorConfig struct {
	Workers int
}

// OrchestratorDeps wires the orchestrator. Folders, Notifier, Cache, Queue and
// FollowUp are optional.
type OrchestratorDeps struct {
	Resolver  *Resolver
	Source    ListingSource
	Runs      RunStore
	Snapshots SnapshotStore
	Detector  *Detector
	TxManager TransactionManager
	Queue     AnalysisEnqueuer
	FollowUp  FollowUpPolicy
	Folders   FolderAssigner
	Notifier  RunNotifier
	Cache     CachePurger
	Metrics   *metrics.Metrics
}

type Orchestrator struct {
	OrchestratorDeps
	cfg    OrchestratorConfig
	now    func() time.Time
	logger *slog.Logger
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		OrchestratorDeps: deps,
		cfg:              cfg,
		now:              time.Now,
		logger:           logger.With("component", "orchestrator"),
	}
}

type detailResult struct {
	tender domain.ListingTender
	snap   *domain.TenderSnapshot
	err    error
}

// Run scrapes one listing page end to end. Run-level failures are reported through
// the result status; tender-level failures land in Removed and the run continues.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	start := o.now()
	result := &domain.RunResult{URL: req.URL, Removed: []domain.RemovedTender{}}
	logger := o.logger.With("url", req.URL, "priority", req.Priority, "source", req.Source)

	if !req.SkipDedup {
		resolution, err := o.Resolver.Resolve(ctx, req.URL, req.Priority, req.RequestedBy, req.Source)
		if err != nil {
			return o.fail(ctx, req, result, start, fmt.Errorf("resolve duplicate: %w", err), logger), nil
		}
		if resolution.Decision == DecisionSkip {
			result.Status = domain.RunSkipped
			result.Duration = o.now().Sub(start)
			o.Metrics.IncRun(string(domain.RunSkipped))
			logger.Info("scrape run skipped")
			return result, nil
		}
	}

	logger.Info("starting scrape run")

	if err := o.scrape(ctx, req, result, start, logger); err != nil {
		return o.fail(ctx, req, result, start, err, logger), nil
	}

	result.Status = domain.RunSuccess
	result.Duration = o.now().Sub(start)

	if err := o.Resolver.RecordSuccess(ctx, req, result.RunID); err != nil {
		logger.Error("record run success", "error", err)
	}
	if o.Cache != nil {
		o.Cache.Purge()
	}
	o.Metrics.IncRun(string(domain.RunSuccess))
	o.notify(ctx, result, logger)

	logger.Info("scrape run completed",
		"run_id", result.RunID,
		"succeeded", result.Succeeded,
		"removed", len(result.Removed),
		"changed", result.Changed,
		"queued", result.Queued,
		"duration", result.Duration,
	)
	return result, nil
}

func (o *Orchestrator) fail(ctx context.Context, req domain.RunRequest, result *domain.RunResult, start time.Time, cause error, logger *slog.Logger) *domain.RunResult {
	result.Status = domain.RunFailed
	result.Error = cause.Error()
	result.Duration = o.now().Sub(start)

	var runID *uuid.UUID
	if result.RunID != uuid.Nil {
		id := result.RunID
		runID = &id
	}

	// Record even when the run was cancelled.
	bg := context.WithoutCancel(ctx)
	if err := o.Resolver.RecordFailure(bg, req, runID, cause); err != nil {
		logger.Error("record run failure", "error", err)
	}
	o.Metrics.IncRun(string(domain.RunFailed))
	o.notify(bg, result, logger)

	logger.Error("scrape run failed", "run_id", result.RunID, "error", cause, "succeeded", result.Succeeded)
	return result
}

func (o *Orchestrator) scrape(ctx context.Context, req domain.RunRequest, result *domain.RunResult, start time.Time, logger *slog.Logger) error {
	listing, err := o.Source.FetchListing(ctx, req.URL)
	if err != nil {
		return fmt.Errorf("fetch listing: %w", err)
	}

	run := &domain.ScrapeRun{
		ID:          uuid.New(),
		SourceURL:   req.URL,
		RunAt:       start.UTC(),
		ReleaseDate: o.releaseDate(ctx, listing, start, logger),
		ListingDate: listing.Date,
		TenderCount: listing.TenderCount(),
		Categories:  listing.Categories,
	}
	for i := range run.Categories {
		run.Categories[i].ID = uuid.New()
		run.Categories[i].RunID = run.ID
		run.Categories[i].TenderCount = len(run.Categories[i].Tenders)
	}

	err = o.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return o.Runs.CreateRun(txCtx, run)
	})
	if err != nil {
		return fmt.Errorf("create scrape run: %w", err)
	}
	result.RunID = run.ID

	logger.Info("listing parsed",
		"run_id", run.ID,
		"categories", len(run.Categories),
		"tenders", run.TenderCount,
		"release_date", run.ReleaseDate.Format(time.DateOnly),
	)

	for i := range run.Categories {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}
		o.scrapeCategory(ctx, req, run, &run.Categories[i], result, logger)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

func (o *Orchestrator) releaseDate(ctx context.Context, listing *domain.Listing, runAt time.Time, logger *slog.Logger) time.Time {
	if o.Folders != nil {
		date, err := o.Folders.Assign(ctx, listing)
		if err != nil {
			logger.Warn("folder assignment failed", "error", err)
		} else if !date.IsZero() {
			return date
		}
	}
	if date, ok := portal.ParseListingDate(listing.Date); ok {
		return date
	}
	y, m, d := runAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// scrapeCategory fans detail fetches out to the pool and persists results on the
// calling goroutine in completion order.
func (o *Orchestrator) scrapeCategory(ctx context.Context, req domain.RunRequest, run *domain.ScrapeRun, cat *domain.TenderCategory, result *domain.RunResult, logger *slog.Logger) {
	if len(cat.Tenders) == 0 {
		return
	}
	logger.Debug("scraping category", "category", cat.Name, "tenders", len(cat.Tenders))

	for res := range o.fetchDetails(ctx, cat.Tenders) {
		if res.err == nil {
			res.err = o.persist(ctx, req, run, cat, res.tender, res.snap, result, logger)
		}
		if res.err != nil {
			o.Metrics.IncRemoved()
			result.Removed = append(result.Removed, domain.RemovedTender{
				TenderID: res.tender.TenderID,
				URL:      res.tender.URL,
				Category: cat.Name,
				Reason:   res.err.Error(),
			})
			logger.Warn("tender removed",
				"category", cat.Name,
				"tender_id", res.tender.TenderID,
				"tender_url", res.tender.URL,
				"error", res.err,
			)
			continue
		}
		result.Succeeded++
		o.Metrics.IncScraped()
	}
}

func (o *Orchestrator) fetchDetails(ctx context.Context, tenders []domain.ListingTender) <-chan detailResult {
	jobs := make(chan domain.ListingTender)
	results := make(chan detailResult)

	var wg sync.WaitGroup
	for i := 0; i < min(o.cfg.Workers, len(tenders)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tender := range jobs {
				snap, err := o.Source.FetchDetail(ctx, tender.URL)
				select {
				case results <- detailResult{tender: tender, snap: snap, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tender := range tenders {
			select {
			case jobs <- tender:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (o *Orchestrator) persist(ctx context.Context, req domain.RunRequest, run *domain.ScrapeRun, cat *domain.TenderCategory, tender domain.ListingTender, snap *domain.TenderSnapshot, result *domain.RunResult, logger *slog.Logger) error {
	snap.ID = uuid.New()
	snap.RunID = run.ID
	snap.CategoryID = cat.ID
	if snap.TenderID == "" || snap.TenderID == domain.NotAvailable {
		snap.TenderID = tender.TenderID
	}
	ref := snap.Reference()

	err := o.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.Snapshots.Save(txCtx, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The snapshot stays committed when change detection fails.
	changes, err := o.detectChanges(ctx, req, run, ref, snap)
	if err != nil {
		logger.Warn("change detection failed",
			"reference", ref,
			"snapshot_id", snap.ID,
			"error", err,
		)
	} else if len(changes) > 0 {
		result.Changed++
		o.Metrics.AddChanges(string(changes[0].Type), len(changes))
	}

	o.followUp(ctx, req, ref, result, logger)
	return nil
}

// detectChanges records field changes against the previous snapshot and appends
// a history entry to the new one, all in one transaction.
func (o *Orchestrator) detectChanges(ctx context.Context, req domain.RunRequest, run *domain.ScrapeRun, ref string, snap *domain.TenderSnapshot) ([]domain.ChangeRecord, error) {
	var (
		changes []domain.ChangeRecord
		entry   domain.DocumentChange
	)
	err := o.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		changes, err = o.Detector.Apply(txCtx, ref, snap, req.RequestedBy, fmt.Sprintf("scrape run %s", run.ID))
		if err != nil {
			return fmt.Errorf("detect changes: %w", err)
		}
		if len(changes) == 0 {
			return nil
		}

		entry = HistoryEntry(changes)
		if err := o.Snapshots.AppendDocumentChange(txCtx, snap.ID, entry); err != nil {
			return fmt.Errorf("append document change: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		snap.DocumentChanges = append(snap.DocumentChanges, entry)
	}
	return changes, nil
}

// followUp enqueues watchlisted tenders for analysis. Failures here never fail the tender.
func (o *Orchestrator) followUp(ctx context.Context, req domain.RunRequest, ref string, result *domain.RunResult, logger *slog.Logger) {
	if ref == "" || o.FollowUp == nil || o.Queue == nil {
		return
	}

	needed, err := o.FollowUp.NeedsFollowUp(ctx, ref)
	if err != nil {
		logger.Warn("follow-up check failed", "reference", ref, "error", err)
		return
	}
	if !needed {
		return
	}

	queued, err := o.Queue.AddToQueue(ctx, ref, req.RequestedBy)
	if err != nil {
		logger.Warn("queue analysis failed", "reference", ref, "error", err)
		return
	}
	result.Queued++
	logger.Info("analysis requested", "reference", ref, "outcome", queued.Outcome)
}

func (o *Orchestrator) notify(ctx context.Context, result *domain.RunResult, logger *slog.Logger) {
	if o.Notifier == nil {
		return
	}
	if err := o.Notifier.PublishRunCompleted(ctx, result); err != nil {
		logger.Warn("publish run completed", "run_id", result.RunID, "error", err)
	}
}
