package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type DispatcherConfig struct {
	Workers       int
	SweepInterval time.Duration
	StuckTimeout  time.Duration
}

// Dispatcher hands claimed analysis jobs to the external worker. A bounded pool
// consumes wake-ups from a task channel; the atomic claim keeps at most one job
// active regardless of pool size.
type Dispatcher struct {
	queue   *QueueService
	handoff JobDispatcher
	cfg     DispatcherConfig
	tasks   chan struct{}
	logger  *slog.Logger
}

func NewDispatcher(queue *QueueService, handoff JobDispatcher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Dispatcher{
		queue:   queue,
		handoff: handoff,
		cfg:     cfg,
		tasks:   make(chan struct{}, 1),
		logger:  logger.With("component", "dispatcher"),
	}
}

// Wake schedules a claim attempt. Pending wake-ups coalesce.
func (d *Dispatcher) Wake() {
	select {
	case d.tasks <- struct{}{}:
	default:
	}
}

// Start runs the pool and the periodic stuck-job sweep until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		"workers", d.cfg.Workers,
		"sweep_interval", d.cfg.SweepInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-d.tasks:
					d.dispatchNext(ctx)
				}
			}
		}()
	}

	d.Wake()

	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			d.Wake()
		}
	}
}

func (d *Dispatcher) dispatchNext(ctx context.Context) {
	if _, err := d.queue.CleanupStuckJobs(ctx, d.cfg.StuckTimeout); err != nil {
		d.logger.Error("stuck job sweep failed", "error", err)
	}

	job, err := d.queue.ClaimNext(ctx)
	if err != nil {
		d.logger.Error("claim failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	if err := d.handoff.Dispatch(ctx, job); err != nil {
		d.logger.Error("dispatch failed", "tender_ref", job.TenderRef, "error", err)
		if err := d.queue.Fail(ctx, job.TenderRef, fmt.Sprintf("dispatch failed: %v", err)); err != nil {
			d.logger.Error("mark dispatch failure", "tender_ref", job.TenderRef, "error", err)
		}
		return
	}

	d.logger.Info("analysis dispatched", "tender_ref", job.TenderRef, "job_id", job.ID)
}
