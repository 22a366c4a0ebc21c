package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tender_fetcher/internal/consumer"
	"tender_fetcher/internal/metrics"
	"tender_fetcher/internal/scheduler"
	"tender_fetcher/internal/service"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, trigger consumer and analysis dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rabbitMQ, err := a.connectPublisher()
			if err != nil {
				a.logger.Error("failed to connect to rabbitmq", "error", err)
				return err
			}
			defer rabbitMQ.Close()

			orchestrator := a.orchestrator(rabbitMQ)

			dispatcher := service.NewDispatcher(a.queue, rabbitMQ, service.DispatcherConfig{
				Workers:       a.cfg.Analysis.Dispatchers,
				SweepInterval: a.cfg.Analysis.SweepInterval,
				StuckTimeout:  a.cfg.Analysis.StuckTimeout,
			}, a.logger)
			a.queue.OnChange(dispatcher.Wake)

			handler := consumer.NewHandler(orchestrator, a.queue, a.cfg.Scraper.RunTimeout, a.logger)
			cons, err := consumer.New(consumer.Config{
				URL:          a.cfg.RabbitMQ.URL,
				TriggerQueue: a.cfg.RabbitMQ.TriggerQueue,
				EventsQueue:  a.cfg.RabbitMQ.EventsQueue,
				Prefetch:     a.cfg.RabbitMQ.Prefetch,
			}, handler, a.logger)
			if err != nil {
				a.logger.Error("failed to start consumer", "error", err)
				return err
			}
			defer cons.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				select {
				case sig := <-sigCh:
					a.logger.Info("received shutdown signal", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			components := map[string]func(context.Context) error{
				"dispatcher": dispatcher.Start,
				"consumer":   cons.Start,
			}
			if len(a.cfg.Scraper.ListingURLs) > 0 {
				sched := scheduler.NewScheduler(orchestrator, a.cfg.Scraper.ListingURLs,
					a.cfg.Scraper.Interval, a.cfg.Scraper.RunTimeout, a.logger)
				components["scheduler"] = sched.Start
			}
			if a.cfg.MetricsAddr != "" {
				components["metrics"] = func(ctx context.Context) error {
					return serveMetrics(ctx, a.cfg.MetricsAddr, a.metrics, a.logger)
				}
			}

			a.logger.Info("starting tender fetcher",
				"listings", len(a.cfg.Scraper.ListingURLs),
				"interval", a.cfg.Scraper.Interval,
				"workers", a.cfg.Scraper.Workers,
				"dispatchers", a.cfg.Analysis.Dispatchers,
			)

			return runComponents(ctx, components, a.logger)
		},
	}
}

// runComponents runs every component until ctx ends. The first failure stops the rest.
func runComponents(ctx context.Context, components map[string]func(context.Context) error, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, start := range components {
		g.Go(func() error {
			err := start(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error("component failed", "component", name, "error", err)
			return fmt.Errorf("%s: %w", name, err)
		})
	}

	err := g.Wait()
	logger.Info("tender fetcher stopped")
	return err
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return ctx.Err()
}
