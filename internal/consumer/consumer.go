package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/service"
)

var ErrInvalidMessage = errors.New("invalid message")

// TriggerMessage asks for a scrape of a listing page, typically sent by the
// email listener when a daily tender mail arrives.
type TriggerMessage struct {
	URL         string     `json:"url"`
	Priority    string     `json:"priority"`
	RequestedBy *uuid.UUID `json:"requested_by,omitempty"`
	Source      string     `json:"source"`
	SkipDedup   bool       `json:"skip_dedup"`
}

// AnalysisEvent reports progress of an analysis job from the external worker.
type AnalysisEvent struct {
	TenderRef string `json:"tender_ref"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// Handler decodes inbound messages and drives the orchestrator and analysis queue.
type Handler struct {
	runner     Runner
	tracker    ProgressTracker
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewHandler(runner Runner, tracker ProgressTracker, runTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		runner:     runner,
		tracker:    tracker,
		runTimeout: runTimeout,
		logger:     logger.With("component", "consumer"),
	}
}

func (h *Handler) HandleTrigger(ctx context.Context, body []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg.URL = strings.TrimSpace(msg.URL)
	if msg.URL == "" {
		return fmt.Errorf("%w: missing url", ErrInvalidMessage)
	}
	if msg.Source == "" {
		msg.Source = "email"
	}

	runCtx, cancel := context.WithTimeout(ctx, h.runTimeout)
	defer cancel()

	result, err := h.runner.Run(runCtx, domain.RunRequest{
		URL:         msg.URL,
		Priority:    domain.ParsePriority(msg.Priority),
		SkipDedup:   msg.SkipDedup,
		RequestedBy: msg.RequestedBy,
		Source:      msg.Source,
	})
	if err != nil {
		return fmt.Errorf("run scrape: %w", err)
	}

	h.logger.Info("trigger handled",
		"url", msg.URL,
		"status", result.Status,
		"run_id", result.RunID,
	)
	return nil
}

func (h *Handler) HandleEvent(ctx context.Context, body []byte) error {
	var msg AnalysisEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.TenderRef == "" {
		return fmt.Errorf("%w: missing tender_ref", ErrInvalidMessage)
	}

	var err error
	switch status := domain.JobStatus(msg.Status); status {
	case domain.JobParsing, domain.JobAnalyzing:
		err = h.tracker.ReportProgress(ctx, msg.TenderRef, status, msg.Progress, msg.Message)
	case domain.JobCompleted:
		err = h.tracker.Complete(ctx, msg.TenderRef)
	case domain.JobFailed:
		reason := msg.Error
		if reason == "" {
			reason = msg.Message
		}
		if reason == "" {
			reason = "analysis failed"
		}
		err = h.tracker.Fail(ctx, msg.TenderRef, reason)
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidMessage, msg.Status)
	}

	// Events for jobs already swept or finished are stale, not failures.
	if errors.Is(err, service.ErrJobNotActive) {
		h.logger.Warn("stale analysis event", "tender_ref", msg.TenderRef, "status", msg.Status)
		return nil
	}
	return err
}

type Config struct {
	URL          string
	TriggerQueue string
	EventsQueue  string
	Prefetch     int
}

// Consumer reads the trigger and event queues until its context is done.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	handler *Handler
	logger  *slog.Logger
}

func New(cfg Config, handler *Handler, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	for _, name := range []string{cfg.TriggerQueue, cfg.EventsQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	logger = logger.With("component", "consumer")
	logger.Info("consuming from rabbitmq",
		"trigger_queue", cfg.TriggerQueue,
		"events_queue", cfg.EventsQueue,
		"prefetch", cfg.Prefetch,
	)

	return &Consumer{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	triggers, err := c.channel.ConsumeWithContext(ctx, c.cfg.TriggerQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.TriggerQueue, err)
	}
	events, err := c.channel.ConsumeWithContext(ctx, c.cfg.EventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.EventsQueue, err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	for _, stream := range []struct {
		name       string
		deliveries <-chan amqp.Delivery
		handle     func(context.Context, []byte) error
	}{
		{c.cfg.TriggerQueue, triggers, c.handler.HandleTrigger},
		{c.cfg.EventsQueue, events, c.handler.HandleEvent},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// One stream ending stops the other.
			defer cancel()
			errCh <- c.consume(ctx, stream.name, stream.deliveries, stream.handle)
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	c.logger.Info("consumer stopped")
	return ctx.Err()
}

func (c *Consumer) consume(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handle func(context.Context, []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			c.settle(ctx, queue, d, handle(ctx, d.Body))
		}
	}
}

// settle acks handled messages, drops malformed ones and requeues other failures once.
func (c *Consumer) settle(ctx context.Context, queue string, d amqp.Delivery, err error) {
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", "queue", queue, "error", ackErr)
		}
		return
	}

	requeue := !errors.Is(err, ErrInvalidMessage) && !d.Redelivered && ctx.Err() == nil
	c.logger.Error("message handling failed",
		"queue", queue,
		"error", err,
		"requeue", requeue,
	)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		c.logger.Error("nack failed", "queue", queue, "error", nackErr)
	}
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
