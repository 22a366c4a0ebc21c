package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tender_fetcher/internal/domain"
)

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	analysisKey string
	runsKey     string
	logger      *slog.Logger
}

type Config struct {
	URL                string
	Exchange           string
	AnalysisRoutingKey string
	AnalysisQueue      string
	RunsRoutingKey     string
	RunsQueue          string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	bindings := []struct{ queue, key string }{
		{cfg.AnalysisQueue, cfg.AnalysisRoutingKey},
		{cfg.RunsQueue, cfg.RunsRoutingKey},
	}
	for _, b := range bindings {
		if err := declareBound(ch, cfg.Exchange, b.queue, b.key); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}

	logger = logger.With("component", "publisher")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"analysis_queue", cfg.AnalysisQueue,
		"runs_queue", cfg.RunsQueue,
	)

	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		exchange:    cfg.Exchange,
		analysisKey: cfg.AnalysisRoutingKey,
		runsKey:     cfg.RunsRoutingKey,
		logger:      logger,
	}, nil
}

func declareBound(ch *amqp.Channel, exchange, queue, key string) error {
	q, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

// AnalysisJobMessage hands a claimed job to the external analysis worker.
type AnalysisJobMessage struct {
	Job       domain.AnalysisJob `json:"job"`
	Timestamp time.Time          `json:"timestamp"`
}

// RunCompletedMessage summarises a finished scrape run.
type RunCompletedMessage struct {
	RunID      string                 `json:"run_id"`
	URL        string                 `json:"url"`
	Status     domain.RunStatus       `json:"status"`
	Succeeded  int                    `json:"succeeded"`
	Changed    int                    `json:"changed"`
	Queued     int                    `json:"queued"`
	Removed    []domain.RemovedTender `json:"removed"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Timestamp  time.Time              `json:"timestamp"`
}

func (r *RabbitMQ) Dispatch(ctx context.Context, job *domain.AnalysisJob) error {
	msg := AnalysisJobMessage{
		Job:       *job,
		Timestamp: time.Now().UTC(),
	}
	if err := r.publish(ctx, r.analysisKey, msg); err != nil {
		return err
	}

	r.logger.Debug("published analysis job", "tender_ref", job.TenderRef, "job_id", job.ID)
	return nil
}

func (r *RabbitMQ) PublishRunCompleted(ctx context.Context, result *domain.RunResult) error {
	msg := RunCompletedMessage{
		RunID:      result.RunID.String(),
		URL:        result.URL,
		Status:     result.Status,
		Succeeded:  result.Succeeded,
		Changed:    result.Changed,
		Queued:     result.Queued,
		Removed:    result.Removed,
		Error:      result.Error,
		DurationMS: result.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err := r.publish(ctx, r.runsKey, msg); err != nil {
		return err
	}

	r.logger.Debug("published run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
