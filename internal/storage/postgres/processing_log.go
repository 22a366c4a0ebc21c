package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tender_fetcher/internal/domain"
)

type ProcessingLogStore struct {
	db *sqlx.DB
}

func NewProcessingLogStore(db *sqlx.DB) *ProcessingLogStore {
	return &ProcessingLogStore{db: db}
}

func (s *ProcessingLogStore) LatestActive(ctx context.Context, url string) (*domain.ProcessingLog, error) {
	var entry domain.ProcessingLog
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &entry, `
		SELECT id, tender_url, priority, status, superseded, superseded_reason, error_message,
			scrape_run_id, requested_by, source, processed_at
		FROM processing_log
		WHERE tender_url = $1 AND status = 'success' AND NOT superseded
		ORDER BY processed_at DESC
		LIMIT 1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest processing log: %w", err)
	}
	return &entry, nil
}

// Insert appends an entry; the log is never rewritten except for the superseded flag.
func (s *ProcessingLogStore) Insert(ctx context.Context, entry *domain.ProcessingLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO processing_log (
			id, tender_url, priority, status, superseded, superseded_reason, error_message,
			scrape_run_id, requested_by, source, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.TenderURL, entry.Priority, entry.Status, entry.Superseded,
		entry.SupersededReason, entry.ErrorMessage, entry.ScrapeRunID, entry.RequestedBy,
		entry.Source, entry.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

func (s *ProcessingLogStore) MarkSuperseded(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE processing_log SET superseded = TRUE, superseded_reason = $2
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	return nil
}

func (s *ProcessingLogStore) ListByURL(ctx context.Context, url string) ([]domain.ProcessingLog, error) {
	var entries []domain.ProcessingLog
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, `
		SELECT id, tender_url, priority, status, superseded, superseded_reason, error_message,
			scrape_run_id, requested_by, source, processed_at
		FROM processing_log
		WHERE tender_url = $1
		ORDER BY processed_at`, url)
	if err != nil {
		return nil, fmt.Errorf("select processing log: %w", err)
	}
	return entries, nil
}
