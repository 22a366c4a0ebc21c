package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// WatchlistStore holds the references flagged for follow-up analysis.
type WatchlistStore struct {
	db *sqlx.DB
}

func NewWatchlistStore(db *sqlx.DB) *WatchlistStore {
	return &WatchlistStore{db: db}
}

func (s *WatchlistStore) NeedsFollowUp(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		"SELECT EXISTS (SELECT 1 FROM follow_up_watchlist WHERE tender_ref = $1)", reference)
	if err != nil {
		return false, fmt.Errorf("check watchlist: %w", err)
	}
	return exists, nil
}

func (s *WatchlistStore) Add(ctx context.Context, reference string, requestedBy *uuid.UUID) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO follow_up_watchlist (tender_ref, requested_by)
		VALUES ($1, $2)
		ON CONFLICT (tender_ref) DO NOTHING`, reference, requestedBy)
	if err != nil {
		return fmt.Errorf("add to watchlist: %w", err)
	}
	return nil
}

func (s *WatchlistStore) Remove(ctx context.Context, reference string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM follow_up_watchlist WHERE tender_ref = $1", reference)
	if err != nil {
		return fmt.Errorf("remove from watchlist: %w", err)
	}
	return nil
}
