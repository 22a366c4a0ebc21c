package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tender_fetcher/internal/cache"
	"tender_fetcher/internal/domain"
)

// ListingService serves the latest snapshot per tender for the last N days.
type ListingService struct {
	snapshots SnapshotStore
	cache     *cache.Listing
	now       func() time.Time
	logger    *slog.Logger
}

func NewListingService(snapshots SnapshotStore, c *cache.Listing, logger *slog.Logger) *ListingService {
	return &ListingService{
		snapshots: snapshots,
		cache:     c,
		now:       time.Now,
		logger:    logger.With("component", "listing"),
	}
}

func (s *ListingService) Recent(ctx context.Context, days int) ([]domain.TenderSnapshot, error) {
	if days < 1 {
		days = 1
	}
	return s.cache.Get(ctx, days, s.load)
}

func (s *ListingService) load(ctx context.Context, days int) ([]domain.TenderSnapshot, error) {
	since := s.now().UTC().AddDate(0, 0, -days)
	snaps, err := s.snapshots.ListRecent(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	s.logger.Debug("listing assembled", "days", days, "tenders", len(snaps))
	return snaps, nil
}
