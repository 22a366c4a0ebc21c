package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"tender_fetcher/internal/domain"
)

// Fetcher retrieves a page body.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Source fetches and parses portal pages.
type Source struct {
	fetcher        Fetcher
	categoryFilter []string
	now            func() time.Time
	logger         *slog.Logger
}

func New(fetcher Fetcher, categoryFilter []string, logger *slog.Logger) *Source {
	return &Source{
		fetcher:        fetcher,
		categoryFilter: categoryFilter,
		now:            time.Now,
		logger:         logger.With("component", "portal"),
	}
}

// FetchListing downloads and parses a listing page, resolving tender links against its URL.
func (s *Source) FetchListing(ctx context.Context, listingURL string) (*domain.Listing, error) {
	body, err := s.fetcher.Get(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	listing, err := ParseListing(body, listingURL, s.categoryFilter)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	s.logger.Info("parsed listing",
		"url", listingURL,
		"date", listing.Date,
		"categories", len(listing.Categories),
		"tenders", listing.TenderCount(),
	)
	return listing, nil
}

// FetchDetail downloads and parses a single tender detail page.
func (s *Source) FetchDetail(ctx context.Context, detailURL string) (*domain.TenderSnapshot, error) {
	body, err := s.fetcher.Get(ctx, detailURL)
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}

	snap, err := ParseDetail(body)
	if err != nil {
		return nil, fmt.Errorf("parse detail %s: %w", detailURL, err)
	}

	snap.URL = detailURL
	snap.ScrapedAt = s.now().UTC()
	resolveFileURLs(snap, detailURL)
	return snap, nil
}

func resolveFileURLs(snap *domain.TenderSnapshot, pageURL string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	resolve := func(files []domain.TenderFile) {
		for i := range files {
			if ref, err := url.Parse(files[i].URL); err == nil {
				files[i].URL = base.ResolveReference(ref).String()
			}
		}
	}
	resolve(snap.Files)
	for i := range snap.DocumentChanges {
		resolve(snap.DocumentChanges[i].Files)
	}
}
