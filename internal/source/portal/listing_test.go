package portal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender_fetcher/internal/fetch"
)

const listingURL = "https://portal.example/daily"

func TestParseListing_FilteredCategories(t *testing.T) {
	listing, err := ParseListing(fixture(t, "listing.html"), listingURL, []string{"Civil"})
	require.NoError(t, err)

	assert.Equal(t, "Date: 17 Oct 2026", listing.Date)
	assert.Equal(t, 42, listing.NewTenders)
	require.Len(t, listing.Categories, 2)
	assert.Equal(t, 3, listing.TenderCount())

	civil := listing.Categories[0]
	assert.Equal(t, "Civil Work (2)", civil.Name)
	assert.Equal(t, 2, civil.TenderCount)

	first := civil.Tenders[0]
	assert.Equal(t, "1001", first.TenderID)
	assert.Equal(t, "Road repair and resurfacing at NH-48", first.Title)
	assert.Equal(t, "Pune, Maharashtra", first.City)
	assert.Equal(t, "Rs. 2,50,00,000", first.Value)
	assert.Equal(t, "30-10-2026", first.DueDate)
	assert.Contains(t, first.Summary, "Resurfacing of 12 km stretch")
	assert.Equal(t, "https://portal.example/Indian-Tender/road-repair-1001", first.URL)

	assert.Equal(t, "https://portal.example/Indian-Tender/drain-1002", civil.Tenders[1].URL)

	sparse := listing.Categories[1].Tenders[0]
	assert.Equal(t, "Building upkeep", sparse.Title)
	assert.Equal(t, "Unknown", sparse.City)
	assert.Empty(t, sparse.TenderID)
	assert.Empty(t, sparse.URL)
}

func TestParseListing_NoFilter(t *testing.T) {
	listing, err := ParseListing(fixture(t, "listing.html"), listingURL, nil)
	require.NoError(t, err)

	require.Len(t, listing.Categories, 3)
	assert.Equal(t, "Electrical Supplies (1)", listing.Categories[1].Name)
}

func TestParseListing_NoContainer(t *testing.T) {
	listing, err := ParseListing([]byte(`<html><body><p>maintenance</p></body></html>`), listingURL, nil)
	require.NoError(t, err)

	assert.Equal(t, "Unknown Date", listing.Date)
	assert.Empty(t, listing.Categories)
}

func TestParseListingDate(t *testing.T) {
	got, ok := ParseListingDate("Date: 17 Oct 2026")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseListingDate("Unknown Date")
	assert.False(t, ok)
}

func TestSource_FetchDetailResolvesFiles(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://portal.example/Indian-Tender/3003",
		httpmock.NewBytesResponder(http.StatusOK, fixture(t, "detail_headings.html")))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.NewWithTransport(fetch.Config{Timeout: time.Second, MaxAttempts: 1}, transport, nil, logger)
	src := New(client, nil, logger)
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return fixed }

	snap, err := src.FetchDetail(context.Background(), "https://portal.example/Indian-Tender/3003")
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example/Indian-Tender/3003", snap.URL)
	assert.Equal(t, fixed, snap.ScrapedAt)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "https://portal.example/download/3003", snap.Files[0].URL)
}

func TestSource_FetchListingPropagatesFetchError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, listingURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.NewWithTransport(fetch.Config{Timeout: time.Second, MaxAttempts: 2}, transport, nil, logger)

	_, err := New(client, []string{"Civil"}, logger).FetchListing(context.Background(), listingURL)

	require.Error(t, err)
	assert.Equal(t, "not_found", fetch.ErrorType(err))
}
