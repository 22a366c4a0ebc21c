package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tender_fetcher/internal/cache"
	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/service/mocks"
)

func TestListingService_Recent(t *testing.T) {
	ctrl := gomock.NewController(t)
	snapshots := mocks.NewMockSnapshotStore(ctrl)
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	c := cache.NewListing(cache.Config{TTL: time.Minute, MaxEntries: 4}, discardLogger())
	svc := NewListingService(snapshots, c, discardLogger())
	svc.now = func() time.Time { return now }

	want := []domain.TenderSnapshot{{TDR: "TDR-1"}, {TDR: "TDR-2"}}
	snapshots.EXPECT().ListRecent(gomock.Any(), now.AddDate(0, 0, -7)).Return(want, nil).Times(1)

	got, err := svc.Recent(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = svc.Recent(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Purging after a run forces the next read back to the store.
	c.Purge()
	snapshots.EXPECT().ListRecent(gomock.Any(), now.AddDate(0, 0, -7)).Return(want[:1], nil)

	got, err = svc.Recent(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListingService_RecentError(t *testing.T) {
	ctrl := gomock.NewController(t)
	snapshots := mocks.NewMockSnapshotStore(ctrl)

	svc := NewListingService(snapshots, cache.NewListing(cache.Config{}, discardLogger()), discardLogger())
	snapshots.EXPECT().ListRecent(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := svc.Recent(context.Background(), 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "list recent snapshots")
}
