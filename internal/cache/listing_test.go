package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender_fetcher/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "last_7_days", Key(7))
	assert.Equal(t, "last_1_days", Key(1))
}

func TestListing_ReadThrough(t *testing.T) {
	c := NewListing(Config{TTL: time.Minute, MaxEntries: 8}, testLogger())

	var calls int32
	load := func(_ context.Context, days int) ([]domain.TenderSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return []domain.TenderSnapshot{{TenderID: "T-1"}}, nil
	}

	got, err := c.Get(context.Background(), 7, load)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = c.Get(context.Background(), 7, load)
	require.NoError(t, err)
	assert.Equal(t, "T-1", got[0].TenderID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = c.Get(context.Background(), 3, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 2, c.Len())
}

func TestListing_Purge(t *testing.T) {
	c := NewListing(Config{TTL: time.Minute, MaxEntries: 8}, testLogger())

	var calls int32
	load := func(_ context.Context, _ int) ([]domain.TenderSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	_, _ = c.Get(context.Background(), 7, load)
	c.Purge()
	assert.Equal(t, 0, c.Len())

	_, _ = c.Get(context.Background(), 7, load)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListing_Expiry(t *testing.T) {
	c := NewListing(Config{TTL: 20 * time.Millisecond, MaxEntries: 8}, testLogger())

	var calls int32
	load := func(_ context.Context, _ int) ([]domain.TenderSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	_, _ = c.Get(context.Background(), 7, load)
	time.Sleep(60 * time.Millisecond)
	_, _ = c.Get(context.Background(), 7, load)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestListing_LoadErrorNotCached(t *testing.T) {
	c := NewListing(Config{TTL: time.Minute, MaxEntries: 8}, testLogger())

	_, err := c.Get(context.Background(), 7, func(context.Context, int) ([]domain.TenderSnapshot, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestListing_ConcurrentMissesLoadOnce(t *testing.T) {
	c := NewListing(Config{TTL: time.Minute, MaxEntries: 8}, testLogger())

	var calls int32
	load := func(_ context.Context, _ int) ([]domain.TenderSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []domain.TenderSnapshot{{TenderID: "T-1"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), 7, load)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestListing_PurgeDuringLoadDropsStaleResult(t *testing.T) {
	c := NewListing(Config{TTL: time.Minute, MaxEntries: 8}, testLogger())

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(_ context.Context, _ int) ([]domain.TenderSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return []domain.TenderSnapshot{{TenderID: "stale"}}, nil
	}

	done := make(chan []domain.TenderSnapshot, 1)
	go func() {
		v, err := c.Get(context.Background(), 7, slow)
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	c.Purge()
	close(release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, 0, c.Len())

	fresh, err := c.Get(context.Background(), 7, func(_ context.Context, _ int) ([]domain.TenderSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return []domain.TenderSnapshot{{TenderID: "fresh"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "fresh", fresh[0].TenderID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
