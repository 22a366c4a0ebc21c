package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender_fetcher/internal/domain"
)

type recordingRunner struct {
	mu       sync.Mutex
	requests []domain.RunRequest
	err      error
}

func (r *recordingRunner) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("run without deadline")
	}
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.RunResult{URL: req.URL, Status: domain.RunSuccess}, nil
}

func (r *recordingRunner) calls() []domain.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RunRequest(nil), r.requests...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsEveryListingAtLowPriority(t *testing.T) {
	runner := &recordingRunner{}
	urls := []string{"https://portal.example/daily", "https://portal.example/weekly"}
	s := NewScheduler(runner, urls, time.Hour, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return len(runner.calls()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	calls := runner.calls()
	for i, req := range calls {
		assert.Equal(t, urls[i], req.URL)
		assert.Equal(t, domain.PriorityLow, req.Priority)
		assert.Equal(t, "scheduler", req.Source)
		assert.False(t, req.SkipDedup)
	}
}

func TestScheduler_TicksRepeat(t *testing.T) {
	runner := &recordingRunner{}
	s := NewScheduler(runner, []string{"https://portal.example/daily"}, 10*time.Millisecond, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return len(runner.calls()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestScheduler_RunErrorDoesNotStop(t *testing.T) {
	runner := &recordingRunner{err: errors.New("database unavailable")}
	s := NewScheduler(runner, []string{"https://portal.example/daily"}, 10*time.Millisecond, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return len(runner.calls()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
