package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunComponents_FailureStopsOthers(t *testing.T) {
	boom := errors.New("connection lost")
	stopped := make(chan struct{})

	err := runComponents(context.Background(), map[string]func(context.Context) error{
		"consumer": func(context.Context) error { return boom },
		"dispatcher": func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		},
	}, discardLogger())

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "consumer")
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("dispatcher kept running after consumer failed")
	}
}

func TestRunComponents_CancelIsCleanShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	waitForCancel := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		done <- runComponents(ctx, map[string]func(context.Context) error{
			"dispatcher": waitForCancel,
			"scheduler":  waitForCancel,
		}, discardLogger())
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("components did not stop on cancel")
	}
}
