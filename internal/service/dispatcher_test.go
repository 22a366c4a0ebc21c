package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/service/mocks"
)

type DispatcherTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	jobs       *mocks.MockJobStore
	handoff    *mocks.MockJobDispatcher
	queue      *QueueService
	dispatcher *Dispatcher
}

func (s *DispatcherTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.handoff = mocks.NewMockJobDispatcher(s.ctrl)

	s.queue = NewQueueService(s.jobs, QueueConfig{StuckTimeout: 30 * time.Minute, DefaultEstimate: 5 * time.Minute}, nil, discardLogger())
	s.dispatcher = NewDispatcher(s.queue, s.handoff, DispatcherConfig{
		Workers:       2,
		SweepInterval: time.Hour,
		StuckTimeout:  30 * time.Minute,
	}, discardLogger())
	s.queue.OnChange(s.dispatcher.Wake)
}

func (s *DispatcherTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func (s *DispatcherTestSuite) TestDispatchNext_HandsOffClaimedJob() {
	ctx := context.Background()
	job := &domain.AnalysisJob{ID: uuid.New(), TenderRef: "TDR-1", Status: domain.JobParsing}

	gomock.InOrder(
		s.jobs.EXPECT().FailStuck(ctx, gomock.Any(), gomock.Any()).Return(nil, nil),
		s.jobs.EXPECT().ClaimNext(ctx).Return(job, nil),
		s.handoff.EXPECT().Dispatch(ctx, job).Return(nil),
	)

	s.dispatcher.dispatchNext(ctx)
}

func (s *DispatcherTestSuite) TestDispatchNext_NothingToClaim() {
	ctx := context.Background()

	s.jobs.EXPECT().FailStuck(ctx, gomock.Any(), gomock.Any()).Return(nil, nil)
	s.jobs.EXPECT().ClaimNext(ctx).Return(nil, nil)

	s.dispatcher.dispatchNext(ctx)
}

func (s *DispatcherTestSuite) TestDispatchNext_HandOffFailureFailsJob() {
	ctx := context.Background()
	job := &domain.AnalysisJob{ID: uuid.New(), TenderRef: "TDR-1", Status: domain.JobParsing}

	s.jobs.EXPECT().FailStuck(ctx, gomock.Any(), gomock.Any()).Return(nil, nil)
	s.jobs.EXPECT().ClaimNext(ctx).Return(job, nil)
	s.handoff.EXPECT().Dispatch(ctx, job).Return(errors.New("channel closed"))
	s.jobs.EXPECT().Fail(ctx, "TDR-1", "dispatch failed: channel closed").Return(true, nil)

	s.dispatcher.dispatchNext(ctx)

	// Failing the job wakes the pool for the next pending job.
	s.Len(s.dispatcher.tasks, 1)
}

func (s *DispatcherTestSuite) TestDispatchNext_ClaimError() {
	ctx := context.Background()

	s.jobs.EXPECT().FailStuck(ctx, gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
	s.jobs.EXPECT().ClaimNext(ctx).Return(nil, errors.New("db down"))

	s.dispatcher.dispatchNext(ctx)
}

func (s *DispatcherTestSuite) TestWake_Coalesces() {
	s.dispatcher.Wake()
	s.dispatcher.Wake()
	s.dispatcher.Wake()

	s.Len(s.dispatcher.tasks, 1)
}

func (s *DispatcherTestSuite) TestStart_DispatchesUntilCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	job := &domain.AnalysisJob{ID: uuid.New(), TenderRef: "TDR-9", Status: domain.JobParsing}
	dispatched := make(chan struct{})

	s.jobs.EXPECT().FailStuck(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	s.jobs.EXPECT().ClaimNext(gomock.Any()).Return(job, nil)
	s.jobs.EXPECT().ClaimNext(gomock.Any()).Return(nil, nil).AnyTimes()
	s.handoff.EXPECT().Dispatch(gomock.Any(), job).DoAndReturn(
		func(context.Context, *domain.AnalysisJob) error {
			close(dispatched)
			return nil
		},
	)

	done := make(chan error, 1)
	go func() { done <- s.dispatcher.Start(ctx) }()

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		s.Fail("job was not dispatched")
	}

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.Fail("dispatcher did not stop")
	}
}
