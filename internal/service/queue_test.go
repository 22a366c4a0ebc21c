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
	"tender_fetcher/internal/testutil"
)

type QueueServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	jobs  *mocks.MockJobStore
	queue *QueueService
	now   time.Time
	woken int
}

func (s *QueueServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	s.woken = 0

	s.queue = NewQueueService(s.jobs, QueueConfig{
		StuckTimeout:    30 * time.Minute,
		DefaultEstimate: 5 * time.Minute,
	}, nil, discardLogger())
	s.queue.now = func() time.Time { return s.now }
	s.queue.OnChange(func() { s.woken++ })
}

func (s *QueueServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestQueueServiceTestSuite(t *testing.T) {
	suite.Run(t, new(QueueServiceTestSuite))
}

func (s *QueueServiceTestSuite) job(ref string, status domain.JobStatus) *domain.AnalysisJob {
	return &domain.AnalysisJob{
		ID:        uuid.New(),
		TenderRef: ref,
		Status:    status,
		CreatedAt: s.now.Add(-time.Hour),
	}
}

func (s *QueueServiceTestSuite) TestAddToQueue_NewJob() {
	ctx := context.Background()
	requester := uuid.New()

	s.jobs.EXPECT().Get(ctx, "TDR-1").Return(nil, nil)
	s.jobs.EXPECT().InsertPending(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, job *domain.AnalysisJob) (bool, error) {
			s.Equal("TDR-1", job.TenderRef)
			s.Equal(&requester, job.RequestedBy)
			s.Equal(domain.JobPending, job.Status)
			s.Equal(s.now, job.CreatedAt)
			job.ID = uuid.MustParse("7f0c3b5e-5d55-4e0f-9d7c-2f3b3f1c0a11")
			return true, nil
		},
	)
	s.jobs.EXPECT().CountPendingBefore(ctx, gomock.Any()).Return(2, nil)

	res, err := s.queue.AddToQueue(ctx, "TDR-1", &requester)

	s.Require().NoError(err)
	s.Equal(domain.QueueQueued, res.Outcome)
	s.Equal(uuid.MustParse("7f0c3b5e-5d55-4e0f-9d7c-2f3b3f1c0a11"), res.JobID)
	s.Equal(testutil.Ptr(3), res.Position)
	s.Equal(1, s.woken)
}

func (s *QueueServiceTestSuite) TestAddToQueue_AlreadyCompleted() {
	ctx := context.Background()
	existing := s.job("TDR-1", domain.JobCompleted)
	existing.Progress = 100

	s.jobs.EXPECT().Get(ctx, "TDR-1").Return(existing, nil)

	res, err := s.queue.AddToQueue(ctx, "TDR-1", nil)

	s.Require().NoError(err)
	s.Equal(domain.QueueAlreadyCompleted, res.Outcome)
	s.Equal(existing.ID, res.JobID)
	s.Nil(res.Position)
	s.Equal(0, s.woken)
}

func (s *QueueServiceTestSuite) TestAddToQueue_InProgress() {
	ctx := context.Background()
	existing := s.job("TDR-1", domain.JobAnalyzing)
	existing.Progress = 40

	s.jobs.EXPECT().Get(ctx, "TDR-1").Return(existing, nil)

	res, err := s.queue.AddToQueue(ctx, "TDR-1", nil)

	s.Require().NoError(err)
	s.Equal(domain.QueueInProgress, res.Outcome)
	s.Equal(40, res.Progress)
	s.Nil(res.Position)
}

func (s *QueueServiceTestSuite) TestAddToQueue_AlreadyPending() {
	ctx := context.Background()
	existing := s.job("TDR-1", domain.JobPending)

	s.jobs.EXPECT().Get(ctx, "TDR-1").Return(existing, nil)
	s.jobs.EXPECT().CountPendingBefore(ctx, existing).Return(0, nil)

	res, err := s.queue.AddToQueue(ctx, "TDR-1", nil)

	s.Require().NoError(err)
	s.Equal(domain.QueueQueued, res.Outcome)
	s.Equal(testutil.Ptr(1), res.Position)
}

func (s *QueueServiceTestSuite) TestAddToQueue_RequeuesFailed() {
	ctx := context.Background()
	existing := s.job("TDR-1", domain.JobFailed)
	existing.ErrorMessage = testutil.Ptr("Analysis timed out after 30 minutes")

	s.jobs.EXPECT().Get(ctx, "TDR-1").Return(existing, nil)
	s.jobs.EXPECT().Requeue(ctx, "TDR-1", (*uuid.UUID)(nil)).Return(true, nil)
	s.jobs.EXPECT().CountPendingBefore(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, job *domain.AnalysisJob) (int, error) {
			s.Equal(domain.JobPending, job.Status)
			s.Equal(existing.CreatedAt, job.CreatedAt)
			return 0, nil
		},
	)

	res, err := s.queue.AddToQueue(ctx, "TDR-1", nil)

	s.Require().NoError(err)
	s.Equal(domain.QueueRequeued, res.Outcome)
	s.Equal(existing.ID, res.JobID)
	s.Equal(testutil.Ptr(1), res.Position)
}

// A concurrent insert for the same ref makes the second caller observe the existing row.
func (s *QueueServiceTestSuite) TestAddToQueue_LostInsertRace() {
	ctx := context.Background()
	winner := s.job("TDR-1", domain.JobPending)

	gomock.InOrder(
		s.jobs.EXPECT().Get(ctx, "TDR-1").Return(nil, nil),
		s.jobs.EXPECT().InsertPending(ctx, gomock.Any()).Return(false, nil),
		s.jobs.EXPECT().Get(ctx, "TDR-1").Return(winner, nil),
		s.jobs.EXPECT().CountPendingBefore(ctx, winner).Return(4, nil),
	)

	res, err := s.queue.AddToQueue(ctx, "TDR-1", nil)

	s.Require().NoError(err)
	s.Equal(domain.QueueQueued, res.Outcome)
	s.Equal(winner.ID, res.JobID)
	s.Equal(testutil.Ptr(5), res.Position)
}

func (s *QueueServiceTestSuite) TestAddToQueue_EmptyRef() {
	_, err := s.queue.AddToQueue(context.Background(), "", nil)
	s.ErrorIs(err, ErrEmptyReference)
}

func (s *QueueServiceTestSuite) TestQueuePosition() {
	ctx := context.Background()
	pending := s.job("TDR-2", domain.JobPending)

	s.jobs.EXPECT().Get(ctx, "TDR-2").Return(pending, nil)
	s.jobs.EXPECT().CountPendingBefore(ctx, pending).Return(1, nil)

	pos, err := s.queue.QueuePosition(ctx, "TDR-2")

	s.NoError(err)
	s.Equal(testutil.Ptr(2), pos)
}

func (s *QueueServiceTestSuite) TestQueuePosition_NotPending() {
	ctx := context.Background()
	s.jobs.EXPECT().Get(ctx, "TDR-3").Return(s.job("TDR-3", domain.JobParsing), nil)
	s.jobs.EXPECT().Get(ctx, "TDR-4").Return(nil, nil)

	pos, err := s.queue.QueuePosition(ctx, "TDR-3")
	s.NoError(err)
	s.Nil(pos)

	pos, err = s.queue.QueuePosition(ctx, "TDR-4")
	s.NoError(err)
	s.Nil(pos)
}

func (s *QueueServiceTestSuite) TestQueueStatus_WithProgress() {
	ctx := context.Background()
	active := s.job("TDR-1", domain.JobAnalyzing)
	active.Progress = 25
	active.StartedAt = testutil.Ptr(s.now.Add(-10 * time.Minute))
	first := s.job("TDR-2", domain.JobPending)
	second := s.job("TDR-3", domain.JobPending)

	s.jobs.EXPECT().Active(ctx).Return(active, nil)
	s.jobs.EXPECT().ListPending(ctx).Return([]domain.AnalysisJob{*first, *second}, nil)

	status, err := s.queue.QueueStatus(ctx)

	s.Require().NoError(err)
	s.True(status.HasActive)
	s.Equal(10*time.Minute, status.Active.Elapsed)
	s.Equal(30*time.Minute, status.Active.EstimatedRemaining)
	s.Require().Len(status.Queued, 2)
	s.Equal(1, status.Queued[0].Position)
	s.Equal("TDR-3", status.Queued[1].Job.TenderRef)
	s.Equal(2, status.Queued[1].Position)
}

func (s *QueueServiceTestSuite) TestQueueStatus_DefaultEstimate() {
	ctx := context.Background()
	active := s.job("TDR-1", domain.JobParsing)
	active.StartedAt = testutil.Ptr(s.now.Add(-2 * time.Minute))

	s.jobs.EXPECT().Active(ctx).Return(active, nil)
	s.jobs.EXPECT().ListPending(ctx).Return(nil, nil)

	status, err := s.queue.QueueStatus(ctx)

	s.Require().NoError(err)
	s.Equal(3*time.Minute, status.Active.EstimatedRemaining)
	s.Empty(status.Queued)
}

func (s *QueueServiceTestSuite) TestQueueStatus_EstimateNeverNegative() {
	ctx := context.Background()
	active := s.job("TDR-1", domain.JobParsing)
	active.StartedAt = testutil.Ptr(s.now.Add(-20 * time.Minute))

	s.jobs.EXPECT().Active(ctx).Return(active, nil)
	s.jobs.EXPECT().ListPending(ctx).Return(nil, nil)

	status, err := s.queue.QueueStatus(ctx)

	s.Require().NoError(err)
	s.Equal(time.Duration(0), status.Active.EstimatedRemaining)
}

func (s *QueueServiceTestSuite) TestQueueStatus_Idle() {
	ctx := context.Background()
	s.jobs.EXPECT().Active(ctx).Return(nil, nil)
	s.jobs.EXPECT().ListPending(ctx).Return(nil, nil)

	status, err := s.queue.QueueStatus(ctx)

	s.Require().NoError(err)
	s.False(status.HasActive)
	s.Nil(status.Active)
}

func (s *QueueServiceTestSuite) TestCleanupStuckJobs() {
	ctx := context.Background()
	stuck := s.job("TDR-1", domain.JobFailed)

	s.jobs.EXPECT().FailStuck(ctx, s.now.Add(-30*time.Minute), "Analysis timed out after 30 minutes").
		Return([]domain.AnalysisJob{*stuck}, nil)

	n, err := s.queue.CleanupStuckJobs(ctx, 30*time.Minute)

	s.NoError(err)
	s.Equal(1, n)
	s.Equal(1, s.woken)
}

func (s *QueueServiceTestSuite) TestCleanupStuckJobs_Nothing() {
	ctx := context.Background()
	s.jobs.EXPECT().FailStuck(ctx, gomock.Any(), gomock.Any()).Return(nil, nil)

	n, err := s.queue.CleanupStuckJobs(ctx, 30*time.Minute)

	s.NoError(err)
	s.Equal(0, n)
	s.Equal(0, s.woken)
}

func (s *QueueServiceTestSuite) TestIsAnalysisRunning_SweepsFirst() {
	ctx := context.Background()

	gomock.InOrder(
		s.jobs.EXPECT().FailStuck(ctx, gomock.Any(), gomock.Any()).Return([]domain.AnalysisJob{*s.job("TDR-1", domain.JobFailed)}, nil),
		s.jobs.EXPECT().Active(ctx).Return(nil, nil),
	)

	running, err := s.queue.IsAnalysisRunning(ctx)

	s.NoError(err)
	s.False(running)
}

func (s *QueueServiceTestSuite) TestReportProgress() {
	ctx := context.Background()
	s.jobs.EXPECT().UpdateProgress(ctx, "TDR-1", domain.JobAnalyzing, 100, "summarising").Return(true, nil)

	s.NoError(s.queue.ReportProgress(ctx, "TDR-1", domain.JobAnalyzing, 150, "summarising"))
}

func (s *QueueServiceTestSuite) TestReportProgress_RejectsTerminalStatus() {
	err := s.queue.ReportProgress(context.Background(), "TDR-1", domain.JobCompleted, 100, "")
	s.Error(err)
}

func (s *QueueServiceTestSuite) TestReportProgress_NotActive() {
	ctx := context.Background()
	s.jobs.EXPECT().UpdateProgress(ctx, "TDR-1", domain.JobParsing, 10, "").Return(false, nil)

	err := s.queue.ReportProgress(ctx, "TDR-1", domain.JobParsing, 10, "")
	s.ErrorIs(err, ErrJobNotActive)
}

func (s *QueueServiceTestSuite) TestComplete() {
	ctx := context.Background()
	s.jobs.EXPECT().Complete(ctx, "TDR-1").Return(true, nil)

	s.NoError(s.queue.Complete(ctx, "TDR-1"))
	s.Equal(1, s.woken)
}

func (s *QueueServiceTestSuite) TestFail() {
	ctx := context.Background()
	s.jobs.EXPECT().Fail(ctx, "TDR-1", "pdf extraction failed").Return(true, nil)

	s.NoError(s.queue.Fail(ctx, "TDR-1", "pdf extraction failed"))
	s.Equal(1, s.woken)
}

func (s *QueueServiceTestSuite) TestComplete_StoreError() {
	ctx := context.Background()
	s.jobs.EXPECT().Complete(ctx, "TDR-1").Return(false, errors.New("conn reset"))

	s.Error(s.queue.Complete(ctx, "TDR-1"))
	s.Equal(0, s.woken)
}
