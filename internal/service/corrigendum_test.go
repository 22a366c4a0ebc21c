package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/service/mocks"
)

func baseSnapshot() *domain.TenderSnapshot {
	return &domain.TenderSnapshot{
		ID:          uuid.New(),
		TDR:         "TDR-2025-0042",
		TenderID:    "51234567",
		Authority:   "Public Works Department",
		EMD:         "Rs. 50,000",
		Value:       2500000,
		TenderType:  "Open",
		BiddingType: "Two Bid",
		PublishDate: "01-03-2025",
		DueDate:     "15-03-2025",
		OpeningDate: "16-03-2025",
		ScrapedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestDiff_DueDateChange(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.DueDate = "22-03-2025"
	next.ScrapedAt = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	records := Diff(prev, next)

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "due_date", r.Field)
	assert.Equal(t, "15-03-2025", r.OldValue)
	assert.Equal(t, "22-03-2025", r.NewValue)
	assert.Equal(t, domain.ChangeBidDeadlineExtension, r.Type)
	assert.Equal(t, next.ScrapedAt, r.DetectedAt)
	assert.Equal(t, prev.ID, r.OldSnapshotID)
	assert.Equal(t, next.ID, r.NewSnapshotID)
	assert.Equal(t, "TDR-2025-0042", r.Reference)
}

func TestDiff_NoChange(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()

	assert.Empty(t, Diff(prev, next))
}

func TestDiff_NormalizesFormatting(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Authority = "  public   works DEPARTMENT "
	next.TenderType = "open"
	prev.BiddingType = domain.NotAvailable
	next.BiddingType = ""

	assert.Empty(t, Diff(prev, next))
}

func TestDiff_CorrigendumWithoutDeadline(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Value = 2750000
	next.EMD = "Rs. 55,000"

	records := Diff(prev, next)

	require.Len(t, records, 2)
	assert.Equal(t, "tender_value", records[0].Field)
	assert.Equal(t, "2500000", records[0].OldValue)
	assert.Equal(t, "2750000", records[0].NewValue)
	assert.Equal(t, "emd", records[1].Field)
	for _, r := range records {
		assert.Equal(t, domain.ChangeCorrigendum, r.Type)
	}
}

func TestDiff_DeadlineTypesWholeSet(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Authority = "Roads Division"
	next.OpeningDate = "20-03-2025"

	records := Diff(prev, next)

	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, domain.ChangeBidDeadlineExtension, r.Type)
	}
}

func TestDiff_Deterministic(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.DueDate = "22-03-2025"
	next.Value = 0

	assert.Equal(t, Diff(prev, next), Diff(prev, next))
}

func TestDiff_NoPrevious(t *testing.T) {
	assert.Nil(t, Diff(nil, baseSnapshot()))
}

func TestHistoryEntry(t *testing.T) {
	detected := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	records := []domain.ChangeRecord{
		{Field: "due_date", OldValue: "15-03-2025", NewValue: "22-03-2025", Type: domain.ChangeBidDeadlineExtension, DetectedAt: detected},
		{Field: "emd", OldValue: "", NewValue: "Rs. 55,000", Type: domain.ChangeBidDeadlineExtension, DetectedAt: detected},
		{Field: "authority", OldValue: "PWD", NewValue: "", Type: domain.ChangeBidDeadlineExtension, DetectedAt: detected},
	}

	entry := HistoryEntry(records)

	assert.Equal(t, "bid_deadline_extension", entry.Type)
	assert.Equal(t, "2025-03-10T10:00:00Z", entry.Date)
	assert.Equal(t, "15-03-2025", entry.DateChangeFrom)
	assert.Equal(t, "22-03-2025", entry.DateChangeTo)
	assert.Equal(t, "Corrigendum detected: 3 changes\n"+
		"• Last Date of Bid Submission: 15-03-2025 → 22-03-2025\n"+
		"• EMD: Not set → Rs. 55,000\n"+
		"• Tendering Authority: PWD → Removed", entry.Note)
	assert.NotNil(t, entry.Files)
}

func TestFieldLabel(t *testing.T) {
	assert.Equal(t, "Tender Value", FieldLabel("tender_value"))
	assert.Equal(t, "Tender Opening Date", FieldLabel("opening_date"))
	assert.Equal(t, "unknown_field", FieldLabel("unknown_field"))
}

type DetectorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	snapshots *mocks.MockSnapshotStore
	changes   *mocks.MockChangeStore
	detector  *Detector
}

func (s *DetectorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.snapshots = mocks.NewMockSnapshotStore(s.ctrl)
	s.changes = mocks.NewMockChangeStore(s.ctrl)
	s.detector = NewDetector(s.snapshots, s.changes, discardLogger())
}

func (s *DetectorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDetectorTestSuite(t *testing.T) {
	suite.Run(t, new(DetectorTestSuite))
}

func (s *DetectorTestSuite) TestDetect_FirstSnapshot() {
	ctx := context.Background()
	snap := baseSnapshot()
	s.snapshots.EXPECT().GetPrevious(ctx, snap.TDR, snap).Return(nil, nil)

	records, err := s.detector.Detect(ctx, snap.TDR, snap)

	s.NoError(err)
	s.Empty(records)
}

func (s *DetectorTestSuite) TestDetect_EmptyReference() {
	records, err := s.detector.Detect(context.Background(), "", baseSnapshot())

	s.NoError(err)
	s.Nil(records)
}

func (s *DetectorTestSuite) TestApply_ReplacesPairRecords() {
	ctx := context.Background()
	actor := uuid.New()
	prev := baseSnapshot()
	next := baseSnapshot()
	next.DueDate = "22-03-2025"

	s.snapshots.EXPECT().GetPrevious(ctx, next.TDR, next).Return(prev, nil).Times(2)
	s.changes.EXPECT().ReplaceForPair(ctx, prev.ID, next.ID, gomock.Len(1)).DoAndReturn(
		func(_ context.Context, _, _ uuid.UUID, records []domain.ChangeRecord) error {
			s.Equal(&actor, records[0].Actor)
			s.Equal("manual check", records[0].Note)
			return nil
		},
	).Times(2)

	first, err := s.detector.Apply(ctx, next.TDR, next, &actor, "manual check")
	s.Require().NoError(err)
	second, err := s.detector.Apply(ctx, next.TDR, next, &actor, "manual check")
	s.Require().NoError(err)

	s.Equal(first, second)
}

func (s *DetectorTestSuite) TestApply_NoPrevious() {
	ctx := context.Background()
	snap := baseSnapshot()
	s.snapshots.EXPECT().GetPrevious(ctx, snap.TDR, snap).Return(nil, nil)

	records, err := s.detector.Apply(ctx, snap.TDR, snap, nil, "")

	s.NoError(err)
	s.Empty(records)
}

func (s *DetectorTestSuite) TestApply_StoreError() {
	ctx := context.Background()
	prev := baseSnapshot()
	next := baseSnapshot()
	next.EMD = "Rs. 1"

	s.snapshots.EXPECT().GetPrevious(ctx, next.TDR, next).Return(prev, nil)
	s.changes.EXPECT().ReplaceForPair(ctx, prev.ID, next.ID, gomock.Any()).Return(errors.New("tx aborted"))

	_, err := s.detector.Apply(ctx, next.TDR, next, nil, "")

	s.Error(err)
	s.Contains(err.Error(), "store change records")
}

func (s *DetectorTestSuite) TestHistory() {
	ctx := context.Background()
	want := []domain.ChangeRecord{{Reference: "TDR-1", Field: "emd"}}
	s.changes.EXPECT().ListByReference(ctx, "TDR-1").Return(want, nil)

	got, err := s.detector.History(ctx, "TDR-1")

	s.NoError(err)
	s.Equal(want, got)
}
