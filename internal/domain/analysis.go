package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobParsing   JobStatus = "parsing"
	JobAnalyzing JobStatus = "analyzing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Active reports whether the job currently holds the single analysis slot.
func (s JobStatus) Active() bool {
	return s == JobParsing || s == JobAnalyzing
}

type AnalysisJob struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenderRef     string     `db:"tender_ref" json:"tender_ref"`
	RequestedBy   *uuid.UUID `db:"requested_by" json:"requested_by,omitempty"`
	Status        JobStatus  `db:"status" json:"status"`
	Progress      int        `db:"progress" json:"progress"`
	StatusMessage *string    `db:"status_message" json:"status_message,omitempty"`
	ErrorMessage  *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

type QueueOutcome string

const (
	QueueAlreadyCompleted QueueOutcome = "already_completed"
	QueueQueued           QueueOutcome = "queued"
	QueueInProgress       QueueOutcome = "in_progress"
	QueueRequeued         QueueOutcome = "requeued"
)

type QueueResult struct {
	Outcome  QueueOutcome
	JobID    uuid.UUID
	Position *int
	Progress int
}

type ActiveJobStatus struct {
	Job                *AnalysisJob
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
}

type QueuedJob struct {
	Job      AnalysisJob
	Position int
}

type QueueStatus struct {
	HasActive bool
	Active    *ActiveJobStatus
	Queued    []QueuedJob
}
