package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps free-form input onto a known priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Rank orders priorities: low < normal < high.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "success"
	ProcessingSkipped ProcessingStatus = "skipped"
	ProcessingFailed  ProcessingStatus = "failed"
)

type ProcessingLog struct {
	ID               uuid.UUID        `db:"id"`
	TenderURL        string           `db:"tender_url"`
	Priority         Priority         `db:"priority"`
	Status           ProcessingStatus `db:"status"`
	Superseded       bool             `db:"superseded"`
	SupersededReason *string          `db:"superseded_reason"`
	ErrorMessage     *string          `db:"error_message"`
	ScrapeRunID      *uuid.UUID       `db:"scrape_run_id"`
	RequestedBy      *uuid.UUID       `db:"requested_by"`
	Source           string           `db:"source"`
	ProcessedAt      time.Time        `db:"processed_at"`
}
