package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunSkipped RunStatus = "skipped"
	RunFailed  RunStatus = "failed"
)

// RunRequest triggers one scrape of a listing page.
type RunRequest struct {
	URL         string
	Priority    Priority
	SkipDedup   bool
	RequestedBy *uuid.UUID
	Source      string
}

// RunResult holds statistics about a scrape run.
type RunResult struct {
	RunID     uuid.UUID
	URL       string
	Status    RunStatus
	Succeeded int
	Removed   []RemovedTender
	Changed   int
	Queued    int
	Error     string
	Duration  time.Duration
}
