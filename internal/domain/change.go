package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeCorrigendum          ChangeType = "corrigendum"
	ChangeAmendment            ChangeType = "amendment"
	ChangeBidDeadlineExtension ChangeType = "bid_deadline_extension"
	ChangeOther                ChangeType = "other"
)

// ChangeRecord describes one watched field that differs between consecutive snapshots.
type ChangeRecord struct {
	ID            uuid.UUID  `db:"id"`
	Reference     string     `db:"reference"`
	OldSnapshotID uuid.UUID  `db:"old_snapshot_id"`
	NewSnapshotID uuid.UUID  `db:"new_snapshot_id"`
	Field         string     `db:"field"`
	OldValue      string     `db:"old_value"`
	NewValue      string     `db:"new_value"`
	Type          ChangeType `db:"change_type"`
	DetectedAt    time.Time  `db:"detected_at"`
	Actor         *uuid.UUID `db:"actor"`
	Note          string     `db:"note"`
}
