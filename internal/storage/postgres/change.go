package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tender_fetcher/internal/domain"
)

type ChangeStore struct {
	db *sqlx.DB
}

func NewChangeStore(db *sqlx.DB) *ChangeStore {
	return &ChangeStore{db: db}
}

// ReplaceForPair rewrites the change rows recorded between two snapshots so that
// re-applying detection never duplicates them.
func (s *ChangeStore) ReplaceForPair(ctx context.Context, oldID, newID uuid.UUID, records []domain.ChangeRecord) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM change_records WHERE old_snapshot_id = $1 AND new_snapshot_id = $2",
		oldID, newID,
	)
	if err != nil {
		return fmt.Errorf("delete change records: %w", err)
	}

	for i := range records {
		r := &records[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		_, err := exec.ExecContext(ctx, `
			INSERT INTO change_records (
				id, reference, old_snapshot_id, new_snapshot_id, field, old_value, new_value,
				change_type, detected_at, actor, note
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ID, r.Reference, oldID, newID, r.Field, r.OldValue, r.NewValue,
			r.Type, r.DetectedAt, r.Actor, r.Note,
		)
		if err != nil {
			return fmt.Errorf("insert change record %s: %w", r.Field, err)
		}
	}

	return nil
}

func (s *ChangeStore) ListByReference(ctx context.Context, reference string) ([]domain.ChangeRecord, error) {
	var records []domain.ChangeRecord
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &records, `
		SELECT id, reference, old_snapshot_id, new_snapshot_id, field, old_value, new_value,
			change_type, detected_at, actor, note
		FROM change_records
		WHERE reference = $1
		ORDER BY detected_at DESC, field`, reference)
	if err != nil {
		return nil, fmt.Errorf("select change records: %w", err)
	}
	return records, nil
}
