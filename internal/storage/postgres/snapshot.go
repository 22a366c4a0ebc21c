package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tender_fetcher/internal/domain"
)

const snapshotColumns = `
	id, run_id, category_id, url, tdr, tender_no, tender_id, title, authority, brief,
	city, state, document_fees, emd, value, tender_type, bidding_type, competition_type,
	publish_date, due_date, opening_date, details, contact_company, contact_person,
	contact_address, information_source, scraped_at`

type snapshotRow struct {
	domain.TenderSnapshot
	DocumentChanges []byte `db:"document_changes"`
	ActionsHistory  []byte `db:"actions_history"`
}

type SnapshotStore struct {
	db *sqlx.DB
}

func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save appends a snapshot row and its files. Snapshots are never updated in place.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.TenderSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}

	changes, err := json.Marshal(nonNil(snap.DocumentChanges))
	if err != nil {
		return fmt.Errorf("marshal document changes: %w", err)
	}
	actions, err := json.Marshal(nonNil(snap.ActionsHistory))
	if err != nil {
		return fmt.Errorf("marshal actions history: %w", err)
	}

	exec := GetExecutor(ctx, s.db)

	_, err = exec.ExecContext(ctx, `
		INSERT INTO tender_snapshots (`+snapshotColumns+`, reference, document_changes, actions_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`,
		snap.ID, snap.RunID, snap.CategoryID, snap.URL, snap.TDR, snap.TenderNo, snap.TenderID,
		snap.Title, snap.Authority, snap.Brief, snap.City, snap.State, snap.DocumentFees,
		snap.EMD, snap.Value, snap.TenderType, snap.BiddingType, snap.CompetitionType,
		snap.PublishDate, snap.DueDate, snap.OpeningDate, snap.Details, snap.ContactCompany,
		snap.ContactPerson, snap.ContactAddress, snap.InformationSource, snap.ScrapedAt,
		snap.Reference(), string(changes), string(actions),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(snap.Files) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO tender_files (snapshot_id, name, url, description, size) VALUES ")
	args := make([]interface{}, 0, len(snap.Files)*4+1)
	args = append(args, snap.ID)
	for i, f := range snap.Files {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i*4 + 2
		fmt.Fprintf(&sb, "($1, $%d, $%d, $%d, $%d)", n, n+1, n+2, n+3)
		args = append(args, f.Name, f.URL, f.Description, f.Size)
	}

	if _, err := exec.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert files: %w", err)
	}
	return nil
}

func (s *SnapshotStore) GetPrevious(ctx context.Context, reference string, snap *domain.TenderSnapshot) (*domain.TenderSnapshot, error) {
	exec := GetExecutor(ctx, s.db)

	var row snapshotRow
	err := sqlx.GetContext(ctx, exec, &row, `
		SELECT `+snapshotColumns+`, document_changes, actions_history
		FROM tender_snapshots
		WHERE reference = $1 AND id <> $2 AND scraped_at <= $3
		ORDER BY scraped_at DESC, seq DESC
		LIMIT 1`,
		reference, snap.ID, snap.ScrapedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select previous snapshot: %w", err)
	}

	prev, err := row.decode()
	if err != nil {
		return nil, err
	}
	if err := s.attachFiles(ctx, exec, []*domain.TenderSnapshot{prev}); err != nil {
		return nil, err
	}
	return prev, nil
}

// AppendDocumentChange adds a change entry to a stored snapshot's history.
func (s *SnapshotStore) AppendDocumentChange(ctx context.Context, id uuid.UUID, change domain.DocumentChange) error {
	item, err := json.Marshal([]domain.DocumentChange{change})
	if err != nil {
		return fmt.Errorf("marshal document change: %w", err)
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE tender_snapshots
		SET document_changes = document_changes || $2::jsonb
		WHERE id = $1`, id, string(item))
	if err != nil {
		return fmt.Errorf("append document change: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("append document change: snapshot %s not found", id)
	}
	return nil
}

// ListRecent returns the newest snapshot per reference scraped since the cutoff.
func (s *SnapshotStore) ListRecent(ctx context.Context, since time.Time) ([]domain.TenderSnapshot, error) {
	exec := GetExecutor(ctx, s.db)

	var rows []snapshotRow
	err := sqlx.SelectContext(ctx, exec, &rows, `
		SELECT `+snapshotColumns+`, document_changes, actions_history
		FROM (
			SELECT DISTINCT ON (reference) *
			FROM tender_snapshots
			WHERE scraped_at >= $1
			ORDER BY reference, scraped_at DESC, seq DESC
		) latest
		ORDER BY scraped_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("select recent snapshots: %w", err)
	}

	result := make([]domain.TenderSnapshot, 0, len(rows))
	ptrs := make([]*domain.TenderSnapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.decode()
		if err != nil {
			return nil, err
		}
		result = append(result, *snap)
	}
	for i := range result {
		ptrs = append(ptrs, &result[i])
	}
	if err := s.attachFiles(ctx, exec, ptrs); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SnapshotStore) attachFiles(ctx context.Context, exec sqlx.ExtContext, snaps []*domain.TenderSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.TenderSnapshot, len(snaps))
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		snap.Files = []domain.TenderFile{}
		byID[snap.ID] = snap
		ids = append(ids, snap.ID.String())
	}

	var files []struct {
		SnapshotID uuid.UUID `db:"snapshot_id"`
		domain.TenderFile
	}
	err := sqlx.SelectContext(ctx, exec, &files, `
		SELECT snapshot_id, name, url, description, size
		FROM tender_files
		WHERE snapshot_id = ANY($1::uuid[])
		ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("select files: %w", err)
	}

	for _, f := range files {
		if snap, ok := byID[f.SnapshotID]; ok {
			snap.Files = append(snap.Files, f.TenderFile)
		}
	}
	return nil
}

func (r snapshotRow) decode() (*domain.TenderSnapshot, error) {
	snap := r.TenderSnapshot
	snap.DocumentChanges = []domain.DocumentChange{}
	snap.ActionsHistory = []domain.ActionHistoryItem{}
	if len(r.DocumentChanges) > 0 {
		if err := json.Unmarshal(r.DocumentChanges, &snap.DocumentChanges); err != nil {
			return nil, fmt.Errorf("decode document changes: %w", err)
		}
	}
	if len(r.ActionsHistory) > 0 {
		if err := json.Unmarshal(r.ActionsHistory, &snap.ActionsHistory); err != nil {
			return nil, fmt.Errorf("decode actions history: %w", err)
		}
	}
	return &snap, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
