package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tender_fetcher/internal/domain"
)

type watchedField struct {
	name  string
	label string
	value func(*domain.TenderSnapshot) string
}

var watchedFields = []watchedField{
	{"tender_value", "Tender Value", func(s *domain.TenderSnapshot) string { return formatAmount(s.Value) }},
	{"emd", "EMD", func(s *domain.TenderSnapshot) string { return s.EMD }},
	{"publish_date", "Publish Date", func(s *domain.TenderSnapshot) string { return s.PublishDate }},
	{"due_date", "Last Date of Bid Submission", func(s *domain.TenderSnapshot) string { return s.DueDate }},
	{"opening_date", "Tender Opening Date", func(s *domain.TenderSnapshot) string { return s.OpeningDate }},
	{"authority", "Tendering Authority", func(s *domain.TenderSnapshot) string { return s.Authority }},
	{"tender_type", "Tender Type", func(s *domain.TenderSnapshot) string { return s.TenderType }},
	{"bidding_type", "Bidding Type", func(s *domain.TenderSnapshot) string { return s.BiddingType }},
}

// deadlineFields turn a whole change set into a bid deadline extension.
var deadlineFields = map[string]bool{
	"due_date":     true,
	"opening_date": true,
}

// FieldLabel returns the display label for a watched field name.
func FieldLabel(field string) string {
	for _, f := range watchedFields {
		if f.name == field {
			return f.label
		}
	}
	return field
}

// Diff compares two snapshots of the same tender. It is pure: equal inputs always
// yield equal output, and DetectedAt is taken from next.ScrapedAt.
func Diff(prev, next *domain.TenderSnapshot) []domain.ChangeRecord {
	if prev == nil || next == nil {
		return nil
	}

	var records []domain.ChangeRecord
	changeType := domain.ChangeCorrigendum

	for _, f := range watchedFields {
		oldValue := displayValue(f.value(prev))
		newValue := displayValue(f.value(next))
		if strings.EqualFold(oldValue, newValue) {
			continue
		}
		if deadlineFields[f.name] {
			changeType = domain.ChangeBidDeadlineExtension
		}
		records = append(records, domain.ChangeRecord{
			Reference:     next.Reference(),
			OldSnapshotID: prev.ID,
			NewSnapshotID: next.ID,
			Field:         f.name,
			OldValue:      oldValue,
			NewValue:      newValue,
			DetectedAt:    next.ScrapedAt,
		})
	}

	for i := range records {
		records[i].Type = changeType
	}
	return records
}

// displayValue trims, collapses whitespace and maps the missing placeholder to "".
func displayValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if strings.EqualFold(s, domain.NotAvailable) {
		return ""
	}
	return s
}

func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// HistoryEntry summarises detected changes as a document change entry.
func HistoryEntry(records []domain.ChangeRecord) domain.DocumentChange {
	lines := []string{fmt.Sprintf("Corrigendum detected: %d changes", len(records))}
	entry := domain.DocumentChange{Type: string(domain.ChangeCorrigendum), Files: []domain.TenderFile{}}

	for _, r := range records {
		oldValue, newValue := r.OldValue, r.NewValue
		if oldValue == "" {
			oldValue = "Not set"
		}
		if newValue == "" {
			newValue = "Removed"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s → %s", FieldLabel(r.Field), oldValue, newValue))

		entry.Type = string(r.Type)
		entry.Date = r.DetectedAt.UTC().Format(time.RFC3339)
		if r.Field == "due_date" && r.OldValue != "" && r.NewValue != "" {
			entry.DateChangeFrom = r.OldValue
			entry.DateChangeTo = r.NewValue
		}
	}

	entry.Note = strings.Join(lines, "\n")
	return entry
}

// Detector finds and records changes between consecutive snapshots of a tender.
type Detector struct {
	snapshots SnapshotStore
	changes   ChangeStore
	logger    *slog.Logger
}

func NewDetector(snapshots SnapshotStore, changes ChangeStore, logger *slog.Logger) *Detector {
	return &Detector{
		snapshots: snapshots,
		changes:   changes,
		logger:    logger.With("component", "corrigendum"),
	}
}

// Detect returns the changes between snap and the prior snapshot of reference.
// It writes nothing.
func (d *Detector) Detect(ctx context.Context, reference string, snap *domain.TenderSnapshot) ([]domain.ChangeRecord, error) {
	if reference == "" {
		return nil, nil
	}
	prev, err := d.snapshots.GetPrevious(ctx, reference, snap)
	if err != nil {
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	}
	return Diff(prev, snap), nil
}

// Apply detects changes and replaces the stored records for the snapshot pair.
// Applying twice leaves the same rows.
func (d *Detector) Apply(ctx context.Context, reference string, snap *domain.TenderSnapshot, actor *uuid.UUID, note string) ([]domain.ChangeRecord, error) {
	if reference == "" {
		return nil, nil
	}
	prev, err := d.snapshots.GetPrevious(ctx, reference, snap)
	if err != nil {
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	}
	if prev == nil {
		return nil, nil
	}

	records := Diff(prev, snap)
	for i := range records {
		records[i].Actor = actor
		records[i].Note = note
	}

	if err := d.changes.ReplaceForPair(ctx, prev.ID, snap.ID, records); err != nil {
		return nil, fmt.Errorf("store change records: %w", err)
	}

	if len(records) > 0 {
		d.logger.Info("changes detected",
			"reference", reference,
			"count", len(records),
			"type", records[0].Type,
		)
	}
	return records, nil
}

// History lists recorded changes for a reference, newest first.
func (d *Detector) History(ctx context.Context, reference string) ([]domain.ChangeRecord, error) {
	records, err := d.changes.ListByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return records, nil
}
