package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotAvailable is the placeholder stored for scalar fields missing from a page.
const NotAvailable = "N/A"

type ScrapeRun struct {
	ID          uuid.UUID        `db:"id"`
	SourceURL   string           `db:"source_url"`
	RunAt       time.Time        `db:"run_at"`
	ReleaseDate time.Time        `db:"release_date"`
	ListingDate string           `db:"listing_date"`
	TenderCount int              `db:"tender_count"`
	Categories  []TenderCategory `db:"-"`
}

// Listing is the parsed daily listing page.
type Listing struct {
	Date       string
	NewTenders int
	Categories []TenderCategory
}

// TenderCount sums tenders across categories.
func (l *Listing) TenderCount() int {
	n := 0
	for _, c := range l.Categories {
		n += len(c.Tenders)
	}
	return n
}

type TenderCategory struct {
	ID          uuid.UUID       `db:"id"`
	RunID       uuid.UUID       `db:"run_id"`
	Name        string          `db:"name"`
	TenderCount int             `db:"tender_count"`
	Tenders     []ListingTender `db:"-"`
}

// ListingTender is the stub a listing row yields before its detail page is fetched.
type ListingTender struct {
	TenderID string
	Title    string
	URL      string
	City     string
	Summary  string
	Value    string
	DueDate  string
	FolderID *uuid.UUID
}

type TenderSnapshot struct {
	ID                uuid.UUID `db:"id"`
	RunID             uuid.UUID `db:"run_id"`
	CategoryID        uuid.UUID `db:"category_id"`
	URL               string    `db:"url"`
	TDR               string    `db:"tdr"`
	TenderNo          string    `db:"tender_no"`
	TenderID          string    `db:"tender_id"`
	Title             string    `db:"title"`
	Authority         string    `db:"authority"`
	Brief             string    `db:"brief"`
	City              string    `db:"city"`
	State             string    `db:"state"`
	DocumentFees      string    `db:"document_fees"`
	EMD               string    `db:"emd"`
	Value             float64   `db:"value"`
	TenderType        string    `db:"tender_type"`
	BiddingType       string    `db:"bidding_type"`
	CompetitionType   string    `db:"competition_type"`
	PublishDate       string    `db:"publish_date"`
	DueDate           string    `db:"due_date"`
	OpeningDate       string    `db:"opening_date"`
	Details           string    `db:"details"`
	ContactCompany    string    `db:"contact_company"`
	ContactPerson     string    `db:"contact_person"`
	ContactAddress    string    `db:"contact_address"`
	InformationSource string    `db:"information_source"`
	ScrapedAt         time.Time `db:"scraped_at"`

	Files           []TenderFile        `db:"-"`
	DocumentChanges []DocumentChange    `db:"-"`
	ActionsHistory  []ActionHistoryItem `db:"-"`
}

// Reference is the stable identity used to correlate snapshots of one tender.
func (t *TenderSnapshot) Reference() string {
	if t.TDR != "" && t.TDR != NotAvailable {
		return t.TDR
	}
	if t.TenderID != "" && t.TenderID != NotAvailable {
		return t.TenderID
	}
	return ""
}

type TenderFile struct {
	Name        string `db:"name" json:"name"`
	URL         string `db:"url" json:"url"`
	Description string `db:"description" json:"description"`
	Size        string `db:"size" json:"size"`
}

// DocumentChange is an amendment entry reported by the portal itself.
type DocumentChange struct {
	ID             string       `json:"id,omitempty"`
	Type           string       `json:"type"`
	Note           string       `json:"note"`
	Date           string       `json:"date"`
	Files          []TenderFile `json:"files,omitempty"`
	DateChangeFrom string       `json:"date_change_from,omitempty"`
	DateChangeTo   string       `json:"date_change_to,omitempty"`
}

type ActionHistoryItem struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Notes     string `json:"notes"`
}

// RemovedTender is a listing entry whose detail page could not be scraped.
type RemovedTender struct {
	TenderID string `json:"tender_id"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}
