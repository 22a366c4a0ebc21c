package portal

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tender_fetcher/internal/domain"
)

// ErrNoContainer is returned when a detail page lacks the tender details container.
var ErrNoContainer = errors.New("tender details container not found")

var containerSelectors = []string{
	"div.tender-details-home",
	"div.tender-details",
	"#tender-details",
}

var fileLinkHints = []string{"download", ".pdf", ".doc", ".xls", "file", "attachment"}

var dateChangeRe = regexp.MustCompile(`(?i)from\s+(.+?)\s+to\s+(.+)$`)

// ParseDetail extracts a tender snapshot from a detail page. Missing sections
// leave their fields at "N/A"; only a missing container is an error.
func ParseDetail(html []byte) (*domain.TenderSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var container *goquery.Selection
	for _, sel := range containerSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			container = found
			break
		}
	}
	if container == nil {
		return nil, ErrNoContainer
	}

	sections := locateSections(container)

	snap := &domain.TenderSnapshot{
		DocumentChanges: []domain.DocumentChange{},
		ActionsHistory:  []domain.ActionHistoryItem{},
		Files:           []domain.TenderFile{},
	}
	parseNotice(snap, sections[sectionNotice])
	parseDetails(snap, sections[sectionDetails])
	parseDates(snap, sections[sectionDates])
	parseContact(snap, sections[sectionContact])
	parseOther(snap, sections[sectionOther])
	snap.DocumentChanges = parseDocumentChanges(sections[sectionChanges])
	snap.ActionsHistory = parseActions(sections[sectionActions])

	snap.Title = snap.Brief
	return snap, nil
}

func parseNotice(snap *domain.TenderSnapshot, tbl *goquery.Selection) {
	rows := bodyRows(tbl)
	snap.TDR = rowValue(rows, "TDR")
	snap.Authority = rowValue(rows, "Tendering Authority")
	snap.TenderNo = rowValue(rows, "Tender No")
	snap.TenderID = rowValue(rows, "Tender ID")
	snap.Brief = rowValue(rows, "Tender Brief")
	snap.City = rowValue(rows, "City")
	snap.State = rowValue(rows, "State")
	snap.DocumentFees = rowValue(rows, "Document Fees")
	snap.EMD = rowValue(rows, "EMD")
	snap.Value = ParseAmount(rowValue(rows, "Tender Value"))
	snap.TenderType = rowValue(rows, "Tender Type")
	snap.BiddingType = rowValue(rows, "Bidding Type")
	snap.CompetitionType = rowValue(rows, "Competition Type")
}

func parseDetails(snap *domain.TenderSnapshot, tbl *goquery.Selection) {
	if tbl == nil {
		snap.Details = domain.NotAvailable
		return
	}
	if p := tbl.Find("p").First(); p.Length() > 0 {
		snap.Details = cleanText(p.Text())
	} else {
		snap.Details = cleanText(tbl.Text())
	}
	if snap.Details == "" {
		snap.Details = domain.NotAvailable
	}
}

func parseDates(snap *domain.TenderSnapshot, tbl *goquery.Selection) {
	rows := bodyRows(tbl)
	snap.PublishDate = rowValue(rows, "Publish Date")
	snap.DueDate = rowValue(rows, "Last Date of Bid Submission")
	snap.OpeningDate = rowValue(rows, "Tender Opening Date")
}

func parseContact(snap *domain.TenderSnapshot, tbl *goquery.Selection) {
	rows := bodyRows(tbl)
	snap.ContactCompany = rowValue(rows, "Company Name")
	snap.ContactPerson = rowValue(rows, "Contact Person")
	snap.ContactAddress = rowValue(rows, "Address")
}

func parseOther(snap *domain.TenderSnapshot, tbl *goquery.Selection) {
	snap.InformationSource = domain.NotAvailable
	if tbl == nil {
		return
	}

	var rows []*goquery.Selection
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ParentsFiltered("table").First().IsSelection(tbl) {
			rows = append(rows, tr)
		}
	})
	snap.InformationSource = rowValue(rows, "Information Source")

	if nested := tbl.Find("table").First(); nested.Length() > 0 {
		snap.Files = filesFromTable(nested)
		return
	}
	snap.Files = filesFromLinks(tbl)
}

func filesFromTable(tbl *goquery.Selection) []domain.TenderFile {
	files := []domain.TenderFile{}
	for _, row := range bodyRows(tbl) {
		link := row.Find("a[href]").First()
		cells := row.ChildrenFiltered("td")
		if link.Length() == 0 || cells.Length() < 2 {
			continue
		}
		href, _ := link.Attr("href")
		files = append(files, fileFromCells(cells, link, href))
	}
	return files
}

func filesFromLinks(tbl *goquery.Selection) []domain.TenderFile {
	files := []domain.TenderFile{}
	tbl.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		if !looksLikeFile(href) {
			return
		}
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		files = append(files, fileFromCells(cells, link, href))
	})
	return files
}

func fileFromCells(cells, link *goquery.Selection, href string) domain.TenderFile {
	f := domain.TenderFile{
		Name:        cleanText(cells.Eq(1).Text()),
		URL:         strings.TrimSpace(href),
		Description: "Document",
		Size:        "Unknown",
	}
	if f.Name == "" {
		f.Name = cleanText(link.Text())
	}
	if cells.Length() > 2 {
		if d := cleanText(cells.Eq(2).Text()); d != "" {
			f.Description = d
		}
	}
	if cells.Length() > 3 {
		if s := cleanText(cells.Eq(3).Text()); s != "" {
			f.Size = s
		}
	}
	return f
}

func looksLikeFile(href string) bool {
	href = strings.ToLower(href)
	for _, hint := range fileLinkHints {
		if strings.Contains(href, hint) {
			return true
		}
	}
	return false
}

// parseDocumentChanges reads rows laid out as [date, type, note, files...].
func parseDocumentChanges(tbl *goquery.Selection) []domain.DocumentChange {
	changes := []domain.DocumentChange{}
	for _, row := range bodyRows(tbl) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 3 {
			continue
		}
		change := domain.DocumentChange{
			Date:  cleanText(cells.Eq(0).Text()),
			Type:  strings.ToLower(cleanText(cells.Eq(1).Text())),
			Note:  cleanText(cells.Eq(2).Text()),
			Files: []domain.TenderFile{},
		}
		if id, ok := row.Attr("data-id"); ok {
			change.ID = id
		}
		if m := dateChangeRe.FindStringSubmatch(change.Note); m != nil {
			change.DateChangeFrom = strings.TrimSpace(m[1])
			change.DateChangeTo = strings.TrimSpace(m[2])
		}
		row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			change.Files = append(change.Files, domain.TenderFile{
				Name:        cleanText(a.Text()),
				URL:         strings.TrimSpace(href),
				Description: "Document",
				Size:        "Unknown",
			})
		})
		changes = append(changes, change)
	}
	return changes
}

// parseActions reads rows laid out as [action, timestamp, user, notes].
func parseActions(tbl *goquery.Selection) []domain.ActionHistoryItem {
	items := []domain.ActionHistoryItem{}
	for _, row := range bodyRows(tbl) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			continue
		}
		item := domain.ActionHistoryItem{
			Action:    cleanText(cells.Eq(0).Text()),
			Timestamp: cleanText(cells.Eq(1).Text()),
		}
		if cells.Length() > 2 {
			item.User = cleanText(cells.Eq(2).Text())
		}
		if cells.Length() > 3 {
			item.Notes = cleanText(cells.Eq(3).Text())
		}
		items = append(items, item)
	}
	return items
}
