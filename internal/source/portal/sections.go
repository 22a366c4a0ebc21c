package portal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tender_fetcher/internal/domain"
)

type section int

const (
	sectionUnknown section = iota
	sectionNotice
	sectionDetails
	sectionDates
	sectionContact
	sectionOther
	sectionChanges
	sectionActions
)

// classifyPrefix bounds how much of a table's text is inspected for its heading.
const classifyPrefix = 100

// The heading found earliest in a table's text wins; list order only breaks ties.
var sectionHeadings = []struct {
	section  section
	headings []string
}{
	{sectionNotice, []string{"tender notice"}},
	{sectionDetails, []string{"tender details"}},
	{sectionDates, []string{"key dates"}},
	{sectionContact, []string{"contact information", "contact details"}},
	{sectionOther, []string{"other detail"}},
	{sectionChanges, []string{"document changes", "corrigendum"}},
	{sectionActions, []string{"actions history", "action history"}},
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	amountRe     = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	leadingNumRe = regexp.MustCompile(`^[\d\s.)\-:]+`)
	firstIntRe   = regexp.MustCompile(`\d+`)
)

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func classify(text string) section {
	text = leadingRunes(strings.ToLower(cleanText(text)), classifyPrefix)

	best, bestAt := sectionUnknown, -1
	for _, candidate := range sectionHeadings {
		for _, h := range candidate.headings {
			at := strings.Index(text, h)
			if at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = candidate.section, at
			}
		}
	}
	return best
}

// leadingRunes returns at most n runes of s without splitting a multi-byte character.
func leadingRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// locateSections maps each recognised section to its table. Tables are classified
// by their own leading text, falling back to the nearest preceding heading element.
func locateSections(container *goquery.Selection) map[section]*goquery.Selection {
	found := make(map[section]*goquery.Selection)

	container.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		if tbl.ParentsFiltered("table").Length() > 0 {
			return
		}
		sec := classify(tbl.Text())
		if sec == sectionUnknown {
			sec = classify(precedingHeading(tbl))
		}
		if sec == sectionUnknown {
			return
		}
		if _, ok := found[sec]; !ok {
			found[sec] = tbl
		}
	})

	return found
}

func precedingHeading(tbl *goquery.Selection) string {
	prev := tbl.PrevAllFiltered("h1, h2, h3, h4, h5, h6, .heading, .title, strong, p").First()
	if prev.Length() == 0 {
		return ""
	}
	return prev.Text()
}

// bodyRows returns the direct rows of tbl with the heading row dropped.
func bodyRows(tbl *goquery.Selection) []*goquery.Selection {
	if tbl == nil {
		return nil
	}
	var rows []*goquery.Selection
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ParentsFiltered("table").First().IsSelection(tbl) {
			rows = append(rows, tr)
		}
	})
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rows
}

// rowValue returns the second cell of the first row whose label cell contains label.
func rowValue(rows []*goquery.Selection, label string) string {
	label = strings.ToLower(label)
	for _, row := range rows {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			continue
		}
		if strings.Contains(strings.ToLower(cleanText(cells.Eq(0).Text())), label) {
			if v := cleanText(cells.Eq(1).Text()); v != "" {
				return v
			}
			return domain.NotAvailable
		}
	}
	return domain.NotAvailable
}

// ParseAmount extracts the first number from currency text such as "Rs. 1,20,000.50".
// Text without digits yields 0.
func ParseAmount(text string) float64 {
	m := amountRe.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func stripLeadingNumbers(s string) string {
	return strings.TrimSpace(leadingNumRe.ReplaceAllString(s, ""))
}

// afterColon returns the text after the first colon, or the whole text.
func afterColon(s string) string {
	if _, v, ok := strings.Cut(s, ":"); ok {
		return cleanText(v)
	}
	return cleanText(s)
}
