package portal

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tender_fetcher/internal/domain"
)

const uncategorized = "Uncategorized"

// ParseListing walks the listing page. Heading columns name the category for the
// tender rows that follow them. When filter is non-empty only categories whose
// name contains one of its entries are kept.
func ParseListing(html []byte, baseURL string, filter []string) (*domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	listing := &domain.Listing{Date: "Unknown Date"}
	if d := cleanText(doc.Find("p.m-r-date").First().Text()); d != "" {
		listing.Date = d
	}
	if m := firstIntRe.FindString(doc.Find("p.m-main-count").First().Text()); m != "" {
		listing.NewTenders, _ = strconv.Atoi(m)
	}

	container := doc.Find("div.container-fluid").First()
	if container.Length() == 0 {
		return listing, nil
	}

	current := uncategorized
	container.Find("div.col-md-12").Each(func(_ int, col *goquery.Selection) {
		if col.Find("div.col-md-12").Length() > 0 {
			return
		}
		rows := col.Find("div.m-mainTR")
		if rows.Length() == 0 {
			if text := cleanText(col.Text()); text != "" {
				current = text
			}
			return
		}

		if !matchesFilter(current, filter) {
			return
		}

		var tenders []domain.ListingTender
		rows.Each(func(_ int, row *goquery.Selection) {
			tenders = append(tenders, parseListingRow(row, base))
		})
		if len(tenders) == 0 {
			return
		}
		listing.Categories = append(listing.Categories, domain.TenderCategory{
			Name:        current,
			TenderCount: len(tenders),
			Tenders:     tenders,
		})
	})

	return listing, nil
}

func parseListingRow(row *goquery.Selection, base *url.URL) domain.ListingTender {
	t := domain.ListingTender{
		Title: "Unknown Title",
		City:  "Unknown",
	}
	if title := stripLeadingNumbers(cleanText(row.Find("p.m-r-td-title").First().Text())); title != "" {
		t.Title = title
	}
	if state := cleanText(row.Find("p.m-td-state").First().Text()); state != "" {
		t.City = state
	}

	briefs := row.Find("p.m-td-brief")
	if briefs.Length() >= 3 {
		summary := briefs.Eq(0)
		t.Summary = cleanText(summary.Text())
		if strong := summary.Find("strong").First(); strong.Length() > 0 {
			t.TenderID = afterColon(strong.Text())
		}
		t.Value = afterColon(briefs.Eq(1).Text())
		t.DueDate = afterColon(briefs.Eq(2).Text())
	}

	if href, ok := row.Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			t.URL = base.ResolveReference(ref).String()
		}
	}
	return t
}

func matchesFilter(category string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	lower := strings.ToLower(category)
	for _, f := range filter {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

var listingDateLayouts = []string{
	"02 Jan 2006",
	"02-Jan-2006",
	"Jan 02, 2006",
	"January 02, 2006",
	"02 January 2006",
	"Monday, 02 January 2006",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
}

// ParseListingDate interprets the listing header date. The second return is
// false when no known layout matches.
func ParseListingDate(s string) (time.Time, bool) {
	s = cleanText(s)
	if _, after, ok := strings.Cut(s, ":"); ok {
		s = strings.TrimSpace(after)
	}
	for _, layout := range listingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
