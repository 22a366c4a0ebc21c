package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"tender_fetcher/internal/domain"
)

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func renderRunResult(out io.Writer, result *domain.RunResult) {
	t := newTable(out, table.Row{"Run", "URL", "Status", "Scraped", "Changed", "Queued", "Removed", "Duration"})
	runID := ""
	if result.Status == domain.RunSuccess {
		runID = result.RunID.String()
	}
	t.AppendRow(table.Row{
		runID,
		result.URL,
		result.Status,
		result.Succeeded,
		result.Changed,
		result.Queued,
		len(result.Removed),
		result.Duration.Round(time.Millisecond),
	})
	t.Render()
	if result.Error != "" {
		fmt.Fprintln(out, "error:", result.Error)
	}

	if len(result.Removed) == 0 {
		return
	}
	removed := newTable(out, table.Row{"Tender ID", "Category", "URL", "Reason"})
	for _, r := range result.Removed {
		removed.AppendRow(table.Row{r.TenderID, r.Category, r.URL, r.Reason})
	}
	removed.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
