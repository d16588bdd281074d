// Package exporter writes audit reports to JSON, HTML and CSV files.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"

	"crm-audit-toolkit/internal/audit"
	"crm-audit-toolkit/internal/dataset"
)

// utf8BOM makes Excel open the CSV as UTF-8.
const utf8BOM = "\ufeff"

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>CRM Audit Report</title>
    <style>
        body { font-family: monospace; padding: 2em; background: #f9f9f9; }
        pre { background: #fff; padding: 2em; border: 1px solid #ddd; border-radius: 4px; }
        h1 { color: #333; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>CRM Audit Report</h1>
    <p class="meta">Generated: {{.Generated}} &middot; Run {{.ID}}</p>
    <pre>{{.Summary}}</pre>
</body>
</html>
`))

// WriteJSON writes the structured export, indented.
func WriteJSON(report *audit.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RenderHTML writes the text summary wrapped in an HTML page. The summary is
// escaped by the template.
func RenderHTML(w io.Writer, report *audit.Report) error {
	return htmlTemplate.Execute(w, struct {
		Generated string
		ID        string
		Summary   string
	}{
		Generated: report.GeneratedAt.Format("2006-01-02 15:04"),
		ID:        report.ID.String(),
		Summary:   report.Text(),
	})
}

// WriteHTML writes the HTML page to path.
func WriteHTML(report *audit.Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return RenderHTML(file, report)
}

// WriteDeadDealsCSV writes one row per dead deal, most stale first.
func WriteDeadDealsCSV(report *audit.Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.WriteString(file, utf8BOM); err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"deal_id",
		"owner",
		"stage",
		"amount",
		"updated_at",
		"days_stale",
	}); err != nil {
		return err
	}

	for _, deal := range report.DeadDealList {
		record := []string{
			deal.DealID,
			deal.Owner,
			deal.Stage,
			fmt.Sprintf("%.2f", deal.Amount),
			dataset.FormatDate(deal.UpdatedAt),
			fmt.Sprintf("%d", deal.DaysStale),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
