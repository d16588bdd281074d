package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-audit-toolkit/internal/audit"
	"crm-audit-toolkit/internal/deaddeals"
	"crm-audit-toolkit/internal/quality"
)

func sampleReport() *audit.Report {
	return &audit.Report{
		ID:            uuid.MustParse("6f1c1d0e-4a8b-4f0e-9d55-2d3c0e6b7a10"),
		GeneratedAt:   time.Date(2026, 3, 31, 9, 15, 0, 0, time.UTC),
		PeriodStart:   "2026-01-05",
		PeriodEnd:     "2026-03-31",
		DealsCount:    4,
		TotalPipeline: 4500,
		DeadDeals:     deaddeals.Summary{Count: 1, Pct: 50, RevenueAtRisk: 1000},
		DeadDealList: []deaddeals.DeadDeal{{
			DealID:    "1",
			Owner:     "Ann <ann@example.com>",
			Stage:     "Proposal",
			Amount:    1000,
			UpdatedAt: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
			DaysStale: 70,
		}},
		DataQuality: quality.Summary{Score: 100, TopIssues: []string{}},
		Skipped:     map[string]string{audit.ModuleFunnel: "funnel: missing column stage"},
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteJSON(sampleReport(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		Meta    audit.Meta                 `json:"meta"`
		Results map[string]json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "6f1c1d0e-4a8b-4f0e-9d55-2d3c0e6b7a10", decoded.Meta.ID)
	assert.Equal(t, 4, decoded.Meta.DealsCount)
	assert.Equal(t, "2026-03-31T09:15:00Z", decoded.Meta.GeneratedAt)
	assert.Contains(t, decoded.Meta.Skipped, audit.ModuleFunnel)
	assert.Contains(t, decoded.Results, audit.ModuleDeadDeals)
	assert.Contains(t, decoded.Results, audit.ModuleDataQuality)
	assert.NotContains(t, decoded.Results, audit.ModuleFunnel)
}

func TestRenderHTMLEscapesSummary(t *testing.T) {
	report := sampleReport()
	report.DataQuality.TopIssues = []string{"Missing <email> in 3 records"}

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, report))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "Run 6f1c1d0e-4a8b-4f0e-9d55-2d3c0e6b7a10")
	assert.Contains(t, out, "CRM AUDIT REPORT SUMMARY")
	assert.Contains(t, out, "Missing &lt;email&gt; in 3 records")
	assert.NotContains(t, out, "<email>")
}

func TestWriteDeadDealsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.csv")
	require.NoError(t, WriteDeadDealsCSV(sampleReport(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte(utf8BOM)))

	records, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"deal_id", "owner", "stage", "amount", "updated_at", "days_stale"},
		{"1", "Ann <ann@example.com>", "Proposal", "1000.00", "2026-01-20", "70"},
	}, records)
}
