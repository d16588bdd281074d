package audit

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"crm-audit-toolkit/internal/deaddeals"
	"crm-audit-toolkit/internal/quality"
	"crm-audit-toolkit/internal/reps"
	"crm-audit-toolkit/internal/speedtolead"
)

const ruleWidth = 43

// Report is the consolidated result of one audit run. Optional sections are
// nil when the module was skipped.
type Report struct {
	ID            uuid.UUID
	GeneratedAt   time.Time
	PeriodStart   string
	PeriodEnd     string
	DealsCount    int
	TotalPipeline float64

	DeadDeals      deaddeals.Summary
	DeadDealList   []deaddeals.DeadDeal
	SpeedToLead    *speedtolead.Summary
	Funnel         *FunnelSection
	RepPerformance *reps.Section
	DataQuality    quality.Summary

	// Skipped maps an omitted module to the reason it was omitted.
	Skipped map[string]string
}

// Meta is the report header in the structured export.
type Meta struct {
	ID            string            `json:"id"`
	DealsCount    int               `json:"deals_count"`
	TotalPipeline float64           `json:"total_pipeline"`
	PeriodStart   string            `json:"period_start"`
	PeriodEnd     string            `json:"period_end"`
	GeneratedAt   string            `json:"generated_at"`
	Skipped       map[string]string `json:"skipped,omitempty"`
}

// Export is the JSON shape of a report.
type Export struct {
	Meta    Meta           `json:"meta"`
	Results map[string]any `json:"results"`
}

func (r *Report) skip(logger *slog.Logger, module string, err error) {
	r.Skipped[module] = err.Error()
	logger.Warn("module skipped", "module", module, "reason", err)
}

// Modules maps each module that ran to its summary.
func (r *Report) Modules() map[string]any {
	modules := map[string]any{
		ModuleDeadDeals:   r.DeadDeals,
		ModuleDataQuality: r.DataQuality,
	}
	if r.SpeedToLead != nil {
		modules[ModuleSpeedToLead] = *r.SpeedToLead
	}
	if r.Funnel != nil {
		modules[ModuleFunnel] = *r.Funnel
	}
	if r.RepPerformance != nil {
		modules[ModuleRepPerformance] = *r.RepPerformance
	}
	return modules
}

// Export returns the structured form of the report.
func (r *Report) Export() Export {
	return Export{
		Meta: Meta{
			ID:            r.ID.String(),
			DealsCount:    r.DealsCount,
			TotalPipeline: r.TotalPipeline,
			PeriodStart:   r.PeriodStart,
			PeriodEnd:     r.PeriodEnd,
			GeneratedAt:   r.GeneratedAt.Format(time.RFC3339),
			Skipped:       r.Skipped,
		},
		Results: r.Modules(),
	}
}

// MarshalJSON encodes the report as its Export.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Export())
}

// Text renders the plain-text summary.
func (r *Report) Text() string {
	p := message.NewPrinter(language.English)
	rule := strings.Repeat("=", ruleWidth)

	lines := []string{
		rule,
		"         CRM AUDIT REPORT SUMMARY",
		rule,
		"",
		p.Sprintf("Period: %s to %s", r.PeriodStart, r.PeriodEnd),
		p.Sprintf("Total Deals Analyzed: %d", r.DealsCount),
		p.Sprintf("Total Pipeline Value: $%.0f", r.TotalPipeline),
	}

	dd := r.DeadDeals
	lines = append(lines,
		"",
		heading("DEAD DEALS"),
		p.Sprintf("Dead deals found: %d (%.1f%% of pipeline)", dd.Count, dd.Pct),
		p.Sprintf("Revenue at risk: $%.0f", dd.RevenueAtRisk),
	)

	if stl := r.SpeedToLead; stl != nil {
		lines = append(lines,
			"",
			heading("SPEED TO LEAD"),
			p.Sprintf("Average response time: %.1f hours", stl.AvgHours),
		)
		if stl.BestRep != nil {
			lines = append(lines, p.Sprintf("Best rep: %s (%.1f hours avg)", *stl.BestRep, *stl.BestHours))
		}
		if stl.WorstRep != nil {
			lines = append(lines, p.Sprintf("Needs improvement: %s (%.1f hours avg)", *stl.WorstRep, *stl.WorstHours))
		}
	}

	if f := r.Funnel; f != nil {
		lines = append(lines, "", heading("FUNNEL BOTTLENECK"))
		if f.BiggestDropoff != nil {
			lines = append(lines, "Biggest drop-off: "+*f.BiggestDropoff)
		}
	}

	if rp := r.RepPerformance; rp != nil {
		lines = append(lines, "", heading("REP PERFORMANCE"))
		for _, rec := range rp.Recommendations {
			lines = append(lines, "  - "+rec)
		}
	}

	lines = append(lines,
		"",
		heading("DATA QUALITY"),
		p.Sprintf("Overall score: %d/100", r.DataQuality.Score),
	)
	for _, issue := range r.DataQuality.TopIssues {
		lines = append(lines, "  - "+issue)
	}

	lines = append(lines, "", rule)
	return strings.Join(lines, "\n")
}

// heading pads a section title with a box-drawing rule to the report width.
func heading(title string) string {
	pad := ruleWidth - len(title) - 5
	if pad < 3 {
		pad = 3
	}
	return "--- " + title + " " + strings.Repeat("─", pad)
}
