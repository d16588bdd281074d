// Package funnel computes stage-reach counts and stage-to-stage conversion.
package funnel

import (
	"database/sql"
	"fmt"
	"time"

	"crm-audit-toolkit/internal/dataset"
	"crm-audit-toolkit/internal/stats"
)

// DefaultStages is the funnel used when no stage list is configured.
var DefaultStages = []string{"Lead", "Qualified", "Demo", "Proposal", "Negotiation", "Closed Won"}

// DefaultExpectedMinConversion is the bottleneck threshold in percent.
const DefaultExpectedMinConversion = 50.0

// Named periods, counted back from the reference instant.
const (
	PeriodLast3Months = "last_3_months"
	PeriodLast6Months = "last_6_months"
	PeriodLastYear    = "last_year"
)

var periodMonths = map[string]int{
	PeriodLast3Months: 3,
	PeriodLast6Months: 6,
	PeriodLastYear:    12,
}

const defaultPeriodMonths = 6

// Query selects the stage list and the creation-date window. Period wins over
// Start/End when both are set. Bounds are inclusive.
type Query struct {
	Stages []string
	Period string
	Start  *time.Time
	End    *time.Time
}

// StageRate is one funnel row. ConversionPct is nil for the first stage and
// whenever the previous stage has no deals.
type StageRate struct {
	Stage         string   `json:"stage"`
	Count         int      `json:"count"`
	ConversionPct *float64 `json:"conversion_pct"`
}

// Summary is the funnel section of the audit report.
type Summary struct {
	BiggestDropoff  *string     `json:"biggest_dropoff"`
	ConversionRates []StageRate `json:"conversion_rates"`
}

// Analyzer holds a private copy of deals with parsed creation dates.
type Analyzer struct {
	deals    *dataset.Table
	created  []sql.NullTime
	statuses []dataset.Status
}

// New requires created_at (parseable) and stage.
func New(deals *dataset.Table) (*Analyzer, error) {
	deals = deals.Clone()
	if err := deals.Require(dataset.ColStage); err != nil {
		return nil, fmt.Errorf("funnel: %w", err)
	}
	created, err := deals.Times(dataset.ColCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("funnel: %w", err)
	}
	statuses, _ := deals.Statuses(dataset.ColStatus)
	return &Analyzer{deals: deals, created: created, statuses: statuses}, nil
}

// Analyze counts, per stage, the deals whose furthest stage is at or past it.
// Won deals count as reaching the final stage. Deals whose stage is not in
// the list are ignored.
func (a *Analyzer) Analyze(q Query, asOf time.Time) *Result {
	stages := q.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	order := make(map[string]int, len(stages))
	for i, stage := range stages {
		if _, exists := order[stage]; !exists {
			order[stage] = i
		}
	}

	start, end := window(q, asOf)
	counts := make([]int, len(stages))
	for row := 0; row < a.deals.Len(); row++ {
		if !a.inWindow(row, start, end) {
			continue
		}
		idx, ok := order[a.deals.Value(row, dataset.ColStage)]
		if !ok {
			continue
		}
		if a.statuses[row] == dataset.StatusWon {
			idx = len(stages) - 1
		}
		for i := 0; i <= idx; i++ {
			counts[i]++
		}
	}

	rows := make([]StageRate, len(stages))
	for i, stage := range stages {
		rows[i] = StageRate{Stage: stage, Count: counts[i]}
	}
	return &Result{stages: rows}
}

func (a *Analyzer) inWindow(row int, start, end *time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	created := a.created[row]
	if !created.Valid {
		return false
	}
	if start != nil && created.Time.Before(*start) {
		return false
	}
	if end != nil && created.Time.After(*end) {
		return false
	}
	return true
}

func window(q Query, asOf time.Time) (start, end *time.Time) {
	if q.Period != "" {
		months, ok := periodMonths[q.Period]
		if !ok {
			months = defaultPeriodMonths
		}
		from := subtractMonths(asOf, months)
		return &from, &asOf
	}
	return q.Start, q.End
}

// subtractMonths moves back whole calendar months, clamping the day to the
// end of the target month (Aug 31 minus 6 months is Feb 28).
func subtractMonths(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()-time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return firstOfTarget.AddDate(0, 0, day-1)
}

// Result holds stage counts for one Analyze call.
type Result struct {
	stages []StageRate
}

// Counts returns the per-stage counts without rates.
func (r *Result) Counts() []StageRate {
	out := make([]StageRate, len(r.stages))
	copy(out, r.stages)
	return out
}

// ConversionRates fills ConversionPct as count[i]/count[i-1]*100, rounded to
// one decimal.
func (r *Result) ConversionRates() []StageRate {
	rates := r.Counts()
	for i := 1; i < len(rates); i++ {
		prev := rates[i-1].Count
		if prev <= 0 {
			continue
		}
		pct := stats.Round1(float64(rates[i].Count) / float64(prev) * 100)
		rates[i].ConversionPct = &pct
	}
	return rates
}

// Bottlenecks returns rows whose conversion is defined and below expectedMin.
func (r *Result) Bottlenecks(expectedMin float64) []StageRate {
	out := make([]StageRate, 0)
	for _, row := range r.ConversionRates() {
		if row.ConversionPct != nil && *row.ConversionPct < expectedMin {
			out = append(out, row)
		}
	}
	return out
}

// Summary names the transition with the lowest conversion. The earliest stage
// wins ties.
func (r *Result) Summary() Summary {
	rates := r.ConversionRates()
	summary := Summary{ConversionRates: rates}

	worst := -1
	for i, row := range rates {
		if row.ConversionPct == nil {
			continue
		}
		if worst < 0 || *row.ConversionPct < *rates[worst].ConversionPct {
			worst = i
		}
	}
	if worst > 0 {
		dropoff := fmt.Sprintf("%s -> %s (%.0f%% loss)",
			rates[worst-1].Stage, rates[worst].Stage, 100-*rates[worst].ConversionPct)
		summary.BiggestDropoff = &dropoff
	}
	return summary
}
