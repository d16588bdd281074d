// Package speedtolead measures how long deals wait for their first response.
package speedtolead

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"

	"crm-audit-toolkit/internal/dataset"
	apperrors "crm-audit-toolkit/internal/errors"
	"crm-audit-toolkit/internal/stats"
)

// ColResponseHours is the derived column added to the analyzer's copy of deals.
const ColResponseHours = "response_hours"

const (
	weekendHoursPerWeek = 48.0
	businessHoursRatio  = 8.0 / 24.0
)

// Options selects the response-time adjustments.
type Options struct {
	BusinessHoursOnly bool `json:"business_hours_only"`
	ExcludeWeekends   bool `json:"exclude_weekends"`
}

// RepLatency is one owner's response-time aggregate.
type RepLatency struct {
	Owner       string  `json:"owner"`
	MeanHours   float64 `json:"mean_hours"`
	MedianHours float64 `json:"median_hours"`
	Count       int     `json:"count"`
}

// Summary is the speed-to-lead section of the audit report. Worst fields are
// set only when at least two reps were measured.
type Summary struct {
	AvgHours   float64  `json:"avg_hours"`
	BestRep    *string  `json:"best_rep,omitempty"`
	BestHours  *float64 `json:"best_hours,omitempty"`
	WorstRep   *string  `json:"worst_rep,omitempty"`
	WorstHours *float64 `json:"worst_hours,omitempty"`
}

// Analyzer joins deals against an optional activity log.
type Analyzer struct {
	deals      *dataset.Table
	activities *dataset.Table
}

// New copies deals and activities; activities may be nil.
func New(deals, activities *dataset.Table) *Analyzer {
	return &Analyzer{deals: deals.Clone(), activities: activities.Clone()}
}

// Result holds per-deal response hours. Hours[i] is nil when deal i has no
// measurable response.
type Result struct {
	Hours []*float64

	deals     *dataset.Table
	owners    []sql.NullString
	hasOwner  bool
	statuses  []dataset.Status
	hasStatus bool
}

// Analyze computes first-response hours for every deal. The first response is
// the earliest matching activity, or updated_at when no activity log was given.
func (a *Analyzer) Analyze(opts Options) (*Result, error) {
	created, err := a.deals.Times(dataset.ColCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("speed to lead: %w", err)
	}

	var responded []sql.NullTime
	if a.activities != nil {
		responded, err = a.firstActivities()
	} else if a.deals.Has(dataset.ColUpdatedAt) {
		responded, err = a.deals.Times(dataset.ColUpdatedAt)
	} else {
		err = apperrors.NewDataShapeError("deals: no activity log and no updated_at column to measure response time", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("speed to lead: %w", err)
	}

	hours := make([]*float64, a.deals.Len())
	column := make([]dataset.Cell, a.deals.Len())
	for i := range hours {
		if !created[i].Valid || !responded[i].Valid {
			column[i] = dataset.Null()
			continue
		}
		h := adjust(responded[i].Time.Sub(created[i].Time).Hours(), opts)
		hours[i] = &h
		column[i] = dataset.Text(strconv.FormatFloat(h, 'f', -1, 64))
	}
	if err := a.deals.SetColumn(ColResponseHours, column); err != nil {
		return nil, err
	}

	result := &Result{Hours: hours, deals: a.deals}
	result.owners, result.hasOwner = a.deals.Strings(dataset.ColOwner)
	result.statuses, result.hasStatus = a.deals.Statuses(dataset.ColStatus)
	return result, nil
}

// firstActivities returns the earliest activity time per deal row.
func (a *Analyzer) firstActivities() ([]sql.NullTime, error) {
	if err := a.activities.Require(dataset.ColDealID); err != nil {
		return nil, err
	}
	times, err := a.activities.Times(dataset.ColActivityTime)
	if err != nil {
		return nil, err
	}
	if err := a.deals.Require(dataset.ColDealID); err != nil {
		return nil, err
	}

	first := make(map[string]sql.NullTime)
	for i, ts := range times {
		if !ts.Valid {
			continue
		}
		id := a.activities.Value(i, dataset.ColDealID)
		if id == "" {
			continue
		}
		if current, ok := first[id]; !ok || ts.Time.Before(current.Time) {
			first[id] = ts
		}
	}

	out := make([]sql.NullTime, a.deals.Len())
	for i := range out {
		out[i] = first[a.deals.Value(i, dataset.ColDealID)]
	}
	return out, nil
}

// adjust applies the flat weekend and business-hours approximations.
func adjust(hours float64, opts Options) float64 {
	if opts.ExcludeWeekends && hours >= 0 {
		weeks := math.Floor(hours / 24 / 7)
		hours -= weeks * weekendHoursPerWeek
	}
	if opts.BusinessHoursOnly {
		hours *= businessHoursRatio
	}
	return math.Max(hours, 0)
}

// Table returns the analyzer's private copy of deals with the response_hours column.
func (r *Result) Table() *dataset.Table {
	return r.deals
}

// Measured returns response hours for deals that have one.
func (r *Result) Measured() []float64 {
	out := make([]float64, 0, len(r.Hours))
	for _, h := range r.Hours {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}

// ByRep groups measured deals by owner, fastest mean first. Empty when the
// owner column is absent.
func (r *Result) ByRep() []RepLatency {
	if !r.hasOwner {
		return []RepLatency{}
	}

	grouped := make(map[string][]float64)
	for i, h := range r.Hours {
		if h == nil || !r.owners[i].Valid || r.owners[i].String == "" {
			continue
		}
		grouped[r.owners[i].String] = append(grouped[r.owners[i].String], *h)
	}

	owners := make([]string, 0, len(grouped))
	for owner := range grouped {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	out := make([]RepLatency, 0, len(owners))
	for _, owner := range owners {
		values := grouped[owner]
		out = append(out, RepLatency{
			Owner:       owner,
			MeanHours:   stats.Mean(values),
			MedianHours: stats.Median(values),
			Count:       len(values),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanHours < out[j].MeanHours
	})
	return out
}

// ConversionCorrelation is the Pearson correlation between response hours and
// winning. ok is false when the status column is absent. Zero variance in
// either series yields 0.
func (r *Result) ConversionCorrelation() (float64, bool) {
	if !r.hasStatus {
		return 0, false
	}
	var hours, won []float64
	for i, h := range r.Hours {
		if h == nil {
			continue
		}
		hours = append(hours, *h)
		if r.statuses[i] == dataset.StatusWon {
			won = append(won, 1)
		} else {
			won = append(won, 0)
		}
	}
	corr, ok := stats.Pearson(hours, won)
	if !ok {
		return 0, true
	}
	return corr, true
}

// Summary reports the overall mean and the fastest and slowest reps.
func (r *Result) Summary() Summary {
	summary := Summary{AvgHours: stats.Mean(r.Measured())}

	byRep := r.ByRep()
	if len(byRep) > 0 {
		best := byRep[0]
		summary.BestRep = &best.Owner
		summary.BestHours = &best.MeanHours
	}
	if len(byRep) >= 2 {
		worst := byRep[len(byRep)-1]
		summary.WorstRep = &worst.Owner
		summary.WorstHours = &worst.MeanHours
	}
	return summary
}
