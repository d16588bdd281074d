// Package deaddeals finds open deals that have gone stale.
package deaddeals

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"crm-audit-toolkit/internal/dataset"
	"crm-audit-toolkit/internal/stats"
)

// DefaultThresholdDays is used when the configuration does not set one.
const DefaultThresholdDays = 30

// DeadDeal is one open deal that has not been updated within the threshold.
type DeadDeal struct {
	Row       int       `json:"row"`
	DealID    string    `json:"deal_id,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
	DaysStale int       `json:"days_stale"`
}

// Summary is the dead-deal section of the audit report.
type Summary struct {
	Count         int     `json:"count"`
	Pct           float64 `json:"pct"`
	RevenueAtRisk float64 `json:"revenue_at_risk"`
	AvgDaysStale  float64 `json:"avg_days_stale"`
}

// Finder detects stale deals. Requires updated_at; amount and status are
// optional (amount defaults to 0, a missing status makes every deal open).
type Finder struct {
	deals     *dataset.Table
	updatedAt []sql.NullTime
	amounts   []float64
	statuses  []dataset.Status
}

// New parses the columns the finder needs from a private copy of deals.
func New(deals *dataset.Table) (*Finder, error) {
	deals = deals.Clone()
	updatedAt, err := deals.Times(dataset.ColUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("dead deals: %w", err)
	}
	amounts, err := deals.Amounts()
	if err != nil {
		return nil, fmt.Errorf("dead deals: %w", err)
	}
	statuses, _ := deals.Statuses(dataset.ColStatus)
	return &Finder{
		deals:     deals,
		updatedAt: updatedAt,
		amounts:   amounts,
		statuses:  statuses,
	}, nil
}

// Find returns open deals with amount >= minAmount whose last update is
// older than asOf minus thresholdDays, most stale first. Ties keep input order.
func (f *Finder) Find(thresholdDays int, minAmount float64, asOf time.Time) []DeadDeal {
	cutoff := asOf.AddDate(0, 0, -thresholdDays)

	dead := make([]DeadDeal, 0)
	for i, updated := range f.updatedAt {
		if !updated.Valid || !updated.Time.Before(cutoff) {
			continue
		}
		if f.amounts[i] < minAmount || f.statuses[i].Closed() {
			continue
		}
		dead = append(dead, DeadDeal{
			Row:       i,
			DealID:    f.deals.Value(i, dataset.ColDealID),
			Owner:     f.deals.Value(i, dataset.ColOwner),
			Stage:     f.deals.Value(i, dataset.ColStage),
			Amount:    f.amounts[i],
			UpdatedAt: updated.Time,
			DaysStale: daysBetween(updated.Time, asOf),
		})
	}

	sort.SliceStable(dead, func(i, j int) bool {
		return dead[i].DaysStale > dead[j].DaysStale
	})
	return dead
}

// Summary reports the count, share of open deals, revenue at risk and mean
// staleness of the deals Find returns.
func (f *Finder) Summary(thresholdDays int, minAmount float64, asOf time.Time) Summary {
	dead := f.Find(thresholdDays, minAmount, asOf)

	open := 0
	for _, status := range f.statuses {
		if !status.Closed() {
			open++
		}
	}

	summary := Summary{Count: len(dead)}
	if open > 0 {
		summary.Pct = float64(len(dead)) / float64(open) * 100
	}
	if len(dead) == 0 {
		return summary
	}

	days := make([]float64, len(dead))
	for i, deal := range dead {
		summary.RevenueAtRisk += deal.Amount
		days[i] = float64(deal.DaysStale)
	}
	summary.AvgDaysStale = stats.Mean(days)
	return summary
}

// daysBetween counts whole elapsed days, never negative.
func daysBetween(from, to time.Time) int {
	days := int(math.Floor(to.Sub(from).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
