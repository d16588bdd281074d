// Package reps compares sales reps and derives coaching recommendations.
package reps

import (
	"database/sql"
	"fmt"
	"math"
	"sort"

	"crm-audit-toolkit/internal/dataset"
	"crm-audit-toolkit/internal/stats"
)

// Metric names accepted by Compare.
const (
	MetricConversionRate = "conversion_rate"
	MetricAvgDealSize    = "avg_deal_size"
	MetricCycleTime      = "cycle_time"
	MetricTotalRevenue   = "total_revenue"
	MetricActivityCount  = "activity_count"
)

// DefaultMetrics is used when Options.Metrics is empty.
var DefaultMetrics = []string{MetricConversionRate, MetricAvgDealSize, MetricCycleTime, MetricTotalRevenue}

// UnassignedRep groups deals with no owner so revenue totals stay complete.
const UnassignedRep = "Unassigned"

const (
	lowConversionFactor = 0.8
	slowCycleFactor     = 1.3
)

// AllWithinRange is the single recommendation when no rep is flagged.
const AllWithinRange = "All reps are performing within expected ranges."

// Options selects metrics and an optional normalization column.
type Options struct {
	Metrics     []string
	NormalizeBy string
}

// RepMetrics is one row of the comparison table. Pointer fields are nil when
// the metric was not requested or its input columns are absent.
type RepMetrics struct {
	Rep                      string   `json:"rep"`
	TotalDeals               int      `json:"total_deals"`
	ConversionRate           *float64 `json:"conversion_rate,omitempty"`
	AvgDealSize              *float64 `json:"avg_deal_size,omitempty"`
	TotalRevenue             *float64 `json:"total_revenue,omitempty"`
	AvgCycleDays             *float64 `json:"avg_cycle_days,omitempty"`
	ActivityCount            *int     `json:"activity_count,omitempty"`
	NormalizationFactor      *float64 `json:"normalization_factor,omitempty"`
	NormalizedConversionRate *float64 `json:"normalized_conversion_rate,omitempty"`
}

// Section is the rep-performance part of the audit report.
type Section struct {
	Comparison      []RepMetrics `json:"comparison"`
	Recommendations []string     `json:"recommendations"`
}

// Comparator computes per-owner metrics from private copies of its inputs.
type Comparator struct {
	deals      *dataset.Table
	activities *dataset.Table
}

// New copies deals and activities; activities may be nil.
func New(deals, activities *dataset.Table) *Comparator {
	return &Comparator{deals: deals.Clone(), activities: activities.Clone()}
}

// Compare builds one row per owner in order of first appearance. It requires
// the owner column, a numeric amount column when present, and the
// normalization column when one is named.
func (c *Comparator) Compare(opts Options) (*Result, error) {
	if err := c.deals.Require(dataset.ColOwner); err != nil {
		return nil, fmt.Errorf("rep performance: %w", err)
	}
	amounts, hasAmount, err := c.deals.Floats(dataset.ColAmount)
	if err != nil {
		return nil, fmt.Errorf("rep performance: %w", err)
	}
	var factors []sql.NullFloat64
	if opts.NormalizeBy != "" {
		if err := c.deals.Require(opts.NormalizeBy); err != nil {
			return nil, fmt.Errorf("rep performance: %w", err)
		}
		if factors, _, err = c.deals.Floats(opts.NormalizeBy); err != nil {
			return nil, fmt.Errorf("rep performance: %w", err)
		}
	}

	metrics := opts.Metrics
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}
	wanted := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		wanted[m] = true
	}

	statuses, hasStatus := c.deals.Statuses(dataset.ColStatus)
	created, _ := c.deals.CoerceTimes(dataset.ColCreatedAt)
	closed, hasClosed := c.deals.CoerceTimes(dataset.ColClosedAt)
	activityDeals, hasActivities := c.activityDealIDs()

	order, groups := c.groupByOwner()
	rows := make([]RepMetrics, 0, len(order))
	for _, rep := range order {
		idx := groups[rep]
		row := RepMetrics{Rep: rep, TotalDeals: len(idx)}

		if wanted[MetricConversionRate] && hasStatus {
			won, closedCount := 0, 0
			for _, i := range idx {
				if statuses[i] == dataset.StatusWon {
					won++
				}
				if statuses[i].Closed() {
					closedCount++
				}
			}
			rate := 0.0
			if closedCount > 0 {
				rate = float64(won) / float64(closedCount) * 100
			}
			row.ConversionRate = &rate
		}

		if hasAmount && (wanted[MetricAvgDealSize] || wanted[MetricTotalRevenue]) {
			var wonAmounts []float64
			for _, i := range idx {
				if statuses[i] == dataset.StatusWon && amounts[i].Valid {
					wonAmounts = append(wonAmounts, amounts[i].Float64)
				}
			}
			if wanted[MetricAvgDealSize] {
				avg := stats.Mean(wonAmounts)
				row.AvgDealSize = &avg
			}
			if wanted[MetricTotalRevenue] {
				total := stats.Sum(wonAmounts)
				row.TotalRevenue = &total
			}
		}

		if wanted[MetricCycleTime] && hasClosed {
			var cycles []float64
			for _, i := range idx {
				if !closed[i].Valid || !created[i].Valid {
					continue
				}
				days := math.Floor(closed[i].Time.Sub(created[i].Time).Hours() / 24)
				cycles = append(cycles, math.Max(days, 0))
			}
			if len(cycles) > 0 {
				avg := stats.Mean(cycles)
				row.AvgCycleDays = &avg
			}
		}

		if wanted[MetricActivityCount] && c.activities != nil {
			count := 0
			if hasActivities {
				for _, i := range idx {
					count += activityDeals[c.deals.Value(i, dataset.ColDealID)]
				}
			}
			row.ActivityCount = &count
		}

		if factors != nil {
			var values []float64
			for _, i := range idx {
				if factors[i].Valid {
					values = append(values, factors[i].Float64)
				}
			}
			if len(values) > 0 {
				factor := stats.Mean(values)
				row.NormalizationFactor = &factor
				if row.ConversionRate != nil && factor > 0 {
					normalized := *row.ConversionRate / factor
					row.NormalizedConversionRate = &normalized
				}
			}
		}

		rows = append(rows, row)
	}
	return &Result{Rows: rows}, nil
}

func (c *Comparator) groupByOwner() ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i := 0; i < c.deals.Len(); i++ {
		owner := c.deals.Value(i, dataset.ColOwner)
		if owner == "" {
			owner = UnassignedRep
		}
		if _, seen := groups[owner]; !seen {
			order = append(order, owner)
		}
		groups[owner] = append(groups[owner], i)
	}
	return order, groups
}

// activityDealIDs counts activities per deal id. ok is false when either
// table lacks deal_id.
func (c *Comparator) activityDealIDs() (map[string]int, bool) {
	if c.activities == nil || !c.activities.Has(dataset.ColDealID) || !c.deals.Has(dataset.ColDealID) {
		return nil, false
	}
	counts := make(map[string]int)
	for i := 0; i < c.activities.Len(); i++ {
		if id := c.activities.Value(i, dataset.ColDealID); id != "" {
			counts[id]++
		}
	}
	return counts, true
}

// Result is the comparison table in owner first-appearance order.
type Result struct {
	Rows []RepMetrics
}

// Summary sorts by conversion rate descending, or by deal count when
// conversion was not computed.
func (r *Result) Summary() []RepMetrics {
	sorted := append([]RepMetrics(nil), r.Rows...)
	byConversion := len(sorted) > 0 && sorted[0].ConversionRate != nil
	sort.SliceStable(sorted, func(i, j int) bool {
		if byConversion {
			return *sorted[i].ConversionRate > *sorted[j].ConversionRate
		}
		return sorted[i].TotalDeals > sorted[j].TotalDeals
	})
	return sorted
}

// CoachingRecommendations flags reps converting below 80% of the team mean and
// reps whose cycle time exceeds 130% of it. Both rules need at least two reps.
func (r *Result) CoachingRecommendations() []string {
	var recs []string
	if len(r.Rows) > 1 && r.Rows[0].ConversionRate != nil {
		rates := make([]float64, len(r.Rows))
		for i, row := range r.Rows {
			rates[i] = *row.ConversionRate
		}
		avg := stats.Mean(rates)
		for _, row := range r.Rows {
			if *row.ConversionRate < avg*lowConversionFactor {
				recs = append(recs, fmt.Sprintf(
					"%s: conversion rate (%.1f%%) is significantly below team average (%.1f%%). Review deal qualification process.",
					row.Rep, *row.ConversionRate, avg))
			}
		}
	}

	if len(r.Rows) > 1 {
		var cycles []float64
		for _, row := range r.Rows {
			if row.AvgCycleDays != nil {
				cycles = append(cycles, *row.AvgCycleDays)
			}
		}
		if len(cycles) > 0 {
			avg := stats.Mean(cycles)
			for _, row := range r.Rows {
				if row.AvgCycleDays != nil && *row.AvgCycleDays > avg*slowCycleFactor {
					recs = append(recs, fmt.Sprintf(
						"%s: avg cycle time (%.0f days) is above team average (%.0f days). Check for stalled deals or slow follow-up.",
						row.Rep, *row.AvgCycleDays, avg))
				}
			}
		}
	}

	if len(recs) == 0 {
		return []string{AllWithinRange}
	}
	return recs
}

// Section returns the sorted comparison and its recommendations.
func (r *Result) Section() Section {
	return Section{Comparison: r.Summary(), Recommendations: r.CoachingRecommendations()}
}
