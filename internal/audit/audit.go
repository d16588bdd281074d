// Package audit runs every analyzer over one dataset and assembles the report.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crm-audit-toolkit/internal/dataset"
	"crm-audit-toolkit/internal/deaddeals"
	apperrors "crm-audit-toolkit/internal/errors"
	"crm-audit-toolkit/internal/funnel"
	"crm-audit-toolkit/internal/quality"
	"crm-audit-toolkit/internal/reps"
	"crm-audit-toolkit/internal/speedtolead"
	"crm-audit-toolkit/internal/stats"
)

// Module names used as report keys.
const (
	ModuleDeadDeals      = "dead_deals"
	ModuleSpeedToLead    = "speed_to_lead"
	ModuleFunnel         = "funnel"
	ModuleRepPerformance = "rep_performance"
	ModuleDataQuality    = "data_quality"
)

// UnknownPeriod is reported when no creation date can be read.
const UnknownPeriod = "unknown"

// Input is the set of tables for one audit run. Only Deals is required.
type Input struct {
	Deals      *dataset.Table
	Activities *dataset.Table
	Contacts   *dataset.Table
}

// Settings are the resolved analyzer parameters.
type Settings struct {
	StaleDealDays         int
	MinDealAmount         float64
	ExpectedMinConversion float64
	Funnel                funnel.Query
	SpeedToLead           speedtolead.Options
	Reps                  reps.Options
	// RequiredFields for the quality check. Nil means email, company and
	// phone when contacts are supplied, nothing otherwise.
	RequiredFields []string
}

// DefaultSettings mirrors the defaults of the configuration file.
func DefaultSettings() Settings {
	return Settings{
		StaleDealDays:         deaddeals.DefaultThresholdDays,
		ExpectedMinConversion: funnel.DefaultExpectedMinConversion,
	}
}

// Outcome is the result of an optional module: either a value or the
// data-shape error that made it unavailable.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the module produced a value.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// FunnelSection is the funnel summary plus the stages below the expected
// conversion.
type FunnelSection struct {
	funnel.Summary
	Bottlenecks []funnel.StageRate `json:"bottlenecks"`
}

// Auditor runs the analyzers.
type Auditor struct {
	logger *slog.Logger
	now    func() time.Time
}

// New returns an Auditor logging to logger (slog.Default when nil).
func New(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, now: time.Now}
}

// Run audits in against the reference instant asOf. The dead-deal and
// quality modules are mandatory and their errors end the run. Speed to
// lead, funnel and rep performance are omitted from the report when their
// input has the wrong shape.
func (a *Auditor) Run(ctx context.Context, in Input, settings Settings, asOf time.Time) (*Report, error) {
	if in.Deals == nil {
		return nil, apperrors.NewDataShapeError("deals table is required", nil)
	}

	var (
		deadSummary deaddeals.Summary
		deadList    []deaddeals.DeadDeal
		qualitySum  quality.Summary
		latency     Outcome[speedtolead.Summary]
		funnelOut   Outcome[FunnelSection]
		repsOut     Outcome[reps.Section]
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.module(ctx, ModuleDeadDeals, func() error {
			finder, err := deaddeals.New(in.Deals)
			if err != nil {
				return err
			}
			deadList = finder.Find(settings.StaleDealDays, settings.MinDealAmount, asOf)
			deadSummary = finder.Summary(settings.StaleDealDays, settings.MinDealAmount, asOf)
			return nil
		})
	})
	g.Go(func() error {
		return a.module(ctx, ModuleDataQuality, func() error {
			qualitySum = runQuality(in, settings)
			return nil
		})
	})
	g.Go(func() error {
		return a.module(ctx, ModuleSpeedToLead, func() error {
			latency = optional(runSpeedToLead(in, settings))
			return fatal(latency.Err)
		})
	})
	g.Go(func() error {
		return a.module(ctx, ModuleFunnel, func() error {
			funnelOut = optional(runFunnel(in, settings, asOf))
			return fatal(funnelOut.Err)
		})
	})
	g.Go(func() error {
		return a.module(ctx, ModuleRepPerformance, func() error {
			repsOut = optional(runReps(in, settings))
			return fatal(repsOut.Err)
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		ID:           uuid.New(),
		GeneratedAt:  a.now(),
		PeriodEnd:    dataset.FormatDate(asOf),
		DealsCount:   in.Deals.Len(),
		DeadDeals:    deadSummary,
		DeadDealList: deadList,
		DataQuality:  qualitySum,
		Skipped:      map[string]string{},
	}
	report.TotalPipeline, report.PeriodStart = totals(in.Deals)

	if latency.OK() {
		report.SpeedToLead = &latency.Value
	} else {
		report.skip(a.logger, ModuleSpeedToLead, latency.Err)
	}
	if funnelOut.OK() {
		report.Funnel = &funnelOut.Value
	} else {
		report.skip(a.logger, ModuleFunnel, funnelOut.Err)
	}
	if repsOut.OK() {
		report.RepPerformance = &repsOut.Value
	} else {
		report.skip(a.logger, ModuleRepPerformance, repsOut.Err)
	}

	a.logger.Info("audit complete",
		"id", report.ID.String(),
		"deals", report.DealsCount,
		"dead_deals", report.DeadDeals.Count,
		"quality_score", report.DataQuality.Score,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (a *Auditor) module(ctx context.Context, name string, run func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	a.logger.Debug("module started", "module", name)
	if err := run(); err != nil {
		a.logger.Error("module failed", "module", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	a.logger.Debug("module finished", "module", name, "duration", time.Since(start))
	return nil
}

// optional wraps an analyzer result into an Outcome.
func optional[T any](value T, err error) Outcome[T] {
	return Outcome[T]{Value: value, Err: err}
}

// fatal passes through errors that an optional module may not swallow.
func fatal(err error) error {
	if err == nil || apperrors.IsDataShape(err) {
		return nil
	}
	return err
}

func runQuality(in Input, settings Settings) quality.Summary {
	required := settings.RequiredFields
	if required == nil && in.Contacts != nil {
		required = quality.DefaultContactFields
	}
	opts := quality.DefaultOptions()
	opts.RequiredFields = required
	return quality.New(in.Deals, in.Contacts).Check(opts).Summary()
}

func runSpeedToLead(in Input, settings Settings) (speedtolead.Summary, error) {
	result, err := speedtolead.New(in.Deals, in.Activities).Analyze(settings.SpeedToLead)
	if err != nil {
		return speedtolead.Summary{}, err
	}
	return result.Summary(), nil
}

func runFunnel(in Input, settings Settings, asOf time.Time) (FunnelSection, error) {
	analyzer, err := funnel.New(in.Deals)
	if err != nil {
		return FunnelSection{}, err
	}
	result := analyzer.Analyze(settings.Funnel, asOf)
	return FunnelSection{
		Summary:     result.Summary(),
		Bottlenecks: result.Bottlenecks(settings.ExpectedMinConversion),
	}, nil
}

func runReps(in Input, settings Settings) (reps.Section, error) {
	result, err := reps.New(in.Deals, in.Activities).Compare(settings.Reps)
	if err != nil {
		return reps.Section{}, err
	}
	return result.Section(), nil
}

// totals sums the pipeline and finds the earliest creation date.
func totals(deals *dataset.Table) (float64, string) {
	pipeline := 0.0
	if amounts, err := deals.Amounts(); err == nil {
		pipeline = stats.Sum(amounts)
	}

	periodStart := UnknownPeriod
	if created, ok := deals.CoerceTimes(dataset.ColCreatedAt); ok {
		var earliest *time.Time
		for _, ts := range created {
			if ts.Valid && (earliest == nil || ts.Time.Before(*earliest)) {
				t := ts.Time
				earliest = &t
			}
		}
		if earliest != nil {
			periodStart = dataset.FormatDate(*earliest)
		}
	}
	return pipeline, periodStart
}
