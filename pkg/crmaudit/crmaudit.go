// Package crmaudit audits CRM exports for stale deals, slow responses,
// funnel leaks, rep performance gaps and data hygiene.
//
// Quick start:
//
//	a, err := crmaudit.New(crmaudit.WithAsOf(time.Now()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	in, err := a.LoadFiles("deals.csv", "activities.csv", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := a.Run(ctx, in)
//	fmt.Println(report.Text())
package crmaudit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crm-audit-toolkit/internal/audit"
	"crm-audit-toolkit/internal/config"
	"crm-audit-toolkit/internal/dataset"
	apperrors "crm-audit-toolkit/internal/errors"
	"crm-audit-toolkit/internal/funnel"
	"crm-audit-toolkit/internal/reps"
	"crm-audit-toolkit/internal/source/postgres"
	"crm-audit-toolkit/internal/speedtolead"
)

type (
	// Report is the consolidated audit result.
	Report = audit.Report
	// Input is the set of tables for one run.
	Input = audit.Input
	// Table is a loaded CRM export.
	Table = dataset.Table
)

// Auditor loads CRM tables and audits them with one configuration.
type Auditor struct {
	opts     options
	settings audit.Settings
	auditor  *audit.Auditor
}

// New validates the configuration and returns an Auditor.
func New(opts ...Option) (*Auditor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	settings, err := Settings(o.cfg)
	if err != nil {
		return nil, err
	}
	return &Auditor{
		opts:     o,
		settings: settings,
		auditor:  audit.New(o.logger),
	}, nil
}

// Config returns the effective configuration.
func (a *Auditor) Config() *config.Config {
	return a.opts.cfg
}

// LoadFiles reads CSV or XLSX exports. Empty paths for activities and
// contacts leave those tables out.
func (a *Auditor) LoadFiles(deals, activities, contacts string) (Input, error) {
	var in Input
	if deals == "" {
		return in, apperrors.NewConfigError("deals file is required", nil)
	}
	var err error
	if in.Deals, err = a.loadFile("deals", deals); err != nil {
		return Input{}, err
	}
	if activities != "" {
		if in.Activities, err = a.loadFile("activities", activities); err != nil {
			return Input{}, err
		}
	}
	if contacts != "" {
		if in.Contacts, err = a.loadFile("contacts", contacts); err != nil {
			return Input{}, err
		}
	}
	return in, nil
}

func (a *Auditor) loadFile(name, path string) (*dataset.Table, error) {
	table, err := dataset.LoadFile(name, path, a.opts.cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	a.opts.logger.Info("table loaded", "table", name, "path", path, "rows", table.Len())
	return table, nil
}

// LoadPostgres reads the named tables from the configured schema and
// applies the column mapping.
func (a *Auditor) LoadPostgres(ctx context.Context, q postgres.Querier, tables postgres.Tables) (Input, error) {
	deals, activities, contacts, err := postgres.LoadTables(ctx, q, a.opts.cfg.Database.Schema, tables)
	if err != nil {
		return Input{}, err
	}
	in := Input{Deals: deals, Activities: activities, Contacts: contacts}
	for _, table := range []*dataset.Table{in.Deals, in.Activities, in.Contacts} {
		if table != nil {
			table.Rename(a.opts.cfg.Columns)
		}
	}
	a.opts.logger.Info("tables loaded from postgres",
		"schema", a.opts.cfg.Database.Schema,
		"deals", in.Deals.Len(),
		"activities", in.Activities.Len(),
		"contacts", in.Contacts.Len(),
	)
	return in, nil
}

// Run audits in. The reference instant is WithAsOf when set, the wall
// clock otherwise.
func (a *Auditor) Run(ctx context.Context, in Input) (*Report, error) {
	asOf := a.opts.asOf
	if asOf.IsZero() {
		asOf = a.opts.now()
	}
	return a.auditor.Run(ctx, in, a.settings, asOf)
}

// Settings resolves a configuration into analyzer parameters.
func Settings(cfg *config.Config) (audit.Settings, error) {
	settings := audit.DefaultSettings()
	settings.StaleDealDays = cfg.Thresholds.StaleDealDays
	settings.MinDealAmount = cfg.Thresholds.MinDealAmount
	settings.ExpectedMinConversion = cfg.Thresholds.ExpectedMinConversion
	settings.RequiredFields = cfg.Quality.RequiredFields
	settings.SpeedToLead = speedtolead.Options{
		BusinessHoursOnly: cfg.SpeedToLead.BusinessHoursOnly,
		ExcludeWeekends:   cfg.SpeedToLead.ExcludeWeekends,
	}
	settings.Reps = reps.Options{
		Metrics:     cfg.Reps.Metrics,
		NormalizeBy: cfg.Reps.NormalizeBy,
	}

	query := funnel.Query{Stages: cfg.Stages, Period: cfg.Funnel.Period}
	var err error
	if query.Start, err = parseBound("funnel.start_date", cfg.Funnel.StartDate); err != nil {
		return audit.Settings{}, err
	}
	if query.End, err = parseBound("funnel.end_date", cfg.Funnel.EndDate); err != nil {
		return audit.Settings{}, err
	}
	settings.Funnel = query
	return settings, nil
}

func parseBound(key, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := dataset.ParseTime(value)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("invalid %s", key), err)
	}
	return &parsed, nil
}
