// Command crmaudit audits a CRM export and prints a plain-text summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crm-audit-toolkit/internal/config"
	"crm-audit-toolkit/internal/dataset"
	"crm-audit-toolkit/internal/exporter"
	"crm-audit-toolkit/internal/logging"
	"crm-audit-toolkit/internal/source/postgres"
	"crm-audit-toolkit/pkg/crmaudit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		exitWithError(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("crmaudit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dealsPath := fs.String("deals", "", "Path to deals export (.csv or .xlsx)")
	activitiesPath := fs.String("activities", "", "Optional activity log export")
	contactsPath := fs.String("contacts", "", "Optional contacts export")
	configPath := fs.String("config", "", "Optional YAML config path")
	asOf := fs.String("as-of", "", "Reference date (YYYY-MM-DD); default now")
	staleDays := fs.Int("stale-days", 0, "Days without update before an open deal is dead")
	minAmount := fs.Float64("min-amount", 0, "Ignore dead deals below this amount")
	stages := fs.String("stages", "", "Comma-separated funnel stages in order")
	period := fs.String("period", "", "Funnel window (last_3_months, last_6_months, last_year)")
	jsonOut := fs.String("json", "", "Optional JSON output path")
	htmlOut := fs.String("html", "", "Optional HTML output path")
	deadOut := fs.String("dead-deals-csv", "", "Optional CSV output for dead deals")
	dbEnabled := fs.Bool("db", false, "Read tables from Postgres (requires CRM_AUDIT_DB_URL or DATABASE_URL)")
	dbSchema := fs.String("db-schema", "", "Postgres schema holding the CRM tables")
	dbDeals := fs.String("db-deals", "deals", "Deals table name")
	dbActivities := fs.String("db-activities", "", "Optional activities table name")
	dbContacts := fs.String("db-contacts", "", "Optional contacts table name")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, text)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dealsPath == "" && !*dbEnabled {
		return errors.New("--deals is required (or --db)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stale-days":
			cfg.Thresholds.StaleDealDays = *staleDays
		case "min-amount":
			cfg.Thresholds.MinDealAmount = *minAmount
		case "stages":
			cfg.Stages = splitList(*stages)
		case "period":
			cfg.Funnel.Period = *period
		case "db-schema":
			cfg.Database.Schema = *dbSchema
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})

	logger := logging.New(stderr, cfg.Logging.Format, logging.ParseLevel(cfg.Logging.Level))

	asOfTime := time.Now()
	if *asOf != "" {
		parsed, err := dataset.ParseTime(*asOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date: %w", err)
		}
		asOfTime = parsed
	}

	auditor, err := crmaudit.New(
		crmaudit.WithConfig(cfg),
		crmaudit.WithLogger(logger),
		crmaudit.WithAsOf(asOfTime),
	)
	if err != nil {
		return err
	}

	var in crmaudit.Input
	if *dbEnabled {
		in, err = loadFromDB(ctx, auditor, cfg, postgres.Tables{
			Deals:      *dbDeals,
			Activities: *dbActivities,
			Contacts:   *dbContacts,
		})
	} else {
		in, err = auditor.LoadFiles(*dealsPath, *activitiesPath, *contactsPath)
	}
	if err != nil {
		return err
	}

	report, err := auditor.Run(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, report.Text())

	if *jsonOut != "" {
		if err := exporter.WriteJSON(report, *jsonOut); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nJSON report saved to %s\n", *jsonOut)
	}
	if *htmlOut != "" {
		if err := exporter.WriteHTML(report, *htmlOut); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "HTML report saved to %s\n", *htmlOut)
	}
	if *deadOut != "" {
		if err := exporter.WriteDeadDealsCSV(report, *deadOut); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Dead deals CSV saved to %s\n", *deadOut)
	}
	return nil
}

func loadFromDB(ctx context.Context, auditor *crmaudit.Auditor, cfg *config.Config, tables postgres.Tables) (crmaudit.Input, error) {
	dbURL := cfg.Database.URL
	if dbURL == "" {
		dbURL = postgres.URLFromEnv()
	}
	if dbURL == "" {
		return crmaudit.Input{}, errors.New("database URL missing; set CRM_AUDIT_DB_URL or DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, dbURL)
	if err != nil {
		return crmaudit.Input{}, err
	}
	defer db.Close()
	return auditor.LoadPostgres(ctx, db.Pool, tables)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
