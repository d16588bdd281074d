// Command leadpush sends parsed community members to AmoCRM as leads, or
// writes them to a CSV for the AmoCRM import screen.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"crm-audit-toolkit/internal/amocrm"
	"crm-audit-toolkit/internal/config"
	"crm-audit-toolkit/internal/dataset"
	"crm-audit-toolkit/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		exitWithError(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("leadpush", flag.ContinueOnError)
	fs.SetOutput(stderr)

	membersPath := fs.String("members", "", "Members export (.csv or .xlsx) with username, first_name, last_name, phone")
	configPath := fs.String("config", "", "Optional YAML config path")
	exportPath := fs.String("export", "", "Write an AmoCRM import CSV instead of calling the API")
	listPipelines := fs.Bool("list-pipelines", false, "List pipelines and their statuses, then exit")
	source := fs.String("source", "telegram", "Source tag added to every lead")
	tags := fs.String("tags", "", "Comma-separated extra lead tags")
	pipelineID := fs.Int("pipeline-id", 0, "Target pipeline id")
	statusID := fs.Int("status-id", 0, "Target status id")
	responsibleID := fs.Int("responsible-user-id", 0, "Responsible user id")
	allowExisting := fs.Bool("allow-existing", false, "Create leads even when a contact with the username exists")
	baseURL := fs.String("base-url", "", "Override the API root, e.g. https://example.amocrm.ru/api/v4")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, cfg.Logging.Format, logging.ParseLevel(cfg.Logging.Level))

	if *exportPath != "" {
		members, err := loadMembers(*membersPath, cfg)
		if err != nil {
			return err
		}
		if err := amocrm.WriteImportCSV(members, *exportPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Import CSV with %d members saved to %s\n", members.Len(), *exportPath)
		return nil
	}

	client, err := newClient(cfg, *baseURL, logger)
	if err != nil {
		return err
	}

	if *listPipelines {
		pipelines, err := client.Pipelines(ctx)
		if err != nil {
			return err
		}
		for _, p := range pipelines {
			mark := ""
			if p.IsMain {
				mark = " (main)"
			}
			fmt.Fprintf(stdout, "%d %s%s\n", p.ID, p.Name, mark)
			for _, s := range p.Embedded.Statuses {
				fmt.Fprintf(stdout, "  %d %s\n", s.ID, s.Name)
			}
		}
		return nil
	}

	members, err := loadMembers(*membersPath, cfg)
	if err != nil {
		return err
	}
	opts := amocrm.DefaultPushOptions()
	opts.Source = *source
	opts.Tags = splitList(*tags)
	opts.PipelineID = *pipelineID
	opts.StatusID = *statusID
	opts.ResponsibleUserID = *responsibleID
	opts.SkipExisting = !*allowExisting

	result, err := client.PushLeads(ctx, members, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Processed: %d | Contacts created: %d | Leads created: %d | Skipped: %d\n",
		result.TotalProcessed, result.ContactsCreated, result.LeadsCreated, result.Skipped)
	return nil
}

func newClient(cfg *config.Config, baseURL string, logger *slog.Logger) (*amocrm.Client, error) {
	if cfg.AmoCRM.AccessToken == "" {
		return nil, errors.New("AmoCRM access token missing; set amocrm.access_token or CRM_AUDIT_AMOCRM_ACCESS_TOKEN")
	}
	if cfg.AmoCRM.Domain == "" && baseURL == "" {
		return nil, errors.New("AmoCRM domain missing; set amocrm.domain or CRM_AUDIT_AMOCRM_DOMAIN")
	}
	opts := []amocrm.Option{
		amocrm.WithRateLimit(cfg.AmoCRM.RequestsPerSecond),
		amocrm.WithLogger(logger),
	}
	if baseURL != "" {
		opts = append(opts, amocrm.WithBaseURL(baseURL))
	}
	return amocrm.NewClient(cfg.AmoCRM.Domain, cfg.AmoCRM.AccessToken, opts...), nil
}

func loadMembers(path string, cfg *config.Config) (*dataset.Table, error) {
	if path == "" {
		return nil, errors.New("--members is required")
	}
	members, err := dataset.LoadFile("members", path, cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	return members, nil
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
