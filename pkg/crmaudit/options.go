package crmaudit

import (
	"log/slog"
	"time"

	"crm-audit-toolkit/internal/config"
)

type options struct {
	logger *slog.Logger
	cfg    *config.Config
	asOf   time.Time
	now    func() time.Time
}

// Option configures an Auditor.
type Option func(*options)

// WithLogger sets the logger used by loaders and analyzers.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConfig replaces the default configuration with a copy of cfg, so
// later options never modify the caller's value. The configuration is
// validated by New.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.cfg = cfg.Clone()
	}
}

// WithAsOf fixes the reference instant. Default: the wall clock at Run.
func WithAsOf(asOf time.Time) Option {
	return func(o *options) {
		o.asOf = asOf
	}
}

// WithStaleDealDays overrides thresholds.stale_deal_days. Apply it after
// WithConfig.
func WithStaleDealDays(days int) Option {
	return func(o *options) {
		o.config().Thresholds.StaleDealDays = days
	}
}

// WithColumns adds canonical -> source column mappings applied at load.
func WithColumns(columns map[string]string) Option {
	return func(o *options) {
		cfg := o.config()
		if cfg.Columns == nil {
			cfg.Columns = map[string]string{}
		}
		for canonical, source := range columns {
			cfg.Columns[canonical] = source
		}
	}
}

func (o *options) config() *config.Config {
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	return o.cfg
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		cfg:    config.Default(),
		now:    time.Now,
	}
}
