// Package config loads audit configuration from a YAML file and the environment.
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "crm-audit-toolkit/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g.
// CRM_AUDIT_THRESHOLDS_STALE_DEAL_DAYS or CRM_AUDIT_DATABASE_URL. Leaf
// fields carry no envconfig name, so only the prefixed key is read and bare
// shell variables such as URL or LEVEL are ignored.
const EnvPrefix = "CRM_AUDIT"

// Config is the complete audit configuration.
type Config struct {
	// Columns maps canonical column names to the names used by the export.
	Columns     map[string]string `yaml:"columns" split_words:"true"`
	Thresholds  ThresholdsConfig  `yaml:"thresholds" envconfig:"THRESHOLDS"`
	Stages      []string          `yaml:"stages" split_words:"true" validate:"omitempty,dive,required"`
	Funnel      FunnelConfig      `yaml:"funnel" envconfig:"FUNNEL"`
	SpeedToLead SpeedToLeadConfig `yaml:"speed_to_lead" envconfig:"SPEED_TO_LEAD"`
	Reps        RepsConfig        `yaml:"rep_performance" envconfig:"REPS"`
	Quality     QualityConfig     `yaml:"quality" envconfig:"QUALITY"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Database    DatabaseConfig    `yaml:"database" envconfig:"DATABASE"`
	AmoCRM      AmoCRMConfig      `yaml:"amocrm" envconfig:"AMOCRM"`
}

// ThresholdsConfig holds the analyzer thresholds.
type ThresholdsConfig struct {
	StaleDealDays         int     `yaml:"stale_deal_days" split_words:"true" validate:"gt=0"`
	MinDealAmount         float64 `yaml:"min_deal_amount" split_words:"true" validate:"gte=0"`
	ExpectedMinConversion float64 `yaml:"expected_min_conversion" split_words:"true" validate:"gte=0,lte=100"`
}

// FunnelConfig limits the funnel to a creation-date window. Period takes
// precedence over explicit dates.
type FunnelConfig struct {
	Period    string `yaml:"period" split_words:"true"`
	StartDate string `yaml:"start_date" split_words:"true" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `yaml:"end_date" split_words:"true" validate:"omitempty,datetime=2006-01-02"`
}

// SpeedToLeadConfig selects the response-time adjustments.
type SpeedToLeadConfig struct {
	BusinessHoursOnly bool `yaml:"business_hours_only" split_words:"true"`
	ExcludeWeekends   bool `yaml:"exclude_weekends" split_words:"true"`
}

// RepsConfig selects the rep comparison metrics.
type RepsConfig struct {
	Metrics     []string `yaml:"metrics" split_words:"true" validate:"omitempty,dive,oneof=conversion_rate avg_deal_size cycle_time total_revenue activity_count"`
	NormalizeBy string   `yaml:"normalize_by" split_words:"true"`
}

// QualityConfig lists fields that must not be empty. Nil keeps the default
// contact fields.
type QualityConfig struct {
	RequiredFields []string `yaml:"required_fields" split_words:"true" validate:"omitempty,dive,required"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" split_words:"true" validate:"oneof=json text"`
}

// DatabaseConfig points at a Postgres replica of the CRM.
type DatabaseConfig struct {
	URL    string `yaml:"url" split_words:"true"`
	Schema string `yaml:"schema" split_words:"true" validate:"omitempty,max=63"`
}

// AmoCRMConfig holds the lead push credentials.
type AmoCRMConfig struct {
	Domain            string  `yaml:"domain" split_words:"true" validate:"omitempty,hostname"`
	AccessToken       string  `yaml:"access_token" split_words:"true"`
	RequestsPerSecond float64 `yaml:"requests_per_second" split_words:"true" validate:"gt=0,lte=7"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Columns: map[string]string{},
		Thresholds: ThresholdsConfig{
			StaleDealDays:         30,
			ExpectedMinConversion: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Schema: "public",
		},
		AmoCRM: AmoCRMConfig{
			RequestsPerSecond: 5,
		},
	}
}

// Clone returns a deep copy. Nil slices stay nil.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Columns = maps.Clone(c.Columns)
	clone.Stages = slices.Clone(c.Stages)
	clone.Reps.Metrics = slices.Clone(c.Reps.Metrics)
	clone.Quality.RequiredFields = slices.Clone(c.Quality.RequiredFields)
	return &clone
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return apperrors.NewConfigError("invalid configuration: "+strings.Join(fields, ", "), err)
		}
		return apperrors.NewConfigError("invalid configuration", err)
	}
	return nil
}
