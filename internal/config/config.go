// Package config loads the reminder's construction-time configuration from
// defaults, an optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/trainreminder/trainreminder/internal/reminder"
	"github.com/trainreminder/trainreminder/internal/transit"
)

// FileEnv names the environment variable holding the optional YAML file path.
const FileEnv = "REMINDER_CONFIG"

// Notifier kinds.
const (
	NotifierDesktop = "desktop"
	NotifierLog     = "log"
)

// Config is the full process configuration.
type Config struct {
	Route       RouteConfig     `yaml:"route"`
	Transit     TransitConfig   `yaml:"transit"`
	Notifier    string          `yaml:"notifier" validate:"oneof=desktop log"`
	Status      StatusConfig    `yaml:"status"`
	Log         LogConfig       `yaml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Environment string          `yaml:"environment" validate:"required"`
}

// RouteConfig describes the monitored route and the loop timings.
type RouteConfig struct {
	// Origin and Destination are upstream stop identifiers, not station names.
	Origin      string `yaml:"origin" validate:"required,numeric"`
	Destination string `yaml:"destination" validate:"required,numeric,nefield=Origin"`

	ReminderLeadMinutes int `yaml:"reminder_lead_minutes" validate:"gte=0,lte=1440"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds" validate:"gt=0"`
	CooldownSeconds     int `yaml:"cooldown_seconds" validate:"gt=0"`
}

// TransitConfig describes the journeys API.
type TransitConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	Language       string `yaml:"language" validate:"required,alpha,len=2"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gt=0,lte=60"`
}

// StatusConfig describes the optional local status server. Empty Addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig describes console logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// TelemetryConfig describes OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
}

// Default returns the built-in configuration: Checkpoint Charlie to Unter den Linden
// on VBB, five minutes lead, one poll per minute.
func Default() Config {
	return Config{
		Route: RouteConfig{
			Origin:              "900000012102",
			Destination:         "900000100025",
			ReminderLeadMinutes: int(reminder.DefaultReminderLead / time.Minute),
			PollIntervalSeconds: int(reminder.DefaultPollInterval / time.Second),
			CooldownSeconds:     int(reminder.DefaultCooldown / time.Second),
		},
		Transit: TransitConfig{
			BaseURL:        "https://v5.vbb.transport.rest",
			Language:       "en",
			TimeoutSeconds: 5,
		},
		Notifier: NotifierDesktop,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
		Environment: "development",
	}
}

// Load builds the configuration from defaults, the file named by REMINDER_CONFIG
// (if set) and environment overrides, then validates it.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Reminder converts the route section into loop configuration.
func (c Config) Reminder() reminder.Config {
	return reminder.Config{
		Route: transit.Route{
			Origin:      c.Route.Origin,
			Destination: c.Route.Destination,
		},
		ReminderLead: time.Duration(c.Route.ReminderLeadMinutes) * time.Minute,
		PollInterval: time.Duration(c.Route.PollIntervalSeconds) * time.Second,
		Cooldown:     time.Duration(c.Route.CooldownSeconds) * time.Second,
	}
}

// TransitTimeout returns the per-request timeout.
func (c Config) TransitTimeout() time.Duration {
	return time.Duration(c.Transit.TimeoutSeconds) * time.Second
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Route.Origin, "REMINDER_ORIGIN")
	setString(&c.Route.Destination, "REMINDER_DESTINATION")
	setString(&c.Transit.BaseURL, "TRANSIT_API_URL")
	setString(&c.Transit.Language, "TRANSIT_API_LANGUAGE")
	setString(&c.Notifier, "REMINDER_NOTIFIER")
	setString(&c.Status.Addr, "STATUS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Environment, "APP_ENV")
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	ints := []struct {
		dst *int
		key string
	}{
		{&c.Route.ReminderLeadMinutes, "REMINDER_LEAD_MINUTES"},
		{&c.Route.PollIntervalSeconds, "REMINDER_POLL_INTERVAL_SECONDS"},
		{&c.Route.CooldownSeconds, "REMINDER_COOLDOWN_SECONDS"},
		{&c.Transit.TimeoutSeconds, "TRANSIT_API_TIMEOUT"},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing OTEL_ENABLED: %w", err)
		}
		c.Telemetry.Enabled = enabled
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = n
	return nil
}
