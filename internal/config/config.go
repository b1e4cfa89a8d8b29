// Package config loads and validates the per-domain cycle configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
)

// HindcastDateLayout is the timestamp format accepted for replay runs.
const HindcastDateLayout = "2006-01-02 15:04"

// Duration parses YAML scalars like "90s" or "2m" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Dirs holds every directory the cycle touches.
type Dirs struct {
	Precip      string `yaml:"precip"`       // working precipitation folder
	EngineInput string `yaml:"engine_input"` // engine ingestion folder
	States      string `yaml:"states"`       // state snapshot folder (read-only here)
	Store       string `yaml:"store"`        // durable store for expired forecasts
	Output      string `yaml:"output"`       // scratch output, recreated each cycle
	Data        string `yaml:"data"`         // scratch data, recreated each cycle
}

// Hindcast selects replay mode with an explicit reference timestamp.
type Hindcast struct {
	Enabled bool   `yaml:"enabled"`
	Date    string `yaml:"date"` // "2006-01-02 15:04", UTC
}

// Archive points at the remote IMERG HTTP archive.
type Archive struct {
	BaseURL    string   `yaml:"base_url"`
	Credential string   `yaml:"credential"` // registered email, used as both user and password
	Timeout    Duration `yaml:"timeout"`
}

// Alerts configures operator notification over SMTP.
type Alerts struct {
	Enabled    bool     `yaml:"enabled"`
	SMTPHost   string   `yaml:"smtp_host"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Sender     string   `yaml:"sender"`
	Recipients []string `yaml:"recipients"`
}

// Metrics configures the optional Pushgateway push at cycle end.
type Metrics struct {
	PushURL string `yaml:"push_url"`
	Job     string `yaml:"job"`
}

// Config holds all settings for one domain/subdomain, loaded from a YAML file
// and passed by value into the cycle entry point.
type Config struct {
	Domain      string `yaml:"domain"`
	Subdomain   string `yaml:"subdomain"`
	SystemName  string `yaml:"system_name"`
	SystemModel string `yaml:"system_model"`

	EnginePath     string `yaml:"engine_path"`
	TemplatePath   string `yaml:"template_path"`
	NowcastModel   string `yaml:"nowcast_model"`
	NowcastCommand string `yaml:"nowcast_command"`

	Dirs           Dirs          `yaml:"dirs"`
	StateVariables []string      `yaml:"state_variables"`
	Bounds         domain.Bounds `yaml:"bounds"`

	Hindcast Hindcast `yaml:"hindcast"`
	Archive  Archive  `yaml:"archive"`
	Alerts   Alerts   `yaml:"alerts"`
	Metrics  Metrics  `yaml:"metrics"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads a YAML configuration file, applies defaults, and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		SystemModel: "crest",
		LogLevel:    "info",
		LogFormat:   "text",
		Archive:     Archive{Timeout: Duration(2 * time.Minute)},
		Alerts:      Alerts{SMTPPort: 587},
		Metrics:     Metrics{Job: "flashcycle"},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	required := []struct{ name, value string }{
		{"domain", c.Domain},
		{"subdomain", c.Subdomain},
		{"system_name", c.SystemName},
		{"engine_path", c.EnginePath},
		{"template_path", c.TemplatePath},
		{"dirs.precip", c.Dirs.Precip},
		{"dirs.engine_input", c.Dirs.EngineInput},
		{"dirs.states", c.Dirs.States},
		{"dirs.store", c.Dirs.Store},
		{"dirs.output", c.Dirs.Output},
		{"dirs.data", c.Dirs.Data},
		{"archive.base_url", c.Archive.BaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(c.StateVariables) == 0 {
		return errors.New("state_variables must name at least one variable")
	}
	if c.Hindcast.Enabled {
		if _, err := c.HindcastDate(); err != nil {
			return err
		}
	}
	if c.Alerts.Enabled {
		if c.Alerts.SMTPHost == "" {
			return errors.New("alerts.smtp_host is required when alerting is enabled")
		}
		if c.Alerts.Sender == "" {
			return errors.New("alerts.sender is required when alerting is enabled")
		}
		if len(c.Alerts.Recipients) == 0 {
			return errors.New("alerts.recipients must name at least one address when alerting is enabled")
		}
	}
	return nil
}

// HindcastDate parses the configured replay timestamp as UTC.
func (c Config) HindcastDate() (time.Time, error) {
	t, err := time.Parse(HindcastDateLayout, c.Hindcast.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hindcast.date %q: %w", c.Hindcast.Date, err)
	}
	return t.UTC(), nil
}
