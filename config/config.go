package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Config holds the workflow configuration. It is built once at the process
// boundary and passed down read-only.
type Config struct {
	SystemBuilderURL  string
	SystemBuilderUser string
	DownloadPath      string
	DiagnosticsDir    string
	DashboardURL      string

	Headless   bool
	BrowserBin string
	UserAgent  string

	MaxAttempts        int
	RetryDelay         time.Duration
	LaunchTimeout      time.Duration
	NavigationTimeout  time.Duration
	StepTimeout        time.Duration
	ModalAppearTimeout time.Duration
	GenerationTimeout  time.Duration
	SettleDelay        time.Duration
	ScanRounds         int
	ScanInterval       time.Duration
	DownloadTimeout    time.Duration

	OutputFile    string
	OutputFormat  string // csv, json, or dual; empty disables the cleaned output
	DedupeMaxSize int

	Schedule    string
	MetricsAddr string
	Verbose     bool

	Testing      TestingConfig
	Notification NotificationConfig
}

// TestingConfig carries operator overrides used for dry runs.
type TestingConfig struct {
	EnableDateOverride bool
	OverrideDate       string // YYYY-MM-DD
}

// NotificationConfig describes who receives the "selections ready" email.
type NotificationConfig struct {
	NotificationEmail string `validate:"omitempty,email"`
	SenderEmail       string `validate:"omitempty,email"`
	ChooserEmail      string `validate:"omitempty,email"`
	SMTPHost          string `validate:"required,hostname"`
	SMTPPort          int    `validate:"required,min=1,max=65535"`
}

// OverrideDateLayout is the layout of testing.override_date.
const OverrideDateLayout = "2006-01-02"

// ScheduleParser accepts six-field cron expressions (with seconds) and
// descriptors such as @weekly.
var ScheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var validate = validator.New()

// DefaultConfig returns the production defaults of the weekly run.
func DefaultConfig() *Config {
	return &Config{
		SystemBuilderURL:   "http://equest.optimalsolutions.com.au/",
		DownloadPath:       "~/Downloads",
		DiagnosticsDir:     ".bot_debug",
		DashboardURL:       "http://localhost:8501",
		Headless:           true,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MaxAttempts:        3,
		RetryDelay:         10 * time.Second,
		LaunchTimeout:      60 * time.Second,
		NavigationTimeout:  60 * time.Second,
		StepTimeout:        10 * time.Second,
		ModalAppearTimeout: 5 * time.Second,
		GenerationTimeout:  5 * time.Minute,
		SettleDelay:        2 * time.Second,
		ScanRounds:         5,
		ScanInterval:       10 * time.Second,
		DownloadTimeout:    2 * time.Minute,
		OutputFile:         "output/selections.csv",
		OutputFormat:       "csv",
		DedupeMaxSize:      10000,
		Schedule:           "0 0 9 * * THU",
		Notification: NotificationConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 465,
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SystemBuilderURL == "" {
		return fmt.Errorf("system builder URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SystemBuilderURL)
	if err != nil {
		return fmt.Errorf("invalid system builder URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("system builder URL must include a host")
	}

	if c.DownloadPath == "" {
		return fmt.Errorf("download path cannot be empty")
	}
	if c.DiagnosticsDir == "" {
		return fmt.Errorf("diagnostics dir cannot be empty")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.ScanRounds <= 0 {
		return fmt.Errorf("scan rounds must be positive")
	}

	for name, d := range map[string]time.Duration{
		"retry delay":   c.RetryDelay,
		"settle delay":  c.SettleDelay,
		"scan interval": c.ScanInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	for name, d := range map[string]time.Duration{
		"launch timeout":       c.LaunchTimeout,
		"navigation timeout":   c.NavigationTimeout,
		"step timeout":         c.StepTimeout,
		"modal appear timeout": c.ModalAppearTimeout,
		"generation timeout":   c.GenerationTimeout,
		"download timeout":     c.DownloadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch c.OutputFormat {
	case "", "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.OutputFormat != "" && c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty when an output format is set")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	if c.Testing.EnableDateOverride && c.Testing.OverrideDate != "" {
		if _, err := time.Parse(OverrideDateLayout, c.Testing.OverrideDate); err != nil {
			return fmt.Errorf("override date must be YYYY-MM-DD: %w", err)
		}
	}

	if c.Schedule != "" {
		if _, err := ScheduleParser.Parse(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}

	if err := validate.Struct(c.Notification); err != nil {
		return fmt.Errorf("notification config: %w", err)
	}
	return nil
}
