package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Keys of the JSON config file. The saturday_punter and testing sections
// keep the layout written by the admin dashboard.
const (
	keySystemBuilderURL  = "saturday_punter.system_builder_url"
	keySystemBuilderUser = "saturday_punter.system_builder_user"
	keyDownloadPath      = "saturday_punter.download_path"
	keyDashboardURL      = "saturday_punter.dashboard_url"
	keyMaxRetries        = "saturday_punter.max_retries"
	keyNotificationEmail = "saturday_punter.notification_email"
	keySenderEmail       = "saturday_punter.sender_email"
	keyChooserEmail      = "saturday_punter.chooser_email"
	keySMTPHost          = "saturday_punter.smtp_host"
	keySMTPPort          = "saturday_punter.smtp_port"

	keyDateOverride = "testing.enable_date_override"
	keyOverrideDate = "testing.override_date"

	keyHeadless           = "bot.headless"
	keyBrowserBin         = "bot.browser_bin"
	keyUserAgent          = "bot.user_agent"
	keyDiagnosticsDir     = "bot.diagnostics_dir"
	keyRetryDelay         = "bot.retry_delay"
	keyLaunchTimeout      = "bot.launch_timeout"
	keyNavigationTimeout  = "bot.navigation_timeout"
	keyStepTimeout        = "bot.step_timeout"
	keyModalAppearTimeout = "bot.modal_appear_timeout"
	keyGenerationTimeout  = "bot.generation_timeout"
	keySettleDelay        = "bot.settle_delay"
	keyScanRounds         = "bot.scan_rounds"
	keyScanInterval       = "bot.scan_interval"
	keyDownloadTimeout    = "bot.download_timeout"

	keyOutputFile    = "processing.output_file"
	keyOutputFormat  = "processing.output_format"
	keyDedupeMaxSize = "processing.dedupe_max_size"

	keySchedule    = "schedule.cron"
	keyMetricsAddr = "metrics_addr"
	keyVerbose     = "verbose"
)

// EnvPrefix prefixes environment overrides of config keys, e.g.
// PUNTER_BOT_HEADLESS=false.
const EnvPrefix = "PUNTER"

// Load reads the JSON config file at path, applies environment overrides and
// validates the result. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if value, ok := EnvString("DASHBOARD_URL"); ok {
		cfg.DashboardURL = value
	}

	downloadPath, err := ExpandHome(cfg.DownloadPath)
	if err != nil {
		return nil, fmt.Errorf("expand download path: %w", err)
	}
	cfg.DownloadPath = downloadPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault(keySystemBuilderURL, d.SystemBuilderURL)
	v.SetDefault(keySystemBuilderUser, d.SystemBuilderUser)
	v.SetDefault(keyDownloadPath, d.DownloadPath)
	v.SetDefault(keyDashboardURL, d.DashboardURL)
	v.SetDefault(keyMaxRetries, d.MaxAttempts)
	v.SetDefault(keyNotificationEmail, d.Notification.NotificationEmail)
	v.SetDefault(keySenderEmail, d.Notification.SenderEmail)
	v.SetDefault(keyChooserEmail, d.Notification.ChooserEmail)
	v.SetDefault(keySMTPHost, d.Notification.SMTPHost)
	v.SetDefault(keySMTPPort, d.Notification.SMTPPort)

	v.SetDefault(keyDateOverride, d.Testing.EnableDateOverride)
	v.SetDefault(keyOverrideDate, d.Testing.OverrideDate)

	v.SetDefault(keyHeadless, d.Headless)
	v.SetDefault(keyBrowserBin, d.BrowserBin)
	v.SetDefault(keyUserAgent, d.UserAgent)
	v.SetDefault(keyDiagnosticsDir, d.DiagnosticsDir)
	v.SetDefault(keyRetryDelay, d.RetryDelay)
	v.SetDefault(keyLaunchTimeout, d.LaunchTimeout)
	v.SetDefault(keyNavigationTimeout, d.NavigationTimeout)
	v.SetDefault(keyStepTimeout, d.StepTimeout)
	v.SetDefault(keyModalAppearTimeout, d.ModalAppearTimeout)
	v.SetDefault(keyGenerationTimeout, d.GenerationTimeout)
	v.SetDefault(keySettleDelay, d.SettleDelay)
	v.SetDefault(keyScanRounds, d.ScanRounds)
	v.SetDefault(keyScanInterval, d.ScanInterval)
	v.SetDefault(keyDownloadTimeout, d.DownloadTimeout)

	v.SetDefault(keyOutputFile, d.OutputFile)
	v.SetDefault(keyOutputFormat, d.OutputFormat)
	v.SetDefault(keyDedupeMaxSize, d.DedupeMaxSize)

	v.SetDefault(keySchedule, d.Schedule)
	v.SetDefault(keyMetricsAddr, d.MetricsAddr)
	v.SetDefault(keyVerbose, d.Verbose)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		SystemBuilderURL:   strings.TrimSpace(v.GetString(keySystemBuilderURL)),
		SystemBuilderUser:  strings.TrimSpace(v.GetString(keySystemBuilderUser)),
		DownloadPath:       strings.TrimSpace(v.GetString(keyDownloadPath)),
		DiagnosticsDir:     v.GetString(keyDiagnosticsDir),
		DashboardURL:       v.GetString(keyDashboardURL),
		Headless:           v.GetBool(keyHeadless),
		BrowserBin:         v.GetString(keyBrowserBin),
		UserAgent:          v.GetString(keyUserAgent),
		MaxAttempts:        v.GetInt(keyMaxRetries),
		RetryDelay:         v.GetDuration(keyRetryDelay),
		LaunchTimeout:      v.GetDuration(keyLaunchTimeout),
		NavigationTimeout:  v.GetDuration(keyNavigationTimeout),
		StepTimeout:        v.GetDuration(keyStepTimeout),
		ModalAppearTimeout: v.GetDuration(keyModalAppearTimeout),
		GenerationTimeout:  v.GetDuration(keyGenerationTimeout),
		SettleDelay:        v.GetDuration(keySettleDelay),
		ScanRounds:         v.GetInt(keyScanRounds),
		ScanInterval:       v.GetDuration(keyScanInterval),
		DownloadTimeout:    v.GetDuration(keyDownloadTimeout),
		OutputFile:         v.GetString(keyOutputFile),
		OutputFormat:       strings.ToLower(v.GetString(keyOutputFormat)),
		DedupeMaxSize:      v.GetInt(keyDedupeMaxSize),
		Schedule:           v.GetString(keySchedule),
		MetricsAddr:        v.GetString(keyMetricsAddr),
		Verbose:            v.GetBool(keyVerbose),
		Testing: TestingConfig{
			EnableDateOverride: v.GetBool(keyDateOverride),
			OverrideDate:       strings.TrimSpace(v.GetString(keyOverrideDate)),
		},
		Notification: NotificationConfig{
			NotificationEmail: strings.TrimSpace(v.GetString(keyNotificationEmail)),
			SenderEmail:       strings.TrimSpace(v.GetString(keySenderEmail)),
			ChooserEmail:      strings.TrimSpace(v.GetString(keyChooserEmail)),
			SMTPHost:          v.GetString(keySMTPHost),
			SMTPPort:          v.GetInt(keySMTPPort),
		},
	}
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// EnvString returns the trimmed value of an environment variable and whether
// it was set to something non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
