package bot

import (
	"log/slog"
	"time"

	"github.com/aluiziolira/saturday-punter/config"
)

// TargetDateLayout is the DD/MM/YYYY layout the date field expects.
const TargetDateLayout = "02/01/2006"

// NextSaturday returns the upcoming Saturday, or today if today is one.
func NextSaturday(today time.Time) time.Time {
	days := (int(time.Saturday) - int(today.Weekday()) + 7) % 7
	return today.AddDate(0, 0, days)
}

// ResolveTargetDate returns the date to generate selections for. An enabled
// override wins over the computed Saturday; an unparsable one is ignored.
func ResolveTargetDate(overrides config.TestingConfig, now time.Time, logger *slog.Logger) string {
	if overrides.EnableDateOverride && overrides.OverrideDate != "" {
		d, err := time.Parse(config.OverrideDateLayout, overrides.OverrideDate)
		if err == nil {
			target := d.Format(TargetDateLayout)
			logger.Warn("using date override", slog.String("target_date", target))
			return target
		}
		logger.Error("invalid date override, using next saturday",
			slog.String("override_date", overrides.OverrideDate),
			slog.Any("error", err),
		)
	}
	return NextSaturday(now).Format(TargetDateLayout)
}
