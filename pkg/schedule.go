package pkg

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a five field cron expression, a six field one with
// leading seconds, or a descriptor such as "@hourly" or "@every 5m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextRun returns the first activation of expr strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}
