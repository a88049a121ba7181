package stats

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleParser разбирает расписание сбора: пять полей cron
// или дескрипторы вида "@every 10s", "@hourly".
var ScheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule проверяет расписание сбора.
func ValidateSchedule(expr string) error {
	if _, err := ScheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", expr, err)
	}
	return nil
}

// NextRound вычисляет время следующего раунда после from.
func NextRound(expr string, from time.Time) (time.Time, error) {
	schedule, err := ScheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stats schedule %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}
