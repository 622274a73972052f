package monitor

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule — проход раз в минуту.
const DefaultSchedule = "* * * * *"

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule разбирает cron-выражение расписания проходов.
// Пустая строка означает DefaultSchedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	return schedule, nil
}
