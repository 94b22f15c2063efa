package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений: пять полей и дескрипторы (@hourly, @every 5m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule разбирает cron-выражение в указанной timezone.
// Пустая timezone — UTC.
func ParseSchedule(expr, timezone string) (cron.Schedule, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if spec, ok := schedule.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}
	return schedule, nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	_, err := ParseSchedule(expr, "")
	return err
}

// NextRuns возвращает n следующих моментов запуска после from.
func NextRuns(schedule cron.Schedule, from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	next := from
	for range n {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		out = append(out, next)
	}
	return out
}

// cronLogger передаёт сообщения robfig/cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
