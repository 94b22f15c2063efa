// Package scheduler запускает workflow по cron-расписанию.
//
// Структура:
//   - scheduler.go — Scheduler: цикл robfig/cron, Tick без перекрытия запусков
//   - cron.go      — разбор cron-выражений и вычисление следующих запусков
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Expr:   "*/5 * * * *",
//	    Job:    func(ctx context.Context) error { return runManifest(ctx, path) },
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return sched.Run(ctx)
package scheduler
