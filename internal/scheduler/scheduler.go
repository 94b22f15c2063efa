package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoJob — Job не задан.
var ErrNoJob = errors.New("scheduler: job is required")

// Job — один запуск по расписанию.
type Job func(ctx context.Context) error

// Config — конфигурация Scheduler.
type Config struct {
	// Expr — cron-выражение, например "*/5 * * * *" или "@every 1h".
	Expr string

	// Timezone — timezone выражения. По умолчанию UTC.
	Timezone string

	Job    Job
	Logger *slog.Logger

	// RunOnStart — выполнить Job сразу при старте, не дожидаясь расписания.
	RunOnStart bool
}

// Stats — счётчики запусков.
type Stats struct {
	Runs     int64
	Failures int64
	Skipped  int64
}

// Scheduler запускает Job по cron-расписанию.
//
// Запуски не перекрываются: если предыдущий ещё идёт, очередной
// пропускается. Ошибка запуска логируется и не останавливает расписание.
type Scheduler struct {
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
	onStart  bool

	running  atomic.Bool
	runs     atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64
}

// New создаёт Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Job == nil {
		return nil, ErrNoJob
	}
	schedule, err := ParseSchedule(cfg.Expr, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		job:      cfg.Job,
		logger:   logger.With("cron", cfg.Expr),
		onStart:  cfg.RunOnStart,
	}, nil
}

// Next возвращает время следующего запуска после from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Stats возвращает счётчики запусков.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Runs:     s.runs.Load(),
		Failures: s.failures.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// Tick выполняет один запуск Job. Если предыдущий запуск ещё идёт,
// возвращает false и ничего не делает.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn("previous run still in progress, skipping")
		return false
	}
	defer s.running.Store(false)

	started := time.Now()
	n := s.runs.Add(1)
	s.logger.Info("scheduled run started", "run", n)

	if err := s.job(ctx); err != nil {
		s.failures.Add(1)
		s.logger.Error("scheduled run failed", "run", n, "duration", time.Since(started), "error", err)
		return true
	}
	s.logger.Info("scheduled run completed", "run", n, "duration", time.Since(started))
	return true
}

// Run запускает расписание и блокируется до отмены ctx.
// После отмены дожидается завершения текущего запуска.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLogger{logger: s.logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: s.logger})),
	)

	var wg sync.WaitGroup
	c.Schedule(s.schedule, cron.FuncJob(func() {
		wg.Add(1)
		defer wg.Done()
		s.Tick(ctx)
	}))

	if s.onStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Tick(ctx)
		}()
	}

	c.Start()
	s.logger.Info("scheduler started", "next", s.schedule.Next(time.Now()))

	<-ctx.Done()
	<-c.Stop().Done()
	wg.Wait()

	s.logger.Info("scheduler stopped", "runs", s.runs.Load(), "failures", s.failures.Load())
	return ctx.Err()
}
