package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/config"
	"github.com/shaiso/Dagon/internal/manifest"
	"github.com/shaiso/Dagon/internal/mq"
	"github.com/shaiso/Dagon/internal/orchestrator"
	"github.com/shaiso/Dagon/internal/repo"
	"github.com/shaiso/Dagon/internal/reporter"
	"github.com/shaiso/Dagon/internal/worker"
)

// ErrNoMirror — --resume-db без настроенной базы checkpoint.
var ErrNoMirror = errors.New("checkpoint.db_url is not configured")

// RunOptions — параметры одного запуска манифеста.
type RunOptions struct {
	Dry        bool
	ResumeFile string
	ResumeDB   bool
}

// Runtime — backend'ы, хранилище checkpoint и получатели статусов,
// собранные из конфигурации. Один Runtime обслуживает все запуски
// процесса, в том числе по расписанию.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	backends    *worker.Registry
	checkpoints *checkpoint.Manager
	mirror      checkpoint.Mirror
	reporter    orchestrator.Reporter

	closers []func() error
}

// NewRuntime собирает Runtime. Внешние сервисы (status-сервис, RabbitMQ,
// PostgreSQL) подключаются только если заданы их адреса.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{cfg: cfg, logger: logger}

	setup := []func() error{
		rt.setupBackends,
		func() error { return rt.setupCheckpoints(ctx) },
		func() error { return rt.setupReporters(ctx) },
	}
	for _, step := range setup {
		if err := step(); err != nil {
			rt.Close()
			return nil, err
		}
	}

	if cfg.Metrics.Addr != "" {
		rt.serveMetrics(cfg.Metrics.Addr)
	}
	return rt, nil
}

func (rt *Runtime) setupBackends() error {
	rt.backends = worker.NewRegistry(worker.NewLocalBackend(worker.LocalConfig{Logger: rt.logger}))

	ssh := rt.cfg.SSH
	if ssh.KeyFile == "" {
		return nil
	}
	signer, err := worker.LoadSigner(ssh.KeyFile)
	if err != nil {
		return err
	}
	rt.backends.SetRemote(worker.NewSSHPool(worker.SSHConfig{
		Port:           ssh.Port,
		Signer:         signer,
		KnownHostsPath: ssh.KnownHosts,
		DialTimeout:    ssh.DialTimeout,
		DialRetries:    ssh.DialRetries,
		Logger:         rt.logger,
	}))
	return nil
}

func (rt *Runtime) setupCheckpoints(ctx context.Context) error {
	if url := rt.cfg.Checkpoint.DBURL; url != "" {
		pool, err := repo.NewPool(ctx, url)
		if err != nil {
			return fmt.Errorf("checkpoint db: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

		checkpoints := repo.NewCheckpointRepo(pool)
		if err := checkpoints.EnsureSchema(ctx); err != nil {
			return err
		}
		rt.mirror = checkpoints
		rt.logger.Info("checkpoint mirror enabled")
	}

	rt.checkpoints = checkpoint.NewManager(checkpoint.Config{
		Dir:    rt.cfg.Checkpoint.Dir,
		Mirror: rt.mirror,
		Logger: rt.logger,
	})
	return nil
}

func (rt *Runtime) setupReporters(ctx context.Context) error {
	var reporters []orchestrator.Reporter

	if url := rt.cfg.Reporter.URL; url != "" {
		client, err := reporter.NewClient(ctx, reporter.ClientConfig{
			BaseURL: url,
			Timeout: rt.cfg.Reporter.Timeout,
			Logger:  rt.logger,
		})
		if err != nil {
			return err
		}
		var rep orchestrator.Reporter = client
		if n := rt.cfg.Reporter.Retries; n > 0 {
			rep = reporter.NewRetryReporter(client, reporter.RetryConfig{MaxRetries: n, Logger: rt.logger})
		}
		reporters = append(reporters, rep)
		rt.logger.Info("status reporting enabled", "url", client.BaseURL())
	}

	if url := rt.cfg.AMQP.URL; url != "" {
		conn, err := mq.NewConnection(url, rt.logger)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		rt.closers = append(rt.closers, conn.Close)
		if err := mq.SetupTopology(ctx, conn); err != nil {
			return fmt.Errorf("amqp topology: %w", err)
		}
		reporters = append(reporters, mq.NewEventReporter(mq.NewPublisher(conn, rt.logger), rt.logger))
		rt.logger.Info("lifecycle events enabled", "exchange", mq.ExchangeEvents)
	}

	switch len(reporters) {
	case 0:
	case 1:
		rt.reporter = reporters[0]
	default:
		rt.reporter = reporter.NewMulti(reporters...)
	}
	return nil
}

func (rt *Runtime) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		rt.logger.Info("metrics server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", "error", err)
		}
	}()
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// Close освобождает соединения в обратном порядке открытия.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// OrchestratorConfig возвращает конфигурацию workflow.
func (rt *Runtime) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Backends:    rt.backends,
		Reporter:    rt.reporter,
		Checkpoints: rt.checkpoints,
		ScratchDir:  rt.cfg.ScratchDir,
		MaxParallel: rt.cfg.MaxParallel,
		TaskTimeout: rt.cfg.TaskTimeout,
		Logger:      rt.logger,
	}
}

// Plan загружает манифест и строит план без выполнения.
func (rt *Runtime) Plan(path string) (*manifest.Plan, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	plan, err := manifest.Build(m, rt.OrchestratorConfig())
	if err != nil {
		return nil, err
	}
	if err := plan.Prepare(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Execute загружает манифест, применяет checkpoint и выполняет план.
func (rt *Runtime) Execute(ctx context.Context, path string, opts RunOptions) (*orchestrator.MetaResult, error) {
	plan, err := rt.Plan(path)
	if err != nil {
		return nil, err
	}
	plan.SetDry(opts.Dry)

	records := make(map[string]checkpoint.Record)
	if opts.ResumeFile != "" {
		loaded, err := rt.checkpoints.Load(opts.ResumeFile)
		if err != nil {
			return nil, err
		}
		maps.Copy(records, loaded)
	}
	if opts.ResumeDB {
		if rt.mirror == nil {
			return nil, ErrNoMirror
		}
		for _, w := range plan.Workflows {
			loaded, err := rt.checkpoints.LoadMirror(ctx, w.Name())
			if err != nil {
				return nil, err
			}
			maps.Copy(records, loaded)
		}
	}
	if len(records) > 0 {
		restored, err := plan.Resume(records)
		if err != nil {
			return nil, err
		}
		rt.logger.Info("resumed from checkpoint", "plan", plan.Name, "restored", restored)
	}

	return plan.Run(ctx)
}
