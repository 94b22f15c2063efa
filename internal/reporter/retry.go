package reporter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/orchestrator"
)

// RetryConfig — параметры повторов.
type RetryConfig struct {
	// MaxRetries — количество повторов после первой попытки.
	MaxRetries uint64

	// InitialInterval — первая задержка. По умолчанию 200ms.
	InitialInterval time.Duration

	// MaxInterval — верхняя граница задержки. По умолчанию 5s.
	MaxInterval time.Duration

	Logger *slog.Logger
}

// RetryReporter повторяет временные ошибки вложенного Reporter'а
// с экспоненциальной задержкой. Конфликт регистрации и 4xx не повторяются.
type RetryReporter struct {
	next   orchestrator.Reporter
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryReporter оборачивает next.
func NewRetryReporter(next orchestrator.Reporter, cfg RetryConfig) *RetryReporter {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryReporter{next: next, cfg: cfg, logger: logger}
}

func (r *RetryReporter) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, r.cfg.MaxRetries), ctx)
}

func (r *RetryReporter) retry(ctx context.Context, call string, fn func() error) error {
	operation := func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("status report failed, retrying", "call", call, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(operation, r.policy(ctx), notify)
}

// retryable — транспортные ошибки, 429 и 5xx.
func retryable(err error) bool {
	var callErr *RemoteCallError
	if errors.As(err, &callErr) {
		return callErr.Temporary()
	}
	return false
}

// CreateWorkflow реализует orchestrator.Reporter.
func (r *RetryReporter) CreateWorkflow(ctx context.Context, info domain.WorkflowInfo) (string, error) {
	var id string
	err := r.retry(ctx, "create_workflow", func() error {
		var err error
		id, err = r.next.CreateWorkflow(ctx, info)
		return err
	})
	return id, err
}

// AddTask реализует orchestrator.Reporter.
func (r *RetryReporter) AddTask(ctx context.Context, workflowID string, task domain.TaskInfo) error {
	return r.retry(ctx, "add_task", func() error {
		return r.next.AddTask(ctx, workflowID, task)
	})
}

// UpdateTaskStatus реализует orchestrator.Reporter.
func (r *RetryReporter) UpdateTaskStatus(ctx context.Context, workflowID, task string, status domain.TaskStatus) error {
	return r.retry(ctx, "update_task_status", func() error {
		return r.next.UpdateTaskStatus(ctx, workflowID, task, status)
	})
}

// UpdateTask реализует orchestrator.Reporter.
func (r *RetryReporter) UpdateTask(ctx context.Context, workflowID, task, attribute, value string) error {
	return r.retry(ctx, "update_task", func() error {
		return r.next.UpdateTask(ctx, workflowID, task, attribute, value)
	})
}

// AddDependency реализует orchestrator.Reporter.
func (r *RetryReporter) AddDependency(ctx context.Context, workflowID, task, dependency string) error {
	return r.retry(ctx, "add_dependency", func() error {
		return r.next.AddDependency(ctx, workflowID, task, dependency)
	})
}
