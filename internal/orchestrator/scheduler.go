package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/engine"
	"github.com/shaiso/Dagon/internal/telemetry"
	"github.com/shaiso/Dagon/internal/worker"
)

// completion — результат задачи, который горутина задачи отправляет координатору.
type completion struct {
	task    *domain.Task
	result  *worker.Result
	err     error // инфраструктурная ошибка backend'а или cleanup
	elapsed time.Duration
}

// runner — один прогон workflow.
type runner struct {
	w      *Workflow
	ctx    context.Context
	state  *RunState
	dag    *engine.DAG
	refs   map[string][]engine.Resolved
	names  []string
	dry    bool
	id     string
	logger *slog.Logger
	doneCh chan completion
}

// Run выполняет workflow и блокируется, пока все достижимые задачи
// не станут терминальными.
//
// Ошибки графа (цикл, неразрешённая ссылка, чужая зависимость)
// возвращаются до запуска первой задачи, результат при этом nil.
// Падение задачи не прерывает независимые ветви: её зависимые
// становятся SKIPPED, а Run возвращает результат и ошибку ErrRunFailed.
// Отмена ctx и ошибка Reporter'а останавливают запуск новых задач,
// уже запущенные выполняются до конца.
func (w *Workflow) Run(ctx context.Context) (*RunResult, error) {
	if err := w.ensureBuilt(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, ErrWorkflowRunning
	}
	w.running = true
	w.runID = uuid.NewString()
	r := &runner{
		w:      w,
		ctx:    ctx,
		state:  newRunState(w.name, w.runID),
		dag:    w.dag,
		refs:   w.refs,
		names:  append([]string(nil), w.order...),
		dry:    w.dry,
		logger: telemetry.WithRunID(w.logger, w.runID),
		doneCh: make(chan completion),
	}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()
	sort.Strings(r.names)

	r.logger.Info("workflow started", "tasks", len(r.names), "dry", r.dry)

	if err := r.register(); err != nil {
		return nil, err
	}

	r.loop()

	result := r.result()
	telemetry.WorkflowFinished(string(result.Status))
	r.logger.Info("workflow finished",
		"status", result.Status,
		"finished", result.Stats.Finished,
		"failed", result.Stats.Failed,
		"skipped", result.Stats.Skipped,
		"duration", result.Duration(),
	)

	if halt := r.state.Halted(); halt != nil {
		return result, halt
	}
	if err := ctx.Err(); err != nil && result.Status == domain.RunStatusCancelled {
		return result, err
	}
	return result, result.Err()
}

// register регистрирует workflow, задачи и рёбра в Reporter.
func (r *runner) register() error {
	if r.dry || r.w.reporter == nil {
		return nil
	}
	rep := r.w.reporter

	// Каждый прогон регистрируется заново под новым идентификатором.
	info := r.w.Info()
	info.ID = ""
	id, err := rep.CreateWorkflow(r.ctx, info)
	if err != nil {
		return fmt.Errorf("%w: create workflow: %w", ErrReporter, err)
	}
	r.w.mu.Lock()
	r.w.id = id
	r.w.mu.Unlock()
	r.id = id

	info = r.w.Info()
	for _, name := range r.names {
		if err := rep.AddTask(r.ctx, id, info.Tasks[name]); err != nil {
			return fmt.Errorf("%w: add task %s: %w", ErrReporter, name, err)
		}
	}
	for _, name := range r.names {
		for _, dep := range r.dag.GetNode(name).DependsOn {
			if err := rep.AddDependency(r.ctx, id, name, dep.ID); err != nil {
				return fmt.Errorf("%w: add dependency %s -> %s: %w", ErrReporter, name, dep.ID, err)
			}
		}
	}

	r.logger.Debug("workflow registered", "workflow_id", id)
	return nil
}

// report вызывает Reporter. Ошибка останавливает запуск новых задач.
// Переходы уже запущенных задач сообщаются и после отмены ctx прогона.
func (r *runner) report(call func(ctx context.Context, rep Reporter, id string) error) {
	if r.dry || r.w.reporter == nil {
		return
	}
	if err := call(context.WithoutCancel(r.ctx), r.w.reporter, r.id); err != nil {
		r.logger.Error("status report failed", "error", err)
		r.state.stop(fmt.Errorf("%w: %w", ErrReporter, err))
	}
}

// setStatusReported отправляет новый статус задачи.
func (r *runner) setStatusReported(task *domain.Task) {
	status := task.Status()
	r.report(func(ctx context.Context, rep Reporter, id string) error {
		return rep.UpdateTaskStatus(ctx, id, task.Name(), status)
	})
}

// loop — координирующий цикл: продвигает готовые задачи, запускает
// READY в пределах лимита, ждёт завершения и перепроверяет зависимых.
func (r *runner) loop() {
	r.skipUnsatisfiedCrossReferences()
	r.promote(r.names)

	for {
		if r.canDispatch() {
			r.dispatch()
		}
		if r.state.InFlight() == 0 {
			return
		}
		c := <-r.doneCh
		r.state.returned()
		r.complete(c)
	}
}

// canDispatch возвращает false после отмены контекста или ошибки Reporter'а.
func (r *runner) canDispatch() bool {
	return r.ctx.Err() == nil && r.state.Halted() == nil
}

// skipUnsatisfiedCrossReferences пропускает задачи, чья ссылка на другой
// workflow указывает на незавершённую задачу.
func (r *runner) skipUnsatisfiedCrossReferences() {
	for _, name := range r.names {
		for _, ref := range r.refs[name] {
			if ref.Workflow == r.w.name || ref.Producer.Status() == domain.TaskStatusFinished {
				continue
			}
			task, _ := r.w.Task(name)
			if task.Status().IsTerminal() {
				break
			}
			r.logger.Warn("task skipped: cross-workflow producer not finished",
				"task", name,
				"producer", ref.Workflow+"."+ref.Task,
				"producer_status", ref.Producer.Status(),
			)
			r.skip(task)
			r.cascade(name)
			break
		}
	}
}

// promote переводит PENDING задачи с завершёнными зависимостями в READY.
func (r *runner) promote(names []string) {
	for _, name := range names {
		task, _ := r.w.Task(name)
		if task.Status() != domain.TaskStatusPending {
			continue
		}
		ready := true
		for _, dep := range r.dag.GetNode(name).DependsOn {
			producer, _ := r.w.Task(dep.ID)
			if producer.Status() != domain.TaskStatusFinished {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		if err := task.MarkReady(); err != nil {
			r.logger.Error("mark ready failed", "task", name, "error", err)
			continue
		}
		r.setStatusReported(task)
	}
}

// dispatch запускает READY задачи в порядке имён, пока есть место.
func (r *runner) dispatch() {
	for _, name := range r.names {
		if r.w.maxParallel > 0 && r.state.InFlight() >= r.w.maxParallel {
			return
		}
		if !r.canDispatch() {
			return
		}
		task, _ := r.w.Task(name)
		if task.Status() != domain.TaskStatusReady {
			continue
		}
		r.start(task)
	}
}

// start переводит задачу в RUNNING и запускает её горутину.
func (r *runner) start(task *domain.Task) {
	name := task.Name()
	wd := r.w.scratchPath(r.state.RunID, name)

	backend, backendErr := r.backendFor(task)
	script := buildScript(task, wd, r.refs[name])

	if err := task.MarkRunning(wd); err != nil {
		r.logger.Error("mark running failed", "task", name, "error", err)
		return
	}
	r.setStatusReported(task)
	r.report(func(ctx context.Context, rep Reporter, id string) error {
		return rep.UpdateTask(ctx, id, name, "working_dir", wd)
	})

	r.state.dispatched()
	telemetry.TaskDispatched(r.w.name, string(task.Type()))
	r.logger.Info("task started", "task", name, "type", task.Type(), "working_dir", wd)

	go func() {
		started := time.Now()
		c := completion{task: task}
		if backendErr != nil {
			c.err = backendErr
		} else {
			c.result, c.err = r.execute(task, backend, script)
		}
		c.elapsed = time.Since(started)
		r.doneCh <- c
	}()
}

// backendFor выбирает backend: в dry-run всегда no-op.
func (r *runner) backendFor(task *domain.Task) (worker.Backend, error) {
	if r.dry {
		return r.w.dryBackend, nil
	}
	if r.w.backends == nil {
		return nil, fmt.Errorf("%w: %s", worker.ErrNoBackend, task.Type())
	}
	return r.w.backends.ForTask(task)
}

// execute вызывает backend и при успехе выполняет cleanup задачи.
// Выполняется в горутине задачи. Отмена ctx прогона не прерывает
// запущенную задачу, ограничивает её только TaskTimeout.
func (r *runner) execute(task *domain.Task, backend worker.Backend, script string) (*worker.Result, error) {
	ctx := context.WithoutCancel(r.ctx)
	if r.w.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.w.taskTimeout)
		defer cancel()
	}

	res, err := backend.Execute(ctx, script, scriptName)
	if err != nil || !res.OK() {
		return res, err
	}
	if err := r.cleanup(ctx, task); err != nil {
		return res, err
	}
	return res, nil
}

// cleanup выполняет действия после успешного выполнения по виду задачи.
func (r *runner) cleanup(ctx context.Context, task *domain.Task) error {
	switch task.Type() {
	case domain.TaskTypeBatch, domain.TaskTypeRemote:
		return nil
	case domain.TaskTypeCheckpoint:
		if r.dry {
			return nil
		}
		moved, err := r.w.checkpoints.Relocate(task.ScratchDir())
		if err != nil {
			return err
		}
		if err := task.Relocate(moved); err != nil {
			return err
		}
		rec := checkpoint.Record{Status: domain.TaskStatusFinished, WorkingDir: moved}
		if _, err := r.w.checkpoints.Commit(ctx, r.w.store, r.w.name, task.Name(), rec); err != nil {
			return err
		}
		telemetry.CheckpointWritten()
		return nil
	default:
		return fmt.Errorf("%w: %s", worker.ErrNoBackend, task.Type())
	}
}

// complete обрабатывает результат задачи в координирующей горутине.
func (r *runner) complete(c completion) {
	task := c.task
	name := task.Name()

	switch {
	case c.err != nil:
		code := -1
		if c.result != nil {
			code = c.result.Code
		}
		r.fail(task, code, c.err.Error(), engine.ErrTaskExecution, c.elapsed)
	case !c.result.OK():
		sentinel := engine.ErrTaskExecution
		if task.Type() == domain.TaskTypeCheckpoint && c.result.Code == checkpoint.MissingInputCode {
			sentinel = engine.ErrMissingInput
		}
		r.fail(task, c.result.Code, c.result.Message, sentinel, c.elapsed)
	default:
		if err := task.MarkFinished(c.result.Code, c.result.Message); err != nil {
			r.logger.Error("mark finished failed", "task", name, "error", err)
			return
		}
		r.w.store.Upsert(checkpoint.Key(r.w.name, name), checkpoint.Record{
			Code:       c.result.Code,
			Status:     domain.TaskStatusFinished,
			WorkingDir: task.ScratchDir(),
		})
		telemetry.TaskCompleted(r.w.name, string(task.Type()), string(domain.TaskStatusFinished), c.elapsed)
		r.logger.Info("task finished", "task", name, "duration", c.elapsed)

		if task.Type() == domain.TaskTypeCheckpoint {
			wd := task.ScratchDir()
			r.report(func(ctx context.Context, rep Reporter, id string) error {
				return rep.UpdateTask(ctx, id, name, "working_dir", wd)
			})
		}
		r.setStatusReported(task)

		dependents := make([]string, 0)
		for _, d := range r.dag.GetNode(name).Dependents {
			dependents = append(dependents, d.ID)
		}
		sort.Strings(dependents)
		r.promote(dependents)
	}
}

// fail помечает задачу FAILED и пропускает всех её зависимых.
func (r *runner) fail(task *domain.Task, code int, message string, sentinel error, elapsed time.Duration) {
	name := task.Name()
	if err := task.MarkFailed(code, message); err != nil {
		r.logger.Error("mark failed failed", "task", name, "error", err)
		return
	}

	taskErr := &engine.TaskError{
		Workflow: r.w.name,
		Task:     name,
		Code:     code,
		Message:  message,
		Err:      sentinel,
	}
	r.state.addTaskError(taskErr)
	r.w.store.Upsert(checkpoint.Key(r.w.name, name), checkpoint.Record{
		Code:       code,
		Status:     domain.TaskStatusFailed,
		WorkingDir: task.ScratchDir(),
	})

	telemetry.TaskCompleted(r.w.name, string(task.Type()), string(domain.TaskStatusFailed), elapsed)
	r.logger.Warn("task failed", "task", name, "code", code, "error", taskErr)

	r.setStatusReported(task)
	r.cascade(name)
}

// cascade переводит в SKIPPED всех прямых и транзитивных зависимых.
func (r *runner) cascade(name string) {
	for _, d := range r.dag.Descendants(name) {
		task, _ := r.w.Task(d)
		switch task.Status() {
		case domain.TaskStatusPending, domain.TaskStatusReady:
			r.skip(task)
		}
	}
}

// skip переводит задачу в SKIPPED.
func (r *runner) skip(task *domain.Task) {
	if err := task.MarkSkipped(); err != nil {
		r.logger.Error("mark skipped failed", "task", task.Name(), "error", err)
		return
	}
	telemetry.TaskSkipped(r.w.name)
	r.logger.Info("task skipped", "task", task.Name())
	r.setStatusReported(task)
}

// result собирает итог прогона.
func (r *runner) result() *RunResult {
	res := &RunResult{
		Workflow:   r.w.name,
		RunID:      r.state.RunID,
		Tasks:      make(map[string]domain.TaskStatus, len(r.names)),
		Stats:      r.w.Stats(),
		Errors:     r.state.TaskErrors(),
		StartedAt:  r.state.StartedAt,
		FinishedAt: time.Now(),
	}
	for _, t := range r.w.Tasks() {
		res.Tasks[t.Name()] = t.Status()
	}

	unfinished := res.Stats.Pending + res.Stats.Ready + res.Stats.Running
	switch {
	case res.Stats.Failed > 0 || r.state.Halted() != nil:
		res.Status = domain.RunStatusFailed
	case unfinished > 0 && r.ctx.Err() != nil:
		res.Status = domain.RunStatusCancelled
	default:
		res.Status = domain.RunStatusSucceeded
	}
	return res
}
