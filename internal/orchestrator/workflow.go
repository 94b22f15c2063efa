package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/engine"
	"github.com/shaiso/Dagon/internal/telemetry"
	"github.com/shaiso/Dagon/internal/worker"
)

// Config — конфигурация Workflow.
type Config struct {
	// Backends — backend'ы по типу задачи. Не нужен в dry-run.
	Backends *worker.Registry

	// Reporter — опциональный получатель переходов статусов.
	Reporter Reporter

	// Checkpoints — запись файлов checkpoint.
	// По умолчанию файлы пишутся в текущую директорию.
	Checkpoints *checkpoint.Manager

	// ScratchDir — корень рабочих директорий задач.
	// По умолчанию $TMPDIR/dagon.
	ScratchDir string

	// MaxParallel — максимум одновременно выполняющихся задач (0 — без ограничения).
	MaxParallel int

	// TaskTimeout — таймаут одной задачи (0 — без таймаута).
	TaskTimeout time.Duration

	// Dry — dry-run: граф и переходы статусов без внешних эффектов.
	Dry bool

	Logger *slog.Logger
}

// Workflow — именованный DAG задач.
//
// Workflow владеет своими задачами. Граф строится MakeDependencies
// (явно или неявно из Run) из явных зависимостей и workflow:// ссылок.
type Workflow struct {
	name        string
	backends    *worker.Registry
	reporter    Reporter
	checkpoints *checkpoint.Manager
	scratchDir  string
	maxParallel int
	taskTimeout time.Duration
	dryBackend  *worker.DryBackend
	logger      *slog.Logger

	// store — записи checkpoint, ключ "<workflow>.<task>".
	store *checkpoint.Store

	mu      sync.RWMutex
	tasks   map[string]*domain.Task
	order   []string
	dry     bool
	meta    *MetaWorkflow
	dag     *engine.DAG
	refs    map[string][]engine.Resolved
	built   bool
	running bool
	id      string
	runID   string
}

// New создаёт пустой Workflow.
func New(name string, cfg Config) (*Workflow, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, fmt.Errorf("workflow name: %w", err)
	}

	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "dagon")
	}
	scratch, err := filepath.Abs(scratch)
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	manager := cfg.Checkpoints
	if manager == nil {
		manager = checkpoint.NewManager(checkpoint.Config{Logger: logger})
	}

	return &Workflow{
		name:        name,
		backends:    cfg.Backends,
		reporter:    cfg.Reporter,
		checkpoints: manager,
		scratchDir:  scratch,
		maxParallel: cfg.MaxParallel,
		taskTimeout: cfg.TaskTimeout,
		dryBackend:  &worker.DryBackend{},
		logger:      telemetry.WithWorkflow(logger, name),
		store:       checkpoint.NewStore(),
		tasks:       make(map[string]*domain.Task),
		dry:         cfg.Dry,
	}, nil
}

// Name возвращает имя workflow.
func (w *Workflow) Name() string {
	return w.name
}

// SetDry включает или выключает dry-run.
func (w *Workflow) SetDry(dry bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dry = dry
}

// Dry возвращает true в режиме dry-run.
func (w *Workflow) Dry() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dry
}

// ID возвращает идентификатор, выданный status-сервисом (пусто без Reporter).
func (w *Workflow) ID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.id
}

// RunID возвращает идентификатор последнего прогона.
func (w *Workflow) RunID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runID
}

// Checkpoints возвращает хранилище записей checkpoint.
func (w *Workflow) Checkpoints() *checkpoint.Store {
	return w.store
}

// DryCalls возвращает количество вызовов no-op backend'а в dry-run.
func (w *Workflow) DryCalls() int64 {
	return w.dryBackend.Calls()
}

// AddTask добавляет задачи в workflow. Имена уникальны в пределах workflow.
func (w *Workflow) AddTask(tasks ...*domain.Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrWorkflowRunning
	}
	for _, t := range tasks {
		if _, exists := w.tasks[t.Name()]; exists {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateTask, w.name, t.Name())
		}
		if err := t.Attach(w.name); err != nil {
			return err
		}
		w.tasks[t.Name()] = t
		w.order = append(w.order, t.Name())
	}
	w.built = false
	return nil
}

// Task возвращает задачу по имени.
func (w *Workflow) Task(name string) (*domain.Task, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tasks[name]
	return t, ok
}

// Tasks возвращает задачи в порядке добавления.
func (w *Workflow) Tasks() []*domain.Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*domain.Task, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.tasks[name])
	}
	return out
}

// LookupTask реализует engine.Scope.
func (w *Workflow) LookupTask(workflow, task string) (*domain.Task, error) {
	w.mu.RLock()
	meta := w.meta
	w.mu.RUnlock()

	if workflow != w.name {
		if meta == nil {
			return nil, fmt.Errorf("%w: %s", engine.ErrUnknownWorkflow, workflow)
		}
		return meta.LookupTask(workflow, task)
	}
	t, ok := w.Task(task)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", engine.ErrUnknownTask, workflow, task)
	}
	return t, nil
}

// MakeDependencies строит граф: явные зависимости плюс рёбра из
// workflow:// ссылок на задачи этого workflow. Ссылки на другие
// workflow разрешаются через мета-workflow и учитываются им.
//
// Ошибки: ErrForeignDependency, *engine.ReferenceError, *engine.CycleError.
func (w *Workflow) MakeDependencies() error {
	w.mu.RLock()
	if w.running {
		w.mu.RUnlock()
		return ErrWorkflowRunning
	}
	tasks := make([]*domain.Task, 0, len(w.order))
	for _, name := range w.order {
		tasks = append(tasks, w.tasks[name])
	}
	w.mu.RUnlock()

	dag := engine.NewDAG("task")
	for _, t := range tasks {
		dag.AddNode(t.Name())
	}

	refs := make(map[string][]engine.Resolved, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.Dependencies() {
			if own, ok := w.Task(dep.Name()); !ok || own != dep {
				return fmt.Errorf("%w: %s.%s depends on %s.%s",
					ErrForeignDependency, w.name, t.Name(), dep.Workflow(), dep.Name())
			}
			if err := dag.AddEdge(t.Name(), dep.Name()); err != nil {
				return err
			}
		}

		resolved, err := engine.ResolveReferences(w, t)
		if err != nil {
			return err
		}
		for _, r := range resolved {
			if r.Workflow == w.name {
				if err := dag.AddEdge(t.Name(), r.Task); err != nil {
					return err
				}
			}
		}
		refs[t.Name()] = resolved
	}

	if err := dag.Build(); err != nil {
		return err
	}

	w.mu.Lock()
	w.dag = dag
	w.refs = refs
	w.built = true
	w.mu.Unlock()

	w.logger.Debug("dependencies built", "tasks", dag.Size(), "levels", len(dag.Levels()))
	return nil
}

// DAG возвращает построенный граф (nil до MakeDependencies).
func (w *Workflow) DAG() *engine.DAG {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dag
}

// crossReferences возвращает ссылки задач на другие workflow.
func (w *Workflow) crossReferences() []engine.Resolved {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []engine.Resolved
	for _, name := range w.order {
		for _, r := range w.refs[name] {
			if r.Workflow != w.name {
				out = append(out, r)
			}
		}
	}
	return out
}

// ensureBuilt строит граф, если он устарел.
func (w *Workflow) ensureBuilt() error {
	w.mu.RLock()
	built := w.built
	w.mu.RUnlock()
	if built {
		return nil
	}
	return w.MakeDependencies()
}

// Resume восстанавливает прогресс по записям checkpoint.
//
// Каждая задача этого workflow с записью FINISHED помечается выполненной
// и не запускается, её рабочая директория берётся из записи. Зависимости
// без такой записи остаются PENDING и выполняются заново: без рабочей
// директории они не могут быть источником данных. Возвращает количество
// восстановленных задач.
func (w *Workflow) Resume(records map[string]checkpoint.Record) (int, error) {
	if err := w.ensureBuilt(); err != nil {
		return 0, err
	}

	w.mu.RLock()
	dag := w.dag
	running := w.running
	w.mu.RUnlock()
	if running {
		return 0, ErrWorkflowRunning
	}

	own := checkpoint.ForWorkflow(records, w.name)
	satisfied := make(map[string]bool)
	for name, rec := range own {
		if !rec.Finished() {
			continue
		}
		if dag.GetNode(name) == nil {
			w.logger.Warn("checkpoint record for unknown task ignored", "task", name)
			continue
		}
		satisfied[name] = true
	}
	rerun := make(map[string]bool)
	for name := range satisfied {
		for _, ancestor := range dag.Ancestors(name) {
			if !satisfied[ancestor] && !rerun[ancestor] {
				rerun[ancestor] = true
				w.logger.Warn("dependency has no checkpoint record, it will run again",
					"task", name, "dependency", ancestor)
			}
		}
	}

	names := make([]string, 0, len(satisfied))
	for name := range satisfied {
		names = append(names, name)
	}
	sort.Strings(names)

	restored := 0
	for _, name := range names {
		task, _ := w.Task(name)
		if task.Status() == domain.TaskStatusFinished {
			continue
		}
		rec := own[name]
		if err := task.Restore(rec.WorkingDir); err != nil {
			return restored, err
		}
		w.store.Upsert(checkpoint.Key(w.name, name), checkpoint.Record{
			Code:       rec.Code,
			Status:     domain.TaskStatusFinished,
			WorkingDir: rec.WorkingDir,
		})
		restored++
	}

	w.logger.Info("workflow resumed from checkpoint", "restored", restored)
	return restored, nil
}

// Info возвращает описание workflow для status-сервиса.
// Зависимости задач включают выведенные из ссылок, если граф построен.
func (w *Workflow) Info() domain.WorkflowInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	host, _ := os.Hostname()
	info := domain.WorkflowInfo{
		ID:    w.id,
		Name:  w.name,
		Host:  host,
		Tasks: make(map[string]domain.TaskInfo, len(w.tasks)),
	}
	for name, t := range w.tasks {
		ti := t.Info()
		if w.dag != nil {
			if node := w.dag.GetNode(name); node != nil {
				ti.Dependencies = ti.Dependencies[:0]
				for _, dep := range node.DependsOn {
					ti.Dependencies = append(ti.Dependencies, dep.ID)
				}
				sort.Strings(ti.Dependencies)
			}
		}
		info.Tasks[name] = ti
	}
	return info
}

// Stats возвращает количество задач по статусам.
func (w *Workflow) Stats() RunStats {
	var s RunStats
	for _, t := range w.Tasks() {
		s.Total++
		switch t.Status() {
		case domain.TaskStatusPending:
			s.Pending++
		case domain.TaskStatusReady:
			s.Ready++
		case domain.TaskStatusRunning:
			s.Running++
		case domain.TaskStatusFinished:
			s.Finished++
		case domain.TaskStatusFailed:
			s.Failed++
		case domain.TaskStatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// scratchPath возвращает рабочую директорию задачи в прогоне runID.
func (w *Workflow) scratchPath(runID, task string) string {
	return filepath.Join(w.scratchDir, w.name+"-"+runID, task)
}
