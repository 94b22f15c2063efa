package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/engine"
)

// MetaWorkflow — композиция нескольких Workflow.
//
// Рёбра между workflow выводятся из ссылок workflow://<другой>/...
// в командах задач. Workflow запускается целиком после того, как все
// workflow, на которые он ссылается, завершились (грубая синхронизация
// на уровне workflow, а не задач).
type MetaWorkflow struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	members map[string]*Workflow
	order   []string
	dag     *engine.DAG
}

// MetaResult — итог прогона мета-workflow.
type MetaResult struct {
	Name       string
	Status     domain.RunStatus
	Order      []string
	Workflows  map[string]*RunResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewMeta создаёт пустой мета-workflow.
func NewMeta(name string, logger *slog.Logger) (*MetaWorkflow, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, fmt.Errorf("meta-workflow name: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaWorkflow{
		name:    name,
		logger:  logger.With("meta", name),
		members: make(map[string]*Workflow),
	}, nil
}

// Name возвращает имя мета-workflow.
func (m *MetaWorkflow) Name() string {
	return m.name
}

// AddWorkflow регистрирует workflow. Имена уникальны среди участников,
// workflow может входить только в один мета-workflow.
func (m *MetaWorkflow) AddWorkflow(w *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.members[w.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, w.Name())
	}

	w.mu.Lock()
	if w.meta != nil && w.meta != m {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s belongs to %s", ErrWorkflowAttached, w.Name(), w.meta.name)
	}
	w.meta = m
	w.built = false
	w.mu.Unlock()

	m.members[w.Name()] = w
	m.order = append(m.order, w.Name())
	m.dag = nil
	return nil
}

// Workflow возвращает участника по имени.
func (m *MetaWorkflow) Workflow(name string) (*Workflow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.members[name]
	return w, ok
}

// Workflows возвращает участников в порядке добавления.
func (m *MetaWorkflow) Workflows() []*Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Workflow, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.members[name])
	}
	return out
}

// LookupTask реализует engine.Scope для ссылок между участниками.
func (m *MetaWorkflow) LookupTask(workflow, task string) (*domain.Task, error) {
	w, ok := m.Workflow(workflow)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownWorkflow, workflow)
	}
	t, ok := w.Task(task)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", engine.ErrUnknownTask, workflow, task)
	}
	return t, nil
}

// MakeDependencies строит граф каждого участника и граф между участниками:
// ребро consumer → producer для каждой ссылки задачи consumer на producer.
// Граф участников проверяется на циклы.
func (m *MetaWorkflow) MakeDependencies() error {
	members := m.Workflows()

	dag := engine.NewDAG("workflow")
	for _, w := range members {
		dag.AddNode(w.Name())
	}

	for _, w := range members {
		if err := w.MakeDependencies(); err != nil {
			return err
		}
		for _, ref := range w.crossReferences() {
			if err := dag.AddEdge(w.Name(), ref.Workflow); err != nil {
				return err
			}
		}
	}

	if err := dag.Build(); err != nil {
		return err
	}

	m.mu.Lock()
	m.dag = dag
	m.mu.Unlock()

	m.logger.Debug("meta dependencies built", "workflows", dag.Size(), "order", m.Order())
	return nil
}

// Order возвращает топологический порядок участников (пусто до MakeDependencies).
func (m *MetaWorkflow) Order() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dag == nil {
		return nil
	}
	out := make([]string, 0, len(m.dag.Order))
	for _, n := range m.dag.Order {
		out = append(out, n.ID)
	}
	return out
}

// Edges возвращает рёбра между участниками: consumer → producers.
func (m *MetaWorkflow) Edges() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]string)
	if m.dag == nil {
		return out
	}
	for id, node := range m.dag.Nodes {
		if len(node.DependsOn) == 0 {
			continue
		}
		deps := make([]string, 0, len(node.DependsOn))
		for _, dep := range node.DependsOn {
			deps = append(deps, dep.ID)
		}
		sort.Strings(deps)
		out[id] = deps
	}
	return out
}

// SetDry включает dry-run у всех участников.
func (m *MetaWorkflow) SetDry(dry bool) {
	for _, w := range m.Workflows() {
		w.SetDry(dry)
	}
}

// memberDone — результат участника для координатора.
type memberDone struct {
	name   string
	result *RunResult
	err    error
}

// Run выполняет участников в топологическом порядке.
// Независимые участники выполняются параллельно. Участник запускается,
// когда все workflow, на которые он ссылается, завершились.
//
// Падение задач участника не останавливает остальных: задачи, ссылающиеся
// на незавершённые задачи, будут SKIPPED. Прочие ошибки участника
// (Reporter, отмена) останавливают запуск новых участников.
func (m *MetaWorkflow) Run(ctx context.Context) (*MetaResult, error) {
	if err := m.MakeDependencies(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	dag := m.dag
	m.mu.RUnlock()

	res := &MetaResult{
		Name:      m.name,
		Order:     m.Order(),
		Workflows: make(map[string]*RunResult),
		StartedAt: time.Now(),
	}

	m.logger.Info("meta-workflow started", "order", res.Order)

	doneCh := make(chan memberDone)
	done := make(map[string]bool)
	started := make(map[string]bool)
	inFlight := 0
	var errs []error
	halted := false

	for {
		if !halted && ctx.Err() == nil {
			for _, name := range res.Order {
				if started[name] || !producersDone(dag.GetNode(name), done) {
					continue
				}
				started[name] = true
				inFlight++
				w, _ := m.Workflow(name)
				go func() {
					result, err := w.Run(ctx)
					doneCh <- memberDone{name: w.Name(), result: result, err: err}
				}()
			}
		}
		if inFlight == 0 {
			break
		}

		d := <-doneCh
		inFlight--
		done[d.name] = true
		if d.result != nil {
			res.Workflows[d.name] = d.result
		}
		if d.err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", d.name, d.err))
			if !errors.Is(d.err, ErrRunFailed) {
				halted = true
			}
		}
	}

	res.FinishedAt = time.Now()
	res.Status = domain.RunStatusSucceeded
	switch {
	case len(errs) > 0:
		res.Status = domain.RunStatusFailed
	case len(done) < len(res.Order):
		res.Status = domain.RunStatusCancelled
	}
	m.logger.Info("meta-workflow finished", "status", res.Status, "duration", res.FinishedAt.Sub(res.StartedAt))

	if res.Status == domain.RunStatusCancelled {
		return res, ctx.Err()
	}
	return res, errors.Join(errs...)
}

// producersDone проверяет, что все workflow, от которых зависит node, завершились.
func producersDone(node *engine.Node, done map[string]bool) bool {
	for _, dep := range node.DependsOn {
		if !done[dep.ID] {
			return false
		}
	}
	return true
}
