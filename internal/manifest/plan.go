package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/orchestrator"
)

// Plan — workflow, построенные из манифеста.
// Для мета-манифеста Meta содержит всех участников.
type Plan struct {
	Name      string
	Meta      *orchestrator.MetaWorkflow
	Workflows []*orchestrator.Workflow
}

// Build создаёт задачи и workflow. cfg общий для всех workflow плана;
// в мета-плане файлы checkpoint называются "<workflow>.<task>.json".
func Build(m *Manifest, cfg orchestrator.Config) (*Plan, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if !m.IsMeta() {
		w, err := buildWorkflow(WorkflowSpec{Name: m.Name, Tasks: m.Tasks}, cfg)
		if err != nil {
			return nil, err
		}
		return &Plan{Name: m.Name, Workflows: []*orchestrator.Workflow{w}}, nil
	}

	// Участники мета-манифеста пишут в общую директорию, имена задач в
	// разных workflow могут совпадать.
	if cfg.Checkpoints != nil {
		cfg.Checkpoints = cfg.Checkpoints.Qualified()
	}
	meta, err := orchestrator.NewMeta(m.Meta, cfg.Logger)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Name: m.Meta, Meta: meta}
	for _, entry := range m.Workflows {
		w, err := buildWorkflow(entry.WorkflowSpec, cfg)
		if err != nil {
			return nil, err
		}
		if err := meta.AddWorkflow(w); err != nil {
			return nil, err
		}
		plan.Workflows = append(plan.Workflows, w)
	}
	return plan, nil
}

func buildWorkflow(def WorkflowSpec, cfg orchestrator.Config) (*orchestrator.Workflow, error) {
	w, err := orchestrator.New(def.Name, cfg)
	if err != nil {
		return nil, err
	}

	tasks := make(map[string]*domain.Task, len(def.Tasks))
	ordered := make([]*domain.Task, 0, len(def.Tasks))
	for _, ts := range def.Tasks {
		typ, err := domain.ParseTaskType(ts.Type)
		if err != nil {
			return nil, err
		}
		t, err := domain.NewTask(typ, ts.Name, ts.Command)
		if err != nil {
			return nil, err
		}
		t.Host = ts.Host
		t.User = ts.User
		tasks[ts.Name] = t
		ordered = append(ordered, t)
	}
	for _, ts := range def.Tasks {
		for _, dep := range ts.DependsOn {
			if err := tasks[ts.Name].AddDependencyTo(tasks[dep]); err != nil {
				return nil, err
			}
		}
	}

	if err := w.AddTask(ordered...); err != nil {
		return nil, err
	}
	return w, nil
}

// Prepare строит графы и проверяет ссылки и циклы без выполнения.
func (p *Plan) Prepare() error {
	if p.Meta != nil {
		return p.Meta.MakeDependencies()
	}
	return p.Workflows[0].MakeDependencies()
}

// SetDry включает dry-run для всех workflow плана.
func (p *Plan) SetDry(dry bool) {
	if p.Meta != nil {
		p.Meta.SetDry(dry)
		return
	}
	p.Workflows[0].SetDry(dry)
}

// Resume применяет записи checkpoint ко всем workflow плана.
// Возвращает количество восстановленных задач.
func (p *Plan) Resume(records map[string]checkpoint.Record) (int, error) {
	if err := p.Prepare(); err != nil {
		return 0, err
	}
	total := 0
	for _, w := range p.Workflows {
		n, err := w.Resume(records)
		total += n
		if err != nil {
			return total, fmt.Errorf("resume %s: %w", w.Name(), err)
		}
	}
	return total, nil
}

// Run выполняет план. Результат одиночного workflow оборачивается
// в MetaResult с одним участником.
func (p *Plan) Run(ctx context.Context) (*orchestrator.MetaResult, error) {
	if p.Meta != nil {
		return p.Meta.Run(ctx)
	}

	w := p.Workflows[0]
	started := time.Now()
	res, err := w.Run(ctx)
	if res == nil {
		return nil, err
	}
	return &orchestrator.MetaResult{
		Name:       w.Name(),
		Status:     res.Status,
		Order:      []string{w.Name()},
		Workflows:  map[string]*orchestrator.RunResult{w.Name(): res},
		StartedAt:  started,
		FinishedAt: res.FinishedAt,
	}, err
}

// Level — задачи одного уровня графа.
type Level struct {
	Workflow string   `json:"workflow"`
	Level    int      `json:"level"`
	Tasks    []string `json:"tasks"`
}

// Levels возвращает уровни графов в порядке выполнения workflow.
// Вызывается после Prepare.
func (p *Plan) Levels() []Level {
	workflows := p.Workflows
	if p.Meta != nil {
		order := p.Meta.Order()
		workflows = make([]*orchestrator.Workflow, 0, len(order))
		for _, name := range order {
			w, _ := p.Meta.Workflow(name)
			workflows = append(workflows, w)
		}
	}

	var out []Level
	for _, w := range workflows {
		dag := w.DAG()
		if dag == nil {
			continue
		}
		for i, level := range dag.Levels() {
			out = append(out, Level{Workflow: w.Name(), Level: i, Tasks: level})
		}
	}
	return out
}

// WorkflowEdges возвращает зависимости между workflow мета-манифеста.
func (p *Plan) WorkflowEdges() map[string][]string {
	if p.Meta == nil {
		return map[string][]string{}
	}
	return p.Meta.Edges()
}
