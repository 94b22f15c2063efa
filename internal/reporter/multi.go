package reporter

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/orchestrator"
)

// Multi рассылает вызовы нескольким Reporter'ам по очереди.
//
// Каждый получатель выдаёт свой идентификатор workflow; наружу
// отдаётся идентификатор первого, остальные сопоставляются с ним.
// Первая ошибка прерывает рассылку.
type Multi struct {
	reporters []orchestrator.Reporter

	mu  sync.Mutex
	ids map[string][]string
}

// NewMulti создаёт Multi. nil-получатели пропускаются.
func NewMulti(reporters ...orchestrator.Reporter) *Multi {
	m := &Multi{ids: make(map[string][]string)}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

// Len возвращает количество получателей.
func (m *Multi) Len() int {
	return len(m.reporters)
}

// CreateWorkflow реализует orchestrator.Reporter.
func (m *Multi) CreateWorkflow(ctx context.Context, info domain.WorkflowInfo) (string, error) {
	if len(m.reporters) == 0 {
		return "", fmt.Errorf("%w: no reporters configured", ErrRemoteCall)
	}
	ids := make([]string, len(m.reporters))
	for i, r := range m.reporters {
		id, err := r.CreateWorkflow(ctx, info)
		if err != nil {
			return "", err
		}
		ids[i] = id
	}

	m.mu.Lock()
	m.ids[ids[0]] = ids
	m.mu.Unlock()
	return ids[0], nil
}

func (m *Multi) each(workflowID string, call func(r orchestrator.Reporter, id string) error) error {
	m.mu.Lock()
	ids, ok := m.ids[workflowID]
	m.mu.Unlock()

	for i, r := range m.reporters {
		id := workflowID
		if ok {
			id = ids[i]
		}
		if err := call(r, id); err != nil {
			return err
		}
	}
	return nil
}

// AddTask реализует orchestrator.Reporter.
func (m *Multi) AddTask(ctx context.Context, workflowID string, task domain.TaskInfo) error {
	return m.each(workflowID, func(r orchestrator.Reporter, id string) error {
		return r.AddTask(ctx, id, task)
	})
}

// UpdateTaskStatus реализует orchestrator.Reporter.
func (m *Multi) UpdateTaskStatus(ctx context.Context, workflowID, task string, status domain.TaskStatus) error {
	return m.each(workflowID, func(r orchestrator.Reporter, id string) error {
		return r.UpdateTaskStatus(ctx, id, task, status)
	})
}

// UpdateTask реализует orchestrator.Reporter.
func (m *Multi) UpdateTask(ctx context.Context, workflowID, task, attribute, value string) error {
	return m.each(workflowID, func(r orchestrator.Reporter, id string) error {
		return r.UpdateTask(ctx, id, task, attribute, value)
	})
}

// AddDependency реализует orchestrator.Reporter.
func (m *Multi) AddDependency(ctx context.Context, workflowID, task, dependency string) error {
	return m.each(workflowID, func(r orchestrator.Reporter, id string) error {
		return r.AddDependency(ctx, id, task, dependency)
	})
}
