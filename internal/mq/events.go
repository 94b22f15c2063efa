package mq

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Dagon/internal/domain"
)

// EventSink — получатель событий (Publisher или тестовая заглушка).
type EventSink interface {
	PublishEvent(ctx context.Context, typ MessageType, payload any) error
}

// EventReporter публикует жизненный цикл workflow как события AMQP.
// Реализует orchestrator.Reporter; идентификатор workflow выдаёт сам.
type EventReporter struct {
	sink   EventSink
	logger *slog.Logger
}

// NewEventReporter создаёт EventReporter.
func NewEventReporter(sink EventSink, logger *slog.Logger) *EventReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventReporter{sink: sink, logger: logger}
}

// CreateWorkflow публикует workflow.created.
func (r *EventReporter) CreateWorkflow(ctx context.Context, info domain.WorkflowInfo) (string, error) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if err := r.sink.PublishEvent(ctx, MessageTypeWorkflowCreated, WorkflowCreatedPayload{Workflow: info}); err != nil {
		return "", err
	}
	return info.ID, nil
}

// AddTask публикует task.added.
func (r *EventReporter) AddTask(ctx context.Context, workflowID string, task domain.TaskInfo) error {
	return r.sink.PublishEvent(ctx, MessageTypeTaskAdded, TaskAddedPayload{WorkflowID: workflowID, Task: task})
}

// UpdateTaskStatus публикует task.status.
func (r *EventReporter) UpdateTaskStatus(ctx context.Context, workflowID, task string, status domain.TaskStatus) error {
	return r.sink.PublishEvent(ctx, MessageTypeTaskStatus, TaskStatusPayload{
		WorkflowID: workflowID,
		Task:       task,
		Status:     status,
	})
}

// UpdateTask публикует task.updated.
func (r *EventReporter) UpdateTask(ctx context.Context, workflowID, task, attribute, value string) error {
	return r.sink.PublishEvent(ctx, MessageTypeTaskUpdated, TaskUpdatedPayload{
		WorkflowID: workflowID,
		Task:       task,
		Attribute:  attribute,
		Value:      value,
	})
}

// AddDependency публикует task.dependency.
func (r *EventReporter) AddDependency(ctx context.Context, workflowID, task, dependency string) error {
	return r.sink.PublishEvent(ctx, MessageTypeTaskDependency, TaskDependencyPayload{
		WorkflowID: workflowID,
		Task:       task,
		Dependency: dependency,
	})
}
