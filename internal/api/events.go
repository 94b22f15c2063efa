package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Dagon/internal/mq"
)

// EventHandler возвращает обработчик событий mq для монитора.
//
// Ошибки хранилища (неизвестный workflow, конфликт, недопустимый
// переход) не исправятся повтором: такие сообщения уходят в DLQ.
func (h *Handler) EventHandler() mq.Handler {
	return mq.Route(map[mq.MessageType]mq.Handler{
		mq.MessageTypeWorkflowCreated: h.onWorkflowCreated,
		mq.MessageTypeTaskAdded:       h.onTaskAdded,
		mq.MessageTypeTaskStatus:      h.onTaskStatus,
		mq.MessageTypeTaskUpdated:     h.onTaskUpdated,
		mq.MessageTypeTaskDependency:  h.onTaskDependency,
	}, h.logger)
}

func (h *Handler) onWorkflowCreated(_ context.Context, d *mq.Delivery) error {
	p, err := mq.ParsePayload[mq.WorkflowCreatedPayload](&d.Message)
	if err != nil {
		return err
	}
	if p.Workflow.ID == "" {
		return fmt.Errorf("%w: workflow.created without id", mq.ErrDrop)
	}
	id, err := h.store.CreateWorkflow(p.Workflow)
	if err != nil {
		return storeEventError(err)
	}
	h.logger.Info("workflow registered from event", "workflow", p.Workflow.Name, "workflow_id", id)
	return nil
}

func (h *Handler) onTaskAdded(_ context.Context, d *mq.Delivery) error {
	p, err := mq.ParsePayload[mq.TaskAddedPayload](&d.Message)
	if err != nil {
		return err
	}
	return storeEventError(h.store.AddTask(p.WorkflowID, p.Task))
}

func (h *Handler) onTaskStatus(_ context.Context, d *mq.Delivery) error {
	p, err := mq.ParsePayload[mq.TaskStatusPayload](&d.Message)
	if err != nil {
		return err
	}
	return storeEventError(h.store.SetStatus(p.WorkflowID, p.Task, string(p.Status)))
}

func (h *Handler) onTaskUpdated(_ context.Context, d *mq.Delivery) error {
	p, err := mq.ParsePayload[mq.TaskUpdatedPayload](&d.Message)
	if err != nil {
		return err
	}
	return storeEventError(h.store.UpdateAttribute(p.WorkflowID, p.Task, p.Attribute, p.Value))
}

func (h *Handler) onTaskDependency(_ context.Context, d *mq.Delivery) error {
	p, err := mq.ParsePayload[mq.TaskDependencyPayload](&d.Message)
	if err != nil {
		return err
	}
	return storeEventError(h.store.AddDependency(p.WorkflowID, p.Task, p.Dependency))
}

// storeEventError помечает ошибки хранилища как не подлежащие повтору.
func storeEventError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalid) {
		return fmt.Errorf("%w: %w", mq.ErrDrop, err)
	}
	return err
}
