package orchestrator

import (
	"context"

	"github.com/shaiso/Dagon/internal/domain"
)

// Reporter — получатель уведомлений о жизненном цикле workflow.
//
// Вызовы синхронные, ошибка любого вызова останавливает запуск
// новых задач и возвращается из Run. Повторов нет: устойчивость
// добавляет обёртка вызывающего кода.
type Reporter interface {
	CreateWorkflow(ctx context.Context, info domain.WorkflowInfo) (string, error)
	AddTask(ctx context.Context, workflowID string, task domain.TaskInfo) error
	UpdateTaskStatus(ctx context.Context, workflowID, task string, status domain.TaskStatus) error
	UpdateTask(ctx context.Context, workflowID, task, attribute, value string) error
	AddDependency(ctx context.Context, workflowID, task, dependency string) error
}
