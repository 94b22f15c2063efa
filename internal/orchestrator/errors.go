package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrDuplicateTask — задача с таким именем уже есть в workflow.
	ErrDuplicateTask = errors.New("duplicate task name in workflow")

	// ErrDuplicateWorkflow — workflow с таким именем уже есть в мета-workflow.
	ErrDuplicateWorkflow = errors.New("duplicate workflow name")

	// ErrWorkflowAttached — workflow уже входит в другой мета-workflow.
	ErrWorkflowAttached = errors.New("workflow already belongs to a meta-workflow")

	// ErrForeignDependency — явная зависимость на задачу другого workflow.
	ErrForeignDependency = errors.New("explicit dependency on a task outside the workflow")

	// ErrWorkflowRunning — операция недопустима во время прогона.
	ErrWorkflowRunning = errors.New("workflow is running")

	// ErrRunFailed — хотя бы одна задача завершилась FAILED.
	ErrRunFailed = errors.New("workflow run failed")

	// ErrReporter — status-сервис вернул ошибку, запуск новых задач остановлен.
	ErrReporter = errors.New("status reporter call failed")
)
