package domain

import "errors"

// Ошибки модели задач.
var (
	// ErrSelfDependency — задача объявлена зависимой от самой себя.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrInvalidTaskName — пустое имя или имя с недопустимыми символами.
	ErrInvalidTaskName = errors.New("invalid task name")

	// ErrUnknownTaskType — тип задачи не входит в поддерживаемый набор.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrUnknownStatus — строка не соответствует ни одному TaskStatus.
	ErrUnknownStatus = errors.New("unknown task status")

	// ErrInvalidTransition — недопустимый переход статуса.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTaskAttached — задача уже принадлежит другому workflow.
	ErrTaskAttached = errors.New("task already belongs to a workflow")
)
