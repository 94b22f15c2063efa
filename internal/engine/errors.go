package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки построения графа.
var (
	// ErrDependencyCycle — в графе зависимостей обнаружен цикл.
	ErrDependencyCycle = errors.New("dependency cycle detected")

	// ErrUnknownNode — ребро ссылается на узел, которого нет в графе.
	ErrUnknownNode = errors.New("unknown node")
)

// Ошибки workflow:// ссылок.
var (
	// ErrUnresolvedReference — ссылка указывает на несуществующую задачу или workflow.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrMalformedReference — текст после workflow:// не соответствует грамматике.
	ErrMalformedReference = errors.New("malformed reference")

	// ErrUnknownWorkflow — workflow с таким именем не зарегистрирован.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrUnknownTask — задачи с таким именем нет в workflow.
	ErrUnknownTask = errors.New("unknown task")
)

// Ошибки выполнения задач.
var (
	// ErrMissingInput — checkpoint не нашёл ожидаемый входной файл.
	ErrMissingInput = errors.New("checkpoint input missing")

	// ErrTaskExecution — backend вернул ненулевой код.
	ErrTaskExecution = errors.New("task execution failed")
)

// CycleError — цикл в графе зависимостей.
//
// Path замкнут: первый и последний элементы совпадают,
// каждый элемент зависит от следующего.
type CycleError struct {
	Scope string   // "task" или "workflow"
	Path  []string // A -> B -> C -> A
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among %ss: %s", e.Scope, strings.Join(e.Path, " -> "))
}

// Unwrap возвращает базовую ошибку.
func (e *CycleError) Unwrap() error {
	return ErrDependencyCycle
}

// ReferenceError — ошибка разбора или разрешения ссылки в команде задачи.
type ReferenceError struct {
	Workflow string    // workflow ссылающейся задачи
	Task     string    // ссылающаяся задача
	Ref      Reference // сама ссылка
	Err      error     // ErrMalformedReference, ErrUnknownWorkflow или ErrUnknownTask
}

// Error реализует интерфейс error.
func (e *ReferenceError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("reference %q: %v", e.Ref.Raw, e.Err)
	}
	return fmt.Sprintf("task %s.%s: reference %q: %v", e.Workflow, e.Task, e.Ref.Raw, e.Err)
}

// Unwrap возвращает базовые ошибки.
// Для ошибок разрешения дополнительно отдаёт ErrUnresolvedReference.
func (e *ReferenceError) Unwrap() []error {
	if errors.Is(e.Err, ErrMalformedReference) {
		return []error{e.Err}
	}
	return []error{ErrUnresolvedReference, e.Err}
}

// TaskError — ошибка выполнения задачи.
type TaskError struct {
	Workflow string
	Task     string
	Code     int
	Message  string
	Err      error // ErrMissingInput или ErrTaskExecution
}

// Error реализует интерфейс error.
func (e *TaskError) Error() string {
	msg := fmt.Sprintf("task %s.%s: %v (code %d)", e.Workflow, e.Task, e.Err, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *TaskError) Unwrap() error {
	return e.Err
}
