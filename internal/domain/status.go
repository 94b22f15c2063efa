package domain

import "fmt"

// RunStatus — итоговый статус прогона workflow.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (контекст отменён до завершения всех задач)
type RunStatus string

const (
	// RunStatusPending — прогон создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — прогон в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все задачи FINISHED.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы одна задача FAILED.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — прогон остановлен до завершения.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskStatus — статус задачи.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → FINISHED
//	    ↘       ↘            ↘ FAILED
//	     SKIPPED (зависимость завершилась FAILED)
//
// PENDING → FINISHED допустим только при восстановлении из checkpoint.
type TaskStatus string

const (
	// TaskStatusPending — начальный статус, зависимости ещё не выполнены.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusReady — все зависимости FINISHED, задача ждёт запуска.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusRunning — задача выполняется backend'ом.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusFinished — задача успешно завершена.
	TaskStatusFinished TaskStatus = "FINISHED"

	// TaskStatusFailed — backend вернул ненулевой код или ошибку.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusSkipped — задача не запускалась из-за упавшей зависимости.
	TaskStatusSkipped TaskStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusFinished, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// ParseTaskStatus парсит строку в TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(s); st {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusFinished, TaskStatusFailed, TaskStatusSkipped:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// transitions — допустимые переходы статусов задачи.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusReady, TaskStatusSkipped, TaskStatusFinished},
	TaskStatusReady:   {TaskStatusRunning, TaskStatusSkipped},
	TaskStatusRunning: {TaskStatusFinished, TaskStatusFailed},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to TaskStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
