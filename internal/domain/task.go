package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// TaskType — вид задачи.
//
// Набор закрыт: планировщик обрабатывает каждый вариант явно,
// новый вид задачи — новая константа, а не новый тип.
type TaskType string

const (
	// TaskTypeBatch — обычная задача, выполняется локальным backend'ом.
	TaskTypeBatch TaskType = "batch"

	// TaskTypeCheckpoint — задача-checkpoint: проверяет входы,
	// переносит их в корень рабочей директории и фиксирует прогресс.
	TaskTypeCheckpoint TaskType = "checkpoint"

	// TaskTypeRemote — задача, выполняемая на удалённой машине по SSH.
	TaskTypeRemote TaskType = "remote"
)

// ParseTaskType парсит строку в TaskType.
func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(strings.ToLower(s)); t {
	case TaskTypeBatch, TaskTypeCheckpoint, TaskTypeRemote:
		return t, nil
	case "":
		return TaskTypeBatch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
	}
}

// ValidateName проверяет имя задачи или workflow.
// Имя участвует в workflow:// ссылках и путях, поэтому не может
// содержать '/', пробелы и shell-метасимволы. Ведущая точка запрещена:
// "." и ".." указывали бы на родительские директории.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTaskName)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: leading dot in %q", ErrInvalidTaskName, name)
	}
	if strings.ContainsAny(name, "/ \t\n;&|<>()$`'\"") {
		return fmt.Errorf("%w: %q", ErrInvalidTaskName, name)
	}
	return nil
}

// Task — отдельная единица работы внутри workflow.
//
// Имя уникально только в пределах своего workflow. Рабочая директория
// назначается планировщиком при переходе в RUNNING и до этого пуста.
// Все изменяемые поля защищены mu: их пишет планировщик из своих горутин,
// а читают зависимые задачи и внешний код.
type Task struct {
	name    string
	command string
	typ     TaskType

	// Host и User — адрес удалённой машины для TaskTypeRemote.
	Host string
	User string

	mu         sync.RWMutex
	workflow   string
	status     TaskStatus
	workingDir string
	code       int
	message    string
	startedAt  *time.Time
	finishedAt *time.Time
	deps       []*Task
}

// NewTask создаёт задачу в статусе PENDING.
func NewTask(typ TaskType, name, command string) (*Task, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := ParseTaskType(string(typ)); err != nil {
		return nil, err
	}
	if typ == "" {
		typ = TaskTypeBatch
	}
	return &Task{
		name:    name,
		command: command,
		typ:     typ,
		status:  TaskStatusPending,
	}, nil
}

// Name возвращает имя задачи.
func (t *Task) Name() string { return t.name }

// Command возвращает шаблон команды (может содержать workflow:// ссылки).
func (t *Task) Command() string { return t.command }

// Type возвращает вид задачи.
func (t *Task) Type() TaskType { return t.typ }

// Workflow возвращает имя workflow-владельца или "" до добавления.
func (t *Task) Workflow() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.workflow
}

// Attach привязывает задачу к workflow. Повторная привязка к другому
// workflow запрещена.
func (t *Task) Attach(workflow string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workflow != "" && t.workflow != workflow {
		return fmt.Errorf("%w: %s belongs to %s", ErrTaskAttached, t.name, t.workflow)
	}
	t.workflow = workflow
	return nil
}

// AddDependencyTo объявляет явную зависимость: t ждёт завершения other.
// Повторное объявление той же зависимости игнорируется.
func (t *Task) AddDependencyTo(other *Task) error {
	if other == t {
		return fmt.Errorf("%w: %s", ErrSelfDependency, t.name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.deps {
		if d == other {
			return nil
		}
	}
	t.deps = append(t.deps, other)
	return nil
}

// Dependencies возвращает копию списка явных зависимостей.
func (t *Task) Dependencies() []*Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Task, len(t.deps))
	copy(out, t.deps)
	return out
}

// Status возвращает текущий статус.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// ScratchDir возвращает рабочую директорию задачи.
// До перехода в RUNNING возвращает пустую строку.
func (t *Task) ScratchDir() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.workingDir
}

// DefaultPollInterval — интервал опроса WaitScratchDir, если передан неположительный.
const DefaultPollInterval = 100 * time.Millisecond

// WaitScratchDir ждёт назначения рабочей директории, опрашивая задачу
// с интервалом interval.
func (t *Task) WaitScratchDir(ctx context.Context, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if dir := t.ScratchDir(); dir != "" {
			return dir, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Result возвращает код и сообщение последнего выполнения.
func (t *Task) Result() (int, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.code, t.message
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startedAt == nil || t.finishedAt == nil {
		return 0
	}
	return t.finishedAt.Sub(*t.startedAt)
}

// transition выполняет переход статуса под блокировкой.
func (t *Task) transition(to TaskStatus) error {
	if !CanTransition(t.status, to) {
		return fmt.Errorf("%w: %s %s → %s", ErrInvalidTransition, t.name, t.status, to)
	}
	t.status = to
	return nil
}

// MarkReady переводит задачу PENDING → READY.
func (t *Task) MarkReady() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(TaskStatusReady)
}

// MarkRunning переводит задачу READY → RUNNING и назначает рабочую директорию.
func (t *Task) MarkRunning(workingDir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(TaskStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	t.workingDir = workingDir
	t.startedAt = &now
	t.finishedAt = nil
	return nil
}

// Relocate меняет рабочую директорию выполняющейся задачи
// (checkpoint переносит свою директорию перед завершением).
func (t *Task) Relocate(workingDir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TaskStatusRunning {
		return fmt.Errorf("%w: relocate %s in %s", ErrInvalidTransition, t.name, t.status)
	}
	t.workingDir = workingDir
	return nil
}

// MarkFinished переводит задачу RUNNING → FINISHED.
func (t *Task) MarkFinished(code int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(TaskStatusFinished); err != nil {
		return err
	}
	now := time.Now()
	t.finishedAt = &now
	t.code, t.message = code, message
	return nil
}

// MarkFailed переводит задачу RUNNING → FAILED.
func (t *Task) MarkFailed(code int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(TaskStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	t.finishedAt = &now
	t.code, t.message = code, message
	return nil
}

// MarkSkipped переводит задачу PENDING/READY → SKIPPED.
func (t *Task) MarkSkipped() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(TaskStatusSkipped)
}

// Restore помечает задачу выполненной по записи checkpoint:
// PENDING → FINISHED с сохранённой рабочей директорией.
func (t *Task) Restore(workingDir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(TaskStatusFinished); err != nil {
		return err
	}
	t.workingDir = workingDir
	return nil
}

// Info возвращает снимок задачи для status-сервиса и событий.
func (t *Task) Info() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	deps := make([]string, 0, len(t.deps))
	for _, d := range t.deps {
		deps = append(deps, d.name)
	}
	return TaskInfo{
		Name:         t.name,
		Command:      t.command,
		Type:         t.typ,
		Status:       t.status,
		WorkingDir:   t.workingDir,
		Workflow:     t.workflow,
		Dependencies: deps,
	}
}
