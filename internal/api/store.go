package api

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Dagon/internal/domain"
)

// Ошибки хранилища монитора.
var (
	// ErrNotFound — workflow или задача не зарегистрированы.
	ErrNotFound = errors.New("not found")

	// ErrConflict — workflow с таким именем на том же хосте ещё выполняется.
	ErrConflict = errors.New("conflict")

	// ErrInvalid — некорректные данные запроса.
	ErrInvalid = errors.New("invalid request")
)

// WorkflowState — состояние зарегистрированного workflow.
type WorkflowState struct {
	ID        string                      `json:"id"`
	Name      string                      `json:"name"`
	Host      string                      `json:"host,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
	Tasks     map[string]*domain.TaskInfo `json:"tasks"`
}

// active возвращает true, пока есть нетерминальные задачи.
func (w *WorkflowState) active() bool {
	for _, t := range w.Tasks {
		if !t.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func (w *WorkflowState) clone() WorkflowState {
	out := *w
	out.Tasks = make(map[string]*domain.TaskInfo, len(w.Tasks))
	for name, t := range w.Tasks {
		ti := *t
		ti.Dependencies = append([]string(nil), t.Dependencies...)
		out.Tasks[name] = &ti
	}
	return out
}

// Store — хранилище состояний workflow в памяти.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*WorkflowState
	active    map[string]string // name@host → id
	now       func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]*WorkflowState),
		active:    make(map[string]string),
		now:       time.Now,
	}
}

func registrationKey(info domain.WorkflowInfo) string {
	return info.Name + "@" + info.Host
}

// CreateWorkflow регистрирует workflow.
//
// Пока предыдущая регистрация с тем же именем и хостом имеет
// нетерминальные задачи, новая отклоняется с ErrConflict.
func (s *Store) CreateWorkflow(info domain.WorkflowInfo) (string, error) {
	if err := domain.ValidateName(info.Name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := registrationKey(info)
	if prev, ok := s.active[key]; ok {
		if wf := s.workflows[prev]; wf != nil && wf.active() {
			return "", fmt.Errorf("%w: workflow %s is running on %s as %s", ErrConflict, info.Name, info.Host, prev)
		}
	}

	id := info.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := s.workflows[id]; exists {
		return "", fmt.Errorf("%w: workflow id %s already registered", ErrConflict, id)
	}

	now := s.now()
	wf := &WorkflowState{
		ID:        id,
		Name:      info.Name,
		Host:      info.Host,
		CreatedAt: now,
		UpdatedAt: now,
		Tasks:     make(map[string]*domain.TaskInfo, len(info.Tasks)),
	}
	for name, t := range info.Tasks {
		ti := t
		ti.Name = name
		ti.Workflow = info.Name
		if ti.Status == "" {
			ti.Status = domain.TaskStatusPending
		}
		wf.Tasks[name] = &ti
	}

	s.workflows[id] = wf
	s.active[key] = id
	return id, nil
}

// AddTask добавляет или заменяет описание задачи.
func (s *Store) AddTask(id string, task domain.TaskInfo) error {
	if err := domain.ValidateName(task.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	} else if _, err := domain.ParseTaskStatus(string(task.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.workflowLocked(id)
	if err != nil {
		return err
	}
	task.Workflow = wf.Name
	task.Dependencies = append([]string(nil), task.Dependencies...)
	wf.Tasks[task.Name] = &task
	wf.UpdatedAt = s.now()
	return nil
}

// SetStatus меняет статус задачи. Переход проверяется по жизненному
// циклу задачи; повтор текущего статуса допустим.
func (s *Store) SetStatus(id, task, status string) error {
	to, err := domain.ParseTaskStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, wf, err := s.taskLocked(id, task)
	if err != nil {
		return err
	}
	if t.Status != to && !domain.CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s.%s: %s -> %s", ErrInvalid, wf.Name, task, t.Status, to)
	}
	t.Status = to
	wf.UpdatedAt = s.now()
	return nil
}

// Task возвращает копию задачи.
func (s *Store) Task(id, task string) (domain.TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, _, err := s.taskLocked(id, task)
	if err != nil {
		return domain.TaskInfo{}, err
	}
	out := *t
	out.Dependencies = append([]string(nil), t.Dependencies...)
	return out, nil
}

// UpdateAttribute меняет атрибут задачи. Поддерживаются working_dir и command.
func (s *Store) UpdateAttribute(id, task, attribute, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, wf, err := s.taskLocked(id, task)
	if err != nil {
		return err
	}
	switch attribute {
	case "working_dir":
		t.WorkingDir = value
	case "command":
		t.Command = value
	default:
		return fmt.Errorf("%w: unknown attribute %q", ErrInvalid, attribute)
	}
	wf.UpdatedAt = s.now()
	return nil
}

// AddDependency добавляет ребро task → dependency. Обе задачи должны существовать.
func (s *Store) AddDependency(id, task, dependency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, wf, err := s.taskLocked(id, task)
	if err != nil {
		return err
	}
	if _, ok := wf.Tasks[dependency]; !ok {
		return fmt.Errorf("%w: task %s.%s", ErrNotFound, wf.Name, dependency)
	}
	if task == dependency {
		return fmt.Errorf("%w: %v", ErrInvalid, domain.ErrSelfDependency)
	}
	for _, d := range t.Dependencies {
		if d == dependency {
			return nil
		}
	}
	t.Dependencies = append(t.Dependencies, dependency)
	sort.Strings(t.Dependencies)
	wf.UpdatedAt = s.now()
	return nil
}

// Workflow возвращает копию состояния workflow.
func (s *Store) Workflow(id string) (WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, err := s.workflowLocked(id)
	if err != nil {
		return WorkflowState{}, err
	}
	return wf.clone(), nil
}

// List возвращает копии всех workflow, новые первыми.
func (s *Store) List() []WorkflowState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]WorkflowState, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len возвращает количество workflow.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// Delete удаляет workflow.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.workflowLocked(id)
	if err != nil {
		return err
	}
	key := registrationKey(domain.WorkflowInfo{Name: wf.Name, Host: wf.Host})
	if s.active[key] == id {
		delete(s.active, key)
	}
	delete(s.workflows, id)
	return nil
}

func (s *Store) workflowLocked(id string) (*WorkflowState, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return wf, nil
}

func (s *Store) taskLocked(id, task string) (*domain.TaskInfo, *WorkflowState, error) {
	wf, err := s.workflowLocked(id)
	if err != nil {
		return nil, nil, err
	}
	t, ok := wf.Tasks[task]
	if !ok {
		return nil, nil, fmt.Errorf("%w: task %s.%s", ErrNotFound, wf.Name, task)
	}
	return t, wf, nil
}
