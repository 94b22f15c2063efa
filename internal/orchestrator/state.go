package orchestrator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Dagon/internal/domain"
)

// RunState — состояние одного прогона workflow в памяти.
//
// RunState создаётся в начале Run и живёт до его завершения.
// Пишет в него только координирующая горутина; mutex нужен
// для чтения снимка из других горутин (Snapshot).
type RunState struct {
	// RunID — идентификатор прогона.
	RunID string

	// Workflow — имя workflow.
	Workflow string

	// StartedAt — время начала прогона.
	StartedAt time.Time

	// inFlight — задачи, переданные backend'у и ещё не вернувшиеся.
	inFlight int

	// taskErrors — ошибки выполнения задач (по одной на FAILED задачу).
	taskErrors []error

	// halt — первая ошибка, после которой новые задачи не запускаются.
	halt error

	mu sync.RWMutex
}

// newRunState создаёт RunState.
func newRunState(workflow, runID string) *RunState {
	return &RunState{
		RunID:     runID,
		Workflow:  workflow,
		StartedAt: time.Now(),
	}
}

// dispatched отмечает запуск задачи.
func (s *RunState) dispatched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
}

// returned отмечает возврат задачи от backend'а.
func (s *RunState) returned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
}

// InFlight возвращает количество выполняющихся задач.
func (s *RunState) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

// addTaskError запоминает ошибку задачи.
func (s *RunState) addTaskError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskErrors = append(s.taskErrors, err)
}

// stop запоминает первую ошибку, останавливающую запуск задач.
func (s *RunState) stop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halt == nil {
		s.halt = err
	}
}

// Halted возвращает ошибку остановки или nil.
func (s *RunState) Halted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halt
}

// TaskErrors возвращает копию ошибок задач.
func (s *RunState) TaskErrors() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]error, len(s.taskErrors))
	copy(out, s.taskErrors)
	return out
}

// RunStats — количество задач по статусам.
type RunStats struct {
	Total    int
	Pending  int
	Ready    int
	Running  int
	Finished int
	Failed   int
	Skipped  int
}

// RunResult — итог прогона workflow.
//
// Артефакты успешно завершённых задач остаются доступны через
// их рабочие директории даже при Status == FAILED.
type RunResult struct {
	Workflow   string
	RunID      string
	Status     domain.RunStatus
	Tasks      map[string]domain.TaskStatus
	Stats      RunStats
	Errors     []error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration возвращает продолжительность прогона.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed возвращает имена задач в статусе FAILED.
func (r *RunResult) Failed() []string {
	return r.withStatus(domain.TaskStatusFailed)
}

// Skipped возвращает имена задач в статусе SKIPPED.
func (r *RunResult) Skipped() []string {
	return r.withStatus(domain.TaskStatusSkipped)
}

func (r *RunResult) withStatus(status domain.TaskStatus) []string {
	out := make([]string, 0)
	for name, s := range r.Tasks {
		if s == status {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Err возвращает ошибку прогона: ErrRunFailed вместе с ошибками задач.
func (r *RunResult) Err() error {
	if r.Status != domain.RunStatusFailed {
		return nil
	}
	return errors.Join(append([]error{ErrRunFailed}, r.Errors...)...)
}
