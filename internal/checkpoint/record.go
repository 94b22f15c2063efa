package checkpoint

import (
	"strings"
	"sync"

	"github.com/shaiso/Dagon/internal/domain"
)

// Record — запись о завершённой задаче.
// Поля объявлены в алфавитном порядке JSON-ключей.
type Record struct {
	Code       int               `json:"code"`
	Status     domain.TaskStatus `json:"status"`
	WorkingDir string            `json:"working_dir"`
}

// Finished возвращает true, если запись позволяет пропустить задачу при resume.
func (r Record) Finished() bool {
	return r.Status == domain.TaskStatusFinished
}

// Key возвращает ключ записи: "<workflow>.<task>".
func Key(workflow, task string) string {
	return workflow + "." + task
}

// ForWorkflow выбирает записи workflow и возвращает их по имени задачи.
func ForWorkflow(records map[string]Record, workflow string) map[string]Record {
	prefix := workflow + "."
	out := make(map[string]Record)
	for key, rec := range records {
		if task, ok := strings.CutPrefix(key, prefix); ok && task != "" {
			out[task] = rec
		}
	}
	return out
}

// Store — хранилище записей checkpoint одного workflow.
// Пишется из горутин завершившихся задач, поэтому защищено mutex.
type Store struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Upsert добавляет или перезаписывает запись.
func (s *Store) Upsert(key string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
}

// Get возвращает запись по ключу.
func (s *Store) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Snapshot возвращает копию всех записей.
func (s *Store) Snapshot() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Len возвращает количество записей.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
