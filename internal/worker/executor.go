package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Dagon/internal/domain"
)

// Backend — исполнитель скриптов задач.
//
// Реализации: LocalBackend, SSHBackend, DryBackend.
//
// script — полный shell-скрипт задачи (подготовка рабочей директории,
// staging входов, команда). scriptName — имя для логов и сохранённой копии.
type Backend interface {
	Execute(ctx context.Context, script, scriptName string) (*Result, error)
}

// KeyManager — управление SSH-ключами для bootstrap доверия
// между машинами.
type KeyManager interface {
	// PublicKey возвращает публичный ключ в формате authorized_keys.
	PublicKey(ctx context.Context) (string, error)

	// AddPublicKey добавляет ключ в authorized_keys целевой машины.
	AddPublicKey(ctx context.Context, key string) (*Result, error)
}

// Result — результат выполнения скрипта.
type Result struct {
	// Code — код выхода. 0 — успех.
	Code int `json:"code"`

	// Message — сообщение об ошибке (stderr).
	Message string `json:"message"`

	// Output — stdout скрипта.
	Output string `json:"output"`
}

// OK возвращает true при нулевом коде выхода.
func (r *Result) OK() bool {
	return r.Code == 0
}

// RemoteFactory возвращает backend для удалённой машины задачи.
type RemoteFactory interface {
	For(host, user string) (Backend, error)
}

// Registry — реестр backend'ов по типу задачи.
type Registry struct {
	backends map[domain.TaskType]Backend
	remote   RemoteFactory
}

// NewRegistry создаёт реестр, где batch и checkpoint выполняются local.
// Для remote backend регистрируется отдельно (адрес известен только задаче).
func NewRegistry(local Backend) *Registry {
	r := &Registry{backends: make(map[domain.TaskType]Backend)}
	r.Register(domain.TaskTypeBatch, local)
	r.Register(domain.TaskTypeCheckpoint, local)
	return r
}

// Register добавляет backend для типа задачи.
func (r *Registry) Register(typ domain.TaskType, backend Backend) {
	r.backends[typ] = backend
}

// SetRemote задаёт фабрику backend'ов для remote-задач.
func (r *Registry) SetRemote(f RemoteFactory) {
	r.remote = f
}

// ForTask выбирает backend для задачи.
// Для remote-задачи явно зарегистрированный backend имеет приоритет над фабрикой.
func (r *Registry) ForTask(t *domain.Task) (Backend, error) {
	switch t.Type() {
	case domain.TaskTypeBatch, domain.TaskTypeCheckpoint:
		return r.Get(t.Type())
	case domain.TaskTypeRemote:
		if b, ok := r.backends[domain.TaskTypeRemote]; ok {
			return b, nil
		}
		if r.remote == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoBackend, t.Type())
		}
		if t.Host == "" {
			return nil, fmt.Errorf("%w: task %s has no host", ErrNoBackend, t.Name())
		}
		return r.remote.For(t.Host, t.User)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, t.Type())
	}
}

// Get возвращает backend для типа задачи.
func (r *Registry) Get(typ domain.TaskType) (Backend, error) {
	backend, ok := r.backends[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, typ)
	}
	return backend, nil
}
