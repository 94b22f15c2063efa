package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// Mirror — дополнительное хранилище записей (например, PostgreSQL).
type Mirror interface {
	// Save сохраняет запись задачи workflow.
	Save(ctx context.Context, workflow, task string, rec Record) error

	// Load возвращает записи workflow, ключи — "<workflow>.<task>".
	Load(ctx context.Context, workflow string) (map[string]Record, error)
}

// Config — конфигурация Manager.
type Config struct {
	// Dir — директория для файлов checkpoint.
	// По умолчанию — текущая директория.
	Dir string

	// Mirror — опциональное зеркало записей.
	Mirror Mirror

	Logger *slog.Logger
}

// Manager переносит рабочие директории checkpoint-задач
// и сохраняет записи на диск.
type Manager struct {
	dir    string
	mirror Mirror
	logger *slog.Logger

	// qualified — имена файлов "<workflow>.<task>.json".
	qualified bool
}

// NewManager создаёт Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		dir:    cfg.Dir,
		mirror: cfg.Mirror,
		logger: cfg.Logger,
	}
}

// Qualified возвращает Manager с той же директорией и зеркалом, который
// называет файлы "<workflow>.<task>.json". Нужен, когда несколько
// workflow пишут в одну директорию и имена задач могут совпасть.
func (m *Manager) Qualified() *Manager {
	out := *m
	out.qualified = true
	return &out
}

// Path возвращает путь файла checkpoint задачи.
func (m *Manager) Path(workflow, task string) string {
	name := FileName(task)
	if m.qualified {
		name = FileName(Key(workflow, task))
	}
	return filepath.Join(m.dir, name)
}

// Dir возвращает директорию файлов checkpoint.
func (m *Manager) Dir() string {
	return m.dir
}

// Relocate переименовывает рабочую директорию в "<dir>-checkpoint"
// и возвращает новый путь.
func (m *Manager) Relocate(workingDir string) (string, error) {
	target := workingDir + Suffix

	m.logger.Debug("renaming scratch directory", "from", workingDir, "to", target)

	if err := os.Rename(workingDir, target); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRelocate, err)
	}
	return target, nil
}

// Commit добавляет запись задачи в store и записывает весь store
// в файл "<task>.json" (см. Path). Зеркало получает те же записи, что
// и файл, чтобы resume из него восстанавливал и задачи до checkpoint.
// Возвращает путь файла.
func (m *Manager) Commit(ctx context.Context, store *Store, workflow, task string, rec Record) (string, error) {
	store.Upsert(Key(workflow, task), rec)
	records := store.Snapshot()

	path := m.Path(workflow, task)
	if err := WriteFile(path, records); err != nil {
		return "", fmt.Errorf("write checkpoint %s: %w", path, err)
	}

	if m.mirror != nil {
		own := ForWorkflow(records, workflow)
		for _, name := range slices.Sorted(maps.Keys(own)) {
			if err := m.mirror.Save(ctx, workflow, name, own[name]); err != nil {
				return "", fmt.Errorf("mirror checkpoint %s: %w", Key(workflow, name), err)
			}
		}
	}

	m.logger.Info("checkpoint written",
		"workflow", workflow,
		"task", task,
		"records", len(records),
		"path", path,
	)
	return path, nil
}

// Load читает записи из файла checkpoint.
func (m *Manager) Load(path string) (map[string]Record, error) {
	return LoadFile(path)
}

// LoadMirror читает записи workflow из зеркала.
func (m *Manager) LoadMirror(ctx context.Context, workflow string) (map[string]Record, error) {
	if m.mirror == nil {
		return map[string]Record{}, nil
	}
	return m.mirror.Load(ctx, workflow)
}
