package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Dagon/internal/domain"
)

// Ошибки манифеста.
var (
	// ErrEmpty — пустой файл манифеста.
	ErrEmpty = errors.New("manifest is empty")

	// ErrInvalid — манифест не прошёл проверку.
	ErrInvalid = errors.New("invalid manifest")
)

// TaskSpec — описание задачи.
type TaskSpec struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type,omitempty"`
	Command   string   `yaml:"command"`
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Host и User — только для type: remote.
	Host string `yaml:"host,omitempty"`
	User string `yaml:"user,omitempty"`
}

// WorkflowSpec — описание workflow.
type WorkflowSpec struct {
	Name  string     `yaml:"name"`
	Tasks []TaskSpec `yaml:"tasks"`
}

// WorkflowEntry — участник мета-манифеста: либо описание workflow
// на месте, либо путь к отдельному манифесту в Include.
type WorkflowEntry struct {
	Include      string `yaml:"include,omitempty"`
	WorkflowSpec `yaml:",inline"`
}

// Manifest — содержимое YAML-файла.
//
// Обычный манифест задаёт name и tasks, мета-манифест — meta и workflows.
type Manifest struct {
	Name  string     `yaml:"name,omitempty"`
	Tasks []TaskSpec `yaml:"tasks,omitempty"`

	Meta      string          `yaml:"meta,omitempty"`
	Workflows []WorkflowEntry `yaml:"workflows,omitempty"`
}

// IsMeta возвращает true для мета-манифеста.
func (m *Manifest) IsMeta() bool {
	return m.Meta != ""
}

// Parse разбирает YAML. Неизвестные поля — ошибка.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Load читает манифест из файла и подставляет include-файлы
// мета-манифеста. Пути include считаются от директории манифеста.
func Load(path string) (*Manifest, error) {
	m, err := readFile(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i, entry := range m.Workflows {
		if entry.Include == "" {
			continue
		}
		if entry.Name != "" || len(entry.Tasks) > 0 {
			return nil, fmt.Errorf("%w: %s: workflows[%d]: include cannot be combined with name or tasks",
				ErrInvalid, path, i)
		}
		incPath := entry.Include
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(dir, incPath)
		}
		inc, err := readFile(incPath)
		if err != nil {
			return nil, err
		}
		if inc.IsMeta() {
			return nil, fmt.Errorf("%w: %s: nested meta manifests are not supported", ErrInvalid, incPath)
		}
		m.Workflows[i] = WorkflowEntry{WorkflowSpec: WorkflowSpec{Name: inc.Name, Tasks: inc.Tasks}}
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func readFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate проверяет структуру: имена, типы задач, явные зависимости.
// Ссылки workflow:// и циклы проверяются при построении графа.
func (m *Manifest) Validate() error {
	var errs []error

	switch {
	case m.IsMeta():
		if m.Name != "" || len(m.Tasks) > 0 {
			errs = append(errs, errors.New("meta manifest cannot have name or tasks"))
		}
		if err := domain.ValidateName(m.Meta); err != nil {
			errs = append(errs, fmt.Errorf("meta: %w", err))
		}
		if len(m.Workflows) == 0 {
			errs = append(errs, errors.New("meta manifest has no workflows"))
		}
		seen := make(map[string]bool)
		for i, entry := range m.Workflows {
			if entry.Include != "" {
				errs = append(errs, fmt.Errorf("workflows[%d]: unresolved include %q", i, entry.Include))
				continue
			}
			if seen[entry.Name] {
				errs = append(errs, fmt.Errorf("workflows[%d]: duplicate workflow %q", i, entry.Name))
			}
			seen[entry.Name] = true
			errs = append(errs, entry.WorkflowSpec.validate()...)
		}
	default:
		if len(m.Workflows) > 0 {
			errs = append(errs, errors.New("workflows require meta"))
		}
		errs = append(errs, WorkflowSpec{Name: m.Name, Tasks: m.Tasks}.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (w WorkflowSpec) validate() []error {
	var errs []error
	if err := domain.ValidateName(w.Name); err != nil {
		errs = append(errs, fmt.Errorf("workflow name: %w", err))
	}
	if len(w.Tasks) == 0 {
		errs = append(errs, fmt.Errorf("workflow %q has no tasks", w.Name))
	}

	names := make(map[string]bool, len(w.Tasks))
	for _, t := range w.Tasks {
		if names[t.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate task %q", w.Name, t.Name))
		}
		names[t.Name] = true
	}

	for _, t := range w.Tasks {
		if err := domain.ValidateName(t.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name, err))
		}
		typ, err := domain.ParseTaskType(t.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", w.Name, t.Name, err))
		}
		if typ == domain.TaskTypeRemote && t.Host == "" {
			errs = append(errs, fmt.Errorf("%s.%s: remote task requires host", w.Name, t.Name))
		}
		if typ != domain.TaskTypeRemote && (t.Host != "" || t.User != "") {
			errs = append(errs, fmt.Errorf("%s.%s: host and user apply to remote tasks only", w.Name, t.Name))
		}
		for _, dep := range t.DependsOn {
			switch {
			case dep == t.Name:
				errs = append(errs, fmt.Errorf("%s.%s: %w", w.Name, t.Name, domain.ErrSelfDependency))
			case !names[dep]:
				errs = append(errs, fmt.Errorf("%s.%s: depends on unknown task %q", w.Name, t.Name, dep))
			}
		}
	}
	return errs
}
