package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/worker"
)

// scriptTask извлекает "<workflow>.<task>" из заголовка скрипта.
func scriptTask(script string) string {
	for _, line := range strings.Split(script, "\n") {
		if rest, ok := strings.CutPrefix(line, "# dagon task "); ok {
			return rest
		}
	}
	return ""
}

// memoryMirror хранит записи checkpoint в памяти.
type memoryMirror struct {
	mu      sync.Mutex
	records map[string]checkpoint.Record
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{records: make(map[string]checkpoint.Record)}
}

func (m *memoryMirror) Save(_ context.Context, workflow, task string, rec checkpoint.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[checkpoint.Key(workflow, task)] = rec
	return nil
}

func (m *memoryMirror) Load(_ context.Context, workflow string) (map[string]checkpoint.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]checkpoint.Record)
	for task, rec := range checkpoint.ForWorkflow(m.records, workflow) {
		out[checkpoint.Key(workflow, task)] = rec
	}
	return out, nil
}

// recordingBackend запоминает порядок начала и конца задач.
type recordingBackend struct {
	mu      sync.Mutex
	events  []string
	scripts map[string]string
	codes   map[string]int
	delay   time.Duration

	running    int
	maxRunning int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		scripts: make(map[string]string),
		codes:   make(map[string]int),
	}
}

func (b *recordingBackend) failWith(task string, code int) *recordingBackend {
	b.codes[task] = code
	return b
}

func (b *recordingBackend) Execute(_ context.Context, script, _ string) (*worker.Result, error) {
	name := scriptTask(script)

	b.mu.Lock()
	b.events = append(b.events, "start:"+name)
	b.scripts[name] = script
	b.running++
	if b.running > b.maxRunning {
		b.maxRunning = b.running
	}
	code := b.codes[name]
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	b.mu.Lock()
	b.running--
	b.events = append(b.events, "end:"+name)
	b.mu.Unlock()

	if code != 0 {
		return &worker.Result{Code: code, Message: "boom"}, nil
	}
	return &worker.Result{}, nil
}

func (b *recordingBackend) started() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0)
	for _, e := range b.events {
		if name, ok := strings.CutPrefix(e, "start:"); ok {
			out = append(out, name)
		}
	}
	return out
}

func (b *recordingBackend) index(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.events {
		if e == event {
			return i
		}
	}
	return -1
}

// recordingReporter запоминает вызовы и может вернуть ошибку.
type recordingReporter struct {
	mu    sync.Mutex
	calls []string
	fail  func(call string) bool
}

var errReporterDown = errors.New("status service down")

func (r *recordingReporter) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.fail != nil && r.fail(call) {
		return errReporterDown
	}
	return nil
}

func (r *recordingReporter) CreateWorkflow(_ context.Context, info domain.WorkflowInfo) (string, error) {
	if err := r.record("create " + info.Name); err != nil {
		return "", err
	}
	return "id-" + info.Name, nil
}

func (r *recordingReporter) AddTask(_ context.Context, id string, task domain.TaskInfo) error {
	return r.record(fmt.Sprintf("add_task %s %s", id, task.Name))
}

func (r *recordingReporter) UpdateTaskStatus(_ context.Context, id, task string, status domain.TaskStatus) error {
	return r.record(fmt.Sprintf("status %s %s %s", id, task, status))
}

func (r *recordingReporter) UpdateTask(_ context.Context, id, task, attr, _ string) error {
	return r.record(fmt.Sprintf("update %s %s %s", id, task, attr))
}

func (r *recordingReporter) AddDependency(_ context.Context, id, task, dep string) error {
	return r.record(fmt.Sprintf("dependency %s %s %s", id, task, dep))
}

func (r *recordingReporter) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// newTestWorkflow создаёт workflow с backend'ом для batch и checkpoint.
func newTestWorkflow(t *testing.T, name string, backend worker.Backend, opts ...func(*Config)) *Workflow {
	t.Helper()
	cfg := Config{
		Backends:   worker.NewRegistry(backend),
		ScratchDir: t.TempDir(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	w, err := New(name, cfg)
	require.NoError(t, err)
	return w
}

// addTask создаёт batch-задачу и добавляет её в workflow.
func addTask(t *testing.T, w *Workflow, name, command string, deps ...*domain.Task) *domain.Task {
	t.Helper()
	return addTyped(t, w, domain.TaskTypeBatch, name, command, deps...)
}

func addTyped(t *testing.T, w *Workflow, typ domain.TaskType, name, command string, deps ...*domain.Task) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(typ, name, command)
	require.NoError(t, err)
	for _, dep := range deps {
		require.NoError(t, task.AddDependencyTo(dep))
	}
	require.NoError(t, w.AddTask(task))
	return task
}
