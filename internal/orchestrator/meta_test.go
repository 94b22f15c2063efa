package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/engine"
)

func newTestMeta(t *testing.T, workflows ...*Workflow) *MetaWorkflow {
	t.Helper()
	m, err := NewMeta("meta", nil)
	require.NoError(t, err)
	for _, w := range workflows {
		require.NoError(t, m.AddWorkflow(w))
	}
	return m
}

func TestMeta_AddWorkflow(t *testing.T) {
	backend := newRecordingBackend()
	w := newTestWorkflow(t, "wf", backend)
	m := newTestMeta(t, w)

	assert.ErrorIs(t, m.AddWorkflow(newTestWorkflow(t, "wf", backend)), ErrDuplicateWorkflow)

	other := newTestMeta(t)
	assert.ErrorIs(t, other.AddWorkflow(w), ErrWorkflowAttached)

	got, ok := m.Workflow("wf")
	require.True(t, ok)
	assert.Same(t, w, got)
}

func TestMeta_EdgesFromMatchingReferences(t *testing.T) {
	backend := newRecordingBackend()
	producer := newTestWorkflow(t, "producer", backend)
	addTask(t, producer, "A", "echo a > out.txt")

	consumer := newTestWorkflow(t, "consumer", backend)
	addTask(t, consumer, "B", "cat workflow://producer/A/out.txt")
	addTask(t, consumer, "C", "cat workflow:///B/out.txt workflow://producer/A/out.txt")

	lone := newTestWorkflow(t, "lone", backend)
	addTask(t, lone, "D", "true")

	m := newTestMeta(t, producer, consumer, lone)
	require.NoError(t, m.MakeDependencies())

	assert.Equal(t, map[string][]string{"consumer": {"producer"}}, m.Edges())

	order := m.Order()
	require.Len(t, order, 3)
	assert.Less(t, indexOf(order, "producer"), indexOf(order, "consumer"))

	// Ссылки на другой workflow не добавляют рёбер внутри consumer.
	assert.Empty(t, consumer.DAG().GetNode("B").DependsOn)
	assert.Len(t, consumer.DAG().GetNode("C").DependsOn, 1)
}

func TestMeta_UnknownWorkflow(t *testing.T) {
	w := newTestWorkflow(t, "wf", newRecordingBackend())
	addTask(t, w, "A", "cat workflow://nope/X/out.txt")
	m := newTestMeta(t, w)

	err := m.MakeDependencies()
	assert.ErrorIs(t, err, engine.ErrUnresolvedReference)
	assert.ErrorIs(t, err, engine.ErrUnknownWorkflow)
}

func TestMeta_UnknownTaskInOtherWorkflow(t *testing.T) {
	backend := newRecordingBackend()
	producer := newTestWorkflow(t, "producer", backend)
	addTask(t, producer, "A", "true")
	consumer := newTestWorkflow(t, "consumer", backend)
	addTask(t, consumer, "B", "cat workflow://producer/Z/out.txt")
	m := newTestMeta(t, producer, consumer)

	err := m.MakeDependencies()
	assert.ErrorIs(t, err, engine.ErrUnknownTask)
}

func TestMeta_CycleRejected(t *testing.T) {
	backend := newRecordingBackend()
	one := newTestWorkflow(t, "one", backend)
	addTask(t, one, "A", "cat workflow://two/B/out")
	two := newTestWorkflow(t, "two", backend)
	addTask(t, two, "B", "cat workflow://one/A/out")
	m := newTestMeta(t, one, two)

	res, err := m.Run(context.Background())
	assert.Nil(t, res)

	var cycle *engine.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, "workflow", cycle.Scope)
	assert.Equal(t, []string{"one", "two", "one"}, cycle.Path)
	assert.Empty(t, backend.started())
}

func TestMeta_RunOrdersWorkflows(t *testing.T) {
	backend := newRecordingBackend()
	producer := newTestWorkflow(t, "producer", backend)
	a := addTask(t, producer, "A", "echo a > out.txt")
	consumer := newTestWorkflow(t, "consumer", backend)
	b := addTask(t, consumer, "B", "cat workflow://producer/A/out.txt")
	m := newTestMeta(t, producer, consumer)

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, res.Status)
	assert.Equal(t, []string{"producer", "consumer"}, res.Order)
	require.Len(t, res.Workflows, 2)

	assert.Less(t, backend.index("end:producer.A"), backend.index("start:consumer.B"))

	script := backend.scripts["consumer.B"]
	assert.Contains(t, script, filepath.Join(a.ScratchDir(), "out.txt"))
	assert.Contains(t, script, filepath.Join(b.ScratchDir(), ".dagon", "inputs", "producer", "A", "out.txt"))
}

func TestMeta_FailedProducerSkipsConsumers(t *testing.T) {
	backend := newRecordingBackend().failWith("producer.A", 1)
	producer := newTestWorkflow(t, "producer", backend)
	addTask(t, producer, "A", "false")
	consumer := newTestWorkflow(t, "consumer", backend)
	b := addTask(t, consumer, "B", "cat workflow://producer/A/out.txt")
	c := addTask(t, consumer, "C", "cat workflow:///B/out.txt")
	free := addTask(t, consumer, "F", "true")
	lone := newTestWorkflow(t, "lone", backend)
	d := addTask(t, lone, "D", "true")
	m := newTestMeta(t, producer, consumer, lone)

	res, err := m.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, domain.RunStatusFailed, res.Status)

	assert.Equal(t, domain.TaskStatusSkipped, b.Status())
	assert.Equal(t, domain.TaskStatusSkipped, c.Status())
	assert.Equal(t, domain.TaskStatusFinished, free.Status())
	assert.Equal(t, domain.TaskStatusFinished, d.Status())
	assert.Equal(t, domain.RunStatusSucceeded, res.Workflows["consumer"].Status)
	assert.NotContains(t, backend.started(), "consumer.B")
}

func TestMeta_DryRun(t *testing.T) {
	backend := newRecordingBackend()
	producer := newTestWorkflow(t, "producer", backend)
	addTask(t, producer, "A", "true")
	consumer := newTestWorkflow(t, "consumer", backend)
	addTask(t, consumer, "B", "cat workflow://producer/A/out.txt")
	m := newTestMeta(t, producer, consumer)
	m.SetDry(true)

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, res.Status)
	assert.Empty(t, backend.started())
	assert.EqualValues(t, 1, producer.DryCalls())
	assert.EqualValues(t, 1, consumer.DryCalls())
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
