package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask_Validation(t *testing.T) {
	_, err := NewTask(TaskTypeBatch, "", "echo")
	assert.ErrorIs(t, err, ErrInvalidTaskName)

	_, err = NewTask(TaskTypeBatch, "a/b", "echo")
	assert.ErrorIs(t, err, ErrInvalidTaskName)

	for _, name := range []string{".", "..", ".hidden"} {
		_, err = NewTask(TaskTypeBatch, name, "echo")
		assert.ErrorIs(t, err, ErrInvalidTaskName, name)
		assert.ErrorIs(t, ValidateName(name), ErrInvalidTaskName, name)
	}
	require.NoError(t, ValidateName("v1.2"))

	_, err = NewTask("docker", "a", "echo")
	assert.ErrorIs(t, err, ErrUnknownTaskType)

	task, err := NewTask("", "Hemingway", "echo 10 > A.txt")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeBatch, task.Type())
	assert.Equal(t, TaskStatusPending, task.Status())
	assert.Empty(t, task.ScratchDir())
}

func TestAddDependencyTo(t *testing.T) {
	a, _ := NewTask(TaskTypeBatch, "A", "true")
	b, _ := NewTask(TaskTypeBatch, "B", "true")

	err := a.AddDependencyTo(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSelfDependency))

	require.NoError(t, a.AddDependencyTo(b))
	require.NoError(t, a.AddDependencyTo(b))
	assert.Len(t, a.Dependencies(), 1)
	assert.Equal(t, []string{"B"}, a.Info().Dependencies)
}

func TestAttach(t *testing.T) {
	a, _ := NewTask(TaskTypeBatch, "A", "true")
	require.NoError(t, a.Attach("wf1"))
	require.NoError(t, a.Attach("wf1"))
	assert.ErrorIs(t, a.Attach("wf2"), ErrTaskAttached)
	assert.Equal(t, "wf1", a.Workflow())
}

func TestLifecycle(t *testing.T) {
	a, _ := NewTask(TaskTypeCheckpoint, "A", "true")

	assert.ErrorIs(t, a.MarkRunning("/tmp/a"), ErrInvalidTransition)
	require.NoError(t, a.MarkReady())
	require.NoError(t, a.MarkRunning("/tmp/a"))
	assert.Equal(t, "/tmp/a", a.ScratchDir())

	require.NoError(t, a.Relocate("/tmp/a-checkpoint"))
	require.NoError(t, a.MarkFinished(0, ""))
	assert.Equal(t, "/tmp/a-checkpoint", a.ScratchDir())
	assert.True(t, a.Status().IsTerminal())

	assert.ErrorIs(t, a.MarkSkipped(), ErrInvalidTransition)
	assert.ErrorIs(t, a.Relocate("/x"), ErrInvalidTransition)
}

func TestSkipAndRestore(t *testing.T) {
	a, _ := NewTask(TaskTypeBatch, "A", "true")
	require.NoError(t, a.MarkSkipped())
	assert.Equal(t, TaskStatusSkipped, a.Status())

	b, _ := NewTask(TaskTypeBatch, "B", "true")
	require.NoError(t, b.Restore("/scratch/B"))
	assert.Equal(t, TaskStatusFinished, b.Status())
	assert.Equal(t, "/scratch/B", b.ScratchDir())
}

func TestWaitScratchDir(t *testing.T) {
	a, _ := NewTask(TaskTypeBatch, "A", "true")
	require.NoError(t, a.MarkReady())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = a.MarkRunning("/scratch/A")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dir, err := a.WaitScratchDir(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "/scratch/A", dir)
	wg.Wait()

	b, _ := NewTask(TaskTypeBatch, "B", "true")
	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	_, err = b.WaitScratchDir(short, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitScratchDir_NonPositiveInterval(t *testing.T) {
	a, _ := NewTask(TaskTypeBatch, "A", "true")
	require.NoError(t, a.MarkReady())
	require.NoError(t, a.MarkRunning("/scratch/A"))

	for _, interval := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		dir, err := a.WaitScratchDir(ctx, interval)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, "/scratch/A", dir)
	}

	b, _ := NewTask(TaskTypeBatch, "B", "true")
	require.NoError(t, b.MarkReady())
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.MarkRunning("/scratch/B")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dir, err := b.WaitScratchDir(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "/scratch/B", dir)
}

func TestParseTaskStatus(t *testing.T) {
	s, err := ParseTaskStatus("FINISHED")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFinished, s)

	_, err = ParseTaskStatus("DONE")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
