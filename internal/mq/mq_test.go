package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dagon/internal/domain"
)

type published struct {
	typ     MessageType
	payload any
}

type fakeSink struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (s *fakeSink) PublishEvent(_ context.Context, typ MessageType, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, published{typ: typ, payload: payload})
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventReporter_PublishesLifecycle(t *testing.T) {
	sink := &fakeSink{}
	r := NewEventReporter(sink, quietLogger())
	ctx := context.Background()

	id, err := r.CreateWorkflow(ctx, domain.WorkflowInfo{Name: "wf"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, r.AddTask(ctx, id, domain.TaskInfo{Name: "A"}))
	require.NoError(t, r.UpdateTaskStatus(ctx, id, "A", domain.TaskStatusReady))
	require.NoError(t, r.UpdateTask(ctx, id, "A", "working_dir", "/tmp/a"))
	require.NoError(t, r.AddDependency(ctx, id, "B", "A"))

	require.Len(t, sink.events, 5)
	assert.Equal(t, MessageTypeWorkflowCreated, sink.events[0].typ)
	created := sink.events[0].payload.(WorkflowCreatedPayload)
	assert.Equal(t, id, created.Workflow.ID)

	assert.Equal(t, TaskStatusPayload{WorkflowID: id, Task: "A", Status: domain.TaskStatusReady}, sink.events[2].payload)
	assert.Equal(t, MessageTypeTaskDependency, sink.events[4].typ)
}

func TestEventReporter_KeepsGivenID(t *testing.T) {
	sink := &fakeSink{}
	r := NewEventReporter(sink, nil)

	id, err := r.CreateWorkflow(context.Background(), domain.WorkflowInfo{ID: "fixed", Name: "wf"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
}

func TestEventReporter_SinkError(t *testing.T) {
	sink := &fakeSink{err: ErrNoChannel}
	r := NewEventReporter(sink, nil)

	id, err := r.CreateWorkflow(context.Background(), domain.WorkflowInfo{Name: "wf"})
	assert.ErrorIs(t, err, ErrNoChannel)
	assert.Empty(t, id)
}

func TestDecodeMessage(t *testing.T) {
	body, err := json.Marshal(NewMessage(MessageTypeTaskStatus, TaskStatusPayload{
		WorkflowID: "wf-1", Task: "A", Status: domain.TaskStatusRunning,
	}))
	require.NoError(t, err)

	msg, err := DecodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeTaskStatus, msg.Type)

	p, err := ParsePayload[TaskStatusPayload](&msg)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, p.Status)

	_, err = DecodeMessage([]byte("{garbage"))
	assert.ErrorIs(t, err, ErrDrop)

	_, err = DecodeMessage([]byte(`{"id":"x"}`))
	assert.ErrorIs(t, err, ErrDrop)
}

func TestParsePayload_WrongShape(t *testing.T) {
	msg := NewMessage(MessageTypeTaskStatus, map[string]any{"task": 42})
	_, err := ParsePayload[TaskStatusPayload](msg)
	assert.ErrorIs(t, err, ErrDrop)
}

func TestRoute(t *testing.T) {
	var got []MessageType
	h := Route(map[MessageType]Handler{
		MessageTypeTaskAdded: func(_ context.Context, d *Delivery) error {
			got = append(got, d.Message.Type)
			return nil
		},
	}, quietLogger())

	require.NoError(t, h(context.Background(), &Delivery{Message: *NewMessage(MessageTypeTaskAdded, nil)}))
	require.NoError(t, h(context.Background(), &Delivery{Message: *NewMessage("unknown.type", nil)}))
	assert.Equal(t, []MessageType{MessageTypeTaskAdded}, got)
}

func TestConsumer_Decide(t *testing.T) {
	failure := errors.New("store down")

	tests := []struct {
		name    string
		body    []byte
		handler Handler
		want    ackAction
	}{
		{
			name:    "handled",
			body:    mustMarshal(t, NewMessage(MessageTypeTaskAdded, nil)),
			handler: func(context.Context, *Delivery) error { return nil },
			want:    actionAck,
		},
		{
			name:    "undecodable",
			body:    []byte("not json"),
			handler: func(context.Context, *Delivery) error { return nil },
			want:    actionDrop,
		},
		{
			name:    "transient failure",
			body:    mustMarshal(t, NewMessage(MessageTypeTaskAdded, nil)),
			handler: func(context.Context, *Delivery) error { return failure },
			want:    actionRequeue,
		},
		{
			name: "permanent failure",
			body: mustMarshal(t, NewMessage(MessageTypeTaskAdded, nil)),
			handler: func(context.Context, *Delivery) error {
				return errors.Join(ErrDrop, failure)
			},
			want: actionDrop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(nil, quietLogger(), ConsumerConfig{Queue: QueueMonitor, Handler: tt.handler})
			assert.Equal(t, tt.want, c.decide(context.Background(), amqp.Delivery{Body: tt.body}))
		})
	}
}

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo()
	assert.Contains(t, info, string(ExchangeEvents))
	assert.Contains(t, info, string(QueueMonitor))
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
