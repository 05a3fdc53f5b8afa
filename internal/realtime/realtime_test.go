package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"autoflow/internal/workflow"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflowIDFromSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
		wantErr bool
	}{
		{"valid", ProgressSubject("acme", "wf-42"), "wf-42", false},
		{"uuid id", "tenant.t1.workflow.0b9c3a52-8f6e-4e0e-9d0c-2f1f5c1a7d11.progress", "0b9c3a52-8f6e-4e0e-9d0c-2f1f5c1a7d11", false},
		{"too short", "tenant.t1.workflow.progress", "", true},
		{"wrong kind", "tenant.t1.job.7.progress", "", true},
		{"empty id", "tenant.t1.workflow..progress", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWorkflowIDFromSubject(tt.subject)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressSubject(t *testing.T) {
	assert.Equal(t, "tenant.acme.workflow.wf-1.progress", ProgressSubject("acme", "wf-1"))
	assert.Equal(t, "tenant.acme.workflow.*.progress", progressWildcard("acme"))
}

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return f.err
}

func TestPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "acme", zerolog.Nop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	event := workflow.StepEvent{NodeID: "n1", Label: "Gmail", StepNumber: 1, Provider: workflow.ProviderGmail, Index: 0, Total: 3}
	ctx := workflow.WithRunInfo(context.Background(), workflow.RunInfo{WorkflowID: "wf-1", RunID: "run-1"})

	p.StepStarted(ctx, event)
	p.StepFinished(ctx, event, workflow.StepResult{Status: workflow.StepStatusError, Error: "boom", DurationMs: 12})

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "tenant.acme.workflow.wf-1.progress", conn.msgs[0].subject)

	var started, finished Progress
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &started))
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &finished))
	assert.Equal(t, EventStepStarted, started.Event)
	assert.Equal(t, "run-1", started.RunID)
	assert.Equal(t, 3, started.Total)
	assert.True(t, fixed.Equal(started.At))
	assert.Equal(t, EventStepFinished, finished.Event)
	assert.Equal(t, workflow.StepStatusError, finished.Status)
	assert.Equal(t, "boom", finished.Error)
	assert.Equal(t, int64(12), finished.DurationMs)
}

func TestPublisher_SkipsRunsWithoutInfo(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "acme", zerolog.Nop())

	p.StepStarted(context.Background(), workflow.StepEvent{NodeID: "n1"})

	assert.Empty(t, conn.msgs)
}

func TestPublisher_IgnoresPublishErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewPublisher(conn, "acme", zerolog.Nop())
	ctx := workflow.WithRunInfo(context.Background(), workflow.RunInfo{WorkflowID: "wf-1", RunID: "r"})

	assert.NotPanics(t, func() { p.StepStarted(ctx, workflow.StepEvent{NodeID: "n1"}) })
	assert.Len(t, conn.msgs, 1)
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBridge_RoutesProgressToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	watcher := NewClient(hub, nil, "u1", zerolog.Nop())
	other := NewClient(hub, nil, "u2", zerolog.Nop())
	send(hub, hub.register, watcher)
	send(hub, hub.register, other)
	watcher.handle([]byte(`{"action":"subscribe","workflowId":"wf-1"}`))
	other.handle([]byte(`{"action":"subscribe","workflowId":"wf-2"}`))

	bridge := NewNATSBridge(nil, "acme", hub, zerolog.Nop())
	bridge.handle(&nats.Msg{Subject: ProgressSubject("acme", "wf-1"), Data: []byte(`{"event":"step.started"}`)})
	bridge.handle(&nats.Msg{Subject: "garbage", Data: []byte(`{}`)})

	var got outgoingMsg
	require.NoError(t, json.Unmarshal(receive(t, watcher), &got))
	assert.Equal(t, "workflow.progress", got.Type)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.JSONEq(t, `{"event":"step.started"}`, string(got.Payload))

	select {
	case msg := <-other.send:
		t.Fatalf("unexpected message for other workflow: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	c := NewClient(hub, nil, "u1", zerolog.Nop())
	send(hub, hub.register, c)
	c.handle([]byte(`{"action":"subscribe","workflowId":"wf-1"}`))
	c.handle([]byte(`{"action":"unsubscribe","workflowId":"wf-1"}`))
	send(hub, hub.broadcast, broadcastMsg{workflowID: "wf-1", payload: []byte("x")})

	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message after unsubscribe: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	send(hub, hub.unregister, c)
	_, open := <-c.send
	assert.False(t, open)
}
