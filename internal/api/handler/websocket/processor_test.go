package websocket

import (
	"context"
	"errors"
	"testing"

	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/workflow"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	got request.RunWorkflow
	err error
}

func (f *fakeRunner) Run(_ context.Context, _, workflowID string, dto request.RunWorkflow) (response.Run, error) {
	f.got = dto
	if f.err != nil {
		return response.Run{}, f.err
	}
	return response.Run{RunID: "r1", WorkflowID: workflowID, Summary: workflow.RunSummary{OK: true}}, nil
}

func newTestProcessor(runner WorkflowRunner) (*MessageProcessor, *Hub) {
	hub := NewHub(zerolog.Nop())
	return &MessageProcessor{hub: hub, runner: runner, logger: zerolog.Nop()}, hub
}

func send(t *testing.T, p *MessageProcessor, msgType MessageType, data any) (*Message, error) {
	t.Helper()
	return p.ProcessMessage(context.Background(), &Message{Type: msgType, WorkflowID: "wf-1", UserID: "u1", Data: data})
}

func stateOf(t *testing.T, msg *Message) GraphState {
	t.Helper()
	require.Equal(t, MessageTypeGraphState, msg.Type)
	state, ok := msg.Data.(GraphState)
	require.True(t, ok)
	return state
}

func stepsOf(state GraphState) map[string]int {
	out := make(map[string]int)
	for _, n := range state.Nodes {
		out[n.ID] = n.Step()
	}
	return out
}

func syncChain(t *testing.T, p *MessageProcessor) {
	t.Helper()
	_, err := send(t, p, MessageTypeGraphSync, map[string]any{
		"nodes": []map[string]any{
			{"id": "a", "label": "Gmail", "stepNumber": 1, "position": map[string]any{"x": 0, "y": 0}},
			{"id": "b", "label": "AI Generate", "stepNumber": 2, "position": map[string]any{"x": 200, "y": 0}},
			{"id": "c", "label": "Discord", "stepNumber": 3, "position": map[string]any{"x": 400, "y": 0}},
		},
		"edges": []map[string]any{
			{"id": "edge-a-b", "source": "a", "target": "b"},
			{"id": "edge-b-c", "source": "b", "target": "c"},
		},
	})
	require.NoError(t, err)
}

func TestProcessor_GraphSyncReindexes(t *testing.T) {
	p, hub := newTestProcessor(nil)

	out, err := send(t, p, MessageTypeGraphSync, GraphSync{
		Nodes: []workflow.Node{
			{ID: "x", Position: workflow.Position{X: 300}, StepNumber: intPtr(1)},
			{ID: "y", Position: workflow.Position{X: 100}, StepNumber: intPtr(2)},
		},
	})

	require.NoError(t, err)
	state := stateOf(t, out)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, map[string]int{"x": 2, "y": 1}, stepsOf(state))
	assert.Equal(t, state, hub.Room("wf-1").Snapshot())
}

func TestProcessor_NodeDropBetweenSteps(t *testing.T) {
	p, _ := newTestProcessor(nil)
	syncChain(t, p)

	out, err := send(t, p, MessageTypeNodeDrop, NodeDrop{
		Node:       workflow.Node{ID: "n", Label: "Slack", Position: workflow.Position{X: 100, Y: 50}},
		SelectedID: "a",
	})

	require.NoError(t, err)
	state := stateOf(t, out)
	assert.Equal(t, 2, state.Version)
	assert.Equal(t, map[string]int{"a": 1, "n": 2, "b": 3, "c": 4}, stepsOf(state))

	_, err = send(t, p, MessageTypeNodeDrop, NodeDrop{Node: workflow.Node{ID: "n"}})
	assert.EqualError(t, err, "node n already exists")
}

func TestProcessor_EdgeConnect(t *testing.T) {
	p, hub := newTestProcessor(nil)
	syncChain(t, p)

	_, err := send(t, p, MessageTypeEdgeConnect, EdgeConnect{Source: "a", Target: "b"})
	assert.ErrorIs(t, err, workflow.ErrDuplicateEdge)

	_, err = send(t, p, MessageTypeEdgeConnect, EdgeConnect{Source: "a", Target: "zzz"})
	assert.EqualError(t, err, "node zzz not found")

	_, err = send(t, p, MessageTypeEdgeConnect, EdgeConnect{Source: "a", Target: "a"})
	assert.Error(t, err)

	out, err := send(t, p, MessageTypeEdgeConnect, EdgeConnect{Source: "a", Target: "c"})
	require.NoError(t, err)
	assert.Len(t, stateOf(t, out).Edges, 3)
	assert.Equal(t, 2, hub.Room("wf-1").Snapshot().Version)
}

func TestProcessor_MoveAndConfigure(t *testing.T) {
	p, _ := newTestProcessor(nil)
	syncChain(t, p)

	_, err := send(t, p, MessageTypeNodeMove, NodeMove{NodeID: "missing"})
	assert.EqualError(t, err, "node missing not found")

	out, err := send(t, p, MessageTypeNodeConfigure, NodeConfigure{NodeID: "c", Config: workflow.Config{"webhookUrl": "https://discord.test"}})
	require.NoError(t, err)
	for _, n := range stateOf(t, out).Nodes {
		if n.ID == "c" {
			assert.True(t, n.IsConfigured)
			assert.Equal(t, "https://discord.test", n.Config.String("webhookUrl"))
		}
	}
}

func TestProcessor_RunUsesRoomGraph(t *testing.T) {
	runner := &fakeRunner{}
	p, _ := newTestProcessor(runner)
	syncChain(t, p)

	out, err := send(t, p, MessageTypeRunRequest, RunRequest{StopIfEmptyTriggerProviders: []string{"gmail"}})

	require.NoError(t, err)
	assert.Equal(t, MessageTypeRunResult, out.Type)
	assert.Len(t, runner.got.Nodes, 3)
	assert.Equal(t, []string{"gmail"}, runner.got.StopIfEmptyTriggerProviders)

	runner.err = errors.New("db down")
	_, err = send(t, p, MessageTypeRunRequest, RunRequest{})
	assert.EqualError(t, err, "failed to run workflow: db down")
}

func TestProcessor_UnsupportedType(t *testing.T) {
	p, _ := newTestProcessor(nil)

	_, err := send(t, p, MessageTypeChat, "hi")

	assert.EqualError(t, err, "unsupported message type: chat")
}

func TestRoom_JoinSendsStateAndBroadcastExcept(t *testing.T) {
	room := NewRoom("wf-1", zerolog.Nop())
	alice := &Client{ID: "c1", UserID: "alice", Username: "Alice", WorkflowID: "wf-1", Send: make(chan Message, 8)}
	bob := &Client{ID: "c2", UserID: "bob", Username: "Bob", WorkflowID: "wf-1", Send: make(chan Message, 8)}

	room.AddClient(alice)
	require.Len(t, alice.Send, 3)
	assert.Equal(t, MessageTypeUserJoin, (<-alice.Send).Type)
	assert.Equal(t, MessageTypeUserJoin, (<-alice.Send).Type)
	assert.Equal(t, MessageTypeGraphState, (<-alice.Send).Type)

	room.AddClient(bob)
	assert.Len(t, room.GetActiveUsers(), 2)
	<-alice.Send

	room.BroadcastExcept(Message{Type: MessageTypeCursorMove}, "c1")
	assert.Len(t, alice.Send, 0)
	assert.Len(t, bob.Send, 4)

	room.RemoveClient(bob)
	assert.Equal(t, MessageTypeUserLeave, (<-alice.Send).Type)
	assert.Equal(t, 1, room.ClientCount())
}

func TestMessageType_RequiresProcessing(t *testing.T) {
	assert.True(t, MessageTypeNodeDrop.RequiresProcessing())
	assert.True(t, MessageTypeRunRequest.RequiresProcessing())
	assert.False(t, MessageTypeCursorMove.RequiresProcessing())
	assert.False(t, MessageTypeChat.RequiresProcessing())
}

func intPtr(v int) *int { return &v }
