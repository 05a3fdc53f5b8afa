package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"autoflow"
	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/workflow"
	"autoflow/pkg"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WorkflowRunner executes a graph on behalf of a user.
type WorkflowRunner interface {
	Run(ctx context.Context, userID, workflowID string, dto request.RunWorkflow) (response.Run, error)
}

// MessageProcessor applies graph edits to the room of a message and returns
// the message to broadcast.
type MessageProcessor struct {
	hub    *Hub
	runner WorkflowRunner
	logger zerolog.Logger
}

func NewMessageProcessor(hub *Hub, runner WorkflowRunner) *MessageProcessor {
	return &MessageProcessor{
		hub:    hub,
		runner: runner,
		logger: autoflow.Logger,
	}
}

func (p *MessageProcessor) ProcessMessage(ctx context.Context, msg *Message) (*Message, error) {
	room := p.hub.Room(msg.WorkflowID)

	switch msg.Type {
	case MessageTypeGraphSync:
		var data GraphSync
		if err := decodeData(msg, &data); err != nil {
			return nil, err
		}
		return p.edit(room, msg, func(g *workflow.Graph) error {
			g.Nodes = workflow.Reindex(data.Nodes, data.Edges)
			g.Edges = data.Edges
			return nil
		})

	case MessageTypeNodeDrop:
		var data NodeDrop
		if err := decodeData(msg, &data); err != nil {
			return nil, err
		}
		if data.Node.ID == "" {
			data.Node.ID = uuid.NewString()
		}
		return p.edit(room, msg, func(g *workflow.Graph) error {
			if _, exists := g.Node(data.Node.ID); exists {
				return fmt.Errorf("node %s already exists", data.Node.ID)
			}
			g.Drop(data.Node, data.SelectedID)
			return nil
		})

	case MessageTypeEdgeConnect:
		var data EdgeConnect
		if err := decodeData(msg, &data); err != nil {
			return nil, err
		}
		return p.edit(room, msg, func(g *workflow.Graph) error {
			if err := requireNodes(g, data.Source, data.Target); err != nil {
				return err
			}
			return g.Connect(workflow.Edge{Source: data.Source, Target: data.Target})
		})

	case MessageTypeNodeMove:
		var data NodeMove
		if err := decodeData(msg, &data); err != nil {
			return nil, err
		}
		return p.edit(room, msg, func(g *workflow.Graph) error {
			if !g.Move(data.NodeID, data.Position) {
				return fmt.Errorf("node %s not found", data.NodeID)
			}
			return nil
		})

	case MessageTypeNodeConfigure:
		var data NodeConfigure
		if err := decodeData(msg, &data); err != nil {
			return nil, err
		}
		return p.edit(room, msg, func(g *workflow.Graph) error {
			if !g.Configure(data.NodeID, data.Config) {
				return fmt.Errorf("node %s not found", data.NodeID)
			}
			return nil
		})

	case MessageTypeRunRequest:
		return p.run(ctx, room, msg)

	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
}

func (p *MessageProcessor) edit(room *Room, msg *Message, fn func(g *workflow.Graph) error) (*Message, error) {
	state, err := room.Edit(fn)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().
		Str("workflowId", msg.WorkflowID).
		Str("type", string(msg.Type)).
		Int("version", state.Version).
		Msg("Graph updated")

	out := *msg
	out.Type = MessageTypeGraphState
	out.Data = state
	return &out, nil
}

func (p *MessageProcessor) run(ctx context.Context, room *Room, msg *Message) (*Message, error) {
	if p.runner == nil {
		return nil, fmt.Errorf("workflow runs are not available")
	}
	var data RunRequest
	if err := decodeData(msg, &data); err != nil {
		return nil, err
	}

	state := room.Snapshot()
	result, err := p.runner.Run(ctx, msg.UserID, msg.WorkflowID, request.RunWorkflow{
		Graph:                       request.Graph{Nodes: state.Nodes, Edges: state.Edges},
		StopIfEmptyTriggerProviders: data.StopIfEmptyTriggerProviders,
		Input:                       data.Input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run workflow: %w", err)
	}

	out := *msg
	out.Type = MessageTypeRunResult
	out.Data = result
	return &out, nil
}

func requireNodes(g *workflow.Graph, ids ...string) error {
	for _, id := range ids {
		if _, ok := g.Node(id); !ok {
			return fmt.Errorf("node %s not found", id)
		}
	}
	return nil
}

// decodeData converts the loosely typed Data of msg into out and validates it.
func decodeData(msg *Message, out any) error {
	dataBytes, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal message data: %w", err)
	}
	if err := json.Unmarshal(dataBytes, out); err != nil {
		return fmt.Errorf("invalid message data: %w", err)
	}
	if err := pkg.Validate(out); err != nil {
		return fmt.Errorf("invalid message data: %w", err)
	}
	return nil
}
