package websocket

import (
	"encoding/json"
	"time"

	"autoflow/internal/workflow"
)

type GraphSync struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

type NodeDrop struct {
	Node       workflow.Node `json:"node"`
	SelectedID string        `json:"selectedId"`
}

type EdgeConnect struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required,nefield=Source"`
}

type NodeMove struct {
	NodeID   string            `json:"nodeId" validate:"required"`
	Position workflow.Position `json:"position"`
}

type NodeConfigure struct {
	NodeID string          `json:"nodeId" validate:"required"`
	Config workflow.Config `json:"config"`
}

type RunRequest struct {
	StopIfEmptyTriggerProviders []string        `json:"stopIfEmptyTriggerProviders"`
	Input                       json.RawMessage `json:"input,omitempty"`
}

// GraphState is broadcast after every accepted edit. Version increases by one
// per edit so clients can drop stale frames.
type GraphState struct {
	Nodes   []workflow.Node `json:"nodes"`
	Edges   []workflow.Edge `json:"edges"`
	Version int             `json:"version"`
}

// UserInfo represents user information in the room
type UserInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Error         string `json:"error,omitempty"`
	CustomMessage string `json:"customMessage"`
}

func systemMessage(t MessageType, workflowID string, data any) Message {
	return Message{
		Type:       t,
		WorkflowID: workflowID,
		Username:   "system",
		Timestamp:  time.Now(),
		Data:       data,
	}
}

// NewErrorMessage creates a new error message
func NewErrorMessage(workflowID, userID, username, errorText string, err error) Message {
	data := ErrorMessage{CustomMessage: errorText}
	if err != nil {
		data.Error = err.Error()
	}
	return Message{
		Type:       MessageTypeError,
		WorkflowID: workflowID,
		UserID:     userID,
		Username:   username,
		Timestamp:  time.Now(),
		Data:       data,
	}
}

func NewUserJoinMessage(workflowID string, user UserInfo) Message {
	return Message{
		Type:       MessageTypeUserJoin,
		WorkflowID: workflowID,
		UserID:     user.UserID,
		Username:   user.Username,
		Timestamp:  time.Now(),
		Data:       user,
	}
}

func NewUserLeaveMessage(workflowID string, user UserInfo) Message {
	return Message{
		Type:       MessageTypeUserLeave,
		WorkflowID: workflowID,
		UserID:     user.UserID,
		Username:   user.Username,
		Timestamp:  time.Now(),
		Data:       user,
	}
}
