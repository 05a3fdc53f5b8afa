package realtime

import (
	"context"
	"encoding/json"
	"time"

	"autoflow/internal/workflow"

	"github.com/rs/zerolog"
)

const (
	EventStepStarted  = "step.started"
	EventStepFinished = "step.finished"
)

// Progress is the payload published for every step of a run.
type Progress struct {
	Event      string              `json:"event"`
	WorkflowID string              `json:"workflowId"`
	RunID      string              `json:"runId"`
	NodeID     string              `json:"nodeId"`
	Label      string              `json:"label"`
	StepNumber int                 `json:"stepNumber"`
	Provider   workflow.Provider   `json:"provider"`
	Index      int                 `json:"index"`
	Total      int                 `json:"total"`
	Status     workflow.StepStatus `json:"status,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMs int64               `json:"durationMs,omitempty"`
	At         time.Time           `json:"at"`
}

// PublishConn is the part of *nats.Conn the publisher needs.
type PublishConn interface {
	Publish(subject string, data []byte) error
}

// Publisher is an engine observer that streams step progress to NATS. Runs
// without a workflow.RunInfo in their context are not published.
type Publisher struct {
	conn     PublishConn
	tenantID string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewPublisher(conn PublishConn, tenantID string, logger zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, tenantID: tenantID, logger: logger, now: time.Now}
}

func (p *Publisher) StepStarted(ctx context.Context, event workflow.StepEvent) {
	p.publish(ctx, p.progress(EventStepStarted, event))
}

func (p *Publisher) StepFinished(ctx context.Context, event workflow.StepEvent, result workflow.StepResult) {
	msg := p.progress(EventStepFinished, event)
	msg.Status = result.Status
	msg.Error = result.Error
	msg.DurationMs = result.DurationMs
	p.publish(ctx, msg)
}

func (p *Publisher) progress(kind string, event workflow.StepEvent) Progress {
	return Progress{
		Event:      kind,
		NodeID:     event.NodeID,
		Label:      event.Label,
		StepNumber: event.StepNumber,
		Provider:   event.Provider,
		Index:      event.Index,
		Total:      event.Total,
		At:         p.now().UTC(),
	}
}

func (p *Publisher) publish(ctx context.Context, msg Progress) {
	info, ok := workflow.RunInfoFrom(ctx)
	if !ok {
		return
	}
	msg.WorkflowID = info.WorkflowID
	msg.RunID = info.RunID

	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("workflowId", info.WorkflowID).Msg("Failed to encode progress")
		return
	}
	// best effort, the run goes on without it
	if err := p.conn.Publish(ProgressSubject(p.tenantID, info.WorkflowID), data); err != nil {
		p.logger.Warn().Err(err).Str("workflowId", info.WorkflowID).Msg("Failed to publish progress")
	}
}
