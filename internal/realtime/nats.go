package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ProgressSubject is where the progress of one workflow is published:
// tenant.<tenantID>.workflow.<workflowID>.progress
func ProgressSubject(tenantID, workflowID string) string {
	return fmt.Sprintf("tenant.%s.workflow.%s.progress", tenantID, workflowID)
}

func progressWildcard(tenantID string) string {
	return fmt.Sprintf("tenant.%s.workflow.*.progress", tenantID)
}

// Connect opens a NATS connection that keeps reconnecting and logs its state
// changes.
func Connect(url, name string, logger zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

// NATSBridge subscribes to progress subjects and pushes them into the Hub.
type NATSBridge struct {
	conn     *nats.Conn
	hub      *Hub
	tenantID string
	logger   zerolog.Logger
}

func NewNATSBridge(conn *nats.Conn, tenantID string, hub *Hub, logger zerolog.Logger) *NATSBridge {
	return &NATSBridge{conn: conn, hub: hub, tenantID: tenantID, logger: logger}
}

func (b *NATSBridge) Subscribe() error {
	subject := progressWildcard(b.tenantID)
	if _, err := b.conn.Subscribe(subject, b.handle); err != nil {
		return fmt.Errorf("nats subscribe %q: %w", subject, err)
	}

	b.logger.Info().Str("subject", subject).Msg("NATS bridge subscribed")
	return nil
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	workflowID, err := parseWorkflowIDFromSubject(msg.Subject)
	if err != nil {
		b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Bad progress subject")
		return
	}

	envelope := outgoingMsg{
		Type:       "workflow.progress",
		WorkflowID: workflowID,
		Payload:    json.RawMessage(msg.Data),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		b.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to encode progress envelope")
		return
	}

	send(b.hub, b.hub.broadcast, broadcastMsg{workflowID: workflowID, payload: data})
}

// Close drains the NATS connection.
func (b *NATSBridge) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Error().Err(err).Msg("Failed to drain NATS connection")
	}
}

// parseWorkflowIDFromSubject extracts the id from
// "tenant.<tid>.workflow.<workflowID>.progress".
func parseWorkflowIDFromSubject(subject string) (string, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 5 {
		return "", fmt.Errorf("expected 5 parts, got %d", len(parts))
	}
	if parts[0] != "tenant" || parts[2] != "workflow" || parts[4] != "progress" {
		return "", fmt.Errorf("unexpected subject layout %q", subject)
	}
	if parts[3] == "" {
		return "", fmt.Errorf("empty workflow id")
	}
	return parts[3], nil
}
