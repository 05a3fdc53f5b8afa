package nodes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"autoflow/internal/workflow"
	"autoflow/pkg"

	"github.com/tidwall/gjson"
)

const (
	PlatformGmail = "gmail"
	PlatformIMAP  = "imap"

	defaultIMAPPort = 993
)

func (h *handlers) gmail(ctx context.Context, node workflow.Node, _ *workflow.ExecutionContext) (workflow.Delta, error) {
	connectionID := node.Config.String("connectionId")
	if connectionID == "" {
		return workflow.Delta{}, errors.New("missing Gmail connectionId")
	}
	conn, err := h.resolve(ctx, connectionID)
	if err != nil {
		return workflow.Delta{}, err
	}

	var messages []pkg.InboxMessage
	switch conn.Platform {
	case PlatformIMAP:
		if h.deps.IMAP == nil {
			return workflow.Delta{}, errors.New("IMAP inbox not configured")
		}
		messages, err = h.deps.IMAP.ListUnseen(ctx, imapAccount(conn))
	case PlatformGmail:
		if h.deps.Gmail == nil {
			return workflow.Delta{}, errors.New("Gmail inbox not configured")
		}
		creds := pkg.InboxCredentials{AccessToken: conn.AccessToken, RefreshToken: conn.RefreshToken}
		messages, err = h.deps.Gmail.ListUnseen(ctx, creds, func(ctx context.Context, token string) error {
			return h.deps.Connections.UpdateAccessToken(ctx, conn.ID, token)
		})
	default:
		return workflow.Delta{}, fmt.Errorf("connection %s is a %q connection, not a mailbox", connectionID, conn.Platform)
	}
	if err != nil {
		return workflow.Delta{}, err
	}

	records := make([]workflow.Record, 0, len(messages))
	for _, m := range messages {
		records = append(records, workflow.Record{
			"id":      m.ID,
			"subject": m.Subject,
			"from":    m.From,
			"snippet": m.Snippet,
		})
	}
	return workflow.TriggerDelta(string(workflow.ProviderGmail), records), nil
}

func imapAccount(conn Connection) pkg.IMAPAccount {
	port, err := strconv.Atoi(conn.Meta("port"))
	if err != nil || port <= 0 {
		port = defaultIMAPPort
	}
	username := conn.Meta("username", "email")
	useTLS := conn.Meta("use_tls") != "false"
	return pkg.IMAPAccount{
		Host:     conn.Meta("host"),
		Port:     port,
		Username: username,
		Password: conn.AccessToken,
		UseTLS:   useTLS,
	}
}

// webhookTrigger turns the run input into trigger records. With itemsPath
// only the matching part of the payload is used.
func (h *handlers) webhookTrigger(_ context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
	records, err := WebhookRecords(run.Input, node.Config.String("itemsPath"))
	if err != nil {
		return workflow.Delta{}, err
	}
	return workflow.TriggerDelta("webhook", records), nil
}

// WebhookRecords extracts records from a webhook payload: an array yields
// its items, an object a single record, anything else a {"value": v} record.
func WebhookRecords(input []byte, itemsPath string) ([]workflow.Record, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return []workflow.Record{}, nil
	}
	if !gjson.ValidBytes(input) {
		return nil, errors.New("invalid webhook payload: not JSON")
	}

	result := gjson.ParseBytes(input)
	if itemsPath != "" {
		result = result.Get(itemsPath)
	}
	if !result.Exists() || result.Type == gjson.Null {
		return []workflow.Record{}, nil
	}
	if !result.IsArray() {
		return []workflow.Record{toRecord(result)}, nil
	}

	items := result.Array()
	records := make([]workflow.Record, 0, len(items))
	for _, item := range items {
		records = append(records, toRecord(item))
	}
	return records, nil
}

func toRecord(item gjson.Result) workflow.Record {
	if obj, ok := item.Value().(map[string]any); ok {
		return workflow.Record(obj)
	}
	return workflow.Record{"value": item.Value()}
}

func (h *handlers) scheduleTrigger(_ context.Context, node workflow.Node, _ *workflow.ExecutionContext) (workflow.Delta, error) {
	expr, err := ScheduleOf(node.Config)
	if err != nil {
		return workflow.Delta{}, err
	}
	now := h.deps.Now()
	next, err := pkg.NextRun(expr, now)
	if err != nil {
		return workflow.Delta{}, err
	}
	record := workflow.Record{
		"cron":    expr,
		"firedAt": now.UTC().Format(time.RFC3339),
		"nextRun": next.UTC().Format(time.RFC3339),
	}
	return workflow.TriggerDelta("schedule", []workflow.Record{record}), nil
}

// ScheduleOf returns the cron expression of a schedule trigger config. The
// editor stores either {scheduleType: "cron", cronExpression} or an interval
// in minutes; a plain "cron" key wins over both.
func ScheduleOf(cfg workflow.Config) (string, error) {
	if expr := cfg.String("cron"); expr != "" {
		return expr, nil
	}
	if cfg.String("scheduleType") == "cron" {
		if expr := cfg.String("cronExpression"); expr != "" {
			return expr, nil
		}
		return "", errors.New("missing schedule cron expression")
	}

	raw := cfg.String("interval")
	if raw == "" {
		return "", errors.New("missing schedule cron expression")
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 1 {
		return "", fmt.Errorf("invalid schedule interval %q", raw)
	}
	return fmt.Sprintf("@every %dm", minutes), nil
}
