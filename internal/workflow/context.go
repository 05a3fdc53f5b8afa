package workflow

import (
	"encoding/json"
	"fmt"
)

// Record is one item produced by a trigger: an email, a webhook item, a
// schedule tick.
type Record map[string]any

func (r Record) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Subject returns the subject field of an email record.
func (r Record) Subject() string { return r.str("subject") }

// Snippet returns the snippet field of an email record.
func (r Record) Snippet() string { return r.str("snippet") }

// ExecutionContext accumulates what upstream steps produced during one run.
// Fields are only ever overwritten by a later Delta, never cleared.
type ExecutionContext struct {
	TriggerProvider string
	TriggerData     []Record
	Prompt          string
	PromptUsed      string
	AIProvider      string
	AIOutput        string
	SinkResult      any
	SinkPayload     any

	// Input is the payload the run was started with (webhook body). Handlers
	// read it, they never change it.
	Input json.RawMessage
}

// HasTrigger reports whether a trigger step has set the trigger data, even to
// an empty list.
func (c *ExecutionContext) HasTrigger() bool {
	return c.TriggerData != nil
}

// Delta is the partial update a handler returns. Nil fields leave the
// corresponding context field untouched.
type Delta struct {
	TriggerProvider *string
	TriggerData     *[]Record
	Prompt          *string
	PromptUsed      *string
	AIProvider      *string
	AIOutput        *string
	SinkResult      any
	SinkPayload     any
}

// Apply merges d into the context field by field.
func (c *ExecutionContext) Apply(d Delta) {
	if d.TriggerProvider != nil {
		c.TriggerProvider = *d.TriggerProvider
	}
	if d.TriggerData != nil {
		data := *d.TriggerData
		if data == nil {
			data = []Record{}
		}
		c.TriggerData = data
	}
	if d.Prompt != nil {
		c.Prompt = *d.Prompt
	}
	if d.PromptUsed != nil {
		c.PromptUsed = *d.PromptUsed
	}
	if d.AIProvider != nil {
		c.AIProvider = *d.AIProvider
	}
	if d.AIOutput != nil {
		c.AIOutput = *d.AIOutput
	}
	if d.SinkResult != nil {
		c.SinkResult = d.SinkResult
	}
	if d.SinkPayload != nil {
		c.SinkPayload = d.SinkPayload
	}
}

// TriggerDelta builds the update of a trigger step.
func TriggerDelta(provider string, records []Record) Delta {
	if records == nil {
		records = []Record{}
	}
	return Delta{TriggerProvider: &provider, TriggerData: &records}
}

// PromptDelta builds the update of a prompt rendering step.
func PromptDelta(prompt string) Delta {
	return Delta{Prompt: &prompt}
}

// AIDelta builds the update of a model call.
func AIDelta(provider, output, promptUsed string) Delta {
	return Delta{AIProvider: &provider, AIOutput: &output, PromptUsed: &promptUsed}
}

// SinkDelta builds the update of a sink step.
func SinkDelta(result, payload any) Delta {
	return Delta{SinkResult: result, SinkPayload: payload}
}
